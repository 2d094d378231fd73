package updater

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	homeDirectoryPrefixConstant           = "~"
	failurePolicyConfigurationKeyConstant = "failure_policy"

	// Failure policies accepted by the sync configuration.
	FailurePolicyLogOnly = "log-only"
	FailurePolicyStrict  = "strict"
)

// CommandConfiguration aggregates settings for the sync command.
type CommandConfiguration struct {
	Jobs           []JobConfiguration `mapstructure:"jobs"`
	SummaryLogPath string             `mapstructure:"summary_log"`
	FailurePolicy  string             `mapstructure:"failure_policy"`
}

// JobConfiguration stores settings for a single checkout synchronization.
type JobConfiguration struct {
	Name                   string            `mapstructure:"name"`
	LocalPath              string            `mapstructure:"path"`
	RemoteName             string            `mapstructure:"remote"`
	BranchName             string            `mapstructure:"branch"`
	ResetLocalChanges      bool              `mapstructure:"reset"`
	PreserveLocalChanges   bool              `mapstructure:"preserve_changes"`
	PostUpdateCommand      []string          `mapstructure:"post_command"`
	VirtualEnvironmentPath string            `mapstructure:"virtualenv"`
	EnvironmentVariables   map[string]string `mapstructure:"env"`
	LogFilePath            string            `mapstructure:"log_file"`
}

// DefaultCommandConfiguration supplies baseline values for the sync configuration.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		FailurePolicy: FailurePolicyLogOnly,
	}
}

// DefaultConfigurationValues produces Viper defaults for the sync command.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultCommandConfiguration()
	return map[string]any{
		rootKey + "." + failurePolicyConfigurationKeyConstant: defaults.FailurePolicy,
	}
}

// Sanitize trims configured values and expands home-relative paths.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.SummaryLogPath = expandHomeDirectory(strings.TrimSpace(configuration.SummaryLogPath))
	sanitized.FailurePolicy = strings.ToLower(strings.TrimSpace(configuration.FailurePolicy))
	if len(sanitized.FailurePolicy) == 0 {
		sanitized.FailurePolicy = FailurePolicyLogOnly
	}
	sanitizedJobs := make([]JobConfiguration, 0, len(configuration.Jobs))
	for _, jobConfiguration := range configuration.Jobs {
		sanitizedJobs = append(sanitizedJobs, jobConfiguration.Sanitize())
	}
	if len(sanitizedJobs) == 0 {
		sanitized.Jobs = nil
	} else {
		sanitized.Jobs = sanitizedJobs
	}
	return sanitized
}

// Sanitize trims job configuration values and expands home-relative paths.
func (configuration JobConfiguration) Sanitize() JobConfiguration {
	sanitized := configuration
	sanitized.Name = strings.TrimSpace(configuration.Name)
	sanitized.LocalPath = expandHomeDirectory(strings.TrimSpace(configuration.LocalPath))
	sanitized.RemoteName = strings.TrimSpace(configuration.RemoteName)
	sanitized.BranchName = strings.TrimSpace(configuration.BranchName)
	sanitized.VirtualEnvironmentPath = expandHomeDirectory(strings.TrimSpace(configuration.VirtualEnvironmentPath))
	sanitized.LogFilePath = expandHomeDirectory(strings.TrimSpace(configuration.LogFilePath))
	return sanitized
}

// Job converts the configuration into a runnable sync job.
func (configuration JobConfiguration) Job() Job {
	return Job{
		Name:                 configuration.Name,
		LocalPath:            configuration.LocalPath,
		RemoteName:           configuration.RemoteName,
		BranchName:           configuration.BranchName,
		ResetLocalChanges:    configuration.ResetLocalChanges,
		PreserveLocalChanges: configuration.PreserveLocalChanges,
		PostUpdateCommand:    configuration.PostUpdateCommand,
		Environment: ExecutionEnvironment{
			VirtualEnvironmentPath: configuration.VirtualEnvironmentPath,
			Variables:              configuration.EnvironmentVariables,
		},
		LogFilePath: configuration.LogFilePath,
	}
}

func expandHomeDirectory(candidatePath string) string {
	if candidatePath != homeDirectoryPrefixConstant && !strings.HasPrefix(candidatePath, homeDirectoryPrefixConstant+string(os.PathSeparator)) {
		return candidatePath
	}
	homeDirectory, homeError := os.UserHomeDir()
	if homeError != nil {
		return candidatePath
	}
	if candidatePath == homeDirectoryPrefixConstant {
		return homeDirectory
	}
	return filepath.Join(homeDirectory, candidatePath[len(homeDirectoryPrefixConstant)+1:])
}
