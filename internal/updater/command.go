package updater

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/reposync/internal/execshell"
	"github.com/temirov/reposync/internal/gitrepo"
)

const (
	commandUseConstant                   = "sync"
	commandShortDescriptionConstant      = "Update configured git checkouts from their remotes"
	commandLongDescriptionConstant       = "sync fast-forwards each configured checkout from its remote branch, runs the checkout's post-update command, and appends a timestamped line to its run log."
	unexpectedArgumentsMessageConstant   = "sync does not accept positional arguments"
	jobsFlagNameConstant                 = "jobs"
	jobsFlagDescriptionConstant          = "Path to a YAML job manifest"
	summaryLogFlagNameConstant           = "summary-log"
	summaryLogFlagDescriptionConstant    = "File receiving the batch summary line"
	failurePolicyFlagNameConstant        = "failure-policy"
	failurePolicyFlagDescriptionConstant = "Exit policy when jobs fail: log-only or strict"
	unknownFailurePolicyTemplateConstant = "unknown failure policy %q"
	successResultLineTemplateConstant    = "SYNCED: %s (%s)\n"
	failureResultLineTemplateConstant    = "FAILED: %s (%s): %s\n"
	strictPolicyFailureTemplateConstant  = "%d of %d sync jobs failed"
	environmentFailureTemplateConstant   = "%d sync jobs aborted before reaching git"
	summaryLineSuffixTemplateConstant    = "%s\n"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current sync configuration.
type ConfigurationProvider func() CommandConfiguration

// CommandBuilder assembles the Cobra command for repository synchronization.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	Runner                JobRunner
	Clock                 Clock
}

// Build constructs the sync command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		RunE:  builder.run,
	}

	command.Flags().String(jobsFlagNameConstant, "", jobsFlagDescriptionConstant)
	command.Flags().String(summaryLogFlagNameConstant, "", summaryLogFlagDescriptionConstant)
	command.Flags().String(failurePolicyFlagNameConstant, "", failurePolicyFlagDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errors.New(unexpectedArgumentsMessageConstant)
	}

	configuration, configurationError := builder.resolveConfiguration(command)
	if configurationError != nil {
		return configurationError
	}

	jobs := make([]Job, 0, len(configuration.Jobs))
	for _, jobConfiguration := range configuration.Jobs {
		jobs = append(jobs, jobConfiguration.Job())
	}

	logger := builder.resolveLogger()
	runLogWriter := NewRunLogWriter(builder.Clock)
	jobRunner, runnerError := builder.resolveRunner(logger, runLogWriter)
	if runnerError != nil {
		return runnerError
	}

	batchRunner, batchRunnerError := NewBatchRunner(logger, jobRunner, runLogWriter)
	if batchRunnerError != nil {
		return batchRunnerError
	}

	summary, runError := batchRunner.Run(command.Context(), jobs, configuration.SummaryLogPath)
	if runError != nil {
		return runError
	}

	for _, jobResult := range summary.Results {
		if jobResult.Succeeded() {
			fmt.Fprintf(command.OutOrStdout(), successResultLineTemplateConstant, jobResult.JobName, jobResult.LocalPath)
		} else {
			fmt.Fprintf(command.OutOrStdout(), failureResultLineTemplateConstant, jobResult.JobName, jobResult.LocalPath, jobResult.Message)
		}
	}
	fmt.Fprintf(command.OutOrStdout(), summaryLineSuffixTemplateConstant, summary.SummaryLine)

	return builder.evaluateFailurePolicy(configuration.FailurePolicy, summary)
}

func (builder *CommandBuilder) resolveConfiguration(command *cobra.Command) (CommandConfiguration, error) {
	configuration := DefaultCommandConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}
	configuration = configuration.Sanitize()

	manifestPathValue, _ := command.Flags().GetString(jobsFlagNameConstant)
	if len(strings.TrimSpace(manifestPathValue)) > 0 {
		manifestConfiguration, manifestError := LoadManifest(manifestPathValue)
		if manifestError != nil {
			return CommandConfiguration{}, manifestError
		}
		configuration = manifestConfiguration
	}

	if command.Flags().Changed(summaryLogFlagNameConstant) {
		summaryLogValue, _ := command.Flags().GetString(summaryLogFlagNameConstant)
		configuration.SummaryLogPath = strings.TrimSpace(summaryLogValue)
	}

	if command.Flags().Changed(failurePolicyFlagNameConstant) {
		failurePolicyValue, _ := command.Flags().GetString(failurePolicyFlagNameConstant)
		configuration.FailurePolicy = strings.ToLower(strings.TrimSpace(failurePolicyValue))
	}

	if configuration.FailurePolicy != FailurePolicyLogOnly && configuration.FailurePolicy != FailurePolicyStrict {
		return CommandConfiguration{}, fmt.Errorf(unknownFailurePolicyTemplateConstant, configuration.FailurePolicy)
	}

	return configuration, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) resolveRunner(logger *zap.Logger, runLogWriter *RunLogWriter) (JobRunner, error) {
	if builder.Runner != nil {
		return builder.Runner, nil
	}

	commandRunner := execshell.NewOSCommandRunner()
	shellExecutor, executorError := execshell.NewShellExecutor(logger, commandRunner)
	if executorError != nil {
		return nil, executorError
	}

	repositoryManager, managerError := gitrepo.NewRepositoryManager(shellExecutor)
	if managerError != nil {
		return nil, managerError
	}

	return NewService(ServiceDependencies{
		Logger:          logger,
		FileSystem:      OSFileSystem{},
		Inspector:       repositoryManager,
		GitExecutor:     shellExecutor,
		ProgramExecutor: shellExecutor,
		RunLog:          runLogWriter,
	})
}

func (builder *CommandBuilder) evaluateFailurePolicy(failurePolicy string, summary BatchSummary) error {
	if failurePolicy == FailurePolicyStrict {
		if summary.FailedCount() > 0 {
			return fmt.Errorf(strictPolicyFailureTemplateConstant, summary.FailedCount(), len(summary.Results))
		}
		return nil
	}

	abortedBeforeGit := 0
	for _, jobResult := range summary.Results {
		if jobResult.Outcome == OutcomeDirectoryNotFound || jobResult.Outcome == OutcomeNotRepository {
			abortedBeforeGit++
		}
	}
	if abortedBeforeGit > 0 {
		return fmt.Errorf(environmentFailureTemplateConstant, abortedBeforeGit)
	}

	return nil
}
