package updater

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	localPathRequiredMessageConstant         = "job local path must be provided"
	conflictingChangePoliciesMessageConstant = "job cannot both reset and preserve local changes"
	defaultRemoteNameConstant                = "origin"
	defaultBranchNameConstant                = "main"
)

// ErrLocalPathRequired indicates a job omitted its checkout path.
var ErrLocalPathRequired = errors.New(localPathRequiredMessageConstant)

// ErrConflictingChangePolicies indicates a job requested both the reset and preserve strategies.
var ErrConflictingChangePolicies = errors.New(conflictingChangePoliciesMessageConstant)

// Outcome classifies the terminal state of a single sync job.
type Outcome string

// Job outcomes, ordered from success through the failure points of the run sequence.
const (
	OutcomeSuccess           Outcome = "success"
	OutcomeDirectoryNotFound Outcome = "directory_not_found"
	OutcomeNotRepository     Outcome = "not_repository"
	OutcomePullFailed        Outcome = "pull_failed"
	OutcomeStashConflict     Outcome = "stash_conflict"
	OutcomeCommandFailed     Outcome = "command_failed"
)

// Job describes one checkout to synchronize with its remote branch.
type Job struct {
	Name                 string
	LocalPath            string
	RemoteName           string
	BranchName           string
	ResetLocalChanges    bool
	PreserveLocalChanges bool
	PostUpdateCommand    []string
	Environment          ExecutionEnvironment
	LogFilePath          string
}

// Result captures the observable outcome of running one job.
type Result struct {
	JobName      string
	LocalPath    string
	Outcome      Outcome
	Message      string
	FailureCause error
}

// Succeeded reports whether the job reached its terminal success state.
func (result Result) Succeeded() bool {
	return result.Outcome == OutcomeSuccess
}

// Normalize applies defaults and returns a validated copy of the job.
func (job Job) Normalize() (Job, error) {
	normalized := job
	normalized.LocalPath = strings.TrimSpace(job.LocalPath)
	if len(normalized.LocalPath) == 0 {
		return Job{}, ErrLocalPathRequired
	}

	if job.ResetLocalChanges && job.PreserveLocalChanges {
		return Job{}, ErrConflictingChangePolicies
	}

	normalized.RemoteName = strings.TrimSpace(job.RemoteName)
	if len(normalized.RemoteName) == 0 {
		normalized.RemoteName = defaultRemoteNameConstant
	}

	normalized.BranchName = strings.TrimSpace(job.BranchName)
	if len(normalized.BranchName) == 0 {
		normalized.BranchName = defaultBranchNameConstant
	}

	normalized.Name = strings.TrimSpace(job.Name)
	if len(normalized.Name) == 0 {
		normalized.Name = filepath.Base(normalized.LocalPath)
	}

	normalized.LogFilePath = strings.TrimSpace(job.LogFilePath)

	return normalized, nil
}

// FileSystem exposes the filesystem operations required by sync jobs.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
}

// OSFileSystem implements FileSystem using the operating system primitives.
type OSFileSystem struct{}

// Stat retrieves file metadata.
func (OSFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}
