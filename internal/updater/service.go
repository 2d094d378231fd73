package updater

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/temirov/reposync/internal/execshell"
)

const (
	serviceLoggerMissingMessageConstant          = "service logger not configured"
	serviceFileSystemMissingMessageConstant      = "service file system not configured"
	serviceInspectorMissingMessageConstant       = "service repository inspector not configured"
	serviceGitExecutorMissingMessageConstant     = "service git executor not configured"
	serviceProgramExecutorMissingMessageConstant = "service program executor not configured"
	serviceRunLogMissingMessageConstant          = "service run log writer not configured"

	gitResetSubcommandConstant        = "reset"
	gitResetHardFlagConstant          = "--hard"
	gitStashSubcommandConstant        = "stash"
	gitStashPushSubcommandConstant    = "push"
	gitStashPopSubcommandConstant     = "pop"
	gitStashIncludeUntrackedConstant  = "--include-untracked"
	gitFetchSubcommandConstant        = "fetch"
	gitMergeSubcommandConstant        = "merge"
	gitMergeFastForwardFlagConstant   = "--ff-only"
	gitFetchHeadReferenceConstant     = "FETCH_HEAD"
	gitTerminalPromptVariableConstant = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptDisabledConstant = "0"

	updateSucceededTemplateConstant           = "updated %s from %s/%s"
	directoryMissingTemplateConstant          = "directory %s does not exist, aborting update of %s"
	notRepositoryTemplateConstant             = "%s is not a git working tree, aborting update of %s"
	updateFailedTemplateConstant              = "update of %s failed: %v"
	updateFailedStashRetainedTemplateConstant = "update of %s failed: %v; local changes remain stashed"
	stashRestoreFailedTemplateConstant        = "restoring stashed changes in %s failed: %v"
	postCommandFailedTemplateConstant         = "post-update command for %s failed: %v"
	runLogAppendFailureMessageConstant        = "unable to append run log entry"
	jobFieldNameConstant                      = "job"
	pathFieldNameConstant                     = "path"
	outcomeFieldNameConstant                  = "outcome"
	runLogFieldNameConstant                   = "run_log"
	jobCompletedLogMessageConstant            = "repository synchronized"
	jobFailedLogMessageConstant               = "repository synchronization failed"
	branchMismatchMessageConstant             = "checked out branch differs from configured branch"
	checkedOutBranchFieldNameConstant         = "checked_out_branch"
	configuredBranchFieldNameConstant         = "configured_branch"
	postCommandStartedMessageConstant         = "running post-update command"
	programFieldNameConstant                  = "program"
	environmentVariablesFieldNameConstant     = "environment_variables"
	pathEnvironmentVariableNameConstant       = "PATH"
	stashPushMessageFlagConstant              = "--message"
	stashPushMessageValueConstant             = "reposync auto-stash"
)

// GitExecutor runs git with prepared invocation details.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// ProgramExecutor runs arbitrary configured executables.
type ProgramExecutor interface {
	ExecuteProgram(executionContext context.Context, programName string, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryInspector interrogates repository state ahead of mutations.
type RepositoryInspector interface {
	IsWorkingTree(executionContext context.Context, repositoryPath string) (bool, error)
	CheckCleanWorktree(executionContext context.Context, repositoryPath string) (bool, error)
	GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error)
}

// RunLogAppender records timestamped per-job log lines.
type RunLogAppender interface {
	Append(logFilePath string, message string) error
}

// ServiceDependencies aggregates the collaborators required by the sync service.
type ServiceDependencies struct {
	Logger          *zap.Logger
	FileSystem      FileSystem
	Inspector       RepositoryInspector
	GitExecutor     GitExecutor
	ProgramExecutor ProgramExecutor
	RunLog          RunLogAppender
}

// Service updates a single git checkout and runs its post-update command.
type Service struct {
	logger          *zap.Logger
	fileSystem      FileSystem
	inspector       RepositoryInspector
	gitExecutor     GitExecutor
	programExecutor ProgramExecutor
	runLog          RunLogAppender
}

// NewService constructs a Service after validating its dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, errors.New(serviceLoggerMissingMessageConstant)
	}
	if dependencies.FileSystem == nil {
		return nil, errors.New(serviceFileSystemMissingMessageConstant)
	}
	if dependencies.Inspector == nil {
		return nil, errors.New(serviceInspectorMissingMessageConstant)
	}
	if dependencies.GitExecutor == nil {
		return nil, errors.New(serviceGitExecutorMissingMessageConstant)
	}
	if dependencies.ProgramExecutor == nil {
		return nil, errors.New(serviceProgramExecutorMissingMessageConstant)
	}
	if dependencies.RunLog == nil {
		return nil, errors.New(serviceRunLogMissingMessageConstant)
	}
	return &Service{
		logger:          dependencies.Logger,
		fileSystem:      dependencies.FileSystem,
		inspector:       dependencies.Inspector,
		gitExecutor:     dependencies.GitExecutor,
		programExecutor: dependencies.ProgramExecutor,
		runLog:          dependencies.RunLog,
	}, nil
}

// Run synchronizes one checkout with its remote branch. Failures are reported
// through the Result outcome; the returned error covers invalid jobs only.
func (service *Service) Run(executionContext context.Context, candidateJob Job) (Result, error) {
	job, normalizationError := candidateJob.Normalize()
	if normalizationError != nil {
		return Result{}, normalizationError
	}

	directoryInfo, statError := service.fileSystem.Stat(job.LocalPath)
	if statError != nil || !directoryInfo.IsDir() {
		return service.finish(job, OutcomeDirectoryNotFound, fmt.Sprintf(directoryMissingTemplateConstant, job.LocalPath, job.Name), statError), nil
	}

	insideWorkingTree, workingTreeError := service.inspector.IsWorkingTree(executionContext, job.LocalPath)
	if workingTreeError != nil {
		return service.finish(job, OutcomeNotRepository, fmt.Sprintf(notRepositoryTemplateConstant, job.LocalPath, job.Name), workingTreeError), nil
	}
	if !insideWorkingTree {
		return service.finish(job, OutcomeNotRepository, fmt.Sprintf(notRepositoryTemplateConstant, job.LocalPath, job.Name), nil), nil
	}

	if currentBranch, branchError := service.inspector.GetCurrentBranch(executionContext, job.LocalPath); branchError == nil {
		if len(currentBranch) > 0 && currentBranch != job.BranchName {
			service.logger.Warn(
				branchMismatchMessageConstant,
				zap.String(jobFieldNameConstant, job.Name),
				zap.String(checkedOutBranchFieldNameConstant, currentBranch),
				zap.String(configuredBranchFieldNameConstant, job.BranchName),
			)
		}
	}

	restoreStash := false
	switch {
	case job.ResetLocalChanges:
		if _, resetError := service.executeGit(executionContext, job, gitResetSubcommandConstant, gitResetHardFlagConstant); resetError != nil {
			return service.finish(job, OutcomePullFailed, fmt.Sprintf(updateFailedTemplateConstant, job.Name, resetError), resetError), nil
		}
	case job.PreserveLocalChanges:
		cleanWorktree, cleanError := service.inspector.CheckCleanWorktree(executionContext, job.LocalPath)
		if cleanError != nil {
			return service.finish(job, OutcomePullFailed, fmt.Sprintf(updateFailedTemplateConstant, job.Name, cleanError), cleanError), nil
		}
		if !cleanWorktree {
			stashArguments := []string{gitStashSubcommandConstant, gitStashPushSubcommandConstant, gitStashIncludeUntrackedConstant, stashPushMessageFlagConstant, stashPushMessageValueConstant}
			if _, stashError := service.executeGit(executionContext, job, stashArguments...); stashError != nil {
				return service.finish(job, OutcomePullFailed, fmt.Sprintf(updateFailedTemplateConstant, job.Name, stashError), stashError), nil
			}
			restoreStash = true
		}
	}

	if _, fetchError := service.executeGit(executionContext, job, gitFetchSubcommandConstant, job.RemoteName, job.BranchName); fetchError != nil {
		return service.abandonPull(executionContext, job, restoreStash, fetchError), nil
	}

	if _, mergeError := service.executeGit(executionContext, job, gitMergeSubcommandConstant, gitMergeFastForwardFlagConstant, gitFetchHeadReferenceConstant); mergeError != nil {
		return service.abandonPull(executionContext, job, restoreStash, mergeError), nil
	}

	if restoreStash {
		if _, popError := service.executeGit(executionContext, job, gitStashSubcommandConstant, gitStashPopSubcommandConstant); popError != nil {
			return service.finish(job, OutcomeStashConflict, fmt.Sprintf(stashRestoreFailedTemplateConstant, job.LocalPath, popError), popError), nil
		}
	}

	if len(job.PostUpdateCommand) > 0 {
		commandDetails := execshell.CommandDetails{
			Arguments:              job.PostUpdateCommand[1:],
			WorkingDirectory:       job.LocalPath,
			EnvironmentVariables:   job.Environment.Overrides(os.Getenv(pathEnvironmentVariableNameConstant)),
			RemovedEnvironmentKeys: job.Environment.RemovedKeys(),
		}
		service.logger.Debug(
			postCommandStartedMessageConstant,
			zap.String(jobFieldNameConstant, job.Name),
			zap.String(programFieldNameConstant, job.PostUpdateCommand[0]),
			zap.Strings(environmentVariablesFieldNameConstant, job.Environment.VariableNames()),
		)
		if _, commandError := service.programExecutor.ExecuteProgram(executionContext, job.PostUpdateCommand[0], commandDetails); commandError != nil {
			return service.finish(job, OutcomeCommandFailed, fmt.Sprintf(postCommandFailedTemplateConstant, job.Name, commandError), commandError), nil
		}
	}

	return service.finish(job, OutcomeSuccess, fmt.Sprintf(updateSucceededTemplateConstant, job.Name, job.RemoteName, job.BranchName), nil), nil
}

// abandonPull reports a failed fetch or merge. Stashed local edits are restored
// first so an unreachable remote leaves the worktree exactly as it was; a pop
// failure at this point keeps the stash entry and is called out in the message.
func (service *Service) abandonPull(executionContext context.Context, job Job, restoreStash bool, pullError error) Result {
	message := fmt.Sprintf(updateFailedTemplateConstant, job.Name, pullError)
	if restoreStash {
		if _, popError := service.executeGit(executionContext, job, gitStashSubcommandConstant, gitStashPopSubcommandConstant); popError != nil {
			message = fmt.Sprintf(updateFailedStashRetainedTemplateConstant, job.Name, pullError)
		}
	}
	return service.finish(job, OutcomePullFailed, message, pullError)
}

func (service *Service) executeGit(executionContext context.Context, job Job, arguments ...string) (execshell.ExecutionResult, error) {
	return service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: job.LocalPath,
		EnvironmentVariables: map[string]string{
			gitTerminalPromptVariableConstant: gitTerminalPromptDisabledConstant,
		},
	})
}

func (service *Service) finish(job Job, outcome Outcome, message string, failureCause error) Result {
	if len(job.LogFilePath) > 0 {
		if appendError := service.runLog.Append(job.LogFilePath, message); appendError != nil {
			service.logger.Warn(
				runLogAppendFailureMessageConstant,
				zap.String(jobFieldNameConstant, job.Name),
				zap.String(runLogFieldNameConstant, job.LogFilePath),
				zap.Error(appendError),
			)
		}
	}

	structuredFields := []zap.Field{
		zap.String(jobFieldNameConstant, job.Name),
		zap.String(pathFieldNameConstant, job.LocalPath),
		zap.String(outcomeFieldNameConstant, string(outcome)),
	}
	if outcome == OutcomeSuccess {
		service.logger.Info(jobCompletedLogMessageConstant, structuredFields...)
	} else {
		service.logger.Warn(jobFailedLogMessageConstant, structuredFields...)
	}

	return Result{
		JobName:      job.Name,
		LocalPath:    job.LocalPath,
		Outcome:      outcome,
		Message:      message,
		FailureCause: failureCause,
	}
}
