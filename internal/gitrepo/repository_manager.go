package gitrepo

import (
	"context"
	"errors"
	"strings"

	"github.com/temirov/reposync/internal/execshell"
)

const (
	executorMissingMessageConstant           = "git executor not configured"
	repositoryPathRequiredMessageConstant    = "repository path must be provided"
	gitRevParseSubcommandConstant            = "rev-parse"
	gitWorkTreeFlagConstant                  = "--is-inside-work-tree"
	gitAbbreviatedReferenceFlagConstant      = "--abbrev-ref"
	gitHeadReferenceConstant                 = "HEAD"
	gitStatusSubcommandConstant              = "status"
	gitStatusPorcelainFlagConstant           = "--porcelain"
	workTreeConfirmationOutputConstant       = "true"
	gitTerminalPromptEnvironmentNameConstant = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptDisabledValueConstant   = "0"
)

// ErrExecutorNotConfigured indicates the repository manager was created without an executor.
var ErrExecutorNotConfigured = errors.New(executorMissingMessageConstant)

// ErrRepositoryPathRequired indicates a repository operation received an empty path.
var ErrRepositoryPathRequired = errors.New(repositoryPathRequiredMessageConstant)

// GitExecutor exposes the subset of shell execution used by repository operations.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryManager performs repository-level git interrogation through an executor.
type RepositoryManager struct {
	executor GitExecutor
}

// NewRepositoryManager constructs a RepositoryManager from the provided executor.
func NewRepositoryManager(executor GitExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// IsWorkingTree reports whether the path is inside a git working tree.
func (manager *RepositoryManager) IsWorkingTree(executionContext context.Context, repositoryPath string) (bool, error) {
	trimmedRepositoryPath := strings.TrimSpace(repositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return false, ErrRepositoryPathRequired
	}

	executionResult, executionError := manager.executeGit(executionContext, trimmedRepositoryPath, gitRevParseSubcommandConstant, gitWorkTreeFlagConstant)
	if executionError != nil {
		commandFailure := execshell.CommandFailedError{}
		if errors.As(executionError, &commandFailure) {
			return false, nil
		}
		return false, executionError
	}

	return strings.EqualFold(strings.TrimSpace(executionResult.StandardOutput), workTreeConfirmationOutputConstant), nil
}

// CheckCleanWorktree reports whether the repository has no uncommitted modifications.
func (manager *RepositoryManager) CheckCleanWorktree(executionContext context.Context, repositoryPath string) (bool, error) {
	trimmedRepositoryPath := strings.TrimSpace(repositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return false, ErrRepositoryPathRequired
	}

	executionResult, executionError := manager.executeGit(executionContext, trimmedRepositoryPath, gitStatusSubcommandConstant, gitStatusPorcelainFlagConstant)
	if executionError != nil {
		return false, executionError
	}

	return len(strings.TrimSpace(executionResult.StandardOutput)) == 0, nil
}

// GetCurrentBranch resolves the branch currently checked out in the repository.
func (manager *RepositoryManager) GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error) {
	trimmedRepositoryPath := strings.TrimSpace(repositoryPath)
	if len(trimmedRepositoryPath) == 0 {
		return "", ErrRepositoryPathRequired
	}

	executionResult, executionError := manager.executeGit(executionContext, trimmedRepositoryPath, gitRevParseSubcommandConstant, gitAbbreviatedReferenceFlagConstant, gitHeadReferenceConstant)
	if executionError != nil {
		return "", executionError
	}

	return strings.TrimSpace(executionResult.StandardOutput), nil
}

func (manager *RepositoryManager) executeGit(executionContext context.Context, repositoryPath string, arguments ...string) (execshell.ExecutionResult, error) {
	return manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: repositoryPath,
		EnvironmentVariables: map[string]string{
			gitTerminalPromptEnvironmentNameConstant: gitTerminalPromptDisabledValueConstant,
		},
	})
}
