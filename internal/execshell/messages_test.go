package execshell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildStartedMessageForFetchIncludesRemoteAndBranch(t *testing.T) {
	formatter := CommandMessageFormatter{}
	command := ShellCommand{
		Name: CommandGit,
		Details: CommandDetails{
			Arguments:        []string{"fetch", "origin", "main"},
			WorkingDirectory: "/workspace/repo",
		},
	}

	message := formatter.BuildStartedMessage(command)

	require.Equal(t, "Fetching main from origin in /workspace/repo", message)
}

func TestBuildFailureMessageForMergeIncludesExitCodeAndStandardError(t *testing.T) {
	formatter := CommandMessageFormatter{}
	command := ShellCommand{
		Name: CommandGit,
		Details: CommandDetails{
			Arguments:        []string{"merge", "--ff-only", "FETCH_HEAD"},
			WorkingDirectory: "/workspace/repo",
		},
	}
	result := ExecutionResult{ExitCode: 128, StandardError: "fatal: not possible to fast-forward"}

	message := formatter.BuildFailureMessage(command, result)

	require.Equal(t, "Failed to integrate fetched changes in /workspace/repo (exit code 128: fatal: not possible to fast-forward)", message)
}

func TestBuildStashMessagesDistinguishSaveAndRestore(t *testing.T) {
	formatter := CommandMessageFormatter{}

	saveCommand := ShellCommand{
		Name:    CommandGit,
		Details: CommandDetails{Arguments: []string{"stash", "push", "--include-untracked"}, WorkingDirectory: "/workspace/repo"},
	}
	restoreCommand := ShellCommand{
		Name:    CommandGit,
		Details: CommandDetails{Arguments: []string{"stash", "pop"}, WorkingDirectory: "/workspace/repo"},
	}

	require.Equal(t, "Setting aside local modifications in /workspace/repo", formatter.BuildStartedMessage(saveCommand))
	require.Equal(t, "Restoring local modifications in /workspace/repo", formatter.BuildStartedMessage(restoreCommand))
}

func TestBuildMessagesForUnknownProgramUseGenericTemplates(t *testing.T) {
	formatter := CommandMessageFormatter{}
	command := ShellCommand{
		Name:    CommandName("python3"),
		Details: CommandDetails{Arguments: []string{"refresh_site.py"}, WorkingDirectory: "/workspace/repo"},
	}

	require.Equal(t, "Running python3 refresh_site.py (in /workspace/repo)", formatter.BuildStartedMessage(command))
	require.Equal(t, "Completed python3 refresh_site.py (in /workspace/repo)", formatter.BuildSuccessMessage(command))
}

func TestBuildWorkTreeMessagesDescribeRepositoryAnalysis(t *testing.T) {
	formatter := CommandMessageFormatter{}
	command := ShellCommand{
		Name:    CommandGit,
		Details: CommandDetails{Arguments: []string{"rev-parse", "--is-inside-work-tree"}, WorkingDirectory: "/workspace/repo"},
	}

	require.Equal(t, "Analyzing repository at /workspace/repo", formatter.BuildStartedMessage(command))
	require.Equal(t, "/workspace/repo is a Git repository", formatter.BuildSuccessMessage(command))
}
