package updater_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/reposync/internal/execshell"
	"github.com/temirov/reposync/internal/updater"
)

type fakeDirectoryInfo struct {
	name      string
	directory bool
}

func (info fakeDirectoryInfo) Name() string       { return info.name }
func (info fakeDirectoryInfo) Size() int64        { return 0 }
func (info fakeDirectoryInfo) Mode() fs.FileMode  { return fs.ModeDir }
func (info fakeDirectoryInfo) ModTime() time.Time { return time.Time{} }
func (info fakeDirectoryInfo) IsDir() bool        { return info.directory }
func (info fakeDirectoryInfo) Sys() any           { return nil }

type stubFileSystem struct {
	directories map[string]bool
}

func (fileSystem stubFileSystem) Stat(path string) (fs.FileInfo, error) {
	isDirectory, exists := fileSystem.directories[path]
	if !exists {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return fakeDirectoryInfo{name: path, directory: isDirectory}, nil
}

type stubInspector struct {
	insideWorkingTree bool
	workingTreeError  error
	cleanWorktree     bool
	cleanError        error
	currentBranch     string
	branchError       error
}

func (inspector stubInspector) IsWorkingTree(_ context.Context, _ string) (bool, error) {
	return inspector.insideWorkingTree, inspector.workingTreeError
}

func (inspector stubInspector) CheckCleanWorktree(_ context.Context, _ string) (bool, error) {
	return inspector.cleanWorktree, inspector.cleanError
}

func (inspector stubInspector) GetCurrentBranch(_ context.Context, _ string) (string, error) {
	return inspector.currentBranch, inspector.branchError
}

type recordingGitExecutor struct {
	executedArguments [][]string
	recordedDetails   []execshell.CommandDetails
	failures          map[string]error
}

func gitOperationKey(arguments []string) string {
	if len(arguments) > 1 && arguments[0] == "stash" {
		return strings.Join(arguments[:2], " ")
	}
	return arguments[0]
}

func (executor *recordingGitExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.executedArguments = append(executor.executedArguments, details.Arguments)
	executor.recordedDetails = append(executor.recordedDetails, details)
	if failure, exists := executor.failures[gitOperationKey(details.Arguments)]; exists {
		return execshell.ExecutionResult{ExitCode: 1}, failure
	}
	return execshell.ExecutionResult{}, nil
}

type recordingProgramExecutor struct {
	executedPrograms []string
	recordedDetails  []execshell.CommandDetails
	failure          error
}

func (executor *recordingProgramExecutor) ExecuteProgram(_ context.Context, programName string, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.executedPrograms = append(executor.executedPrograms, programName)
	executor.recordedDetails = append(executor.recordedDetails, details)
	if executor.failure != nil {
		return execshell.ExecutionResult{ExitCode: 1}, executor.failure
	}
	return execshell.ExecutionResult{}, nil
}

type recordingRunLog struct {
	entries []string
	paths   []string
}

func (runLog *recordingRunLog) Append(logFilePath string, message string) error {
	runLog.paths = append(runLog.paths, logFilePath)
	runLog.entries = append(runLog.entries, message)
	return nil
}

type serviceFixture struct {
	service         *updater.Service
	gitExecutor     *recordingGitExecutor
	programExecutor *recordingProgramExecutor
	runLog          *recordingRunLog
}

func newServiceFixture(testInstance *testing.T, fileSystem updater.FileSystem, inspector updater.RepositoryInspector, gitFailures map[string]error, programFailure error) serviceFixture {
	testInstance.Helper()

	gitExecutor := &recordingGitExecutor{failures: gitFailures}
	programExecutor := &recordingProgramExecutor{failure: programFailure}
	runLog := &recordingRunLog{}

	service, creationError := updater.NewService(updater.ServiceDependencies{
		Logger:          zap.NewNop(),
		FileSystem:      fileSystem,
		Inspector:       inspector,
		GitExecutor:     gitExecutor,
		ProgramExecutor: programExecutor,
		RunLog:          runLog,
	})
	require.NoError(testInstance, creationError)

	return serviceFixture{service: service, gitExecutor: gitExecutor, programExecutor: programExecutor, runLog: runLog}
}

func TestServiceRunOutcomes(testInstance *testing.T) {
	checkoutPath := "/srv/checkouts/site"
	operationError := errors.New("exit status 1")

	testCases := []struct {
		name               string
		job                updater.Job
		directories        map[string]bool
		inspector          stubInspector
		gitFailures        map[string]error
		programFailure     error
		expectedOutcome    updater.Outcome
		expectedGitCalls   []string
		expectedPrograms   []string
		expectedLogMessage string
	}{
		{
			name:               "missing_directory",
			job:                updater.Job{LocalPath: checkoutPath, LogFilePath: "/srv/checkouts/site/update.log"},
			directories:        map[string]bool{},
			expectedOutcome:    updater.OutcomeDirectoryNotFound,
			expectedGitCalls:   nil,
			expectedLogMessage: "directory /srv/checkouts/site does not exist",
		},
		{
			name:               "path_is_regular_file",
			job:                updater.Job{LocalPath: checkoutPath},
			directories:        map[string]bool{checkoutPath: false},
			expectedOutcome:    updater.OutcomeDirectoryNotFound,
			expectedGitCalls:   nil,
			expectedLogMessage: "directory /srv/checkouts/site does not exist",
		},
		{
			name:               "not_a_working_tree",
			job:                updater.Job{LocalPath: checkoutPath},
			directories:        map[string]bool{checkoutPath: true},
			inspector:          stubInspector{insideWorkingTree: false},
			expectedOutcome:    updater.OutcomeNotRepository,
			expectedGitCalls:   nil,
			expectedLogMessage: "is not a git working tree",
		},
		{
			name:             "plain_update_succeeds",
			job:              updater.Job{LocalPath: checkoutPath},
			directories:      map[string]bool{checkoutPath: true},
			inspector:        stubInspector{insideWorkingTree: true},
			expectedOutcome:  updater.OutcomeSuccess,
			expectedGitCalls: []string{"fetch", "merge"},
		},
		{
			name:             "reset_discards_local_changes",
			job:              updater.Job{LocalPath: checkoutPath, ResetLocalChanges: true},
			directories:      map[string]bool{checkoutPath: true},
			inspector:        stubInspector{insideWorkingTree: true},
			expectedOutcome:  updater.OutcomeSuccess,
			expectedGitCalls: []string{"reset", "fetch", "merge"},
		},
		{
			name:             "preserve_stashes_dirty_worktree",
			job:              updater.Job{LocalPath: checkoutPath, PreserveLocalChanges: true},
			directories:      map[string]bool{checkoutPath: true},
			inspector:        stubInspector{insideWorkingTree: true, cleanWorktree: false},
			expectedOutcome:  updater.OutcomeSuccess,
			expectedGitCalls: []string{"stash push", "fetch", "merge", "stash pop"},
		},
		{
			name:             "preserve_skips_stash_for_clean_worktree",
			job:              updater.Job{LocalPath: checkoutPath, PreserveLocalChanges: true},
			directories:      map[string]bool{checkoutPath: true},
			inspector:        stubInspector{insideWorkingTree: true, cleanWorktree: true},
			expectedOutcome:  updater.OutcomeSuccess,
			expectedGitCalls: []string{"fetch", "merge"},
		},
		{
			name:               "fetch_failure",
			job:                updater.Job{LocalPath: checkoutPath},
			directories:        map[string]bool{checkoutPath: true},
			inspector:          stubInspector{insideWorkingTree: true},
			gitFailures:        map[string]error{"fetch": operationError},
			expectedOutcome:    updater.OutcomePullFailed,
			expectedGitCalls:   []string{"fetch"},
			expectedLogMessage: "update of site failed",
		},
		{
			name:               "merge_failure_leaves_worktree",
			job:                updater.Job{LocalPath: checkoutPath},
			directories:        map[string]bool{checkoutPath: true},
			inspector:          stubInspector{insideWorkingTree: true},
			gitFailures:        map[string]error{"merge": operationError},
			expectedOutcome:    updater.OutcomePullFailed,
			expectedGitCalls:   []string{"fetch", "merge"},
			expectedLogMessage: "update of site failed",
		},
		{
			name:               "fetch_failure_restores_stashed_changes",
			job:                updater.Job{LocalPath: checkoutPath, PreserveLocalChanges: true},
			directories:        map[string]bool{checkoutPath: true},
			inspector:          stubInspector{insideWorkingTree: true, cleanWorktree: false},
			gitFailures:        map[string]error{"fetch": operationError},
			expectedOutcome:    updater.OutcomePullFailed,
			expectedGitCalls:   []string{"stash push", "fetch", "stash pop"},
			expectedLogMessage: "update of site failed",
		},
		{
			name:               "merge_failure_restores_stashed_changes",
			job:                updater.Job{LocalPath: checkoutPath, PreserveLocalChanges: true},
			directories:        map[string]bool{checkoutPath: true},
			inspector:          stubInspector{insideWorkingTree: true, cleanWorktree: false},
			gitFailures:        map[string]error{"merge": operationError},
			expectedOutcome:    updater.OutcomePullFailed,
			expectedGitCalls:   []string{"stash push", "fetch", "merge", "stash pop"},
			expectedLogMessage: "update of site failed",
		},
		{
			name:               "fetch_failure_reports_retained_stash",
			job:                updater.Job{LocalPath: checkoutPath, PreserveLocalChanges: true},
			directories:        map[string]bool{checkoutPath: true},
			inspector:          stubInspector{insideWorkingTree: true, cleanWorktree: false},
			gitFailures:        map[string]error{"fetch": operationError, "stash pop": operationError},
			expectedOutcome:    updater.OutcomePullFailed,
			expectedGitCalls:   []string{"stash push", "fetch", "stash pop"},
			expectedLogMessage: "local changes remain stashed",
		},
		{
			name:               "stash_pop_conflict_skips_post_command",
			job:                updater.Job{LocalPath: checkoutPath, PreserveLocalChanges: true, PostUpdateCommand: []string{"python3", "refresh_site.py"}},
			directories:        map[string]bool{checkoutPath: true},
			inspector:          stubInspector{insideWorkingTree: true, cleanWorktree: false},
			gitFailures:        map[string]error{"stash pop": operationError},
			expectedOutcome:    updater.OutcomeStashConflict,
			expectedGitCalls:   []string{"stash push", "fetch", "merge", "stash pop"},
			expectedPrograms:   nil,
			expectedLogMessage: "restoring stashed changes",
		},
		{
			name:               "post_command_failure",
			job:                updater.Job{LocalPath: checkoutPath, PostUpdateCommand: []string{"python3", "refresh_site.py"}},
			directories:        map[string]bool{checkoutPath: true},
			inspector:          stubInspector{insideWorkingTree: true},
			programFailure:     operationError,
			expectedOutcome:    updater.OutcomeCommandFailed,
			expectedGitCalls:   []string{"fetch", "merge"},
			expectedPrograms:   []string{"python3"},
			expectedLogMessage: "post-update command for site failed",
		},
		{
			name:             "post_command_success",
			job:              updater.Job{LocalPath: checkoutPath, PostUpdateCommand: []string{"python3", "refresh_site.py"}},
			directories:      map[string]bool{checkoutPath: true},
			inspector:        stubInspector{insideWorkingTree: true},
			expectedOutcome:  updater.OutcomeSuccess,
			expectedGitCalls: []string{"fetch", "merge"},
			expectedPrograms: []string{"python3"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			fixture := newServiceFixture(subtestInstance, stubFileSystem{directories: testCase.directories}, testCase.inspector, testCase.gitFailures, testCase.programFailure)

			result, runError := fixture.service.Run(context.Background(), testCase.job)
			require.NoError(subtestInstance, runError)
			require.Equal(subtestInstance, testCase.expectedOutcome, result.Outcome)

			executedOperations := make([]string, 0, len(fixture.gitExecutor.executedArguments))
			for _, arguments := range fixture.gitExecutor.executedArguments {
				executedOperations = append(executedOperations, gitOperationKey(arguments))
			}
			if testCase.expectedGitCalls == nil {
				require.Empty(subtestInstance, executedOperations)
			} else {
				require.Equal(subtestInstance, testCase.expectedGitCalls, executedOperations)
			}

			if testCase.expectedPrograms == nil {
				require.Empty(subtestInstance, fixture.programExecutor.executedPrograms)
			} else {
				require.Equal(subtestInstance, testCase.expectedPrograms, fixture.programExecutor.executedPrograms)
			}

			if len(testCase.expectedLogMessage) > 0 {
				require.Contains(subtestInstance, result.Message, testCase.expectedLogMessage)
			}
		})
	}
}

func TestServiceRunAppendsLogBeforeAborting(testInstance *testing.T) {
	job := updater.Job{
		LocalPath:   "/srv/checkouts/site",
		LogFilePath: "/srv/checkouts/site/update.log",
	}
	fixture := newServiceFixture(testInstance, stubFileSystem{directories: map[string]bool{}}, stubInspector{}, nil, nil)

	result, runError := fixture.service.Run(context.Background(), job)
	require.NoError(testInstance, runError)
	require.Equal(testInstance, updater.OutcomeDirectoryNotFound, result.Outcome)
	require.Equal(testInstance, []string{"/srv/checkouts/site/update.log"}, fixture.runLog.paths)
	require.Len(testInstance, fixture.runLog.entries, 1)
	require.Contains(testInstance, fixture.runLog.entries[0], "does not exist")
}

func TestServiceRunRecordsSuccessLogLine(testInstance *testing.T) {
	job := updater.Job{
		Name:        "site",
		LocalPath:   "/srv/checkouts/site",
		LogFilePath: "/srv/checkouts/site/update.log",
	}
	fixture := newServiceFixture(testInstance, stubFileSystem{directories: map[string]bool{job.LocalPath: true}}, stubInspector{insideWorkingTree: true}, nil, nil)

	result, runError := fixture.service.Run(context.Background(), job)
	require.NoError(testInstance, runError)
	require.True(testInstance, result.Succeeded())
	require.Equal(testInstance, []string{"updated site from origin/main"}, fixture.runLog.entries)
}

func TestServiceRunScopesCommandEnvironment(testInstance *testing.T) {
	testInstance.Setenv("PATH", "/usr/bin")

	job := updater.Job{
		LocalPath:         "/srv/checkouts/site",
		PostUpdateCommand: []string{"python3", "refresh_site.py"},
		Environment: updater.ExecutionEnvironment{
			VirtualEnvironmentPath: "/srv/checkouts/site/venv",
			Variables:              map[string]string{"DEPLOY_TARGET": "production"},
		},
	}
	fixture := newServiceFixture(testInstance, stubFileSystem{directories: map[string]bool{job.LocalPath: true}}, stubInspector{insideWorkingTree: true}, nil, nil)

	_, runError := fixture.service.Run(context.Background(), job)
	require.NoError(testInstance, runError)
	require.Len(testInstance, fixture.programExecutor.recordedDetails, 1)

	commandDetails := fixture.programExecutor.recordedDetails[0]
	require.Equal(testInstance, []string{"refresh_site.py"}, commandDetails.Arguments)
	require.Equal(testInstance, job.LocalPath, commandDetails.WorkingDirectory)
	require.Equal(testInstance, "/srv/checkouts/site/venv", commandDetails.EnvironmentVariables["VIRTUAL_ENV"])
	require.Equal(testInstance, "/srv/checkouts/site/venv/bin"+string(os.PathListSeparator)+"/usr/bin", commandDetails.EnvironmentVariables["PATH"])
	require.Equal(testInstance, "production", commandDetails.EnvironmentVariables["DEPLOY_TARGET"])
	require.Equal(testInstance, []string{"PYTHONHOME"}, commandDetails.RemovedEnvironmentKeys)
}

func TestServiceRunDisablesGitTerminalPrompts(testInstance *testing.T) {
	job := updater.Job{LocalPath: "/srv/checkouts/site"}
	fixture := newServiceFixture(testInstance, stubFileSystem{directories: map[string]bool{job.LocalPath: true}}, stubInspector{insideWorkingTree: true}, nil, nil)

	_, runError := fixture.service.Run(context.Background(), job)
	require.NoError(testInstance, runError)
	require.NotEmpty(testInstance, fixture.gitExecutor.recordedDetails)
	for _, details := range fixture.gitExecutor.recordedDetails {
		require.Equal(testInstance, "0", details.EnvironmentVariables["GIT_TERMINAL_PROMPT"])
		require.Equal(testInstance, job.LocalPath, details.WorkingDirectory)
	}
}

func TestServiceRunRejectsInvalidJobs(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, stubFileSystem{}, stubInspector{}, nil, nil)

	_, runError := fixture.service.Run(context.Background(), updater.Job{})
	require.ErrorIs(testInstance, runError, updater.ErrLocalPathRequired)
}

func newObservedService(testInstance *testing.T, logLevel zapcore.LevelEnabler, inspector updater.RepositoryInspector) (*updater.Service, *observer.ObservedLogs) {
	testInstance.Helper()

	observedCore, observedLogs := observer.New(logLevel)
	service, creationError := updater.NewService(updater.ServiceDependencies{
		Logger:          zap.New(observedCore),
		FileSystem:      stubFileSystem{directories: map[string]bool{"/srv/checkouts/site": true}},
		Inspector:       inspector,
		GitExecutor:     &recordingGitExecutor{},
		ProgramExecutor: &recordingProgramExecutor{},
		RunLog:          &recordingRunLog{},
	})
	require.NoError(testInstance, creationError)
	return service, observedLogs
}

func TestServiceRunWarnsOnBranchMismatch(testInstance *testing.T) {
	service, observedLogs := newObservedService(testInstance, zapcore.WarnLevel, stubInspector{insideWorkingTree: true, currentBranch: "develop"})

	result, runError := service.Run(context.Background(), updater.Job{LocalPath: "/srv/checkouts/site"})
	require.NoError(testInstance, runError)
	require.True(testInstance, result.Succeeded())

	mismatchEntries := observedLogs.FilterMessage("checked out branch differs from configured branch").All()
	require.Len(testInstance, mismatchEntries, 1)
	require.Equal(testInstance, "develop", mismatchEntries[0].ContextMap()["checked_out_branch"])
	require.Equal(testInstance, "main", mismatchEntries[0].ContextMap()["configured_branch"])
}

func TestServiceRunSkipsBranchWarningWhenBranchesMatch(testInstance *testing.T) {
	service, observedLogs := newObservedService(testInstance, zapcore.WarnLevel, stubInspector{insideWorkingTree: true, currentBranch: "main"})

	_, runError := service.Run(context.Background(), updater.Job{LocalPath: "/srv/checkouts/site"})
	require.NoError(testInstance, runError)
	require.Empty(testInstance, observedLogs.FilterMessage("checked out branch differs from configured branch").All())
}

func TestServiceRunLogsPostCommandEnvironment(testInstance *testing.T) {
	service, observedLogs := newObservedService(testInstance, zapcore.DebugLevel, stubInspector{insideWorkingTree: true, currentBranch: "main"})

	job := updater.Job{
		LocalPath:         "/srv/checkouts/site",
		PostUpdateCommand: []string{"python3", "refresh_site.py"},
		Environment: updater.ExecutionEnvironment{
			Variables: map[string]string{"ZONE": "us-east", "API_KEY": "secret"},
		},
	}
	_, runError := service.Run(context.Background(), job)
	require.NoError(testInstance, runError)

	startedEntries := observedLogs.FilterMessage("running post-update command").All()
	require.Len(testInstance, startedEntries, 1)
	require.Equal(testInstance, "python3", startedEntries[0].ContextMap()["program"])
	require.Equal(testInstance, []interface{}{"API_KEY", "ZONE"}, startedEntries[0].ContextMap()["environment_variables"])
}

func TestNewServiceValidatesDependencies(testInstance *testing.T) {
	_, creationError := updater.NewService(updater.ServiceDependencies{})
	require.Error(testInstance, creationError)
}
