package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	loggerMissingMessageConstant              = "logger not configured"
	commandRunnerMissingMessageConstant       = "command runner not configured"
	commandNameMissingMessageConstant         = "command name must be provided"
	commandFailedErrorTemplateConstant        = "%s exited with code %d%s"
	commandExecutionErrorTemplateConstant     = "%s could not be executed: %v"
	standardErrorDetailTemplateConstant       = ": %s"
	commandLifecycleMessageFieldNameConstant  = "message"
	commandLifecycleCommandFieldNameConstant  = "command"
	commandLifecycleExitCodeFieldNameConstant = "exit_code"
	gitCommandNameConstant                    = "git"
)

// ErrLoggerNotConfigured indicates the executor was created without a logger.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrCommandRunnerNotConfigured indicates the executor was created without a runner.
var ErrCommandRunnerNotConfigured = errors.New(commandRunnerMissingMessageConstant)

// ErrCommandNameRequired indicates an execution request omitted the program name.
var ErrCommandNameRequired = errors.New(commandNameMissingMessageConstant)

// CommandName identifies the executable invoked by a shell command.
type CommandName string

// CommandGit identifies the git executable.
const CommandGit CommandName = CommandName(gitCommandNameConstant)

// CommandDetails captures the invocation parameters for an external command.
type CommandDetails struct {
	Arguments              []string
	WorkingDirectory       string
	EnvironmentVariables   map[string]string
	RemovedEnvironmentKeys []string
	StandardInput          []byte
}

// ShellCommand combines a CommandName with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable results of executing a command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner abstracts process execution for testing.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// CommandFailedError reports a command that completed with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failed command including captured standard error output.
func (failure CommandFailedError) Error() string {
	standardErrorDetail := ""
	trimmedStandardError := strings.TrimSpace(failure.Result.StandardError)
	if len(trimmedStandardError) > 0 {
		standardErrorDetail = fmt.Sprintf(standardErrorDetailTemplateConstant, trimmedStandardError)
	}
	return fmt.Sprintf(commandFailedErrorTemplateConstant, formatCommandLabel(failure.Command), failure.Result.ExitCode, standardErrorDetail)
}

// CommandExecutionError reports a command that could not be started or observed.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (failure CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, formatCommandLabel(failure.Command), failure.Cause)
}

// Unwrap exposes the underlying cause for errors.Is and errors.As inspection.
func (failure CommandExecutionError) Unwrap() error {
	return failure.Cause
}

// ShellExecutor coordinates external command execution with structured logging.
type ShellExecutor struct {
	logger           *zap.Logger
	commandRunner    CommandRunner
	messageFormatter CommandMessageFormatter
}

// NewShellExecutor constructs a ShellExecutor after validating its dependencies.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if commandRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	return &ShellExecutor{logger: logger, commandRunner: commandRunner, messageFormatter: CommandMessageFormatter{}}, nil
}

// ExecuteGit runs the git executable with the provided details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// ExecuteProgram runs an arbitrary configured executable with the provided details.
func (executor *ShellExecutor) ExecuteProgram(executionContext context.Context, programName string, details CommandDetails) (ExecutionResult, error) {
	trimmedProgramName := strings.TrimSpace(programName)
	if len(trimmedProgramName) == 0 {
		return ExecutionResult{}, ErrCommandNameRequired
	}
	return executor.Execute(executionContext, ShellCommand{Name: CommandName(trimmedProgramName), Details: details})
}

// Execute runs the supplied command, logging lifecycle events and translating failures.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.logger.Debug(
		executor.messageFormatter.BuildStartedMessage(command),
		zap.String(commandLifecycleCommandFieldNameConstant, formatCommandLabel(command)),
	)

	executionResult, runError := executor.commandRunner.Run(executionContext, command)
	if runError != nil {
		executionFailure := CommandExecutionError{Command: command, Cause: runError}
		executor.logger.Error(
			executor.messageFormatter.BuildExecutionFailureMessage(command, runError),
			zap.String(commandLifecycleCommandFieldNameConstant, formatCommandLabel(command)),
		)
		return ExecutionResult{}, executionFailure
	}

	if executionResult.ExitCode != 0 {
		commandFailure := CommandFailedError{Command: command, Result: executionResult}
		executor.logger.Warn(
			executor.messageFormatter.BuildFailureMessage(command, executionResult),
			zap.String(commandLifecycleCommandFieldNameConstant, formatCommandLabel(command)),
			zap.Int(commandLifecycleExitCodeFieldNameConstant, executionResult.ExitCode),
		)
		return executionResult, commandFailure
	}

	executor.logger.Debug(
		executor.messageFormatter.BuildSuccessMessage(command),
		zap.String(commandLifecycleCommandFieldNameConstant, formatCommandLabel(command)),
	)

	return executionResult, nil
}
