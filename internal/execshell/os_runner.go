package execshell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

const (
	environmentAssignmentSeparatorConstant = "="
)

// OSCommandRunner executes commands using the operating system facilities.
type OSCommandRunner struct{}

// NewOSCommandRunner constructs a runner backed by os/exec.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{}
}

// Run executes the supplied command using os/exec.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	commandArguments := append([]string{}, command.Details.Arguments...)
	executable := exec.CommandContext(executionContext, string(command.Name), commandArguments...)

	if len(command.Details.WorkingDirectory) > 0 {
		executable.Dir = command.Details.WorkingDirectory
	}

	if environment, environmentCustomized := buildProcessEnvironment(command.Details); environmentCustomized {
		executable.Env = environment
	}

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	executable.Stdout = &standardOutputBuffer
	executable.Stderr = &standardErrorBuffer

	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	runError := executable.Run()
	if runError != nil {
		exitError := &exec.ExitError{}
		if errors.As(runError, &exitError) {
			return ExecutionResult{
				StandardOutput: standardOutputBuffer.String(),
				StandardError:  standardErrorBuffer.String(),
				ExitCode:       exitError.ExitCode(),
			}, nil
		}
		return ExecutionResult{}, runError
	}

	return ExecutionResult{
		StandardOutput: standardOutputBuffer.String(),
		StandardError:  standardErrorBuffer.String(),
		ExitCode:       0,
	}, nil
}

// buildProcessEnvironment derives the child process environment from the parent
// environment, the removal list, and the override map. Overrides are appended
// last so duplicate keys resolve in their favor.
func buildProcessEnvironment(details CommandDetails) ([]string, bool) {
	if len(details.EnvironmentVariables) == 0 && len(details.RemovedEnvironmentKeys) == 0 {
		return nil, false
	}

	removedKeys := make(map[string]struct{}, len(details.RemovedEnvironmentKeys)+len(details.EnvironmentVariables))
	for _, removedKey := range details.RemovedEnvironmentKeys {
		removedKeys[removedKey] = struct{}{}
	}
	for overrideKey := range details.EnvironmentVariables {
		removedKeys[overrideKey] = struct{}{}
	}

	environment := make([]string, 0, len(os.Environ())+len(details.EnvironmentVariables))
	for _, environmentEntry := range os.Environ() {
		entryKey, _, separatorFound := strings.Cut(environmentEntry, environmentAssignmentSeparatorConstant)
		if separatorFound {
			if _, keyRemoved := removedKeys[entryKey]; keyRemoved {
				continue
			}
		}
		environment = append(environment, environmentEntry)
	}

	for environmentKey, environmentValue := range details.EnvironmentVariables {
		environment = append(environment, environmentKey+environmentAssignmentSeparatorConstant+environmentValue)
	}

	return environment, true
}
