package updater

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	virtualEnvironmentVariableNameConstant = "VIRTUAL_ENV"
	pathVariableNameConstant               = "PATH"
	pythonHomeVariableNameConstant         = "PYTHONHOME"
	virtualEnvironmentBinDirectoryConstant = "bin"
)

// ExecutionEnvironment describes the environment adjustments applied to a job's post-update command.
type ExecutionEnvironment struct {
	VirtualEnvironmentPath string
	Variables              map[string]string
}

// Overrides resolves the environment variables injected into the command process.
// Virtual environment activation is scoped to the child process: the interpreter
// path is prepended to PATH and PYTHONHOME is removed so the activated layout wins.
func (environment ExecutionEnvironment) Overrides(parentPathValue string) map[string]string {
	overrides := map[string]string{}
	for variableName, variableValue := range environment.Variables {
		overrides[variableName] = variableValue
	}

	trimmedVirtualEnvironmentPath := strings.TrimSpace(environment.VirtualEnvironmentPath)
	if len(trimmedVirtualEnvironmentPath) > 0 {
		overrides[virtualEnvironmentVariableNameConstant] = trimmedVirtualEnvironmentPath
		binDirectoryPath := filepath.Join(trimmedVirtualEnvironmentPath, virtualEnvironmentBinDirectoryConstant)
		if len(parentPathValue) > 0 {
			overrides[pathVariableNameConstant] = binDirectoryPath + string(os.PathListSeparator) + parentPathValue
		} else {
			overrides[pathVariableNameConstant] = binDirectoryPath
		}
	}

	return overrides
}

// RemovedKeys lists the parent environment variables withheld from the command process.
func (environment ExecutionEnvironment) RemovedKeys() []string {
	if len(strings.TrimSpace(environment.VirtualEnvironmentPath)) == 0 {
		return nil
	}
	return []string{pythonHomeVariableNameConstant}
}

// VariableNames returns the configured variable names in deterministic order.
func (environment ExecutionEnvironment) VariableNames() []string {
	names := make([]string, 0, len(environment.Variables))
	for variableName := range environment.Variables {
		names = append(names, variableName)
	}
	sort.Strings(names)
	return names
}
