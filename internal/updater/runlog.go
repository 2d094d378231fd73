package updater

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	runLogTimestampLayoutConstant  = "2006-01-02 15:04:05"
	runLogLineTemplateConstant     = "%s: %s\n"
	runLogFileModeConstant         = 0o644
	runLogPathRequiredMessage      = "run log path must be provided"
	runLogOpenFailureTemplateConst = "unable to open run log %s: %w"
)

// ErrRunLogPathRequired indicates an append was attempted without a log path.
var ErrRunLogPathRequired = errors.New(runLogPathRequiredMessage)

// Clock supplies timestamps for run log entries.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the host wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// RunLogWriter appends timestamped entries to per-job log files.
type RunLogWriter struct {
	clock Clock
}

// NewRunLogWriter constructs a RunLogWriter, defaulting to the system clock.
func NewRunLogWriter(clock Clock) *RunLogWriter {
	if clock == nil {
		clock = SystemClock{}
	}
	return &RunLogWriter{clock: clock}
}

// Append writes one timestamped message line to the log file, creating it when absent.
func (writer *RunLogWriter) Append(logFilePath string, message string) error {
	if len(logFilePath) == 0 {
		return ErrRunLogPathRequired
	}

	logFile, openError := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, runLogFileModeConstant)
	if openError != nil {
		return fmt.Errorf(runLogOpenFailureTemplateConst, logFilePath, openError)
	}
	defer logFile.Close()

	timestampValue := writer.clock.Now().Format(runLogTimestampLayoutConstant)
	_, writeError := fmt.Fprintf(logFile, runLogLineTemplateConstant, timestampValue, message)
	return writeError
}
