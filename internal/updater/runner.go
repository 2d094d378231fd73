package updater

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	runnerServiceMissingMessageConstant = "batch runner service not configured"
	runnerLoggerMissingMessageConstant  = "batch runner logger not configured"
	runnerNoJobsMessageConstant         = "no sync jobs configured"
	jobConfigurationTemplateConstant    = "job %d (%s): %w"
	batchSummaryTemplateConstant        = "synchronized %d of %d repositories"
	batchCompletedLogMessageConstant    = "batch completed"
	succeededFieldNameConstant          = "succeeded"
	totalFieldNameConstant              = "total"
)

// ErrNoJobsConfigured indicates a batch run was requested without any jobs.
var ErrNoJobsConfigured = errors.New(runnerNoJobsMessageConstant)

// JobRunner updates one checkout and reports the result.
type JobRunner interface {
	Run(executionContext context.Context, job Job) (Result, error)
}

// BatchSummary aggregates the results of one sequential batch run.
type BatchSummary struct {
	Results        []Result
	SucceededCount int
	SummaryLine    string
}

// FailedCount reports how many jobs did not reach success.
func (summary BatchSummary) FailedCount() int {
	return len(summary.Results) - summary.SucceededCount
}

// BatchRunner executes configured sync jobs sequentially, continuing past failures.
type BatchRunner struct {
	logger  *zap.Logger
	service JobRunner
	runLog  RunLogAppender
}

// NewBatchRunner constructs a BatchRunner after validating its dependencies.
func NewBatchRunner(logger *zap.Logger, service JobRunner, runLog RunLogAppender) (*BatchRunner, error) {
	if logger == nil {
		return nil, errors.New(runnerLoggerMissingMessageConstant)
	}
	if service == nil {
		return nil, errors.New(runnerServiceMissingMessageConstant)
	}
	return &BatchRunner{logger: logger, service: service, runLog: runLog}, nil
}

// Run validates every job up front, then executes each in order. A failing job
// never stops the batch; exactly one summary line is produced per run.
func (runner *BatchRunner) Run(executionContext context.Context, jobs []Job, summaryLogPath string) (BatchSummary, error) {
	if len(jobs) == 0 {
		return BatchSummary{}, ErrNoJobsConfigured
	}

	normalizedJobs := make([]Job, 0, len(jobs))
	for jobIndex, candidateJob := range jobs {
		normalizedJob, normalizationError := candidateJob.Normalize()
		if normalizationError != nil {
			return BatchSummary{}, fmt.Errorf(jobConfigurationTemplateConstant, jobIndex+1, candidateJob.Name, normalizationError)
		}
		normalizedJobs = append(normalizedJobs, normalizedJob)
	}

	summary := BatchSummary{Results: make([]Result, 0, len(normalizedJobs))}
	for _, normalizedJob := range normalizedJobs {
		jobResult, runError := runner.service.Run(executionContext, normalizedJob)
		if runError != nil {
			return summary, runError
		}
		if jobResult.Succeeded() {
			summary.SucceededCount++
		}
		summary.Results = append(summary.Results, jobResult)
	}

	summary.SummaryLine = fmt.Sprintf(batchSummaryTemplateConstant, summary.SucceededCount, len(summary.Results))
	runner.logger.Info(
		batchCompletedLogMessageConstant,
		zap.Int(succeededFieldNameConstant, summary.SucceededCount),
		zap.Int(totalFieldNameConstant, len(summary.Results)),
	)

	if runner.runLog != nil && len(summaryLogPath) > 0 {
		if appendError := runner.runLog.Append(summaryLogPath, summary.SummaryLine); appendError != nil {
			runner.logger.Warn(runLogAppendFailureMessageConstant, zap.Error(appendError))
		}
	}

	return summary, nil
}
