package pipeline

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

type BatchInput struct {
	BatchID string
}

type BatchResult struct {
	Status        string
	SessionCount  int
	WorkflowCount int
	OracleCalls   int
}

// BatchWorkflow drives one batch through the mining pipeline: group the raw
// events into tab sessions, scan the sessions for workflows, annotate tool
// usage, persist. Any activity error fails the whole batch; partial output is
// never persisted.
func BatchWorkflow(ctx workflow.Context, input BatchInput) (BatchResult, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)
	logger := workflow.GetLogger(ctx)

	fail := func(stage string, err error) (BatchResult, error) {
		logger.Error(stage+" activity failed", "error", err)
		failureInput := BatchFailureInput{
			BatchID: input.BatchID,
			Error:   stage + ": " + err.Error(),
		}
		if failureErr := workflow.ExecuteActivity(ctx, "HandleBatchFailure", failureInput).Get(ctx, nil); failureErr != nil {
			logger.Error("failed to persist batch failure event", "error", failureErr)
		}
		return BatchResult{Status: "failed"}, nil
	}

	groupResult := GroupOutput{}
	if err := workflow.ExecuteActivity(ctx, "GroupSessions", GroupInput{
		BatchID: input.BatchID,
	}).Get(ctx, &groupResult); err != nil {
		return fail("grouping", err)
	}

	scanResult := ScanOutput{}
	if err := workflow.ExecuteActivity(ctx, "ScanSessions", ScanInput{
		BatchID:  input.BatchID,
		Sessions: groupResult.Sessions,
	}).Get(ctx, &scanResult); err != nil {
		return fail("scanning", err)
	}

	analyzeResult := AnalyzeOutput{}
	if err := workflow.ExecuteActivity(ctx, "AnalyzeTools", AnalyzeInput{
		BatchID:   input.BatchID,
		Workflows: scanResult.Workflows,
	}).Get(ctx, &analyzeResult); err != nil {
		return fail("tool analysis", err)
	}

	persistResult := PersistOutput{}
	if err := workflow.ExecuteActivity(ctx, "PersistWorkflows", PersistInput{
		BatchID:     input.BatchID,
		Workflows:   analyzeResult.Workflows,
		OracleCalls: scanResult.OracleCalls,
	}).Get(ctx, &persistResult); err != nil {
		return fail("persistence", err)
	}

	return BatchResult{
		Status:        "completed",
		SessionCount:  groupResult.SessionCount,
		WorkflowCount: persistResult.Inserted,
		OracleCalls:   scanResult.OracleCalls,
	}, nil
}
