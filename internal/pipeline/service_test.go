package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
)

func TestNewService(t *testing.T) {
	mockClient := mocks.NewClient(t)
	service := NewService(mockClient, "flow-plane-batches")
	if service == nil {
		t.Fatal("expected service")
	}
}

func TestNewService_DefaultTaskQueue(t *testing.T) {
	mockClient := mocks.NewClient(t)
	service := NewService(mockClient, "")
	require.Equal(t, "flow-plane-batches", service.taskQueue)
}

func TestStartBatch_Success(t *testing.T) {
	mockClient := mocks.NewClient(t)
	workflowRun := mocks.NewWorkflowRun(t)
	batchID := "batch-123"
	taskQueue := "flow-plane-batches-test"

	mockClient.On(
		"ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(opts client.StartWorkflowOptions) bool {
			return opts.ID == workflowID(batchID) && opts.TaskQueue == taskQueue
		}),
		mock.Anything,
		BatchInput{BatchID: batchID},
	).Return(workflowRun, nil)

	service := NewService(mockClient, taskQueue)
	err := service.StartBatch(context.Background(), batchID)
	require.NoError(t, err)
}

func TestStartBatch_Error(t *testing.T) {
	mockClient := mocks.NewClient(t)
	batchID := "batch-err"
	expectedErr := errors.New("start failed")
	taskQueue := "flow-plane-batches-test"

	mockClient.On(
		"ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(opts client.StartWorkflowOptions) bool {
			return opts.ID == workflowID(batchID) && opts.TaskQueue == taskQueue
		}),
		mock.Anything,
		BatchInput{BatchID: batchID},
	).Return((*mocks.WorkflowRun)(nil), expectedErr)

	service := NewService(mockClient, taskQueue)
	err := service.StartBatch(context.Background(), batchID)
	require.ErrorIs(t, err, expectedErr)
}

func TestCancelBatch_Success(t *testing.T) {
	mockClient := mocks.NewClient(t)
	batchID := "batch-2"

	mockClient.On("CancelWorkflow", mock.Anything, workflowID(batchID), "").Return(nil)

	service := NewService(mockClient, "flow-plane-batches")
	err := service.CancelBatch(context.Background(), batchID)
	require.NoError(t, err)
}

func TestCancelBatch_NotFound(t *testing.T) {
	mockClient := mocks.NewClient(t)
	batchID := "missing"
	expectedErr := errors.New("not found")

	mockClient.On("CancelWorkflow", mock.Anything, workflowID(batchID), "").Return(expectedErr)

	service := NewService(mockClient, "flow-plane-batches")
	err := service.CancelBatch(context.Background(), batchID)
	require.ErrorIs(t, err, expectedErr)
}
