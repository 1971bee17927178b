package pipeline

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
)

type Service struct {
	client    client.Client
	taskQueue string
}

func NewService(client client.Client, taskQueue string) *Service {
	if taskQueue == "" {
		taskQueue = "flow-plane-batches"
	}
	return &Service{client: client, taskQueue: taskQueue}
}

func (s *Service) StartBatch(ctx context.Context, batchID string) error {
	options := client.StartWorkflowOptions{
		ID:        workflowID(batchID),
		TaskQueue: s.taskQueue,
	}
	_, err := s.client.ExecuteWorkflow(ctx, options, BatchWorkflow, BatchInput{BatchID: batchID})
	return err
}

func (s *Service) CancelBatch(ctx context.Context, batchID string) error {
	return s.client.CancelWorkflow(ctx, workflowID(batchID), "")
}

func workflowID(batchID string) string {
	return fmt.Sprintf("batch:%s", batchID)
}
