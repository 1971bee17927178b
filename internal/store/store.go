package store

import (
	"context"

	"github.com/tabsift/flow-plane/internal/flows"
	"github.com/tabsift/flow-plane/internal/trace"
)

const (
	BatchStatusPending   = "pending"
	BatchStatusRunning   = "running"
	BatchStatusCompleted = "completed"
	BatchStatusFailed    = "failed"
	BatchStatusCancelled = "cancelled"
)

// Batch is one submitted trace of browser events moving through the mining
// pipeline.
type Batch struct {
	ID            string
	Status        string
	Error         string
	EventCount    int
	SessionCount  int
	WorkflowCount int
	OracleCalls   int
	CreatedAt     string
	UpdatedAt     string
}

// BatchEvent is one progress event emitted while a batch is processed.
type BatchEvent struct {
	BatchID   string
	Seq       int64
	Type      string
	Timestamp string
	Source    string
	Payload   map[string]any
}

// WorkflowRecord is a mined workflow as persisted. Tools is the sorted
// distinct tool set of the steps; two records with equal tool sets are
// considered duplicates.
type WorkflowRecord struct {
	ID        string
	BatchID   string
	Summary   string
	Steps     []flows.WorkflowStep
	Tools     []string
	CreatedAt string
}

type LLMSettings struct {
	Mode      string
	Provider  string
	Model     string
	BaseURL   string
	APIKeyEnc string
	CreatedAt string
	UpdatedAt string
}

type Store interface {
	CreateBatch(ctx context.Context, batch Batch) error
	GetBatch(ctx context.Context, batchID string) (*Batch, error)
	ListBatches(ctx context.Context) ([]Batch, error)
	UpdateBatch(ctx context.Context, batch Batch) error
	SetBatchTrace(ctx context.Context, batchID string, events []trace.Event) error
	GetBatchTrace(ctx context.Context, batchID string) ([]trace.Event, error)
	AppendEvent(ctx context.Context, event BatchEvent) error
	ListEvents(ctx context.Context, batchID string, afterSeq int64) ([]BatchEvent, error)
	NextSeq(ctx context.Context, batchID string) (int64, error)
	InsertWorkflow(ctx context.Context, record WorkflowRecord) error
	ListWorkflows(ctx context.Context) ([]WorkflowRecord, error)
	ListBatchWorkflows(ctx context.Context, batchID string) ([]WorkflowRecord, error)
	GetLLMSettings(ctx context.Context) (*LLMSettings, error)
	UpsertLLMSettings(ctx context.Context, settings LLMSettings) error
}
