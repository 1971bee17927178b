package api

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/tabsift/flow-plane/internal/config"
	"github.com/tabsift/flow-plane/internal/events"
	"github.com/tabsift/flow-plane/internal/llm"
	"github.com/tabsift/flow-plane/internal/store"
	"github.com/tabsift/flow-plane/internal/trace"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateBatch(ctx context.Context, batch store.Batch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockStore) GetBatch(ctx context.Context, batchID string) (*store.Batch, error) {
	args := m.Called(ctx, batchID)
	if value := args.Get(0); value != nil {
		return value.(*store.Batch), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) ListBatches(ctx context.Context) ([]store.Batch, error) {
	args := m.Called(ctx)
	var result []store.Batch
	if value := args.Get(0); value != nil {
		result = value.([]store.Batch)
	}
	return result, args.Error(1)
}

func (m *MockStore) UpdateBatch(ctx context.Context, batch store.Batch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func (m *MockStore) SetBatchTrace(ctx context.Context, batchID string, traceEvents []trace.Event) error {
	args := m.Called(ctx, batchID, traceEvents)
	return args.Error(0)
}

func (m *MockStore) GetBatchTrace(ctx context.Context, batchID string) ([]trace.Event, error) {
	args := m.Called(ctx, batchID)
	var result []trace.Event
	if value := args.Get(0); value != nil {
		result = value.([]trace.Event)
	}
	return result, args.Error(1)
}

func (m *MockStore) AppendEvent(ctx context.Context, event store.BatchEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStore) ListEvents(ctx context.Context, batchID string, afterSeq int64) ([]store.BatchEvent, error) {
	args := m.Called(ctx, batchID, afterSeq)
	var result []store.BatchEvent
	if value := args.Get(0); value != nil {
		result = value.([]store.BatchEvent)
	}
	return result, args.Error(1)
}

func (m *MockStore) NextSeq(ctx context.Context, batchID string) (int64, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) InsertWorkflow(ctx context.Context, record store.WorkflowRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockStore) ListWorkflows(ctx context.Context) ([]store.WorkflowRecord, error) {
	args := m.Called(ctx)
	var result []store.WorkflowRecord
	if value := args.Get(0); value != nil {
		result = value.([]store.WorkflowRecord)
	}
	return result, args.Error(1)
}

func (m *MockStore) ListBatchWorkflows(ctx context.Context, batchID string) ([]store.WorkflowRecord, error) {
	args := m.Called(ctx, batchID)
	var result []store.WorkflowRecord
	if value := args.Get(0); value != nil {
		result = value.([]store.WorkflowRecord)
	}
	return result, args.Error(1)
}

func (m *MockStore) GetLLMSettings(ctx context.Context) (*store.LLMSettings, error) {
	args := m.Called(ctx)
	if value := args.Get(0); value != nil {
		return value.(*store.LLMSettings), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) UpsertLLMSettings(ctx context.Context, settings store.LLMSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Publish(event events.BatchEvent) {
	m.Called(event)
}

func (m *MockBroker) Subscribe(ctx context.Context, batchID string) <-chan events.BatchEvent {
	args := m.Called(ctx, batchID)
	if value := args.Get(0); value != nil {
		if ch, ok := value.(chan events.BatchEvent); ok {
			return ch
		}
		if ch, ok := value.(<-chan events.BatchEvent); ok {
			return ch
		}
	}
	return nil
}

type MockPipelineService struct {
	mock.Mock
}

func (m *MockPipelineService) StartBatch(ctx context.Context, batchID string) error {
	args := m.Called(ctx, batchID)
	return args.Error(0)
}

func (m *MockPipelineService) CancelBatch(ctx context.Context, batchID string) error {
	args := m.Called(ctx, batchID)
	return args.Error(0)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) GenerateStructured(ctx context.Context, messages []llm.Message, tool llm.Tool) (map[string]any, error) {
	args := m.Called(ctx, messages, tool)
	var result map[string]any
	if value := args.Get(0); value != nil {
		result = value.(map[string]any)
	}
	return result, args.Error(1)
}

func newTestServer(t *testing.T, store store.Store, broker Broker, pipeline PipelineService, cfg config.Config) *httptest.Server {
	t.Helper()
	server := NewServer(store, broker, pipeline, cfg)
	return httptest.NewServer(server.Router())
}
