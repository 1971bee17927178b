package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tabsift/flow-plane/internal/flows"
	"github.com/tabsift/flow-plane/internal/store"
	"github.com/tabsift/flow-plane/internal/trace"
)

type MemoryStore struct {
	mu        sync.RWMutex
	batches   map[string]store.Batch
	traces    map[string][]trace.Event
	events    map[string][]store.BatchEvent
	seq       map[string]int64
	workflows []store.WorkflowRecord
	settings  *store.LLMSettings
}

func New() *MemoryStore {
	return &MemoryStore{
		batches: map[string]store.Batch{},
		traces:  map[string][]trace.Event{},
		events:  map[string][]store.BatchEvent{},
		seq:     map[string]int64{},
	}
}

func (m *MemoryStore) CreateBatch(ctx context.Context, batch store.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(batch.Status) == "" {
		batch.Status = store.BatchStatusPending
	}
	m.batches[batch.ID] = batch
	return nil
}

func (m *MemoryStore) GetBatch(ctx context.Context, batchID string) (*store.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	batch, ok := m.batches[batchID]
	if !ok {
		return nil, nil
	}
	cloned := batch
	return &cloned, nil
}

func (m *MemoryStore) ListBatches(ctx context.Context) ([]store.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]store.Batch, 0, len(m.batches))
	for _, batch := range m.batches {
		results = append(results, batch)
	}
	sort.Slice(results, func(i, j int) bool {
		return parseTime(results[i].CreatedAt).After(parseTime(results[j].CreatedAt))
	})
	return results, nil
}

func (m *MemoryStore) UpdateBatch(ctx context.Context, batch store.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[batch.ID] = batch
	return nil
}

func (m *MemoryStore) SetBatchTrace(ctx context.Context, batchID string, events []trace.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traces[batchID] = append([]trace.Event{}, events...)
	return nil
}

func (m *MemoryStore) GetBatchTrace(ctx context.Context, batchID string) ([]trace.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events, ok := m.traces[batchID]
	if !ok {
		return nil, nil
	}
	return append([]trace.Event{}, events...), nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, event store.BatchEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Type = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(event.Type)), "_", ".")
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	m.events[event.BatchID] = append(m.events[event.BatchID], event)
	return nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, batchID string, afterSeq int64) ([]store.BatchEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []store.BatchEvent{}
	for _, event := range m.events[batchID] {
		if event.Seq > afterSeq {
			results = append(results, event)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Seq < results[j].Seq
	})
	return results, nil
}

func (m *MemoryStore) NextSeq(ctx context.Context, batchID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[batchID]++
	return m.seq[batchID], nil
}

func (m *MemoryStore) InsertWorkflow(ctx context.Context, record store.WorkflowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.Steps = append([]flows.WorkflowStep{}, record.Steps...)
	record.Tools = append([]string{}, record.Tools...)
	m.workflows = append(m.workflows, record)
	return nil
}

func (m *MemoryStore) ListWorkflows(ctx context.Context) ([]store.WorkflowRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cloneWorkflows(""), nil
}

func (m *MemoryStore) ListBatchWorkflows(ctx context.Context, batchID string) ([]store.WorkflowRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cloneWorkflows(batchID), nil
}

func (m *MemoryStore) cloneWorkflows(batchID string) []store.WorkflowRecord {
	results := []store.WorkflowRecord{}
	for _, record := range m.workflows {
		if batchID != "" && record.BatchID != batchID {
			continue
		}
		cloned := record
		cloned.Steps = append([]flows.WorkflowStep{}, record.Steps...)
		cloned.Tools = append([]string{}, record.Tools...)
		results = append(results, cloned)
	}
	sort.Slice(results, func(i, j int) bool {
		return parseTime(results[i].CreatedAt).After(parseTime(results[j].CreatedAt))
	})
	return results
}

func (m *MemoryStore) GetLLMSettings(ctx context.Context) (*store.LLMSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return nil, nil
	}
	cloned := *m.settings
	return &cloned, nil
}

func (m *MemoryStore) UpsertLLMSettings(ctx context.Context, settings store.LLMSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings != nil && settings.CreatedAt == "" {
		settings.CreatedAt = m.settings.CreatedAt
	}
	m.settings = &settings
	return nil
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
