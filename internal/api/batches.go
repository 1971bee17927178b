package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tabsift/flow-plane/internal/store"
	"github.com/tabsift/flow-plane/internal/trace"
)

type createBatchRequest struct {
	Events []trace.Event `json:"events"`
}

type batchResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	EventCount    int    `json:"event_count"`
	SessionCount  int    `json:"session_count"`
	WorkflowCount int    `json:"workflow_count"`
	OracleCalls   int    `json:"oracle_calls"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type listBatchesResponse struct {
	Batches []batchResponse `json:"batches"`
}

func toBatchResponse(batch store.Batch) batchResponse {
	return batchResponse{
		ID:            batch.ID,
		Status:        batch.Status,
		Error:         batch.Error,
		EventCount:    batch.EventCount,
		SessionCount:  batch.SessionCount,
		WorkflowCount: batch.WorkflowCount,
		OracleCalls:   batch.OracleCalls,
		CreatedAt:     batch.CreatedAt,
		UpdatedAt:     batch.UpdatedAt,
	}
}

func (s *Server) createBatch(w http.ResponseWriter, r *http.Request) {
	if !s.ensureLLMConfigured(w, r.Context()) {
		return
	}
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if len(req.Events) == 0 {
		http.Error(w, "at least one trace event required", http.StatusBadRequest)
		return
	}
	if s.cfg.MaxBatchEvents > 0 && len(req.Events) > s.cfg.MaxBatchEvents {
		http.Error(w, fmt.Sprintf("trace exceeds %d events", s.cfg.MaxBatchEvents), http.StatusRequestEntityTooLarge)
		return
	}

	id := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	batch := store.Batch{
		ID:         id,
		Status:     store.BatchStatusPending,
		EventCount: len(req.Events),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateBatch(r.Context(), batch); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.store.SetBatchTrace(r.Context(), id, req.Events); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if s.pipeline != nil {
		if err := s.pipeline.StartBatch(r.Context(), id); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
	}

	seq, _ := s.store.NextSeq(r.Context(), id)
	event := store.BatchEvent{
		BatchID:   id,
		Seq:       seq,
		Type:      "batch.submitted",
		Timestamp: now,
		Source:    "flow_plane",
		Payload:   map[string]any{"events": len(req.Events)},
	}
	_ = s.store.AppendEvent(r.Context(), event)
	s.broker.Publish(toEvent(event))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"batch_id":    id,
		"status":      store.BatchStatusPending,
		"event_count": len(req.Events),
	})
}

func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.store.ListBatches(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response := listBatchesResponse{Batches: make([]batchResponse, 0, len(batches))}
	for _, batch := range batches {
		response.Batches = append(response.Batches, toBatchResponse(batch))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	if batchID == "" {
		http.Error(w, "batch id required", http.StatusBadRequest)
		return
	}
	batch, err := s.store.GetBatch(r.Context(), batchID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if batch == nil {
		http.Error(w, "batch not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toBatchResponse(*batch))
}

func (s *Server) cancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	if batchID == "" {
		http.Error(w, "batch id required", http.StatusBadRequest)
		return
	}
	batch, err := s.store.GetBatch(r.Context(), batchID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if batch == nil {
		http.Error(w, "batch not found", http.StatusNotFound)
		return
	}

	if s.pipeline != nil {
		_ = s.pipeline.CancelBatch(r.Context(), batchID)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	batch.Status = store.BatchStatusCancelled
	batch.UpdatedAt = now
	if err := s.store.UpdateBatch(r.Context(), *batch); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	seq, _ := s.store.NextSeq(r.Context(), batchID)
	event := store.BatchEvent{
		BatchID:   batchID,
		Seq:       seq,
		Type:      "batch.cancelled",
		Timestamp: now,
		Source:    "flow_plane",
		Payload:   map[string]any{"reason": "user_requested"},
	}
	_ = s.store.AppendEvent(r.Context(), event)
	s.broker.Publish(toEvent(event))

	w.WriteHeader(http.StatusAccepted)
}
