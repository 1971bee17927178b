package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tabsift/flow-plane/internal/flows"
	"github.com/tabsift/flow-plane/internal/store"
)

type workflowResponse struct {
	ID        string               `json:"id"`
	BatchID   string               `json:"batch_id,omitempty"`
	Summary   string               `json:"summary"`
	Steps     []flows.WorkflowStep `json:"steps"`
	Tools     []string             `json:"tools"`
	CreatedAt string               `json:"created_at"`
}

type listWorkflowsResponse struct {
	Workflows []workflowResponse `json:"workflows"`
}

func toWorkflowResponse(record store.WorkflowRecord) workflowResponse {
	return workflowResponse{
		ID:        record.ID,
		BatchID:   record.BatchID,
		Summary:   record.Summary,
		Steps:     record.Steps,
		Tools:     record.Tools,
		CreatedAt: record.CreatedAt,
	}
}

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response := listWorkflowsResponse{Workflows: make([]workflowResponse, 0, len(records))}
	for _, record := range records {
		response.Workflows = append(response.Workflows, toWorkflowResponse(record))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) listBatchWorkflows(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	if batchID == "" {
		http.Error(w, "batch id required", http.StatusBadRequest)
		return
	}
	records, err := s.store.ListBatchWorkflows(r.Context(), batchID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response := listWorkflowsResponse{Workflows: make([]workflowResponse, 0, len(records))}
	for _, record := range records {
		response.Workflows = append(response.Workflows, toWorkflowResponse(record))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}
