package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tabsift/flow-plane/internal/flows"
	"github.com/tabsift/flow-plane/internal/llm"
	"github.com/tabsift/flow-plane/internal/oracle"
	"github.com/tabsift/flow-plane/internal/secrets"
	"github.com/tabsift/flow-plane/internal/sessions"
	"github.com/tabsift/flow-plane/internal/store"
	"github.com/tabsift/flow-plane/internal/tools"
)

type GroupInput struct {
	BatchID string
}

type GroupOutput struct {
	Sessions     []sessions.TabSession `json:"sessions"`
	SessionCount int                   `json:"session_count"`
}

type ScanInput struct {
	BatchID  string
	Sessions []sessions.TabSession
}

type ScanOutput struct {
	Workflows     []flows.Workflow `json:"workflows"`
	OracleCalls   int              `json:"oracle_calls"`
	UndecidedTail int              `json:"undecided_tail"`
}

type AnalyzeInput struct {
	BatchID   string
	Workflows []flows.Workflow
}

type AnalyzeOutput struct {
	Workflows []flows.Workflow `json:"workflows"`
}

type PersistInput struct {
	BatchID     string
	Workflows   []flows.Workflow
	OracleCalls int
}

type PersistOutput struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

type BatchFailureInput struct {
	BatchID string
	Error   string
}

var (
	newProvider   = llm.NewProvider
	decryptSecret = secrets.Decrypt
	loadCatalog   = tools.Load
	marshalJSON   = json.Marshal
)

type BatchActivities struct {
	store          store.Store
	defaultConfig  llm.Config
	secretsKey     []byte
	flowPlane      string
	toolsDir       string
	httpClient     *http.Client
	requestTimeout time.Duration
}

func NewBatchActivities(store store.Store, defaultConfig llm.Config, secretsKey []byte, flowPlaneURL string, toolsDir string) *BatchActivities {
	return &BatchActivities{
		store:          store,
		defaultConfig:  defaultConfig,
		secretsKey:     secretsKey,
		flowPlane:      strings.TrimRight(flowPlaneURL, "/"),
		toolsDir:       toolsDir,
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		requestTimeout: 10 * time.Second,
	}
}

// GroupSessions loads the batch trace and partitions it into summarized tab
// sessions.
func (a *BatchActivities) GroupSessions(ctx context.Context, input GroupInput) (GroupOutput, error) {
	events, err := a.store.GetBatchTrace(ctx, input.BatchID)
	if err != nil {
		return GroupOutput{}, err
	}
	if events == nil {
		return GroupOutput{}, fmt.Errorf("no trace stored for batch %s", input.BatchID)
	}

	if err := a.markBatch(ctx, input.BatchID, func(batch *store.Batch) {
		batch.Status = store.BatchStatusRunning
	}); err != nil {
		return GroupOutput{}, err
	}
	_ = a.emitEvent(ctx, input.BatchID, "batch.started", map[string]any{"events": len(events)})

	orc, err := a.buildOracle(ctx)
	if err != nil {
		return GroupOutput{}, err
	}

	grouper := sessions.NewGrouper(orc, orc)
	grouped := grouper.Group(ctx, events)

	if err := a.markBatch(ctx, input.BatchID, func(batch *store.Batch) {
		batch.SessionCount = len(grouped)
	}); err != nil {
		return GroupOutput{}, err
	}
	_ = a.emitEvent(ctx, input.BatchID, "batch.sessions.grouped", map[string]any{"sessions": len(grouped)})

	return GroupOutput{Sessions: grouped, SessionCount: len(grouped)}, nil
}

// ScanSessions runs the sliding-window workflow scan. Oracle errors abort
// the batch; there is no safe default verdict to fall back to.
func (a *BatchActivities) ScanSessions(ctx context.Context, input ScanInput) (ScanOutput, error) {
	orc, err := a.buildOracle(ctx)
	if err != nil {
		return ScanOutput{}, err
	}

	scanner := flows.NewScanner(orc)
	result, err := scanner.Scan(ctx, input.Sessions)
	if err != nil {
		return ScanOutput{}, err
	}

	if err := a.markBatch(ctx, input.BatchID, func(batch *store.Batch) {
		batch.OracleCalls = result.OracleCalls
	}); err != nil {
		return ScanOutput{}, err
	}
	_ = a.emitEvent(ctx, input.BatchID, "batch.windows.scanned", map[string]any{
		"workflows":      len(result.Workflows),
		"oracle_calls":   result.OracleCalls,
		"undecided_tail": result.UndecidedTail,
	})

	return ScanOutput{
		Workflows:     result.Workflows,
		OracleCalls:   result.OracleCalls,
		UndecidedTail: result.UndecidedTail,
	}, nil
}

// AnalyzeTools annotates workflow steps with tool usage and drops workflows
// that never act through a tool.
func (a *BatchActivities) AnalyzeTools(ctx context.Context, input AnalyzeInput) (AnalyzeOutput, error) {
	catalog, err := loadCatalog(a.toolsDir)
	if err != nil {
		return AnalyzeOutput{}, err
	}
	orc, err := a.buildOracle(ctx)
	if err != nil {
		return AnalyzeOutput{}, err
	}

	analyzer := tools.NewAnalyzer(catalog, orc)
	kept := analyzer.Analyze(ctx, input.Workflows)

	_ = a.emitEvent(ctx, input.BatchID, "batch.tools.analyzed", map[string]any{
		"kept":    len(kept),
		"dropped": len(input.Workflows) - len(kept),
	})

	return AnalyzeOutput{Workflows: kept}, nil
}

// PersistWorkflows writes the surviving workflows, skipping any whose tool
// set matches an already stored workflow, and marks the batch completed.
func (a *BatchActivities) PersistWorkflows(ctx context.Context, input PersistInput) (PersistOutput, error) {
	existing, err := a.store.ListWorkflows(ctx)
	if err != nil {
		return PersistOutput{}, err
	}
	seen := map[string]struct{}{}
	for _, record := range existing {
		seen[toolSetKey(record.Tools)] = struct{}{}
	}

	output := PersistOutput{}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, workflow := range input.Workflows {
		toolSet := tools.ToolSet(workflow)
		key := toolSetKey(toolSet)
		if _, dup := seen[key]; dup {
			output.Duplicates++
			continue
		}
		record := store.WorkflowRecord{
			ID:        uuid.NewString(),
			BatchID:   input.BatchID,
			Summary:   workflow.Summary,
			Steps:     workflow.Steps,
			Tools:     toolSet,
			CreatedAt: now,
		}
		if err := a.store.InsertWorkflow(ctx, record); err != nil {
			return output, err
		}
		seen[key] = struct{}{}
		output.Inserted++
	}

	if err := a.markBatch(ctx, input.BatchID, func(batch *store.Batch) {
		batch.Status = store.BatchStatusCompleted
		batch.WorkflowCount = output.Inserted
		batch.OracleCalls = input.OracleCalls
	}); err != nil {
		return output, err
	}
	_ = a.emitEvent(ctx, input.BatchID, "batch.completed", map[string]any{
		"workflows":  output.Inserted,
		"duplicates": output.Duplicates,
	})

	return output, nil
}

func (a *BatchActivities) HandleBatchFailure(ctx context.Context, input BatchFailureInput) error {
	if strings.TrimSpace(input.BatchID) == "" {
		return errors.New("batch_id required")
	}
	detail := strings.TrimSpace(input.Error)
	if detail == "" {
		detail = "unknown pipeline activity error"
	}
	if err := a.markBatch(ctx, input.BatchID, func(batch *store.Batch) {
		batch.Status = store.BatchStatusFailed
		batch.Error = detail
	}); err != nil {
		return err
	}
	payload := map[string]any{"error": detail}
	if err := a.postEvent(ctx, input.BatchID, "batch.failed", payload); err == nil {
		return nil
	}
	return a.appendLocalEvent(ctx, input.BatchID, "batch.failed", "worker", payload)
}

func (a *BatchActivities) markBatch(ctx context.Context, batchID string, mutate func(*store.Batch)) error {
	batch, err := a.store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch == nil {
		return fmt.Errorf("batch %s not found", batchID)
	}
	mutate(batch)
	batch.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	return a.store.UpdateBatch(ctx, *batch)
}

func (a *BatchActivities) buildOracle(ctx context.Context) (*oracle.Oracle, error) {
	cfg, err := a.resolveConfig(ctx)
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return oracle.New(provider), nil
}

// resolveConfig layers the stored LLM settings over the deployment defaults,
// decrypting the persisted API key when present.
func (a *BatchActivities) resolveConfig(ctx context.Context) (llm.Config, error) {
	cfg := a.defaultConfig
	settings, err := a.store.GetLLMSettings(ctx)
	if err != nil {
		return cfg, err
	}
	if settings != nil {
		cfg.Mode = settings.Mode
		cfg.Provider = settings.Provider
		cfg.Model = settings.Model
		cfg.BaseURL = settings.BaseURL
		if settings.APIKeyEnc != "" {
			if a.secretsKey == nil {
				return cfg, errors.New("LLM_SECRETS_KEY is required to decrypt API keys")
			}
			apiKey, err := decryptSecret(a.secretsKey, settings.APIKeyEnc)
			if err != nil {
				return cfg, err
			}
			cfg.AnthropicAPIKey = apiKey
		}
	}
	if cfg.Mode != "local" && cfg.AnthropicAPIKey == "" {
		return cfg, errors.New("missing API key for provider")
	}
	return cfg, nil
}

func (a *BatchActivities) emitEvent(ctx context.Context, batchID string, eventType string, payload map[string]any) error {
	if err := a.postEvent(ctx, batchID, eventType, payload); err == nil {
		return nil
	}
	return a.appendLocalEvent(ctx, batchID, eventType, "worker", payload)
}

func (a *BatchActivities) postEvent(ctx context.Context, batchID string, eventType string, payload map[string]any) error {
	url := fmt.Sprintf("%s/batches/%s/events", a.flowPlane, batchID)
	body, err := marshalJSON(map[string]any{
		"type":      eventType,
		"source":    "worker",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"payload":   payload,
	})
	if err != nil {
		return err
	}
	requestCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("flow plane event failed: %s", resp.Status)
	}
	return nil
}

func (a *BatchActivities) appendLocalEvent(ctx context.Context, batchID string, eventType string, source string, payload map[string]any) error {
	seq, err := a.store.NextSeq(ctx, batchID)
	if err != nil {
		return err
	}
	return a.store.AppendEvent(ctx, store.BatchEvent{
		BatchID:   batchID,
		Seq:       seq,
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Source:    source,
		Payload:   payload,
	})
}

func toolSetKey(toolSet []string) string {
	return strings.Join(toolSet, ",")
}
