package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tabsift/flow-plane/internal/flows"
	"github.com/tabsift/flow-plane/internal/store"
	"github.com/tabsift/flow-plane/internal/trace"
)

type PostgresStore struct {
	db *sql.DB
}

var openDB = sql.Open

func New(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := verifySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func verifySchema(ctx context.Context, db *sql.DB) error {
	required := []string{
		"batches",
		"batch_traces",
		"batch_events",
		"batch_event_sequences",
		"workflows",
		"llm_settings",
	}
	for _, table := range required {
		var regclass sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT to_regclass($1)", fmt.Sprintf("public.%s", table)).Scan(&regclass); err != nil {
			return err
		}
		if !regclass.Valid {
			return fmt.Errorf("database schema missing: %s table not found (run infra/migrations/001_init.sql)", table)
		}
	}
	return nil
}

func (p *PostgresStore) CreateBatch(ctx context.Context, batch store.Batch) error {
	status := strings.TrimSpace(batch.Status)
	if status == "" {
		status = store.BatchStatusPending
	}
	const query = `
		INSERT INTO batches (id, status, error, event_count, session_count, workflow_count, oracle_calls, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		batch.ID,
		status,
		nullString(batch.Error),
		batch.EventCount,
		batch.SessionCount,
		batch.WorkflowCount,
		batch.OracleCalls,
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetBatch(ctx context.Context, batchID string) (*store.Batch, error) {
	const query = `
		SELECT id, status, error, event_count, session_count, workflow_count, oracle_calls, created_at, updated_at
		FROM batches
		WHERE id = $1
	`
	var createdAt time.Time
	var updatedAt time.Time
	var errText sql.NullString
	batch := store.Batch{}
	if err := p.db.QueryRowContext(ctx, query, batchID).Scan(
		&batch.ID,
		&batch.Status,
		&errText,
		&batch.EventCount,
		&batch.SessionCount,
		&batch.WorkflowCount,
		&batch.OracleCalls,
		&createdAt,
		&updatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if errText.Valid {
		batch.Error = errText.String
	}
	batch.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	batch.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return &batch, nil
}

func (p *PostgresStore) ListBatches(ctx context.Context) ([]store.Batch, error) {
	const query = `
		SELECT id, status, error, event_count, session_count, workflow_count, oracle_calls, created_at, updated_at
		FROM batches
		ORDER BY created_at DESC
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.Batch{}
	for rows.Next() {
		var createdAt time.Time
		var updatedAt time.Time
		var errText sql.NullString
		var batch store.Batch
		if err := rows.Scan(
			&batch.ID,
			&batch.Status,
			&errText,
			&batch.EventCount,
			&batch.SessionCount,
			&batch.WorkflowCount,
			&batch.OracleCalls,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, err
		}
		if errText.Valid {
			batch.Error = errText.String
		}
		batch.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
		batch.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
		results = append(results, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) UpdateBatch(ctx context.Context, batch store.Batch) error {
	const query = `
		UPDATE batches
		SET status = $1,
			error = $2,
			event_count = $3,
			session_count = $4,
			workflow_count = $5,
			oracle_calls = $6,
			updated_at = $7
		WHERE id = $8
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		batch.Status,
		nullString(batch.Error),
		batch.EventCount,
		batch.SessionCount,
		batch.WorkflowCount,
		batch.OracleCalls,
		batch.UpdatedAt,
		batch.ID,
	)
	return err
}

func (p *PostgresStore) SetBatchTrace(ctx context.Context, batchID string, events []trace.Event) error {
	if events == nil {
		events = []trace.Event{}
	}
	encoded, err := json.Marshal(events)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO batch_traces (batch_id, events)
		VALUES ($1, $2)
		ON CONFLICT (batch_id)
		DO UPDATE SET events = EXCLUDED.events
	`
	_, err = p.db.ExecContext(ctx, query, batchID, encoded)
	return err
}

func (p *PostgresStore) GetBatchTrace(ctx context.Context, batchID string) ([]trace.Event, error) {
	const query = `
		SELECT events
		FROM batch_traces
		WHERE batch_id = $1
	`
	var encoded []byte
	if err := p.db.QueryRowContext(ctx, query, batchID).Scan(&encoded); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	events := []trace.Event{}
	if len(encoded) > 0 {
		if err := json.Unmarshal(encoded, &events); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (p *PostgresStore) AppendEvent(ctx context.Context, event store.BatchEvent) error {
	event.Type = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(event.Type)), "_", ".")
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	timestamp := event.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	const query = `
		INSERT INTO batch_events (batch_id, seq, type, timestamp, source, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = p.db.ExecContext(ctx, query, event.BatchID, event.Seq, event.Type, parseTimestampValue(timestamp), event.Source, encoded)
	return err
}

func (p *PostgresStore) ListEvents(ctx context.Context, batchID string, afterSeq int64) ([]store.BatchEvent, error) {
	const query = `
		SELECT batch_id, seq, type, timestamp, source, payload
		FROM batch_events
		WHERE batch_id = $1 AND seq > $2
		ORDER BY seq ASC
	`
	rows, err := p.db.QueryContext(ctx, query, batchID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.BatchEvent{}
	for rows.Next() {
		var payloadBytes []byte
		var timestamp time.Time
		var event store.BatchEvent
		if err := rows.Scan(&event.BatchID, &event.Seq, &event.Type, &timestamp, &event.Source, &payloadBytes); err != nil {
			return nil, err
		}
		event.Timestamp = timestamp.UTC().Format(time.RFC3339Nano)
		if len(payloadBytes) > 0 {
			payload := map[string]any{}
			if err := json.Unmarshal(payloadBytes, &payload); err != nil {
				return nil, err
			}
			event.Payload = payload
		} else {
			event.Payload = map[string]any{}
		}
		results = append(results, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) NextSeq(ctx context.Context, batchID string) (int64, error) {
	const query = `
		INSERT INTO batch_event_sequences (batch_id, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (batch_id)
		DO UPDATE SET last_seq = batch_event_sequences.last_seq + 1
		RETURNING last_seq
	`
	var seq int64
	if err := p.db.QueryRowContext(ctx, query, batchID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (p *PostgresStore) InsertWorkflow(ctx context.Context, record store.WorkflowRecord) error {
	steps := record.Steps
	if steps == nil {
		steps = []flows.WorkflowStep{}
	}
	stepsBytes, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	tools := record.Tools
	if tools == nil {
		tools = []string{}
	}
	toolsBytes, err := json.Marshal(tools)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO workflows (id, batch_id, summary, steps, tools, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = p.db.ExecContext(ctx, query, record.ID, nullString(record.BatchID), record.Summary, stepsBytes, toolsBytes, record.CreatedAt)
	return err
}

func (p *PostgresStore) ListWorkflows(ctx context.Context) ([]store.WorkflowRecord, error) {
	const query = `
		SELECT id, batch_id, summary, steps, tools, created_at
		FROM workflows
		ORDER BY created_at DESC
	`
	return p.queryWorkflows(ctx, query)
}

func (p *PostgresStore) ListBatchWorkflows(ctx context.Context, batchID string) ([]store.WorkflowRecord, error) {
	const query = `
		SELECT id, batch_id, summary, steps, tools, created_at
		FROM workflows
		WHERE batch_id = $1
		ORDER BY created_at DESC
	`
	return p.queryWorkflows(ctx, query, batchID)
}

func (p *PostgresStore) queryWorkflows(ctx context.Context, query string, args ...any) ([]store.WorkflowRecord, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.WorkflowRecord{}
	for rows.Next() {
		var createdAt time.Time
		var batchID sql.NullString
		var stepsBytes []byte
		var toolsBytes []byte
		var record store.WorkflowRecord
		if err := rows.Scan(&record.ID, &batchID, &record.Summary, &stepsBytes, &toolsBytes, &createdAt); err != nil {
			return nil, err
		}
		if batchID.Valid {
			record.BatchID = batchID.String
		}
		if len(stepsBytes) > 0 {
			steps := []flows.WorkflowStep{}
			if err := json.Unmarshal(stepsBytes, &steps); err != nil {
				return nil, err
			}
			record.Steps = steps
		}
		record.Tools = decodeStringSlice(toolsBytes)
		record.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) GetLLMSettings(ctx context.Context) (*store.LLMSettings, error) {
	const query = `
		SELECT mode, provider, model, base_url, api_key_enc, created_at, updated_at
		FROM llm_settings
		WHERE id = 1
	`
	var createdAt time.Time
	var updatedAt time.Time
	settings := store.LLMSettings{}
	if err := p.db.QueryRowContext(ctx, query).Scan(
		&settings.Mode,
		&settings.Provider,
		&settings.Model,
		&settings.BaseURL,
		&settings.APIKeyEnc,
		&createdAt,
		&updatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	settings.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	settings.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return &settings, nil
}

func (p *PostgresStore) UpsertLLMSettings(ctx context.Context, settings store.LLMSettings) error {
	const query = `
		INSERT INTO llm_settings
			(id, mode, provider, model, base_url, api_key_enc, created_at, updated_at)
		VALUES
			(1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			mode = EXCLUDED.mode,
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			base_url = EXCLUDED.base_url,
			api_key_enc = EXCLUDED.api_key_enc,
			updated_at = EXCLUDED.updated_at
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		settings.Mode,
		settings.Provider,
		settings.Model,
		settings.BaseURL,
		settings.APIKeyEnc,
		settings.CreatedAt,
		settings.UpdatedAt,
	)
	return err
}

func parseTimestampValue(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}

func nullString(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}

func decodeStringSlice(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	values := []string{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}
