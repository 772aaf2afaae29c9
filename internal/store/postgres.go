package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tidwall/match"
	"github.com/weavegraph/core/common/cache"
	"github.com/weavegraph/core/internal/workflow"
)

// Postgres is the production Backend, matching the connection-pool setup
// in internal/db but speaking the schema this package owns:
//
//	workflow_memory(workflow_id, key, value jsonb)
//	workflow_records(workflow_id, record_id, record_type, data jsonb, status, error_message, created_at, updated_at)
//	workflows(workflow_id, nodes jsonb)
//	workflow_descriptions(workflow_id, version, text, reason, updated_at)
//	workflow_plans(workflow_id, version, phases jsonb, reason, updated_at)
//	workflow_browser_state(workflow_id, state jsonb)
type Postgres struct {
	pool  *pgxpool.Pool
	cache cache.Cache // optional read-through cache for hot global keys
}

// NewPostgres wraps an existing pgxpool.Pool as a Backend.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// WithCache attaches a read-through cache for GetGlobal/SetGlobal, used
// when the engine has a Redis connection available. Returns p for
// chaining at construction time.
func (p *Postgres) WithCache(c cache.Cache) *Postgres {
	p.cache = c
	return p
}

func (p *Postgres) GetGlobal(ctx context.Context, workflowID, key string) (any, bool, error) {
	if p.cache != nil {
		if raw, found, _ := p.cache.Get(ctx, globalCacheKey(workflowID, key)); found {
			var value any
			if err := json.Unmarshal(raw, &value); err == nil {
				return value, true, nil
			}
		}
	}

	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM workflow_memory WHERE workflow_id = $1 AND key = $2`,
		workflowID, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get global %s: %w", key, err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("decode global %s: %w", key, err)
	}
	if p.cache != nil {
		_ = p.cache.Set(ctx, globalCacheKey(workflowID, key), raw, 0)
	}
	return value, true, nil
}

func (p *Postgres) SetGlobal(ctx context.Context, workflowID, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode global %s: %w", key, err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO workflow_memory (workflow_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (workflow_id, key) DO UPDATE SET value = EXCLUDED.value`,
		workflowID, key, raw)
	if err != nil {
		return fmt.Errorf("set global %s: %w", key, err)
	}
	if p.cache != nil {
		_ = p.cache.Set(ctx, globalCacheKey(workflowID, key), raw, 0)
	}
	return nil
}

func (p *Postgres) DeleteGlobal(ctx context.Context, workflowID, key string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM workflow_memory WHERE workflow_id = $1 AND key = $2`,
		workflowID, key)
	if err != nil {
		return fmt.Errorf("delete global %s: %w", key, err)
	}
	if p.cache != nil {
		_ = p.cache.Delete(ctx, globalCacheKey(workflowID, key))
	}
	return nil
}

func (p *Postgres) ClearAllGlobals(ctx context.Context, workflowID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM workflow_memory WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("clear globals: %w", err)
	}
	// Individual cache entries are left to expire on their TTL rather than
	// tracked and bulk-deleted here; ClearAllGlobals is rare (explicit
	// Director action), unlike the hot GetGlobal path this cache optimizes.
	return nil
}

func (p *Postgres) ScanGlobals(ctx context.Context, workflowID, prefix string) (map[string]any, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT key, value FROM workflow_memory WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("scan globals: %w", err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan globals row: %w", err)
		}
		if prefix != "" && key != prefix && !match.Match(key, prefix+"*") {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("decode global %s: %w", key, err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

func (p *Postgres) CreateRecord(ctx context.Context, workflowID string, record *workflow.Record) error {
	dataRaw, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("encode record data: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO workflow_records (workflow_id, record_id, record_type, data, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		workflowID, record.RecordID, record.RecordType, dataRaw, record.Status, time.Now())
	if err != nil {
		return fmt.Errorf("create record %s: %w", record.RecordID, err)
	}
	return nil
}

func (p *Postgres) GetRecord(ctx context.Context, workflowID, recordID string) (*workflow.Record, bool, error) {
	var rec workflow.Record
	var dataRaw []byte
	var errMsg *string
	err := p.pool.QueryRow(ctx, `
		SELECT record_id, record_type, data, status, error_message, created_at, updated_at
		FROM workflow_records WHERE workflow_id = $1 AND record_id = $2`,
		workflowID, recordID).Scan(&rec.RecordID, &rec.RecordType, &dataRaw, &rec.Status, &errMsg, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get record %s: %w", recordID, err)
	}
	if err := json.Unmarshal(dataRaw, &rec.Data); err != nil {
		return nil, false, fmt.Errorf("decode record %s: %w", recordID, err)
	}
	rec.ErrorMessage = errMsg
	return &rec, true, nil
}

func (p *Postgres) UpdateRecord(ctx context.Context, workflowID, recordID, nodeAlias string, fields map[string]any, status *workflow.RecordStatus, errMsg *string) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var dataRaw []byte
		err := tx.QueryRow(ctx,
			`SELECT data FROM workflow_records WHERE workflow_id = $1 AND record_id = $2 FOR UPDATE`,
			workflowID, recordID).Scan(&dataRaw)
		if err != nil {
			return fmt.Errorf("load record %s for update: %w", recordID, err)
		}

		var data map[string]map[string]any
		if err := json.Unmarshal(dataRaw, &data); err != nil {
			return fmt.Errorf("decode record %s: %w", recordID, err)
		}
		if data == nil {
			data = make(map[string]map[string]any)
		}
		ns, ok := data[nodeAlias]
		if !ok {
			ns = make(map[string]any)
			data[nodeAlias] = ns
		}
		for k, v := range fields {
			ns[k] = v
		}

		newRaw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", recordID, err)
		}

		if status != nil {
			_, err = tx.Exec(ctx,
				`UPDATE workflow_records SET data = $1, status = $2, error_message = $3, updated_at = $4 WHERE workflow_id = $5 AND record_id = $6`,
				newRaw, *status, errMsg, time.Now(), workflowID, recordID)
		} else {
			_, err = tx.Exec(ctx,
				`UPDATE workflow_records SET data = $1, updated_at = $2 WHERE workflow_id = $3 AND record_id = $4`,
				newRaw, time.Now(), workflowID, recordID)
		}
		if err != nil {
			return fmt.Errorf("update record %s: %w", recordID, err)
		}
		return nil
	})
}

func (p *Postgres) ListRecords(ctx context.Context, workflowID, pattern string) ([]*workflow.Record, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT record_id, record_type, data, status, error_message, created_at, updated_at
		FROM workflow_records WHERE workflow_id = $1 ORDER BY record_id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*workflow.Record
	for rows.Next() {
		var rec workflow.Record
		var dataRaw []byte
		if err := rows.Scan(&rec.RecordID, &rec.RecordType, &dataRaw, &rec.Status, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		if pattern != "" && pattern != "*" && !match.Match(rec.RecordID, pattern) {
			continue
		}
		if err := json.Unmarshal(dataRaw, &rec.Data); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", rec.RecordID, err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (p *Postgres) GetWorkflow(ctx context.Context, workflowID string) (*workflow.Workflow, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `SELECT nodes FROM workflows WHERE workflow_id = $1`, workflowID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return &workflow.Workflow{ID: workflowID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", workflowID, err)
	}
	wf := &workflow.Workflow{ID: workflowID}
	if err := json.Unmarshal(raw, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", workflowID, err)
	}
	return wf, nil
}

func (p *Postgres) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	raw, err := json.Marshal(wf.Nodes)
	if err != nil {
		return fmt.Errorf("encode workflow %s: %w", wf.ID, err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO workflows (workflow_id, nodes)
		VALUES ($1, $2)
		ON CONFLICT (workflow_id) DO UPDATE SET nodes = EXCLUDED.nodes`,
		wf.ID, raw)
	if err != nil {
		return fmt.Errorf("save workflow %s: %w", wf.ID, err)
	}
	return nil
}

func (p *Postgres) GetDescription(ctx context.Context, workflowID string) (*workflow.DescriptionVersion, error) {
	var v workflow.DescriptionVersion
	err := p.pool.QueryRow(ctx, `
		SELECT version, text, reason, updated_at FROM workflow_descriptions
		WHERE workflow_id = $1 ORDER BY version DESC LIMIT 1`, workflowID).
		Scan(&v.Version, &v.Text, &v.Reason, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get description: %w", err)
	}
	return &v, nil
}

func (p *Postgres) SetDescription(ctx context.Context, workflowID, text, reason string) (*workflow.DescriptionVersion, error) {
	var nextVersion int
	err := p.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM workflow_descriptions WHERE workflow_id = $1`,
		workflowID).Scan(&nextVersion)
	if err != nil {
		return nil, fmt.Errorf("compute next description version: %w", err)
	}

	now := time.Now()
	_, err = p.pool.Exec(ctx, `
		INSERT INTO workflow_descriptions (workflow_id, version, text, reason, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		workflowID, nextVersion, text, reason, now)
	if err != nil {
		return nil, fmt.Errorf("insert description version: %w", err)
	}

	return &workflow.DescriptionVersion{Version: nextVersion, Text: text, Reason: reason, UpdatedAt: now}, nil
}

func (p *Postgres) GetPlan(ctx context.Context, workflowID string) (*workflow.Plan, error) {
	var plan workflow.Plan
	var phasesRaw []byte
	err := p.pool.QueryRow(ctx, `
		SELECT version, phases, reason, updated_at FROM workflow_plans
		WHERE workflow_id = $1 ORDER BY version DESC LIMIT 1`, workflowID).
		Scan(&plan.Version, &phasesRaw, &plan.Reason, &plan.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	if err := json.Unmarshal(phasesRaw, &plan.Phases); err != nil {
		return nil, fmt.Errorf("decode plan phases: %w", err)
	}
	return &plan, nil
}

func (p *Postgres) AppendPlanVersion(ctx context.Context, workflowID string, plan *workflow.Plan) (*workflow.Plan, error) {
	var nextVersion int
	err := p.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM workflow_plans WHERE workflow_id = $1`,
		workflowID).Scan(&nextVersion)
	if err != nil {
		return nil, fmt.Errorf("compute next plan version: %w", err)
	}

	phasesRaw, err := json.Marshal(plan.Phases)
	if err != nil {
		return nil, fmt.Errorf("encode plan phases: %w", err)
	}

	now := time.Now()
	_, err = p.pool.Exec(ctx, `
		INSERT INTO workflow_plans (workflow_id, version, phases, reason, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		workflowID, nextVersion, phasesRaw, plan.Reason, now)
	if err != nil {
		return nil, fmt.Errorf("insert plan version: %w", err)
	}

	plan.Version = nextVersion
	plan.UpdatedAt = now
	return plan, nil
}

func (p *Postgres) GetBrowserState(ctx context.Context, workflowID string) (*workflow.BrowserState, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `SELECT state FROM workflow_browser_state WHERE workflow_id = $1`, workflowID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return &workflow.BrowserState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get browser state: %w", err)
	}
	var state workflow.BrowserState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode browser state: %w", err)
	}
	return &state, nil
}

func (p *Postgres) SaveBrowserState(ctx context.Context, workflowID string, state *workflow.BrowserState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode browser state: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO workflow_browser_state (workflow_id, state)
		VALUES ($1, $2)
		ON CONFLICT (workflow_id) DO UPDATE SET state = EXCLUDED.state`,
		workflowID, raw)
	if err != nil {
		return fmt.Errorf("save browser state: %w", err)
	}
	return nil
}
