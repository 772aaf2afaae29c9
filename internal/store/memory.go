package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/match"
	"github.com/weavegraph/core/internal/workflow"
)

// Memory is an in-memory Backend, used in unit/scenario tests and as the
// default when no Postgres DSN is configured.
type Memory struct {
	mu sync.RWMutex

	globals     map[string]map[string]any
	records     map[string]map[string]*workflow.Record
	workflows   map[string]*workflow.Workflow
	description map[string][]*workflow.DescriptionVersion
	plans       map[string][]*workflow.Plan
	browser     map[string]*workflow.BrowserState
}

// NewMemory creates a new in-memory store backend.
func NewMemory() *Memory {
	return &Memory{
		globals:     make(map[string]map[string]any),
		records:     make(map[string]map[string]*workflow.Record),
		workflows:   make(map[string]*workflow.Workflow),
		description: make(map[string][]*workflow.DescriptionVersion),
		plans:       make(map[string][]*workflow.Plan),
		browser:     make(map[string]*workflow.BrowserState),
	}
}

func (m *Memory) GetGlobal(_ context.Context, workflowID, key string) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.globals[workflowID]
	if !ok {
		return nil, false, nil
	}
	v, ok := bucket[key]
	return v, ok, nil
}

func (m *Memory) SetGlobal(_ context.Context, workflowID, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.globals[workflowID]
	if !ok {
		bucket = make(map[string]any)
		m.globals[workflowID] = bucket
	}
	bucket[key] = value
	return nil
}

func (m *Memory) DeleteGlobal(_ context.Context, workflowID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bucket, ok := m.globals[workflowID]; ok {
		delete(bucket, key)
	}
	return nil
}

func (m *Memory) ClearAllGlobals(_ context.Context, workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globals[workflowID] = make(map[string]any)
	return nil
}

func (m *Memory) ScanGlobals(_ context.Context, workflowID, prefix string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any)
	bucket, ok := m.globals[workflowID]
	if !ok {
		return out, nil
	}
	for k, v := range bucket {
		if prefix == "" || match.Match(k, prefix+"*") || k == prefix {
			out[k] = v
		}
	}
	return out, nil
}

func (m *Memory) CreateRecord(_ context.Context, workflowID string, record *workflow.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.records[workflowID]
	if !ok {
		bucket = make(map[string]*workflow.Record)
		m.records[workflowID] = bucket
	}
	if _, exists := bucket[record.RecordID]; exists {
		return fmt.Errorf("record already exists: %s", record.RecordID)
	}
	cp := *record
	cp.Data = cloneData(record.Data)
	bucket[record.RecordID] = &cp
	return nil
}

func (m *Memory) GetRecord(_ context.Context, workflowID, recordID string) (*workflow.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.records[workflowID]
	if !ok {
		return nil, false, nil
	}
	rec, ok := bucket[recordID]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	cp.Data = cloneData(rec.Data)
	return &cp, true, nil
}

func (m *Memory) UpdateRecord(_ context.Context, workflowID, recordID, nodeAlias string, fields map[string]any, status *workflow.RecordStatus, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.records[workflowID]
	if !ok {
		return fmt.Errorf("record not found: %s", recordID)
	}
	rec, ok := bucket[recordID]
	if !ok {
		return fmt.Errorf("record not found: %s", recordID)
	}
	if rec.Data == nil {
		rec.Data = make(map[string]map[string]any)
	}
	ns, ok := rec.Data[nodeAlias]
	if !ok {
		ns = make(map[string]any)
		rec.Data[nodeAlias] = ns
	}
	for k, v := range fields {
		ns[k] = v
	}
	if status != nil {
		rec.Status = *status
	}
	if errMsg != nil {
		rec.ErrorMessage = errMsg
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) ListRecords(_ context.Context, workflowID, pattern string) ([]*workflow.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.records[workflowID]
	if !ok {
		return nil, nil
	}
	var out []*workflow.Record
	for id, rec := range bucket {
		if pattern == "" || pattern == "*" || match.Match(id, pattern) {
			cp := *rec
			cp.Data = cloneData(rec.Data)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) GetWorkflow(_ context.Context, workflowID string) (*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow not found: %s", workflowID)
	}
	return wf, nil
}

func (m *Memory) SaveWorkflow(_ context.Context, wf *workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[wf.ID] = wf
	return nil
}

func (m *Memory) GetDescription(_ context.Context, workflowID string) (*workflow.DescriptionVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.description[workflowID]
	if len(versions) == 0 {
		return nil, nil
	}
	return versions[len(versions)-1], nil
}

func (m *Memory) SetDescription(_ context.Context, workflowID, text, reason string) (*workflow.DescriptionVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.description[workflowID]
	v := &workflow.DescriptionVersion{
		Version:   len(versions) + 1,
		Text:      text,
		UpdatedAt: time.Now(),
		Reason:    reason,
	}
	m.description[workflowID] = append(versions, v)
	return v, nil
}

func (m *Memory) GetPlan(_ context.Context, workflowID string) (*workflow.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plans := m.plans[workflowID]
	if len(plans) == 0 {
		return nil, nil
	}
	return plans[len(plans)-1], nil
}

func (m *Memory) AppendPlanVersion(_ context.Context, workflowID string, plan *workflow.Plan) (*workflow.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.plans[workflowID]
	plan.Version = len(existing) + 1
	plan.UpdatedAt = time.Now()
	m.plans[workflowID] = append(existing, plan)
	return plan, nil
}

func (m *Memory) GetBrowserState(_ context.Context, workflowID string) (*workflow.BrowserState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.browser[workflowID]
	if !ok {
		return &workflow.BrowserState{}, nil
	}
	return state, nil
}

func (m *Memory) SaveBrowserState(_ context.Context, workflowID string, state *workflow.BrowserState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.browser[workflowID] = state
	return nil
}

func cloneData(in map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(in))
	for k, v := range in {
		inner := make(map[string]any, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		out[k] = inner
	}
	return out
}
