// Package workflow holds the core data model: nodes, workflows, records,
// browser state, and execution reports, shared across every other
// package in the engine.
package workflow

import "time"

// NodeType enumerates the node kinds the executor can dispatch.
type NodeType string

const (
	NodeContext       NodeType = "context"
	NodeBrowserAction NodeType = "browser_action"
	NodeBrowserQuery  NodeType = "browser_query"
	NodeBrowserAIExt  NodeType = "browser_ai_extract"
	NodeBrowserAIAct  NodeType = "browser_ai_act"
	NodeCognition     NodeType = "cognition"
	NodeIterate       NodeType = "iterate"
	NodeRoute         NodeType = "route"
	NodeValidation    NodeType = "validation"
)

// Node is a single step in a workflow.
type Node struct {
	Position int            `json:"position"`
	Alias    string         `json:"alias"`
	Type     NodeType       `json:"type"`
	Config   map[string]any `json:"config"`
	Params   map[string]any `json:"params,omitempty"`

	// BodyPositions/BranchPositions are the resolved integer forms of
	// config["body"]/config["routes"][*]["branch"], recomputed by the
	// alias index after every structural edit.
	BodyPositions   []int `json:"body_positions,omitempty"`
	BranchPositions map[string][]int `json:"branch_positions,omitempty"`
}

// Workflow is an ordered sequence of nodes.
type Workflow struct {
	ID    string  `json:"id"`
	Nodes []*Node `json:"nodes"`
}

// RecordStatus is the lifecycle state of a persistent record.
type RecordStatus string

const (
	RecordDiscovered RecordStatus = "discovered"
	RecordProcessing RecordStatus = "processing"
	RecordCompleted  RecordStatus = "completed"
	RecordFailed     RecordStatus = "failed"
)

// Record is a persistent per-entity namespace accumulating fields
// contributed by multiple nodes, each under its own alias sub-namespace.
type Record struct {
	RecordID     string                    `json:"record_id"`
	RecordType   string                    `json:"record_type"`
	Data         map[string]map[string]any `json:"data"`
	Status       RecordStatus              `json:"status"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
	ErrorMessage *string                   `json:"error_message,omitempty"`
}

// NodeStatus is the outcome of executing a single node.
type NodeStatus string

const (
	StatusSuccess   NodeStatus = "success"
	StatusError     NodeStatus = "error"
	StatusSkipped   NodeStatus = "skipped"
	StatusCancelled NodeStatus = "cancelled"
	StatusTimeout   NodeStatus = "timeout"
)

// Effects records the side effects a node execution had on the store.
type Effects struct {
	VariablesWritten []string `json:"variables_written,omitempty"`
	RecordsCreated   []string `json:"records_created,omitempty"`
	RecordsUpdated   []string `json:"records_updated,omitempty"`
}

// NodeResult is the report entry for one executed node.
type NodeResult struct {
	Position   int        `json:"position"`
	Alias      string     `json:"alias"`
	Status     NodeStatus `json:"status"`
	DurationMS int64      `json:"duration_ms"`
	Result     any        `json:"result,omitempty"`
	Error      *string    `json:"error,omitempty"`
	Effects    Effects    `json:"effects"`
}

// ExecutionReport is the full result of one execute_nodes invocation.
type ExecutionReport struct {
	WorkflowID string       `json:"workflow_id"`
	Results    []NodeResult `json:"results"`
	Halted     bool         `json:"halted"`
}

// PlanTaskStatus is the lifecycle state of a plan task.
type PlanTaskStatus string

const (
	TaskPending    PlanTaskStatus = "pending"
	TaskInProgress PlanTaskStatus = "in_progress"
	TaskCompleted  PlanTaskStatus = "completed"
	TaskFailed     PlanTaskStatus = "failed"
)

// PlanTask is one unit of work within a plan phase.
type PlanTask struct {
	Description string         `json:"description"`
	Status      PlanTaskStatus `json:"status"`
	NodeAliases []string       `json:"node_aliases,omitempty"`
}

// PlanPhase groups ordered tasks.
type PlanPhase struct {
	Name  string     `json:"name"`
	Tasks []PlanTask `json:"tasks"`
}

// Plan is a versioned, ordered sequence of phases.
type Plan struct {
	Version   int         `json:"version"`
	Phases    []PlanPhase `json:"phases"`
	UpdatedAt time.Time   `json:"updated_at"`
	Reason    string      `json:"reason,omitempty"`
}

// DescriptionVersion is one version of the workflow's authoritative
// description text.
type DescriptionVersion struct {
	Version   int       `json:"version"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
	Reason    string    `json:"reason,omitempty"`
}

// Tab is one browser tab in a BrowserState snapshot.
type Tab struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	IsActive bool   `json:"is_active"`
}

// BrowserState is the full current browser-state snapshot.
type BrowserState struct {
	Tabs          []Tab  `json:"tabs"`
	ActiveTabName string `json:"active_tab_name"`
}
