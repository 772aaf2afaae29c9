// Package executor implements the Node Executor: the per-node pipeline
// of reference resolution, template resolution, dispatch-by-type, and
// post-execution store effects, plus the stop-on-error sequencing that
// drives execute_nodes. Structurally this is the engine's analog of the
// teacher's cmd/workflow-runner/coordinator.Coordinator — a central
// dispatcher holding every collaborator the per-node pipeline needs —
// generalized from the teacher's choreography-over-Redis-streams model
// (publish a token, wait for a completion signal) to direct in-process
// calls, since this engine runs one workflow's nodes cooperatively on a
// single goroutine rather than fanning work out to worker pools.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/weavegraph/core/internal/ai"
	"github.com/weavegraph/core/internal/apierr"
	"github.com/weavegraph/core/internal/browser"
	"github.com/weavegraph/core/internal/condition"
	"github.com/weavegraph/core/internal/logger"
	"github.com/weavegraph/core/internal/observability"
	"github.com/weavegraph/core/internal/resolver"
	"github.com/weavegraph/core/internal/schema"
	"github.com/weavegraph/core/internal/store"
	"github.com/weavegraph/core/internal/workflow"
)

// Executor runs nodes against a set of collaborators. bootstrap's
// Components.ExecutorFor builds an Executor for one workflow, bound to
// that workflow's browser Session, with the other collaborators shared;
// all per-execution state (node lookups, iteration bindings) is threaded
// through call parameters rather than held on the struct.
type Executor struct {
	backend   store.Backend
	resolver  *resolver.Resolver
	validator *schema.Validator
	evaluator *condition.Evaluator
	browser   *browser.Session
	generator ai.TextGenerator
	metrics   *observability.Metrics
	log       *logger.Logger
}

// New creates an Executor. browserSession/generator may be nil in
// contexts that never dispatch browser or AI nodes (unit tests of
// context/validation-only workflows); dispatching to a type that needs
// a nil collaborator returns a node error rather than panicking.
func New(backend store.Backend, res *resolver.Resolver, validator *schema.Validator, evaluator *condition.Evaluator, browserSession *browser.Session, generator ai.TextGenerator, metrics *observability.Metrics, log *logger.Logger) *Executor {
	return &Executor{
		backend:   backend,
		resolver:  res,
		validator: validator,
		evaluator: evaluator,
		browser:   browserSession,
		generator: generator,
		metrics:   metrics,
		log:       log,
	}
}

// runState is the read-only context threaded through one execute_nodes
// invocation: the full node table (for resolving iterate/route bodies
// that reference positions outside the top-level selection) and the
// workflow ID the resolver/store calls need.
type runState struct {
	workflowID string
	nodes      map[int]*workflow.Node
}

func (rs *runState) nodeAt(position int) (*workflow.Node, error) {
	n, ok := rs.nodes[position]
	if !ok {
		return nil, apierr.New(apierr.CodeAliasNotFound, fmt.Sprintf("no node at position %d", position))
	}
	return n, nil
}

// ExecuteNodes runs the resolved selection against allNodes in order,
// halting on the first node that reports status error per spec.md §4.6
// "Stop-on-error": remaining selected nodes are marked skipped and the
// partial report is returned (not an error — a halted report is a
// normal, successful call to execute_nodes).
func (ex *Executor) ExecuteNodes(ctx context.Context, workflowID string, allNodes []*workflow.Node, selection []int) (*workflow.ExecutionReport, error) {
	rs := &runState{workflowID: workflowID, nodes: make(map[int]*workflow.Node, len(allNodes))}
	for _, n := range allNodes {
		rs.nodes[n.Position] = n
	}

	scope := resolver.Scope{WorkflowID: workflowID}
	results, halted := ex.runSequence(ctx, rs, scope, selection)

	return &workflow.ExecutionReport{
		WorkflowID: workflowID,
		Results:    results,
		Halted:     halted,
	}, nil
}

// runSequence executes positions in program order, stopping at the
// first error/cancelled/timeout result and marking the remainder
// skipped. Used both for the top-level selection and for iterate/route
// branch bodies, which share the identical stop-on-error contract.
func (ex *Executor) runSequence(ctx context.Context, rs *runState, scope resolver.Scope, positions []int) ([]workflow.NodeResult, bool) {
	results := make([]workflow.NodeResult, 0, len(positions))
	halted := false

	for i, pos := range positions {
		if halted {
			results = append(results, ex.skippedResult(rs, pos))
			continue
		}

		node, err := rs.nodeAt(pos)
		if err != nil {
			results = append(results, workflow.NodeResult{
				Position: pos,
				Status:   workflow.StatusError,
				Error:    strPtr(err.Error()),
			})
			halted = true
			ex.markRemainingSkipped(rs, positions[i+1:], &results)
			continue
		}

		result := ex.executeOne(ctx, rs, scope, node)
		results = append(results, result)

		switch result.Status {
		case workflow.StatusSuccess, workflow.StatusSkipped:
			// keep going
		default:
			halted = true
		}
	}
	return results, halted
}

func (ex *Executor) markRemainingSkipped(rs *runState, rest []int, into *[]workflow.NodeResult) {
	for _, pos := range rest {
		*into = append(*into, ex.skippedResult(rs, pos))
	}
}

func (ex *Executor) skippedResult(rs *runState, pos int) workflow.NodeResult {
	alias := ""
	if n, err := rs.nodeAt(pos); err == nil {
		alias = n.Alias
	}
	return workflow.NodeResult{Position: pos, Alias: alias, Status: workflow.StatusSkipped}
}

// executeOne runs the full per-node pipeline from spec.md §4.6: resolve
// templates, dispatch by type, apply post-execution store effects,
// report.
func (ex *Executor) executeOne(ctx context.Context, rs *runState, scope resolver.Scope, node *workflow.Node) workflow.NodeResult {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return ex.contextErrResult(node, start, err)
	}

	result := workflow.NodeResult{Position: node.Position, Alias: node.Alias}

	resolvedParams, err := ex.resolver.ResolveMap(ctx, scope, node.Params, true)
	if err != nil {
		return ex.failResult(node, start, wrapResolution(err))
	}
	resolvedConfig, err := ex.resolver.ResolveMap(ctx, scope, node.Config, true)
	if err != nil {
		return ex.failResult(node, start, wrapResolution(err))
	}

	value, dispatchErr := ex.dispatch(ctx, rs, scope, node, resolvedParams, resolvedConfig)
	if dispatchErr != nil {
		return ex.failResult(node, start, dispatchErr)
	}

	effects, err := ex.applyPostEffects(ctx, rs.workflowID, scope, node.Alias, resolvedConfig, value)
	if err != nil {
		return ex.failResult(node, start, err)
	}

	result.Status = workflow.StatusSuccess
	result.Result = value
	result.Effects = effects
	result.DurationMS = time.Since(start).Milliseconds()
	ex.observe(node, result)
	return result
}

func (ex *Executor) contextErrResult(node *workflow.Node, start time.Time, err error) workflow.NodeResult {
	status := workflow.StatusCancelled
	if err == context.DeadlineExceeded {
		status = workflow.StatusTimeout
	}
	r := workflow.NodeResult{
		Position:   node.Position,
		Alias:      node.Alias,
		Status:     status,
		DurationMS: time.Since(start).Milliseconds(),
		Error:      strPtr(err.Error()),
	}
	ex.observe(node, r)
	return r
}

func (ex *Executor) failResult(node *workflow.Node, start time.Time, err error) workflow.NodeResult {
	status := workflow.StatusError
	if apiErr, ok := err.(*apierr.Error); ok {
		switch apiErr.ErrCode {
		case apierr.CodeCancelled:
			status = workflow.StatusCancelled
		case apierr.CodeTimeout:
			status = workflow.StatusTimeout
		}
		apiErr.WithNode(node.Alias, node.Position)
	}
	r := workflow.NodeResult{
		Position:   node.Position,
		Alias:      node.Alias,
		Status:     status,
		DurationMS: time.Since(start).Milliseconds(),
		Error:      strPtr(err.Error()),
	}
	ex.observe(node, r)
	return r
}

func (ex *Executor) observe(node *workflow.Node, r workflow.NodeResult) {
	if ex.metrics == nil {
		return
	}
	ex.metrics.NodesExecuted.WithLabelValues(string(node.Type), string(r.Status)).Inc()
	ex.metrics.NodeDuration.WithLabelValues(string(node.Type)).Observe(float64(r.DurationMS) / 1000)
}

func wrapResolution(err error) error {
	return apierr.Wrap(apierr.CodeUnresolvedPath, err.Error(), err)
}

func strPtr(s string) *string { return &s }

// dispatch routes a resolved node to its per-type handler.
func (ex *Executor) dispatch(ctx context.Context, rs *runState, scope resolver.Scope, node *workflow.Node, params, config map[string]any) (any, error) {
	switch node.Type {
	case workflow.NodeContext:
		return ex.handleContext(ctx, rs.workflowID, config)
	case workflow.NodeBrowserAction:
		return ex.handleBrowserAction(ctx, config)
	case workflow.NodeBrowserQuery:
		return ex.handleBrowserQuery(ctx, config)
	case workflow.NodeBrowserAIExt:
		return ex.handleBrowserAIExtract(ctx, config)
	case workflow.NodeBrowserAIAct:
		return ex.handleBrowserAIAct(ctx, config)
	case workflow.NodeCognition:
		return ex.handleCognition(ctx, params, config)
	case workflow.NodeValidation:
		return ex.handleValidation(ctx, scope, config)
	case workflow.NodeIterate:
		return ex.handleIterate(ctx, rs, scope, node, config)
	case workflow.NodeRoute:
		return ex.handleRoute(ctx, rs, scope, node, config)
	default:
		return nil, apierr.New(apierr.CodeValidationFailed, fmt.Sprintf("unknown node type: %s", node.Type))
	}
}

// handleContext writes config.variables into the global store with no
// namespacing, per spec.md §4.6.
func (ex *Executor) handleContext(ctx context.Context, workflowID string, config map[string]any) (any, error) {
	vars, _ := config["variables"].(map[string]any)
	for key, value := range vars {
		if err := ex.backend.SetGlobal(ctx, workflowID, key, value); err != nil {
			return nil, apierr.Wrap(apierr.CodeStoreFailure, "write context variable", err)
		}
	}
	return vars, nil
}

func (ex *Executor) requireBrowser() error {
	if ex.browser == nil {
		return apierr.New(apierr.CodeSelectorFailed, "no browser session available")
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// handleBrowserAction dispatches one deterministic browser op.
func (ex *Executor) handleBrowserAction(ctx context.Context, config map[string]any) (any, error) {
	if err := ex.requireBrowser(); err != nil {
		return nil, err
	}
	op := stringField(config, "action")
	tab := stringField(config, "tabName")

	switch op {
	case "navigate":
		validate := true
		if v, ok := config["validateLanding"]; ok {
			validate, _ = v.(bool)
		}
		return nil, ex.browser.Navigate(ctx, stringField(config, "url"), tab, validate)
	case "click":
		validate := boolField(config, "validateProgress")
		if coords, ok := config["coords"].(map[string]any); ok {
			return nil, ex.browser.ClickAt(ctx, floatField(coords, "x"), floatField(coords, "y"), tab, validate)
		}
		return nil, ex.browser.Click(ctx, stringField(config, "selector"), tab, validate)
	case "type":
		validate := boolField(config, "validateProgress")
		return nil, ex.browser.Type(ctx, stringField(config, "selector"), stringField(config, "text"), tab, validate)
	case "keypress":
		return nil, ex.browser.Keypress(ctx, stringField(config, "key"), tab)
	case "wait":
		return nil, ex.browser.Wait(ctx, stringField(config, "selector"), intField(config, "ms"), tab)
	case "open_tab":
		return nil, ex.browser.OpenTab(ctx, stringField(config, "name"), stringField(config, "url"))
	case "close_tab":
		return nil, ex.browser.CloseTab(ctx, stringField(config, "name"))
	case "switch_tab":
		return nil, ex.browser.SwitchTab(ctx, stringField(config, "name"))
	case "back":
		return nil, ex.browser.Back(ctx, tab)
	case "forward":
		return nil, ex.browser.Forward(ctx, tab)
	case "reload":
		return nil, ex.browser.Reload(ctx, tab)
	case "screenshot":
		data, err := ex.browser.Screenshot(ctx, tab, boolField(config, "fullPage"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"bytes": len(data)}, nil
	default:
		return nil, apierr.New(apierr.CodeValidationFailed, fmt.Sprintf("unknown browser_action action: %s", op))
	}
}

// handleBrowserQuery dispatches one deterministic query op.
func (ex *Executor) handleBrowserQuery(ctx context.Context, config map[string]any) (any, error) {
	if err := ex.requireBrowser(); err != nil {
		return nil, err
	}
	op := stringField(config, "query")
	tab := stringField(config, "tabName")
	selector := stringField(config, "selector")

	switch op {
	case "extract":
		fields, _ := config["fields"].(map[string]any)
		strFields := make(map[string]string, len(fields))
		for k, v := range fields {
			strFields[k] = fmt.Sprint(v)
		}
		return ex.browser.DeterministicExtract(ctx, selector, strFields, tab)
	case "exists", "absent", "count":
		return ex.browser.Query(ctx, selector, op, tab)
	default:
		return nil, apierr.New(apierr.CodeValidationFailed, fmt.Sprintf("unknown browser_query query: %s", op))
	}
}

// handleBrowserAIExtract runs a single AI-backed extraction and pipes
// the result through the Schema Validator, per spec.md §4.6.
func (ex *Executor) handleBrowserAIExtract(ctx context.Context, config map[string]any) (any, error) {
	if err := ex.requireBrowser(); err != nil {
		return nil, err
	}
	schemaDoc, _ := config["schema"].(map[string]any)
	if schemaDoc == nil {
		return nil, apierr.New(apierr.CodeValidationFailed, "browser_ai_extract requires a schema")
	}
	raw, err := ex.browser.Extract(ctx, stringField(config, "instruction"), schemaDoc, stringField(config, "tabName"))
	if err != nil {
		return nil, err
	}
	return ex.validateAgainstSchema(schemaDoc, raw)
}

// handleBrowserAIAct performs a single natural-language browser action.
func (ex *Executor) handleBrowserAIAct(ctx context.Context, config map[string]any) (any, error) {
	if err := ex.requireBrowser(); err != nil {
		return nil, err
	}
	return nil, ex.browser.Act(ctx, stringField(config, "instruction"), stringField(config, "tabName"))
}

// handleCognition calls the text generator directly (not through the
// browser session, since cognition nodes have no page context).
func (ex *Executor) handleCognition(ctx context.Context, params, config map[string]any) (any, error) {
	if ex.generator == nil {
		return nil, apierr.New(apierr.CodeValidationFailed, "no AI collaborator available")
	}
	instruction := stringField(config, "instruction")
	inputs, ok := config["inputs"].(map[string]any)
	if !ok {
		inputs = params
	}
	schemaDoc, _ := config["schema"].(map[string]any)

	raw, err := ex.generator.Generate(ctx, instruction, inputs, schemaDoc)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeAISchemaViolation, "cognition call failed", err)
	}
	if schemaDoc == nil {
		return raw, nil
	}
	return ex.validateAgainstSchema(schemaDoc, raw)
}

func (ex *Executor) validateAgainstSchema(schemaDoc map[string]any, raw any) (any, error) {
	value, err := ex.validator.Validate(schemaDoc, raw)
	if err != nil {
		if verr, ok := err.(*schema.ValidationError); ok {
			return nil, apierr.New(apierr.CodeValidationFailed, verr.Error()).WithDetails(map[string]any{
				"issues":    verr.Issues,
				"coercions": verr.Coercions,
				"received":  verr.Received,
			})
		}
		return nil, apierr.Wrap(apierr.CodeValidationFailed, "schema validation error", err)
	}
	return value, nil
}

// handleValidation evaluates every rule and fails the node if any rule
// fails, per spec.md §4.6.
func (ex *Executor) handleValidation(ctx context.Context, scope resolver.Scope, config map[string]any) (any, error) {
	rulesRaw, _ := config["rules"].([]any)
	results := make([]map[string]any, 0, len(rulesRaw))
	var failures []string

	for i, r := range rulesRaw {
		rule, ok := r.(map[string]any)
		if !ok {
			continue
		}
		ruleType := stringField(rule, "type")
		ok, detail, err := ex.evaluateRule(ctx, scope, ruleType, rule)
		if err != nil {
			return nil, err
		}
		results = append(results, map[string]any{"type": ruleType, "passed": ok, "detail": detail})
		if !ok {
			failures = append(failures, fmt.Sprintf("rule %d (%s): %s", i, ruleType, detail))
		}
	}

	if len(failures) > 0 {
		return results, apierr.New(apierr.CodeValidationFailed, strings.Join(failures, "; "))
	}
	return results, nil
}

func (ex *Executor) evaluateRule(ctx context.Context, scope resolver.Scope, ruleType string, rule map[string]any) (bool, string, error) {
	switch ruleType {
	case "element_exists":
		if err := ex.requireBrowser(); err != nil {
			return false, "", err
		}
		exists, err := ex.browser.Query(ctx, stringField(rule, "selector"), "exists", stringField(rule, "tabName"))
		if err != nil {
			return false, "", err
		}
		ok, _ := exists.(bool)
		return ok, fmt.Sprintf("selector %q exists=%v", stringField(rule, "selector"), ok), nil
	case "element_absent":
		if err := ex.requireBrowser(); err != nil {
			return false, "", err
		}
		absent, err := ex.browser.Query(ctx, stringField(rule, "selector"), "absent", stringField(rule, "tabName"))
		if err != nil {
			return false, "", err
		}
		ok, _ := absent.(bool)
		return ok, fmt.Sprintf("selector %q absent=%v", stringField(rule, "selector"), ok), nil
	case "ai_assessment":
		if ex.generator == nil {
			return false, "", apierr.New(apierr.CodeValidationFailed, "no AI collaborator available")
		}
		schemaDoc := map[string]any{"type": "object", "properties": map[string]any{"passed": map[string]any{"type": "boolean"}}, "required": []any{"passed"}}
		raw, err := ex.generator.Generate(ctx, stringField(rule, "instruction"), nil, schemaDoc)
		if err != nil {
			return false, "", apierr.Wrap(apierr.CodeAISchemaViolation, "ai_assessment call failed", err)
		}
		value, err := ex.validateAgainstSchema(schemaDoc, raw)
		if err != nil {
			return false, "", err
		}
		asMap, _ := value.(map[string]any)
		passed, _ := asMap["passed"].(bool)
		return passed, fmt.Sprintf("assessment: %v", asMap), nil
	default:
		return false, "", apierr.New(apierr.CodeValidationFailed, fmt.Sprintf("unknown validation rule type: %s", ruleType))
	}
}
