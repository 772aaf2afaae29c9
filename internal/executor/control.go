package executor

import (
	"context"
	"fmt"

	"github.com/weavegraph/core/internal/apierr"
	"github.com/weavegraph/core/internal/resolver"
	"github.com/weavegraph/core/internal/workflow"
)

const onErrorContinue = "continue"

func withBinding(scope resolver.Scope, binding resolver.IterationBinding) resolver.Scope {
	bindings := make([]resolver.IterationBinding, len(scope.Bindings)+1)
	copy(bindings, scope.Bindings)
	bindings[len(scope.Bindings)] = binding
	return resolver.Scope{WorkflowID: scope.WorkflowID, Bindings: bindings}
}

type iterationReport struct {
	Index   int                   `json:"index"`
	Status  workflow.NodeStatus   `json:"status"`
	Results []workflow.NodeResult `json:"results"`
}

// handleIterate dispatches to single-context or record-mode iteration
// depending on which of over/over_records is present, per spec.md
// §4.6's iterate semantics.
func (ex *Executor) handleIterate(ctx context.Context, rs *runState, scope resolver.Scope, node *workflow.Node, config map[string]any) (any, error) {
	onError := stringField(config, "on_error")

	if _, ok := config["over_records"]; ok {
		return ex.iterateRecords(ctx, rs, scope, node, config, onError)
	}
	return ex.iterateSingleContext(ctx, rs, scope, node, config, onError)
}

func (ex *Executor) iterateSingleContext(ctx context.Context, rs *runState, scope resolver.Scope, node *workflow.Node, config map[string]any, onError string) (any, error) {
	elements, ok := config["over"].([]any)
	if !ok {
		return nil, apierr.New(apierr.CodeValidationFailed, "iterate.over did not resolve to an array")
	}
	variable := stringField(config, "variable")
	total := len(elements)

	var reports []iterationReport
	for i, element := range elements {
		if err := ctx.Err(); err != nil {
			return reports, apierr.Wrap(apierr.CodeCancelled, "iteration cancelled", err)
		}
		iterScope := withBinding(scope, resolver.IterationBinding{Name: variable, Value: element, Index: i, Total: total})
		results, halted := ex.runSequence(ctx, rs, iterScope, node.BodyPositions)

		status := workflow.StatusSuccess
		if halted {
			status = workflow.StatusError
		}
		reports = append(reports, iterationReport{Index: i, Status: status, Results: results})

		if halted && onError != onErrorContinue {
			return reports, apierr.New(apierr.CodeValidationFailed, fmt.Sprintf("iteration %d failed", i))
		}
	}
	return reports, nil
}

func (ex *Executor) iterateRecords(ctx context.Context, rs *runState, scope resolver.Scope, node *workflow.Node, config map[string]any, onError string) (any, error) {
	pattern := stringField(config, "over_records")
	records, err := ex.backend.ListRecords(ctx, rs.workflowID, pattern)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStoreFailure, "list records for iteration", err)
	}
	total := len(records)

	var reports []iterationReport
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return reports, apierr.Wrap(apierr.CodeCancelled, "iteration cancelled", err)
		}
		iterScope := withBinding(scope, resolver.IterationBinding{CurrentRecord: rec, CurrentIndex: i, CurrentTotal: total})
		results, halted := ex.runSequence(ctx, rs, iterScope, node.BodyPositions)

		status := workflow.StatusSuccess
		if halted {
			status = workflow.StatusError
		}
		reports = append(reports, iterationReport{Index: i, Status: status, Results: results})

		if halted && onError != onErrorContinue {
			return reports, apierr.New(apierr.CodeValidationFailed, fmt.Sprintf("iteration over record %s failed", rec.RecordID))
		}
	}
	return reports, nil
}

// handleRoute dispatches to single or collection route mode. Both modes
// share the node's Config map; collection mode is distinguished by
// config.mode == "collection" (or the presence of config.over), single
// mode otherwise reads config.routes as the ordered condition list.
func (ex *Executor) handleRoute(ctx context.Context, rs *runState, scope resolver.Scope, node *workflow.Node, config map[string]any) (any, error) {
	if stringField(config, "mode") == "collection" || config["over"] != nil {
		return ex.routeCollection(ctx, rs, scope, node, config)
	}
	return ex.routeSingle(ctx, rs, scope, node, config)
}

func (ex *Executor) routeSingle(ctx context.Context, rs *runState, scope resolver.Scope, node *workflow.Node, config map[string]any) (any, error) {
	routes, _ := config["routes"].([]any)
	for _, raw := range routes {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := stringField(entry, "name")
		matched, err := ex.evaluator.Evaluate(ctx, ex.resolver, scope, stringField(entry, "condition"))
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeValidationFailed, fmt.Sprintf("evaluate route %q condition", name), err)
		}
		if !matched {
			continue
		}
		results, halted := ex.runSequence(ctx, rs, scope, node.BranchPositions[name])
		if halted {
			return results, apierr.New(apierr.CodeValidationFailed, fmt.Sprintf("route %q branch failed", name))
		}
		return map[string]any{"matched": name, "results": results}, nil
	}
	return nil, apierr.New(apierr.CodeValidationFailed, "no route condition matched")
}

func (ex *Executor) routeCollection(ctx context.Context, rs *runState, scope resolver.Scope, node *workflow.Node, config map[string]any) (any, error) {
	pattern := stringField(config, "over")
	routes, _ := config["routes"].([]any)

	records, err := ex.backend.ListRecords(ctx, rs.workflowID, pattern)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStoreFailure, "list records for route", err)
	}

	partition := make(map[string][]string)
	for _, rec := range records {
		recScope := withBinding(scope, resolver.IterationBinding{CurrentRecord: rec})
		for _, raw := range routes {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name := stringField(entry, "name")
			matched, err := ex.evaluator.Evaluate(ctx, ex.resolver, recScope, stringField(entry, "condition"))
			if err != nil {
				return nil, apierr.Wrap(apierr.CodeValidationFailed, fmt.Sprintf("evaluate route %q condition", name), err)
			}
			if matched {
				partition[name] = append(partition[name], rec.RecordID)
				break
			}
		}
	}

	// {{route.<name>}} is exposed only as an iteration-style binding
	// scoped to this node's own branch execution, not written to the
	// Store — its lifetime matches iterate's bindings, discarded once
	// the route node completes (see DESIGN.md Open Question #2).
	routePartition := make(map[string]any, len(partition))
	for name, ids := range partition {
		idsAny := make([]any, len(ids))
		for i, id := range ids {
			idsAny[i] = id
		}
		routePartition[name] = idsAny
	}
	branchScope := withBinding(scope, resolver.IterationBinding{Name: "route", Value: routePartition})

	branchResults := make(map[string][]workflow.NodeResult, len(routes))
	for _, raw := range routes {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := stringField(entry, "name")
		if len(partition[name]) == 0 {
			continue
		}
		results, halted := ex.runSequence(ctx, rs, branchScope, node.BranchPositions[name])
		branchResults[name] = results
		if halted {
			return map[string]any{"partition": partition, "branch_results": branchResults}, apierr.New(apierr.CodeValidationFailed, fmt.Sprintf("route %q branch failed", name))
		}
	}

	return map[string]any{"partition": partition, "branch_results": branchResults}, nil
}
