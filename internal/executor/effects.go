package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/weavegraph/core/internal/apierr"
	"github.com/weavegraph/core/internal/resolver"
	"github.com/weavegraph/core/internal/workflow"
)

// templateVar matches the {{...}} tokens inside an id_pattern. A
// separate, narrower pattern from the resolver package's own
// templatePattern since id patterns only ever substitute against a
// single in-memory element, never the Store.
var templateVar = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// applyPostEffects implements step 4 of spec.md §4.6: config.store,
// config.create_records, and the store_to_record redirection that
// applies inside a record-mode iteration.
func (ex *Executor) applyPostEffects(ctx context.Context, workflowID string, scope resolver.Scope, alias string, config map[string]any, result any) (workflow.Effects, error) {
	var effects workflow.Effects

	currentRecord := currentRecordInScope(scope)
	toRecord := boolField(config, "store_to_record") || (config["store"] != nil && currentRecord != nil)

	if storeSpec, ok := config["store"]; ok && storeSpec != nil {
		values, err := resolveStoreSelection(storeSpec, result)
		if err != nil {
			return effects, apierr.Wrap(apierr.CodeValidationFailed, "resolve config.store", err)
		}
		if toRecord {
			if err := ex.backend.UpdateRecord(ctx, workflowID, currentRecord.RecordID, alias, values, nil, nil); err != nil {
				return effects, apierr.Wrap(apierr.CodeStoreFailure, "write store values to record", err)
			}
			effects.RecordsUpdated = append(effects.RecordsUpdated, currentRecord.RecordID)
		} else {
			if err := ex.mergeGlobalNamespace(ctx, workflowID, alias, values); err != nil {
				return effects, err
			}
			for key := range values {
				effects.VariablesWritten = append(effects.VariablesWritten, alias+"."+key)
			}
		}
	}

	if createSpec, ok := config["create_records"]; ok && createSpec != nil {
		created, updated, err := ex.applyCreateRecords(ctx, workflowID, alias, createSpec, config["store"], result)
		if err != nil {
			return effects, err
		}
		effects.RecordsCreated = append(effects.RecordsCreated, created...)
		effects.RecordsUpdated = append(effects.RecordsUpdated, updated...)
	}

	return effects, nil
}

// currentRecordInScope returns the innermost active record-mode
// iteration binding, or nil outside of one.
func currentRecordInScope(scope resolver.Scope) *workflow.Record {
	for i := len(scope.Bindings) - 1; i >= 0; i-- {
		if scope.Bindings[i].CurrentRecord != nil {
			return scope.Bindings[i].CurrentRecord
		}
	}
	return nil
}

func (ex *Executor) mergeGlobalNamespace(ctx context.Context, workflowID, alias string, values map[string]any) error {
	existing, found, err := ex.backend.GetGlobal(ctx, workflowID, alias)
	if err != nil {
		return apierr.Wrap(apierr.CodeStoreFailure, "read existing namespace", err)
	}
	ns, ok := existing.(map[string]any)
	if !found || !ok {
		ns = make(map[string]any, len(values))
	}
	for k, v := range values {
		ns[k] = v
	}
	if err := ex.backend.SetGlobal(ctx, workflowID, alias, ns); err != nil {
		return apierr.Wrap(apierr.CodeStoreFailure, "write namespace", err)
	}
	return nil
}

// resolveStoreSelection implements the three config.store shapes from
// spec.md §4.6: an explicit {targetKey: sourcePath} map, `true` as
// shorthand for {result: "result"}, and "*" meaning "every scalar/array
// top-level field of the result, stored under its own name".
func resolveStoreSelection(storeSpec any, result any) (map[string]any, error) {
	root := map[string]any{"result": result}

	switch spec := storeSpec.(type) {
	case bool:
		if !spec {
			return map[string]any{}, nil
		}
		return map[string]any{"result": result}, nil
	case string:
		if spec != "*" {
			return nil, fmt.Errorf("unsupported config.store string value: %q", spec)
		}
		obj, ok := result.(map[string]any)
		if !ok {
			return map[string]any{"result": result}, nil
		}
		out := make(map[string]any, len(obj))
		for k, v := range obj {
			switch v.(type) {
			case map[string]any:
				continue
			default:
				out[k] = v
			}
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(spec))
		for targetKey, sourcePathRaw := range spec {
			sourcePath, _ := sourcePathRaw.(string)
			value, err := navigatePlain(root, splitDotPath(sourcePath))
			if err != nil {
				return nil, fmt.Errorf("resolve store target %q: %w", targetKey, err)
			}
			out[targetKey] = value
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported config.store value of type %T", storeSpec)
	}
}

// applyCreateRecords implements spec.md §4.6's create_records effect:
// for each element of an array result, derive a record id from the id
// pattern and upsert a record carrying that element under
// data[alias], optionally filtered by config.store.
func (ex *Executor) applyCreateRecords(ctx context.Context, workflowID, alias string, createSpec any, storeSpec any, result any) (created []string, updated []string, err error) {
	elements, ok := result.([]any)
	if !ok {
		return nil, nil, apierr.New(apierr.CodeValidationFailed, "create_records requires an array result")
	}

	recordType, idPattern := parseCreateRecordsSpec(createSpec)

	for i, element := range elements {
		index := i + 1
		id, err := resolveIDPattern(idPattern, element, index, recordType)
		if err != nil {
			return created, updated, apierr.Wrap(apierr.CodeValidationFailed, "resolve create_records id pattern", err)
		}

		data := element
		if storeSpec != nil {
			filtered, err := resolveStoreSelection(storeSpec, element)
			if err == nil {
				data = filtered
			}
		}
		asMap, ok := data.(map[string]any)
		if !ok {
			asMap = map[string]any{"value": data}
		}

		existing, found, err := ex.backend.GetRecord(ctx, workflowID, id)
		if err != nil {
			return created, updated, apierr.Wrap(apierr.CodeStoreFailure, "lookup record", err)
		}
		if found && existing != nil {
			if err := ex.backend.UpdateRecord(ctx, workflowID, id, alias, asMap, nil, nil); err != nil {
				return created, updated, apierr.Wrap(apierr.CodeStoreFailure, "update record", err)
			}
			updated = append(updated, id)
			continue
		}

		rec := &workflow.Record{
			RecordID:   id,
			RecordType: recordType,
			Data:       map[string]map[string]any{alias: asMap},
			Status:     workflow.RecordDiscovered,
		}
		if err := ex.backend.CreateRecord(ctx, workflowID, rec); err != nil {
			return created, updated, apierr.Wrap(apierr.CodeStoreFailure, "create record", err)
		}
		created = append(created, id)
	}
	return created, updated, nil
}

func parseCreateRecordsSpec(spec any) (recordType, idPattern string) {
	switch v := spec.(type) {
	case string:
		return v, ""
	case map[string]any:
		recordType = stringField(v, "type")
		idPattern = stringField(v, "id_pattern")
		return
	default:
		return "", ""
	}
}

// resolveIDPattern substitutes {{index}} (1-based, zero-padded to width
// 3) and {{field}} references into an element's own fields, defaulting
// to "<type>_{{index}}" when no pattern is given.
func resolveIDPattern(pattern string, element any, index int, recordType string) (string, error) {
	if pattern == "" {
		pattern = recordType + "_{{index}}"
	}
	var outErr error
	result := templateVar.ReplaceAllStringFunc(pattern, func(m string) string {
		token := strings.TrimSpace(m[2 : len(m)-2])
		if token == "index" {
			return fmt.Sprintf("%03d", index)
		}
		value, err := navigatePlain(element, splitDotPath(token))
		if err != nil {
			outErr = err
			return m
		}
		return fmt.Sprint(value)
	})
	if outErr != nil {
		return "", outErr
	}
	return result, nil
}

func splitDotPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// navigatePlain walks a dotted path through nested map[string]any
// values. Used for config.store sourcePaths and create_records id
// patterns, both of which operate on in-memory node results rather than
// the Store, so the full resolver.Resolver machinery doesn't apply.
func navigatePlain(value any, segments []string) (any, error) {
	cur := value
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot navigate %q: not an object", seg)
		}
		v, found := m[seg]
		if !found {
			return nil, fmt.Errorf("missing field %q", seg)
		}
		cur = v
	}
	return cur, nil
}
