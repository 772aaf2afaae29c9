// Package alias implements the Alias Index & Reference Updater: the
// bijection between node aliases and positions, structural-edit target
// resolution, execution-selection parsing, and body/branch re-resolution
// after every edit, grounded on the shape already validated by
// common/validation.PatchValidator in the teacher repo (adapted here to
// validate node-patch operations instead of DAG-patch operations).
package alias

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/weavegraph/core/internal/apierr"
	"github.com/weavegraph/core/internal/workflow"
)

// Index maintains the alias<->position bijection for one workflow's node
// list and applies structural edits to it.
type Index struct {
	nodes           []*workflow.Node
	aliasToPosition map[string]int
	positionToAlias map[int]string
}

// New builds an Index over an existing node list. Nodes are expected to
// already carry a consistent position/alias assignment; Rebuild recomputes
// the maps from scratch.
func New(nodes []*workflow.Node) (*Index, error) {
	idx := &Index{nodes: nodes}
	if err := idx.rebuildMaps(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Nodes returns the current node list in position order.
func (idx *Index) Nodes() []*workflow.Node {
	return idx.nodes
}

func (idx *Index) rebuildMaps() error {
	aliasToPosition := make(map[string]int, len(idx.nodes))
	positionToAlias := make(map[int]string, len(idx.nodes))
	for _, n := range idx.nodes {
		if _, exists := aliasToPosition[n.Alias]; exists {
			return apierr.New(apierr.CodeDuplicateAlias, fmt.Sprintf("duplicate alias: %s", n.Alias))
		}
		aliasToPosition[n.Alias] = n.Position
		positionToAlias[n.Position] = n.Alias
	}
	idx.aliasToPosition = aliasToPosition
	idx.positionToAlias = positionToAlias
	return nil
}

// PositionOf resolves an alias to its current position.
func (idx *Index) PositionOf(alias string) (int, error) {
	pos, ok := idx.aliasToPosition[alias]
	if !ok {
		return 0, apierr.New(apierr.CodeAliasNotFound, fmt.Sprintf("alias not found: %s", alias))
	}
	return pos, nil
}

// AliasOf resolves a position to its current alias.
func (idx *Index) AliasOf(position int) (string, error) {
	a, ok := idx.positionToAlias[position]
	if !ok {
		return "", apierr.New(apierr.CodeAliasNotFound, fmt.Sprintf("no node at position %d", position))
	}
	return a, nil
}

// EditTarget is the resolved form of a structural-edit target
// ("end" | integer | alias | {before,after,replace}), expressed as a slice
// of node-list indices to replace/splice around.
type EditTarget struct {
	// Append is true for "end": insert after the last node.
	Append bool
	// InsertBefore is the index to insert before, set for integer/alias/"before".
	InsertBefore int
	// ReplaceIndices holds the indices to remove when this is a replace edit.
	ReplaceIndices []int
	hasInsert      bool
}

// ResolveTarget resolves a raw structural-edit target value into an EditTarget.
func (idx *Index) ResolveTarget(raw any) (EditTarget, error) {
	switch v := raw.(type) {
	case string:
		if v == "end" {
			return EditTarget{Append: true}, nil
		}
		pos, err := idx.PositionOf(v)
		if err != nil {
			return EditTarget{}, err
		}
		i, err := idx.indexOfPosition(pos)
		if err != nil {
			return EditTarget{}, err
		}
		return EditTarget{InsertBefore: i, hasInsert: true}, nil
	case float64:
		return idx.resolveIntegerTarget(int(v))
	case int:
		return idx.resolveIntegerTarget(v)
	case map[string]any:
		return idx.resolveObjectTarget(v)
	default:
		return EditTarget{}, apierr.New(apierr.CodeInvalidAlias, fmt.Sprintf("invalid edit target: %v", raw))
	}
}

func (idx *Index) resolveIntegerTarget(position int) (EditTarget, error) {
	i, err := idx.indexOfPosition(position)
	if err != nil {
		// Position has no current occupant: treat as an append point at
		// the requested position, matching "insert-at-position" semantics
		// when the list is shorter than the requested position.
		if i = idx.insertionIndexForPosition(position); i >= 0 {
			return EditTarget{InsertBefore: i, hasInsert: true}, nil
		}
		return EditTarget{}, err
	}
	return EditTarget{InsertBefore: i, hasInsert: true}, nil
}

func (idx *Index) resolveObjectTarget(v map[string]any) (EditTarget, error) {
	if before, ok := v["before"]; ok {
		t, err := idx.ResolveTarget(before)
		if err != nil {
			return EditTarget{}, err
		}
		return EditTarget{InsertBefore: t.InsertBefore, hasInsert: true}, nil
	}
	if after, ok := v["after"]; ok {
		t, err := idx.ResolveTarget(after)
		if err != nil {
			return EditTarget{}, err
		}
		return EditTarget{InsertBefore: t.InsertBefore + 1, hasInsert: true}, nil
	}
	if replace, ok := v["replace"]; ok {
		targets, ok := replace.([]any)
		if !ok {
			return EditTarget{}, apierr.New(apierr.CodeInvalidAlias, "replace target must be a list")
		}
		var indices []int
		for _, t := range targets {
			it, err := idx.ResolveTarget(t)
			if err != nil {
				return EditTarget{}, err
			}
			if it.hasInsert {
				indices = append(indices, it.InsertBefore)
			}
		}
		sort.Ints(indices)
		insertAt := 0
		if len(indices) > 0 {
			insertAt = indices[0]
		}
		return EditTarget{InsertBefore: insertAt, hasInsert: true, ReplaceIndices: indices}, nil
	}
	return EditTarget{}, apierr.New(apierr.CodeInvalidAlias, "edit target object must contain before, after, or replace")
}

func (idx *Index) indexOfPosition(position int) (int, error) {
	for i, n := range idx.nodes {
		if n.Position == position {
			return i, nil
		}
	}
	return -1, apierr.New(apierr.CodeAliasNotFound, fmt.Sprintf("no node at position %d", position))
}

func (idx *Index) insertionIndexForPosition(position int) int {
	for i, n := range idx.nodes {
		if n.Position >= position {
			return i
		}
	}
	return len(idx.nodes)
}

// ApplyInsert inserts newNodes at the resolved target, removing any
// ReplaceIndices first, then renumbers positions and rebuilds the index
// via an RFC 6902 patch applied to the JSON-marshaled node list, following
// the patch-application shape in the teacher's PatchValidator/json-patch
// pipeline.
func (idx *Index) ApplyInsert(target EditTarget, newNodes []*workflow.Node) error {
	for _, n := range newNodes {
		if _, exists := idx.aliasToPosition[n.Alias]; exists {
			return apierr.New(apierr.CodeDuplicateAlias, fmt.Sprintf("duplicate alias: %s", n.Alias))
		}
	}

	working := make([]*workflow.Node, len(idx.nodes))
	copy(working, idx.nodes)

	if len(target.ReplaceIndices) > 0 {
		removeSet := make(map[int]bool, len(target.ReplaceIndices))
		for _, i := range target.ReplaceIndices {
			removeSet[i] = true
		}
		var pruned []*workflow.Node
		for i, n := range working {
			if !removeSet[i] {
				pruned = append(pruned, n)
			}
		}
		working = pruned
	}

	insertAt := target.InsertBefore
	if target.Append || insertAt > len(working) {
		insertAt = len(working)
	}
	if insertAt < 0 {
		insertAt = 0
	}

	merged := make([]*workflow.Node, 0, len(working)+len(newNodes))
	merged = append(merged, working[:insertAt]...)
	merged = append(merged, newNodes...)
	merged = append(merged, working[insertAt:]...)

	return idx.applyPatchedList(merged)
}

// ApplyDelete removes the nodes at the given positions.
func (idx *Index) ApplyDelete(positions []int) error {
	remove := make(map[int]bool, len(positions))
	for _, p := range positions {
		remove[p] = true
	}
	var merged []*workflow.Node
	for _, n := range idx.nodes {
		if !remove[n.Position] {
			merged = append(merged, n)
		}
	}
	return idx.applyPatchedList(merged)
}

// applyPatchedList renumbers positions in merged and swaps it in as the
// index's node list via a generated RFC 6902 "replace whole document"
// patch, then rebuilds the alias maps and re-resolves every body/branch.
func (idx *Index) applyPatchedList(merged []*workflow.Node) error {
	for i, n := range merged {
		n.Position = i + 1
	}

	before, err := json.Marshal(idx.nodes)
	if err != nil {
		return fmt.Errorf("marshal current nodes: %w", err)
	}
	after, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal updated nodes: %w", err)
	}

	// The resolved edit (insert/delete/replace at a computed index) is
	// expressed as a single RFC 6902 "replace" op against the whole node
	// array rather than a per-element diff: the renumbering step above
	// already touches every downstream position, so an element-wise
	// patch would degenerate into one replace per node anyway.
	rawPatch := fmt.Sprintf(`[{"op":"replace","path":"","value":%s}]`, after)
	patch, err := jsonpatch.DecodePatch([]byte(rawPatch))
	if err != nil {
		return fmt.Errorf("decode patch: %w", err)
	}
	patched, err := patch.Apply(before)
	if err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}

	var result []*workflow.Node
	if err := json.Unmarshal(patched, &result); err != nil {
		return fmt.Errorf("unmarshal patched nodes: %w", err)
	}

	// Copy the patched values back into the existing node pointers so
	// callers holding a *workflow.Node see the re-resolved positions.
	for i, n := range result {
		*merged[i] = *n
	}
	idx.nodes = merged
	if err := idx.rebuildMaps(); err != nil {
		return err
	}
	return idx.reresolveAll()
}

// ParseSelection parses an execution selection string: comma-separated
// aliases/positions or ranges (alias..alias, n-m), or "all". Results are
// deduped and ordered by position.
func (idx *Index) ParseSelection(selection string) ([]int, error) {
	selection = strings.TrimSpace(selection)
	if selection == "all" {
		positions := make([]int, len(idx.nodes))
		for i, n := range idx.nodes {
			positions[i] = n.Position
		}
		return positions, nil
	}

	seen := make(map[int]bool)
	var positions []int
	add := func(p int) {
		if !seen[p] {
			seen[p] = true
			positions = append(positions, p)
		}
	}

	for _, item := range strings.Split(selection, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "..") {
			parts := strings.SplitN(item, "..", 2)
			start, err := idx.resolveOne(strings.TrimSpace(parts[0]))
			if err != nil {
				return nil, err
			}
			end, err := idx.resolveOne(strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, err
			}
			if end < start {
				return nil, apierr.New(apierr.CodeRangeInvalid, fmt.Sprintf("range end before start: %s", item))
			}
			for p := start; p <= end; p++ {
				if _, ok := idx.positionToAlias[p]; ok {
					add(p)
				}
			}
			continue
		}
		if strings.Contains(item, "-") && isNumericRange(item) {
			parts := strings.SplitN(item, "-", 2)
			start, _ := strconv.Atoi(parts[0])
			end, _ := strconv.Atoi(parts[1])
			if end < start {
				return nil, apierr.New(apierr.CodeRangeInvalid, fmt.Sprintf("range end before start: %s", item))
			}
			for p := start; p <= end; p++ {
				add(p)
			}
			continue
		}
		p, err := idx.resolveOne(item)
		if err != nil {
			return nil, err
		}
		add(p)
	}

	sort.Ints(positions)
	return positions, nil
}

func isNumericRange(s string) bool {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return false
	}
	_, err1 := strconv.Atoi(parts[0])
	_, err2 := strconv.Atoi(parts[1])
	return err1 == nil && err2 == nil
}

func (idx *Index) resolveOne(item string) (int, error) {
	if p, err := strconv.Atoi(item); err == nil {
		if _, ok := idx.positionToAlias[p]; !ok {
			return 0, apierr.New(apierr.CodeAliasNotFound, fmt.Sprintf("no node at position %d", p))
		}
		return p, nil
	}
	return idx.PositionOf(item)
}

// reresolveAll recomputes body_positions/branch_positions for every
// iterate/route node from their symbolic alias forms, satisfying the
// bijection re-resolution invariant after any structural edit.
func (idx *Index) reresolveAll() error {
	for _, n := range idx.nodes {
		switch n.Type {
		case workflow.NodeIterate:
			positions, err := idx.resolveBody(n.Config["body"])
			if err != nil {
				return err
			}
			n.BodyPositions = positions
		case workflow.NodeRoute:
			routes, _ := n.Config["routes"].([]any)
			branchPositions := make(map[string][]int, len(routes))
			for _, r := range routes {
				route, ok := r.(map[string]any)
				if !ok {
					continue
				}
				name, _ := route["name"].(string)
				positions, err := idx.resolveBody(route["branch"])
				if err != nil {
					return err
				}
				branchPositions[name] = positions
			}
			n.BranchPositions = branchPositions
		}
	}
	return nil
}

// resolveBody resolves a body/branch specification (a list mixing
// aliases, positions, and "start..end" ranges) into integer positions.
func (idx *Index) resolveBody(raw any) ([]int, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, nil
	}
	seen := make(map[int]bool)
	var out []int
	add := func(p int) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			if f, ok := item.(float64); ok {
				add(int(f))
			}
			continue
		}
		if strings.Contains(s, "..") {
			parts := strings.SplitN(s, "..", 2)
			start, err := idx.resolveOne(strings.TrimSpace(parts[0]))
			if err != nil {
				return nil, err
			}
			end, err := idx.resolveOne(strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, err
			}
			if end < start {
				return nil, apierr.New(apierr.CodeRangeInvalid, fmt.Sprintf("range end before start: %s", s))
			}
			for p := start; p <= end; p++ {
				if _, ok := idx.positionToAlias[p]; ok {
					add(p)
				}
			}
			continue
		}
		p, err := idx.resolveOne(s)
		if err != nil {
			return nil, err
		}
		add(p)
	}
	return out, nil
}
