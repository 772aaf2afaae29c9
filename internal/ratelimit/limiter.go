// Package ratelimit protects the AI collaborator and browser fleet from
// runaway automation loops: a workflow whose nodes call cognition or
// AI-browser actions heavily gets a tighter per-minute execute_nodes
// budget than one that only clicks and scrapes. Grounded on the
// teacher's common/ratelimit package (tiered Redis-backed limits keyed
// by complexity) and common/ratelimit/workflow_inspector.go (complexity
// classification by node type), adapted in two ways: the teacher's
// Lua-script limiter (common/ratelimit/limiter.go) embeds a
// rate_limit.lua file this lineage never carried, so the window counter
// here is a plain INCR+PEXPIRE fixed window instead; and the tier
// classifier counts this engine's AI-calling node types (cognition,
// browser_ai_extract, browser_ai_act) in place of the teacher's "agent"
// node type.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/weavegraph/core/internal/workflow"
)

// Tier is the rate-limit bucket a workflow falls into based on how many
// AI-calling nodes it contains.
type Tier string

const (
	TierSimple   Tier = "simple"   // no AI-calling nodes
	TierStandard Tier = "standard" // 1-2 AI-calling nodes
	TierHeavy    Tier = "heavy"    // 3+ AI-calling nodes
)

// tierConfig is the per-tier execute_nodes budget, one minute window.
var tierConfig = map[Tier]int64{
	TierSimple:   100,
	TierStandard: 20,
	TierHeavy:    5,
}

// ClassifyTier inspects nodes and returns the tier execute_nodes should
// be limited against.
func ClassifyTier(nodes []*workflow.Node) Tier {
	aiCalls := 0
	for _, n := range nodes {
		switch n.Type {
		case workflow.NodeCognition, workflow.NodeBrowserAIExt, workflow.NodeBrowserAIAct:
			aiCalls++
		}
	}
	switch {
	case aiCalls == 0:
		return TierSimple
	case aiCalls <= 2:
		return TierStandard
	default:
		return TierHeavy
	}
}

// Result is the outcome of a limit check.
type Result struct {
	Allowed           bool
	Limit             int64
	CurrentCount      int64
	RetryAfterSeconds int64
}

// Limiter enforces per-workflow, tiered execute_nodes budgets in Redis.
// Nil-safe: a Limiter built with a nil client always allows, matching
// single-instance dev setups that skip Redis entirely.
type Limiter struct {
	rdb *redis.Client
}

// New creates a Limiter. rdb may be nil.
func New(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// CheckExecute enforces workflowID's tiered budget, keyed by tier so a
// heavy workflow's limit isn't shared with (or starved by) a simple one.
func (l *Limiter) CheckExecute(ctx context.Context, workflowID string, tier Tier) (*Result, error) {
	if l.rdb == nil {
		return &Result{Allowed: true}, nil
	}

	limit := tierConfig[tier]
	window := time.Minute
	key := fmt.Sprintf("weavegraph:ratelimit:execute:%s:%s", workflowID, tier)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.rdb.PExpire(ctx, key, window).Err(); err != nil {
			return nil, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	if count > limit {
		ttl, err := l.rdb.PTTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = window
		}
		return &Result{Allowed: false, Limit: limit, CurrentCount: count, RetryAfterSeconds: int64(ttl / time.Second)}, nil
	}
	return &Result{Allowed: true, Limit: limit, CurrentCount: count}, nil
}
