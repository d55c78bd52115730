// Package planner turns raw SQL text into an execution plan and derives
// summary metrics from it. Acquisition is a three-step chain: plan the
// statement directly, retry with a read-only SELECT equivalent, and as a
// last resort synthesize a placeholder so callers always get some plan.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/mickamy/xadvise/internal/engine"
	"github.com/mickamy/xadvise/internal/logging"
	"github.com/mickamy/xadvise/internal/model"
	"github.com/mickamy/xadvise/internal/statement"
)

// Options customises plan acquisition.
type Options struct {
	// DirectDML attempts EXPLAIN on INSERT/UPDATE/DELETE statements as
	// written before falling back to the transpiled SELECT. Disable it
	// for read-only deployments where the engine rejects DML outright.
	DirectDML bool
}

// Controller acquires plans through a PlanSource with fallback handling.
type Controller struct {
	source engine.PlanSource
	opts   Options
}

// New returns a Controller reading plans from the given source.
func New(source engine.PlanSource, opts Options) *Controller {
	return &Controller{source: source, opts: opts}
}

// Acquire obtains a plan for the statement. SELECT and WITH statements
// propagate engine errors since nothing safer can be planned in their
// place; DML statements never do. Utility statements skip the engine.
func (c *Controller) Acquire(ctx context.Context, text string) (*model.Plan, error) {
	kind := statement.Classify(text)

	switch {
	case kind.Plannable():
		root, err := c.source.Plan(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("acquire %s plan: %w", kind, err)
		}
		return &model.Plan{Root: root, Kind: string(kind), Source: model.SourceMeasured}, nil

	case kind.DML():
		return c.acquireDML(ctx, kind, text), nil

	default:
		return utilityPlan(kind), nil
	}
}

func (c *Controller) acquireDML(ctx context.Context, kind statement.Kind, text string) *model.Plan {
	if c.opts.DirectDML {
		root, err := c.source.Plan(ctx, text)
		if err == nil {
			return &model.Plan{Root: root, Kind: string(kind), Source: model.SourceMeasured}
		}
		logging.Debug("direct plan request failed, transpiling", "kind", string(kind), "statement", truncate(text, 100), "error", err)
	}

	rewritten := statement.ToSelect(text)
	if rewritten != text {
		root, err := c.source.Plan(ctx, rewritten)
		if err == nil {
			return &model.Plan{
				Root:          root,
				Kind:          string(kind),
				Source:        model.SourceTranspiled,
				TranspiledSQL: rewritten,
				Note:          fmt.Sprintf("plan generated from SELECT equivalent of %s statement", kind),
			}
		}
		logging.Debug("transpiled plan request failed, synthesizing", "kind", string(kind), "error", err)
	}

	return syntheticPlan(kind, text)
}

// utilityPlan is the zero-cost placeholder for statements that are never
// planned (CREATE/DROP/ALTER, EXPLAIN itself, and unclassified text).
func utilityPlan(kind statement.Kind) *model.Plan {
	return &model.Plan{
		Root:   &model.PlanNode{NodeType: "Utility"},
		Kind:   string(kind),
		Source: model.SourceSynthetic,
		Note:   fmt.Sprintf("utility command: %s", kind),
	}
}

// syntheticPlan is the last-resort placeholder for DML statements the
// engine refused to plan in any form. It carries the statement kind and
// a best-effort table name with a fixed low cost estimate.
func syntheticPlan(kind statement.Kind, text string) *model.Plan {
	table := statement.TableName(text)
	return &model.Plan{
		Root: &model.PlanNode{
			NodeType:     string(kind),
			RelationName: table,
			TotalCost:    1.0,
			PlanRows:     1,
		},
		Kind:   string(kind),
		Source: model.SourceSynthetic,
		Note:   fmt.Sprintf("plan generated without EXPLAIN for %s on %s", kind, table),
	}
}

// truncate shortens statement text for provenance notes and logs.
func truncate(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
