// Package diff compares two execution plans and reports which operators
// got cheaper or more expensive.
package diff

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mickamy/xadvise/internal/model"
)

// Options configures the diff sensitivity.
type Options struct {
	MinCostDelta     float64
	MinPercentChange float64
	MaxItems         int
}

// Report summarises the delta between two plans.
type Report struct {
	Summary      SummaryDiff `json:"summary"`
	Regressions  []Entry     `json:"regressions"`
	Improvements []Entry     `json:"improvements"`
	Options      Options     `json:"-"`
}

// SummaryDiff covers high-level plan differences.
type SummaryDiff struct {
	BaseTotalCost   float64 `json:"base_total_cost"`
	TargetTotalCost float64 `json:"target_total_cost"`
	DeltaTotalCost  float64 `json:"delta_total_cost"`
	PercentCost     float64 `json:"percent_cost"`
	BaseRows        float64 `json:"base_rows"`
	TargetRows      float64 `json:"target_rows"`
}

// Entry captures the delta for all nodes sharing one signature.
type Entry struct {
	Signature     string  `json:"signature"`
	BaseCost      float64 `json:"base_cost"`
	TargetCost    float64 `json:"target_cost"`
	DeltaCost     float64 `json:"delta_cost"`
	PercentChange float64 `json:"percent_change"`
	BaseRows      float64 `json:"base_rows"`
	TargetRows    float64 `json:"target_rows"`
}

// Compare builds a diff report for two plans.
func Compare(base, target *model.Plan, opts Options) (*Report, error) {
	if base == nil || base.Root == nil {
		return nil, fmt.Errorf("diff: base plan missing")
	}
	if target == nil || target.Root == nil {
		return nil, fmt.Errorf("diff: target plan missing")
	}

	opts = applyDefaults(opts)

	baseAgg := aggregate(base.Root)
	targetAgg := aggregate(target.Root)

	var regressions, improvements []Entry
	for _, sig := range unionKeys(baseAgg, targetAgg) {
		entry := buildEntry(sig, baseAgg[sig], targetAgg[sig])
		if passesRegression(entry, opts) {
			regressions = append(regressions, entry)
		} else if passesImprovement(entry, opts) {
			improvements = append(improvements, entry)
		}
	}

	sort.Slice(regressions, func(i, j int) bool {
		return regressions[i].DeltaCost > regressions[j].DeltaCost
	})
	sort.Slice(improvements, func(i, j int) bool {
		return improvements[i].DeltaCost < improvements[j].DeltaCost
	})

	if opts.MaxItems > 0 {
		if len(regressions) > opts.MaxItems {
			regressions = regressions[:opts.MaxItems]
		}
		if len(improvements) > opts.MaxItems {
			improvements = improvements[:opts.MaxItems]
		}
	}

	return &Report{
		Summary: SummaryDiff{
			BaseTotalCost:   base.Root.TotalCost,
			TargetTotalCost: target.Root.TotalCost,
			DeltaTotalCost:  target.Root.TotalCost - base.Root.TotalCost,
			PercentCost:     percentChange(base.Root.TotalCost, target.Root.TotalCost),
			BaseRows:        base.Root.PlanRows,
			TargetRows:      target.Root.PlanRows,
		},
		Regressions:  regressions,
		Improvements: improvements,
		Options:      opts,
	}, nil
}

// Markdown renders the report as a Markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# plan diff\n\n")
	b.WriteString("## Summary\n")
	_, _ = fmt.Fprintf(&b, "- Total cost: %.2f → %.2f (%+.2f, %+.1f%%)\n",
		r.Summary.BaseTotalCost, r.Summary.TargetTotalCost,
		r.Summary.DeltaTotalCost, r.Summary.PercentCost)
	_, _ = fmt.Fprintf(&b, "- Estimated rows: %.0f → %.0f\n\n",
		r.Summary.BaseRows, r.Summary.TargetRows)

	writeSection(&b, "Regressions", r.Regressions)
	writeSection(&b, "Improvements", r.Improvements)
	return b.String()
}

// JSON marshals the diff report into an indented JSON document.
func (r *Report) JSON() ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("nil report")
	}
	type alias Report
	return json.MarshalIndent((*alias)(r), "", "  ")
}

func writeSection(b *strings.Builder, title string, entries []Entry) {
	_, _ = fmt.Fprintf(b, "### %s\n", title)
	if len(entries) == 0 {
		b.WriteString("- None above threshold\n\n")
		return
	}
	b.WriteString("| Operator | Base cost | Target cost | Δ cost | Δ % | Rows |\n")
	b.WriteString("|---|---:|---:|---:|---:|---|\n")
	for _, entry := range entries {
		_, _ = fmt.Fprintf(b, "| %s | %.2f | %.2f | %+.2f | %+.1f%% | %.0f → %.0f |\n",
			entry.Signature,
			entry.BaseCost,
			entry.TargetCost,
			entry.DeltaCost,
			entry.PercentChange,
			entry.BaseRows,
			entry.TargetRows)
	}
	b.WriteString("\n")
}

type aggregated struct {
	Cost float64
	Rows float64
}

// aggregate sums the exclusive cost of every node sharing a signature.
// Exclusive cost is the node's total cost minus its children's.
func aggregate(root *model.PlanNode) map[string]aggregated {
	result := map[string]aggregated{}
	var walk func(*model.PlanNode)
	walk = func(n *model.PlanNode) {
		cost := n.TotalCost
		for _, child := range n.Children {
			cost -= child.TotalCost
		}
		if cost < 0 {
			cost = 0
		}
		sig := signature(n)
		entry := result[sig]
		entry.Cost += cost
		entry.Rows += n.PlanRows
		result[sig] = entry
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(root)
	return result
}

func signature(node *model.PlanNode) string {
	parts := []string{node.NodeType}
	if node.RelationName != "" {
		parts = append(parts, node.RelationName)
	}
	if node.IndexName != "" {
		parts = append(parts, node.IndexName)
	}
	if node.JoinType != "" {
		parts = append(parts, node.JoinType)
	}
	return strings.Join(parts, " · ")
}

func unionKeys(base, target map[string]aggregated) []string {
	seen := map[string]struct{}{}
	for k := range base {
		seen[k] = struct{}{}
	}
	for k := range target {
		seen[k] = struct{}{}
	}
	all := make([]string, 0, len(seen))
	for k := range seen {
		all = append(all, k)
	}
	sort.Strings(all)
	return all
}

func buildEntry(sig string, base, target aggregated) Entry {
	return Entry{
		Signature:     sig,
		BaseCost:      base.Cost,
		TargetCost:    target.Cost,
		DeltaCost:     target.Cost - base.Cost,
		PercentChange: percentChange(base.Cost, target.Cost),
		BaseRows:      base.Rows,
		TargetRows:    target.Rows,
	}
}

func passesRegression(entry Entry, opts Options) bool {
	return entry.DeltaCost >= opts.MinCostDelta && entry.PercentChange >= opts.MinPercentChange
}

func passesImprovement(entry Entry, opts Options) bool {
	return entry.DeltaCost <= -opts.MinCostDelta && entry.PercentChange <= -opts.MinPercentChange
}

func percentChange(base, target float64) float64 {
	const eps = 1e-9
	if math.Abs(base) <= eps {
		if math.Abs(target) <= eps {
			return 0
		}
		if target > 0 {
			return 100
		}
		return -100
	}
	return (target - base) / base * 100
}

func applyDefaults(opts Options) Options {
	if opts.MinCostDelta <= 0 {
		opts.MinCostDelta = 1
	}
	if opts.MinPercentChange <= 0 {
		opts.MinPercentChange = 5
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 10
	}
	return opts
}
