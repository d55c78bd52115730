package planner

import (
	"strings"

	"github.com/mickamy/xadvise/internal/model"
)

// ioScanOperators are matched as substrings of the node type; scans and
// bitmap work always indicate I/O regardless of qualifiers like
// "Parallel" or "Backward".
var ioScanOperators = []string{"Seq Scan", "Index Scan", "Index Only Scan", "Bitmap"}

// ioExactOperators are matched against the whole node type. "Hash" must
// not match "Hash Join": the join itself is CPU work, the Hash build
// node below it is the I/O-significant one.
var ioExactOperators = []string{"Sort", "Hash"}

// Summarize walks the plan tree depth-first in pre-order and derives the
// summary metrics. It tolerates a single-node tree and absent fields;
// provenance is copied through from the acquired plan.
func Summarize(plan *model.Plan) model.PlanSummary {
	summary := model.PlanSummary{
		Kind:          plan.Kind,
		Source:        plan.Source,
		TranspiledSQL: plan.TranspiledSQL,
		Note:          plan.Note,
	}
	if plan.Root == nil {
		return summary
	}

	root := plan.Root
	summary.TotalCost = root.TotalCost
	summary.ExecutionTimeMs = root.ActualTotalTime
	summary.Rows = root.PlanRows
	summary.Width = root.PlanWidth

	var walk func(node *model.PlanNode, level int)
	walk = func(node *model.PlanNode, level int) {
		summary.NodeCount++
		if ioSignificant(node.NodeType) {
			summary.IOOperations++
		}
		summary.Nodes = append(summary.Nodes, model.NodeSummary{
			Level:        level,
			NodeType:     node.NodeType,
			TotalCost:    node.TotalCost,
			Rows:         node.PlanRows,
			Width:        node.PlanWidth,
			RelationName: node.RelationName,
			IndexName:    node.IndexName,
			JoinType:     node.JoinType,
			Condition:    node.Condition,
		})
		for _, child := range node.Children {
			walk(child, level+1)
		}
	}
	walk(root, 0)

	return summary
}

// ioSignificant reports whether a node type indicates disk- or
// memory-intensive work. Matching is case-sensitive against the
// engine's literal operator names; a node counts at most once.
func ioSignificant(nodeType string) bool {
	for _, op := range ioScanOperators {
		if strings.Contains(nodeType, op) {
			return true
		}
	}
	for _, op := range ioExactOperators {
		if nodeType == op {
			return true
		}
	}
	return false
}
