package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mickamy/xadvise/internal/model"
	"github.com/mickamy/xadvise/internal/planner"
)

func TestSummarize(t *testing.T) {
	t.Parallel()

	plan := &model.Plan{
		Kind:   "SELECT",
		Source: model.SourceMeasured,
		Root: &model.PlanNode{
			NodeType:        "Hash Join",
			JoinType:        "Inner",
			TotalCost:       1200.5,
			PlanRows:        500,
			PlanWidth:       48,
			ActualTotalTime: 12.34,
			Children: []*model.PlanNode{
				{NodeType: "Seq Scan", RelationName: "orders", TotalCost: 800, PlanRows: 10000},
				{
					NodeType:  "Hash",
					TotalCost: 300,
					PlanRows:  200,
					Children: []*model.PlanNode{
						{NodeType: "Index Scan", RelationName: "users", IndexName: "users_pkey", TotalCost: 290, PlanRows: 200},
					},
				},
			},
		},
	}

	summary := planner.Summarize(plan)

	assert.Equal(t, 4, summary.NodeCount)
	assert.Equal(t, 1200.5, summary.TotalCost)
	assert.Equal(t, 12.34, summary.ExecutionTimeMs)
	assert.Equal(t, float64(500), summary.Rows)
	assert.Equal(t, "SELECT", summary.Kind)
	assert.Equal(t, model.SourceMeasured, summary.Source)

	// Seq Scan, Hash build, and Index Scan count; the Hash Join itself is
	// CPU work and must not.
	assert.Equal(t, 3, summary.IOOperations)

	// Pre-order flattening with depth levels.
	if assert.Len(t, summary.Nodes, 4) {
		assert.Equal(t, "Hash Join", summary.Nodes[0].NodeType)
		assert.Equal(t, 0, summary.Nodes[0].Level)
		assert.Equal(t, "Seq Scan", summary.Nodes[1].NodeType)
		assert.Equal(t, 1, summary.Nodes[1].Level)
		assert.Equal(t, "Hash", summary.Nodes[2].NodeType)
		assert.Equal(t, 1, summary.Nodes[2].Level)
		assert.Equal(t, "Index Scan", summary.Nodes[3].NodeType)
		assert.Equal(t, 2, summary.Nodes[3].Level)
		assert.Equal(t, "users_pkey", summary.Nodes[3].IndexName)
	}
}

func TestSummarizeIOOperators(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		nodeType string
		counts   bool
	}{
		{"Seq Scan", true},
		{"Parallel Seq Scan", true},
		{"Index Scan", true},
		{"Index Only Scan", true},
		{"Bitmap Heap Scan", true},
		{"Bitmap Index Scan", true},
		{"Sort", true},
		{"Hash", true},
		{"Hash Join", false},
		{"Merge Join", false},
		{"Nested Loop", false},
		{"Aggregate", false},
		{"Result", false},
	}
	for _, tc := range tcs {
		summary := planner.Summarize(&model.Plan{Root: &model.PlanNode{NodeType: tc.nodeType}})
		want := 0
		if tc.counts {
			want = 1
		}
		assert.Equal(t, want, summary.IOOperations, "node type %q", tc.nodeType)
	}
}

func TestSummarizeNilRoot(t *testing.T) {
	t.Parallel()

	summary := planner.Summarize(&model.Plan{Kind: "CREATE", Source: model.SourceSynthetic, Note: "utility command: CREATE"})
	assert.Zero(t, summary.NodeCount)
	assert.Zero(t, summary.IOOperations)
	assert.Empty(t, summary.Nodes)
	assert.Equal(t, "CREATE", summary.Kind)
	assert.Equal(t, "utility command: CREATE", summary.Note)
}
