package insight_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/xadvise/internal/insight"
	"github.com/mickamy/xadvise/internal/model"
	"github.com/mickamy/xadvise/test"
)

func TestBuildMessagesSeqScanPlan(t *testing.T) {
	plan := test.LoadSamplePlan(t, "plan_seqscan.json")

	msgs := insight.BuildMessages(plan)
	require.NotEmpty(t, msgs)

	var texts []string
	for _, m := range msgs {
		texts = append(texts, m.Text)
		assert.NotEqual(t, insight.SeverityInfo, m.Severity, "a measured plan has no provenance note")
	}
	joined := strings.Join(texts, "\n")
	assert.Contains(t, joined, "Sequential scan", "both large scans are flagged")
	assert.Contains(t, joined, "orders")
	assert.Contains(t, joined, "Nested Loop")
}

func TestBuildMessagesIndexScanPlan(t *testing.T) {
	plan := test.LoadSamplePlan(t, "plan_indexscan.json")

	for _, m := range insight.BuildMessages(plan) {
		assert.NotContains(t, m.Text, "Sequential scan", "index plans must not trip the scan heuristics")
	}
}

func TestBuildMessagesHotspot(t *testing.T) {
	plan := &model.Plan{
		Kind:   "SELECT",
		Source: model.SourceMeasured,
		Root: &model.PlanNode{
			NodeType:  "Aggregate",
			TotalCost: 1000,
			Children: []*model.PlanNode{
				{NodeType: "Seq Scan", RelationName: "events", TotalCost: 50, PlanRows: 10},
			},
		},
	}

	msgs := insight.BuildMessages(plan)
	require.Len(t, msgs, 1)
	assert.Equal(t, insight.SeverityCritical, msgs[0].Severity, "95% of the cost in one node is critical")
	assert.Contains(t, msgs[0].Text, "Aggregate")
	assert.Contains(t, msgs[0].Text, "95%")
}

func TestBuildMessagesProvenance(t *testing.T) {
	transpiled := &model.Plan{
		Kind:   "UPDATE",
		Source: model.SourceTranspiled,
		Root:   &model.PlanNode{NodeType: "Seq Scan", RelationName: "users", TotalCost: 10},
	}
	msgs := insight.BuildMessages(transpiled)
	require.Len(t, msgs, 1, "non-measured plans produce only the provenance note")
	assert.Equal(t, insight.SeverityInfo, msgs[0].Severity)
	assert.Contains(t, msgs[0].Text, "SELECT equivalent")

	synthetic := &model.Plan{
		Kind:   "DELETE",
		Source: model.SourceSynthetic,
		Root:   &model.PlanNode{NodeType: "DELETE", RelationName: "users", TotalCost: 1},
	}
	msgs = insight.BuildMessages(synthetic)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "placeholder")
}

func TestBuildMessagesNil(t *testing.T) {
	assert.Nil(t, insight.BuildMessages(nil))
	assert.Nil(t, insight.BuildMessages(&model.Plan{Kind: "SELECT"}))
}

func TestWarningsDropInfo(t *testing.T) {
	transpiled := &model.Plan{
		Kind:   "UPDATE",
		Source: model.SourceTranspiled,
		Root:   &model.PlanNode{NodeType: "Seq Scan", RelationName: "users", TotalCost: 10},
	}
	assert.Empty(t, insight.Warnings(transpiled), "info notes never become warnings")

	seqScan := test.LoadSamplePlan(t, "plan_seqscan.json")
	assert.NotEmpty(t, insight.Warnings(seqScan))
}
