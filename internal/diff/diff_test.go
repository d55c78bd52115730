package diff_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/mickamy/xadvise/internal/diff"
	"github.com/mickamy/xadvise/internal/model"
	"github.com/mickamy/xadvise/test"
)

func TestCompareSamples(t *testing.T) {
	t.Parallel()

	base := test.LoadSamplePlan(t, "plan_seqscan.json")
	target := test.LoadSamplePlan(t, "plan_indexscan.json")

	report, err := diff.Compare(base, target, diff.Options{})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}

	if report.Summary.BaseTotalCost != 18934.5 {
		t.Errorf("base total cost = %v, want 18934.5", report.Summary.BaseTotalCost)
	}
	if report.Summary.TargetTotalCost != 812.75 {
		t.Errorf("target total cost = %v, want 812.75", report.Summary.TargetTotalCost)
	}
	if report.Summary.DeltaTotalCost >= 0 {
		t.Errorf("delta total cost = %v, want negative", report.Summary.DeltaTotalCost)
	}

	if len(report.Improvements) == 0 {
		t.Fatal("expected improvements: both sequential scans disappeared")
	}
	// Improvements sort by delta ascending: the orders scan saved the most.
	first := report.Improvements[0]
	if !strings.Contains(first.Signature, "Seq Scan") || !strings.Contains(first.Signature, "orders") {
		t.Errorf("top improvement = %q, want the orders Seq Scan", first.Signature)
	}
	if first.DeltaCost >= 0 {
		t.Errorf("top improvement delta = %v, want negative", first.DeltaCost)
	}

	// The index scans are new operators, so they register as regressions.
	found := false
	for _, entry := range report.Regressions {
		if strings.Contains(entry.Signature, "orders_created_at_idx") {
			found = true
		}
	}
	if !found {
		t.Errorf("regressions missing the new index scan: %+v", report.Regressions)
	}
}

func TestCompareIdenticalPlans(t *testing.T) {
	t.Parallel()

	plan := test.LoadSamplePlan(t, "plan_seqscan.json")
	report, err := diff.Compare(plan, plan, diff.Options{})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(report.Regressions) != 0 || len(report.Improvements) != 0 {
		t.Errorf("identical plans must diff clean: %+v", report)
	}
	if report.Summary.DeltaTotalCost != 0 {
		t.Errorf("delta = %v, want 0", report.Summary.DeltaTotalCost)
	}
}

func TestCompareThresholds(t *testing.T) {
	t.Parallel()

	base := &model.Plan{Root: &model.PlanNode{NodeType: "Seq Scan", RelationName: "t", TotalCost: 100}}
	target := &model.Plan{Root: &model.PlanNode{NodeType: "Seq Scan", RelationName: "t", TotalCost: 102}}

	// A 2% change is below the default 5% threshold.
	report, err := diff.Compare(base, target, diff.Options{})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(report.Regressions) != 0 {
		t.Errorf("2%% change must stay below the default threshold: %+v", report.Regressions)
	}

	report, err = diff.Compare(base, target, diff.Options{MinCostDelta: 1, MinPercentChange: 1})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(report.Regressions) != 1 {
		t.Errorf("lowered threshold must surface the change: %+v", report.Regressions)
	}
}

func TestCompareMissingPlan(t *testing.T) {
	t.Parallel()

	plan := &model.Plan{Root: &model.PlanNode{NodeType: "Result"}}
	if _, err := diff.Compare(nil, plan, diff.Options{}); err == nil {
		t.Error("expected error for missing base")
	}
	if _, err := diff.Compare(plan, &model.Plan{}, diff.Options{}); err == nil {
		t.Error("expected error for target without a root")
	}
}

func TestReportMarkdown(t *testing.T) {
	t.Parallel()

	base := test.LoadSamplePlan(t, "plan_seqscan.json")
	target := test.LoadSamplePlan(t, "plan_indexscan.json")
	report, err := diff.Compare(base, target, diff.Options{})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}

	md := report.Markdown()
	for _, want := range []string{"# plan diff", "## Summary", "### Regressions", "### Improvements", "Seq Scan · orders"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestReportJSON(t *testing.T) {
	t.Parallel()

	base := test.LoadSamplePlan(t, "plan_seqscan.json")
	report, err := diff.Compare(base, base, diff.Options{})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}

	data, err := report.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["summary"]; !ok {
		t.Errorf("json missing summary: %s", data)
	}
	if _, ok := decoded["options"]; ok {
		t.Error("options must not serialize")
	}
}
