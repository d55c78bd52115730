package parser_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mickamy/xadvise/internal/parser"
	"github.com/mickamy/xadvise/test"
)

func TestParseJSONSample(t *testing.T) {
	t.Parallel()

	f, err := os.Open(filepath.Join(test.RootPath(t), "samples", "plan_seqscan.json"))
	if err != nil {
		t.Fatalf("open sample: %v", err)
	}
	defer func() { _ = f.Close() }()

	root, err := parser.ParseJSON(f)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}

	if root.NodeType != "Nested Loop" {
		t.Fatalf("root node type = %q, want Nested Loop", root.NodeType)
	}
	if root.TotalCost != 18934.5 {
		t.Errorf("root total cost = %v, want 18934.5", root.TotalCost)
	}
	if root.JoinType != "Inner" {
		t.Errorf("root join type = %q, want Inner", root.JoinType)
	}
	if len(root.Children) != 2 {
		t.Fatalf("root children = %d, want 2", len(root.Children))
	}

	outer := root.Children[0]
	if outer.NodeType != "Seq Scan" || outer.RelationName != "orders" {
		t.Errorf("outer child = %s on %s, want Seq Scan on orders", outer.NodeType, outer.RelationName)
	}
	if outer.PlanRows != 120000 {
		t.Errorf("outer plan rows = %v, want 120000", outer.PlanRows)
	}
	if !strings.Contains(outer.Condition, "created_at") {
		t.Errorf("outer condition = %q, want the filter text", outer.Condition)
	}
}

func TestParseJSONBareObject(t *testing.T) {
	t.Parallel()

	// EXPLAIN output normally arrives as a one-element array, but a bare
	// document is accepted too.
	doc := `{"Plan": {"Node Type": "Result", "Total Cost": 0.01, "Plan Rows": 1, "Plan Width": 4}}`
	root, err := parser.ParseJSON(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if root.NodeType != "Result" {
		t.Errorf("node type = %q, want Result", root.NodeType)
	}
	if root.PlanRows != 1 {
		t.Errorf("plan rows = %v, want 1", root.PlanRows)
	}
}

func TestParseJSONExtraAttributes(t *testing.T) {
	t.Parallel()

	doc := `[{"Plan": {"Node Type": "Seq Scan", "Relation Name": "users", "Parallel Aware": true, "Alias": "u"}}]`
	root, err := parser.ParseJSON(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if _, ok := root.Extra["Parallel Aware"]; !ok {
		t.Errorf("Parallel Aware not carried through: %v", root.Extra)
	}
	if got := root.Extra["Alias"]; got != "u" {
		t.Errorf("Alias = %v, want u", got)
	}
}

func TestParseJSONConditionPrecedence(t *testing.T) {
	t.Parallel()

	doc := `[{"Plan": {"Node Type": "Index Scan", "Index Cond": "(id = 1)", "Filter": "(active)"}}]`
	root, err := parser.ParseJSON(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if root.Condition != "(id = 1)" {
		t.Errorf("condition = %q, want the index condition over the filter", root.Condition)
	}
}

func TestParseJSONErrors(t *testing.T) {
	t.Parallel()

	for name, doc := range map[string]string{
		"empty array":  `[]`,
		"missing plan": `[{"Planning Time": 1.0}]`,
		"not json":     `EXPLAIN output`,
		"wrong type":   `42`,
	} {
		if _, err := parser.ParseJSON(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
