// Package parser decodes PostgreSQL EXPLAIN (FORMAT JSON) output into a
// plan tree. It is deliberately tolerant: numeric and string fields the
// engine omits default to zero values, and unrecognized attributes are
// carried through verbatim.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mickamy/xadvise/internal/model"
)

// ParseJSON reads an EXPLAIN (FORMAT JSON) document and produces the
// root plan node.
func ParseJSON(r io.Reader) (*model.PlanNode, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode explain json: %w", err)
	}

	entry, err := pickFirstEntry(payload)
	if err != nil {
		return nil, err
	}

	planVal, ok := entry["Plan"]
	if !ok {
		return nil, errors.New("explain json: missing Plan root")
	}
	planMap, err := asObject(planVal)
	if err != nil {
		return nil, fmt.Errorf("explain json: invalid Plan node: %w", err)
	}

	return parsePlanNode(planMap, "0")
}

func pickFirstEntry(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case []any:
		if len(v) == 0 {
			return nil, errors.New("explain json: empty payload")
		}
		obj, err := asObject(v[0])
		if err != nil {
			return nil, fmt.Errorf("explain json: invalid entry: %w", err)
		}
		return obj, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("explain json: unexpected top-level type %T", payload)
	}
}

func parsePlanNode(data map[string]any, path string) (*model.PlanNode, error) {
	node := &model.PlanNode{
		NodeType:        asString(data["Node Type"]),
		RelationName:    asString(data["Relation Name"]),
		IndexName:       asString(data["Index Name"]),
		JoinType:        asString(data["Join Type"]),
		Condition:       pickCondition(data),
		StartupCost:     asFloat(data["Startup Cost"]),
		TotalCost:       asFloat(data["Total Cost"]),
		PlanRows:        asFloat(data["Plan Rows"]),
		PlanWidth:       asFloat(data["Plan Width"]),
		ActualTotalTime: asFloat(data["Actual Total Time"]),
		ActualRows:      asFloat(data["Actual Rows"]),
		Extra:           map[string]any{},
	}

	for i, childVal := range asSlice(data["Plans"]) {
		childMap, err := asObject(childVal)
		if err != nil {
			return nil, fmt.Errorf("parse child plan (%s.%d): %w", path, i, err)
		}
		child, err := parsePlanNode(childMap, fmt.Sprintf("%s.%d", path, i))
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}

	known := map[string]struct{}{
		"Node Type":         {},
		"Relation Name":     {},
		"Index Name":        {},
		"Join Type":         {},
		"Hash Cond":         {},
		"Index Cond":        {},
		"Filter":            {},
		"Startup Cost":      {},
		"Total Cost":        {},
		"Plan Rows":         {},
		"Plan Width":        {},
		"Actual Total Time": {},
		"Actual Rows":       {},
		"Plans":             {},
	}
	for k, v := range data {
		if _, ok := known[k]; ok {
			continue
		}
		node.Extra[k] = v
	}

	return node, nil
}

// pickCondition keeps the first condition text the node carries. Hash
// and index conditions are the ones downstream heuristics care about;
// a plain filter is the fallback.
func pickCondition(data map[string]any) string {
	for _, key := range []string{"Hash Cond", "Index Cond", "Filter"} {
		if s := asString(data[key]); s != "" {
			return s
		}
	}
	return ""
}

func asObject(val any) (map[string]any, error) {
	if val == nil {
		return nil, errors.New("nil object")
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", val)
	}
	return obj, nil
}

func asSlice(val any) []any {
	if v, ok := val.([]any); ok {
		return v
	}
	return nil
}

func asString(val any) string {
	if val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func asFloat(val any) float64 {
	if val == nil {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		if strings.TrimSpace(v) == "" {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
