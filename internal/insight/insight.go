// Package insight derives rule-based observations from an execution
// plan, independent of any model backend.
package insight

import (
	"fmt"
	"strings"

	"github.com/mickamy/xadvise/internal/config"
	"github.com/mickamy/xadvise/internal/model"
)

// Severity expresses the urgency of an insight message.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Message represents an actionable observation about a plan.
type Message struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
}

// BuildMessages derives insight messages for a plan. Plans without
// measured costs (synthetic and utility fallbacks) only produce
// provenance notes.
func BuildMessages(plan *model.Plan) []Message {
	if plan == nil || plan.Root == nil {
		return nil
	}
	var out []Message

	if msg := provenanceMessage(plan); msg != nil {
		out = append(out, *msg)
	}
	if plan.Source != model.SourceMeasured {
		return out
	}

	if msg := hotspotMessage(plan.Root); msg != nil {
		out = append(out, *msg)
	}
	out = append(out, seqScanMessages(plan.Root)...)
	out = append(out, sortMessages(plan.Root)...)
	out = append(out, nestedLoopMessages(plan.Root)...)

	return out
}

// Warnings filters messages down to the warning texts the analysis
// response carries.
func Warnings(plan *model.Plan) []string {
	var out []string
	for _, msg := range BuildMessages(plan) {
		if msg.Severity == SeverityInfo {
			continue
		}
		out = append(out, msg.Text)
	}
	return out
}

func provenanceMessage(plan *model.Plan) *Message {
	switch plan.Source {
	case model.SourceTranspiled:
		return &Message{
			Severity: SeverityInfo,
			Text:     fmt.Sprintf("Plan was measured for a SELECT equivalent of the %s statement", plan.Kind),
		}
	case model.SourceSynthetic:
		return &Message{
			Severity: SeverityInfo,
			Text:     "Plan is a placeholder; cost and row figures are not measured",
		}
	default:
		return nil
	}
}

// hotspotMessage flags the node carrying most of the plan's cost.
// Exclusive cost is the node's total cost minus its children's.
func hotspotMessage(root *model.PlanNode) *Message {
	if root.TotalCost <= 0 {
		return nil
	}
	cfg := config.Active().Insights

	var hot *model.PlanNode
	var hotCost float64
	walk(root, func(node *model.PlanNode) {
		cost := node.TotalCost
		for _, child := range node.Children {
			cost -= child.TotalCost
		}
		if cost > hotCost {
			hot, hotCost = node, cost
		}
	})
	if hot == nil {
		return nil
	}

	share := hotCost / root.TotalCost
	if share < cfg.HotspotWarnPercent {
		return nil
	}
	severity := SeverityWarning
	if share >= cfg.HotspotCriticalPercent {
		severity = SeverityCritical
	}
	text := fmt.Sprintf("Hot spot: %s carries %.0f%% of the plan cost", label(hot), share*100)
	if strings.Contains(hot.NodeType, "Seq Scan") {
		text += " — consider adding an index or tightening the filter"
	}
	return &Message{Severity: severity, Text: text}
}

func seqScanMessages(root *model.PlanNode) []Message {
	cfg := config.Active().Insights
	var msgs []Message
	walk(root, func(node *model.PlanNode) {
		if !strings.Contains(node.NodeType, "Seq Scan") || node.PlanRows < float64(cfg.SeqScanWarnRows) {
			return
		}
		severity := SeverityWarning
		if node.PlanRows >= float64(cfg.SeqScanCriticalRows) {
			severity = SeverityCritical
		}
		text := fmt.Sprintf("Sequential scan over ~%.0f rows on %s", node.PlanRows, node.RelationName)
		if node.Condition != "" {
			text += fmt.Sprintf(" filtered by %s — an index on the filter columns may help", node.Condition)
		} else {
			text += " — consider whether a full scan is intended"
		}
		msgs = append(msgs, Message{Severity: severity, Text: text})
	})
	return limit(msgs, 2)
}

func sortMessages(root *model.PlanNode) []Message {
	cfg := config.Active().Insights
	var msgs []Message
	walk(root, func(node *model.PlanNode) {
		switch node.NodeType {
		case "Sort", "Incremental Sort":
		default:
			return
		}
		if node.PlanRows < float64(cfg.SortWarnRows) {
			return
		}
		msgs = append(msgs, Message{
			Severity: SeverityWarning,
			Text: fmt.Sprintf("Sort over ~%.0f rows — consider increasing work_mem or adding a supporting index",
				node.PlanRows),
		})
	})
	return limit(msgs, 2)
}

func nestedLoopMessages(root *model.PlanNode) []Message {
	cfg := config.Active().Insights
	var msgs []Message
	walk(root, func(node *model.PlanNode) {
		if node.NodeType != "Nested Loop" {
			return
		}
		for _, child := range node.Children {
			if !strings.Contains(child.NodeType, "Scan") || child.PlanRows < float64(cfg.NestedLoopWarnRows) {
				continue
			}
			msgs = append(msgs, Message{
				Severity: SeverityWarning,
				Text: fmt.Sprintf("Nested Loop drives %s over ~%.0f rows — consider adding an index or rewriting the join",
					label(child), child.PlanRows),
			})
			break
		}
	})
	return limit(msgs, 2)
}

func walk(node *model.PlanNode, fn func(*model.PlanNode)) {
	if node == nil {
		return
	}
	fn(node)
	for _, child := range node.Children {
		walk(child, fn)
	}
}

func label(node *model.PlanNode) string {
	if node.RelationName != "" {
		return fmt.Sprintf("%s %s", node.NodeType, node.RelationName)
	}
	return node.NodeType
}

func limit(msgs []Message, n int) []Message {
	if len(msgs) > n {
		return msgs[:n]
	}
	return msgs
}
