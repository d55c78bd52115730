// Package tui renders plans and analyses as ASCII trees for terminal
// output.
package tui

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/mickamy/xadvise/internal/insight"
	"github.com/mickamy/xadvise/internal/model"
)

// Options controls how the renderer behaves.
type Options struct {
	EnableColor bool
	MaxDepth    int
	BarWidth    int
}

// Render prints an ASCII cost tree for a plan, with insight messages on
// top.
func Render(w io.Writer, plan *model.Plan, opts Options) error {
	if w == nil {
		return errors.New("tui: writer is nil")
	}
	if plan == nil || plan.Root == nil {
		return errors.New("tui: empty plan")
	}

	if opts.BarWidth <= 0 {
		opts.BarWidth = 20
	}

	_, _ = fmt.Fprintf(w, "%s plan (%s), total cost %.2f\n", plan.Kind, plan.Source, plan.Root.TotalCost)
	if plan.Note != "" {
		_, _ = fmt.Fprintf(w, "Note: %s\n", plan.Note)
	}
	_, _ = fmt.Fprintln(w)

	renderInsights(w, plan)

	total := plan.Root.TotalCost
	_, _ = fmt.Fprintf(w, "%s\n", renderLine(plan.Root, total, opts))
	printChildren(w, plan.Root, "", 1, total, opts)
	return nil
}

// RenderAnalysis prints a full analysis: the plan summary, the model's
// recommendations, and any warnings.
func RenderAnalysis(w io.Writer, analysis *model.QueryAnalysis, opts Options) error {
	if w == nil {
		return errors.New("tui: writer is nil")
	}
	if analysis == nil {
		return errors.New("tui: empty analysis")
	}

	summary := analysis.ExecutionPlan
	_, _ = fmt.Fprintf(w, "%s plan (%s): cost %.2f, rows %.0f, io operations %d, nodes %d\n",
		summary.Kind, summary.Source, summary.TotalCost, summary.Rows, summary.IOOperations, summary.NodeCount)
	for _, node := range summary.Nodes {
		indent := strings.Repeat("  ", node.Level)
		label := node.NodeType
		if node.RelationName != "" {
			label += " " + node.RelationName
		}
		_, _ = fmt.Fprintf(w, "  %s%s | cost %.2f | rows %.0f\n", indent, label, node.TotalCost, node.Rows)
	}
	_, _ = fmt.Fprintln(w)

	if analysis.RewrittenQuery != nil {
		_, _ = fmt.Fprintf(w, "Suggested rewrite:\n  %s\n\n", *analysis.RewrittenQuery)
	}

	if len(analysis.Recommendations) > 0 {
		_, _ = fmt.Fprintln(w, "Recommendations:")
		for _, rec := range analysis.Recommendations {
			title := fmt.Sprintf("[%s] %s", rec.Priority, rec.Title)
			if opts.EnableColor {
				title = applyColor(title, colorForPriority(rec.Priority))
			}
			_, _ = fmt.Fprintf(w, "  - %s\n    %s\n", title, rec.Description)
			if rec.Implementation != "" {
				_, _ = fmt.Fprintf(w, "    How: %s\n", rec.Implementation)
			}
			if rec.EstimatedSpeedup != nil {
				_, _ = fmt.Fprintf(w, "    Estimated speedup: %.0f%%\n", *rec.EstimatedSpeedup)
			}
		}
		_, _ = fmt.Fprintln(w)
	}

	if len(analysis.Warnings) > 0 {
		_, _ = fmt.Fprintln(w, "Warnings:")
		for _, warning := range analysis.Warnings {
			if opts.EnableColor {
				warning = applyColor(warning, "yellow")
			}
			_, _ = fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
	return nil
}

func printChildren(w io.Writer, parent *model.PlanNode, prefix string, depth int, totalCost float64, opts Options) {
	for i, child := range parent.Children {
		renderBranch(w, child, prefix, depth, i == len(parent.Children)-1, totalCost, opts)
	}
}

func renderBranch(w io.Writer, node *model.PlanNode, prefix string, depth int, isLast bool, totalCost float64, opts Options) {
	connector := "|-- "
	childPrefix := prefix + "|   "
	if isLast {
		connector = "`-- "
		childPrefix = prefix + "    "
	}

	_, _ = fmt.Fprintf(w, "%s%s%s\n", prefix, connector, renderLine(node, totalCost, opts))

	if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
		if len(node.Children) > 0 {
			_, _ = fmt.Fprintf(w, "%s`-- ... (%d more nodes)\n", childPrefix, countDescendants(node))
		}
		return
	}

	printChildren(w, node, childPrefix, depth+1, totalCost, opts)
}

func renderLine(node *model.PlanNode, totalCost float64, opts Options) string {
	label := node.NodeType
	if node.RelationName != "" {
		label += " " + node.RelationName
	}
	if node.IndexName != "" {
		label += " (" + node.IndexName + ")"
	}

	share := 0.0
	if totalCost > 0 {
		share = node.TotalCost / totalCost
	}

	bar := drawBar(share, opts.BarWidth)
	if opts.EnableColor {
		if color := pickColor(share); color != "" {
			bar = applyColor(bar, color)
		}
	}

	parts := []string{
		label,
		fmt.Sprintf("cost %.2f", node.TotalCost),
		fmt.Sprintf("%5.1f%%", share*100),
		bar,
		fmt.Sprintf("rows %.0f", node.PlanRows),
	}
	if node.Condition != "" {
		parts = append(parts, "on "+node.Condition)
	}
	return strings.Join(parts, " | ")
}

func renderInsights(w io.Writer, plan *model.Plan) {
	messages := insight.BuildMessages(plan)
	if len(messages) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "Insights:")
	for _, msg := range messages {
		_, _ = fmt.Fprintf(w, "  - [%s] %s\n", msg.Severity, msg.Text)
	}
	_, _ = fmt.Fprintln(w)
}

func drawBar(ratio float64, width int) string {
	if width <= 0 {
		return ""
	}
	clamped := ratio
	if clamped < 0 {
		clamped = 0
	}
	if clamped > 1 {
		clamped = 1
	}
	fill := int(math.Round(clamped * float64(width)))
	if clamped > 0 && fill == 0 {
		fill = 1
	}
	if fill > width {
		fill = width
	}
	return strings.Repeat("#", fill) + strings.Repeat("-", width-fill)
}

func pickColor(ratio float64) string {
	switch {
	case ratio >= 0.80:
		return "red"
	case ratio >= 0.40:
		return "yellow"
	case ratio >= 0.20:
		return "cyan"
	default:
		return ""
	}
}

func colorForPriority(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "red"
	case model.PriorityMedium:
		return "yellow"
	default:
		return "cyan"
	}
}

func applyColor(text, color string) string {
	code := ""
	switch color {
	case "red":
		code = "\033[31m"
	case "yellow":
		code = "\033[33m"
	case "cyan":
		code = "\033[36m"
	default:
		return text
	}
	return code + text + "\033[0m"
}

func countDescendants(node *model.PlanNode) int {
	total := 0
	var walk func(*model.PlanNode)
	walk = func(n *model.PlanNode) {
		for _, child := range n.Children {
			total++
			walk(child)
		}
	}
	walk(node)
	return total
}
