package recommend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mickamy/xadvise/internal/model"
)

const responseSchema = `
Respond ONLY with JSON, no additional text:

{
  "rewritten_query": "optimized version of the query, or null if none is needed",
  "resource_metrics": {
    "cpu_usage": number_between_0_and_100,
    "memory_usage": number_in_mb,
    "io_operations": integer,
    "disk_reads": integer,
    "disk_writes": integer
  },
  "recommendations": [
    {
      "type": "recommendation type",
      "priority": "high|medium|low",
      "title": "short title",
      "description": "detailed description",
      "potential_improvement": "expected improvement",
      "implementation": "how to implement it",
      "estimated_speedup": number_in_percent
    }
  ],
  "warnings": ["warning 1", "warning 2"]
}

IMPORTANT: "rewritten_query" must hold an optimized version of the SQL
statement when rewriting would improve performance. Typical cases:
- implicit comma joins that should be explicit JOINs
- subqueries that can be replaced with JOINs
- inefficient WHERE constructs
- missing LIMIT on queries with large results
Use null when the query is already optimal.`

// buildPrompt renders the analysis request. A statement containing
// multiple semicolon-separated queries is presented as a chain so the
// advice covers the sequence as a whole.
func buildPrompt(query string, summary *model.PlanSummary, tableContext string) string {
	var b strings.Builder

	b.WriteString("Analyze the following SQL statement and its execution plan:\n")

	parts := splitChain(query)
	if len(parts) > 1 {
		fmt.Fprintf(&b, "\nSQL QUERY CHAIN (%d statements):\n%s\n", len(parts), query)
		fmt.Fprintf(&b, "\nNOTE: this is a chain of %d related statements. Treat them as one logical sequence and recommend optimizations for the chain as a whole.\n", len(parts))
	} else {
		fmt.Fprintf(&b, "\nSQL STATEMENT:\n%s\n", query)
	}

	b.WriteString("\nEXECUTION PLAN (for the primary statement):\n")
	fmt.Fprintf(&b, "- Total cost: %g\n", summary.TotalCost)
	fmt.Fprintf(&b, "- Execution time: %g ms\n", summary.ExecutionTimeMs)
	fmt.Fprintf(&b, "- Rows: %.0f\n", summary.Rows)

	b.WriteString("\nPLAN NODES:\n")
	nodes, err := json.MarshalIndent(summary.Nodes, "", "  ")
	if err == nil {
		b.Write(nodes)
		b.WriteString("\n")
	}

	if tableContext != "" {
		b.WriteString("\nTABLE STATISTICS:\n")
		b.WriteString(tableContext)
		b.WriteString("\n")
	}

	b.WriteString(`
Please analyze:

1. RESOURCE USAGE:
   - estimate CPU usage (0-100%)
   - estimate memory usage in MB
   - count I/O operations
   - estimate disk reads and writes

2. OPTIMIZATION RECOMMENDATIONS:
   - propose concrete improvements with a priority (high/medium/low)
   - cover indexes, query rewriting, and database settings
   - estimate the potential speedup for each recommendation
   - give concrete implementation steps
`)
	if len(parts) > 1 {
		b.WriteString("   - account for dependencies between statements in the chain\n")
	}
	b.WriteString(`
3. WARNINGS:
   - flag potentially dangerous operations
   - note performance problems
   - point out possible lock contention
`)
	if len(parts) > 1 {
		b.WriteString("   - watch for duplicated work across the chain\n")
	}
	b.WriteString("\nBe specific and practical. Focus on real performance gains.\n")
	b.WriteString(responseSchema)

	return b.String()
}

func splitChain(query string) []string {
	var parts []string
	for _, part := range strings.Split(query, ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
