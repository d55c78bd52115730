package model

import "time"

// Priority expresses the urgency of a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether the priority is one of the known levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Recommendation is a single optimization suggestion.
type Recommendation struct {
	Type                 string   `json:"type"`
	Priority             Priority `json:"priority"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	PotentialImprovement string   `json:"potential_improvement"`
	Implementation       string   `json:"implementation"`
	EstimatedSpeedup     *float64 `json:"estimated_speedup,omitempty"`
}

// ResourceMetrics estimates the resource footprint of a statement.
type ResourceMetrics struct {
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryUsageMB float64 `json:"memory_usage"`
	IOOperations  int64   `json:"io_operations"`
	DiskReads     int64   `json:"disk_reads"`
	DiskWrites    int64   `json:"disk_writes"`
}

// Advice is the structured output of the recommendation engine.
type Advice struct {
	RewrittenQuery  *string          `json:"rewritten_query"`
	ResourceMetrics ResourceMetrics  `json:"resource_metrics"`
	Recommendations []Recommendation `json:"recommendations"`
	Warnings        []string         `json:"warnings"`
}

// QueryAnalysis is the caller-facing result of a full analysis.
type QueryAnalysis struct {
	Query           string           `json:"query"`
	RewrittenQuery  *string          `json:"rewritten_query,omitempty"`
	ExecutionPlan   PlanSummary      `json:"execution_plan"`
	ResourceMetrics ResourceMetrics  `json:"resource_metrics"`
	Recommendations []Recommendation `json:"recommendations"`
	Warnings        []string         `json:"warnings"`
	Timestamp       time.Time        `json:"analysis_timestamp"`
}
