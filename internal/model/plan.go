package model

// PlanNode captures one node in a PostgreSQL execution plan tree.
type PlanNode struct {
	NodeType        string
	RelationName    string
	IndexName       string
	JoinType        string
	Condition       string
	StartupCost     float64
	TotalCost       float64
	PlanRows        float64
	PlanWidth       float64
	ActualTotalTime float64
	ActualRows      float64
	// Extra carries engine-provided attributes that we do not interpret.
	Extra    map[string]any
	Children []*PlanNode
}

// PlanSource records how a plan was obtained.
type PlanSource string

const (
	// SourceMeasured means the engine planned the statement as written.
	SourceMeasured PlanSource = "measured"
	// SourceTranspiled means the engine planned a read-only SELECT
	// equivalent of a DML statement.
	SourceTranspiled PlanSource = "transpiled"
	// SourceSynthetic means no engine round-trip succeeded and the plan
	// is a best-effort placeholder.
	SourceSynthetic PlanSource = "synthetic"
)

// Plan wraps an acquired plan tree with its provenance.
type Plan struct {
	Root          *PlanNode
	Kind          string
	Source        PlanSource
	TranspiledSQL string
	Note          string
}

// NodeSummary is one entry of the flattened pre-order plan listing.
type NodeSummary struct {
	Level        int     `json:"level"`
	NodeType     string  `json:"node_type"`
	TotalCost    float64 `json:"cost"`
	Rows         float64 `json:"rows"`
	Width        float64 `json:"width"`
	RelationName string  `json:"relation_name"`
	IndexName    string  `json:"index_name"`
	JoinType     string  `json:"join_type"`
	Condition    string  `json:"condition"`
}

// PlanSummary holds the derived metrics for an acquired plan.
type PlanSummary struct {
	TotalCost       float64       `json:"total_cost"`
	ExecutionTimeMs float64       `json:"execution_time"`
	Rows            float64       `json:"rows"`
	Width           float64       `json:"width"`
	IOOperations    int           `json:"io_operations"`
	NodeCount       int           `json:"node_count"`
	Nodes           []NodeSummary `json:"nodes"`

	Kind          string     `json:"query_type"`
	Source        PlanSource `json:"source"`
	TranspiledSQL string     `json:"transpiled_sql,omitempty"`
	Note          string     `json:"note,omitempty"`
}
