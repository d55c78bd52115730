package recommend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/xadvise/internal/model"
)

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req["model"])

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const sampleCompletion = `{
  "rewritten_query": "SELECT id FROM users WHERE email = $1",
  "resource_metrics": {"cpu_usage": 12.5, "memory_usage": null, "io_operations": 3, "disk_reads": null, "disk_writes": 0},
  "recommendations": [
    {
      "type": "index",
      "priority": "high",
      "title": "Add index on users.email",
      "description": "The sequential scan reads every row.",
      "potential_improvement": "Avoids the full table scan.",
      "implementation": "CREATE INDEX idx_users_email ON users (email);",
      "estimated_speedup": "50-70"
    },
    {
      "type": "rewrite",
      "priority": "urgent",
      "title": "Select only needed columns",
      "description": "",
      "potential_improvement": "",
      "implementation": "",
      "estimated_speedup": 2.5
    }
  ],
  "warnings": ["query selects all columns"]
}`

func TestAdvise(t *testing.T) {
	srv := completionServer(t, sampleCompletion)
	client := NewClient(Profile{Name: "default", URL: srv.URL, Model: "test-model"}, nil)

	summary := &model.PlanSummary{TotalCost: 100, Nodes: []model.NodeSummary{{NodeType: "Seq Scan"}}}
	advice, err := client.Advise(context.Background(), "SELECT * FROM users WHERE email = $1", summary, "")
	require.NoError(t, err)

	require.NotNil(t, advice.RewrittenQuery)
	assert.Equal(t, "SELECT id FROM users WHERE email = $1", *advice.RewrittenQuery)

	assert.Equal(t, 12.5, advice.ResourceMetrics.CPUUsage)
	assert.Zero(t, advice.ResourceMetrics.MemoryUsageMB, "null metric counts as zero")
	assert.Equal(t, int64(3), advice.ResourceMetrics.IOOperations)

	require.Len(t, advice.Recommendations, 2)

	first := advice.Recommendations[0]
	assert.Equal(t, model.PriorityHigh, first.Priority)
	require.NotNil(t, first.EstimatedSpeedup)
	assert.Equal(t, 60.0, *first.EstimatedSpeedup, "range averages to its midpoint")

	second := advice.Recommendations[1]
	assert.Equal(t, model.PriorityMedium, second.Priority, "unknown priority degrades to medium")
	require.NotNil(t, second.EstimatedSpeedup)
	assert.Equal(t, 2.5, *second.EstimatedSpeedup)

	assert.Equal(t, []string{"query selects all columns"}, advice.Warnings)
}

func TestAdviseStripsMarkdownFences(t *testing.T) {
	srv := completionServer(t, "```json\n{\"recommendations\": [], \"warnings\": []}\n```")
	client := NewClient(Profile{Name: "default", URL: srv.URL, Model: "test-model"}, nil)

	advice, err := client.Advise(context.Background(), "SELECT 1", &model.PlanSummary{}, "")
	require.NoError(t, err)
	assert.Empty(t, advice.Recommendations)
	assert.NotNil(t, advice.Recommendations, "absent recommendations stay an empty slice")
	assert.NotNil(t, advice.Warnings)
}

func TestAdviseEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "model overloaded"}}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	client := NewClient(Profile{Name: "default", URL: srv.URL, Model: "test-model"}, nil)

	_, err := client.Advise(context.Background(), "SELECT 1", &model.PlanSummary{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestPing(t *testing.T) {
	srv := completionServer(t, "ok")
	client := NewClient(Profile{Name: "default", URL: srv.URL, Model: "test-model"}, nil)
	assert.NoError(t, client.Ping(context.Background()))

	srv.Close()
	assert.Error(t, client.Ping(context.Background()))
}

func TestSwitch(t *testing.T) {
	client := NewClient(
		Profile{Name: "default", URL: "http://primary", Model: "a"},
		[]Profile{{Name: "local", URL: "http://alt", Model: "b"}},
	)

	assert.Equal(t, "default", client.Active().Name)
	require.NoError(t, client.Switch("local"))
	assert.Equal(t, "b", client.Active().Model)
	assert.Error(t, client.Switch("missing"))
	assert.Equal(t, "local", client.Active().Name, "failed switch keeps the active profile")
	assert.Len(t, client.Profiles(), 2)
}

func TestParseSpeedup(t *testing.T) {
	tcs := []struct {
		raw  string
		want *float64
	}{
		{`3`, ptr(3.0)},
		{`"40"`, ptr(40.0)},
		{`"25%"`, ptr(25.0)},
		{`"50-70"`, ptr(60.0)},
		{`"50 - 70"`, ptr(60.0)},
		{`"50-70%"`, ptr(60.0)},
		{`null`, nil},
		{`"unknown"`, nil},
		{`{"min": 1}`, nil},
		{``, nil},
	}
	for _, tc := range tcs {
		got := parseSpeedup(json.RawMessage(tc.raw))
		if tc.want == nil {
			assert.Nil(t, got, "raw=%s", tc.raw)
		} else if assert.NotNil(t, got, "raw=%s", tc.raw) {
			assert.Equal(t, *tc.want, *got, "raw=%s", tc.raw)
		}
	}
}

func ptr(f float64) *float64 { return &f }
