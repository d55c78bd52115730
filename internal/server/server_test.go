package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/xadvise/internal/advisor"
	"github.com/mickamy/xadvise/internal/cache"
	"github.com/mickamy/xadvise/internal/engine"
	"github.com/mickamy/xadvise/internal/logs"
	"github.com/mickamy/xadvise/internal/model"
	"github.com/mickamy/xadvise/internal/recommend"
	"github.com/mickamy/xadvise/internal/server"
)

type fakePlanSource struct{}

func (fakePlanSource) Plan(context.Context, string) (*model.PlanNode, error) {
	return &model.PlanNode{NodeType: "Seq Scan", RelationName: "users", TotalCost: 10, PlanRows: 5}, nil
}

const cannedCompletion = `{"rewritten_query": null, "resource_metrics": {}, "recommendations": [{"type": "index", "priority": "high", "title": "Add index", "description": "", "potential_improvement": "", "implementation": "", "estimated_speedup": null}], "warnings": []}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	completions := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": cannedCompletion}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(completions.Close)

	recommender := recommend.NewClient(
		recommend.Profile{Name: "default", URL: completions.URL, Model: "test-model"},
		[]recommend.Profile{{Name: "local", URL: completions.URL, Model: "alt-model"}},
	)
	adv := advisor.New(fakePlanSource{}, recommender, cache.New(10), nil)
	db := engine.NewPostgres("postgresql://postgres@localhost:5432/test")
	logAnalyzer := logs.NewAnalyzer(t.TempDir(), 100)

	srv := httptest.NewServer(server.New(adv, db, recommender, logAnalyzer, "test").Router())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	decodeBody(t, resp, out)
	return resp
}

func postJSON(t *testing.T, url string, body string, out any) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	decodeBody(t, resp, out)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestRoot(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "test", body["version"])
	assert.NotEmpty(t, body["message"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"), "every response carries a request id")
}

func TestAnalyzeEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var analysis model.QueryAnalysis
	resp := postJSON(t, srv.URL+"/analyze", `{"query": "SELECT * FROM users"}`, &analysis)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "SELECT * FROM users", analysis.Query)
	require.Len(t, analysis.Recommendations, 1)
	assert.Equal(t, "Add index", analysis.Recommendations[0].Title)
}

func TestAnalyzeEndpointRejectsBadInput(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/analyze", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errBody map[string]string
	resp = postJSON(t, srv.URL+"/analyze", `{"query": "  "}`, &errBody)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotEmpty(t, errBody["error"])
}

func TestCacheEndpoints(t *testing.T) {
	srv := newTestServer(t)

	postJSON(t, srv.URL+"/analyze", `{"query": "SELECT * FROM users"}`, nil)

	var stats struct {
		Status     string      `json:"status"`
		CacheStats cache.Stats `json:"cache_stats"`
	}
	resp := getJSON(t, srv.URL+"/cache/stats", &stats)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", stats.Status)
	assert.Equal(t, 1, stats.CacheStats.Size)

	var cleared map[string]string
	resp = postJSON(t, srv.URL+"/cache/clear", ``, &cleared)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", cleared["status"])

	getJSON(t, srv.URL+"/cache/stats", &stats)
	assert.Zero(t, stats.CacheStats.Size)
}

func TestCacheTestEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Status     string `json:"status"`
		TestResult struct {
			Status               string `json:"status"`
			RecommendationsCount int    `json:"recommendations_count"`
		} `json:"test_result"`
	}
	resp := postJSON(t, srv.URL+"/cache/test", `{"query": "SELECT * FROM users"}`, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 1, body.TestResult.RecommendationsCount)
}

func TestModelsEndpoints(t *testing.T) {
	srv := newTestServer(t)

	var listing struct {
		Models []struct {
			Name      string `json:"name"`
			IsCurrent bool   `json:"is_current"`
		} `json:"models"`
		CurrentModel string `json:"current_model"`
	}
	resp := getJSON(t, srv.URL+"/models/", &listing)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "default", listing.CurrentModel)
	require.Len(t, listing.Models, 2)
	assert.True(t, listing.Models[0].IsCurrent)

	var switched map[string]any
	resp = postJSON(t, srv.URL+"/models/switch", `{"model_name": "local"}`, &switched)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "local", switched["current_model"])

	resp = postJSON(t, srv.URL+"/models/switch", `{"model_name": "missing"}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/models/switch", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExamplesEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Examples []struct {
			Name  string `json:"name"`
			Query string `json:"query"`
		} `json:"examples"`
	}
	resp := getJSON(t, srv.URL+"/examples", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body.Examples, "chain examples are always present")
}

func TestLogsAnalyzeEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Status   string        `json:"status"`
		Analysis logs.Analysis `json:"analysis"`
	}
	resp := getJSON(t, srv.URL+"/logs/analyze?hours_back=2", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body.Status)
	assert.Empty(t, body.Analysis.SlowQueries)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	decodeBody(t, resp, nil)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodOptions, srv.URL+"/analyze", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	decodeBody(t, resp, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example.org")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	decodeBody(t, resp, nil)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPassthrough(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	decodeBody(t, resp, nil)
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}
