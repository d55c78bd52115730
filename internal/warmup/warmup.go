// Package warmup pre-populates the analysis cache from a file of sample
// queries.
package warmup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mickamy/xadvise/internal/cache"
	"github.com/mickamy/xadvise/internal/logging"
	"github.com/mickamy/xadvise/internal/model"
)

// TestQuery is one named sample statement.
type TestQuery struct {
	Name        string `json:"name"`
	Query       string `json:"query"`
	Description string `json:"description,omitempty"`
}

type queryFile struct {
	TestQueries []TestQuery `json:"test_queries"`
}

// QueryResult records the outcome of warming one query.
type QueryResult struct {
	Name                 string `json:"name"`
	Query                string `json:"query"`
	Status               string `json:"status"`
	Error                string `json:"error,omitempty"`
	HasRewrittenQuery    bool   `json:"has_rewritten_query"`
	RecommendationsCount int    `json:"recommendations_count"`
}

// Result summarizes a warmup run.
type Result struct {
	Status       string        `json:"status"`
	Processed    int           `json:"processed"`
	Errors       int           `json:"errors"`
	TotalQueries int           `json:"total_queries"`
	CacheStats   cache.Stats   `json:"cache_stats"`
	Results      []QueryResult `json:"results"`
}

// HitProbe reports how long one analysis took, with cache state before
// and after so a repeat call shows the hit.
type HitProbe struct {
	Status               string      `json:"status"`
	ExecutionTime        float64     `json:"execution_time"`
	HasRewrittenQuery    bool        `json:"has_rewritten_query"`
	RecommendationsCount int         `json:"recommendations_count"`
	CacheStats           cache.Stats `json:"cache_stats"`
}

// Analyzer runs one statement through the full analysis pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, query string) (*model.QueryAnalysis, error)
	Cache() *cache.Cache
}

// LoadQueries reads the sample query file. A missing file is not an
// error; it yields an empty list.
func LoadQueries(path string) ([]TestQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Logger.Warn("test queries file not found", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("warmup: read %s: %w", path, err)
	}

	var file queryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("warmup: parse %s: %w", path, err)
	}
	return file.TestQueries, nil
}

// Run analyzes up to limit queries from path, populating the cache.
// Queries run concurrently; individual failures are recorded, not
// propagated.
func Run(ctx context.Context, analyzer Analyzer, path string, limit int) (*Result, error) {
	queries, err := LoadQueries(path)
	if err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return &Result{Status: "no_queries", Results: []QueryResult{}, CacheStats: analyzer.Cache().Stats()}, nil
	}
	if limit > 0 && len(queries) > limit {
		queries = queries[:limit]
	}

	logging.Logger.Info("starting cache warmup", "queries", len(queries))

	results := make([]QueryResult, len(queries))
	var mu sync.Mutex
	processed, failed := 0, 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, q := range queries {
		g.Go(func() error {
			result := QueryResult{Name: q.Name, Query: clipQuery(q.Query)}

			analysis, err := analyzer.Analyze(gctx, q.Query)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logging.Logger.Error("warmup query failed", "name", q.Name, "error", err)
				result.Status = "error"
				result.Error = err.Error()
				failed++
			} else {
				result.Status = "success"
				result.HasRewrittenQuery = analysis.RewrittenQuery != nil
				result.RecommendationsCount = len(analysis.Recommendations)
				processed++
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	logging.Logger.Info("cache warmup completed", "processed", processed, "errors", failed)
	return &Result{
		Status:       "completed",
		Processed:    processed,
		Errors:       failed,
		TotalQueries: len(queries),
		CacheStats:   analyzer.Cache().Stats(),
		Results:      results,
	}, nil
}

// TestHit times one analysis. Calling it twice with the same statement
// shows the cached second run.
func TestHit(ctx context.Context, analyzer Analyzer, query string) (*HitProbe, error) {
	start := time.Now()
	analysis, err := analyzer.Analyze(ctx, query)
	if err != nil {
		return nil, err
	}
	return &HitProbe{
		Status:               "success",
		ExecutionTime:        time.Since(start).Seconds(),
		HasRewrittenQuery:    analysis.RewrittenQuery != nil,
		RecommendationsCount: len(analysis.Recommendations),
		CacheStats:           analyzer.Cache().Stats(),
	}, nil
}

func clipQuery(q string) string {
	if len(q) > 100 {
		return q[:100] + "..."
	}
	return q
}
