// Package advisor wires statement classification, plan acquisition, and
// the recommendation backend into one analysis pipeline with a
// content-addressed result cache.
package advisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mickamy/xadvise/internal/cache"
	"github.com/mickamy/xadvise/internal/config"
	"github.com/mickamy/xadvise/internal/engine"
	"github.com/mickamy/xadvise/internal/insight"
	"github.com/mickamy/xadvise/internal/logging"
	"github.com/mickamy/xadvise/internal/model"
	"github.com/mickamy/xadvise/internal/planner"
	"github.com/mickamy/xadvise/internal/recommend"
	"github.com/mickamy/xadvise/internal/security"
	"github.com/mickamy/xadvise/internal/statement"
)

// Recommender produces advice for a summarized plan.
type Recommender interface {
	Advise(ctx context.Context, query string, summary *model.PlanSummary, tableContext string) (*model.Advice, error)
	Ping(ctx context.Context) error
	Active() recommend.Profile
}

// TableStatsSource supplies optional table statistics context for the
// recommendation prompt.
type TableStatsSource interface {
	TableStatistics(ctx context.Context) (*engine.TableStatistics, error)
}

// Advisor runs the full analysis pipeline.
type Advisor struct {
	planner     *planner.Controller
	recommender Recommender
	cache       *cache.Cache
	tables      TableStatsSource
}

// New builds an advisor. tables may be nil; advice is then produced
// without table statistics context.
func New(plans engine.PlanSource, recommender Recommender, resultCache *cache.Cache, tables TableStatsSource) *Advisor {
	cfg := config.Active().Analysis
	return &Advisor{
		planner:     planner.New(plans, planner.Options{DirectDML: cfg.DirectDML}),
		recommender: recommender,
		cache:       resultCache,
		tables:      tables,
	}
}

// Cache exposes the result cache for stats and warmup.
func (a *Advisor) Cache() *cache.Cache {
	return a.cache
}

// Analyze validates query, acquires its execution plan, and returns
// advice, served from the cache when an identical analysis was already
// computed.
func (a *Advisor) Analyze(ctx context.Context, query string) (*model.QueryAnalysis, error) {
	cfg := config.Active().Analysis

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if cfg.MaxQueryLength > 0 && len(trimmed) > cfg.MaxQueryLength {
		return nil, fmt.Errorf("query exceeds maximum length of %d characters", cfg.MaxQueryLength)
	}
	if cfg.SafetyCheck {
		if err := security.CheckQuery(trimmed); err != nil {
			return nil, err
		}
	}

	if cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	// For a semicolon-separated chain only the first statement is planned;
	// the recommender still sees the chain as a whole.
	plan, err := a.planner.Acquire(ctx, firstStatement(trimmed))
	if err != nil {
		return nil, err
	}
	summary := planner.Summarize(plan)

	key := cache.Key(a.recommender.Active().Model, trimmed, &summary)
	advice, hit, err := a.cache.ComputeOrFetch(ctx, key, func(ctx context.Context) (*model.Advice, error) {
		return a.recommender.Advise(ctx, trimmed, &summary, a.tableContext(ctx, trimmed))
	})
	if err != nil {
		return nil, fmt.Errorf("analyze query: %w", err)
	}
	logging.Logger.Debug("analysis complete",
		"kind", summary.Kind, "source", summary.Source, "cache_hit", hit)

	warnings := append([]string{}, advice.Warnings...)
	warnings = append(warnings, insight.Warnings(plan)...)

	return &model.QueryAnalysis{
		Query:           trimmed,
		RewrittenQuery:  advice.RewrittenQuery,
		ExecutionPlan:   summary,
		ResourceMetrics: advice.ResourceMetrics,
		Recommendations: advice.Recommendations,
		Warnings:        warnings,
		Timestamp:       time.Now(),
	}, nil
}

func firstStatement(query string) string {
	head, rest, found := strings.Cut(query, ";")
	if !found || strings.TrimSpace(rest) == "" {
		return query
	}
	return strings.TrimSpace(head)
}

// tableContext renders statistics for the table the statement touches.
// Failures degrade to an empty context rather than failing the analysis.
func (a *Advisor) tableContext(ctx context.Context, query string) string {
	if a.tables == nil {
		return ""
	}
	stats, err := a.tables.TableStatistics(ctx)
	if err != nil {
		logging.Logger.Warn("table statistics unavailable", "error", err)
		return ""
	}

	table := statement.TableName(query)
	ts, ok := stats.Tables[table]
	if !ok {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "- table %s: %d live rows, %d dead rows, size %s\n",
		table, ts.LiveTuples, ts.DeadTuples, ts.SizePretty)
	for _, idx := range ts.Indexes {
		fmt.Fprintf(&b, "- index %s: %d scans\n", idx.IndexName, idx.Scans)
	}
	return b.String()
}
