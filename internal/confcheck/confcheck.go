// Package confcheck evaluates PostgreSQL server settings and runtime
// statistics against tuning heuristics.
package confcheck

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mickamy/xadvise/internal/config"
	"github.com/mickamy/xadvise/internal/engine"
)

// watchedSettings are the pg_settings rows the heuristics evaluate.
var watchedSettings = []string{
	"shared_buffers", "work_mem", "maintenance_work_mem", "effective_cache_size",
	"max_connections", "checkpoint_completion_target", "wal_buffers",
	"random_page_cost", "effective_io_concurrency",
	"log_min_duration_statement", "log_statement", "log_line_prefix",
	"autovacuum", "autovacuum_naptime",
}

// Severity expresses the urgency of a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Finding is one observation about the server configuration or its
// runtime statistics.
type Finding struct {
	Severity       Severity `json:"severity"`
	Category       string   `json:"category"`
	Text           string   `json:"text"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// SettingAdvice proposes a concrete value for one setting.
type SettingAdvice struct {
	Category         string `json:"category"`
	Setting          string `json:"setting"`
	CurrentValue     string `json:"current_value"`
	RecommendedValue string `json:"recommended_value"`
	Priority         string `json:"priority"`
	Description      string `json:"description"`
	Impact           string `json:"impact"`
}

// Report is the full configuration analysis.
type Report struct {
	Settings        map[string]engine.Setting `json:"settings"`
	Activity        *engine.ActivitySnapshot  `json:"activity"`
	Findings        []Finding                 `json:"findings"`
	Advice          []SettingAdvice           `json:"recommendations"`
	CacheHitRatio   float64                   `json:"cache_hit_ratio"`
	RollbackRatio   float64                   `json:"rollback_ratio"`
	ConnectionUsage float64                   `json:"connection_usage"`
	OverallHealth   string                    `json:"overall_health"`
}

// Source exposes the introspection calls the analysis needs.
type Source interface {
	Settings(ctx context.Context, names []string) (map[string]engine.Setting, error)
	ActivitySnapshot(ctx context.Context) (*engine.ActivitySnapshot, error)
	DatabaseStats(ctx context.Context) (*engine.DatabaseStats, error)
	TableStatistics(ctx context.Context) (*engine.TableStatistics, error)
}

// Analyze collects settings and statistics from src and evaluates them
// against the thresholds in cfg.
func Analyze(ctx context.Context, src Source, cfg config.ThresholdConfig) (*Report, error) {
	settings, err := src.Settings(ctx, watchedSettings)
	if err != nil {
		return nil, fmt.Errorf("confcheck: %w", err)
	}
	activity, err := src.ActivitySnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("confcheck: %w", err)
	}
	dbStats, err := src.DatabaseStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("confcheck: %w", err)
	}
	tableStats, err := src.TableStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("confcheck: %w", err)
	}

	report := &Report{
		Settings: settings,
		Activity: activity,
		Findings: []Finding{},
		Advice:   []SettingAdvice{},
	}

	report.Findings = append(report.Findings, memoryFindings(settings)...)
	report.Findings = append(report.Findings, connectionFindings(activity, cfg, report)...)
	report.Findings = append(report.Findings, performanceFindings(dbStats, cfg, report)...)
	report.Findings = append(report.Findings, maintenanceFindings(tableStats, cfg)...)
	report.Advice = settingAdvice(settings)

	report.OverallHealth = overallHealth(report.Findings)
	return report, nil
}

func memoryFindings(settings map[string]engine.Setting) []Finding {
	var out []Finding

	if mb, ok := settingMB(settings, "shared_buffers"); ok && mb < 128 {
		out = append(out, Finding{
			Severity:       SeverityWarning,
			Category:       "memory",
			Text:           fmt.Sprintf("shared_buffers is too small (%d MB)", mb),
			Recommendation: "Raise shared_buffers to about 25% of RAM",
		})
	}
	if mb, ok := settingMB(settings, "work_mem"); ok {
		if mb < 4 {
			out = append(out, Finding{
				Severity:       SeverityWarning,
				Category:       "memory",
				Text:           fmt.Sprintf("work_mem is too small (%d MB)", mb),
				Recommendation: "Raise work_mem to 4-16MB",
			})
		} else if mb > 64 {
			out = append(out, Finding{
				Severity:       SeverityWarning,
				Category:       "memory",
				Text:           fmt.Sprintf("work_mem is too large (%d MB)", mb),
				Recommendation: "Lower work_mem to 16-32MB",
			})
		}
	}
	return out
}

func connectionFindings(activity *engine.ActivitySnapshot, cfg config.ThresholdConfig, report *Report) []Finding {
	if activity == nil || activity.MaxConnections == 0 {
		return nil
	}
	usage := float64(activity.Total) / float64(activity.MaxConnections)
	report.ConnectionUsage = usage

	warn := cfg.ConnectionUsageWarn
	if warn <= 0 {
		warn = 0.80
	}

	switch {
	case usage > warn:
		return []Finding{{
			Severity:       SeverityCritical,
			Category:       "connections",
			Text:           fmt.Sprintf("High connection usage: %.1f%%", usage*100),
			Recommendation: "Consider raising max_connections or pooling connections",
		}}
	case usage > 0.60:
		return []Finding{{
			Severity:       SeverityWarning,
			Category:       "connections",
			Text:           fmt.Sprintf("Moderate connection usage: %.1f%%", usage*100),
			Recommendation: "Monitor connection usage",
		}}
	}
	return nil
}

func performanceFindings(stats *engine.DatabaseStats, cfg config.ThresholdConfig, report *Report) []Finding {
	if stats == nil {
		return nil
	}
	var out []Finding

	hitWarn := cfg.CacheHitRatioWarn
	if hitWarn <= 0 {
		hitWarn = 0.90
	}
	if total := stats.BlocksHit + stats.BlocksRead; total > 0 {
		ratio := float64(stats.BlocksHit) / float64(total)
		report.CacheHitRatio = ratio
		if ratio < hitWarn {
			out = append(out, Finding{
				Severity:       SeverityWarning,
				Category:       "performance",
				Text:           fmt.Sprintf("Low cache hit ratio: %.1f%%", ratio*100),
				Recommendation: "Raise shared_buffers to improve the hit ratio",
			})
		}
	}

	if total := stats.XactCommit + stats.XactRollback; total > 0 {
		ratio := float64(stats.XactRollback) / float64(total)
		report.RollbackRatio = ratio
		if ratio > 0.10 {
			out = append(out, Finding{
				Severity:       SeverityWarning,
				Category:       "performance",
				Text:           fmt.Sprintf("High rollback ratio: %.1f%%", ratio*100),
				Recommendation: "Check application logic for frequent rollbacks",
			})
		}
	}
	return out
}

func maintenanceFindings(stats *engine.TableStatistics, cfg config.ThresholdConfig) []Finding {
	if stats == nil {
		return nil
	}
	deadWarn := cfg.DeadTupleRatioWarn
	if deadWarn <= 0 {
		deadWarn = 0.20
	}

	var out []Finding
	for name, ts := range stats.Tables {
		if ts.LiveTuples == 0 {
			continue
		}
		ratio := float64(ts.DeadTuples) / float64(ts.LiveTuples)
		if ratio > deadWarn {
			out = append(out, Finding{
				Severity:       SeverityWarning,
				Category:       "maintenance",
				Text:           fmt.Sprintf("High dead tuple ratio in %s: %.1f%%", name, ratio*100),
				Recommendation: fmt.Sprintf("Run VACUUM on table %s", name),
			})
		}
	}
	return out
}

func settingAdvice(settings map[string]engine.Setting) []SettingAdvice {
	var out []SettingAdvice

	if mb, ok := settingMB(settings, "shared_buffers"); ok && mb < 256 {
		out = append(out, SettingAdvice{
			Category:         "memory",
			Setting:          "shared_buffers",
			CurrentValue:     settingValue(settings, "shared_buffers"),
			RecommendedValue: "256MB",
			Priority:         "high",
			Description:      "Raise shared_buffers for better performance",
			Impact:           "Improves in-memory data caching",
		})
	}
	if mb, ok := settingMB(settings, "work_mem"); ok && mb < 8 {
		out = append(out, SettingAdvice{
			Category:         "memory",
			Setting:          "work_mem",
			CurrentValue:     settingValue(settings, "work_mem"),
			RecommendedValue: "8MB",
			Priority:         "medium",
			Description:      "Raise work_mem for better sorting and hashing",
			Impact:           "Speeds up sort and JOIN operations",
		})
	}
	if s, ok := settings["log_min_duration_statement"]; ok && s.Value == "-1" {
		out = append(out, SettingAdvice{
			Category:         "monitoring",
			Setting:          "log_min_duration_statement",
			CurrentValue:     "disabled",
			RecommendedValue: "1000ms",
			Priority:         "low",
			Description:      "Enable slow statement logging",
			Impact:           "Makes performance monitoring possible",
		})
	}
	return out
}

func overallHealth(findings []Finding) string {
	issues := 0
	for _, f := range findings {
		if f.Severity != SeverityInfo {
			issues++
		}
	}
	switch {
	case issues > 5:
		return "poor"
	case issues > 2:
		return "fair"
	default:
		return "good"
	}
}

// settingMB reads a pg_settings value as megabytes. pg_settings reports
// memory values as a count of units (for example 8kB pages for
// shared_buffers), so the unit has to be applied.
func settingMB(settings map[string]engine.Setting, name string) (int64, bool) {
	s, ok := settings[name]
	if !ok || s.Value == "" || s.Value == "0" {
		return 0, false
	}
	n, err := strconv.ParseInt(s.Value, 10, 64)
	if err != nil {
		return 0, false
	}

	unit := strings.TrimSpace(s.Unit)
	var bytes int64
	switch {
	case strings.HasSuffix(unit, "kB"):
		factor := int64(1)
		if prefix := strings.TrimSuffix(unit, "kB"); prefix != "" {
			if f, err := strconv.ParseInt(prefix, 10, 64); err == nil {
				factor = f
			}
		}
		bytes = n * factor * 1024
	case unit == "MB":
		bytes = n * 1024 * 1024
	case unit == "GB":
		bytes = n * 1024 * 1024 * 1024
	case unit == "B" || unit == "":
		bytes = n
	default:
		return 0, false
	}
	return bytes / (1024 * 1024), true
}

func settingValue(settings map[string]engine.Setting, name string) string {
	s, ok := settings[name]
	if !ok {
		return ""
	}
	if s.Unit != "" {
		return s.Value + " " + s.Unit
	}
	return s.Value
}
