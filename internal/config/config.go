package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Config holds the tunables for the advisor service.
type Config struct {
	Server     ServerConfig    `json:"server"`
	Database   DatabaseConfig  `json:"database"`
	LLM        LLMConfig       `json:"llm"`
	Cache      CacheConfig     `json:"cache"`
	Analysis   AnalysisConfig  `json:"analysis"`
	Logs       LogsConfig      `json:"logs"`
	Security   SecurityConfig  `json:"security"`
	Thresholds ThresholdConfig `json:"thresholds"`
	Insights   InsightConfig   `json:"insights"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr        string   `json:"addr"`
	CORSOrigins []string `json:"cors_origins"`
}

// DatabaseConfig points at the PostgreSQL instance under analysis.
type DatabaseConfig struct {
	URL string `json:"url"`
}

// ModelProfile is one selectable recommendation model.
type ModelProfile struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Model  string `json:"model"`
	APIKey string `json:"api_key"`
}

// LLMConfig configures the recommendation engine client. Profiles list
// alternate models the service can switch to at runtime.
type LLMConfig struct {
	URL      string         `json:"url"`
	Model    string         `json:"model"`
	APIKey   string         `json:"api_key"`
	Profiles []ModelProfile `json:"profiles"`
}

// CacheConfig bounds the analysis cache and drives startup warmup.
type CacheConfig struct {
	Capacity    int    `json:"capacity"`
	WarmupFile  string `json:"warmup_file"`
	WarmupLimit int    `json:"warmup_limit"`
}

// AnalysisConfig guards the analyze entry point.
type AnalysisConfig struct {
	MaxQueryLength int  `json:"max_query_length"`
	TimeoutSeconds int  `json:"timeout_seconds"`
	DirectDML      bool `json:"direct_dml"`
	SafetyCheck    bool `json:"safety_check"`
}

// LogsConfig locates and filters PostgreSQL server logs.
type LogsConfig struct {
	Directory   string  `json:"directory"`
	SlowQueryMs float64 `json:"slow_query_ms"`
}

// SecurityConfig restricts caller-supplied database URLs.
type SecurityConfig struct {
	AllowedHosts []string `json:"allowed_hosts"`
	AllowedPorts []int    `json:"allowed_ports"`
}

// ThresholdConfig defines the limits the configuration and log
// analyzers grade against.
type ThresholdConfig struct {
	CacheHitRatioWarn   float64 `json:"cache_hit_ratio_warn"`
	DeadTupleRatioWarn  float64 `json:"dead_tuple_ratio_warn"`
	ConnectionUsageWarn float64 `json:"connection_usage_warn"`
	SlowQueryCountWarn  int     `json:"slow_query_count_warn"`
	ErrorCountWarn      int     `json:"error_count_warn"`
}

// InsightConfig tunes the plan heuristics.
type InsightConfig struct {
	SeqScanWarnRows        int64   `json:"seq_scan_warn_rows"`
	SeqScanCriticalRows    int64   `json:"seq_scan_critical_rows"`
	SortWarnRows           int64   `json:"sort_warn_rows"`
	NestedLoopWarnRows     int64   `json:"nested_loop_warn_rows"`
	HotspotWarnPercent     float64 `json:"hotspot_warn_percent"`
	HotspotCriticalPercent float64 `json:"hotspot_critical_percent"`
}

var (
	mu     sync.RWMutex
	active = Default()
)

// Default returns the built-in configuration. Connection and API
// credentials fall back to the conventional environment variables.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8000",
			CORSOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		LLM: LLMConfig{
			URL:    "https://api.openai.com/v1",
			Model:  "gpt-4o",
			APIKey: os.Getenv("OPENAI_API_KEY"),
		},
		Cache: CacheConfig{
			Capacity:    100,
			WarmupFile:  "samples/test_queries.json",
			WarmupLimit: 5,
		},
		Analysis: AnalysisConfig{
			MaxQueryLength: 10000,
			TimeoutSeconds: 30,
			DirectDML:      true,
			SafetyCheck:    false,
		},
		Logs: LogsConfig{
			Directory:   "/var/log/postgresql",
			SlowQueryMs: 100,
		},
		Security: SecurityConfig{
			AllowedHosts: []string{"localhost", "127.0.0.1"},
			AllowedPorts: []int{5432, 5433, 5434},
		},
		Thresholds: ThresholdConfig{
			CacheHitRatioWarn:   0.90,
			DeadTupleRatioWarn:  0.20,
			ConnectionUsageWarn: 0.80,
			SlowQueryCountWarn:  10,
			ErrorCountWarn:      10,
		},
		Insights: InsightConfig{
			SeqScanWarnRows:        10000,
			SeqScanCriticalRows:    1000000,
			SortWarnRows:           100000,
			NestedLoopWarnRows:     10000,
			HotspotWarnPercent:     0.50,
			HotspotCriticalPercent: 0.80,
		},
	}
}

// Active returns the currently applied configuration.
func Active() Config {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// Use replaces the active configuration.
func Use(cfg Config) {
	mu.Lock()
	active = cfg
	mu.Unlock()
}

// Apply loads configuration from the provided path (JSON). Empty path
// resets to default.
func Apply(path string) error {
	if path == "" {
		Use(Default())
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	Use(cfg)
	return nil
}
