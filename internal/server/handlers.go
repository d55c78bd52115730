package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mickamy/xadvise/internal/confcheck"
	"github.com/mickamy/xadvise/internal/config"
	"github.com/mickamy/xadvise/internal/engine"
	"github.com/mickamy/xadvise/internal/logging"
	"github.com/mickamy/xadvise/internal/security"
	"github.com/mickamy/xadvise/internal/warmup"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "PostgreSQL query advisor API",
		"version": s.version,
	})
}

type healthResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	DatabaseConnected bool      `json:"database_connected"`
	ModelAvailable    bool      `json:"model_available"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dbOK := s.db.Ping(ctx) == nil
	modelOK := s.recommender.Ping(ctx) == nil

	status := "healthy"
	if !dbOK || !modelOK {
		status = "unhealthy"
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:            status,
		Timestamp:         time.Now(),
		DatabaseConnected: dbOK,
		ModelAvailable:    modelOK,
	})
}

func (s *Server) handleFullHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dbOK := s.db.Ping(ctx) == nil
	modelOK := s.recommender.Ping(ctx) == nil

	var configHealth string
	var configIssues int
	var configAdvice []confcheck.SettingAdvice
	report, err := confcheck.Analyze(ctx, s.db, config.Active().Thresholds)
	if err != nil {
		logging.Logger.Warn("configuration analysis failed during health check", "error", err)
		configHealth = "unknown"
	} else {
		configHealth = report.OverallHealth
		configIssues = len(report.Findings)
		configAdvice = report.Advice
		if len(configAdvice) > 3 {
			configAdvice = configAdvice[:3]
		}
	}

	logReport := s.logs.Analyze(1)
	logAdvice := logReport.Summary.Recommendations
	if len(logAdvice) > 3 {
		logAdvice = logAdvice[:3]
	}

	status := "healthy"
	switch {
	case !dbOK || !modelOK:
		status = "unhealthy"
	case configHealth != "good" && configHealth != "unknown":
		status = "degraded"
	case logReport.Summary.TotalErrors > config.Active().Thresholds.ErrorCountWarn:
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":               status,
		"timestamp":            time.Now(),
		"database_connected":   dbOK,
		"model_available":      modelOK,
		"configuration_health": configHealth,
		"configuration_issues": configIssues,
		"recent_errors":        logReport.Summary.TotalErrors,
		"recommendations": map[string]any{
			"config": configAdvice,
			"logs":   logAdvice,
		},
	})
}

type analyzeRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	analysis, err := s.advisor.Analyze(r.Context(), req.Query)
	if err != nil {
		logging.FromContext(r.Context()).Error("analysis failed", "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// chainExamples are multi-statement samples appended to the file-backed
// examples.
var chainExamples = []warmup.TestQuery{
	{
		Name: "Chain: user activity",
		Query: "SELECT * FROM users WHERE email = 'john@example.com';\n" +
			"SELECT COUNT(*) AS order_count FROM orders WHERE user_id = (SELECT id FROM users WHERE email = 'john@example.com');\n" +
			"SELECT o.total_amount, oi.product_name FROM orders o JOIN order_items oi ON o.id = oi.order_id " +
			"WHERE o.user_id = (SELECT id FROM users WHERE email = 'john@example.com') ORDER BY o.created_at DESC;",
		Description: "Query chain inspecting one user's orders",
	},
	{
		Name: "Chain: sales report",
		Query: "SELECT DATE(created_at) AS date, COUNT(*) AS orders_count, SUM(total_amount) AS total_revenue " +
			"FROM orders GROUP BY DATE(created_at) ORDER BY date DESC LIMIT 30;\n" +
			"SELECT p.name, SUM(oi.quantity) AS sold FROM products p JOIN order_items oi ON p.id = oi.product_id " +
			"GROUP BY p.name ORDER BY sold DESC LIMIT 10;",
		Description: "Query chain building a sales report",
	},
}

func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	cfg := config.Active().Cache
	examples, err := warmup.LoadQueries(cfg.WarmupFile)
	if err != nil {
		logging.Logger.Warn("failed to load example queries", "error", err)
	}
	examples = append(examples, chainExamples...)
	writeJSON(w, http.StatusOK, map[string]any{"examples": examples})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"cache_stats": s.advisor.Cache().Stats(),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.advisor.Cache().Clear()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Cache cleared successfully",
	})
}

func (s *Server) handleCacheWarmup(w http.ResponseWriter, r *http.Request) {
	cfg := config.Active().Cache
	limit := queryInt(r, "max_queries", cfg.WarmupLimit)

	result, err := warmup.Run(r.Context(), s.advisor, cfg.WarmupFile, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"warmup_result": result,
	})
}

func (s *Server) handleCacheTest(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	probe, err := warmup.TestHit(r.Context(), s.advisor, req.Query)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"test_result": probe,
	})
}

func (s *Server) handleDatabaseInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.db.DatabaseInfo(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type databaseTestRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleDatabaseTest(w http.ResponseWriter, r *http.Request) {
	var req databaseTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := config.Active().Security
	policy := security.Policy{AllowedHosts: cfg.AllowedHosts, AllowedPorts: cfg.AllowedPorts}
	if err := policy.ValidateDatabaseURL(req.URL); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": err.Error()})
		return
	}

	if err := engine.NewPostgres(req.URL).Ping(r.Context()); err != nil {
		logging.FromContext(r.Context()).Warn("database connection test failed",
			"url", security.SanitizeURL(req.URL), "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "Database connection failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Database connection successful"})
}

func (s *Server) handleTableStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.TableStatistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"statistics": stats,
		"timestamp":  time.Now(),
	})
}

func (s *Server) handleLogsAnalyze(w http.ResponseWriter, r *http.Request) {
	hoursBack := queryInt(r, "hours_back", 24)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"analysis": s.logs.Analyze(hoursBack),
	})
}

func (s *Server) handleConfigAnalyze(w http.ResponseWriter, r *http.Request) {
	report, err := confcheck.Analyze(r.Context(), s.db, config.Active().Thresholds)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"analysis": report,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	active := s.recommender.Active()
	profiles := s.recommender.Profiles()

	models := make([]map[string]any, 0, len(profiles))
	for _, p := range profiles {
		models = append(models, map[string]any{
			"name":       p.Name,
			"model":      p.Model,
			"url":        p.URL,
			"is_current": p.Name == active.Name,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":        models,
		"current_model": active.Name,
	})
}

type modelSwitchRequest struct {
	ModelName string `json:"model_name"`
}

func (s *Server) handleModelSwitch(w http.ResponseWriter, r *http.Request) {
	var req modelSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ModelName == "" {
		writeError(w, http.StatusBadRequest, "model_name is required")
		return
	}

	if err := s.recommender.Switch(req.ModelName); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	active := s.recommender.Active()
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Successfully switched to " + active.Name,
		"current_model": active.Name,
		"model_info": map[string]string{
			"name":  active.Name,
			"model": active.Model,
			"url":   active.URL,
		},
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
