// Package recommend turns an execution plan summary into tuning advice
// using an OpenAI-compatible chat completions endpoint.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mickamy/xadvise/internal/logging"
	"github.com/mickamy/xadvise/internal/model"
)

// Profile names one selectable completion backend.
type Profile struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Model  string `json:"model"`
	APIKey string `json:"-"`
}

// Client calls a chat completions endpoint and parses the structured
// advice it returns. The active profile can be switched at runtime.
type Client struct {
	httpClient *http.Client

	mu       sync.RWMutex
	active   Profile
	profiles []Profile
}

// NewClient builds a client with the given default profile and optional
// alternates.
func NewClient(active Profile, alternates []Profile) *Client {
	profiles := append([]Profile{active}, alternates...)
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		active:     active,
		profiles:   profiles,
	}
}

// Active returns the profile currently in use.
func (c *Client) Active() Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Profiles lists all configured profiles.
func (c *Client) Profiles() []Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Profile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// Switch makes the named profile active. It returns an error when no
// profile with that name is configured.
func (c *Client) Switch(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.profiles {
		if p.Name == name {
			c.active = p
			logging.Logger.Info("switched completion profile", "profile", name, "model", p.Model)
			return nil
		}
	}
	return fmt.Errorf("unknown model profile %q", name)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

const systemPrompt = "You are a PostgreSQL optimization expert. Analyze SQL " +
	"statements and their execution plans, and provide detailed performance " +
	"recommendations. Respond ONLY with JSON, no additional text."

// Advise asks the active backend for advice on query given its plan
// summary and optional table statistics context.
func (c *Client) Advise(ctx context.Context, query string, summary *model.PlanSummary, tableContext string) (*model.Advice, error) {
	prompt := buildPrompt(query, summary, tableContext)

	content, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}, 0)
	if err != nil {
		return nil, err
	}

	advice, err := parseAdvice(content)
	if err != nil {
		return nil, fmt.Errorf("parse completion response: %w", err)
	}
	return advice, nil
}

// Ping issues a minimal completion to verify the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.complete(ctx, []chatMessage{{Role: "user", Content: "Test"}}, 1)
	return err
}

func (c *Client) complete(ctx context.Context, messages []chatMessage, maxTokens int) (string, error) {
	profile := c.Active()

	body, err := json.Marshal(chatRequest{
		Model:       profile.Model,
		Messages:    messages,
		Temperature: 0.1,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	endpoint := strings.TrimSuffix(profile.URL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if profile.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+profile.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call completion endpoint: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("completion endpoint error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// rawAdvice mirrors the JSON shape the model is asked to produce.
// estimated_speedup is declared loosely: models return numbers, strings,
// and ranges like "50-70".
type rawAdvice struct {
	RewrittenQuery  *string `json:"rewritten_query"`
	ResourceMetrics struct {
		CPUUsage      *float64 `json:"cpu_usage"`
		MemoryUsageMB *float64 `json:"memory_usage"`
		IOOperations  *int64   `json:"io_operations"`
		DiskReads     *int64   `json:"disk_reads"`
		DiskWrites    *int64   `json:"disk_writes"`
	} `json:"resource_metrics"`
	Recommendations []struct {
		Type                 string          `json:"type"`
		Priority             string          `json:"priority"`
		Title                string          `json:"title"`
		Description          string          `json:"description"`
		PotentialImprovement string          `json:"potential_improvement"`
		Implementation       string          `json:"implementation"`
		EstimatedSpeedup     json.RawMessage `json:"estimated_speedup"`
	} `json:"recommendations"`
	Warnings []string `json:"warnings"`
}

func parseAdvice(content string) (*model.Advice, error) {
	content = stripFences(content)

	var raw rawAdvice
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, err
	}

	advice := &model.Advice{
		RewrittenQuery: raw.RewrittenQuery,
		Warnings:       raw.Warnings,
	}
	if advice.Warnings == nil {
		advice.Warnings = []string{}
	}

	// Metrics the model left null count as zero.
	m := raw.ResourceMetrics
	if m.CPUUsage != nil {
		advice.ResourceMetrics.CPUUsage = *m.CPUUsage
	}
	if m.MemoryUsageMB != nil {
		advice.ResourceMetrics.MemoryUsageMB = *m.MemoryUsageMB
	}
	if m.IOOperations != nil {
		advice.ResourceMetrics.IOOperations = *m.IOOperations
	}
	if m.DiskReads != nil {
		advice.ResourceMetrics.DiskReads = *m.DiskReads
	}
	if m.DiskWrites != nil {
		advice.ResourceMetrics.DiskWrites = *m.DiskWrites
	}

	for _, rec := range raw.Recommendations {
		priority := model.Priority(rec.Priority)
		if !priority.Valid() {
			priority = model.PriorityMedium
		}
		advice.Recommendations = append(advice.Recommendations, model.Recommendation{
			Type:                 rec.Type,
			Priority:             priority,
			Title:                rec.Title,
			Description:          rec.Description,
			PotentialImprovement: rec.PotentialImprovement,
			Implementation:       rec.Implementation,
			EstimatedSpeedup:     parseSpeedup(rec.EstimatedSpeedup),
		})
	}
	if advice.Recommendations == nil {
		advice.Recommendations = []model.Recommendation{}
	}
	return advice, nil
}

// parseSpeedup accepts a number, a numeric string, or a "lo-hi" range
// (averaged). Anything else maps to nil.
func parseSpeedup(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return &num
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		loVal, errLo := strconv.ParseFloat(strings.TrimSpace(lo), 64)
		hiVal, errHi := strconv.ParseFloat(strings.TrimSpace(hi), 64)
		if errLo == nil && errHi == nil {
			mean := (loVal + hiVal) / 2
			return &mean
		}
		return nil
	}
	if val, err := strconv.ParseFloat(s, 64); err == nil {
		return &val
	}
	return nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
