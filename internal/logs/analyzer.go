// Package logs scans PostgreSQL server logs for slow statements,
// errors, deadlocks, and other operational events.
package logs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mickamy/xadvise/internal/logging"
)

var (
	slowQueryRe   = regexp.MustCompile(`(?i)LOG:\s+duration:\s+(\d+\.\d+)\s+ms\s+statement:\s+(.+)`)
	errorRe       = regexp.MustCompile(`(?i)ERROR:\s+(.+)`)
	connectionRe  = regexp.MustCompile(`(?i)LOG:\s+connection\s+(?:received|authorized):\s+(.+)`)
	checkpointRe  = regexp.MustCompile(`(?i)LOG:\s+checkpoint\s+(.+)`)
	deadlockRe    = regexp.MustCompile(`(?i)ERROR:\s+deadlock\s+detected`)
	lockTimeoutRe = regexp.MustCompile(`(?i)ERROR:\s+canceling\s+statement\s+because\s+of\s+lock\s+timeout`)
	timestampRe   = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2}(?:\.\d+)?)`)
)

const maxMessageLen = 500

// SlowQuery is a statement that exceeded the slow threshold.
type SlowQuery struct {
	Timestamp  *time.Time `json:"timestamp"`
	DurationMs float64    `json:"duration_ms"`
	Statement  string     `json:"statement"`
	Severity   string     `json:"severity"`
}

// Event is a timestamped log line of interest.
type Event struct {
	Timestamp *time.Time `json:"timestamp"`
	Message   string     `json:"message"`
	Type      string     `json:"type,omitempty"`
}

// Summary aggregates counts over one analysis run.
type Summary struct {
	TotalSlowQueries      int            `json:"total_slow_queries"`
	TotalErrors           int            `json:"total_errors"`
	TotalDeadlocks        int            `json:"total_deadlocks"`
	TotalLockTimeouts     int            `json:"total_lock_timeouts"`
	TotalConnectionIssues int            `json:"total_connection_issues"`
	TotalCheckpoints      int            `json:"total_checkpoints"`
	SlowestQueryMs        float64        `json:"slowest_query_duration"`
	ErrorTypes            map[string]int `json:"error_types"`
	Recommendations       []string       `json:"recommendations"`
}

// Analysis is the result of a log scan.
type Analysis struct {
	SlowQueries      []SlowQuery `json:"slow_queries"`
	Errors           []Event     `json:"errors"`
	ConnectionIssues []Event     `json:"connection_issues"`
	Deadlocks        []Event     `json:"deadlocks"`
	LockTimeouts     []Event     `json:"lock_timeouts"`
	Checkpoints      []Event     `json:"checkpoints"`
	Summary          Summary     `json:"summary"`
}

// Analyzer scans log files under a directory.
type Analyzer struct {
	directory   string
	slowQueryMs float64
}

// NewAnalyzer builds an analyzer over directory. Statements faster than
// slowQueryMs are ignored.
func NewAnalyzer(directory string, slowQueryMs float64) *Analyzer {
	if directory == "" {
		directory = "/var/log/postgresql"
	}
	if slowQueryMs <= 0 {
		slowQueryMs = 100
	}
	return &Analyzer{directory: directory, slowQueryMs: slowQueryMs}
}

// Analyze scans log files for events newer than hoursBack hours. Missing
// directories and unreadable files produce an empty analysis, not an
// error.
func (a *Analyzer) Analyze(hoursBack int) *Analysis {
	if hoursBack <= 0 {
		hoursBack = 24
	}
	result := emptyAnalysis()

	files, err := a.findLogFiles()
	if err != nil || len(files) == 0 {
		logging.Logger.Warn("no PostgreSQL log files found", "directory", a.directory)
		return result
	}

	cutoff := time.Now().Add(-time.Duration(hoursBack) * time.Hour)
	for _, file := range files {
		if err := a.scanFile(file, cutoff, result); err != nil {
			logging.Logger.Error("failed to read log file", "file", file, "error", err)
		}
	}

	result.Summary = summarize(result)
	return result
}

func (a *Analyzer) findLogFiles() ([]string, error) {
	if _, err := os.Stat(a.directory); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var files []string
	for _, pattern := range []string{"postgresql-*.log", "postgresql.log", "*.log"} {
		matches, err := filepath.Glob(filepath.Join(a.directory, pattern))
		if err != nil {
			continue
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}

	// Newest first.
	sort.Slice(files, func(i, j int) bool {
		fi, errI := os.Stat(files[i])
		fj, errJ := os.Stat(files[j])
		if errI != nil || errJ != nil {
			return files[i] < files[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})
	return files, nil
}

func (a *Analyzer) scanFile(path string, cutoff time.Time, result *Analysis) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		ts := extractTimestamp(line)
		if ts != nil && ts.Before(cutoff) {
			continue
		}
		a.scanLine(line, ts, result)
	}
	return scanner.Err()
}

func (a *Analyzer) scanLine(line string, ts *time.Time, result *Analysis) {
	if m := slowQueryRe.FindStringSubmatch(line); m != nil {
		duration, err := strconv.ParseFloat(m[1], 64)
		if err == nil && duration > a.slowQueryMs {
			severity := "medium"
			if duration > 1000 {
				severity = "high"
			}
			result.SlowQueries = append(result.SlowQueries, SlowQuery{
				Timestamp:  ts,
				DurationMs: duration,
				Statement:  clip(strings.TrimSpace(m[2])),
				Severity:   severity,
			})
		}
	}

	if deadlockRe.MatchString(line) {
		result.Deadlocks = append(result.Deadlocks, Event{Timestamp: ts, Message: "Deadlock detected"})
	} else if lockTimeoutRe.MatchString(line) {
		result.LockTimeouts = append(result.LockTimeouts, Event{Timestamp: ts, Message: "Lock timeout detected"})
	} else if m := errorRe.FindStringSubmatch(line); m != nil {
		msg := strings.TrimSpace(m[1])
		result.Errors = append(result.Errors, Event{
			Timestamp: ts,
			Message:   clip(msg),
			Type:      classifyError(msg),
		})
	}

	if m := connectionRe.FindStringSubmatch(line); m != nil {
		info := strings.TrimSpace(m[1])
		lowered := strings.ToLower(info)
		if strings.Contains(lowered, "failed") || strings.Contains(lowered, "rejected") {
			result.ConnectionIssues = append(result.ConnectionIssues, Event{Timestamp: ts, Message: clip(info)})
		}
	}

	if m := checkpointRe.FindStringSubmatch(line); m != nil {
		result.Checkpoints = append(result.Checkpoints, Event{Timestamp: ts, Message: clip(strings.TrimSpace(m[1]))})
	}
}

func extractTimestamp(line string) *time.Time {
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05.000", "2006-01-02 15:04:05"} {
		if ts, err := time.ParseInLocation(layout, m[1], time.Local); err == nil {
			return &ts
		}
	}
	return nil
}

func classifyError(msg string) string {
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "connection"):
		return "connection"
	case strings.Contains(lowered, "permission") || strings.Contains(lowered, "access"):
		return "permission"
	case strings.Contains(lowered, "syntax"):
		return "syntax"
	case strings.Contains(lowered, "constraint"):
		return "constraint"
	case strings.Contains(lowered, "timeout"):
		return "timeout"
	default:
		return "other"
	}
}

func summarize(result *Analysis) Summary {
	summary := Summary{
		TotalSlowQueries:      len(result.SlowQueries),
		TotalErrors:           len(result.Errors),
		TotalDeadlocks:        len(result.Deadlocks),
		TotalLockTimeouts:     len(result.LockTimeouts),
		TotalConnectionIssues: len(result.ConnectionIssues),
		TotalCheckpoints:      len(result.Checkpoints),
		ErrorTypes:            map[string]int{},
		Recommendations:       []string{},
	}

	for _, q := range result.SlowQueries {
		if q.DurationMs > summary.SlowestQueryMs {
			summary.SlowestQueryMs = q.DurationMs
		}
	}
	for _, e := range result.Errors {
		summary.ErrorTypes[e.Type]++
	}

	if len(result.SlowQueries) > 10 {
		summary.Recommendations = append(summary.Recommendations,
			fmt.Sprintf("Found %d slow queries. A performance review is recommended.", len(result.SlowQueries)))
	}
	if len(result.Deadlocks) > 0 {
		summary.Recommendations = append(summary.Recommendations,
			fmt.Sprintf("Found %d deadlocks. Check lock ordering in transactions.", len(result.Deadlocks)))
	}
	if len(result.LockTimeouts) > 0 {
		summary.Recommendations = append(summary.Recommendations,
			fmt.Sprintf("Found %d lock timeouts. Consider raising lock_timeout.", len(result.LockTimeouts)))
	}
	if len(result.ConnectionIssues) > 0 {
		summary.Recommendations = append(summary.Recommendations,
			fmt.Sprintf("Found %d connection problems. Review connection settings.", len(result.ConnectionIssues)))
	}
	return summary
}

func clip(s string) string {
	if len(s) > maxMessageLen {
		return s[:maxMessageLen]
	}
	return s
}

func emptyAnalysis() *Analysis {
	return &Analysis{
		SlowQueries:      []SlowQuery{},
		Errors:           []Event{},
		ConnectionIssues: []Event{},
		Deadlocks:        []Event{},
		LockTimeouts:     []Event{},
		Checkpoints:      []Event{},
		Summary: Summary{
			ErrorTypes:      map[string]int{},
			Recommendations: []string{},
		},
	}
}
