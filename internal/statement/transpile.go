package statement

import (
	"fmt"
	"regexp"
	"strings"
)

// Patterns are intentionally small and independent. Each extraction
// failing means "no rewrite", never an error: callers detect an
// unavailable rewrite by comparing the returned text with the input.
var (
	updateTableRe = regexp.MustCompile(`(?is)^\s*UPDATE\s+(\w+)(?:\s+\w+)?`)
	deleteTableRe = regexp.MustCompile(`(?is)DELETE\s+FROM\s+(\w+)`)
	insertTableRe = regexp.MustCompile(`(?is)INSERT\s+INTO\s+(\w+)`)
	insertSelect  = regexp.MustCompile(`(?is)INSERT\s+INTO\s+\w+.*?SELECT\s+(.+?)(?:\s+ORDER\s+BY|\s+LIMIT|$)`)
	whereClauseRe = regexp.MustCompile(`(?is)WHERE\s+(.+?)(?:\s+ORDER\s+BY|\s+LIMIT|$)`)
)

// ToSelect rewrites a DML statement into a SELECT the engine can plan in
// its place. Non-DML statements and statements whose table or clauses
// cannot be located come back unchanged.
func ToSelect(text string) string {
	switch Classify(text) {
	case KindUpdate:
		return updateToSelect(text)
	case KindDelete:
		return deleteToSelect(text)
	case KindInsert:
		return insertToSelect(text)
	default:
		return text
	}
}

// updateToSelect maps UPDATE t ... SET ... [WHERE c] to
// SELECT * FROM t WHERE c, defaulting the predicate to 1=1.
func updateToSelect(text string) string {
	m := updateTableRe.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE %s", m[1], whereClause(text))
}

// deleteToSelect maps DELETE FROM t [WHERE c] to SELECT * FROM t WHERE c.
func deleteToSelect(text string) string {
	m := deleteTableRe.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE %s", m[1], whereClause(text))
}

// insertToSelect has two shapes: INSERT INTO t SELECT ... analyzes the
// embedded source query; INSERT INTO t (...) VALUES (...) has no source
// relation, so it becomes a plannable zero-row probe of the target.
func insertToSelect(text string) string {
	if m := insertSelect.FindStringSubmatch(text); m != nil {
		return "SELECT " + strings.TrimSpace(m[1])
	}
	if m := insertTableRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("SELECT * FROM %s WHERE 1=0", m[1])
	}
	return text
}

// whereClause pulls the predicate text out of a DML statement, stopping
// at a trailing ORDER BY or LIMIT. Without a WHERE clause the rewrite
// selects everything the statement would have touched.
func whereClause(text string) string {
	if m := whereClauseRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return "1=1"
}

// TableName extracts a best-effort table name from a DML statement by
// keyword position: the token after UPDATE, after INTO, or after FROM.
func TableName(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "unknown_table"
	}
	switch strings.ToUpper(fields[0]) {
	case "UPDATE":
		if len(fields) > 1 {
			return trimIdent(fields[1])
		}
	case "INSERT":
		if len(fields) > 2 && strings.EqualFold(fields[1], "INTO") {
			return trimIdent(fields[2])
		}
	case "DELETE":
		if len(fields) > 2 && strings.EqualFold(fields[1], "FROM") {
			return trimIdent(fields[2])
		}
	case "SELECT", "WITH":
		for i, f := range fields {
			if strings.EqualFold(f, "FROM") && i+1 < len(fields) {
				return trimIdent(fields[i+1])
			}
		}
	}
	return "unknown_table"
}

func trimIdent(token string) string {
	if i := strings.IndexByte(token, '('); i >= 0 {
		token = token[:i]
	}
	return strings.TrimRight(token, ",;")
}
