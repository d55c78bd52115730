// Package statement classifies raw SQL text and derives read-only
// equivalents for planning purposes. It is deliberately text-based: the
// goal is a plannable proxy, not a parse of the statement.
package statement

import "strings"

// Kind is the coarse category of a SQL statement, derived from its
// leading keyword.
type Kind string

const (
	KindSelect  Kind = "SELECT"
	KindWith    Kind = "WITH"
	KindInsert  Kind = "INSERT"
	KindUpdate  Kind = "UPDATE"
	KindDelete  Kind = "DELETE"
	KindCreate  Kind = "CREATE"
	KindDrop    Kind = "DROP"
	KindAlter   Kind = "ALTER"
	KindExplain Kind = "EXPLAIN"
	KindUnknown Kind = "UNKNOWN"
)

// Classify maps raw SQL text to its Kind. It never fails: anything
// without a recognized leading keyword is KindUnknown.
func Classify(text string) Kind {
	upper := strings.ToUpper(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(upper, "SELECT"):
		return KindSelect
	case strings.HasPrefix(upper, "WITH"):
		return KindWith
	case strings.HasPrefix(upper, "INSERT"):
		return KindInsert
	case strings.HasPrefix(upper, "UPDATE"):
		return KindUpdate
	case strings.HasPrefix(upper, "DELETE"):
		return KindDelete
	case strings.HasPrefix(upper, "CREATE"):
		return KindCreate
	case strings.HasPrefix(upper, "DROP"):
		return KindDrop
	case strings.HasPrefix(upper, "ALTER"):
		return KindAlter
	case strings.HasPrefix(upper, "EXPLAIN"):
		return KindExplain
	default:
		return KindUnknown
	}
}

// Plannable reports whether the engine can plan the statement directly.
func (k Kind) Plannable() bool {
	return k == KindSelect || k == KindWith
}

// DML reports whether the statement modifies rows and therefore has a
// read-only SELECT equivalent.
func (k Kind) DML() bool {
	return k == KindInsert || k == KindUpdate || k == KindDelete
}
