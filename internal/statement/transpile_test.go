package statement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mickamy/xadvise/internal/statement"
)

func TestToSelectUpdate(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "with where",
			query: "UPDATE users SET name = 'a' WHERE id = 1",
			want:  "SELECT * FROM users WHERE id = 1",
		},
		{
			name:  "without where",
			query: "UPDATE users SET name = 'a'",
			want:  "SELECT * FROM users WHERE 1=1",
		},
		{
			name:  "where with trailing limit",
			query: "UPDATE carts SET stale = true WHERE updated_at < now() - interval '30 days' LIMIT 10",
			want:  "SELECT * FROM carts WHERE updated_at < now() - interval '30 days'",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, statement.ToSelect(tc.query))
		})
	}
}

func TestToSelectDelete(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"SELECT * FROM sessions WHERE expires_at < now()",
		statement.ToSelect("DELETE FROM sessions WHERE expires_at < now()"))
	assert.Equal(t,
		"SELECT * FROM sessions WHERE 1=1",
		statement.ToSelect("DELETE FROM sessions"))
}

func TestToSelectInsert(t *testing.T) {
	t.Parallel()

	t.Run("values form becomes zero-row probe", func(t *testing.T) {
		t.Parallel()
		got := statement.ToSelect("INSERT INTO users (name) VALUES ('a')")
		assert.Equal(t, "SELECT * FROM users WHERE 1=0", got)
	})

	t.Run("insert-select analyzes the source query", func(t *testing.T) {
		t.Parallel()
		got := statement.ToSelect("INSERT INTO archived SELECT * FROM orders WHERE created_at < '2020-01-01'")
		assert.Equal(t, "SELECT * FROM orders WHERE created_at < '2020-01-01'", got)
	})
}

func TestToSelectPassThrough(t *testing.T) {
	t.Parallel()

	// Non-DML and unparseable statements come back unchanged; callers
	// detect an unavailable rewrite by comparing with the input.
	for _, query := range []string{
		"SELECT * FROM users",
		"CREATE TABLE t (id int)",
		"DROP TABLE t",
		"EXPLAIN SELECT 1",
		"",
	} {
		assert.Equal(t, query, statement.ToSelect(query), "query=%q", query)
	}
}

func TestTableName(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		query string
		want  string
	}{
		{"UPDATE users SET name = 'a'", "users"},
		{"INSERT INTO orders (id) VALUES (1)", "orders"},
		{"INSERT INTO orders(id) VALUES (1)", "orders"},
		{"DELETE FROM sessions WHERE id = 1", "sessions"},
		{"SELECT * FROM products WHERE price > 10", "products"},
		{"WITH cte AS (SELECT 1) SELECT * FROM cte", "cte"},
		{"DELETE sessions", "unknown_table"},
		{"TRUNCATE users", "unknown_table"},
		{"", "unknown_table"},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.want, statement.TableName(tc.query), "query=%q", tc.query)
	}
}
