package engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mickamy/xadvise/internal/model"
	"github.com/mickamy/xadvise/internal/parser"
)

// Postgres is the production PlanSource backed by a pgx connection per
// call. Timeout and cancellation are the caller's responsibility via ctx.
type Postgres struct {
	url string
}

// NewPostgres returns a Postgres engine for the given connection URL.
func NewPostgres(url string) *Postgres {
	return &Postgres{url: url}
}

func (p *Postgres) connect(ctx context.Context) (*pgx.Conn, error) {
	if strings.TrimSpace(p.url) == "" {
		return nil, fmt.Errorf("engine: empty connection url")
	}
	conn, err := pgx.Connect(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("engine: connect: %w", err)
	}
	return conn, nil
}

// Plan runs EXPLAIN (FORMAT JSON) for the statement and parses the
// resulting plan tree. The statement is planned, not executed.
func (p *Postgres) Plan(ctx context.Context, statementText string) (*model.PlanNode, error) {
	query := strings.TrimSpace(statementText)
	if query == "" {
		return nil, fmt.Errorf("engine: empty sql statement")
	}

	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close(ctx) }()

	explainSQL := fmt.Sprintf("EXPLAIN (ANALYZE false, BUFFERS false, FORMAT JSON) %s", query)

	var payload []byte
	if err := conn.QueryRow(ctx, explainSQL).Scan(&payload); err != nil {
		return nil, fmt.Errorf("engine: explain: %w", err)
	}
	if len(payload) == 0 {
		return nil, ErrNoPlan
	}

	root, err := parser.ParseJSON(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return root, nil
}

// Ping verifies the connection with a trivial round-trip.
func (p *Postgres) Ping(ctx context.Context) error {
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(ctx) }()

	var one int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("engine: ping: %w", err)
	}
	return nil
}
