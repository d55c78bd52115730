package engine

import (
	"context"
	"fmt"
	"time"
)

// DatabaseInfo is a coarse snapshot of the connected database.
type DatabaseInfo struct {
	Version      string `json:"version"`
	DatabaseSize string `json:"database_size"`
	TableCount   int64  `json:"table_count"`
	IndexCount   int64  `json:"index_count"`
}

// IndexStats describes usage counters for one index.
type IndexStats struct {
	IndexName     string `json:"index_name"`
	Scans         int64  `json:"scans"`
	TuplesRead    int64  `json:"tuples_read"`
	TuplesFetched int64  `json:"tuples_fetched"`
}

// TableStats aggregates pg_stat_user_tables counters plus relation size
// for one table.
type TableStats struct {
	Inserts         int64        `json:"inserts"`
	Updates         int64        `json:"updates"`
	Deletes         int64        `json:"deletes"`
	LiveTuples      int64        `json:"live_tuples"`
	DeadTuples      int64        `json:"dead_tuples"`
	SizePretty      string       `json:"size_pretty,omitempty"`
	SizeBytes       int64        `json:"size_bytes"`
	Indexes         []IndexStats `json:"indexes,omitempty"`
	LastVacuum      *time.Time   `json:"last_vacuum,omitempty"`
	LastAutovacuum  *time.Time   `json:"last_autovacuum,omitempty"`
	LastAnalyze     *time.Time   `json:"last_analyze,omitempty"`
	LastAutoanalyze *time.Time   `json:"last_autoanalyze,omitempty"`
}

// TableStatistics is the per-table statistics map plus totals.
type TableStatistics struct {
	Tables          map[string]TableStats `json:"tables"`
	TotalTables     int                   `json:"total_tables"`
	TotalLiveTuples int64                 `json:"total_live_tuples"`
	TotalSizeBytes  int64                 `json:"total_size_bytes"`
}

// Setting is one pg_settings row.
type Setting struct {
	Value       string `json:"value"`
	Unit        string `json:"unit,omitempty"`
	Context     string `json:"context,omitempty"`
	Description string `json:"description,omitempty"`
}

// ActivitySnapshot counts backends by state.
type ActivitySnapshot struct {
	Total          int64 `json:"total_connections"`
	Active         int64 `json:"active_connections"`
	Idle           int64 `json:"idle_connections"`
	MaxConnections int64 `json:"max_connections"`
}

// DatabaseStats mirrors the pg_stat_database counters the configuration
// heuristics read.
type DatabaseStats struct {
	XactCommit     int64 `json:"committed_transactions"`
	XactRollback   int64 `json:"rolled_back_transactions"`
	BlocksRead     int64 `json:"blocks_read"`
	BlocksHit      int64 `json:"blocks_hit"`
	TuplesInserted int64 `json:"tuples_inserted"`
	TuplesUpdated  int64 `json:"tuples_updated"`
	TuplesDeleted  int64 `json:"tuples_deleted"`
}

// DatabaseInfo fetches version, size, and object counts.
func (p *Postgres) DatabaseInfo(ctx context.Context) (*DatabaseInfo, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close(ctx) }()

	info := &DatabaseInfo{}
	if err := conn.QueryRow(ctx, "SELECT version()").Scan(&info.Version); err != nil {
		return nil, fmt.Errorf("engine: database version: %w", err)
	}
	if err := conn.QueryRow(ctx,
		"SELECT pg_size_pretty(pg_database_size(current_database()))",
	).Scan(&info.DatabaseSize); err != nil {
		return nil, fmt.Errorf("engine: database size: %w", err)
	}
	if err := conn.QueryRow(ctx,
		"SELECT count(*) FROM information_schema.tables WHERE table_schema = 'public'",
	).Scan(&info.TableCount); err != nil {
		return nil, fmt.Errorf("engine: table count: %w", err)
	}
	if err := conn.QueryRow(ctx,
		"SELECT count(*) FROM pg_indexes WHERE schemaname = 'public'",
	).Scan(&info.IndexCount); err != nil {
		return nil, fmt.Errorf("engine: index count: %w", err)
	}
	return info, nil
}

// TableStatistics collects per-table row counters, sizes, and index
// usage for the public schema.
func (p *Postgres) TableStatistics(ctx context.Context) (*TableStatistics, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close(ctx) }()

	stats := &TableStatistics{Tables: map[string]TableStats{}}

	rows, err := conn.Query(ctx, `
		SELECT relname,
		       n_tup_ins, n_tup_upd, n_tup_del,
		       n_live_tup, n_dead_tup,
		       pg_size_pretty(pg_total_relation_size(schemaname||'.'||relname)),
		       pg_total_relation_size(schemaname||'.'||relname),
		       last_vacuum, last_autovacuum, last_analyze, last_autoanalyze
		FROM pg_stat_user_tables
		WHERE schemaname = 'public'
		ORDER BY n_live_tup DESC`)
	if err != nil {
		return nil, fmt.Errorf("engine: table statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var ts TableStats
		if err := rows.Scan(&name,
			&ts.Inserts, &ts.Updates, &ts.Deletes,
			&ts.LiveTuples, &ts.DeadTuples,
			&ts.SizePretty, &ts.SizeBytes,
			&ts.LastVacuum, &ts.LastAutovacuum, &ts.LastAnalyze, &ts.LastAutoanalyze,
		); err != nil {
			return nil, fmt.Errorf("engine: scan table statistics: %w", err)
		}
		stats.Tables[name] = ts
		stats.TotalLiveTuples += ts.LiveTuples
		stats.TotalSizeBytes += ts.SizeBytes
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engine: table statistics: %w", err)
	}

	idxRows, err := conn.Query(ctx, `
		SELECT relname, indexrelname, idx_scan, idx_tup_read, idx_tup_fetch
		FROM pg_stat_user_indexes
		WHERE schemaname = 'public'
		ORDER BY relname, idx_scan DESC`)
	if err != nil {
		return nil, fmt.Errorf("engine: index statistics: %w", err)
	}
	defer idxRows.Close()

	for idxRows.Next() {
		var table string
		var idx IndexStats
		if err := idxRows.Scan(&table, &idx.IndexName, &idx.Scans, &idx.TuplesRead, &idx.TuplesFetched); err != nil {
			return nil, fmt.Errorf("engine: scan index statistics: %w", err)
		}
		ts, ok := stats.Tables[table]
		if !ok {
			continue
		}
		ts.Indexes = append(ts.Indexes, idx)
		stats.Tables[table] = ts
	}
	if err := idxRows.Err(); err != nil {
		return nil, fmt.Errorf("engine: index statistics: %w", err)
	}

	stats.TotalTables = len(stats.Tables)
	return stats, nil
}

// Settings returns the pg_settings rows the configuration heuristics
// evaluate.
func (p *Postgres) Settings(ctx context.Context, names []string) (map[string]Setting, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close(ctx) }()

	rows, err := conn.Query(ctx, `
		SELECT name, setting, COALESCE(unit, ''), context, COALESCE(short_desc, '')
		FROM pg_settings
		WHERE name = ANY($1)
		ORDER BY name`, names)
	if err != nil {
		return nil, fmt.Errorf("engine: settings: %w", err)
	}
	defer rows.Close()

	out := map[string]Setting{}
	for rows.Next() {
		var name string
		var s Setting
		if err := rows.Scan(&name, &s.Value, &s.Unit, &s.Context, &s.Description); err != nil {
			return nil, fmt.Errorf("engine: scan settings: %w", err)
		}
		out[name] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engine: settings: %w", err)
	}
	return out, nil
}

// ActivitySnapshot counts current backends by state.
func (p *Postgres) ActivitySnapshot(ctx context.Context) (*ActivitySnapshot, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close(ctx) }()

	snap := &ActivitySnapshot{}
	if err := conn.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE state = 'active'),
		       count(*) FILTER (WHERE state = 'idle')
		FROM pg_stat_activity`).Scan(&snap.Total, &snap.Active, &snap.Idle); err != nil {
		return nil, fmt.Errorf("engine: activity: %w", err)
	}
	if err := conn.QueryRow(ctx,
		"SELECT setting::bigint FROM pg_settings WHERE name = 'max_connections'",
	).Scan(&snap.MaxConnections); err != nil {
		return nil, fmt.Errorf("engine: max connections: %w", err)
	}
	return snap, nil
}

// DatabaseStats reads the accumulated counters for the current database.
func (p *Postgres) DatabaseStats(ctx context.Context) (*DatabaseStats, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close(ctx) }()

	stats := &DatabaseStats{}
	if err := conn.QueryRow(ctx, `
		SELECT xact_commit, xact_rollback, blks_read, blks_hit,
		       tup_inserted, tup_updated, tup_deleted
		FROM pg_stat_database
		WHERE datname = current_database()`).Scan(
		&stats.XactCommit, &stats.XactRollback,
		&stats.BlocksRead, &stats.BlocksHit,
		&stats.TuplesInserted, &stats.TuplesUpdated, &stats.TuplesDeleted,
	); err != nil {
		return nil, fmt.Errorf("engine: database stats: %w", err)
	}
	return stats, nil
}
