// Package store persists delivered log publications in a SQL database and
// serves the query surface over them. Records are time-ranged, channel
// scoped, and text searchable. Postgres and MySQL are supported through
// database/sql.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	// Database drivers register themselves with database/sql
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const defaultMaxAge = 7 * 24 * time.Hour

// Entry is one stored log record. Data is the raw structured payload as
// delivered, stored verbatim.
type Entry struct {
	ID         string          `json:"id"`
	Level      int             `json:"level"`
	LevelLabel string          `json:"levelLabel"`
	Time       int64           `json:"time"` // unix milliseconds
	Msg        string          `json:"msg"`
	Namespace  string          `json:"namespace,omitempty"`
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
}

// LevelCounts aggregates record counts per level label.
type LevelCounts struct {
	All   int64 `json:"all"`
	Trace int64 `json:"trace"`
	Debug int64 `json:"debug"`
	Info  int64 `json:"info"`
	Warn  int64 `json:"warn"`
	Error int64 `json:"error"`
	Fatal int64 `json:"fatal"`
}

// TimeRange is the stored time span for a channel. Nil bounds mean no rows.
type TimeRange struct {
	Min *int64 `json:"minTime"`
	Max *int64 `json:"maxTime"`
}

// Stats summarizes the whole store.
type Stats struct {
	Channels int64 `json:"channelCount"`
	Records  int64 `json:"totalRecords"`
}

// Store wraps the SQL database holding log entries.
type Store struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

// Open connects to the configured database. driver is "postgres" (served by
// pgx) or "mysql".
func Open(driver, dsn string, logger *zap.Logger) (*Store, error) {
	name := driver
	if name == "postgres" || name == "postgresql" {
		name = "pgx" // pgx/v5/stdlib registers as "pgx"
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	return &Store{db: db, driver: name, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the logs table and its indexes if they do not exist.
func (s *Store) Init(ctx context.Context) error {
	const table = `
		CREATE TABLE IF NOT EXISTS logs (
			id          VARCHAR(64)  PRIMARY KEY,
			level       INTEGER      NOT NULL,
			level_label VARCHAR(16)  NOT NULL,
			time        BIGINT       NOT NULL,
			msg         TEXT         NOT NULL,
			namespace   VARCHAR(255),
			channel     VARCHAR(255) NOT NULL,
			data        TEXT         NOT NULL
		)`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("create logs table: %w", err)
	}

	// MySQL has no CREATE INDEX IF NOT EXISTS; a duplicate-index error on a
	// second startup is expected and skipped.
	indexes := []string{
		`CREATE INDEX idx_logs_time ON logs (time)`,
		`CREATE INDEX idx_logs_channel_time ON logs (channel, time)`,
		`CREATE INDEX idx_logs_channel_level_time ON logs (channel, level_label, time)`,
	}
	for _, stmt := range indexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Debug("index create skipped", zap.Error(err))
		}
	}
	return nil
}

// Insert writes a batch of entries in one transaction. Entries whose id is
// already present are left untouched.
func (s *Store) Insert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	stmt := `INSERT INTO logs (id, level, level_label, time, msg, namespace, channel, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if s.driver == "pgx" {
		stmt += ` ON CONFLICT (id) DO NOTHING`
	} else {
		stmt = "INSERT IGNORE" + stmt[len("INSERT"):]
	}
	stmt = s.rebind(stmt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		data := e.Data
		if len(data) == 0 {
			data = json.RawMessage(`{}`)
		}
		if _, err := tx.ExecContext(ctx, stmt,
			e.ID, e.Level, e.LevelLabel, e.Time, e.Msg, nullable(e.Namespace), e.Channel, string(data),
		); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// Query returns entries matching opts, newest first.
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]Entry, error) {
	where, args := opts.where()
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	stmt := s.rebind(fmt.Sprintf(
		`SELECT id, level, level_label, time, msg, namespace, channel, data
		 FROM logs %s ORDER BY time DESC LIMIT %d OFFSET %d`,
		where, limit, opts.Offset,
	))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var namespace sql.NullString
		var data string
		if err := rows.Scan(&e.ID, &e.Level, &e.LevelLabel, &e.Time, &e.Msg, &namespace, &e.Channel, &data); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		e.Namespace = namespace.String
		e.Data = json.RawMessage(data)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of entries matching opts.
func (s *Store) Count(ctx context.Context, opts QueryOptions) (int64, error) {
	where, args := opts.where()
	stmt := s.rebind("SELECT COUNT(*) FROM logs " + where)

	var count int64
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count logs: %w", err)
	}
	return count, nil
}

// LevelCounts aggregates counts per level label, optionally scoped to a
// channel and a minimum time.
func (s *Store) LevelCounts(ctx context.Context, channel string, minTime int64) (LevelCounts, error) {
	opts := QueryOptions{Channel: channel, MinTime: minTime}
	where, args := opts.where()
	stmt := s.rebind("SELECT level_label, COUNT(*) FROM logs " + where + " GROUP BY level_label")

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return LevelCounts{}, fmt.Errorf("count levels: %w", err)
	}
	defer rows.Close()

	var counts LevelCounts
	for rows.Next() {
		var label string
		var count int64
		if err := rows.Scan(&label, &count); err != nil {
			return LevelCounts{}, fmt.Errorf("scan level count: %w", err)
		}
		counts.All += count
		switch label {
		case "trace":
			counts.Trace = count
		case "debug":
			counts.Debug = count
		case "info":
			counts.Info = count
		case "warn":
			counts.Warn = count
		case "error":
			counts.Error = count
		case "fatal":
			counts.Fatal = count
		}
	}
	return counts, rows.Err()
}

// Namespaces returns the distinct namespaces present, optionally scoped to
// a channel.
func (s *Store) Namespaces(ctx context.Context, channel string) ([]string, error) {
	stmt := "SELECT DISTINCT namespace FROM logs WHERE namespace IS NOT NULL"
	var args []any
	if channel != "" {
		stmt += " AND channel = ?"
		args = append(args, channel)
	}
	stmt += " ORDER BY namespace"

	rows, err := s.db.QueryContext(ctx, s.rebind(stmt), args...)
	if err != nil {
		return nil, fmt.Errorf("query namespaces: %w", err)
	}
	defer rows.Close()

	var namespaces []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, rows.Err()
}

// TimeRange returns the min and max stored times for a channel.
func (s *Store) TimeRange(ctx context.Context, channel string) (TimeRange, error) {
	stmt := s.rebind("SELECT MIN(time), MAX(time) FROM logs WHERE channel = ?")

	var minTime, maxTime sql.NullInt64
	if err := s.db.QueryRowContext(ctx, stmt, channel).Scan(&minTime, &maxTime); err != nil {
		return TimeRange{}, fmt.Errorf("query time range: %w", err)
	}

	var tr TimeRange
	if minTime.Valid {
		tr.Min = &minTime.Int64
	}
	if maxTime.Valid {
		tr.Max = &maxTime.Int64
	}
	return tr, nil
}

// Stats summarizes the store contents.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT channel) FROM logs").Scan(&st.Channels); err != nil {
		return Stats{}, fmt.Errorf("count channels: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs").Scan(&st.Records); err != nil {
		return Stats{}, fmt.Errorf("count records: %w", err)
	}
	return st, nil
}

// Prune deletes entries older than maxAge. A non-positive maxAge falls back
// to the 7-day default. Returns the number of deleted rows.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM logs WHERE time < ?"), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune logs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return deleted, nil
}

// Clear deletes all entries for a channel, or every entry when channel is
// empty.
func (s *Store) Clear(ctx context.Context, channel string) error {
	stmt := "DELETE FROM logs"
	var args []any
	if channel != "" {
		stmt += " WHERE channel = ?"
		args = append(args, channel)
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(stmt), args...); err != nil {
		return fmt.Errorf("clear logs: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
