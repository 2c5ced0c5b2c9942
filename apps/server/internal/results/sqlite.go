package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tetris-lite/replay"
)

const defaultLocalDBName = "tetris_results.db"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection: also keeps a :memory: database alive for the store's lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{`PRAGMA busy_timeout = 5000;`, `PRAGMA journal_mode = WAL;`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := ensureSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func ensureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{`
CREATE TABLE IF NOT EXISTS match_results (
    match_id TEXT PRIMARY KEY,
    outcome TEXT NOT NULL,
    winner TEXT NOT NULL DEFAULT '',
    finished_at_ms INTEGER NOT NULL,
    ticks INTEGER NOT NULL,
    summary_json TEXT NOT NULL,
    tape_json TEXT
)`,
		`CREATE INDEX IF NOT EXISTS idx_match_results_finished ON match_results(finished_at_ms DESC)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, sum Summary) error {
	summaryJSON, tapeJSON, err := splitSummary(sum)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO match_results (match_id, outcome, winner, finished_at_ms, ticks, summary_json, tape_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id) DO UPDATE SET
    outcome = excluded.outcome,
    winner = excluded.winner,
    finished_at_ms = excluded.finished_at_ms,
    ticks = excluded.ticks,
    summary_json = excluded.summary_json,
    tape_json = excluded.tape_json
`, sum.MatchID, string(sum.Outcome), sum.Winner, sum.FinishedAt.UTC().UnixMilli(), int64(sum.Ticks), string(summaryJSON), nullableText(tapeJSON))
	return err
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT summary_json FROM match_results
ORDER BY finished_at_ms DESC, match_id DESC
LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func (s *SQLiteStore) Get(ctx context.Context, matchID string) (Summary, error) {
	var summaryRaw string
	var tapeRaw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT summary_json, tape_json FROM match_results WHERE match_id = ?`, matchID).
		Scan(&summaryRaw, &tapeRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, ErrNotFound
	}
	if err != nil {
		return Summary{}, err
	}
	return joinSummary([]byte(summaryRaw), tapeRaw.String)
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// splitSummary stores the tape in its own column so listings stay small.
func splitSummary(sum Summary) ([]byte, []byte, error) {
	if err := validate(sum); err != nil {
		return nil, nil, err
	}
	tape := sum.Tape
	sum.Tape = nil
	summaryJSON, err := json.Marshal(sum)
	if err != nil {
		return nil, nil, err
	}
	if tape == nil {
		return summaryJSON, nil, nil
	}
	var buf strings.Builder
	if err := replay.Encode(&buf, *tape); err != nil {
		return nil, nil, err
	}
	return summaryJSON, []byte(buf.String()), nil
}

func joinSummary(summaryRaw []byte, tapeRaw string) (Summary, error) {
	var sum Summary
	if err := json.Unmarshal(summaryRaw, &sum); err != nil {
		return Summary{}, fmt.Errorf("results: decode summary: %w", err)
	}
	if tapeRaw != "" {
		tape, err := replay.Decode(strings.NewReader(tapeRaw))
		if err != nil {
			return Summary{}, err
		}
		sum.Tape = &tape
	}
	return sum, nil
}

func scanSummaries(rows *sql.Rows) ([]Summary, error) {
	out := []Summary{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var sum Summary
		if err := json.Unmarshal(raw, &sum); err != nil {
			return nil, fmt.Errorf("results: decode summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func nullableText(v []byte) any {
	if v == nil {
		return nil
	}
	return string(v)
}

func sqlitePathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("RESULTS_SQLITE_PATH")); v != "" {
		return filepath.Clean(v)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return defaultLocalDBName
	}
	return filepath.Join(dir, "tetris-lite", defaultLocalDBName)
}
