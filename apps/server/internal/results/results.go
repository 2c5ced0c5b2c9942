// Package results persists the terminal summary of every finished match.
package results

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tetris-lite/arena"
	"tetris-lite/replay"
)

const (
	defaultRecentLimit    = 20
	maxRecentLimit        = 200
	defaultMemoryCapacity = 500
)

var ErrNotFound = errors.New("results: not found")

type Outcome string

const (
	OutcomeWin       Outcome = "win"
	OutcomeDraw      Outcome = "draw"
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeError     Outcome = "error"
)

// Summary is the terminal record of one match. Tape is only populated by Get.
type Summary struct {
	MatchID      string           `json:"match_id"`
	Outcome      Outcome          `json:"outcome"`
	Winner       string           `json:"winner,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Participants []string         `json:"participants"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Ticks        uint64           `json:"ticks"`
	Standings    []arena.Standing `json:"standings"`
	Tape         *replay.Tape     `json:"tape,omitempty"`
}

type Store interface {
	Save(ctx context.Context, s Summary) error
	Recent(ctx context.Context, limit int) ([]Summary, error)
	Get(ctx context.Context, matchID string) (Summary, error)
	Close() error
}

// NewStoreFromEnv picks a backend by mode: memory, sqlite or postgres.
// The second return value names the backend for logging.
func NewStoreFromEnv(mode string) (Store, string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "memory":
		return NewMemoryStore(envIntOrDefault("RESULTS_MEMORY_CAPACITY", defaultMemoryCapacity)), "memory", nil
	case "sqlite", "local":
		s, err := NewSQLiteStore(sqlitePathFromEnv())
		if err != nil {
			return nil, "", err
		}
		return s, "sqlite", nil
	case "postgres":
		s, err := NewPostgresStore(postgresDSNFromEnv())
		if err != nil {
			return nil, "", err
		}
		return s, "postgres", nil
	default:
		return nil, "", fmt.Errorf("results: unknown mode %q", mode)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}

func validate(s Summary) error {
	if strings.TrimSpace(s.MatchID) == "" {
		return errors.New("results: empty match id")
	}
	if s.Outcome == "" {
		return errors.New("results: empty outcome")
	}
	return nil
}

func envIntOrDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
