// Package config loads the match rules file and the process settings.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tetris-lite/apps/server/internal/match"
	"tetris-lite/attack"
	"tetris-lite/tetris"
)

// Server holds process settings read from the environment.
type Server struct {
	Addr           string
	RulesPath      string
	ResultsMode    string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string
	AdminToken     string
	ShutdownGrace  time.Duration

	Match match.Config
}

// rulesFile mirrors match.Config with stable JSON names. Fields absent from
// the file keep their defaults.
type rulesFile struct {
	Capacity          int           `json:"capacity"`
	MinPlayers        int           `json:"min_players"`
	TickRate          int           `json:"tick_rate"`
	CountdownTicks    uint64        `json:"countdown_ticks"`
	GraceTicks        uint64        `json:"grace_ticks"`
	FinishLingerMs    int64         `json:"finish_linger_ms"`
	MaxIntentsPerTick int           `json:"max_intents_per_tick"`
	Seed              int64         `json:"seed"`
	SharedSequence    bool          `json:"shared_sequence"`
	Rules             tetris.Rules  `json:"rules"`
	Attack            attack.Config `json:"attack"`
	// Difficulty scales the rules above with a named preset.
	Difficulty string `json:"difficulty,omitempty"`
}

func fileOf(c match.Config) rulesFile {
	return rulesFile{
		Capacity:          c.Capacity,
		MinPlayers:        c.MinPlayers,
		TickRate:          c.TickRate,
		CountdownTicks:    c.CountdownTicks,
		GraceTicks:        c.GraceTicks,
		FinishLingerMs:    c.FinishLinger.Milliseconds(),
		MaxIntentsPerTick: c.MaxIntentsPerTick,
		Seed:              c.Seed,
		SharedSequence:    c.SharedSequence,
		Rules:             c.Rules,
		Attack:            c.Attack,
	}
}

func (f rulesFile) config() match.Config {
	return match.Config{
		Capacity:          f.Capacity,
		MinPlayers:        f.MinPlayers,
		TickRate:          f.TickRate,
		CountdownTicks:    f.CountdownTicks,
		GraceTicks:        f.GraceTicks,
		FinishLinger:      time.Duration(f.FinishLingerMs) * time.Millisecond,
		MaxIntentsPerTick: f.MaxIntentsPerTick,
		Seed:              f.Seed,
		SharedSequence:    f.SharedSequence,
		Rules:             f.Rules,
		Attack:            f.Attack,
	}
}

// LoadRules reads a JSON rules file over the defaults. An empty path returns
// the defaults.
func LoadRules(path string) (match.Config, error) {
	if strings.TrimSpace(path) == "" {
		return match.DefaultConfig(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return match.Config{}, fmt.Errorf("read rules %s: %w", path, err)
	}
	return ParseRules(raw)
}

func ParseRules(raw []byte) (match.Config, error) {
	f := fileOf(match.DefaultConfig())
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return match.Config{}, fmt.Errorf("parse rules: %w", err)
	}
	cfg := f.config()
	if f.Difficulty != "" {
		d, err := tetris.ParseDifficulty(f.Difficulty)
		if err != nil {
			return match.Config{}, fmt.Errorf("invalid rules: %w", err)
		}
		if cfg.Rules, err = cfg.Rules.WithDifficulty(d); err != nil {
			return match.Config{}, fmt.Errorf("invalid rules: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return match.Config{}, fmt.Errorf("invalid rules: %w", err)
	}
	return cfg, nil
}

// FromEnv loads an optional .env file (ENV_FILE overrides the name) and then
// reads the process settings. Variables already set win over the file.
func FromEnv() (Server, error) {
	envFile := getenv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Server{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	s := Server{
		Addr:           getenv("ADDR", ":8080"),
		RulesPath:      os.Getenv("RULES_PATH"),
		ResultsMode:    getenv("RESULTS_MODE", "memory"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      getenv("LOG_FORMAT", "json"),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		AdminToken:     os.Getenv("ADMIN_TOKEN"),
		ShutdownGrace:  10 * time.Second,
	}
	if raw := os.Getenv("SHUTDOWN_GRACE"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Server{}, fmt.Errorf("SHUTDOWN_GRACE: %w", err)
		}
		s.ShutdownGrace = d
	}
	cfg, err := LoadRules(s.RulesPath)
	if err != nil {
		return Server{}, err
	}
	s.Match = cfg
	return s, nil
}

// Logger builds the process logger: JSON by default, console when LogFormat
// is "console".
func (s Server) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	var zc zap.Config
	switch s.LogFormat {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("LOG_FORMAT: unknown format %q", s.LogFormat)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
