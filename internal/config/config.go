// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config is the environment-driven configuration shared by both binaries.
type Config struct {
	Port     int
	LogLevel logrus.Level

	RedisAddr string
	RedisDB   int
	Queue     string

	DatabaseURL         string
	HistorianBatchSize  int
	HistorianFlushDelay time.Duration
	GameInactivity      time.Duration

	RoomIdleTTL      time.Duration
	RematchCountdown int
	SessionTokenTTL  time.Duration
	AllowedOrigins   []string
}

// Load reads the configuration from the environment. Unset variables take
// their defaults; malformed ones are errors.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}
	cfg := &Config{
		Port:                p.int("PORT", 8080),
		RedisAddr:           p.string("REDIS_ADDR", ""),
		RedisDB:             p.int("REDIS_DB", 0),
		Queue:               p.string("HISTORIAN_QUEUE_NAME", "codebreak_actions"),
		DatabaseURL:         p.string("DATABASE_URL", ""),
		HistorianBatchSize:  p.int("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlushDelay: time.Duration(p.int("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		GameInactivity:      p.duration("GAME_INACTIVITY_TIMEOUT", 10*time.Minute),
		RoomIdleTTL:         p.duration("ROOM_IDLE_TTL", time.Hour),
		RematchCountdown:    p.int("REMATCH_COUNTDOWN", 10),
		SessionTokenTTL:     p.duration("SESSION_TOKEN_TTL", 0),
		AllowedOrigins:      p.list("ALLOWED_ORIGINS", []string{"*"}),
	}

	level, err := logrus.ParseLevel(p.string("LOG_LEVEL", "info"))
	if err != nil {
		p.fail("LOG_LEVEL", err)
	}
	cfg.LogLevel = level

	if p.err != nil {
		return nil, p.err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT out of range: %d", cfg.Port)
	}
	if cfg.RematchCountdown <= 0 {
		return nil, fmt.Errorf("REMATCH_COUNTDOWN must be positive: %d", cfg.RematchCountdown)
	}
	if cfg.HistorianBatchSize <= 0 {
		return nil, fmt.Errorf("HISTORIAN_BATCH_SIZE must be positive: %d", cfg.HistorianBatchSize)
	}
	return cfg, nil
}

// Addr is the listen address for Port.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Logger builds the process logger at the configured level.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// parser collects the first malformed variable so Load reports it once.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) string(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return i
}

// duration accepts Go durations ("90s", "1h") and bare integers as seconds.
func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	if d < 0 {
		p.fail(key, fmt.Errorf("negative duration %s", v))
		return def
	}
	return d
}

func (p *parser) list(key string, def []string) []string {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
