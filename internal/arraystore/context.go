// SPDX-License-Identifier: EPL-2.0

package arraystore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

const driverName = "sqlite"

// Config holds engine wide settings.
type Config struct {
	BusyTimeout  time.Duration
	JournalMode  string
	MaxOpenConns int
	Logger       *zap.Logger
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		JournalMode:  "WAL",
		MaxOpenConns: 1,
	}
}

// Context is the engine handle every array is created and opened through.
type Context struct {
	cfg Config
	log *zap.Logger
}

// New creates a Context. Zero values in cfg fall back to DefaultConfig.
func New(cfg Config) *Context {
	def := DefaultConfig()
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = def.BusyTimeout
	}

	if cfg.JournalMode == "" {
		cfg.JournalMode = def.JournalMode
	}

	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = def.MaxOpenConns
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Context{cfg: cfg, log: log.Named("arraystore")}
}

// Config returns the effective settings.
func (c *Context) Config() Config {
	return c.cfg
}

func (c *Context) dsn(file string) string {
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)",
		file, c.cfg.BusyTimeout.Milliseconds(), strings.ToUpper(c.cfg.JournalMode))
}

func (c *Context) connect(ctx context.Context, file string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, driverName, c.dsn(file))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", file, err)
	}

	db.SetMaxOpenConns(c.cfg.MaxOpenConns)

	return db, nil
}
