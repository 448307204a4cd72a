// Package database contains the logic for establishing
// connections to the PostgreSQL database and running
// tenant-scoped work on them.
//
// It handles:
//   - lazily creating a pgx connection pool (pgxpool) from the connection string
//   - wiring query tracing/logging (pgx tracelog, New Relic nrpgx5)
//   - running parameterized statements and decoding rows into Row values
//   - switching the Row-Level-Security session marker for one unit of work
//     (WithOrgContext, WithOrgTransaction)
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deppfellow/shiftboard/internal/config"
	"github.com/deppfellow/shiftboard/internal/errs"
	loggerConfig "github.com/deppfellow/shiftboard/internal/logger"
	pgxzero "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/rs/zerolog"
)

// DatabasePingTimeout is how many seconds a new pool gets to answer a ping
// before it is considered unreachable.
const DatabasePingTimeout = 10

// cleanupTimeout bounds ROLLBACK and marker resets. They run on a context
// detached from the request so a cancelled request still cleans up.
const cleanupTimeout = 5 * time.Second

// Opener creates a Pool from a parsed pgxpool config. Tests swap it for one
// returning in-memory fakes.
type Opener func(ctx context.Context, cfg *pgxpool.Config) (Pool, error)

// Option customizes a Database.
type Option func(*Database)

// WithOpener replaces the pgxpool-backed opener.
func WithOpener(open Opener) Option {
	return func(db *Database) {
		db.open = open
	}
}

// Database owns the connection pool. The pool is built on the first call to
// Pool and torn down by Close, after which the next Pool call builds a new
// one. Several Database values can live side by side (e.g. in tests).
type Database struct {
	cfg           *config.Config
	log           *zerolog.Logger
	loggerService *loggerConfig.LoggerService
	open          Opener

	// sessionKey is the setting RLS policies read, e.g. app.current_org_id.
	sessionKey string

	mu   sync.Mutex
	pool Pool
}

// New prepares a Database. It does not connect: call Pool to open the pool
// eagerly (the server does this at startup to fail fast).
func New(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerConfig.LoggerService, opts ...Option) (*Database, error) {
	tenancy := cfg.Tenancy
	if tenancy == nil {
		tenancy = config.DefaultTenancyConfig()
	}
	if err := tenancy.Validate(); err != nil {
		return nil, errs.NewConfigurationError("tenancy.session_key", err.Error())
	}

	db := &Database{
		cfg:           cfg,
		log:           logger,
		loggerService: loggerService,
		open:          openPgxPool,
		sessionKey:    tenancy.SessionKey,
	}
	for _, opt := range opts {
		opt(db)
	}

	return db, nil
}

// SessionKey returns the name of the tenant session marker.
func (db *Database) SessionKey() string {
	return db.sessionKey
}

// Pool returns the shared pool, creating it on first use.
//
// Concurrent first calls build exactly one pool. An empty database.url fails
// with *errs.ConfigurationError.
func (db *Database) Pool(ctx context.Context) (Pool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.pool != nil {
		return db.pool, nil
	}

	if db.cfg.Database.URL == "" {
		return nil, errs.NewConfigurationError("database.url", "connection string is required")
	}

	pgxPoolConfig, err := pgxpool.ParseConfig(db.cfg.Database.URL)
	if err != nil {
		return nil, errs.NewConfigurationError("database.url", err.Error())
	}

	db.applyPoolBounds(pgxPoolConfig)
	db.attachTracers(pgxPoolConfig)

	pool, err := db.open(ctx, pgxPoolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DatabasePingTimeout*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		if closeErr := pool.Close(); closeErr != nil {
			db.log.Error().Err(closeErr).Msg("failed to close unreachable pool")
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.pool = pool
	db.log.Info().Msg("connected to the database")

	return pool, nil
}

// Close closes the pool and forgets it. Closing a Database whose pool was
// never opened is a no-op. Close failures are returned, never dropped.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.pool == nil {
		return nil
	}

	pool := db.pool
	db.pool = nil

	db.log.Info().Msg("closing database connection pool")
	if err := pool.Close(); err != nil {
		return fmt.Errorf("failed to close database pool: %w", err)
	}
	return nil
}

func (db *Database) applyPoolBounds(c *pgxpool.Config) {
	dbCfg := db.cfg.Database

	if dbCfg.MaxConns > 0 {
		c.MaxConns = dbCfg.MaxConns
	}
	if dbCfg.MinConns > 0 {
		c.MinConns = dbCfg.MinConns
	}
	if dbCfg.ConnMaxLifetime > 0 {
		c.MaxConnLifetime = time.Duration(dbCfg.ConnMaxLifetime) * time.Second
	}
	if dbCfg.ConnMaxIdleTime > 0 {
		c.MaxConnIdleTime = time.Duration(dbCfg.ConnMaxIdleTime) * time.Second
	}
	if dbCfg.ConnectTimeout > 0 {
		c.ConnConfig.ConnectTimeout = time.Duration(dbCfg.ConnectTimeout) * time.Second
	}
}

// attachTracers chains the New Relic tracer when APM is on, the slow query
// log when a threshold is set and, in the local environment, a tracelog
// that prints every statement.
func (db *Database) attachTracers(c *pgxpool.Config) {
	var tracers []pgx.QueryTracer

	if db.loggerService.GetApplication() != nil {
		tracers = append(tracers, nrpgx5.NewTracer())
	}

	if obs := db.cfg.Observability; obs != nil && obs.Logging.SlowQueryThreshold > 0 {
		tracers = append(tracers, &slowQueryTracer{
			threshold: obs.Logging.SlowQueryThreshold,
			log:       db.log,
		})
	}

	if db.cfg.Primary.Env == "local" {
		globalLevel := db.log.GetLevel()
		pgxLogger := loggerConfig.NewPgxLogger(globalLevel)
		tracers = append(tracers, &tracelog.TraceLog{
			Logger:   pgxzero.NewLogger(pgxLogger),
			LogLevel: loggerConfig.GetPgxTraceLogLevel(globalLevel),
		})
	}

	switch len(tracers) {
	case 0:
	case 1:
		c.ConnConfig.Tracer = tracers[0]
	default:
		c.ConnConfig.Tracer = &multiTracer{tracers: tracers}
	}
}

// multiTracer fans query trace events out to several tracers, threading the
// context returned by each TraceQueryStart into the next.
type multiTracer struct {
	tracers []pgx.QueryTracer
}

func (mt *multiTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	for _, t := range mt.tracers {
		ctx = t.TraceQueryStart(ctx, conn, data)
	}
	return ctx
}

func (mt *multiTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	for _, t := range mt.tracers {
		t.TraceQueryEnd(ctx, conn, data)
	}
}

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// slowQueryTracer warns about statements that ran longer than threshold.
type slowQueryTracer struct {
	threshold time.Duration
	log       *zerolog.Logger
	now       func() time.Time
}

func (t *slowQueryTracer) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func (t *slowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: t.clock(), sql: data.SQL})
}

func (t *slowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}

	elapsed := t.clock().Sub(start.at)
	if elapsed < t.threshold {
		return
	}

	t.log.Warn().
		Err(data.Err).
		Dur("duration", elapsed).
		Dur("threshold", t.threshold).
		Str("sql", start.sql).
		Str("command_tag", data.CommandTag.String()).
		Msg("slow query")
}
