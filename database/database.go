/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

// AbstractDatabase defines the engine and session lifecycle operations.
type AbstractDatabase interface {
	Initialize(url string, engineOptions, sessionOptions Options) error
	CreateEngine() error
	GetEngine() (*bun.DB, error)
	IsAsync() bool
	NewSession() (*Session, error)
	ScopedSession(ctx context.Context, fn SessionFunc) error
	CurrentSession(ctx context.Context) (*Session, error)
	CreateAll(ctx context.Context) error
	DropAll(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	Stats() *DBStats
	Close() error
	SetLogger(logger Logger)
}

// SessionFunc is the body of a scoped session. ctx carries s as its current
// session.
type SessionFunc func(ctx context.Context, s *Session) error

// engine is a built *bun.DB plus the models whose table names were bound to
// it. A replaced engine stays open until its last session closes.
type engine struct {
	db    *bun.DB
	sqlDB *sql.DB
	// keep holds a named in-memory database open between sessions.
	keep *sql.Conn

	mu      sync.Mutex
	tables  map[reflect.Type]*schema.Table
	refs    int
	retired bool
	closed  bool
}

func (e *engine) acquire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refs++
}

// release drops one session and reports whether a retired engine is now idle.
func (e *engine) release() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refs > 0 {
		e.refs--
	}
	return e.retired && e.refs == 0 && !e.closed
}

// retire marks e as replaced and reports whether it can be closed right away.
func (e *engine) retire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retired = true
	return e.refs == 0 && !e.closed
}

func (e *engine) close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	var err error
	if e.keep != nil {
		err = e.keep.Close()
	}
	return errors.Join(err, e.db.Close())
}

func (e *engine) table(model interface{}) *schema.Table {
	typ := indirectType(reflect.TypeOf(model))
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tables[typ]; ok {
		return t
	}
	t := bindTableName(e.db, model)
	e.tables[typ] = t
	return t
}

// Database owns a connection URL, engine and session options, the engine
// built from them, and hands out sessions.
type Database struct {
	mu             sync.RWMutex
	url            *URL
	engineOptions  Options
	sessionOptions Options
	engineConfig   EngineOptions
	sessionConfig  SessionOptions
	engine         *engine
	logger         Logger
	registry       ModelRegistry
}

var _ AbstractDatabase = (*Database)(nil)

// Option configures a Database at construction.
type Option func(*Database)

// WithEngineOptions sets the engine options used by the first Initialize.
func WithEngineOptions(o Options) Option {
	return func(d *Database) { d.engineOptions = o.clone() }
}

// WithSessionOptions sets the session options used by the first Initialize.
func WithSessionOptions(o Options) Option {
	return func(d *Database) { d.sessionOptions = o.clone() }
}

func WithLogger(logger Logger) Option {
	return func(d *Database) { d.logger = logger }
}

// WithModelRegistry replaces the process-wide model registry used by
// CreateAll and DropAll.
func WithModelRegistry(r ModelRegistry) Option {
	return func(d *Database) { d.registry = r }
}

// New returns an uninitialized Database. Call Initialize before use.
func New(opts ...Option) *Database {
	d := &Database{
		logger:        GetLogger(),
		registry:      defaultRegistry,
		engineConfig:  DefaultEngineOptions(),
		sessionConfig: SessionOptions{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open returns a Database initialized with url.
func Open(url string, opts ...Option) (*Database, error) {
	d := New(opts...)
	if err := d.Initialize(url, nil, nil); err != nil {
		return nil, err
	}
	return d, nil
}

// Initialize parses url, stores the options and builds the engine. A nil or
// empty option map keeps the previously configured value. Calling Initialize
// again replaces the engine; sessions already open keep using the old one,
// which is closed when the last of them closes. On failure the previous state
// is kept.
func (d *Database) Initialize(url string, engineOptions, sessionOptions Options) error {
	parsed, err := ParseURL(url)
	if err != nil {
		return err
	}

	d.mu.RLock()
	if len(engineOptions) == 0 {
		engineOptions = d.engineOptions
	}
	if len(sessionOptions) == 0 {
		sessionOptions = d.sessionOptions
	}
	d.mu.RUnlock()

	engineCfg, unusedEngine, err := decodeEngineOptions(engineOptions)
	if err != nil {
		return err
	}
	sessionCfg, unusedSession, err := decodeSessionOptions(sessionOptions)
	if err != nil {
		return err
	}
	if len(unusedEngine) > 0 {
		d.logger.Warn("Ignoring unknown engine options", "keys", unusedEngine)
	}
	if len(unusedSession) > 0 {
		d.logger.Warn("Ignoring unknown session options", "keys", unusedSession)
	}

	eng, err := d.buildEngine(parsed, engineCfg)
	if err != nil {
		return err
	}

	d.mu.Lock()
	old := d.engine
	d.url = parsed
	d.engineOptions = engineOptions.clone()
	d.sessionOptions = sessionOptions.clone()
	d.engineConfig = engineCfg
	d.sessionConfig = sessionCfg
	d.engine = eng
	d.mu.Unlock()

	d.retireEngine(old)
	d.logger.Info("Database initialized", "dialect", parsed.Dialect, "url", parsed.String())
	return nil
}

// CreateEngine (re)builds the engine from the configured URL and options.
func (d *Database) CreateEngine() error {
	d.mu.RLock()
	u, cfg := d.url, d.engineConfig
	d.mu.RUnlock()
	if u == nil {
		return ErrDatabaseURLNotInitialized
	}

	eng, err := d.buildEngine(u, cfg)
	if err != nil {
		return err
	}
	d.mu.Lock()
	old := d.engine
	d.engine = eng
	d.mu.Unlock()
	d.retireEngine(old)
	return nil
}

func (d *Database) buildEngine(u *URL, cfg EngineOptions) (*engine, error) {
	if u == nil {
		return nil, ErrDatabaseURLNotInitialized
	}

	var (
		driverName string
		dialect    schema.Dialect
	)
	switch u.Dialect {
	case DialectSQLite:
		driverName, dialect = sqliteshim.ShimName, sqlitedialect.New()
	case DialectPostgres:
		driverName, dialect = "postgres", pgdialect.New()
	case DialectMySQL:
		driverName, dialect = "mysql", mysqldialect.New()
	default:
		return nil, fmt.Errorf("%w: unsupported dialect %q", ErrDatabaseURLInvalid, u.Dialect)
	}

	dsn := u.DSN()
	if u.IsMemory() {
		dsn = u.SharedMemoryDSN("bunsession-" + uuid.NewString())
	}
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database engine: %w", err)
	}
	configureConnectionPool(sqlDB, u, cfg)

	var keep *sql.Conn
	if u.IsMemory() {
		ctx, cancel := connectContext(cfg)
		keep, err = sqlDB.Conn(ctx)
		cancel()
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to open in-memory database: %w", err)
		}
	}

	db := bun.NewDB(sqlDB, dialect)
	if cfg.Echo {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if cfg.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(cfg.SlowQueryTime, d.logger))
	}

	if cfg.PoolPrePing {
		ctx, cancel := connectContext(cfg)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			if keep != nil {
				_ = keep.Close()
			}
			_ = db.Close()
			return nil, fmt.Errorf("database connection test failed: %w", err)
		}
	}

	eng := &engine{
		db:     db,
		sqlDB:  sqlDB,
		keep:   keep,
		tables: make(map[reflect.Type]*schema.Table),
	}
	for _, model := range modelInstances(d.registry) {
		eng.table(model)
	}
	return eng, nil
}

// connectContext bounds connection attempts by connect_timeout, if set.
func connectContext(cfg EngineOptions) (context.Context, context.CancelFunc) {
	if cfg.ConnectTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), cfg.ConnectTimeout)
}

// configureConnectionPool applies pool options. Connections to a private
// in-memory SQLite database never expire, and the pool allows at least one
// connection besides the one that keeps the database alive.
func configureConnectionPool(sqlDB *sql.DB, u *URL, cfg EngineOptions) {
	if u.IsMemory() {
		maxOpen := cfg.MaxOpenConns
		if maxOpen > 0 && maxOpen < 2 {
			maxOpen = 2
		}
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(max(cfg.MaxIdleConns, 1))
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
		return
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// retireEngine closes a replaced engine, or leaves that to its last session.
func (d *Database) retireEngine(e *engine) {
	if e == nil || !e.retire() {
		return
	}
	if err := e.close(); err != nil {
		d.logger.Error("Failed to close database engine", "error", err)
		return
	}
	d.logger.Debug("Database engine closed")
}

func (d *Database) currentEngine() (*engine, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.engine == nil {
		return nil, ErrEngineNotInitialized
	}
	return d.engine, nil
}

// GetEngine returns the engine built by Initialize.
func (d *Database) GetEngine() (*bun.DB, error) {
	e, err := d.currentEngine()
	if err != nil {
		return nil, err
	}
	return e.db, nil
}

// IsAsync reports whether operations run on a non-blocking runtime. Database
// is synchronous, so this is always false.
func (d *Database) IsAsync() bool {
	return false
}

// URL returns the parsed connection URL, or nil before Initialize.
func (d *Database) URL() *URL {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.url
}

func (d *Database) EngineOptions() EngineOptions {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.engineConfig
}

func (d *Database) SessionOptions() SessionOptions {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sessionConfig
}

// NewSession opens a session the caller must Close. Most callers want
// ScopedSession instead.
func (d *Database) NewSession() (*Session, error) {
	d.mu.RLock()
	eng, opts, logger := d.engine, d.sessionConfig, d.logger
	if eng != nil {
		eng.acquire()
	}
	d.mu.RUnlock()
	if eng == nil {
		return nil, ErrSessionNotInitialized
	}
	s, err := newSession(eng, opts, logger)
	if err != nil {
		if eng.release() {
			_ = eng.close()
		}
		return nil, err
	}
	logger.Debug("Session opened", "session", s.ID())
	return s, nil
}

// ScopedSession opens a session, publishes it on the context passed to fn
// and closes it when fn returns, fails or panics. Uncommitted work is rolled
// back. The error of fn is returned, joined with any error from closing.
func (d *Database) ScopedSession(ctx context.Context, fn SessionFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s, err := d.NewSession()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(ContextWithSession(ctx, s), s)
}

// CurrentSession returns the session published on ctx.
func (d *Database) CurrentSession(ctx context.Context) (*Session, error) {
	return CurrentSession(ctx)
}

// RegisterModel adds a model to this database's registry.
func (d *Database) RegisterModel(instance interface{}, priority int) {
	d.registry.Register(NewModelAdapter(instance, priority))
	if e, err := d.currentEngine(); err == nil {
		e.table(instance)
	}
}

// Close closes the engine. The Database can be initialized again afterwards.
func (d *Database) Close() error {
	d.mu.Lock()
	e := d.engine
	d.engine = nil
	d.mu.Unlock()
	if e == nil {
		return nil
	}
	if err := e.close(); err != nil {
		d.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	d.logger.Info("Database connection closed")
	return nil
}

func (d *Database) SetLogger(logger Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = logger
}
