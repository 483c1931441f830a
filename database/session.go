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
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

// Session is a unit of work against one engine. Unless the autocommit
// session option is set, the first statement begins a transaction that lives
// until Commit, Rollback or Close. A Session must not be shared between
// goroutines.
type Session struct {
	id      string
	engine  *engine
	options SessionOptions
	txOpts  *sql.TxOptions
	logger  Logger

	mu     sync.Mutex
	tx     *bun.Tx
	closed bool
}

func newSession(eng *engine, options SessionOptions, logger Logger) (*Session, error) {
	txOpts, err := options.TxOptions()
	if err != nil {
		return nil, err
	}
	return &Session{
		id:      uuid.NewString(),
		engine:  eng,
		options: options,
		txOpts:  txOpts,
		logger:  logger,
	}, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Engine returns the engine the session runs on.
func (s *Session) Engine() *bun.DB { return s.engine.db }

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// InTransaction reports whether a transaction is currently open.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// IDB returns the handle statements of this session must run on, beginning
// the session transaction if needed.
func (s *Session) IDB(ctx context.Context) (bun.IDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idb(ctx)
}

func (s *Session) idb(ctx context.Context) (bun.IDB, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: session %s is closed", ErrSessionNotInitialized, s.id)
	}
	if s.options.Autocommit {
		return s.engine.db, nil
	}
	if s.tx == nil {
		tx, err := s.engine.db.BeginTx(ctx, s.txOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		s.tx = &tx
		s.logger.Debug("Session transaction started", "session", s.id)
	}
	return s.tx, nil
}

// Table binds model to the engine and returns its table metadata.
func (s *Session) Table(model interface{}) *schema.Table {
	return s.engine.table(model)
}

// Add inserts model, or upserts it when every primary key is already set.
func (s *Session) Add(ctx context.Context, model interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idb, err := s.idb(ctx)
	if err != nil {
		return err
	}
	table := s.engine.table(model)
	if !hasIdentity(table, model) {
		_, err = idb.NewInsert().Model(model).Exec(ctx)
		return err
	}
	return s.upsert(ctx, idb, table, model)
}

// AddAll adds every model in order.
func (s *Session) AddAll(ctx context.Context, models ...interface{}) error {
	for i, model := range models {
		if err := s.Add(ctx, model); err != nil {
			return fmt.Errorf("add model %d: %w", i, err)
		}
	}
	return nil
}

// Get loads the row whose primary key equals id into model. It reports false
// without error when no row matches.
func (s *Session) Get(ctx context.Context, model interface{}, id interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idb, err := s.idb(ctx)
	if err != nil {
		return false, err
	}
	pk, err := singlePK(s.engine.table(model))
	if err != nil {
		return false, err
	}
	err = idb.NewSelect().Model(model).Where("? = ?", bun.Ident(pk.Name), id).Limit(1).Scan(ctx)
	if IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Select scans rows of dest's model into dest, a pointer to a slice. Each
// apply function may refine the query.
func (s *Session) Select(ctx context.Context, dest interface{}, apply ...func(*bun.SelectQuery) *bun.SelectQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idb, err := s.idb(ctx)
	if err != nil {
		return err
	}
	s.engine.table(dest)
	q := idb.NewSelect().Model(dest)
	for _, fn := range apply {
		q = fn(q)
	}
	return q.Scan(ctx)
}

// Count returns the number of rows of model's table matching the refinements.
func (s *Session) Count(ctx context.Context, model interface{}, apply ...func(*bun.SelectQuery) *bun.SelectQuery) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idb, err := s.idb(ctx)
	if err != nil {
		return 0, err
	}
	s.engine.table(model)
	q := idb.NewSelect().Model(model)
	for _, fn := range apply {
		q = fn(q)
	}
	return q.Count(ctx)
}

// Refresh reloads model from the database by primary key.
func (s *Session) Refresh(ctx context.Context, model interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idb, err := s.idb(ctx)
	if err != nil {
		return err
	}
	s.engine.table(model)
	return idb.NewSelect().Model(model).WherePK().Scan(ctx)
}

// Delete removes model by primary key.
func (s *Session) Delete(ctx context.Context, model interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idb, err := s.idb(ctx)
	if err != nil {
		return err
	}
	s.engine.table(model)
	_, err = idb.NewDelete().Model(model).WherePK().Exec(ctx)
	return err
}

// Commit commits the open transaction, if any. The next statement starts a
// new one.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: session %s is closed", ErrSessionNotInitialized, s.id)
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Debug("Session transaction committed", "session", s.id)
	return nil
}

// Rollback discards the open transaction, if any.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollback()
}

func (s *Session) rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	s.logger.Debug("Session transaction rolled back", "session", s.id)
	return nil
}

// Close rolls back uncommitted work and makes the session unusable. Closing
// twice is a no-op. The last session on a replaced engine closes it.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.rollback()
	if s.engine != nil && s.engine.release() {
		if cerr := s.engine.close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close replaced engine: %w", cerr))
		} else {
			s.logger.Debug("Replaced database engine closed", "session", s.id)
		}
	}
	s.logger.Debug("Session closed", "session", s.id)
	return err
}

// upsert writes a model whose primary key is already assigned, choosing the
// conflict clause the dialect supports.
func (s *Session) upsert(ctx context.Context, idb bun.IDB, table *schema.Table, model interface{}) error {
	pkNames := make([]string, len(table.PKs))
	for i, f := range table.PKs {
		pkNames[i] = string(f.SQLName)
	}

	switch {
	case s.engine.db.HasFeature(feature.InsertOnConflict):
		conflict := "CONFLICT (" + strings.Join(pkNames, ", ") + ")"
		if len(table.DataFields) == 0 {
			_, err := idb.NewInsert().Model(model).On(conflict + " DO NOTHING").Exec(ctx)
			return err
		}
		var set []string
		for _, f := range table.DataFields {
			set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", f.SQLName, f.SQLName))
		}
		_, err := idb.NewInsert().Model(model).On(conflict + " DO UPDATE").Set(strings.Join(set, ", ")).Exec(ctx)
		return err
	case s.engine.db.HasFeature(feature.InsertOnDuplicateKey):
		var set []string
		for _, f := range table.DataFields {
			set = append(set, fmt.Sprintf("%s = VALUES(%s)", f.SQLName, f.SQLName))
		}
		if len(set) == 0 {
			set = append(set, fmt.Sprintf("%s = %s", pkNames[0], pkNames[0]))
		}
		_, err := idb.NewInsert().Model(model).On("DUPLICATE KEY UPDATE " + strings.Join(set, ", ")).Exec(ctx)
		return err
	default:
		exists, err := idb.NewSelect().Model(model).WherePK().Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			_, err = idb.NewUpdate().Model(model).WherePK().Exec(ctx)
		} else {
			_, err = idb.NewInsert().Model(model).Exec(ctx)
		}
		return err
	}
}

// hasIdentity reports whether every primary key of model holds a non-zero value.
func hasIdentity(table *schema.Table, model interface{}) bool {
	if len(table.PKs) == 0 {
		return false
	}
	v := reflect.Indirect(reflect.ValueOf(model))
	for _, f := range table.PKs {
		if f.HasZeroValue(v) {
			return false
		}
	}
	return true
}

func singlePK(table *schema.Table) (*schema.Field, error) {
	if len(table.PKs) != 1 {
		return nil, fmt.Errorf("model %s must have exactly one primary key, has %d", table.Type.Name(), len(table.PKs))
	}
	return table.PKs[0], nil
}
