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
	"sync"
	"time"

	"github.com/uptrace/bun"
)

var (
	globalMu       sync.RWMutex
	globalDatabase *Database
)

// InitDB builds the process-wide default Database from cfg, closing any
// previous one.
func InitDB(ctx context.Context, cfg *Config, opts ...Option) (*Database, error) {
	d, err := NewFromConfig(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	SetDatabase(d)
	return d, nil
}

// InitDBFromFile is LoadConfig followed by InitDB.
func InitDBFromFile(ctx context.Context, path string, opts ...Option) (*Database, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return InitDB(ctx, cfg, opts...)
}

// SetDatabase installs d as the default Database. The previous one, if
// different, is closed.
func SetDatabase(d *Database) {
	globalMu.Lock()
	old := globalDatabase
	globalDatabase = d
	globalMu.Unlock()
	if old != nil && old != d {
		_ = old.Close()
	}
}

// GetDatabase returns the default Database, or nil before InitDB.
func GetDatabase() *Database {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalDatabase
}

// GetDB returns the engine of the default Database, or nil.
func GetDB() *bun.DB {
	d := GetDatabase()
	if d == nil {
		return nil
	}
	db, err := d.GetEngine()
	if err != nil {
		return nil
	}
	return db
}

// CloseDB closes and forgets the default Database.
func CloseDB() error {
	globalMu.Lock()
	d := globalDatabase
	globalDatabase = nil
	globalMu.Unlock()
	if d == nil {
		return nil
	}
	return d.Close()
}

// GetHealthStatus returns the health of the default Database.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if d := GetDatabase(); d != nil {
		return d.HealthCheck(ctx)
	}
	return &HealthStatus{
		LastError:     "Database not initialized",
		LastCheckTime: time.Now(),
	}
}

// GetDatabaseStats returns pool statistics of the default Database.
func GetDatabaseStats() *DBStats {
	if d := GetDatabase(); d != nil {
		return d.Stats()
	}
	return &DBStats{}
}
