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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
url: postgres://app:secret@db:5432/app
create_all_on_startup: true
engine_options:
  max_open_conns: 40
  conn_max_lifetime: 600
  echo: false
session_options:
  isolation_level: serializable
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "database.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "postgres://app:secret@db:5432/app", cfg.URL)
	assert.True(t, cfg.CreateAllOnStartup)
	assert.EqualValues(t, 40, cfg.EngineOptions["max_open_conns"])
	assert.Equal(t, "serializable", cfg.SessionOptions["isolation_level"])

	engine, _, err := decodeEngineOptions(cfg.EngineOptions)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, engine.ConnMaxLifetime)
	assert.Equal(t, 40, engine.MaxOpenConns)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://")
	t.Setenv("DATABASE_AUTOCOMMIT", "true")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "sqlite://", cfg.URL)

	session, _, err := decodeSessionOptions(cfg.SessionOptions)
	require.NoError(t, err)
	assert.True(t, session.Autocommit)
	assert.Equal(t, "serializable", session.IsolationLevel)

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite://", cfg.URL)
	assert.False(t, cfg.CreateAllOnStartup)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "database.yaml")
	cfg := &Config{
		URL:                "mysql://root:pw@db:3306/shop",
		EngineOptions:      Options{"max_idle_conns": 3},
		CreateAllOnStartup: true,
	}
	require.NoError(t, cfg.SaveConfig(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.URL, loaded.URL)
	assert.True(t, loaded.CreateAllOnStartup)
	assert.EqualValues(t, 3, loaded.EngineOptions["max_idle_conns"])

	assert.Contains(t, cfg.String(), "mysql://root:***@db:3306/shop")
	assert.NotContains(t, cfg.String(), "pw@")
}

func TestNewFromConfig(t *testing.T) {
	_, err := NewFromConfig(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewFromConfig(context.Background(), &Config{})
	assert.ErrorIs(t, err, ErrDatabaseURLNotInitialized)

	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	registry := NewModelRegistry()
	registry.Register(NewModelAdapter((*UserAccount)(nil), 0))

	db, err := NewFromConfig(context.Background(),
		&Config{URL: "sqlite://", CreateAllOnStartup: true},
		WithModelRegistry(registry), WithLogger(&recordLogger{}))
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 7, db.EngineOptions().MaxOpenConns)
	assert.Equal(t, 0, countRows(t, db))
}

func TestNewFromConfigLeavesCallerConfig(t *testing.T) {
	t.Setenv("DB_URL", "sqlite://")
	t.Setenv("DB_MAX_OPEN_CONNS", "7")

	cfg := &Config{URL: "sqlite:///never-opened.db", EngineOptions: Options{"echo": false}}
	db, err := NewFromConfig(context.Background(), cfg, WithLogger(&recordLogger{}))
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 7, db.EngineOptions().MaxOpenConns)

	assert.Equal(t, "sqlite:///never-opened.db", cfg.URL)
	assert.Equal(t, Options{"echo": false}, cfg.EngineOptions)
	assert.Nil(t, cfg.SessionOptions)

	bare := &Config{}
	db2, err := NewFromConfig(context.Background(), bare, WithLogger(&recordLogger{}))
	require.NoError(t, err)
	defer db2.Close()
	assert.Empty(t, bare.URL)
	assert.Nil(t, bare.EngineOptions)
	assert.Equal(t, 7, db2.EngineOptions().MaxOpenConns)
}

func TestDefaultDatabase(t *testing.T) {
	t.Cleanup(func() { _ = CloseDB() })
	require.NoError(t, CloseDB())

	assert.Nil(t, GetDatabase())
	assert.Nil(t, GetDB())
	assert.Equal(t, "Database not initialized", GetHealthStatus(context.Background()).LastError)
	assert.Equal(t, &DBStats{}, GetDatabaseStats())

	registry := NewModelRegistry()
	path := writeConfig(t, "url: sqlite://\n")
	db, err := InitDBFromFile(context.Background(), path, WithModelRegistry(registry), WithLogger(&recordLogger{}))
	require.NoError(t, err)
	assert.Same(t, db, GetDatabase())
	assert.NotNil(t, GetDB())

	status := GetHealthStatus(context.Background())
	assert.True(t, status.Healthy)
	assert.Empty(t, status.LastError)

	require.NoError(t, CloseDB())
	assert.Nil(t, GetDatabase())
}
