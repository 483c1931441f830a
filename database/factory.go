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
	"fmt"
	"os"
	"strconv"
)

// NewFromConfig builds and initializes a Database described by cfg, applying
// DB_* environment overrides to a copy of it first. Tables of registered models are created
// when cfg.CreateAllOnStartup is set.
func NewFromConfig(ctx context.Context, cfg *Config, opts ...Option) (*Database, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	resolved := *cfg
	resolved.EngineOptions = cfg.EngineOptions.clone()
	resolved.SessionOptions = cfg.SessionOptions.clone()
	cfg = &resolved
	overrideFromEnv(cfg)
	if cfg.URL == "" {
		return nil, ErrDatabaseURLNotInitialized
	}

	d := New(opts...)
	if err := d.Initialize(cfg.URL, cfg.EngineOptions, cfg.SessionOptions); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.CreateAllOnStartup {
		if err := d.CreateAll(ctx); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}
	d.logger.Info("Database initialization completed!")
	return d, nil
}

// overrideFromEnv overrides pool settings from environment variables. It
// writes into cfg and its option maps.
func overrideFromEnv(cfg *Config) {
	if url := os.Getenv("DB_URL"); url != "" {
		cfg.URL = url
	}
	intOverrides := map[string]string{
		"DB_MAX_IDLE_CONNS":    "max_idle_conns",
		"DB_MAX_OPEN_CONNS":    "max_open_conns",
		"DB_CONN_MAX_LIFETIME": "conn_max_lifetime",
	}
	for env, key := range intOverrides {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			if cfg.EngineOptions == nil {
				cfg.EngineOptions = Options{}
			}
			cfg.EngineOptions[key] = n
		}
	}
	if echo := os.Getenv("DB_ENABLE_QUERY_LOG"); echo != "" {
		if cfg.EngineOptions == nil {
			cfg.EngineOptions = Options{}
		}
		cfg.EngineOptions["echo"] = echo == "true"
	}
}
