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
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Options is an open-ended option mapping as found in configuration files.
type Options map[string]any

// clone returns a shallow copy so callers can keep mutating their map.
func (o Options) clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// EngineOptions tunes the engine and its connection pool.
type EngineOptions struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	PoolPrePing     bool          `mapstructure:"pool_pre_ping"`
	Echo            bool          `mapstructure:"echo"`
	SlowQueryTime   time.Duration `mapstructure:"slow_query_time"`
}

// DefaultEngineOptions returns engine options with sensible defaults.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		MaxOpenConns:    100,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		ConnectTimeout:  time.Second * 10,
		SlowQueryTime:   time.Second * 2,
	}
}

// SessionOptions controls how sessions run their unit of work.
type SessionOptions struct {
	// Autocommit runs every statement directly on the engine instead of
	// inside a lazily started transaction.
	Autocommit     bool   `mapstructure:"autocommit"`
	ReadOnly       bool   `mapstructure:"read_only"`
	IsolationLevel string `mapstructure:"isolation_level"`
}

// TxOptions converts the session options into database/sql transaction options.
func (o SessionOptions) TxOptions() (*sql.TxOptions, error) {
	level, err := parseIsolationLevel(o.IsolationLevel)
	if err != nil {
		return nil, err
	}
	return &sql.TxOptions{Isolation: level, ReadOnly: o.ReadOnly}, nil
}

func parseIsolationLevel(s string) (sql.IsolationLevel, error) {
	norm := strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "", "default":
		return sql.LevelDefault, nil
	case "read uncommitted":
		return sql.LevelReadUncommitted, nil
	case "read committed":
		return sql.LevelReadCommitted, nil
	case "write committed":
		return sql.LevelWriteCommitted, nil
	case "repeatable read":
		return sql.LevelRepeatableRead, nil
	case "snapshot":
		return sql.LevelSnapshot, nil
	case "serializable":
		return sql.LevelSerializable, nil
	case "linearizable":
		return sql.LevelLinearizable, nil
	}
	return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", s)
}

// decodeEngineOptions overlays raw onto the defaults and returns the keys it
// did not recognise.
func decodeEngineOptions(raw Options) (EngineOptions, []string, error) {
	out := DefaultEngineOptions()
	unused, err := decodeOptions(raw, &out)
	if err != nil {
		return EngineOptions{}, nil, fmt.Errorf("invalid engine options: %w", err)
	}
	return out, unused, nil
}

func decodeSessionOptions(raw Options) (SessionOptions, []string, error) {
	var out SessionOptions
	unused, err := decodeOptions(raw, &out)
	if err != nil {
		return SessionOptions{}, nil, fmt.Errorf("invalid session options: %w", err)
	}
	if _, err := out.TxOptions(); err != nil {
		return SessionOptions{}, nil, fmt.Errorf("invalid session options: %w", err)
	}
	return out, unused, nil
}

func decodeOptions(raw Options, out any) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		Metadata:         &md,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(map[string]any(raw)); err != nil {
		return nil, err
	}
	sort.Strings(md.Unused)
	return md.Unused, nil
}

// secondsToDurationHook reads bare numbers as seconds, e.g. conn_max_lifetime: 3600.
func secondsToDurationHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	durationType := reflect.TypeOf(time.Duration(0))
	if to != durationType || from == durationType {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
	}
	return data, nil
}
