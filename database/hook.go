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
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var slowQuerySilent atomic.Bool

// EnableSlowQuerySilent mutes every SlowQueryHook in the process.
func EnableSlowQuerySilent(b bool) {
	slowQuerySilent.Store(b)
}

var operationColors = map[string]*color.Color{
	"SELECT": color.New(color.BgGreen, color.FgHiWhite),
	"INSERT": color.New(color.BgBlue, color.FgHiWhite),
	"UPDATE": color.New(color.BgYellow, color.FgHiWhite),
	"DELETE": color.New(color.BgMagenta, color.FgHiWhite),
}

var defaultOperationColor = color.New(color.BgRed, color.FgHiWhite)

func colorizeQuery(event *bun.QueryEvent) string {
	c, ok := operationColors[event.Operation()]
	if !ok {
		c = defaultOperationColor
	}
	return c.Sprint(event.Query)
}

// SlowQueryHook logs queries that run longer than a threshold. The
// BUN_SLOW_QUERY environment variable overrides it: "0" disables the hook.
type SlowQueryHook struct {
	fromEnv  string
	slowTime time.Duration
	logger   Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func NewSlowQueryHook(slowTime time.Duration, logger Logger) *SlowQueryHook {
	return &SlowQueryHook{
		fromEnv:  "BUN_SLOW_QUERY",
		slowTime: slowTime,
		logger:   logger,
	}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if slowQuerySilent.Load() || event.Err != nil || h.logger == nil {
		return
	}
	if env, ok := os.LookupEnv(h.fromEnv); ok && strings.TrimSpace(env) == "0" {
		return
	}

	duration := time.Since(event.StartTime)
	if duration <= h.slowTime {
		return
	}
	fields := []interface{}{
		"duration", duration.Round(time.Microsecond),
		"slow_threshold", h.slowTime,
		"query", colorizeQuery(event),
	}
	if s, ok := SessionFromContext(ctx); ok {
		fields = append(fields, "session", s.ID())
	}
	h.logger.Warn(color.YellowString("Database slow query detected"), fields...)
}
