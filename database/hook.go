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
	"io"
	"os"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var bunSqlSilentMode atomic.Bool

// EnableBunSqlSilent mutes QueryHook and SlowQueryHook process-wide.
func EnableBunSqlSilent(b bool) {
	bunSqlSilentMode.Store(b)
}

var (
	tagColor       = color.New(color.FgCyan)
	failColor      = color.New(color.BgRed)
	otherStmtColor = color.New(color.FgRed)
	stmtColors     = map[string]*color.Color{
		"SELECT": color.New(color.FgGreen),
		"INSERT": color.New(color.FgBlue),
		"UPDATE": color.New(color.FgYellow),
		"DELETE": color.New(color.FgMagenta),
	}
)

// QueryHook prints executed statements coloured by operation. The envName
// variable overrides the enabled/verbose flags: "0" disables, "2" turns on
// verbose output (successful queries too).
type QueryHook struct {
	envName string
	enabled bool
	verbose bool
	writer  io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

// NewQueryHook returns an enabled hook writing to w (stdout when nil).
func NewQueryHook(w io.Writer, envName string, verbose bool) *QueryHook {
	if w == nil {
		w = os.Stdout
	}
	return &QueryHook{envName: envName, enabled: true, verbose: verbose, writer: w}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) modes() (enabled, verbose bool) {
	if h.envName != "" {
		if env, ok := os.LookupEnv(h.envName); ok {
			return env != "" && env != "0", env == "2"
		}
	}
	return h.enabled, h.verbose
}

// quiet reports outcomes that are only printed in verbose mode.
func quiet(err error) bool {
	return err == nil || errors.Is(err, sql.ErrNoRows) || errors.Is(err, sql.ErrTxDone)
}

func (h *QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if bunSqlSilentMode.Load() {
		return
	}
	enabled, verbose := h.modes()
	if !enabled || (!verbose && quiet(event.Err)) {
		return
	}

	now := time.Now()
	stmt, ok := stmtColors[event.Operation()]
	if !ok {
		stmt = otherStmtColor
	}
	line := fmt.Sprintf("%s %s %12s   %s",
		now.Format(timestampLayout),
		tagColor.Sprintf("%8s", "[BUN]"),
		now.Sub(event.StartTime).Round(time.Microsecond),
		stmt.Sprint(event.Query))
	if event.Err != nil {
		line += "\t" + failColor.Sprintf(" %s: %s ", reflect.TypeOf(event.Err), event.Err)
	}
	_, _ = fmt.Fprintln(h.writer, line)
}

const timestampLayout = "2006-01-02 15:04:05.000"

// SlowQueryHook warns through a Logger when a successful statement takes
// longer than its threshold.
type SlowQueryHook struct {
	threshold time.Duration
	logger    Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func NewSlowQueryHook(threshold time.Duration, logger Logger) *SlowQueryHook {
	return &SlowQueryHook{threshold: threshold, logger: logger}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if bunSqlSilentMode.Load() || event.Err != nil || h.logger == nil {
		return
	}
	if took := time.Since(event.StartTime); took > h.threshold {
		h.logger.Warn("Database slow query detected",
			"duration", took,
			"slow_threshold", h.threshold,
			"query", event.Query)
	}
}
