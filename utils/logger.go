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

package utils

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

type Logger = logrus.Logger

const timestampFormat = "2006-01-02 15:04:05.000"

// registry holds every named logger so level and output changes reach
// loggers created earlier.
type registry struct {
	mu      sync.RWMutex
	loggers map[string]*logrus.Logger
	level   logrus.Level
	format  string
	out     io.Writer
}

var loggers = &registry{
	loggers: map[string]*logrus.Logger{},
	level:   ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info")),
	format:  consoleFormat(EnvDefaultString("CONSOLE_LOG_FORMAT", "text")),
	out:     os.Stdout,
}

func consoleFormat(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return "json"
	}
	return "text"
}

// ConfigureConsoleLogFormat switches new loggers between "text" and "json".
func ConfigureConsoleLogFormat(format string) {
	loggers.mu.Lock()
	defer loggers.mu.Unlock()
	loggers.format = consoleFormat(format)
}

// ConfigureConsoleOutput redirects every registered logger to w.
func ConfigureConsoleOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	loggers.mu.Lock()
	defer loggers.mu.Unlock()
	loggers.out = w
	for _, l := range loggers.loggers {
		l.SetOutput(w)
	}
}

// ParseLogLevel maps a level name to logrus, defaulting to info.
func ParseLogLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func RegisterLogger(name string, l *logrus.Logger) {
	loggers.mu.Lock()
	defer loggers.mu.Unlock()
	loggers.loggers[name] = l
}

// GetLogger returns the logger registered under name, creating it on demand.
func GetLogger(name string) *logrus.Logger {
	loggers.mu.RLock()
	l, ok := loggers.loggers[name]
	loggers.mu.RUnlock()
	if ok {
		return l
	}
	return NewLogger(name)
}

func SetAllLoggersLevel(lvl logrus.Level) {
	loggers.mu.Lock()
	defer loggers.mu.Unlock()
	loggers.level = lvl
	for _, l := range loggers.loggers {
		l.SetLevel(lvl)
	}
}

// SetLoggerLevel reports false when no logger is registered under name.
func SetLoggerLevel(name string, lvl string) bool {
	loggers.mu.RLock()
	l, ok := loggers.loggers[name]
	loggers.mu.RUnlock()
	if ok {
		l.SetLevel(ParseLogLevel(lvl))
	}
	return ok
}

// NewLogger creates and registers a named logger using the configured
// console format.
func NewLogger(name string) *logrus.Logger {
	l := logrus.New()
	l.SetReportCaller(true)

	loggers.mu.Lock()
	defer loggers.mu.Unlock()
	l.SetOutput(loggers.out)
	l.SetLevel(loggers.level)
	if loggers.format == "json" {
		l.SetFormatter(&JSONLogFormatter{LoggerName: name})
	} else {
		l.SetFormatter(&Log4jColorFormatter{LoggerName: name, NameWidth: 10, ColorCaller: true})
	}
	loggers.loggers[name] = l
	return l
}

var (
	pidColor    = color.New(color.FgMagenta).SprintFunc()
	nameColor   = color.New(color.FgCyan).SprintFunc()
	callerColor = color.New(color.Faint).SprintFunc()
	levelColors = map[logrus.Level]*color.Color{
		logrus.TraceLevel: color.New(color.FgBlue),
		logrus.DebugLevel: color.New(color.FgBlue),
		logrus.InfoLevel:  color.New(color.FgGreen),
		logrus.WarnLevel:  color.New(color.FgYellow),
	}
	errorColor = color.New(color.FgRed)
)

func levelColor(level logrus.Level) *color.Color {
	if c, ok := levelColors[level]; ok {
		return c
	}
	return errorColor
}

// Log4jColorFormatter renders "time LEVEL pid - [main] name file:line : msg k=v".
type Log4jColorFormatter struct {
	LoggerName      string
	TimestampFormat string
	ColorCaller     bool
	NameWidth       int
}

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = timestampFormat
	}
	name := f.LoggerName
	if r := []rune(name); f.NameWidth > 0 && len(r) > f.NameWidth {
		name = string(r[:f.NameWidth])
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format(layout))
	b.WriteByte(' ')
	b.WriteString(levelColor(entry.Level).Sprintf("%7s", strings.ToUpper(entry.Level.String())))
	b.WriteByte(' ')
	b.WriteString(pidColor(fmt.Sprintf("%-6d", os.Getpid())))
	b.WriteString(" - ")
	b.WriteString(pidColor("[main]"))
	b.WriteByte(' ')
	b.WriteString(nameColor(fmt.Sprintf("%*s", f.NameWidth, name)))
	if entry.Caller != nil {
		caller := fmt.Sprintf(" %s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
		if f.ColorCaller {
			caller = callerColor(caller)
		}
		b.WriteString(caller)
	}
	b.WriteString(" " + callerColor(":") + " ")
	b.WriteString(entry.Message)
	for _, k := range slices.Sorted(maps.Keys(entry.Data)) {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

type jsonLogRecord struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Model   string         `json:"model"`
	Caller  string         `json:"caller,omitempty"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// JSONLogFormatter writes one JSON object per entry; errors in fields are
// flattened to their message.
type JSONLogFormatter struct {
	LoggerName      string
	TimestampFormat string
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = timestampFormat
	}
	rec := jsonLogRecord{
		Time:    entry.Time.Format(layout),
		Level:   entry.Level.String(),
		Model:   f.LoggerName,
		Message: entry.Message,
	}
	if entry.Caller != nil {
		rec.Caller = fmt.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	if len(entry.Data) > 0 {
		rec.Fields = make(map[string]any, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			rec.Fields[k] = v
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// EnvDefaultString returns the environment value of key or def when unset.
func EnvDefaultString(key string, def string) string {
	if v, ok := lookupEnv(key); ok {
		return v
	}
	return def
}

// EnvDefaultBool parses key as a boolean, falling back to def. Besides the
// strconv forms it accepts yes/no and on/off.
func EnvDefaultBool(key string, def bool) bool {
	v, ok := lookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// EnvDefaultDuration parses key as a duration, falling back to def. Bare
// integers are read as nanoseconds.
func EnvDefaultDuration(key string, def time.Duration) time.Duration {
	v, ok := lookupEnv(key)
	if !ok {
		return def
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return def
	}
	return d
}
