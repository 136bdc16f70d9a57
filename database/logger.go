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
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tomoncle/rowkit/utils"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

var logrusLevels = [...]logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel}

func (l LogLevel) String() string {
	if l < LogLevelDebug || l > LogLevelError {
		return levelNames[LogLevelDebug]
	}
	return levelNames[l]
}

func (l LogLevel) toLogrus() logrus.Level {
	if l < LogLevelDebug || l > LogLevelError {
		return logrus.DebugLevel
	}
	return logrusLevels[l]
}

// Logger is the logging contract used by the database and repository layers.
// fields are alternating key/value pairs.
type Logger interface {
	SetLevel(LogLevel)
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

var defaultLogger struct {
	sync.Mutex
	Logger
}

// swapIn installs log when no default is set and returns the default.
func swapIn(log Logger) Logger {
	defaultLogger.Lock()
	defer defaultLogger.Unlock()
	if defaultLogger.Logger == nil {
		defaultLogger.Logger = log
	}
	return defaultLogger.Logger
}

// InitLogger installs log as the process default if none is set yet.
func InitLogger(log Logger) {
	if log != nil {
		swapIn(log)
	}
}

// GetLogger returns the process default logger, creating a DefaultLogger
// named "DATABASE" on first use.
func GetLogger() Logger {
	defaultLogger.Lock()
	l := defaultLogger.Logger
	defaultLogger.Unlock()
	if l != nil {
		return l
	}
	return swapIn(NewDefaultLogger("DATABASE"))
}

// DefaultLogger adapts a named logrus logger from utils to Logger.
type DefaultLogger struct {
	logger *utils.Logger
}

func NewDefaultLogger(name string) *DefaultLogger {
	return &DefaultLogger{logger: utils.GetLogger(name)}
}

func (l *DefaultLogger) Debug(msg string, fields ...interface{}) { l.with(fields).Debug(msg) }

func (l *DefaultLogger) Info(msg string, fields ...interface{}) { l.with(fields).Info(msg) }

func (l *DefaultLogger) Warn(msg string, fields ...interface{}) { l.with(fields).Warn(msg) }

func (l *DefaultLogger) Error(msg string, fields ...interface{}) { l.with(fields).Error(msg) }

func (l *DefaultLogger) SetLevel(level LogLevel) { l.logger.SetLevel(level.toLogrus()) }

// with pairs up fields; a trailing key without a value is dropped.
func (l *DefaultLogger) with(fields []interface{}) *logrus.Entry {
	data := make(logrus.Fields, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		data[fmt.Sprint(fields[i])] = fields[i+1]
	}
	return l.logger.WithFields(data)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) SetLevel(LogLevel)            {}
func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
