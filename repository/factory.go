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

package repository

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/uptrace/bun"

	"github.com/tomoncle/rowkit/database"
	"github.com/tomoncle/rowkit/types"
)

// Kind selects the repository implementation built by New.
type Kind string

const (
	KindLive Kind = "live"
	KindMock Kind = "mock"
)

var (
	ErrMissingTable = types.NewError(types.CodeConfiguration, "repository table name is empty")
	ErrMissingDB    = types.NewError(types.CodeConfiguration, "live repository requires a database handle")
	ErrNilFactory   = types.NewError(types.CodeConfiguration, "repository factory returned nil")
)

// Config describes the repository New builds. Instance wins over Factory,
// Factory over Type.
type Config[T any] struct {
	TableName     string `json:"tableName" yaml:"tableName"`
	IDField       string `json:"idField" yaml:"idField"`
	DefaultSelect string `json:"defaultSelect" yaml:"defaultSelect"`
	// Type defaults to KindLive.
	Type Kind `json:"type" yaml:"type"`

	// DB backs a live repository.
	DB bun.IDB `json:"-" yaml:"-"`
	// InitialData seeds a mock repository.
	InitialData []T `json:"-" yaml:"-"`
	// Instance is used as is.
	Instance Repository[T] `json:"-" yaml:"-"`
	// Factory is invoked once, on first use of the returned repository.
	Factory     func() Repository[T] `json:"-" yaml:"-"`
	IDGenerator IDGenerator          `json:"-" yaml:"-"`
	Logger      database.Logger      `json:"-" yaml:"-"`
}

func (c Config[T]) options() []Option {
	return []Option{
		WithIDField(c.IDField),
		WithDefaultSelect(c.DefaultSelect),
		WithIDGenerator(c.IDGenerator),
		WithLogger(c.Logger),
	}
}

// New builds the repository described by cfg.
func New[T any](cfg Config[T]) (Repository[T], error) {
	if cfg.Instance != nil {
		return cfg.Instance, nil
	}
	if cfg.Factory != nil {
		return &lazyRepository[T]{table: cfg.TableName, factory: cfg.Factory, fallback: cfg}, nil
	}
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, ErrMissingTable
	}
	switch Kind(strings.ToLower(string(cfg.Type))) {
	case KindMock:
		m := NewMockRepository[T](cfg.TableName, cfg.options()...)
		if err := m.Seed(context.Background(), cfg.InitialData...); err != nil {
			return nil, types.AsErrorInfo(err, types.CodeConfiguration)
		}
		return m, nil
	case KindLive, "":
		if cfg.DB == nil {
			return nil, ErrMissingDB
		}
		return NewLiveRepository[T](cfg.DB, cfg.TableName, cfg.options()...), nil
	default:
		return nil, types.NewError(types.CodeConfiguration, "unknown repository type %q", cfg.Type)
	}
}

// MustNew is New that panics on error.
func MustNew[T any](cfg Config[T]) Repository[T] {
	r, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

// Failed returns a repository whose every statement fails with err.
func Failed[T any](table string, err error, opts ...Option) Repository[T] {
	if err == nil {
		err = errors.New("repository unavailable")
	}
	c := newCore[T](table, opts)
	c.broken = types.AsErrorInfo(err, types.CodeConfiguration)
	return c
}

// lazyRepository defers a factory call until the repository is first used.
type lazyRepository[T any] struct {
	table    string
	factory  func() Repository[T]
	fallback Config[T]

	once sync.Once
	repo Repository[T]
}

func (l *lazyRepository[T]) get() Repository[T] {
	l.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				l.repo = Failed[T](l.table, types.NewError(types.CodeConfiguration, "repository factory panicked: %v", r), l.fallback.options()...)
			}
		}()
		l.repo = l.factory()
		if l.repo == nil {
			l.repo = Failed[T](l.table, ErrNilFactory, l.fallback.options()...)
		}
	})
	return l.repo
}

func (l *lazyRepository[T]) TableName() string {
	if l.table != "" {
		return l.table
	}
	return l.get().TableName()
}

func (l *lazyRepository[T]) IDField() string                       { return l.get().IDField() }
func (l *lazyRepository[T]) Select(projection ...string) *Query[T] { return l.get().Select(projection...) }
func (l *lazyRepository[T]) Insert(payload ...any) *Query[T]       { return l.get().Insert(payload...) }
func (l *lazyRepository[T]) Update(payload any) *Query[T]          { return l.get().Update(payload) }
func (l *lazyRepository[T]) Delete() *Query[T]                     { return l.get().Delete() }
