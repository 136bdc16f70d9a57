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

	"github.com/google/uuid"
	"github.com/tomoncle/rowkit/database"
	"github.com/tomoncle/rowkit/types"
)

// DefaultIDField is the primary key column used when none is configured.
const DefaultIDField = "id"

// Repository is the data-access contract shared by the live and mock
// implementations. Each method starts a fresh Query; nothing runs until a
// terminal method of that Query is called.
type Repository[T any] interface {
	// TableName names the table the repository is bound to.
	TableName() string
	// IDField names the primary key column.
	IDField() string
	// Select starts a read. An empty projection selects the repository's
	// default columns.
	Select(projection ...string) *Query[T]
	// Insert starts an insert of one or more partial entities, rows or
	// slices of either.
	Insert(payload ...any) *Query[T]
	// Update starts an update applying payload to every matching row. The
	// primary key in payload is ignored. A struct payload is encoded like
	// JSON, so every field without omitempty is written, zero values
	// included; pass a map or types.Row to change only some columns.
	Update(payload any) *Query[T]
	// Delete starts a delete of every matching row.
	Delete() *Query[T]
}

// executor runs a validated descriptor. It returns the affected rows,
// already projected, and the number of rows touched.
type executor interface {
	exec(ctx context.Context, d types.Descriptor) ([]types.Row, int, error)
	// count returns the number of rows a select's predicates match.
	count(ctx context.Context, d types.Descriptor) (int, error)
}

// IDGenerator returns a new primary key for an inserted row.
type IDGenerator func() any

// NewUUID generates time-ordered UUID v7 strings, falling back to v4.
func NewUUID() any {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type options struct {
	idField       string
	defaultSelect string
	idGenerator   IDGenerator
	logger        database.Logger
}

func newOptions(opts []Option) options {
	o := options{idField: DefaultIDField, defaultSelect: "*"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = database.GetLogger()
	}
	return o
}

// Option configures a repository.
type Option func(*options)

// WithIDField sets the primary key column. Empty keeps the default.
func WithIDField(field string) Option {
	return func(o *options) {
		if field != "" {
			o.idField = field
		}
	}
}

// WithDefaultSelect sets the projection used by Select() with no arguments.
func WithDefaultSelect(projection string) Option {
	return func(o *options) {
		if projection != "" {
			o.defaultSelect = projection
		}
	}
}

// WithIDGenerator replaces the key generator used for inserted rows that
// carry no key.
func WithIDGenerator(gen IDGenerator) Option {
	return func(o *options) { o.idGenerator = gen }
}

func WithLogger(logger database.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
