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
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/tomoncle/rowkit/types"
)

// core holds what every Query of a repository shares and implements the
// Repository methods on top of an executor.
type core[T any] struct {
	table  string
	opts   options
	codec  *codec[T]
	runner executor
	// broken fails every statement before it reaches exec.
	broken error
}

func newCore[T any](table string, opts []Option) *core[T] {
	return &core[T]{table: table, opts: newOptions(opts), codec: newCodec[T]()}
}

func (c *core[T]) TableName() string { return c.table }

func (c *core[T]) IDField() string { return c.opts.idField }

func (c *core[T]) Select(projection ...string) *Query[T] {
	p := strings.TrimSpace(strings.Join(projection, ","))
	if p == "" {
		p = c.opts.defaultSelect
	}
	return c.query(types.NewDescriptor(c.table, types.OpSelect, p), nil)
}

func (c *core[T]) query(d types.Descriptor, err error) *Query[T] {
	if c.broken != nil {
		err = c.broken
	}
	return &Query[T]{core: c, desc: d, err: err}
}

func (c *core[T]) Insert(payload ...any) *Query[T] {
	rows, err := c.codec.toRows(payload)
	return c.query(types.NewDescriptor(c.table, types.OpInsert, "*").WithPayload(rows...), err)
}

func (c *core[T]) Update(payload any) *Query[T] {
	row, err := c.codec.toRow(payload)
	if row != nil {
		delete(row, c.opts.idField)
	}
	d := types.NewDescriptor(c.table, types.OpUpdate, "*")
	if err == nil {
		d = d.WithPayload(row)
	}
	return c.query(d, err)
}

func (c *core[T]) Delete() *Query[T] {
	return c.query(types.NewDescriptor(c.table, types.OpDelete, "*"), nil)
}

// Query is an immutable, chainable statement. Every builder method returns
// a new Query and leaves the receiver untouched, so a partially built Query
// can be reused as a base for several branches.
type Query[T any] struct {
	core *core[T]
	desc types.Descriptor
	err  error
}

func (q *Query[T]) with(d types.Descriptor) *Query[T] {
	return &Query[T]{core: q.core, desc: d, err: q.err}
}

func (q *Query[T]) where(field string, op types.Operator, value any) *Query[T] {
	return q.with(q.desc.WithPredicate(types.Predicate{Field: field, Operator: op, Value: value}))
}

// Descriptor returns a copy of the statement built so far.
func (q *Query[T]) Descriptor() types.Descriptor { return q.desc.Clone() }

func (q *Query[T]) String() string { return q.desc.String() }

// Select sets the columns returned, for reads and for the rows a mutation
// reports back.
func (q *Query[T]) Select(projection string) *Query[T] {
	return q.with(q.desc.WithProjection(projection))
}

func (q *Query[T]) Eq(field string, value any) *Query[T] { return q.where(field, types.OpEq, value) }

func (q *Query[T]) Neq(field string, value any) *Query[T] { return q.where(field, types.OpNeq, value) }

func (q *Query[T]) Gt(field string, value any) *Query[T] { return q.where(field, types.OpGt, value) }

func (q *Query[T]) Gte(field string, value any) *Query[T] { return q.where(field, types.OpGte, value) }

func (q *Query[T]) Lt(field string, value any) *Query[T] { return q.where(field, types.OpLt, value) }

func (q *Query[T]) Lte(field string, value any) *Query[T] { return q.where(field, types.OpLte, value) }

// Like matches a case-sensitive pattern; % and _ are wildcards. A pattern
// without % matches anywhere in the value.
func (q *Query[T]) Like(field string, pattern string) *Query[T] {
	return q.where(field, types.OpLike, pattern)
}

// ILike is the case-insensitive form of Like.
func (q *Query[T]) ILike(field string, pattern string) *Query[T] {
	return q.where(field, types.OpILike, pattern)
}

// In matches rows whose field equals any of values. A single slice argument
// is expanded, so In("id", ids) and In("id", ids...) are equivalent.
func (q *Query[T]) In(field string, values ...any) *Query[T] {
	if len(values) == 1 {
		rv := reflect.ValueOf(values[0])
		if values[0] != nil && rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
			expanded := make([]any, rv.Len())
			for i := range expanded {
				expanded[i] = rv.Index(i).Interface()
			}
			values = expanded
		}
	}
	vals := make([]any, len(values))
	copy(vals, values)
	return q.with(q.desc.WithPredicate(types.Predicate{Field: field, Operator: types.OpIn, Values: vals}))
}

// Order replaces any earlier ordering.
func (q *Query[T]) Order(field string, ascending bool) *Query[T] {
	return q.with(q.desc.WithOrder(field, ascending))
}

// Limit caps the number of rows. The last Limit or Range call wins.
func (q *Query[T]) Limit(n int) *Query[T] {
	return q.with(q.desc.WithLimit(n))
}

// Range selects rows from..to inclusive, zero based.
func (q *Query[T]) Range(from, to int) *Query[T] {
	return q.with(q.desc.WithRange(from, to))
}

// Execute runs the statement and decodes every returned row.
func (q *Query[T]) Execute(ctx context.Context) types.Result[[]T] {
	rows, count, err := q.run(ctx, q.desc)
	if err != nil {
		return types.Fail[[]T](err)
	}
	items, err := q.decode(rows)
	if err != nil {
		return types.Fail[[]T](err)
	}
	return types.Ok(items, count)
}

// Rows runs the statement and returns the rows undecoded.
func (q *Query[T]) Rows(ctx context.Context) types.Result[[]types.Row] {
	rows, count, err := q.run(ctx, q.desc)
	if err != nil {
		return types.Fail[[]types.Row](err)
	}
	return types.Ok(rows, count)
}

// Count returns how many rows the filters match, ignoring ordering, Limit
// and Range. Only select statements can be counted.
func (q *Query[T]) Count(ctx context.Context) types.Result[int] {
	if q.desc.Operation != types.OpSelect && q.err == nil {
		return types.Fail[int](types.NewError(types.CodeInvalidQuery, "cannot count a %s statement", q.desc.Desc()))
	}
	d := q.desc.Clone()
	d.Order, d.Offset, d.Limit = nil, 0, types.NoLimit
	n, err := q.execute(ctx, d, func(ctx context.Context) (int, error) {
		return q.core.runner.count(ctx, d)
	})
	if err != nil {
		return types.Fail[int](err)
	}
	return types.Ok(n, n)
}

// Single requires exactly one row: no row is NOT_FOUND and more than one is
// MULTIPLE_RESULTS.
func (q *Query[T]) Single(ctx context.Context) types.Result[*T] {
	return q.one(ctx, true)
}

// MaybeSingle is Single without the NOT_FOUND failure: no row yields a
// successful Result with nil Data.
func (q *Query[T]) MaybeSingle(ctx context.Context) types.Result[*T] {
	return q.one(ctx, false)
}

func (q *Query[T]) one(ctx context.Context, required bool) types.Result[*T] {
	d := q.desc
	if d.Operation == types.OpSelect && d.Limit == types.NoLimit {
		// two rows are enough to tell one from many
		d = d.WithLimit(2)
	}
	rows, _, err := q.run(ctx, d)
	if err != nil {
		return types.Fail[*T](err)
	}
	switch len(rows) {
	case 0:
		if required {
			return types.Fail[*T](types.NewError(types.CodeNotFound, "no rows in %s matched %s", q.desc.Table, q.filterText()))
		}
		return types.Ok[*T](nil, 0)
	case 1:
		item, err := q.core.codec.fromRow(rows[0])
		if err != nil {
			return types.Fail[*T](err)
		}
		return types.Ok(&item, 1)
	default:
		return types.Fail[*T](types.NewError(types.CodeMultipleResults, "%d rows in %s matched %s, expected one", len(rows), q.desc.Table, q.filterText()))
	}
}

func (q *Query[T]) filterText() string {
	if len(q.desc.Predicates) == 0 {
		return "no filter"
	}
	parts := make([]string, len(q.desc.Predicates))
	for i, p := range q.desc.Predicates {
		parts[i] = p.String()
	}
	return strings.Join(parts, " and ")
}

func (q *Query[T]) decode(rows []types.Row) ([]T, error) {
	items := make([]T, 0, len(rows))
	for _, row := range rows {
		item, err := q.core.codec.fromRow(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// run executes d and returns the affected rows, never nil on success.
func (q *Query[T]) run(ctx context.Context, d types.Descriptor) ([]types.Row, int, error) {
	var rows []types.Row
	count, err := q.execute(ctx, d, func(ctx context.Context) (n int, err error) {
		rows, n, err = q.core.runner.exec(ctx, d)
		return n, err
	})
	if err != nil {
		return nil, 0, err
	}
	if rows == nil {
		rows = []types.Row{}
	}
	return rows, count, nil
}

// execute guards fn with the statement checks shared by every terminal,
// turning panics and context errors into error values.
func (q *Query[T]) execute(ctx context.Context, d types.Descriptor, fn func(context.Context) (int, error)) (count int, err error) {
	log := q.core.opts.logger
	defer func() {
		if r := recover(); r != nil {
			count = 0
			err = types.NewError(types.CodeTransport, "%s %s panicked: %v", d.Desc(), d.Table, r)
			log.Error("query panicked", "table", d.Table, "operation", d.Operation.Name(), "panic", fmt.Sprint(r))
		}
	}()
	if q.err != nil {
		return 0, types.AsErrorInfo(q.err, types.CodeInvalidQuery)
	}
	if err := d.Validate(); err != nil {
		return 0, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return 0, types.AsErrorInfo(err, types.CodeTransport)
	}
	start := time.Now()
	count, err = fn(ctx)
	if err != nil {
		log.Warn("query failed", "table", d.Table, "operation", d.Operation.Name(), "error", err.Error())
		return 0, err
	}
	log.Debug("query executed", "table", d.Table, "operation", d.Operation.Name(), "rows", count, "elapsed", time.Since(start).String())
	return count, nil
}
