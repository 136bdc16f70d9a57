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
	"math"
	"strings"

	"github.com/spf13/cast"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"

	"github.com/tomoncle/rowkit/database"
	"github.com/tomoncle/rowkit/types"
)

// LiveRepository runs statements against a SQL store through Bun. Mutations
// run in a transaction together with the reads that report their rows.
type LiveRepository[T any] struct {
	*core[T]
	db bun.IDB
}

var _ Repository[struct{}] = (*LiveRepository[struct{}])(nil)

// NewLiveRepository returns a repository for table backed by db, which may
// be a *bun.DB, a bun.Conn or a bun.Tx.
func NewLiveRepository[T any](db bun.IDB, table string, opts ...Option) *LiveRepository[T] {
	r := &LiveRepository[T]{core: newCore[T](table, opts), db: db}
	r.runner = r
	return r
}

// DB returns the handle statements run on.
func (r *LiveRepository[T]) DB() bun.IDB { return r.db }

type clause struct {
	expr string
	args []any
}

func whereClauses(preds []types.Predicate) []clause {
	out := make([]clause, 0, len(preds))
	for _, p := range preds {
		col := bun.Ident(p.Field)
		switch p.Operator {
		case types.OpEq:
			out = append(out, clause{"? = ?", []any{col, driverValue(p.Value)}})
		case types.OpNeq:
			out = append(out, clause{"? <> ?", []any{col, driverValue(p.Value)}})
		case types.OpGt:
			out = append(out, clause{"? > ?", []any{col, driverValue(p.Value)}})
		case types.OpGte:
			out = append(out, clause{"? >= ?", []any{col, driverValue(p.Value)}})
		case types.OpLt:
			out = append(out, clause{"? < ?", []any{col, driverValue(p.Value)}})
		case types.OpLte:
			out = append(out, clause{"? <= ?", []any{col, driverValue(p.Value)}})
		case types.OpLike:
			arg, escaped := likeArg(p.Value)
			out = append(out, clause{"? LIKE ?" + likeEscape(escaped), []any{col, arg}})
		case types.OpILike:
			arg, escaped := likeArg(p.Value)
			out = append(out, clause{"LOWER(?) LIKE LOWER(?)" + likeEscape(escaped), []any{col, arg}})
		case types.OpIn:
			if len(p.Values) == 0 {
				out = append(out, clause{"1 = 0", nil})
				continue
			}
			vals := make([]any, len(p.Values))
			for i, v := range p.Values {
				vals[i] = driverValue(v)
			}
			out = append(out, clause{"? IN (?)", []any{col, bun.In(vals)}})
		}
	}
	return out
}

// likeEscaper escapes LIKE wildcards with '!', which needs no quoting in
// any supported dialect.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// likeArg turns a pattern without % into a literal substring match and
// reports whether it escaped it.
func likeArg(v any) (string, bool) {
	s := cast.ToString(v)
	if strings.Contains(s, "%") {
		return s, false
	}
	return "%" + likeEscaper.Replace(s) + "%", true
}

func likeEscape(escaped bool) string {
	if escaped {
		return " ESCAPE '!'"
	}
	return ""
}

func (r *LiveRepository[T]) exec(ctx context.Context, d types.Descriptor) ([]types.Row, int, error) {
	var (
		rows  []types.Row
		count int
		err   error
	)
	switch d.Operation {
	case types.OpSelect:
		rows, err = r.selectRows(ctx, r.db, d, d.Columns())
		count = len(rows)
	case types.OpInsert:
		err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			rows, count, err = r.insert(ctx, tx, d)
			return err
		})
	case types.OpUpdate:
		err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			rows, count, err = r.update(ctx, tx, d)
			return err
		})
	case types.OpDelete:
		err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			rows, count, err = r.delete(ctx, tx, d)
			return err
		})
	default:
		err = types.NewError(types.CodeUnsupported, "operation %s is not supported", d.Operation)
	}
	if err != nil {
		return nil, 0, database.ToErrorInfo(err)
	}
	return rows, count, nil
}

func (r *LiveRepository[T]) selectRows(ctx context.Context, db bun.IDB, d types.Descriptor, cols []string) ([]types.Row, error) {
	if d.Limit == 0 {
		return nil, nil
	}
	q := db.NewSelect().TableExpr("?", bun.Ident(d.Table))
	if cols == nil {
		q = q.ColumnExpr("*")
	}
	for _, c := range cols {
		q = q.ColumnExpr("?", bun.Ident(c))
	}
	for _, c := range whereClauses(d.Predicates) {
		q = q.Where(c.expr, c.args...)
	}
	if d.Order != nil {
		if d.Order.Ascending {
			q = q.OrderExpr("? ASC", bun.Ident(d.Order.Field))
		} else {
			q = q.OrderExpr("? DESC", bun.Ident(d.Order.Field))
		}
	}
	if d.Limit != types.NoLimit {
		q = q.Limit(d.Limit)
	} else if d.Offset > 0 {
		// OFFSET needs a LIMIT on sqlite and mysql
		q = q.Limit(math.MaxInt32)
	}
	if d.Offset > 0 {
		q = q.Offset(d.Offset)
	}
	var scanned []map[string]interface{}
	if err := q.Scan(ctx, &scanned); err != nil {
		return nil, err
	}
	return fromScanned(scanned), nil
}

func (r *LiveRepository[T]) count(ctx context.Context, d types.Descriptor) (int, error) {
	q := r.db.NewSelect().TableExpr("?", bun.Ident(d.Table))
	for _, c := range whereClauses(d.Predicates) {
		q = q.Where(c.expr, c.args...)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, database.ToErrorInfo(err)
	}
	return n, nil
}

func fromScanned(scanned []map[string]interface{}) []types.Row {
	rows := make([]types.Row, len(scanned))
	for i, m := range scanned {
		row := make(types.Row, len(m))
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[k] = v
		}
		rows[i] = row
	}
	return rows
}

// byIDs reads the rows with the given keys in key order.
func (r *LiveRepository[T]) byIDs(ctx context.Context, db bun.IDB, table string, ids []any, cols []string) ([]types.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	id := r.opts.idField
	d := types.NewDescriptor(table, types.OpSelect, "*").
		WithPredicate(types.Predicate{Field: id, Operator: types.OpIn, Values: ids})
	rows, err := r.selectRows(ctx, db, d, nil)
	if err != nil {
		return nil, err
	}
	index := make(map[string]types.Row, len(rows))
	for _, row := range rows {
		index[idKey(normalizeValue(row[id]))] = row
	}
	out := make([]types.Row, 0, len(ids))
	for _, k := range ids {
		if row, ok := index[idKey(normalizeValue(k))]; ok {
			out = append(out, row.Project(cols))
		}
	}
	return out, nil
}

func (r *LiveRepository[T]) matchingIDs(ctx context.Context, db bun.IDB, d types.Descriptor) ([]any, error) {
	sel := types.Descriptor{Table: d.Table, Operation: types.OpSelect, Predicates: d.Predicates, Limit: types.NoLimit}
	rows, err := r.selectRows(ctx, db, sel, []string{r.opts.idField})
	if err != nil {
		return nil, err
	}
	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row[r.opts.idField]
	}
	return ids, nil
}

func (r *LiveRepository[T]) insert(ctx context.Context, tx bun.Tx, d types.Descriptor) ([]types.Row, int, error) {
	id := r.opts.idField
	ids := make([]any, 0, len(d.Payload))
	for _, p := range d.Payload {
		row := make(types.Row, len(p))
		for k, v := range p {
			row[k] = driverValue(v)
		}
		generated := isZeroID(row[id])
		if generated {
			delete(row, id)
			if key := r.newID(); key != nil {
				row[id] = key
				generated = false
			}
		}
		m := map[string]interface{}(row)
		q := tx.NewInsert().Model(&m).TableExpr("?", bun.Ident(d.Table))
		if !generated {
			if _, err := q.Exec(ctx); err != nil {
				return nil, 0, err
			}
			ids = append(ids, row[id])
			continue
		}
		// the store assigns the key
		if tx.Dialect().Features().Has(feature.InsertReturning) {
			var key int64
			if err := q.Returning("?", bun.Ident(id)).Scan(ctx, &key); err != nil {
				return nil, 0, err
			}
			ids = append(ids, key)
			continue
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return nil, 0, err
		}
		key, err := res.LastInsertId()
		if err != nil {
			return nil, 0, err
		}
		ids = append(ids, key)
	}
	rows, err := r.byIDs(ctx, tx, d.Table, ids, d.Columns())
	if err != nil {
		return nil, 0, err
	}
	return rows, len(ids), nil
}

// newID returns a client-side key, or nil when the store should assign one.
func (r *LiveRepository[T]) newID() any {
	if r.opts.idGenerator != nil {
		return r.opts.idGenerator()
	}
	if r.codec.numericField(r.opts.idField) {
		return nil
	}
	return NewUUID()
}

func (r *LiveRepository[T]) update(ctx context.Context, tx bun.Tx, d types.Descriptor) ([]types.Row, int, error) {
	ids, err := r.matchingIDs(ctx, tx, d)
	if err != nil || len(ids) == 0 {
		return nil, 0, err
	}
	patch := make(map[string]interface{}, len(d.Payload[0]))
	for k, v := range d.Payload[0] {
		if k != r.opts.idField {
			patch[k] = driverValue(v)
		}
	}
	count := len(ids)
	if len(patch) > 0 {
		res, err := tx.NewUpdate().
			Model(&patch).
			TableExpr("?", bun.Ident(d.Table)).
			Where("? IN (?)", bun.Ident(r.opts.idField), bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return nil, 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			count = int(n)
		}
	}
	rows, err := r.byIDs(ctx, tx, d.Table, ids, d.Columns())
	if err != nil {
		return nil, 0, err
	}
	return rows, count, nil
}

func (r *LiveRepository[T]) delete(ctx context.Context, tx bun.Tx, d types.Descriptor) ([]types.Row, int, error) {
	ids, err := r.matchingIDs(ctx, tx, d)
	if err != nil || len(ids) == 0 {
		return nil, 0, err
	}
	rows, err := r.byIDs(ctx, tx, d.Table, ids, d.Columns())
	if err != nil {
		return nil, 0, err
	}
	res, err := tx.NewDelete().
		TableExpr("?", bun.Ident(d.Table)).
		Where("? IN (?)", bun.Ident(r.opts.idField), bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return nil, 0, err
	}
	count := len(ids)
	if n, err := res.RowsAffected(); err == nil {
		count = int(n)
	}
	return rows, count, nil
}
