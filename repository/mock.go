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
	"slices"
	"sync"

	"github.com/spf13/cast"
	"github.com/tomoncle/rowkit/types"
)

// MockRepository keeps rows in memory and evaluates queries the way the live
// store would. Each statement runs atomically under the repository's lock.
type MockRepository[T any] struct {
	*core[T]
	mu   sync.Mutex
	rows []types.Row
}

var _ Repository[struct{}] = (*MockRepository[struct{}])(nil)

// NewMockRepository returns an empty in-memory repository for table.
func NewMockRepository[T any](table string, opts ...Option) *MockRepository[T] {
	m := &MockRepository[T]{core: newCore[T](table, opts)}
	m.runner = m
	return m
}

// NewTestRepository returns a mock repository preloaded with rows. It
// panics if the rows cannot be stored, which only happens with duplicate
// keys or unencodable values.
func NewTestRepository[T any](table string, rows []T, opts ...Option) *MockRepository[T] {
	m := NewMockRepository[T](table, opts...)
	if err := m.Seed(context.Background(), rows...); err != nil {
		panic(fmt.Sprintf("seed %s: %v", table, err))
	}
	return m
}

// Seed appends entities to the store, generating keys for those without one.
func (m *MockRepository[T]) Seed(ctx context.Context, items ...T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := make([]types.Row, 0, len(items))
	for _, item := range items {
		row, err := m.codec.toRow(item)
		if err != nil {
			return err
		}
		payload = append(payload, row)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.insert(payload, false)
	return err
}

// Clear removes every row. Clearing an empty store is a no-op.
func (m *MockRepository[T]) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.rows = nil
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored rows.
func (m *MockRepository[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Rows returns a copy of the stored rows in insertion order.
func (m *MockRepository[T]) Rows() []types.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Row, len(m.rows))
	for i, r := range m.rows {
		out[i] = r.Clone()
	}
	return out
}

func (m *MockRepository[T]) exec(ctx context.Context, d types.Descriptor) ([]types.Row, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, types.AsErrorInfo(err, types.CodeTransport)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkFields(d); err != nil {
		return nil, 0, err
	}
	cols := d.Columns()
	switch d.Operation {
	case types.OpSelect:
		matched := m.filter(d.Predicates)
		sortRows(matched, d.Order)
		matched = window(matched, d.Offset, d.Limit)
		return project(matched, cols), len(matched), nil
	case types.OpInsert:
		added, err := m.insert(d.Payload, true)
		if err != nil {
			return nil, 0, err
		}
		return project(added, cols), len(added), nil
	case types.OpUpdate:
		patch, err := normalizeRow(d.Payload[0])
		if err != nil {
			return nil, 0, err
		}
		delete(patch, m.opts.idField)
		mt := newMatcher(d.Predicates)
		var changed []types.Row
		for i, r := range m.rows {
			if mt.match(r) {
				m.rows[i] = r.Merge(patch)
				changed = append(changed, m.rows[i])
			}
		}
		return project(changed, cols), len(changed), nil
	case types.OpDelete:
		mt := newMatcher(d.Predicates)
		var removed []types.Row
		m.rows = slices.DeleteFunc(m.rows, func(r types.Row) bool {
			if mt.match(r) {
				removed = append(removed, r)
				return true
			}
			return false
		})
		return project(removed, cols), len(removed), nil
	}
	return nil, 0, types.NewError(types.CodeUnsupported, "operation %s is not supported", d.Operation)
}

func (m *MockRepository[T]) count(ctx context.Context, d types.Descriptor) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, types.AsErrorInfo(err, types.CodeTransport)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFields(d); err != nil {
		return 0, err
	}
	return len(m.filter(d.Predicates)), nil
}

func (m *MockRepository[T]) filter(preds []types.Predicate) []types.Row {
	mt := newMatcher(preds)
	var out []types.Row
	for _, r := range m.rows {
		if mt.match(r) {
			out = append(out, r)
		}
	}
	return out
}

// insert stores payload rows, all or nothing. Caller holds the lock.
func (m *MockRepository[T]) insert(payload []types.Row, strict bool) ([]types.Row, error) {
	id := m.opts.idField
	seen := make(map[string]struct{}, len(m.rows)+len(payload))
	for _, r := range m.rows {
		if v, ok := r[id]; ok && v != nil {
			seen[idKey(v)] = struct{}{}
		}
	}
	next, numericKeys := m.nextNumericID()
	numeric := m.codec.numericField(id) || (!m.codec.structured() && numericKeys)
	added := make([]types.Row, 0, len(payload))
	for _, p := range payload {
		row, err := normalizeRow(p)
		if err != nil {
			return nil, err
		}
		if strict && m.codec.structured() {
			for k := range row {
				if !m.codec.knows(k) {
					return nil, m.unknownField(k)
				}
			}
		}
		if isZeroID(row[id]) {
			row[id] = m.newID(numeric, &next)
		}
		key := idKey(row[id])
		if _, dup := seen[key]; dup {
			return nil, types.NewError(types.CodeDuplicateKey, "duplicate key value violates unique constraint on %s.%s: %v", m.table, id, row[id])
		}
		seen[key] = struct{}{}
		added = append(added, row)
	}
	m.rows = append(m.rows, added...)
	return added, nil
}

func (m *MockRepository[T]) newID(numeric bool, next *float64) any {
	if m.opts.idGenerator != nil {
		return normalizeValue(m.opts.idGenerator())
	}
	if numeric {
		v := *next
		*next++
		return v
	}
	return NewUUID()
}

// nextNumericID is one above the largest numeric key stored. found reports
// whether any stored key is a number.
func (m *MockRepository[T]) nextNumericID() (next float64, found bool) {
	var highest float64
	for _, r := range m.rows {
		v := r[m.opts.idField]
		if !isNumber(v) {
			continue
		}
		found = true
		if f := cast.ToFloat64(v); f > highest {
			highest = f
		}
	}
	return highest + 1, found
}

// checkFields rejects filters and orderings on columns the table does not
// have. A table with no declared fields and no rows accepts anything.
func (m *MockRepository[T]) checkFields(d types.Descriptor) error {
	known := func(field string) bool {
		if field == m.opts.idField || m.codec.knows(field) {
			return true
		}
		if !m.codec.structured() {
			for _, r := range m.rows {
				if _, ok := r[field]; ok {
					return true
				}
			}
			return len(m.rows) == 0
		}
		return false
	}
	for _, p := range d.Predicates {
		if !known(p.Field) {
			return m.unknownField(p.Field)
		}
	}
	if d.Order != nil && !known(d.Order.Field) {
		return m.unknownField(d.Order.Field)
	}
	if d.Operation == types.OpUpdate && m.codec.structured() {
		for k := range d.Payload[0] {
			if !known(k) {
				return m.unknownField(k)
			}
		}
	}
	return nil
}

func (m *MockRepository[T]) unknownField(field string) error {
	return types.NewError(types.CodeUnknownField, "column %s.%s does not exist", m.table, field)
}

func project(rows []types.Row, cols []string) []types.Row {
	out := make([]types.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Project(cols)
	}
	return out
}

func idKey(v any) string {
	if isNumber(v) {
		return cast.ToString(cast.ToFloat64(v))
	}
	return fmt.Sprintf("%T:%v", v, v)
}
