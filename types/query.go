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

package types

import (
	"fmt"
	"slices"
	"strings"
)

// Operator is a filter comparison.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpLike  Operator = "like"
	OpILike Operator = "ilike"
	OpIn    Operator = "in"
)

// Predicate is one conjunctive filter condition.
type Predicate struct {
	Field    string
	Operator Operator
	Value    any
	// Values holds the set for OpIn.
	Values []any
}

func (p Predicate) String() string {
	if p.Operator == OpIn {
		return fmt.Sprintf("%s=in.%v", p.Field, p.Values)
	}
	return fmt.Sprintf("%s=%s.%v", p.Field, p.Operator, p.Value)
}

// Order is a single ordering clause.
type Order struct {
	Field     string `json:"field" yaml:"field"`
	Ascending bool   `json:"ascending" yaml:"ascending"`
}

// NoLimit marks an unbounded Descriptor.
const NoLimit = -1

// Descriptor describes one statement against a table. Builders never modify
// a Descriptor they have handed out; With* helpers return extended copies.
type Descriptor struct {
	Table      string
	Operation  Operation
	Projection string
	Predicates []Predicate
	Order      *Order
	Offset     int
	Limit      int
	Payload    []Row

	err error
}

// NewDescriptor returns an unfiltered, unbounded descriptor.
func NewDescriptor(table string, op Operation, projection string) Descriptor {
	if strings.TrimSpace(projection) == "" {
		projection = "*"
	}
	return Descriptor{Table: table, Operation: op, Projection: projection, Limit: NoLimit}
}

// Clone returns a deep copy of the slices held by d.
func (d Descriptor) Clone() Descriptor {
	c := d
	c.Predicates = slices.Clone(d.Predicates)
	if d.Order != nil {
		o := *d.Order
		c.Order = &o
	}
	if d.Payload != nil {
		c.Payload = make([]Row, len(d.Payload))
		for i, r := range d.Payload {
			c.Payload[i] = r.Clone()
		}
	}
	return c
}

func (d Descriptor) WithPredicate(p Predicate) Descriptor {
	c := d.Clone()
	c.Predicates = append(c.Predicates, p)
	return c
}

func (d Descriptor) WithProjection(projection string) Descriptor {
	c := d.Clone()
	if strings.TrimSpace(projection) == "" {
		projection = "*"
	}
	c.Projection = projection
	return c
}

func (d Descriptor) WithOrder(field string, ascending bool) Descriptor {
	c := d.Clone()
	c.Order = &Order{Field: field, Ascending: ascending}
	return c
}

func (d Descriptor) WithLimit(n int) Descriptor {
	c := d.Clone()
	c.Limit = n
	c.err = nil
	return c
}

// WithRange sets offset and limit from inclusive bounds.
func (d Descriptor) WithRange(from, to int) Descriptor {
	c := d.Clone()
	c.Offset = from
	c.Limit = to - from + 1
	c.err = nil
	if to < from {
		c.err = NewError(CodeInvalidQuery, "range upper bound %d is below lower bound %d", to, from)
	}
	return c
}

func (d Descriptor) WithPayload(rows ...Row) Descriptor {
	c := d.Clone()
	c.Payload = make([]Row, len(rows))
	for i, r := range rows {
		c.Payload[i] = r.Clone()
	}
	return c
}

// Columns splits the projection into column names; nil means every column.
// Embedded resources such as "org(*)" are dropped.
func (d Descriptor) Columns() []string {
	return ParseProjection(d.Projection)
}

// Validate reports shape errors that no backend can execute.
func (d Descriptor) Validate() error {
	if d.err != nil {
		return d.err
	}
	if d.Table == "" {
		return NewError(CodeInvalidQuery, "table name is empty")
	}
	if !d.Operation.IsValid() {
		return NewError(CodeInvalidQuery, "unknown operation %d", d.Operation)
	}
	for _, p := range d.Predicates {
		if strings.TrimSpace(p.Field) == "" {
			return NewError(CodeInvalidQuery, "filter %q has an empty field", p.Operator)
		}
	}
	if d.Order != nil && strings.TrimSpace(d.Order.Field) == "" {
		return NewError(CodeInvalidQuery, "order field is empty")
	}
	if d.Offset < 0 {
		return NewError(CodeInvalidQuery, "offset %d is negative", d.Offset)
	}
	if d.Limit < NoLimit {
		return NewError(CodeInvalidQuery, "limit %d is negative", d.Limit)
	}
	if (d.Operation == OpInsert || d.Operation == OpUpdate) && len(d.Payload) == 0 {
		return NewError(CodeInvalidQuery, "%s requires a payload", d.Operation)
	}
	return nil
}

func (d Descriptor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s select=%s", d.Desc(), d.Table, d.Projection)
	for _, p := range d.Predicates {
		b.WriteString(" ")
		b.WriteString(p.String())
	}
	if d.Order != nil {
		dir := "asc"
		if !d.Order.Ascending {
			dir = "desc"
		}
		fmt.Fprintf(&b, " order=%s.%s", d.Order.Field, dir)
	}
	if d.Offset > 0 {
		fmt.Fprintf(&b, " offset=%d", d.Offset)
	}
	if d.Limit != NoLimit {
		fmt.Fprintf(&b, " limit=%d", d.Limit)
	}
	return b.String()
}

func (d Descriptor) Desc() string { return d.Operation.Desc() }

// ParseProjection splits "id, name" into columns. "*" or an empty projection
// yields nil.
func ParseProjection(projection string) []string {
	projection = strings.TrimSpace(projection)
	if projection == "" || projection == "*" {
		return nil
	}
	var cols []string
	depth := 0
	start := 0
	flush := func(end int) {
		col := strings.TrimSpace(projection[start:end])
		if col != "" && !strings.ContainsAny(col, "()") {
			cols = append(cols, col)
		}
	}
	for i, r := range projection {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(projection))
	if slices.Contains(cols, "*") {
		return nil
	}
	return cols
}
