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
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/spf13/cast"
	"github.com/tomoncle/rowkit/types"
)

// matcher evaluates predicates against in-memory rows with SQL semantics:
// a comparison involving a missing or null value is never true.
type matcher struct {
	preds []types.Predicate
	likes []*regexp.Regexp
}

func newMatcher(preds []types.Predicate) *matcher {
	m := &matcher{preds: make([]types.Predicate, len(preds)), likes: make([]*regexp.Regexp, len(preds))}
	for i, p := range preds {
		p.Value = normalizeValue(p.Value)
		if p.Values != nil {
			vals := make([]any, len(p.Values))
			for j, v := range p.Values {
				vals[j] = normalizeValue(v)
			}
			p.Values = vals
		}
		if p.Operator == types.OpLike || p.Operator == types.OpILike {
			m.likes[i] = likePattern(cast.ToString(p.Value), p.Operator == types.OpILike)
		}
		m.preds[i] = p
	}
	return m
}

func (m *matcher) match(row types.Row) bool {
	for i, p := range m.preds {
		v, ok := row[p.Field]
		if !ok || v == nil {
			return false
		}
		if !m.eval(i, p, v) {
			return false
		}
	}
	return true
}

func (m *matcher) eval(i int, p types.Predicate, v any) bool {
	switch p.Operator {
	case types.OpEq:
		return p.Value != nil && equal(v, p.Value)
	case types.OpNeq:
		return p.Value != nil && !equal(v, p.Value)
	case types.OpGt, types.OpGte, types.OpLt, types.OpLte:
		c, ok := compare(v, p.Value)
		if !ok {
			return false
		}
		switch p.Operator {
		case types.OpGt:
			return c > 0
		case types.OpGte:
			return c >= 0
		case types.OpLt:
			return c < 0
		default:
			return c <= 0
		}
	case types.OpLike, types.OpILike:
		s, ok := v.(string)
		return ok && m.likes[i].MatchString(s)
	case types.OpIn:
		return slices.ContainsFunc(p.Values, func(x any) bool { return x != nil && equal(v, x) })
	default:
		return false
	}
}

// likePattern compiles a LIKE pattern. Without a % wildcard the value
// matches as a substring.
func likePattern(pattern string, fold bool) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?s)")
	if fold {
		b.WriteString("(?i)")
	}
	if !strings.Contains(pattern, "%") {
		b.WriteString(regexp.QuoteMeta(pattern))
		return regexp.MustCompile(b.String())
	}
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func equal(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		return cast.ToFloat64(a) == cast.ToFloat64(b)
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two values of the same kind; mixed kinds are incomparable.
func compare(a, b any) (int, bool) {
	switch {
	case a == nil || b == nil:
		return 0, false
	case isNumber(a) && isNumber(b):
		x, y := cast.ToFloat64(a), cast.ToFloat64(b)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

func kindRank(v any) int {
	switch {
	case isNumber(v):
		return 0
	case reflect.TypeOf(v).Kind() == reflect.String:
		return 1
	case reflect.TypeOf(v).Kind() == reflect.Bool:
		return 2
	}
	return 3
}

// sortRows orders rows stably. Nulls sort last ascending and first
// descending, as they do in Postgres.
func sortRows(rows []types.Row, o *types.Order) {
	if o == nil {
		return
	}
	slices.SortStableFunc(rows, func(x, y types.Row) int {
		a, b := x[o.Field], y[o.Field]
		var c int
		switch {
		case a == nil && b == nil:
			c = 0
		case a == nil:
			c = 1
		case b == nil:
			c = -1
		default:
			var ok bool
			if c, ok = compare(a, b); !ok {
				c = kindRank(a) - kindRank(b)
			}
		}
		if !o.Ascending {
			c = -c
		}
		return c
	})
}

// window applies offset and limit to an already ordered slice.
func window(rows []types.Row, offset, limit int) []types.Row {
	if offset >= len(rows) {
		return rows[:0]
	}
	rows = rows[offset:]
	if limit != types.NoLimit && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
