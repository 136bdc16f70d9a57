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
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
	"github.com/tomoncle/rowkit/types"
)

var timeType = reflect.TypeOf(time.Time{})

// codec converts between entities and rows using the entity's JSON names.
type codec[T any] struct {
	fields map[string]reflect.Type
}

func newCodec[T any]() *codec[T] {
	c := &codec[T]{fields: map[string]reflect.Type{}}
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		collectFields(t, c.fields)
	}
	return c
}

func collectFields(t reflect.Type, out map[string]reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				collectFields(ft, out)
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out[name] = f.Type
	}
}

// structured reports whether T declares its fields statically.
func (c *codec[T]) structured() bool { return len(c.fields) > 0 }

func (c *codec[T]) knows(field string) bool {
	_, ok := c.fields[field]
	return ok
}

// numericField reports whether field holds a number in T.
func (c *codec[T]) numericField(field string) bool {
	ft, ok := c.fields[field]
	if !ok {
		return false
	}
	for ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}
	switch ft.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// toRow converts a payload to a row. Rows and maps are copied as they are;
// anything else goes through its JSON encoding.
func (c *codec[T]) toRow(v any) (types.Row, error) {
	switch x := v.(type) {
	case nil:
		return nil, types.NewError(types.CodeInvalidQuery, "payload is nil")
	case types.Row:
		return x.Clone(), nil
	case map[string]any:
		return types.Row(x).Clone(), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, types.NewError(types.CodeTransform, "encode payload: %v", err)
	}
	var row types.Row
	if err := json.Unmarshal(raw, &row); err != nil || row == nil {
		return nil, types.NewError(types.CodeInvalidQuery, "payload of type %T is not an object", v)
	}
	return row, nil
}

// toRows flattens slice payloads so Insert(a, b) and Insert([]T{a, b})
// behave alike.
func (c *codec[T]) toRows(payload []any) ([]types.Row, error) {
	rows := make([]types.Row, 0, len(payload))
	for _, p := range payload {
		rv := reflect.ValueOf(p)
		if p != nil && rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
			for i := 0; i < rv.Len(); i++ {
				row, err := c.toRow(rv.Index(i).Interface())
				if err != nil {
					return nil, fmt.Errorf("payload[%d]: %w", i, err)
				}
				rows = append(rows, row)
			}
			continue
		}
		row, err := c.toRow(p)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// fromRow decodes a row into T, coercing driver values (sqlite integers for
// booleans, []byte text, numeric strings) to the declared field types.
func (c *codec[T]) fromRow(row types.Row) (T, error) {
	var out T
	fixed := make(types.Row, len(row))
	for k, v := range row {
		fixed[k] = coerce(v, c.fields[k])
	}
	raw, err := json.Marshal(fixed)
	if err != nil {
		return out, types.NewError(types.CodeTransform, "encode row: %v", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, types.NewError(types.CodeTransform, "decode row into %T: %v", out, err)
	}
	return out, nil
}

func coerce(v any, ft reflect.Type) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if ft == nil || v == nil {
		return v
	}
	for ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}
	if ft == timeType {
		return v
	}
	switch ft.Kind() {
	case reflect.Bool:
		if _, ok := v.(bool); !ok {
			if b, err := cast.ToBoolE(v); err == nil {
				return b
			}
		}
	case reflect.String:
		if t, ok := v.(time.Time); ok {
			return t.Format(time.RFC3339Nano)
		}
		if _, ok := v.(string); !ok && isNumber(v) {
			return cast.ToString(v)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if s, ok := v.(string); ok {
			if n, err := cast.ToInt64E(strings.TrimSpace(s)); err == nil {
				return n
			}
		}
	case reflect.Float32, reflect.Float64:
		if s, ok := v.(string); ok {
			if f, err := cast.ToFloat64E(strings.TrimSpace(s)); err == nil {
				return f
			}
		}
	}
	return v
}

// normalizeRow makes a row's values JSON-shaped: numbers become float64,
// times become RFC 3339 strings, custom string types become string.
func normalizeRow(row types.Row) (types.Row, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, types.NewError(types.CodeInvalidQuery, "payload is not serialisable: %v", err)
	}
	var out types.Row
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, types.NewError(types.CodeInvalidQuery, "payload is not serialisable: %v", err)
	}
	if out == nil {
		out = types.Row{}
	}
	return out, nil
}

func normalizeValue(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// driverValue turns JSON-decoded whole floats back into integers before they
// reach the SQL driver.
func driverValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
	case map[string]any, []any:
		raw, err := json.Marshal(x)
		if err == nil {
			return string(raw)
		}
	}
	return v
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func isZeroID(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	default:
		if isNumber(x) {
			return cast.ToFloat64(x) == 0
		}
		return false
	}
}
