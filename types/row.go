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
	"database/sql/driver"
	"errors"
	"maps"

	"github.com/goccy/go-json"
)

// Row is the storage shape of an entity: column name to value.
type Row map[string]any

// Rows is a JSON array of rows, usable as a JSON column.
type Rows []Row

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Get returns the value of field and whether the row has it.
func (r Row) Get(field string) (any, bool) {
	v, ok := r[field]
	return v, ok
}

// Project keeps only the given columns; nil keeps everything.
func (r Row) Project(columns []string) Row {
	if columns == nil {
		return r.Clone()
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

// Merge returns a copy of r with patch applied on top.
func (r Row) Merge(patch Row) Row {
	out := r.Clone()
	if out == nil {
		out = make(Row, len(patch))
	}
	maps.Copy(out, patch)
	return out
}

// Value implements driver.Valuer for Row.
func (r Row) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner for Row.
func (r *Row) Scan(value interface{}) error {
	if value == nil {
		*r = make(Row)
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return errors.New("type assertion must be []byte or string")
	}
}

// Value implements driver.Valuer for Rows.
func (rs Rows) Value() (driver.Value, error) {
	if rs == nil {
		return nil, nil
	}
	return json.Marshal(rs)
}

// Scan implements sql.Scanner for Rows.
func (rs *Rows) Scan(value interface{}) error {
	if value == nil {
		*rs = make(Rows, 0)
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, rs)
	case string:
		return json.Unmarshal([]byte(v), rs)
	default:
		return errors.New("type assertion must be []byte or string")
	}
}
