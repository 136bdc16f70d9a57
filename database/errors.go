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
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/tomoncle/rowkit/types"
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
)

// pqCodes maps PostgreSQL SQLSTATE codes to SQLError kinds.
var pqCodes = map[pq.ErrorCode]SQLError{
	"42703": NoColumnErr,
	"42704": NoIndexErr,
	"42P01": NoTableErr,
	"42P07": ExistTableErr,
	"42701": ExistColumnErr,
	"23505": DuplicateKeyErr,
	"23502": NotNullViolationErr,
	"23503": ForeignKeyViolationErr,
	"23514": CheckConstraintViolationErr,
	"22001": DataTruncatedErr,
	"42804": InvalidTypeCastErr,
}

// mysqlCodes maps MySQL server error numbers to SQLError kinds.
var mysqlCodes = map[uint16]SQLError{
	1091: NoIndexErr,
	1054: NoColumnErr,
	1146: NoTableErr,
	1061: ExistIndexErr,
	1060: ExistColumnErr,
	1062: DuplicateKeyErr,
	1048: NotNullViolationErr,
	1216: ForeignKeyViolationErr,
	1217: ForeignKeyViolationErr,
	3819: CheckConstraintViolationErr,
	1265: DataTruncatedErr,
}

// messageRule matches when every fragment of any one alternative occurs in
// the lowercased error text.
type messageRule struct {
	kind SQLError
	any  [][]string
}

// messageRules classifies drivers without typed errors (sqlite, wrapped
// errors). Order matters: earlier rules win.
var messageRules = []messageRule{
	{NoColumnErr, [][]string{{"sqlstate 42703"}, {"undefined column"}, {"no such column"}, {"has no column named"}}},
	{NoIndexErr, [][]string{{"sqlstate 42704"}, {"no such index"}, {"does not exist", "index"}}},
	{NoTableErr, [][]string{{"sqlstate 42p01"}, {"undefined table"}, {"no such table"}}},
	{ExistIndexErr, [][]string{{"already exists", "index"}}},
	{ExistTableErr, [][]string{{"already exists", "table"}, {"already exists", "relation"}}},
	{DuplicateKeyErr, [][]string{{"duplicate key value"}, {"unique constraint failed"}, {"sqlstate 23505"}}},
	{NotNullViolationErr, [][]string{{"not-null constraint"}, {"not null constraint failed"}, {"sqlstate 23502"}}},
	{ForeignKeyViolationErr, [][]string{{"foreign key violation"}, {"foreign key constraint failed"}, {"sqlstate 23503"}}},
	{CheckConstraintViolationErr, [][]string{{"check constraint"}, {"sqlstate 23514"}}},
	{DataTruncatedErr, [][]string{{"string data right truncation"}, {"data truncated"}, {"sqlstate 22001"}}},
	{InvalidTypeCastErr, [][]string{{"datatype mismatch"}, {"sqlstate 42804"}}},
}

func (r messageRule) matches(msg string) bool {
	for _, frags := range r.any {
		all := true
		for _, frag := range frags {
			if !strings.Contains(msg, frag) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// IsSqlError classifies err by driver error type first and by message text
// for drivers without typed errors.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return true, pqCodes[pqErr.Code]
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return true, mysqlCodes[mysqlErr.Number]
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		if rule.matches(msg) {
			return true, rule.kind
		}
	}
	return false, UnknownErr
}

// ErrorCode maps a store error to the code reported in result envelopes.
// Unclassified errors are transport errors.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	_, kind := IsSqlError(err)
	switch kind {
	case NoRowsErr:
		return types.CodeNotFound
	case NoTableErr:
		return types.CodeConfiguration
	case NoColumnErr:
		return types.CodeUnknownField
	case DuplicateKeyErr:
		return types.CodeDuplicateKey
	case NotNullViolationErr, ForeignKeyViolationErr, CheckConstraintViolationErr, DataTruncatedErr, InvalidTypeCastErr:
		return types.CodeValidation
	default:
		return types.CodeTransport
	}
}

// ToErrorInfo converts a store error into an ErrorInfo, passing the store's
// message through verbatim.
func ToErrorInfo(err error) *types.ErrorInfo {
	return types.AsErrorInfo(err, ErrorCode(err))
}
