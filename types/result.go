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
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Status reports the outcome carried by a Result.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Error codes surfaced through ErrorInfo.Code.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeMultipleResults = "MULTIPLE_RESULTS"
	CodeTransport       = "TRANSPORT_ERROR"
	CodeValidation      = "VALIDATION_ERROR"
	CodeTransform       = "TRANSFORM_ERROR"
	CodeUnknownField    = "UNKNOWN_FIELD"
	CodeDuplicateKey    = "DUPLICATE_KEY"
	CodeInvalidQuery    = "INVALID_QUERY"
	CodeUnsupported     = "UNSUPPORTED"
	CodeConfiguration   = "CONFIGURATION_ERROR"
)

// ErrorInfo is the error branch of a Result.
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	cause   error
}

// NewError creates an ErrorInfo with the given code.
func NewError(code, format string, args ...any) *ErrorInfo {
	return &ErrorInfo{Message: fmt.Sprintf(format, args...), Code: code}
}

func (e *ErrorInfo) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

func (e *ErrorInfo) Unwrap() error { return e.cause }

// Is matches another ErrorInfo by code, so errors.Is(err, ErrNotFound) works
// for any not-found error regardless of its message.
func (e *ErrorInfo) Is(target error) bool {
	var t *ErrorInfo
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// Sentinels usable with errors.Is.
var (
	ErrNotFound        = &ErrorInfo{Message: "no rows matched", Code: CodeNotFound}
	ErrMultipleResults = &ErrorInfo{Message: "more than one row matched", Code: CodeMultipleResults}
)

// AsErrorInfo converts err into an ErrorInfo. An ErrorInfo anywhere in the
// chain is returned unchanged; anything else is wrapped with code and its
// message passed through verbatim.
func AsErrorInfo(err error, code string) *ErrorInfo {
	if err == nil {
		return nil
	}
	var info *ErrorInfo
	if errors.As(err, &info) {
		return info
	}
	return &ErrorInfo{Message: err.Error(), Code: code, cause: err}
}

// Result is the {data, error, status} envelope returned by every operation.
// Build it with Ok or Fail so that Status always agrees with Error.
type Result[D any] struct {
	Data   D          `json:"data"`
	Error  *ErrorInfo `json:"error"`
	Status Status     `json:"status"`
	// Count is the number of rows returned or affected.
	Count int `json:"count,omitempty"`
}

// Ok returns a successful Result.
func Ok[D any](data D, count int) Result[D] {
	return Result[D]{Data: data, Status: StatusSuccess, Count: count}
}

// Fail returns an error Result. A nil err is reported as a transport error
// so the returned value never claims failure without an ErrorInfo.
func Fail[D any](err error) Result[D] {
	info := AsErrorInfo(err, CodeTransport)
	if info == nil {
		info = NewError(CodeTransport, "unknown failure")
	}
	return Result[D]{Error: info, Status: StatusError}
}

// IsSuccess reports whether the Result carries no error.
func (r Result[D]) IsSuccess() bool { return r.Error == nil }

// Err returns the error branch as a plain error, or nil on success.
func (r Result[D]) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// Unwrap returns the data and error as a Go pair.
func (r Result[D]) Unwrap() (D, error) { return r.Data, r.Err() }

// MarshalJSON always derives status from the error field.
func (r Result[D]) MarshalJSON() ([]byte, error) {
	type envelope struct {
		Data   any        `json:"data"`
		Error  *ErrorInfo `json:"error"`
		Status Status     `json:"status"`
		Count  int        `json:"count,omitempty"`
	}
	status := StatusSuccess
	var data any = r.Data
	if r.Error != nil {
		status = StatusError
		data = nil
	}
	return json.Marshal(envelope{Data: data, Error: r.Error, Status: status, Count: r.Count})
}

// MapResult converts the data of a successful Result, keeping the error
// branch untouched.
func MapResult[A, B any](r Result[A], fn func(A) (B, error)) Result[B] {
	if r.Error != nil {
		return Result[B]{Error: r.Error, Status: StatusError}
	}
	out, err := fn(r.Data)
	if err != nil {
		return Fail[B](err)
	}
	return Ok(out, r.Count)
}
