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
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is one rejected field of a validation failure.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// ValidationFailure converts a validation error raised by call-site logic
// into an ErrorInfo so it travels in the same envelope as store errors.
// validator.ValidationErrors are summarised field by field.
func ValidationFailure(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ErrorInfo{Message: err.Error(), Code: CodeValidation, cause: err}
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range ValidationFields(verrs) {
		if fe.Param != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field, fe.Rule, fe.Param))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field, fe.Rule))
		}
	}
	return &ErrorInfo{Message: strings.Join(parts, "; "), Code: CodeValidation, cause: err}
}

// ValidationFields lists the individual field failures.
func ValidationFields(verrs validator.ValidationErrors) []FieldError {
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// ValidationResult is a shortcut for Fail(ValidationFailure(err)).
func ValidationResult[D any](err error) Result[D] {
	return Fail[D](ValidationFailure(err))
}
