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

package rowkit

import (
	"github.com/go-playground/validator/v10"

	"github.com/tomoncle/rowkit/database"
	"github.com/tomoncle/rowkit/repository"
	"github.com/tomoncle/rowkit/types"
)

// Config configures an API. Only Repository is required.
type Config[T any] struct {
	// Repository describes, or directly supplies, the backing repository. It
	// is resolved on the first operation.
	Repository repository.Config[T]

	// DefaultSelect is the projection used by reads. Empty selects every
	// column.
	DefaultSelect string
	// DefaultOrder applies to GetAll unless the call names its own order.
	DefaultOrder *types.Order
	// SearchFields are matched case-insensitively by substring instead of
	// equality. ListOptions.Search applies to the first one.
	SearchFields []string

	// TransformRequest turns an incoming payload into the row that is
	// stored. It runs before Create and Update.
	TransformRequest func(payload any) (types.Row, error)
	// TransformResponse adjusts every entity before it is returned.
	TransformResponse func(item T) (T, error)
	// Validator, when set, checks struct payloads given to Create.
	Validator *validator.Validate

	// ReadOnly disables Create, Update, Delete and the batch operations.
	ReadOnly bool
	// UseBatchOperations enables BatchCreate, BatchUpdate and BatchDelete.
	UseBatchOperations bool
	// BatchConcurrency bounds how many batch items run at once. Values
	// below 1 run items one at a time, in order.
	BatchConcurrency int

	Logger database.Logger
}

func (c Config[T]) isSearchField(field string) bool {
	for _, f := range c.SearchFields {
		if f == field {
			return true
		}
	}
	return false
}
