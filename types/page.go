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

// PageRequest describes a 1-based page of results.
type PageRequest struct {
	page     int
	pageSize int
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = 10
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = 1
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// Bounds returns the inclusive row range covered by the page.
func (p *PageRequest) Bounds() (from, to int) {
	from = p.GetOffset()
	return from, from + p.GetPageSize() - 1
}

// NewPageRequest constructs a PageRequest; values below 1 fall back to page 1
// and a page size of 10.
func NewPageRequest(page int, pageSize int) *PageRequest {
	return &PageRequest{page, pageSize}
}

// ListOptions narrows a list call. Filters are matched for equality unless
// the field is configured as a search field.
type ListOptions struct {
	Filters map[string]any
	// Search is matched case-insensitively against the first search field.
	Search  string
	OrderBy *Order
	Page    *PageRequest
}

// Pagination holds one page of items along with its position and the
// number of rows matching across all pages.
type Pagination[T any] struct {
	Page     int
	PageSize int
	Total    int
	Items    []T
}

// NewPagination wraps items fetched for page out of total matches.
func NewPagination[T any](page *PageRequest, total int, items []T) *Pagination[T] {
	if items == nil {
		items = make([]T, 0)
	}
	return &Pagination[T]{page.GetPage(), page.GetPageSize(), total, items}
}

// Pages returns how many pages Total spans.
func (p *Pagination[T]) Pages() int {
	if p.PageSize < 1 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}
