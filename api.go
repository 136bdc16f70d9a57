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
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/tomoncle/rowkit/database"
	"github.com/tomoncle/rowkit/repository"
	"github.com/tomoncle/rowkit/types"
)

// API is the uniform operation set generated for one entity type T keyed by
// K. No method panics or returns a bare error: every outcome, including a
// panicking hook, is reported through the returned Result.
type API[T any, K comparable] interface {
	// GetAll lists entities matching opts, which may be nil.
	GetAll(ctx context.Context, opts *types.ListOptions) types.Result[[]T]
	// GetPage is GetAll wrapped in a page. opts.Page defaults to the first
	// page of ten.
	GetPage(ctx context.Context, opts *types.ListOptions) types.Result[*types.Pagination[T]]
	// GetByID returns the entity with id. A missing entity is a success
	// with nil Data.
	GetByID(ctx context.Context, id K) types.Result[*T]
	GetByIDs(ctx context.Context, ids []K) types.Result[[]T]
	// Create inserts payload and returns the stored entity.
	Create(ctx context.Context, payload any) types.Result[*T]
	// Update applies payload to the entity with id. A missing entity is
	// NOT_FOUND. Struct payloads overwrite every encoded field; maps only
	// the keys they hold.
	Update(ctx context.Context, id K, payload any) types.Result[*T]
	// Delete removes the entity with id. It succeeds whether or not a row
	// matched; Data reports whether one was removed and Count how many.
	Delete(ctx context.Context, id K) types.Result[bool]

	BatchCreate(ctx context.Context, payloads []any) types.Result[BatchReport[T]]
	BatchUpdate(ctx context.Context, updates []BatchUpdate[K]) types.Result[BatchReport[T]]
	BatchDelete(ctx context.Context, ids []K) types.Result[BatchReport[T]]

	// Repository returns the resolved repository.
	Repository() repository.Repository[T]
}

type baseAPIImpl[T any, K comparable] struct {
	cfg  Config[T]
	log  database.Logger
	repo repository.Repository[T]
	once sync.Once
}

// New returns an API over the repository described by cfg. The repository
// is resolved on first use; if that fails every operation reports
// CONFIGURATION_ERROR.
func New[T any, K comparable](cfg Config[T]) API[T, K] {
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = database.GetLogger()
	}
	return &baseAPIImpl[T, K]{cfg: cfg, log: cfg.Logger}
}

func (a *baseAPIImpl[T, K]) Repository() repository.Repository[T] {
	a.once.Do(func() {
		rc := a.cfg.Repository
		if rc.DefaultSelect == "" {
			rc.DefaultSelect = a.cfg.DefaultSelect
		}
		if rc.Logger == nil {
			rc.Logger = a.log
		}
		repo, err := repository.New(rc)
		if err != nil {
			a.log.Error("repository unavailable", "table", rc.TableName, "error", err.Error())
			repo = repository.Failed[T](rc.TableName, err, repository.WithIDField(rc.IDField), repository.WithLogger(a.log))
		}
		a.repo = repo
	})
	return a.repo
}

// recoverResult turns a panic in op into an error Result.
func recoverResult[D any](log database.Logger, op string, res *types.Result[D]) {
	if r := recover(); r != nil {
		log.Error("operation panicked", "operation", op, "panic", fmt.Sprint(r))
		*res = types.Fail[D](types.NewError(types.CodeTransport, "%s panicked: %v", op, r))
	}
}

func (a *baseAPIImpl[T, K]) mutable(op string) *types.ErrorInfo {
	if a.cfg.ReadOnly {
		return types.NewError(types.CodeUnsupported, "%s is disabled on a read-only API", op)
	}
	return nil
}

func (a *baseAPIImpl[T, K]) idField() string { return a.Repository().IDField() }

func (a *baseAPIImpl[T, K]) GetAll(ctx context.Context, opts *types.ListOptions) (res types.Result[[]T]) {
	defer recoverResult(a.log, "getAll", &res)
	if opts == nil {
		opts = &types.ListOptions{}
	}
	q := a.listQuery(opts)
	if opts.Page != nil {
		q = q.Range(opts.Page.Bounds())
	}
	return a.respondAll(q.Execute(ctx))
}

// listQuery applies the filters, search and ordering of opts; paging is
// left to the caller.
func (a *baseAPIImpl[T, K]) listQuery(opts *types.ListOptions) *repository.Query[T] {
	q := a.Repository().Select(a.cfg.DefaultSelect)
	for _, field := range slices.Sorted(maps.Keys(opts.Filters)) {
		value := opts.Filters[field]
		if s, ok := value.(string); ok && a.cfg.isSearchField(field) {
			q = q.ILike(field, "%"+s+"%")
			continue
		}
		q = q.Eq(field, value)
	}
	if opts.Search != "" && len(a.cfg.SearchFields) > 0 {
		q = q.ILike(a.cfg.SearchFields[0], "%"+opts.Search+"%")
	}
	if order := opts.OrderBy; order != nil {
		q = q.Order(order.Field, order.Ascending)
	} else if order := a.cfg.DefaultOrder; order != nil {
		q = q.Order(order.Field, order.Ascending)
	}
	return q
}

// GetPage counts every match before fetching the requested page, so Total
// spans all pages.
func (a *baseAPIImpl[T, K]) GetPage(ctx context.Context, opts *types.ListOptions) (res types.Result[*types.Pagination[T]]) {
	defer recoverResult(a.log, "getPage", &res)
	var o types.ListOptions
	if opts != nil {
		o = *opts
	}
	if o.Page == nil {
		o.Page = types.NewPageRequest(1, 10)
	}
	q := a.listQuery(&o)
	total := q.Count(ctx)
	if !total.IsSuccess() {
		return types.Fail[*types.Pagination[T]](total.Error)
	}
	items := a.respondAll(q.Range(o.Page.Bounds()).Execute(ctx))
	return types.MapResult(items, func(items []T) (*types.Pagination[T], error) {
		return types.NewPagination(o.Page, total.Data, items), nil
	})
}

func (a *baseAPIImpl[T, K]) GetByID(ctx context.Context, id K) (res types.Result[*T]) {
	defer recoverResult(a.log, "getById", &res)
	return a.respondOne(a.Repository().Select(a.cfg.DefaultSelect).Eq(a.idField(), id).MaybeSingle(ctx))
}

func (a *baseAPIImpl[T, K]) GetByIDs(ctx context.Context, ids []K) (res types.Result[[]T]) {
	defer recoverResult(a.log, "getByIds", &res)
	return a.respondAll(a.Repository().Select(a.cfg.DefaultSelect).In(a.idField(), ids).Execute(ctx))
}

func (a *baseAPIImpl[T, K]) Create(ctx context.Context, payload any) (res types.Result[*T]) {
	defer recoverResult(a.log, "create", &res)
	if err := a.mutable("create"); err != nil {
		return types.Fail[*T](err)
	}
	if err := a.validate(payload); err != nil {
		return types.Fail[*T](err)
	}
	row, err := a.request(payload)
	if err != nil {
		return types.Fail[*T](err)
	}
	return a.respondOne(a.Repository().Insert(row).Single(ctx))
}

func (a *baseAPIImpl[T, K]) Update(ctx context.Context, id K, payload any) (res types.Result[*T]) {
	defer recoverResult(a.log, "update", &res)
	if err := a.mutable("update"); err != nil {
		return types.Fail[*T](err)
	}
	row, err := a.request(payload)
	if err != nil {
		return types.Fail[*T](err)
	}
	return a.respondOne(a.Repository().Update(row).Eq(a.idField(), id).Single(ctx))
}

func (a *baseAPIImpl[T, K]) Delete(ctx context.Context, id K) (res types.Result[bool]) {
	defer recoverResult(a.log, "delete", &res)
	if err := a.mutable("delete"); err != nil {
		return types.Fail[bool](err)
	}
	rows := a.Repository().Delete().Eq(a.idField(), id).Select(a.idField()).Rows(ctx)
	if !rows.IsSuccess() {
		return types.Fail[bool](rows.Error)
	}
	return types.Ok(rows.Count > 0, rows.Count)
}

func (a *baseAPIImpl[T, K]) validate(payload any) error {
	if a.cfg.Validator == nil || payload == nil {
		return nil
	}
	t := reflect.TypeOf(payload)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	if err := a.cfg.Validator.Struct(payload); err != nil {
		return types.ValidationFailure(err)
	}
	return nil
}

// request applies TransformRequest. Hook failures and panics are
// TRANSFORM_ERROR unless the hook returned an ErrorInfo of its own.
func (a *baseAPIImpl[T, K]) request(payload any) (out any, err error) {
	if a.cfg.TransformRequest == nil {
		return payload, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = types.NewError(types.CodeTransform, "transformRequest panicked: %v", r)
		}
	}()
	row, err := a.cfg.TransformRequest(payload)
	if err != nil {
		return nil, types.AsErrorInfo(err, types.CodeTransform)
	}
	return row, nil
}

func (a *baseAPIImpl[T, K]) respond(item T) (out T, err error) {
	if a.cfg.TransformResponse == nil {
		return item, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = types.NewError(types.CodeTransform, "transformResponse panicked: %v", r)
		}
	}()
	out, err = a.cfg.TransformResponse(item)
	if err != nil {
		return out, types.AsErrorInfo(err, types.CodeTransform)
	}
	return out, nil
}

func (a *baseAPIImpl[T, K]) respondOne(res types.Result[*T]) types.Result[*T] {
	if !res.IsSuccess() || res.Data == nil {
		return res
	}
	item, err := a.respond(*res.Data)
	if err != nil {
		return types.Fail[*T](err)
	}
	return types.Ok(&item, res.Count)
}

func (a *baseAPIImpl[T, K]) respondAll(res types.Result[[]T]) types.Result[[]T] {
	if !res.IsSuccess() || a.cfg.TransformResponse == nil {
		return res
	}
	out := make([]T, len(res.Data))
	for i, item := range res.Data {
		var err error
		if out[i], err = a.respond(item); err != nil {
			return types.Fail[[]T](err)
		}
	}
	return types.Ok(out, res.Count)
}
