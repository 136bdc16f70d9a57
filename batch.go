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

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/tomoncle/rowkit/types"
)

// BatchUpdate is one item of a BatchUpdate call.
type BatchUpdate[K comparable] struct {
	ID      K   `json:"id"`
	Payload any `json:"payload"`
}

// BatchItem reports the outcome of one batch item.
type BatchItem[T any] struct {
	Index int              `json:"index"`
	ID    any              `json:"id,omitempty"`
	Data  *T               `json:"data"`
	Count int              `json:"count"`
	Error *types.ErrorInfo `json:"error"`
}

func (i BatchItem[T]) IsSuccess() bool { return i.Error == nil }

// BatchReport lists every item of a batch in input order. Items succeed or
// fail independently.
type BatchReport[T any] struct {
	Items     []BatchItem[T] `json:"items"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
}

// Failures returns the items that did not succeed.
func (r BatchReport[T]) Failures() []BatchItem[T] {
	var out []BatchItem[T]
	for _, item := range r.Items {
		if !item.IsSuccess() {
			out = append(out, item)
		}
	}
	return out
}

func (a *baseAPIImpl[T, K]) batchAllowed(op string) *types.ErrorInfo {
	if !a.cfg.UseBatchOperations {
		return types.NewError(types.CodeUnsupported, "%s requires batch operations to be enabled", op)
	}
	return a.mutable(op)
}

// runBatch runs n items through an errgroup bounded by BatchConcurrency.
// Item functions report failures in their BatchItem and never stop the group.
func (a *baseAPIImpl[T, K]) runBatch(ctx context.Context, op string, n int, fn func(ctx context.Context, i int) BatchItem[T]) types.Result[BatchReport[T]] {
	report := BatchReport[T]{Items: make([]BatchItem[T], n)}
	var g errgroup.Group
	g.SetLimit(a.cfg.BatchConcurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			item := fn(ctx, i)
			item.Index = i
			report.Items[i] = item
			return nil
		})
	}
	_ = g.Wait()
	for _, item := range report.Items {
		if item.IsSuccess() {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	a.log.Info("batch finished", "operation", op, "table", a.Repository().TableName(), "succeeded", report.Succeeded, "failed", report.Failed)
	return types.Ok(report, report.Succeeded)
}

func (a *baseAPIImpl[T, K]) BatchCreate(ctx context.Context, payloads []any) (res types.Result[BatchReport[T]]) {
	defer recoverResult(a.log, "batchCreate", &res)
	if err := a.batchAllowed("batchCreate"); err != nil {
		return types.Fail[BatchReport[T]](err)
	}
	return a.runBatch(ctx, "batchCreate", len(payloads), func(ctx context.Context, i int) BatchItem[T] {
		r := a.Create(ctx, payloads[i])
		return BatchItem[T]{ID: a.idOf(r.Data), Data: r.Data, Count: r.Count, Error: r.Error}
	})
}

func (a *baseAPIImpl[T, K]) BatchUpdate(ctx context.Context, updates []BatchUpdate[K]) (res types.Result[BatchReport[T]]) {
	defer recoverResult(a.log, "batchUpdate", &res)
	if err := a.batchAllowed("batchUpdate"); err != nil {
		return types.Fail[BatchReport[T]](err)
	}
	return a.runBatch(ctx, "batchUpdate", len(updates), func(ctx context.Context, i int) BatchItem[T] {
		u := updates[i]
		r := a.Update(ctx, u.ID, u.Payload)
		return BatchItem[T]{ID: u.ID, Data: r.Data, Count: r.Count, Error: r.Error}
	})
}

func (a *baseAPIImpl[T, K]) BatchDelete(ctx context.Context, ids []K) (res types.Result[BatchReport[T]]) {
	defer recoverResult(a.log, "batchDelete", &res)
	if err := a.batchAllowed("batchDelete"); err != nil {
		return types.Fail[BatchReport[T]](err)
	}
	return a.runBatch(ctx, "batchDelete", len(ids), func(ctx context.Context, i int) BatchItem[T] {
		r := a.Delete(ctx, ids[i])
		return BatchItem[T]{ID: ids[i], Count: r.Count, Error: r.Error}
	})
}

// idOf reads the primary key of item through its JSON encoding.
func (a *baseAPIImpl[T, K]) idOf(item *T) any {
	if item == nil {
		return nil
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return nil
	}
	var row types.Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil
	}
	return row[a.idField()]
}
