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
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/rowkit/database"
	"github.com/tomoncle/rowkit/types"
)

type product struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Price  float64 `json:"price,omitempty"`
	Active bool    `json:"active"`
}

type note struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

func quiet() Option { return WithLogger(database.NopLogger{}) }

func products() []product {
	return []product{
		{ID: 1, Name: "Apple Product", Price: 10, Active: true},
		{ID: 2, Name: "Banana Product", Price: 5},
		{ID: 3, Name: "Apple Computer", Price: 1200, Active: true},
	}
}

func ids(items []product) []int {
	out := make([]int, len(items))
	for i, p := range items {
		out[i] = p.ID
	}
	return out
}

func names(items []product) []string {
	out := make([]string, len(items))
	for i, p := range items {
		out[i] = p.Name
	}
	return out
}

func TestMockILikeConjunction(t *testing.T) {
	ctx := context.Background()
	repo := NewTestRepository("products", products(), quiet())

	res := repo.Select().ILike("name", "%Apple%").Execute(ctx)
	require.True(t, res.IsSuccess(), res.Err())
	assert.Equal(t, []int{1, 3}, ids(res.Data))
	assert.Equal(t, 2, res.Count)

	res = repo.Select().ILike("name", "apple").Execute(ctx)
	assert.Equal(t, []int{1, 3}, ids(res.Data))

	res = repo.Select().ILike("name", "%Apple%").Eq("active", true).Gt("price", 100).Execute(ctx)
	assert.Equal(t, []int{3}, ids(res.Data))

	res = repo.Select().Like("name", "apple").Execute(ctx)
	assert.Empty(t, res.Data)
	assert.True(t, res.IsSuccess())

	res = repo.Select().Like("name", "%Produc_").Execute(ctx)
	assert.Equal(t, []int{1, 2}, ids(res.Data))
}

func TestMockOrderLastCallWins(t *testing.T) {
	ctx := context.Background()
	repo := NewTestRepository("letters", []product{{ID: 1, Name: "A"}, {ID: 2, Name: "C"}, {ID: 3, Name: "B"}}, quiet())

	res := repo.Select().Order("name", true).Order("name", false).Execute(ctx)
	require.True(t, res.IsSuccess())
	assert.Equal(t, []string{"C", "B", "A"}, names(res.Data))

	res = repo.Select().Order("name", false).Order("name", true).Execute(ctx)
	assert.Equal(t, []string{"A", "B", "C"}, names(res.Data))
}

func TestMockLimitAndRange(t *testing.T) {
	ctx := context.Background()
	var seed []product
	for i, n := range []string{"A", "B", "C", "D", "E"} {
		seed = append(seed, product{ID: i + 1, Name: n})
	}
	repo := NewTestRepository("letters", seed, quiet())
	base := repo.Select().Order("name", true)

	assert.Equal(t, []string{"A", "B"}, names(base.Limit(2).Execute(ctx).Data))
	assert.Equal(t, []string{"B", "C", "D"}, names(base.Range(1, 3).Execute(ctx).Data))
	assert.Equal(t, []string{"B", "C", "D"}, names(base.Limit(2).Range(1, 3).Execute(ctx).Data))
	assert.Equal(t, []string{"B", "C"}, names(base.Range(1, 3).Limit(2).Execute(ctx).Data))
	assert.Empty(t, base.Range(10, 12).Execute(ctx).Data)
	assert.Empty(t, base.Limit(0).Execute(ctx).Data)

	res := base.Range(3, 1).Execute(ctx)
	require.False(t, res.IsSuccess())
	assert.Equal(t, types.CodeInvalidQuery, res.Error.Code)
}

func TestMockSingleAndMaybeSingle(t *testing.T) {
	ctx := context.Background()
	repo := NewTestRepository("products", products(), quiet())

	one := repo.Select().Eq("id", 2).Single(ctx)
	require.True(t, one.IsSuccess(), one.Err())
	assert.Equal(t, "Banana Product", one.Data.Name)

	missing := repo.Select().Eq("id", 42).Single(ctx)
	assert.Equal(t, types.StatusError, missing.Status)
	assert.True(t, errors.Is(missing.Err(), types.ErrNotFound))

	maybe := repo.Select().Eq("id", 42).MaybeSingle(ctx)
	assert.True(t, maybe.IsSuccess())
	assert.Nil(t, maybe.Data)

	many := repo.Select().ILike("name", "apple").MaybeSingle(ctx)
	assert.True(t, errors.Is(many.Err(), types.ErrMultipleResults))
	many = repo.Select().ILike("name", "apple").Single(ctx)
	assert.Equal(t, types.CodeMultipleResults, many.Error.Code)
}

func TestMockInsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository[product]("products", quiet())

	in := products()
	res := repo.Insert(in).Execute(ctx)
	require.True(t, res.IsSuccess(), res.Err())
	assert.Equal(t, 3, res.Count)

	all := repo.Select().Execute(ctx)
	assert.ElementsMatch(t, in, all.Data)

	created := repo.Insert(types.Row{"name": "Cherry"}).Single(ctx)
	require.True(t, created.IsSuccess(), created.Err())
	assert.Equal(t, 4, created.Data.ID)
	assert.Equal(t, 4, repo.Len())
}

func TestMockInsertGeneratesUUIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository[note]("notes", quiet())

	res := repo.Insert(note{Body: "first"}, note{Body: "second"}).Execute(ctx)
	require.True(t, res.IsSuccess(), res.Err())
	require.Len(t, res.Data, 2)
	for _, n := range res.Data {
		id, err := uuid.Parse(n.ID)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), id.Version())
	}
	assert.NotEqual(t, res.Data[0].ID, res.Data[1].ID)

	seq := 0
	custom := NewMockRepository[note]("notes", quiet(), WithIDGenerator(func() any {
		seq++
		return "n-" + string(rune('0'+seq))
	}))
	got := custom.Insert(note{Body: "x"}).Single(ctx)
	require.True(t, got.IsSuccess())
	assert.Equal(t, "n-1", got.Data.ID)
}

func TestMockInsertDuplicateKeyWritesNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewTestRepository("products", products(), quiet())

	res := repo.Insert(product{ID: 9, Name: "new"}, product{ID: 2, Name: "dup"}).Execute(ctx)
	require.False(t, res.IsSuccess())
	assert.Equal(t, types.CodeDuplicateKey, res.Error.Code)
	assert.Equal(t, 3, repo.Len())

	res = repo.Insert(product{ID: 7, Name: "x"}, product{ID: 7, Name: "y"}).Execute(ctx)
	assert.Equal(t, types.CodeDuplicateKey, res.Error.Code)
	assert.Equal(t, 3, repo.Len())
}

func TestMockUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewTestRepository("products", products(), quiet())

	res := repo.Update(types.Row{"id": 99, "price": 1}).ILike("name", "apple").Execute(ctx)
	require.True(t, res.IsSuccess(), res.Err())
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []int{1, 3}, ids(res.Data))
	for _, p := range res.Data {
		assert.Equal(t, float64(1), p.Price)
	}

	none := repo.Update(types.Row{"price": 2}).Eq("id", 42).Execute(ctx)
	assert.True(t, none.IsSuccess())
	assert.Empty(t, none.Data)

	shaped := repo.Update(map[string]any{"name": "Banana"}).Eq("id", 2).Select("id,name").Rows(ctx)
	require.True(t, shaped.IsSuccess())
	assert.Equal(t, []types.Row{{"id": float64(2), "name": "Banana"}}, shaped.Data)

	bad := repo.Update(types.Row{"colour": "red"}).Eq("id", 2).Execute(ctx)
	assert.Equal(t, types.CodeUnknownField, bad.Error.Code)
}

func TestMockDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewTestRepository("products", products(), quiet())

	first := repo.Delete().Eq("id", 1).Execute(ctx)
	require.True(t, first.IsSuccess())
	assert.Equal(t, 1, first.Count)
	assert.Equal(t, []int{1}, ids(first.Data))

	second := repo.Delete().Eq("id", 1).Execute(ctx)
	require.True(t, second.IsSuccess())
	assert.Equal(t, 0, second.Count)
	assert.Empty(t, second.Data)
	assert.Equal(t, 2, repo.Len())

	all := repo.Delete().Execute(ctx)
	assert.Equal(t, 2, all.Count)
	assert.Zero(t, repo.Len())
}

func TestMockComparisons(t *testing.T) {
	ctx := context.Background()
	repo := NewTestRepository("products", products(), quiet())

	cases := []struct {
		name  string
		query *Query[product]
		want  []int
	}{
		{"neq", repo.Select().Neq("id", 2), []int{1, 3}},
		{"gte", repo.Select().Gte("price", 10), []int{1, 3}},
		{"lt", repo.Select().Lt("price", 10), []int{2}},
		{"lte string", repo.Select().Lte("name", "Apple Product"), []int{1, 3}},
		{"in", repo.Select().In("id", []int{3, 1, 7}), []int{1, 3}},
		{"in variadic", repo.Select().In("id", 2, "3"), []int{2}},
		{"in empty", repo.Select().In("id"), []int{}},
		{"eq strict", repo.Select().Eq("id", "1"), []int{}},
		{"eq nil", repo.Select().Eq("name", nil), []int{}},
		{"bool", repo.Select().Eq("active", false), []int{2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := tc.query.Execute(ctx)
			require.True(t, res.IsSuccess(), res.Err())
			assert.Equal(t, tc.want, ids(res.Data))
		})
	}
}

func TestMockOrderNulls(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository[types.Row]("things", quiet())
	res := repo.Insert(
		types.Row{"id": 1, "rank": 2},
		types.Row{"id": 2},
		types.Row{"id": 3, "rank": 1},
	).Execute(ctx)
	require.True(t, res.IsSuccess(), res.Err())

	order := func(asc bool) []any {
		var out []any
		for _, r := range repo.Select().Order("rank", asc).Execute(ctx).Data {
			out = append(out, r["id"])
		}
		return out
	}
	assert.Equal(t, []any{float64(3), float64(1), float64(2)}, order(true))
	assert.Equal(t, []any{float64(2), float64(1), float64(3)}, order(false))
}

func TestMockUnknownField(t *testing.T) {
	ctx := context.Background()
	repo := NewTestRepository("products", products(), quiet())

	res := repo.Select().Eq("colour", "red").Execute(ctx)
	require.False(t, res.IsSuccess())
	assert.Equal(t, types.CodeUnknownField, res.Error.Code)
	assert.Contains(t, res.Error.Message, "colour")

	res = repo.Select().Order("colour", true).Execute(ctx)
	assert.Equal(t, types.CodeUnknownField, res.Error.Code)

	loose := NewMockRepository[types.Row]("loose", quiet())
	assert.True(t, loose.Select().Eq("anything", 1).Execute(ctx).IsSuccess())
	loose.Insert(types.Row{"name": "x"}).Execute(ctx)
	assert.Equal(t, types.CodeUnknownField, loose.Select().Eq("anything", 1).Execute(ctx).Error.Code)
}

func TestMockProjection(t *testing.T) {
	ctx := context.Background()
	repo := NewTestRepository("products", products(), quiet(), WithDefaultSelect("id,name"))

	rows := repo.Select().Eq("id", 1).Rows(ctx)
	require.True(t, rows.IsSuccess())
	assert.Equal(t, []types.Row{{"id": float64(1), "name": "Apple Product"}}, rows.Data)

	rows = repo.Select("id").Eq("id", 1).Rows(ctx)
	assert.Equal(t, []types.Row{{"id": float64(1)}}, rows.Data)

	rows = repo.Select("*").Eq("id", 1).Rows(ctx)
	assert.Len(t, rows.Data[0], 4)
}

func TestMockContextCanceled(t *testing.T) {
	repo := NewTestRepository("products", products(), quiet())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := repo.Delete().Execute(ctx)
	require.False(t, res.IsSuccess())
	assert.Equal(t, types.CodeTransport, res.Error.Code)
	assert.Equal(t, 3, repo.Len())
	assert.Error(t, repo.Clear(ctx))
}

func TestMockClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewTestRepository("products", products(), quiet())
	require.NoError(t, repo.Clear(ctx))
	require.NoError(t, repo.Clear(ctx))
	assert.Zero(t, repo.Len())
	assert.Empty(t, repo.Rows())

	require.NoError(t, repo.Seed(ctx, products()...))
	assert.Equal(t, 3, repo.Len())
	assert.Error(t, repo.Seed(ctx, product{ID: 1}))
}

func TestMockPanicBecomesResult(t *testing.T) {
	repo := NewMockRepository[note]("notes", quiet(), WithIDGenerator(func() any { panic("no ids left") }))

	var res types.Result[[]note]
	require.NotPanics(t, func() { res = repo.Insert(note{Body: "x"}).Execute(context.Background()) })
	require.False(t, res.IsSuccess())
	assert.Contains(t, res.Error.Message, "no ids left")
	assert.Zero(t, repo.Len())
}

func TestMockInvalidPayload(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository[product]("products", quiet())

	res := repo.Insert(42).Execute(ctx)
	require.False(t, res.IsSuccess())
	assert.Equal(t, types.CodeInvalidQuery, res.Error.Code)

	res = repo.Insert().Execute(ctx)
	assert.Equal(t, types.CodeInvalidQuery, res.Error.Code)

	res = repo.Update(nil).Execute(ctx)
	assert.Equal(t, types.CodeInvalidQuery, res.Error.Code)
}

func TestQueryBranchesAreIndependent(t *testing.T) {
	repo := NewTestRepository("products", products(), quiet())
	base := repo.Select().ILike("name", "apple")

	cheap := base.Lt("price", 100).Order("price", true)
	pricey := base.Gt("price", 100).Limit(1)

	assert.Len(t, base.Descriptor().Predicates, 1)
	assert.Nil(t, base.Descriptor().Order)
	assert.Equal(t, types.NoLimit, base.Descriptor().Limit)
	assert.Len(t, cheap.Descriptor().Predicates, 2)
	assert.Equal(t, 1, pricey.Descriptor().Limit)

	ctx := context.Background()
	assert.Equal(t, []int{1}, ids(cheap.Execute(ctx).Data))
	assert.Equal(t, []int{3}, ids(pricey.Execute(ctx).Data))
	assert.Equal(t, []int{1, 3}, ids(base.Execute(ctx).Data))
}
