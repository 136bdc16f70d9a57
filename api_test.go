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
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/rowkit/database"
	"github.com/tomoncle/rowkit/repository"
	"github.com/tomoncle/rowkit/types"
)

type entity struct {
	ID   string `json:"id"`
	Name string `json:"name" validate:"required"`
	Tag  string `json:"tag,omitempty"`
}

func mockConfig(seed ...entity) Config[entity] {
	return Config[entity]{
		Repository: repository.Config[entity]{
			TableName:   "entities",
			Type:        repository.KindMock,
			InitialData: seed,
		},
		Logger: database.NopLogger{},
	}
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	api := New[entity, string](mockConfig(entity{ID: "1", Name: "Test Entity"}))

	found := api.GetByID(ctx, "1")
	require.True(t, found.IsSuccess(), found.Err())
	assert.Equal(t, &entity{ID: "1", Name: "Test Entity"}, found.Data)
	raw, err := json.Marshal(found)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"id":"1","name":"Test Entity"},"error":null,"status":"success","count":1}`, string(raw))

	missing := api.GetByID(ctx, "missing")
	assert.Equal(t, types.StatusSuccess, missing.Status)
	assert.Nil(t, missing.Data)
	assert.Nil(t, missing.Error)
	raw, err = json.Marshal(missing)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":null,"error":null,"status":"success"}`, string(raw))

	created := api.Create(ctx, map[string]any{"name": "New"})
	require.True(t, created.IsSuccess(), created.Err())
	assert.Equal(t, "New", created.Data.Name)
	_, err = uuid.Parse(created.Data.ID)
	assert.NoError(t, err)

	all := api.GetAll(ctx, nil)
	require.True(t, all.IsSuccess(), all.Err())
	assert.Len(t, all.Data, 2)
	assert.Equal(t, 2, all.Count)
}

func TestGetAllOptions(t *testing.T) {
	ctx := context.Background()
	cfg := mockConfig(
		entity{ID: "1", Name: "Apple Product", Tag: "fruit"},
		entity{ID: "2", Name: "Banana Product", Tag: "fruit"},
		entity{ID: "3", Name: "Apple Computer", Tag: "tech"},
		entity{ID: "4", Name: "Cherry", Tag: "fruit"},
	)
	cfg.SearchFields = []string{"name"}
	cfg.DefaultOrder = &types.Order{Field: "name", Ascending: true}
	api := New[entity, string](cfg)

	res := api.GetAll(ctx, &types.ListOptions{Filters: map[string]any{"tag": "fruit"}})
	require.True(t, res.IsSuccess(), res.Err())
	assert.Equal(t, []string{"Apple Product", "Banana Product", "Cherry"}, entityNames(res.Data))

	res = api.GetAll(ctx, &types.ListOptions{Filters: map[string]any{"name": "apple", "tag": "fruit"}})
	assert.Equal(t, []string{"Apple Product"}, entityNames(res.Data))

	res = api.GetAll(ctx, &types.ListOptions{Search: "PRODUCT", OrderBy: &types.Order{Field: "name"}})
	assert.Equal(t, []string{"Banana Product", "Apple Product"}, entityNames(res.Data))

	res = api.GetAll(ctx, &types.ListOptions{Page: types.NewPageRequest(2, 2)})
	assert.Equal(t, []string{"Banana Product", "Cherry"}, entityNames(res.Data))

	page := api.GetPage(ctx, &types.ListOptions{Page: types.NewPageRequest(1, 3)})
	require.True(t, page.IsSuccess(), page.Err())
	assert.Equal(t, 1, page.Data.Page)
	assert.Equal(t, 3, page.Data.PageSize)
	assert.Len(t, page.Data.Items, 3)
	assert.Equal(t, 4, page.Data.Total)
	assert.Equal(t, 2, page.Data.Pages())

	page = api.GetPage(ctx, &types.ListOptions{Page: types.NewPageRequest(2, 3)})
	require.True(t, page.IsSuccess(), page.Err())
	assert.Equal(t, []string{"Cherry"}, entityNames(page.Data.Items))
	assert.Equal(t, 4, page.Data.Total)

	page = api.GetPage(ctx, &types.ListOptions{Search: "apple", Page: types.NewPageRequest(1, 1)})
	require.True(t, page.IsSuccess(), page.Err())
	assert.Equal(t, []string{"Apple Computer"}, entityNames(page.Data.Items))
	assert.Equal(t, 2, page.Data.Total)
	assert.Equal(t, 2, page.Data.Pages())

	page = api.GetPage(ctx, nil)
	assert.Equal(t, 10, page.Data.PageSize)
	assert.Len(t, page.Data.Items, 4)
	assert.Equal(t, 1, page.Data.Pages())

	page = api.GetPage(ctx, &types.ListOptions{Filters: map[string]any{"colour": "red"}})
	assert.Equal(t, types.CodeUnknownField, page.Error.Code)

	res = api.GetAll(ctx, &types.ListOptions{Filters: map[string]any{"colour": "red"}})
	assert.Equal(t, types.CodeUnknownField, res.Error.Code)

	byIDs := api.GetByIDs(ctx, []string{"4", "1", "404"})
	require.True(t, byIDs.IsSuccess())
	assert.ElementsMatch(t, []string{"Apple Product", "Cherry"}, entityNames(byIDs.Data))
}

func entityNames(items []entity) []string {
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = e.Name
	}
	return out
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	api := New[entity, string](mockConfig(entity{ID: "1", Name: "Old"}))

	upd := api.Update(ctx, "1", map[string]any{"id": "2", "name": "Renamed"})
	require.True(t, upd.IsSuccess(), upd.Err())
	assert.Equal(t, &entity{ID: "1", Name: "Renamed"}, upd.Data)

	missing := api.Update(ctx, "404", map[string]any{"name": "x"})
	require.False(t, missing.IsSuccess())
	assert.True(t, errors.Is(missing.Err(), types.ErrNotFound))

	del := api.Delete(ctx, "1")
	require.True(t, del.IsSuccess(), del.Err())
	assert.True(t, del.Data)
	assert.Equal(t, 1, del.Count)

	again := api.Delete(ctx, "1")
	require.True(t, again.IsSuccess())
	assert.False(t, again.Data)
	assert.Zero(t, again.Count)
}

func TestTransformHooks(t *testing.T) {
	ctx := context.Background()
	cfg := mockConfig(entity{ID: "1", Name: "first"})
	cfg.TransformRequest = func(payload any) (types.Row, error) {
		in, ok := payload.(map[string]any)
		if !ok {
			return nil, errors.New("payload must be a map")
		}
		name, _ := in["name"].(string)
		return types.Row{"name": strings.TrimSpace(name)}, nil
	}
	cfg.TransformResponse = func(e entity) (entity, error) {
		e.Name = strings.ToUpper(e.Name)
		return e, nil
	}
	api := New[entity, string](cfg)

	created := api.Create(ctx, map[string]any{"name": "  spaced  ", "secret": "dropped"})
	require.True(t, created.IsSuccess(), created.Err())
	assert.Equal(t, "SPACED", created.Data.Name)

	all := api.GetAll(ctx, nil)
	assert.ElementsMatch(t, []string{"FIRST", "SPACED"}, entityNames(all.Data))

	bad := api.Create(ctx, entity{Name: "struct"})
	require.False(t, bad.IsSuccess())
	assert.Equal(t, types.CodeTransform, bad.Error.Code)
	assert.Equal(t, "payload must be a map", bad.Error.Message)
	assert.Len(t, api.GetAll(ctx, nil).Data, 2)
}

func TestHookPanicsBecomeResults(t *testing.T) {
	ctx := context.Background()
	cfg := mockConfig(entity{ID: "1", Name: "first"})
	cfg.TransformResponse = func(e entity) (entity, error) {
		if e.ID == "1" {
			panic("bad row")
		}
		return e, nil
	}
	cfg.TransformRequest = func(payload any) (types.Row, error) {
		if payload == nil {
			panic("nil payload")
		}
		return types.Row{"name": "x"}, nil
	}
	api := New[entity, string](cfg)

	var res types.Result[*entity]
	require.NotPanics(t, func() { res = api.GetByID(ctx, "1") })
	assert.Equal(t, types.CodeTransform, res.Error.Code)
	assert.Contains(t, res.Error.Message, "bad row")

	require.NotPanics(t, func() { res = api.Create(ctx, nil) })
	assert.Equal(t, types.CodeTransform, res.Error.Code)

	list := api.GetAll(ctx, nil)
	assert.Equal(t, types.StatusError, list.Status)
	assert.Nil(t, list.Data)
}

func TestRepositoryPanicBecomesResult(t *testing.T) {
	cfg := mockConfig()
	cfg.Repository.Factory = func() repository.Repository[entity] { return panicking{} }
	api := New[entity, string](cfg)

	var res types.Result[[]entity]
	require.NotPanics(t, func() { res = api.GetAll(context.Background(), nil) })
	require.False(t, res.IsSuccess())
	assert.Equal(t, types.CodeTransport, res.Error.Code)
	assert.Contains(t, res.Error.Message, "getAll panicked")
}

type panicking struct{ repository.Repository[entity] }

func (panicking) IDField() string { return "id" }

func (panicking) Select(...string) *repository.Query[entity] { panic("select unavailable") }

func TestValidator(t *testing.T) {
	ctx := context.Background()
	cfg := mockConfig()
	cfg.Validator = validator.New()
	api := New[entity, string](cfg)

	res := api.Create(ctx, entity{Tag: "no name"})
	require.False(t, res.IsSuccess())
	assert.Equal(t, types.CodeValidation, res.Error.Code)
	assert.Contains(t, res.Error.Message, "Name failed required")

	ok := api.Create(ctx, &entity{Name: "named"})
	assert.True(t, ok.IsSuccess(), ok.Err())
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	cfg := mockConfig(entity{ID: "1", Name: "keep"})
	cfg.ReadOnly = true
	cfg.UseBatchOperations = true
	api := New[entity, string](cfg)

	assert.Equal(t, types.CodeUnsupported, api.Create(ctx, map[string]any{"name": "x"}).Error.Code)
	assert.Equal(t, types.CodeUnsupported, api.Update(ctx, "1", map[string]any{"name": "x"}).Error.Code)
	assert.Equal(t, types.CodeUnsupported, api.Delete(ctx, "1").Error.Code)
	assert.Equal(t, types.CodeUnsupported, api.BatchDelete(ctx, []string{"1"}).Error.Code)
	assert.Equal(t, "keep", api.GetByID(ctx, "1").Data.Name)
}

func TestConfigurationError(t *testing.T) {
	ctx := context.Background()
	api := New[entity, string](Config[entity]{
		Repository: repository.Config[entity]{TableName: "entities"},
		Logger:     database.NopLogger{},
	})

	res := api.GetByID(ctx, "1")
	require.False(t, res.IsSuccess())
	assert.Equal(t, types.CodeConfiguration, res.Error.Code)
	assert.True(t, errors.Is(res.Err(), repository.ErrMissingDB))
	assert.Equal(t, types.CodeConfiguration, api.Delete(ctx, "1").Error.Code)
	assert.Equal(t, types.CodeConfiguration, api.Create(ctx, map[string]any{"name": "x"}).Error.Code)
}

func TestLazyRepository(t *testing.T) {
	calls := 0
	cfg := mockConfig()
	cfg.Repository.Instance = nil
	cfg.Repository.Factory = func() repository.Repository[entity] {
		calls++
		return repository.NewTestRepository("entities", []entity{{ID: "1", Name: "one"}})
	}
	api := New[entity, string](cfg)
	assert.Zero(t, calls)

	ctx := context.Background()
	assert.True(t, api.GetByID(ctx, "1").IsSuccess())
	assert.True(t, api.Delete(ctx, "1").Data)
	assert.Equal(t, 1, calls)
	assert.Same(t, api.Repository(), api.Repository())
}
