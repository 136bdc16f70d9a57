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

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/tomoncle/rowkit/database"
	"github.com/tomoncle/rowkit/types"
)

var schemaSQL = []string{
	`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		price REAL,
		active BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT)`,
}

func openSQLite(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()
	cfg := database.DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = ":memory:"
	cfg.HealthCheckInterval = 0
	cfg.SlowQueryTime = 0

	factory, err := database.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = factory.Close() })
	db := factory.GetDB()
	for _, stmt := range schemaSQL {
		_, err = db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

func TestLiveSelect(t *testing.T) {
	ctx := context.Background()
	repo := NewLiveRepository[product](openSQLite(t), "products", quiet())

	ins := repo.Insert(products()).Execute(ctx)
	require.True(t, ins.IsSuccess(), ins.Err())
	assert.Equal(t, 3, ins.Count)
	assert.Equal(t, products(), ins.Data)

	res := repo.Select().ILike("name", "%Apple%").Order("id", true).Execute(ctx)
	require.True(t, res.IsSuccess(), res.Err())
	assert.Equal(t, []int{1, 3}, ids(res.Data))

	res = repo.Select().ILike("name", "APPLE").Eq("active", true).Gt("price", 100).Execute(ctx)
	assert.Equal(t, []int{3}, ids(res.Data))

	res = repo.Select().In("id", []int{1, 2}).Order("id", false).Execute(ctx)
	assert.Equal(t, []int{2, 1}, ids(res.Data))

	res = repo.Select().In("id").Execute(ctx)
	require.True(t, res.IsSuccess(), res.Err())
	assert.Empty(t, res.Data)

	res = repo.Select().Order("name", true).Order("name", false).Execute(ctx)
	assert.Equal(t, []string{"Banana Product", "Apple Product", "Apple Computer"}, names(res.Data))

	res = repo.Select().Order("id", true).Range(1, 2).Execute(ctx)
	assert.Equal(t, []int{2, 3}, ids(res.Data))
	res = repo.Select().Order("id", true).Limit(1).Execute(ctx)
	assert.Equal(t, []int{1}, ids(res.Data))
	res = repo.Select().Order("id", true).Limit(0).Execute(ctx)
	assert.Empty(t, res.Data)

	rows := repo.Select("id, name").Eq("id", 2).Rows(ctx)
	require.True(t, rows.IsSuccess(), rows.Err())
	require.Len(t, rows.Data, 1)
	assert.Len(t, rows.Data[0], 2)
	assert.Equal(t, "Banana Product", rows.Data[0]["name"])
}

func TestLiveSingle(t *testing.T) {
	ctx := context.Background()
	repo := NewLiveRepository[product](openSQLite(t), "products", quiet())
	require.True(t, repo.Insert(products()).Execute(ctx).IsSuccess())

	one := repo.Select().Eq("id", 3).Single(ctx)
	require.True(t, one.IsSuccess(), one.Err())
	assert.Equal(t, products()[2], *one.Data)

	missing := repo.Select().Eq("id", 42).Single(ctx)
	assert.Equal(t, types.CodeNotFound, missing.Error.Code)

	maybe := repo.Select().Eq("id", 42).MaybeSingle(ctx)
	assert.True(t, maybe.IsSuccess())
	assert.Nil(t, maybe.Data)

	many := repo.Select().ILike("name", "apple").Single(ctx)
	assert.Equal(t, types.CodeMultipleResults, many.Error.Code)
}

func TestLiveInsertKeys(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	repo := NewLiveRepository[product](db, "products", quiet())
	first := repo.Insert(types.Row{"name": "Cherry"}).Single(ctx)
	require.True(t, first.IsSuccess(), first.Err())
	assert.Positive(t, first.Data.ID)
	assert.Equal(t, "Cherry", first.Data.Name)

	dup := repo.Insert(product{ID: 50, Name: "x"}, product{ID: first.Data.ID, Name: "dup"}).Execute(ctx)
	require.False(t, dup.IsSuccess())
	assert.Equal(t, types.CodeDuplicateKey, dup.Error.Code)
	assert.Empty(t, repo.Select().Eq("id", 50).Execute(ctx).Data)

	notes := NewLiveRepository[note](db, "notes", quiet())
	created := notes.Insert(note{Body: "hello"}).Single(ctx)
	require.True(t, created.IsSuccess(), created.Err())
	assert.Len(t, created.Data.ID, 36)
	assert.Equal(t, "hello", created.Data.Body)
}

func TestLiveUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewLiveRepository[product](openSQLite(t), "products", quiet())
	require.True(t, repo.Insert(products()).Execute(ctx).IsSuccess())

	upd := repo.Update(product{ID: 77, Name: "Apple Renamed", Price: 1, Active: true}).Eq("id", 1).Single(ctx)
	require.True(t, upd.IsSuccess(), upd.Err())
	assert.Equal(t, product{ID: 1, Name: "Apple Renamed", Price: 1, Active: true}, *upd.Data)

	many := repo.Update(types.Row{"active": false}).ILike("name", "apple").Execute(ctx)
	require.True(t, many.IsSuccess(), many.Err())
	assert.Equal(t, 2, many.Count)
	for _, p := range many.Data {
		assert.False(t, p.Active)
	}

	none := repo.Update(types.Row{"name": "ghost"}).Eq("id", 42).Execute(ctx)
	assert.True(t, none.IsSuccess())
	assert.Zero(t, none.Count)

	del := repo.Delete().Eq("id", 2).Execute(ctx)
	require.True(t, del.IsSuccess(), del.Err())
	assert.Equal(t, 1, del.Count)
	assert.Equal(t, []int{2}, ids(del.Data))

	again := repo.Delete().Eq("id", 2).Execute(ctx)
	assert.True(t, again.IsSuccess())
	assert.Zero(t, again.Count)
}

func TestLiveUnknownField(t *testing.T) {
	repo := NewLiveRepository[product](openSQLite(t), "products", quiet())
	res := repo.Select().Eq("colour", "red").Execute(context.Background())
	require.False(t, res.IsSuccess())
	assert.Equal(t, types.CodeUnknownField, res.Error.Code)
	assert.Contains(t, res.Error.Message, "colour")
}

func TestLiveTransportError(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery(`SELECT \* FROM "products"`).WillReturnError(errors.New("connection reset by peer"))

	repo := NewLiveRepository[product](db, "products", quiet())
	res := repo.Select().Execute(context.Background())
	require.False(t, res.IsSuccess())
	assert.Equal(t, types.CodeTransport, res.Error.Code)
	assert.Equal(t, "connection reset by peer", res.Error.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLiveDeleteRollsBack(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "id" FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(`SELECT \* FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Apple"))
	mock.ExpectExec(`DELETE FROM "products"`).WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	repo := NewLiveRepository[product](db, "products", quiet())
	res := repo.Delete().Eq("id", 1).Execute(context.Background())
	require.False(t, res.IsSuccess())
	assert.Equal(t, "lock timeout", res.Error.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}
