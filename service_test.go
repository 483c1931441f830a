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

package bunsession

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunsession/database"
	"github.com/tomoncle/bunsession/types"
	"github.com/uptrace/bun"
)

type Article struct {
	bun.BaseModel

	ID    int64  `bun:"id,pk,autoincrement"`
	Title string `bun:"title,notnull"`
	Draft bool   `bun:"draft"`
}

func articleRegistry() database.ModelRegistry {
	registry := database.NewModelRegistry()
	registry.Register(database.NewModelAdapter((*Article)(nil), 0))
	return registry
}

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.NewFromConfig(context.Background(),
		&database.Config{URL: "sqlite://", CreateAllOnStartup: true},
		database.WithModelRegistry(articleRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestServiceCRUD(t *testing.T) {
	svc := NewServiceWithDatabase[Article, int64](newTestDatabase(t))
	ctx := context.Background()

	saved, err := svc.SaveAll(ctx, &Article{Title: "one"}, &Article{Title: "two", Draft: true}, &Article{Title: "three"})
	require.NoError(t, err)
	require.Len(t, saved, 3)
	assert.Equal(t, int64(3), saved[2].ID)

	got, err := svc.Get(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "two", got.Title)

	got.Title = "two (edited)"
	_, err = svc.Save(ctx, got)
	require.NoError(t, err)

	drafts, err := svc.List(ctx, types.NewQueryFilter("draft = ?", true))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "two (edited)", drafts[0].Title)

	require.NoError(t, svc.Delete(ctx, 1))
	n, err := svc.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(2), all[0].ID)

	page, err := svc.Page(ctx, types.NewDefaultPageRequest(1, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.True(t, page.HasNext())
}

func TestServiceAtomicSharesSession(t *testing.T) {
	svc := NewServiceWithDatabase[Article, int64](newTestDatabase(t))
	errAbort := errors.New("abort")

	var outer *database.Session
	err := svc.Atomic(context.Background(), func(ctx context.Context) error {
		var err error
		outer, err = database.CurrentSession(ctx)
		require.NoError(t, err)

		return svc.Atomic(ctx, func(ctx context.Context) error {
			inner, err := database.CurrentSession(ctx)
			require.NoError(t, err)
			assert.Same(t, outer, inner)

			saved, err := svc.Save(ctx, &Article{Title: "kept"})
			require.NoError(t, err)
			found, err := svc.Get(ctx, saved.ID)
			require.NoError(t, err)
			assert.Equal(t, "kept", found.Title)
			return errAbort
		})
	})
	assert.ErrorIs(t, err, errAbort)
	assert.True(t, outer.Closed())

	// Save commits, so the row outlives the failed block.
	n, err := svc.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestServiceDefaultDatabase(t *testing.T) {
	require.NoError(t, database.CloseDB())
	t.Cleanup(func() { _ = database.CloseDB() })

	svc := NewService[Article, int64]()
	_, err := svc.All(context.Background())
	assert.ErrorIs(t, err, database.ErrSessionNotInitialized)

	_, err = database.InitDB(context.Background(),
		&database.Config{URL: "sqlite://", CreateAllOnStartup: true},
		database.WithModelRegistry(articleRegistry()))
	require.NoError(t, err)

	saved, err := svc.Save(context.Background(), &Article{Title: "global"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.ID)

	got, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "global", got.Title)
}
