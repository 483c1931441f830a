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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunsession/database"
	"github.com/tomoncle/bunsession/types"
	"github.com/uptrace/bun"
)

type Product struct {
	bun.BaseModel

	ID    int64  `bun:"id,pk,autoincrement"`
	Name  string `bun:"name,notnull"`
	Price int    `bun:"price"`
}

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	registry := database.NewModelRegistry()
	registry.Register(database.NewModelAdapter((*Product)(nil), 0))
	db, err := database.Open("sqlite://", database.WithModelRegistry(registry))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.CreateAll(context.Background()))
	return db
}

// inScope runs fn in its own scoped session and fails the test on error.
func inScope(t *testing.T, db *database.Database, fn func(ctx context.Context)) {
	t.Helper()
	require.NoError(t, db.ScopedSession(context.Background(), func(ctx context.Context, _ *database.Session) error {
		fn(ctx)
		return nil
	}))
}

func seed(t *testing.T, db *database.Database, repo Repository[Product, int64], n int) {
	t.Helper()
	products := make([]*Product, n)
	for i := range products {
		products[i] = &Product{Name: fmt.Sprintf("p%02d", i+1), Price: (i + 1) * 5}
	}
	inScope(t, db, func(ctx context.Context) {
		_, err := repo.SaveAll(ctx, products)
		require.NoError(t, err)
	})
}

func TestRepositoryRequiresSession(t *testing.T) {
	repo := NewRepository[Product, int64]()
	ctx := context.Background()

	_, err := repo.FindAll(ctx)
	assert.ErrorIs(t, err, database.ErrSessionNotInitialized)
	_, err = repo.Save(ctx, &Product{Name: "x"})
	assert.ErrorIs(t, err, database.ErrSessionNotInitialized)
	_, err = repo.Page(ctx, nil)
	assert.ErrorIs(t, err, database.ErrSessionNotInitialized)
	assert.ErrorIs(t, repo.DeleteByID(ctx, 1), database.ErrSessionNotInitialized)
}

func TestRepositoryTableName(t *testing.T) {
	assert.Equal(t, "product", NewRepository[Product, int64]().TableName())
}

func TestRepositorySaveAndFind(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewRepository[Product, int64]()

	inScope(t, db, func(ctx context.Context) {
		saved, err := repo.SaveAll(ctx, []*Product{{Name: "a"}, {Name: "b"}, {Name: "c"}})
		require.NoError(t, err)
		require.Len(t, saved, 3)
		for i, p := range saved {
			assert.Equal(t, int64(i+1), p.ID)
		}
	})

	inScope(t, db, func(ctx context.Context) {
		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].Name, all[1].Name, all[2].Name})

		p, err := repo.FindByID(ctx, 2)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "b", p.Name)

		missing, err := repo.FindByID(ctx, 99)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestRepositoryUpdate(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewRepository[Product, int64]()
	seed(t, db, repo, 3)

	inScope(t, db, func(ctx context.Context) {
		p, err := repo.Save(ctx, &Product{ID: 2, Name: "renamed", Price: 99})
		require.NoError(t, err)
		assert.Equal(t, int64(2), p.ID)
	})

	inScope(t, db, func(ctx context.Context) {
		p, err := repo.FindByID(ctx, 2)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "renamed", p.Name)
		assert.Equal(t, 99, p.Price)

		n, err := repo.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestRepositoryDelete(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewRepository[Product, int64]()
	seed(t, db, repo, 3)

	inScope(t, db, func(ctx context.Context) {
		first, err := repo.FindByID(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, repo.Delete(ctx, first))
		require.NoError(t, repo.DeleteByID(ctx, 3))
		require.NoError(t, repo.DeleteByID(ctx, 42))
	})

	inScope(t, db, func(ctx context.Context) {
		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, int64(2), all[0].ID)
	})
}

func TestRepositoryFindByAndCount(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewRepository[Product, int64]()
	seed(t, db, repo, 6)

	inScope(t, db, func(ctx context.Context) {
		filter := types.NewQueryFilter("price > ?", 15)
		found, err := repo.FindBy(ctx, filter)
		require.NoError(t, err)
		require.Len(t, found, 3)
		assert.Equal(t, "p04", found[0].Name)

		n, err := repo.Count(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		none, err := repo.FindBy(ctx, types.NewQueryFilter("name = ?", "nope"))
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestRepositoryPage(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewRepository[Product, int64]()
	seed(t, db, repo, 25)

	inScope(t, db, func(ctx context.Context) {
		page, err := repo.Page(ctx, types.NewDefaultPageRequest(2, 10))
		require.NoError(t, err)
		assert.Equal(t, 25, page.Total)
		assert.Equal(t, 3, page.TotalPages())
		assert.True(t, page.HasNext())
		require.Len(t, page.Items, 10)
		assert.Equal(t, int64(11), page.Items[0].ID)
		assert.Equal(t, int64(20), page.Items[9].ID)

		last, err := repo.Page(ctx, types.NewDefaultPageRequest(3, 10))
		require.NoError(t, err)
		assert.Len(t, last.Items, 5)
		assert.False(t, last.HasNext())

		desc, err := repo.Page(ctx, types.NewPageRequest(1, 3, types.NewQueryFilter("price <= ?", 50), []string{"price DESC"}))
		require.NoError(t, err)
		assert.Equal(t, 10, desc.Total)
		require.Len(t, desc.Items, 3)
		assert.Equal(t, 50, desc.Items[0].Price)

		empty, err := repo.Page(ctx, types.NewPageRequestWithFilter(1, 10, types.NewQueryFilter("price < 0")))
		require.NoError(t, err)
		assert.Equal(t, 0, empty.Total)
		assert.NotNil(t, empty.Items)
		assert.Empty(t, empty.Items)
	})
}

func TestRepositoryUncommittedWorkIsDiscarded(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewRepository[Product, int64]()

	err := db.ScopedSession(context.Background(), func(ctx context.Context, s *database.Session) error {
		return s.Add(ctx, &Product{Name: "draft"})
	})
	require.NoError(t, err)

	inScope(t, db, func(ctx context.Context) {
		n, err := repo.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestRepositoryNestedScopes(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewRepository[Product, int64]()
	seed(t, db, repo, 2)

	inScope(t, db, func(ctx context.Context) {
		outer, err := repo.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, outer, 2)

		err = db.ScopedSession(ctx, func(ctx context.Context, _ *database.Session) error {
			inner, err := repo.FindAll(ctx)
			if err != nil {
				return err
			}
			assert.Len(t, inner, 2)
			_, err = repo.Save(ctx, &Product{Name: "nested", Price: 1})
			return err
		})
		require.NoError(t, err)

		n, err := repo.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	inScope(t, db, func(ctx context.Context) {
		n, err := repo.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}
