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

	"github.com/tomoncle/bunsession/database"
	"github.com/tomoncle/bunsession/repository"
	"github.com/tomoncle/bunsession/types"
)

type Service[T any, K comparable] interface {
	// Get returns a single entity by its identifier, or nil if missing.
	Get(ctx context.Context, id K) (*T, error)

	// All returns all entities ordered by primary key.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Count returns the number of entities that match the provided filter.
	Count(ctx context.Context, filter *types.QueryFilter) (int, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Save inserts or updates one entity.
	Save(ctx context.Context, model *T) (*T, error)

	// SaveAll inserts or updates entities in one commit.
	SaveAll(ctx context.Context, models ...*T) ([]*T, error)

	// Delete removes an entity by its identifier.
	Delete(ctx context.Context, id K) error

	// Atomic runs fn on one session so that several calls share it.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

type baseServiceImpl[T any, K comparable] struct {
	db   *database.Database
	repo repository.Repository[T, K]
}

// NewService returns a Service on the default database installed by
// database.InitDB.
func NewService[T any, K comparable]() Service[T, K] {
	return &baseServiceImpl[T, K]{repo: repository.NewRepository[T, K]()}
}

// NewServiceWithDatabase returns a Service bound to db.
func NewServiceWithDatabase[T any, K comparable](db *database.Database) Service[T, K] {
	return &baseServiceImpl[T, K]{db: db, repo: repository.NewRepository[T, K]()}
}

func (s *baseServiceImpl[T, K]) getDatabase() (*database.Database, error) {
	if s.db != nil {
		return s.db, nil
	}
	if db := database.GetDatabase(); db != nil {
		return db, nil
	}
	return nil, database.ErrSessionNotInitialized
}

// Atomic reuses the session already on ctx, or opens a scoped one.
func (s *baseServiceImpl[T, K]) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, err := database.CurrentSession(ctx); err == nil {
		return fn(ctx)
	}
	db, err := s.getDatabase()
	if err != nil {
		return err
	}
	return db.ScopedSession(ctx, func(ctx context.Context, _ *database.Session) error {
		return fn(ctx)
	})
}

func (s *baseServiceImpl[T, K]) Get(ctx context.Context, id K) (entity *T, err error) {
	err = s.Atomic(ctx, func(ctx context.Context) error {
		entity, err = s.repo.FindByID(ctx, id)
		return err
	})
	return entity, err
}

func (s *baseServiceImpl[T, K]) All(ctx context.Context) (entities []*T, err error) {
	err = s.Atomic(ctx, func(ctx context.Context) error {
		entities, err = s.repo.FindAll(ctx)
		return err
	})
	return entities, err
}

func (s *baseServiceImpl[T, K]) List(ctx context.Context, filter *types.QueryFilter) (entities []*T, err error) {
	err = s.Atomic(ctx, func(ctx context.Context) error {
		entities, err = s.repo.FindBy(ctx, filter)
		return err
	})
	return entities, err
}

func (s *baseServiceImpl[T, K]) Count(ctx context.Context, filter *types.QueryFilter) (total int, err error) {
	err = s.Atomic(ctx, func(ctx context.Context) error {
		total, err = s.repo.Count(ctx, filter)
		return err
	})
	return total, err
}

func (s *baseServiceImpl[T, K]) Page(ctx context.Context, page *types.PageRequest) (pagination *types.Pagination[T], err error) {
	err = s.Atomic(ctx, func(ctx context.Context) error {
		pagination, err = s.repo.Page(ctx, page)
		return err
	})
	return pagination, err
}

func (s *baseServiceImpl[T, K]) Save(ctx context.Context, model *T) (saved *T, err error) {
	err = s.Atomic(ctx, func(ctx context.Context) error {
		saved, err = s.repo.Save(ctx, model)
		return err
	})
	return saved, err
}

func (s *baseServiceImpl[T, K]) SaveAll(ctx context.Context, models ...*T) (saved []*T, err error) {
	err = s.Atomic(ctx, func(ctx context.Context) error {
		saved, err = s.repo.SaveAll(ctx, models)
		return err
	})
	return saved, err
}

func (s *baseServiceImpl[T, K]) Delete(ctx context.Context, id K) error {
	return s.Atomic(ctx, func(ctx context.Context) error {
		return s.repo.DeleteByID(ctx, id)
	})
}
