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

	"github.com/tomoncle/bunsession/database"
	"github.com/tomoncle/bunsession/types"
	"github.com/uptrace/bun"
)

type baseRepositoryImpl[T any, K comparable] struct{}

// NewRepository returns a generic repository for T. It holds no session; each
// call borrows the one published on its context.
func NewRepository[T any, K comparable]() Repository[T, K] {
	return &baseRepositoryImpl[T, K]{}
}

func (r *baseRepositoryImpl[T, K]) TableName() string {
	return database.ModelTableName((*T)(nil))
}

func (r *baseRepositoryImpl[T, K]) session(ctx context.Context) (*database.Session, error) {
	return database.CurrentSession(ctx)
}

func (r *baseRepositoryImpl[T, K]) FindAll(ctx context.Context) ([]*T, error) {
	s, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	entities := make([]*T, 0)
	err = s.Select(ctx, &entities, r.orderByPK(s))
	return entities, err
}

// FindByID returns nil without error when no row has the given id.
func (r *baseRepositoryImpl[T, K]) FindByID(ctx context.Context, id K) (*T, error) {
	s, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	entity := new(T)
	found, err := s.Get(ctx, entity, id)
	if err != nil || !found {
		return nil, err
	}
	return entity, nil
}

// Save inserts or updates model, commits, and reloads it so generated
// columns are populated.
func (r *baseRepositoryImpl[T, K]) Save(ctx context.Context, model *T) (*T, error) {
	s, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Add(ctx, model); err != nil {
		return nil, err
	}
	if err := s.Commit(); err != nil {
		return nil, err
	}
	if err := s.Refresh(ctx, model); err != nil {
		return nil, err
	}
	return model, nil
}

// SaveAll adds every model in order with a single commit.
func (r *baseRepositoryImpl[T, K]) SaveAll(ctx context.Context, models []*T) ([]*T, error) {
	s, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	for i, model := range models {
		if err := s.Add(ctx, model); err != nil {
			return nil, fmt.Errorf("save model %d: %w", i, err)
		}
	}
	if err := s.Commit(); err != nil {
		return nil, err
	}
	for _, model := range models {
		if err := s.Refresh(ctx, model); err != nil {
			return nil, err
		}
	}
	return models, nil
}

func (r *baseRepositoryImpl[T, K]) Delete(ctx context.Context, model *T) error {
	s, err := r.session(ctx)
	if err != nil {
		return err
	}
	if err := s.Delete(ctx, model); err != nil {
		return err
	}
	return s.Commit()
}

// DeleteByID is a no-op when no row has the given id.
func (r *baseRepositoryImpl[T, K]) DeleteByID(ctx context.Context, id K) error {
	entity, err := r.FindByID(ctx, id)
	if err != nil || entity == nil {
		return err
	}
	return r.Delete(ctx, entity)
}

func (r *baseRepositoryImpl[T, K]) FindBy(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	s, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	entities := make([]*T, 0)
	err = s.Select(ctx, &entities, withFilter(filter), r.orderByPK(s))
	return entities, err
}

func (r *baseRepositoryImpl[T, K]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	s, err := r.session(ctx)
	if err != nil {
		return 0, err
	}
	return s.Count(ctx, (*T)(nil), withFilter(filter))
}

func (r *baseRepositoryImpl[T, K]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if pageRequest == nil {
		pageRequest = types.NewDefaultPageRequest(1, 10)
	}
	s, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	filter := withFilter(pageRequest.GetFilter())
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := s.Count(ctx, (*T)(nil), filter)
	if err != nil || total == 0 {
		return pagination, err
	}

	order := r.orderByPK(s)
	if orders := pageRequest.GetOrders(); len(orders) > 0 {
		order = func(q *bun.SelectQuery) *bun.SelectQuery { return q.Order(orders...) }
	}
	entities := make([]*T, 0, pageRequest.GetPageSize())
	err = s.Select(ctx, &entities, filter, order, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Offset(pageRequest.GetOffset()).Limit(pageRequest.GetPageSize())
	})
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

func (r *baseRepositoryImpl[T, K]) orderByPK(s *database.Session) func(*bun.SelectQuery) *bun.SelectQuery {
	pks := s.Table((*T)(nil)).PKs
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, pk := range pks {
			q = q.OrderExpr("? ASC", bun.Ident(pk.Name))
		}
		return q
	}
}

func withFilter(filter *types.QueryFilter) func(*bun.SelectQuery) *bun.SelectQuery {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if filter == nil || filter.Schema == "" {
			return q
		}
		return q.Where(filter.Schema, filter.Args...)
	}
}
