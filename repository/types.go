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

	"github.com/tomoncle/bunsession/types"
)

// CrudRepository defines basic CRUD operations for entity type T keyed by K.
type CrudRepository[T any, K comparable] interface {
	FindAll(ctx context.Context) ([]*T, error)

	FindByID(ctx context.Context, id K) (*T, error)

	Save(ctx context.Context, model *T) (*T, error)

	SaveAll(ctx context.Context, models []*T) ([]*T, error)

	Delete(ctx context.Context, model *T) error

	DeleteByID(ctx context.Context, id K) error
}

// QueryRepository filters entities with a WHERE clause.
type QueryRepository[T any] interface {
	FindBy(ctx context.Context, filter *types.QueryFilter) ([]*T, error)
	Count(ctx context.Context, filter *types.QueryFilter) (int, error)
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines CRUD, filtering and pagination. Every call runs on the
// session carried by ctx and fails with database.ErrSessionNotInitialized
// when there is none.
type Repository[T any, K comparable] interface {
	CrudRepository[T, K]
	QueryRepository[T]
	PageQueryRepository[T]
	TableName() string
}
