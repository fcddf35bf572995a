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

	"github.com/tomoncle/bisna/database"
	"github.com/tomoncle/bisna/filter"
	"github.com/tomoncle/bisna/types"
)

// CrudRepository schedules writes in the unit of work and reads by identifier.
type CrudRepository[T any, ID comparable] interface {
	// Save queues entity for persistence. The identifier is assigned on flush.
	Save(entity *T) error

	// Delete queues removal of the row with the given identifier without reading it.
	Delete(id ID) error

	// Find reports false when no row has the identifier.
	Find(ctx context.Context, id ID) (*T, bool, error)

	All(ctx context.Context) ([]*T, error)
}

// QueryRepository executes criteria against the entity table.
type QueryRepository[T any] interface {
	Filter(ctx context.Context, c *filter.Criteria) ([]*T, error)
	Count(ctx context.Context, c *filter.Criteria) (int, error)
	CreateCriteria(alias string) *filter.Criteria
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, c *filter.Criteria, page *types.PageRequest) (*types.Pagination[T], error)
}

// UpsertRepository writes entities immediately, updating fields on key conflicts.
type UpsertRepository[T any] interface {
	Upsert(ctx context.Context, fields []string, conflictKeys []string, entity ...*T) error
}

// Repository is the per-entity gateway bound to one persistence context.
type Repository[T any, ID comparable] interface {
	CrudRepository[T, ID]
	QueryRepository[T]
	PageQueryRepository[T]
	UpsertRepository[T]
	EntityName() string
	Context() database.PersistenceContext
}
