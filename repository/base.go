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
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"

	"github.com/tomoncle/bisna/database"
	"github.com/tomoncle/bisna/filter"
	"github.com/tomoncle/bisna/types"
)

type baseRepositoryImpl[T any, ID comparable] struct {
	pc   database.PersistenceContext
	typ  reflect.Type
	name string
}

// For returns the repository of T cached on pc, building it on first use.
// *T must implement types.Identifier[ID].
func For[T any, ID comparable](pc database.PersistenceContext) (Repository[T, ID], error) {
	if pc == nil {
		return nil, types.Programming("persistence context cannot be nil")
	}
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if _, ok := any((*T)(nil)).(types.Identifier[ID]); !ok {
		return nil, types.MissingInterface(typ.Name(), "Identifier")
	}
	cached := pc.Repository(typ, func() interface{} {
		return &baseRepositoryImpl[T, ID]{pc: pc, typ: typ, name: typ.Name()}
	})
	repo, ok := cached.(Repository[T, ID])
	if !ok {
		return nil, types.Programming("repository cached for %s is %T", typ.Name(), cached)
	}
	return repo, nil
}

func (r *baseRepositoryImpl[T, ID]) EntityName() string { return r.name }

func (r *baseRepositoryImpl[T, ID]) Context() database.PersistenceContext { return r.pc }

func (r *baseRepositoryImpl[T, ID]) CreateCriteria(alias string) *filter.Criteria {
	if alias == "" {
		alias = filter.DefaultAlias
	}
	return filter.New(r.name, alias)
}

func (r *baseRepositoryImpl[T, ID]) Save(entity *T) error {
	if entity == nil {
		return types.Programming("cannot save a nil %s", r.name)
	}
	return r.pc.Persist(entity)
}

func (r *baseRepositoryImpl[T, ID]) Delete(id ID) error {
	ref, err := r.pc.Reference((*T)(nil), id)
	if err != nil {
		return err
	}
	return r.pc.Remove(ref)
}

func (r *baseRepositoryImpl[T, ID]) Find(ctx context.Context, id ID) (*T, bool, error) {
	pk, err := r.primaryKey()
	if err != nil {
		return nil, false, err
	}
	entity := new(T)
	err = r.pc.Conn().NewSelect().
		Model(entity).
		Where("?TableAlias.? = ?", bun.Ident(pk), id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entity, true, nil
}

func (r *baseRepositoryImpl[T, ID]) All(ctx context.Context) ([]*T, error) {
	var entities []*T
	err := r.pc.Conn().NewSelect().Model(&entities).Scan(ctx)
	return entities, err
}

func (r *baseRepositoryImpl[T, ID]) Filter(ctx context.Context, c *filter.Criteria) ([]*T, error) {
	q, err := r.compile(c)
	if err != nil {
		return nil, err
	}
	return r.fetch(ctx, q)
}

func (r *baseRepositoryImpl[T, ID]) Count(ctx context.Context, c *filter.Criteria) (int, error) {
	q, err := r.compile(c)
	if err != nil {
		return 0, err
	}
	return database.CountQuery(ctx, r.pc, (*T)(nil), q)
}

// Page counts the matches of c and fetches one page of them. Pagination set
// on c is replaced by the page request.
func (r *baseRepositoryImpl[T, ID]) Page(ctx context.Context, c *filter.Criteria, page *types.PageRequest) (*types.Pagination[T], error) {
	if page == nil {
		page = types.NewPageRequest(1, 10)
	}
	q, err := r.compile(c)
	if err != nil {
		return nil, err
	}
	pagination := types.NewDefaultPagination[T](page.GetPage(), page.GetPageSize())
	total, err := database.CountQuery(ctx, r.pc, (*T)(nil), q)
	if err != nil || total == 0 {
		return pagination, err
	}
	offset, limit := page.GetOffset(), page.GetPageSize()
	q.FirstResult, q.MaxResults = &offset, &limit
	entities, err := r.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

func (r *baseRepositoryImpl[T, ID]) Upsert(ctx context.Context, fields []string, conflictKeys []string, entity ...*T) error {
	if len(fields) == 0 {
		return fmt.Errorf("fields cannot be empty")
	}
	if len(entity) == 0 {
		return nil
	}
	entities := make([]*T, len(entity))
	copy(entities, entity)

	db := r.pc.DB()
	insertQuery := r.pc.Conn().NewInsert()
	if db.HasFeature(feature.InsertOnConflict) {
		return r.upsertWithPostgresqlOrSQLite(ctx, insertQuery, fields, conflictKeys, entities)
	} else if db.HasFeature(feature.InsertOnDuplicateKey) {
		return r.upsertWithMySQL(ctx, insertQuery, fields, entities)
	}
	return r.upsertFallback(ctx, entities)
}

func (r *baseRepositoryImpl[T, ID]) compile(c *filter.Criteria) (*filter.Query, error) {
	if c == nil {
		c = r.CreateCriteria(filter.DefaultAlias)
	}
	return c.Compile()
}

// fetch runs q. Joined rows repeat their root entity, so a query with joins
// keeps the first row per identifier and applies offset and limit to the
// distinct entities afterwards.
func (r *baseRepositoryImpl[T, ID]) fetch(ctx context.Context, q *filter.Query) ([]*T, error) {
	if q.MaxResults != nil && *q.MaxResults == 0 {
		return []*T{}, nil
	}
	run := q
	if q.HasJoins() {
		unpaged := *q
		unpaged.FirstResult, unpaged.MaxResults = nil, nil
		run = &unpaged
	}
	var entities []*T
	sel, err := database.SelectQuery(r.pc, &entities, run)
	if err != nil {
		return nil, err
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}
	if !q.HasJoins() {
		return entities, nil
	}
	seen := make(map[ID]struct{}, len(entities))
	unique := entities[:0]
	for _, e := range entities {
		id := any(e).(types.Identifier[ID]).GetID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, e)
	}
	return window(unique, q.FirstResult, q.MaxResults), nil
}

func window[T any](items []*T, offset, limit *int) []*T {
	if offset != nil {
		if *offset >= len(items) {
			return []*T{}
		}
		items = items[*offset:]
	}
	if limit != nil && *limit < len(items) {
		items = items[:*limit]
	}
	return items
}

func (r *baseRepositoryImpl[T, ID]) primaryKey() (string, error) {
	table := r.pc.DB().Table(r.typ)
	if len(table.PKs) != 1 {
		return "", types.Programming("%s must have exactly one primary key, found %d", r.name, len(table.PKs))
	}
	return table.PKs[0].Name, nil
}

func (r *baseRepositoryImpl[T, ID]) upsertWithMySQL(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, entities []*T) error {
	var queryArgs []string
	for _, field := range fields {
		queryArgs = append(queryArgs, fmt.Sprintf("%s = VALUES(%s)", r.ident(field), r.ident(field)))
	}
	_, err := insertQuery.
		Model(&entities).
		On("DUPLICATE KEY UPDATE " + strings.Join(queryArgs, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T, ID]) upsertWithPostgresqlOrSQLite(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, conflictKeys []string, entities []*T) error {
	if len(conflictKeys) == 0 {
		pk, err := r.primaryKey()
		if err != nil {
			return err
		}
		conflictKeys = []string{pk}
	}
	keys := make([]string, len(conflictKeys))
	for i, k := range conflictKeys {
		keys[i] = r.ident(k)
	}
	var queryArgs []string
	for _, field := range fields {
		queryArgs = append(queryArgs, fmt.Sprintf("%s = EXCLUDED.%s", r.ident(field), r.ident(field)))
	}
	_, err := insertQuery.
		Model(&entities).
		On("CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE").
		Set(strings.Join(queryArgs, ", ")).
		Exec(ctx)
	return err
}

// upsertFallback inserts each entity and updates it by primary key when the
// insert fails.
func (r *baseRepositoryImpl[T, ID]) upsertFallback(ctx context.Context, entities []*T) error {
	conn := r.pc.Conn()
	for _, entity := range entities {
		_, err := conn.NewInsert().Model(entity).Exec(ctx)
		if err != nil {
			_, updateErr := conn.NewUpdate().Model(entity).WherePK().Exec(ctx)
			if updateErr != nil {
				return fmt.Errorf("upsert failed for %s: insert error: %v, update error: %v", r.name, err, updateErr)
			}
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T, ID]) ident(name string) string {
	return r.pc.DB().Formatter().FormatQuery("?", bun.Ident(name))
}
