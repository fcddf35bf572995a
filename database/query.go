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

package database

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/bisna/filter"
	"github.com/tomoncle/bisna/types"
)

// SelectQuery materializes a compiled query for model, a pointer to a slice of
// entities or entity pointers. Only columns of the root alias are selected. Predicates use bun
// placeholders: ?name for named parameters and ?0, ?1 for positional ones.
func SelectQuery(pc PersistenceContext, model interface{}, q *filter.Query) (*bun.SelectQuery, error) {
	b, err := newSelectBuilder(pc, model, q)
	if err != nil {
		return nil, err
	}
	sel := b.base().ColumnExpr("?.*", bun.Ident(q.RootAlias))
	for _, o := range q.Orders {
		sel = sel.OrderExpr(o.String())
	}
	switch {
	case q.MaxResults != nil && *q.MaxResults == 0:
		// bun reads Limit(0) as no limit
		sel = sel.Where("1 = 0")
	case q.MaxResults != nil:
		sel = sel.Limit(*q.MaxResults)
	case q.FirstResult != nil:
		if n := unboundedLimit(pc.DB().Dialect()); n != 0 {
			sel = sel.Limit(n)
		}
	}
	if q.FirstResult != nil {
		sel = sel.Offset(*q.FirstResult)
	}
	return sel, nil
}

// unboundedLimit is the LIMIT a backend requires before a bare OFFSET, 0 when
// OFFSET may stand alone. bun keeps limits as positive int32 values.
func unboundedLimit(d schema.Dialect) int {
	switch d.Name() {
	case dialect.SQLite, dialect.MySQL:
		return math.MaxInt32
	default:
		return 0
	}
}

// CountQuery returns the number of distinct root entities matching q. model
// only names the entity type. Ordering and pagination are ignored.
func CountQuery(ctx context.Context, pc PersistenceContext, model interface{}, q *filter.Query) (int, error) {
	if reflect.TypeOf(model) == nil {
		return 0, types.Programming("count model cannot be nil")
	}
	// a slice model keeps struct fields out of named argument lookup
	slice := reflect.New(reflect.SliceOf(modelType(model))).Interface()
	b, err := newSelectBuilder(pc, slice, q)
	if err != nil {
		return 0, err
	}
	var n int
	err = b.base().
		ColumnExpr("count(DISTINCT ?.?)", bun.Ident(q.RootAlias), bun.Ident(b.pk)).
		Scan(ctx, &n)
	return n, err
}

type selectBuilder struct {
	pc         PersistenceContext
	db         *bun.DB
	model      interface{}
	q          *filter.Query
	table      string
	pk         string
	positional []interface{}
	joins      []string
}

func newSelectBuilder(pc PersistenceContext, model interface{}, q *filter.Query) (*selectBuilder, error) {
	if q == nil {
		return nil, types.Programming("query cannot be nil")
	}
	typ := reflect.TypeOf(model)
	if typ == nil || typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Slice {
		return nil, types.Programming("select model must be a pointer to a slice, got %T", model)
	}
	table := pc.DB().Table(modelType(model))
	b := &selectBuilder{pc: pc, model: model, q: q, table: table.Name}
	if len(table.PKs) > 0 {
		b.pk = table.PKs[0].Name
	}
	b.db = b.bind(pc.DB())
	if err := b.resolveJoins(); err != nil {
		return nil, err
	}
	return b, nil
}

// bind registers named parameters on a derived db and collects positional
// ones by index.
func (b *selectBuilder) bind(db *bun.DB) *bun.DB {
	for _, p := range b.q.Params {
		v := ParameterValue(p)
		if idx, ok := positionalIndex(p.Key); ok {
			for len(b.positional) <= idx {
				b.positional = append(b.positional, nil)
			}
			b.positional[idx] = v
			continue
		}
		db = db.WithNamedArg(p.Key, v)
	}
	return db
}

func (b *selectBuilder) base() *bun.SelectQuery {
	sel := b.db.NewSelect().
		Conn(b.pc.Conn()).
		Model(b.model).
		ModelTableExpr("? AS ?", bun.Ident(b.table), bun.Ident(b.q.RootAlias))
	for _, j := range b.joins {
		sel = sel.Join(j, b.positional...)
	}
	if b.q.Where != nil {
		sel = sel.Where(b.q.Where.String(), b.positional...)
	}
	return sel
}

// resolveJoins renders every join clause. "<alias>.<Name>" paths are looked up
// in the association registry under the entity bound to <alias>; other paths
// are table names and need an explicit condition.
func (b *selectBuilder) resolveJoins() error {
	entities := map[string]string{b.q.RootAlias: b.q.Entity}
	for _, j := range b.q.Joins {
		var clause string
		parent, name, ok := strings.Cut(j.Path, ".")
		if ok {
			entity, known := entities[parent]
			if !known {
				return types.Programming("join %q refers to unknown alias %q", j.Path, parent)
			}
			a, found := b.pc.Associations().Lookup(entity, name)
			if !found {
				return types.Programming("entity %s has no association %q", entity, name)
			}
			clause = b.ident("? ? AS ? ON ?.? = ?.?",
				bun.Safe(j.Kind.SQL()), bun.Ident(a.Table), bun.Ident(j.Alias),
				bun.Ident(j.Alias), bun.Ident(a.ForeignKey), bun.Ident(parent), bun.Ident(a.LocalKey))
			if j.Condition != "" {
				clause += " AND (" + j.Condition + ")"
			}
			entities[j.Alias] = a.Target
		} else {
			if strings.TrimSpace(j.Condition) == "" {
				return types.Programming("join on table %q needs a condition", j.Path)
			}
			clause = b.ident("? ? AS ?", bun.Safe(j.Kind.SQL()), bun.Ident(j.Path), bun.Ident(j.Alias)) +
				" ON " + j.Condition
			entities[j.Alias] = j.Path
		}
		b.joins = append(b.joins, clause)
	}
	return nil
}

func (b *selectBuilder) ident(query string, args ...interface{}) string {
	return b.db.Formatter().FormatQuery(query, args...)
}

// ParameterValue applies the binding hint of p to its value.
func ParameterValue(p filter.Parameter) interface{} {
	switch p.Type {
	case filter.ParamJSON:
		return types.JSONValue{V: p.Value}
	case filter.ParamArray:
		return pgdialect.Array(p.Value)
	case filter.ParamIn:
		return bun.In(p.Value)
	case filter.ParamIdent:
		return bun.Ident(fmt.Sprint(p.Value))
	case filter.ParamSafe:
		return bun.Safe(fmt.Sprint(p.Value))
	default:
		return p.Value
	}
}

// positionalIndex reports whether key is a positional parameter such as "0".
func positionalIndex(key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(key)
	return n, err == nil
}
