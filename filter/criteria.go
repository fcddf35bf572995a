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

package filter

import (
	"sort"
	"strings"
)

// DefaultAlias is the root alias used when none is given.
const DefaultAlias = "e"

// Join is a registered join clause. Path is either "<parentAlias>.<Association>"
// or a table name, in which case Condition must be set.
type Join struct {
	Kind      JoinKind
	Path      string
	Alias     string
	Condition string
}

// Order is one ordering entry.
type Order struct {
	Field     string
	Direction Direction
}

func (o Order) String() string {
	if o.Direction == DirectionNone {
		return o.Field
	}
	return o.Field + " " + o.Direction.Name()
}

// Parameter is a bound value with an optional encoding hint.
type Parameter struct {
	Key   string
	Value any
	Type  ParamType
}

// Criteria accumulates joins, predicates, ordering, parameters and pagination
// for one root entity. It is not safe for concurrent use.
type Criteria struct {
	rootEntity string
	rootAlias  string
	selects    []string
	joins      []Join
	where      Predicate
	orders     []Order
	params     []Parameter
	paramIndex map[string]int
	offset     int
	hasOffset  bool
	limit      int
	hasLimit   bool
}

// New creates a criteria selecting entity under alias.
func New(entity, alias string) *Criteria {
	c := &Criteria{
		rootEntity: entity,
		rootAlias:  alias,
		paramIndex: make(map[string]int),
	}
	if alias != "" {
		c.selects = []string{alias}
	}
	return c
}

// Expr returns the predicate builder.
func (c *Criteria) Expr() Expr { return Expr{} }

func (c *Criteria) RootAlias() string { return c.rootAlias }

func (c *Criteria) RootEntity() string { return c.rootEntity }

// Join registers a join and adds its alias to the projection.
func (c *Criteria) Join(kind JoinKind, path, alias string) *Criteria {
	return c.JoinOn(kind, path, alias, "")
}

// JoinOn registers a join with an explicit ON condition.
func (c *Criteria) JoinOn(kind JoinKind, path, alias, condition string) *Criteria {
	c.selects = append(c.selects, alias)
	c.joins = append(c.joins, Join{Kind: kind, Path: path, Alias: alias, Condition: condition})
	return c
}

func (c *Criteria) LeftJoin(path, alias string) *Criteria { return c.Join(LeftJoin, path, alias) }

func (c *Criteria) InnerJoin(path, alias string) *Criteria { return c.Join(InnerJoin, path, alias) }

// Joins returns a copy of the registered joins.
func (c *Criteria) Joins() []Join {
	out := make([]Join, len(c.joins))
	copy(out, c.joins)
	return out
}

// Where replaces the restriction. Several predicates form a conjunction;
// no predicate clears the restriction.
func (c *Criteria) Where(preds ...Predicate) *Criteria {
	parts := compact(preds)
	switch len(parts) {
	case 0:
		c.where = nil
	case 1:
		c.where = parts[0]
	default:
		c.where = NewComposite(And, parts...)
	}
	return c
}

// AndWhere adds restrictions as a conjunction with the current one.
func (c *Criteria) AndWhere(preds ...Predicate) *Criteria {
	c.combine(And, preds)
	return c
}

// OrWhere adds restrictions as a disjunction with the current one.
func (c *Criteria) OrWhere(preds ...Predicate) *Criteria {
	c.combine(Or, preds)
	return c
}

func (c *Criteria) combine(logic Logic, preds []Predicate) {
	parts := compact(preds)
	if len(parts) == 0 {
		return
	}
	// extend a composite of the same kind instead of nesting it; the old
	// value may already be shared with a Compile snapshot, so copy it
	if cur, ok := c.where.(*Composite); ok && cur.logic == logic {
		next := cur.clone().(*Composite)
		c.where = next.Add(parts...)
		return
	}
	all := make([]Predicate, 0, len(parts)+1)
	if c.where != nil {
		all = append(all, c.where)
	}
	c.where = NewComposite(logic, append(all, parts...)...)
}

// Restriction returns the current predicate, nil when unrestricted.
func (c *Criteria) Restriction() Predicate { return c.where }

// OrderBy replaces the ordering with a single entry.
func (c *Criteria) OrderBy(field string, dir Direction) *Criteria {
	c.orders = []Order{{Field: field, Direction: dir}}
	return c
}

// AddOrderBy appends an ordering entry.
func (c *Criteria) AddOrderBy(field string, dir Direction) *Criteria {
	c.orders = append(c.orders, Order{Field: field, Direction: dir})
	return c
}

func (c *Criteria) Orders() []Order {
	out := make([]Order, len(c.orders))
	copy(out, c.orders)
	return out
}

// SetParameter binds one value, overwriting an existing binding with the same key.
// A leading ':' or '?' on key is ignored.
func (c *Criteria) SetParameter(key string, value any, typ ...ParamType) *Criteria {
	p := Parameter{Key: normalizeKey(key), Value: value}
	if len(typ) > 0 {
		p.Type = typ[0]
	}
	if i, ok := c.paramIndex[p.Key]; ok {
		c.params[i] = p
		return c
	}
	c.paramIndex[p.Key] = len(c.params)
	c.params = append(c.params, p)
	return c
}

// SetParameters binds every key of params. Bindings whose keys are not in
// params are kept. New keys are appended in sorted key order.
func (c *Criteria) SetParameters(params map[string]any, paramTypes map[string]ParamType) *Criteria {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		typ, ok := paramTypes[k]
		if !ok {
			typ = paramTypes[normalizeKey(k)]
		}
		c.SetParameter(k, params[k], typ)
	}
	return c
}

// Parameter returns the binding for key.
func (c *Criteria) Parameter(key string) (Parameter, bool) {
	i, ok := c.paramIndex[normalizeKey(key)]
	if !ok {
		return Parameter{}, false
	}
	return c.params[i], true
}

// Parameters returns all bindings in insertion order.
func (c *Criteria) Parameters() []Parameter {
	out := make([]Parameter, len(c.params))
	copy(out, c.params)
	return out
}

// SetOffset sets the number of leading results to skip.
func (c *Criteria) SetOffset(n int) *Criteria {
	c.offset, c.hasOffset = n, true
	return c
}

func (c *Criteria) UnsetOffset() *Criteria {
	c.offset, c.hasOffset = 0, false
	return c
}

func (c *Criteria) Offset() (int, bool) { return c.offset, c.hasOffset }

// SetMaxResults caps the number of results.
func (c *Criteria) SetMaxResults(n int) *Criteria {
	c.limit, c.hasLimit = n, true
	return c
}

func (c *Criteria) UnsetMaxResults() *Criteria {
	c.limit, c.hasLimit = 0, false
	return c
}

func (c *Criteria) MaxResults() (int, bool) { return c.limit, c.hasLimit }

func normalizeKey(key string) string {
	return strings.TrimLeft(strings.TrimSpace(key), ":?")
}

func compact(preds []Predicate) []Predicate {
	out := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if !isEmpty(p) {
			out = append(out, p)
		}
	}
	return out
}
