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
	"strconv"
	"strings"

	"github.com/tomoncle/bisna/types"
)

// Query is an immutable snapshot of a Criteria, ready to be materialized by a
// persistence context. Later changes to the Criteria do not affect it.
type Query struct {
	Entity      string
	RootAlias   string
	Select      []string
	Joins       []Join
	Where       Predicate
	Orders      []Order
	Params      []Parameter
	FirstResult *int
	MaxResults  *int
}

// Compile snapshots the criteria. It fails when the criteria has no root
// entity or alias, or when pagination values are negative.
func (c *Criteria) Compile() (*Query, error) {
	if strings.TrimSpace(c.rootEntity) == "" {
		return nil, types.Programming("criteria has no root entity")
	}
	if strings.TrimSpace(c.rootAlias) == "" {
		return nil, types.Programming("criteria for %s has no root alias", c.rootEntity)
	}
	q := &Query{
		Entity:    c.rootEntity,
		RootAlias: c.rootAlias,
		Select:    append([]string(nil), c.selects...),
		Joins:     c.Joins(),
		Orders:    c.Orders(),
		Params:    c.Parameters(),
	}
	for _, j := range q.Joins {
		if strings.TrimSpace(j.Alias) == "" {
			return nil, types.Programming("join %q has no alias", j.Path)
		}
	}
	if c.where != nil {
		q.Where = c.where.clone()
	}
	if c.hasOffset {
		if c.offset < 0 {
			return nil, types.Programming("negative offset %d", c.offset)
		}
		n := c.offset
		q.FirstResult = &n
	}
	if c.hasLimit {
		if c.limit < 0 {
			return nil, types.Programming("negative max results %d", c.limit)
		}
		n := c.limit
		q.MaxResults = &n
	}
	return q, nil
}

// Parameter looks up a binding by key.
func (q *Query) Parameter(key string) (Parameter, bool) {
	key = normalizeKey(key)
	for _, p := range q.Params {
		if p.Key == key {
			return p, true
		}
	}
	return Parameter{}, false
}

// HasJoins reports whether rows may repeat the root entity.
func (q *Query) HasJoins() bool { return len(q.Joins) > 0 }

// String renders the query in a readable object-query form, for logs.
func (q *Query) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.Select, ", "))
	b.WriteString(" FROM ")
	b.WriteString(q.Entity)
	b.WriteString(" ")
	b.WriteString(q.RootAlias)
	for _, j := range q.Joins {
		b.WriteString(" ")
		b.WriteString(j.Kind.SQL())
		b.WriteString(" ")
		b.WriteString(j.Path)
		b.WriteString(" ")
		b.WriteString(j.Alias)
		if j.Condition != "" {
			b.WriteString(" ON ")
			b.WriteString(j.Condition)
		}
	}
	if q.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(q.Where.String())
	}
	if len(q.Orders) > 0 {
		parts := make([]string, len(q.Orders))
		for i, o := range q.Orders {
			parts[i] = o.String()
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if q.MaxResults != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*q.MaxResults))
	}
	if q.FirstResult != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(*q.FirstResult))
	}
	return b.String()
}
