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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/tomoncle/bisna/filter"
	"github.com/tomoncle/bisna/types"
)

type fixture struct {
	em                *EntityManager
	alice, bob, carol *User
}

func seed(t *testing.T) *fixture {
	t.Helper()
	em := NewEntityManager(newTestDB(t), WithAssociations(testAssociations(t)))
	ctx := context.Background()

	f := &fixture{
		em:    em,
		alice: &User{Name: "alice", Active: true},
		bob:   &User{Name: "bob", Active: true},
		carol: &User{Name: "carol"},
	}
	for _, u := range []*User{f.alice, f.bob, f.carol} {
		require.NoError(t, em.Persist(u))
	}
	require.NoError(t, em.Flush(ctx))

	for _, p := range []*Phonenumber{
		{UserID: f.alice.ID, Number: "555-0001"},
		{UserID: f.alice.ID, Number: "555-0002"},
		{UserID: f.carol.ID, Number: "555-0003"},
	} {
		require.NoError(t, em.Persist(p))
	}
	require.NoError(t, em.Flush(ctx))
	return f
}

func compile(t *testing.T, c *filter.Criteria) *filter.Query {
	t.Helper()
	q, err := c.Compile()
	require.NoError(t, err)
	return q
}

func names(users []User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.Name
	}
	return out
}

func TestSelectQueryJoinScenario(t *testing.T) {
	f := seed(t)
	q := compile(t, filter.New("User", "u").
		LeftJoin("u.Phonenumbers", "p").
		Where(filter.Raw("u.active = 1")).
		SetMaxResults(10))

	var users []User
	sel, err := SelectQuery(f.em, &users, q)
	require.NoError(t, err)

	sql := sel.String()
	assert.Contains(t, sql, `FROM "users" AS "u"`)
	assert.Contains(t, sql, `LEFT JOIN "phonenumbers" AS "p" ON "p"."user_id" = "u"."id"`)
	assert.Contains(t, sql, "LIMIT 10")

	require.NoError(t, sel.Scan(context.Background()))
	// rows repeat per joined phone number
	assert.ElementsMatch(t, []string{"alice", "alice", "bob"}, names(users))
}

func TestSelectQueryParameters(t *testing.T) {
	f := seed(t)
	ctx := context.Background()
	e := filter.Expr{}

	cases := []struct {
		name     string
		criteria *filter.Criteria
		want     []string
	}{
		{
			name: "named",
			criteria: filter.New("User", "u").
				Where(e.Eq("u.name", "?name")).
				SetParameter(":name", "bob"),
			want: []string{"bob"},
		},
		{
			name: "positional",
			criteria: filter.New("User", "u").
				Where(e.Gt("u.id", "?0")).
				SetParameter("0", f.alice.ID),
			want: []string{"bob", "carol"},
		},
		{
			name: "in list",
			criteria: filter.New("User", "u").
				Where(e.In("u.id", "?ids")).
				SetParameter("ids", []int64{f.alice.ID, f.carol.ID}, filter.ParamIn),
			want: []string{"alice", "carol"},
		},
		{
			name: "or composite",
			criteria: filter.New("User", "u").
				Where(e.Eq("u.name", "?a")).
				OrWhere(e.Eq("u.name", "?b")).
				SetParameters(map[string]any{"a": "alice", "b": "carol"}, nil),
			want: []string{"alice", "carol"},
		},
		{
			name: "table join with condition",
			criteria: filter.New("User", "u").
				JoinOn(filter.InnerJoin, "phonenumbers", "pn", "pn.user_id = u.id").
				Where(e.Eq("pn.number", "?n")).
				SetParameter("n", "555-0003"),
			want: []string{"carol"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var users []User
			sel, err := SelectQuery(f.em, &users, compile(t, tc.criteria))
			require.NoError(t, err)
			require.NoError(t, sel.Scan(ctx))
			assert.ElementsMatch(t, tc.want, names(users))
		})
	}
}

func TestSelectQueryOrderOffsetLimit(t *testing.T) {
	f := seed(t)
	q := compile(t, filter.New("User", "u").
		OrderBy("u.id", filter.Desc).
		SetOffset(1).
		SetMaxResults(1))

	var users []User
	sel, err := SelectQuery(f.em, &users, q)
	require.NoError(t, err)
	require.NoError(t, sel.Scan(context.Background()))
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Name)
}

func TestSelectQueryOffsetWithoutLimit(t *testing.T) {
	f := seed(t)
	q := compile(t, filter.New("User", "u").
		OrderBy("u.id", filter.Asc).
		SetOffset(1))

	var users []User
	sel, err := SelectQuery(f.em, &users, q)
	require.NoError(t, err)
	assert.Contains(t, sel.String(), "LIMIT 2147483647 OFFSET 1")
	require.NoError(t, sel.Scan(context.Background()))
	assert.Equal(t, []string{"bob", "carol"}, names(users))
}

func TestSelectQueryZeroMaxResults(t *testing.T) {
	f := seed(t)
	q := compile(t, filter.New("User", "u").SetMaxResults(0))

	var users []User
	sel, err := SelectQuery(f.em, &users, q)
	require.NoError(t, err)
	require.NoError(t, sel.Scan(context.Background()))
	assert.Empty(t, users)
}

func TestUnboundedLimit(t *testing.T) {
	assert.Equal(t, math.MaxInt32, unboundedLimit(sqlitedialect.New()))
	assert.Equal(t, math.MaxInt32, unboundedLimit(mysqldialect.New()))
	assert.Zero(t, unboundedLimit(pgdialect.New()))
}

func TestSelectQueryReverseAssociation(t *testing.T) {
	f := seed(t)
	q := compile(t, filter.New("Phonenumber", "p").
		InnerJoin("p.User", "u").
		Where(filter.Raw("u.name = ?name")).
		SetParameter("name", "alice").
		OrderBy("p.number", filter.Asc))

	var phones []Phonenumber
	sel, err := SelectQuery(f.em, &phones, q)
	require.NoError(t, err)
	require.NoError(t, sel.Scan(context.Background()))
	require.Len(t, phones, 2)
	assert.Equal(t, "555-0001", phones[0].Number)
}

func TestSelectQueryRunsInActiveTransaction(t *testing.T) {
	f := seed(t)
	ctx := context.Background()
	require.NoError(t, f.em.Begin(ctx))
	defer func() { _ = f.em.Rollback(ctx) }()

	require.NoError(t, f.em.Persist(&User{Name: "dave"}))
	require.NoError(t, f.em.Flush(ctx))

	var users []User
	sel, err := SelectQuery(f.em, &users, compile(t, filter.New("User", "u")))
	require.NoError(t, err)
	require.NoError(t, sel.Scan(ctx))
	assert.Len(t, users, 4)
}

func TestCountQueryDistinctRoots(t *testing.T) {
	f := seed(t)
	ctx := context.Background()

	n, err := CountQuery(ctx, f.em, (*User)(nil), compile(t, filter.New("User", "u").InnerJoin("u.Phonenumbers", "p")))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = CountQuery(ctx, f.em, (*User)(nil), compile(t, filter.New("User", "u").
		Where(filter.Raw("u.active = 1")).
		SetMaxResults(1)))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSelectQueryJoinErrors(t *testing.T) {
	f := seed(t)
	var users []User

	for _, c := range []*filter.Criteria{
		filter.New("User", "u").LeftJoin("u.Groups", "g"),
		filter.New("User", "u").LeftJoin("x.Phonenumbers", "p"),
		filter.New("User", "u").LeftJoin("phonenumbers", "p"),
	} {
		_, err := SelectQuery(f.em, &users, compile(t, c))
		assert.True(t, types.IsProgrammingError(err), c.Joins()[0].Path)
	}

	_, err := SelectQuery(f.em, &users, nil)
	assert.True(t, types.IsProgrammingError(err))
	_, err = SelectQuery(f.em, users, compile(t, filter.New("User", "u")))
	assert.True(t, types.IsProgrammingError(err))
}

func TestParameterValue(t *testing.T) {
	assert.Equal(t, "x", ParameterValue(filter.Parameter{Value: "x"}))
	assert.IsType(t, types.JSONValue{}, ParameterValue(filter.Parameter{Value: map[string]int{"a": 1}, Type: filter.ParamJSON}))
	assert.Equal(t, bun.Ident("users"), ParameterValue(filter.Parameter{Value: "users", Type: filter.ParamIdent}))
	assert.Equal(t, bun.Safe("NOW()"), ParameterValue(filter.Parameter{Value: "NOW()", Type: filter.ParamSafe}))

	idx, ok := positionalIndex("12")
	assert.True(t, ok)
	assert.Equal(t, 12, idx)
	_, ok = positionalIndex("id")
	assert.False(t, ok)
}
