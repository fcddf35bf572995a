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
	"reflect"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/bisna/types"
)

func TestEntityManagerFlushWithoutTransaction(t *testing.T) {
	db := newTestDB(t)
	em := NewEntityManager(db)
	ctx := context.Background()

	u := &User{Name: "alice"}
	require.NoError(t, em.Persist(u))
	assert.Equal(t, int64(0), u.ID, "identifier is assigned by flush")
	assert.Equal(t, 1, em.Pending())

	require.NoError(t, em.Flush(ctx))
	assert.NotZero(t, u.ID)
	assert.Equal(t, 0, em.Pending())
	assert.Equal(t, 1, countRows(t, db, (*User)(nil)))
}

func TestEntityManagerRollbackRestoresIdentity(t *testing.T) {
	db := newTestDB(t)
	em := NewEntityManager(db)
	ctx := context.Background()

	require.NoError(t, em.Begin(ctx))
	assert.True(t, em.InTransaction())

	u := &User{Name: "bob"}
	require.NoError(t, em.Persist(u))
	require.NoError(t, em.Flush(ctx))
	assert.NotZero(t, u.ID)

	require.NoError(t, em.Rollback(ctx))
	assert.False(t, em.InTransaction())
	assert.Equal(t, int64(0), u.ID)
	assert.Equal(t, "bob", u.Name)
	assert.Equal(t, 0, countRows(t, db, (*User)(nil)))
}

func TestEntityManagerFailedFlushRestoresIdentity(t *testing.T) {
	db := newTestDB(t)
	em := NewEntityManager(db)
	ctx := context.Background()

	first := &User{Name: "a", Email: "same@example.com"}
	second := &User{Name: "b", Email: "same@example.com"}
	require.NoError(t, em.Persist(first))
	require.NoError(t, em.Persist(second))

	err := em.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, "duplicate_key", ClassifyError(err))
	assert.Equal(t, int64(0), first.ID)
	assert.Equal(t, int64(0), second.ID)
	assert.Equal(t, 0, countRows(t, db, (*User)(nil)))
}

func TestEntityManagerTransactionMisuse(t *testing.T) {
	em := NewEntityManager(newTestDB(t))
	ctx := context.Background()

	assert.True(t, types.IsProgrammingError(em.Commit(ctx)))
	assert.True(t, types.IsProgrammingError(em.Rollback(ctx)))

	require.NoError(t, em.Begin(ctx))
	assert.True(t, types.IsProgrammingError(em.Begin(ctx)))
	require.NoError(t, em.Commit(ctx))
	assert.False(t, em.InTransaction())
}

func TestEntityManagerCommitFlushesPending(t *testing.T) {
	db := newTestDB(t)
	em := NewEntityManager(db)
	ctx := context.Background()

	require.NoError(t, em.Begin(ctx))
	u := &User{Name: "carol"}
	require.NoError(t, em.Persist(u))
	require.NoError(t, em.Commit(ctx))

	assert.NotZero(t, u.ID)
	assert.Equal(t, 1, countRows(t, db, (*User)(nil)))
}

func TestEntityManagerSaveWithIdentity(t *testing.T) {
	db := newTestDB(t)
	em := NewEntityManager(db)
	ctx := context.Background()

	u := &User{Name: "dave"}
	require.NoError(t, em.Persist(u))
	require.NoError(t, em.Flush(ctx))

	u.Name = "david"
	require.NoError(t, em.Persist(u))
	require.NoError(t, em.Flush(ctx))

	stored := new(User)
	require.NoError(t, db.NewSelect().Model(stored).Where("id = ?", u.ID).Scan(ctx))
	assert.Equal(t, "david", stored.Name)

	// an identifier without a row is inserted
	ghost := &User{ID: 500, Name: "ghost"}
	require.NoError(t, em.Persist(ghost))
	require.NoError(t, em.Flush(ctx))
	assert.Equal(t, 2, countRows(t, db, (*User)(nil)))
}

func TestEntityManagerRemoveReferenceWithoutSelect(t *testing.T) {
	db := newTestDB(t)
	hook := &recordingHook{}
	db.AddQueryHook(hook)
	em := NewEntityManager(db)
	ctx := context.Background()

	u := &User{Name: "erin"}
	require.NoError(t, em.Persist(u))
	require.NoError(t, em.Flush(ctx))
	hook.reset()

	ref, err := em.Reference((*User)(nil), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "User#"+strconv.FormatInt(u.ID, 10), ref.String())
	require.NoError(t, em.Remove(ref))
	require.NoError(t, em.Flush(ctx))

	assert.Equal(t, 0, hook.count("SELECT"))
	assert.Equal(t, 1, hook.count("DELETE"))
	assert.Equal(t, 0, countRows(t, db, (*User)(nil)))

	// removing a missing row is not an error
	missing, err := em.Reference(&User{}, int64(42))
	require.NoError(t, err)
	require.NoError(t, em.Remove(missing))
	require.NoError(t, em.Flush(ctx))
}

func TestEntityManagerRemoveEntity(t *testing.T) {
	db := newTestDB(t)
	em := NewEntityManager(db)
	ctx := context.Background()

	u := &User{Name: "frank"}
	require.NoError(t, em.Persist(u))
	require.NoError(t, em.Flush(ctx))

	require.NoError(t, em.Remove(u))
	require.NoError(t, em.Flush(ctx))
	assert.Equal(t, 0, countRows(t, db, (*User)(nil)))
}

func TestEntityManagerRejectsInvalidEntities(t *testing.T) {
	em := NewEntityManager(newTestDB(t))

	var nilUser *User
	assert.True(t, types.IsProgrammingError(em.Persist(nilUser)))
	assert.True(t, types.IsProgrammingError(em.Persist(User{})))
	assert.True(t, types.IsProgrammingError(em.Remove(nil)))

	type noID struct{ Name string }
	assert.True(t, types.IsProgrammingError(em.Persist(&noID{})))

	_, err := em.Reference(nil, 1)
	assert.True(t, types.IsProgrammingError(err))
}

func TestEntityManagerRepositoryCache(t *testing.T) {
	em := NewEntityManager(newTestDB(t))
	typ := reflect.TypeOf(User{})

	builds := 0
	build := func() interface{} {
		builds++
		return &struct{ n int }{n: builds}
	}
	first := em.Repository(typ, build)
	second := em.Repository(typ, build)
	assert.Same(t, first, second)
	assert.Equal(t, 1, builds)

	em.Repository(reflect.TypeOf(Phonenumber{}), build)
	assert.Equal(t, 2, builds)
}

func TestEntityManagerConn(t *testing.T) {
	db := newTestDB(t)
	em := NewEntityManager(db)
	ctx := context.Background()

	assert.Equal(t, db, em.Conn())
	require.NoError(t, em.Begin(ctx))
	_, isDB := em.Conn().(*bun.DB)
	assert.False(t, isDB)
	require.NoError(t, em.Rollback(ctx))
}
