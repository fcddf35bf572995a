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
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/uptrace/bun"

	"github.com/tomoncle/bisna/types"
)

// PersistenceContext is the unit-of-work backend repositories and services
// run against. Writes are queued by Persist and Remove and reach the database
// on Flush. Implementations are not safe for concurrent use.
type PersistenceContext interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Flush(ctx context.Context) error
	InTransaction() bool

	// Persist schedules an insert, or an update when the entity carries an identifier.
	Persist(entity interface{}) error
	// Remove schedules a delete of an entity pointer or a *Ref.
	Remove(entity interface{}) error
	// Reference returns a handle to the stored row of model's type with the
	// given identifier. Nothing is read.
	Reference(model interface{}, id interface{}) (*Ref, error)

	DB() *bun.DB
	// Conn is the active transaction, or the database when none is active.
	Conn() bun.IDB
	Associations() *Associations
	// Repository returns the cached value for typ, calling build on first use.
	Repository(typ reflect.Type, build func() interface{}) interface{}
}

// Ref points at a stored entity by primary key.
type Ref struct {
	Type reflect.Type
	ID   interface{}
	pk   string
}

func (r *Ref) String() string {
	return fmt.Sprintf("%s#%v", r.Type.Name(), r.ID)
}

type opKind int

const (
	opInsert opKind = iota
	opSave
	opDelete
	opDeleteRef
)

type pendingOp struct {
	kind  opKind
	model interface{}
	ref   *Ref
}

// snapshot is a copy of an entity taken before it was inserted.
type snapshot struct {
	target reflect.Value
	saved  reflect.Value
}

// EntityManager is the bun backed PersistenceContext. Use one per request or
// goroutine.
type EntityManager struct {
	db           *bun.DB
	tx           *bun.Tx
	pending      []pendingOp
	snapshots    []snapshot
	repositories map[reflect.Type]interface{}
	associations *Associations
	logger       Logger
}

var _ PersistenceContext = (*EntityManager)(nil)

type EntityManagerOption func(*EntityManager)

func WithAssociations(a *Associations) EntityManagerOption {
	return func(em *EntityManager) { em.associations = a }
}

func WithEntityManagerLogger(l Logger) EntityManagerOption {
	return func(em *EntityManager) {
		if l != nil {
			em.logger = l
		}
	}
}

func NewEntityManager(db *bun.DB, opts ...EntityManagerOption) *EntityManager {
	em := &EntityManager{
		db:           db,
		repositories: make(map[reflect.Type]interface{}),
		logger:       NopLogger(),
	}
	for _, opt := range opts {
		opt(em)
	}
	if em.associations == nil {
		em.associations, _ = NewAssociations()
	}
	return em
}

func (em *EntityManager) DB() *bun.DB { return em.db }

func (em *EntityManager) Conn() bun.IDB {
	if em.tx != nil {
		return *em.tx
	}
	return em.db
}

func (em *EntityManager) Associations() *Associations { return em.associations }

func (em *EntityManager) InTransaction() bool { return em.tx != nil }

func (em *EntityManager) Begin(ctx context.Context) error {
	if em.tx != nil {
		return types.Programming("a transaction is already active")
	}
	tx, err := em.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	em.tx = &tx
	return nil
}

// Commit flushes pending work and commits. On failure the transaction stays
// registered so the caller can still Rollback.
func (em *EntityManager) Commit(ctx context.Context) error {
	if em.tx == nil {
		return types.Programming("no active transaction to commit")
	}
	if err := em.Flush(ctx); err != nil {
		return err
	}
	if err := em.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	em.tx = nil
	em.snapshots = nil
	return nil
}

// Rollback aborts the transaction, drops pending work and restores entities
// inserted since Begin to their state before the insert.
func (em *EntityManager) Rollback(ctx context.Context) error {
	if em.tx == nil {
		return types.Programming("no active transaction to roll back")
	}
	err := em.tx.Rollback()
	em.tx = nil
	em.pending = nil
	em.restore(0)
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

func (em *EntityManager) Persist(entity interface{}) error {
	v, err := entityValue(entity)
	if err != nil {
		return err
	}
	hasID, err := types.HasIdentity(entity)
	if err != nil {
		return err
	}
	kind := opInsert
	if hasID {
		kind = opSave
	}
	em.pending = append(em.pending, pendingOp{kind: kind, model: v.Interface()})
	return nil
}

func (em *EntityManager) Remove(entity interface{}) error {
	if ref, ok := entity.(*Ref); ok {
		if ref == nil {
			return types.Programming("cannot remove a nil reference")
		}
		em.pending = append(em.pending, pendingOp{kind: opDeleteRef, ref: ref})
		return nil
	}
	v, err := entityValue(entity)
	if err != nil {
		return err
	}
	em.pending = append(em.pending, pendingOp{kind: opDelete, model: v.Interface()})
	return nil
}

func (em *EntityManager) Reference(model interface{}, id interface{}) (*Ref, error) {
	typ := reflect.TypeOf(model)
	if typ == nil {
		return nil, types.Programming("reference needs a model type")
	}
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, types.Programming("reference model %s is not a struct", typ)
	}
	table := em.db.Table(typ)
	if len(table.PKs) != 1 {
		return nil, types.Programming("%s must have exactly one primary key, found %d", typ.Name(), len(table.PKs))
	}
	return &Ref{Type: typ, ID: id, pk: table.PKs[0].Name}, nil
}

// Pending reports the number of queued operations.
func (em *EntityManager) Pending() int { return len(em.pending) }

// Clear drops queued operations without executing them.
func (em *EntityManager) Clear() {
	em.pending = nil
}

// Flush executes queued operations in order. Without an active transaction
// they run in a private one; if it fails, entities inserted by it are restored.
func (em *EntityManager) Flush(ctx context.Context) error {
	if len(em.pending) == 0 {
		return nil
	}
	ops := em.pending
	em.pending = nil

	if em.tx != nil {
		return em.execute(ctx, *em.tx, ops)
	}

	mark := len(em.snapshots)
	err := em.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return em.execute(ctx, tx, ops)
	})
	if err != nil {
		em.restore(mark)
		return err
	}
	em.snapshots = em.snapshots[:mark]
	return nil
}

func (em *EntityManager) execute(ctx context.Context, tx bun.Tx, ops []pendingOp) error {
	for _, op := range ops {
		var err error
		switch op.kind {
		case opInsert:
			err = em.insert(ctx, tx, op.model)
		case opSave:
			err = em.update(ctx, tx, op.model)
		case opDelete:
			_, err = tx.NewDelete().Model(op.model).WherePK().Exec(ctx)
		case opDeleteRef:
			_, err = tx.NewDelete().
				Model(reflect.Zero(reflect.PointerTo(op.ref.Type)).Interface()).
				Where("? = ?", bun.Ident(op.ref.pk), op.ref.ID).
				Exec(ctx)
		}
		if err != nil {
			em.logger.Debug("flush failed", "model", types.TypeName(opModel(op)), "error", err)
			return err
		}
	}
	return nil
}

func (em *EntityManager) insert(ctx context.Context, tx bun.Tx, model interface{}) error {
	v := reflect.ValueOf(model)
	saved := reflect.New(v.Elem().Type())
	saved.Elem().Set(v.Elem())
	em.snapshots = append(em.snapshots, snapshot{target: v, saved: saved})
	_, err := tx.NewInsert().Model(model).Exec(ctx)
	return err
}

// update writes an entity that carries an identifier, inserting it when no
// row has that primary key.
func (em *EntityManager) update(ctx context.Context, tx bun.Tx, model interface{}) error {
	res, err := tx.NewUpdate().Model(model).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	// mysql reports 0 affected rows when nothing changed
	exists, err := tx.NewSelect().Model(model).WherePK().Exists(ctx)
	if err != nil || exists {
		return err
	}
	return em.insert(ctx, tx, model)
}

// restore rolls back entity state for snapshots taken after mark, newest first.
func (em *EntityManager) restore(mark int) {
	for i := len(em.snapshots) - 1; i >= mark; i-- {
		s := em.snapshots[i]
		s.target.Elem().Set(s.saved.Elem())
	}
	em.snapshots = em.snapshots[:mark]
}

func (em *EntityManager) Repository(typ reflect.Type, build func() interface{}) interface{} {
	if repo, ok := em.repositories[typ]; ok {
		return repo
	}
	repo := build()
	em.repositories[typ] = repo
	return repo
}

func entityValue(entity interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, types.Programming("entity must be a non-nil pointer, got %T", entity)
	}
	if v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, types.Programming("entity must point to a struct, got %T", entity)
	}
	return v, nil
}

func opModel(op pendingOp) interface{} {
	if op.ref != nil {
		return reflect.Zero(reflect.PointerTo(op.ref.Type)).Interface()
	}
	return op.model
}
