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

package bisna

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomoncle/bisna/database"
	"github.com/tomoncle/bisna/filter"
	"github.com/tomoncle/bisna/repository"
	"github.com/tomoncle/bisna/types"
)

// EventException is the event name a Notifier receives for every failure.
const EventException = "exception"

// Notifier observes failed service operations. err is the returned
// *types.PersistenceFailure, or the recovered panic of an aborted write.
type Notifier interface {
	Notify(ctx context.Context, event string, err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event string, err error)

func (f NotifierFunc) Notify(ctx context.Context, event string, err error) { f(ctx, event, err) }

// Contexts selects the persistence context used for reads and for writes.
// A nil field falls back to the other one.
type Contexts struct {
	Read  database.PersistenceContext
	Write database.PersistenceContext
}

// ContextsFrom builds fresh read and write contexts from f. Reads go to the
// replica when one is configured.
func ContextsFrom(f *database.Factory) Contexts {
	return Contexts{Read: f.NewReadContext(), Write: f.NewWriteContext()}
}

// Service runs transactional writes and reads for one entity type.
type Service[T any, ID comparable] interface {
	// Save persists entity in its own transaction.
	Save(ctx context.Context, entity *T) error

	// Delete removes the entity with the given identifier in its own transaction.
	Delete(ctx context.Context, id ID) error

	// Get returns the entity or an error matching types.ErrNotFound.
	Get(ctx context.Context, id ID) (*T, error)

	// Filter returns the entities matching c; nil selects every entity.
	Filter(ctx context.Context, c *filter.Criteria) ([]*T, error)

	// Count returns the number of entities matching c.
	Count(ctx context.Context, c *filter.Criteria) (int, error)

	// Page returns one page of the entities matching c.
	Page(ctx context.Context, c *filter.Criteria, page *types.PageRequest) (*types.Pagination[T], error)

	// BuildFilterCriteria returns criteria over the service entity; "" means "e".
	BuildFilterCriteria(alias string) *filter.Criteria

	// EntityName is the name used in failure messages and events.
	EntityName() string
}

type options struct {
	notifier Notifier
	logger   database.Logger
	entity   string
}

// Option configures NewService.
type Option func(*options)

// WithNotifier sets the observer told about failed operations.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithLogger replaces the default logger; nil is ignored.
func WithLogger(l database.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEntityName overrides the entity name used in criteria and failures.
// It defaults to the struct name of T.
func WithEntityName(name string) Option {
	return func(o *options) { o.entity = name }
}

type baseServiceImpl[T any, ID comparable] struct {
	write     database.PersistenceContext
	readRepo  repository.Repository[T, ID]
	writeRepo repository.Repository[T, ID]
	notifier  Notifier
	logger    database.Logger
	entity    string
}

// NewService binds a service for T to the given contexts.
func NewService[T any, ID comparable](contexts Contexts, opts ...Option) (Service[T, ID], error) {
	read, write := contexts.Read, contexts.Write
	if read == nil {
		read = write
	}
	if write == nil {
		write = read
	}
	if read == nil {
		return nil, types.Programming("service needs a read or a write persistence context")
	}
	o := &options{logger: database.GetLogger()}
	for _, opt := range opts {
		opt(o)
	}

	readRepo, err := repository.For[T, ID](read)
	if err != nil {
		return nil, err
	}
	writeRepo, err := repository.For[T, ID](write)
	if err != nil {
		return nil, err
	}
	if o.entity == "" {
		o.entity = readRepo.EntityName()
	}
	return &baseServiceImpl[T, ID]{
		write:     write,
		readRepo:  readRepo,
		writeRepo: writeRepo,
		notifier:  o.notifier,
		logger:    o.logger,
		entity:    o.entity,
	}, nil
}

func (s *baseServiceImpl[T, ID]) EntityName() string { return s.entity }

func (s *baseServiceImpl[T, ID]) BuildFilterCriteria(alias string) *filter.Criteria {
	if alias == "" {
		alias = filter.DefaultAlias
	}
	return filter.New(s.entity, alias)
}

func (s *baseServiceImpl[T, ID]) Save(ctx context.Context, entity *T) error {
	if entity == nil {
		return types.Programming("cannot save a nil %s", s.entity)
	}
	id, hasID := types.IdentityOf[ID](any(entity).(types.Identifier[ID]))
	err := s.transactional(ctx, func(repo repository.Repository[T, ID]) error {
		return repo.Save(entity)
	})
	if err != nil {
		return s.fail(ctx, types.NewSaveFailure(s.entity, id, hasID, err))
	}
	return nil
}

func (s *baseServiceImpl[T, ID]) Delete(ctx context.Context, id ID) error {
	err := s.transactional(ctx, func(repo repository.Repository[T, ID]) error {
		return repo.Delete(id)
	})
	if err != nil {
		return s.fail(ctx, types.NewDeleteFailure(s.entity, id, err))
	}
	return nil
}

func (s *baseServiceImpl[T, ID]) Get(ctx context.Context, id ID) (*T, error) {
	entity, ok, err := s.readRepo.Find(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, types.NewGetFailure(s.entity, id, err))
	}
	if !ok {
		return nil, fmt.Errorf("%s with ID %v: %w", s.entity, id, types.ErrNotFound)
	}
	return entity, nil
}

func (s *baseServiceImpl[T, ID]) Filter(ctx context.Context, c *filter.Criteria) ([]*T, error) {
	if c == nil {
		c = s.BuildFilterCriteria(filter.DefaultAlias)
	}
	entities, err := s.readRepo.Filter(ctx, c)
	if err != nil {
		return nil, s.fail(ctx, types.NewQueryFailure(types.OpFilter, s.entity, err))
	}
	return entities, nil
}

func (s *baseServiceImpl[T, ID]) Count(ctx context.Context, c *filter.Criteria) (int, error) {
	if c == nil {
		c = s.BuildFilterCriteria(filter.DefaultAlias)
	}
	n, err := s.readRepo.Count(ctx, c)
	if err != nil {
		return 0, s.fail(ctx, types.NewQueryFailure(types.OpCount, s.entity, err))
	}
	return n, nil
}

func (s *baseServiceImpl[T, ID]) Page(ctx context.Context, c *filter.Criteria, page *types.PageRequest) (*types.Pagination[T], error) {
	if c == nil {
		c = s.BuildFilterCriteria(filter.DefaultAlias)
	}
	p, err := s.readRepo.Page(ctx, c, page)
	if err != nil {
		return nil, s.fail(ctx, types.NewQueryFailure(types.OpPage, s.entity, err))
	}
	return p, nil
}

// transactional runs op, flush and commit inside a transaction on the write
// context. Any failure after Begin rolls back once. A panic rolls back, is
// reported, and propagates.
func (s *baseServiceImpl[T, ID]) transactional(ctx context.Context, op func(repository.Repository[T, ID]) error) (err error) {
	pc := s.write
	if err = pc.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		cause := fmt.Errorf("panic: %v", p)
		if rbErr := pc.Rollback(ctx); rbErr != nil {
			cause = errors.Join(cause, rbErr)
		}
		s.logger.Error("transaction aborted by panic", "entity", s.entity, "error", cause)
		s.notify(ctx, cause)
		panic(p)
	}()

	if err = op(s.writeRepo); err == nil {
		if err = pc.Flush(ctx); err == nil {
			err = pc.Commit(ctx)
		}
	}
	if err != nil {
		if rbErr := pc.Rollback(ctx); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
	}
	return err
}

func (s *baseServiceImpl[T, ID]) fail(ctx context.Context, pf *types.PersistenceFailure) error {
	pf.Reason = database.ClassifyError(pf.Cause)
	s.logger.Error(pf.Message, "entity", pf.Entity, "operation", string(pf.Op), "reason", pf.Reason, "error", pf.Cause)
	s.notify(ctx, pf)
	return pf
}

func (s *baseServiceImpl[T, ID]) notify(ctx context.Context, err error) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, EventException, err)
	}
}
