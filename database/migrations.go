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
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"github.com/tomoncle/bisna/utils"
)

// Migration is an applied migration record.
type Migration struct {
	bun.BaseModel `bun:"table:bisna_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version with up/down functions.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
	Down        MigrationFunc
}

// MigrationManager applies versioned migrations and records them in bisna_migrations.
type MigrationManager struct {
	db           *bun.DB
	logger       Logger
	registry     *EntityRegistry
	associations *Associations
	foreignKeys  bool
	extra        []MigrationItem
}

type MigrationOption func(*MigrationManager)

// WithEntityRegistry replaces the default registry the base migration reads.
func WithEntityRegistry(r *EntityRegistry) MigrationOption {
	return func(mm *MigrationManager) { mm.registry = r }
}

// WithForeignKeys adds a migration creating constraints for associations
// that declare a referential action.
func WithForeignKeys(a *Associations) MigrationOption {
	return func(mm *MigrationManager) {
		mm.associations = a
		mm.foreignKeys = a != nil
	}
}

// WithMigrations appends application migrations.
func WithMigrations(items ...MigrationItem) MigrationOption {
	return func(mm *MigrationManager) { mm.extra = append(mm.extra, items...) }
}

func NewMigrationManager(db *bun.DB, logger Logger, opts ...MigrationOption) *MigrationManager {
	if logger == nil {
		logger = NopLogger()
	}
	mm := &MigrationManager{
		db:       db,
		logger:   logger,
		registry: DefaultEntityRegistry(),
	}
	for _, opt := range opts {
		opt(mm)
	}
	return mm
}

// RunMigrations creates the tracking table if needed and executes pending
// migrations in ascending version order, each in its own transaction.
// Statements are not logged unless BISNA_SQL_MIGRATION is true.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if !utils.EnvDefaultBool("BISNA_SQL_MIGRATION", false) {
		SetQuerySilent(true)
		defer SetQuerySilent(false)
	}

	if _, err := mm.db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range mm.migrations() {
		if err := mm.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
	}

	mm.logger.Info("database migrations completed")
	return nil
}

func (mm *MigrationManager) migrations() []MigrationItem {
	items := []MigrationItem{
		{
			Version:     "001",
			Name:        "create_entity_tables",
			Description: "Create tables for registered entities",
			Up:          mm.createEntityTables,
			Down:        mm.dropEntityTables,
		},
	}
	if mm.foreignKeys {
		items = append(items, MigrationItem{
			Version:     "002",
			Name:        "add_association_foreign_keys",
			Description: "Add foreign keys declared by associations",
			Up:          mm.addForeignKeys,
		})
	}
	items = append(items, mm.extra...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Version < items[j].Version
	})
	return items
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	start := time.Now()
	err = mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := migration.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&Migration{
			Version:     migration.Version,
			Name:        migration.Name,
			AppliedAt:   time.Now(),
			Description: migration.Description,
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	mm.logger.Info("migration applied", "version", migration.Version, "name", migration.Name, "took", utils.Since(start))
	return nil
}

func (mm *MigrationManager) createEntityTables(ctx context.Context, db bun.IDB) error {
	for _, model := range mm.registry.Instances() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %s: %w", getModelName(model), err)
		}
	}
	return nil
}

func (mm *MigrationManager) dropEntityTables(ctx context.Context, db bun.IDB) error {
	models := mm.registry.Instances()
	for i := len(models) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", getModelName(models[i]), err)
		}
	}
	return nil
}

func (mm *MigrationManager) addForeignKeys(ctx context.Context, db bun.IDB) error {
	tables := make(map[string]string)
	for _, model := range mm.registry.Instances() {
		tables[getModelName(model)] = mm.db.Table(modelType(model)).Name
	}
	constraints := mm.associations.ForeignKeys(func(entity string) (string, bool) {
		t, ok := tables[entity]
		return t, ok
	})
	return AddForeignKeys(ctx, db, constraints, mm.logger)
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}

// ErrIrreversibleMigration is returned when rolling back a migration without a Down step.
var ErrIrreversibleMigration = errors.New("migration has no down step")

// RollbackMigration runs the Down step of an applied migration and removes its record.
func (mm *MigrationManager) RollbackMigration(ctx context.Context, version string) error {
	var item *MigrationItem
	for _, m := range mm.migrations() {
		if m.Version == version {
			item = &m
			break
		}
	}
	if item == nil {
		return fmt.Errorf("unknown migration %s", version)
	}
	if item.Down == nil {
		return fmt.Errorf("%w: %s", ErrIrreversibleMigration, version)
	}
	return mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := item.Down(ctx, tx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*Migration)(nil)).Where("version = ?", version).Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("migration %s is not applied", version)
		}
		return nil
	})
}

func getModelName(model interface{}) string {
	return modelType(model).Name()
}

// modelType returns the struct type behind a model pointer.
func modelType(model interface{}) reflect.Type {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t
}
