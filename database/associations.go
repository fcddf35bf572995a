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
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"gopkg.in/yaml.v3"
)

// Association describes a named relation from an entity to a target table.
// A join on it renders as
//
//	JOIN <Table> AS <alias> ON <alias>.<ForeignKey> = <parent>.<LocalKey>
//
// so one-to-many relations use the parent primary key as LocalKey and
// many-to-one relations use the parent reference column.
type Association struct {
	Entity      string `yaml:"entity"`
	Name        string `yaml:"name"`
	Target      string `yaml:"target"`
	Table       string `yaml:"table"`
	LocalKey    string `yaml:"local_key"`
	ForeignKey  string `yaml:"foreign_key"`
	OnDelete    string `yaml:"on_delete,omitempty"`
	OnUpdate    string `yaml:"on_update,omitempty"`
	Description string `yaml:"description,omitempty"`
}

func (a Association) key() string {
	return associationKey(a.Entity, a.Name)
}

func associationKey(entity, name string) string {
	return strings.ToLower(entity) + "." + strings.ToLower(name)
}

// AssociationConfig is the YAML document holding association mappings.
type AssociationConfig struct {
	Associations []Association `yaml:"associations"`
}

// Associations is a registry of entity relations used to resolve join paths.
type Associations struct {
	mu    sync.RWMutex
	items map[string]Association
	order []string
}

func NewAssociations(list ...Association) (*Associations, error) {
	a := &Associations{items: make(map[string]Association)}
	if err := a.Add(list...); err != nil {
		return nil, err
	}
	return a, nil
}

// Add registers associations, replacing existing ones with the same entity and name.
func (a *Associations) Add(list ...Association) error {
	for _, item := range list {
		if errs := validateAssociation(item); len(errs) > 0 {
			return errs[0]
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, item := range list {
		k := item.key()
		if _, ok := a.items[k]; !ok {
			a.order = append(a.order, k)
		}
		a.items[k] = item
	}
	return nil
}

// Lookup finds the association name of entity. Names compare case-insensitively.
func (a *Associations) Lookup(entity, name string) (Association, bool) {
	if a == nil {
		return Association{}, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	item, ok := a.items[associationKey(entity, name)]
	return item, ok
}

func (a *Associations) All() []Association {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Association, 0, len(a.order))
	for _, k := range a.order {
		out = append(out, a.items[k])
	}
	return out
}

func (a *Associations) Len() int {
	if a == nil {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.items)
}

// LoadAssociations reads an association YAML file.
func LoadAssociations(path string) (*Associations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read associations file: %w", err)
	}
	var cfg AssociationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse associations file: %w", err)
	}
	return NewAssociations(cfg.Associations...)
}

// Export writes the registry as YAML to path, creating directories as needed.
func (a *Associations) Export(path string) error {
	cfg := AssociationConfig{Associations: a.All()}
	for i := range cfg.Associations {
		item := &cfg.Associations[i]
		if item.Description == "" {
			item.Description = fmt.Sprintf("%s.%s -> %s.%s", item.Entity, item.Name, item.Table, item.ForeignKey)
		}
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize associations: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write associations file: %w", err)
	}
	return nil
}

var referentialActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

func validateAssociation(a Association) []error {
	var errs []error
	if a.Entity == "" || a.Name == "" {
		errs = append(errs, fmt.Errorf("association needs an entity and a name: %q.%q", a.Entity, a.Name))
	}
	if a.Table == "" {
		errs = append(errs, fmt.Errorf("association %s.%s has no table", a.Entity, a.Name))
	}
	if a.LocalKey == "" || a.ForeignKey == "" {
		errs = append(errs, fmt.Errorf("association %s.%s needs local_key and foreign_key", a.Entity, a.Name))
	}
	for _, action := range []string{a.OnDelete, a.OnUpdate} {
		if action != "" && !validAction(action) {
			errs = append(errs, fmt.Errorf("invalid referential action %q on %s.%s", action, a.Entity, a.Name))
		}
	}
	return errs
}

func validAction(action string) bool {
	for _, v := range referentialActions {
		if strings.EqualFold(v, action) {
			return true
		}
	}
	return false
}

// ForeignKeyConstraint describes a foreign key between two tables.
type ForeignKeyConstraint struct {
	Table           string
	Column          string
	ReferenceTable  string
	ReferenceColumn string
	OnDelete        string
	OnUpdate        string
}

func (fk ForeignKeyConstraint) Name() string {
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

// ForeignKeys derives constraints for one-to-many associations, i.e. those
// whose foreign key lives on the target table. ownerTable maps an entity name
// to its table.
func (a *Associations) ForeignKeys(ownerTable func(entity string) (string, bool)) []ForeignKeyConstraint {
	var out []ForeignKeyConstraint
	for _, item := range a.All() {
		table, ok := ownerTable(item.Entity)
		if !ok || item.OnDelete == "" && item.OnUpdate == "" {
			continue
		}
		out = append(out, ForeignKeyConstraint{
			Table:           item.Table,
			Column:          item.ForeignKey,
			ReferenceTable:  table,
			ReferenceColumn: item.LocalKey,
			OnDelete:        strings.ToUpper(item.OnDelete),
			OnUpdate:        strings.ToUpper(item.OnUpdate),
		})
	}
	return out
}

// AddForeignKeys adds every constraint. sqlite cannot alter constraints and is skipped.
func AddForeignKeys(ctx context.Context, db bun.IDB, constraints []ForeignKeyConstraint, logger Logger) error {
	if db.Dialect().Name() == dialect.SQLite {
		logger.Debug("foreign keys skipped on sqlite", "count", len(constraints))
		return nil
	}
	for _, fk := range constraints {
		q := "ALTER TABLE ? ADD CONSTRAINT ? FOREIGN KEY (?) REFERENCES ? (?)"
		if fk.OnDelete != "" {
			q += " ON DELETE " + fk.OnDelete
		}
		if fk.OnUpdate != "" {
			q += " ON UPDATE " + fk.OnUpdate
		}
		_, err := db.ExecContext(ctx, q,
			bun.Ident(fk.Table), bun.Ident(fk.Name()), bun.Ident(fk.Column),
			bun.Ident(fk.ReferenceTable), bun.Ident(fk.ReferenceColumn))
		if err != nil {
			if _, class := IsSqlError(err); class == ExistIndexErr || class == ExistTableErr {
				continue
			}
			return fmt.Errorf("failed to add foreign key %s: %w", fk.Name(), err)
		}
		logger.Debug("foreign key added", "constraint", fk.Name())
	}
	return nil
}
