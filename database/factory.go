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
	"os"
	"strconv"
	"time"

	"github.com/uptrace/bun"
)

var supportedTypes = []string{"mysql", "postgres", "pgx", "sqlite"}

// Factory owns the primary and the optional replica connection and hands out
// persistence contexts bound to them.
type Factory struct {
	cfg          *Config
	primary      AbstractDatabaseManager
	replica      AbstractDatabaseManager
	associations *Associations
	logger       Logger
	hooks        []bun.QueryHook
}

type FactoryOption func(*Factory)

func WithFactoryLogger(l Logger) FactoryOption {
	return func(f *Factory) { f.logger = l }
}

// WithQueryHooks attaches hooks, e.g. a MetricsHook, to every connection.
func WithQueryHooks(hooks ...bun.QueryHook) FactoryOption {
	return func(f *Factory) { f.hooks = append(f.hooks, hooks...) }
}

// WithFactoryAssociations sets the association registry instead of loading
// Config.AssociationsFile.
func WithFactoryAssociations(a *Associations) FactoryOption {
	return func(f *Factory) { f.associations = a }
}

// NewFactory validates cfg, applies DB_* environment overrides to the primary
// and DB_REPLICA_* overrides to the replica, and creates the managers.
// Nothing is connected until Initialize.
func NewFactory(cfg *Config, opts ...FactoryOption) (*Factory, error) {
	if cfg == nil || cfg.Primary == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	f := &Factory{cfg: cfg, logger: GetLogger()}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = NopLogger()
	}

	overrideFromEnv(cfg.Primary, "DB_")
	if err := checkType(cfg.Primary.Type); err != nil {
		return nil, err
	}
	f.primary = NewDatabaseManager(cfg.Primary, f.hooks...)
	f.primary.SetLogger(f.logger)

	if cfg.Replica != nil {
		overrideFromEnv(cfg.Replica, "DB_REPLICA_")
		fillDefaults(cfg.Replica, cfg.Primary)
		if err := checkType(cfg.Replica.Type); err != nil {
			return nil, err
		}
		f.replica = NewDatabaseManager(cfg.Replica, f.hooks...)
		f.replica.SetLogger(f.logger)
	}

	if f.associations == nil {
		if cfg.AssociationsFile != "" {
			a, err := LoadAssociations(cfg.AssociationsFile)
			if err != nil {
				return nil, err
			}
			f.associations = a
		} else {
			f.associations, _ = NewAssociations()
		}
	}
	return f, nil
}

func checkType(t string) error {
	for _, s := range supportedTypes {
		if s == t {
			return nil
		}
	}
	return fmt.Errorf("unsupported database type: %s, supported types: %v", t, supportedTypes)
}

// overrideFromEnv overrides connection settings from <prefix>HOST, <prefix>PORT, ...
func overrideFromEnv(cfg *ConnectionConfig, prefix string) {
	env := func(name string) (string, bool) {
		v := os.Getenv(prefix + name)
		return v, v != ""
	}
	if v, ok := env("TYPE"); ok {
		cfg.Type = v
	}
	if v, ok := env("HOST"); ok {
		cfg.Host = v
	}
	if v, ok := env("PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v, ok := env("USERNAME"); ok {
		cfg.Username = v
	}
	if v, ok := env("PASSWORD"); ok {
		cfg.Password = v
	}
	if v, ok := env("NAME"); ok {
		cfg.DBName = v
	}
	if v, ok := env("SSLMODE"); ok {
		cfg.SSLMode = v
	}
	if v, ok := env("DSN"); ok {
		cfg.DSN = v
	}
	if v, ok := env("MAX_IDLE_CONNS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxIdleConns = n
		}
	}
	if v, ok := env("MAX_OPEN_CONNS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxOpenConns = n
		}
	}
	if v, ok := env("CONN_MAX_LIFETIME"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ConnMaxLifetime = time.Duration(n) * time.Second
		}
	}
	if v, ok := env("ENABLE_RECONNECT"); ok {
		cfg.EnableReconnect = v == "true"
	}
	if v, ok := env("RECONNECT_INTERVAL"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReconnectInterval = time.Duration(n) * time.Second
		}
	}
	if v, ok := env("ENABLE_QUERY_LOG"); ok {
		cfg.EnableQueryLog = v == "true"
	}
}

// Initialize connects every manager and runs migrations when the config asks for it.
func (f *Factory) Initialize(ctx context.Context) error {
	if err := f.primary.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to primary database: %w", err)
	}
	if f.replica != nil {
		if err := f.replica.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to replica database: %w", err)
		}
	}
	if f.cfg.Migrate.EnableMigrateOnStartup {
		if err := f.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
	}
	f.logger.Info("database initialization completed", "replica", f.replica != nil)
	return nil
}

// Migrate runs migrations on the primary.
func (f *Factory) Migrate(ctx context.Context, opts ...MigrationOption) error {
	db := f.WriteDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	if f.cfg.Migrate.EnableForeignKeys {
		opts = append([]MigrationOption{WithForeignKeys(f.associations)}, opts...)
	}
	return NewMigrationManager(db, f.logger, opts...).RunMigrations(ctx)
}

// WriteDB returns the primary database.
func (f *Factory) WriteDB() *bun.DB {
	return f.primary.GetDB()
}

// ReadDB returns the replica when one is configured and connected, the primary otherwise.
func (f *Factory) ReadDB() *bun.DB {
	if f.replica != nil {
		if db := f.replica.GetDB(); db != nil {
			return db
		}
	}
	return f.WriteDB()
}

// NewWriteContext returns a fresh persistence context on the primary.
func (f *Factory) NewWriteContext() *EntityManager {
	return NewEntityManager(f.WriteDB(), WithAssociations(f.associations), WithEntityManagerLogger(f.logger))
}

// NewReadContext returns a fresh persistence context on the read database.
func (f *Factory) NewReadContext() *EntityManager {
	return NewEntityManager(f.ReadDB(), WithAssociations(f.associations), WithEntityManagerLogger(f.logger))
}

func (f *Factory) Associations() *Associations { return f.associations }

func (f *Factory) Primary() AbstractDatabaseManager { return f.primary }

// Replica returns the replica manager, nil when none is configured.
func (f *Factory) Replica() AbstractDatabaseManager { return f.replica }

func (f *Factory) SetLogger(logger Logger) {
	f.logger = logger
	f.primary.SetLogger(logger)
	if f.replica != nil {
		f.replica.SetLogger(logger)
	}
}

// Close disconnects every manager.
func (f *Factory) Close() error {
	err := f.primary.Disconnect()
	if f.replica != nil {
		err = errors.Join(err, f.replica.Disconnect())
	}
	return err
}

// GetHealthStatus checks the primary database.
func (f *Factory) GetHealthStatus(ctx context.Context) *HealthStatus {
	return f.primary.HealthCheck(ctx)
}

// GetStats returns pool statistics of the primary database.
func (f *Factory) GetStats() *DBStats {
	return f.primary.GetStats()
}
