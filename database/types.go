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
	"time"

	"github.com/uptrace/bun"
)

// AbstractDatabaseManager defines the operations for managing one database
// connection, running migrations, and reporting health.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetDB() *bun.DB
	GetSQLDB() *sql.DB
	RunMigrations(ctx context.Context) error
	GetStats() *DBStats
	SetLogger(logger Logger)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql pool stats.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type                string        `mapstructure:"type" json:"type"` // mysql, postgres, pgx, sqlite
	Host                string        `mapstructure:"host" json:"host"`
	Port                int           `mapstructure:"port" json:"port"`
	Username            string        `mapstructure:"username" json:"username"`
	Password            string        `mapstructure:"password" json:"-"`
	DBName              string        `mapstructure:"dbname" json:"dbname"`
	SSLMode             string        `mapstructure:"sslmode" json:"sslmode"`
	DSN                 string        `mapstructure:"dsn" json:"-"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns        int           `mapstructure:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime     time.Duration `mapstructure:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `mapstructure:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `mapstructure:"connect_timeout" json:"connect_timeout"`
	ReadTimeout         time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	EnableReconnect     bool          `mapstructure:"enable_reconnect" json:"enable_reconnect"`
	ReconnectInterval   time.Duration `mapstructure:"reconnect_interval" json:"reconnect_interval"`
	MaxReconnectTries   int           `mapstructure:"max_reconnect_tries" json:"max_reconnect_tries"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval" json:"health_check_interval"`
	EnableQueryLog      bool          `mapstructure:"enable_query_log" json:"enable_query_log"`
	SlowQueryTime       time.Duration `mapstructure:"slow_query_time" json:"slow_query_time"`
}

// MigrateConfig controls schema migration on startup.
type MigrateConfig struct {
	EnableMigrateOnStartup bool `mapstructure:"enable_migrate_on_startup" json:"enable_migrate_on_startup"`
	// EnableForeignKeys adds constraints for associations with a referential action.
	EnableForeignKeys bool `mapstructure:"enable_foreign_keys" json:"enable_foreign_keys"`
}

// Config aggregates the primary and optional replica connections, migration
// settings and the association mapping file.
type Config struct {
	Primary          *ConnectionConfig `mapstructure:"primary" json:"primary"`
	Replica          *ConnectionConfig `mapstructure:"replica" json:"replica,omitempty"`
	Migrate          MigrateConfig     `mapstructure:"migrate" json:"migrate"`
	AssociationsFile string            `mapstructure:"associations_file" json:"associations_file"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     time.Minute * 30,
		ConnectTimeout:      time.Second * 10,
		ReadTimeout:         time.Second * 30,
		WriteTimeout:        time.Second * 30,
		EnableReconnect:     true,
		ReconnectInterval:   time.Second * 5,
		MaxReconnectTries:   3,
		HealthCheckInterval: time.Minute * 5,
		SlowQueryTime:       time.Second * 2,
	}
}
