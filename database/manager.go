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
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

// opener resolves the driver name, DSN and dialect of a connection type.
type opener func(cfg *ConnectionConfig) (driver, dsn string, dialect schema.Dialect)

var openers = map[string]opener{
	"mysql":      openMySQL,
	"postgres":   openPostgres("postgres"),
	"postgresql": openPostgres("postgres"),
	"pgx":        openPostgres("pgx"),
	"sqlite":     openSQLite,
	"sqlite3":    openSQLite,
}

func openMySQL(cfg *ConnectionConfig) (string, string, schema.Dialect) {
	dsn := cfg.DSN
	if dsn == "" {
		mc := mysql.NewConfig()
		mc.User = cfg.Username
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.DBName = cfg.DBName
		mc.Params = map[string]string{"charset": "utf8mb4"}
		mc.ParseTime = true
		mc.Loc = time.Local
		mc.Timeout = cfg.ConnectTimeout
		mc.ReadTimeout = cfg.ReadTimeout
		mc.WriteTimeout = cfg.WriteTimeout
		dsn = mc.FormatDSN()
	}
	return "mysql", dsn, mysqldialect.New()
}

// openPostgres serves lib/pq ("postgres") and the pgx stdlib driver ("pgx");
// both accept the same URL.
func openPostgres(driver string) opener {
	return func(cfg *ConnectionConfig) (string, string, schema.Dialect) {
		dsn := cfg.DSN
		if dsn == "" {
			sslMode := cfg.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			q := url.Values{}
			q.Set("sslmode", sslMode)
			q.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
			u := url.URL{
				Scheme:   "postgres",
				User:     url.UserPassword(cfg.Username, cfg.Password),
				Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
				Path:     "/" + cfg.DBName,
				RawQuery: q.Encode(),
			}
			dsn = u.String()
		}
		return driver, dsn, pgdialect.New()
	}
}

func openSQLite(cfg *ConnectionConfig) (string, string, schema.Dialect) {
	dsn := cfg.DSN
	switch {
	case dsn != "":
	case cfg.DBName == ":memory:":
		dsn = "file::memory:?cache=shared"
	default:
		dsn = fmt.Sprintf("file:%s.db", cfg.DBName)
	}
	return sqliteshim.ShimName, dsn, sqlitedialect.New()
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// bunManager is the AbstractDatabaseManager over one bun.DB. A background
// watcher pings the database every HealthCheckInterval and reconnects when
// EnableReconnect is set.
type bunManager struct {
	config *ConnectionConfig
	hooks  []bun.QueryHook

	mu        sync.RWMutex
	db        *bun.DB
	logger    Logger
	tries     int
	stopWatch context.CancelFunc
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by bun. hooks
// are attached to every connection the manager opens, including reconnects.
// A nil config means DefaultConnectionConfig.
func NewDatabaseManager(config *ConnectionConfig, hooks ...bun.QueryHook) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	return &bunManager{
		config: config,
		hooks:  hooks,
		logger: NopLogger(),
	}
}

func (m *bunManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		return nil
	}

	db, err := m.open()
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("database connection test failed: %w", err)
	}

	m.db = db
	m.tries = 0
	if m.config.HealthCheckInterval > 0 && m.stopWatch == nil {
		watchCtx, stop := context.WithCancel(context.Background())
		m.stopWatch = stop
		go m.watch(watchCtx)
	}
	m.logger.Info("database connected", "type", m.config.Type, "host", m.config.Host)
	return nil
}

func (m *bunManager) open() (*bun.DB, error) {
	open, ok := openers[m.config.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", m.config.Type)
	}
	driver, dsn, dialect := open(m.config)
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == sqliteshim.ShimName && isMemoryDSN(dsn) {
		// the database lives as long as its single connection
		m.config.MaxOpenConns = 1
		m.config.MaxIdleConns = 1
		m.config.ConnMaxLifetime = 0
		m.config.ConnMaxIdleTime = 0
	}
	sqlDB.SetMaxIdleConns(m.config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(m.config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(m.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(m.config.ConnMaxIdleTime)

	db := bun.NewDB(sqlDB, dialect)
	m.attachHooks(db)
	return db, nil
}

// attachHooks installs, in order: the query log (EnableQueryLog, else bundebug
// when BUNDEBUG is set), the slow query hook and the extra hooks.
func (m *bunManager) attachHooks(db *bun.DB) {
	if m.config.EnableQueryLog {
		db.AddQueryHook(NewQueryHook(WithQueryHookVerbose(true)))
	} else if _, ok := os.LookupEnv("BUNDEBUG"); ok {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.FromEnv("BUNDEBUG")))
	}
	if m.config.SlowQueryTime > 0 {
		db.AddQueryHook(&slowQueryHook{threshold: m.config.SlowQueryTime, manager: m})
	}
	for _, h := range m.hooks {
		db.AddQueryHook(h)
	}
}

// Disconnect stops the watcher and closes the connection.
func (m *bunManager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
	return m.closeLocked()
}

func (m *bunManager) closeLocked() error {
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	if err != nil {
		m.logger.Error("close database connection failed", "error", err)
		return err
	}
	m.logger.Info("database connection closed")
	return nil
}

// Reconnect replaces the connection and keeps the watcher running.
func (m *bunManager) Reconnect(ctx context.Context) error {
	m.currentLogger().Info("reconnecting to database")
	m.mu.Lock()
	if err := m.closeLocked(); err != nil {
		m.logger.Warn("disconnect before reconnect failed", "error", err)
	}
	m.mu.Unlock()
	return m.Connect(ctx)
}

func (m *bunManager) Ping(ctx context.Context) error {
	db := m.GetDB()
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (m *bunManager) GetDB() *bun.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

func (m *bunManager) GetSQLDB() *sql.DB {
	if db := m.GetDB(); db != nil {
		return db.DB
	}
	return nil
}

func (m *bunManager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}

	db := m.GetDB()
	if db == nil {
		status.LastError = "database not initialized"
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := db.PingContext(pingCtx)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
		status.Connected = true
	}

	stats := db.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	return status
}

func (m *bunManager) watch(ctx context.Context) {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			status := m.HealthCheck(checkCtx)
			cancel()
			if !status.Healthy && m.config.EnableReconnect {
				m.retryConnect(ctx)
			}
		}
	}
}

func (m *bunManager) retryConnect(ctx context.Context) {
	m.mu.Lock()
	if m.tries >= m.config.MaxReconnectTries {
		m.mu.Unlock()
		m.currentLogger().Error("reconnect attempts exhausted", "tries", m.config.MaxReconnectTries)
		return
	}
	m.tries++
	try := m.tries
	m.mu.Unlock()

	logger := m.currentLogger()
	logger.Info("database reconnect", "try", try)
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.config.ReconnectInterval):
	}

	connCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()
	if err := m.Reconnect(connCtx); err != nil {
		logger.Error("reconnect failed", "error", err, "try", try)
		return
	}
	logger.Info("reconnect succeeded")
}

func (m *bunManager) GetStats() *DBStats {
	db := m.GetDB()
	if db == nil {
		return &DBStats{}
	}
	stats := db.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// RunMigrations applies the base migrations for the default entity registry.
func (m *bunManager) RunMigrations(ctx context.Context) error {
	db := m.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	return NewMigrationManager(db, m.currentLogger()).RunMigrations(ctx)
}

func (m *bunManager) SetLogger(logger Logger) {
	if logger == nil {
		logger = NopLogger()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

func (m *bunManager) currentLogger() Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

// slowQueryHook warns about successful statements slower than threshold.
type slowQueryHook struct {
	threshold time.Duration
	manager   *bunManager
}

func (h *slowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *slowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if event.Err != nil {
		return
	}
	if d := time.Since(event.StartTime); d > h.threshold {
		h.manager.currentLogger().Warn("slow query", "duration", d, "threshold", h.threshold, "query", event.Query)
	}
}
