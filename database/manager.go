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
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

// opener builds the driver DSN for a config and names the driver and dialect.
type opener func(cfg *ConnectionConfig) (driver, dsn string, dialect schema.Dialect)

var openers = map[string]opener{
	"mysql":      mysqlOpener,
	"postgres":   postgresOpener,
	"postgresql": postgresOpener,
	"sqlite":     sqliteOpener,
	"sqlite3":    sqliteOpener,
}

func mysqlOpener(cfg *ConnectionConfig) (string, string, schema.Dialect) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		cfg.ConnectTimeout, cfg.ReadTimeout, cfg.WriteTimeout)
	return "mysql", dsn, mysqldialect.New()
}

func postgresOpener(cfg *ConnectionConfig) (string, string, schema.Dialect) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		sslMode, int(cfg.ConnectTimeout.Seconds()))
	return "postgres", dsn, pgdialect.New()
}

func sqliteOpener(cfg *ConnectionConfig) (string, string, schema.Dialect) {
	dsn := sqliteDSN(cfg.DBName)
	if isSQLiteMemory(dsn) {
		// every new connection to :memory: opens a fresh, empty database
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
		cfg.ConnMaxIdleTime = 0
	}
	return sqliteshim.ShimName, dsn, sqlitedialect.New()
}

func sqliteDSN(name string) string {
	switch {
	case name == "" || name == ":memory:":
		return ":memory:"
	case strings.HasPrefix(name, "file:"), strings.HasSuffix(name, ".db"):
		return name
	default:
		return name + ".db"
	}
}

func isSQLiteMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// loggerRef lets the manager swap its Logger atomically; the health loop
// logs without holding mu.
type loggerRef struct{ Logger }

type defaultDatabaseManager struct {
	config *ConnectionConfig
	logger atomic.Pointer[loggerRef]

	registerer     prometheus.Registerer
	queryLogWriter io.Writer

	mu           sync.RWMutex
	db           *bun.DB
	sqlDB        *sql.DB
	connected    bool
	lastError    error
	healthStatus *HealthStatus
	stopHealth   context.CancelFunc

	reconnectTries atomic.Int32
}

// ManagerOption customises a manager built by NewDatabaseManager.
type ManagerOption func(*defaultDatabaseManager)

// WithMetricsRegisterer sets where the metrics hook registers its
// collectors when EnableMetrics is on.
func WithMetricsRegisterer(reg prometheus.Registerer) ManagerOption {
	return func(dm *defaultDatabaseManager) { dm.registerer = reg }
}

// WithQueryLogWriter switches the query log from bundebug to the coloured
// QueryHook writing to w.
func WithQueryLogWriter(w io.Writer) ManagerOption {
	return func(dm *defaultDatabaseManager) { dm.queryLogWriter = w }
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by Bun. A nil
// config falls back to DefaultConnectionConfig.
func NewDatabaseManager(config *ConnectionConfig, opts ...ManagerOption) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	dm := &defaultDatabaseManager{config: config}
	dm.logger.Store(&loggerRef{GetLogger()})
	for _, opt := range opts {
		opt(dm)
	}
	return dm
}

func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.connected && dm.db != nil {
		return nil
	}
	if dm.config.ConnectTimeout <= 0 {
		dm.config.ConnectTimeout = 30 * time.Second
	}

	open, ok := openers[dm.config.Type]
	if !ok {
		return fmt.Errorf("unsupported database type: %s", dm.config.Type)
	}
	driver, dsn, dialect := open(dm.config)
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		dm.lastError = err
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(dm.config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(dm.config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(dm.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(dm.config.ConnMaxIdleTime)

	db := bun.NewDB(sqlDB, dialect)
	if err := dm.installHooks(db); err != nil {
		_ = db.Close()
		dm.lastError = err
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		dm.lastError = err
		return fmt.Errorf("database connection test failed: %w", err)
	}

	dm.db, dm.sqlDB = db, sqlDB
	dm.connected = true
	dm.lastError = nil
	dm.reconnectTries.Store(0)
	if dm.config.HealthCheckInterval > 0 && dm.stopHealth == nil {
		var healthCtx context.Context
		healthCtx, dm.stopHealth = context.WithCancel(context.Background())
		go dm.healthLoop(healthCtx)
	}

	dm.log().Info("Database connected", "type", dm.config.Type, "host", dm.config.Host, "dbname", dm.config.DBName)
	return nil
}

func (dm *defaultDatabaseManager) installHooks(db *bun.DB) error {
	if dm.config.EnableQueryLog {
		if dm.queryLogWriter != nil {
			db.AddQueryHook(NewQueryHook(dm.queryLogWriter, "BUNDEBUG", true))
		} else {
			db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true), bundebug.FromEnv("BUNDEBUG")))
		}
	}
	if dm.config.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(dm.config.SlowQueryTime, dm.log()))
	}
	if dm.config.EnableMetrics {
		hook, err := NewMetricsHook(dm.registerer, "")
		if err != nil {
			return fmt.Errorf("failed to register database metrics: %w", err)
		}
		db.AddQueryHook(hook)
	}
	return nil
}

// Disconnect stops the health loop and closes the pool.
func (dm *defaultDatabaseManager) Disconnect() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.stopHealth != nil {
		dm.stopHealth()
		dm.stopHealth = nil
	}
	return dm.closeLocked()
}

func (dm *defaultDatabaseManager) closeLocked() error {
	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db, dm.sqlDB = nil, nil
	dm.connected = false
	if err != nil {
		dm.log().Error("Failed to close database connection", "error", err)
	} else {
		dm.log().Info("Database connection closed")
	}
	return err
}

// Reconnect reopens the pool; a running health loop keeps running.
func (dm *defaultDatabaseManager) Reconnect(ctx context.Context) error {
	dm.log().Info("Attempting to reconnect to the database")
	dm.mu.Lock()
	if err := dm.closeLocked(); err != nil {
		dm.log().Warn("Error disconnecting existing connection", "error", err)
	}
	dm.mu.Unlock()
	return dm.Connect(ctx)
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	start := time.Now()
	status := &HealthStatus{LastCheckTime: start, Connected: dm.connected}
	if dm.db == nil {
		status.LastError = "Database not initialized"
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := dm.db.PingContext(pingCtx)
	status.ResponseTime = time.Since(start)
	status.Healthy = err == nil
	status.Connected = err == nil
	dm.lastError = err
	if err != nil {
		status.LastError = err.Error()
	}

	stats := dm.sqlDB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections

	dm.healthStatus = status
	return status
}

// healthLoop pings on every tick until ctx is cancelled by Disconnect or
// the reconnect attempts run out.
func (dm *defaultDatabaseManager) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(dm.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			status := dm.HealthCheck(checkCtx)
			cancel()
			if !status.Healthy && dm.config.EnableReconnect && !dm.handleReconnect(ctx) {
				return
			}
		}
	}
}

// handleReconnect reports false once MaxReconnectTries is exhausted.
func (dm *defaultDatabaseManager) handleReconnect(ctx context.Context) bool {
	tries := int(dm.reconnectTries.Add(1))
	if tries > dm.config.MaxReconnectTries {
		dm.log().Error("Max reconnect attempts reached, stopping", "tries", tries-1)
		return false
	}
	dm.log().Info("Starting database reconnect", "try", tries)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(dm.config.ReconnectInterval):
	}

	connectCtx, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()
	if err := dm.Reconnect(connectCtx); err != nil {
		dm.log().Error("Reconnect failed", "error", err, "try", tries)
		return true
	}
	dm.log().Info("Reconnect succeeded")
	return true
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	sqlDB := dm.GetSQLDB()
	if sqlDB == nil {
		return &DBStats{}
	}
	stats := sqlDB.Stats()
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

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	if logger == nil {
		logger = NopLogger{}
	}
	dm.logger.Store(&loggerRef{logger})
}

func (dm *defaultDatabaseManager) log() Logger {
	return dm.logger.Load().Logger
}
