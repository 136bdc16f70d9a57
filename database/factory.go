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
	"maps"
	"slices"
	"time"

	"github.com/spf13/cast"
	"github.com/uptrace/bun"

	"github.com/tomoncle/rowkit/utils"
)

// BaseDatabaseFactory owns one database manager and exposes connection,
// health and statistics helpers over it.
type BaseDatabaseFactory struct {
	manager AbstractDatabaseManager
	logger  Logger
}

func NewDatabaseFactory() *BaseDatabaseFactory {
	return &BaseDatabaseFactory{logger: GetLogger()}
}

// CreateFromConfig applies environment overrides to cfg and builds its
// manager. The connection is not opened until InitializeDatabase.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *ConnectionConfig, opts ...ManagerOption) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	applyEnv(cfg)

	if _, ok := openers[cfg.Type]; !ok {
		return nil, fmt.Errorf("unsupported database type: %q, supported types: %v",
			cfg.Type, slices.Sorted(maps.Keys(openers)))
	}

	manager := NewDatabaseManager(cfg, opts...)
	manager.SetLogger(f.logger)
	f.manager = manager
	return manager, nil
}

// envOverrides maps DB_* variables onto config fields. Environment values
// win over file values, the store type included.
var envOverrides = map[string]func(cfg *ConnectionConfig, v string){
	"DB_TYPE":               func(c *ConnectionConfig, v string) { c.Type = v },
	"DB_HOST":               func(c *ConnectionConfig, v string) { c.Host = v },
	"DB_PORT":               func(c *ConnectionConfig, v string) { setInt(&c.Port, v) },
	"DB_USERNAME":           func(c *ConnectionConfig, v string) { c.Username = v },
	"DB_PASSWORD":           func(c *ConnectionConfig, v string) { c.Password = v },
	"DB_NAME":               func(c *ConnectionConfig, v string) { c.DBName = v },
	"DB_SSLMODE":            func(c *ConnectionConfig, v string) { c.SSLMode = v },
	"DB_MAX_IDLE_CONNS":     func(c *ConnectionConfig, v string) { setInt(&c.MaxIdleConns, v) },
	"DB_MAX_OPEN_CONNS":     func(c *ConnectionConfig, v string) { setInt(&c.MaxOpenConns, v) },
	"DB_CONN_MAX_LIFETIME":  func(c *ConnectionConfig, v string) { setSeconds(&c.ConnMaxLifetime, v) },
	"DB_RECONNECT_INTERVAL": func(c *ConnectionConfig, v string) { setSeconds(&c.ReconnectInterval, v) },
	"DB_ENABLE_RECONNECT":   func(c *ConnectionConfig, v string) { setBool(&c.EnableReconnect, v) },
	"DB_ENABLE_QUERY_LOG":   func(c *ConnectionConfig, v string) { setBool(&c.EnableQueryLog, v) },
	"DB_ENABLE_METRICS":     func(c *ConnectionConfig, v string) { setBool(&c.EnableMetrics, v) },
}

func applyEnv(cfg *ConnectionConfig) {
	for key, set := range envOverrides {
		if v := utils.EnvDefaultString(key, ""); v != "" {
			set(cfg, v)
		}
	}
}

func setInt(dst *int, v string) {
	if n, err := cast.ToIntE(v); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, v string) {
	if b, err := cast.ToBoolE(v); err == nil {
		*dst = b
	}
}

// setSeconds reads a bare integer as seconds and anything else as a
// duration string such as "90s".
func setSeconds(dst *time.Duration, v string) {
	if n, err := cast.ToIntE(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return
	}
	if d, err := cast.ToDurationE(v); err == nil {
		*dst = d
	}
}

// InitializeDatabase connects the manager built by CreateFromConfig.
func (f *BaseDatabaseFactory) InitializeDatabase(ctx context.Context) error {
	if f.manager == nil {
		return fmt.Errorf("database manager not created")
	}
	if err := f.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	f.logger.Info("Database initialization completed")
	return nil
}

func (f *BaseDatabaseFactory) GetManager() AbstractDatabaseManager {
	return f.manager
}

// GetDB returns nil until the factory has a manager.
func (f *BaseDatabaseFactory) GetDB() *bun.DB {
	if f.manager == nil {
		return nil
	}
	return f.manager.GetDB()
}

func (f *BaseDatabaseFactory) SetLogger(logger Logger) {
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

func (f *BaseDatabaseFactory) Close() error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect()
}

func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{LastError: "Database manager not initialized", LastCheckTime: time.Now()}
	}
	return f.manager.HealthCheck(ctx)
}

func (f *BaseDatabaseFactory) GetStats() *DBStats {
	if f.manager == nil {
		return &DBStats{}
	}
	return f.manager.GetStats()
}
