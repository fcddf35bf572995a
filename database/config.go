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
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "BISNA"

// LoadConfig reads <dir>/<name>.yaml. Every key can be overridden from the
// environment, e.g. BISNA_PRIMARY_HOST for primary.host.
func LoadConfig(dir, name string) (*Config, error) {
	v := newConfigViper()
	v.SetConfigName(name)
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s/%s: %w", dir, name, err)
	}
	return decodeConfig(v)
}

// ParseConfig reads a YAML configuration from r.
func ParseConfig(r io.Reader) (*Config, error) {
	v := newConfigViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return decodeConfig(v)
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConnectionConfig()
	v.SetDefault("primary.max_idle_conns", d.MaxIdleConns)
	v.SetDefault("primary.max_open_conns", d.MaxOpenConns)
	v.SetDefault("primary.conn_max_lifetime", d.ConnMaxLifetime)
	v.SetDefault("primary.conn_max_idle_time", d.ConnMaxIdleTime)
	v.SetDefault("primary.connect_timeout", d.ConnectTimeout)
	v.SetDefault("primary.read_timeout", d.ReadTimeout)
	v.SetDefault("primary.write_timeout", d.WriteTimeout)
	v.SetDefault("primary.enable_reconnect", d.EnableReconnect)
	v.SetDefault("primary.reconnect_interval", d.ReconnectInterval)
	v.SetDefault("primary.max_reconnect_tries", d.MaxReconnectTries)
	v.SetDefault("primary.health_check_interval", d.HealthCheckInterval)
	v.SetDefault("primary.slow_query_time", d.SlowQueryTime)
	return v
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Primary == nil || cfg.Primary.Type == "" {
		return nil, fmt.Errorf("config has no primary connection")
	}
	if cfg.Replica != nil {
		fillDefaults(cfg.Replica, cfg.Primary)
	}
	return &cfg, nil
}

// fillDefaults copies pool and timeout settings from base into zero fields of c.
func fillDefaults(c, base *ConnectionConfig) {
	if c.Type == "" {
		c.Type = base.Type
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = base.MaxIdleConns
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = base.MaxOpenConns
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = base.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = base.ConnMaxIdleTime
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = base.ConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = base.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = base.WriteTimeout
	}
	if c.SlowQueryTime == 0 {
		c.SlowQueryTime = base.SlowQueryTime
	}
}
