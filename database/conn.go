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
	"sync"
)

var (
	globalMu      sync.RWMutex
	globalFactory *Factory
)

// InitDB creates, connects and installs the process-wide factory.
func InitDB(ctx context.Context, cfg *Config, opts ...FactoryOption) (*Factory, error) {
	f, err := NewFactory(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create database factory: %w", err)
	}
	if err := f.Initialize(ctx); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	globalMu.Lock()
	globalFactory = f
	globalMu.Unlock()
	return f, nil
}

// GetFactory returns the factory installed by InitDB, nil before.
func GetFactory() *Factory {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalFactory
}

func CloseDB() error {
	globalMu.Lock()
	f := globalFactory
	globalFactory = nil
	globalMu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func GetHealthStatus(ctx context.Context) *HealthStatus {
	if f := GetFactory(); f != nil {
		return f.GetHealthStatus(ctx)
	}
	return &HealthStatus{LastError: "database not initialized"}
}

func GetDatabaseStats() *DBStats {
	if f := GetFactory(); f != nil {
		return f.GetStats()
	}
	return &DBStats{}
}
