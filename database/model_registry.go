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
	"sort"
	"sync"
)

var defaultRegistry = NewEntityRegistry()

// EntityModel is a registered entity. Instance returns a bun model pointer;
// lower Priority values are created first.
type EntityModel interface {
	Instance() interface{}
	Priority() int
}

// EntityRegistry stores entity models in a deterministic order.
type EntityRegistry struct {
	mu     sync.RWMutex
	models []EntityModel
}

func NewEntityRegistry() *EntityRegistry {
	return &EntityRegistry{}
}

func (r *EntityRegistry) Register(instance interface{}, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, &entityModel{instance: instance, priority: priority})
}

// Models returns the models sorted by priority, registration order breaking ties.
func (r *EntityRegistry) Models() []EntityModel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EntityModel, len(r.models))
	copy(out, r.models)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() < out[j].Priority()
	})
	return out
}

func (r *EntityRegistry) Instances() []interface{} {
	models := r.Models()
	out := make([]interface{}, len(models))
	for i, m := range models {
		out[i] = m.Instance()
	}
	return out
}

type entityModel struct {
	instance interface{}
	priority int
}

func (m *entityModel) Instance() interface{} { return m.instance }

func (m *entityModel) Priority() int { return m.priority }

// RegisterEntity adds an entity to the default registry used by migrations.
func RegisterEntity(instance interface{}, priority int) {
	defaultRegistry.Register(instance, priority)
}

// DefaultEntityRegistry returns the registry RegisterEntity writes to.
func DefaultEntityRegistry() *EntityRegistry {
	return defaultRegistry
}
