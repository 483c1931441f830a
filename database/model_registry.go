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
	"reflect"
	"sort"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

var defaultRegistry = NewModelRegistry()

// SQLModel represents a model whose table is managed by CreateAll/DropAll.
// Instance should return a struct pointer compatible with Bun, and Priority
// controls ordering when creating tables (lower values first).
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// ModelRegistry stores SQL models and exposes them in a deterministic order.
type ModelRegistry interface {
	Register(model SQLModel)
	Models() []SQLModel
	Clear()
}

type modelRegistry struct {
	models []SQLModel
	mutex  sync.RWMutex
}

// NewModelRegistry returns an empty registry, mainly for tests and for
// databases that must not share the process-wide registry.
func NewModelRegistry() ModelRegistry {
	return &modelRegistry{
		models: make([]SQLModel, 0),
	}
}

// Register adds a model. Registering the same Go type again replaces the
// previous entry.
func (r *modelRegistry) Register(model SQLModel) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	typ := indirectType(reflect.TypeOf(model.Instance()))
	for i, m := range r.models {
		if indirectType(reflect.TypeOf(m.Instance())) == typ {
			r.models[i] = model
			return
		}
	}
	r.models = append(r.models, model)
}

func (r *modelRegistry) Models() []SQLModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLModel, len(r.models))
	copy(result, r.models)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

func (r *modelRegistry) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.models = r.models[:0]
}

type ModelAdapter struct {
	instance interface{}
	priority int
}

// NewModelAdapter wraps a struct instance and priority into an SQLModel.
func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return &ModelAdapter{
		instance: instance,
		priority: priority,
	}
}

// Instance returns the underlying struct pointer.
func (a *ModelAdapter) Instance() interface{} {
	return a.instance
}

// Priority returns the model's ordering value; lower values run earlier.
func (a *ModelAdapter) Priority() int {
	return a.priority
}

// GetRegisteredModels returns all models registered in the default registry
// sorted by ascending priority.
func GetRegisteredModels() []SQLModel {
	return defaultRegistry.Models()
}

// RegisteredModel adds a model to the default registry.
func RegisteredModel(model SQLModel) {
	defaultRegistry.Register(model)
}

// RegisterModel is shorthand for RegisteredModel(NewModelAdapter(instance, priority)).
func RegisterModel(instance interface{}, priority int) {
	defaultRegistry.Register(NewModelAdapter(instance, priority))
}

func RegisteredModelInstances() []interface{} {
	return modelInstances(defaultRegistry)
}

func modelInstances(r ModelRegistry) []interface{} {
	models := r.Models()
	instances := make([]interface{}, len(models))
	for i, model := range models {
		instances[i] = model.Instance()
	}
	return instances
}

// bindTableName points Bun's table metadata for model at ModelTableName(model).
func bindTableName(db *bun.DB, model interface{}) *schema.Table {
	table := db.Table(indirectType(reflect.TypeOf(model)))
	name := ModelTableName(model)
	if table.Name != name {
		quoted := schema.Safe(db.Formatter().AppendIdent(nil, name))
		table.Name = name
		table.SQLName = quoted
		table.SQLNameForSelects = quoted
	}
	return table
}
