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

	"github.com/uptrace/bun"
)

// SchemaFunc is a schema step executed within a transaction.
type SchemaFunc func(ctx context.Context, db bun.IDB, models []interface{}) error

// CreateAll creates the tables of all registered models in ascending
// priority order. Existing tables are left alone.
func (d *Database) CreateAll(ctx context.Context) error {
	return d.runSchema(ctx, "create_tables", createTables, false)
}

// DropAll drops the tables of all registered models in descending priority
// order so that referencing tables go first.
func (d *Database) DropAll(ctx context.Context) error {
	return d.runSchema(ctx, "drop_tables", dropTables, true)
}

func (d *Database) runSchema(ctx context.Context, name string, step SchemaFunc, reverse bool) error {
	e, err := d.currentEngine()
	if err != nil {
		return err
	}
	models := make([]interface{}, 0)
	for _, model := range modelInstances(d.registry) {
		e.table(model)
		models = append(models, model)
	}
	if reverse {
		for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
			models[i], models[j] = models[j], models[i]
		}
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	var committed bool
	defer func(tx bun.Tx) {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				d.logger.Error("Failed to rollback transaction", "error", rollbackErr)
			}
		}
	}(tx)

	if err := step(ctx, tx, models); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	d.logger.Info("Schema step executed successfully", "name", name, "models", len(models))
	return nil
}

func createTables(ctx context.Context, db bun.IDB, models []interface{}) error {
	for _, model := range models {
		_, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table %s: %w", ModelTableName(model), err)
		}
	}
	return nil
}

func dropTables(ctx context.Context, db bun.IDB, models []interface{}) error {
	for _, model := range models {
		_, err := db.NewDropTable().
			Model(model).
			IfExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop table %s: %w", ModelTableName(model), err)
		}
	}
	return nil
}
