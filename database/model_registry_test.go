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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type LineItem struct {
	ID  int64 `bun:"id,pk,autoincrement"`
	Qty int   `bun:"qty"`
}

type legacyInvoice struct {
	bun.BaseModel `bun:"table:invoices"`

	ID int64 `bun:"id,pk,autoincrement"`
}

func TestModelRegistryOrdering(t *testing.T) {
	r := NewModelRegistry()
	r.Register(NewModelAdapter((*LineItem)(nil), 20))
	r.Register(NewModelAdapter((*UserAccount)(nil), 10))
	r.Register(NewModelAdapter((*HTTPServer)(nil), 20))

	instances := modelInstances(r)
	require.Len(t, instances, 3)
	assert.IsType(t, (*UserAccount)(nil), instances[0])
	assert.IsType(t, (*LineItem)(nil), instances[1])
	assert.IsType(t, (*HTTPServer)(nil), instances[2])

	// same type registered again replaces the entry
	r.Register(NewModelAdapter(&LineItem{}, 1))
	models := r.Models()
	require.Len(t, models, 3)
	assert.Equal(t, 1, models[0].Priority())

	r.Clear()
	assert.Empty(t, r.Models())
}

func TestBindTableName(t *testing.T) {
	db, err := Open("sqlite://", WithLogger(&recordLogger{}))
	require.NoError(t, err)
	defer db.Close()
	engine, err := db.GetEngine()
	require.NoError(t, err)

	table := bindTableName(engine, (*LineItem)(nil))
	assert.Equal(t, "line_item", table.Name)
	assert.Equal(t, `"line_item"`, string(table.SQLName))

	table = bindTableName(engine, (*legacyInvoice)(nil))
	assert.Equal(t, "invoices", table.Name)

	query := engine.NewSelect().Model((*LineItem)(nil)).String()
	assert.Contains(t, query, `FROM "line_item"`)
}
