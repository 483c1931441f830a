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
	"github.com/uptrace/bun"
)

func TestTableName(t *testing.T) {
	cases := map[string]string{
		"UserAccount":  "user_account",
		"HTTPServer":   "http_server",
		"Model2X":      "model2_x",
		"UserA":        "user_a",
		"User":         "user",
		"user":         "user",
		"APIKeyV2":     "api_key_v2",
		"OAuthToken":   "o_auth_token",
		"_Hidden":      "hidden",
		"SystemConfig": "system_config",
		"ID":           "id",
		"":             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, TableName(in), in)
	}
}

type namedByMethod struct {
	bun.BaseModel

	ID int64 `bun:"id,pk"`
}

func (namedByMethod) TableName() string { return "custom_things" }

type namedByTag struct {
	bun.BaseModel `bun:"table:tagged_things,alias:t"`

	ID int64 `bun:"id,pk"`
}

type OrderLine struct {
	bun.BaseModel

	ID int64 `bun:"id,pk"`
}

func TestModelTableName(t *testing.T) {
	assert.Equal(t, "custom_things", ModelTableName((*namedByMethod)(nil)))
	assert.Equal(t, "custom_things", ModelTableName(namedByMethod{}))
	assert.Equal(t, "tagged_things", ModelTableName(&namedByTag{}))
	assert.Equal(t, "order_line", ModelTableName((*OrderLine)(nil)))
	assert.Equal(t, "order_line", ModelTableName(&[]*OrderLine{}))
}
