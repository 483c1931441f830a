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
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	assert.EqualError(t, ErrSessionNotInitialized, "Session not initialized")
	assert.EqualError(t, ErrDatabaseURLNotInitialized, "Database URL not set")
	assert.EqualError(t, ErrDatabaseURLInvalid, "Database URL invalid")
	assert.EqualError(t, ErrEngineNotInitialized, "Engine not initialized")
}

func TestIsSqlError(t *testing.T) {
	is, kind := IsSqlError(nil)
	assert.False(t, is)
	assert.Equal(t, UnknownErr, kind)

	is, kind = IsSqlError(fmt.Errorf("load: %w", sql.ErrNoRows))
	assert.True(t, is)
	assert.Equal(t, NoRowsErr, kind)
	assert.True(t, IsNoRows(sql.ErrNoRows))

	is, kind = IsSqlError(fmt.Errorf("save: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.True(t, is)
	assert.Equal(t, DuplicateKeyErr, kind)

	is, kind = IsSqlError(&pq.Error{Code: "23503"})
	assert.True(t, is)
	assert.Equal(t, ForeignKeyViolationErr, kind)

	is, kind = IsSqlError(errors.New("no such table: widgets"))
	assert.True(t, is)
	assert.Equal(t, NoTableErr, kind)
	assert.Equal(t, "no_table", kind.String())

	is, _ = IsSqlError(errors.New("connection reset by peer"))
	assert.False(t, is)
}

func TestIsSqlErrorFromSQLite(t *testing.T) {
	db := newTestDatabase(t, (*UserAccount)(nil))

	err := db.ScopedSession(context.Background(), func(ctx context.Context, s *Session) error {
		require.NoError(t, s.Add(ctx, &UserAccount{Name: "alice"}))
		return s.Add(ctx, &UserAccount{Name: "alice"})
	})
	require.Error(t, err)
	is, kind := IsSqlError(err)
	assert.True(t, is)
	assert.Equal(t, DuplicateKeyErr, kind)
}
