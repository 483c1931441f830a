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
	"strings"

	"github.com/uptrace/bun"
)

var baseModelType = reflect.TypeOf(bun.BaseModel{})

// TableNamer lets a model declare its table name explicitly.
type TableNamer interface {
	TableName() string
}

// TableName derives the default table name from a Go type name.
//
// An underscore is inserted before an upper case letter that follows a lower
// case letter or digit, and before an upper case letter that starts a new
// capitalised word. The result is lower cased and leading underscores are
// removed: UserAccount -> user_account, HTTPServer -> http_server.
func TableName(typeName string) string {
	var b strings.Builder
	b.Grow(len(typeName) + 4)
	for i := 0; i < len(typeName); i++ {
		c := typeName[i]
		if isUpper(c) && i > 0 {
			prev := typeName[i-1]
			nextLower := i+1 < len(typeName) && isLower(typeName[i+1])
			if isLower(prev) || isDigit(prev) || nextLower {
				b.WriteByte('_')
			}
		}
		b.WriteByte(c)
	}
	return strings.TrimLeft(strings.ToLower(b.String()), "_")
}

// ModelTableName returns the table a model maps to. A TableName method or a
// table tag on the embedded bun.BaseModel wins over the derived name.
func ModelTableName(model any) string {
	if name, ok := explicitTableName(model); ok {
		return name
	}
	return TableName(indirectType(reflect.TypeOf(model)).Name())
}

func explicitTableName(model any) (string, bool) {
	t := indirectType(reflect.TypeOf(model))
	if t.Kind() != reflect.Struct {
		return "", false
	}
	// a zero *T so that nil model pointers and value receivers both work
	if namer, ok := reflect.New(t).Interface().(TableNamer); ok {
		if name := namer.TableName(); name != "" {
			return name, true
		}
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous || f.Type != baseModelType {
			continue
		}
		for _, opt := range strings.Split(f.Tag.Get("bun"), ",") {
			if name, ok := strings.CutPrefix(strings.TrimSpace(opt), "table:"); ok && name != "" {
				return strings.Trim(name, `"`), true
			}
		}
	}
	return "", false
}

func indirectType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
