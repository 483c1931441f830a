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
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"

	memoryDatabase = ":memory:"
)

// URL is a parsed connection URL of the form
// dialect[+driver]://[user[:password]@][host[:port]]/[database][?query].
type URL struct {
	Dialect  string
	Driver   string
	Username string
	Password string
	Host     string
	Port     int
	Database string
	Query    url.Values
}

// ParseURL parses raw into a URL. It fails with ErrDatabaseURLInvalid when
// the string cannot be parsed or names an unsupported dialect.
func ParseURL(raw string) (*URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty url", ErrDatabaseURLInvalid)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseURLInvalid, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: missing dialect in %q", ErrDatabaseURLInvalid, raw)
	}

	dialect, driver, _ := strings.Cut(strings.ToLower(u.Scheme), "+")
	switch dialect {
	case "sqlite", "sqlite3":
		dialect = DialectSQLite
	case "postgres", "postgresql", "pg":
		dialect = DialectPostgres
	case "mysql", "mariadb":
		dialect = DialectMySQL
	default:
		return nil, fmt.Errorf("%w: unsupported dialect %q", ErrDatabaseURLInvalid, dialect)
	}

	out := &URL{
		Dialect: dialect,
		Driver:  driver,
		Host:    u.Hostname(),
		Query:   u.Query(),
	}
	if u.User != nil {
		out.Username = u.User.Username()
		out.Password, _ = u.User.Password()
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: bad port %q", ErrDatabaseURLInvalid, p)
		}
		out.Port = port
	}

	if dialect == DialectSQLite {
		// sqlite:///relative.db and sqlite:////abs.db, host part must be empty
		if out.Host != "" {
			return nil, fmt.Errorf("%w: sqlite url must not have a host", ErrDatabaseURLInvalid)
		}
		out.Database = strings.TrimPrefix(u.Path, "/")
		if out.Database == "" {
			out.Database = memoryDatabase
		}
		return out, nil
	}

	out.Database = strings.TrimPrefix(u.Path, "/")
	return out, nil
}

// IsMemory reports whether the URL points at a private in-memory database.
func (u *URL) IsMemory() bool {
	return u.Dialect == DialectSQLite && u.Database == memoryDatabase
}

// String renders the URL with the password masked.
func (u *URL) String() string {
	var b strings.Builder
	b.WriteString(u.Dialect)
	if u.Driver != "" {
		b.WriteString("+" + u.Driver)
	}
	b.WriteString("://")
	if u.Username != "" {
		b.WriteString(url.User(u.Username).String())
		if u.Password != "" {
			b.WriteString(":***")
		}
		b.WriteString("@")
	}
	b.WriteString(u.hostPort())
	b.WriteString("/" + u.Database)
	if len(u.Query) > 0 {
		b.WriteString("?" + u.Query.Encode())
	}
	return b.String()
}

func (u *URL) hostPort() string {
	if u.Host == "" {
		return ""
	}
	if u.Port == 0 {
		return u.Host
	}
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// DSN returns the data source name understood by the dialect's driver.
func (u *URL) DSN() string {
	switch u.Dialect {
	case DialectSQLite:
		return u.sqliteDSN()
	case DialectPostgres:
		return u.postgresDSN()
	case DialectMySQL:
		return u.mysqlDSN()
	}
	return ""
}

func (u *URL) sqliteDSN() string {
	if u.IsMemory() {
		if len(u.Query) == 0 {
			return memoryDatabase
		}
		return "file::memory:?" + u.Query.Encode()
	}
	if len(u.Query) == 0 {
		return u.Database
	}
	return "file:" + u.Database + "?" + u.Query.Encode()
}

// SharedMemoryDSN names an in-memory SQLite database so that every
// connection of one pool opens the same data. Readers skip table read locks,
// so a writer in one session is not blocked by a reader in another.
func (u *URL) SharedMemoryDSN(name string) string {
	q := url.Values{}
	for k, v := range u.Query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("mode", "memory")
	q.Set("cache", "shared")
	q.Add("_pragma", "read_uncommitted(1)")
	return "file:" + name + "?" + q.Encode()
}

func (u *URL) postgresDSN() string {
	q := url.Values{}
	for k, v := range u.Query {
		q[k] = v
	}
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "disable")
	}
	dsn := &url.URL{
		Scheme:   "postgres",
		Host:     u.hostPort(),
		Path:     "/" + u.Database,
		RawQuery: q.Encode(),
	}
	if u.Username != "" {
		if u.Password != "" {
			dsn.User = url.UserPassword(u.Username, u.Password)
		} else {
			dsn.User = url.User(u.Username)
		}
	}
	return dsn.String()
}

func (u *URL) mysqlDSN() string {
	cfg := mysql.NewConfig()
	cfg.User = u.Username
	cfg.Passwd = u.Password
	cfg.Net = "tcp"
	host, port := u.Host, u.Port
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = 3306
	}
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = u.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	params := map[string]string{"charset": "utf8mb4"}
	for k := range u.Query {
		params[k] = u.Query.Get(k)
	}
	cfg.Params = params
	return cfg.FormatDSN()
}
