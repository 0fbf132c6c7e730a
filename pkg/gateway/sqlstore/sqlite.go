package sqlstore

import (
	"bytes"
	"database/sql"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// SQLiteDriver is the driver name Open uses for DialectSQLite. Its connections
// replace SQLite's ASCII-only lower() with a Unicode-aware one, so LOWER(column)
// folds the same way as a term lowered in Go.
const SQLiteDriver = "sqlite3_unicode"

func init() {
	sql.Register(SQLiteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", unicodeLower, true)
		},
	})
}

// unicodeLower passes NULL and numbers through like the built-in
func unicodeLower(v any) any {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		return bytes.ToLower(s)
	}
	return v
}

func (d Dialect) driverName() string {
	if d == DialectSQLite {
		return SQLiteDriver
	}
	return string(d)
}
