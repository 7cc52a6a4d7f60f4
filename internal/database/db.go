package database

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// 利用可能なdatabase/sqlドライバ名
const (
	DriverPostgres = "postgres" // lib/pq
	DriverPgx      = "pgx"      // jackc/pgx/v5/stdlib
)

// Options はデータベース接続の設定。
type Options struct {
	Driver       string
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// Open はPostgreSQLデータベース接続を開く。
// ドライバは "postgres"（lib/pq）と "pgx"（pgx/v5/stdlib）から選択する。空なら "postgres"。
// sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
func Open(opts Options) (*sql.DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverPostgres
	}
	if driver != DriverPostgres && driver != DriverPgx {
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}

	db, err := sql.Open(driver, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}

	return db, nil
}
