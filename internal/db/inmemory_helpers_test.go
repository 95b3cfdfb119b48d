package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"
)

var inMemoryCounter uint64

// testEpoch is the frozen start time of FakeClock in package db tests.
var testEpoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// newInMemoryStore creates an isolated in-memory encrypted Store for package db tests.
// package testdb cannot be used here because it imports db.
func newInMemoryStore(clock Clock) (*Store, error) {
	name := fmt.Sprintf("dbtest-%d", atomic.AddUint64(&inMemoryCounter, 1))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma_key=x'%s'&_pragma_cipher_page_size=4096", name, testKeyHex)

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(10)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping in-memory database: %w", err)
	}

	if err := applyFastSQLitePragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply fast SQLite pragmas: %w", err)
	}

	store := NewStoreFromSQL(sqlDB, DialectSQLite, clock)
	if err := store.EnsureSchema(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return store, nil
}

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func applyFastSQLitePragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=MEMORY",
		"PRAGMA synchronous=OFF",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA secure_delete=OFF",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}
