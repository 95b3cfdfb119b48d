package testdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/kuitang/tagnotes/internal/db"
)

// TestKey is the SQLCipher key used for in-memory test databases.
const TestKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// NewStoreInMemory creates an in-memory encrypted Store for tests.
// Each call with an empty name gets an isolated database. A nil clock
// means the system clock.
func NewStoreInMemory(name string, clock db.Clock) (*db.Store, error) {
	if name == "" {
		name = "notes-" + uuid.NewString()
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma_key=x'%s'&_pragma_cipher_page_size=4096", name, TestKey)

	sqlDB, err := sql.Open(db.SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	// The shared-cache database lives as long as one connection stays open.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(10)

	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify in-memory database: %w", err)
	}

	if err := applyFastSQLitePragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply fast SQLite pragmas: %w", err)
	}

	store := db.NewStoreFromSQL(sqlDB, db.DialectSQLite, clock)
	if err := store.EnsureSchema(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize in-memory schema: %w", err)
	}
	return store, nil
}

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
