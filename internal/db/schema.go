package db

// SQL schema definitions for the notes store. Each dialect gets its own
// statement list; statements are idempotent and run on every Open.

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// SQLiteSchema creates the notes tables for the embedded store.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS notes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',  -- JSON array of normalized tags
    created_at INTEGER NOT NULL,      -- Unix milliseconds
    updated_at INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_updated_at ON notes(updated_at DESC)`,
	// Tag membership index: one row per (note, tag).
	`CREATE TABLE IF NOT EXISTS note_tags (
    note_id INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
    tag TEXT NOT NULL,
    PRIMARY KEY (note_id, tag)
)`,
	`CREATE INDEX IF NOT EXISTS idx_note_tags_tag ON note_tags(tag)`,
}

// MySQLSchema creates the notes tables for a networked MySQL store.
// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
// utf8mb4_bin keeps tag matching exact and ordering bytewise.
var MySQLSchema = []string{
	`CREATE TABLE IF NOT EXISTS notes (
    id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    tags JSON NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    INDEX idx_notes_updated_at (updated_at DESC)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS note_tags (
    note_id BIGINT NOT NULL,
    tag VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
    PRIMARY KEY (note_id, tag),
    INDEX idx_note_tags_tag (tag),
    CONSTRAINT fk_note_tags_note FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

const sqliteMigrationsTable = `CREATE TABLE IF NOT EXISTS migrations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    executed_at INTEGER NOT NULL
)`

const mysqlMigrationsTable = `CREATE TABLE IF NOT EXISTS migrations (
    id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    name VARCHAR(255) NOT NULL UNIQUE,
    executed_at BIGINT NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

func (d Dialect) schema() []string {
	if d == DialectMySQL {
		return MySQLSchema
	}
	return SQLiteSchema
}

func (d Dialect) migrationsTable() string {
	if d == DialectMySQL {
		return mysqlMigrationsTable
	}
	return sqliteMigrationsTable
}

// greatest is the two-argument maximum function of the dialect.
func (d Dialect) greatest() string {
	if d == DialectMySQL {
		return "GREATEST"
	}
	return "MAX"
}
