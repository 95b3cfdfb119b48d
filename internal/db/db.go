package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	// DefaultPath is the default SQLite database file.
	DefaultPath = "./data/notes.db"

	// MaxOpenConns is the default maximum number of open connections.
	// SQLite is single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 10

	// MaxIdleConns is the default maximum number of idle connections.
	MaxIdleConns = 2

	noteColumns = "id, title, content, tags, created_at, updated_at"
)

// Options configures Open.
type Options struct {
	Driver Dialect
	// Path is the SQLite database file (sqlite only).
	Path string
	// Key is an optional 64-hex-character SQLCipher key (sqlite only).
	Key string
	// DSN is the go-sql-driver/mysql data source name (mysql only).
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	Clock        Clock
}

// Note is a persisted note row. Timestamps are Unix milliseconds.
type Note struct {
	ID        int64
	Title     string
	Content   string
	Tags      []string
	CreatedAt int64
	UpdatedAt int64
}

// UpdateResult reports the outcome of Update.
type UpdateResult struct {
	ID        int64
	UpdatedAt int64
	Changed   bool
}

// Store is the relational storage adapter for notes.
type Store struct {
	db      *sql.DB
	dialect Dialect
	stamps  *stamper
}

// NewStoreFromSQL wraps an existing sql.DB as Store. The schema is not created.
func NewStoreFromSQL(sqlDB *sql.DB, dialect Dialect, clock Clock) *Store {
	if clock == nil {
		clock = SystemClock{}
	}
	if dialect == "" {
		dialect = DialectSQLite
	}
	return &Store{
		db:      sqlDB,
		dialect: dialect,
		stamps:  &stamper{clock: clock},
	}
}

// Open opens the configured database, verifies the connection and
// initializes the schema. The returned Store owns the pool.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = DialectSQLite
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = MaxOpenConns
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = MaxIdleConns
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	switch opts.Driver {
	case DialectSQLite:
		sqlDB, err = openSQLite(opts)
	case DialectMySQL:
		sqlDB, err = openMySQL(opts)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)

	// Verify connection. With a wrong SQLCipher key this is the first failure.
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", opts.Driver, err)
	}

	store := NewStoreFromSQL(sqlDB, opts.Driver, opts.Clock)
	if err := store.EnsureSchema(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return store, nil
}

func openSQLite(opts Options) (*sql.DB, error) {
	path := opts.Path
	if path == "" {
		path = DefaultPath
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := path
	if opts.Key != "" {
		key, err := hex.DecodeString(opts.Key)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("database key must be 64 hex characters")
		}
		// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
		dsn = appendSQLiteParams(dsn, fmt.Sprintf("_pragma_key=x'%s'&_pragma_cipher_page_size=4096", opts.Key))
	}
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return sqlDB, nil
}

func openMySQL(opts Options) (*sql.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("mysql driver requires a DSN")
	}
	cfg, err := mysql.ParseDSN(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mysql DSN: %w", err)
	}
	// Affected-row counts must mean "matched" for Update's changed flag,
	// and migration files may hold several statements.
	cfg.ClientFoundRows = true
	cfg.MultiStatements = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func sqliteCommonParams() string {
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// DB returns the underlying sql.DB for direct access when needed
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// EnsureSchema creates the notes tables and indexes if absent. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize %s schema: %w", s.dialect, err)
		}
	}
	return nil
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ListAll returns every note, most recently updated first.
func (s *Store) ListAll(ctx context.Context) ([]Note, error) {
	return s.queryNotes(ctx,
		"SELECT "+noteColumns+" FROM notes ORDER BY updated_at DESC, id DESC")
}

// ListByTag returns the notes carrying tag, most recently updated first.
func (s *Store) ListByTag(ctx context.Context, tag string) ([]Note, error) {
	return s.queryNotes(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE id IN (SELECT note_id FROM note_tags WHERE tag = ?) ORDER BY updated_at DESC, id DESC",
		tag)
}

// Get returns the note with id, or nil when no row matches.
func (s *Store) Get(ctx context.Context, id int64) (*Note, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ?", id)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note %d: %w", id, err)
	}
	return note, nil
}

// Insert persists a new note and returns it with its generated id and timestamps.
func (s *Store) Insert(ctx context.Context, title, content string, tags []string) (*Note, error) {
	tagsJSON, err := encodeTags(tags)
	if err != nil {
		return nil, err
	}

	var note *Note
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		now, err := s.stampAfterLatest(ctx, tx)
		if err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO notes (title, content, tags, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			title, content, tagsJSON, now, now)
		if err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert note: read id: %w", err)
		}
		if err := insertTags(ctx, tx, id, tags); err != nil {
			return err
		}
		note = &Note{
			ID:        id,
			Title:     title,
			Content:   content,
			Tags:      append([]string{}, tags...),
			CreatedAt: now,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// Update overwrites title, content and tags of note id and refreshes updated_at.
// Zero affected rows is reported as Changed=false, not as an error.
func (s *Store) Update(ctx context.Context, id int64, title, content string, tags []string) (UpdateResult, error) {
	tagsJSON, err := encodeTags(tags)
	if err != nil {
		return UpdateResult{}, err
	}

	result := UpdateResult{ID: id}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		now, err := s.stampAfterLatest(ctx, tx)
		if err != nil {
			return fmt.Errorf("update note %d: %w", id, err)
		}
		// The row's own updated_at + 1 keeps the write advancing even if a
		// concurrent writer committed after the stamp was taken.
		res, err := tx.ExecContext(ctx,
			"UPDATE notes SET title = ?, content = ?, tags = ?, updated_at = "+s.dialect.greatest()+"(?, updated_at + 1) WHERE id = ?",
			title, content, tagsJSON, now, id)
		if err != nil {
			return fmt.Errorf("update note %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update note %d: rows affected: %w", id, err)
		}
		if affected == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM note_tags WHERE note_id = ?", id); err != nil {
			return fmt.Errorf("update note %d: clear tags: %w", id, err)
		}
		if err := insertTags(ctx, tx, id, tags); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, "SELECT updated_at FROM notes WHERE id = ?", id).Scan(&result.UpdatedAt); err != nil {
			return fmt.Errorf("update note %d: read updated_at: %w", id, err)
		}
		result.Changed = true
		return nil
	})
	if err != nil {
		return UpdateResult{}, err
	}
	return result, nil
}

// stampAfterLatest returns a write timestamp later than every updated_at in
// the table, so a writer whose clock lags still orders its write first in lists.
func (s *Store) stampAfterLatest(ctx context.Context, tx *sql.Tx) (int64, error) {
	var latest int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(updated_at), 0) FROM notes").Scan(&latest); err != nil {
		return 0, fmt.Errorf("read latest updated_at: %w", err)
	}
	return s.stamps.after(latest), nil
}

// Delete removes note id. Zero affected rows is reported as false, not as an error.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	var changed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM note_tags WHERE note_id = ?", id); err != nil {
			return fmt.Errorf("delete note %d: clear tags: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete note %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete note %d: rows affected: %w", id, err)
		}
		changed = affected > 0
		return nil
	})
	return changed, err
}

// ListTags returns the distinct tags across all notes in lexicographic order.
func (s *Store) ListTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT tag FROM note_tags ORDER BY tag")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("list tags: scan: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

func (s *Store) queryNotes(ctx context.Context, query string, args ...any) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("list notes: scan: %w", err)
		}
		notes = append(notes, *note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*Note, error) {
	var (
		note     Note
		tagsJSON []byte
	)
	if err := row.Scan(&note.ID, &note.Title, &note.Content, &tagsJSON, &note.CreatedAt, &note.UpdatedAt); err != nil {
		return nil, err
	}
	tags, err := decodeTags(tagsJSON)
	if err != nil {
		return nil, fmt.Errorf("note %d: %w", note.ID, err)
	}
	note.Tags = tags
	return &note, nil
}

func insertTags(ctx context.Context, tx *sql.Tx, noteID int64, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO note_tags (note_id, tag) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare tag insert: %w", err)
	}
	defer stmt.Close()
	for _, tag := range tags {
		if _, err := stmt.ExecContext(ctx, noteID, tag); err != nil {
			return fmt.Errorf("insert tag for note %d: %w", noteID, err)
		}
	}
	return nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(raw []byte) ([]string, error) {
	tags := []string{}
	if len(raw) == 0 {
		return tags, nil
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

// UnixMilli converts a stored timestamp to UTC time.
func UnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
