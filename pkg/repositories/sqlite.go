package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var sqliteStatements = statements{
	get: `SELECT data, version, created_at, updated_at FROM documents WHERE collection = ? AND id = ?;`,
	scan: `SELECT id, data, version, created_at, updated_at FROM documents WHERE collection = ?`,
	create: `INSERT INTO documents (collection, id, data, version, created_at, updated_at)
	VALUES (?, ?, ?, 1, ?, ?)
	ON CONFLICT (collection, id) DO NOTHING;`,
	upsert: `INSERT INTO documents (collection, id, data, version, created_at, updated_at)
	VALUES (?, ?, ?, 1, ?, ?)
	ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, version = documents.version + 1, updated_at = excluded.updated_at
	RETURNING version, created_at;`,
	delete: `DELETE FROM documents WHERE collection = ? AND id = ?;`,
	dialect: sqlDialect{
		placeholder: func(int) string { return "?" },
		fieldEquals: func(path, value string) string {
			return fmt.Sprintf("json_extract(data, %s) = %s", path, value)
		},
		arrayContains: func(path, value string) string {
			return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(data, %s) WHERE json_each.value = %s)", path, value)
		},
		path: func(fields []string) interface{} {
			return "$." + strings.Join(fields, ".")
		},
	},
}

type SQLiteRepository struct {
	db   *sql.DB
	opts Options
}

// NewSQLiteRepository opens the database at path and applies every migration in the migrations directory.
func NewSQLiteRepository(ctx context.Context, path string, migrations string, opts Options) (*SQLiteRepository, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := migrate(ctx, migrations, func(ctx context.Context, stmt string) error {
		_, err := db.ExecContext(ctx, stmt)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{
		db:   db,
		opts: opts,
	}, nil
}

// migrate executes the files of dir in lexical order.
func migrate(ctx context.Context, dir string, exec func(ctx context.Context, stmt string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %v", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		migrationPath := filepath.Join(dir, entry.Name())
		migration, err := os.ReadFile(migrationPath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %v", migrationPath, err)
		}

		if err := exec(ctx, string(migration)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %v", migrationPath, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) Get(ctx context.Context, collection, id string) (*Document, error) {
	return getDocument(ctx, sqliteConn{r.db}, sqliteStatements, collection, id)
}

func (r *SQLiteRepository) Query(ctx context.Context, q Query) ([]*Document, error) {
	return queryDocuments(ctx, sqliteConn{r.db}, sqliteStatements, q)
}

func (r *SQLiteRepository) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var lastErr error
	attempts := r.opts.maxAttempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		changes, err := r.runOnce(ctx, fn)
		if err == nil {
			r.opts.notify(ctx, changes)
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		lastErr = err
	}
	return &ErrConflict{Attempts: attempts, Err: lastErr}
}

func (r *SQLiteRepository) runOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) ([]Change, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stx := newSQLTx(sqliteConn{tx}, sqliteStatements)
	if err := fn(ctx, stx); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stx.changes.changes(), nil
}

func isSQLiteBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// sqliteConn adapts *sql.DB and *sql.Tx.
type sqliteConn struct {
	q sqliteQuerier
}

func (c sqliteConn) queryRow(ctx context.Context, query string, args ...interface{}) rowScanner {
	return c.q.QueryRowContext(ctx, query, args...)
}

func (c sqliteConn) query(ctx context.Context, query string, args ...interface{}) (rowsScanner, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (c sqliteConn) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c sqliteConn) isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	r.Rows.Close()
}
