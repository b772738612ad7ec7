package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/myhuemungusD/skatehubba-sub002/pkg/log"
)

var postgresStatements = statements{
	get: `SELECT data::text, version, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2;`,
	scan: `SELECT id, data::text, version, created_at, updated_at FROM documents WHERE collection = $1`,
	create: `INSERT INTO documents (collection, id, data, version, created_at, updated_at)
	VALUES ($1, $2, $3::text::jsonb, 1, $4, $5)
	ON CONFLICT (collection, id) DO NOTHING;`,
	upsert: `INSERT INTO documents (collection, id, data, version, created_at, updated_at)
	VALUES ($1, $2, $3::text::jsonb, 1, $4, $5)
	ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, version = documents.version + 1, updated_at = excluded.updated_at
	RETURNING version, created_at;`,
	delete: `DELETE FROM documents WHERE collection = $1 AND id = $2;`,
	dialect: sqlDialect{
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		fieldEquals: func(path, value string) string {
			return fmt.Sprintf("data #>> %s::text[] = %s::text", path, value)
		},
		arrayContains: func(path, value string) string {
			return fmt.Sprintf("data #> %s::text[] @> jsonb_build_array(%s::text)", path, value)
		},
		path: func(fields []string) interface{} {
			return fields
		},
	},
}

// SQLSTATE codes that mean the transaction lost a serialization race.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
	opts Options
}

// NewPostgresRepository connects to the database and applies every migration in the migrations directory.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string, migrations string, opts Options) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	var username string
	var database string
	if err := pool.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to query database: %v", err)
	}
	log.Info("Connected to %s as %s", database, username)

	if err := migrate(ctx, migrations, func(ctx context.Context, stmt string) error {
		_, err := pool.Exec(ctx, stmt)
		return err
	}); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresRepository{
		pool: pool,
		opts: opts,
	}, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, collection, id string) (*Document, error) {
	return getDocument(ctx, pgConn{r.pool}, postgresStatements, collection, id)
}

func (r *PostgresRepository) Query(ctx context.Context, q Query) ([]*Document, error) {
	return queryDocuments(ctx, pgConn{r.pool}, postgresStatements, q)
}

func (r *PostgresRepository) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var lastErr error
	attempts := r.opts.maxAttempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		changes, err := r.runOnce(ctx, fn)
		if err == nil {
			r.opts.notify(ctx, changes)
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		log.Debug("Retrying contended transaction (attempt %d): %v", attempt, err)
		lastErr = err
	}
	return &ErrConflict{Attempts: attempts, Err: lastErr}
}

func (r *PostgresRepository) runOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) ([]Change, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ptx := newSQLTx(pgConn{tx}, postgresStatements)
	if err := fn(ctx, ptx); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ptx.changes.changes(), nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// pgConn adapts *pgxpool.Pool and pgx.Tx.
type pgConn struct {
	q pgQuerier
}

func (c pgConn) queryRow(ctx context.Context, query string, args ...interface{}) rowScanner {
	return c.q.QueryRow(ctx, query, args...)
}

func (c pgConn) query(ctx context.Context, query string, args ...interface{}) (rowsScanner, error) {
	return c.q.Query(ctx, query, args...)
}

func (c pgConn) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	tag, err := c.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c pgConn) isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
