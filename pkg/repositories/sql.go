package repositories

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// statements are the dialect-specific queries against the documents table.
type statements struct {
	get    string
	scan   string
	create string
	upsert string
	delete string
	// dialect renders the JSON filters of a query.
	dialect sqlDialect
}

// sqlDialect renders JSON field predicates. path and value are already placeholders.
type sqlDialect struct {
	placeholder   func(n int) string
	fieldEquals   func(path, value string) string
	arrayContains func(path, value string) string
	// path converts a split field path into the bind argument the predicates expect.
	path func(fields []string) interface{}
}

// buildScan extends the collection scan with the filters the database can evaluate.
// Only string comparisons are pushed down since JSON numbers and booleans compare differently
// per dialect. LIMIT is added only when every filter was pushed down. Rows are still checked
// by filterDocuments afterwards.
func buildScan(stmts statements, q Query) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(stmts.scan)
	args := []interface{}{q.Collection}
	bind := func(v interface{}) string {
		args = append(args, v)
		return stmts.dialect.placeholder(len(args))
	}

	complete := true
	for _, f := range q.Where {
		value, ok := stringValue(f.Value)
		if !ok {
			complete = false
			continue
		}
		fields := strings.Split(f.Field, ".")
		switch f.Op {
		case OpEqual:
			path := bind(stmts.dialect.path(fields))
			b.WriteString(" AND " + stmts.dialect.fieldEquals(path, bind(value)))
		case OpArrayContains:
			path := bind(stmts.dialect.path(fields))
			b.WriteString(" AND " + stmts.dialect.arrayContains(path, bind(value)))
		default:
			complete = false
		}
	}
	b.WriteString(" ORDER BY created_at, id")
	if complete && q.Limit > 0 {
		b.WriteString(" LIMIT " + bind(q.Limit))
	}
	return b.String(), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type rowsScanner interface {
	rowScanner
	Next() bool
	Err() error
	Close()
}

// sqlConn abstracts database/sql and pgx connections and transactions.
type sqlConn interface {
	queryRow(ctx context.Context, query string, args ...interface{}) rowScanner
	query(ctx context.Context, query string, args ...interface{}) (rowsScanner, error)
	exec(ctx context.Context, query string, args ...interface{}) (int64, error)
	// isNoRows reports whether err means the row did not exist.
	isNoRows(err error) bool
}

// sqlTx implements Tx by executing statements directly inside a database transaction.
type sqlTx struct {
	conn    sqlConn
	stmts   statements
	changes *writeSet
}

func newSQLTx(conn sqlConn, stmts statements) *sqlTx {
	return &sqlTx{
		conn:    conn,
		stmts:   stmts,
		changes: newWriteSet(),
	}
}

func getDocument(ctx context.Context, conn sqlConn, stmts statements, collection, id string) (*Document, error) {
	var data string
	var version, createdAt, updatedAt int64
	err := conn.queryRow(ctx, stmts.get, collection, id).Scan(&data, &version, &createdAt, &updatedAt)
	if err != nil {
		if conn.isNoRows(err) {
			return nil, &ErrNotFound{Collection: collection, ID: id}
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return &Document{
		Collection: collection,
		ID:         id,
		Data:       []byte(data),
		Version:    version,
		CreatedAt:  fromNanos(createdAt),
		UpdatedAt:  fromNanos(updatedAt),
	}, nil
}

func queryDocuments(ctx context.Context, conn sqlConn, stmts statements, q Query) ([]*Document, error) {
	query, args := buildScan(stmts, q)
	rows, err := conn.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var id, data string
		var version, createdAt, updatedAt int64
		if err := rows.Scan(&id, &data, &version, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", q.Collection, err)
		}
		docs = append(docs, &Document{
			Collection: q.Collection,
			ID:         id,
			Data:       []byte(data),
			Version:    version,
			CreatedAt:  fromNanos(createdAt),
			UpdatedAt:  fromNanos(updatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", q.Collection, err)
	}
	return filterDocuments(q, docs)
}

// stringValue accepts string and named string types such as status enums.
func stringValue(v interface{}) (string, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}

func (t *sqlTx) Get(ctx context.Context, collection, id string) (*Document, error) {
	return getDocument(ctx, t.conn, t.stmts, collection, id)
}

func (t *sqlTx) Query(ctx context.Context, q Query) ([]*Document, error) {
	return queryDocuments(ctx, t.conn, t.stmts, q)
}

func (t *sqlTx) Create(ctx context.Context, collection, id string, v interface{}) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	ts := now()
	n, err := t.conn.exec(ctx, t.stmts.create, collection, id, string(data), ts.UnixNano(), ts.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to create %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return &ErrAlreadyExists{Collection: collection, ID: id}
	}
	t.changes.record(docKey{collection, id}, write{doc: &Document{
		Collection: collection,
		ID:         id,
		Data:       data,
		Version:    1,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}})
	return nil
}

func (t *sqlTx) Set(ctx context.Context, collection, id string, v interface{}) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	ts := now()
	var version, createdAt int64
	err = t.conn.queryRow(ctx, t.stmts.upsert, collection, id, string(data), ts.UnixNano(), ts.UnixNano()).Scan(&version, &createdAt)
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	t.changes.record(docKey{collection, id}, write{doc: &Document{
		Collection: collection,
		ID:         id,
		Data:       data,
		Version:    version,
		CreatedAt:  fromNanos(createdAt),
		UpdatedAt:  ts,
	}})
	return nil
}

func (t *sqlTx) Delete(ctx context.Context, collection, id string) error {
	n, err := t.conn.exec(ctx, t.stmts.delete, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	if n > 0 {
		t.changes.record(docKey{collection, id}, write{deleted: true})
	}
	return nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
