package repositories

import (
	"context"
)

type docKey struct {
	collection string
	id         string
}

type write struct {
	doc     *Document
	deleted bool
}

// writeSet buffers the writes of a transaction in order of first touch.
type writeSet struct {
	order  []docKey
	writes map[docKey]write
}

func newWriteSet() *writeSet {
	return &writeSet{writes: make(map[docKey]write)}
}

func (w *writeSet) record(k docKey, wr write) {
	if _, ok := w.writes[k]; !ok {
		w.order = append(w.order, k)
	}
	w.writes[k] = wr
}

func (w *writeSet) lookup(k docKey) (write, bool) {
	wr, ok := w.writes[k]
	return wr, ok
}

func (w *writeSet) changes() []Change {
	changes := make([]Change, 0, len(w.order))
	for _, k := range w.order {
		wr := w.writes[k]
		changes = append(changes, Change{
			Collection: k.collection,
			ID:         k.id,
			Deleted:    wr.deleted,
			Document:   wr.doc,
		})
	}
	return changes
}

// snapshotReader loads committed state for a bufferedTx.
type snapshotReader interface {
	load(ctx context.Context, collection, id string) (*Document, error)
	// scanPages passes committed documents to fn oldest first until fn returns true.
	scanPages(ctx context.Context, collection string, fn func(page []*Document) (bool, error)) error
}

// bufferedTx implements Tx over a snapshotReader, holding writes until commit.
type bufferedTx struct {
	reader snapshotReader
	writes *writeSet
}

func newBufferedTx(r snapshotReader) *bufferedTx {
	return &bufferedTx{
		reader: r,
		writes: newWriteSet(),
	}
}

func (t *bufferedTx) Get(ctx context.Context, collection, id string) (*Document, error) {
	if wr, ok := t.writes.lookup(docKey{collection, id}); ok {
		if wr.deleted {
			return nil, &ErrNotFound{Collection: collection, ID: id}
		}
		return wr.doc, nil
	}
	return t.reader.load(ctx, collection, id)
}

func (t *bufferedTx) Query(ctx context.Context, q Query) ([]*Document, error) {
	seen := make(map[string]bool)
	docs, err := queryPages(ctx, t.reader, q, func(doc *Document) *Document {
		seen[doc.ID] = true
		if wr, ok := t.writes.lookup(docKey{q.Collection, doc.ID}); ok {
			return wr.doc
		}
		return doc
	})
	if err != nil {
		return nil, err
	}
	if q.Limit > 0 && len(docs) >= q.Limit {
		return docs, nil
	}

	// The scan saw every committed document, so the rest are created in this transaction.
	var pending []*Document
	for _, k := range t.writes.order {
		if k.collection != q.Collection || seen[k.id] {
			continue
		}
		if wr := t.writes.writes[k]; !wr.deleted {
			pending = append(pending, wr.doc)
		}
	}
	more, err := filterDocuments(Query{Collection: q.Collection, Where: q.Where}, pending)
	if err != nil {
		return nil, err
	}
	for _, doc := range more {
		if q.Limit > 0 && len(docs) == q.Limit {
			break
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// queryPages returns the committed documents matching q, stopping once q.Limit is reached.
// resolve may swap a committed document for its pending version, or drop it by returning nil.
func queryPages(ctx context.Context, r snapshotReader, q Query, resolve func(*Document) *Document) ([]*Document, error) {
	m, err := compile(q)
	if err != nil {
		return nil, err
	}
	var out []*Document
	err = r.scanPages(ctx, q.Collection, func(page []*Document) (bool, error) {
		for _, doc := range page {
			if resolve != nil {
				if doc = resolve(doc); doc == nil {
					continue
				}
			}
			ok, err := m.match(doc)
			if err != nil {
				return false, err
			}
			if !ok {
				continue
			}
			out = append(out, doc)
			if q.Limit > 0 && len(out) == q.Limit {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *bufferedTx) current(ctx context.Context, collection, id string) (*Document, error) {
	doc, err := t.Get(ctx, collection, id)
	if IsNotFound(err) {
		return nil, nil
	}
	return doc, err
}

func (t *bufferedTx) Create(ctx context.Context, collection, id string, v interface{}) error {
	existing, err := t.current(ctx, collection, id)
	if err != nil {
		return err
	}
	if existing != nil {
		return &ErrAlreadyExists{Collection: collection, ID: id}
	}
	return t.put(collection, id, v, nil)
}

func (t *bufferedTx) Set(ctx context.Context, collection, id string, v interface{}) error {
	existing, err := t.current(ctx, collection, id)
	if err != nil {
		return err
	}
	return t.put(collection, id, v, existing)
}

func (t *bufferedTx) put(collection, id string, v interface{}, existing *Document) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	ts := now()
	doc := &Document{
		Collection: collection,
		ID:         id,
		Data:       data,
		Version:    1,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if existing != nil {
		doc.Version = existing.Version + 1
		doc.CreatedAt = existing.CreatedAt
	}
	t.writes.record(docKey{collection, id}, write{doc: doc})
	return nil
}

func (t *bufferedTx) Delete(ctx context.Context, collection, id string) error {
	existing, err := t.current(ctx, collection, id)
	if err != nil {
		return err
	}
	k := docKey{collection, id}
	if existing == nil {
		if _, ok := t.writes.lookup(k); !ok {
			return nil
		}
	}
	t.writes.record(k, write{deleted: true})
	return nil
}
