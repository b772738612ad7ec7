package repositories

import (
	"context"
	"sync"
)

// MemoryRepository keeps documents in process. Transactions are serialized by a single lock.
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string]map[string]*Document
	opts Options
}

func NewMemoryRepository(opts Options) *MemoryRepository {
	return &MemoryRepository{
		docs: make(map[string]map[string]*Document),
		opts: opts,
	}
}

func (r *MemoryRepository) Close(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, collection, id string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return memoryReader{r}.load(ctx, collection, id)
}

func (r *MemoryRepository) Query(ctx context.Context, q Query) ([]*Document, error) {
	r.mu.RLock()
	docs, err := memoryReader{r}.scan(ctx, q.Collection)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return filterDocuments(q, docs)
}

func (r *MemoryRepository) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.mu.Lock()
	if err := ctx.Err(); err != nil {
		r.mu.Unlock()
		return err
	}
	tx := newBufferedTx(memoryReader{r})
	if err := fn(ctx, tx); err != nil {
		r.mu.Unlock()
		return err
	}
	changes := tx.writes.changes()
	for _, c := range changes {
		if c.Deleted {
			delete(r.docs[c.Collection], c.ID)
			continue
		}
		coll, ok := r.docs[c.Collection]
		if !ok {
			coll = make(map[string]*Document)
			r.docs[c.Collection] = coll
		}
		coll[c.ID] = c.Document
	}
	r.mu.Unlock()

	r.opts.notify(ctx, changes)
	return nil
}

// memoryReader reads committed documents. The caller holds the repository lock.
type memoryReader struct {
	r *MemoryRepository
}

func (m memoryReader) load(ctx context.Context, collection, id string) (*Document, error) {
	doc, ok := m.r.docs[collection][id]
	if !ok {
		return nil, &ErrNotFound{Collection: collection, ID: id}
	}
	return copyDocument(doc), nil
}

func (m memoryReader) scan(ctx context.Context, collection string) ([]*Document, error) {
	coll := m.r.docs[collection]
	docs := make([]*Document, 0, len(coll))
	for _, doc := range coll {
		docs = append(docs, copyDocument(doc))
	}
	return docs, nil
}

func (m memoryReader) scanPages(ctx context.Context, collection string, fn func(page []*Document) (bool, error)) error {
	docs, err := m.scan(ctx, collection)
	if err != nil {
		return err
	}
	sortDocuments(docs)
	_, err = fn(docs)
	return err
}

func copyDocument(doc *Document) *Document {
	c := *doc
	c.Data = append([]byte(nil), doc.Data...)
	return &c
}
