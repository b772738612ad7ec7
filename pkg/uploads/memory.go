package uploads

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryObject is a blob held by MemoryStore.
type MemoryObject struct {
	ContentType string
	Data        []byte
}

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	baseURL string

	lock    sync.Mutex
	objects map[string]MemoryObject
	failure error
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: baseURL,
		objects: make(map[string]MemoryObject),
	}
}

// FailWith makes every following Upload return err. A nil err clears it.
func (s *MemoryStore) FailWith(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failure = err
}

func (s *MemoryStore) Upload(ctx context.Context, key, contentType string, body io.ReaderAt, size int64, progress ProgressFunc) (string, error) {
	s.lock.Lock()
	failure := s.failure
	s.lock.Unlock()
	if failure != nil {
		return "", failure
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.NewSectionReader(body, 0, size))
	if err != nil {
		return "", fmt.Errorf("failed to read upload body: %w", err)
	}
	if progress != nil {
		progress(int64(len(data)))
	}

	s.lock.Lock()
	s.objects[key] = MemoryObject{ContentType: contentType, Data: data}
	s.lock.Unlock()
	return fmt.Sprintf("%s/%s", s.baseURL, key), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.objects, key)
	return nil
}

// Object returns the blob stored under key.
func (s *MemoryStore) Object(key string) (MemoryObject, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	obj, ok := s.objects[key]
	return obj, ok
}
