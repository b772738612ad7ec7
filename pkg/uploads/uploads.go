package uploads

import (
	"context"
	"errors"
	"io"

	"github.com/myhuemungusD/skatehubba-sub002/pkg/game/types"
)

// ErrTooLarge is returned by Spool when the payload exceeds its limit.
var ErrTooLarge = errors.New("payload exceeds size limit")

// ProgressFunc receives the number of bytes stored so far.
type ProgressFunc func(uploaded int64)

// BlobStore persists video payloads and returns their public URL.
// Body is read through ReaderAt so failed parts can be sent again.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, body io.ReaderAt, size int64, progress ProgressFunc) (string, error)
	Delete(ctx context.Context, key string) error
}

// Job is one spooled video waiting to be pushed to the blob store.
type Job struct {
	VideoID     string          `json:"videoId"`
	GameID      string          `json:"gameId"`
	RoundID     string          `json:"roundId"`
	OwnerUID    string          `json:"ownerUid"`
	Role        types.VideoRole `json:"role"`
	Key         string          `json:"key"`
	Path        string          `json:"path"`
	ContentType string          `json:"contentType"`
	Size        int64           `json:"size"`
}
