// internal/blob/store.go
package blob

import "context"

// Store holds the recipient-list payload for a campaign, keyed by campaign
// id, independently of the campaign record (arena/index split: records are
// small and structured, payloads are large and opaque).
//
// GetRange lets callers page through a payload without materializing the
// whole blob more than once per run. Delete is idempotent.
type Store interface {
	Put(ctx context.Context, id string, payload []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	GetRange(ctx context.Context, id string, offset, length int64) ([]byte, error)
	Len(ctx context.Context, id string) (int64, error)
	Delete(ctx context.Context, id string) error
}
