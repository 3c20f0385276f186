// internal/runner/tokens.go
package runner

import (
	"bytes"
	"context"
	"strings"

	"github.com/overlaypush/broadcast-backend/internal/blob"
)

// readPageSize is how much of a payload blob is pulled per ranged read.
// Keeps memory bounded for payloads far larger than one request cycle.
const readPageSize = 256 * 1024

// tokenReader pages through a payload blob and yields recipient tokens, one
// per non-blank line. A partial trailing line is carried over between pages.
type tokenReader struct {
	store blob.Store
	id    string
	size  int64
	off   int64
	rem   []byte
	done  bool
}

func newTokenReader(ctx context.Context, store blob.Store, id string) (*tokenReader, error) {
	size, err := store.Len(ctx, id)
	if err != nil {
		return nil, err
	}
	return &tokenReader{store: store, id: id, size: size}, nil
}

// Next returns up to n tokens; an empty slice means the payload is
// exhausted.
func (r *tokenReader) Next(ctx context.Context, n int) ([]string, error) {
	tokens := make([]string, 0, n)
	for len(tokens) < n {
		for len(tokens) < n {
			idx := bytes.IndexByte(r.rem, '\n')
			if idx < 0 {
				break
			}
			line := strings.TrimSpace(string(r.rem[:idx]))
			r.rem = r.rem[idx+1:]
			if line != "" {
				tokens = append(tokens, line)
			}
		}
		if len(tokens) >= n {
			break
		}
		if r.off >= r.size {
			if !r.done {
				r.done = true
				if line := strings.TrimSpace(string(r.rem)); line != "" {
					tokens = append(tokens, line)
				}
				r.rem = nil
			}
			break
		}
		page, err := r.store.GetRange(ctx, r.id, r.off, readPageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			// Blob shrank underneath us; treat as end of input.
			r.off = r.size
			continue
		}
		r.off += int64(len(page))
		r.rem = append(r.rem, page...)
	}
	return tokens, nil
}

// countRecipients scans the whole payload once to establish the totals the
// progress counters are reported against.
func countRecipients(ctx context.Context, store blob.Store, id string, pageTokens int) (int, error) {
	reader, err := newTokenReader(ctx, store, id)
	if err != nil {
		return 0, err
	}
	total := 0
	for {
		tokens, err := reader.Next(ctx, pageTokens)
		if err != nil {
			return 0, err
		}
		if len(tokens) == 0 {
			return total, nil
		}
		total += len(tokens)
	}
}
