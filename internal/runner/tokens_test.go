package runner

import (
	"context"
	"strings"
	"testing"

	"github.com/overlaypush/broadcast-backend/internal/blob"
)

func TestTokenReaderSkipsBlankAndPaddedLines(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	payload := "alpha\n\n  beta \r\n\ngamma"
	if err := blobs.Put(ctx, "p1", []byte(payload)); err != nil {
		t.Fatal(err)
	}

	reader, err := newTokenReader(ctx, blobs, "p1")
	if err != nil {
		t.Fatal(err)
	}
	tokens, err := reader.Next(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"alpha", "beta", "gamma"}
	if len(tokens) != len(want) {
		t.Fatalf("got %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("token %d = %q, want %q", i, tokens[i], want[i])
		}
	}

	tokens, err = reader.Next(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 0 {
		t.Fatalf("expected exhausted reader, got %v", tokens)
	}
}

func TestTokenReaderPagesAcrossRangeBoundaries(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()

	// A payload several pages long, with line breaks guaranteed to straddle
	// the ranged-read boundary.
	token := strings.Repeat("x", 150)
	total := readPageSize/len(token) + 5000
	var payload strings.Builder
	for i := 0; i < total; i++ {
		payload.WriteString(token)
		payload.WriteByte('\n')
	}
	if err := blobs.Put(ctx, "p2", []byte(payload.String())); err != nil {
		t.Fatal(err)
	}

	count, err := countRecipients(ctx, blobs, "p2", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if count != total {
		t.Fatalf("counted %d tokens, want %d", count, total)
	}

	reader, err := newTokenReader(ctx, blobs, "p2")
	if err != nil {
		t.Fatal(err)
	}
	read := 0
	for {
		tokens, err := reader.Next(ctx, 1000)
		if err != nil {
			t.Fatal(err)
		}
		if len(tokens) == 0 {
			break
		}
		for _, tok := range tokens {
			if tok != token {
				t.Fatalf("corrupted token after %d reads: %q", read, tok[:20])
			}
			read++
		}
	}
	if read != total {
		t.Fatalf("read %d tokens, want %d", read, total)
	}
}

func TestCountRecipientsMissingBlob(t *testing.T) {
	blobs := blob.NewMemoryStore()
	if _, err := countRecipients(context.Background(), blobs, "absent", 100); err == nil {
		t.Fatal("expected error for missing blob")
	}
}
