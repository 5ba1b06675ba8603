package buffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cc-text-pipeline/internal/manifest"
	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeStore) PutObject(_ context.Context, path, contentType string, r io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.objects[path] = data
	s.types[path] = contentType
	return "mem://" + path, nil
}

func (s *fakeStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	return out
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%03d", g.n), nil
}

type failingLedger struct{}

func (failingLedger) Record(context.Context, manifest.Entry) error { return errors.New("ledger down") }
func (failingLedger) Close() error                                 { return nil }

func doc(i int) pipeline.ExtractedDocument {
	return pipeline.ExtractedDocument{
		SurtURL:  fmt.Sprintf("com,example)/%d", i),
		URL:      fmt.Sprintf("https://example.com/%d", i),
		Text:     fmt.Sprintf("document number %d", i),
		Filename: fmt.Sprintf("crawl-data/seg-%d.warc.gz", i%2),
		Offset:   int64(i * 100),
		Length:   int64(50 + i),
	}
}

var day = time.Date(2024, 7, 3, 15, 4, 5, 0, time.UTC)

func TestAddFlushesAtCapacity(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	ledger := manifest.NewMemory()
	b, err := New(Config{Capacity: 3, Prefix: "extracted/"}, store, fixedClock{day}, &seqIDs{}, WithLedger(ledger))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, b.Add(ctx, doc(i)))
	}
	require.Empty(t, store.keys())
	require.Equal(t, 2, b.Len())

	require.NoError(t, b.Add(ctx, doc(2)))
	require.Equal(t, 0, b.Len())
	require.Equal(t, []string{"extracted/2024/07/03/id-001.parquet"}, store.keys())
	require.Equal(t, ContentType, store.types["extracted/2024/07/03/id-001.parquet"])

	got, err := Decode(store.objects["extracted/2024/07/03/id-001.parquet"])
	require.NoError(t, err)
	require.Equal(t, []pipeline.ExtractedDocument{doc(0), doc(1), doc(2)}, got)

	entries := ledger.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, 3, entries[0].Documents)
	require.Equal(t, "mem://extracted/2024/07/03/id-001.parquet", entries[0].URI)
	require.Equal(t, []string{"crawl-data/seg-0.warc.gz", "crawl-data/seg-1.warc.gz"}, entries[0].SourceFiles)
	require.Equal(t, day, entries[0].CreatedAt)
}

func TestFlushEmptyIsNoop(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	b, err := New(Config{}, store, fixedClock{day}, &seqIDs{})
	require.NoError(t, err)

	res, err := b.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, FlushResult{}, res)
	require.Empty(t, store.keys())
}

func TestFlushFailureKeepsBuffer(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.err = errors.New("bucket unavailable")
	b, err := New(Config{Capacity: 2}, store, fixedClock{day}, &seqIDs{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Add(ctx, doc(0)))
	err = b.Add(ctx, doc(1))
	require.ErrorContains(t, err, "bucket unavailable")
	require.Equal(t, 2, b.Len())

	store.err = nil
	res, err := b.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Documents)
	require.Equal(t, 0, b.Len())

	got, err := Decode(store.objects[res.Key])
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestLedgerFailureDoesNotFailFlush(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	b, err := New(Config{Capacity: 5}, store, fixedClock{day}, &seqIDs{}, WithLedger(failingLedger{}))
	require.NoError(t, err)

	require.NoError(t, b.Add(context.Background(), doc(0)))
	res, err := b.Flush(context.Background())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.Key, "2024/07/03/"))
	require.Equal(t, 0, b.Len())
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	b, err := New(Config{Capacity: 5}, newFakeStore(), fixedClock{day}, &seqIDs{})
	require.NoError(t, err)
	require.NoError(t, b.Add(context.Background(), doc(0)))
	require.NoError(t, b.Add(context.Background(), doc(1)))
	require.Equal(t, 2, b.Discard())
	require.Equal(t, 0, b.Len())
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, fixedClock{day}, &seqIDs{})
	require.Error(t, err)
	_, err = New(Config{}, newFakeStore(), nil, &seqIDs{})
	require.Error(t, err)
}
