package manifest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryIgnoresDuplicateKeys(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	require.NoError(t, m.Record(ctx, Entry{ObjectKey: "a", Documents: 2, CreatedAt: now}))
	require.NoError(t, m.Record(ctx, Entry{ObjectKey: "a", Documents: 9, CreatedAt: now}))
	require.NoError(t, m.Record(ctx, Entry{ObjectKey: "b", Documents: 1, CreatedAt: now}))

	got := m.Entries()
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ObjectKey)
	require.Equal(t, 2, got[0].Documents)
	require.NoError(t, m.Close())
}

func TestSourceFiles(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a.warc.gz", "b.warc.gz"},
		SourceFiles([]string{"b.warc.gz", "a.warc.gz", "b.warc.gz"}))
	require.Empty(t, SourceFiles(nil))
}

func TestNoop(t *testing.T) {
	t.Parallel()

	var l Ledger = Noop{}
	require.NoError(t, l.Record(context.Background(), Entry{ObjectKey: "x"}))
	require.NoError(t, l.Close())
}
