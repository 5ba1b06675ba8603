package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cc-text-pipeline/internal/manifest"
)

func TestLedgerRecordAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer l.Close() //nolint:errcheck

	t0 := time.Unix(1700000000, 0).UTC()
	first := manifest.Entry{
		ObjectKey:   "extracted/2023/11/14/a.parquet",
		URI:         "file:///tmp/a.parquet",
		Documents:   3,
		Bytes:       1024,
		SourceFiles: []string{"x.warc.gz", "y.warc.gz"},
		CreatedAt:   t0,
	}
	second := manifest.Entry{ObjectKey: "extracted/2023/11/14/b.parquet", URI: "u", Documents: 1, Bytes: 10, CreatedAt: t0.Add(time.Minute)}

	require.NoError(t, l.Record(ctx, first))
	require.NoError(t, l.Record(ctx, second))
	dup := first
	dup.Documents = 99
	require.NoError(t, l.Record(ctx, dup))

	got, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, first, got[0])
	require.Equal(t, []string{}, got[1].SourceFiles)
}

func TestLedgerPersistsToFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "manifest.db")

	l, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, manifest.Entry{ObjectKey: "k", CreatedAt: time.Unix(1, 0).UTC()}))
	require.NoError(t, l.Close())

	l, err = Open(ctx, path)
	require.NoError(t, err)
	defer l.Close() //nolint:errcheck
	got, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "k", got[0].ObjectKey)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), " ")
	require.Error(t, err)
}
