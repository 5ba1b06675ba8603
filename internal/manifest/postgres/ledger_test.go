package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cc-text-pipeline/internal/manifest"
)

func TestRecordInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	entry := manifest.Entry{
		ObjectKey:   "extracted/2023/11/14/0190.parquet",
		URI:         "gs://bucket/extracted/2023/11/14/0190.parquet",
		Documents:   20,
		Bytes:       4096,
		SourceFiles: []string{"crawl-data/a.warc.gz"},
		CreatedAt:   now,
	}

	mock.ExpectExec("INSERT INTO flushed_objects").
		WithArgs(entry.ObjectKey, entry.URI, entry.Documents, entry.Bytes, entry.SourceFiles, entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, ledger.Record(context.Background(), entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDuplicateIsNoop(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewWithPool(mock, "objects")
	require.NoError(t, err)

	mock.ExpectExec("ON CONFLICT \\(object_key\\) DO NOTHING").
		WithArgs("k", "", 0, int64(0), []string{}, time.Time{}).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, ledger.Record(context.Background(), manifest.Entry{ObjectKey: "k"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPropagatesExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO flushed_objects").
		WithArgs("k", "", 0, int64(0), []string{}, time.Time{}).
		WillReturnError(errors.New("db down"))

	err = ledger.Record(context.Background(), manifest.Entry{ObjectKey: "k"})
	require.ErrorContains(t, err, "insert manifest entry")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS flushed_objects").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, ledger.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad-name;")
	require.Error(t, err)
}

func TestRecordRequiresKey(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, ledger.Record(context.Background(), manifest.Entry{}))
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
