package queue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
)

func TestEncodeBatchWireFormat(t *testing.T) {
	t.Parallel()

	body, err := EncodeBatch(pipeline.Batch{{
		SurtURL:   "com,example)/",
		Timestamp: "20240101000000",
		Metadata:  pipeline.RecordMetadata{"status": "200", "languages": "eng"},
	}})
	require.NoError(t, err)
	require.JSONEq(t,
		`[{"surt_url":"com,example)/","timestamp":"20240101000000","metadata":{"status":"200","languages":"eng"}}]`,
		string(body))

	empty, err := EncodeBatch(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", string(empty))
}

func TestDecodeBatch(t *testing.T) {
	t.Parallel()

	b, err := DecodeBatch([]byte(`[{"surt_url":"a","timestamp":"t","metadata":{"offset":"10","length":"20","filename":"f.warc.gz"}}]`))
	require.NoError(t, err)
	require.Len(t, b, 1)
	loc, err := b[0].Metadata.Location()
	require.NoError(t, err)
	require.Equal(t, int64(10), loc.Offset)

	for _, body := range []string{`not json`, `{"surt_url":"a"}`, `null`} {
		_, err := DecodeBatch([]byte(body))
		require.Error(t, err, body)
	}
}
