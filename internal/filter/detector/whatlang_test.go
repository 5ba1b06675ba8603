package detector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWhatlangDetectsEnglish(t *testing.T) {
	t.Parallel()

	text := "The quick brown fox jumps over the lazy dog while the farmer watches from the porch. " +
		"Everyone in the village agreed that it was the most remarkable thing they had seen all summer."
	det, err := NewWhatlang().Detect(text)
	require.NoError(t, err)
	require.Equal(t, "en", det.Code)
	require.True(t, det.Reliable)
	require.Greater(t, det.Percent, 50.0)
}

func TestWhatlangEmptyText(t *testing.T) {
	t.Parallel()

	det, err := NewWhatlang().Detect("   ")
	require.NoError(t, err)
	require.False(t, det.Reliable)
	require.Empty(t, det.Code)
}
