package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
)

const page = "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n" +
	`<html><head><title>Greeting</title><style>body{color:red}</style></head>
<body><script>var x = 1;</script>
<h1>Hello   world</h1>
<p>First paragraph of text.</p><p>Second <b>bold</b> paragraph.</p>
<ul><li>one</li><li>two</li></ul>
</body></html>`

func TestBody(t *testing.T) {
	t.Parallel()

	body, ok := Body([]byte("HTTP/1.1 200 OK\r\nA: b\r\n\r\n<p>x</p>"))
	require.True(t, ok)
	require.Equal(t, "<p>x</p>", string(body))

	body, ok = Body([]byte("HTTP/1.1 200 OK\nA: b\n\n<p>y</p>"))
	require.True(t, ok)
	require.Equal(t, "<p>y</p>", string(body))

	_, ok = Body([]byte("no header terminator"))
	require.False(t, ok)
}

func TestTextExtract(t *testing.T) {
	t.Parallel()

	text, err := NewText().Extract([]byte(page))
	require.NoError(t, err)
	require.NotContains(t, text, "var x")
	require.NotContains(t, text, "color:red")
	lines := strings.Split(text, "\n")
	require.Contains(t, lines, "Hello world")
	require.Contains(t, lines, "First paragraph of text.")
	require.Contains(t, lines, "Second bold paragraph.")
	require.Contains(t, lines, "one")
	require.Contains(t, lines, "two")
	for _, l := range lines {
		require.NotEmpty(t, l)
	}
}

func TestTextExtractEmpty(t *testing.T) {
	t.Parallel()

	_, err := NewText().Extract([]byte("HTTP/1.1 200 OK\r\n\r\n<html><script>x()</script></html>"))
	require.ErrorIs(t, err, pipeline.ErrExtractionEmpty)

	_, err = NewText().Extract([]byte("garbage"))
	require.ErrorIs(t, err, pipeline.ErrExtractionEmpty)
}

func TestMarkdownExtract(t *testing.T) {
	t.Parallel()

	text, err := NewMarkdown().Extract([]byte(page))
	require.NoError(t, err)
	require.Contains(t, text, "# Hello world")
	require.Contains(t, text, "First paragraph of text.")
	require.Contains(t, text, "**bold**")
	require.NotContains(t, text, "var x")
}

func TestNew(t *testing.T) {
	t.Parallel()

	e, err := New("text")
	require.NoError(t, err)
	require.IsType(t, &Text{}, e)

	e, err = New("markdown")
	require.NoError(t, err)
	require.IsType(t, &Markdown{}, e)

	_, err = New("pdf")
	require.Error(t, err)
}
