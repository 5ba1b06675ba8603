package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
)

const (
	droppedSelector = "script, style, noscript, template, svg"
	blockSelector   = "p, div, br, li, tr, h1, h2, h3, h4, h5, h6, pre, blockquote, section, article, header, footer, title, dd, dt"
)

// Text extracts visible text with goquery, one block element per line.
type Text struct{}

// NewText returns a Text extractor.
func NewText() *Text { return &Text{} }

// Extract implements pipeline.Extractor.
func (*Text) Extract(payload []byte) (string, error) {
	body, ok := Body(payload)
	if !ok {
		return "", pipeline.ErrExtractionEmpty
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(droppedSelector).Remove()
	doc.Find(blockSelector).AppendHtml("\n")

	text := cleanLines(doc.Text())
	if text == "" {
		return "", pipeline.ErrExtractionEmpty
	}
	return text, nil
}
