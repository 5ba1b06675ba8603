package extract

import (
	"fmt"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
)

// Markdown sanitizes HTML and renders it as Markdown.
type Markdown struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// NewMarkdown returns a Markdown extractor.
func NewMarkdown() *Markdown {
	return &Markdown{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Extract implements pipeline.Extractor.
func (m *Markdown) Extract(payload []byte) (string, error) {
	body, ok := Body(payload)
	if !ok {
		return "", pipeline.ErrExtractionEmpty
	}
	clean := m.policy.SanitizeBytes(body)
	md, err := m.conv.ConvertString(string(clean))
	if err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	text := cleanLines(md)
	if text == "" {
		return "", pipeline.ErrExtractionEmpty
	}
	return text, nil
}
