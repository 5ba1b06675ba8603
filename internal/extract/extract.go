// Package extract turns captured HTTP responses into plain text.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
)

// Kinds accepted by New.
const (
	KindText     = "text"
	KindMarkdown = "markdown"
)

// Body strips the HTTP status line and headers from a captured response. It
// reports false when no header terminator is present.
func Body(payload []byte) ([]byte, bool) {
	if i := bytes.Index(payload, []byte("\r\n\r\n")); i >= 0 {
		return payload[i+4:], true
	}
	if i := bytes.Index(payload, []byte("\n\n")); i >= 0 {
		return payload[i+2:], true
	}
	return nil, false
}

// New returns the extractor registered under kind.
func New(kind string) (pipeline.Extractor, error) {
	switch strings.ToLower(kind) {
	case "", KindText:
		return NewText(), nil
	case KindMarkdown:
		return NewMarkdown(), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", kind)
	}
}

func cleanLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
