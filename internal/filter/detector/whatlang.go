// Package detector adapts third-party language identification to the filter
// Detector interface.
package detector

import (
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/JakeFAU/cc-text-pipeline/internal/filter"
)

// Whatlang detects languages with whatlanggo and reports ISO 639-1 codes.
type Whatlang struct {
	opts whatlanggo.Options
}

// NewWhatlang returns a detector over the full language set.
func NewWhatlang() *Whatlang {
	return &Whatlang{}
}

// Detect implements filter.Detector.
func (w *Whatlang) Detect(text string) (filter.Detection, error) {
	if strings.TrimSpace(text) == "" {
		return filter.Detection{}, nil
	}
	info := whatlanggo.DetectWithOptions(text, w.opts)
	return filter.Detection{
		Code:     info.Lang.Iso6391(),
		Percent:  info.Confidence * 100,
		Reliable: info.IsReliable(),
	}, nil
}
