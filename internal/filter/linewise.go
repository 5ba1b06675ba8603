package filter

import (
	"strings"
	"unicode"
)

// LineWise drops noisy lines: those with fewer than MinWords words, or whose
// uppercase share of letters exceeds MaxUpperRatio. It never rejects.
type LineWise struct {
	MinWords      int
	MaxUpperRatio float64
}

// NewLineWise returns a LineWise filter.
func NewLineWise(minWords int, maxUpperRatio float64) LineWise {
	return LineWise{MinWords: minWords, MaxUpperRatio: maxUpperRatio}
}

// Name implements Filter.
func (LineWise) Name() string { return "line_wise" }

// Apply implements Filter.
func (f LineWise) Apply(doc Document) Result {
	kept := make([]string, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		if !f.noisy(line) {
			kept = append(kept, line)
		}
	}
	return Accept(Document{Lines: kept})
}

func (f LineWise) noisy(line string) bool {
	if len(strings.Fields(line)) < f.MinWords {
		return true
	}
	var upper, alpha int
	for _, r := range line {
		if unicode.IsLetter(r) {
			alpha++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return alpha > 0 && float64(upper)/float64(alpha) > f.MaxUpperRatio
}
