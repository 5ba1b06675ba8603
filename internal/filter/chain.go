package filter

import (
	"slices"

	"github.com/JakeFAU/cc-text-pipeline/internal/metrics"
)

// Chain applies filters in order, feeding each stage's output to the next and
// stopping at the first rejection.
type Chain struct {
	filters  []Filter
	recorder metrics.Recorder
}

// NewChain builds a chain over filters. recorder may be nil.
func NewChain(recorder metrics.Recorder, filters ...Filter) *Chain {
	return &Chain{filters: filters, recorder: metrics.OrNop(recorder)}
}

// Apply runs every stage until one rejects. When a pass changes the document,
// the chain runs again over the new content, so an accepted document is
// accepted unchanged by any later Apply.
func (c *Chain) Apply(doc Document) Result {
	// Stages only drop lines; each repeated pass is strictly shorter.
	for range len(doc.Lines) + 1 {
		res := c.pass(doc)
		if !res.Accepted() || slices.Equal(res.Document().Lines, doc.Lines) {
			return res
		}
		doc = res.Document()
	}
	return c.pass(doc)
}

func (c *Chain) pass(doc Document) Result {
	for _, f := range c.filters {
		res := f.Apply(doc)
		if !res.Accepted() {
			stage := res.Stage()
			if stage == "" {
				stage = f.Name()
				res = Reject(stage)
			}
			c.recorder.DocumentRejected(stage)
			return res
		}
		doc = res.Document()
	}
	return Accept(doc)
}

// Len is the number of stages.
func (c *Chain) Len() int { return len(c.filters) }
