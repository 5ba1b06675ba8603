package filter

// Length rejects documents whose character count falls outside [Min, Max].
type Length struct {
	Min int
	Max int
}

// NewLength returns a Length filter with inclusive bounds.
func NewLength(minChars, maxChars int) Length {
	return Length{Min: minChars, Max: maxChars}
}

// Name implements Filter.
func (Length) Name() string { return "length" }

// Apply implements Filter.
func (f Length) Apply(doc Document) Result {
	n := doc.CharCount()
	if n < f.Min || n > f.Max {
		return Reject(f.Name())
	}
	return Accept(doc)
}
