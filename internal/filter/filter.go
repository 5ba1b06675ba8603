// Package filter implements the document filter chain applied to extracted
// page text before it is buffered for output.
package filter

import (
	"strings"
	"unicode/utf8"
)

// Document is extracted text held as an ordered sequence of lines.
type Document struct {
	Lines []string
}

// NewDocument splits text on newlines.
func NewDocument(text string) Document {
	if text == "" {
		return Document{}
	}
	return Document{Lines: strings.Split(text, "\n")}
}

// Text joins the lines back into a single string.
func (d Document) Text() string {
	return strings.Join(d.Lines, "\n")
}

// CharCount is the number of characters (runes) in Text.
func (d Document) CharCount() int {
	return utf8.RuneCountInString(d.Text())
}

// Empty reports whether the document has no non-blank content.
func (d Document) Empty() bool {
	for _, l := range d.Lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// Result is the outcome of applying a filter: either an accepted document or
// the name of the stage that rejected it.
type Result struct {
	doc      Document
	accepted bool
	stage    string
}

// Accept wraps doc as a passing result.
func Accept(doc Document) Result {
	return Result{doc: doc, accepted: true}
}

// Reject records a rejection by stage.
func Reject(stage string) Result {
	return Result{stage: stage}
}

// Accepted reports whether the document passed.
func (r Result) Accepted() bool { return r.accepted }

// Document returns the accepted document. It is zero for rejections.
func (r Result) Document() Document { return r.doc }

// Stage names the rejecting filter. It is empty for accepted results.
func (r Result) Stage() string { return r.stage }

// Filter is one stage of a Chain.
type Filter interface {
	Name() string
	Apply(doc Document) Result
}
