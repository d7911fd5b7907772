// Package editor abstracts the editor host: source documents, text change
// notifications and the side view that shows command results.
package editor

import (
	"context"
	"errors"
	"strings"
)

// ErrViewClosed is returned when writing to a side view the user has closed
var ErrViewClosed = errors.New("side view is closed")

// Position is a zero-based row/column location in a document
type Position struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Range is the span of a document replaced by one edit
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// SingleLine reports whether the range starts and ends on the same row
func (r Range) SingleLine() bool {
	return r.Start.Row == r.End.Row
}

// ChangeEvent describes one text change notification for a source document
type ChangeEvent struct {
	Path    string  `json:"path,omitempty"`
	Changes []Range `json:"changes"`
}

// EditedRow returns the row touched by the event when it consists of
// exactly one single-line change.
func (e ChangeEvent) EditedRow() (int, bool) {
	if len(e.Changes) != 1 || !e.Changes[0].SingleLine() {
		return 0, false
	}
	return e.Changes[0].Start.Row, true
}

// Document gives read access to the current text of a source document
type Document interface {
	Text() string
	Line(row int) (string, bool)
	LineCount() int
}

// TextDocument is an immutable Document over a string
type TextDocument struct {
	text  string
	lines []string
}

// NewTextDocument splits text into lines. CRLF endings are normalised.
func NewTextDocument(text string) *TextDocument {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	return &TextDocument{
		text:  text,
		lines: strings.Split(normalized, "\n"),
	}
}

// Text returns the full document text
func (d *TextDocument) Text() string {
	return d.text
}

// Line returns the text of row without its line terminator
func (d *TextDocument) Line(row int) (string, bool) {
	if row < 0 || row >= len(d.lines) {
		return "", false
	}
	return d.lines[row], true
}

// LineCount returns the number of rows, counting a trailing empty row
func (d *TextDocument) LineCount() int {
	return len(d.lines)
}

// SideView is the secondary document that displays command output.
// Replace always swaps the whole content.
type SideView interface {
	ID() string
	Replace(ctx context.Context, content string) error
	Closed() bool
}

// Host opens side views
type Host interface {
	OpenSideView(ctx context.Context) (SideView, error)
}
