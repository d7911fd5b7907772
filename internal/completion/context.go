// Package completion derives cursor intent from a partially typed command line
// and adapts knowledge backend answers into position-anchored results.
package completion

import (
	"regexp"
	"strings"

	"github.com/standardbeagle/azline/internal/parser"
)

// CursorContext is what the user is doing at the cursor
type CursorContext struct {
	// Recognized is false when the line does not start with the root invocation
	Recognized bool `json:"recognized"`
	// SubcommandPath is the completed path after the root, words joined by a space
	SubcommandPath string `json:"subcommand_path"`
	// ActiveParameter is the flag whose value is about to be typed, if any
	ActiveParameter string `json:"active_parameter,omitempty"`
	// TypedPrefix is the partial word immediately before the cursor
	TypedPrefix string `json:"typed_prefix"`
	// Lead is the run of dashes that starts TypedPrefix
	Lead      string           `json:"lead,omitempty"`
	Arguments parser.Arguments `json:"arguments"`
}

var (
	leadingPath  = regexp.MustCompile(`^\s*(([^-\s][^\s]*\s+)*)`)
	pendingValue = regexp.MustCompile(`\s(--?[^\s]+)\s+$`)
	boundValue   = regexp.MustCompile(`\s--?[^\s]+\s+[^-\s][^\s]*$`)
	trailingWord = regexp.MustCompile(`(^|\s)([^\s]*)$`)
	leadDashes   = regexp.MustCompile(`^-*`)
)

// Resolve derives the cursor context for line with the cursor at byte offset
// cursor. Only the text before the cursor drives path, parameter and prefix;
// the argument map covers the whole line. It works on any text and never fails.
func Resolve(line string, cursor int, root string) CursorContext {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(line) {
		cursor = len(line)
	}
	before := line[:cursor]

	ctx := CursorContext{Arguments: parser.BuildArguments(line)}

	words := strings.Fields(leadingPath.FindStringSubmatch(before)[1])
	if len(words) == 0 || words[0] != root {
		return ctx
	}
	ctx.Recognized = true
	ctx.SubcommandPath = strings.Join(words[1:], " ")

	switch {
	case boundValue.MatchString(before):
		// a value already typed after its flag closes the pair
	case pendingValue.MatchString(before):
		ctx.ActiveParameter = pendingValue.FindStringSubmatch(before)[1]
	default:
		if m := trailingWord.FindStringSubmatch(before); m != nil {
			ctx.TypedPrefix = m[2]
		}
		ctx.Lead = leadDashes.FindString(ctx.TypedPrefix)
	}

	return ctx
}

// ResolveText resolves the context with the cursor at the end of text
func ResolveText(text, root string) CursorContext {
	return Resolve(text, len(text), root)
}
