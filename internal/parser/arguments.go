package parser

import "regexp"

// Arguments maps a parameter name, dashes included, to its value text.
// A nil value marks a flag with no value (yet).
type Arguments map[string]*string

// Get returns the value for name and whether the flag was present at all
func (a Arguments) Get(name string) (value string, present bool) {
	v, ok := a[name]
	if !ok || v == nil {
		return "", ok
	}
	return *v, true
}

// BuildArguments scans the tokens of line once, pairing each dash-led token
// with the token that follows it when that token is not itself dash-led.
// A later value for the same name replaces an earlier one; a later bare
// repeat of the name does not erase a value already recorded.
func BuildArguments(line string) Arguments {
	args := make(Arguments)
	var pending string
	havePending := false

	sc := NewScanner(line)
	for {
		tok, ok := sc.Next()
		if !ok {
			break
		}
		if tok.IsFlag() {
			pending = tok.Text
			havePending = true
			if _, seen := args[pending]; !seen {
				args[pending] = nil
			}
			continue
		}
		if havePending {
			value := tok.Text
			args[pending] = &value
		}
		havePending = false
	}

	return args
}

var queryArgument = regexp.MustCompile(`\s--query\s+("([^"]*)"|'([^']*)'|([^\s"']+))`)

// ExtractQuery finds the expression given to --query on line. Quoted
// expressions are returned without their quotes.
func ExtractQuery(line string) (string, bool) {
	m := queryArgument.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	for _, group := range m[2:] {
		if group != "" {
			return group, true
		}
	}
	// --query "" is present but empty
	return "", true
}

// StripQuery removes the first --query argument and its expression from line
func StripQuery(line string) string {
	loc := queryArgument.FindStringIndex(line)
	if loc == nil {
		return line
	}
	return line[:loc[0]] + line[loc[1]:]
}
