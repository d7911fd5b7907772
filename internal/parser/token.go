package parser

// Token is a lexical unit of a command line with its source position.
// Offsets and lengths are byte positions in the original line.
type Token struct {
	Text   string `json:"text"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// End returns the offset one past the last byte of the token
func (t Token) End() int {
	return t.Offset + t.Length
}

// Contains reports whether offset lies in the half-open interval [Offset, End)
func (t Token) Contains(offset int) bool {
	return offset >= t.Offset && offset < t.End()
}

// IsFlag reports whether the token is dash-led
func (t Token) IsFlag() bool {
	return len(t.Text) > 0 && t.Text[0] == '-'
}

// Scanner produces tokens lazily from a single line. A Scanner is single use;
// create a new one (or call Tokenize) to rescan.
type Scanner struct {
	line string
	pos  int
}

// NewScanner creates a scanner positioned at the start of line
func NewScanner(line string) *Scanner {
	return &Scanner{line: line}
}

// Next returns the next token and true, or a zero token and false at end of line.
//
// At each position the alternatives are tried in order: a dash-led run, a
// double-quoted run, a single-quoted run, then a plain run. A quote with no
// closing partner is scanned as a plain run that keeps the quote character.
func (s *Scanner) Next() (Token, bool) {
	for s.pos < len(s.line) && isSpace(s.line[s.pos]) {
		s.pos++
	}
	if s.pos >= len(s.line) {
		return Token{}, false
	}

	start := s.pos
	switch c := s.line[start]; {
	case c == '-':
		// a dash-led run keeps any quotes it contains: --query='[0].name'
		s.pos = scanWhile(s.line, start+1, isNotSpace)
	case c == '"' || c == '\'':
		if end := indexByteFrom(s.line, start+1, c); end >= 0 {
			s.pos = end + 1
		} else {
			s.pos = scanWhile(s.line, start+1, isNotSpace)
		}
	default:
		s.pos = scanWhile(s.line, start, isWordByte)
	}

	return Token{
		Text:   s.line[start:s.pos],
		Offset: start,
		Length: s.pos - start,
	}, true
}

// Tokenize scans the whole line. Each call performs a fresh scan.
func Tokenize(line string) []Token {
	var tokens []Token
	sc := NewScanner(line)
	for {
		tok, ok := sc.Next()
		if !ok {
			return tokens
		}
		tokens = append(tokens, tok)
	}
}

// Unquote strips one pair of matching surrounding quotes, if present
func Unquote(text string) string {
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' || first == '\'') && first == last {
			return text[1 : len(text)-1]
		}
	}
	return text
}

func scanWhile(line string, pos int, accept func(byte) bool) int {
	for pos < len(line) && accept(line[pos]) {
		pos++
	}
	return pos
}

func indexByteFrom(line string, from int, c byte) int {
	for i := from; i < len(line); i++ {
		if line[i] == c {
			return i
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isNotSpace(c byte) bool {
	return !isSpace(c)
}

func isQuote(c byte) bool {
	return c == '"' || c == '\''
}

// isWordByte accepts bytes of plain runs: anything but whitespace and quotes
func isWordByte(c byte) bool {
	return !isSpace(c) && !isQuote(c)
}
