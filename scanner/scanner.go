// Package scanner turns the characters of a circuit description file into a
// stream of Symbols for the parser, tracking source position so that errors
// can point precisely at the offending token.
package scanner

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"

	"github.com/sarchlab/logsim/names"
)

// TokenType classifies a Symbol.
type TokenType int

const (
	BracketOpen TokenType = iota
	BracketClose
	BraceOpen
	BraceClose
	SquareOpen
	SquareClose
	Comma
	FullStop
	Semicolon
	Equals
	Keyword
	Number
	Name
	EOF
)

func (t TokenType) String() string {
	switch t {
	case BracketOpen:
		return "("
	case BracketClose:
		return ")"
	case BraceOpen:
		return "{"
	case BraceClose:
		return "}"
	case SquareOpen:
		return "["
	case SquareClose:
		return "]"
	case Comma:
		return ","
	case FullStop:
		return "."
	case Semicolon:
		return ";"
	case Equals:
		return "="
	case Keyword:
		return "KEYWORD"
	case Number:
		return "NUMBER"
	case Name:
		return "NAME"
	case EOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Symbol is one lexical token: its type, the interned id backing it (for
// KEYWORD/NAME/NUMBER tokens — NUMBER tokens are interned by their decimal
// text), and the 1-based line/column where it starts.
type Symbol struct {
	Type          TokenType
	ID            names.NameId
	LineNumber    int
	StartPosition int
}

// Scanner reads a circuit description file and yields Symbols on demand. It
// holds the file's own path so that DisplayLineAndMarker can reopen it on a
// second handle without disturbing the main read cursor.
type Scanner struct {
	path   string
	file   *os.File
	reader *bufio.Reader
	names  *names.Names

	lineNumber int
	position   int
	current    rune
	atEOF      bool

	digest string

	keywords map[string]bool
}

// reservedKeywords is the subset of names.ReservedWords that are structural
// list keywords (DEVICES/CONNECTIONS/MONITORS/END), classified as TokenType
// Keyword rather than Name. Device kinds (AND, SWITCH, ...) and port names
// (Q, QBAR, CLK, I1...I16) are pre-interned the same way but stay NAME-typed
// symbols distinguished by the parser comparing NameId, not TokenType — this
// matters for error recovery, whose default stopping set includes Keyword:
// only the four list keywords should interrupt a skip-to-resync scan.
var reservedKeywords = map[string]bool{
	names.KeywordDevices:     true,
	names.KeywordConnections: true,
	names.KeywordMonitors:    true,
	names.KeywordEnd:         true,
}

// Open opens path for scanning over the names table n (whose reserved words
// names.New has already interned) and primes the first character. It fails with a wrapped
// error (CannotOpenSource semantics) if path does not exist or cannot be
// read.
func Open(path string, n *names.Names) (*Scanner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scanner: cannot open source %q: %w", path, err)
	}

	s := &Scanner{
		path:       path,
		file:       f,
		reader:     bufio.NewReader(f),
		names:      n,
		lineNumber: 1,
		position:   0,
		keywords:   reservedKeywords,
	}
	s.digest = computeDigest(path)
	s.advance()

	return s, nil
}

// Close releases the scanner's main file handle.
func (s *Scanner) Close() error {
	return s.file.Close()
}

// SourceDigest returns a short content digest of the source file, computed
// once at Open time, for log correlation only — it never affects scanning
// or parsing.
func (s *Scanner) SourceDigest() string {
	return s.digest
}

func computeDigest(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("%x", sum[:8])
}

// advance reads the next rune into s.current, advancing the column count.
// It sets atEOF once the underlying reader is exhausted.
func (s *Scanner) advance() {
	r, _, err := s.reader.ReadRune()
	if err != nil {
		s.current = 0
		s.atEOF = true
		return
	}
	s.current = r
	s.position++
}

func (s *Scanner) skipSpaces() {
	for !s.atEOF && unicode.IsSpace(s.current) {
		if s.current == '\n' {
			s.lineNumber++
			s.position = 0
		}
		s.advance()
	}
}

// skipComment assumes current is '#' or '"' and consumes through the end of
// the comment, leaving current on the first non-whitespace character after
// it.
func (s *Scanner) skipComment() {
	if s.current == '#' {
		s.advance()
		for !s.atEOF && s.current != '\n' {
			s.advance()
		}
		s.skipSpaces()
		return
	}

	// '"'-delimited multi-line comment.
	s.advance()
	for !s.atEOF && s.current != '"' {
		if s.current == '\n' {
			s.lineNumber++
			s.position = 0
		}
		s.advance()
	}
	if !s.atEOF {
		s.advance()
	}
	s.skipSpaces()
}

func (s *Scanner) loadLocation(sym *Symbol) {
	sym.LineNumber = s.lineNumber
	sym.StartPosition = s.position
}

func (s *Scanner) getName() string {
	var b strings.Builder
	b.WriteRune(s.current)
	s.advance()
	for !s.atEOF && (unicode.IsLetter(s.current) || unicode.IsDigit(s.current)) {
		b.WriteRune(s.current)
		s.advance()
	}
	return b.String()
}

func (s *Scanner) getNumber() string {
	var b strings.Builder
	b.WriteRune(s.current)
	s.advance()
	for !s.atEOF && unicode.IsDigit(s.current) {
		b.WriteRune(s.current)
		s.advance()
	}
	return b.String()
}

// GetSymbol translates the next run of characters into a Symbol, skipping
// whitespace and comments first. Any character not recognised by the
// grammar is silently skipped — the parser is responsible for detecting the
// resulting structural errors.
func (s *Scanner) GetSymbol() Symbol {
	var sym Symbol

	for {
		s.skipSpaces()

		switch {
		case s.atEOF:
			s.loadLocation(&sym)
			sym.Type = EOF
			return sym

		case unicode.IsLetter(s.current):
			s.loadLocation(&sym)
			text := s.getName()
			if s.keywords[text] {
				sym.Type = Keyword
			} else {
				sym.Type = Name
			}
			sym.ID = s.names.Lookup([]string{text})[0]
			return sym

		case unicode.IsDigit(s.current):
			s.loadLocation(&sym)
			text := s.getNumber()
			sym.Type = Number
			sym.ID = s.names.Lookup([]string{text})[0]
			return sym

		case s.current == '=':
			s.loadLocation(&sym)
			sym.Type = Equals
			s.advance()
			return sym

		case s.current == ',':
			s.loadLocation(&sym)
			sym.Type = Comma
			s.advance()
			return sym

		case s.current == '.':
			s.loadLocation(&sym)
			sym.Type = FullStop
			s.advance()
			return sym

		case s.current == ';':
			s.loadLocation(&sym)
			sym.Type = Semicolon
			s.advance()
			return sym

		case s.current == '{':
			s.loadLocation(&sym)
			sym.Type = BraceOpen
			s.advance()
			return sym

		case s.current == '}':
			s.loadLocation(&sym)
			sym.Type = BraceClose
			s.advance()
			return sym

		case s.current == '(':
			s.loadLocation(&sym)
			sym.Type = BracketOpen
			s.advance()
			return sym

		case s.current == ')':
			s.loadLocation(&sym)
			sym.Type = BracketClose
			s.advance()
			return sym

		case s.current == '[':
			s.loadLocation(&sym)
			sym.Type = SquareOpen
			s.advance()
			return sym

		case s.current == ']':
			s.loadLocation(&sym)
			sym.Type = SquareClose
			s.advance()
			return sym

		case s.current == '#' || s.current == '"':
			s.skipComment()
			continue

		default:
			// Not a recognised character: skip it and keep scanning.
			s.advance()
			continue
		}
	}
}

// DisplayLineAndMarker writes, to w, the source line containing symbol
// re-indented to a standard 8 spaces, followed by a marker line with a
// caret under a single-character token or tildes spanning a multi-character
// NAME/KEYWORD/NUMBER token. It reopens the source on a second handle so the
// scanner's own read cursor is untouched.
func (s *Scanner) DisplayLineAndMarker(w io.Writer, sym Symbol) {
	line, ok := s.readLine(sym.LineNumber)
	if !ok {
		return
	}

	trimmed := strings.TrimLeft(line, " \t")
	leadingTrim := len(line) - len(trimmed)

	marker := s.buildMarker(sym, line)

	fmt.Fprintf(w, "        %s\n", strings.TrimRight(trimmed, "\n"))
	if leadingTrim < len(marker) {
		fmt.Fprintf(w, "        %s\n", strings.TrimRight(marker[leadingTrim:], "\n"))
	} else {
		fmt.Fprintln(w, "        ")
	}
}

func (s *Scanner) buildMarker(sym Symbol, line string) string {
	runes := []rune(line)
	marker := make([]rune, len(runes))
	for i := range marker {
		marker[i] = ' '
	}

	if sym.Type == Keyword || sym.Type == Name || sym.Type == Number {
		text, _ := s.names.GetNameString(sym.ID)
		n := len([]rune(text))
		if n <= 1 {
			pos := sym.StartPosition - 1
			if pos >= 0 && pos < len(marker) {
				marker[pos] = '^'
			}
		} else {
			start := sym.StartPosition - 1
			for i := 0; i < n && start+i < len(marker); i++ {
				if start+i >= 0 {
					marker[start+i] = '~'
				}
			}
		}
	} else {
		pos := sym.StartPosition - 1
		if pos >= 0 && pos < len(marker) {
			marker[pos] = '^'
		}
	}

	return string(marker)
}

func (s *Scanner) readLine(lineNumber int) (string, bool) {
	f, err := os.Open(s.path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for i := 1; ; i++ {
		line, err := r.ReadString('\n')
		if i == lineNumber {
			return line, true
		}
		if err != nil {
			return "", false
		}
	}
}
