package evo

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokQuote
	tokString
	tokInt
	tokFloat
	tokSymbol
	tokEOF
)

type token struct {
	kind  tokenKind
	text  string // symbol name or decoded string contents
	int   int64
	float float64
	line  int
	col   int
}

type lexer struct {
	input []rune
	pos   int
	line  int
	col   int
}

// tokenize turns source text into a token stream terminated by tokEOF.
// Comments run from ';' to end of line and are dropped.
func tokenize(src string) ([]token, error) {
	if err := checkUTF8(src); err != nil {
		return nil, err
	}
	lx := &lexer{input: []rune(src), line: 1, col: 1}
	var toks []token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

// checkUTF8 rejects source that is not valid UTF-8, reporting the position
// of the first bad byte.
func checkUTF8(src string) error {
	line, col := 1, 1
	for i := 0; i < len(src); {
		r, size := utf8.DecodeRuneInString(src[i:])
		if r == utf8.RuneError && size == 1 {
			return syntaxErrorAt(line, col, "invalid UTF-8 byte 0x%02x", src[i])
		}
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
		i += size
	}
	return nil
}

func (lx *lexer) advance() rune {
	ch := lx.input[lx.pos]
	lx.pos++
	if ch == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return ch
}

func (lx *lexer) skipWhitespace() {
	for lx.pos < len(lx.input) {
		ch := lx.input[lx.pos]
		if ch == ';' {
			for lx.pos < len(lx.input) && lx.input[lx.pos] != '\n' {
				lx.advance()
			}
			continue
		}
		if !unicode.IsSpace(ch) {
			return
		}
		lx.advance()
	}
}

func (lx *lexer) next() (token, error) {
	lx.skipWhitespace()
	line, col := lx.line, lx.col
	if lx.pos >= len(lx.input) {
		return token{kind: tokEOF, line: line, col: col}, nil
	}
	ch := lx.input[lx.pos]
	switch {
	case ch == '(':
		lx.advance()
		return token{kind: tokLParen, line: line, col: col}, nil
	case ch == ')':
		lx.advance()
		return token{kind: tokRParen, line: line, col: col}, nil
	case ch == '\'':
		lx.advance()
		return token{kind: tokQuote, line: line, col: col}, nil
	case ch == '"':
		return lx.lexString(line, col)
	case isSymbolChar(ch):
		return lx.lexAtom(line, col)
	default:
		return token{}, &ParseError{Kind: UnknownSyntax, Msg: "unexpected character " + strconv.QuoteRune(ch), Line: line, Col: col}
	}
}

func (lx *lexer) lexString(line, col int) (token, error) {
	lx.advance() // opening quote
	var buf strings.Builder
	for lx.pos < len(lx.input) {
		ch := lx.advance()
		switch ch {
		case '"':
			return token{kind: tokString, text: buf.String(), line: line, col: col}, nil
		case '\\':
			if lx.pos >= len(lx.input) {
				return token{}, syntaxErrorAt(line, col, "unterminated escape in string")
			}
			escLine, escCol := lx.line, lx.col
			switch esc := lx.advance(); esc {
			case 'n':
				buf.WriteRune('\n')
			case 't':
				buf.WriteRune('\t')
			case 'r':
				buf.WriteRune('\r')
			case '\\':
				buf.WriteRune('\\')
			case '"':
				buf.WriteRune('"')
			default:
				return token{}, syntaxErrorAt(escLine, escCol, "unknown escape sequence \\%c", esc)
			}
		default:
			buf.WriteRune(ch)
		}
	}
	return token{}, syntaxErrorAt(line, col, "unterminated string")
}

func (lx *lexer) lexAtom(line, col int) (token, error) {
	start := lx.pos
	for lx.pos < len(lx.input) && isSymbolChar(lx.input[lx.pos]) {
		lx.advance()
	}
	text := string(lx.input[start:lx.pos])
	if !looksNumeric(text) {
		return token{kind: tokSymbol, text: text, line: line, col: col}, nil
	}
	if !validNumber(text) {
		return token{}, syntaxErrorAt(line, col, "malformed number %q", text)
	}
	if !strings.Contains(text, ".") {
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return token{}, syntaxErrorAt(line, col, "integer out of range: %s", text)
		}
		return token{kind: tokInt, int: n, text: text, line: line, col: col}, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, syntaxErrorAt(line, col, "malformed number %q", text)
	}
	return token{kind: tokFloat, float: f, text: text, line: line, col: col}, nil
}

func isSymbolChar(ch rune) bool {
	if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
		return true
	}
	return strings.ContainsRune("_-?.!+*/%=<>", ch)
}

// looksNumeric reports whether a token starts like a number: a digit, or a
// sign immediately followed by a digit.
func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// validNumber accepts sign? digits ('.' digits)?.
func validNumber(s string) bool {
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	intPart, frac, hasDot := strings.Cut(s, ".")
	if !allDigits(intPart) {
		return false
	}
	return !hasDot || allDigits(frac)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
