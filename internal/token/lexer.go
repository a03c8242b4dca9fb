package token

import (
	"github.com/JamesLinus/c-compiler/internal/diag"
)

// Lexer is a hand-rolled, preprocessor-free scanner over C89 source text.
// It implements Stream directly: single-token lookahead, pull-based.
type Lexer struct {
	file string
	src  []byte
	pos  int
	line int
	col  int

	lookahead *Token
}

// NewLexer returns a Lexer reading src, reporting positions against file.
func NewLexer(file string, src []byte) *Lexer {
	return &Lexer{file: file, src: src, pos: 0, line: 1, col: 1}
}

func (l *Lexer) atEnd() bool { return l.pos >= len(l.src) }

func (l *Lexer) peekByte() byte {
	if l.atEnd() {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(offset int) byte {
	p := l.pos + offset
	if p >= len(l.src) {
		return 0
	}
	return l.src[p]
}

func (l *Lexer) advance() byte {
	ch := l.src[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEnd() {
		ch := l.peekByte()
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			l.advance()
		case ch == '/' && l.peekAt(1) == '/':
			for !l.atEnd() && l.peekByte() != '\n' {
				l.advance()
			}
		case ch == '/' && l.peekAt(1) == '*':
			l.advance()
			l.advance()
			for !l.atEnd() && !(l.peekByte() == '*' && l.peekAt(1) == '/') {
				l.advance()
			}
			if !l.atEnd() {
				l.advance()
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) pos_() Pos { return Pos{File: l.file, Line: l.line, Col: l.col} }

func (l *Lexer) scanIdent() Token {
	p := l.pos_()
	start := l.pos
	for !l.atEnd() && (isLetter(l.peekByte()) || isDigit(l.peekByte())) {
		l.advance()
	}
	val := string(l.src[start:l.pos])
	if kw, ok := keywords[val]; ok {
		return Token{Kind: kw, Str: val, Pos: p}
	}
	return Token{Kind: IDENTIFIER, Str: val, Pos: p}
}

func (l *Lexer) scanNumber() Token {
	p := l.pos_()
	start := l.pos
	isHex := l.peekByte() == '0' && (l.peekAt(1) == 'x' || l.peekAt(1) == 'X')
	if isHex {
		l.advance()
		l.advance()
		for !l.atEnd() && isHexDigit(l.peekByte()) {
			l.advance()
		}
	} else {
		for !l.atEnd() && isDigit(l.peekByte()) {
			l.advance()
		}
	}
	isReal := false
	if !isHex && l.peekByte() == '.' && isDigit(l.peekAt(1)) {
		isReal = true
		l.advance()
		for !l.atEnd() && isDigit(l.peekByte()) {
			l.advance()
		}
	}
	// integer-suffix letters (u, l, U, L) are consumed but do not change
	// the token's classification beyond IsReal; exponents (e, E) are not
	// scanned. The parser decides final typing.
	for !l.atEnd() && (l.peekByte() == 'u' || l.peekByte() == 'U' || l.peekByte() == 'l' || l.peekByte() == 'L') {
		l.advance()
	}
	val := string(l.src[start:l.pos])
	num, _ := parseIntLiteral(val)
	return Token{Kind: NUMBER, Str: val, Num: num, IsReal: isReal, Pos: p}
}

func parseIntLiteral(s string) (int64, bool) {
	i := 0
	base := int64(10)
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		i = 2
	} else if len(s) > 1 && s[0] == '0' {
		base = 8
		i = 1
	}
	var v int64
	for i < len(s) {
		c := s[i]
		var d int64
		switch {
		case c >= '0' && c <= '9':
			d = int64(c - '0')
		case c >= 'a' && c <= 'f':
			d = int64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int64(c-'A') + 10
		default:
			return v, true // trailing suffix letters (u/l/U/L)
		}
		if d >= base {
			return v, true
		}
		v = v*base + d
		i++
	}
	return v, true
}

func (l *Lexer) scanString() Token {
	p := l.pos_()
	l.advance() // opening "
	var buf []byte
	for !l.atEnd() && l.peekByte() != '"' {
		if l.peekByte() == '\\' {
			l.advance()
			buf = append(buf, unescape(l.advance()))
			continue
		}
		buf = append(buf, l.advance())
	}
	if !l.atEnd() {
		l.advance() // closing "
	}
	return Token{Kind: STRING, Str: string(buf), Pos: p}
}

func (l *Lexer) scanChar() Token {
	p := l.pos_()
	l.advance() // opening '
	var v int64
	if l.peekByte() == '\\' {
		l.advance()
		v = int64(unescape(l.advance()))
	} else {
		v = int64(l.advance())
	}
	if !l.atEnd() && l.peekByte() == '\'' {
		l.advance()
	}
	return Token{Kind: CHARCONST, Num: v, Pos: p}
}

func unescape(ch byte) byte {
	switch ch {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	case '\\', '\'', '"':
		return ch
	default:
		return ch
	}
}

// two-and-three-character operators, checked longest-first.
type opRule struct {
	text string
	kind Kind
}

var multiCharOps = []opRule{
	{"...", DOTS},
	{"<<=", SHL_ASSIGN}, {">>=", SHR_ASSIGN},
	{"->", ARROW}, {"++", INC}, {"--", DEC},
	{"<<", SHL}, {">>", SHR}, {"<=", LE}, {">=", GE},
	{"==", EQ}, {"!=", NE}, {"&&", ANDAND}, {"||", OROR},
	{"*=", MUL_ASSIGN}, {"/=", DIV_ASSIGN}, {"%=", MOD_ASSIGN},
	{"+=", ADD_ASSIGN}, {"-=", SUB_ASSIGN},
	{"&=", AND_ASSIGN}, {"^=", XOR_ASSIGN}, {"|=", OR_ASSIGN},
}

func (l *Lexer) scanOperator() Token {
	p := l.pos_()
	for _, rule := range multiCharOps {
		if l.matchesAt(rule.text) {
			for range rule.text {
				l.advance()
			}
			return Token{Kind: rule.kind, Str: rule.text, Pos: p}
		}
	}
	ch := l.advance()
	return Token{Kind: Kind(ch), Str: string(ch), Pos: p}
}

func (l *Lexer) matchesAt(s string) bool {
	for i := 0; i < len(s); i++ {
		if l.peekAt(i) != s[i] {
			return false
		}
	}
	return true
}

func (l *Lexer) scan() Token {
	l.skipWhitespaceAndComments()
	if l.atEnd() {
		return Token{Kind: END, Pos: l.pos_()}
	}
	ch := l.peekByte()
	switch {
	case isLetter(ch):
		return l.scanIdent()
	case isDigit(ch):
		return l.scanNumber()
	case ch == '"':
		return l.scanString()
	case ch == '\'':
		return l.scanChar()
	default:
		return l.scanOperator()
	}
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() Token {
	if l.lookahead == nil {
		tok := l.scan()
		l.lookahead = &tok
	}
	return *l.lookahead
}

// Next consumes and returns the next token.
func (l *Lexer) Next() Token {
	tok := l.Peek()
	l.lookahead = nil
	return tok
}

// Consume asserts the next token has the given kind, consuming it, and
// raises a diag.Fatal if it does not. There is no recovery: the panic
// unwinds all the way to the driver, which reports it and exits.
func (l *Lexer) Consume(kind Kind) Token {
	tok := l.Next()
	if tok.Kind != kind {
		diag.Fatalf(diag.Pos{File: tok.Pos.File, Line: tok.Pos.Line, Col: tok.Pos.Col}, "expected %s, got %s", Name(kind), tok.String())
	}
	return tok
}
