// Package sqlsafe turns raw LLM output into a single read-only statement:
// Cleaner normalizes the text and Validator decides whether it may run.
package sqlsafe

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JonMunkholm/WebDbChat/internal/engine"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuotedIdent
	tokString
	tokNumber
	tokPunct
	tokOperator
	tokComment
	tokParam
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) upper() string { return strings.ToUpper(t.text) }

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && strings.EqualFold(t.text, text)
}

type lexError struct {
	pos int
	msg string
}

func (e *lexError) Error() string { return fmt.Sprintf("%s at offset %d", e.msg, e.pos) }

// lexer splits SQL into tokens. Dialect differences: MySQL treats double quotes
// as string delimiters, backslash escapes and '#' comments; Postgres has
// dollar-quoted strings and E'' escape strings; SQLite accepts [bracketed]
// identifiers.
type lexer struct {
	src  string
	kind engine.Kind
	pos  int
	toks []token
}

func tokenize(src string, kind engine.Kind) ([]token, error) {
	l := &lexer{src: src, kind: kind}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.toks, nil
}

func (l *lexer) emit(kind tokenKind, start int) {
	l.toks = append(l.toks, token{kind: kind, text: l.src[start:l.pos], pos: start})
}

func (l *lexer) peek(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) run() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		start := l.pos
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			l.pos++
		case c == '-' && l.peek(1) == '-':
			l.skipLine()
			l.emit(tokComment, start)
		case c == '#' && l.kind == engine.MySQL:
			l.skipLine()
			l.emit(tokComment, start)
		case c == '/' && l.peek(1) == '*':
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				return &lexError{start, "unterminated block comment"}
			}
			l.pos += 2 + end + 2
			l.emit(tokComment, start)
		case (c == 'E' || c == 'e') && l.peek(1) == '\'' && l.kind == engine.Postgres:
			// E'...' escape string: backslash escapes the quote.
			l.pos++
			if err := l.quoted('\'', true); err != nil {
				return err
			}
			l.emit(tokString, start)
		case c == '\'':
			if err := l.quoted('\'', l.kind == engine.MySQL); err != nil {
				return err
			}
			l.emit(tokString, start)
		case c == '"':
			if l.kind == engine.MySQL {
				if err := l.quoted('"', true); err != nil {
					return err
				}
				l.emit(tokString, start)
				continue
			}
			if err := l.quoted('"', false); err != nil {
				return err
			}
			l.emit(tokQuotedIdent, start)
		case c == '`':
			if err := l.quoted('`', false); err != nil {
				return err
			}
			l.emit(tokQuotedIdent, start)
		case c == '[' && l.kind == engine.SQLite:
			end := strings.IndexByte(l.src[l.pos+1:], ']')
			if end < 0 {
				return &lexError{start, "unterminated identifier"}
			}
			l.pos += 1 + end + 1
			l.emit(tokQuotedIdent, start)
		case c == '$' && l.kind == engine.Postgres && l.dollarTag() != "":
			if err := l.dollarString(); err != nil {
				return err
			}
			l.emit(tokString, start)
		case (c == '$' || c == '?' || c == ':') && isDigit(l.peek(1)):
			l.pos++
			for isDigit(l.peek(0)) {
				l.pos++
			}
			l.emit(tokParam, start)
		case c == '?' && l.kind != engine.Postgres:
			l.pos++
			l.emit(tokParam, start)
		case isDigit(c) || (c == '.' && isDigit(l.peek(1))):
			l.number()
			l.emit(tokNumber, start)
		case isIdentStart(l.src[l.pos:]):
			l.word()
			l.emit(tokWord, start)
		case strings.IndexByte("(),;.[]", c) >= 0:
			l.pos++
			l.emit(tokPunct, start)
		case strings.IndexByte("+-*/%<>=!|&^~:@", c) >= 0:
			l.pos++
			for l.pos < len(l.src) && strings.IndexByte("<>=!|&:", l.src[l.pos]) >= 0 {
				l.pos++
			}
			l.emit(tokOperator, start)
		default:
			r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
			return &lexError{start, fmt.Sprintf("unexpected character %q", r)}
		}
	}
	return nil
}

func (l *lexer) skipLine() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

// quoted consumes a delimited run; a doubled delimiter is an escaped one.
func (l *lexer) quoted(delim byte, backslash bool) error {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case backslash && c == '\\':
			l.pos += 2
			continue
		case c == delim && l.peek(1) == delim:
			l.pos += 2
			continue
		case c == delim:
			l.pos++
			return nil
		}
		l.pos++
	}
	if delim == '\'' || (delim == '"' && backslash) {
		return &lexError{start, "unterminated string literal"}
	}
	return &lexError{start, "unterminated quoted identifier"}
}

func (l *lexer) dollarTag() string {
	i := l.pos + 1
	for i < len(l.src) && (l.src[i] == '_' || isLetter(l.src[i]) || (i > l.pos+1 && isDigit(l.src[i]))) {
		i++
	}
	if i < len(l.src) && l.src[i] == '$' {
		return l.src[l.pos : i+1]
	}
	return ""
}

func (l *lexer) dollarString() error {
	start := l.pos
	tag := l.dollarTag()
	l.pos += len(tag)
	end := strings.Index(l.src[l.pos:], tag)
	if end < 0 {
		return &lexError{start, "unterminated dollar-quoted string"}
	}
	l.pos += end + len(tag)
	return nil
}

func (l *lexer) number() {
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		l.pos++
	}
	if c := l.peek(0); c == 'e' || c == 'E' {
		next := l.peek(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.peek(2))) {
			l.pos += 2
			for isDigit(l.peek(0)) {
				l.pos++
			}
		}
	}
}

func (l *lexer) word() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if r != '_' && r != '$' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return
		}
		l.pos += size
	}
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isIdentStart(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r == '_' || unicode.IsLetter(r)
}

// significant drops comment tokens.
func significant(toks []token) []token {
	out := make([]token, 0, len(toks))
	for _, t := range toks {
		if t.kind != tokComment {
			out = append(out, t)
		}
	}
	return out
}
