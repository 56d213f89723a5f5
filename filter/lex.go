// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package filter implements the two-grammar filter expression language
// from spec.md §4.7: single-event boolean expressions and cross-event
// pair-matching rules, sharing one tokenizer.
package filter

import (
	"fmt"
)

// TokKind identifies what kind of lexeme a Tok holds.
type TokKind uint8

const (
	TokIdent TokKind = 1 + iota
	TokNumber
	TokString
	TokOp
	TokEOF
)

// Tok is one lexeme plus the 1-based letter offset it started at, used to
// build the "Error happens at the Nth letter" diagnostic.
type Tok struct {
	Kind   TokKind
	Text   string
	Offset int
}

func (t Tok) is(kind TokKind, text string) bool {
	return t.Kind == kind && t.Text == text
}

// chProps classifies input bytes the way cparse's mkTokTab does, trimmed
// to what this grammar's tokens need: identifier characters, digits, and
// punctuation starts.
type chProps uint8

const (
	chIdentStart chProps = 1 << iota
	chIdentCont
	chDigit
	chPunct
)

var tokTab [256]chProps
var puncTab = map[string]bool{
	"&&": true, "||": true, "!": true, "(": true, ")": true,
	".": true, "=": true, ",": true, ":": true,
}

func init() {
	for i := range tokTab {
		switch {
		case i == '_' || 'a' <= i && i <= 'z' || 'A' <= i && i <= 'Z':
			tokTab[i] |= chIdentStart | chIdentCont
		case '0' <= i && i <= '9':
			tokTab[i] |= chDigit | chIdentCont
		}
	}
	for _, p := range []string{"&", "|", "!", "(", ")", ".", "=", ",", ":"} {
		tokTab[p[0]] |= chPunct
	}
}

// ParseError reports a parse failure at a 1-based letter offset into the
// input, in the exact format the original filter parser used.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Error happens at the %dth letter: %s", e.Offset, e.Msg)
}

func errAt(offset int, format string, args ...interface{}) *ParseError {
	return &ParseError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// tokenize splits src into tokens for both the single-event and pair
// grammars. It fails with a ParseError on an unterminated string literal
// or on a byte that starts no token.
func tokenize(src string) ([]Tok, error) {
	var toks []Tok
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			i++
			continue
		}
		start := i + 1 // 1-based letter offset

		switch {
		case tokTab[c]&chIdentStart != 0:
			j := i + 1
			for j < n && tokTab[src[j]]&chIdentCont != 0 {
				j++
			}
			toks = append(toks, Tok{Kind: TokIdent, Text: src[i:j], Offset: start})
			i = j

		case tokTab[c]&chDigit != 0 || (c == '-' && i+1 < n && tokTab[src[i+1]]&chDigit != 0):
			j := i
			if src[j] == '-' {
				j++
			}
			for j < n && (tokTab[src[j]]&chDigit != 0 || src[j] == '.' || src[j] == 'e' || src[j] == 'E' ||
				((src[j] == '+' || src[j] == '-') && j > i && (src[j-1] == 'e' || src[j-1] == 'E'))) {
				j++
			}
			toks = append(toks, Tok{Kind: TokNumber, Text: src[i:j], Offset: start})
			i = j

		case c == '"':
			j := i + 1
			var buf []byte
			for j < n && src[j] != '"' {
				if src[j] == '\\' && j+1 < n {
					j++
					switch src[j] {
					case 'n':
						buf = append(buf, '\n')
					case 't':
						buf = append(buf, '\t')
					case '"', '\\':
						buf = append(buf, src[j])
					default:
						buf = append(buf, src[j])
					}
					j++
					continue
				}
				buf = append(buf, src[j])
				j++
			}
			if j >= n {
				return nil, errAt(start, "unterminated string literal")
			}
			toks = append(toks, Tok{Kind: TokString, Text: string(buf), Offset: start})
			i = j + 1

		case c == '[' || c == ']' || c == '{' || c == '}':
			toks = append(toks, Tok{Kind: TokOp, Text: string(c), Offset: start})
			i++

		case c == '&' && i+1 < n && src[i+1] == '&':
			toks = append(toks, Tok{Kind: TokOp, Text: "&&", Offset: start})
			i += 2

		case c == '|' && i+1 < n && src[i+1] == '|':
			toks = append(toks, Tok{Kind: TokOp, Text: "||", Offset: start})
			i += 2

		case tokTab[c]&chPunct != 0:
			toks = append(toks, Tok{Kind: TokOp, Text: string(c), Offset: start})
			i++

		default:
			return nil, errAt(start, "unexpected character %q", string(c))
		}
	}
	return toks, nil
}

// toks is a cursor over a token slice, the same Peek/Try/Next shape as
// cparse's toks type.
type toks struct {
	s   []Tok
	eof Tok
}

func newToks(s []Tok, inputLen int) *toks {
	return &toks{s: s, eof: Tok{Kind: TokEOF, Text: "", Offset: inputLen + 1}}
}

func (t *toks) next() Tok {
	if len(t.s) == 0 {
		return t.eof
	}
	return t.s[0]
}

func (t *toks) peekOp(text string) bool {
	return len(t.s) > 0 && t.s[0].is(TokOp, text)
}

func (t *toks) tryOp(text string) bool {
	if t.peekOp(text) {
		t.s = t.s[1:]
		return true
	}
	return false
}

func (t *toks) tryIdent(text string) bool {
	if len(t.s) > 0 && t.s[0].Kind == TokIdent && t.s[0].Text == text {
		t.s = t.s[1:]
		return true
	}
	return false
}

func (t *toks) skip(n int) {
	if n > len(t.s) {
		n = len(t.s)
	}
	t.s = t.s[n:]
}
