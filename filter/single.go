package filter

import (
	"strconv"

	"github.com/tracehound/ketrace/decode"
)

// Path is a dotted key reference: `key` or `key.field`.
type Path struct {
	Key      string
	Field    string
	HasField bool
}

// Expr is the single-event FilterExpr sum type from spec.md §3: Paren |
// Not | And | Or | KvPair(Path, Value) | FindValue(Value).
type Expr interface{ isExpr() }

type ParenExpr struct{ Inner Expr }
type NotExpr struct{ Inner Expr }
type AndExpr struct{ Left, Right Expr }
type OrExpr struct{ Left, Right Expr }
type KvPair struct {
	Path  Path
	Value decode.Value
}
type FindValue struct{ Value decode.Value }

func (*ParenExpr) isExpr() {}
func (*NotExpr) isExpr()   {}
func (*AndExpr) isExpr()   {}
func (*OrExpr) isExpr()    {}
func (*KvPair) isExpr()    {}
func (*FindValue) isExpr() {}

// ParseSingle parses a single-event filter expression, per spec.md §4.7's
// grammar:
//
//	expr := term (('&&' | '||') term)*
//	term := '(' expr ')' | '!' term | kv | value
//	kv   := path '=' value
//	path := ident ('.' ident)?
//	value:= null | bool | i64 | number | string | array | object
//
// '&&' and '||' are left-associative at equal precedence; explicit
// parentheses are required where order matters.
func ParseSingle(src string) (Expr, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &singleParser{t: newToks(tokens, len(src))}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.t.next().Kind != TokEOF {
		tok := p.t.next()
		return nil, errAt(tok.Offset, "unexpected trailing input %q", tok.Text)
	}
	return expr, nil
}

type singleParser struct{ t *toks }

func (p *singleParser) parseExpr() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		if p.t.tryOp("&&") {
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left = &AndExpr{Left: left, Right: right}
			continue
		}
		if p.t.tryOp("||") {
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left = &OrExpr{Left: left, Right: right}
			continue
		}
		return left, nil
	}
}

func (p *singleParser) parseTerm() (Expr, error) {
	tok := p.t.next()

	if p.t.tryOp("(") {
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.t.tryOp(")") {
			end := p.t.next()
			return nil, errAt(end.Offset, "expected ')'")
		}
		return &ParenExpr{Inner: inner}, nil
	}
	if p.t.tryOp("!") {
		inner, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Inner: inner}, nil
	}

	// Try kv := path '=' value; fall back to a bare value (FindValue).
	if tok.Kind == TokIdent {
		save := *p.t
		path, ok := p.tryParsePath()
		if ok && p.t.tryOp("=") {
			val, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			return &KvPair{Path: path, Value: val}, nil
		}
		*p.t = save
	}

	val, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &FindValue{Value: val}, nil
}

func (p *singleParser) tryParsePath() (Path, bool) {
	first := p.t.next()
	if first.Kind != TokIdent {
		return Path{}, false
	}
	p.t.skip(1)
	path := Path{Key: first.Text}
	if p.t.peekOp(".") {
		save := *p.t
		p.t.skip(1)
		second := p.t.next()
		if second.Kind == TokIdent {
			p.t.skip(1)
			path.Field = second.Text
			path.HasField = true
			return path, true
		}
		*p.t = save
	}
	return path, true
}

func (p *singleParser) parseValue() (decode.Value, error) {
	tok := p.t.next()
	switch {
	case tok.Kind == TokIdent && tok.Text == "null":
		p.t.skip(1)
		return decode.Null(), nil
	case tok.Kind == TokIdent && tok.Text == "true":
		p.t.skip(1)
		return decode.Bool(true), nil
	case tok.Kind == TokIdent && tok.Text == "false":
		p.t.skip(1)
		return decode.Bool(false), nil
	case tok.Kind == TokNumber:
		p.t.skip(1)
		// Integer parse is preferred over floating-point for inputs
		// without fractional/exponent parts.
		if iv, err := strconv.ParseInt(tok.Text, 10, 64); err == nil {
			return decode.I64(iv), nil
		}
		fv, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return decode.Value{}, errAt(tok.Offset, "invalid number %q", tok.Text)
		}
		return decode.F64(fv), nil
	case tok.Kind == TokString:
		p.t.skip(1)
		return decode.Str(tok.Text), nil
	case tok.is(TokOp, "["):
		return p.parseArray()
	case tok.is(TokOp, "{"):
		return p.parseObject()
	}
	return decode.Value{}, errAt(tok.Offset, "expected a value")
}

func (p *singleParser) parseArray() (decode.Value, error) {
	p.t.skip(1) // '['
	var elems []decode.Value
	if p.t.tryOp("]") {
		return decode.Array(elems), nil
	}
	for {
		v, err := p.parseValue()
		if err != nil {
			return decode.Value{}, err
		}
		elems = append(elems, v)
		if p.t.tryOp(",") {
			continue
		}
		if p.t.tryOp("]") {
			return decode.Array(elems), nil
		}
		tok := p.t.next()
		return decode.Value{}, errAt(tok.Offset, "expected ',' or ']'")
	}
}

func (p *singleParser) parseObject() (decode.Value, error) {
	p.t.skip(1) // '{'
	var fields []decode.StructField
	if p.t.tryOp("}") {
		return decode.Struct(fields), nil
	}
	for {
		keyTok := p.t.next()
		var key string
		switch keyTok.Kind {
		case TokIdent, TokString:
			key = keyTok.Text
			p.t.skip(1)
		default:
			return decode.Value{}, errAt(keyTok.Offset, "expected an object key")
		}
		if !p.t.tryOp(":") && !p.t.tryOp("=") {
			tok := p.t.next()
			return decode.Value{}, errAt(tok.Offset, "expected ':'")
		}
		v, err := p.parseValue()
		if err != nil {
			return decode.Value{}, err
		}
		fields = append(fields, decode.StructField{Name: key, Value: v})
		if p.t.tryOp(",") {
			continue
		}
		if p.t.tryOp("}") {
			return decode.Struct(fields), nil
		}
		tok := p.t.next()
		return decode.Value{}, errAt(tok.Offset, "expected ',' or '}'")
	}
}
