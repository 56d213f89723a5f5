package filter

import (
	"fmt"
	"strings"

	"github.com/tracehound/ketrace/schema"
)

// PairRuleKind distinguishes the two built-in rules from the general
// custom form (spec.md §3's PairRule sum type).
type PairRuleKind uint8

const (
	PairHandle PairRuleKind = iota
	PairMemory
	PairCustom
)

// PairRule is one pair-matching rule with its own pending-match state.
type PairRule struct {
	Kind        PairRuleKind
	EventName   string
	OpcodeFirst string
	OpcodeSecond string
	KeyPaths    []Path

	pending map[string]PairEvent
}

// PairEvent is the minimal view over a decoded event the pair engine
// needs to compute a projection key and to hand back as a matched
// counterpart.
type PairEvent interface {
	EventName() string
	OpcodeName() string
	ProcessID() uint32
	PropertiesValue() (fieldValue func(field string) (string, bool))
}

// ParsePairs parses a pair-expression string, per spec.md §4.7:
//
//	pairs := pair ('||' pair)*
//	pair  := 'handle' | 'memory' | 'custom' '(' name ',' name ',' name ',' paths ')'
//	paths := path (',' path)+
//
// reg is used to validate custom rules: event_name must exist, both
// opcode names must exist under it, and key_paths must have a .field iff
// the path's key is "properties".
func ParsePairs(src string, reg *schema.Registry) ([]*PairRule, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	t := newToks(tokens, len(src))
	var rules []*PairRule
	for {
		rule, err := parsePair(t, reg)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
		if t.tryOp("||") {
			continue
		}
		break
	}
	if t.next().Kind != TokEOF {
		tok := t.next()
		return nil, errAt(tok.Offset, "unexpected trailing input %q", tok.Text)
	}
	return rules, nil
}

func parsePair(t *toks, reg *schema.Registry) (*PairRule, error) {
	if t.tryIdent("handle") {
		return &PairRule{Kind: PairHandle, pending: map[string]PairEvent{}}, nil
	}
	if t.tryIdent("memory") {
		return &PairRule{Kind: PairMemory, pending: map[string]PairEvent{}}, nil
	}
	if t.tryIdent("custom") {
		if !t.tryOp("(") {
			tok := t.next()
			return nil, errAt(tok.Offset, "expected '(' after custom")
		}
		eventName, err := expectIdent(t)
		if err != nil {
			return nil, err
		}
		if !t.tryOp(",") {
			tok := t.next()
			return nil, errAt(tok.Offset, "expected ','")
		}
		op1, err := expectIdent(t)
		if err != nil {
			return nil, err
		}
		if !t.tryOp(",") {
			tok := t.next()
			return nil, errAt(tok.Offset, "expected ','")
		}
		op2, err := expectIdent(t)
		if err != nil {
			return nil, err
		}

		var paths []Path
		for t.tryOp(",") {
			p, err := expectPath(t)
			if err != nil {
				return nil, err
			}
			paths = append(paths, p)
		}
		if len(paths) == 0 {
			tok := t.next()
			return nil, errAt(tok.Offset, "custom rule requires at least one key path")
		}
		if !t.tryOp(")") {
			tok := t.next()
			return nil, errAt(tok.Offset, "expected ')'")
		}

		if err := validateCustom(eventName, op1, op2, paths, reg); err != nil {
			return nil, err
		}

		return &PairRule{
			Kind:         PairCustom,
			EventName:    eventName,
			OpcodeFirst:  op1,
			OpcodeSecond: op2,
			KeyPaths:     paths,
			pending:      map[string]PairEvent{},
		}, nil
	}
	tok := t.next()
	return nil, errAt(tok.Offset, "expected 'handle', 'memory', or 'custom'")
}

func expectIdent(t *toks) (string, error) {
	tok := t.next()
	if tok.Kind != TokIdent {
		return "", errAt(tok.Offset, "expected a name")
	}
	t.skip(1)
	return tok.Text, nil
}

func expectPath(t *toks) (Path, error) {
	tok := t.next()
	if tok.Kind != TokIdent {
		return Path{}, errAt(tok.Offset, "expected a path")
	}
	t.skip(1)
	p := Path{Key: tok.Text}
	if t.tryOp(".") {
		field := t.next()
		if field.Kind != TokIdent {
			return Path{}, errAt(field.Offset, "expected a field name after '.'")
		}
		t.skip(1)
		p.Field = field.Text
		p.HasField = true
	}
	return p, nil
}

// validateCustom checks event_name/opcode existence against reg and the
// "properties needs a .field, others must not" path rule.
func validateCustom(eventName, op1, op2 string, paths []Path, reg *schema.Registry) error {
	majorIdx, ok := reg.MajorIndex(eventName)
	if !ok {
		return fmt.Errorf("filter: unknown event name %q", eventName)
	}
	if _, ok := reg.MinorIndex(majorIdx, op1); !ok {
		return fmt.Errorf("filter: unknown opcode %q for event %q", op1, eventName)
	}
	if _, ok := reg.MinorIndex(majorIdx, op2); !ok {
		return fmt.Errorf("filter: unknown opcode %q for event %q", op2, eventName)
	}
	for _, p := range paths {
		if p.Key == "properties" && !p.HasField {
			return fmt.Errorf("filter: path %q requires a .field", p.Key)
		}
		if p.Key != "properties" && p.HasField {
			return fmt.Errorf("filter: path %q must not have a .field", p.Key)
		}
	}
	return nil
}

// MatchResult is the outcome of feeding one event to a PairRule.
type MatchResult struct {
	Matched bool
	Paired  PairEvent // non-nil only when the second half of a pair arrived
}

// Match implements spec.md §4.7's pair-matching algorithm for one rule.
func (r *PairRule) Match(ev PairEvent, processID func(PairEvent) uint32) MatchResult {
	if !strings.EqualFold(ev.EventName(), r.matchEventName()) {
		return MatchResult{}
	}
	op := ev.OpcodeName()
	switch {
	case strings.EqualFold(op, r.matchOpcodeFirst()):
		key := r.projectionKey(ev, processID)
		r.pending[key] = ev
		return MatchResult{Matched: true}
	case strings.EqualFold(op, r.matchOpcodeSecond()):
		key := r.projectionKey(ev, processID)
		paired, ok := r.pending[key]
		if ok {
			delete(r.pending, key)
			return MatchResult{Matched: true, Paired: paired}
		}
		return MatchResult{Matched: true}
	}
	return MatchResult{}
}

func (r *PairRule) matchEventName() string {
	switch r.Kind {
	case PairHandle:
		return "Object"
	case PairMemory:
		return "VaMap"
	default:
		return r.EventName
	}
}

func (r *PairRule) matchOpcodeFirst() string {
	switch r.Kind {
	case PairHandle:
		return "CreateHandle"
	case PairMemory:
		return "MapFile"
	default:
		return r.OpcodeFirst
	}
}

func (r *PairRule) matchOpcodeSecond() string {
	switch r.Kind {
	case PairHandle:
		return "CloseHandle"
	case PairMemory:
		return "UnmapFile"
	default:
		return r.OpcodeSecond
	}
}

// projectionKey concatenates resolved values at each key path: process_id
// as decimal, properties.field as its decoded string.
func (r *PairRule) projectionKey(ev PairEvent, processID func(PairEvent) uint32) string {
	keyPaths := r.KeyPaths
	if len(keyPaths) == 0 {
		// The handle and memory built-ins both key on process_id +
		// properties.Handle.
		keyPaths = []Path{{Key: "process_id"}, {Key: "properties", Field: "Handle", HasField: true}}
	}
	var b strings.Builder
	for i, p := range keyPaths {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		switch p.Key {
		case "process_id":
			fmt.Fprintf(&b, "%d", processID(ev))
		case "properties":
			if v, ok := ev.PropertiesValue()(p.Field); ok {
				b.WriteString(v)
			}
		}
	}
	return b.String()
}

// Engine holds the active single-event and pair expressions behind a
// mutex allowing atomic replacement; evaluation takes a read snapshot
// (spec.md §4.7, §5).
type Engine struct {
	mu     chan struct{} // binary semaphore used as a fair mutex, one in flight at a time
	single Expr
	pairs  []*PairRule
}

// NewEngine returns an Engine with no active expressions.
func NewEngine() *Engine {
	e := &Engine{mu: make(chan struct{}, 1)}
	e.mu <- struct{}{}
	return e
}

func (e *Engine) lock()   { <-e.mu }
func (e *Engine) unlock() { e.mu <- struct{}{} }

// SetSingle atomically replaces the active single-event expression.
func (e *Engine) SetSingle(expr Expr) {
	e.lock()
	e.single = expr
	e.unlock()
}

// SetPairs atomically replaces the active pair rules, resetting all
// pending-match state (spec.md §4.7's "pair engine resets its pending
// maps on configuration change").
func (e *Engine) SetPairs(rules []*PairRule) {
	e.lock()
	for _, r := range rules {
		r.pending = map[string]PairEvent{}
	}
	e.pairs = rules
	e.unlock()
}

// Single returns the currently active single-event expression snapshot.
func (e *Engine) Single() Expr {
	e.lock()
	defer e.unlock()
	return e.single
}

// Pairs returns the currently active pair rules snapshot.
func (e *Engine) Pairs() []*PairRule {
	e.lock()
	defer e.unlock()
	return e.pairs
}

// MatchPairs walks the active pair rules in order, returning the first
// rule's result that matches.
func (e *Engine) MatchPairs(ev PairEvent, processID func(PairEvent) uint32) (matched bool, result MatchResult) {
	for _, r := range e.Pairs() {
		res := r.Match(ev, processID)
		if res.Matched {
			return true, res
		}
	}
	return false, MatchResult{}
}
