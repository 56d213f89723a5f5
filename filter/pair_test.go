package filter

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tracehound/ketrace/schema"
)

type fakePairEvent struct {
	eventName, opcodeName string
	pid                   uint32
	props                 map[string]string
}

func (e *fakePairEvent) EventName() string  { return e.eventName }
func (e *fakePairEvent) OpcodeName() string { return e.opcodeName }
func (e *fakePairEvent) ProcessID() uint32  { return e.pid }
func (e *fakePairEvent) PropertiesValue() func(string) (string, bool) {
	return func(field string) (string, bool) {
		v, ok := e.props[field]
		return v, ok
	}
}

func pidOf(p PairEvent) uint32 { return p.(*fakePairEvent).pid }

func TestParsePairsScenarioE(t *testing.T) {
	rules, err := ParsePairs(`handle || memory || custom(Process, Start, End, process_id, properties.Handle)`, schema.DefaultRegistry)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	require.Equal(t, PairHandle, rules[0].Kind)
	require.Equal(t, PairMemory, rules[1].Kind)
	require.Equal(t, PairCustom, rules[2].Kind)
	require.Equal(t, "Process", rules[2].EventName)
	require.Equal(t, "Start", rules[2].OpcodeFirst)
	require.Equal(t, "End", rules[2].OpcodeSecond)
}

func TestCustomRuleFirstThenSecondPairs(t *testing.T) {
	rules, err := ParsePairs(`custom(Process, Start, End, process_id)`, schema.DefaultRegistry)
	require.NoError(t, err)
	rule := rules[0]

	first := &fakePairEvent{eventName: "Process", opcodeName: "Start", pid: 10}
	res := rule.Match(first, pidOf)
	require.True(t, res.Matched)
	require.Nil(t, res.Paired)

	second := &fakePairEvent{eventName: "Process", opcodeName: "End", pid: 10}
	res = rule.Match(second, pidOf)
	require.True(t, res.Matched)
	require.NotNil(t, res.Paired)
	require.Same(t, first, res.Paired.(*fakePairEvent))
}

func TestCustomRuleUnknownEventRejected(t *testing.T) {
	_, err := ParsePairs(`custom(NoSuchEvent, A, B, process_id)`, schema.DefaultRegistry)
	require.Error(t, err)
}

func TestCustomRulePropertiesPathRequiresField(t *testing.T) {
	_, err := ParsePairs(`custom(Process, Start, End, properties)`, schema.DefaultRegistry)
	require.Error(t, err)
}
