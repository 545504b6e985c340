package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListDropsNilMembers(t *testing.T) {
	l := List(Function("a", nil), nil, Source("b()"))
	assert.Len(t, l.List, 2)
}

func TestFlattenNested(t *testing.T) {
	a := Function("a", nil)
	b := Source("b()")
	c := Function("c", nil)
	nested := List(a, List(b, List()), c)

	flat := nested.Flatten()
	require.Len(t, flat, 3)
	assert.Same(t, a, flat[0])
	assert.Same(t, b, flat[1])
	assert.Same(t, c, flat[2])

	var absent *Target
	assert.Nil(t, absent.Flatten())
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "blink", Function("blink", nil).String())
	assert.Equal(t, "function () { [native code] }", Function("", nil).String())
	assert.Equal(t, `"print(1)"`, Source("print(1)").String())
	assert.Equal(t, `[blink, "x()"]`, List(Function("blink", nil), Source("x()")).String())
	var absent *Target
	assert.Equal(t, "undefined", absent.String())
}

func TestTargetJSONRoundTrip(t *testing.T) {
	orig := List(Function("blink", func(Args) error { return nil }), Source("LED.toggle()"), List(Function("nested", nil)))

	data, err := json.Marshal(orig)
	require.NoError(t, err)
	assert.Equal(t, `[{"fn":"blink"},{"src":"LED.toggle()"},[{"fn":"nested"}]]`, string(data))

	var back Target
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, TargetList, back.Kind)
	require.Len(t, back.List, 3)
	assert.Equal(t, "blink", back.List[0].Name)
	assert.Nil(t, back.List[0].Func, "native bodies are not persisted")
	assert.Equal(t, "LED.toggle()", back.List[1].Source)
	assert.Equal(t, "nested", back.List[2].List[0].Name)
}

func TestClosurePersistsAsSource(t *testing.T) {
	c := Closure("function (e) { print(e.time); }", func(Args) error { return nil })
	assert.Equal(t, TargetFunction, c.Kind)
	assert.Equal(t, "function (e) { print(e.time); }", c.String())

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"src":"function (e) { print(e.time); }"}`, string(data))

	var back Target
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, TargetSource, back.Kind)
}

func TestTargetUnmarshalRejectsUnknownShape(t *testing.T) {
	var tg Target
	err := json.Unmarshal([]byte(`{"other":"x"}`), &tg)
	require.Error(t, err)
}

func TestParseEdge(t *testing.T) {
	for in, want := range map[string]Edge{"rising": EdgeRising, "1": EdgeRising, "falling": EdgeFalling, "-1": EdgeFalling, "both": EdgeBoth, "": EdgeBoth} {
		got, err := ParseEdge(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseEdge("sideways")
	require.Error(t, err)
}

func TestSnapshotJSON(t *testing.T) {
	snap := Snapshot{
		Tick:    1000,
		Timers:  []TimerRecord{{ID: 1, Remaining: 40, Interval: 100, Recurring: true, Callback: Function("tick", nil)}},
		Watches: []WatchRecord{{ID: 2, Pin: 3, Edge: EdgeRising, Debounce: 50, Callback: Source("x()")}},
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var back Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, int64(40), back.Timers[0].Remaining)
	assert.Equal(t, "tick", back.Timers[0].Callback.Name)
	assert.Equal(t, EdgeRising, back.Watches[0].Edge)
	assert.Equal(t, "x()", back.Watches[0].Callback.Source)
}
