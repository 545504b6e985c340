package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeysUTF16Order(t *testing.T) {
	obj := IRObject{"a": IRInt(1), "A": IRInt(2), "aa": IRInt(3), "aA": IRInt(4), "Aa": IRInt(5), "AA": IRInt(6)}
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestIRObjectSortedKeysSurrogates(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00 which sort before U+FF61.
	obj := IRObject{"\uff61": IRInt(1), "\U0001F600": IRInt(2)}
	assert.Equal(t, []string{"\U0001F600", "\uff61"}, obj.SortedKeys())
}

func TestIRObjectAccessors(t *testing.T) {
	obj := NewIRObject(O("time", IRInt(120)), O("state", IRBool(true)), O("pin", IRString("B1")))

	n, ok := obj.Int("time")
	assert.True(t, ok)
	assert.Equal(t, int64(120), n)

	b, ok := obj.Bool("state")
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = obj.Int("pin")
	assert.False(t, ok)
	_, ok = obj.Bool("missing")
	assert.False(t, ok)
}

func TestIRObjectMarshalJSONSorted(t *testing.T) {
	obj := IRObject{"time": IRInt(5), "pin": IRInt(3), "state": IRBool(false)}
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"pin":3,"state":false,"time":5}`, string(data))
}

func TestMarshalIRValueNested(t *testing.T) {
	v := IRArray{IRString("x"), IRObject{"b": IRNull{}, "a": IRArray{}}}
	data, err := MarshalIRValue(v)
	require.NoError(t, err)
	assert.Equal(t, `["x",{"a":[],"b":null}]`, string(data))
}

func TestFromGo(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  IRValue
	}{
		{"nil", nil, IRNull{}},
		{"string", "hi", IRString("hi")},
		{"int", 7, IRInt(7)},
		{"int64", int64(-3), IRInt(-3)},
		{"uint32", uint32(4294967295), IRInt(4294967295)},
		{"whole float", float64(12), IRInt(12)},
		{"bool", true, IRBool(true)},
		{"slice", []any{1, "a"}, IRArray{IRInt(1), IRString("a")}},
		{"map", map[string]any{"time": 3}, IRObject{"time": IRInt(3)}},
		{"passthrough", IRInt(9), IRInt(9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGo(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromGoRejectsFractions(t *testing.T) {
	_, err := FromGo(1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fractional")

	_, err = FromGo(map[string]any{"x": []any{0.25}})
	require.Error(t, err)
}

func TestFromGoUnsupported(t *testing.T) {
	_, err := FromGo(struct{}{})
	require.Error(t, err)
}

func TestToGoInvertsFromGo(t *testing.T) {
	in := map[string]any{"time": int64(10), "pin": int64(2), "tags": []any{"a", true}}
	v, err := FromGo(in)
	require.NoError(t, err)
	assert.Equal(t, in, ToGo(v))
	assert.Nil(t, ToGo(IRNull{}))
}
