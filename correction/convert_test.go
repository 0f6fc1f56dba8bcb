package correction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToNumber(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  float64
		ok    bool
	}{
		{"float passes through", 3.5, 3.5, true},
		{"int widens", 7, 7, true},
		{"numeric string", "42", 42, true},
		{"decimal string", "4.25", 4.25, true},
		{"padded string", "  12 ", 12, true},
		{"empty string is zero", "", 0, true},
		{"true is one", true, 1, true},
		{"false is zero", false, 0, true},
		{"nil is zero", nil, 0, true},
		{"garbage fails", "not-a-number", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ConvertValue(tt.input, "number")
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestConvertToBoolean(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  bool
	}{
		{"bool passes through", true, true},
		{"bool idempotent", false, false},
		{"true word", "true", true},
		{"one", "1", true},
		{"yes", "yes", true},
		{"on", "on", true},
		{"success", "success", true},
		{"false word", "false", false},
		{"zero string", "0", false},
		{"no", "no", false},
		{"off", "off", false},
		{"fail", "fail", false},
		{"failed", "failed", false},
		{"mixed case", "TRUE", true},
		{"other non-empty string is truthy", "whatever", true},
		{"empty string is falsy", "", false},
		{"nonzero number", 3.0, true},
		{"zero number", 0.0, false},
		{"nil is falsy", nil, false},
		{"object is truthy", map[string]interface{}{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ConvertValue(tt.input, "boolean")
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertToObject(t *testing.T) {
	t.Run("json string round-trips", func(t *testing.T) {
		got, ok := ConvertValue(`{"a":1}`, "object")
		require.True(t, ok)
		assert.Equal(t, map[string]interface{}{"a": float64(1)}, got)
	})

	t.Run("map passes through", func(t *testing.T) {
		in := map[string]interface{}{"x": "y"}
		got, ok := ConvertValue(in, "object")
		require.True(t, ok)
		assert.Equal(t, in, got)
	})

	t.Run("query string form", func(t *testing.T) {
		got, ok := ConvertValue("a=1&b=two", "object")
		require.True(t, ok)
		obj, isMap := got.(map[string]interface{})
		require.True(t, isMap)
		assert.Equal(t, "1", obj["a"])
		assert.Equal(t, "two", obj["b"])
	})

	t.Run("plain string gets wrapped", func(t *testing.T) {
		got, _ := ConvertValue("hello", "object")
		assert.Equal(t, map[string]interface{}{"value": "hello"}, got)
	})

	t.Run("scalar gets wrapped", func(t *testing.T) {
		got, _ := ConvertValue(5.0, "object")
		assert.Equal(t, map[string]interface{}{"value": 5.0}, got)
	})
}

func TestConvertToArray(t *testing.T) {
	t.Run("json array string", func(t *testing.T) {
		got, ok := ConvertValue(`[1,2]`, "array")
		require.True(t, ok)
		assert.Equal(t, []interface{}{float64(1), float64(2)}, got)
	})

	t.Run("scalar wraps into a singleton", func(t *testing.T) {
		got, ok := ConvertValue(7.0, "array")
		require.True(t, ok)
		assert.Equal(t, []interface{}{7.0}, got)
	})

	t.Run("non-array string fails", func(t *testing.T) {
		_, ok := ConvertValue("nope", "array")
		assert.False(t, ok)
	})
}

func TestConvertToString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"already", "already"},
		{true, "true"},
		{4.5, "4.5"},
		{float64(3), "3"},
		{nil, "null"},
		{map[string]interface{}{"a": float64(1)}, `{"a":1}`},
	}

	for _, tt := range tests {
		got, ok := ConvertValue(tt.input, "string")
		require.True(t, ok)
		assert.Equal(t, tt.want, got)
	}
}

func TestRuntimeTypeMatching(t *testing.T) {
	assert.Equal(t, "string", runtimeType("x"))
	assert.Equal(t, "number", runtimeType(1.5))
	assert.Equal(t, "boolean", runtimeType(true))
	assert.Equal(t, "array", runtimeType([]interface{}{}))
	assert.Equal(t, "object", runtimeType(map[string]interface{}{}))
	assert.Equal(t, "null", runtimeType(nil))

	assert.True(t, typeMatches("integer", "number"))
	assert.True(t, typeMatches("", "anything"))
	assert.False(t, typeMatches("string", "number"))
}
