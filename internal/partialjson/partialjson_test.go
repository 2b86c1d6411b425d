package partialjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		buf      string
		expected any
	}{
		{
			name:     "truncated object value kept",
			buf:      `{"a":1`,
			expected: map[string]any{"a": float64(1)},
		},
		{
			name:     "nested truncated object",
			buf:      `{"a":{"b":2`,
			expected: map[string]any{"a": map[string]any{"b": float64(2)}},
		},
		{
			name:     "trailing array element dropped",
			buf:      `[1,2`,
			expected: []any{float64(1)},
		},
		{
			name:     "trailing comma dropped",
			buf:      `{"a":1,`,
			expected: map[string]any{"a": float64(1)},
		},
		{
			name:     "dangling colon drops the key",
			buf:      `{"a":`,
			expected: map[string]any{},
		},
		{
			name:     "complete document unchanged",
			buf:      `{"a":"b\"c"}`,
			expected: map[string]any{"a": `b"c`},
		},
		{
			name:     "unterminated string dropped with its slot",
			buf:      `{"a":"hel`,
			expected: map[string]any{},
		},
		{
			name:     "escaped quote does not terminate string",
			buf:      `{"a":"b\"`,
			expected: map[string]any{},
		},
		{
			name:     "unterminated string in array",
			buf:      `["a","b`,
			expected: []any{"a"},
		},
		{
			name:     "complete trailing string element in array kept",
			buf:      `["x","y"`,
			expected: []any{"x", "y"},
		},
		{
			name:     "complete trailing string in nested array kept",
			buf:      `{"items":["a","b"`,
			expected: map[string]any{"items": []any{"a", "b"}},
		},
		{
			name:     "incomplete number dropped",
			buf:      `{"a":1.`,
			expected: map[string]any{},
		},
		{
			name:     "incomplete exponent dropped",
			buf:      `{"a":1e`,
			expected: map[string]any{},
		},
		{
			name:     "bare minus dropped",
			buf:      `{"a":-`,
			expected: map[string]any{},
		},
		{
			name:     "partial literal dropped",
			buf:      `{"a":fal`,
			expected: map[string]any{},
		},
		{
			name:     "complete literal in array kept",
			buf:      `[true`,
			expected: []any{true},
		},
		{
			name:     "dangling key without colon dropped",
			buf:      `{"a":"b","c"`,
			expected: map[string]any{"a": "b"},
		},
		{
			name:     "open object",
			buf:      `{`,
			expected: map[string]any{},
		},
		{
			name:     "open array inside object",
			buf:      `{"a":[`,
			expected: map[string]any{"a": []any{}},
		},
		{
			name:     "empty buffer",
			buf:      ``,
			expected: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Parse(tt.buf))
		})
	}
}

func TestRepairClosesInnermostFirst(t *testing.T) {
	assert.Equal(t, `{"a":[{"b":1}]}`, Repair(`{"a":[{"b":1`))
}

func TestParseComplete(t *testing.T) {
	v, err := ParseComplete(`{"command":"python3 -V"`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"command": "python3 -V"}, v)

	_, err = ParseComplete(`}{`)
	require.Error(t, err)
	// The offending buffer is included for diagnosis.
	assert.Contains(t, err.Error(), `}{`)
}

func TestParseCompleteEmptyBuffer(t *testing.T) {
	v, err := ParseComplete("")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, v)
}

func TestArguments(t *testing.T) {
	args := Arguments(`{"command":"ls -la","description":"list`)
	assert.Equal(t, map[string]any{"command": "ls -la"}, args)

	// Non-object buffers degrade to an empty argument map.
	assert.Equal(t, map[string]any{}, Arguments(`[1,2,3]`))
	assert.Equal(t, map[string]any{}, Arguments(`not json at all`))
}
