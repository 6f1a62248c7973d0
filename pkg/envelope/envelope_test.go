package envelope

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParseReservedFields(t *testing.T) {
	env, err := Parse(`{"id":["42"],"device":"dev1","method":"getValues"}`)
	require.NoError(t, err)
	require.True(t, env.HasID())
	require.Equal(t, []any{"42"}, env.ID)
	require.True(t, env.HasDevice())
	require.Equal(t, "dev1", env.Device)
	require.Equal(t, "getValues", env.Body["method"])
	require.Equal(t, "getValues", env.Method())
	require.Contains(t, env.Body, "id")
	require.Contains(t, env.Body, "device")
}

func TestParseKeepsNumbersExact(t *testing.T) {
	env, err := Parse(`{"id":[12345678901234567890, "x"]}`)
	require.NoError(t, err)
	require.Equal(t, json.Number("12345678901234567890"), env.ID[0])
}

func TestParseWrongTypedReservedFieldsAreAbsent(t *testing.T) {
	env, err := Parse(`{"id":"42","device":7,"extra":{"a":1}}`)
	require.NoError(t, err)
	require.False(t, env.HasID())
	require.Nil(t, env.ID)
	require.False(t, env.HasDevice())
	require.Empty(t, env.Device)
	require.Equal(t, "42", env.Body["id"])
	require.Contains(t, env.Body, "extra")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "not json", raw: "not-json", want: ErrMalformed},
		{name: "empty", raw: "", want: ErrMalformed},
		{name: "truncated", raw: `{"id":[1`, want: ErrMalformed},
		{name: "trailing data", raw: `{"a":1} {"b":2}`, want: ErrMalformed},
		{name: "array", raw: `[1,2]`, want: ErrNotObject},
		{name: "string", raw: `"hello"`, want: ErrNotObject},
		{name: "null", raw: `null`, want: ErrNotObject},
		{name: "number", raw: `42`, want: ErrNotObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Parse(tt.raw)
			require.Nil(t, env)
			require.ErrorIs(t, err, tt.want)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			require.Equal(t, tt.raw, pe.Raw)
		})
	}
}

func TestParseAllowsTrailingWhitespace(t *testing.T) {
	env, err := Parse("{\"device\":\"meter0\"}\n ")
	require.NoError(t, err)
	require.Equal(t, "meter0", env.Device)
}

func TestDecode(t *testing.T) {
	env, err := Parse(`{"method":"authenticate","params":{"token":"t1"}}`)
	require.NoError(t, err)

	var req struct {
		Method string `json:"method"`
		Params struct {
			Token string `json:"token"`
		} `json:"params"`
	}
	require.NoError(t, env.Decode(&req))
	require.Equal(t, "authenticate", req.Method)
	require.Equal(t, "t1", req.Params.Token)
}
