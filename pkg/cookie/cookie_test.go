package cookie

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   map[string]string
	}{
		{name: "two cookies", header: "session=abc123; theme=dark", want: map[string]string{"session": "abc123", "theme": "dark"}},
		{name: "value with equals is dropped", header: "a=b=c", want: map[string]string{}},
		{name: "malformed segment dropped, rest kept", header: "a=b=c; token=t1", want: map[string]string{"token": "t1"}},
		{name: "segment without equals", header: "flag; x=1", want: map[string]string{"x": "1"}},
		{name: "empty value dropped", header: "a=; b=1", want: map[string]string{"b": "1"}},
		{name: "trailing equals after value ignored", header: "a=b=; c=d==", want: map[string]string{"a": "b", "c": "d"}},
		{name: "empty name kept", header: "=b", want: map[string]string{"": "b"}},
		{name: "bare equals dropped", header: "=; x=1", want: map[string]string{"x": "1"}},
		{name: "empty header", header: "", want: map[string]string{}},
		{name: "later duplicate wins", header: "k=1; k=2", want: map[string]string{"k": "2"}},
		{name: "only semicolon separator is not split", header: "a=1;b=2", want: map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Parse(tt.header))
		})
	}
}

func TestFromHeader(t *testing.T) {
	h := http.Header{}
	require.Empty(t, FromHeader(h))
	require.Empty(t, FromHeader(nil))

	h.Add("Cookie", "session=abc123")
	h.Add("Cookie", "theme=dark")
	require.Equal(t, map[string]string{"session": "abc123", "theme": "dark"}, FromHeader(h))
}
