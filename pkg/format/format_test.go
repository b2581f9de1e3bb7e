package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// go test -v --run TestFormat
func TestFormat(t *testing.T) {
	cases := []struct {
		name string
		tmpl string
		args []any
		want string
	}{
		{"plain", "hello", nil, "hello"},
		{"positional", "{0} calls for {1}", []any{3, "IBM"}, "3 calls for IBM"},
		{"reordered", "{1}-{0}-{1}", []any{"a", "b"}, "b-a-b"},
		{"escaped braces", "{{literal}} {0}", []any{42}, "{literal} 42"},
		{"only placeholder", "{0}", []any{"x"}, "x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Format(tc.tmpl, tc.args...)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

// go test -v --run TestFormatErrors
func TestFormatErrors(t *testing.T) {
	_, err := Format("unbalanced {", "x")
	require.ErrorIs(t, err, ErrInvalidFormat)

	_, err = Format("{x}", "x")
	require.ErrorIs(t, err, ErrInvalidFormat)

	_, err = Format("", "x")
	require.ErrorIs(t, err, ErrInvalidFormat)

	_, err = Format("{2}", "a", "b")
	require.ErrorIs(t, err, ErrArgIndex)
}

// go test -v --run TestSprintf
func TestSprintf(t *testing.T) {
	require.Equal(t, "cycle 7", Sprintf("cycle {0}", 7))
	require.Contains(t, Sprintf("cycle {3}", 7), ErrArgIndex.Error())
}
