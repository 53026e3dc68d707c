package letter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/disputekit/disputekit/internal/core"
)

func TestExtractPlaceholdersDedupesInOrder(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, ExtractPlaceholders("{{a}}{{a}}{{b}}"))
	require.Equal(t, []string{"client_name", "bureau_name"},
		ExtractPlaceholders("Dear {{ client_name }}, re {{bureau_name}} and {{client_name}}"))
}

func TestExtractPlaceholdersIsStable(t *testing.T) {
	body := "{{ zeta }} {{alpha}} {{mid}} {{alpha}} {{zeta}} {{ {{inner}} }}"
	first := ExtractPlaceholders(body)
	second := ExtractPlaceholders(body)
	require.Equal(t, first, second)
	require.Equal(t, []string{"zeta", "alpha", "mid", "inner"}, first)

	first[0] = "changed"
	require.Equal(t, "zeta", ExtractPlaceholders(body)[0])
}

func TestExtractPlaceholdersMalformed(t *testing.T) {
	cases := map[string][]string{
		"":                {},
		"no markers":      {},
		"{{unterminated":  {},
		"{{}} and {{  }}": {},
		"{{a {{b}}":       {"b"},
		"{{x}} {{y":       {"x"},
		"}}{{z}}":         {"z"},
	}
	for input, want := range cases {
		require.Equal(t, want, ExtractPlaceholders(input), input)
	}
}

func TestSubstituteLeavesUnboundTokens(t *testing.T) {
	out := Substitute("{{a}}-{{b}}", core.VariableBinding{"a": "X"})
	require.Equal(t, "X-{{b}}", out)
}

func TestSubstituteReplacesEveryOccurrence(t *testing.T) {
	out := Substitute("{{a}} {{ a }} {{a}}", core.VariableBinding{"a": "1"})
	require.Equal(t, "1 1 1", out)
}

func TestSubstituteKeepsMalformedText(t *testing.T) {
	out := Substitute("Hi {{name}} {{oops", core.VariableBinding{"name": "Jo", "oops": "no"})
	require.Equal(t, "Hi Jo {{oops", out)
}

func TestSubstituteDoesNotRescanValues(t *testing.T) {
	out := Substitute("{{a}}", core.VariableBinding{"a": "{{b}}", "b": "nope"})
	require.Equal(t, "{{b}}", out)
}
