// Package letter resolves template placeholders and renders dispute letters.
package letter

import (
	"strings"

	"github.com/disputekit/disputekit/internal/core"
)

const (
	openMarker  = "{{"
	closeMarker = "}}"
)

// ExtractPlaceholders returns the distinct placeholder tokens in body in
// first-occurrence order. Unterminated or empty markers are literal text.
func ExtractPlaceholders(body string) []string {
	seen := make(map[string]struct{})
	tokens := make([]string, 0)
	scanPlaceholders(body, func(_, _ int, token string) {
		if _, ok := seen[token]; ok {
			return
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	})
	return tokens
}

// Substitute replaces every occurrence of each bound token. Tokens missing
// from the binding stay in the output verbatim.
func Substitute(body string, binding core.VariableBinding) string {
	if len(binding) == 0 || body == "" {
		return body
	}

	var sb strings.Builder
	sb.Grow(len(body))
	last := 0
	scanPlaceholders(body, func(start, end int, token string) {
		value, ok := binding[token]
		if !ok {
			return
		}
		sb.WriteString(body[last:start])
		sb.WriteString(value)
		last = end
	})
	sb.WriteString(body[last:])
	return sb.String()
}

// scanPlaceholders calls visit for each well-formed placeholder span, left to right.
func scanPlaceholders(body string, visit func(start, end int, token string)) {
	pos := 0
	for pos < len(body) {
		open := strings.Index(body[pos:], openMarker)
		if open < 0 {
			return
		}
		open += pos

		closeAt := strings.Index(body[open+len(openMarker):], closeMarker)
		if closeAt < 0 {
			return
		}
		closeAt += open + len(openMarker)

		// "{{a {{b}}" binds the innermost opener; the rest stays literal.
		inner := body[open+len(openMarker) : closeAt]
		if nested := strings.LastIndex(inner, openMarker); nested >= 0 {
			open += len(openMarker) + nested
			inner = body[open+len(openMarker) : closeAt]
		}

		end := closeAt + len(closeMarker)
		token := strings.TrimSpace(inner)
		if validToken(token) {
			visit(open, end, token)
		}
		pos = end
	}
}

func validToken(token string) bool {
	if token == "" {
		return false
	}
	return !strings.ContainsAny(token, "{}\n\r")
}
