package normalize

import (
	"html"
	"strings"
)

// EscapeStatusText prepares free-form status text for storage in the
// social stream: whitespace is collapsed and HTML metacharacters are
// entity-escaped.
func EscapeStatusText(s string) string {
	return html.EscapeString(strings.Join(strings.Fields(s), " "))
}
