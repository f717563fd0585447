package ws

import "strings"

var contentEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// sanitizeContent escapes the five HTML-significant characters before
// persistence. The escaped value is what gets stored and broadcast; it is a
// content-safety transform, not a display concern.
func sanitizeContent(content string) string {
	return contentEscaper.Replace(content)
}
