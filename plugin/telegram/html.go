package telegram

import "strings"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// Escape makes user-provided text safe for HTML parse mode. Quotes are
// left alone; Telegram only cares about tag and entity delimiters.
func Escape(s string) string {
	return htmlEscaper.Replace(s)
}
