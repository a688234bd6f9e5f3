package telegram

import "strings"

// markdownV2Reserved lists every character MarkdownV2 treats as markup.
const markdownV2Reserved = "_*[]()~`>#+-=|{}.!\\"

// Escape prefixes each MarkdownV2 reserved character in s with a backslash so
// s renders literally.
func Escape(s string) string {
	if !strings.ContainsAny(s, markdownV2Reserved) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		if strings.ContainsRune(markdownV2Reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
