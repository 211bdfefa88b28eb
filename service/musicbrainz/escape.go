package musicbrainz

import "strings"

// Lucene special characters that must be escaped before a value is
// embedded in a search query.
const luceneSpecials = `+-&|!(){}[]^"~*?:\/`

// EscapeLucene escapes query syntax characters in a field value.
func EscapeLucene(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(luceneSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
