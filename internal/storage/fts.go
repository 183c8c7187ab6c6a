package storage

import (
	"regexp"
	"strings"
)

var ftsTokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// buildFTSQuery turns free text into an FTS5 MATCH expression. Each word
// becomes a quoted phrase so operators and punctuation in the input are
// never interpreted. Returns "" when the input has no word characters.
func buildFTSQuery(query string) string {
	tokens := ftsTokenPattern.FindAllString(query, -1)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	return strings.Join(quoted, " ")
}

// escapeLike escapes LIKE wildcards for use with ESCAPE '\'
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
