package parsers

import (
	"regexp"
	"strings"
)

var (
	fencedSQL  = regexp.MustCompile("(?is)```sql\\s*(.*?)\\s*```")
	fencedAny  = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
	selectTail = regexp.MustCompile(`(?is)\bSELECT\b.*`)
)

// ExtractSQL pulls the statement out of a model reply: a ```sql fenced block
// first, then a bare fenced block, then everything from the first SELECT on,
// then the trimmed text.
func ExtractSQL(reply string) string {
	if m := fencedSQL.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := fencedAny.FindStringSubmatch(reply); m != nil && selectTail.MatchString(m[1]) {
		return strings.TrimSpace(m[1])
	}
	if m := selectTail.FindString(reply); m != "" {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m), "```"))
	}
	return strings.TrimSpace(reply)
}
