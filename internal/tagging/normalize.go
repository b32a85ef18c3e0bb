package tagging

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxTags      = 10
	MaxTagLength = 32
)

// NormalizeTags trims and lower-cases raw oracle output, drops empty or
// over-long entries and duplicates, and keeps at most MaxTags.
func NormalizeTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.Join(strings.Fields(t), " "))
		if t == "" || utf8.RuneCountInString(t) > MaxTagLength {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}
