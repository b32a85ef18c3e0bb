// Package moderation masks profanity in user-submitted text.
package moderation

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

var defaultWords = []string{
	"arse", "ass", "asshole", "bastard", "bitch", "bollocks", "bullshit",
	"crap", "cunt", "damn", "dick", "dickhead", "fuck", "fucker", "fucking",
	"motherfucker", "piss", "prick", "shit", "shitty", "slut", "twat",
	"wanker", "whore",
}

// Filter replaces listed words with asterisks. It is safe for concurrent use
// and its list can be swapped at runtime.
type Filter struct {
	mu      sync.RWMutex
	words   []string
	pattern *regexp.Regexp
}

// NewFilter returns a filter over the built-in list plus extra.
func NewFilter(extra ...string) *Filter {
	f := &Filter{}
	f.set(extra)
	return f
}

// Clean masks every whole-word, case-insensitive match with '*' repeated to
// the word's length.
func (f *Filter) Clean(text string) string {
	f.mu.RLock()
	re := f.pattern
	f.mu.RUnlock()
	if re == nil || text == "" {
		return text
	}
	return re.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Repeat("*", utf8.RuneCountInString(m))
	})
}

// Words returns the active list, sorted.
func (f *Filter) Words() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.words))
	copy(out, f.words)
	return out
}

// LoadFile replaces the extra words with the contents of path. On error the
// current list is kept.
func (f *Filter) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("moderation: open word list: %w", err)
	}
	defer file.Close()

	extra, err := ParseWordList(file)
	if err != nil {
		return fmt.Errorf("moderation: read word list: %w", err)
	}
	f.set(extra)
	return nil
}

// ParseWordList reads one word per line. Blank lines and lines starting
// with '#' are skipped.
func ParseWordList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func (f *Filter) set(extra []string) {
	seen := make(map[string]struct{}, len(defaultWords)+len(extra))
	words := make([]string, 0, len(defaultWords)+len(extra))
	for _, w := range append(append([]string{}, defaultWords...), extra...) {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	sort.Strings(words)

	// Longest first so alternation prefers "fucking" over "fuck".
	alts := make([]string, len(words))
	copy(alts, words)
	sort.SliceStable(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })
	for i, w := range alts {
		alts[i] = regexp.QuoteMeta(w)
	}

	var re *regexp.Regexp
	if len(alts) > 0 {
		re = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
	}

	f.mu.Lock()
	f.words = words
	f.pattern = re
	f.mu.Unlock()
}
