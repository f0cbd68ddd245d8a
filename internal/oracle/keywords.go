package oracle

import (
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// MaxKeywordLength is the longest keyword the preferences store accepts.
const MaxKeywordLength = 50

const (
	requestedKeywords = 18
	fallbackKeywords  = 15
)

// SanitizeKeywords keeps string entries only, trims them, truncates each to
// MaxKeywordLength runes and drops the ones left empty.
func SanitizeKeywords(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			continue
		}
		if k := truncateKeyword(s); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func truncateKeyword(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxKeywordLength {
		return s
	}
	r := []rune(s)
	return string(r[:MaxKeywordLength])
}

func keywordsFromRaw(raw []json.RawMessage) []string {
	items := make([]any, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			continue
		}
		items = append(items, s)
	}
	return SanitizeKeywords(items)
}

// keywordTable drives the offline fallback; order decides partial-match order.
var keywordTable = []struct {
	category string
	keywords []string
}{
	{"programming", []string{"programming tutorial", "coding basics", "software development", "learn to code"}},
	{"web development", []string{"web development", "HTML CSS", "JavaScript tutorial", "frontend development", "backend development"}},
	{"mobile development", []string{"mobile app development", "React Native", "Flutter tutorial", "iOS development", "Android development"}},
	{"data science", []string{"data science tutorial", "machine learning", "Python data analysis", "statistics tutorial"}},
	{"artificial intelligence", []string{"AI tutorial", "deep learning", "neural networks", "machine learning basics"}},
	{"cybersecurity", []string{"cybersecurity basics", "ethical hacking", "network security", "penetration testing"}},
	{"cloud computing", []string{"cloud computing", "AWS tutorial", "Azure basics", "DevOps"}},
	{"database", []string{"database design", "SQL tutorial", "MongoDB", "database management"}},
}

// FallbackKeywords derives keywords from category names without any network
// call: known categories map to curated lists, anything else is templated.
func FallbackKeywords(categories []string) []string {
	var out []string
	for _, c := range categories {
		lc := strings.ToLower(strings.TrimSpace(c))
		if lc == "" {
			continue
		}
		exact := false
		for _, e := range keywordTable {
			if e.category == lc {
				out = append(out, e.keywords...)
				exact = true
				break
			}
		}
		if exact {
			continue
		}
		for _, e := range keywordTable {
			if strings.Contains(lc, e.category) || strings.Contains(e.category, lc) {
				out = append(out, e.keywords...)
			}
		}
	}

	if len(out) == 0 {
		for _, c := range categories {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c+" tutorial", "learn "+c, c+" course")
			}
		}
	}

	seen := make(map[string]bool)
	result := make([]string, 0, fallbackKeywords)
	for _, k := range out {
		k = truncateKeyword(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		result = append(result, k)
		if len(result) == fallbackKeywords {
			break
		}
	}
	return result
}
