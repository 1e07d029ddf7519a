package narration

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Boilerplate patterns, applied in order; each one sees the output of the previous.
var boilerplate = []*regexp.Regexp{
	// "View web version:" banner and the URL that follows it
	regexp.MustCompile(`(?im)View\s+web\s+version:\s*https?://[^\n]*\n?`),
	// "Unfortunately, ... display HTML ... browser." up to the closing asterisk rule
	regexp.MustCompile(`(?im)Unfortunately,[^*]*?display HTML[^*]*?browser\.[^*]*\*+`),
	regexp.MustCompile(`(?im)^\s*\*+\s*$\n?`),
	regexp.MustCompile(`(?im)^\s*https?://\S+\s*$\n?`),
	regexp.MustCompile(`(?im)If you (?:are unable to|cannot|can't) (?:see|view|read)[^*\n]+\n`),
}

var (
	extraNewlines = regexp.MustCompile(`\n{3,}`)
	urlPattern    = regexp.MustCompile(`https?://(?:[a-zA-Z0-9]|[$-_@.&+]|[!*(),]|%[0-9a-fA-F]{2})+`)
)

// RemoveBoilerplate strips mailing-list banners, asterisk rules, URL-only
// lines and client capability notices, then collapses runs of blank lines.
func RemoveBoilerplate(text string) string {
	for _, re := range boilerplate {
		text = re.ReplaceAllString(text, "")
	}
	return extraNewlines.ReplaceAllString(text, "\n\n")
}

// ReplaceURLs swaps every http(s) URL for word.
func ReplaceURLs(text, word string) string {
	return urlPattern.ReplaceAllLiteralString(text, word)
}

// CleanBody runs boilerplate removal and URL replacement and trims the result.
func CleanBody(text, linkWord string) string {
	text = RemoveBoilerplate(text)
	text = ReplaceURLs(text, linkWord)
	return extraNewlines.ReplaceAllString(strings.TrimSpace(text), "\n\n")
}

// SplitSentences breaks text after '.', '!' or '?' when the punctuation is
// followed by whitespace and then an uppercase ASCII letter.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		j := i + 1
		for j < len(text) && isSpace(text[j]) {
			j++
		}
		if j == i+1 || j >= len(text) || text[j] < 'A' || text[j] > 'Z' {
			continue
		}
		out = append(out, text[start:i+1])
		start = j
		i = j - 1
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

// minSentenceLength is the shortest sentence considered worth narrating.
const minSentenceLength = 10

// KeySentences returns the sentences that survive the narration filter, trimmed.
func KeySentences(text string) []string {
	var kept []string
	for _, sentence := range SplitSentences(text) {
		s := strings.TrimSpace(sentence)
		if utf8.RuneCountInString(s) < minSentenceLength ||
			strings.HasPrefix(s, "http") ||
			strings.Contains(s, "*") ||
			strings.HasPrefix(s, "View") ||
			strings.HasPrefix(strings.ToLower(s), "this message") {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// joinSentences joins parts with ". ". A part's own trailing period is
// dropped first so the joint never doubles it; '!' and '?' are kept.
func joinSentences(parts []string) string {
	var b strings.Builder
	last := byte(0)
	for _, p := range parts {
		p = strings.TrimSuffix(strings.TrimSpace(p), ".")
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			if last == '!' || last == '?' {
				b.WriteString(" ")
			} else {
				b.WriteString(". ")
			}
		}
		b.WriteString(p)
		last = p[len(p)-1]
	}
	if b.Len() > 0 && last != '!' && last != '?' {
		b.WriteString(".")
	}
	return b.String()
}
