package extract

import (
	"errors"
	stdhtml "html"
	"io"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleBlock  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)

	strictPolicy = bluemonday.StrictPolicy()
)

// maxTokenBytes caps how much the tokenizer buffers for a single token.
// Documents with a larger token are stripped by the sanitizer instead.
const maxTokenBytes = 1 << 20

// Text from adjacent block elements is separated by a space so words do not run together.
var blockTags = map[string]struct{}{
	"address": {}, "article": {}, "blockquote": {}, "br": {}, "div": {}, "footer": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {}, "header": {}, "hr": {},
	"li": {}, "ol": {}, "p": {}, "section": {}, "table": {}, "td": {}, "th": {}, "tr": {}, "ul": {},
}

// HTMLToText strips markup from an HTML document. Script and style contents,
// tags, attributes and images are dropped; entities are resolved and
// whitespace is collapsed to single spaces.
func HTMLToText(content string) string {
	if content == "" {
		return ""
	}

	cleaned := scriptBlock.ReplaceAllString(content, " ")
	cleaned = styleBlock.ReplaceAllString(cleaned, " ")

	text, err := tokenizeText(stdhtml.UnescapeString(cleaned))
	if err != nil {
		text = stdhtml.UnescapeString(strictPolicy.Sanitize(cleaned))
	}
	return collapseWhitespace(text)
}

func tokenizeText(markup string) (string, error) {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(markup))
	z.SetMaxBuf(maxTokenBytes)
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return b.String(), nil
			}
			return "", z.Err()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skip++
			}
			if _, ok := blockTags[tag]; ok {
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			if _, ok := blockTags[tag]; ok {
				b.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if _, ok := blockTags[string(name)]; ok {
				b.WriteByte(' ')
			}
		}
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
