// Package sanitize strips markup from user supplied display text.
package sanitize

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// skipped elements whose text content is never user visible
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"iframe":   true,
	"noscript": true,
	"template": true,
}

// Text returns the visible text of s with every tag removed, entities
// decoded and whitespace collapsed.
func Text(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var (
		b     strings.Builder
		depth int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return strings.Join(strings.Fields(b.String()), " ")
			}
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			if skipped[string(name)] {
				depth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skipped[string(name)] && depth > 0 {
				depth--
			}
		case html.TextToken:
			if depth == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}
