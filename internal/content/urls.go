package content

import (
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

const trailingPunct = `)],."'`

// ExtractURLs returns every http(s) URL found in the string leaves of v,
// deduplicated in first-seen order.
func ExtractURLs(v Value) []string {
	seen := make(map[string]bool)
	var urls []string
	Walk(v, func(n Value) bool {
		if n.Kind != String {
			return true
		}
		for _, m := range urlPattern.FindAllString(n.Str, -1) {
			u := trimURL(m)
			if len(u) <= strings.Index(u, "://")+len("://") || seen[u] {
				continue
			}
			seen[u] = true
			urls = append(urls, u)
		}
		return true
	})
	return urls
}

// trimURL drops sentence punctuation after a URL. A closing bracket is kept
// while it balances an opener inside the URL, as in wiki-style paths.
func trimURL(u string) string {
	for u != "" {
		last := u[len(u)-1]
		if !strings.ContainsRune(trailingPunct, rune(last)) {
			break
		}
		switch last {
		case ')':
			if strings.Count(u, "(") >= strings.Count(u, ")") {
				return u
			}
		case ']':
			if strings.Count(u, "[") >= strings.Count(u, "]") {
				return u
			}
		}
		u = u[:len(u)-1]
	}
	return u
}

// ExtractURLsJSON parses a raw document and extracts its URLs.
func ExtractURLsJSON(data []byte) ([]string, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return ExtractURLs(v), nil
}
