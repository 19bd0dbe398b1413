package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/idna"

	"github.com/y0f/rankwatch/internal/storage"
)

// NormalizeKeyword trims and lower-cases a search phrase and collapses
// internal whitespace runs to a single space.
func NormalizeKeyword(kw string) string {
	return strings.Join(strings.Fields(strings.ToLower(kw)), " ")
}

// NormalizeDomain lower-cases and IDNA-encodes a bare host. Input carrying a
// scheme, path or port is rejected rather than trimmed.
func NormalizeDomain(domain string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		return "", fmt.Errorf("domain is required")
	}
	if strings.Contains(d, "://") {
		return "", fmt.Errorf("domain must not include a scheme")
	}
	if strings.ContainsAny(d, "/?#:@ ") {
		return "", fmt.Errorf("domain must be a bare host name")
	}
	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil {
		return "", fmt.Errorf("invalid domain: %w", err)
	}
	if len(ascii) > 253 {
		return "", fmt.Errorf("domain must be at most 253 characters")
	}
	if !strings.Contains(ascii, ".") {
		return "", fmt.Errorf("domain must contain a dot")
	}
	return ascii, nil
}

func ValidateSite(s *storage.Site) error {
	d, err := NormalizeDomain(s.Domain)
	if err != nil {
		return err
	}
	s.Domain = d
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		s.Name = d
	}
	if len(s.Name) > 255 {
		return fmt.Errorf("name must be at most 255 characters")
	}
	return nil
}

func ValidateKeyword(k *storage.Keyword) error {
	k.Keyword = NormalizeKeyword(k.Keyword)
	if k.Keyword == "" {
		return fmt.Errorf("keyword is required")
	}
	if len(k.Keyword) > 500 {
		return fmt.Errorf("keyword must be at most 500 characters")
	}
	if k.SiteID <= 0 {
		return fmt.Errorf("site_id is required")
	}
	return nil
}

var _slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:[-/][a-z0-9]+)*$`)

// ValidateSlug reports whether slug is a lower-case path of hyphenated
// segments, e.g. "plumbers/sydney-cbd".
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("slug is required")
	}
	if len(slug) > 200 {
		return fmt.Errorf("slug must be at most 200 characters")
	}
	if !_slugPattern.MatchString(slug) {
		return fmt.Errorf("slug must contain only lower-case letters, digits, hyphens and slashes")
	}
	return nil
}

func ValidatePage(p *storage.Page) error {
	p.Slug = strings.TrimSpace(p.Slug)
	if err := ValidateSlug(p.Slug); err != nil {
		return err
	}
	p.Title = PlainText(p.Title)
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(p.Title) > 500 {
		return fmt.Errorf("title must be at most 500 characters")
	}
	if strings.TrimSpace(p.RoutePattern) == "" {
		return fmt.Errorf("route_pattern is required")
	}
	if len(p.Content) == 0 {
		p.Content = json.RawMessage("{}")
	}
	if !json.Valid(p.Content) {
		return fmt.Errorf("content must be valid JSON")
	}
	return nil
}

// PlainText strips markup from s and returns the trimmed text content.
// Script and style bodies are dropped.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var buf strings.Builder
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(buf.String()), " ")
		case html.TextToken:
			if skipDepth == 0 {
				buf.WriteString(tokenizer.Token().Data)
			}
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skipDepth > 0 {
				skipDepth--
			}
		}
	}
}
