package validate

import (
	"strings"
	"testing"

	"github.com/y0f/rankwatch/internal/storage"
)

func TestNormalizeKeyword(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Best Plumber Sydney ", "best plumber sydney"},
		{"emergency\t\tplumber", "emergency plumber"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeKeyword(tt.in); got != tt.want {
			t.Errorf("NormalizeKeyword(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr string
	}{
		{"plain", "example.com", "example.com", ""},
		{"upper and spaces", "  Example.COM ", "example.com", ""},
		{"subdomain", "blog.example.com.au", "blog.example.com.au", ""},
		{"idn", "bücher.de", "xn--bcher-kva.de", ""},
		{"empty", "", "", "domain is required"},
		{"scheme", "https://example.com", "", "must not include a scheme"},
		{"path", "example.com/page", "", "bare host"},
		{"port", "example.com:8080", "", "bare host"},
		{"no dot", "localhost", "", "must contain a dot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDomain(tt.in)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateSite(t *testing.T) {
	s := &storage.Site{Domain: "Example.com"}
	if err := ValidateSite(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Domain != "example.com" || s.Name != "example.com" {
		t.Errorf("site = %+v", s)
	}

	s = &storage.Site{Domain: "example.com", Name: strings.Repeat("n", 256)}
	if err := ValidateSite(s); err == nil {
		t.Error("expected name length error")
	}
}

func TestValidateKeyword(t *testing.T) {
	k := &storage.Keyword{SiteID: 1, Keyword: " Best  Widgets "}
	if err := ValidateKeyword(k); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Keyword != "best widgets" {
		t.Errorf("keyword = %q", k.Keyword)
	}

	if err := ValidateKeyword(&storage.Keyword{SiteID: 1, Keyword: "  "}); err == nil {
		t.Error("expected error for blank keyword")
	}
	if err := ValidateKeyword(&storage.Keyword{Keyword: "x"}); err == nil {
		t.Error("expected error for missing site")
	}
}

func TestValidateSlug(t *testing.T) {
	valid := []string{"a", "plumbers", "plumbers/sydney-cbd", "2026-guide"}
	for _, s := range valid {
		if err := ValidateSlug(s); err != nil {
			t.Errorf("ValidateSlug(%q) = %v", s, err)
		}
	}
	invalid := []string{"", "Upper", "trailing-", "-leading", "double//slash", "with space", strings.Repeat("a", 201)}
	for _, s := range invalid {
		if err := ValidateSlug(s); err == nil {
			t.Errorf("ValidateSlug(%q) should fail", s)
		}
	}
}

func TestValidatePage(t *testing.T) {
	tests := []struct {
		name    string
		page    storage.Page
		wantErr string
	}{
		{"valid", storage.Page{Slug: "a-b", Title: "T", RoutePattern: "/[slug]", Content: []byte(`{"x":1}`)}, ""},
		{"empty content defaults", storage.Page{Slug: "a", Title: "T", RoutePattern: "/[slug]"}, ""},
		{"bad slug", storage.Page{Slug: "A B", Title: "T", RoutePattern: "/"}, "slug must"},
		{"no title", storage.Page{Slug: "a", Title: "<b></b>", RoutePattern: "/"}, "title is required"},
		{"no route", storage.Page{Slug: "a", Title: "T"}, "route_pattern is required"},
		{"bad json", storage.Page{Slug: "a", Title: "T", RoutePattern: "/", Content: []byte(`{`)}, "valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.page
			err := ValidatePage(&p)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Plain title", "Plain title"},
		{"<b>Bold</b> &amp; <i>italic</i>", "Bold & italic"},
		{"Hi<script>alert(1)</script> there", "Hi there"},
		{"  spaced  ", "spaced"},
	}
	for _, tt := range tests {
		if got := PlainText(tt.in); got != tt.want {
			t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
