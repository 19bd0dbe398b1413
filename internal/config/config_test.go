package config

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Listen != "127.0.0.1:8091" {
		t.Fatalf("expected listen 127.0.0.1:8091, got %s", cfg.Server.Listen)
	}
	if cfg.SERP.RequestDelay != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s request delay, got %s", cfg.SERP.RequestDelay)
	}
	if cfg.SERP.Num != 100 || cfg.SERP.Region != "au" || cfg.SERP.Language != "en" {
		t.Fatalf("unexpected serp defaults: %+v", cfg.SERP)
	}
	if cfg.LinkCheck.Timeout != 10*time.Second {
		t.Fatalf("expected 10s link timeout, got %s", cfg.LinkCheck.Timeout)
	}
	if cfg.Publish.DripRate != 5 {
		t.Fatalf("expected drip rate 5, got %d", cfg.Publish.DripRate)
	}
	if cfg.Stats.CacheTTL != 5*time.Minute {
		t.Fatalf("expected 5m cache ttl, got %s", cfg.Stats.CacheTTL)
	}
	if cfg.Alerts.BrokenLinkCritical != 10 {
		t.Fatalf("expected broken link critical 10, got %d", cfg.Alerts.BrokenLinkCritical)
	}
	if cfg.Database.RetentionDays != 90 {
		t.Fatalf("expected 90 retention days, got %d", cfg.Database.RetentionDays)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected info log level, got %s", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return Defaults()
	}

	t.Run("valid defaults", func(t *testing.T) {
		c := valid()
		if err := c.Validate(); err != nil {
			t.Fatal(err)
		}
		if c.Location().String() != "Australia/Sydney" {
			t.Fatalf("expected Australia/Sydney, got %s", c.Location())
		}
	})

	tests := []struct {
		name   string
		modify func(*Config)
		errSub string
	}{
		{
			name:   "empty listen",
			modify: func(c *Config) { c.Server.Listen = "" },
			errSub: "server.listen",
		},
		{
			name:   "zero max body size",
			modify: func(c *Config) { c.Server.MaxBodySize = 0 },
			errSub: "max_body_size",
		},
		{
			name:   "negative rate limit",
			modify: func(c *Config) { c.Server.RateLimitPerSec = -1 },
			errSub: "rate_limit_per_sec",
		},
		{
			name:   "plaintext cron secret",
			modify: func(c *Config) { c.Auth.CronSecretHash = "hunter2" },
			errSub: "cron_secret_hash",
		},
		{
			name:   "empty database path",
			modify: func(c *Config) { c.Database.Path = "" },
			errSub: "database.path",
		},
		{
			name:   "zero retention days",
			modify: func(c *Config) { c.Database.RetentionDays = 0 },
			errSub: "retention_days",
		},
		{
			name:   "relative serp endpoint",
			modify: func(c *Config) { c.SERP.Endpoint = "/search.json" },
			errSub: "serp.endpoint",
		},
		{
			name:   "serp num too large",
			modify: func(c *Config) { c.SERP.Num = 101 },
			errSub: "serp.num",
		},
		{
			name:   "negative request delay",
			modify: func(c *Config) { c.SERP.RequestDelay = -time.Second },
			errSub: "request_delay",
		},
		{
			name:   "zero link timeout",
			modify: func(c *Config) { c.LinkCheck.Timeout = 0 },
			errSub: "link_check.timeout",
		},
		{
			name:   "zero drip rate",
			modify: func(c *Config) { c.Publish.DripRate = 0 },
			errSub: "drip_rate",
		},
		{
			name:   "zero drop threshold",
			modify: func(c *Config) { c.Alerts.RankingDropThreshold = 0 },
			errSub: "ranking_drop_threshold",
		},
		{
			name:   "unknown timezone",
			modify: func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" },
			errSub: "schedule.timezone",
		},
		{
			name:   "bad cron expression",
			modify: func(c *Config) { c.Schedule.Publish = "every minute" },
			errSub: "schedule.publish",
		},
		{
			name: "webhook without url",
			modify: func(c *Config) {
				c.Notifications.Webhooks = []WebhookConfig{{Name: "ops"}}
			},
			errSub: "webhooks[0].url",
		},
		{
			name: "slack over http",
			modify: func(c *Config) {
				c.Notifications.Slack = []SlackConfig{{Name: "seo", WebhookURL: "http://hooks.slack.com/x"}}
			},
			errSub: "slack[0].webhook_url",
		},
		{
			name: "unknown severity",
			modify: func(c *Config) {
				c.Notifications.Webhooks = []WebhookConfig{{URL: "https://example.com/hook", Severities: []string{"fatal"}}}
			},
			errSub: "invalid severity",
		},
		{
			name:   "invalid log level",
			modify: func(c *Config) { c.Logging.Level = "trace" },
			errSub: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errSub) {
				t.Fatalf("expected error containing %q, got %q", tt.errSub, err.Error())
			}
		})
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("RANKWATCH_TEST_SERP_KEY", "serp-secret")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
serp:
  api_key: ${RANKWATCH_TEST_SERP_KEY}
  request_delay: 2s
schedule:
  timezone: UTC
server:
  trusted_proxies: ["10.0.0.1"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SERP.APIKey != "serp-secret" {
		t.Fatalf("expected expanded api key, got %q", cfg.SERP.APIKey)
	}
	if cfg.SERP.RequestDelay != 2*time.Second {
		t.Fatalf("expected 2s, got %s", cfg.SERP.RequestDelay)
	}
	if cfg.SERP.Endpoint == "" {
		t.Fatal("expected default endpoint to survive partial config")
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC, got %s", cfg.Location())
	}
	if !cfg.IsTrustedProxy(net.ParseIP("10.0.0.1")) {
		t.Fatal("expected trusted proxy to be parsed")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateAPIKeys(t *testing.T) {
	t.Run("admin role sets super admin", func(t *testing.T) {
		keys := []APIKeyConfig{
			{Name: "admin", Hash: "abc123", Role: "admin"},
		}
		if err := validateAPIKeys(keys); err != nil {
			t.Fatal(err)
		}
		if !keys[0].SuperAdmin {
			t.Fatal("expected SuperAdmin to be set")
		}
		if keys[0].Role != "" {
			t.Fatalf("expected Role cleared, got %q", keys[0].Role)
		}
	})

	t.Run("readonly role sets read permissions", func(t *testing.T) {
		keys := []APIKeyConfig{
			{Name: "viewer", Hash: "abc123", Role: "readonly"},
		}
		if err := validateAPIKeys(keys); err != nil {
			t.Fatal(err)
		}
		if len(keys[0].Permissions) == 0 {
			t.Fatal("expected permissions to be set")
		}
		for _, p := range keys[0].Permissions {
			if !strings.HasSuffix(p, ".read") {
				t.Fatalf("expected read-only permission, got %q", p)
			}
		}
	})

	t.Run("missing hash", func(t *testing.T) {
		keys := []APIKeyConfig{
			{Name: "test", Hash: "", SuperAdmin: true},
		}
		err := validateAPIKeys(keys)
		if err == nil || !strings.Contains(err.Error(), "hash is required") {
			t.Fatalf("expected hash error, got %v", err)
		}
	})

	t.Run("invalid permission", func(t *testing.T) {
		keys := []APIKeyConfig{
			{Name: "test", Hash: "abc123", Permissions: []string{"monitors.read"}},
		}
		err := validateAPIKeys(keys)
		if err == nil || !strings.Contains(err.Error(), "invalid permission") {
			t.Fatalf("expected invalid permission error, got %v", err)
		}
	})

	t.Run("no perms and no super admin", func(t *testing.T) {
		keys := []APIKeyConfig{
			{Name: "test", Hash: "abc123"},
		}
		err := validateAPIKeys(keys)
		if err == nil || !strings.Contains(err.Error(), "must have super_admin or permissions") {
			t.Fatalf("expected error, got %v", err)
		}
	})
}

func TestHashSecret(t *testing.T) {
	h1 := HashSecret("test-key")
	if h1 != HashSecret("test-key") {
		t.Fatal("expected deterministic hash")
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}
	if h1 == HashSecret("different-key") {
		t.Fatal("different keys should produce different hashes")
	}
}

func TestLookupAPIKey(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.APIKeys = []APIKeyConfig{
		{Name: "admin", Hash: HashSecret("my-secret"), SuperAdmin: true},
	}

	found, ok := cfg.LookupAPIKey("my-secret")
	if !ok || found.Name != "admin" {
		t.Fatalf("expected admin key, got %+v", found)
	}
	if _, ok := cfg.LookupAPIKey("wrong-secret"); ok {
		t.Fatal("expected not found")
	}
}

func TestMatchCronSecret(t *testing.T) {
	cfg := Defaults()

	t.Run("unconfigured never matches", func(t *testing.T) {
		if cfg.CronSecretConfigured() {
			t.Fatal("expected unconfigured")
		}
		if cfg.MatchCronSecret("") || cfg.MatchCronSecret("anything") {
			t.Fatal("expected no match without a configured secret")
		}
	})

	cfg.Auth.CronSecretHash = HashSecret("cron-token")

	t.Run("matching token", func(t *testing.T) {
		if !cfg.MatchCronSecret("cron-token") {
			t.Fatal("expected match")
		}
	})

	t.Run("wrong or empty token", func(t *testing.T) {
		if cfg.MatchCronSecret("cron-token2") || cfg.MatchCronSecret("") {
			t.Fatal("expected mismatch")
		}
	})
}

func TestIsTrustedProxy(t *testing.T) {
	cfg := Defaults()
	nets, err := parseTrustedProxies([]string{"10.0.0.1", "192.168.1.0/24"})
	if err != nil {
		t.Fatal(err)
	}
	cfg.trustedNets = nets

	if !cfg.IsTrustedProxy(net.ParseIP("10.0.0.1")) {
		t.Fatal("expected single IP trusted")
	}
	if !cfg.IsTrustedProxy(net.ParseIP("192.168.1.50")) {
		t.Fatal("expected CIDR member trusted")
	}
	if cfg.IsTrustedProxy(net.ParseIP("172.16.0.1")) {
		t.Fatal("expected not trusted")
	}

	if _, err := parseTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected error for invalid entry")
	}
}
