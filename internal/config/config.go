package config

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // schedule.timezone must resolve on minimal images

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	SERP          SERPConfig          `yaml:"serp"`
	LinkCheck     LinkCheckConfig     `yaml:"link_check"`
	Publish       PublishConfig       `yaml:"publish"`
	Stats         StatsConfig         `yaml:"stats"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`

	trustedNets []net.IPNet
	location    *time.Location
}

type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxBodySize     int64         `yaml:"max_body_size"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	TrustedProxies  []string      `yaml:"trusted_proxies"`
}

type DatabaseConfig struct {
	Path            string        `yaml:"path"`
	MaxReadConns    int           `yaml:"max_read_conns"`
	RetentionDays   int           `yaml:"retention_days"`
	RetentionPeriod time.Duration `yaml:"retention_period"`
}

type AuthConfig struct {
	APIKeys []APIKeyConfig `yaml:"api_keys"`
	// CronSecretHash is the sha256 hex digest of the bearer token the
	// external scheduler presents on the cron trigger endpoints.
	CronSecretHash string `yaml:"cron_secret_hash"`
}

type APIKeyConfig struct {
	Name        string   `yaml:"name"`
	Hash        string   `yaml:"hash"`
	Role        string   `yaml:"role,omitempty"`
	SuperAdmin  bool     `yaml:"super_admin,omitempty"`
	Permissions []string `yaml:"permissions,omitempty"`
}

var AllPermissions = []string{
	"keywords.read", "keywords.write",
	"pages.read", "pages.write",
	"alerts.read", "alerts.write",
	"jobs.run",
}

func (k *APIKeyConfig) HasPermission(perm string) bool {
	if k.SuperAdmin {
		return true
	}
	for _, p := range k.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type SERPConfig struct {
	APIKey       string        `yaml:"api_key"`
	Endpoint     string        `yaml:"endpoint"`
	Engine       string        `yaml:"engine"`
	Region       string        `yaml:"region"`
	Language     string        `yaml:"language"`
	Num          int           `yaml:"num"`
	RequestDelay time.Duration `yaml:"request_delay"`
	Timeout      time.Duration `yaml:"timeout"`
}

type LinkCheckConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	UserAgent           string        `yaml:"user_agent"`
	AllowPrivateTargets bool          `yaml:"allow_private_targets"`
}

type PublishConfig struct {
	DripRate             int    `yaml:"drip_rate"`
	SitemapRevalidateURL string `yaml:"sitemap_revalidate_url"`
}

type StatsConfig struct {
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	RedisAddress  string        `yaml:"redis_address"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

type AlertsConfig struct {
	RankingDropThreshold int `yaml:"ranking_drop_threshold"`
	BrokenLinkCritical   int `yaml:"broken_link_critical"`
}

type ScheduleConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Timezone   string `yaml:"timezone"`
	RankCheck  string `yaml:"rank_check"`
	Publish    string `yaml:"publish"`
	LinkHealth string `yaml:"link_health"`
}

type NotificationsConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Slack    []SlackConfig   `yaml:"slack"`
}

type WebhookConfig struct {
	Name       string   `yaml:"name"`
	URL        string   `yaml:"url"`
	Secret     string   `yaml:"secret"`
	Severities []string `yaml:"severities"`
}

type SlackConfig struct {
	Name       string   `yaml:"name"`
	WebhookURL string   `yaml:"webhook_url"`
	Severities []string `yaml:"severities"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          "127.0.0.1:8091",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    15 * time.Minute, // rank checks run inside the trigger request
			IdleTimeout:     120 * time.Second,
			MaxBodySize:     1 << 20, // 1MB
			RateLimitPerSec: 30,
			RateLimitBurst:  60,
		},
		Database: DatabaseConfig{
			Path:            "rankwatch.db",
			MaxReadConns:    4,
			RetentionDays:   90,
			RetentionPeriod: 6 * time.Hour,
		},
		SERP: SERPConfig{
			Endpoint:     "https://serpapi.com/search.json",
			Engine:       "google",
			Region:       "au",
			Language:     "en",
			Num:          100,
			RequestDelay: 1500 * time.Millisecond,
			Timeout:      30 * time.Second,
		},
		LinkCheck: LinkCheckConfig{
			Timeout:   10 * time.Second,
			UserAgent: "rankwatch-linkcheck/1.0",
		},
		Publish: PublishConfig{
			DripRate: 5,
		},
		Stats: StatsConfig{
			CacheTTL: 5 * time.Minute,
		},
		Alerts: AlertsConfig{
			RankingDropThreshold: 10,
			BrokenLinkCritical:   10,
		},
		Schedule: ScheduleConfig{
			Timezone:   "Australia/Sydney",
			RankCheck:  "0 6 * * *",
			Publish:    "*/15 * * * *",
			LinkHealth: "30 3 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	nets, err := parseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted_proxies: %w", err)
	}
	cfg.trustedNets = nets

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := validateNotifications(c.Notifications); err != nil {
		return err
	}
	if err := validateAPIKeys(c.Auth.APIKeys); err != nil {
		return err
	}
	return validateLogLevel(c.Logging.Level)
}

func (c *Config) validateServer() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Server.MaxBodySize <= 0 {
		return fmt.Errorf("server.max_body_size must be positive")
	}
	if c.Server.RateLimitPerSec <= 0 {
		return fmt.Errorf("server.rate_limit_per_sec must be positive")
	}
	if c.Server.RateLimitBurst <= 0 {
		return fmt.Errorf("server.rate_limit_burst must be positive")
	}
	if h := c.Auth.CronSecretHash; h != "" && len(h) != sha256.Size*2 {
		return fmt.Errorf("auth.cron_secret_hash must be a sha256 hex digest (use the hash-secret command)")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.MaxReadConns <= 0 {
		return fmt.Errorf("database.max_read_conns must be positive")
	}
	if c.Database.RetentionDays <= 0 {
		return fmt.Errorf("database.retention_days must be positive")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.SERP.Endpoint == "" {
		return fmt.Errorf("serp.endpoint is required")
	}
	if u, err := url.Parse(c.SERP.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("serp.endpoint must be an absolute URL")
	}
	if c.SERP.Num <= 0 || c.SERP.Num > 100 {
		return fmt.Errorf("serp.num must be between 1 and 100")
	}
	if c.SERP.RequestDelay < 0 {
		return fmt.Errorf("serp.request_delay must not be negative")
	}
	if c.SERP.Timeout <= 0 {
		return fmt.Errorf("serp.timeout must be positive")
	}
	if c.LinkCheck.Timeout <= 0 {
		return fmt.Errorf("link_check.timeout must be positive")
	}
	if c.Publish.DripRate <= 0 {
		return fmt.Errorf("publish.drip_rate must be positive")
	}
	if c.Stats.CacheTTL <= 0 {
		return fmt.Errorf("stats.cache_ttl must be positive")
	}
	if c.Alerts.RankingDropThreshold <= 0 {
		return fmt.Errorf("alerts.ranking_drop_threshold must be positive")
	}
	if c.Alerts.BrokenLinkCritical <= 0 {
		return fmt.Errorf("alerts.broken_link_critical must be positive")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	c.location = loc

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"rank_check":  c.Schedule.RankCheck,
		"publish":     c.Schedule.Publish,
		"link_health": c.Schedule.LinkHealth,
	} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("schedule.%s: %w", name, err)
		}
	}
	return nil
}

func validateNotifications(n NotificationsConfig) error {
	for i, w := range n.Webhooks {
		if u, err := url.Parse(w.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("notifications.webhooks[%d].url must be an absolute URL", i)
		}
		if err := validateSeverities(w.Severities); err != nil {
			return fmt.Errorf("notifications.webhooks[%d]: %w", i, err)
		}
	}
	for i, s := range n.Slack {
		if !strings.HasPrefix(s.WebhookURL, "https://") {
			return fmt.Errorf("notifications.slack[%d].webhook_url must be an https URL", i)
		}
		if err := validateSeverities(s.Severities); err != nil {
			return fmt.Errorf("notifications.slack[%d]: %w", i, err)
		}
	}
	return nil
}

func validateSeverities(severities []string) error {
	for _, s := range severities {
		switch s {
		case "info", "warning", "critical":
		default:
			return fmt.Errorf("invalid severity: %s", s)
		}
	}
	return nil
}

func validateAPIKeys(keys []APIKeyConfig) error {
	validPerms := make(map[string]bool)
	for _, p := range AllPermissions {
		validPerms[p] = true
	}

	for i := range keys {
		key := &keys[i]
		if key.Name == "" {
			return fmt.Errorf("auth.api_keys[%d].name is required", i)
		}
		if key.Hash == "" {
			return fmt.Errorf("auth.api_keys[%d].hash is required", i)
		}
		if key.Role == "admin" {
			key.SuperAdmin = true
			key.Role = ""
		} else if key.Role == "readonly" {
			key.Permissions = []string{"keywords.read", "pages.read", "alerts.read"}
			key.Role = ""
		}
		if !key.SuperAdmin && len(key.Permissions) == 0 {
			return fmt.Errorf("auth.api_keys[%d] must have super_admin or permissions", i)
		}
		for _, p := range key.Permissions {
			if !validPerms[p] {
				return fmt.Errorf("auth.api_keys[%d] invalid permission: %s", i, p)
			}
		}
	}
	return nil
}

func validateLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
}

// HashSecret returns the sha256 hex digest stored in config for API keys and
// the cron secret.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// LookupAPIKey checks if the given key matches any configured API key
// and returns the key config if found.
func (c *Config) LookupAPIKey(key string) (*APIKeyConfig, bool) {
	hash := HashSecret(key)
	for i := range c.Auth.APIKeys {
		if subtle.ConstantTimeCompare([]byte(c.Auth.APIKeys[i].Hash), []byte(hash)) == 1 {
			return &c.Auth.APIKeys[i], true
		}
	}
	return nil, false
}

// CronSecretConfigured reports whether a cron bearer secret is set.
func (c *Config) CronSecretConfigured() bool {
	return c.Auth.CronSecretHash != ""
}

// MatchCronSecret compares token against the configured cron secret in
// constant time. It is always false when no secret is configured.
func (c *Config) MatchCronSecret(token string) bool {
	if c.Auth.CronSecretHash == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Auth.CronSecretHash), []byte(HashSecret(token))) == 1
}

// Location is the time zone that defines a ranking "day".
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) IsTrustedProxy(ip net.IP) bool {
	for i := range c.trustedNets {
		if c.trustedNets[i].Contains(ip) {
			return true
		}
	}
	return false
}

func (c *Config) TrustedNets() []net.IPNet {
	return c.trustedNets
}

func parseTrustedProxies(proxies []string) ([]net.IPNet, error) {
	var nets []net.IPNet
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("invalid IP: %s", p)
			}
			if ip.To4() != nil {
				p += "/32"
			} else {
				p += "/128"
			}
		}
		_, ipNet, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR: %s", p)
		}
		nets = append(nets, *ipNet)
	}
	return nets, nil
}
