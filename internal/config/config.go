package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/elitecode/scraper/internal/version"
)

const (
	EnvPrefix       = "SCRAPER"
	DefaultFileName = ".scraper.yaml"

	DefaultURL        = "https://leetcode.com/api/submissions/?offset=0&limit=20&lastkey="
	DefaultOutputPath = "leetcode_submissions.json"

	// headerEnvPrefix selects extra request headers from the environment:
	// SCRAPER_HEADER_USER_AGENT=... becomes "user-agent: ...".
	headerEnvPrefix = EnvPrefix + "_HEADER_"
)

type Config struct {
	URL               string            `mapstructure:"url" yaml:"url"`
	Output            string            `mapstructure:"output" yaml:"output"`
	Cookie            string            `mapstructure:"cookie" yaml:"cookie,omitempty"`
	Headers           map[string]string `mapstructure:"headers" yaml:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	MaxRequests       int64             `mapstructure:"max_requests" yaml:"max_requests"`
	MaxRedirects      int               `mapstructure:"max_redirects" yaml:"max_redirects"`
	MaxBodyBytes      int64             `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	RestrictDomain    bool              `mapstructure:"restrict_domain" yaml:"restrict_domain"`
	FailOnError       bool              `mapstructure:"fail_on_error" yaml:"fail_on_error"`
	Debug             bool              `mapstructure:"debug" yaml:"debug"`
	RedactionPatterns []string          `mapstructure:"redaction_patterns" yaml:"redaction_patterns,omitempty"`
}

// Default returns the configuration used when no file or environment
// overrides are present. It deliberately carries no credentials.
func Default() *Config {
	return &Config{
		URL:    DefaultURL,
		Output: DefaultOutputPath,
		Headers: map[string]string{
			"accept":           "*/*",
			"accept-encoding":  "gzip, deflate, br, zstd",
			"accept-language":  "en-US,en;q=0.9",
			"x-requested-with": "XMLHttpRequest",
		},
		Timeout:        0, // net/http default: no timeout
		MaxRequests:    2, // initial + fallback
		MaxRedirects:   10,
		MaxBodyBytes:   32 << 20,
		RestrictDomain: true,
		FailOnError:    false,
	}
}

// Load layers defaults, an optional YAML file and SCRAPER_* environment
// variables. An empty path searches DefaultFileName in the working directory
// and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	def := Default()
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("url", def.URL)
	v.SetDefault("output", def.Output)
	v.SetDefault("cookie", "")
	// A map[string]interface{} default lets viper merge individual header
	// keys from the file instead of replacing the whole mapping.
	headers := make(map[string]interface{}, len(def.Headers))
	for k, val := range def.Headers {
		headers[k] = val
	}
	v.SetDefault("headers", headers)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("max_requests", def.MaxRequests)
	v.SetDefault("max_redirects", def.MaxRedirects)
	v.SetDefault("max_body_bytes", def.MaxBodyBytes)
	v.SetDefault("restrict_domain", def.RestrictDomain)
	v.SetDefault("fail_on_error", def.FailOnError)
	v.SetDefault("debug", false)
	v.SetDefault("redaction_patterns", []string{})

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, filepath.Ext(DefaultFileName)))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	for name, value := range headersFromEnv(os.Environ()) {
		cfg.Headers[name] = value
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func headersFromEnv(environ []string) map[string]string {
	out := map[string]string{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, headerEnvPrefix) {
			continue
		}
		name := strings.TrimPrefix(key, headerEnvPrefix)
		if name == "" {
			continue
		}
		out[strings.ToLower(strings.ReplaceAll(name, "_", "-"))] = value
	}
	return out
}

func (c *Config) Validate() error {
	target := strings.TrimSpace(c.URL)
	if target == "" {
		return fmt.Errorf("url is empty")
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("invalid url: missing host")
	}
	if strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("output path is empty")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max_redirects must not be negative, got %d", c.MaxRedirects)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

// RequestHeaders is the header mapping sent with the initial request. Empty
// values drop a header, cookie overrides any cookie header and a missing
// user-agent falls back to the program's own.
func (c *Config) RequestHeaders() map[string]string {
	out := make(map[string]string, len(c.Headers)+2)
	for k, v := range c.Headers {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	if c.Cookie != "" {
		out["cookie"] = c.Cookie
	}
	if _, ok := out["user-agent"]; !ok {
		out["user-agent"] = version.UserAgent()
	}
	return out
}

// HasCookie reports whether any session cookie will be sent.
func (c *Config) HasCookie() bool {
	return c.RequestHeaders()["cookie"] != ""
}

// Save writes cfg as YAML, refusing to overwrite an existing file unless
// force is set. The cookie is never written.
func Save(cfg *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	out := *cfg
	out.Cookie = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
