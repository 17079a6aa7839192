package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration. Loaded once at startup from a
// YAML file and overridden by environment variables; business logic receives
// the relevant sub-structs at construction time and never reads env directly.
type Config struct {
	App struct {
		// dev | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		// postgres | memory
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Auth struct {
		// JWTSecret signs session tokens and OAuth state tokens (HS256).
		JWTSecret string        `yaml:"jwt_secret"`
		Issuer    string        `yaml:"issuer"`
		AccessTTL time.Duration `yaml:"access_ttl"`
	} `yaml:"auth"`

	Security struct {
		// MasterKey is base64(32 bytes); encrypts stored OAuth tokens.
		MasterKey string `yaml:"master_key"`
	} `yaml:"security"`

	Providers struct {
		// PopupOrigin is the single origin the callback page may postMessage to.
		PopupOrigin string        `yaml:"popup_origin"`
		StateTTL    time.Duration `yaml:"state_ttl"`

		Gmail struct {
			Enabled      bool     `yaml:"enabled"`
			ClientID     string   `yaml:"client_id"`
			ClientSecret string   `yaml:"client_secret"`
			RedirectURL  string   `yaml:"redirect_url"`
			Scopes       []string `yaml:"scopes"`
			// AuthURL/TokenURL override the Google endpoints (tests only).
			AuthURL  string `yaml:"auth_url"`
			TokenURL string `yaml:"token_url"`
		} `yaml:"gmail"`
	} `yaml:"providers"`

	Guard struct {
		// RefreshSkew is the lead time before expiry at which tokens are
		// refreshed proactively.
		RefreshSkew     time.Duration `yaml:"refresh_skew"`
		ProviderTimeout time.Duration `yaml:"provider_timeout"`
	} `yaml:"guard"`

	Sweep struct {
		Enabled   bool          `yaml:"enabled"`
		Interval  time.Duration `yaml:"interval"`
		Lookahead time.Duration `yaml:"lookahead"`
	} `yaml:"sweep"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"` // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	} `yaml:"smtp"`
}

// Load reads the YAML file at path (optional: empty path skips the file),
// applies env overrides and defaults, and validates.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "10m"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "mailgrant"
	}
	if c.Auth.AccessTTL == 0 {
		c.Auth.AccessTTL = 12 * time.Hour
	}
	if c.Providers.StateTTL == 0 {
		c.Providers.StateTTL = 10 * time.Minute
	}
	if len(c.Providers.Gmail.Scopes) == 0 {
		c.Providers.Gmail.Scopes = []string{
			"openid",
			"email",
			"https://www.googleapis.com/auth/gmail.readonly",
		}
	}
	if c.Guard.RefreshSkew == 0 {
		c.Guard.RefreshSkew = 5 * time.Minute
	}
	if c.Guard.ProviderTimeout == 0 {
		c.Guard.ProviderTimeout = 10 * time.Second
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = 5 * time.Minute
	}
	if c.Sweep.Lookahead == 0 {
		c.Sweep.Lookahead = 15 * time.Minute
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
}

// Validate checks the startup-required surface. A missing value here is a
// fatal configuration error, never a runtime one.
func (c *Config) Validate() error {
	var missing []string

	if c.Auth.JWTSecret == "" {
		missing = append(missing, "auth.jwt_secret")
	}
	if c.Security.MasterKey == "" {
		missing = append(missing, "security.master_key")
	} else if k, err := base64.StdEncoding.DecodeString(c.Security.MasterKey); err != nil || len(k) != 32 {
		return fmt.Errorf("config: security.master_key must be base64 of 32 bytes (generate with: mailgrant-keygen)")
	}
	if c.Providers.Gmail.Enabled {
		if c.Providers.Gmail.ClientID == "" {
			missing = append(missing, "providers.gmail.client_id")
		}
		if c.Providers.Gmail.ClientSecret == "" {
			missing = append(missing, "providers.gmail.client_secret")
		}
		if c.Providers.Gmail.RedirectURL == "" {
			missing = append(missing, "providers.gmail.redirect_url")
		}
		if c.Providers.PopupOrigin == "" {
			missing = append(missing, "providers.popup_origin")
		}
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		missing = append(missing, "storage.dsn")
	}

	if len(missing) > 0 {
		return fmt.Errorf("config: missing required values: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ---- Env helpers ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides lets environment variables win over the YAML file.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = strings.ToLower(v)
	}

	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("STORAGE_PG_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = v
	}

	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("CACHE_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("CACHE_REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("CACHE_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("CACHE_REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	if v, ok := getEnvStr("AUTH_JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := getEnvStr("AUTH_ISSUER"); ok {
		c.Auth.Issuer = v
	}
	if v, ok := getEnvDur("AUTH_ACCESS_TTL"); ok {
		c.Auth.AccessTTL = v
	}

	if v, ok := getEnvStr("TOKEN_MASTER_KEY"); ok {
		c.Security.MasterKey = v
	}

	if v, ok := getEnvStr("POPUP_ORIGIN"); ok {
		c.Providers.PopupOrigin = v
	}
	if v, ok := getEnvDur("STATE_TTL"); ok {
		c.Providers.StateTTL = v
	}
	if v, ok := getEnvBool("GMAIL_ENABLED"); ok {
		c.Providers.Gmail.Enabled = v
	}
	if v, ok := getEnvStr("GMAIL_CLIENT_ID"); ok {
		c.Providers.Gmail.ClientID = v
	}
	if v, ok := getEnvStr("GMAIL_CLIENT_SECRET"); ok {
		c.Providers.Gmail.ClientSecret = v
	}
	if v, ok := getEnvStr("GMAIL_REDIRECT_URL"); ok {
		c.Providers.Gmail.RedirectURL = v
	}
	if v, ok := getEnvCSV("GMAIL_SCOPES"); ok {
		c.Providers.Gmail.Scopes = v
	}

	if v, ok := getEnvDur("GUARD_REFRESH_SKEW"); ok {
		c.Guard.RefreshSkew = v
	}
	if v, ok := getEnvDur("GUARD_PROVIDER_TIMEOUT"); ok {
		c.Guard.ProviderTimeout = v
	}

	if v, ok := getEnvBool("SWEEP_ENABLED"); ok {
		c.Sweep.Enabled = v
	}
	if v, ok := getEnvDur("SWEEP_INTERVAL"); ok {
		c.Sweep.Interval = v
	}
	if v, ok := getEnvDur("SWEEP_LOOKAHEAD"); ok {
		c.Sweep.Lookahead = v
	}

	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = v
	}
}
