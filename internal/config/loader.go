package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultPollInterval        = 60 * time.Second
	DefaultFailureBackoff      = 60 * time.Second
	DefaultCooldown            = 300 * time.Second
	DefaultDashboardAlertLimit = 20
	DefaultSubjectPrefix       = "[K8s Alert]"
	DefaultSMTPPort            = 587
	DefaultAPIPort             = 8080
	DefaultRedisPrefix         = "kubesentry:"
)

// LoadConfig loads configuration from path. A missing file yields defaults;
// environment overrides are applied on top of either.
func LoadConfig(path string) (*Config, error) {
	cfg := newConfig()

	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("loading %s: %w", path, err)
			}
		}
	}

	applyDefaults(cfg)
	if err := applyEnvOverrides(cfg, os.Getenv); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadYAML loads a YAML file into a struct
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// newConfig returns a Config seeded with defaults for fields where zero is a
// meaningful setting. The file is decoded over it, so only absent keys keep them.
func newConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{Cooldown: DefaultCooldown},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Monitor.PollInterval == 0 {
		cfg.Monitor.PollInterval = DefaultPollInterval
	}
	if cfg.Monitor.FailureBackoff == 0 {
		cfg.Monitor.FailureBackoff = DefaultFailureBackoff
	}
	if cfg.Monitor.DashboardAlertLimit == 0 {
		cfg.Monitor.DashboardAlertLimit = DefaultDashboardAlertLimit
	}
	if cfg.Kubernetes.Mode == "" {
		cfg.Kubernetes.Mode = "auto"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.Redis.Prefix == "" {
		cfg.Store.Redis.Prefix = DefaultRedisPrefix
	}
	if cfg.Notifications.SubjectPrefix == "" {
		cfg.Notifications.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Notifications.SMTP.Port == 0 {
		cfg.Notifications.SMTP.Port = DefaultSMTPPort
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = DefaultAPIPort
	}
}

// applyEnvOverrides layers environment variables over the file configuration.
// Durations given as bare numbers are seconds.
func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	if v := getenv("POLL_INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("POLL_INTERVAL: %w", err)
		}
		cfg.Monitor.PollInterval = d
	}
	if v := getenv("ALERT_COOL_DOWN"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("ALERT_COOL_DOWN: %w", err)
		}
		cfg.Monitor.Cooldown = d
	}
	if v := getenv("KUBECONFIG"); v != "" && cfg.Kubernetes.Kubeconfig == "" {
		cfg.Kubernetes.Kubeconfig = v
	}

	smtp := &cfg.Notifications.SMTP
	setString(&smtp.Server, getenv("SMTP_SERVER"))
	setString(&smtp.Username, getenv("SMTP_USERNAME"))
	setString(&smtp.Password, getenv("SMTP_PASSWORD"))
	setString(&smtp.From, getenv("EMAIL_FROM"))
	if v := getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT: %w", err)
		}
		smtp.Port = port
	}
	if v := getenv("EMAIL_TO"); v != "" {
		smtp.To = splitList(v)
	}
	setString(&cfg.Notifications.SubjectPrefix, getenv("EMAIL_SUBJECT_PREFIX"))
	setString(&cfg.Notifications.Apprise.APIURL, getenv("APPRISE_API_URL"))

	if v := getenv("REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
		cfg.Store.Backend = "redis"
	}
	setString(&cfg.Store.Redis.Password, getenv("REDIS_PASSWORD"))

	if v := getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	return nil
}

func parseSeconds(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AppriseKey returns the stored-configuration key, reading KeyEnv when set
func (c *Config) AppriseKey() string {
	if c.Notifications.Apprise.KeyEnv != "" {
		if v := os.Getenv(c.Notifications.Apprise.KeyEnv); v != "" {
			return v
		}
	}
	return c.Notifications.Apprise.Key
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	if cfg.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if cfg.Monitor.FailureBackoff <= 0 {
		return fmt.Errorf("monitor.failure_backoff must be positive")
	}
	if cfg.Monitor.Cooldown < 0 {
		return fmt.Errorf("monitor.cooldown must not be negative")
	}
	if cfg.Monitor.DashboardAlertLimit < 0 {
		return fmt.Errorf("monitor.dashboard_alert_limit must not be negative")
	}

	switch cfg.Kubernetes.Mode {
	case "auto", "in-cluster", "kubeconfig", "mock":
	default:
		return fmt.Errorf("kubernetes.mode must be 'auto', 'in-cluster', 'kubeconfig', or 'mock'")
	}

	switch cfg.Store.Backend {
	case "memory":
	case "redis":
		if cfg.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend must be 'memory' or 'redis'")
	}

	smtp := cfg.Notifications.SMTP
	if smtp.Enabled() {
		if smtp.From == "" || len(smtp.To) == 0 {
			return fmt.Errorf("notifications.smtp: from and to are required when server is set")
		}
		if smtp.Port <= 0 || smtp.Port > 65535 {
			return fmt.Errorf("notifications.smtp.port out of range: %d", smtp.Port)
		}
	}

	apprise := cfg.Notifications.Apprise
	if apprise.Enabled() && apprise.Key == "" && apprise.KeyEnv == "" && len(apprise.URLs) == 0 {
		return fmt.Errorf("notifications.apprise: one of key, key_env or urls is required")
	}

	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port out of range: %d", cfg.API.Port)
	}

	return nil
}
