package config

import "time"

// Config represents the complete kubesentry configuration
type Config struct {
	Monitor       MonitorConfig       `yaml:"monitor"`
	Kubernetes    KubernetesConfig    `yaml:"kubernetes"`
	Store         StoreConfig         `yaml:"store"`
	Notifications NotificationsConfig `yaml:"notifications"`
	API           APIConfig           `yaml:"api"`
}

// MonitorConfig controls the reconciliation loop and alert gating
type MonitorConfig struct {
	PollInterval        time.Duration `yaml:"poll_interval"`
	FailureBackoff      time.Duration `yaml:"failure_backoff"`
	Cooldown            time.Duration `yaml:"cooldown"`
	DashboardAlertLimit int           `yaml:"dashboard_alert_limit"`
}

// KubernetesConfig selects how the cluster is reached
type KubernetesConfig struct {
	Mode       string `yaml:"mode"` // "auto", "in-cluster", "kubeconfig", "mock"
	Kubeconfig string `yaml:"kubeconfig,omitempty"`
	// MockFallback serves the demo cluster when the live API is unreachable
	MockFallback bool `yaml:"mock_fallback"`
}

// StoreConfig selects the alert persistence backend
type StoreConfig struct {
	Backend string      `yaml:"backend"` // "memory" or "redis"
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// NotificationsConfig defines notification transports
type NotificationsConfig struct {
	SubjectPrefix string        `yaml:"subject_prefix"`
	Apprise       AppriseConfig `yaml:"apprise,omitempty"`
	SMTP          SMTPConfig    `yaml:"smtp,omitempty"`
}

// AppriseConfig points at an Apprise API server
type AppriseConfig struct {
	APIURL string   `yaml:"api_url"`
	Key    string   `yaml:"key,omitempty"`
	KeyEnv string   `yaml:"key_env,omitempty"`
	URLs   []string `yaml:"urls,omitempty"`
}

// Enabled reports whether Apprise delivery is configured
func (a AppriseConfig) Enabled() bool {
	return a.APIURL != ""
}

// SMTPConfig holds mail relay settings
type SMTPConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password,omitempty"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Enabled reports whether mail delivery is configured
func (s SMTPConfig) Enabled() bool {
	return s.Server != ""
}

// APIConfig configures the HTTP server
type APIConfig struct {
	Port int `yaml:"port"`
}
