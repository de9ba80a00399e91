package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kubesentry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

var overrideVars = []string{
	"POLL_INTERVAL", "ALERT_COOL_DOWN", "SMTP_SERVER", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD",
	"EMAIL_FROM", "EMAIL_TO", "EMAIL_SUBJECT_PREFIX", "APPRISE_API_URL", "REDIS_ADDR", "REDIS_PASSWORD",
	"API_PORT", "KUBECONFIG",
}

// clearEnv blanks the override variables; empty values are ignored by the loader
func clearEnv(t *testing.T) {
	for _, k := range overrideVars {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPollInterval, cfg.Monitor.PollInterval)
	assert.Equal(t, DefaultFailureBackoff, cfg.Monitor.FailureBackoff)
	assert.Equal(t, DefaultCooldown, cfg.Monitor.Cooldown)
	assert.Equal(t, 20, cfg.Monitor.DashboardAlertLimit)
	assert.Equal(t, "auto", cfg.Kubernetes.Mode)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "[K8s Alert]", cfg.Notifications.SubjectPrefix)
	assert.Equal(t, 8080, cfg.API.Port)
}

func TestLoadConfig_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
monitor:
  poll_interval: 30s
  cooldown: 10m
kubernetes:
  mode: mock
store:
  backend: redis
  redis:
    addr: redis:6379
notifications:
  subject_prefix: "[prod]"
  apprise:
    api_url: http://apprise:8000
    key: ops
  smtp:
    server: smtp.example.com
    from: alerts@example.com
    to: [ops@example.com]
api:
  port: 9090
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Monitor.Cooldown)
	assert.Equal(t, "mock", cfg.Kubernetes.Mode)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, DefaultRedisPrefix, cfg.Store.Redis.Prefix)
	assert.Equal(t, "[prod]", cfg.Notifications.SubjectPrefix)
	assert.Equal(t, "ops", cfg.AppriseKey())
	assert.Equal(t, 587, cfg.Notifications.SMTP.Port)
	assert.Equal(t, 9090, cfg.API.Port)
}

func TestLoadConfig_ZeroCooldownDisablesGate(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(writeConfig(t, `
monitor:
  cooldown: 0
`))
	require.NoError(t, err)
	assert.Zero(t, cfg.Monitor.Cooldown)

	cfg, err = LoadConfig(writeConfig(t, `
monitor:
  poll_interval: 30s
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultCooldown, cfg.Monitor.Cooldown, "absent key keeps the default")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "monitor: [unclosed"))
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"POLL_INTERVAL":        "15",
		"ALERT_COOL_DOWN":      "120",
		"SMTP_SERVER":          "mail.example.com",
		"SMTP_PORT":            "2525",
		"SMTP_USERNAME":        "u",
		"SMTP_PASSWORD":        "p",
		"EMAIL_FROM":           "from@example.com",
		"EMAIL_TO":             "a@example.com, b@example.com,",
		"EMAIL_SUBJECT_PREFIX": "[staging]",
		"APPRISE_API_URL":      "http://apprise:8000",
		"REDIS_ADDR":           "localhost:6379",
		"API_PORT":             "9000",
		"KUBECONFIG":           "/tmp/kubeconfig",
	}
	cfg := &Config{}
	applyDefaults(cfg)
	require.NoError(t, applyEnvOverrides(cfg, func(k string) string { return env[k] }))

	assert.Equal(t, 15*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Monitor.Cooldown)
	assert.Equal(t, "mail.example.com", cfg.Notifications.SMTP.Server)
	assert.Equal(t, 2525, cfg.Notifications.SMTP.Port)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Notifications.SMTP.To)
	assert.Equal(t, "[staging]", cfg.Notifications.SubjectPrefix)
	assert.Equal(t, "http://apprise:8000", cfg.Notifications.Apprise.APIURL)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, "/tmp/kubeconfig", cfg.Kubernetes.Kubeconfig)
}

func TestApplyEnvOverrides_DurationSyntax(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	require.NoError(t, applyEnvOverrides(cfg, func(k string) string {
		if k == "POLL_INTERVAL" {
			return "90s"
		}
		return ""
	}))
	assert.Equal(t, 90*time.Second, cfg.Monitor.PollInterval)
}

func TestApplyEnvOverrides_BadNumber(t *testing.T) {
	cfg := &Config{}
	err := applyEnvOverrides(cfg, func(k string) string {
		if k == "SMTP_PORT" {
			return "smtp"
		}
		return ""
	})
	assert.ErrorContains(t, err, "SMTP_PORT")
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad mode", func(c *Config) { c.Kubernetes.Mode = "remote" }, "kubernetes.mode"},
		{"bad backend", func(c *Config) { c.Store.Backend = "sqlite" }, "store.backend"},
		{"redis without addr", func(c *Config) { c.Store.Backend = "redis" }, "store.redis.addr"},
		{"smtp without recipients", func(c *Config) { c.Notifications.SMTP.Server = "mail" }, "notifications.smtp"},
		{"apprise without target", func(c *Config) { c.Notifications.Apprise.APIURL = "http://a" }, "notifications.apprise"},
		{"negative cooldown", func(c *Config) { c.Monitor.Cooldown = -time.Second }, "monitor.cooldown"},
		{"port out of range", func(c *Config) { c.API.Port = 70000 }, "api.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestAppriseKeyFromEnv(t *testing.T) {
	t.Setenv("KUBESENTRY_APPRISE_KEY", "from-env")
	cfg := &Config{Notifications: NotificationsConfig{Apprise: AppriseConfig{Key: "inline", KeyEnv: "KUBESENTRY_APPRISE_KEY"}}}
	assert.Equal(t, "from-env", cfg.AppriseKey())
}
