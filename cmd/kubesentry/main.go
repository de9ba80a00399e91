package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/kubesentry/kubesentry/internal/alerter"
	"github.com/kubesentry/kubesentry/internal/api"
	"github.com/kubesentry/kubesentry/internal/collector"
	"github.com/kubesentry/kubesentry/internal/config"
	"github.com/kubesentry/kubesentry/internal/monitor"
	"github.com/kubesentry/kubesentry/internal/notifier"
	"github.com/kubesentry/kubesentry/internal/store"
	"github.com/kubesentry/kubesentry/internal/version"
	"github.com/kubesentry/kubesentry/internal/webui"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "/config/kubesentry.yaml", "Path to configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Create log buffer for web UI (captures last 1000 log entries)
	logBuffer := webui.NewLogBuffer(1000)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logLevelParsed, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logLevelParsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevelParsed)

	// Write to both stdout and the log buffer
	multiWriter := io.MultiWriter(os.Stdout, logBuffer)
	logger := zerolog.New(multiWriter).With().
		Timestamp().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Logger()

	logger.Info().Msg("Starting kubesentry")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("config_path", *configPath).
			Msg("Failed to load configuration")
	}

	logger.Info().
		Dur("poll_interval", cfg.Monitor.PollInterval).
		Dur("cooldown", cfg.Monitor.Cooldown).
		Str("kubernetes_mode", cfg.Kubernetes.Mode).
		Str("store", cfg.Store.Backend).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, fallback := buildSource(cfg, logger)

	alertStore, closeStore := buildStore(ctx, cfg, logger)
	defer closeStore()

	engine := alerter.NewEngine(alertStore, buildSink(cfg, logger), cfg.Monitor.Cooldown, logger)

	mon := monitor.New(source, engine, monitor.Options{
		PollInterval:        cfg.Monitor.PollInterval,
		FailureBackoff:      cfg.Monitor.FailureBackoff,
		DashboardAlertLimit: cfg.Monitor.DashboardAlertLimit,
		Fallback:            fallback,
	}, logger)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		mon.Run(ctx)
	}()

	apiServer := api.NewServer(mon, logger, cfg.API.Port)
	apiServer.SetLogBuffer(logBuffer)
	apiServer.SetVersion(version.Version, version.Commit, version.BuildDate)

	logger.Info().
		Int("port", cfg.API.Port).
		Msg("kubesentry running, press Ctrl+C to stop")

	if err := apiServer.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("API server error")
		stop()
	}

	logger.Info().Msg("Shutting down...")
	<-loopDone
	engine.Close()
	logger.Info().Msg("kubesentry stopped")
}

// buildSource returns the primary snapshot source and, when enabled, the demo
// fallback used while the live API is unreachable
func buildSource(cfg *config.Config, logger zerolog.Logger) (collector.Source, collector.Source) {
	if cfg.Kubernetes.Mode == collector.ModeMock {
		logger.Warn().Msg("Kubernetes mode is mock, serving demo cluster data")
		return collector.NewMockCollector(logger), nil
	}

	client, err := collector.NewClient(cfg.Kubernetes.Mode, cfg.Kubernetes.Kubeconfig, logger)
	if err != nil {
		if errors.Is(err, collector.ErrNoCluster) {
			logger.Warn().
				Err(err).
				Msg("No Kubernetes configuration found, serving demo cluster data")
			return collector.NewMockCollector(logger), nil
		}
		logger.Fatal().Err(err).Msg("Failed to create Kubernetes client")
	}

	var fallback collector.Source
	if cfg.Kubernetes.MockFallback {
		fallback = collector.NewMockCollector(logger)
	}
	return collector.NewKubeCollector(client, logger), fallback
}

func buildStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, func()) {
	if cfg.Store.Backend != "redis" {
		logger.Info().Msg("Using in-memory alert store")
		return store.NewMemoryStore(), func() {}
	}

	rs, err := store.NewRedisStore(ctx, store.RedisOptions{
		Addr:     cfg.Store.Redis.Addr,
		Password: cfg.Store.Redis.Password,
		DB:       cfg.Store.Redis.DB,
		Prefix:   cfg.Store.Redis.Prefix,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect alert store")
	}
	logger.Info().Str("addr", cfg.Store.Redis.Addr).Msg("Using Redis alert store")
	return rs, func() {
		if err := rs.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing Redis store")
		}
	}
}

func buildSink(cfg *config.Config, logger zerolog.Logger) notifier.Sink {
	var sinks []notifier.Sink
	n := cfg.Notifications

	if n.Apprise.Enabled() {
		sinks = append(sinks, notifier.NewApprise(notifier.AppriseConfig{
			APIURL: n.Apprise.APIURL,
			Key:    cfg.AppriseKey(),
			URLs:   n.Apprise.URLs,
		}, logger))
		logger.Info().Str("api_url", n.Apprise.APIURL).Msg("Apprise notifications enabled")
	}

	if n.SMTP.Enabled() {
		smtpCfg := notifier.SMTPConfig{
			Server:   n.SMTP.Server,
			Port:     n.SMTP.Port,
			Username: n.SMTP.Username,
			Password: n.SMTP.Password,
			From:     n.SMTP.From,
			To:       n.SMTP.To,
		}
		if smtpCfg.Complete() {
			sinks = append(sinks, notifier.NewSMTP(smtpCfg))
			logger.Info().Str("server", n.SMTP.Server).Msg("Email notifications enabled")
		} else {
			logger.Warn().Msg("SMTP configuration incomplete, email notifications disabled")
		}
	}

	if len(sinks) == 0 {
		logger.Warn().Msg("No notification transport configured, alerts will only be logged")
		sinks = append(sinks, notifier.NewLogSink(logger))
	}

	return notifier.WithSubjectPrefix(notifier.NewMulti(logger, sinks...), n.SubjectPrefix)
}
