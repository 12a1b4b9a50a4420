// Command glasswing runs the assistant core: the WebSocket gateway the UI
// shell connects to and an admin listener serving metrics and probes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/nivara-ai/glasswing/internal/archive"
	"github.com/nivara-ai/glasswing/internal/config"
	"github.com/nivara-ai/glasswing/internal/gateway"
	"github.com/nivara-ai/glasswing/internal/health"
	"github.com/nivara-ai/glasswing/internal/license"
	"github.com/nivara-ai/glasswing/internal/observe"
	"github.com/nivara-ai/glasswing/internal/prompt"
	"github.com/nivara-ai/glasswing/internal/session"
	"github.com/nivara-ai/glasswing/pkg/audio/segment"
	"github.com/nivara-ai/glasswing/pkg/provider/llm/openaicompat"
	"github.com/nivara-ai/glasswing/pkg/provider/stt/whisperapi"
)

const version = "0.3.0"

const (
	defaultGatewayAddr = "127.0.0.1:8765"
	defaultAdminAddr   = "127.0.0.1:9090"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Optional .env next to the binary, mirroring local development setups.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "glasswing: load .env: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "glasswing: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "glasswing: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	gatewayAddr := cfg.Server.GatewayAddr
	if gatewayAddr == "" {
		gatewayAddr = defaultGatewayAddr
	}
	adminAddr := cfg.Server.AdminAddr
	if adminAddr == "" {
		adminAddr = defaultAdminAddr
	}

	slog.Info("glasswing starting",
		"version", version,
		"config", *configPath,
		"gateway_addr", gatewayAddr,
		"admin_addr", adminAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "glasswing",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── License ───────────────────────────────────────────────────────────────
	plan := license.PlanUnlimited
	if cfg.License.Key != "" {
		verifier := license.NewKeyVerifier()
		key, ok := verifier.Verify(cfg.License.DeviceID, cfg.License.Key)
		metrics.LicenseChecked(ctx, ok)
		if !ok {
			slog.Error("license key rejected", "device_id", cfg.License.DeviceID)
			return 1
		}
		plan = key.Plan
		slog.Info("license accepted", "plan", string(key.Plan), "lifetime", key.Lifetime())
	} else {
		slog.Warn("no license key configured; running with the unlimited development plan")
	}

	// ── Archive ───────────────────────────────────────────────────────────────
	var store archive.Store
	if cfg.Archive.PostgresDSN != "" {
		pg, err := archive.NewPostgresStore(ctx, cfg.Archive.PostgresDSN)
		if err != nil {
			slog.Error("failed to open archive database", "err", err)
			return 1
		}
		store = pg
		slog.Info("turn archive backed by postgres")
	} else {
		store = archive.NewMemoryStore()
	}
	defer store.Close()

	// ── Providers ─────────────────────────────────────────────────────────────
	sttKey := cfg.Providers.STT.APIKey
	if sttKey == "" {
		sttKey = os.Getenv("GROQ_API_KEY")
	}
	llmKey := cfg.Providers.LLM.APIKey
	if llmKey == "" {
		llmKey = os.Getenv("GROQ_API_KEY")
	}

	transcriber, err := whisperapi.New(sttKey, sttOptions(cfg.Providers.STT)...)
	if err != nil {
		slog.Error("failed to create transcription client", "err", err)
		return 1
	}
	chat, err := openaicompat.New(llmKey, llmOptions(cfg.Providers.LLM)...)
	if err != nil {
		slog.Error("failed to create chat client", "err", err)
		return 1
	}

	// ── Session factory and gateway ───────────────────────────────────────────
	quota := cfg.License.LimitedQuota
	defaultProfile := prompt.Profile(cfg.Session.Profile)
	if !defaultProfile.IsValid() {
		defaultProfile = prompt.DefaultProfile
	}

	factory := func(n session.Notifier) *session.Session {
		opts := []session.Option{
			session.WithArchive(store),
			session.WithPlan(plan),
			session.WithMetrics(metrics),
		}
		if cfg.Audio.SampleRate > 0 {
			opts = append(opts, session.WithSampleRate(cfg.Audio.SampleRate))
		}
		if quota > 0 {
			opts = append(opts, session.WithQuota(quota))
		}
		s := session.New(transcriber, chat, n, opts...)
		s.Start(defaultProfile, cfg.Session.CustomPrompt, cfg.Session.ResumeContext)
		return s
	}

	gw := gateway.New(factory, segmenterConfig(cfg.Audio), gateway.WithMetrics(metrics))

	// ── HTTP servers ──────────────────────────────────────────────────────────
	adminMux := http.NewServeMux()
	health.New(
		health.ArchiveChecker(store),
		health.ProviderChecker("stt", sttKey),
		health.ProviderChecker("llm", llmKey),
	).Register(adminMux)
	adminMux.Handle("GET /metrics", promhttp.Handler())

	gatewaySrv := &http.Server{Addr: gatewayAddr, Handler: gw}
	adminSrv := &http.Server{Addr: adminAddr, Handler: adminMux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("gateway listening", "addr", gatewayAddr)
		if err := gatewaySrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("admin listening", "addr", adminAddr)
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return errors.Join(gatewaySrv.Shutdown(sctx), adminSrv.Shutdown(sctx))
	})

	slog.Info("core ready — press Ctrl+C to shut down")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func sttOptions(entry config.ProviderEntry) []whisperapi.Option {
	var opts []whisperapi.Option
	if entry.BaseURL != "" {
		opts = append(opts, whisperapi.WithBaseURL(entry.BaseURL))
	}
	if entry.Model != "" {
		opts = append(opts, whisperapi.WithModel(entry.Model))
	}
	return opts
}

func llmOptions(entry config.ProviderEntry) []openaicompat.Option {
	var opts []openaicompat.Option
	if entry.BaseURL != "" {
		opts = append(opts, openaicompat.WithBaseURL(entry.BaseURL))
	}
	if entry.Model != "" {
		opts = append(opts, openaicompat.WithModel(entry.Model))
	}
	return opts
}

func segmenterConfig(a config.AudioConfig) segment.Config {
	return segment.Config{
		SampleRate:       a.SampleRate,
		SilenceThreshold: a.SilenceThreshold,
		SilenceDuration:  time.Duration(a.SilenceDurationMS) * time.Millisecond,
		MinUtterance:     time.Duration(a.MinUtteranceMS) * time.Millisecond,
		MaxBuffer:        time.Duration(a.MaxBufferMS) * time.Millisecond,
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
