// Command aria is a voice-driven personal stylist agent: it streams the
// microphone to a realtime speech model and plays the model's replies back,
// interruptible mid-sentence.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ariavoice/aria/internal/app"
	"github.com/ariavoice/aria/internal/capture"
	"github.com/ariavoice/aria/internal/config"
	"github.com/ariavoice/aria/internal/observe"
	"github.com/ariavoice/aria/internal/playback"
	"github.com/ariavoice/aria/internal/stylist"
	"github.com/ariavoice/aria/pkg/bridge"
	"github.com/ariavoice/aria/pkg/bridge/gemini"
	"github.com/ariavoice/aria/pkg/bridge/mock"
	"github.com/ariavoice/aria/pkg/bridge/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if old.Server.LogLevel != new.Server.LogLevel {
			levelVar.Set(logLevel(new.Server.LogLevel))
			slog.Info("log level updated", "level", new.Server.LogLevel)
		}
		if old.Session != new.Session {
			slog.Info("session settings changed — restart to apply")
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aria: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aria: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar.Set(logLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("aria starting",
		"config", *configPath,
		"provider", cfg.Session.Provider,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(cfg.Server.MetricsAddr)
	}

	// ── Session provider ──────────────────────────────────────────────────────
	provider, err := buildProvider(cfg.Session)
	if err != nil {
		slog.Error("failed to build session provider", "err", err)
		return 1
	}

	// ── Audio devices ─────────────────────────────────────────────────────────
	out, err := playback.NewDevice(cfg.Audio.PlaybackRate)
	if err != nil {
		slog.Error("failed to open audio output", "err", err)
		return 1
	}
	defer out.Close()

	source := capture.NewMicrophone(cfg.Audio.CaptureRate)

	// ── Application ───────────────────────────────────────────────────────────
	application := app.New(cfg, provider, out, source, consoleDisplay{}, app.WithLogger(logger))

	if err := application.Connect(ctx); err != nil {
		slog.Error("connect failed", "err", err)
		return 1
	}

	go readTextInput(ctx, application)

	slog.Info("listening — speak, type a message, or press Ctrl+C to quit")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		_ = application.Shutdown()
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down…")
	if err := application.Shutdown(); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	if transcript := application.Transcript().String(); transcript != "" {
		fmt.Println("\n── conversation ──")
		fmt.Print(transcript)
	}
	slog.Info("goodbye")
	return 0
}

// buildProvider constructs the configured session provider.
func buildProvider(sc config.SessionConfig) (bridge.Provider, error) {
	switch sc.Provider {
	case "gemini-live":
		var opts []gemini.Option
		if sc.Model != "" {
			opts = append(opts, gemini.WithModel(sc.Model))
		}
		if sc.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(sc.BaseURL))
		}
		return gemini.New(sc.APIKey, opts...), nil
	case "openai-realtime":
		var opts []openai.Option
		if sc.Model != "" {
			opts = append(opts, openai.WithModel(sc.Model))
		}
		if sc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(sc.BaseURL))
		}
		return openai.New(sc.APIKey, opts...), nil
	case "mock":
		return mock.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown session provider %q", sc.Provider)
	}
}

// readTextInput forwards typed lines into the conversation as text messages.
func readTextInput(ctx context.Context, application *app.App) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := application.SendText(line); err != nil {
			slog.Warn("text message not sent", "err", err)
		}
	}
}

// serveMetrics exposes the Prometheus scrape endpoint.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("metrics endpoint stopped", "err", err)
	}
}

// consoleDisplay renders outfit suggestions to stdout.
type consoleDisplay struct{}

func (consoleDisplay) Show(s stylist.Suggestion) error {
	fmt.Println("\n── outfit suggestion ──")
	fmt.Printf("  top:         %s\n", s.Top)
	fmt.Printf("  bottom:      %s\n", s.Bottom)
	fmt.Printf("  footwear:    %s\n", s.Footwear)
	if len(s.Accessories) > 0 {
		fmt.Printf("  accessories: %s\n", strings.Join(s.Accessories, ", "))
	}
	if len(s.ColorPalette) > 0 {
		fmt.Printf("  palette:     %s\n", strings.Join(s.ColorPalette, " "))
	}
	fmt.Printf("  vibe:        %s\n", s.Vibe)
	fmt.Println()
	return nil
}

// logLevel maps the config value to an slog level.
func logLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
