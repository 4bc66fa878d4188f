// Command twitch-recorder polls the Twitch Helix API for a configured set of
// streamers and fires a live-action for each one found live.
// It:
//   - Loads the config file (CONFIG_PATH, default config.toml) and initializes structured logging.
//   - Builds the Helix client, optionally with app access tokens from the client secret.
//   - Wires the live-actions: a log line, the per-streamer recorder command, and the
//     Postgres session journal when a DSN is configured.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status and /metrics
//     when an address is configured.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/onnwee/twitch-recorder/config"
	"github.com/onnwee/twitch-recorder/db"
	"github.com/onnwee/twitch-recorder/poller"
	"github.com/onnwee/twitch-recorder/server"
	"github.com/onnwee/twitch-recorder/telemetry"
	"github.com/onnwee/twitch-recorder/twitchapi"
)

func main() {
	os.Exit(run())
}

// run wires and runs the service; deferred cleanup completes before the exit code is returned.
func run() int {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("config load failed", slog.String("path", path), slog.Any("err", err))
		return 1
	}
	trigger, err := poller.ParseTrigger(cfg.Twitch.Trigger)
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return 1
	}

	telemetry.Init()

	// Optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdown, err := telemetry.InitTracing("twitch-recorder", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		return 1
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{
		Timeout:   cfg.RequestTimeout(),
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	client := &twitchapi.HelixClient{ClientID: cfg.Twitch.Key, HTTPClient: httpClient}
	if cfg.Twitch.Key == "" {
		slog.Warn("no twitch client id configured (twitch.key or TWITCH_API_KEY); every poll will fail")
	} else if cfg.Twitch.ClientSecret != "" {
		client.TokenSource = twitchapi.NewAppTokenSource(ctx, cfg.Twitch.Key, cfg.Twitch.ClientSecret, httpClient)
		slog.Info("twitch app access tokens enabled")
	}

	recorders := poller.NewExecAction(ctx)
	actions := poller.Actions{poller.LogAction{}, recorders}

	var database *sql.DB
	if cfg.Database.DSN != "" {
		database, err = db.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			return 1
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			return 1
		}
		actions = append(actions, db.NewJournal(database))
	}

	slog.Info("twitch recorder starting",
		slog.String("config", cfg.Path),
		slog.Int("streamers", len(cfg.Streamers)),
		slog.Bool("journal", database != nil),
		slog.Bool("http", cfg.Server.Addr != ""),
		slog.Bool("tracing", telemetry.IsTracingEnabled()),
		slog.String("component", "main"))

	p := poller.New(client, poller.NewRegistry(cfg.Streamers),
		poller.WithInterval(cfg.PollInterval()),
		poller.WithTrigger(trigger),
		poller.WithStopOnError(cfg.Twitch.StopOnError),
		poller.WithAction(actions),
	)

	if cfg.Server.Addr != "" {
		go func() {
			if err := server.Start(ctx, cfg.Server.Addr, p, database); err != nil {
				slog.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	}

	runErr := p.Run(ctx)
	stop()
	slog.Info("shutting down", slog.String("component", "main"))
	recorders.Wait()
	if runErr != nil {
		slog.Error("poller stopped on error", slog.Any("err", runErr), slog.String("class", twitchapi.ClassifyError(runErr).String()))
		return 1
	}
	return 0
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}
