package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/genricoloni/bluctl/internal/config"
	"github.com/genricoloni/bluctl/internal/console"
	"github.com/genricoloni/bluctl/internal/discovery"
	"github.com/genricoloni/bluctl/internal/domain"
	"github.com/genricoloni/bluctl/internal/engine"
	"github.com/genricoloni/bluctl/internal/enrich"
	"github.com/genricoloni/bluctl/internal/executor"
	"github.com/genricoloni/bluctl/internal/fetcher"
	"github.com/genricoloni/bluctl/internal/processor"
	"github.com/genricoloni/bluctl/internal/transport"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const _openAIKeyEnv = "OPENAI_API_KEY"

// AppOptions is the application graph without command line input
var AppOptions = fx.Options(
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log}
	}),

	fx.Provide(
		newLogger,
		config.NewAppConfig,
		config.NewStore,
		discovery.NewBrowser,
		newProber,
		discovery.New,
		fetcher.NewHTTPFetcher,
		processor.NewThumbnailProcessor,
		newEnrichCache,
		newNotifier,
		newEngine,
		newConsole,
	),

	fx.Invoke(registerHooks),
)

func main() {
	flags := parseFlags(os.Args[1:])

	app := fx.New(
		fx.Supply(flags),
		AppOptions,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bluctl: %v\n", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-app.Wait():
	}

	if err := app.Stop(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "bluctl: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) config.Flags {
	var flags config.Flags
	fs := pflag.NewFlagSet("bluctl", pflag.ExitOnError)
	fs.StringVarP(&flags.ConfigFile, "config", "c", "", "YAML configuration file")
	fs.StringVarP(&flags.Host, "host", "H", "", "player host[:port], skips discovery")
	fs.StringVar(&flags.LogFile, "log-file", "", "log file (default in the user cache dir)")
	fs.StringVar(&flags.LogLevel, "log-level", "info", "debug, info, warn or error")
	_ = fs.Parse(args)
	return flags
}

// newLogger writes JSON logs to a file; the terminal belongs to the console
func newLogger(flags config.Flags) (*zap.Logger, error) {
	path := flags.LogFile
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		path = filepath.Join(dir, "bluctl", "bluctl.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	level := zapcore.InfoLevel
	if flags.LogLevel != "" {
		if err := level.UnmarshalText([]byte(flags.LogLevel)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}

func newProber(logger *zap.Logger, cfg *config.AppConfig) domain.Prober {
	return transport.NewProber(logger, cfg.Player.RequestTimeout)
}

// newEnrichCache wires one provider per identity kind.
// Track descriptions come from OpenAI when a key is configured, with Wikipedia as fallback.
func newEnrichCache(
	logger *zap.Logger,
	cfg *config.AppConfig,
	store *config.Store,
	fetch *fetcher.HTTPFetcher,
	thumbs *processor.ThumbnailProcessor,
) *enrich.Cache {
	settings := cfg.Enrich
	musicBrainz := enrich.NewMusicBrainz(logger, "", enrich.NewThrottle(settings.RateInterval, settings.RateMaxWait))
	wikipedia := enrich.NewWikipedia(logger, "", enrich.NewThrottle(settings.RateInterval, settings.RateMaxWait))

	var track domain.Provider = wikipedia
	prefs, err := store.Load()
	if err != nil {
		logger.Warn("Preferences unavailable", zap.Error(err))
	}
	apiKey := prefs.OpenAIAPIKey
	if env := os.Getenv(_openAIKeyEnv); env != "" {
		apiKey = env
	}
	if apiKey != "" {
		track = enrich.NewOpenAI(logger, "", apiKey, settings.OpenAIModel, prefs.OpenAISystemPrompt, wikipedia)
		logger.Info("Track descriptions via OpenAI", zap.String("model", settings.OpenAIModel))
	}

	return enrich.NewCache(logger, map[domain.IdentityKind]domain.Provider{
		domain.KindAlbum:   musicBrainz,
		domain.KindTrack:   track,
		domain.KindArtwork: enrich.NewArtwork(fetch, thumbs),
	}, settings.LookupTimeout)
}

// newNotifier returns nil when notifications are disabled or unavailable
func newNotifier(logger *zap.Logger, cfg *config.AppConfig) domain.Notifier {
	if !cfg.Notify {
		return nil
	}
	n, err := executor.NewNotifier(logger)
	if err != nil {
		logger.Warn("Desktop notifications disabled", zap.Error(err))
		return nil
	}
	return n
}

func newEngine(
	logger *zap.Logger,
	cfg *config.AppConfig,
	store *config.Store,
	disc *discovery.Discovery,
	cache *enrich.Cache,
	notifier domain.Notifier,
) *engine.Engine {
	return engine.NewEngine(logger, cfg, store, disc, cache, notifier)
}

func newConsole(logger *zap.Logger, eng *engine.Engine, shutdowner fx.Shutdowner) *console.Console {
	return console.New(logger, eng, os.Stdin, os.Stdout, func() {
		if err := shutdowner.Shutdown(); err != nil {
			logger.Error("Shutdown request failed", zap.Error(err))
		}
	})
}

// registerHooks sets up application lifecycle hooks
func registerHooks(
	lc fx.Lifecycle,
	logger *zap.Logger,
	eng *engine.Engine,
	cache *enrich.Cache,
	con *console.Console,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("bluctl started")
			if err := eng.Start(ctx); err != nil {
				return err
			}
			return con.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			var err error
			err = multierr.Append(err, con.Stop(ctx))
			err = multierr.Append(err, eng.Stop(ctx))
			err = multierr.Append(err, cache.Stop(ctx))
			return err
		},
	})
}
