package main

import (
	"context"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/LittleAndi/AndiBanterBot/internal/adapter/httpserver"
	"github.com/LittleAndi/AndiBanterBot/internal/adapter/memory"
	"github.com/LittleAndi/AndiBanterBot/internal/adapter/metrics"
	"github.com/LittleAndi/AndiBanterBot/internal/adapter/openai"
	"github.com/LittleAndi/AndiBanterBot/internal/adapter/postgres"
	"github.com/LittleAndi/AndiBanterBot/internal/adapter/pubg"
	"github.com/LittleAndi/AndiBanterBot/internal/adapter/redis"
	"github.com/LittleAndi/AndiBanterBot/internal/adapter/sqlite"
	"github.com/LittleAndi/AndiBanterBot/internal/adapter/twitch"
	"github.com/LittleAndi/AndiBanterBot/internal/app"
	"github.com/LittleAndi/AndiBanterBot/internal/domain"
	"github.com/LittleAndi/AndiBanterBot/internal/platform/config"
	"github.com/LittleAndi/AndiBanterBot/internal/platform/logging"
	"github.com/LittleAndi/AndiBanterBot/internal/platform/version"
)

const (
	setupTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// storage holds the optional backing stores and their cleanups.
type storage struct {
	archive domain.MatchArchive
	seen    domain.SeenMatches
	checks  []httpserver.HealthCheck
	closers []func()
}

func (s *storage) Close() {
	for _, closeFn := range s.closers {
		closeFn()
	}
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not initialized yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStorage(ctx context.Context, cfg *config.Config) *storage {
	ctx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	s := &storage{seen: memory.NewSeenMatches()}

	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
		archive := postgres.NewMatchArchive(pool)
		s.archive = archive
		s.checks = append(s.checks, httpserver.HealthCheck{Name: "postgres", Check: archive.Ping})
		s.closers = append(s.closers, pool.Close)
	} else if cfg.ArchiveSQLitePath != "" {
		archive, err := sqlite.Open(ctx, cfg.ArchiveSQLitePath)
		if err != nil {
			slog.Error("Failed to open match archive", "error", err)
			os.Exit(1)
		}
		s.archive = archive
		s.checks = append(s.checks, httpserver.HealthCheck{Name: "sqlite", Check: archive.Ping})
		s.closers = append(s.closers, func() { _ = archive.Close() })
	}

	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		s.seen = redis.NewSeenMatches(rdb)
		s.checks = append(s.checks, httpserver.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		s.closers = append(s.closers, func() { _ = rdb.Close() })
	}

	return s
}

// setupEventSource builds the configured EventSub transport. The webhook
// handler is nil for the websocket transport.
func setupEventSource(cfg *config.Config, gateway *twitch.HelixGateway, emit func(domain.Event), botMetrics *metrics.BotMetrics) (twitch.EventSource, func(func(context.Context) error), *twitch.WebhookHandler) {
	if cfg.EventSubTransport == config.TransportConduit {
		source, err := twitch.NewConduitSource(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.WebhookCallbackURL, cfg.WebhookSecret, emit)
		if err != nil {
			slog.Error("Failed to create conduit source", "error", err)
			os.Exit(1)
		}
		onSession := func(fn func(context.Context) error) { source.OnSession = fn }
		return source, onSession, twitch.NewWebhookHandler(cfg.WebhookSecret, emit)
	}

	source := twitch.NewWebSocketSource(cfg.EventSubWebSocketURL, gateway, emit)
	source.OnReconnect = botMetrics.Reconnect
	onSession := func(fn func(context.Context) error) { source.OnSession = fn }
	return source, onSession, nil
}

func openAIConfig(cfg *config.Config) openai.Config {
	return openai.Config{
		APIKey:            cfg.OpenAIAPIKey,
		BaseURL:           cfg.OpenAIBaseURL,
		Model:             cfg.OpenAIModel,
		ModerationModel:   cfg.OpenAIModerationModel,
		SpeechModel:       cfg.OpenAITTSModel,
		BotUsername:       cfg.BotUsername,
		SystemPrompt:      cfg.BotSystemPrompt,
		MatchSystemPrompt: cfg.MatchSystemPrompt,
	}
}

func main() {
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	registry := metrics.NewRegistry()
	botMetrics := metrics.NewBotMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	store := setupStorage(ctx, cfg)
	defer store.Close()

	gateway, err := twitch.NewHelixGateway(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchUserAccessToken)
	if err != nil {
		slog.Error("Failed to create Helix client", "error", err)
		os.Exit(1)
	}

	// Sources emit only after Connect, by which time the dispatcher exists.
	var dispatcher *app.Dispatcher
	emit := func(e domain.Event) { dispatcher.Enqueue(e) }

	source, setOnSession, webhook := setupEventSource(cfg, gateway, emit, botMetrics)
	chat := twitch.NewChat(gateway, source, emit, cfg.BotUserID, cfg.HomeChannel, cfg.ChatMessagesPer30s)
	setOnSession(chat.SubscribeHome)

	notifier := app.NewNotifier(chat, botMetrics)
	clips := twitch.NewClips(gateway, chat, notifier)

	aiCfg := openAIConfig(cfg)
	completions := openai.NewClient(aiCfg)
	moderation := openai.NewModerator(aiCfg)
	speaker := openai.NewSpeaker(aiCfg, moderation, cfg.AudioOutputPath, cfg.AudioPlayerCommand)

	var stats domain.GameStatsClient
	if cfg.PubgEnabled() {
		stats = pubg.NewClient(pubg.Config{
			APIKey:               cfg.PubgAPIKey,
			BaseURL:              cfg.PubgBaseURL,
			Platform:             cfg.PubgPlatform,
			OnBreakerStateChange: botMetrics.BreakerState("pubg"),
		})
	}

	history := app.NewHistoryBuffer(cfg.HistoryCapacity, cfg.HistoryMaxAge, clock)
	policy := app.NewPolicy(history, app.PolicyConfig{
		BotUsername:              cfg.BotUsername,
		IgnoredUsernames:         cfg.IgnoredUsernames(),
		MentionResponseThreshold: cfg.RandomResponseChance,
	}, rand.Float64)

	dispatcher = app.NewDispatcher(app.DispatcherConfig{
		HomeChannel:         cfg.HomeChannel,
		WhisperAllowList:    cfg.WhisperAllowList(),
		TTSRewardID:         cfg.TTSRewardID,
		TTSPlaceholderToken: cfg.TTSPlaceholderToken,
		TTSVoice:            cfg.TTSVoice,
		Instructions:        app.Instructions{DiscordJoinLink: cfg.DiscordJoinLink},
	}, app.DispatcherDeps{
		Transport:   chat,
		Policy:      policy,
		Router:      app.NewCommandRouter(clips, stats, completions, notifier),
		Completions: completions,
		Moderation:  moderation,
		Audio:       speaker,
		Notifier:    notifier,
		Recorder:    botMetrics,
	})

	serverCfg := httpserver.Config{
		Port:         cfg.Port,
		HealthChecks: store.checks,
		Metrics:      metrics.Handler(registry),
		Middleware:   []echo.MiddlewareFunc{httpMetrics.Middleware()},
		Channels:     dispatcher.Channels(),
	}
	if webhook != nil {
		serverCfg.Webhook = webhook
	}
	srv := httpserver.NewServer(serverCfg)

	var wg sync.WaitGroup
	wg.Go(func() { dispatcher.Run(ctx) })
	wg.Go(func() {
		if err := srv.Start(); err != nil {
			slog.Error("Server error", "error", err)
			stop()
		}
	})

	if err := chat.Connect(ctx); err != nil {
		slog.Error("Failed to connect to Twitch", "error", err)
		stop()
	}

	if stats != nil && cfg.PubgPlayerName != "" {
		watcher := app.NewMatchWatcher(app.WatcherConfig{
			PlayerName:   cfg.PubgPlayerName,
			HomeChannel:  cfg.HomeChannel,
			Voice:        cfg.MatchVoice,
			PollInterval: cfg.PubgPollInterval,
		}, stats, completions, store.archive, store.seen, notifier, speaker, clock)
		wg.Go(func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Error("Match watcher stopped", "error", err)
			}
		})
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received, cleaning up...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}
	if err := chat.Disconnect(shutdownCtx); err != nil {
		slog.Error("Failed to disconnect from Twitch", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Shutdown complete")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timed out waiting for in-flight work")
	}
}
