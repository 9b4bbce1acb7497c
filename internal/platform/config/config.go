package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	TransportWebSocket = "websocket"
	TransportConduit   = "conduit"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	TwitchClientID        string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret    string `env:"TWITCH_CLIENT_SECRET"`
	TwitchUserAccessToken string `env:"TWITCH_USER_ACCESS_TOKEN"`
	BotUsername           string `env:"BOT_USERNAME"`
	BotUserID             string `env:"BOT_USER_ID"`
	HomeChannel           string `env:"HOME_CHANNEL"`

	EventSubTransport    string `env:"EVENTSUB_TRANSPORT" default:"websocket"`
	EventSubWebSocketURL string `env:"EVENTSUB_WEBSOCKET_URL" default:"wss://eventsub.wss.twitch.tv/ws"`
	WebhookCallbackURL   string `env:"WEBHOOK_CALLBACK_URL"`
	WebhookSecret        string `env:"WEBHOOK_SECRET"`
	ChatMessagesPer30s   int    `env:"CHAT_MESSAGES_PER_30S" default:"20"`

	IgnoreChatMessagesFrom string        `env:"IGNORE_CHAT_MESSAGES_FROM"`
	AcceptWhispersFrom     string        `env:"ACCEPT_WHISPERS_FROM"`
	RandomResponseChance   float64       `env:"RANDOM_RESPONSE_CHANCE" default:"0.9"`
	HistoryCapacity        int           `env:"HISTORY_CAPACITY" default:"5"`
	HistoryMaxAge          time.Duration `env:"HISTORY_MAX_AGE" default:"5m"`
	DiscordJoinLink        string        `env:"DISCORD_JOIN_LINK"`

	TTSRewardID         string `env:"TTS_REWARD_ID" default:"be354cd0-f485-4c3a-87c0-eed2a354c6b9"`
	TTSPlaceholderToken string `env:"TTS_PLACEHOLDER_TOKEN"`
	TTSVoice            string `env:"TTS_VOICE" default:"nova"`
	MatchVoice          string `env:"MATCH_VOICE" default:"echo"`
	AudioOutputPath     string `env:"AUDIO_OUTPUT_PATH" default:"audio"`
	AudioPlayerCommand  string `env:"AUDIO_PLAYER_COMMAND"`

	OpenAIAPIKey          string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL         string `env:"OPENAI_BASE_URL"`
	OpenAIModel           string `env:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIModerationModel string `env:"OPENAI_MODERATION_MODEL" default:"omni-moderation-latest"`
	OpenAITTSModel        string `env:"OPENAI_TTS_MODEL" default:"tts-1"`
	BotSystemPrompt       string `env:"BOT_SYSTEM_PROMPT"`
	MatchSystemPrompt     string `env:"MATCH_SYSTEM_PROMPT"`

	PubgAPIKey       string        `env:"PUBG_API_KEY"`
	PubgBaseURL      string        `env:"PUBG_BASE_URL" default:"https://api.pubg.com"`
	PubgPlatform     string        `env:"PUBG_PLATFORM" default:"steam"`
	PubgPlayerName   string        `env:"PUBG_PLAYER_NAME"`
	PubgPollInterval time.Duration `env:"PUBG_POLL_INTERVAL" default:"10s"`

	DatabaseURL       string `env:"DATABASE_URL"`
	ArchiveSQLitePath string `env:"ARCHIVE_SQLITE_PATH"`
	RedisURL          string `env:"REDIS_URL"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IgnoredUsernames lists chatters the bot never answers.
func (c *Config) IgnoredUsernames() []string { return splitList(c.IgnoreChatMessagesFrom) }

// WhisperAllowList lists users whose whispers are acted upon.
func (c *Config) WhisperAllowList() []string { return splitList(c.AcceptWhispersFrom) }

func (c *Config) PubgEnabled() bool { return c.PubgAPIKey != "" }

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validate(cfg *Config) error {
	required := map[string]string{
		"TWITCH_CLIENT_ID":         cfg.TwitchClientID,
		"TWITCH_CLIENT_SECRET":     cfg.TwitchClientSecret,
		"TWITCH_USER_ACCESS_TOKEN": cfg.TwitchUserAccessToken,
		"BOT_USERNAME":             cfg.BotUsername,
		"BOT_USER_ID":              cfg.BotUserID,
		"HOME_CHANNEL":             cfg.HomeChannel,
		"OPENAI_API_KEY":           cfg.OpenAIAPIKey,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	switch cfg.EventSubTransport {
	case TransportWebSocket:
	case TransportConduit:
		if cfg.WebhookCallbackURL == "" {
			return errors.New("WEBHOOK_CALLBACK_URL is required for the conduit transport")
		}
		if len(cfg.WebhookSecret) < 10 || len(cfg.WebhookSecret) > 100 {
			return errors.New("WEBHOOK_SECRET must be between 10 and 100 characters")
		}
	default:
		return fmt.Errorf("EVENTSUB_TRANSPORT must be %q or %q, got %q", TransportWebSocket, TransportConduit, cfg.EventSubTransport)
	}

	if cfg.RandomResponseChance < 0 || cfg.RandomResponseChance > 1 {
		return fmt.Errorf("RANDOM_RESPONSE_CHANCE must be within [0, 1], got %v", cfg.RandomResponseChance)
	}
	if cfg.HistoryCapacity < 0 {
		return fmt.Errorf("HISTORY_CAPACITY must not be negative, got %d", cfg.HistoryCapacity)
	}
	if cfg.ChatMessagesPer30s < 1 {
		return fmt.Errorf("CHAT_MESSAGES_PER_30S must be positive, got %d", cfg.ChatMessagesPer30s)
	}
	if cfg.PubgPlayerName != "" && cfg.PubgAPIKey == "" {
		return errors.New("PUBG_PLAYER_NAME requires PUBG_API_KEY")
	}
	if cfg.PubgPollInterval <= 0 {
		return errors.New("PUBG_POLL_INTERVAL must be positive")
	}

	return nil
}
