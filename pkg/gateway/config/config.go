// Package config loads the relay server configuration from defaults, an
// optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned by Load when no Gemini API key is configured.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is required")

type Config struct {
	Addr string

	GeminiAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string
	MaxOutputTokens int
	ProviderTimeout time.Duration

	// Replaces the built-in Revolt Motors instruction when non-empty.
	SystemInstruction string

	// Browser origins allowed to open the relay websocket. Requests without
	// an Origin header are always allowed.
	AllowedOrigins map[string]struct{}

	WSPath              string
	WSPingInterval      time.Duration
	WSWriteTimeout      time.Duration
	WSReadTimeout       time.Duration
	WSMaxMessageBytes   int64
	WSOutboundQueueSize int

	// Zero disables the corresponding limit.
	LimitConnectionsPerClient int
	LimitMessagesPerSecond    float64
	LimitMessageBurst         int

	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	LogLevel  string
	LogFormat string
}

// SetDefaults registers every server key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_grace_period", 10*time.Second)
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("gemini.max_output_tokens", 500)
	v.SetDefault("gemini.timeout", 30*time.Second)
	v.SetDefault("chat.system_instruction_file", "")
	v.SetDefault("cors.allowed_origins", "http://localhost:5173")
	v.SetDefault("ws.path", "/ws")
	v.SetDefault("ws.ping_interval", 20*time.Second)
	v.SetDefault("ws.write_timeout", 5*time.Second)
	v.SetDefault("ws.read_timeout", 0)
	v.SetDefault("ws.max_message_bytes", 64*1024)
	v.SetDefault("ws.outbound_queue_size", 32)
	v.SetDefault("limits.connections_per_client", 4)
	v.SetDefault("limits.messages_per_second", 1.0)
	v.SetDefault("limits.message_burst", 5)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load reads configuration into cfg. Keys map to REVOLT_* environment
// variables ("ws.ping_interval" is REVOLT_WS_PING_INTERVAL); the API key and
// port also honour GEMINI_API_KEY and PORT. A nil v uses a fresh viper
// instance; callers pass their own to bind command-line flags.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix("REVOLT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY", "REVOLT_GEMINI_API_KEY")
	_ = v.BindEnv("server.port", "PORT", "REVOLT_SERVER_PORT")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	port := v.GetInt("server.port")
	cfg := Config{
		Addr:                net.JoinHostPort(strings.TrimSpace(v.GetString("server.host")), strconv.Itoa(port)),
		GeminiAPIKey:        strings.TrimSpace(v.GetString("gemini.api_key")),
		GeminiModel:         strings.TrimSpace(v.GetString("gemini.model")),
		GeminiBaseURL:       strings.TrimSpace(v.GetString("gemini.base_url")),
		MaxOutputTokens:     v.GetInt("gemini.max_output_tokens"),
		ProviderTimeout:     v.GetDuration("gemini.timeout"),
		AllowedOrigins:      make(map[string]struct{}),
		WSPath:              strings.TrimSpace(v.GetString("ws.path")),
		WSPingInterval:      v.GetDuration("ws.ping_interval"),
		WSWriteTimeout:      v.GetDuration("ws.write_timeout"),
		WSReadTimeout:       v.GetDuration("ws.read_timeout"),
		WSMaxMessageBytes:   v.GetInt64("ws.max_message_bytes"),
		WSOutboundQueueSize: v.GetInt("ws.outbound_queue_size"),

		LimitConnectionsPerClient: v.GetInt("limits.connections_per_client"),
		LimitMessagesPerSecond:    v.GetFloat64("limits.messages_per_second"),
		LimitMessageBurst:         v.GetInt("limits.message_burst"),

		ReadHeaderTimeout:   v.GetDuration("server.read_header_timeout"),
		ShutdownGracePeriod: v.GetDuration("server.shutdown_grace_period"),
		LogLevel:            strings.ToLower(strings.TrimSpace(v.GetString("logging.level"))),
		LogFormat:           strings.ToLower(strings.TrimSpace(v.GetString("logging.format"))),
	}

	for _, origin := range stringList(v.Get("cors.allowed_origins")) {
		cfg.AllowedOrigins[origin] = struct{}{}
	}

	if path := strings.TrimSpace(v.GetString("chat.system_instruction_file")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading system instruction: %w", err)
		}
		cfg.SystemInstruction = strings.TrimSpace(string(raw))
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, ErrMissingAPIKey
	}
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("PORT must be between 1 and 65535")
	}
	if cfg.GeminiModel == "" {
		return Config{}, fmt.Errorf("REVOLT_GEMINI_MODEL must not be empty")
	}
	if cfg.MaxOutputTokens <= 0 {
		return Config{}, fmt.Errorf("REVOLT_GEMINI_MAX_OUTPUT_TOKENS must be > 0")
	}
	if cfg.ProviderTimeout <= 0 {
		return Config{}, fmt.Errorf("REVOLT_GEMINI_TIMEOUT must be > 0")
	}
	if !strings.HasPrefix(cfg.WSPath, "/") {
		return Config{}, fmt.Errorf("REVOLT_WS_PATH must start with /")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("REVOLT_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("REVOLT_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("REVOLT_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("REVOLT_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSOutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("REVOLT_WS_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.LimitConnectionsPerClient < 0 {
		return Config{}, fmt.Errorf("REVOLT_LIMITS_CONNECTIONS_PER_CLIENT must be >= 0")
	}
	if cfg.LimitMessagesPerSecond < 0 {
		return Config{}, fmt.Errorf("REVOLT_LIMITS_MESSAGES_PER_SECOND must be >= 0")
	}
	if cfg.LimitMessageBurst < 0 {
		return Config{}, fmt.Errorf("REVOLT_LIMITS_MESSAGE_BURST must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("REVOLT_SERVER_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("REVOLT_SERVER_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("REVOLT_LOGGING_FORMAT must be one of text|json")
	}

	return cfg, nil
}

// NewLogger builds the process logger from the logging settings.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// stringList accepts a CSV string from the environment or a YAML list.
func stringList(raw any) []string {
	switch v := raw.(type) {
	case string:
		return splitCSV(v)
	case []string:
		return splitCSV(strings.Join(v, ","))
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
		return splitCSV(strings.Join(parts, ","))
	default:
		return nil
	}
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
