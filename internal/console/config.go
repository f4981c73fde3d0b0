package console

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/client/conversation"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/client/relay"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice"
)

type Config struct {
	ServerURL        string
	Origin           string
	ReconnectDelay   time.Duration
	Language         string
	BaselineLanguage string
	ResponseTimeout  time.Duration
	Voices           []voice.Voice
	WordDuration     time.Duration

	// Dialer overrides the websocket dialer; nil uses relay.WebsocketDialer.
	Dialer relay.Dialer
}

// SetDefaults registers the console keys with their defaults.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("console.server_url", "ws://localhost:3000/ws")
	v.SetDefault("console.origin", "")
	v.SetDefault("console.reconnect_delay", relay.DefaultReconnectDelay)
	v.SetDefault("console.language", voice.BaselineLanguage)
	v.SetDefault("console.baseline_language", voice.BaselineLanguage)
	v.SetDefault("console.response_timeout", conversation.DefaultResponseTimeout)
	v.SetDefault("console.voices", DefaultVoices)
	v.SetDefault("console.word_duration", 120*time.Millisecond)
}

// LoadConfig reads console settings; keys map to REVOLT_CONSOLE_* variables.
func LoadConfig(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix("REVOLT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		ServerURL:        strings.TrimSpace(v.GetString("console.server_url")),
		Origin:           strings.TrimSpace(v.GetString("console.origin")),
		ReconnectDelay:   v.GetDuration("console.reconnect_delay"),
		Language:         strings.TrimSpace(v.GetString("console.language")),
		BaselineLanguage: strings.TrimSpace(v.GetString("console.baseline_language")),
		ResponseTimeout:  v.GetDuration("console.response_timeout"),
		WordDuration:     v.GetDuration("console.word_duration"),
	}

	u, err := url.Parse(cfg.ServerURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return Config{}, fmt.Errorf("REVOLT_CONSOLE_SERVER_URL must be a ws:// or wss:// url")
	}
	if cfg.ReconnectDelay <= 0 {
		return Config{}, fmt.Errorf("REVOLT_CONSOLE_RECONNECT_DELAY must be > 0")
	}
	if cfg.ResponseTimeout <= 0 {
		return Config{}, fmt.Errorf("REVOLT_CONSOLE_RESPONSE_TIMEOUT must be > 0")
	}
	if cfg.WordDuration < 0 {
		return Config{}, fmt.Errorf("REVOLT_CONSOLE_WORD_DURATION must be >= 0")
	}
	if cfg.BaselineLanguage == "" {
		return Config{}, fmt.Errorf("REVOLT_CONSOLE_BASELINE_LANGUAGE must not be empty")
	}
	voices, err := ParseVoices(v.GetString("console.voices"))
	if err != nil {
		return Config{}, fmt.Errorf("REVOLT_CONSOLE_VOICES: %w", err)
	}
	cfg.Voices = voices
	return cfg, nil
}
