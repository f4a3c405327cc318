package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config aggregates every setting supplied at process start.
type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Realtime RealtimeConfig
	CORS     CORSConfig
	Store    StoreConfig
	Log      LogConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.Provider.APIKey = strings.TrimSpace(cfg.Provider.APIKey)
	cfg.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Provider.BaseURL), "/")
	if cfg.Provider.BaseURL == "" {
		return nil, fmt.Errorf("OPENAI_BASE_URL must not be empty")
	}
	if cfg.Provider.Timeout < 0 {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT value %s", cfg.Provider.Timeout)
	}

	cfg.CORS.AllowedOrigins = trimAll(cfg.CORS.AllowedOrigins)
	cfg.Realtime.ICEServers = trimAll(cfg.Realtime.ICEServers)
	if strings.TrimSpace(cfg.Realtime.DataChannel) == "" {
		return nil, fmt.Errorf("REALTIME_DATA_CHANNEL must not be empty")
	}

	return cfg, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"3000"`
	Addr string
}

// ProviderConfig holds the speech provider credential and endpoint.
type ProviderConfig struct {
	APIKey  string        `env:"OPENAI_API_KEY"`
	BaseURL string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	Timeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
}

// Enabled reports whether a provider secret was configured.
func (c ProviderConfig) Enabled() bool {
	return c.APIKey != ""
}

// RealtimeConfig drives session negotiation.
type RealtimeConfig struct {
	DefaultModel string        `env:"REALTIME_DEFAULT_MODEL" envDefault:"gpt-4o-realtime-preview"`
	DefaultVoice string        `env:"REALTIME_DEFAULT_VOICE" envDefault:"alloy"`
	DataChannel  string        `env:"REALTIME_DATA_CHANNEL" envDefault:"oai-events"`
	ICEServers   []string      `env:"WEBRTC_ICE_SERVERS" envDefault:"stun:stun.l.google.com:19302" envSeparator:","`
	IdleTimeout  time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"0s"`
	ReapInterval time.Duration `env:"SESSION_REAP_INTERVAL" envDefault:"30s"`
}

// CORSConfig lists the origins allowed to call the relay.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:8000,http://127.0.0.1:8000,http://[::1]:8000" envSeparator:","`
}

// StoreConfig controls the optional conversation expiry policy.
type StoreConfig struct {
	ConversationTTL time.Duration `env:"CONVERSATION_TTL" envDefault:"0s"`
	SweepInterval   time.Duration `env:"CONVERSATION_SWEEP_INTERVAL" envDefault:"1m"`
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// normalizeAddr accepts either a bare port or a full listen address.
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "3000"
	}

	if strings.Contains(port, ":") {
		// ":3000" or "127.0.0.1:3000"
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
