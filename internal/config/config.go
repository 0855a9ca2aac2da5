package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the settings of the chat log server.
type Config struct {
	Port               string   `env:"PORT" envDefault:"8080"`
	LogLevel           string   `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON            bool     `env:"LOG_JSON" envDefault:"true"`
	Store              string   `env:"STORE" envDefault:"mongo"`
	MongoURI           string   `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase      string   `env:"MONGODB_DATABASE" envDefault:"Portfolio"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	MaxBodyBytes       int64    `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	// ReadToken enables GET /api/chat/conversations/{sessionId} for the site owner.
	ReadToken          string   `env:"CHAT_READ_TOKEN"`
}

// RelayConfig holds the settings of the client-side relay.
type RelayConfig struct {
	ChatLogURL  string        `env:"CHAT_LOG_URL" envDefault:"http://localhost:8080"`
	StatePath   string        `env:"CHAT_STATE_PATH" envDefault:"chat-state.db"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	PollEvery   time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	ReloadDelay time.Duration `env:"RELOAD_DELAY" envDefault:"1s"`
	SinkMode    string        `env:"SINK_MODE" envDefault:"full"`
	SinkTimeout time.Duration `env:"SINK_TIMEOUT" envDefault:"10s"`
	DedupWindow time.Duration `env:"DEDUP_WINDOW" envDefault:"5s"`
	RenderFile  string        `env:"RENDER_FILE"`
}

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	SinkModeFull  = "full"
	SinkModeDelta = "delta"
)

// LoadEnv loads a .env file into the process environment. A missing file is not an error
// for the caller: the variables may already be set.
func LoadEnv() error {
	err := godotenv.Load(".env")
	if err != nil {
		log.Printf("No .env file loaded, continuing with environment variables: %v", err)
		return err
	}
	return nil
}

// Load parses the server configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	if cfg.Store != StoreMongo && cfg.Store != StoreMemory {
		return Config{}, fmt.Errorf("unsupported STORE %q", cfg.Store)
	}
	return cfg, nil
}

// LoadRelay parses the relay configuration from the environment.
func LoadRelay() (RelayConfig, error) {
	var cfg RelayConfig
	if err := env.Parse(&cfg); err != nil {
		return RelayConfig{}, fmt.Errorf("error parsing relay config: %w", err)
	}
	if cfg.SinkMode != SinkModeFull && cfg.SinkMode != SinkModeDelta {
		return RelayConfig{}, fmt.Errorf("unsupported SINK_MODE %q", cfg.SinkMode)
	}
	if cfg.PollEvery <= 0 {
		return RelayConfig{}, fmt.Errorf("POLL_INTERVAL must be positive")
	}
	return cfg, nil
}
