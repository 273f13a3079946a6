package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"go-chatbot/internal/logging"
)

// API configures the chat API gateway.
type API struct {
	Addr              string        `env:"API_ADDR,default=:1000"`
	DatabaseDSN       string        `env:"DB_DSN,required"`
	RedisAddr         string        `env:"REDIS_ADDR,default=localhost:6379"`
	ChatAuthURL       string        `env:"CHAT_AUTH_URL,default=http://chatauth:1001"`
	AuthTimeout       time.Duration `env:"AUTH_TIMEOUT,default=10s"`
	PublishAckTimeout time.Duration `env:"PUBLISH_ACK_TIMEOUT,default=10s"`
	ConsumerGroup     string        `env:"CONSUMER_GROUP,default=ai_consumer_group"`
	ConsumerName      string        `env:"CONSUMER_NAME"`
	ConsumerBlock     time.Duration `env:"CONSUMER_BLOCK,default=2s"`
	StreamMaxLen      int64         `env:"STREAM_MAX_LEN,default=10000"`
	Log               logging.Config
}

// Auth configures the identity service.
type Auth struct {
	Addr               string        `env:"AUTH_ADDR,default=:1001"`
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID,required"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET,required"`
	// RedirectURI is the frontend base URL; Google redirects to its /Login page.
	RedirectURI        string        `env:"REDIRECT_URI,required"`
	GoogleIssuer       string        `env:"GOOGLE_ISSUER,default=https://accounts.google.com"`
	IDTokenClockSkew   time.Duration `env:"ID_TOKEN_CLOCK_SKEW,default=30s"`
	EncryptionKey      string        `env:"ENCRYPTION_FIXED_KEY,required"`
	SigningSecret      string        `env:"SESSION_SIGNING_SECRET"`
	SessionTTL         time.Duration `env:"SESSION_TTL,default=60m"`
	Log                logging.Config
}

// LoadAPI reads .env when present, then the environment.
func LoadAPI() (*API, error) {
	_ = godotenv.Load()

	var cfg API
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("load api config: %w", err)
	}
	if cfg.ConsumerName == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "chatapi"
		}
		cfg.ConsumerName = host
	}
	return &cfg, nil
}

func LoadAuth() (*Auth, error) {
	_ = godotenv.Load()

	var cfg Auth
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if cfg.SigningSecret == "" {
		cfg.SigningSecret = cfg.GoogleClientSecret
	}
	return &cfg, nil
}

// LoginRedirectURL is the redirect target sent with the code exchange.
func (c *Auth) LoginRedirectURL() string {
	return strings.TrimRight(c.RedirectURI, "/") + "/Login"
}
