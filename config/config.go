package config

import (
	"errors"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds every setting the dashboard services read from the environment.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" env-default:":8080"`
	LogLevel   string `env:"LOG_LEVEL" env-default:"info"`
	Debug      bool   `env:"DEBUG" env-default:"false"`

	Auth     AuthConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Todoist  TodoistConfig
	AI       AIConfig
}

type AuthConfig struct {
	Username     string        `env:"AUTH_USERNAME"`
	Password     string        `env:"AUTH_PASSWORD"`
	PasswordHash string        `env:"AUTH_PASSWORD_HASH"`
	Secret       string        `env:"SESSION_SECRET"`
	SessionTTL   time.Duration `env:"SESSION_TTL" env-default:"24h"`
	JWKSURL      string        `env:"AUTH_JWKS_URL"`
	Audience     string        `env:"AUTH_AUDIENCE"`
	Issuer       string        `env:"AUTH_ISSUER"`
	JWKSCacheTTL time.Duration `env:"JWKS_CACHE_TTL" env-default:"15m"`
}

type StorageConfig struct {
	ConnectionString string `env:"STORAGE_CONNECTION_STRING"`
	DashboardTable   string `env:"DASHBOARD_TABLE" env-default:"dashboards"`
	EventsQueue      string `env:"TODOIST_EVENTS_QUEUE" env-default:"todoist-events"`
}

type RedisConfig struct {
	ConnectionString string        `env:"REDIS_CONNECTION_STRING"`
	CacheTTL         time.Duration `env:"CACHE_TTL" env-default:"10m"`
	UpdatesChannel   string        `env:"UPDATES_CHANNEL" env-default:"dashboard-updates"`
}

type PostgresConfig struct {
	URL            string        `env:"POSTGRES_URL"`
	ConnectTimeout time.Duration `env:"POSTGRES_CONNECT_TIMEOUT" env-default:"10s"`
	PingTimeout    time.Duration `env:"POSTGRES_PING_TIMEOUT" env-default:"10s"`
}

type TodoistConfig struct {
	APIToken      string        `env:"TODOIST_API_TOKEN"`
	WebhookSecret string        `env:"TODOIST_WEBHOOK_SECRET"`
	BaseURL       string        `env:"TODOIST_BASE_URL" env-default:"https://api.todoist.com/rest/v2"`
	Timeout       time.Duration `env:"TODOIST_TIMEOUT" env-default:"15s"`
}

type AIConfig struct {
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	ClosedMode   bool   `env:"CLOSED_AI_MODE" env-default:"false"`
	LocalBaseURL string `env:"LOCAL_AI_BASE_URL"`
	LocalModel   string `env:"LOCAL_AI_MODEL" env-default:"llama3.2"`
	LocalAPIKey  string `env:"LOCAL_AI_API_KEY"`
}

var errMissingCredentials = errors.New("AUTH_USERNAME and AUTH_PASSWORD or AUTH_PASSWORD_HASH must be set")

// Load reads optional dotenv files and then the process environment.
// Values already present in the environment win over the files.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, err
		}
	}

	cfg := new(Config)
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the HTTP server cannot start without.
func (c *Config) Validate() error {
	if c.Auth.Username == "" || (c.Auth.Password == "" && c.Auth.PasswordHash == "") {
		return errMissingCredentials
	}
	if c.Auth.Secret == "" && c.Auth.JWKSURL == "" {
		return errors.New("SESSION_SECRET must be set")
	}
	if c.Storage.ConnectionString == "" {
		return errors.New("missing storage config")
	}
	return nil
}

// UseLocalAI reports whether requests go to a self-hosted OpenAI compatible endpoint.
func (c AIConfig) UseLocalAI() bool {
	return c.LocalBaseURL != "" && !c.ClosedMode
}
