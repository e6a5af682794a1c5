package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Env           string   `env:"APP_ENV" envDefault:"dev"`
	Port          int      `env:"PORT" envDefault:"8080"`
	UserStore     string   `env:"USER_STORE" envDefault:"postgres"`
	RunMigrations bool     `env:"RUN_MIGRATIONS" envDefault:"true"`
	OTelEndpoint  string   `env:"OTEL_ENDPOINT"`
	OTelSample    float64  `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envSeparator:","`

	DB        DB
	Auth      Auth
	Providers Providers
	Redis     Redis
	Admin     Admin
}

type DB struct {
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"127.0.0.1"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"authgate"`
	Password string `env:"DB_PASSWORD" envDefault:"authgate"`
	Name     string `env:"DB_NAME" envDefault:"authgate"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"5"`
}

type Auth struct {
	Secret     string        `env:"AUTH_SECRET,required,notEmpty"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	// BaseURL is the public origin used to build provider callback URLs.
	BaseURL string `env:"AUTH_URL" envDefault:"http://localhost:8080"`
}

type OAuthClient struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

func (c OAuthClient) Enabled() bool { return c.ClientID != "" }

type Providers struct {
	Google   OAuthClient `envPrefix:"GOOGLE_"`
	Facebook OAuthClient `envPrefix:"FACEBOOK_"`
	Line     OAuthClient `envPrefix:"LINE_"`
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type Admin struct {
	Email    string `env:"ADMIN_EMAIL"`
	Password string `env:"ADMIN_PASSWORD"`
	Name     string `env:"ADMIN_NAME" envDefault:"Administrator"`
}

// Load reads a .env file when one exists, then the environment. A missing
// signing secret, or a provider with a client id but no secret, is an error
// the caller should treat as fatal.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Auth.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}

	if _, err := url.ParseRequestURI(c.Auth.BaseURL); err != nil {
		return fmt.Errorf("AUTH_URL: %w", err)
	}

	switch c.UserStore {
	case "postgres", "memory":
	default:
		return fmt.Errorf("USER_STORE must be postgres or memory, got %q", c.UserStore)
	}

	for name, client := range c.Providers.All() {
		if client.Enabled() && client.ClientSecret == "" {
			return fmt.Errorf("%s: client id is set but client secret is missing", name)
		}
	}

	return nil
}

// All returns every provider keyed by its route name.
func (p Providers) All() map[string]OAuthClient {
	return map[string]OAuthClient{
		"google":   p.Google,
		"facebook": p.Facebook,
		"line":     p.Line,
	}
}

func (d DB) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

func (c Config) IsProd() bool { return c.Env == "prod" }
