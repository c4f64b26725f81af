// Package config loads runtime configuration for the ingestion pipeline from
// the environment, following the same caarlos0/env + godotenv convention the
// rest of the stack uses.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable the harvester and orchestrator need.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"local"`

	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`

	HealthPort int `env:"HEALTH_PORT" envDefault:"8080"`

	// Worker pool
	WorkerCount int `env:"WORKER_COUNT" envDefault:"5"`

	// HTTP client / rate limiting
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	HTTPRatePerSec   float64       `env:"HTTP_RATE_PER_SEC" envDefault:"2"`
	HTTPUserAgent    string        `env:"HTTP_USER_AGENT" envDefault:"faculty-harvest/1.0"`
	HTTPMaxRedirects int           `env:"HTTP_MAX_REDIRECTS" envDefault:"10"`

	// Headless browser rendering
	BrowserEnabled bool          `env:"BROWSER_ENABLED" envDefault:"true"`
	BrowserTimeout time.Duration `env:"BROWSER_TIMEOUT" envDefault:"20s"`

	// Harvester traversal limit
	MaxTraversalPages int `env:"MAX_TRAVERSAL_PAGES" envDefault:"50"`

	// Deep email scrape fallback (opt-in, off by default)
	DeepEmailScrape bool `env:"DEEP_EMAIL_SCRAPE" envDefault:"false"`

	// Bibliographic API client
	BiblioBaseURL   string  `env:"BIBLIO_BASE_URL" envDefault:"https://api.semanticscholar.org/graph/v1"`
	BiblioAPIKey    string  `env:"BIBLIO_API_KEY"`
	BiblioRateLimit float64 `env:"BIBLIO_RATE_LIMIT" envDefault:"1"`
	BiblioMaxPapers int     `env:"BIBLIO_MAX_PAPERS" envDefault:"30"`

	// Embedding provider
	EmbeddingProvider   string `env:"EMBEDDING_PROVIDER" envDefault:"openai"`
	EmbeddingDimensions int    `env:"EMBEDDING_DIMENSIONS" envDefault:"1536"`
	OpenAIAPIKey        string `env:"OPENAI_API_KEY"`
	OpenAIModel         string `env:"OPENAI_MODEL" envDefault:"text-embedding-3-small"`
	CohereAPIKey        string `env:"COHERE_API_KEY"`

	// Retry / backoff
	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryInitialWait time.Duration `env:"RETRY_INITIAL_WAIT" envDefault:"200ms"`
}

// Load reads a local .env file if present, then parses environment
// variables into a Config. Missing .env is not an error (production runs
// set real environment variables).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
