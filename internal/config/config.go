package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ScraperConfig struct {
	UserAgent string `yaml:"userAgent"`
	TimeoutMs int    `yaml:"timeoutMs"`
	// GenericProvider serves URLs with no site-specific scraper:
	// scraperapi|firecrawl|browser.
	GenericProvider string `yaml:"genericProvider"`
	// InteractiveProvider serves gallery scrapes that need post-load
	// actions: firecrawl|browser.
	InteractiveProvider string `yaml:"interactiveProvider"`
	RatePerMinute       int    `yaml:"ratePerMinute"`
}

type ScraperAPIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Render  bool   `yaml:"render"`
	Country string `yaml:"country"`
}

type FirecrawlConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	WaitMs  int    `yaml:"waitMs"`
}

// ApifyActorConfig binds an Apify actor to the hostnames it can scrape.
type ApifyActorConfig struct {
	ID    string   `yaml:"id"`
	Actor string   `yaml:"actor"`
	Hosts []string `yaml:"hosts"`
}

type ApifyConfig struct {
	Token   string             `yaml:"token"`
	BaseURL string             `yaml:"baseURL"`
	Actors  []ApifyActorConfig `yaml:"actors"`
}

type ProvidersConfig struct {
	ScraperAPI ScraperAPIConfig `yaml:"scraperapi"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl"`
	Apify      ApifyConfig      `yaml:"apify"`
}

type RobotsConfig struct {
	Respect bool `yaml:"respect"`
}

type RodConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BrowserURL string `yaml:"browserURL"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type QueueConfig struct {
	// Backend is memory|redis.
	Backend   string `yaml:"backend"`
	KeyPrefix string `yaml:"keyPrefix"`
}

type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"defaultPerMinute"`
}

type WorkerConfig struct {
	PollIntervalMs int `yaml:"pollIntervalMs"`
	// TriggerURL is where API-only nodes POST to wake a worker node.
	TriggerURL    string `yaml:"triggerURL"`
	InternalToken string `yaml:"internalToken"`
	StuckAfterMs  int    `yaml:"stuckAfterMs"`
	SweepLimit    int    `yaml:"sweepLimit"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type GoogleLLMConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type LLMConfig struct {
	DefaultProvider string          `yaml:"defaultProvider"`
	TimeoutMs       int             `yaml:"timeoutMs"`
	MaxTokens       int             `yaml:"maxTokens"`
	OpenAI          OpenAIConfig    `yaml:"openai"`
	Anthropic       AnthropicConfig `yaml:"anthropic"`
	Google          GoogleLLMConfig `yaml:"google"`
}

// RetentionConfig controls deletion of old, unclaimed previews.
type RetentionConfig struct {
	Enabled                bool `yaml:"enabled"`
	CleanupIntervalMinutes int  `yaml:"cleanupIntervalMinutes"`
	PreviewDays            int  `yaml:"previewDays"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Providers ProvidersConfig `yaml:"providers"`
	Robots    RobotsConfig    `yaml:"robots"`
	Rod       RodConfig       `yaml:"rod"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Worker    WorkerConfig    `yaml:"worker"`
	LLM       LLMConfig       `yaml:"llm"`
	Retention RetentionConfig `yaml:"retention"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	return &cfg
}

// ApplyEnv overrides secrets and connection strings from the environment
// so they never have to live in the YAML file.
func ApplyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&cfg.Providers.ScraperAPI.APIKey, "SCRAPERAPI_API_KEY")
	set(&cfg.Providers.Firecrawl.APIKey, "FIRECRAWL_API_KEY")
	set(&cfg.Providers.Apify.Token, "APIFY_TOKEN")
	set(&cfg.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&cfg.LLM.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	set(&cfg.LLM.Google.APIKey, "GOOGLE_API_KEY")
	set(&cfg.Database.DSN, "DATABASE_DSN")
	set(&cfg.Redis.URL, "REDIS_URL")
	set(&cfg.Worker.InternalToken, "INTERNAL_TOKEN")
}

// ApplyDefaults fills zero values with working defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Scraper.TimeoutMs <= 0 {
		cfg.Scraper.TimeoutMs = 60000
	}
	if cfg.Scraper.GenericProvider == "" {
		cfg.Scraper.GenericProvider = "scraperapi"
	}
	if cfg.Scraper.InteractiveProvider == "" {
		cfg.Scraper.InteractiveProvider = "firecrawl"
	}
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "memory"
	}
	if cfg.Queue.KeyPrefix == "" {
		cfg.Queue.KeyPrefix = "ottie:previews"
	}
	if cfg.Worker.PollIntervalMs <= 0 {
		cfg.Worker.PollIntervalMs = 5000
	}
	if cfg.Worker.StuckAfterMs <= 0 {
		cfg.Worker.StuckAfterMs = 15 * 60 * 1000
	}
	if cfg.Worker.SweepLimit <= 0 {
		cfg.Worker.SweepLimit = 50
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "openai"
	}
	if cfg.LLM.TimeoutMs <= 0 {
		cfg.LLM.TimeoutMs = 120000
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.Retention.CleanupIntervalMinutes <= 0 {
		cfg.Retention.CleanupIntervalMinutes = 60
	}
}
