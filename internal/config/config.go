package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	SitesFile string `envconfig:"SITES_FILE" default:"sites.yaml"`

	URLsToScrape     []string `envconfig:"URLS_TO_SCRAPE" default:"https://www.promptingguide.ai/,https://lilianweng.github.io/posts/2023-06-23-agent/,https://en.wikipedia.org/wiki/Large_language_model,https://en.wikipedia.org/wiki/Web_scraping,https://www.wired.com/category/science/,https://docs.docker.com/get-started/,https://www.freecodecamp.org/news/what-is-web-scraping/,https://github.blog/2023-11-08-universe-2023-copilot-transforms-github-into-the-ai-powered-developer-platform/,https://www.theverge.com/tech,https://www.joelonsoftware.com/2000/08/09/the-joel-test-12-steps-to-better-code/"`
	ChunkSize        int      `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap     int      `envconfig:"CHUNK_OVERLAP" default:"200"`
	MinChunkLength   int      `envconfig:"MIN_CHUNK_LENGTH" default:"50"`
	MinContentLength int      `envconfig:"MIN_CONTENT_LENGTH" default:"100"`
	TopK             int      `envconfig:"TOP_K" default:"3"`
	TestQueries      []string `envconfig:"TEST_QUERIES" default:"What is web scraping?,How do large language models work?,What are coding best practices?,Tell me about AI agents"`
	TestQueryK       int      `envconfig:"TEST_QUERY_K" default:"2"`

	Concurrency         int           `envconfig:"CONCURRENCY" default:"4"`
	UserAgent           string        `envconfig:"USER_AGENT" default:"webrag/1.0 (+https://github.com/kirillkom/webrag)"`
	RobotsFailOpen      bool          `envconfig:"ROBOTS_FAIL_OPEN" default:"true"`
	DefaultCrawlDelay   time.Duration `envconfig:"DEFAULT_CRAWL_DELAY" default:"1s"`
	MaxCrawlDelay       time.Duration `envconfig:"MAX_CRAWL_DELAY" default:"10s"`
	FetchTimeout        time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	FetchMaxAttempts    int           `envconfig:"FETCH_MAX_ATTEMPTS" default:"3"`
	FetchInitialBackoff time.Duration `envconfig:"FETCH_INITIAL_BACKOFF" default:"1s"`
	FetchMaxBackoff     time.Duration `envconfig:"FETCH_MAX_BACKOFF" default:"8s"`
	MaxPageBytes        int64         `envconfig:"MAX_PAGE_BYTES" default:"10485760"`
	RenderURL           string        `envconfig:"RENDER_URL"`

	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"ollama"`
	EmbeddingModel    string `envconfig:"EMBEDDING_MODEL" default:"nomic-embed-text"`
	EmbedBatchSize    int    `envconfig:"EMBED_BATCH_SIZE" default:"32"`
	OllamaURL         string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `envconfig:"OPENAI_BASE_URL"`
	HashingDimensions int    `envconfig:"HASHING_DIMENSIONS" default:"384"`

	VectorBackend       string `envconfig:"VECTOR_BACKEND" default:"file"`
	VectorStorePath     string `envconfig:"VECTOR_STORE_PATH" default:"data/vector_store"`
	QdrantURL           string `envconfig:"QDRANT_URL" default:"http://localhost:6333"`
	QdrantCollection    string `envconfig:"QDRANT_COLLECTION" default:"webrag_chunks"`
	ModelMismatchPolicy string `envconfig:"MODEL_MISMATCH_POLICY" default:"refuse"`

	OutputDir string `envconfig:"OUTPUT_DIR" default:"data/processed"`

	// Optional integrations; empty disables them.
	PostgresDSN string `envconfig:"POSTGRES_DSN"`
	NATSURL     string `envconfig:"NATS_URL"`
	NATSSubject string `envconfig:"NATS_SUBJECT" default:"webrag.store.flushed"`

	MetricsAddr       string  `envconfig:"METRICS_ADDR"`
	HTTPAddr          string  `envconfig:"HTTP_ADDR" default:":8080"`
	APIRateLimitRPS   float64 `envconfig:"API_RATE_LIMIT_RPS" default:"20"`
	APIRateLimitBurst int     `envconfig:"API_RATE_LIMIT_BURST" default:"40"`
}

// siteFile is the YAML crawl definition. Explicitly set env vars win over it.
type siteFile struct {
	URLsToScrape   []string `yaml:"urlsToScrape"`
	ChunkSize      *int     `yaml:"chunkSize"`
	ChunkOverlap   *int     `yaml:"chunkOverlap"`
	EmbeddingModel *string  `yaml:"embeddingModel"`
	MinChunkLength *int     `yaml:"minChunkLength"`
	TopK           *int     `yaml:"topK"`
}

func Load() (Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.applySitesFile(cfg.SitesFile); err != nil {
		return Config{}, err
	}
	cfg.URLsToScrape = cleanList(cfg.URLsToScrape)
	cfg.TestQueries = cleanList(cfg.TestQueries)
	return cfg, nil
}

func (c *Config) applySitesFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read sites file: %w", err)
	}

	var file siteFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("%w: parse sites file %s: %v", ErrInvalidConfig, path, err)
	}

	if len(file.URLsToScrape) > 0 && !envSet("URLS_TO_SCRAPE") {
		c.URLsToScrape = file.URLsToScrape
	}
	if file.ChunkSize != nil && !envSet("CHUNK_SIZE") {
		c.ChunkSize = *file.ChunkSize
	}
	if file.ChunkOverlap != nil && !envSet("CHUNK_OVERLAP") {
		c.ChunkOverlap = *file.ChunkOverlap
	}
	if file.EmbeddingModel != nil && !envSet("EMBEDDING_MODEL") {
		c.EmbeddingModel = *file.EmbeddingModel
	}
	if file.MinChunkLength != nil && !envSet("MIN_CHUNK_LENGTH") {
		c.MinChunkLength = *file.MinChunkLength
	}
	if file.TopK != nil && !envSet("TOP_K") {
		c.TopK = *file.TopK
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalidConfig)
	case c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize:
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalidConfig)
	case c.MinChunkLength < 0:
		return fmt.Errorf("%w: MIN_CHUNK_LENGTH must not be negative", ErrInvalidConfig)
	case c.TopK < 0:
		return fmt.Errorf("%w: TOP_K must not be negative", ErrInvalidConfig)
	case c.Concurrency <= 0:
		return fmt.Errorf("%w: CONCURRENCY must be positive", ErrInvalidConfig)
	case strings.TrimSpace(c.EmbeddingModel) == "":
		return fmt.Errorf("%w: EMBEDDING_MODEL is required", ErrInvalidConfig)
	}

	switch c.EmbeddingProvider {
	case "ollama", "openai", "hashing":
	default:
		return fmt.Errorf("%w: unknown EMBEDDING_PROVIDER %q", ErrInvalidConfig, c.EmbeddingProvider)
	}
	switch c.VectorBackend {
	case "file", "qdrant":
	default:
		return fmt.Errorf("%w: unknown VECTOR_BACKEND %q", ErrInvalidConfig, c.VectorBackend)
	}
	switch c.ModelMismatchPolicy {
	case "refuse", "warn":
	default:
		return fmt.Errorf("%w: MODEL_MISMATCH_POLICY must be refuse or warn", ErrInvalidConfig)
	}
	return nil
}

// ValidateForRun adds the checks that only matter for a crawl run.
func (c Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.URLsToScrape) == 0 {
		return fmt.Errorf("%w: no URLs to scrape", ErrInvalidConfig)
	}
	return nil
}

func envSet(key string) bool {
	v, ok := os.LookupEnv(key)
	return ok && v != ""
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
