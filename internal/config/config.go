package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the ragdesk configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Generation  GenerationConfig  `yaml:"generation"`
	OCR         OCRConfig         `yaml:"ocr"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Prompt      PromptConfig      `yaml:"prompt"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Auth        AuthConfig        `yaml:"auth"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // must cover OCR of large uploads and streamed answers
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int `yaml:"max_upload_mb"`
}

// DatabaseConfig holds key-value store connection settings.
// The store backs the page cache, embedding cache, budget counters and,
// for the redis/valkey index backend, the vector index itself.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// VectorIndexConfig holds vector index settings.
type VectorIndexConfig struct {
	Backend         string       `yaml:"backend"` // store (redis/valkey search), milvus
	Name            string       `yaml:"name"`
	Dimension       int          `yaml:"dimension"`
	Metric          string       `yaml:"metric"`
	ReadyTimeoutSec int          `yaml:"ready_timeout_sec"`
	PollIntervalMS  int          `yaml:"poll_interval_ms"`
	UpsertBatchSize int          `yaml:"upsert_batch_size"`
	HNSWM           int          `yaml:"hnsw_m"`
	HNSWEFConstruct int          `yaml:"hnsw_ef_construction"`
	Milvus          MilvusConfig `yaml:"milvus"`
}

// MilvusConfig holds Milvus connection settings.
type MilvusConfig struct {
	Address    string `yaml:"address"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	DBName     string `yaml:"db_name"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string       `yaml:"provider"`
	APIKey              string       `yaml:"api_key"`
	BaseURL             string       `yaml:"base_url"`
	Model               string       `yaml:"model"`
	Dimensions          int          `yaml:"dimensions"`
	BatchSize           int          `yaml:"batch_size"`
	DocumentInstruction string       `yaml:"document_instruction"`
	QueryInstruction    string       `yaml:"query_instruction"`
	Cache               bool         `yaml:"cache"`
	CacheTTLHours       int          `yaml:"cache_ttl_hours"` // 0 = keep forever
	Budget              BudgetConfig `yaml:"budget"`
}

// GenerationConfig holds chat model settings (any OpenAI-compatible endpoint).
type GenerationConfig struct {
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// OCRConfig holds OCR fallback settings.
type OCRConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Credentials       string  `yaml:"credentials"` // path or base64-encoded service account JSON
	DPI               int     `yaml:"dpi"`
	RasterizerPath    string  `yaml:"rasterizer_path"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ExtractionConfig holds page extraction cache settings.
type ExtractionConfig struct {
	CacheTTLHours int `yaml:"cache_ttl_hours"` // 0 = keep forever
}

// ChunkingConfig holds text splitting settings.
type ChunkingConfig struct {
	Size       int    `yaml:"size"`
	Overlap    int    `yaml:"overlap"`
	IDStrategy string `yaml:"id_strategy"` // sequential, content_hash
}

// StaticDocument is a fixed retrieval entry for the static retriever.
type StaticDocument struct {
	Content string `yaml:"content"`
	Source  string `yaml:"source"`
	Page    *int   `yaml:"page"`
}

// RetrievalConfig holds retriever settings.
type RetrievalConfig struct {
	Mode            string           `yaml:"mode"` // index, static
	TopK            int              `yaml:"top_k"`
	StaticDocuments []StaticDocument `yaml:"static_documents"`
}

// PromptConfig describes the system prompt given to the chat model.
type PromptConfig struct {
	Role              string   `yaml:"role"`
	StyleOrTone       []string `yaml:"style_or_tone"`
	Instruction       string   `yaml:"instruction"`
	OutputConstraints []string `yaml:"output_constraints"`
	OutputFormat      []string `yaml:"output_format"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	Workers int `yaml:"workers"` // files processed concurrently (default 1)
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
	UploadDir string `yaml:"upload_dir"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env variables in raw YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of independent defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 64
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	vi := &c.VectorIndex
	if vi.Backend == "" {
		vi.Backend = "store"
	}
	if vi.Name == "" {
		vi.Name = "ragdesk-docs"
	}
	if vi.Dimension <= 0 {
		vi.Dimension = 768
	}
	if vi.Metric == "" {
		vi.Metric = "cosine"
	}
	if vi.ReadyTimeoutSec <= 0 {
		vi.ReadyTimeoutSec = 60
	}
	if vi.PollIntervalMS <= 0 {
		vi.PollIntervalMS = 1000
	}
	if vi.UpsertBatchSize <= 0 {
		vi.UpsertBatchSize = 100
	}
	if vi.HNSWM <= 0 {
		vi.HNSWM = 16
	}
	if vi.HNSWEFConstruct <= 0 {
		vi.HNSWEFConstruct = 200
	}
	if vi.Milvus.TimeoutSec <= 0 {
		vi.Milvus.TimeoutSec = 10
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 50
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = "groq"
	}

	if c.OCR.DPI <= 0 {
		c.OCR.DPI = 200
	}
	if c.OCR.RasterizerPath == "" {
		c.OCR.RasterizerPath = "pdftoppm"
	}
	if c.OCR.RequestsPerSecond <= 0 {
		c.OCR.RequestsPerSecond = 5
	}
	if c.OCR.Burst <= 0 {
		c.OCR.Burst = 5
	}

	if c.Chunking.Size <= 0 {
		c.Chunking.Size = 500
	}
	switch {
	case c.Chunking.Overlap == 0:
		c.Chunking.Overlap = 50
	case c.Chunking.Overlap < 0: // explicit opt-out
		c.Chunking.Overlap = 0
	}
	if c.Chunking.IDStrategy == "" {
		c.Chunking.IDStrategy = "sequential"
	}

	if c.Retrieval.Mode == "" {
		c.Retrieval.Mode = "index"
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 3
	}

	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 1
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "ragdesk:"
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "uploaded_documents"
	}
}

// Validate checks the configuration for correctness.
//
//nolint:gocyclo // flat list of independent checks
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Database.Driver {
	case "valkey", "redis":
	default:
		return fmt.Errorf("database.driver must be \"valkey\" or \"redis\", got %q", c.Database.Driver)
	}
	switch c.VectorIndex.Backend {
	case "store":
	case "milvus":
		if c.VectorIndex.Milvus.Address == "" {
			return fmt.Errorf("vector_index.milvus.address is required for the milvus backend")
		}
	default:
		return fmt.Errorf("vector_index.backend must be \"store\" or \"milvus\", got %q", c.VectorIndex.Backend)
	}
	if c.VectorIndex.Metric != "cosine" {
		return fmt.Errorf("vector_index.metric must be \"cosine\", got %q", c.VectorIndex.Metric)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.size (%d)",
			c.Chunking.Overlap, c.Chunking.Size)
	}
	switch c.Chunking.IDStrategy {
	case "sequential", "content_hash":
	default:
		return fmt.Errorf("chunking.id_strategy must be \"sequential\" or \"content_hash\", got %q",
			c.Chunking.IDStrategy)
	}
	switch c.Retrieval.Mode {
	case "index":
	case "static":
		if len(c.Retrieval.StaticDocuments) == 0 {
			return fmt.Errorf("retrieval.static_documents is required for static mode")
		}
	default:
		return fmt.Errorf("retrieval.mode must be \"index\" or \"static\", got %q", c.Retrieval.Mode)
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
	default:
		return fmt.Errorf("embedding.budget.action must be \"warn\" or \"reject\", got %q",
			c.Embedding.Budget.Action)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}
	if c.OCR.Enabled && c.OCR.Credentials == "" {
		return fmt.Errorf("ocr.credentials is required when ocr is enabled")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
