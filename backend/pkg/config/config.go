package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	apperrors "trails/backend/pkg/errors"
)

// DefaultPath is where Load looks for the TOML file when no path is given.
const DefaultPath = "config/configuration.toml"

// Config holds all application configuration. Each section maps to a TOML
// table; every key can be overridden by an environment variable named
// SECTION_KEY (for example NEO4J_URI or VECTOR_INDEX_SIMILARITY_THRESHOLD).
type Config struct {
	Neo4j          Neo4jConfig          `toml:"NEO4J"`
	VectorIndex    VectorIndexConfig    `toml:"VECTOR_INDEX"`
	OpenAI         OpenAIConfig         `toml:"OPENAI"`
	Redis          RedisConfig          `toml:"REDIS"`
	TextProcessing TextProcessingConfig `toml:"TEXT_PROCESSING"`
	General        GeneralConfig        `toml:"GENERAL"`
	Server         ServerConfig         `toml:"SERVER"`
}

// Neo4jConfig holds the graph connection settings
type Neo4jConfig struct {
	URI      string `toml:"URI"`
	User     string `toml:"USER"`
	Password string `toml:"PASSWORD"`
	Database string `toml:"DATABASE"`
}

// VectorIndexConfig selects and tunes the vector index backend
type VectorIndexConfig struct {
	Backend             string  `toml:"BACKEND"` // neo4j, chromem or qdrant
	IndexName           string  `toml:"INDEX_NAME"`
	SimilarityThreshold float64 `toml:"SIMILARITY_THRESHOLD"`
	SearchK             int     `toml:"SEARCH_K"`
	CacheSize           int     `toml:"CACHE_SIZE"`
	Dimensions          int     `toml:"DIMENSIONS"`
	ChromemPath         string  `toml:"CHROMEM_PATH"` // empty keeps chromem in memory
	QdrantHost          string  `toml:"QDRANT_HOST"`
	QdrantPort          int     `toml:"QDRANT_PORT"`
}

// OpenAIConfig holds the embedding and enrichment provider settings
type OpenAIConfig struct {
	BaseURL         string `toml:"BASE_URL"`
	APIKey          string `toml:"API_KEY"`
	EmbeddingModel  string `toml:"EMBEDDING_MODEL"`
	EnrichmentModel string `toml:"ENRICHMENT_MODEL"`
}

// RedisConfig configures the optional embedding cache
type RedisConfig struct {
	URL string `toml:"URL"` // empty disables the cache
	TTL string `toml:"TTL"`
}

// TextProcessingConfig configures chunking
type TextProcessingConfig struct {
	Chunker      string `toml:"CHUNKER"` // paragraph, recursive or tokens
	ChunkSize    int    `toml:"CHUNK_SIZE"`
	ChunkOverlap int    `toml:"CHUNK_OVERLAP"`
}

// GeneralConfig holds environment-wide flags
type GeneralConfig struct {
	Env   string `toml:"ENV"`
	Debug bool   `toml:"DEBUG"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string `toml:"PORT"`
}

// Load reads configuration from .env, the TOML file at path (DefaultPath when
// empty) and environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := defaults()

	if path == "" {
		path = getEnv("TRAILS_CONFIG", DefaultPath)
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			User:     "neo4j",
			Password: "password",
		},
		VectorIndex: VectorIndexConfig{
			Backend:             "neo4j",
			IndexName:           "vector",
			SimilarityThreshold: 0.75,
			SearchK:             5,
			CacheSize:           8,
			Dimensions:          1536,
			QdrantHost:          "localhost",
			QdrantPort:          6334,
		},
		OpenAI: OpenAIConfig{
			BaseURL:         "https://api.openai.com",
			EmbeddingModel:  "text-embedding-ada-002",
			EnrichmentModel: "gpt-4o-mini",
		},
		Redis: RedisConfig{
			TTL: "168h",
		},
		TextProcessing: TextProcessingConfig{
			Chunker:      "paragraph",
			ChunkSize:    1000,
			ChunkOverlap: 20,
		},
		General: GeneralConfig{
			Env: "development",
		},
		Server: ServerConfig{
			Port: "8080",
		},
	}
}

func (c *Config) applyEnv() {
	c.Neo4j.URI = getEnv("NEO4J_URI", c.Neo4j.URI)
	c.Neo4j.User = getEnv("NEO4J_USER", c.Neo4j.User)
	c.Neo4j.Password = getEnv("NEO4J_PASSWORD", c.Neo4j.Password)
	c.Neo4j.Database = getEnv("NEO4J_DATABASE", c.Neo4j.Database)

	c.VectorIndex.Backend = getEnv("VECTOR_INDEX_BACKEND", c.VectorIndex.Backend)
	c.VectorIndex.IndexName = getEnv("VECTOR_INDEX_INDEX_NAME", c.VectorIndex.IndexName)
	c.VectorIndex.SimilarityThreshold = getEnvFloat("VECTOR_INDEX_SIMILARITY_THRESHOLD", c.VectorIndex.SimilarityThreshold)
	c.VectorIndex.SearchK = getEnvInt("VECTOR_INDEX_SEARCH_K", c.VectorIndex.SearchK)
	c.VectorIndex.CacheSize = getEnvInt("VECTOR_INDEX_CACHE_SIZE", c.VectorIndex.CacheSize)
	c.VectorIndex.Dimensions = getEnvInt("VECTOR_INDEX_DIMENSIONS", c.VectorIndex.Dimensions)
	c.VectorIndex.ChromemPath = getEnv("VECTOR_INDEX_CHROMEM_PATH", c.VectorIndex.ChromemPath)
	c.VectorIndex.QdrantHost = getEnv("VECTOR_INDEX_QDRANT_HOST", c.VectorIndex.QdrantHost)
	c.VectorIndex.QdrantPort = getEnvInt("VECTOR_INDEX_QDRANT_PORT", c.VectorIndex.QdrantPort)

	c.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.APIKey = getEnv("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.EmbeddingModel = getEnv("OPENAI_EMBEDDING_MODEL", c.OpenAI.EmbeddingModel)
	c.OpenAI.EnrichmentModel = getEnv("OPENAI_ENRICHMENT_MODEL", c.OpenAI.EnrichmentModel)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.TTL = getEnv("REDIS_TTL", c.Redis.TTL)

	c.TextProcessing.Chunker = getEnv("TEXT_PROCESSING_CHUNKER", c.TextProcessing.Chunker)
	c.TextProcessing.ChunkSize = getEnvInt("TEXT_PROCESSING_CHUNK_SIZE", c.TextProcessing.ChunkSize)
	c.TextProcessing.ChunkOverlap = getEnvInt("TEXT_PROCESSING_CHUNK_OVERLAP", c.TextProcessing.ChunkOverlap)

	c.General.Env = getEnv("GENERAL_ENV", c.General.Env)
	c.General.Debug = getEnvBool("GENERAL_DEBUG", c.General.Debug)

	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4j.URI == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.Neo4j.User == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_USER")
	}
	if c.Neo4j.Password == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
	}
	switch c.VectorIndex.Backend {
	case "neo4j", "chromem", "qdrant":
	default:
		return apperrors.NewConfigValidationFailed("VECTOR_INDEX_BACKEND", fmt.Sprintf("unknown backend %q", c.VectorIndex.Backend))
	}
	if t := c.VectorIndex.SimilarityThreshold; t < 0 || t > 1 {
		return apperrors.NewConfigValidationFailed("VECTOR_INDEX_SIMILARITY_THRESHOLD", "must be within [0, 1]")
	}
	if c.VectorIndex.SearchK <= 0 {
		return apperrors.NewConfigValidationFailed("VECTOR_INDEX_SEARCH_K", "must be positive")
	}
	if c.VectorIndex.Dimensions <= 0 {
		return apperrors.NewConfigValidationFailed("VECTOR_INDEX_DIMENSIONS", "must be positive")
	}
	if _, err := c.RedisTTL(); err != nil {
		return apperrors.NewConfigValidationFailed("REDIS_TTL", err.Error())
	}
	// The OpenAI key is optional for local OpenAI-compatible endpoints
	return nil
}

// RedisTTL parses the cache TTL. An empty value means no expiry.
func (c *Config) RedisTTL() (time.Duration, error) {
	if c.Redis.TTL == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Redis.TTL)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.General.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.General.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}
