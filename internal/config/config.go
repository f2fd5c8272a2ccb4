package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// ProjectType represents the type of project detected.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// Config represents the complete configuration for the mcbgo server.
// Unlike the indexer this was forked from, configuration is environment-
// variable only: there is no project or user YAML file to merge.
type Config struct {
	Paths       PathsConfig
	Search      SearchConfig
	Embeddings  EmbeddingsConfig
	Cache       CacheConfig
	Database    DatabaseConfig
	VectorStore VectorStoreConfig
	Collection  CollectionConfig
	Performance PerformanceConfig
	Server      ServerConfig
	Sessions    SessionsConfig
	Metrics     MetricsConfig
}

// PathsConfig configures which paths to include and exclude during ingestion scans.
type PathsConfig struct {
	Include []string
	Exclude []string
}

// SearchConfig configures hybrid search parameters.
type SearchConfig struct {
	// RRFConstant is the RRF fusion smoothing parameter (k). Default 60.
	RRFConstant  int
	ChunkMaxSize int
	MaxResults   int
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "null", "remote", or "fastembed".
	Provider   string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration

	// Remote provider settings (OpenAI/VoyageAI/Gemini/Ollama-shaped HTTP API).
	RemoteEndpoint string
	RemoteAPIKey   string
}

// CacheConfig configures the embedding cache layer.
type CacheConfig struct {
	LRUSize int
	// RedisAddr, when set, layers a shared Redis cache in front of the LRU cache.
	RedisAddr string
	RedisDB   int
	TTL       time.Duration
}

// DatabaseConfig configures the SQLite-backed metadata and observation store.
type DatabaseConfig struct {
	Path string
	// CacheMB is the SQLite page cache size in MB.
	CacheMB int
}

// VectorStoreConfig configures the vector store backend.
type VectorStoreConfig struct {
	// Backend selects "memory" (in-process HNSW) or "pgvector" (remote Postgres).
	Backend string
	// PGDSN is the Postgres connection string, required when Backend is "pgvector".
	PGDSN string
}

// CollectionConfig configures the collection name mapping file.
type CollectionConfig struct {
	MappingPath string
}

// PerformanceConfig configures performance tuning options.
type PerformanceConfig struct {
	MaxFiles     int
	IndexWorkers int
	CacheSize    int
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string
	HTTPAddr  string
	LogLevel  string
}

// SessionsConfig configures session FSM persistence.
type SessionsConfig struct {
	MaxSessions int
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
	Addr      string
}

// defaultExcludePatterns are always excluded from ingestion scans.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/go.sum",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Search: SearchConfig{
			RRFConstant:  60,
			ChunkMaxSize: 1500,
			MaxResults:   20,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "null",
			Model:      "",
			Dimensions: 0,
			BatchSize:  32,
			Timeout:    30 * time.Second,
		},
		Cache: CacheConfig{
			LRUSize: 10000,
			TTL:     24 * time.Hour,
		},
		Database: DatabaseConfig{
			Path:    defaultDataPath("mcb.db"),
			CacheMB: 64,
		},
		VectorStore: VectorStoreConfig{
			Backend: "memory",
		},
		Collection: CollectionConfig{
			MappingPath: defaultDataPath("collections.json"),
		},
		Performance: PerformanceConfig{
			MaxFiles:     100000,
			IndexWorkers: runtime.NumCPU(),
			CacheSize:    1000,
		},
		Server: ServerConfig{
			Transport: "stdio",
			HTTPAddr:  ":8765",
			LogLevel:  "info",
		},
		Sessions: SessionsConfig{
			MaxSessions: 20,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "mcbgo",
			Addr:      ":9090",
		},
	}
}

// defaultDataPath resolves a default file name under ~/.mcbgo/.
func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".mcbgo", name)
	}
	return filepath.Join(home, ".mcbgo", name)
}

// Load builds configuration from hardcoded defaults overridden by MCB_* environment
// variables. There is no config file: configuration is deliberately environment-only.
func Load() (*Config, error) {
	cfg := NewConfig()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies MCB_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MCB_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("MCB_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}

	if v := os.Getenv("MCB_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("MCB_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("MCB_EMBEDDINGS_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("MCB_EMBEDDINGS_ENDPOINT"); v != "" {
		c.Embeddings.RemoteEndpoint = v
	}
	if v := os.Getenv("MCB_EMBEDDINGS_API_KEY"); v != "" {
		c.Embeddings.RemoteAPIKey = v
	}

	if v := os.Getenv("MCB_CACHE_LRU_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.LRUSize = n
		}
	}
	if v := os.Getenv("MCB_CACHE_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}

	if v := os.Getenv("MCB_DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv("MCB_VECTOR_STORE_BACKEND"); v != "" {
		c.VectorStore.Backend = v
	}
	if v := os.Getenv("MCB_VECTOR_STORE_PG_DSN"); v != "" {
		c.VectorStore.PGDSN = v
	}

	if v := os.Getenv("MCB_COLLECTION_MAPPING_PATH"); v != "" {
		c.Collection.MappingPath = v
	}

	if v := os.Getenv("MCB_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("MCB_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("MCB_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}

	if v := os.Getenv("MCB_METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("MCB_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Search.ChunkMaxSize < 0 {
		return fmt.Errorf("search.chunk_max_size must be non-negative, got %d", c.Search.ChunkMaxSize)
	}

	validProviders := map[string]bool{"null": true, "remote": true, "fastembed": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'null', 'remote', or 'fastembed', got %s", c.Embeddings.Provider)
	}
	if strings.ToLower(c.Embeddings.Provider) == "remote" && c.Embeddings.RemoteEndpoint == "" {
		return fmt.Errorf("embeddings.remote_endpoint is required when provider is 'remote'")
	}

	validBackends := map[string]bool{"memory": true, "pgvector": true}
	if !validBackends[strings.ToLower(c.VectorStore.Backend)] {
		return fmt.Errorf("vector_store.backend must be 'memory' or 'pgvector', got %s", c.VectorStore.Backend)
	}
	if strings.ToLower(c.VectorStore.Backend) == "pgvector" && c.VectorStore.PGDSN == "" {
		return fmt.Errorf("vector_store.pg_dsn is required when backend is 'pgvector'")
	}

	validTransports := map[string]bool{"stdio": true, "http": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'http', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// DetectProjectType detects the project type based on marker files.
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}
	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}
	if fileExists(filepath.Join(dir, "pyproject.toml")) || fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}
	return ProjectTypeUnknown
}

// FindProjectRoot finds the project root directory by walking up looking for .git.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// String returns a string representation of ProjectType.
func (p ProjectType) String() string {
	return string(p)
}

// IsKnown returns true if the project type is known (not unknown).
func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown
}
