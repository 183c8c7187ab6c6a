// Package config builds the immutable run configuration for dropindex.
//
// A Config is assembled once at process start: defaults, then an optional
// TOML file, then environment variables. Components receive it by value.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Provider names
const (
	ProviderAuto   = "auto"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// ImageExts are the raster formats that only yield text through OCR
var ImageExts = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".gif", ".webp", ".heic", ".heif"}

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every tunable of an indexing, search or OCR run.
type Config struct {
	// Paths
	Roots      []string `toml:"roots"`
	StateDB    string   `toml:"state_db"`
	SnippetsDB string   `toml:"snippets_db"`
	SidecarDir string   `toml:"ocr_sidecar_dir"`
	AuditPath  string   `toml:"audit_path"`
	LogMode    string   `toml:"log_mode"`
	LogLevel   string   `toml:"log_level"`

	// Vector store
	QdrantURL            string `toml:"qdrant_url"`
	QdrantAPIKey         string `toml:"qdrant_api_key"`
	Collection           string `toml:"collection"`
	VectorSize           int    `toml:"vector_size"`
	BatchSize            int    `toml:"batch_size"`
	CreatePayloadIndexes bool   `toml:"create_payload_indexes"`

	// Extraction
	MaxBytes         int64    `toml:"max_bytes"`
	MaxChars         int      `toml:"max_chars"`
	ChunkSize        int      `toml:"chunk_size"`
	ChunkOverlap     int      `toml:"chunk_overlap"`
	MaxChunksPerFile int      `toml:"max_chunks_per_file"`
	SampleWindows    int      `toml:"sample_windows"`
	PDFMaxPages      int      `toml:"pdf_max_pages"`
	PDFMinChars      int      `toml:"pdf_min_chars"`
	XLSXMaxCells     int      `toml:"xlsx_max_cells"`
	PreviewChars     int      `toml:"preview_chars"`
	SnippetMaxChars  int      `toml:"snippet_max_chars"`
	ImageOCR         bool     `toml:"image_ocr"`
	ExcludeDirs      []string `toml:"exclude_dirs"`
	ExcludeFiles     []string `toml:"exclude_files"`
	ToolTimeoutSecs  int      `toml:"tool_timeout_seconds"`

	// Embedding
	Provider            string  `toml:"embedding_provider"`
	OpenAIAPIKey        string  `toml:"openai_api_key"`
	OpenAIModel         string  `toml:"openai_model"`
	OpenAIBaseURL       string  `toml:"openai_base_url"`
	OllamaHost          string  `toml:"ollama_host"`
	OllamaModel         string  `toml:"ollama_model"`
	OllamaEmbedEndpoint string  `toml:"ollama_embed_endpoint"`
	OllamaKeepAlive     string  `toml:"ollama_keep_alive"`
	OllamaTruncate      bool    `toml:"ollama_truncate"`
	EmbedConcurrency    int     `toml:"embed_concurrency"`
	EmbedCacheSize      int     `toml:"embed_cache_size"`
	EmbedMaxChars       int     `toml:"embed_max_chars"`
	EmbedRPS            float64 `toml:"embed_rps"`

	// Deduplication
	DedupFiles     bool  `toml:"dedup_files"`
	DedupHashBytes int64 `toml:"dedup_hash_bytes"`

	// HTTP
	HTTPTimeoutSecs      int     `toml:"http_timeout_seconds"`
	HTTPRetries          int     `toml:"http_retries"`
	HTTPRetrySleepSecs   float64 `toml:"http_retry_sleep_seconds"`
	HTTPRetryMaxSleepSec float64 `toml:"http_retry_max_sleep_seconds"`

	MaxFiles int `toml:"max_files"`

	// OCR backfill
	OCRLangs     string   `toml:"ocr_langs"`
	OCRMaxFiles  int      `toml:"ocr_max_files"`
	OCRMaxPages  int      `toml:"ocr_max_pages"`
	OCRRenderDPI int      `toml:"ocr_render_dpi"`
	OCRForce     bool     `toml:"ocr_force"`
	OCRExts      []string `toml:"ocr_exts"`

	WatchDebounceSecs int `toml:"watch_debounce_seconds"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		StateDB:    filepath.Join(".cache", "qdrant_dropbox_state.sqlite"),
		SnippetsDB: filepath.Join(".cache", "qdrant_dropbox_snippets.sqlite"),
		SidecarDir: filepath.Join(".cache", "ocr_sidecars"),
		LogMode:    "development",
		LogLevel:   "info",

		QdrantURL:            "http://127.0.0.1:6333",
		Collection:           "dropbox_semantic_v2",
		BatchSize:            16,
		CreatePayloadIndexes: true,

		MaxBytes:         2 * 1024 * 1024,
		MaxChars:         12000,
		ChunkSize:        2000,
		ChunkOverlap:     200,
		MaxChunksPerFile: 32,
		SampleWindows:    5,
		PDFMaxPages:      30,
		PDFMinChars:      200,
		XLSXMaxCells:     20000,
		PreviewChars:     300,
		SnippetMaxChars:  8000,
		ExcludeDirs: []string{
			".git", ".svn", ".hg", "node_modules", "__pycache__", ".venv", "venv",
			".tox", ".idea", ".cache", ".Trash", ".dropbox.cache",
		},
		ExcludeFiles:    []string{".DS_Store", "Thumbs.db", "desktop.ini", ".dropbox", ".dropbox.attr", "Icon\r"},
		ToolTimeoutSecs: 120,

		Provider:            ProviderAuto,
		OpenAIModel:         "text-embedding-3-small",
		OpenAIBaseURL:       "https://api.openai.com",
		OllamaHost:          "http://127.0.0.1:11434",
		OllamaModel:         "nomic-embed-text",
		OllamaEmbedEndpoint: "/api/embed",
		OllamaTruncate:      true,
		EmbedConcurrency:    2,
		EmbedCacheSize:      5000,
		EmbedMaxChars:       8000,

		DedupFiles:     true,
		DedupHashBytes: 256 * 1024,

		HTTPTimeoutSecs:      60,
		HTTPRetries:          2,
		HTTPRetrySleepSecs:   1,
		HTTPRetryMaxSleepSec: 30,

		OCRLangs:     "eng",
		OCRMaxFiles:  10,
		OCRMaxPages:  20,
		OCRRenderDPI: 200,
		OCRExts:      []string{".pdf"},

		WatchDebounceSecs: 30,
	}
}

// Load builds a Config from defaults, the optional TOML file at path and the
// process environment, then validates it.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup lookupFunc) (Config, error) {
	cfg := Default()
	if path == "" {
		path = envString(lookup, "DROPINDEX_CONFIG", "")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg, lookup)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(c *Config, l lookupFunc) {
	c.StateDB = envString(l, "QDRANT_STATE_DB", c.StateDB)
	c.SnippetsDB = envString(l, "QDRANT_SNIPPETS_DB", c.SnippetsDB)
	if v, ok := l("QDRANT_SNIPPETS_DB"); ok && strings.TrimSpace(v) == "off" {
		c.SnippetsDB = ""
	}
	c.SidecarDir = envString(l, "QDRANT_OCR_SIDECAR_DIR", c.SidecarDir)
	c.AuditPath = envString(l, "QDRANT_AUDIT_PATH", c.AuditPath)
	c.LogMode = envString(l, "DROPINDEX_LOG_MODE", c.LogMode)
	c.LogLevel = envString(l, "DROPINDEX_LOG_LEVEL", c.LogLevel)

	c.QdrantURL = strings.TrimRight(envString(l, "QDRANT_URL", c.QdrantURL), "/")
	c.QdrantAPIKey = envString(l, "QDRANT_API_KEY", envString(l, "QDRANT_APIKEY", c.QdrantAPIKey))
	c.Collection = envString(l, "QDRANT_COLLECTION", c.Collection)
	c.VectorSize = envInt(l, "QDRANT_VECTOR_SIZE", c.VectorSize)
	c.BatchSize = envInt(l, "QDRANT_BATCH_SIZE", c.BatchSize)
	c.CreatePayloadIndexes = envBool(l, "QDRANT_CREATE_PAYLOAD_INDEXES", c.CreatePayloadIndexes)

	c.MaxBytes = envInt64(l, "QDRANT_MAX_BYTES", c.MaxBytes)
	c.MaxChars = envInt(l, "QDRANT_MAX_CHARS", c.MaxChars)
	c.ChunkSize = envInt(l, "QDRANT_CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = envInt(l, "QDRANT_CHUNK_OVERLAP", c.ChunkOverlap)
	c.MaxChunksPerFile = envInt(l, "QDRANT_MAX_CHUNKS_PER_FILE", c.MaxChunksPerFile)
	c.SampleWindows = envInt(l, "QDRANT_SAMPLE_WINDOWS", c.SampleWindows)
	c.PDFMaxPages = envInt(l, "QDRANT_PDF_MAX_PAGES", c.PDFMaxPages)
	c.PDFMinChars = envInt(l, "QDRANT_PDF_MIN_CHARS", c.PDFMinChars)
	c.XLSXMaxCells = envInt(l, "QDRANT_XLSX_MAX_CELLS", c.XLSXMaxCells)
	c.PreviewChars = envInt(l, "QDRANT_PREVIEW_CHARS", c.PreviewChars)
	c.SnippetMaxChars = envInt(l, "QDRANT_SNIPPET_MAX_CHARS", c.SnippetMaxChars)
	c.ImageOCR = envBool(l, "QDRANT_IMAGE_OCR", c.ImageOCR)
	c.ExcludeDirs = envList(l, "QDRANT_EXCLUDE_DIRS", c.ExcludeDirs)
	c.ExcludeFiles = envList(l, "QDRANT_EXCLUDE_FILES", c.ExcludeFiles)
	c.ToolTimeoutSecs = envInt(l, "QDRANT_TOOL_TIMEOUT_SECONDS", c.ToolTimeoutSecs)

	c.Provider = strings.ToLower(envString(l, "QDRANT_EMBEDDING_PROVIDER", c.Provider))
	c.OpenAIAPIKey = envString(l, "OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = envString(l, "OPENAI_EMBED_MODEL", c.OpenAIModel)
	c.OpenAIBaseURL = strings.TrimRight(envString(l, "OPENAI_BASE_URL", c.OpenAIBaseURL), "/")
	c.OllamaHost = strings.TrimRight(envString(l, "OLLAMA_HOST", c.OllamaHost), "/")
	c.OllamaModel = envString(l, "OLLAMA_MODEL", c.OllamaModel)
	c.OllamaEmbedEndpoint = envString(l, "OLLAMA_EMBED_ENDPOINT", c.OllamaEmbedEndpoint)
	c.OllamaKeepAlive = envString(l, "OLLAMA_KEEP_ALIVE", c.OllamaKeepAlive)
	c.OllamaTruncate = envBool(l, "OLLAMA_TRUNCATE", c.OllamaTruncate)
	c.EmbedConcurrency = envInt(l, "QDRANT_EMBED_CONCURRENCY", c.EmbedConcurrency)
	c.EmbedCacheSize = envInt(l, "QDRANT_EMBED_CACHE_SIZE", c.EmbedCacheSize)
	c.EmbedMaxChars = envInt(l, "QDRANT_EMBED_MAX_CHARS", c.EmbedMaxChars)
	c.EmbedRPS = envFloat(l, "QDRANT_EMBED_RPS", c.EmbedRPS)

	c.DedupFiles = envBool(l, "QDRANT_DEDUP_FILES", c.DedupFiles)
	c.DedupHashBytes = envInt64(l, "QDRANT_DEDUP_HASH_BYTES", c.DedupHashBytes)

	c.HTTPTimeoutSecs = envInt(l, "INDEX_HTTP_MAX_TIME", c.HTTPTimeoutSecs)
	c.HTTPRetries = envInt(l, "INDEX_HTTP_RETRIES", c.HTTPRetries)
	c.HTTPRetrySleepSecs = envFloat(l, "INDEX_HTTP_RETRY_SLEEP_SECONDS", c.HTTPRetrySleepSecs)

	c.MaxFiles = envInt(l, "QDRANT_MAX_FILES", c.MaxFiles)

	c.OCRLangs = envString(l, "OCR_LANGS", c.OCRLangs)
	c.OCRMaxFiles = envInt(l, "OCR_MAX_FILES", c.OCRMaxFiles)
	c.OCRMaxPages = envInt(l, "OCR_MAX_PAGES", c.OCRMaxPages)
	c.OCRRenderDPI = envInt(l, "OCR_RENDER_DPI", c.OCRRenderDPI)
	c.OCRForce = envBool(l, "OCR_FORCE", c.OCRForce)
	c.OCRExts = envList(l, "OCR_EXTS", c.OCRExts)
	if _, explicit := l("OCR_EXTS"); c.ImageOCR && !explicit {
		for _, ext := range ImageExts {
			if !slices.Contains(c.OCRExts, ext) {
				c.OCRExts = append(c.OCRExts, ext)
			}
		}
	}
	for i, ext := range c.OCRExts {
		c.OCRExts[i] = normalizeExt(ext)
	}

	c.WatchDebounceSecs = envInt(l, "DROPINDEX_WATCH_DEBOUNCE_SECONDS", c.WatchDebounceSecs)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	var problems []string
	if c.BatchSize < 1 {
		problems = append(problems, "batch_size must be >= 1")
	}
	if c.ChunkSize < 1 {
		problems = append(problems, "chunk_size must be >= 1")
	}
	if c.ChunkOverlap < 0 {
		problems = append(problems, "chunk_overlap must be >= 0")
	}
	if c.MaxBytes < 1 {
		problems = append(problems, "max_bytes must be >= 1")
	}
	if c.MaxChunksPerFile < 1 {
		problems = append(problems, "max_chunks_per_file must be >= 1")
	}
	if c.VectorSize < 0 {
		problems = append(problems, "vector_size must be >= 0")
	}
	if c.EmbedConcurrency < 1 {
		problems = append(problems, "embed_concurrency must be >= 1")
	}
	if c.HTTPRetries < 0 {
		problems = append(problems, "http_retries must be >= 0")
	}
	if c.DedupHashBytes < 1 {
		problems = append(problems, "dedup_hash_bytes must be >= 1")
	}
	if c.Collection == "" {
		problems = append(problems, "collection is required")
	}
	if c.StateDB == "" {
		problems = append(problems, "state_db is required")
	}
	switch c.Provider {
	case ProviderAuto, ProviderOpenAI, ProviderOllama:
	default:
		problems = append(problems, fmt.Sprintf("unknown embedding provider %q", c.Provider))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ResolvedProvider picks the concrete provider; auto prefers OpenAI when a key is set.
func (c Config) ResolvedProvider() string {
	if c.Provider != ProviderAuto {
		return c.Provider
	}
	if c.OpenAIAPIKey != "" {
		return ProviderOpenAI
	}
	return ProviderOllama
}

// EmbeddingModel returns the model name of the resolved provider.
func (c Config) EmbeddingModel() string {
	if c.ResolvedProvider() == ProviderOpenAI {
		return c.OpenAIModel
	}
	return c.OllamaModel
}

// Fingerprint hashes every parameter that changes extraction or embedding
// output. A different fingerprint invalidates incremental skips.
func (c Config) Fingerprint() string {
	parts := []string{
		c.ResolvedProvider(),
		c.EmbeddingModel(),
		strconv.Itoa(c.ChunkSize),
		strconv.Itoa(c.ChunkOverlap),
		strconv.Itoa(c.MaxChars),
		strconv.FormatInt(c.MaxBytes, 10),
		strconv.Itoa(c.MaxChunksPerFile),
		strconv.Itoa(c.SampleWindows),
		strconv.Itoa(c.PDFMaxPages),
		strconv.Itoa(c.PDFMinChars),
		strconv.Itoa(c.XLSXMaxCells),
		strconv.Itoa(c.EmbedMaxChars),
		strconv.Itoa(c.PreviewChars),
		strconv.FormatBool(c.ImageOCR),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// HTTPTimeout is the per-request deadline for provider and vector store calls.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSecs) * time.Second
}

// RetryBaseDelay is the first backoff step.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.HTTPRetrySleepSecs * float64(time.Second))
}

// RetryMaxDelay caps the backoff.
func (c Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.HTTPRetryMaxSleepSec * float64(time.Second))
}

// ToolTimeout bounds one external converter invocation.
func (c Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSecs) * time.Second
}

// WatchDebounce is the quiet period before watch mode starts a run.
func (c Config) WatchDebounce() time.Duration {
	return time.Duration(c.WatchDebounceSecs) * time.Second
}

// IsExcludedDir reports whether a directory name is pruned during traversal.
func (c Config) IsExcludedDir(name string) bool {
	return slices.Contains(c.ExcludeDirs, name)
}

// IsExcludedFile reports whether a file name is skipped during traversal.
func (c Config) IsExcludedFile(name string) bool {
	return slices.Contains(c.ExcludeFiles, name)
}

// IsOCRExt reports whether the OCR worker handles files with this extension.
func (c Config) IsOCRExt(ext string) bool {
	return slices.Contains(c.OCRExts, normalizeExt(ext))
}
