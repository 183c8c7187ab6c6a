package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load("", envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:6333", cfg.QdrantURL)
	assert.Equal(t, "dropbox_semantic_v2", cfg.Collection)
	assert.Equal(t, 16, cfg.BatchSize)
	assert.Equal(t, int64(2*1024*1024), cfg.MaxBytes)
	assert.Equal(t, 2000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 32, cfg.MaxChunksPerFile)
	assert.Equal(t, ProviderOllama, cfg.ResolvedProvider())
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel())
	assert.True(t, cfg.IsExcludedDir(".git"))
	assert.True(t, cfg.IsExcludedFile(".DS_Store"))
	assert.True(t, cfg.IsOCRExt("PDF"))
	assert.False(t, cfg.IsOCRExt(".png"))
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := load("", envMap(map[string]string{
		"QDRANT_URL":                 "http://qdrant:6333/",
		"QDRANT_BATCH_SIZE":          "64",
		"QDRANT_CHUNK_SIZE":          "500",
		"QDRANT_DEDUP_FILES":         "0",
		"QDRANT_EXCLUDE_DIRS":        "build, dist,,",
		"OPENAI_API_KEY":             "sk-test",
		"QDRANT_MAX_CHUNKS_PER_FILE": "not-a-number",
		"QDRANT_IMAGE_OCR":           "1",
	}))
	require.NoError(t, err)

	assert.Equal(t, "http://qdrant:6333", cfg.QdrantURL)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.False(t, cfg.DedupFiles)
	assert.Equal(t, []string{"build", "dist"}, cfg.ExcludeDirs)
	assert.Equal(t, ProviderOpenAI, cfg.ResolvedProvider())
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel())
	assert.Equal(t, 32, cfg.MaxChunksPerFile, "unparsable value falls back to default")
	assert.True(t, cfg.IsOCRExt(".heic"))
}

func TestLoadTOMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dropindex.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
collection = "from_file"
chunk_size = 1000
roots = ["/data/a", "/data/b"]
embedding_provider = "ollama"
`), 0o600))

	cfg, err := load(path, envMap(map[string]string{"QDRANT_CHUNK_SIZE": "1500"}))
	require.NoError(t, err)

	assert.Equal(t, "from_file", cfg.Collection)
	assert.Equal(t, 1500, cfg.ChunkSize, "environment wins over file")
	assert.Equal(t, []string{"/data/a", "/data/b"}, cfg.Roots)
	assert.Equal(t, 200, cfg.ChunkOverlap, "unset keys keep defaults")
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero batch", map[string]string{"QDRANT_BATCH_SIZE": "0"}},
		{"unknown provider", map[string]string{"QDRANT_EMBEDDING_PROVIDER": "cohere"}},
		{"negative vector size", map[string]string{"QDRANT_VECTOR_SIZE": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load("", envMap(tt.env))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestFingerprint(t *testing.T) {
	base := Default()
	fp := base.Fingerprint()
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Default().Fingerprint(), "stable for equal configs")

	changed := Default()
	changed.ChunkSize = 1000
	assert.NotEqual(t, fp, changed.Fingerprint())

	model := Default()
	model.OllamaModel = "mxbai-embed-large"
	assert.NotEqual(t, fp, model.Fingerprint())

	unrelated := Default()
	unrelated.BatchSize = 99
	unrelated.QdrantURL = "http://elsewhere:6333"
	assert.Equal(t, fp, unrelated.Fingerprint(), "transport settings do not invalidate state")
}

func TestResolveRoots(t *testing.T) {
	cfg := Default()
	dir := t.TempDir()

	roots, err := cfg.ResolveRoots([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, roots)

	cfg.Roots = []string{dir}
	roots, err = cfg.ResolveRoots(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, roots)
}

func TestDefaultRoots(t *testing.T) {
	home := t.TempDir()
	base := filepath.Join(home, "Library", "CloudStorage")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "Dropbox"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "Dropbox-Team"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(base, "Dropbox"), filepath.Join(base, "Dropbox (Alias)")))
	require.NoError(t, os.WriteFile(filepath.Join(base, "Dropbox.txt"), nil, 0o600))

	roots := DefaultRoots(home)
	assert.Equal(t, []string{
		filepath.Join(base, "Dropbox"),
		filepath.Join(base, "Dropbox-Team"),
	}, roots)
}

func TestWalkRoot(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "Dropbox")
	require.NoError(t, os.MkdirAll(real, 0o755))
	link := filepath.Join(dir, "mount")
	require.NoError(t, os.Symlink(real, link))
	file := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	fileLink := filepath.Join(dir, "note-link")
	require.NoError(t, os.Symlink(file, fileLink))

	assert.Equal(t, real, WalkRoot(real))
	assert.Equal(t, real, WalkRoot(real+"/"))
	assert.Equal(t, link+string(filepath.Separator), WalkRoot(link))
	assert.Equal(t, fileLink, WalkRoot(fileLink))
	assert.Equal(t, filepath.Join(dir, "missing"), WalkRoot(filepath.Join(dir, "missing")))
}
