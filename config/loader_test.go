package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// minimal satisfies the required settings without touching anything else.
func minimal() LoadOption {
	return WithOverrides(map[string]any{
		"corpus":     "history_of_rome",
		"qdrant.url": "http://localhost:6333",
	})
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", WithEnvFile(""), minimal())
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, "history_of_rome", cfg.Corpus)
	assert.Equal(t, want.Embedding, cfg.Embedding)
	assert.Equal(t, want.Chunking, cfg.Chunking)
	assert.Equal(t, want.Retry, cfg.Retry)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconcile.Pause)
	assert.Equal(t, "historical_sources", cfg.Qdrant.Collection)
	assert.Equal(t, BackendQdrant, cfg.Store.Backend)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "chronicle.yaml", `
corpus: revolutions
store:
  backend: badger
  path: /var/lib/chronicle
embedding:
  model: nomic-embed-text
  dimensions: 768
  delay: 250ms
  policy: zero-fill
chunking:
  size: 800
  overlap: 100
pipeline:
  workers: 4
`)
	cfg, err := Load(path, WithEnvFile(""))
	require.NoError(t, err)

	assert.Equal(t, "revolutions", cfg.Corpus)
	assert.Equal(t, BackendBadger, cfg.Store.Backend)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, 250*time.Millisecond, cfg.Embedding.Delay)
	assert.Equal(t, "zero-fill", cfg.Embedding.Policy)
	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, Default().Embedding.BatchSize, cfg.Embedding.BatchSize, "untouched keys keep defaults")
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("QDRANT_CLOUD_URL", "https://cluster.example.com:6333")
	t.Setenv("QDRANT_CLOUD_API_KEY", "secret")
	t.Setenv("QDRANT_COLLECTION_NAME", "podcasts")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CHRONICLE_CORPUS", "history_of_rome")
	t.Setenv("CHRONICLE_EMBEDDING_BATCH_SIZE", "25")
	t.Setenv("CHRONICLE_RETRY_BASE_DELAY", "2s")

	cfg, err := Load("", WithEnvFile(""))
	require.NoError(t, err)

	assert.Equal(t, "https://cluster.example.com:6333", cfg.Qdrant.URL)
	assert.Equal(t, "secret", cfg.Qdrant.APIKey)
	assert.Equal(t, "podcasts", cfg.Qdrant.Collection)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, 25, cfg.Embedding.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "chronicle.yaml", "corpus: from_file\nlog:\n  level: debug\n")
	t.Setenv("CHRONICLE_CORPUS", "from_env")
	t.Setenv("QDRANT_CLOUD_URL", "http://localhost:6333")

	cfg, err := Load(path, WithEnvFile(""))
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Corpus)
	assert.Equal(t, "debug", cfg.Log.Level)

	cfg, err = Load(path, WithEnvFile(""), WithOverrides(map[string]any{
		"corpus":    "from_flag",
		"log.level": "",
	}))
	require.NoError(t, err)
	assert.Equal(t, "from_flag", cfg.Corpus)
	assert.Equal(t, "debug", cfg.Log.Level, "empty overrides are ignored")
}

func TestLoad_DotEnv(t *testing.T) {
	const key = "CHRONICLE_PIPELINE_MIN_CONTENT_LENGTH"
	t.Setenv(key, "")
	os.Unsetenv(key)
	envFile := writeFile(t, ".env", key+"=250\n")

	cfg, err := Load("", WithEnvFile(envFile), minimal())
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Pipeline.MinContentLength)

	_, err = Load("", WithEnvFile(filepath.Join(t.TempDir(), "missing.env")), minimal())
	assert.NoError(t, err, "a missing dotenv file is not an error")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"missing corpus", map[string]any{"corpus": nil}},
		{"unknown backend", map[string]any{"store.backend": "postgres"}},
		{"overlap not below size", map[string]any{"chunking.overlap": 1000}},
		{"unknown policy", map[string]any{"embedding.policy": "ignore"}},
		{"qdrant without url", map[string]any{"qdrant.url": nil}},
		{"s3 without bucket", map[string]any{"source.catalog": "s3"}},
		{"zero workers", map[string]any{"pipeline.workers": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			overrides := map[string]any{
				"corpus":     "history_of_rome",
				"qdrant.url": "http://localhost:6333",
			}
			for k, v := range tt.overrides {
				if v == nil {
					delete(overrides, k)
					continue
				}
				overrides[k] = v
			}
			_, err := Load("", WithEnvFile(""), WithOverrides(overrides))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, "chronicle.yaml", "corpus: [unterminated\n")
	_, err := Load(path, WithEnvFile(""))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"), WithEnvFile(""))
	assert.Error(t, err)
}

func TestEnvMappings(t *testing.T) {
	paths := map[string]string{}
	for _, m := range EnvMappings() {
		paths[m.EnvVar] = m.ConfigPath
	}
	assert.Equal(t, "qdrant.url", paths["QDRANT_CLOUD_URL"])
	assert.Equal(t, "embedding.api_key", paths["OPENAI_API_KEY"])
	assert.Equal(t, "source.credentials_file", paths["GOOGLE_APPLICATION_CREDENTIALS"])
	assert.Equal(t, "corpus", paths["CHRONICLE_CORPUS"])
}

func TestTransformEnvKey(t *testing.T) {
	assert.Equal(t, "embedding.batch_size", transformEnvKey("EMBEDDING_BATCH_SIZE"))
	assert.Equal(t, "corpus", transformEnvKey("CORPUS"))
	assert.Equal(t, "", transformEnvKey("_"))
}

func TestConfigConversions(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Host = "http://localhost:11434"
	cfg.Embedding.Dimensions = 768

	ai := cfg.AIConfig()
	require.NoError(t, ai.Validate())
	assert.Equal(t, "http://localhost:11434/v1", ai.EmbeddingHost)
	assert.Equal(t, 768, ai.Dimensions)

	policy := cfg.RetryPolicy()
	assert.NoError(t, policy.Validate())
	assert.Equal(t, 3, policy.MaxAttempts)
}
