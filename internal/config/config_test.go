package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name            string
		content         string
		wantErrorString string
		assertConfig    func(t *testing.T, cfg *Config)
	}{
		{
			name:    "defaults fill everything the file omits",
			content: "database:\n  database: quill_test\n",
			assertConfig: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "quill_test", cfg.Database.Database)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 3306, cfg.Database.Port)
				assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbeddingModel)
				assert.Equal(t, uint(3), cfg.OpenAI.MaxRetryAttempts)
				assert.Equal(t, 0.7, cfg.Engine.SemanticWeight)
				assert.Equal(t, 0.3, cfg.Engine.LexicalWeight)
				assert.Equal(t, 0.75, cfg.Engine.FolderThreshold)
				assert.Equal(t, 0.6, cfg.Engine.ParentAttachThreshold)
				assert.Equal(t, 0.65, cfg.Engine.TagThreshold)
				assert.Equal(t, 5, cfg.Engine.TagTopK)
				assert.Equal(t, ":8080", cfg.Server.Address)
			},
		},
		{
			name: "file values override defaults",
			content: `engine:
  semantic_weight: 0.8
  lexical_weight: 0.2
  tag_top_k: 3
server:
  address: ":9090"
`,
			assertConfig: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0.8, cfg.Engine.SemanticWeight)
				assert.Equal(t, 0.2, cfg.Engine.LexicalWeight)
				assert.Equal(t, 3, cfg.Engine.TagTopK)
				assert.Equal(t, ":9090", cfg.Server.Address)
			},
		},
		{
			name: "semantic weight must exceed lexical weight",
			content: `engine:
  semantic_weight: 0.3
  lexical_weight: 0.7
`,
			wantErrorString: "semantic_weight",
		},
		{
			name: "tag threshold must not exceed folder threshold",
			content: `engine:
  folder_threshold: 0.5
  tag_threshold: 0.9
`,
			wantErrorString: "tag_threshold",
		},
		{
			name: "parent attach threshold must not exceed folder threshold",
			content: `engine:
  parent_attach_threshold: 0.95
`,
			wantErrorString: "parent_attach_threshold",
		},
		{
			name: "tag top k must be positive",
			content: `engine:
  tag_top_k: 0
`,
			wantErrorString: "tag_top_k",
		},
		{
			name: "centroid ttl must be positive",
			content: `engine:
  centroid_ttl_seconds: 0
`,
			wantErrorString: "centroid_ttl_seconds",
		},
		{
			name: "provider timeout must be positive",
			content: `openai:
  timeout_seconds: -1
`,
			wantErrorString: "timeout_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			cfg, err := Load(path)

			if tt.wantErrorString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrorString)
				return
			}
			require.NoError(t, err)
			tt.assertConfig(t, cfg)
		})
	}
}

func TestLoad_environmentCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-123")
	t.Setenv("QUILL_DB_USERNAME", "quill_app")
	t.Setenv("QUILL_DB_PASSWORD", "secret")

	path := writeConfigFile(t, "database:\n  database: quill_test\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test-123", cfg.OpenAI.APIKey)
	assert.Equal(t, "quill_app", cfg.Database.Username)
	assert.Equal(t, "secret", cfg.Database.Password)
}

func TestLoad_missingFileError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	openai := OpenAIConfig{TimeoutSeconds: 10}
	assert.Equal(t, 10*time.Second, openai.ProviderTimeout())

	engine := EngineConfig{CentroidTTLSeconds: 300}
	assert.Equal(t, 5*time.Minute, engine.CentroidTTL())
}
