package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvGeminiAPIKey, "")
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, CacheDriverRedis, cfg.Cache.Driver)
	assert.Equal(t, 3600, cfg.Cache.AnalysisTTLSeconds)
	assert.Equal(t, 3600, cfg.Cache.RepoListTTLSeconds)
	assert.Equal(t, AIProviderGemini, cfg.AI.Provider)
	assert.Equal(t, 4000, cfg.Analysis.TokenBudget)
	assert.Equal(t, 4, cfg.Analysis.CharsPerToken)
	assert.Equal(t, DecodePolicySkip, cfg.Analysis.DecodePolicy)
	assert.Equal(t, DefaultExtensions, cfg.Analysis.Extensions)
	assert.Equal(t, DefaultGitHubScopes, cfg.GitHub.Scopes)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 5*time.Minute, cfg.GitHub.ArchiveTimeout())
	assert.Equal(t, 30*time.Second, cfg.GitHub.Timeout())
	assert.Equal(t, int64(1<<20), cfg.Analysis.MaxFileBytes)
	assert.Equal(t, int64(256<<20), cfg.Analysis.MaxExtractedBytes)

	parsed, err := mysql.ParseDSN(cfg.DSN)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3306", parsed.Addr)
	assert.Equal(t, defaultDBName, parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
port: 9000
env: Production
database:
  host: db.internal
  name: verdicts
  auto_migrate: false
redis:
  url: cache.internal:6380/2
cache:
  driver: Memory
  analysis_ttl_seconds: 60
github:
  client_id: abc
  api_base_url: https://ghe.example.com/api/v3
  per_page: 100
ai:
  provider: openai-compatible
  endpoint: http://localhost:11434/
  model: llama3
  api_key: sk-test
analysis:
  token_budget: 1000
  extensions: [".TS", "go", "ts", " "]
  decode_policy: replace
allowed_origins: [" https://app.example.com ", ""]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.False(t, cfg.IsDev())
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Contains(t, cfg.DSN, "tcp(db.internal:3306)/verdicts")
	assert.Equal(t, "redis://cache.internal:6380/2", cfg.RedisURL)
	assert.Equal(t, CacheDriverMemory, cfg.Cache.Driver)
	assert.Equal(t, 60, cfg.Cache.AnalysisTTLSeconds)
	assert.Equal(t, 3600, cfg.Cache.RepoListTTLSeconds)
	assert.Equal(t, "https://ghe.example.com/api/v3/", cfg.GitHub.APIBaseURL)
	assert.Equal(t, "http://localhost:11434", cfg.AI.Endpoint)
	assert.Equal(t, []string{"ts", "go"}, cfg.Analysis.Extensions)
	assert.Equal(t, DecodePolicyReplace, cfg.Analysis.DecodePolicy)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv(EnvAnthropicAPIKey, "anthropic-key")
	t.Setenv(EnvGitHubClientSecret, "gh-secret")
	t.Setenv(EnvJWTSecret, "jwt-secret")

	cfg, err := Load(writeConfig(t, "ai:\n  provider: anthropic\n"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic-key", cfg.AI.APIKey)
	assert.Equal(t, "gh-secret", cfg.GitHub.ClientSecret)
	assert.Equal(t, "jwt-secret", cfg.JWTSecret)

	cfg, err = Load(writeConfig(t, "jwt_secret: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"port":            "port: 70000\n",
		"unknown field":   "colour: blue\n",
		"cache driver":    "cache:\n  driver: memcached\n",
		"ai provider":     "ai:\n  provider: hal9000\n",
		"compat endpoint": "ai:\n  provider: openai-compatible\n  model: x\n",
		"decode policy":   "analysis:\n  decode_policy: guess\n",
		"budget":          "analysis:\n  token_budget: -5\n",
		"per page":        "github:\n  per_page: 500\n",
		"archive timeout": "github:\n  archive_timeout_seconds: -1\n",
		"extracted cap":   "analysis:\n  max_file_bytes: 2048\n  max_extracted_bytes: 1024\n",
		"timezone":        "timezone: Mars/Olympus\n",
		"dsn":             "database:\n  dsn: \"not a dsn\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}
