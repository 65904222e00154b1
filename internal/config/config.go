package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted when the matching secret is absent in YAML.
const (
	EnvGitHubClientSecret = "GITHUB_CLIENT_SECRET"
	EnvGeminiAPIKey       = "GEMINI_API_KEY"
	EnvOpenAIAPIKey       = "OPENAI_API_KEY"
	EnvAnthropicAPIKey    = "ANTHROPIC_API_KEY"
	EnvJWTSecret          = "JWT_SECRET"
)

func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg := defaultAppConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	applyRawAppConfig(&cfg, raw)
	applyEnvSecrets(&cfg, os.Getenv)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Host:        defaultDBHost,
			Port:        defaultDBPort,
			User:        defaultDBUser,
			Password:    defaultDBPassword,
			Name:        defaultDBName,
			Charset:     defaultDBCharset,
			ParseTime:   true,
			Loc:         defaultDBLoc,
			AutoMigrate: true,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Cache: CacheConfig{
			Driver:             defaultCacheDriver,
			RepoListTTLSeconds: defaultRepoListTTL,
			AnalysisTTLSeconds: defaultAnalysisTTL,
			LeaseTTLSeconds:    defaultLeaseTTL,
			MemorySize:         defaultMemoryCacheSize,
		},
		GitHub: GitHubConfig{
			APIBaseURL:     defaultGitHubAPIBaseURL,
			Scopes:         append([]string(nil), DefaultGitHubScopes...),
			PerPage:        defaultGitHubPerPage,
			TimeoutSeconds: defaultGitHubTimeout,

			ArchiveTimeoutSeconds: defaultArchiveTimeout,
		},
		AI: AIConfig{
			Provider:        defaultAIProvider,
			MaxOutputTokens: defaultAIMaxOutputTokens,
			TimeoutSeconds:  defaultAITimeout,
			MaxAttempts:     defaultAIMaxAttempts,
			RetryBaseMillis: defaultAIRetryBaseMillis,
		},
		Analysis: AnalysisConfig{
			TokenBudget:     DefaultTokenBudget,
			CharsPerToken:   defaultCharsPerToken,
			Extensions:      append([]string(nil), DefaultExtensions...),
			DecodePolicy:    defaultDecodePolicy,
			MaxArchiveBytes: defaultMaxArchiveBytes,
			Concurrency:     defaultConcurrency,

			MaxFileBytes:      defaultMaxFileBytes,
			MaxExtractedBytes: defaultMaxExtracted,
		},
	}
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	cfg.Env = normalizeEnv(cfg.Env)

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()

	cfg.Cache = applyCacheConfig(cfg.Cache, raw.Cache)
	cfg.GitHub = applyGitHubConfig(cfg.GitHub, raw.GitHub)
	cfg.AI = applyAIConfig(cfg.AI, raw.AI)
	cfg.Analysis = applyAnalysisConfig(cfg.Analysis, raw.Analysis)

	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)

	if len(raw.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	db := raw.Database
	if v := strings.TrimSpace(raw.DSN); v != "" {
		current.DSN = v
	}
	if v := strings.TrimSpace(db.DSN); v != "" {
		current.DSN = v
	}
	if v := strings.TrimSpace(db.Host); v != "" {
		current.Host = v
	}
	if db.Port != 0 {
		current.Port = db.Port
	}
	if v := strings.TrimSpace(db.User); v != "" {
		current.User = v
	}
	if v := strings.TrimSpace(db.Password); v != "" {
		current.Password = v
	}
	if v := strings.TrimSpace(db.Name); v != "" {
		current.Name = v
	}
	if v := strings.TrimSpace(db.Charset); v != "" {
		current.Charset = v
	}
	if db.ParseTime != nil {
		current.ParseTime = *db.ParseTime
	}
	if v := strings.TrimSpace(db.Loc); v != "" {
		current.Loc = v
	}
	if len(db.Params) > 0 {
		current.Params = copyStringMap(db.Params)
	}
	if db.AutoMigrate != nil {
		current.AutoMigrate = *db.AutoMigrate
	}
	return normalizeDatabaseConfig(current)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	r := raw.Redis
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		current.URL = v
	}
	if v := strings.TrimSpace(r.URL); v != "" {
		current.URL = v
	}
	if v := strings.TrimSpace(r.Host); v != "" {
		current.Host = v
	}
	if r.Port != 0 {
		current.Port = r.Port
	}
	if v := strings.TrimSpace(r.Username); v != "" {
		current.Username = v
	}
	if v := strings.TrimSpace(r.Password); v != "" {
		current.Password = v
	}
	if r.DB != nil {
		current.DB = *r.DB
	}
	if r.TLS != nil {
		current.TLS = *r.TLS
	}
	if v := strings.TrimSpace(r.Scheme); v != "" {
		current.Scheme = v
	}
	if len(r.Params) > 0 {
		current.Params = copyStringMap(r.Params)
	}
	return normalizeRedisConfig(current)
}

func applyCacheConfig(current, raw CacheConfig) CacheConfig {
	if v := strings.TrimSpace(raw.Driver); v != "" {
		current.Driver = strings.ToLower(v)
	}
	if raw.RepoListTTLSeconds != 0 {
		current.RepoListTTLSeconds = raw.RepoListTTLSeconds
	}
	if raw.AnalysisTTLSeconds != 0 {
		current.AnalysisTTLSeconds = raw.AnalysisTTLSeconds
	}
	if raw.LeaseTTLSeconds != 0 {
		current.LeaseTTLSeconds = raw.LeaseTTLSeconds
	}
	if raw.MemorySize != 0 {
		current.MemorySize = raw.MemorySize
	}
	return current
}

func applyGitHubConfig(current, raw GitHubConfig) GitHubConfig {
	if v := strings.TrimSpace(raw.ClientID); v != "" {
		current.ClientID = v
	}
	if v := strings.TrimSpace(raw.ClientSecret); v != "" {
		current.ClientSecret = v
	}
	if v := strings.TrimSpace(raw.RedirectURL); v != "" {
		current.RedirectURL = v
	}
	if v := strings.TrimSpace(raw.FrontendURL); v != "" {
		current.FrontendURL = v
	}
	if v := strings.TrimSpace(raw.APIBaseURL); v != "" {
		current.APIBaseURL = normalizeAPIBaseURL(v)
	}
	if scopes := normalizeOrigins(raw.Scopes); len(scopes) > 0 {
		current.Scopes = scopes
	}
	if raw.PerPage != 0 {
		current.PerPage = raw.PerPage
	}
	if raw.TimeoutSeconds != 0 {
		current.TimeoutSeconds = raw.TimeoutSeconds
	}
	if raw.ArchiveTimeoutSeconds != 0 {
		current.ArchiveTimeoutSeconds = raw.ArchiveTimeoutSeconds
	}
	return current
}

func applyAIConfig(current, raw AIConfig) AIConfig {
	if v := strings.TrimSpace(raw.Provider); v != "" {
		current.Provider = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.APIKey); v != "" {
		current.APIKey = v
	}
	if v := strings.TrimSpace(raw.Model); v != "" {
		current.Model = v
	}
	if v := strings.TrimSpace(raw.Endpoint); v != "" {
		current.Endpoint = strings.TrimRight(v, "/")
	}
	if raw.MaxOutputTokens != 0 {
		current.MaxOutputTokens = raw.MaxOutputTokens
	}
	if raw.TimeoutSeconds != 0 {
		current.TimeoutSeconds = raw.TimeoutSeconds
	}
	if raw.MaxAttempts != 0 {
		current.MaxAttempts = raw.MaxAttempts
	}
	if raw.RetryBaseMillis != 0 {
		current.RetryBaseMillis = raw.RetryBaseMillis
	}
	if raw.RPS != 0 {
		current.RPS = raw.RPS
	}
	if raw.Burst != 0 {
		current.Burst = raw.Burst
	}
	return current
}

func applyAnalysisConfig(current, raw AnalysisConfig) AnalysisConfig {
	if raw.TokenBudget != 0 {
		current.TokenBudget = raw.TokenBudget
	}
	if raw.CharsPerToken != 0 {
		current.CharsPerToken = raw.CharsPerToken
	}
	if exts := normalizeExtensions(raw.Extensions); len(exts) > 0 {
		current.Extensions = exts
	}
	if v := strings.TrimSpace(raw.DecodePolicy); v != "" {
		current.DecodePolicy = strings.ToLower(v)
	}
	if raw.MaxArchiveBytes != 0 {
		current.MaxArchiveBytes = raw.MaxArchiveBytes
	}
	if raw.MaxFileBytes != 0 {
		current.MaxFileBytes = raw.MaxFileBytes
	}
	if raw.MaxExtractedBytes != 0 {
		current.MaxExtractedBytes = raw.MaxExtractedBytes
	}
	if raw.Concurrency != 0 {
		current.Concurrency = raw.Concurrency
	}
	return current
}

// applyEnvSecrets fills secrets left empty by the YAML file.
func applyEnvSecrets(cfg *AppConfig, getenv func(string) string) {
	if cfg.GitHub.ClientSecret == "" {
		cfg.GitHub.ClientSecret = strings.TrimSpace(getenv(EnvGitHubClientSecret))
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = strings.TrimSpace(getenv(EnvJWTSecret))
	}
	if cfg.AI.APIKey == "" {
		switch cfg.AI.Provider {
		case AIProviderGemini:
			cfg.AI.APIKey = strings.TrimSpace(getenv(EnvGeminiAPIKey))
		case AIProviderOpenAI, AIProviderOpenAICompatible:
			cfg.AI.APIKey = strings.TrimSpace(getenv(EnvOpenAIAPIKey))
		case AIProviderAnthropic:
			cfg.AI.APIKey = strings.TrimSpace(getenv(EnvAnthropicAPIKey))
		}
	}
}

func (c *AppConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port %d, expected 1-65535", c.Database.Port)
	}
	if _, err := mysql.ParseDSN(c.DSN); err != nil {
		return fmt.Errorf("invalid database dsn: %w", err)
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", c.Redis.Port)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", c.Redis.DB)
	}

	switch c.Cache.Driver {
	case CacheDriverRedis, CacheDriverMemory:
	default:
		return fmt.Errorf("unknown cache.driver %q, expected %q or %q", c.Cache.Driver, CacheDriverRedis, CacheDriverMemory)
	}
	if c.Cache.RepoListTTLSeconds <= 0 || c.Cache.AnalysisTTLSeconds <= 0 || c.Cache.LeaseTTLSeconds <= 0 {
		return errors.New("cache ttls must be positive")
	}
	if c.Cache.MemorySize <= 0 {
		return fmt.Errorf("invalid cache.memory_size %d, expected > 0", c.Cache.MemorySize)
	}

	switch c.AI.Provider {
	case AIProviderGemini, AIProviderOpenAI, AIProviderAnthropic:
	case AIProviderOpenAICompatible:
		if c.AI.Endpoint == "" {
			return errors.New("ai.endpoint is required for the openai-compatible provider")
		}
		if c.AI.Model == "" {
			return errors.New("ai.model is required for the openai-compatible provider")
		}
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	if c.AI.MaxAttempts < 1 {
		return fmt.Errorf("invalid ai.max_attempts %d, expected >= 1", c.AI.MaxAttempts)
	}
	if c.AI.RPS < 0 {
		return fmt.Errorf("invalid ai.rps %v, expected >= 0", c.AI.RPS)
	}

	if c.Analysis.TokenBudget <= 0 {
		return fmt.Errorf("invalid analysis.token_budget %d, expected > 0", c.Analysis.TokenBudget)
	}
	if c.Analysis.CharsPerToken <= 0 {
		return fmt.Errorf("invalid analysis.chars_per_token %d, expected > 0", c.Analysis.CharsPerToken)
	}
	switch c.Analysis.DecodePolicy {
	case DecodePolicySkip, DecodePolicyReplace, DecodePolicyFail:
	default:
		return fmt.Errorf("unknown analysis.decode_policy %q", c.Analysis.DecodePolicy)
	}
	if c.Analysis.MaxArchiveBytes <= 0 {
		return fmt.Errorf("invalid analysis.max_archive_bytes %d, expected > 0", c.Analysis.MaxArchiveBytes)
	}
	if c.Analysis.MaxFileBytes <= 0 {
		return fmt.Errorf("invalid analysis.max_file_bytes %d, expected > 0", c.Analysis.MaxFileBytes)
	}
	if c.Analysis.MaxExtractedBytes < c.Analysis.MaxFileBytes {
		return fmt.Errorf("invalid analysis.max_extracted_bytes %d, expected >= max_file_bytes", c.Analysis.MaxExtractedBytes)
	}
	if c.Analysis.Concurrency <= 0 {
		return fmt.Errorf("invalid analysis.concurrency %d, expected > 0", c.Analysis.Concurrency)
	}
	if c.GitHub.ArchiveTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid github.archive_timeout_seconds %d, expected > 0", c.GitHub.ArchiveTimeoutSeconds)
	}
	if c.GitHub.PerPage <= 0 || c.GitHub.PerPage > 100 {
		return fmt.Errorf("invalid github.per_page %d, expected 1-100", c.GitHub.PerPage)
	}
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
	}
	return nil
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

func (c *AppConfig) LogDir() string {
	if c == nil {
		return ResolveRuntimePath("", "logs")
	}
	return ResolveRuntimePath(c.Paths.Logs, "logs")
}

func (c CacheConfig) RepoListTTL() time.Duration {
	return time.Duration(c.RepoListTTLSeconds) * time.Second
}

func (c CacheConfig) AnalysisTTL() time.Duration {
	return time.Duration(c.AnalysisTTLSeconds) * time.Second
}

func (c CacheConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c AIConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMillis) * time.Millisecond
}

func (c GitHubConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c GitHubConfig) ArchiveTimeout() time.Duration {
	return time.Duration(c.ArchiveTimeoutSeconds) * time.Second
}
