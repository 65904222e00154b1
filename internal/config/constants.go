package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 8080
	defaultEnv        = "development"

	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "codeverdict"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"

	defaultRedisHost = "localhost"
	defaultRedisPort = 6379
	defaultRedisDB   = 0

	CacheDriverRedis  = "redis"
	CacheDriverMemory = "memory"

	defaultCacheDriver     = CacheDriverRedis
	defaultRepoListTTL     = 3600
	defaultAnalysisTTL     = 3600
	defaultLeaseTTL        = 300
	defaultMemoryCacheSize = 4096

	defaultGitHubAPIBaseURL = "https://api.github.com/"
	defaultGitHubPerPage    = 30
	defaultGitHubTimeout    = 30
	defaultArchiveTimeout   = 300

	AIProviderGemini           = "gemini"
	AIProviderOpenAI           = "openai"
	AIProviderAnthropic        = "anthropic"
	AIProviderOpenAICompatible = "openai-compatible"

	defaultAIProvider        = AIProviderGemini
	defaultAIMaxOutputTokens = 1024
	defaultAITimeout         = 60
	defaultAIMaxAttempts     = 3
	defaultAIRetryBaseMillis = 300

	DecodePolicySkip    = "skip"
	DecodePolicyReplace = "replace"
	DecodePolicyFail    = "fail"

	DefaultTokenBudget     = 4000
	defaultCharsPerToken   = 4
	defaultDecodePolicy    = DecodePolicySkip
	defaultMaxArchiveBytes = 64 << 20
	defaultMaxFileBytes    = 1 << 20
	defaultMaxExtracted    = 256 << 20
	defaultConcurrency     = 4
)

// DefaultExtensions is the allow-list of source/text extensions fed to the analyzer.
var DefaultExtensions = []string{
	"js", "ts", "tsx", "jsx", "py", "go", "rs", "java", "cpp", "c", "cs", "html", "css", "json", "md",
}

// DefaultGitHubScopes are requested on login; "repo" is required for private archives.
var DefaultGitHubScopes = []string{"read:user", "user:email", "repo"}
