package config

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	DSN            string                `yaml:"-"`   // resolved MySQL DSN
	RedisURL       string                `yaml:"-"`   // resolved redis URL
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Cache          CacheConfig           `yaml:"cache"`
	GitHub         GitHubConfig          `yaml:"github"`
	AI             AIConfig              `yaml:"ai"`
	Analysis       AnalysisConfig        `yaml:"analysis"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	Timezone       string                `yaml:"timezone"`
}

type DatabaseRuntimeConfig struct {
	DSN         string            `yaml:"dsn"`
	Host        string            `yaml:"host"`
	Port        int               `yaml:"port"`
	User        string            `yaml:"user"`
	Password    string            `yaml:"password"`
	Name        string            `yaml:"name"`
	Charset     string            `yaml:"charset"`
	ParseTime   bool              `yaml:"parse_time"`
	Loc         string            `yaml:"loc"`
	Params      map[string]string `yaml:"params"`
	AutoMigrate bool              `yaml:"auto_migrate"`
}

type RedisRuntimeConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

// CacheConfig selects the cache backend and the lifetime of each keyspace.
type CacheConfig struct {
	Driver             string `yaml:"driver"` // "redis" | "memory"
	RepoListTTLSeconds int    `yaml:"repo_list_ttl_seconds"`
	AnalysisTTLSeconds int    `yaml:"analysis_ttl_seconds"`
	LeaseTTLSeconds    int    `yaml:"lease_ttl_seconds"`
	MemorySize         int    `yaml:"memory_size"`
}

type GitHubConfig struct {
	ClientID       string   `yaml:"client_id"`
	ClientSecret   string   `yaml:"client_secret"`
	RedirectURL    string   `yaml:"redirect_url"`
	FrontendURL    string   `yaml:"frontend_url"`
	APIBaseURL     string   `yaml:"api_base_url"`
	Scopes         []string `yaml:"scopes"`
	PerPage        int      `yaml:"per_page"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`

	// ArchiveTimeoutSeconds bounds a whole zipball download, body included.
	ArchiveTimeoutSeconds int `yaml:"archive_timeout_seconds"`
}

type AIConfig struct {
	Provider        string  `yaml:"provider"` // gemini | openai | anthropic | openai-compatible
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	Endpoint        string  `yaml:"endpoint"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	MaxAttempts     int     `yaml:"max_attempts"`
	RetryBaseMillis int     `yaml:"retry_base_millis"`
	RPS             float64 `yaml:"rps"` // 0 disables client-side throttling
	Burst           int     `yaml:"burst"`
}

type AnalysisConfig struct {
	TokenBudget     int      `yaml:"token_budget"`
	CharsPerToken   int      `yaml:"chars_per_token"`
	Extensions      []string `yaml:"extensions"`
	DecodePolicy    string   `yaml:"decode_policy"` // skip | replace | fail
	MaxArchiveBytes int64    `yaml:"max_archive_bytes"`
	Concurrency     int      `yaml:"concurrency"`

	// Uncompressed caps: a larger file is skipped, a larger total fails extraction.
	MaxFileBytes      int64 `yaml:"max_file_bytes"`
	MaxExtractedBytes int64 `yaml:"max_extracted_bytes"`
}

type RuntimePathsConfig struct {
	Logs string `yaml:"logs"`
}

type rawAppConfig struct {
	Port           int                `yaml:"port"`
	Env            string             `yaml:"env"`
	DSN            string             `yaml:"dsn"`
	RedisURL       string             `yaml:"redis_url"`
	Database       rawDatabaseConfig  `yaml:"database"`
	Redis          rawRedisConfig     `yaml:"redis"`
	Cache          CacheConfig        `yaml:"cache"`
	GitHub         GitHubConfig       `yaml:"github"`
	AI             AIConfig           `yaml:"ai"`
	Analysis       AnalysisConfig     `yaml:"analysis"`
	Paths          RuntimePathsConfig `yaml:"paths"`
	LogDir         string             `yaml:"log_dir"`
	AllowedOrigins []string           `yaml:"allowed_origins"`
	JWTSecret      string             `yaml:"jwt_secret"`
	Timezone       string             `yaml:"timezone"`
}

type rawDatabaseConfig struct {
	DSN         string            `yaml:"dsn"`
	Host        string            `yaml:"host"`
	Port        int               `yaml:"port"`
	User        string            `yaml:"user"`
	Password    string            `yaml:"password"`
	Name        string            `yaml:"name"`
	Charset     string            `yaml:"charset"`
	ParseTime   *bool             `yaml:"parse_time"`
	Loc         string            `yaml:"loc"`
	Params      map[string]string `yaml:"params"`
	AutoMigrate *bool             `yaml:"auto_migrate"`
}

type rawRedisConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}
