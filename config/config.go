// Package config loads the askdb configuration using Viper.
//
// The access matrix and alert rules are read once at startup and are
// mutated only through explicit administrative operations, never by
// normal request processing.
package config

// Config represents the core askdb configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Reasoner  ReasonerConfig  `mapstructure:"reasoner"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Fallback  FallbackConfig  `mapstructure:"fallback"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Access    AccessConfig    `mapstructure:"access"`
}

// DatabaseConfig configures the SQLite data store
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ReasonerConfig configures the external natural-language reasoner
type ReasonerConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	// RequestsPerMinute bounds outbound reasoner calls process-wide
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// IdentityConfig configures the identity/role service client
type IdentityConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryDelayMS   int    `mapstructure:"retry_delay_ms"`
}

// RedisConfig configures the shared cache tier. Disabled means the cache
// runs on the local tier only.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig configures cache sizing and TTLs
type CacheConfig struct {
	MaxLocalEntries   int `mapstructure:"max_local_entries"`
	DefaultTTLSeconds int `mapstructure:"default_ttl_seconds"`
	ResultTTLSeconds  int `mapstructure:"result_ttl_seconds"`
	RoleTTLSeconds    int `mapstructure:"role_ttl_seconds"`
}

// ValidatorConfig configures SQL complexity ceilings
type ValidatorConfig struct {
	MaxJoins      int `mapstructure:"max_joins"`
	MaxConditions int `mapstructure:"max_conditions"`
	MaxSubqueries int `mapstructure:"max_subqueries"`
}

// ExecutorConfig configures statement execution limits
type ExecutorConfig struct {
	MaxRows              int  `mapstructure:"max_rows"`
	MaxRetries           int  `mapstructure:"max_retries"`
	StatementTimeoutSecs int  `mapstructure:"statement_timeout_seconds"`
	AllowCaching         bool `mapstructure:"allow_caching"`
	RetryBackoffBaseMS   int  `mapstructure:"retry_backoff_base_ms"`
}

// FallbackConfig configures error recovery policy
type FallbackConfig struct {
	// MaxReentries caps fallback re-entries per request; exceeding it
	// forces a notify action so every traversal terminates.
	MaxReentries int `mapstructure:"max_reentries"`
	// RecurrenceThreshold forces escalation once the same coarse error
	// key has been seen this many times.
	RecurrenceThreshold int `mapstructure:"recurrence_threshold"`
	// MaxTrackedErrors bounds the recurrence counter map.
	MaxTrackedErrors int `mapstructure:"max_tracked_errors"`
	// AlertRulesPath points at the YAML alert-rule file (optional).
	AlertRulesPath string `mapstructure:"alert_rules_path"`
}

// NotifyConfig configures ticketing and chat notification endpoints
type NotifyConfig struct {
	TicketURL      string `mapstructure:"ticket_url"`
	TicketUser     string `mapstructure:"ticket_user"`
	TicketToken    string `mapstructure:"ticket_token"`
	TicketProject  string `mapstructure:"ticket_project"`
	ChatWebhookURL string `mapstructure:"chat_webhook_url"`
}

// AccessConfig holds the table-level access matrix. Keys are table names
// or wildcard patterns ("report_*"); the "default" key is the fail-closed
// role set applied to unknown tables.
type AccessConfig struct {
	Matrix map[string][]string `mapstructure:"matrix"`
}
