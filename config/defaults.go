package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "askdb.db")

	// Reasoner defaults
	v.SetDefault("reasoner.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("reasoner.model", "openai/gpt-4o-mini") // Cost-effective default
	v.SetDefault("reasoner.temperature", 0.2)            // Deterministic
	v.SetDefault("reasoner.max_tokens", 1000)
	v.SetDefault("reasoner.timeout_seconds", 120)
	v.SetDefault("reasoner.requests_per_minute", 60)

	// Identity service defaults
	v.SetDefault("identity.timeout_seconds", 5)
	v.SetDefault("identity.max_retries", 3)
	v.SetDefault("identity.retry_delay_ms", 500)

	// Shared cache tier defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Cache defaults
	v.SetDefault("cache.max_local_entries", 1024)
	v.SetDefault("cache.default_ttl_seconds", 300)
	v.SetDefault("cache.result_ttl_seconds", 3600) // 1 hour
	v.SetDefault("cache.role_ttl_seconds", 300)    // 5 minutes

	// Validator ceilings
	v.SetDefault("validator.max_joins", 5)
	v.SetDefault("validator.max_conditions", 10)
	v.SetDefault("validator.max_subqueries", 2)

	// Executor limits
	v.SetDefault("executor.max_rows", 10000)
	v.SetDefault("executor.max_retries", 3)
	v.SetDefault("executor.statement_timeout_seconds", 30)
	v.SetDefault("executor.allow_caching", true)
	v.SetDefault("executor.retry_backoff_base_ms", 2000)

	// Fallback policy
	v.SetDefault("fallback.max_reentries", 2)
	v.SetDefault("fallback.recurrence_threshold", 3)
	v.SetDefault("fallback.max_tracked_errors", 1024)

	// Access matrix: fail-closed default requires admin
	v.SetDefault("access.matrix", map[string][]string{
		"sales":     {"sales_manager", "analyst", "admin"},
		"customers": {"sales_manager", "customer_support", "admin"},
		"products":  {"product_manager", "analyst", "admin"},
		"users":     {"admin", "system_admin"},
		"audit_log": {"admin", "auditor"},
		"report_*":  {"analyst", "report_user"},
		"temp_*":    {"analyst", "developer"},
		"default":   {"admin"},
	})
}
