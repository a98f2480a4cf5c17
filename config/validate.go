package config

import "github.com/halcyondata/askdb/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Validator.MaxJoins < 0 {
		return errors.Newf("validator.max_joins must be >= 0, got %d", c.Validator.MaxJoins)
	}
	if c.Validator.MaxConditions < 0 {
		return errors.Newf("validator.max_conditions must be >= 0, got %d", c.Validator.MaxConditions)
	}
	if c.Validator.MaxSubqueries < 0 {
		return errors.Newf("validator.max_subqueries must be >= 0, got %d", c.Validator.MaxSubqueries)
	}

	if c.Executor.MaxRows <= 0 {
		return errors.Newf("executor.max_rows must be > 0, got %d", c.Executor.MaxRows)
	}
	if c.Executor.MaxRetries < 1 {
		return errors.Newf("executor.max_retries must be >= 1, got %d", c.Executor.MaxRetries)
	}
	if c.Executor.StatementTimeoutSecs <= 0 {
		return errors.Newf("executor.statement_timeout_seconds must be > 0, got %d", c.Executor.StatementTimeoutSecs)
	}

	if c.Identity.MaxRetries < 1 {
		return errors.Newf("identity.max_retries must be >= 1, got %d", c.Identity.MaxRetries)
	}

	// A zero re-entry cap would route every error straight to notify;
	// negative is invalid.
	if c.Fallback.MaxReentries < 0 {
		return errors.Newf("fallback.max_reentries must be >= 0, got %d", c.Fallback.MaxReentries)
	}
	if c.Fallback.RecurrenceThreshold < 1 {
		return errors.Newf("fallback.recurrence_threshold must be >= 1, got %d", c.Fallback.RecurrenceThreshold)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr cannot be empty when redis is enabled")
	}

	// The matrix must always carry a fail-closed default entry
	if len(c.Access.Matrix) > 0 {
		if _, ok := c.Access.Matrix["default"]; !ok {
			return errors.New(`access.matrix must define a "default" role set`)
		}
	}

	return nil
}
