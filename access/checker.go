package access

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/cache"
	"github.com/halcyondata/askdb/errors"
	"github.com/halcyondata/askdb/sqlguard"
)

// RoleSource resolves a user id to their roles.
type RoleSource interface {
	RolesFor(ctx context.Context, userID string) ([]string, error)
}

// Decision is the outcome of an access check. A statement is allowed only
// when the user holds a qualifying role for every table it touches.
type Decision struct {
	Allowed       bool                `json:"allowed"`
	UserRoles     []string            `json:"user_roles"`
	Tables        []string            `json:"tables"`
	RequiredRoles map[string][]string `json:"required_roles"`
	FailedTables  []string            `json:"failed_tables,omitempty"`
	Reason        string              `json:"reason,omitempty"`
}

// Checker enforces the table access matrix. Missing information always
// resolves to a denial. The matrix is replaced only through SetMatrix,
// never during request processing.
type Checker struct {
	mu      sync.RWMutex
	matrix  map[string][]string
	roles   RoleSource
	cache   *cache.Service
	roleTTL time.Duration
	logger  *zap.SugaredLogger
}

// Config holds checker construction parameters.
type Config struct {
	// Matrix maps table names (or prefix patterns like "report_*") to the
	// roles allowed to read them. The "default" entry covers unknown tables.
	Matrix  map[string][]string
	Roles   RoleSource
	Cache   *cache.Service
	RoleTTL time.Duration
	Logger  *zap.SugaredLogger
}

// NewChecker creates an access checker.
func NewChecker(cfg Config) *Checker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.RoleTTL == 0 {
		cfg.RoleTTL = 5 * time.Minute
	}

	matrix := make(map[string][]string, len(cfg.Matrix))
	for table, roles := range cfg.Matrix {
		matrix[strings.ToLower(table)] = roles
	}

	return &Checker{
		matrix:  matrix,
		roles:   cfg.Roles,
		cache:   cfg.Cache,
		roleTTL: cfg.RoleTTL,
		logger:  logger,
	}
}

// Check decides whether userID may run the statement. Every table the
// statement reads must be covered by at least one of the user's roles.
// A statement whose tables cannot be determined is denied, and so is a
// user whose roles cannot be resolved: an identity outage never widens
// access.
func (c *Checker) Check(ctx context.Context, userID, sql string) (Decision, error) {
	decision := Decision{RequiredRoles: make(map[string][]string)}

	decision.Tables = sqlguard.ExtractTables(sql)
	if len(decision.Tables) == 0 {
		decision.Reason = "could not determine which tables the query reads"
		c.logger.Warnw("Access denied: no tables extracted", "user_id", userID)
		return decision, nil
	}

	userRoles, err := c.userRoles(ctx, userID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			decision.Reason = "unknown user"
			return decision, nil
		}
		decision.Reason = "could not resolve user roles"
		c.logger.Warnw("Access denied: role lookup failed",
			"user_id", userID,
			"error", err,
		)
		return decision, nil
	}
	decision.UserRoles = userRoles

	if len(userRoles) == 0 {
		decision.Reason = "user holds no roles"
		return decision, nil
	}

	roleSet := make(map[string]struct{}, len(userRoles))
	for _, role := range userRoles {
		roleSet[role] = struct{}{}
	}

	for _, table := range decision.Tables {
		required := c.RequiredRoles(table)
		decision.RequiredRoles[table] = required

		qualified := false
		for _, role := range required {
			if _, ok := roleSet[role]; ok {
				qualified = true
				break
			}
		}
		if !qualified {
			decision.FailedTables = append(decision.FailedTables, table)
		}
	}

	if len(decision.FailedTables) > 0 {
		decision.Reason = "missing required role for: " + strings.Join(decision.FailedTables, ", ")
		c.logger.Infow("Access denied",
			"user_id", userID,
			"failed_tables", decision.FailedTables,
			"user_roles", userRoles,
		)
		return decision, nil
	}

	decision.Allowed = true
	return decision, nil
}

// RequiredRoles resolves the roles needed to read a table: exact matrix
// match first, then wildcard patterns, then the default policy. The default
// when nothing matches at all is admin-only.
func (c *Checker) RequiredRoles(table string) []string {
	table = strings.ToLower(table)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if roles, ok := c.matrix[table]; ok && len(roles) > 0 {
		return roles
	}

	for pattern, roles := range c.matrix {
		if !strings.Contains(pattern, "*") || len(roles) == 0 {
			continue
		}
		if matchWildcard(pattern, table) {
			return roles
		}
	}

	if roles, ok := c.matrix["default"]; ok && len(roles) > 0 {
		return roles
	}
	return []string{"admin"}
}

// SetMatrix replaces the access matrix wholesale. Administrative reloads
// only; in-flight checks finish against the matrix they started with.
func (c *Checker) SetMatrix(matrix map[string][]string) {
	normalized := make(map[string][]string, len(matrix))
	for table, roles := range matrix {
		normalized[strings.ToLower(table)] = roles
	}

	c.mu.Lock()
	c.matrix = normalized
	c.mu.Unlock()

	c.logger.Infow("Access matrix replaced", "entries", len(normalized))
}

// userRoles fetches roles through the cache when one is configured. Role
// lookups and query results share the cache service but live in separate
// key namespaces.
func (c *Checker) userRoles(ctx context.Context, userID string) ([]string, error) {
	if c.cache == nil {
		return c.roles.RolesFor(ctx, userID)
	}

	key := "roles:" + userID
	value, _, err := c.cache.GetOrLoad(ctx, key, c.roleTTL, func(ctx context.Context) ([]byte, error) {
		roles, err := c.roles.RolesFor(ctx, userID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(roles)
	})
	if err != nil {
		return nil, err
	}

	var roles []string
	if err := json.Unmarshal(value, &roles); err != nil {
		return nil, errors.Wrap(err, "corrupt cached roles entry")
	}
	return roles, nil
}

// InvalidateUser drops a user's cached roles, forcing the next check to hit
// the identity service.
func (c *Checker) InvalidateUser(ctx context.Context, userID string) {
	if c.cache != nil {
		c.cache.Delete(ctx, "roles:"+userID)
	}
}

// matchWildcard matches a table against a matrix pattern where '*' matches
// any run of characters.
func matchWildcard(pattern, table string) bool {
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(table, parts[0]) {
		return false
	}
	table = table[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(table, part)
		if idx < 0 {
			return false
		}
		table = table[idx+len(part):]
	}
	return strings.HasSuffix(table, parts[len(parts)-1])
}
