package gen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/halcyondata/askdb/errors"
)

// Column describes one table column.
type Column struct {
	Name string
	Type string
}

// Table describes one database table.
type Table struct {
	Name    string
	Columns []Column
}

// SchemaProvider reads the live database schema and renders it as prompt
// context for SQL generation. The schema is cached in-process; tables rarely
// change under a running service.
type SchemaProvider struct {
	db     *sql.DB
	ttl    time.Duration
	logger *zap.SugaredLogger

	mu        sync.Mutex
	tables    []Table
	fetchedAt time.Time
}

// NewSchemaProvider creates a provider with the given refresh interval.
func NewSchemaProvider(db *sql.DB, ttl time.Duration, logger *zap.SugaredLogger) *SchemaProvider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SchemaProvider{db: db, ttl: ttl, logger: logger}
}

// Tables returns the cached schema, refreshing it when stale.
func (p *SchemaProvider) Tables(ctx context.Context) ([]Table, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tables != nil && time.Since(p.fetchedAt) < p.ttl {
		return p.tables, nil
	}

	tables, err := p.load(ctx)
	if err != nil {
		if p.tables != nil {
			// Serve the stale copy rather than failing the request.
			p.logger.Warnw("Schema refresh failed, serving stale schema", "error", err)
			return p.tables, nil
		}
		return nil, err
	}

	p.tables = tables
	p.fetchedAt = time.Now()
	return tables, nil
}

// Context renders the schema as text for the generation prompt.
func (p *SchemaProvider) Context(ctx context.Context) (string, error) {
	tables, err := p.Tables(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, table := range tables {
		b.WriteString("TABLE ")
		b.WriteString(table.Name)
		b.WriteString(" (")
		for i, col := range table.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(col.Name)
			b.WriteString(" ")
			b.WriteString(col.Type)
		}
		b.WriteString(")\n")
	}
	return b.String(), nil
}

// Invalidate forces the next Tables call to reload from the database.
func (p *SchemaProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tables = nil
}

func (p *SchemaProvider) load(ctx context.Context) ([]Table, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tables")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan table name")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		columns, err := p.loadColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, Table{Name: name, Columns: columns})
	}
	return tables, nil
}

func (p *SchemaProvider) loadColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read columns of %s", table)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, errors.Wrapf(err, "failed to scan column of %s", table)
		}
		columns = append(columns, Column{Name: name, Type: colType})
	}
	return columns, rows.Err()
}
