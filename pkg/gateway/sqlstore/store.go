package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/coopportal/coopsearch/pkg/gateway"
)

// Dialect selects the SQL driver and placeholder style
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// ParseDialect parses a dialect name; "sqlite" is accepted for sqlite3
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("unsupported dialect %q", s)
}

func (d Dialect) placeholder() sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

// Store is a gateway.Gateway over a database/sql pool
type Store struct {
	pool    *Pool
	dialect Dialect
	schema  Schema
}

// Option configures a Store
type Option func(*Store)

// WithSchema replaces the default schema
func WithSchema(schema Schema) Option {
	return func(s *Store) {
		s.schema = schema
	}
}

// New creates a store reading from a single database
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	return NewWithPool(NewPool(db), dialect, opts...)
}

// NewWithPool creates a store reading from pool
func NewWithPool(pool *Pool, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		pool:    pool,
		dialect: dialect,
		schema:  DefaultSchema(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pool returns the underlying connection pool
func (s *Store) Pool() *Pool {
	return s.pool
}

// Find implements gateway.Gateway
func (s *Store) Find(ctx context.Context, q gateway.Query) ([]gateway.Record, error) {
	query, args, err := s.buildSelect(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Reader().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Table, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", q.Table, err)
	}
	return records, nil
}

// Count implements gateway.Gateway
func (s *Store) Count(ctx context.Context, q gateway.Query) (int, error) {
	q.CountOnly = true
	query, args, err := s.buildSelect(q)
	if err != nil {
		return 0, err
	}

	var n int
	if err := s.pool.Reader().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.Table, err)
	}
	return n, nil
}

// buildSelect renders q in the store's dialect
func (s *Store) buildSelect(q gateway.Query) (string, []interface{}, error) {
	if err := gateway.Validate(q); err != nil {
		return "", nil, err
	}
	if err := s.schema.check(q); err != nil {
		return "", nil, err
	}

	builder, err := selectBuilder(q)
	if err != nil {
		return "", nil, err
	}
	return builder.PlaceholderFormat(s.dialect.placeholder()).ToSql()
}

// selectBuilder builds q with ? placeholders so it can be nested in another query
func selectBuilder(q gateway.Query) (sq.SelectBuilder, error) {
	var builder sq.SelectBuilder
	switch {
	case q.CountOnly:
		builder = sq.Select("COUNT(*)")
	case len(q.Columns) == 0:
		builder = sq.Select("*")
	default:
		builder = sq.Select(q.Columns...)
	}
	builder = builder.From(q.Table)

	if q.Match != nil {
		builder = builder.Where(matchClause(q.Match))
	}

	for _, f := range q.Filters {
		pred, err := filterClause(f)
		if err != nil {
			return builder, err
		}
		builder = builder.Where(pred)
	}

	if q.Limit > 0 && !q.CountOnly {
		builder = builder.Limit(uint64(q.Limit))
	}
	return builder, nil
}

func matchClause(m *gateway.Match) sq.Sqlizer {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(m.Term))) + "%"
	or := make(sq.Or, 0, len(m.Fields))
	for _, field := range m.Fields {
		or = append(or, sq.Expr("LOWER("+field+") LIKE ? ESCAPE '\\'", pattern))
	}
	return or
}

func filterClause(f gateway.Filter) (sq.Sqlizer, error) {
	switch f.Op {
	case gateway.OpEq, gateway.OpIn:
		return sq.Eq{f.Column: f.Value}, nil
	case gateway.OpInSubquery:
		sub, err := selectBuilder(*f.Sub)
		if err != nil {
			return nil, err
		}
		subSQL, subArgs, err := sub.ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build sub-query on %s: %w", f.Sub.Table, err)
		}
		return sq.Expr(f.Column+" IN ("+subSQL+")", subArgs...), nil
	}
	return nil, fmt.Errorf("%w: unknown operator %q", gateway.ErrInvalidQuery, f.Op)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE wildcards in a search term literal
func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

func scanRecords(rows *sql.Rows) ([]gateway.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []gateway.Record
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := make(gateway.Record, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = values[i]
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
