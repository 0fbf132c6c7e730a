package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownTable is returned when a query names a table the gateway does not expose
	ErrUnknownTable = errors.New("unknown table")

	// ErrUnknownColumn is returned when a query names a column the table does not expose
	ErrUnknownColumn = errors.New("unknown column")

	// ErrInvalidQuery is returned by Validate
	ErrInvalidQuery = errors.New("invalid query")

	// ErrCircuitOpen is returned while a table's circuit breaker rejects calls
	ErrCircuitOpen = errors.New("circuit open")
)

// Op is a filter operator
type Op string

const (
	OpEq         Op = "eq"
	OpIn         Op = "in"
	OpInSubquery Op = "in_subquery"
)

// Match is a case-insensitive substring predicate OR-ed across fields
type Match struct {
	Term   string
	Fields []string
}

// Filter restricts rows. Filters in a query are AND-ed.
type Filter struct {
	Column string
	Op     Op
	Value  any    // eq: a scalar; in: []string
	Sub    *Query // in_subquery: single-column sub-select
}

// Query describes one read against the store
type Query struct {
	Table     string
	Columns   []string
	Match     *Match
	Filters   []Filter
	Limit     int // 0 means no limit
	CountOnly bool
}

// Record is one row keyed by column name
type Record map[string]any

// Gateway is the Data Access Gateway contract
type Gateway interface {
	Find(ctx context.Context, q Query) ([]Record, error)
	Count(ctx context.Context, q Query) (int, error)
}

// Eq builds an equality filter
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// In builds a membership filter
func In(column string, values []string) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

// InSubquery builds a filter matching column against the single column selected by sub
func InSubquery(column string, sub Query) Filter {
	return Filter{Column: column, Op: OpInSubquery, Sub: &sub}
}

// Validate checks a query for structural errors
func Validate(q Query) error {
	if strings.TrimSpace(q.Table) == "" {
		return fmt.Errorf("%w: table is required", ErrInvalidQuery)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidQuery)
	}
	if q.Match != nil {
		if strings.TrimSpace(q.Match.Term) == "" {
			return fmt.Errorf("%w: match term is empty", ErrInvalidQuery)
		}
		if len(q.Match.Fields) == 0 {
			return fmt.Errorf("%w: match has no fields", ErrInvalidQuery)
		}
	}
	for _, f := range q.Filters {
		if f.Column == "" {
			return fmt.Errorf("%w: filter column is required", ErrInvalidQuery)
		}
		switch f.Op {
		case OpEq:
		case OpIn:
			if _, ok := f.Value.([]string); !ok {
				return fmt.Errorf("%w: %s in filter needs []string, got %T", ErrInvalidQuery, f.Column, f.Value)
			}
		case OpInSubquery:
			if f.Sub == nil {
				return fmt.Errorf("%w: %s in_subquery filter has no sub-query", ErrInvalidQuery, f.Column)
			}
			if f.Sub.CountOnly || len(f.Sub.Columns) != 1 {
				return fmt.Errorf("%w: %s sub-query must select exactly one column", ErrInvalidQuery, f.Column)
			}
			if err := Validate(*f.Sub); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, f.Op)
		}
	}
	return nil
}

// String returns the column value as a string, or "" when absent or NULL
func (r Record) String(column string) string {
	switch v := r[column].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
