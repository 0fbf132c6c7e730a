// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/coopportal/coopsearch/pkg/gateway"
)

// Call is one recorded gateway invocation
type Call struct {
	Op    string // "find" or "count"
	Query gateway.Query
}

// Hook runs before a table is queried. Returning an error fails the call.
type Hook func(ctx context.Context, q gateway.Query) error

// Gateway is an in-memory gateway with row data per table, a call log, and per-table
// error and delay hooks
type Gateway struct {
	mu     sync.Mutex
	tables map[string][]gateway.Record
	hooks  map[string]Hook
	calls  []Call
}

// New creates an empty fake gateway
func New() *Gateway {
	return &Gateway{
		tables: make(map[string][]gateway.Record),
		hooks:  make(map[string]Hook),
	}
}

// Insert appends rows to a table
func (g *Gateway) Insert(table string, rows ...gateway.Record) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tables[table] = append(g.tables[table], rows...)
	return g
}

// FailTable makes every call against table return err
func (g *Gateway) FailTable(table string, err error) *Gateway {
	return g.OnTable(table, func(context.Context, gateway.Query) error { return err })
}

// BlockTable makes calls against table wait until release is closed or the call's
// context is done
func (g *Gateway) BlockTable(table string, release <-chan struct{}) *Gateway {
	return g.OnTable(table, func(ctx context.Context, _ gateway.Query) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// OnTable installs a hook for table, replacing any previous one
func (g *Gateway) OnTable(table string, hook Hook) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks[table] = hook
	return g
}

// Calls returns a copy of the call log
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// Tables returns the distinct tables queried, in first-call order
func (g *Gateway) Tables() []string {
	seen := make(map[string]bool)
	var tables []string
	for _, c := range g.Calls() {
		if !seen[c.Query.Table] {
			seen[c.Query.Table] = true
			tables = append(tables, c.Query.Table)
		}
	}
	return tables
}

// Reset clears the call log
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = nil
}

// Find implements gateway.Gateway
func (g *Gateway) Find(ctx context.Context, q gateway.Query) ([]gateway.Record, error) {
	rows, err := g.run(ctx, "find", q)
	if err != nil {
		return nil, err
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return project(rows, q.Columns), nil
}

// Count implements gateway.Gateway
func (g *Gateway) Count(ctx context.Context, q gateway.Query) (int, error) {
	rows, err := g.run(ctx, "count", q)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (g *Gateway) run(ctx context.Context, op string, q gateway.Query) ([]gateway.Record, error) {
	g.mu.Lock()
	g.calls = append(g.calls, Call{Op: op, Query: q})
	hook := g.hooks[q.Table]
	g.mu.Unlock()

	if err := gateway.Validate(q); err != nil {
		return nil, err
	}
	if hook != nil {
		if err := hook(ctx, q); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filter(q)
}

// filter must be called with g.mu held
func (g *Gateway) filter(q gateway.Query) ([]gateway.Record, error) {
	data, ok := g.tables[q.Table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrUnknownTable, q.Table)
	}

	var out []gateway.Record
	for _, row := range data {
		keep, err := g.matches(row, q)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

func (g *Gateway) matches(row gateway.Record, q gateway.Query) (bool, error) {
	if q.Match != nil {
		term := strings.ToLower(q.Match.Term)
		hit := false
		for _, f := range q.Match.Fields {
			if strings.Contains(strings.ToLower(row.String(f)), term) {
				hit = true
				break
			}
		}
		if !hit {
			return false, nil
		}
	}

	for _, f := range q.Filters {
		value := row.String(f.Column)
		switch f.Op {
		case gateway.OpEq:
			if _, present := row[f.Column]; !present || value != fmt.Sprint(f.Value) {
				return false, nil
			}
		case gateway.OpIn:
			if !contains(f.Value.([]string), value) {
				return false, nil
			}
		case gateway.OpInSubquery:
			sub, err := g.filter(*f.Sub)
			if err != nil {
				return false, err
			}
			col := f.Sub.Columns[0]
			found := false
			for _, s := range sub {
				if s.String(col) == value {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
	}
	return true, nil
}

func project(rows []gateway.Record, columns []string) []gateway.Record {
	out := make([]gateway.Record, 0, len(rows))
	for _, row := range rows {
		rec := make(gateway.Record, len(row))
		if len(columns) == 0 {
			for k, v := range row {
				rec[k] = v
			}
		} else {
			for _, c := range columns {
				rec[c] = row[c]
			}
		}
		out = append(out, rec)
	}
	return out
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
