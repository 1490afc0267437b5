package option

import (
	"fmt"
	"strings"
)

// QueryOption adjusts list queries built by repositories.
type QueryOption func(*Query)

type Query struct {
	SortBy    string
	SortDesc  bool
	Limit     int
	allowList map[string]struct{}
}

// WithSortBy orders by column, ascending unless desc.
func WithSortBy(column string, desc bool) QueryOption {
	return func(q *Query) {
		q.SortBy = strings.TrimSpace(column)
		q.SortDesc = desc
	}
}

// WithQuerySortBy parses "created_at" / "-created_at" style sort params.
func WithQuerySortBy(raw string) QueryOption {
	raw = strings.TrimSpace(raw)
	desc := strings.HasPrefix(raw, "-")
	return WithSortBy(strings.TrimPrefix(raw, "-"), desc)
}

func WithLimit(limit int) QueryOption {
	return func(q *Query) {
		q.Limit = limit
	}
}

// Apply resolves the options against the columns a repository allows.
func Apply(defaultSort string, allowed []string, opts ...QueryOption) Query {
	q := Query{allowList: make(map[string]struct{}, len(allowed))}
	for _, col := range allowed {
		q.allowList[col] = struct{}{}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&q)
		}
	}
	if _, ok := q.allowList[q.SortBy]; !ok {
		q.SortBy = defaultSort
		q.SortDesc = true
	}
	return q
}

// OrderClause renders the ORDER BY / LIMIT tail of a raw query.
func (q Query) OrderClause() string {
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}
	clause := fmt.Sprintf(" ORDER BY %s %s, id %s", q.SortBy, dir, dir)
	if q.Limit > 0 {
		clause += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return clause
}
