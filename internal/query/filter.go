// Package query turns query-string parameters into SQL over the voevent
// table: named filter predicates, pagination and ordering, and the result
// shapes served by the API.
package query

import (
	"net/url"
	"sort"

	"voeventdb/internal/apierror"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Combinator decides how repeated values of one filter key are merged.
type Combinator int

const (
	// CombineFirst uses only the first value.
	CombineFirst Combinator = iota
	CombineOr
	CombineAnd
)

// Join names a table a filter needs joined onto voevent.
type Join string

const JoinCoord Join = "coord"

var joinSQL = map[Join]string{
	JoinCoord: "JOIN coord ON coord.voevent_id = voevent.id",
}

// Filter translates one query-string key into a SQL condition on voevent.
type Filter interface {
	Key() string
	Build(value string) (clause.Expression, error)
	Combinator() Combinator
	Joins() []Join
}

// Registry is an immutable table of filters keyed by query-string key.
type Registry struct {
	filters map[string]Filter
}

func NewRegistry(filters ...Filter) *Registry {
	r := &Registry{filters: make(map[string]Filter, len(filters))}
	for _, f := range filters {
		r.filters[f.Key()] = f
	}
	return r
}

// Keys returns the registered filter keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.filters))
	for k := range r.filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) Lookup(key string) (Filter, bool) {
	f, ok := r.filters[key]
	return f, ok
}

// Apply narrows db with every filter named in values. Pagination keys are
// skipped. Each key contributes one condition, ANDed with the rest; an
// unregistered key is an InvalidQueryString error.
func (r *Registry) Apply(db *gorm.DB, values url.Values) (*gorm.DB, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		if !IsPaginationKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	joins := make(map[Join]bool)
	for _, key := range keys {
		vals := values[key]
		f, ok := r.filters[key]
		if !ok {
			first := ""
			if len(vals) > 0 {
				first = vals[0]
			}
			return nil, apierror.InvalidQueryString(key, first, "Unrecognised filter key.")
		}
		if len(vals) == 0 {
			continue
		}

		expr, err := combine(f, vals)
		if err != nil {
			return nil, err
		}
		db = db.Where(expr)
		for _, j := range f.Joins() {
			joins[j] = true
		}
	}

	for _, j := range sortedJoins(joins) {
		db = db.Joins(joinSQL[j])
	}
	return db, nil
}

// Filtered applies the registry to the voevent table.
func (r *Registry) Filtered(db *gorm.DB, values url.Values) (*gorm.DB, error) {
	return r.Apply(db.Table("voevent"), values)
}

func combine(f Filter, vals []string) (clause.Expression, error) {
	if f.Combinator() == CombineFirst || len(vals) == 1 {
		return f.Build(vals[0])
	}

	exprs := make([]clause.Expression, 0, len(vals))
	for _, v := range vals {
		expr, err := f.Build(v)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	if f.Combinator() == CombineOr {
		return clause.Or(exprs...), nil
	}
	return clause.And(exprs...), nil
}

func sortedJoins(set map[Join]bool) []Join {
	out := make([]Join, 0, len(set))
	for j := range set {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out
}
