package query

import (
	"net/url"
	"strconv"
	"strings"

	"voeventdb/internal/apierror"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KeyLimit  = "limit"
	KeyOffset = "offset"
	KeyOrder  = "order"

	DefaultQueryLimit = 100
	MaxQueryLimit     = 10000
)

func IsPaginationKey(key string) bool {
	return key == KeyLimit || key == KeyOffset || key == KeyOrder
}

type OrderKey string

const (
	OrderID                 OrderKey = "id"
	OrderIDDesc             OrderKey = "-id"
	OrderIvorn              OrderKey = "ivorn"
	OrderIvornDesc          OrderKey = "-ivorn"
	OrderAuthorDatetime     OrderKey = "author_datetime"
	OrderAuthorDatetimeDesc OrderKey = "-author_datetime"
)

// OrderKeys lists every accepted order value.
var OrderKeys = []OrderKey{
	OrderID, OrderIDDesc,
	OrderIvorn, OrderIvornDesc,
	OrderAuthorDatetime, OrderAuthorDatetimeDesc,
}

func ParseOrderKey(s string) (OrderKey, bool) {
	for _, k := range OrderKeys {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

func column(name string) clause.Column {
	return clause.Column{Name: name, Raw: true}
}

// Columns returns the ORDER BY terms for k. Anything not ordered by id gets
// voevent.id ascending as a tie-breaker so pages never overlap.
func (k OrderKey) Columns() []clause.OrderByColumn {
	switch k {
	case OrderIDDesc:
		return []clause.OrderByColumn{{Column: column("voevent.id"), Desc: true}}
	case OrderIvorn:
		return []clause.OrderByColumn{{Column: column("voevent.ivorn")}, {Column: column("voevent.id")}}
	case OrderIvornDesc:
		return []clause.OrderByColumn{{Column: column("voevent.ivorn"), Desc: true}, {Column: column("voevent.id")}}
	case OrderAuthorDatetime:
		return []clause.OrderByColumn{{Column: column("voevent.author_datetime")}, {Column: column("voevent.id")}}
	case OrderAuthorDatetimeDesc:
		return []clause.OrderByColumn{{Column: column("voevent.author_datetime"), Desc: true}, {Column: column("voevent.id")}}
	default:
		return []clause.OrderByColumn{{Column: column("voevent.id")}}
	}
}

// Limits bounds the page size.
type Limits struct {
	Default int
	Max     int
}

func DefaultLimits() Limits {
	return Limits{Default: DefaultQueryLimit, Max: MaxQueryLimit}
}

// Pagination is a validated result window.
type Pagination struct {
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
	Order  OrderKey `json:"order"`
}

// ParsePagination reads limit, offset and order from values. Only the first
// value of each key is considered.
func ParsePagination(values url.Values, limits Limits) (Pagination, error) {
	p := Pagination{Limit: limits.Default, Order: OrderID}

	if v, ok := first(values, KeyLimit); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return Pagination{}, apierror.InvalidQueryString(KeyLimit, v, "Limit must be a positive integer.")
		}
		if n > limits.Max {
			return Pagination{}, apierror.LimitMaxExceeded(n, limits.Max)
		}
		p.Limit = n
	}

	if v, ok := first(values, KeyOffset); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return Pagination{}, apierror.InvalidQueryString(KeyOffset, v, "Offset must be a non-negative integer.")
		}
		p.Offset = n
	}

	if v, ok := first(values, KeyOrder); ok {
		k, valid := ParseOrderKey(strings.TrimSpace(v))
		if !valid {
			return Pagination{}, apierror.InvalidQueryString(KeyOrder, v,
				"Order must be one of id, -id, ivorn, -ivorn, author_datetime, -author_datetime.")
		}
		p.Order = k
	}
	return p, nil
}

// Apply adds ordering and the result window to db.
func (p Pagination) Apply(db *gorm.DB) *gorm.DB {
	return p.Window(db.Order(clause.OrderBy{Columns: p.Order.Columns()}))
}

// Window adds only limit and offset, for shapes with a fixed order.
func (p Pagination) Window(db *gorm.DB) *gorm.DB {
	db = db.Limit(p.Limit)
	if p.Offset > 0 {
		db = db.Offset(p.Offset)
	}
	return db
}

func first(values url.Values, key string) (string, bool) {
	vals, ok := values[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}
