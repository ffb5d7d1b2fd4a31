package query

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"voeventdb/internal/apierror"
	"voeventdb/internal/models"

	"github.com/araddon/dateparse"
	"gorm.io/gorm/clause"
)

type predicate struct {
	key        string
	combinator Combinator
	joins      []Join
	build      func(key, value string) (clause.Expression, error)
}

func (p predicate) Key() string            { return p.key }
func (p predicate) Combinator() Combinator { return p.combinator }
func (p predicate) Joins() []Join          { return p.joins }

func (p predicate) Build(value string) (clause.Expression, error) {
	return p.build(p.key, value)
}

var defaultRegistry = NewRegistry(
	predicate{key: "authored_since", build: authoredBound(">=")},
	predicate{key: "authored_until", build: authoredBound("<=")},
	predicate{key: "cited", build: existence(
		"EXISTS (SELECT 1 FROM cite WHERE cite.ref_ivorn = voevent.ivorn)")},
	predicate{key: "cone", joins: []Join{JoinCoord}, build: coneFilter},
	predicate{key: "coord", build: existence(
		"EXISTS (SELECT 1 FROM coord AS c WHERE c.voevent_id = voevent.id)")},
	predicate{key: "dec_gt", joins: []Join{JoinCoord}, build: decBound(">")},
	predicate{key: "dec_lt", joins: []Join{JoinCoord}, build: decBound("<")},
	predicate{key: "ivorn_contains", combinator: CombineAnd, build: func(_, v string) (clause.Expression, error) {
		return clause.Expr{SQL: `voevent.ivorn LIKE ? ESCAPE '\'`, Vars: []interface{}{"%" + EscapeLike(v) + "%"}}, nil
	}},
	predicate{key: "ivorn_prefix", combinator: CombineOr, build: func(_, v string) (clause.Expression, error) {
		return clause.Expr{SQL: `voevent.ivorn LIKE ? ESCAPE '\'`, Vars: []interface{}{EscapeLike(v) + "%"}}, nil
	}},
	predicate{key: "ref_any", build: existence(
		"EXISTS (SELECT 1 FROM cite WHERE cite.voevent_id = voevent.id)")},
	predicate{key: "ref_contains", combinator: CombineOr, build: func(_, v string) (clause.Expression, error) {
		return clause.Expr{
			SQL:  `EXISTS (SELECT 1 FROM cite WHERE cite.voevent_id = voevent.id AND cite.ref_ivorn LIKE ? ESCAPE '\')`,
			Vars: []interface{}{"%" + EscapeLike(v) + "%"},
		}, nil
	}},
	predicate{key: "ref_exact", combinator: CombineOr, build: func(_, v string) (clause.Expression, error) {
		return clause.Expr{
			SQL:  "EXISTS (SELECT 1 FROM cite WHERE cite.voevent_id = voevent.id AND cite.ref_ivorn = ?)",
			Vars: []interface{}{v},
		}, nil
	}},
	predicate{key: "role", combinator: CombineOr, build: func(key, v string) (clause.Expression, error) {
		role, err := models.ParseRole(v)
		if err != nil {
			return nil, apierror.InvalidQueryString(key, v, "Role must be one of observation, prediction, utility, test.")
		}
		return clause.Expr{SQL: "voevent.role = ?", Vars: []interface{}{string(role)}}, nil
	}},
	predicate{key: "stream", combinator: CombineOr, build: func(_, v string) (clause.Expression, error) {
		return clause.Expr{SQL: "voevent.stream = ?", Vars: []interface{}{v}}, nil
	}},
)

// DefaultRegistry returns the filter table served by the API.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// EscapeLike escapes LIKE metacharacters so user input matches literally.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ParseBool accepts true/false in any case.
func ParseBool(key, value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, apierror.InvalidQueryString(key, value, "Expected 'true' or 'false'.")
	}
}

// ParseDatetime reads an ISO-8601 value; zone-less input is taken as UTC.
func ParseDatetime(key, value string) (time.Time, error) {
	t, err := dateparse.ParseIn(strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, apierror.InvalidQueryString(key, value, "Could not parse datetime, use ISO-8601 format.")
	}
	return t.UTC(), nil
}

func existence(sql string) func(key, value string) (clause.Expression, error) {
	return func(key, value string) (clause.Expression, error) {
		want, err := ParseBool(key, value)
		if err != nil {
			return nil, err
		}
		if want {
			return clause.Expr{SQL: sql}, nil
		}
		return clause.Expr{SQL: "NOT " + sql}, nil
	}
}

func authoredBound(op string) func(key, value string) (clause.Expression, error) {
	return func(key, value string) (clause.Expression, error) {
		t, err := ParseDatetime(key, value)
		if err != nil {
			return nil, err
		}
		return clause.Expr{SQL: "voevent.author_datetime " + op + " ?", Vars: []interface{}{t}}, nil
	}
}

func decBound(op string) func(key, value string) (clause.Expression, error) {
	return func(key, value string) (clause.Expression, error) {
		dec, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(dec) || dec < -90 || dec > 90 {
			return nil, apierror.InvalidQueryString(key, value, "Dec must be a number in [-90, 90].")
		}
		return clause.Expr{SQL: "coord.dec " + op + " ?", Vars: []interface{}{dec}}, nil
	}
}

// Cone is a great-circle search region in decimal degrees.
type Cone struct {
	RA     float64
	Dec    float64
	Radius float64
}

// ParseCone accepts "[ra,dec,radius]" or the bare "ra,dec,radius".
func ParseCone(key, value string) (Cone, error) {
	bad := func(reason string) (Cone, error) {
		return Cone{}, apierror.InvalidQueryString(key, value, reason)
	}

	raw := strings.TrimSpace(value)
	if !strings.HasPrefix(raw, "[") {
		raw = "[" + raw + "]"
	}
	var nums []float64
	if err := json.Unmarshal([]byte(raw), &nums); err != nil || len(nums) != 3 {
		return bad("Cone must be three numbers: [ra, dec, radius] in degrees.")
	}
	for _, n := range nums {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return bad("Cone values must be finite.")
		}
	}

	c := Cone{RA: nums[0], Dec: nums[1], Radius: nums[2]}
	if c.Dec < -90 || c.Dec > 90 {
		return bad("Cone dec must lie in [-90, 90].")
	}
	if c.Radius < 0 {
		return bad("Cone radius must not be negative.")
	}
	return c, nil
}

// Expr is the indexed cone predicate on the joined coord row: a GiST-backed
// bounding cube prefilter followed by the exact great-circle distance.
func (c Cone) Expr() clause.Expression {
	return clause.Expr{
		SQL: "(earth_box(ll_to_earth(?, ?), radians(?) * earth()) @> ll_to_earth(coord.dec, coord.ra)" +
			" AND earth_distance(ll_to_earth(?, ?), ll_to_earth(coord.dec, coord.ra)) <= radians(?) * earth())",
		Vars: []interface{}{c.Dec, c.RA, c.Radius, c.Dec, c.RA, c.Radius},
	}
}

func coneFilter(key, value string) (clause.Expression, error) {
	c, err := ParseCone(key, value)
	if err != nil {
		return nil, err
	}
	return c.Expr(), nil
}
