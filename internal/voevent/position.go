package voevent

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Coordinate systems a position may be expressed in.
const (
	SystemUTCFK5Geo    = "UTC-FK5-GEO"
	SystemUTCFK5Topo   = "UTC-FK5-TOPO"
	SystemUTCICRSGeo   = "UTC-ICRS-GEO"
	SystemUTCICRSTopo  = "UTC-ICRS-TOPO"
	SystemTDBFK5Bary   = "TDB-FK5-BARY"
	SystemTDBICRSBary  = "TDB-ICRS-BARY"
	UnitDegrees        = "deg"
	timeScaleTDBPrefix = "TDB-"
)

var supportedSystems = map[string]bool{
	SystemUTCFK5Geo:   true,
	SystemUTCFK5Topo:  true,
	SystemUTCICRSGeo:  true,
	SystemUTCICRSTopo: true,
	SystemTDBFK5Bary:  true,
	SystemTDBICRSBary: true,
}

// SupportedSystem reports whether positions in the named system can be stored.
func SupportedSystem(system string) bool {
	return supportedSystems[system]
}

var ErrNoPosition = errors.New("voevent: location carries no Position2D")

// Position is a sky position read from one ObsDataLocation.
type Position struct {
	RA     float64
	Dec    float64
	Err    *float64
	Units  string
	System string
}

// Locations returns the WhereWhen/ObsDataLocation entries in document order.
func (d *Document) Locations() []ObsDataLocation {
	if d.WhereWhen == nil {
		return nil
	}
	return d.WhereWhen.ObsDataLocations
}

// CoordSystem resolves the coordinate system id of a location, preferring the
// AstroCoordSystem element and falling back to the coord_system_id attribute.
func (l ObsDataLocation) CoordSystem() string {
	obs := l.ObservationLocation
	if obs.AstroCoordSystem != nil && obs.AstroCoordSystem.ID != "" {
		return strings.TrimSpace(obs.AstroCoordSystem.ID)
	}
	if obs.AstroCoords != nil {
		return strings.TrimSpace(obs.AstroCoords.CoordSystemID)
	}
	return ""
}

// Position reads the 2D sky position of a location. Numbers are parsed but not
// validated against a coordinate system; that is the caller's concern.
func (l ObsDataLocation) Position() (Position, error) {
	coords := l.ObservationLocation.AstroCoords
	if coords == nil || coords.Position2D == nil {
		return Position{}, ErrNoPosition
	}
	p2d := coords.Position2D

	ra, err := parseNumber("C1", p2d.Value2.C1)
	if err != nil {
		return Position{}, err
	}
	dec, err := parseNumber("C2", p2d.Value2.C2)
	if err != nil {
		return Position{}, err
	}

	pos := Position{
		RA:     ra,
		Dec:    dec,
		Units:  strings.TrimSpace(p2d.Unit),
		System: l.CoordSystem(),
	}
	if p2d.Error2Radius != nil && strings.TrimSpace(*p2d.Error2Radius) != "" {
		radius, err := parseNumber("Error2Radius", *p2d.Error2Radius)
		if err != nil {
			return Position{}, err
		}
		pos.Err = &radius
	}
	return pos, nil
}

// EventTime returns the location's ISOTime converted to UTC. TDB timestamps
// are shifted onto the UTC scale using the leap second table. ok is false when
// the location carries no time at all.
func (l ObsDataLocation) EventTime() (t time.Time, ok bool, err error) {
	coords := l.ObservationLocation.AstroCoords
	if coords == nil || coords.Time == nil {
		return time.Time{}, false, nil
	}
	raw := strings.TrimSpace(coords.Time.TimeInstant.ISOTime)
	if raw == "" {
		return time.Time{}, false, nil
	}

	parsed, err := ParseISOTime(raw)
	if err != nil {
		return time.Time{}, true, err
	}
	if strings.HasPrefix(l.CoordSystem(), timeScaleTDBPrefix) {
		parsed, err = TDBToUTC(parsed)
		if err != nil {
			return time.Time{}, true, err
		}
	}
	return parsed, true, nil
}

// ParseISOTime parses an ISO-8601 timestamp. Values without a zone are UTC.
func ParseISOTime(value string) (time.Time, error) {
	t, err := dateparse.ParseIn(strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("voevent: bad timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

func parseNumber(field, value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("voevent: bad %s value %q: %w", field, value, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("voevent: non-finite %s value %q", field, value)
	}
	return f, nil
}
