package models

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voeventdb/internal/voevent"
)

// Coord is a sky position attached to a packet, in decimal degrees.
type Coord struct {
	ID        uint       `gorm:"primaryKey" json:"-"`
	VOEventID uint       `gorm:"column:voevent_id;not null;index" json:"-"`
	RA        float64    `gorm:"column:ra;not null" json:"ra"`
	Dec       float64    `gorm:"column:dec;not null;check:chk_coord_dec,dec BETWEEN -90 AND 90" json:"dec"`
	Error     *float64   `gorm:"column:error" json:"error"`
	Time      *time.Time `gorm:"column:time;type:timestamptz" json:"time"`
}

func (Coord) TableName() string {
	return "coord"
}

// UnsupportedPositionError reports a position the archive cannot store.
type UnsupportedPositionError struct {
	Index  int
	System string
	Units  string
	Reason string
}

func (e *UnsupportedPositionError) Error() string {
	return fmt.Sprintf("position %d (%s, %s): %s", e.Index, e.System, e.Units, e.Reason)
}

// CoordsFromDocument converts every ObsDataLocation carrying a Position2D.
// Any location that cannot be stored fails the lot so a packet never ends up
// with a partial set of positions.
func CoordsFromDocument(doc *voevent.Document, logger *slog.Logger) ([]Coord, error) {
	var coords []Coord
	for i, loc := range doc.Locations() {
		pos, err := loc.Position()
		if errors.Is(err, voevent.ErrNoPosition) {
			continue
		}
		if err != nil {
			return nil, &UnsupportedPositionError{Index: i, System: loc.CoordSystem(), Reason: err.Error()}
		}

		if !voevent.SupportedSystem(pos.System) {
			return nil, &UnsupportedPositionError{Index: i, System: pos.System, Units: pos.Units, Reason: "unsupported coordinate system"}
		}
		if pos.Units != voevent.UnitDegrees {
			return nil, &UnsupportedPositionError{Index: i, System: pos.System, Units: pos.Units, Reason: "unsupported units"}
		}
		if pos.Dec < -90 || pos.Dec > 90 {
			return nil, &UnsupportedPositionError{Index: i, System: pos.System, Units: pos.Units, Reason: fmt.Sprintf("dec %v out of range", pos.Dec)}
		}

		c := Coord{RA: pos.RA, Dec: pos.Dec, Error: pos.Err}

		ts, ok, err := loc.EventTime()
		switch {
		case err != nil:
			logger.Warn("event time not normalised", "ivorn", doc.Ivorn, "position", i, "error", err)
		case ok:
			c.Time = &ts
		}
		coords = append(coords, c)
	}
	return coords, nil
}
