package models

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voeventdb/internal/voevent"
)

var (
	ErrMissingIvorn = errors.New("packet has no ivorn attribute")
	// ErrInvalidPacket wraps content a packet cannot be archived with, such
	// as an unknown role or cite type.
	ErrInvalidPacket = errors.New("invalid packet")
)

type Role string

const (
	RoleObservation Role = "observation"
	RolePrediction  Role = "prediction"
	RoleUtility     Role = "utility"
	RoleTest        Role = "test"
)

// Roles lists every valid role in schema order.
var Roles = []Role{RoleObservation, RolePrediction, RoleUtility, RoleTest}

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.TrimSpace(s)); r {
	case RoleObservation, RolePrediction, RoleUtility, RoleTest:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Packet is one archived VOEvent. Rows are written once and never updated.
type Packet struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Received       time.Time  `gorm:"type:timestamptz;not null;index" json:"received"`
	Ivorn          string     `gorm:"not null;uniqueIndex:uq_voevent_ivorn" json:"ivorn"`
	Stream         string     `gorm:"not null;index" json:"stream"`
	Role           Role       `gorm:"type:varchar(16);not null;index;check:chk_voevent_role,role IN ('observation','prediction','utility','test')" json:"role"`
	Version        string     `gorm:"not null" json:"version"`
	AuthorIvorn    *string    `json:"author_ivorn"`
	AuthorDatetime *time.Time `gorm:"type:timestamptz;index" json:"author_datetime"`
	XML            []byte     `gorm:"column:xml;type:bytea;not null" json:"-"`

	Cites  []Cite  `gorm:"foreignKey:VOEventID;constraint:OnDelete:CASCADE" json:"cites,omitempty"`
	Coords []Coord `gorm:"foreignKey:VOEventID;constraint:OnDelete:CASCADE" json:"coords,omitempty"`
}

func (Packet) TableName() string {
	return "voevent"
}

// StreamFromIvorn returns the part of an ivorn before '#', without the
// ivo:// scheme.
func StreamFromIvorn(ivorn string) string {
	stream, _, _ := strings.Cut(ivorn, "#")
	return strings.TrimPrefix(stream, "ivo://")
}

// FromDocument builds a Packet and its child rows from a decoded document.
// Only the ivorn, role and citation types can make it fail; author metadata
// and positions are best effort and problems with them are logged.
func FromDocument(doc *voevent.Document, received time.Time, logger *slog.Logger) (*Packet, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ivorn := strings.TrimSpace(doc.Ivorn)
	if ivorn == "" {
		return nil, ErrMissingIvorn
	}
	role, err := ParseRole(doc.Role)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", ivorn, ErrInvalidPacket, err)
	}

	raw := doc.Raw()
	if raw == nil {
		if raw, err = doc.Marshal(); err != nil {
			return nil, err
		}
	}

	p := &Packet{
		Received: received.UTC(),
		Ivorn:    ivorn,
		Stream:   StreamFromIvorn(ivorn),
		Role:     role,
		Version:  strings.TrimSpace(doc.Version),
		XML:      raw,
	}

	if author, ok := doc.AuthorIVORN(); ok && author != "" {
		p.AuthorIvorn = &author
	}
	if date, ok := doc.AuthorDate(); ok && date != "" {
		if t, err := voevent.ParseISOTime(date); err != nil {
			logger.Warn("unparseable author date", "ivorn", ivorn, "date", date, "error", err)
		} else {
			p.AuthorDatetime = &t
		}
	}

	if p.Cites, err = CitesFromDocument(doc, logger); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", ivorn, ErrInvalidPacket, err)
	}

	if HasPlaceholderCoords(doc, p.Stream) {
		logger.Debug("skipping placeholder coordinates", "ivorn", ivorn)
		return p, nil
	}
	coords, err := CoordsFromDocument(doc, logger)
	if err != nil {
		logger.Warn("dropping coordinates", "ivorn", ivorn, "error", err)
		return p, nil
	}
	p.Coords = coords
	return p, nil
}
