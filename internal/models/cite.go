package models

import (
	"fmt"
	"log/slog"
	"strings"

	"voeventdb/internal/voevent"
)

type CiteType string

const (
	CiteFollowup   CiteType = "followup"
	CiteRetraction CiteType = "retraction"
	CiteSupersedes CiteType = "supersedes"
)

func ParseCiteType(s string) (CiteType, error) {
	switch c := CiteType(strings.TrimSpace(s)); c {
	case CiteFollowup, CiteRetraction, CiteSupersedes:
		return c, nil
	default:
		return "", fmt.Errorf("unknown cite type %q", s)
	}
}

// Cite is a reference from a packet to another ivorn. The target is stored
// by value and need not exist in the archive.
type Cite struct {
	ID          uint     `gorm:"primaryKey" json:"-"`
	VOEventID   uint     `gorm:"column:voevent_id;not null;index" json:"-"`
	RefIvorn    string   `gorm:"not null;index" json:"ref_ivorn"`
	CiteType    CiteType `gorm:"type:varchar(16);not null;check:chk_cite_type,cite_type IN ('followup','retraction','supersedes')" json:"cite_type"`
	Description *string  `json:"description"`
}

func (Cite) TableName() string {
	return "cite"
}

// CitesFromDocument walks Citations/EventIVORN. Entries with no target are
// skipped; an unrecognised cite attribute fails the whole document.
func CitesFromDocument(doc *voevent.Document, logger *slog.Logger) ([]Cite, error) {
	if doc.Citations == nil {
		return nil, nil
	}

	var description *string
	if doc.Citations.Description != nil {
		d := strings.TrimSpace(*doc.Citations.Description)
		description = &d
	}

	cites := make([]Cite, 0, len(doc.Citations.EventIVORNs))
	for _, entry := range doc.Citations.EventIVORNs {
		ref := strings.TrimSpace(entry.Value)
		if ref == "" {
			logger.Warn("skipping empty EventIVORN", "ivorn", doc.Ivorn, "cite", entry.Cite)
			continue
		}
		citeType, err := ParseCiteType(entry.Cite)
		if err != nil {
			return nil, err
		}
		cites = append(cites, Cite{
			RefIvorn:    ref,
			CiteType:    citeType,
			Description: description,
		})
	}
	return cites, nil
}
