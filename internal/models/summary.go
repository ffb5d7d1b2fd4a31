package models

import "time"

// PacketSummary is the packet projection used by listings; it never carries
// the raw payload.
type PacketSummary struct {
	ID             uint       `json:"id"`
	Ivorn          string     `json:"ivorn"`
	Stream         string     `json:"stream"`
	Role           Role       `json:"role"`
	Version        string     `json:"version"`
	AuthorIvorn    *string    `json:"author_ivorn"`
	AuthorDatetime *time.Time `json:"author_datetime"`
	Received       time.Time  `json:"received"`
}

// SummaryColumns selects exactly the PacketSummary fields from voevent.
var SummaryColumns = []string{
	"voevent.id",
	"voevent.ivorn",
	"voevent.stream",
	"voevent.role",
	"voevent.version",
	"voevent.author_ivorn",
	"voevent.author_datetime",
	"voevent.received",
}

func (p *Packet) Summary() PacketSummary {
	return PacketSummary{
		ID:             p.ID,
		Ivorn:          p.Ivorn,
		Stream:         p.Stream,
		Role:           p.Role,
		Version:        p.Version,
		AuthorIvorn:    p.AuthorIvorn,
		AuthorDatetime: p.AuthorDatetime,
		Received:       p.Received,
	}
}

// IvornCount pairs an ivorn with a reference or citation tally.
type IvornCount struct {
	Ivorn string `json:"ivorn"`
	Count int64  `json:"count"`
}

// Synopsis is the nested view of a single packet.
type Synopsis struct {
	Packet       PacketSummary `json:"voevent"`
	Refs         []Cite        `json:"refs"`
	Coords       []Coord       `json:"coords"`
	RelevantURLs []string      `json:"relevant_urls"`
}
