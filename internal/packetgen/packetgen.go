// Package packetgen builds synthetic VOEvent packets for demos and tests.
package packetgen

import (
	"fmt"
	"strconv"
	"time"

	"voeventdb/internal/filestore"
	"voeventdb/internal/voevent"

	"github.com/google/uuid"
)

const DefaultStream = "voeventdb.packetgen/synthetic"

type config struct {
	role     string
	author   *string
	date     *time.Time
	params   []voevent.Param
	location *voevent.ObsDataLocation
	cites    []voevent.EventIVORN
	citeDesc *string
}

type Option func(*config)

func WithRole(role string) Option {
	return func(c *config) { c.role = role }
}

// WithAuthor sets Who/AuthorIVORN and Who/Date.
func WithAuthor(ivorn string, date time.Time) Option {
	return func(c *config) {
		c.author = &ivorn
		c.date = &date
	}
}

func WithParam(name, value string) Option {
	return func(c *config) {
		c.params = append(c.params, voevent.Param{Name: name, Value: value})
	}
}

// WithPosition attaches a UTC-ICRS-GEO position in degrees observed at t.
func WithPosition(ra, dec, errRadius float64, t time.Time) Option {
	return WithSystemPosition(voevent.SystemUTCICRSGeo, voevent.UnitDegrees, ra, dec, errRadius, t)
}

func WithSystemPosition(system, unit string, ra, dec, errRadius float64, t time.Time) Option {
	return func(c *config) {
		radius := formatFloat(errRadius)
		c.location = &voevent.ObsDataLocation{
			ObservatoryLocation: &voevent.ObservatoryLocation{ID: "GEOLUN"},
			ObservationLocation: voevent.ObservationLocation{
				AstroCoordSystem: &voevent.AstroCoordSystem{ID: system},
				AstroCoords: &voevent.AstroCoords{
					CoordSystemID: system,
					Time: &voevent.Time{
						Unit:        "s",
						TimeInstant: voevent.TimeInstant{ISOTime: t.UTC().Format("2006-01-02T15:04:05.000")},
					},
					Position2D: &voevent.Position2D{
						Unit:         unit,
						Name1:        "RA",
						Name2:        "Dec",
						Value2:       voevent.Value2{C1: formatFloat(ra), C2: formatFloat(dec)},
						Error2Radius: &radius,
					},
				},
			},
		}
	}
}

// WithCite adds a Citations/EventIVORN entry.
func WithCite(ref, citeType string) Option {
	return func(c *config) {
		c.cites = append(c.cites, voevent.EventIVORN{Cite: citeType, Value: ref})
	}
}

func WithCiteDescription(desc string) Option {
	return func(c *config) { c.citeDesc = &desc }
}

// Build returns a decoded document whose Raw bytes are its serialized form,
// exactly as if it had been read off the wire.
func Build(ivorn string, opts ...Option) (*voevent.Document, error) {
	cfg := config{role: "test"}
	for _, opt := range opts {
		opt(&cfg)
	}

	doc := &voevent.Document{Ivorn: ivorn, Role: cfg.role, Version: "2.0"}
	if cfg.author != nil || cfg.date != nil {
		doc.Who = &voevent.Who{AuthorIVORN: cfg.author}
		if cfg.date != nil {
			d := cfg.date.UTC().Format("2006-01-02T15:04:05")
			doc.Who.Date = &d
		}
	}
	if len(cfg.params) > 0 {
		doc.What = &voevent.What{Params: cfg.params}
	}
	if cfg.location != nil {
		doc.WhereWhen = &voevent.WhereWhen{ObsDataLocations: []voevent.ObsDataLocation{*cfg.location}}
	}
	if len(cfg.cites) > 0 || cfg.citeDesc != nil {
		doc.Citations = &voevent.Citations{EventIVORNs: cfg.cites, Description: cfg.citeDesc}
	}

	raw, err := doc.Marshal()
	if err != nil {
		return nil, err
	}
	return voevent.Parse(raw)
}

func MustBuild(ivorn string, opts ...Option) *voevent.Document {
	doc, err := Build(ivorn, opts...)
	if err != nil {
		panic(err)
	}
	return doc
}

// RandomIvorn returns a fresh ivorn in stream.
func RandomIvorn(stream string) string {
	return fmt.Sprintf("ivo://%s#%s", stream, uuid.NewString())
}

// Series builds n packets in stream, authored step apart from start, each
// citing its predecessor and carrying a position that walks across the sky.
func Series(stream string, n int, start time.Time, step time.Duration) ([]*voevent.Document, error) {
	docs := make([]*voevent.Document, 0, n)
	var prev string
	for i := 0; i < n; i++ {
		ivorn := fmt.Sprintf("ivo://%s#%s", stream, uuid.NewString())
		authored := start.Add(time.Duration(i) * step)
		opts := []Option{
			WithAuthor("ivo://"+stream, authored),
			WithPosition(float64((i*37)%360), float64((i*23)%180-90), 0.5, authored),
		}
		if prev != "" {
			opts = append(opts, WithCite(prev, "followup"))
		}
		doc, err := Build(ivorn, opts...)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
		prev = ivorn
	}
	return docs, nil
}

// WriteArchive stores docs in an archive at path, compressed per its suffix.
func WriteArchive(path string, docs []*voevent.Document, received time.Time) (int, error) {
	packets := make([]filestore.Packet, len(docs))
	for i, d := range docs {
		packets[i] = filestore.Packet{Ivorn: d.Ivorn, Payload: d.Raw(), Received: received}
	}
	return filestore.WriteFile(path, packets)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
