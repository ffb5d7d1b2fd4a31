// Package voevent decodes VOEvent packets into a navigable document tree.
//
// The decoder is deliberately thin: it exposes the handful of sections the
// archive extracts metadata from (Who, What, WhereWhen, Citations) and keeps
// the verbatim packet bytes alongside the tree.
package voevent

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
)

// NamespaceV2 is the VOEvent 2.0 schema namespace.
const NamespaceV2 = "http://www.ivoa.net/xml/VOEvent/v2.0"

// ErrMalformed wraps every decode failure.
var ErrMalformed = errors.New("voevent: malformed packet")

// Document is the decoded tree of a single VOEvent packet.
type Document struct {
	XMLName   xml.Name   `xml:"VOEvent"`
	Namespace string     `xml:"xmlns:voe,attr,omitempty"`
	Ivorn     string     `xml:"ivorn,attr"`
	Role      string     `xml:"role,attr"`
	Version   string     `xml:"version,attr"`
	Who       *Who       `xml:"Who,omitempty"`
	What      *What      `xml:"What,omitempty"`
	WhereWhen *WhereWhen `xml:"WhereWhen,omitempty"`
	Citations *Citations `xml:"Citations,omitempty"`

	raw []byte
}

type Who struct {
	AuthorIVORN *string `xml:"AuthorIVORN,omitempty"`
	Date        *string `xml:"Date,omitempty"`
	Author      *Author `xml:"Author,omitempty"`
}

type Author struct {
	ShortName    string `xml:"shortName,omitempty"`
	ContactName  string `xml:"contactName,omitempty"`
	ContactEmail string `xml:"contactEmail,omitempty"`
}

type What struct {
	Params      []Param `xml:"Param"`
	Groups      []Group `xml:"Group"`
	Description string  `xml:"Description,omitempty"`
}

type Param struct {
	Name     string `xml:"name,attr"`
	Value    string `xml:"value,attr"`
	UCD      string `xml:"ucd,attr,omitempty"`
	Unit     string `xml:"unit,attr,omitempty"`
	DataType string `xml:"dataType,attr,omitempty"`
}

type Group struct {
	Name   string  `xml:"name,attr,omitempty"`
	Type   string  `xml:"type,attr,omitempty"`
	Params []Param `xml:"Param"`
}

type WhereWhen struct {
	ObsDataLocations []ObsDataLocation `xml:"ObsDataLocation"`
}

type ObsDataLocation struct {
	ObservatoryLocation *ObservatoryLocation `xml:"ObservatoryLocation,omitempty"`
	ObservationLocation ObservationLocation  `xml:"ObservationLocation"`
}

type ObservatoryLocation struct {
	ID string `xml:"id,attr"`
}

type ObservationLocation struct {
	AstroCoordSystem *AstroCoordSystem `xml:"AstroCoordSystem,omitempty"`
	AstroCoords      *AstroCoords      `xml:"AstroCoords,omitempty"`
}

type AstroCoordSystem struct {
	ID string `xml:"id,attr"`
}

type AstroCoords struct {
	CoordSystemID string      `xml:"coord_system_id,attr,omitempty"`
	Time          *Time       `xml:"Time,omitempty"`
	Position2D    *Position2D `xml:"Position2D,omitempty"`
}

type Time struct {
	Unit        string      `xml:"unit,attr,omitempty"`
	TimeInstant TimeInstant `xml:"TimeInstant"`
}

type TimeInstant struct {
	ISOTime string `xml:"ISOTime"`
}

type Position2D struct {
	Unit         string  `xml:"unit,attr"`
	Name1        string  `xml:"Name1,omitempty"`
	Name2        string  `xml:"Name2,omitempty"`
	Value2       Value2  `xml:"Value2"`
	Error2Radius *string `xml:"Error2Radius,omitempty"`
}

type Value2 struct {
	C1 string `xml:"C1"`
	C2 string `xml:"C2"`
}

type Citations struct {
	EventIVORNs []EventIVORN `xml:"EventIVORN"`
	Description *string      `xml:"Description,omitempty"`
}

type EventIVORN struct {
	Cite  string `xml:"cite,attr"`
	Value string `xml:",chardata"`
}

// Parse decodes raw packet bytes. The returned document keeps a reference to
// raw, which callers must not modify afterwards.
func Parse(raw []byte) (*Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charset.NewReaderLabel

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	doc.raw = raw
	return &doc, nil
}

// Raw returns the verbatim bytes the document was decoded from, or nil for
// documents built in memory.
func (d *Document) Raw() []byte {
	return d.raw
}

// Marshal serializes the document in the conventional `voe:` prefixed form.
func (d *Document) Marshal() ([]byte, error) {
	out := *d
	out.Namespace = NamespaceV2

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	root := xml.StartElement{Name: xml.Name{Local: "voe:VOEvent"}}
	if err := enc.EncodeElement(&out, root); err != nil {
		return nil, fmt.Errorf("voevent: marshal %s: %w", d.Ivorn, err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("voevent: marshal %s: %w", d.Ivorn, err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// AuthorIVORN returns the trimmed Who/AuthorIVORN text, if present.
func (d *Document) AuthorIVORN() (string, bool) {
	if d.Who == nil || d.Who.AuthorIVORN == nil {
		return "", false
	}
	return strings.TrimSpace(*d.Who.AuthorIVORN), true
}

// AuthorDate returns the trimmed Who/Date text, if present.
func (d *Document) AuthorDate() (string, bool) {
	if d.Who == nil || d.Who.Date == nil {
		return "", false
	}
	return strings.TrimSpace(*d.Who.Date), true
}

// TopLevelParams maps the names of Params sitting directly under What
// (not inside a Group) to their definitions.
func (d *Document) TopLevelParams() map[string]Param {
	params := make(map[string]Param)
	if d.What == nil {
		return params
	}
	for _, p := range d.What.Params {
		params[p.Name] = p
	}
	return params
}
