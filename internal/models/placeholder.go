package models

import (
	"strings"

	"voeventdb/internal/voevent"
)

const (
	dc3BrokerStream      = "com.dc3/dc3.broker"
	gcnAuthority         = "nasa.gsfc.gcn"
	gcnCoordsParam       = "Coords_String"
	gcnCoordsUnavailable = "unavailable/inappropriate"
)

// HasPlaceholderCoords reports whether a packet's positions are known dummy
// values that must not be stored.
//
// This is a per-broker heuristic and needs confirming with the stream owners
// whenever a new broker is archived: the DC3 test broker emits nothing but
// dummies, and GCN marks them with a Coords_String param.
func HasPlaceholderCoords(doc *voevent.Document, stream string) bool {
	if stream == dc3BrokerStream {
		return true
	}
	authority, _, _ := strings.Cut(stream, "/")
	if authority != gcnAuthority {
		return false
	}
	param, ok := doc.TopLevelParams()[gcnCoordsParam]
	return ok && strings.TrimSpace(param.Value) == gcnCoordsUnavailable
}
