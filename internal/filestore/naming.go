// Package filestore reads and writes tar archives of raw packets.
package filestore

import (
	"strings"
)

const (
	ivornScheme  = "ivo://"
	xmlExtension = ".xml"
)

// FilenameFromIvorn maps an ivorn to its archive member name: the scheme is
// dropped, '#' becomes a path separator and ".xml" is appended.
//
//	ivo://nasa.gsfc.gcn/SWIFT#BAT_GRB_Pos_1 -> nasa.gsfc.gcn/SWIFT/BAT_GRB_Pos_1.xml
func FilenameFromIvorn(ivorn string) string {
	name := ivorn
	if _, rest, found := strings.Cut(ivorn, "//"); found {
		name = rest
	}
	return strings.Replace(name, "#", "/", 1) + xmlExtension
}

// IvornFromFilename inverts FilenameFromIvorn. The last '/' is taken as the
// '#', so the result is only exact for ivorns whose local part has no '/'.
func IvornFromFilename(name string) string {
	name = strings.TrimSuffix(name, xmlExtension)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[:i] + "#" + name[i+1:]
	}
	return ivornScheme + name
}

var archiveSuffixes = []string{".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tbz2", ".tar.zst"}

// IsArchiveName reports whether name looks like a readable packet archive.
func IsArchiveName(name string) bool {
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// IsPacketName reports whether name looks like a single raw packet.
func IsPacketName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), xmlExtension)
}
