package filestore

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var ErrUnsupportedCompression = errors.New("filestore: unsupported archive compression")

// CompressionFromPath picks the compression for a new archive from its name.
func CompressionFromPath(path string) (Compression, error) {
	switch {
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return CompressionGzip, nil
	case strings.HasSuffix(path, ".tar.bz2"), strings.HasSuffix(path, ".tbz2"):
		return CompressionBzip2, nil
	case strings.HasSuffix(path, ".tar.zst"):
		return CompressionZstd, nil
	case strings.HasSuffix(path, ".tar"):
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCompression, path)
	}
}

// Writer appends packets to a tar stream.
type Writer struct {
	tw      *tar.Writer
	closer  io.Closer
	written int
}

func NewWriter(w io.Writer, c Compression) (*Writer, error) {
	var (
		dst    io.Writer = w
		closer io.Closer
	)
	switch c {
	case CompressionNone:
	case CompressionGzip:
		gz := gzip.NewWriter(w)
		dst, closer = gz, gz
	case CompressionBzip2:
		bz, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
		if err != nil {
			return nil, fmt.Errorf("filestore: bzip2: %w", err)
		}
		dst, closer = bz, bz
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("filestore: zstd: %w", err)
		}
		dst, closer = zw, zw
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, c)
	}
	return &Writer{tw: tar.NewWriter(dst), closer: closer}, nil
}

// Add writes one packet under the member name derived from its ivorn.
func (w *Writer) Add(ivorn string, payload []byte, modTime time.Time) error {
	hdr := &tar.Header{
		Name:     FilenameFromIvorn(ivorn),
		Mode:     0o644,
		Size:     int64(len(payload)),
		ModTime:  modTime.UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("filestore: header for %s: %w", ivorn, err)
	}
	if _, err := w.tw.Write(payload); err != nil {
		return fmt.Errorf("filestore: write %s: %w", ivorn, err)
	}
	w.written++
	return nil
}

// Written reports how many packets have been added.
func (w *Writer) Written() int {
	return w.written
}

// Close flushes the tar trailer and the compressor. It does not close the
// underlying writer.
func (w *Writer) Close() error {
	if err := w.tw.Close(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// Packet is the minimum a caller needs to archive a packet.
type Packet struct {
	Ivorn    string
	Payload  []byte
	Received time.Time
}

// WriteFile creates an archive at path, compressed according to its suffix,
// and returns the number of packets written.
func WriteFile(path string, packets []Packet) (n int, err error) {
	c, err := CompressionFromPath(path)
	if err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("filestore: create archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w, err := NewWriter(f, c)
	if err != nil {
		return 0, err
	}
	for _, p := range packets {
		if err := w.Add(p.Ivorn, p.Payload, p.Received); err != nil {
			return w.Written(), err
		}
	}
	if err := w.Close(); err != nil {
		return w.Written(), err
	}
	return w.Written(), nil
}

// SplitName returns the name of the idx'th (1-based) archive in a split
// dump, e.g. "dump.003.tar.gz" for stem "dump" and suffix ".tar.gz".
func SplitName(stem string, idx int, suffix string) string {
	return fmt.Sprintf("%s.%03d%s", stem, idx, suffix)
}
