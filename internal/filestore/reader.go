package filestore

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionBzip2
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionBzip2:
		return "bzip2"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicBzip2 = []byte("BZh")
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Sniff identifies the compression of an archive from its leading bytes.
func Sniff(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, magicGzip):
		return CompressionGzip
	case bytes.HasPrefix(head, magicBzip2):
		return CompressionBzip2
	case bytes.HasPrefix(head, magicZstd):
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// MaxEntrySize caps a single archive member; VOEvents are a few kB.
const MaxEntrySize = 16 << 20

// Entry is one packet member of an archive. Err is set, and Data left
// empty, when the member could not be read on its own; the walk carries on.
type Entry struct {
	Name string
	Data []byte
	Err  error
}

var (
	// ErrStop ends a Walk early without error.
	ErrStop = errors.New("filestore: stop walk")
	// ErrCorruptArchive marks a stream that cannot be decompressed or
	// untarred, as opposed to a failure of the caller.
	ErrCorruptArchive = errors.New("filestore: corrupt archive")
	ErrEntryTooLarge  = errors.New("filestore: entry too large")
)

// Walk decompresses r as needed and calls fn for every .xml regular file in
// the tar stream, in archive order. Other members are ignored.
func Walk(r io.Reader, fn func(Entry) error) error {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("filestore: read header: %w", err)
	}

	var src io.Reader = br
	switch Sniff(head) {
	case CompressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("%w: gzip: %w", ErrCorruptArchive, err)
		}
		defer gz.Close()
		src = gz
	case CompressionBzip2:
		bz, err := bzip2.NewReader(br, nil)
		if err != nil {
			return fmt.Errorf("%w: bzip2: %w", ErrCorruptArchive, err)
		}
		defer bz.Close()
		src = bz
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return fmt.Errorf("%w: zstd: %w", ErrCorruptArchive, err)
		}
		defer zr.Close()
		src = zr
	}

	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: tar: %w", ErrCorruptArchive, err)
		}
		if hdr.Typeflag != tar.TypeReg || !IsPacketName(hdr.Name) {
			continue
		}

		entry := Entry{Name: hdr.Name}
		if hdr.Size > MaxEntrySize {
			// Next skips the unread body.
			entry.Err = fmt.Errorf("%w: %s is %d bytes, over the %d limit", ErrEntryTooLarge, hdr.Name, hdr.Size, MaxEntrySize)
		} else if entry.Data, err = io.ReadAll(tr); err != nil {
			return fmt.Errorf("%w: read %s: %w", ErrCorruptArchive, hdr.Name, err)
		}
		if err := fn(entry); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}

// WalkFile opens the archive at path and walks it.
func WalkFile(path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("filestore: open archive: %w", err)
	}
	defer f.Close()
	return Walk(f, fn)
}

// ReadAll collects every entry of the archive at path, including those
// carrying an Err.
func ReadAll(path string) ([]Entry, error) {
	var entries []Entry
	err := WalkFile(path, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}
