package filestore

import (
	"archive/tar"
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilenameFromIvorn(t *testing.T) {
	assert.Equal(t, "nasa.gsfc.gcn/SWIFT/BAT_GRB_Pos_532871-729.xml",
		FilenameFromIvorn("ivo://nasa.gsfc.gcn/SWIFT#BAT_GRB_Pos_532871-729"))
	assert.Equal(t, "voevent.4pisky.org/test/pkt.xml",
		FilenameFromIvorn("ivo://voevent.4pisky.org/test#pkt"))
}

func TestIvornFromFilenameInverts(t *testing.T) {
	for _, ivorn := range []string{
		"ivo://nasa.gsfc.gcn/SWIFT#BAT_GRB_Pos_532871-729",
		"ivo://org.example/deep/stream#local-part",
	} {
		assert.Equal(t, ivorn, IvornFromFilename(FilenameFromIvorn(ivorn)))
	}
}

func TestNameClassification(t *testing.T) {
	for _, name := range []string{"a.tar", "a.tar.gz", "a.tgz", "a.tar.bz2", "a.tbz2", "a.tar.zst"} {
		assert.True(t, IsArchiveName(name), name)
		assert.False(t, IsPacketName(name), name)
	}
	assert.True(t, IsPacketName("packet.XML"))
	assert.False(t, IsArchiveName("packet.xml"))
	assert.False(t, IsArchiveName("notes.gz"))
}

func TestSniff(t *testing.T) {
	assert.Equal(t, CompressionGzip, Sniff([]byte{0x1f, 0x8b, 0x08, 0x00}))
	assert.Equal(t, CompressionBzip2, Sniff([]byte("BZh9")))
	assert.Equal(t, CompressionZstd, Sniff([]byte{0x28, 0xb5, 0x2f, 0xfd}))
	assert.Equal(t, CompressionNone, Sniff([]byte("nasa")))
	assert.Equal(t, CompressionNone, Sniff(nil))
}

func TestCompressionFromPath(t *testing.T) {
	cases := map[string]Compression{
		"dump.tar.gz":  CompressionGzip,
		"dump.tgz":     CompressionGzip,
		"dump.tar.bz2": CompressionBzip2,
		"dump.tbz2":    CompressionBzip2,
		"dump.tar.zst": CompressionZstd,
		"dump.tar":     CompressionNone,
	}
	for path, want := range cases {
		got, err := CompressionFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := CompressionFromPath("dump.zip")
	assert.ErrorIs(t, err, ErrUnsupportedCompression)
}

func samplePackets(n int) []Packet {
	out := make([]Packet, n)
	for i := range out {
		ivorn := fmt.Sprintf("ivo://org.example/alerts#pkt-%03d", i)
		out[i] = Packet{
			Ivorn:    ivorn,
			Payload:  []byte(fmt.Sprintf(`<voe:VOEvent ivorn="%s"/>`, ivorn)),
			Received: time.Date(2015, 1, 1, 0, 0, i, 0, time.UTC),
		}
	}
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, suffix := range []string{".tar", ".tar.gz", ".tar.bz2", ".tar.zst"} {
		for _, n := range []int{0, 1, 23} {
			t.Run(fmt.Sprintf("%s/%d", suffix, n), func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "archive"+suffix)
				packets := samplePackets(n)

				written, err := WriteFile(path, packets)
				require.NoError(t, err)
				assert.Equal(t, n, written)

				entries, err := ReadAll(path)
				require.NoError(t, err)
				require.Len(t, entries, n)
				for i, e := range entries {
					assert.Equal(t, packets[i].Ivorn, IvornFromFilename(e.Name))
					assert.Equal(t, packets[i].Payload, e.Data)
				}
			})
		}
	}
}

func TestReadBzip2Archive(t *testing.T) {
	entries, err := ReadAll(filepath.Join("testdata", "two_packets.tar.bz2"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ivo://org.example/alerts#one", IvornFromFilename(entries[0].Name))
	assert.Contains(t, string(entries[1].Data), `ivorn="ivo://org.example/alerts#two"`)
}

func TestWalkStop(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, CompressionGzip)
	require.NoError(t, err)
	for _, p := range samplePackets(5) {
		require.NoError(t, w.Add(p.Ivorn, p.Payload, p.Received))
	}
	require.NoError(t, w.Close())

	seen := 0
	err = Walk(&buf, func(Entry) error {
		seen++
		if seen == 2 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, seen)
}

func writeRawTar(t *testing.T, members map[string][]byte, order ...string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range order {
		body := members[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return &buf
}

func TestWalkOnlyYieldsPackets(t *testing.T) {
	buf := writeRawTar(t, map[string][]byte{
		"README":            []byte("notes"),
		"org.example/a.xml": []byte("<a/>"),
		"MANIFEST.json":     []byte("{}"),
		"org.example/b.XML": []byte("<b/>"),
	}, "README", "org.example/a.xml", "MANIFEST.json", "org.example/b.XML")

	var names []string
	require.NoError(t, Walk(buf, func(e Entry) error {
		require.NoError(t, e.Err)
		names = append(names, e.Name)
		return nil
	}))
	assert.Equal(t, []string{"org.example/a.xml", "org.example/b.XML"}, names)
}

func TestWalkReportsOversizeEntryAndContinues(t *testing.T) {
	huge := make([]byte, MaxEntrySize+1)
	buf := writeRawTar(t, map[string][]byte{
		"huge.xml":  huge,
		"small.xml": []byte("<small/>"),
	}, "huge.xml", "small.xml")

	var entries []Entry
	require.NoError(t, Walk(buf, func(e Entry) error {
		entries = append(entries, e)
		return nil
	}))
	require.Len(t, entries, 2)
	assert.Equal(t, "huge.xml", entries[0].Name)
	assert.ErrorIs(t, entries[0].Err, ErrEntryTooLarge)
	assert.Empty(t, entries[0].Data)
	assert.Equal(t, "small.xml", entries[1].Name)
	assert.NoError(t, entries[1].Err)
	assert.Equal(t, []byte("<small/>"), entries[1].Data)
}

func TestWalkCorruptStream(t *testing.T) {
	err := Walk(bytes.NewReader(bytes.Repeat([]byte("x"), 1024)), func(Entry) error { return nil })
	assert.ErrorIs(t, err, ErrCorruptArchive)

	err = Walk(bytes.NewReader([]byte{0x1f, 0x8b, 0x00, 0x00, 0x01}), func(Entry) error { return nil })
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestSplitName(t *testing.T) {
	assert.Equal(t, "dump.003.tar.gz", SplitName("dump", 3, ".tar.gz"))
}
