package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"voeventdb/internal/filestore"
	"voeventdb/internal/models"
	"voeventdb/internal/repository"
	"voeventdb/internal/utils"
)

const (
	DefaultDumpSuffix = ".tar.gz"
	dumpBatchSize     = 500
)

// DumpOptions selects packets by author_datetime, Start inclusive and End
// exclusive. Unless All is set, End defaults to now and packets without an
// author_datetime are left out.
type DumpOptions struct {
	Stem   string
	Suffix string
	// NSplit caps packets per archive; zero writes a single archive.
	NSplit int
	Start  *time.Time
	End    *time.Time
	All    bool
}

type DumpResult struct {
	Files   []string `json:"files"`
	Packets int      `json:"packets"`
}

type ExportService interface {
	SummaryWorkbook(ctx context.Context, w io.Writer, values url.Values) error
	Dump(ctx context.Context, opts DumpOptions) (*DumpResult, error)
}

type exportService struct {
	queries QueryService
	packets repository.PacketRepository
	logger  *slog.Logger
	now     func() time.Time
}

func NewExportService(queries QueryService, packets repository.PacketRepository, logger *slog.Logger) ExportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &exportService{
		queries: queries,
		packets: packets,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SummaryWorkbook renders one page of the summary listing, selected by the
// usual filters and pagination keys, as an xlsx workbook.
func (s *exportService) SummaryWorkbook(ctx context.Context, w io.Writer, values url.Values) error {
	list, err := s.queries.List(ctx, ListSummary, values)
	if err != nil {
		return err
	}
	rows, _ := list.Items.([]models.PacketSummary)

	filters := url.Values{}
	for k, v := range values {
		filters[k] = v
	}
	for _, k := range []string{"limit", "offset", "order"} {
		filters.Del(k)
	}
	roles, err := s.queries.Map(ctx, MapRoleCount, filters)
	if err != nil {
		return err
	}
	roleCounts, _ := roles.(map[string]int64)

	return utils.WriteSummaryWorkbook(w, utils.SummaryReport{
		Rows:        rows,
		RoleCounts:  roleCounts,
		QueryString: values.Encode(),
		Generated:   s.now(),
	})
}

type dumpWriter struct {
	opts    DumpOptions
	comp    filestore.Compression
	file    *os.File
	archive *filestore.Writer
	files   []string
	total   int
}

func (d *dumpWriter) path() string {
	if d.opts.NSplit > 0 {
		return filestore.SplitName(d.opts.Stem, len(d.files)+1, d.opts.Suffix)
	}
	return d.opts.Stem + d.opts.Suffix
}

func (d *dumpWriter) add(ivorn string, xml []byte, modTime time.Time) error {
	if d.archive == nil {
		path := d.path()
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		w, err := filestore.NewWriter(f, d.comp)
		if err != nil {
			f.Close()
			return err
		}
		d.file, d.archive = f, w
		d.files = append(d.files, path)
	}

	if err := d.archive.Add(ivorn, xml, modTime); err != nil {
		return err
	}
	d.total++
	if d.opts.NSplit > 0 && d.archive.Written() >= d.opts.NSplit {
		return d.finish()
	}
	return nil
}

func (d *dumpWriter) finish() error {
	if d.archive == nil {
		return nil
	}
	err := d.archive.Close()
	if cerr := d.file.Close(); err == nil {
		err = cerr
	}
	d.archive, d.file = nil, nil
	return err
}

// Dump writes matching packets, in id order, to one or more archives named
// after opts.Stem. Nothing is written when no packet matches.
func (s *exportService) Dump(ctx context.Context, opts DumpOptions) (*DumpResult, error) {
	if opts.Suffix == "" {
		opts.Suffix = DefaultDumpSuffix
	}
	comp, err := filestore.CompressionFromPath(opts.Suffix)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(opts.Stem); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	window := repository.AuthoredWindow{}
	if opts.All {
		s.logger.Info("dumping all packets")
	} else {
		end := s.now()
		if opts.End != nil {
			end = *opts.End
		}
		window = repository.AuthoredWindow{Start: opts.Start, End: &end}
		s.logger.Info("dumping packets", "authored_from", opts.Start, "authored_until", end)
	}

	started := s.now()
	d := &dumpWriter{opts: opts, comp: comp}
	err = s.packets.StreamPayloads(ctx, window, dumpBatchSize, func(ivorn string, xml []byte) error {
		return d.add(ivorn, xml, started)
	})
	if ferr := d.finish(); err == nil {
		err = ferr
	}

	res := &DumpResult{Files: d.files, Packets: d.total}
	if res.Files == nil {
		res.Files = []string{}
	}
	if err != nil {
		return res, fmt.Errorf("dump: %w", err)
	}
	s.logger.Info("dump complete", "packets", res.Packets, "files", len(res.Files))
	return res, nil
}
