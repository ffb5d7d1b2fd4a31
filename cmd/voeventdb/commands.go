package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"voeventdb/internal/config"
	"voeventdb/internal/filestore"
	"voeventdb/internal/ingest"
	"voeventdb/internal/packetgen"
	"voeventdb/internal/service"
	"voeventdb/pkg/database"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"
)

func createCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Install the database extensions, tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if reset {
				a.logger.Warn("dropping archive tables", "dbname", a.cfg.DB.DBName)
				if err := database.Drop(a.db); err != nil {
					return fmt.Errorf("drop tables: %w", err)
				}
			}
			if err := database.Migrate(a.db); err != nil {
				return err
			}
			cmd.Printf("Database %s ready.\n", a.cfg.DB.DBName)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Drop the archive tables first (destroys data)")
	return cmd
}

func ingestArchiveCmd() *cobra.Command {
	var (
		check     bool
		perCommit int
	)
	cmd := &cobra.Command{
		Use:   "ingest-archive path...",
		Short: "Load packets from tar archives (.tar, .tar.gz, .tar.bz2, .tar.zst)",
		Long: `Loads every packet in each archive, committing in batches. Entries that
do not parse are skipped and reported. With --check, packets whose ivorn is
already archived are skipped instead of failing the batch.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if perCommit <= 0 {
				perCommit = a.cfg.Ingest.PacketsPerCommit
			}
			opts := ingest.LoadOptions{CheckDuplicates: check, PacketsPerCommit: perCommit}
			for _, path := range args {
				res, err := a.ingest.LoadArchive(cmd.Context(), path, opts)
				if err != nil {
					return fmt.Errorf("%s: %w (loaded %d before failing)", path, err, res.Loaded)
				}
				cmd.Printf("%s: parsed %d, loaded %d, skipped %d\n", path, res.Parsed, res.Loaded, len(res.Skipped))
				for _, s := range res.Skipped {
					cmd.Printf("  skipped %s: %s\n", s.Name, s.Reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Skip packets whose ivorn is already archived")
	cmd.Flags().IntVar(&perCommit, "packets-per-commit", 0, "Batch size (default from INGEST_PACKETS_PER_COMMIT)")
	return cmd
}

func ingestPacketCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-packet < packet.xml",
		Short: "Safely insert a single packet read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), filestore.MaxEntrySize+1))
			if err != nil {
				return err
			}
			if len(raw) > filestore.MaxEntrySize {
				return errors.New("packet exceeds 16 MiB")
			}

			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.ingest.InsertPacket(cmd.Context(), raw, "stdin")
			out, _ := json.Marshal(res)
			cmd.Println(string(out))
			if res.Outcome == service.OutcomeDuplicate {
				return nil
			}
			return err
		},
	}
}

// parseBound reads an optional lenient ISO-8601 timestamp, UTC unless zoned.
func parseBound(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := dateparse.ParseIn(value, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	t = t.UTC()
	return &t, nil
}

func dumpCmd() *cobra.Command {
	var (
		opts       service.DumpOptions
		start, end string
	)
	cmd := &cobra.Command{
		Use:   "dump stem",
		Short: "Write archived packets to tar archives",
		Long: `Writes packets authored in [--start, --end) to <stem><suffix>, or with
--nsplit to numbered archives <stem>.001<suffix>, <stem>.002<suffix> and so on.
--end defaults to now. --all ignores the window and includes packets that carry
no author timestamp. A bare stem is placed under EXPORT_OUTPUT_DIR.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			opts.Stem = args[0]
			if opts.Start, err = parseBound(start); err != nil {
				return err
			}
			if opts.End, err = parseBound(end); err != nil {
				return err
			}
			if opts.All && (opts.Start != nil || opts.End != nil) {
				return errors.New("--all cannot be combined with --start or --end")
			}

			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if filepath.Dir(opts.Stem) == "." {
				opts.Stem = filepath.Join(a.cfg.Export.OutputDir, opts.Stem)
			}
			res, err := a.export.Dump(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if len(res.Files) == 0 {
				cmd.Println("No packets matched; nothing written.")
				return nil
			}
			cmd.Printf("Wrote %d packets to %d file(s):\n", res.Packets, len(res.Files))
			for _, f := range res.Files {
				cmd.Printf("  %s\n", f)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.NSplit, "nsplit", 0, "Packets per archive (0 writes a single archive)")
	cmd.Flags().StringVar(&start, "start", "", "Earliest author timestamp, inclusive")
	cmd.Flags().StringVar(&end, "end", "", "Latest author timestamp, exclusive (default now)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Dump every packet")
	cmd.Flags().StringVar(&opts.Suffix, "suffix", service.DefaultDumpSuffix, "Archive suffix (.tar, .tar.gz, .tar.bz2, .tar.zst)")
	return cmd
}

func generateCmd() *cobra.Command {
	var (
		count  int
		stream string
		suffix string
		step   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "generate stem",
		Short: "Write an archive of synthetic packets",
		Long: `Generates a chain of synthetic packets, each citing its predecessor, and
writes them to <stem><suffix>. Useful for demos and load tests.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			newLogger(config.Load().App.Debug)
			if count < 0 {
				return errors.New("--count must not be negative")
			}
			now := time.Now().UTC()
			docs, err := packetgen.Series(stream, count, now.Add(-time.Duration(count)*step), step)
			if err != nil {
				return err
			}
			path := args[0] + suffix
			n, err := packetgen.WriteArchive(path, docs, now)
			if err != nil {
				return err
			}
			cmd.Printf("Wrote %d packets to %s\n", n, path)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 100, "Number of packets")
	cmd.Flags().StringVar(&stream, "stream", packetgen.DefaultStream, "Stream the packets belong to")
	cmd.Flags().StringVar(&suffix, "suffix", service.DefaultDumpSuffix, "Archive suffix (.tar, .tar.gz, .tar.bz2, .tar.zst)")
	cmd.Flags().DurationVar(&step, "step", time.Minute, "Author time between packets")
	return cmd
}

