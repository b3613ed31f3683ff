package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/plugbook/internal/export"
)

type ContactExportCmd struct {
	ScopeFlags `embed:""`

	Out            string `help:"Archive path; defaults to <org>.jsonl.zst" type:"path"`
	IncludeDeleted bool   `help:"Include deleted contacts"`
	Upload         bool   `help:"Upload the archive to the configured S3 bucket"`
}

func (c *ContactExportCmd) Run(ctx context.Context, globals *Globals) error {
	scope, err := c.Scope()
	if err != nil {
		return err
	}
	s, err := open(ctx, globals)
	if err != nil {
		return err
	}
	defer s.Close()

	log := zerolog.Ctx(s.ctx)

	out := c.Out
	if out == "" {
		out = scope.OrgID.String() + ".jsonl.zst"
	}

	f, err := os.Create(out) // #nosec G304 - operator supplied path
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	w, err := export.NewWriter(f)
	if err != nil {
		return err
	}
	if err := export.Contacts(s.ctx, s.res.Contacts, scope, w, export.Options{IncludeDeleted: c.IncludeDeleted}); err != nil {
		_ = f.Close()
		_ = os.Remove(out)
		return fmt.Errorf("failed to export contacts: %w", err)
	}
	trailer, err := w.Close()
	if err != nil {
		_ = f.Close()
		_ = os.Remove(out)
		return fmt.Errorf("failed to finish archive: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	ratio := 0.0
	if w.Size() > 0 {
		ratio = (1.0 - float64(info.Size())/float64(w.Size())) * 100
	}
	log.Info().
		Str("archive_path", out).
		Int("records", trailer.Records).
		Int64("original_bytes", w.Size()).
		Int64("compressed_bytes", info.Size()).
		Float64("compression_ratio_pct", ratio).
		Msg("Archive written")

	fmt.Printf("Archive:  %s\n", out)
	fmt.Printf("Records:  %d\n", trailer.Records)
	fmt.Printf("Checksum: %s\n", trailer.Checksum)

	if !c.Upload {
		return nil
	}

	client, err := export.NewS3Client(s.ctx, s.cfg.Archive)
	if err != nil {
		return err
	}
	dest, err := export.NewS3Destination(client, s.cfg.Archive)
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind archive: %w", err)
	}
	key, err := dest.Upload(s.ctx, filepath.Base(out), f, info.Size(), trailer)
	if err != nil {
		return err
	}

	fmt.Printf("Uploaded: s3://%s/%s\n", s.cfg.Archive.S3Bucket, key)
	return nil
}

type ContactVerifyCmd struct {
	Path string `arg:"" help:"Archive to verify" type:"existingfile"`
}

func (c *ContactVerifyCmd) Run() error {
	f, err := os.Open(c.Path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	counts := map[string]int{}
	trailer, err := export.Read(f, func(e export.Entry) error {
		counts[e.Table]++
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive %s failed verification: %w", c.Path, err)
	}

	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	fmt.Printf("Archive %s is intact (%d records, crc64nvme %s)\n", c.Path, trailer.Records, trailer.Checksum)
	for _, table := range tables {
		fmt.Printf("  %-24s %d\n", table, counts[table])
	}
	return nil
}
