// Package export writes and verifies organization archives.
//
// An archive is a zstd stream of JSON lines. Every line except the last holds
// one record snapshot and the table it came from. The last line is the
// trailer, carrying the record count and the CRC64-NVME checksum of every
// preceding uncompressed line, newlines included.
package export

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/crc64nvme"
)

// ErrCorrupt is returned by Read when an archive fails verification.
var ErrCorrupt = errors.New("corrupt archive")

// Entry is one exported record.
type Entry struct {
	Table  string
	Record json.RawMessage
}

// Trailer closes an archive.
type Trailer struct {
	Records  int    `json:"records"`
	Checksum string `json:"crc64nvme"`
}

type line struct {
	Table   string          `json:"table,omitempty"`
	Record  json.RawMessage `json:"record,omitempty"`
	Trailer *Trailer        `json:"trailer,omitempty"`
}

func checksum(h hash.Hash64) string {
	return fmt.Sprintf("%016x", h.Sum64())
}

// Writer streams entries into an archive. Close must be called to write the
// trailer; an archive without one fails verification.
type Writer struct {
	enc     *zstd.Encoder
	crc     hash.Hash64
	records int
	size    int64
	closed  bool
}

// NewWriter starts an archive on w.
func NewWriter(w io.Writer) (*Writer, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	return &Writer{enc: enc, crc: crc64nvme.New()}, nil
}

// Write appends one record. record is marshalled with encoding/json.
func (w *Writer) Write(table string, record any) error {
	if w.closed {
		return errors.New("archive already closed")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", table, err)
	}
	if err := w.writeLine(line{Table: table, Record: raw}); err != nil {
		return err
	}
	w.records++
	return nil
}

func (w *Writer) writeLine(l line) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal line: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.enc.Write(data); err != nil {
		return fmt.Errorf("failed to compress: %w", err)
	}
	if l.Trailer == nil {
		_, _ = w.crc.Write(data)
	}
	w.size += int64(len(data))
	return nil
}

// Records is the number of entries written so far.
func (w *Writer) Records() int {
	return w.records
}

// Size is the number of uncompressed bytes written so far.
func (w *Writer) Size() int64 {
	return w.size
}

// Close writes the trailer and flushes the stream. It does not close the
// underlying writer.
func (w *Writer) Close() (Trailer, error) {
	if w.closed {
		return Trailer{}, errors.New("archive already closed")
	}
	w.closed = true

	trailer := Trailer{Records: w.records, Checksum: checksum(w.crc)}
	if err := w.writeLine(line{Trailer: &trailer}); err != nil {
		_ = w.enc.Close()
		return Trailer{}, err
	}
	if err := w.enc.Close(); err != nil {
		return Trailer{}, fmt.Errorf("failed to close encoder: %w", err)
	}
	return trailer, nil
}

// Read decompresses the archive on r and calls fn for every entry in order.
// The checksum covers the whole archive, so it is only known to match once
// Read returns nil; callers must discard what fn saw when it does not.
func Read(r io.Reader, fn func(Entry) error) (Trailer, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Trailer{}, fmt.Errorf("failed to create decoder: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	crc := crc64nvme.New()
	records := 0

	for {
		data, err := br.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Trailer{}, fmt.Errorf("%w: missing trailer", ErrCorrupt)
			}
			return Trailer{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}

		var l line
		if err := json.Unmarshal(data, &l); err != nil {
			return Trailer{}, fmt.Errorf("%w: line %d: %w", ErrCorrupt, records+1, err)
		}

		if l.Trailer != nil {
			if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
				return Trailer{}, fmt.Errorf("%w: data after trailer", ErrCorrupt)
			}
			if l.Trailer.Records != records {
				return Trailer{}, fmt.Errorf("%w: trailer counts %d records, found %d", ErrCorrupt, l.Trailer.Records, records)
			}
			if got := checksum(crc); got != l.Trailer.Checksum {
				return Trailer{}, fmt.Errorf("%w: checksum mismatch: stored=%s computed=%s", ErrCorrupt, l.Trailer.Checksum, got)
			}
			return *l.Trailer, nil
		}

		if l.Table == "" {
			return Trailer{}, fmt.Errorf("%w: line %d has no table", ErrCorrupt, records+1)
		}
		_, _ = crc.Write(data)
		records++

		if err := fn(Entry{Table: l.Table, Record: l.Record}); err != nil {
			return Trailer{}, err
		}
	}
}
