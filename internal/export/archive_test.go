package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func writeArchive(t *testing.T, rows ...row) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, w.Write("rows", r))
	}
	_, err = w.Close()
	require.NoError(t, err)
	return &buf
}

// rawArchive compresses the given lines as is, for building damaged archives.
func rawArchive(t *testing.T, lines ...string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	for _, l := range lines {
		_, err := enc.Write([]byte(l + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, enc.Close())
	return &buf
}

func decompress(t *testing.T, buf *bytes.Buffer) []byte {
	t.Helper()
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(buf.Bytes(), nil)
	require.NoError(t, err)
	return plain
}

func TestArchive_RoundTrip(t *testing.T) {
	rows := []row{{ID: 1, Name: "ada"}, {ID: 2, Name: "grace"}, {ID: 3, Name: "edsger"}}

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, w.Write("rows", r))
	}
	require.Equal(t, 3, w.Records())

	written, err := w.Close()
	require.NoError(t, err)
	require.Equal(t, 3, written.Records)
	require.Len(t, written.Checksum, 16)

	var got []row
	read, err := Read(&buf, func(e Entry) error {
		require.Equal(t, "rows", e.Table)
		var r row
		require.NoError(t, json.Unmarshal(e.Record, &r))
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, written, read)
	require.Equal(t, rows, got)
}

func TestArchive_Empty(t *testing.T) {
	buf := writeArchive(t)

	trailer, err := Read(buf, func(Entry) error {
		t.Fatal("no entries expected")
		return nil
	})
	require.NoError(t, err)
	require.Zero(t, trailer.Records)
}

func TestArchive_WriteAfterClose(t *testing.T) {
	w, err := NewWriter(&bytes.Buffer{})
	require.NoError(t, err)
	_, err = w.Close()
	require.NoError(t, err)

	require.Error(t, w.Write("rows", row{ID: 1}))
	_, err = w.Close()
	require.Error(t, err)
}

func TestRead_Corrupt(t *testing.T) {
	lines := bytes.Split(bytes.TrimSpace(decompress(t, writeArchive(t, row{ID: 1, Name: "ada"}))), []byte("\n"))
	require.Len(t, lines, 2)
	trailerLine := string(lines[1])

	tests := []struct {
		name    string
		archive *bytes.Buffer
		msg     string
	}{
		{
			name:    "missing trailer",
			archive: rawArchive(t, `{"table":"rows","record":{"id":1,"name":"ada"}}`),
			msg:     "missing trailer",
		},
		{
			name:    "tampered record",
			archive: rawArchive(t, `{"table":"rows","record":{"id":1,"name":"eve"}}`, trailerLine),
			msg:     "checksum mismatch",
		},
		{
			name:    "dropped record",
			archive: rawArchive(t, trailerLine),
			msg:     "trailer counts 1 records, found 0",
		},
		{
			name:    "data after trailer",
			archive: rawArchive(t, `{"table":"rows","record":{"id":1,"name":"ada"}}`, trailerLine, `{"table":"rows","record":{}}`),
			msg:     "data after trailer",
		},
		{
			name:    "not json",
			archive: rawArchive(t, `id,name`),
			msg:     "line 1",
		},
		{
			name:    "no table",
			archive: rawArchive(t, `{"record":{"id":1}}`),
			msg:     "has no table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(tt.archive, func(Entry) error { return nil })
			require.ErrorIs(t, err, ErrCorrupt)
			require.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestRead_NotZstd(t *testing.T) {
	_, err := Read(bytes.NewBufferString("plain text\n"), func(Entry) error { return nil })
	require.Error(t, err)
}

func TestRead_CallbackError(t *testing.T) {
	buf := writeArchive(t, row{ID: 1}, row{ID: 2})
	stop := errors.New("stop")

	calls := 0
	_, err := Read(buf, func(Entry) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}
