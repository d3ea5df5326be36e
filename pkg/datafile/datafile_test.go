package datafile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/columnar"
	"github.com/warptools/fricon/pkg/config"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

func sampleBatch(freq, amp float64) workspaceapi.Batch {
	var row workspaceapi.Row
	row.Set("freq", workspaceapi.FloatValue(freq))
	row.Set("amp", workspaceapi.FloatValue(amp))
	row.Set("trace", workspaceapi.FixedStepValue(0, 0.5, amp, amp*2))
	return workspaceapi.Batch{row}
}

func writeDataset(t *testing.T, dir string, opts Options, batches ...workspaceapi.Batch) Result {
	schema, err := columnar.Infer(batches[0], []string{"freq"})
	qt.Assert(t, err, qt.IsNil)
	enc := columnar.NewEncoder(nil, schema)
	w, err := Create(dir, enc.ArrowSchema(), opts)
	qt.Assert(t, err, qt.IsNil)
	for _, b := range batches {
		rec := enc.Encode(b)
		qt.Assert(t, w.Append(rec), qt.IsNil)
		rec.Release()
	}
	res, err := w.Finalize()
	qt.Assert(t, err, qt.IsNil)
	return res
}

func TestWriteFinalizeRead(t *testing.T) {
	for _, compression := range []string{config.CompressionNone, config.CompressionLZ4, config.CompressionZstd} {
		t.Run(compression, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "data", "2024-01-01", "uid")
			res := writeDataset(t, dir, Options{Compression: compression}, sampleBatch(1, 0.5), sampleBatch(2, 0.7))
			qt.Assert(t, res.Rows, qt.Equals, int64(2))
			qt.Assert(t, res.Path, qt.Equals, DataPath(dir))

			_, err := os.Stat(partialPath(dir))
			qt.Assert(t, errors.Is(err, fs.ErrNotExist), qt.IsTrue)

			r, err := Open(dir, nil)
			qt.Assert(t, err, qt.IsNil)
			defer r.Close()
			qt.Assert(t, r.NumRecords(), qt.Equals, 2)
			qt.Assert(t, r.Schema().IndexColumns, qt.DeepEquals, []string{"freq"})
			rows, err := r.ReadAll()
			qt.Assert(t, err, qt.IsNil)
			qt.Assert(t, rows, qt.HasLen, 2)
			qt.Assert(t, *rows[0].Values["freq"].Float, qt.Equals, 1.0)
			qt.Assert(t, *rows[1].Values["amp"].Float, qt.Equals, 0.7)
			qt.Assert(t, rows[1].Values["trace"].FixedStep.Y, qt.DeepEquals, []float64{0.7, 1.4})
			n, err := r.NumRows()
			qt.Assert(t, err, qt.IsNil)
			qt.Assert(t, n, qt.Equals, int64(2))

			sum, err := Checksum(dir)
			qt.Assert(t, err, qt.IsNil)
			qt.Assert(t, sum, qt.Equals, res.Checksum)
		})
	}
}

func TestPartialFileIsNotReadable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uid")
	schema, err := columnar.Infer(sampleBatch(1, 1), nil)
	qt.Assert(t, err, qt.IsNil)
	enc := columnar.NewEncoder(nil, schema)
	w, err := Create(dir, enc.ArrowSchema(), Options{})
	qt.Assert(t, err, qt.IsNil)
	rec := enc.Encode(sampleBatch(1, 1))
	qt.Assert(t, w.Append(rec), qt.IsNil)
	rec.Release()

	_, err = Open(dir, nil)
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeStorageIO)

	qt.Assert(t, w.Discard(), qt.IsNil)
	_, err = os.Stat(dir)
	qt.Assert(t, errors.Is(err, fs.ErrNotExist), qt.IsTrue)

	// Discard is idempotent.
	qt.Assert(t, w.Discard(), qt.IsNil)
}

func TestAppendAfterFinalizeFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uid")
	schema, err := columnar.Infer(sampleBatch(1, 1), nil)
	qt.Assert(t, err, qt.IsNil)
	enc := columnar.NewEncoder(nil, schema)
	w, err := Create(dir, enc.ArrowSchema(), Options{})
	qt.Assert(t, err, qt.IsNil)
	_, err = w.Finalize()
	qt.Assert(t, err, qt.IsNil)

	rec := enc.Encode(sampleBatch(1, 1))
	defer rec.Release()
	qt.Assert(t, serum.Code(w.Append(rec)), qt.Equals, fcapi.ECodeStorageIO)
}

func TestMetadataSideFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uid")
	res := writeDataset(t, dir, Options{}, sampleBatch(1, 0.5))
	name := "run1"
	md := workspaceapi.DatasetMetadata{
		UID:          "uid",
		Name:         &name,
		Tags:         []string{"cal"},
		IndexColumns: []string{"freq"},
		CreatedAt:    "2024-01-01T00:00:00Z",
		Columns:      []workspaceapi.ColumnInfo{{Name: "freq", Kind: "float"}},
		RowCount:     res.Rows,
		Checksum:     res.Checksum,
	}
	qt.Assert(t, WriteMetadata(dir, md), qt.IsNil)
	got, err := ReadMetadata(dir)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got, qt.DeepEquals, md)
	qt.Assert(t, Verify(dir), qt.IsNil)

	md.Checksum = "0000000000000000"
	qt.Assert(t, WriteMetadata(dir, md), qt.IsNil)
	qt.Assert(t, serum.Code(Verify(dir)), qt.Equals, fcapi.ECodeStorageIO)
}

func TestRemoveKeepsDayDirectory(t *testing.T) {
	day := filepath.Join(t.TempDir(), "data", "2024-01-01")
	first := filepath.Join(day, "first")
	writeDataset(t, first, Options{}, sampleBatch(1, 0.5))

	qt.Assert(t, Remove(first), qt.IsNil)
	_, err := os.Stat(first)
	qt.Assert(t, errors.Is(err, fs.ErrNotExist), qt.IsTrue)
	fi, err := os.Stat(day)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, fi.IsDir(), qt.IsTrue)

	second := filepath.Join(day, "second")
	res := writeDataset(t, second, Options{}, sampleBatch(2, 0.7))
	qt.Assert(t, res.Rows, qt.Equals, int64(1))
	qt.Assert(t, Remove(second), qt.IsNil)
	qt.Assert(t, Remove(second), qt.IsNil)
}
