package datafile

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/columnar"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

// Reader reads a finalized data file.
type Reader struct {
	f      *os.File
	fr     *ipc.FileReader
	schema *columnar.Schema
}

// Open opens the finalized data file of a dataset directory.
// A directory holding only a partially written file has nothing to open.
//
// Errors:
//
//    - fricon-error-storage-io -- the file is missing or unreadable
//    - fricon-error-schema -- the file layout is not one fricon writes
func Open(dir string, mem memory.Allocator) (*Reader, error) {
	f, err := os.Open(DataPath(dir))
	if err != nil {
		return nil, fcapi.ErrorStorageIO("opening data file", err)
	}
	opts := []ipc.Option{}
	if mem != nil {
		opts = append(opts, ipc.WithAllocator(mem))
	}
	fr, err := ipc.NewFileReader(f, opts...)
	if err != nil {
		f.Close()
		return nil, fcapi.ErrorStorageIO("reading data file", err)
	}
	schema, err := columnar.FromArrow(fr.Schema())
	if err != nil {
		fr.Close()
		f.Close()
		return nil, err
	}
	return &Reader{f: f, fr: fr, schema: schema}, nil
}

func (r *Reader) Schema() *columnar.Schema { return r.schema }

// NumRecords is the number of record batches in the file.
func (r *Reader) NumRecords() int { return r.fr.NumRecords() }

// Record returns the i-th record batch. The caller must Release it.
//
// Errors:
//
//    - fricon-error-storage-io -- the batch cannot be read
func (r *Reader) Record(i int) (arrow.Record, error) {
	rec, err := r.fr.RecordAt(i)
	if err != nil {
		return nil, fcapi.ErrorStorageIO(fmt.Sprintf("reading record batch %d", i), err)
	}
	return rec, nil
}

// ReadAll decodes every row of the file in order.
//
// Errors:
//
//    - fricon-error-storage-io -- a batch cannot be read
func (r *Reader) ReadAll() (workspaceapi.Batch, error) {
	var rows workspaceapi.Batch
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r.schema.Decode(rec)...)
		rec.Release()
	}
	return rows, nil
}

// NumRows counts the rows over all record batches.
//
// Errors:
//
//    - fricon-error-storage-io -- a batch cannot be read
func (r *Reader) NumRows() (int64, error) {
	var n int64
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return 0, err
		}
		n += rec.NumRows()
		rec.Release()
	}
	return n, nil
}

func (r *Reader) Close() error {
	r.fr.Close()
	return r.f.Close()
}

// Checksum computes the xxhash64 of the finalized data file in dir.
//
// Errors:
//
//    - fricon-error-storage-io -- the file cannot be read
func Checksum(dir string) (string, error) {
	f, err := os.Open(DataPath(dir))
	if err != nil {
		return "", fcapi.ErrorStorageIO("opening data file", err)
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fcapi.ErrorStorageIO("hashing data file", err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
