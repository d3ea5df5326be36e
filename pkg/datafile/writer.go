/*
Package datafile owns the files of one dataset directory: the columnar data file
(Arrow IPC file format) and the metadata side-file next to it.

A data file is written under a temporary name and only renamed to its final name
once its footer is written and synced, so a file with the final name is always
complete and independently readable.
*/
package datafile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/config"
	"github.com/warptools/fricon/pkg/workspace"
)

const partialSuffix = ".partial"

// Options control how data files are written.
type Options struct {
	Compression string           // one of the config.Compression* names; empty means none
	BufferBytes int              // write buffer size; zero uses a default
	Allocator   memory.Allocator // nil uses the default Go allocator
}

// OptionsFromConfig derives writer options from a workspace configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Compression: cfg.Write.Compression,
		BufferBytes: cfg.Write.BufferBytes,
	}
}

func (o Options) ipcOptions(schema *arrow.Schema) []ipc.Option {
	opts := []ipc.Option{ipc.WithSchema(schema)}
	if o.Allocator != nil {
		opts = append(opts, ipc.WithAllocator(o.Allocator))
	}
	switch o.Compression {
	case config.CompressionLZ4:
		opts = append(opts, ipc.WithLZ4())
	case config.CompressionZstd:
		opts = append(opts, ipc.WithZstd())
	}
	return opts
}

// DataPath returns the final data file path inside a dataset directory.
func DataPath(dir string) string { return filepath.Join(dir, workspace.DatasetFilename) }

func partialPath(dir string) string { return DataPath(dir) + partialSuffix }

// Writer appends record batches to the data file of one dataset.
// It is not safe for concurrent use; callers serialize appends.
type Writer struct {
	dir  string
	f    *os.File
	buf  *bufio.Writer
	hash *xxhash.Digest
	fw   *ipc.FileWriter
	rows int64
	done bool
}

// Result describes a finalized data file.
type Result struct {
	Path     string
	Rows     int64
	Checksum string // xxhash64 of the file, hex encoded
}

// Create makes the dataset directory and starts a data file with the given schema.
//
// Errors:
//
//    - fricon-error-storage-io -- the directory or file cannot be created
func Create(dir string, schema *arrow.Schema, opts Options) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fcapi.ErrorStorageIO("creating dataset directory", err)
	}
	f, err := os.OpenFile(partialPath(dir), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fcapi.ErrorStorageIO("creating data file", err)
	}
	size := opts.BufferBytes
	if size <= 0 {
		size = 1 << 20
	}
	hash := xxhash.New()
	buf := bufio.NewWriterSize(io.MultiWriter(f, hash), size)
	fw, err := ipc.NewFileWriter(buf, opts.ipcOptions(schema)...)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fcapi.ErrorStorageIO("starting data file", err)
	}
	return &Writer{dir: dir, f: f, buf: buf, hash: hash, fw: fw}, nil
}

// Rows is the number of rows appended so far.
func (w *Writer) Rows() int64 { return w.rows }

// Append writes one record batch. Data may stay buffered until Finalize.
//
// Errors:
//
//    - fricon-error-storage-io -- the batch cannot be written
func (w *Writer) Append(rec arrow.Record) error {
	if w.done {
		return fcapi.ErrorStorageIO("appending to data file", errors.New("writer already closed"))
	}
	if err := w.fw.Write(rec); err != nil {
		return fcapi.ErrorStorageIO("appending to data file", err)
	}
	w.rows += rec.NumRows()
	return nil
}

// Finalize writes the file footer, syncs the file, and moves it to its final name.
// The writer cannot be used afterwards.
//
// Errors:
//
//    - fricon-error-storage-io -- the file cannot be completed
func (w *Writer) Finalize() (Result, error) {
	if w.done {
		return Result{}, fcapi.ErrorStorageIO("finalizing data file", errors.New("writer already closed"))
	}
	w.done = true
	if err := w.fw.Close(); err != nil {
		w.f.Close()
		return Result{}, fcapi.ErrorStorageIO("writing data file footer", err)
	}
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return Result{}, fcapi.ErrorStorageIO("flushing data file", err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return Result{}, fcapi.ErrorStorageIO("syncing data file", err)
	}
	if err := w.f.Close(); err != nil {
		return Result{}, fcapi.ErrorStorageIO("closing data file", err)
	}
	final := DataPath(w.dir)
	if err := os.Rename(partialPath(w.dir), final); err != nil {
		return Result{}, fcapi.ErrorStorageIO("publishing data file", err)
	}
	if err := syncDir(w.dir); err != nil {
		return Result{}, err
	}
	return Result{
		Path:     final,
		Rows:     w.rows,
		Checksum: fmt.Sprintf("%016x", w.hash.Sum64()),
	}, nil
}

// Discard stops writing and removes the data file.
// It is safe to call after a failed Finalize, and on a nil writer.
//
// Errors:
//
//    - fricon-error-storage-io -- the file cannot be removed
func (w *Writer) Discard() error {
	if w == nil {
		return nil
	}
	if !w.done {
		w.done = true
		w.f.Close()
	}
	return Remove(w.dir)
}

// Remove deletes a dataset directory and everything in it.
// A missing directory is not an error. The per-day parent stays, since a
// concurrent Create may be about to place another dataset in it.
//
// Errors:
//
//    - fricon-error-storage-io -- the directory cannot be removed
func Remove(dir string) error {
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fcapi.ErrorStorageIO("removing dataset directory", err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fcapi.ErrorStorageIO("opening dataset directory", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fcapi.ErrorStorageIO("syncing dataset directory", err)
	}
	return nil
}
