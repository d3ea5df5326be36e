package datafile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipld/go-ipld-prime"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/workspace"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

// MetadataPath returns the side-file path inside a dataset directory.
func MetadataPath(dir string) string { return filepath.Join(dir, workspace.MetadataFilename) }

// WriteMetadata replaces the side-file of a dataset directory.
// The new content is written to a temporary file and renamed into place.
//
// Errors:
//
//    - fricon-error-serialization -- the metadata cannot be encoded
//    - fricon-error-storage-io -- the file cannot be written
func WriteMetadata(dir string, md workspaceapi.DatasetMetadata) error {
	buf := &bytes.Buffer{}
	if err := ipld.MarshalStreaming(buf, workspaceapi.PrettyEncoder, &md, workspaceapi.TypeSystem.TypeByName("DatasetMetadata")); err != nil {
		return fcapi.ErrorSerialization("encoding dataset metadata", err)
	}
	buf.WriteByte('\n')
	tmp := MetadataPath(dir) + partialSuffix
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fcapi.ErrorStorageIO("writing dataset metadata", err)
	}
	if err := os.Rename(tmp, MetadataPath(dir)); err != nil {
		os.Remove(tmp)
		return fcapi.ErrorStorageIO("publishing dataset metadata", err)
	}
	return nil
}

// ReadMetadata loads the side-file of a dataset directory.
//
// Errors:
//
//    - fricon-error-storage-io -- the file cannot be read
//    - fricon-error-serialization -- the file content is invalid
func ReadMetadata(dir string) (workspaceapi.DatasetMetadata, error) {
	var md workspaceapi.DatasetMetadata
	data, err := os.ReadFile(MetadataPath(dir))
	if err != nil {
		return md, fcapi.ErrorStorageIO("reading dataset metadata", err)
	}
	if _, err := ipld.Unmarshal(data, workspaceapi.Decoder, &md, workspaceapi.TypeSystem.TypeByName("DatasetMetadata")); err != nil {
		return md, fcapi.ErrorSerialization("decoding dataset metadata", err)
	}
	return md, nil
}

// Verify checks the data file of dir against the checksum recorded in its side-file.
//
// Errors:
//
//    - fricon-error-storage-io -- either file cannot be read, or the checksum differs
//    - fricon-error-serialization -- the side-file content is invalid
func Verify(dir string) error {
	md, err := ReadMetadata(dir)
	if err != nil {
		return err
	}
	sum, err := Checksum(dir)
	if err != nil {
		return err
	}
	if sum != md.Checksum {
		return fcapi.ErrorStorageIO("verifying data file", errors.New("checksum mismatch: recorded "+md.Checksum+", found "+sum))
	}
	return nil
}
