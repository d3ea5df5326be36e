package workspace

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/warptools/fricon/fcapi"
)

// FindWorkspace looks for a workspace on the filesystem and returns the path of the first one found,
// searching directories upward.
//
// It searches from `join(basisPath,searchPath)` up to `basisPath`
// (in other words, it won't search above basisPath).
// Invoking it with an empty string for `basisPath` and the derootified cwd for `searchPath` is typical.
//
// If no workspace is found, it will return an empty path and a nil error.
// If errors are returned, they're due to filesystem IO.
//
// An fsys handle is required, but is typically `os.DirFS("/")` outside of tests.
//
// Errors:
//
//    - fricon-error-io -- when an unexpected error occurs traversing the search path
func FindWorkspace(fsys fs.FS, basisPath, searchPath string) (string, error) {
	searchAt := searchPath
	for {
		_, err := fs.Stat(fsys, filepath.Join(basisPath, searchAt, VersionFilename))
		if err == nil {
			return filepath.Join(basisPath, searchAt), nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			if searchAt == "/" || searchAt == "." || searchAt == "" {
				return "", nil
			}
			searchAt = filepath.Dir(searchAt)
			continue
		}
		// Any other error leaves the search with blind spots.
		return "", fcapi.ErrorIo("searching for workspace", searchAt, err)
	}
}
