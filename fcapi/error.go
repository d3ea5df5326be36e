package fcapi

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/serum-errors/go-serum"
)

const (
	ECodeNotFound          = "fricon-error-not-found"
	ECodeAlreadyOpen       = "fricon-error-already-open"
	ECodeInvalidToken      = "fricon-error-invalid-token"
	ECodeSchema            = "fricon-error-schema"
	ECodeSchemaMismatch    = "fricon-error-schema-mismatch"
	ECodeInvalidTransition = "fricon-error-invalid-transition"
	ECodeStorageIO         = "fricon-error-storage-io"
	ECodeEmptyDataset      = "fricon-error-empty-dataset"
	ECodeNotReadable       = "fricon-error-not-readable"
	ECodeInvalid           = "fricon-error-invalid"
	ECodeSerialization     = "fricon-error-serialization"
	ECodeIo                = "fricon-error-io"
	ECodeWorkspace         = "fricon-error-workspace"
	ECodeConfig            = "fricon-error-config"
	ECodeConnection        = "fricon-error-connection"
	ECodeInternal          = "fricon-error-internal"
	ECodeUnknown           = "fricon-error-unknown"
)

// TerminalError emits an error on stdout as json, and halts immediately.
// Only used where no other output protocol has been established yet.
func TerminalError(err serum.ErrorInterface, exitCode int) {
	json.NewEncoder(os.Stdout).Encode(struct {
		Error serum.ErrorInterface `json:"error"`
	}{err})
	os.Exit(exitCode)
}

// HasCode reports whether err itself carries a real serum code.
// serum.Code invents a "bestguess-" code for plain errors, and serum causes
// are standardized into values carrying that invented code.
func HasCode(err error) bool {
	se, ok := err.(serum.ErrorInterface)
	return ok && !strings.HasPrefix(se.Code(), "bestguess-")
}

// ErrorUnknown is returned when an unknown error occurs
//
// Errors:
//
//    - fricon-error-unknown --
func ErrorUnknown(msgTmpl string, cause error) error {
	return serum.Errorf(ECodeUnknown, "%s: %w", msgTmpl, cause)
}

// ErrorInternal is for miscellaneous errors that should be handled internally.
// In most cases, prefer to use more specific errors.
//
// Errors:
//
//    - fricon-error-internal --
func ErrorInternal(msgTmpl string, cause error) error {
	return serum.Errorf(ECodeInternal, "%s: %w", msgTmpl, cause)
}

// ErrorInvalid is returned when request input is invalid.
// The caller must format the message string.
//
// Errors:
//
//    - fricon-error-invalid --
func ErrorInvalid(message string, deets ...[2]string) error {
	opts := make([]serum.WithConstruction, 0, len(deets)+1)
	for _, d := range deets {
		opts = append(opts, serum.WithDetail(d[0], d[1]))
	}
	opts = append(opts, serum.WithMessageLiteral(message))
	return serum.Error(ECodeInvalid, opts...)
}

// ErrorDatasetNotFound is returned when no dataset has the requested id or uid.
// The reference is whichever identifier the caller used.
//
// Errors:
//
//    - fricon-error-not-found --
func ErrorDatasetNotFound(ref string) error {
	return serum.Error(ECodeNotFound,
		serum.WithMessageTemplate("dataset {{dataset|q}} not found"),
		serum.WithDetail("dataset", ref),
	)
}

// ErrorAlreadyOpen is returned when a write session is already live for a dataset.
//
// Errors:
//
//    - fricon-error-already-open --
func ErrorAlreadyOpen(datasetID int64) error {
	return serum.Error(ECodeAlreadyOpen,
		serum.WithMessageTemplate("dataset {{datasetID}} already has an open write session"),
		serum.WithDetail("datasetID", strconv.FormatInt(datasetID, 10)),
	)
}

// ErrorInvalidToken is returned when a write token is unknown, expired, or already used.
// The token itself is never echoed back.
//
// Errors:
//
//    - fricon-error-invalid-token --
func ErrorInvalidToken() error {
	return serum.Error(ECodeInvalidToken,
		serum.WithMessageLiteral("write token is unknown or no longer valid"),
	)
}

// ErrorSchema is returned when the first batch of a write cannot define a schema.
//
// Errors:
//
//    - fricon-error-schema --
func ErrorSchema(reason string, deets ...[2]string) error {
	opts := []serum.WithConstruction{
		serum.WithMessageTemplate("cannot infer schema: {{reason}}"),
		serum.WithDetail("reason", reason),
	}
	for _, d := range deets {
		opts = append(opts, serum.WithDetail(d[0], d[1]))
	}
	return serum.Error(ECodeSchema, opts...)
}

// ErrorSchemaMismatch is returned when a batch disagrees with the schema fixed by the first batch.
//
// Errors:
//
//    - fricon-error-schema-mismatch --
func ErrorSchemaMismatch(column string, reason string) error {
	return serum.Error(ECodeSchemaMismatch,
		serum.WithMessageTemplate("batch does not match dataset schema at column {{column|q}}: {{reason}}"),
		serum.WithDetail("column", column),
		serum.WithDetail("reason", reason),
	)
}

// ErrorInvalidTransition is returned when a dataset status change is attempted from the wrong status.
//
// Errors:
//
//    - fricon-error-invalid-transition --
func ErrorInvalidTransition(datasetID int64, from, to string) error {
	return serum.Error(ECodeInvalidTransition,
		serum.WithMessageTemplate("dataset {{datasetID}} cannot move from {{from|q}} to {{to|q}}"),
		serum.WithDetail("datasetID", strconv.FormatInt(datasetID, 10)),
		serum.WithDetail("from", from),
		serum.WithDetail("to", to),
	)
}

// ErrorStorageIO wraps failures of the catalog store or of dataset files.
//
// Errors:
//
//    - fricon-error-storage-io --
func ErrorStorageIO(context string, cause error) error {
	result := serum.Errorf(ECodeStorageIO, "storage error: %s: %w", context, cause)
	addDetails(result, [][2]string{
		{"context", context},
	})
	return result
}

// ErrorEmptyDataset is returned when a write stream ends without delivering any batch.
//
// Errors:
//
//    - fricon-error-empty-dataset --
func ErrorEmptyDataset(datasetID int64) error {
	return serum.Error(ECodeEmptyDataset,
		serum.WithMessageTemplate("write stream for dataset {{datasetID}} ended without any data"),
		serum.WithDetail("datasetID", strconv.FormatInt(datasetID, 10)),
	)
}

// ErrorNotReadable is returned when the data of a dataset is requested before it is completed.
//
// Errors:
//
//    - fricon-error-not-readable --
func ErrorNotReadable(datasetID int64, status string) error {
	return serum.Error(ECodeNotReadable,
		serum.WithMessageTemplate("dataset {{datasetID}} has status {{status|q}} and cannot be read"),
		serum.WithDetail("datasetID", strconv.FormatInt(datasetID, 10)),
		serum.WithDetail("status", status),
	)
}

// ErrorIo wraps generic I/O errors from the Go stdlib
//
// Errors:
//
//    - fricon-error-io --
func ErrorIo(context string, path string, cause error) error {
	result := serum.Errorf(ECodeIo,
		"io error: %s: %w", context, cause)
	addDetails(result, [][2]string{{"context", context}, {"path", path}})
	return result
}

// ErrorSerialization is returned when a serialization or deserialization error occurs
//
// Errors:
//
//    - fricon-error-serialization --
func ErrorSerialization(context string, cause error) error {
	result := serum.Errorf(ECodeSerialization,
		"serialization error: %s: %w", context, cause)
	addDetails(result, [][2]string{
		{"context", context},
	})
	return result
}

// ErrorWorkspace is returned when an error occurs when handling a workspace
//
// Errors:
//
//    - fricon-error-workspace --
func ErrorWorkspace(wsPath string, cause error) error {
	result := serum.Errorf(ECodeWorkspace,
		"error handling workspace at %q: %w", wsPath, cause)
	addDetails(result, [][2]string{
		{"workspacePath", wsPath},
	})
	return result
}

// ErrorConfig is returned when the workspace configuration file holds a bad value.
//
// Errors:
//
//    - fricon-error-config --
func ErrorConfig(path string, key string, cause error) error {
	result := serum.Errorf(ECodeConfig,
		"invalid configuration %q in %q: %w", key, path, cause)
	addDetails(result, [][2]string{
		{"path", path},
		{"key", key},
	})
	return result
}

// ErrorConnection is returned when a socket connection cannot be made or used.
//
// Errors:
//
//    - fricon-error-connection --
func ErrorConnection(address string, cause error) error {
	result := serum.Errorf(ECodeConnection,
		"connection error at %q: %w", address, cause)
	addDetails(result, [][2]string{
		{"address", address},
	})
	return result
}

func addDetails(err error, details [][2]string) {
	s, ok := err.(*serum.ErrorValue)
	if !ok {
		panic(fmt.Sprintf("unexpected error type %T", err))
	}
	s.Data.Details = append(s.Data.Details, details...)
}
