/*
Package session owns in-flight write sessions.

A session is opened for a freshly created dataset and hands out a write token.
The token authorizes exactly one stream of chunks. The first chunk fixes the
dataset's schema; every chunk is encoded and appended to the dataset's data
file in arrival order. Finishing the stream finalizes the file and marks the
dataset completed. Any failure along the way aborts the session, discards the
file and marks the dataset aborted before the error is returned.

Sessions live only in memory. Datasets left writing by a previous process are
swept to aborted by Recover before new calls are served.
*/
package session

import (
	"context"
	"sync"
	"time"

	"github.com/warptools/fricon/pkg/catalog"
	"github.com/warptools/fricon/pkg/columnar"
	"github.com/warptools/fricon/pkg/datafile"
)

// State is the position of a session in its lifecycle.
type State int

const (
	AwaitingFirstChunk State = iota
	Streaming
	Finalized
	Aborted
)

func (s State) String() string {
	switch s {
	case AwaitingFirstChunk:
		return "awaiting-first-chunk"
	case Streaming:
		return "streaming"
	case Finalized:
		return "finalized"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == Finalized || s == Aborted }

// Catalog is the part of the dataset catalog a session manager drives.
type Catalog interface {
	Get(ctx context.Context, id int64) (*catalog.Dataset, error)
	ListWriting(ctx context.Context) ([]*catalog.Dataset, error)
	MarkCompleted(ctx context.Context, id int64, rowCount int64) error
	MarkAborted(ctx context.Context, id int64) error
}

// Result describes a finished write stream.
type Result struct {
	ID       int64
	RowCount int64
	Checksum string
}

type session struct {
	mu sync.Mutex

	token   string
	dataset *catalog.Dataset
	dir     string // absolute dataset directory

	state   State
	schema  *columnar.Schema
	encoder *columnar.Encoder
	writer  *datafile.Writer
	rows    int64

	idle       *time.Timer
	lastActive time.Time
}
