package workspaceapi

import (
	"embed"
	"fmt"

	"github.com/ipld/go-ipld-prime/schema"
	schemadmt "github.com/ipld/go-ipld-prime/schema/dmt"
	schemadsl "github.com/ipld/go-ipld-prime/schema/dsl"
)

// embed the fricon ipld schema from file
//
//go:embed fcwsapi.ipldsch
var schFs embed.FS

var SchemaDMT, TypeSystem = func() (*schemadmt.Schema, *schema.TypeSystem) {
	r, err := schFs.Open("fcwsapi.ipldsch")
	if err != nil {
		panic(fmt.Sprintf("failed to open embedded fcwsapi.ipldsch: %s", err))
	}
	schemaDmt, err := schemadsl.Parse("fcwsapi.ipldsch", r)
	if err != nil {
		panic(fmt.Sprintf("failed to parse api schema: %s", err))
	}

	ts := new(schema.TypeSystem)
	ts.Init()
	if err := schemadmt.Compile(ts, schemaDmt); err != nil {
		panic(fmt.Sprintf("failed to compile api schema: %s", err))
	}
	return schemaDmt, ts
}()

// Dataset statuses as they appear on the wire and in the catalog.
const (
	StatusWriting   = "writing"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// Dataset is the wire form of a catalog record.
// Every field is optional so partially populated records can be sent.
type Dataset struct {
	ID           *int64
	UID          *string
	Name         *string
	Description  *string
	Favorite     *bool
	IndexColumns *[]string
	Path         *string
	CreatedAt    *string
	Tags         *[]string
	Status       *string
	RowCount     *int64
}

type CreateRequest struct {
	Name         *string
	Description  *string
	Tags         []string
	IndexColumns []string
}

type CreateAnswer struct {
	WriteToken string
}

type WriteChunk struct {
	Chunk []byte
}

type WriteEnd struct{}

type WriteAbort struct {
	Reason *string
}

type WriteAnswer struct {
	ID       int64
	RowCount int64
}

type ListRequest struct{}

type ListAnswer struct {
	Datasets []Dataset
}

type GetRequest struct {
	ID  *int64
	UID *string
}

type GetAnswer struct {
	Dataset Dataset
}

type ReplaceTags struct {
	ID   int64
	Tags []string
}

type AddTags struct {
	ID   int64
	Tags []string
}

type RemoveTags struct {
	ID   int64
	Tags []string
}

type UpdateName struct {
	ID   int64
	Name *string
}

type UpdateDescription struct {
	ID          int64
	Description *string
}

type UpdateFavorite struct {
	ID       int64
	Favorite *bool
}

type DeleteRequest struct {
	ID int64
}

type Ack struct{}

type Ping struct{}

type PingAck struct {
	Version string
}

// DatasetMetadata is the content of the metadata side-file kept next to each dataset file.
type DatasetMetadata struct {
	UID          string
	Name         *string
	Description  *string
	Favorite     bool
	Tags         []string
	IndexColumns []string
	CreatedAt    string
	Columns      []ColumnInfo
	RowCount     int64
	Checksum     string
}

type ColumnInfo struct {
	Name string
	Kind string
}
