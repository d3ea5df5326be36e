package catalog

import (
	"time"

	"github.com/uptrace/bun"
)

// Status is the lifecycle state of a dataset.
type Status string

const (
	StatusWriting   Status = "writing"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

type datasetModel struct {
	bun.BaseModel `bun:"table:datasets,alias:d"`

	ID           int64     `bun:"id,pk"`
	UID          string    `bun:"uid,notnull,unique"`
	Name         string    `bun:"name,notnull"`
	Description  string    `bun:"description,notnull"`
	Favorite     bool      `bun:"favorite,notnull"`
	Status       Status    `bun:"status,notnull"`
	IndexColumns []string  `bun:"index_columns,notnull"`
	Path         string    `bun:"path,notnull"`
	RowCount     int64     `bun:"row_count,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

type tagModel struct {
	bun.BaseModel `bun:"table:tags,alias:t"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull,unique"`
}

type datasetTagModel struct {
	bun.BaseModel `bun:"table:dataset_tags,alias:dt"`

	DatasetID int64 `bun:"dataset_id,pk"`
	TagID     int64 `bun:"tag_id,pk"`
}

// sequenceModel holds named counters. Values only ever grow.
type sequenceModel struct {
	bun.BaseModel `bun:"table:sequences,alias:s"`

	Name  string `bun:"name,pk"`
	Value int64  `bun:"value,notnull"`
}

// Dataset is a catalog record together with its tags.
type Dataset struct {
	ID           int64
	UID          string
	Name         string
	Description  string
	Favorite     bool
	Status       Status
	IndexColumns []string
	Path         string // dataset directory, relative to the workspace root
	RowCount     int64
	CreatedAt    time.Time
	Tags         []string
}

func (m *datasetModel) toDataset(tags []string) *Dataset {
	if tags == nil {
		tags = []string{}
	}
	index := m.IndexColumns
	if index == nil {
		index = []string{}
	}
	return &Dataset{
		ID:           m.ID,
		UID:          m.UID,
		Name:         m.Name,
		Description:  m.Description,
		Favorite:     m.Favorite,
		Status:       m.Status,
		IndexColumns: index,
		Path:         m.Path,
		RowCount:     m.RowCount,
		CreatedAt:    m.CreatedAt,
		Tags:         tags,
	}
}
