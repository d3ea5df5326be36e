/*
Package catalog is the relational store of dataset records and their tags.

It is the single source of truth for dataset identity, naming and lifecycle
status. Every operation runs in one SQLite transaction and is committed
durably before it returns.
*/
package catalog

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/facette/natsort"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/tracing"
	"github.com/warptools/fricon/pkg/workspace"
)

const datasetSequence = "datasets"

// Catalog is safe for concurrent use.
type Catalog struct {
	db    *bun.DB
	nowFn func() time.Time // If nil, time.Now will be used.
}

// NewDataset holds the caller-supplied attributes of a dataset being created.
type NewDataset struct {
	Name         string
	Description  string
	Tags         []string
	IndexColumns []string
}

func dsn(path string) string {
	return "file:" + path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(FULL)" +
		"&_txlock=immediate"
}

// Open opens the catalog database at path, creating the schema if needed.
//
// Errors:
//
//    - fricon-error-storage-io -- the database cannot be opened or its schema created
func Open(ctx context.Context, path string) (*Catalog, error) {
	sqldb, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fcapi.ErrorStorageIO("opening catalog", err)
	}
	// One connection serializes every transaction, so concurrent mutations never interleave.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	c := &Catalog{db: bun.NewDB(sqldb, sqlitedialect.New())}
	if err := c.createSchema(ctx); err != nil {
		c.db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) now() time.Time {
	if c.nowFn == nil {
		return time.Now()
	}
	return c.nowFn()
}

func (c *Catalog) Close() error {
	if err := c.db.Close(); err != nil {
		return fcapi.ErrorStorageIO("closing catalog", err)
	}
	return nil
}

func (c *Catalog) createSchema(ctx context.Context) error {
	err := c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range []interface{}{
			(*datasetModel)(nil),
			(*tagModel)(nil),
			(*sequenceModel)(nil),
		} {
			if _, err := tx.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return err
			}
		}
		_, err := tx.NewCreateTable().Model((*datasetTagModel)(nil)).IfNotExists().
			ForeignKey(`("dataset_id") REFERENCES "datasets" ("id") ON DELETE CASCADE`).
			ForeignKey(`("tag_id") REFERENCES "tags" ("id") ON DELETE CASCADE`).
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = tx.NewCreateIndex().Model((*datasetModel)(nil)).IfNotExists().
			Index("datasets_status_idx").Column("status").
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = tx.NewInsert().Model(&sequenceModel{Name: datasetSequence}).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx)
		return err
	})
	if err != nil {
		return fcapi.ErrorStorageIO("creating catalog schema", err)
	}
	return nil
}

// NewUID returns a random 128-bit identifier in its 32 character hex form.
func NewUID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// nextID advances the dataset sequence inside tx.
func nextID(ctx context.Context, tx bun.Tx) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`UPDATE sequences SET value = value + 1 WHERE name = ? RETURNING value`, datasetSequence,
	).Scan(&id)
	return id, err
}

// NextID allocates a dataset id outside of dataset creation.
// Ids are strictly increasing over the life of the workspace and never reused.
//
// Errors:
//
//    - fricon-error-storage-io -- the sequence cannot be advanced
func (c *Catalog) NextID(ctx context.Context) (int64, error) {
	var id int64
	err := c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		id, err = nextID(ctx, tx)
		return err
	})
	if err != nil {
		return 0, fcapi.ErrorStorageIO("allocating dataset id", err)
	}
	return id, nil
}

// InsertPending allocates an id and uid and stores a new dataset with status writing.
//
// Errors:
//
//    - fricon-error-storage-io -- the record cannot be stored
func (c *Catalog) InsertPending(ctx context.Context, nd NewDataset) (_ *Dataset, err error) {
	ctx, span := tracing.Start(ctx, "catalog.InsertPending")
	defer tracing.EndWithError(ctx, span, &err)

	index := append([]string{}, nd.IndexColumns...)
	tags := uniqueSorted(nd.Tags)
	var result *Dataset
	err = c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		id, err := nextID(ctx, tx)
		if err != nil {
			return err
		}
		uid := NewUID()
		created := c.now().UTC()
		m := &datasetModel{
			ID:           id,
			UID:          uid,
			Name:         nd.Name,
			Description:  nd.Description,
			Status:       StatusWriting,
			IndexColumns: index,
			Path:         workspace.DatasetDir(uid, created),
			CreatedAt:    created,
		}
		if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
			return err
		}
		if err := addTags(ctx, tx, id, tags); err != nil {
			return err
		}
		result = m.toDataset(tags)
		return nil
	})
	if err != nil {
		return nil, fcapi.ErrorStorageIO("inserting dataset", err)
	}
	span.SetAttributes(
		attribute.Int64(tracing.AttrKeyFriconDatasetID, result.ID),
		attribute.String(tracing.AttrKeyFriconDatasetUID, result.UID),
	)
	return result, nil
}

// MarkCompleted moves a dataset from writing to completed and records its row count.
//
// Errors:
//
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-invalid-transition -- the dataset is not writing
//    - fricon-error-storage-io -- the catalog cannot be updated
func (c *Catalog) MarkCompleted(ctx context.Context, id int64, rowCount int64) error {
	return c.transition(ctx, id, StatusCompleted, &rowCount)
}

// MarkAborted moves a dataset from writing to aborted.
//
// Errors:
//
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-invalid-transition -- the dataset is not writing
//    - fricon-error-storage-io -- the catalog cannot be updated
func (c *Catalog) MarkAborted(ctx context.Context, id int64) error {
	return c.transition(ctx, id, StatusAborted, nil)
}

func (c *Catalog) transition(ctx context.Context, id int64, to Status, rowCount *int64) (err error) {
	ctx, span := tracing.Start(ctx, "catalog.transition")
	defer tracing.EndWithError(ctx, span, &err)
	span.SetAttributes(attribute.Int64(tracing.AttrKeyFriconDatasetID, id))

	return c.runInTx(ctx, "updating dataset status", func(ctx context.Context, tx bun.Tx) error {
		var m datasetModel
		err := tx.NewSelect().Model(&m).Column("status").Where("id = ?", id).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fcapi.ErrorDatasetNotFound(strconv.FormatInt(id, 10))
		}
		if err != nil {
			return err
		}
		if m.Status != StatusWriting {
			return fcapi.ErrorInvalidTransition(id, string(m.Status), string(to))
		}
		q := tx.NewUpdate().Model((*datasetModel)(nil)).Set("status = ?", to).Where("id = ?", id)
		if rowCount != nil {
			q = q.Set("row_count = ?", *rowCount)
		}
		_, err = q.Exec(ctx)
		return err
	})
}

// runInTx wraps plain database errors as storage errors.
// Errors already carrying a code pass through unchanged.
func (c *Catalog) runInTx(ctx context.Context, what string, fn func(ctx context.Context, tx bun.Tx) error) error {
	err := c.db.RunInTx(ctx, nil, fn)
	if err == nil {
		return nil
	}
	if fcapi.HasCode(err) {
		return err
	}
	return fcapi.ErrorStorageIO(what, err)
}

// Get returns the dataset with the given id.
//
// Errors:
//
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be read
func (c *Catalog) Get(ctx context.Context, id int64) (*Dataset, error) {
	return c.getWhere(ctx, strconv.FormatInt(id, 10), "d.id = ?", id)
}

// GetByUID returns the dataset with the given uid.
//
// Errors:
//
//    - fricon-error-not-found -- no dataset has the uid
//    - fricon-error-storage-io -- the catalog cannot be read
func (c *Catalog) GetByUID(ctx context.Context, uid string) (*Dataset, error) {
	return c.getWhere(ctx, uid, "d.uid = ?", uid)
}

func (c *Catalog) getWhere(ctx context.Context, ref string, where string, arg interface{}) (*Dataset, error) {
	var result *Dataset
	err := c.runInTx(ctx, "reading dataset", func(ctx context.Context, tx bun.Tx) error {
		var m datasetModel
		err := tx.NewSelect().Model(&m).Where(where, arg).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fcapi.ErrorDatasetNotFound(ref)
		}
		if err != nil {
			return err
		}
		tags, err := tagsOf(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		result = m.toDataset(tags)
		return nil
	})
	return result, err
}

// List returns every dataset, newest first.
//
// Errors:
//
//    - fricon-error-storage-io -- the catalog cannot be read
func (c *Catalog) List(ctx context.Context) ([]*Dataset, error) {
	return c.listWhere(ctx, "")
}

// ListWriting returns the datasets whose status is still writing.
//
// Errors:
//
//    - fricon-error-storage-io -- the catalog cannot be read
func (c *Catalog) ListWriting(ctx context.Context) ([]*Dataset, error) {
	return c.listWhere(ctx, "d.status = ?", StatusWriting)
}

func (c *Catalog) listWhere(ctx context.Context, where string, args ...interface{}) ([]*Dataset, error) {
	var result []*Dataset
	err := c.runInTx(ctx, "listing datasets", func(ctx context.Context, tx bun.Tx) error {
		var models []datasetModel
		q := tx.NewSelect().Model(&models).Order("d.id DESC")
		if where != "" {
			q = q.Where(where, args...)
		}
		if err := q.Scan(ctx); err != nil {
			return err
		}
		var pairs []struct {
			DatasetID int64  `bun:"dataset_id"`
			Name      string `bun:"name"`
		}
		err := tx.NewSelect().
			TableExpr("dataset_tags AS dt").
			Join("JOIN tags AS t ON t.id = dt.tag_id").
			ColumnExpr("dt.dataset_id, t.name").
			Scan(ctx, &pairs)
		if err != nil {
			return err
		}
		tags := make(map[int64][]string)
		for _, p := range pairs {
			tags[p.DatasetID] = append(tags[p.DatasetID], p.Name)
		}
		result = make([]*Dataset, 0, len(models))
		for i := range models {
			t := tags[models[i].ID]
			natsort.Sort(t)
			result = append(result, models[i].toDataset(t))
		}
		return nil
	})
	return result, err
}

// Delete removes a dataset record and its tag associations, returning the removed record.
//
// Errors:
//
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be updated
func (c *Catalog) Delete(ctx context.Context, id int64) (*Dataset, error) {
	var result *Dataset
	err := c.runInTx(ctx, "deleting dataset", func(ctx context.Context, tx bun.Tx) error {
		var m datasetModel
		err := tx.NewSelect().Model(&m).Where("d.id = ?", id).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fcapi.ErrorDatasetNotFound(strconv.FormatInt(id, 10))
		}
		if err != nil {
			return err
		}
		tags, err := tagsOf(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*datasetTagModel)(nil)).Where("dataset_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*datasetModel)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
			return err
		}
		if err := dropOrphanTags(ctx, tx); err != nil {
			return err
		}
		result = m.toDataset(tags)
		return nil
	})
	return result, err
}
