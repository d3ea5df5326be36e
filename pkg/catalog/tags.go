package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/facette/natsort"
	"github.com/uptrace/bun"

	"github.com/warptools/fricon/fcapi"
)

// uniqueSorted drops empty and duplicate names and orders the rest naturally.
func uniqueSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	natsort.Sort(result)
	return result
}

func tagsOf(ctx context.Context, tx bun.Tx, datasetID int64) ([]string, error) {
	var names []string
	err := tx.NewSelect().
		TableExpr("dataset_tags AS dt").
		Join("JOIN tags AS t ON t.id = dt.tag_id").
		ColumnExpr("t.name").
		Where("dt.dataset_id = ?", datasetID).
		Scan(ctx, &names)
	if err != nil {
		return nil, err
	}
	natsort.Sort(names)
	return names, nil
}

// addTags creates missing tag rows and associates them with the dataset.
// Existing associations are left alone.
func addTags(ctx context.Context, tx bun.Tx, datasetID int64, names []string) error {
	if len(names) == 0 {
		return nil
	}
	tags := make([]tagModel, len(names))
	for i, n := range names {
		tags[i].Name = n
	}
	_, err := tx.NewInsert().Model(&tags).
		On("CONFLICT (name) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	var ids []int64
	err = tx.NewSelect().Model((*tagModel)(nil)).
		Column("id").
		Where("name IN (?)", bun.In(names)).
		Scan(ctx, &ids)
	if err != nil {
		return err
	}
	links := make([]datasetTagModel, len(ids))
	for i, id := range ids {
		links[i] = datasetTagModel{DatasetID: datasetID, TagID: id}
	}
	_, err = tx.NewInsert().Model(&links).
		On("CONFLICT (dataset_id, tag_id) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	return err
}

func removeTags(ctx context.Context, tx bun.Tx, datasetID int64, names []string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := tx.NewDelete().Model((*datasetTagModel)(nil)).
		Where("dataset_id = ?", datasetID).
		Where("tag_id IN (SELECT id FROM tags WHERE name IN (?))", bun.In(names)).
		Exec(ctx)
	return err
}

func dropOrphanTags(ctx context.Context, tx bun.Tx) error {
	_, err := tx.NewDelete().Model((*tagModel)(nil)).
		Where("id NOT IN (SELECT tag_id FROM dataset_tags)").
		Exec(ctx)
	return err
}

// ensureExists reports NotFound when no dataset has the id.
func ensureExists(ctx context.Context, tx bun.Tx, id int64) error {
	exists, err := tx.NewSelect().Model((*datasetModel)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fcapi.ErrorDatasetNotFound(strconv.FormatInt(id, 10))
	}
	return nil
}

// mutate runs fn against an existing dataset and returns the record as it stands afterwards.
func (c *Catalog) mutate(ctx context.Context, what string, id int64, fn func(ctx context.Context, tx bun.Tx) error) (*Dataset, error) {
	var result *Dataset
	err := c.runInTx(ctx, what, func(ctx context.Context, tx bun.Tx) error {
		if err := ensureExists(ctx, tx, id); err != nil {
			return err
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
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
		result = m.toDataset(tags)
		return nil
	})
	return result, err
}

// ReplaceTags makes the dataset's tag set exactly the given names.
//
// Errors:
//
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be updated
func (c *Catalog) ReplaceTags(ctx context.Context, id int64, names []string) (*Dataset, error) {
	names = uniqueSorted(names)
	return c.mutate(ctx, "replacing tags", id, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*datasetTagModel)(nil)).Where("dataset_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		if err := addTags(ctx, tx, id, names); err != nil {
			return err
		}
		return dropOrphanTags(ctx, tx)
	})
}

// AddTags adds names to the dataset's tag set. Names already present are ignored.
//
// Errors:
//
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be updated
func (c *Catalog) AddTags(ctx context.Context, id int64, names []string) (*Dataset, error) {
	names = uniqueSorted(names)
	return c.mutate(ctx, "adding tags", id, func(ctx context.Context, tx bun.Tx) error {
		return addTags(ctx, tx, id, names)
	})
}

// RemoveTags removes names from the dataset's tag set. Absent names are ignored.
//
// Errors:
//
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be updated
func (c *Catalog) RemoveTags(ctx context.Context, id int64, names []string) (*Dataset, error) {
	names = uniqueSorted(names)
	return c.mutate(ctx, "removing tags", id, func(ctx context.Context, tx bun.Tx) error {
		if err := removeTags(ctx, tx, id, names); err != nil {
			return err
		}
		return dropOrphanTags(ctx, tx)
	})
}

// UpdateName sets the dataset's name.
//
// Errors:
//
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be updated
func (c *Catalog) UpdateName(ctx context.Context, id int64, name string) (*Dataset, error) {
	return c.setColumn(ctx, id, "name", name)
}

// UpdateDescription sets the dataset's description.
//
// Errors:
//
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be updated
func (c *Catalog) UpdateDescription(ctx context.Context, id int64, description string) (*Dataset, error) {
	return c.setColumn(ctx, id, "description", description)
}

// UpdateFavorite sets the dataset's favorite flag.
//
// Errors:
//
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be updated
func (c *Catalog) UpdateFavorite(ctx context.Context, id int64, favorite bool) (*Dataset, error) {
	return c.setColumn(ctx, id, "favorite", favorite)
}

func (c *Catalog) setColumn(ctx context.Context, id int64, column string, value interface{}) (*Dataset, error) {
	return c.mutate(ctx, "updating "+column, id, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().Model((*datasetModel)(nil)).
			Set("? = ?", bun.Ident(column), value).
			Where("id = ?", id).
			Exec(ctx)
		return err
	})
}
