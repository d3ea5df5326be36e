package catalog_test

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/catalog"
)

func openCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(context.Background(), filepath.Join(t.TempDir(), "fricon.sqlite3"))
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInsertPending(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	ds, err := c.InsertPending(ctx, catalog.NewDataset{
		Name:         "run1",
		Description:  "first run",
		Tags:         []string{"b", "a", "a", ""},
		IndexColumns: []string{"freq"},
	})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ds.ID, qt.Equals, int64(1))
	qt.Assert(t, ds.UID, qt.HasLen, 32)
	qt.Assert(t, ds.Status, qt.Equals, catalog.StatusWriting)
	qt.Assert(t, ds.Tags, qt.DeepEquals, []string{"a", "b"})
	qt.Assert(t, ds.Path, qt.Matches, `data/\d{4}-\d{2}-\d{2}/`+ds.UID)

	got, err := c.Get(ctx, ds.ID)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got.Name, qt.Equals, "run1")
	qt.Assert(t, got.Description, qt.Equals, "first run")
	qt.Assert(t, got.IndexColumns, qt.DeepEquals, []string{"freq"})
	qt.Assert(t, got.Tags, qt.DeepEquals, []string{"a", "b"})

	byUID, err := c.GetByUID(ctx, ds.UID)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, byUID.ID, qt.Equals, ds.ID)
}

func TestConcurrentInsertsGetDistinctIncreasingIDs(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	const n = 100
	ids := make([]int64, n)
	uids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ds, err := c.InsertPending(ctx, catalog.NewDataset{Name: "n" + strconv.Itoa(i)})
			errs[i] = err
			if err == nil {
				ids[i] = ds.ID
				uids[i] = ds.UID
			}
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		qt.Assert(t, err, qt.IsNil)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i := range ids {
		qt.Assert(t, ids[i], qt.Equals, int64(i+1))
	}
	seen := map[string]bool{}
	for _, u := range uids {
		qt.Assert(t, seen[u], qt.IsFalse)
		seen[u] = true
	}

	next, err := c.NextID(ctx)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, next, qt.Equals, int64(n+1))
}

func TestIDsNotReusedAfterDelete(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	first, err := c.InsertPending(ctx, catalog.NewDataset{Name: "a"})
	qt.Assert(t, err, qt.IsNil)
	_, err = c.Delete(ctx, first.ID)
	qt.Assert(t, err, qt.IsNil)
	second, err := c.InsertPending(ctx, catalog.NewDataset{Name: "b"})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, second.ID > first.ID, qt.IsTrue)

	_, err = c.Get(ctx, first.ID)
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeNotFound)
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	a, err := c.InsertPending(ctx, catalog.NewDataset{Name: "a"})
	qt.Assert(t, err, qt.IsNil)
	b, err := c.InsertPending(ctx, catalog.NewDataset{Name: "b"})
	qt.Assert(t, err, qt.IsNil)

	writing, err := c.ListWriting(ctx)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, writing, qt.HasLen, 2)

	qt.Assert(t, c.MarkCompleted(ctx, a.ID, 3), qt.IsNil)
	qt.Assert(t, c.MarkAborted(ctx, b.ID), qt.IsNil)

	got, err := c.Get(ctx, a.ID)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got.Status, qt.Equals, catalog.StatusCompleted)
	qt.Assert(t, got.RowCount, qt.Equals, int64(3))

	err = c.MarkAborted(ctx, a.ID)
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeInvalidTransition)
	err = c.MarkCompleted(ctx, b.ID, 1)
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeInvalidTransition)
	err = c.MarkCompleted(ctx, 999, 1)
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeNotFound)

	writing, err = c.ListWriting(ctx)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, writing, qt.HasLen, 0)
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	ds, err := c.InsertPending(ctx, catalog.NewDataset{Name: "a", Tags: []string{"x"}})
	qt.Assert(t, err, qt.IsNil)

	got, err := c.AddTags(ctx, ds.ID, []string{"y10", "y2"})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got.Tags, qt.DeepEquals, []string{"x", "y2", "y10"})

	got, err = c.AddTags(ctx, ds.ID, []string{"y2"})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got.Tags, qt.DeepEquals, []string{"x", "y2", "y10"})

	got, err = c.RemoveTags(ctx, ds.ID, []string{"absent", "x"})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got.Tags, qt.DeepEquals, []string{"y2", "y10"})

	got, err = c.ReplaceTags(ctx, ds.ID, []string{"z"})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got.Tags, qt.DeepEquals, []string{"z"})

	got, err = c.ReplaceTags(ctx, ds.ID, nil)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got.Tags, qt.DeepEquals, []string{})

	_, err = c.AddTags(ctx, 42, []string{"q"})
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeNotFound)
	_, err = c.RemoveTags(ctx, 42, nil)
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeNotFound)
}

func TestUpdatesAndList(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	a, err := c.InsertPending(ctx, catalog.NewDataset{Name: "a", Tags: []string{"t"}})
	qt.Assert(t, err, qt.IsNil)
	b, err := c.InsertPending(ctx, catalog.NewDataset{Name: "b"})
	qt.Assert(t, err, qt.IsNil)

	got, err := c.UpdateName(ctx, a.ID, "renamed")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got.Name, qt.Equals, "renamed")
	got, err = c.UpdateDescription(ctx, a.ID, "desc")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got.Description, qt.Equals, "desc")
	got, err = c.UpdateFavorite(ctx, a.ID, true)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got.Favorite, qt.IsTrue)
	qt.Assert(t, got.Tags, qt.DeepEquals, []string{"t"})

	_, err = c.UpdateName(ctx, 99, "x")
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeNotFound)

	list, err := c.List(ctx)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, list, qt.HasLen, 2)
	qt.Assert(t, list[0].ID, qt.Equals, b.ID)
	qt.Assert(t, list[1].Name, qt.Equals, "renamed")
	qt.Assert(t, list[1].Tags, qt.DeepEquals, []string{"t"})
	qt.Assert(t, list[0].Tags, qt.DeepEquals, []string{})
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fricon.sqlite3")
	c, err := catalog.Open(ctx, path)
	qt.Assert(t, err, qt.IsNil)
	ds, err := c.InsertPending(ctx, catalog.NewDataset{Name: "a"})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, c.Close(), qt.IsNil)

	c, err = catalog.Open(ctx, path)
	qt.Assert(t, err, qt.IsNil)
	defer c.Close()
	got, err := c.Get(ctx, ds.ID)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got.UID, qt.Equals, ds.UID)
	next, err := c.NextID(ctx)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, next, qt.Equals, ds.ID+1)
}

func TestClosedCatalogReportsStorageErrors(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)
	ds, err := c.InsertPending(ctx, catalog.NewDataset{Name: "run1"})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, c.Close(), qt.IsNil)

	_, err = c.AddTags(ctx, ds.ID, []string{"x"})
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeStorageIO)
	err = c.MarkAborted(ctx, ds.ID)
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeStorageIO)
	_, err = c.List(ctx)
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeStorageIO)
	_, err = c.Get(ctx, ds.ID)
	qt.Assert(t, serum.Code(err), qt.Equals, fcapi.ECodeStorageIO)
}
