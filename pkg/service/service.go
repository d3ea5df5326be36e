/*
Package service is the RPC-facing façade of a fricon workspace.

It validates requests, drives the catalog and the write session manager, and
translates results and errors into their wire forms. It keeps no state of its
own beyond what it is constructed with.
*/
package service

import (
	"context"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.opentelemetry.io/otel/attribute"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/catalog"
	"github.com/warptools/fricon/pkg/datafile"
	"github.com/warptools/fricon/pkg/logging"
	"github.com/warptools/fricon/pkg/session"
	"github.com/warptools/fricon/pkg/tracing"
	"github.com/warptools/fricon/pkg/workspace"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

const LogTag = "╬═  service"

type Service struct {
	ws       *workspace.Workspace
	catalog  *catalog.Catalog
	sessions *session.Manager
	version  string
	mem      memory.Allocator
}

func New(ws *workspace.Workspace, cat *catalog.Catalog, sessions *session.Manager, version string) *Service {
	return &Service{
		ws:       ws,
		catalog:  cat,
		sessions: sessions,
		version:  version,
		mem:      memory.DefaultAllocator,
	}
}

func (s *Service) Ping(ctx context.Context) workspaceapi.PingAck {
	return workspaceapi.PingAck{Version: s.version}
}

// Create stores a new dataset in writing status and opens its write session.
//
// Errors:
//
//    - fricon-error-invalid -- a tag or index column is empty, or an index column repeats
//    - fricon-error-storage-io -- the catalog cannot be updated
func (s *Service) Create(ctx context.Context, req workspaceapi.CreateRequest) (workspaceapi.CreateAnswer, error) {
	if err := validateNames("tag", req.Tags, false); err != nil {
		return workspaceapi.CreateAnswer{}, err
	}
	if err := validateNames("index column", req.IndexColumns, true); err != nil {
		return workspaceapi.CreateAnswer{}, err
	}
	nd := catalog.NewDataset{
		Tags:         req.Tags,
		IndexColumns: req.IndexColumns,
	}
	if req.Name != nil {
		nd.Name = *req.Name
	}
	if req.Description != nil {
		nd.Description = *req.Description
	}
	ds, err := s.catalog.InsertPending(ctx, nd)
	if err != nil {
		return workspaceapi.CreateAnswer{}, err
	}
	token, err := s.sessions.Open(ctx, ds)
	if err != nil {
		// The record was just made; nobody else can hold a session for it.
		if err := s.catalog.MarkAborted(ctx, ds.ID); err != nil {
			logging.Ctx(ctx).Warn(LogTag, "aborting dataset %d: %s", ds.ID, err)
		}
		return workspaceapi.CreateAnswer{}, err
	}
	logging.Ctx(ctx).Info(LogTag, "created dataset %d (%s)", ds.ID, ds.UID)
	return workspaceapi.CreateAnswer{WriteToken: token}, nil
}

func validateNames(what string, names []string, unique bool) error {
	seen := make(map[string]struct{}, len(names))
	for i, n := range names {
		if n == "" {
			return fcapi.ErrorInvalid(what+" is empty", [2]string{"position", strconv.Itoa(i)})
		}
		if _, ok := seen[n]; ok && unique {
			return fcapi.ErrorInvalid(what+" is repeated", [2]string{"name", n})
		}
		seen[n] = struct{}{}
	}
	return nil
}

func validateID(id int64) error {
	if id <= 0 {
		return fcapi.ErrorInvalid("dataset id must be positive", [2]string{"id", strconv.FormatInt(id, 10)})
	}
	return nil
}

func requireToken(token string) error {
	if token == "" {
		return fcapi.ErrorInvalidToken()
	}
	return nil
}

// WriteChunk appends one chunk to the stream authorized by token.
//
// Errors:
//
//    - fricon-error-invalid-token -- the token is missing, unknown or its session has ended
//    - fricon-error-serialization -- the chunk is not a valid batch
//    - fricon-error-schema -- the first batch cannot fix a schema
//    - fricon-error-schema-mismatch -- the batch disagrees with the fixed schema
//    - fricon-error-invalid -- a value has an invalid shape
//    - fricon-error-storage-io -- the data file cannot be written
func (s *Service) WriteChunk(ctx context.Context, token string, chunk []byte) error {
	if err := requireToken(token); err != nil {
		return err
	}
	return s.sessions.AcceptChunk(ctx, token, chunk)
}

// WriteEnd completes the stream authorized by token.
//
// Errors:
//
//    - fricon-error-invalid-token -- the token is missing, unknown or its session has ended
//    - fricon-error-empty-dataset -- no chunk was written
//    - fricon-error-storage-io -- the file or catalog cannot be finalized
//    - fricon-error-serialization -- the metadata side-file cannot be encoded
func (s *Service) WriteEnd(ctx context.Context, token string) (workspaceapi.WriteAnswer, error) {
	if err := requireToken(token); err != nil {
		return workspaceapi.WriteAnswer{}, err
	}
	res, err := s.sessions.Finish(ctx, token)
	if err != nil {
		return workspaceapi.WriteAnswer{}, err
	}
	return workspaceapi.WriteAnswer{ID: res.ID, RowCount: res.RowCount}, nil
}

// WriteAbort abandons the stream authorized by token.
//
// Errors:
//
//    - fricon-error-invalid-token -- the token is missing, unknown or its session has ended
//    - fricon-error-storage-io -- the catalog cannot record the abort
func (s *Service) WriteAbort(ctx context.Context, token string, reason string) error {
	if err := requireToken(token); err != nil {
		return err
	}
	if reason == "" {
		reason = "aborted by client"
	}
	return s.sessions.Abort(ctx, token, reason)
}

// List returns every dataset, newest first.
//
// Errors:
//
//    - fricon-error-storage-io -- the catalog cannot be read
func (s *Service) List(ctx context.Context) (workspaceapi.ListAnswer, error) {
	all, err := s.catalog.List(ctx)
	if err != nil {
		return workspaceapi.ListAnswer{}, err
	}
	out := make([]workspaceapi.Dataset, 0, len(all))
	for _, ds := range all {
		out = append(out, WireDataset(ds))
	}
	return workspaceapi.ListAnswer{Datasets: out}, nil
}

// Get returns one dataset by id or uid. Exactly one of the two must be given.
//
// Errors:
//
//    - fricon-error-invalid -- neither or both of id and uid are given, or either is malformed
//    - fricon-error-not-found -- no dataset matches
//    - fricon-error-storage-io -- the catalog cannot be read
func (s *Service) Get(ctx context.Context, req workspaceapi.GetRequest) (workspaceapi.GetAnswer, error) {
	ds, err := s.lookup(ctx, req)
	if err != nil {
		return workspaceapi.GetAnswer{}, err
	}
	return workspaceapi.GetAnswer{Dataset: WireDataset(ds)}, nil
}

func (s *Service) lookup(ctx context.Context, req workspaceapi.GetRequest) (*catalog.Dataset, error) {
	switch {
	case req.ID != nil && req.UID != nil:
		return nil, fcapi.ErrorInvalid("give either a dataset id or a uid, not both")
	case req.ID != nil:
		if err := validateID(*req.ID); err != nil {
			return nil, err
		}
		return s.catalog.Get(ctx, *req.ID)
	case req.UID != nil:
		if *req.UID == "" {
			return nil, fcapi.ErrorInvalid("dataset uid is empty")
		}
		return s.catalog.GetByUID(ctx, *req.UID)
	default:
		return nil, fcapi.ErrorInvalid("a dataset id or uid is required")
	}
}

// ReplaceTags makes the dataset's tag set exactly the given tags.
//
// Errors:
//
//    - fricon-error-invalid -- the id is not positive or a tag is empty
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be updated
func (s *Service) ReplaceTags(ctx context.Context, req workspaceapi.ReplaceTags) error {
	return s.editTags(ctx, req.ID, req.Tags, s.catalog.ReplaceTags)
}

// AddTags adds tags to the dataset. Tags already present are ignored.
//
// Errors:
//
//    - fricon-error-invalid -- the id is not positive or a tag is empty
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be updated
func (s *Service) AddTags(ctx context.Context, req workspaceapi.AddTags) error {
	return s.editTags(ctx, req.ID, req.Tags, s.catalog.AddTags)
}

// RemoveTags removes tags from the dataset. Absent tags are ignored.
//
// Errors:
//
//    - fricon-error-invalid -- the id is not positive or a tag is empty
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be updated
func (s *Service) RemoveTags(ctx context.Context, req workspaceapi.RemoveTags) error {
	return s.editTags(ctx, req.ID, req.Tags, s.catalog.RemoveTags)
}

type tagEdit func(ctx context.Context, id int64, names []string) (*catalog.Dataset, error)

func (s *Service) editTags(ctx context.Context, id int64, tags []string, edit tagEdit) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateNames("tag", tags, false); err != nil {
		return err
	}
	ds, err := edit(ctx, id, tags)
	if err != nil {
		return err
	}
	s.refreshMetadata(ctx, ds)
	return nil
}

// UpdateName sets the dataset's name. An absent name leaves it unchanged.
//
// Errors:
//
//    - fricon-error-invalid -- the id is not positive
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be updated
func (s *Service) UpdateName(ctx context.Context, req workspaceapi.UpdateName) error {
	return s.update(ctx, req.ID, req.Name == nil, func() (*catalog.Dataset, error) {
		return s.catalog.UpdateName(ctx, req.ID, *req.Name)
	})
}

// UpdateDescription sets the dataset's description. An absent description leaves it unchanged.
//
// Errors:
//
//    - fricon-error-invalid -- the id is not positive
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be updated
func (s *Service) UpdateDescription(ctx context.Context, req workspaceapi.UpdateDescription) error {
	return s.update(ctx, req.ID, req.Description == nil, func() (*catalog.Dataset, error) {
		return s.catalog.UpdateDescription(ctx, req.ID, *req.Description)
	})
}

// UpdateFavorite sets the dataset's favorite flag. An absent flag leaves it unchanged.
//
// Errors:
//
//    - fricon-error-invalid -- the id is not positive
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog cannot be updated
func (s *Service) UpdateFavorite(ctx context.Context, req workspaceapi.UpdateFavorite) error {
	return s.update(ctx, req.ID, req.Favorite == nil, func() (*catalog.Dataset, error) {
		return s.catalog.UpdateFavorite(ctx, req.ID, *req.Favorite)
	})
}

// update applies one field edit. When absent is set only the dataset's existence is checked.
func (s *Service) update(ctx context.Context, id int64, absent bool, apply func() (*catalog.Dataset, error)) error {
	if err := validateID(id); err != nil {
		return err
	}
	if absent {
		_, err := s.catalog.Get(ctx, id)
		return err
	}
	ds, err := apply()
	if err != nil {
		return err
	}
	s.refreshMetadata(ctx, ds)
	return nil
}

// refreshMetadata rewrites the side-file of a completed dataset after an edit.
// Failures are logged; the catalog stays authoritative.
func (s *Service) refreshMetadata(ctx context.Context, ds *catalog.Dataset) {
	if ds.Status != catalog.StatusCompleted {
		return
	}
	dir := s.ws.Resolve(ds.Path)
	md, err := datafile.ReadMetadata(dir)
	if err != nil {
		logging.Ctx(ctx).Warn(LogTag, "refreshing metadata of dataset %d: %s", ds.ID, err)
		return
	}
	md.Name, md.Description = nil, nil
	if ds.Name != "" {
		md.Name = &ds.Name
	}
	if ds.Description != "" {
		md.Description = &ds.Description
	}
	md.Favorite = ds.Favorite
	md.Tags = ds.Tags
	if err := datafile.WriteMetadata(dir, md); err != nil {
		logging.Ctx(ctx).Warn(LogTag, "refreshing metadata of dataset %d: %s", ds.ID, err)
	}
}

// Delete removes a dataset record and its directory.
//
// Errors:
//
//    - fricon-error-invalid -- the id is not positive
//    - fricon-error-already-open -- the dataset is being written
//    - fricon-error-not-found -- no dataset has the id
//    - fricon-error-storage-io -- the catalog or the directory cannot be updated
func (s *Service) Delete(ctx context.Context, req workspaceapi.DeleteRequest) (err error) {
	ctx, span := tracing.Start(ctx, "service.Delete")
	defer tracing.EndWithError(ctx, span, &err)
	span.SetAttributes(attribute.Int64(tracing.AttrKeyFriconDatasetID, req.ID))

	if err := validateID(req.ID); err != nil {
		return err
	}
	if s.sessions.Live(req.ID) {
		return fcapi.ErrorAlreadyOpen(req.ID)
	}
	ds, err := s.catalog.Delete(ctx, req.ID)
	if err != nil {
		return err
	}
	if err := datafile.Remove(s.ws.Resolve(ds.Path)); err != nil {
		return err
	}
	logging.Ctx(ctx).Info(LogTag, "deleted dataset %d (%s)", ds.ID, ds.UID)
	return nil
}

// OpenDataset opens the data file of a completed dataset for reading.
// The caller closes the reader.
//
// Errors:
//
//    - fricon-error-invalid -- neither or both of id and uid are given, or either is malformed
//    - fricon-error-not-found -- no dataset matches
//    - fricon-error-not-readable -- the dataset is not completed
//    - fricon-error-storage-io -- the catalog or the data file cannot be read
func (s *Service) OpenDataset(ctx context.Context, req workspaceapi.GetRequest) (*datafile.Reader, error) {
	ds, err := s.lookup(ctx, req)
	if err != nil {
		return nil, err
	}
	if ds.Status != catalog.StatusCompleted {
		return nil, fcapi.ErrorNotReadable(ds.ID, string(ds.Status))
	}
	return datafile.Open(s.ws.Resolve(ds.Path), s.mem)
}
