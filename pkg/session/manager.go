package session

import (
	"context"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/serum-errors/go-serum"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/catalog"
	"github.com/warptools/fricon/pkg/columnar"
	"github.com/warptools/fricon/pkg/datafile"
	"github.com/warptools/fricon/pkg/logging"
	"github.com/warptools/fricon/pkg/tracing"
	"github.com/warptools/fricon/pkg/workspace"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

const LogTag = "╬═  session"

// Options configure a Manager.
type Options struct {
	// IdleTimeout aborts a session that sees no call for this long. Zero disables it.
	IdleTimeout time.Duration
	File        datafile.Options
}

// Manager is the exclusive owner of write sessions and their tokens.
// It is safe for concurrent use.
type Manager struct {
	catalog Catalog
	ws      *workspace.Workspace
	opts    Options
	mem     memory.Allocator

	mu        sync.Mutex
	byToken   map[string]*session
	byDataset map[int64]string
}

func NewManager(cat Catalog, ws *workspace.Workspace, opts Options) *Manager {
	mem := opts.File.Allocator
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &Manager{
		catalog:   cat,
		ws:        ws,
		opts:      opts,
		mem:       mem,
		byToken:   make(map[string]*session),
		byDataset: make(map[int64]string),
	}
}

// Open starts a session for a dataset in writing status and returns its write token.
//
// Errors:
//
//    - fricon-error-already-open -- a live session exists for the dataset
func (m *Manager) Open(ctx context.Context, ds *catalog.Dataset) (_ string, err error) {
	ctx, span := tracing.Start(ctx, "session.Open", spanAttrs(ds.ID, tracing.AttrFullSessionOpen)...)
	defer tracing.EndWithError(ctx, span, &err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byDataset[ds.ID]; ok {
		return "", fcapi.ErrorAlreadyOpen(ds.ID)
	}
	s := &session{
		token:   uuid.New().String(),
		dataset: ds,
		dir:     m.ws.Resolve(ds.Path),
		state:   AwaitingFirstChunk,

		lastActive: time.Now(),
	}
	if m.opts.IdleTimeout > 0 {
		token := s.token
		s.idle = time.AfterFunc(m.opts.IdleTimeout, func() {
			m.expire(token)
		})
	}
	m.byToken[s.token] = s
	m.byDataset[ds.ID] = s.token
	logging.Ctx(ctx).Debug(LogTag, "opened session for dataset %d", ds.ID)
	return s.token, nil
}

// Live reports whether a session is currently open for the dataset.
func (m *Manager) Live(datasetID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byDataset[datasetID]
	return ok
}

// DatasetOf returns the dataset id bound to a live token.
//
// Errors:
//
//    - fricon-error-invalid-token -- the token is unknown or its session has ended
func (m *Manager) DatasetOf(token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byToken[token]
	if !ok {
		return 0, fcapi.ErrorInvalidToken()
	}
	return s.dataset.ID, nil
}

// acquire looks up a token and locks its session.
// The caller must unlock the session.
func (m *Manager) acquire(token string) (*session, error) {
	m.mu.Lock()
	s, ok := m.byToken[token]
	m.mu.Unlock()
	if !ok {
		return nil, fcapi.ErrorInvalidToken()
	}
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil, fcapi.ErrorInvalidToken()
	}
	return s, nil
}

// release forgets a terminated session. Its token is invalid from now on.
func (m *Manager) release(s *session) {
	if s.idle != nil {
		s.idle.Stop()
	}
	m.mu.Lock()
	delete(m.byToken, s.token)
	delete(m.byDataset, s.dataset.ID)
	m.mu.Unlock()
}

// AcceptChunk decodes a chunk and appends it to the session's data file.
// Any failure aborts the session.
//
// Errors:
//
//    - fricon-error-invalid-token -- the token is unknown or its session has ended
//    - fricon-error-serialization -- the chunk is not a valid batch
//    - fricon-error-schema -- the first batch cannot fix a schema
//    - fricon-error-schema-mismatch -- the batch disagrees with the fixed schema
//    - fricon-error-invalid -- a value has an invalid shape
//    - fricon-error-storage-io -- the data file cannot be written
func (m *Manager) AcceptChunk(ctx context.Context, token string, chunk []byte) error {
	s, err := m.acquire(token)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	batch, err := workspaceapi.DecodeBatch(chunk)
	if err != nil {
		return m.fail(ctx, s, err)
	}
	return m.accept(ctx, s, batch)
}

// AcceptBatch appends an already decoded batch. It behaves like AcceptChunk.
//
// Errors:
//
//    - fricon-error-invalid-token -- the token is unknown or its session has ended
//    - fricon-error-schema -- the first batch cannot fix a schema
//    - fricon-error-schema-mismatch -- the batch disagrees with the fixed schema
//    - fricon-error-invalid -- a value has an invalid shape
//    - fricon-error-storage-io -- the data file cannot be written
func (m *Manager) AcceptBatch(ctx context.Context, token string, batch workspaceapi.Batch) error {
	s, err := m.acquire(token)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	return m.accept(ctx, s, batch)
}

// accept runs with s.mu held.
func (m *Manager) accept(ctx context.Context, s *session, batch workspaceapi.Batch) (err error) {
	ctx, span := tracing.Start(ctx, "session.AcceptChunk", spanAttrs(s.dataset.ID, tracing.AttrFullSessionChunk)...)
	defer tracing.EndWithError(ctx, span, &err)
	span.SetAttributes(attribute.Int(tracing.AttrKeyFriconRowCount, len(batch)))

	s.lastActive = time.Now()
	if s.idle != nil {
		s.idle.Reset(m.opts.IdleTimeout)
	}
	switch s.state {
	case AwaitingFirstChunk:
		schema, err := columnar.Infer(batch, s.dataset.IndexColumns)
		if err != nil {
			return m.fail(ctx, s, err)
		}
		s.schema = schema
		s.encoder = columnar.NewEncoder(m.mem, schema)
		s.writer, err = datafile.Create(s.dir, s.encoder.ArrowSchema(), m.opts.File)
		if err != nil {
			return m.fail(ctx, s, err)
		}
		s.state = Streaming
	case Streaming:
		if err := s.schema.Validate(batch); err != nil {
			return m.fail(ctx, s, err)
		}
		if len(batch) == 0 {
			return nil
		}
	}
	rec := s.encoder.Encode(batch)
	defer rec.Release()
	if err := s.writer.Append(rec); err != nil {
		return m.fail(ctx, s, err)
	}
	s.rows += int64(len(batch))
	return nil
}

// Finish finalizes the session's data file and marks the dataset completed.
// A session that never received a chunk is aborted instead.
//
// Errors:
//
//    - fricon-error-invalid-token -- the token is unknown or its session has ended
//    - fricon-error-empty-dataset -- no chunk was written
//    - fricon-error-storage-io -- the file or catalog cannot be finalized
//    - fricon-error-serialization -- the metadata side-file cannot be encoded
func (m *Manager) Finish(ctx context.Context, token string) (_ Result, err error) {
	s, err := m.acquire(token)
	if err != nil {
		return Result{}, err
	}
	defer s.mu.Unlock()

	ctx, span := tracing.Start(ctx, "session.Finish", spanAttrs(s.dataset.ID, tracing.AttrFullSessionFinish)...)
	defer tracing.EndWithError(ctx, span, &err)

	if s.state == AwaitingFirstChunk {
		return Result{}, m.fail(ctx, s, fcapi.ErrorEmptyDataset(s.dataset.ID))
	}
	res, err := s.writer.Finalize()
	if err != nil {
		return Result{}, m.fail(ctx, s, err)
	}
	// Tags and name may have been edited while streaming; describe the record as it stands now.
	current, err := m.catalog.Get(ctx, s.dataset.ID)
	if err != nil {
		return Result{}, m.fail(ctx, s, err)
	}
	if err := datafile.WriteMetadata(s.dir, Metadata(current, s.schema, res.Rows, res.Checksum)); err != nil {
		return Result{}, m.fail(ctx, s, err)
	}
	if err := m.catalog.MarkCompleted(ctx, s.dataset.ID, res.Rows); err != nil {
		return Result{}, m.fail(ctx, s, err)
	}
	s.state = Finalized
	m.release(s)
	span.SetAttributes(attribute.Int64(tracing.AttrKeyFriconRowCount, res.Rows))
	logging.Ctx(ctx).Info(LogTag, "dataset %d completed with %d rows", s.dataset.ID, res.Rows)
	return Result{ID: s.dataset.ID, RowCount: res.Rows, Checksum: res.Checksum}, nil
}

// Abort ends a session without completing its dataset.
//
// Errors:
//
//    - fricon-error-invalid-token -- the token is unknown or its session has ended
//    - fricon-error-storage-io -- the catalog cannot record the abort
func (m *Manager) Abort(ctx context.Context, token string, reason string) error {
	s, err := m.acquire(token)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	logging.Ctx(ctx).Info(LogTag, "aborting dataset %d: %s", s.dataset.ID, reason)
	return m.terminate(ctx, s)
}

// AbortAll ends every live session and returns how many it aborted.
// Used on shutdown, after the transport has stopped taking calls.
func (m *Manager) AbortAll(ctx context.Context, reason string) int {
	m.mu.Lock()
	tokens := make([]string, 0, len(m.byToken))
	for token := range m.byToken {
		tokens = append(tokens, token)
	}
	m.mu.Unlock()
	aborted := 0
	for _, token := range tokens {
		err := m.Abort(ctx, token, reason)
		switch {
		case err == nil:
			aborted++
		case serum.Code(err) == fcapi.ECodeInvalidToken:
			// Ended on its own meanwhile.
		default:
			aborted++
			logging.Ctx(ctx).Warn(LogTag, "recording abort: %s", err)
		}
	}
	return aborted
}

// expire aborts a session that has been idle for too long.
func (m *Manager) expire(token string) {
	s, err := m.acquire(token)
	if err != nil {
		return
	}
	defer s.mu.Unlock()
	// The timer may have fired while a chunk was being accepted.
	if time.Since(s.lastActive) < m.opts.IdleTimeout {
		return
	}
	ctx := context.Background()
	logging.Ctx(ctx).Info(LogTag, "aborting dataset %d: idle for %s", s.dataset.ID, m.opts.IdleTimeout)
	if err := m.terminate(ctx, s); err != nil {
		logging.Ctx(ctx).Warn(LogTag, "recording abort of dataset %d: %s", s.dataset.ID, err)
	}
}

func spanAttrs(datasetID int64, step attribute.KeyValue) []trace.SpanStartOption {
	return []trace.SpanStartOption{
		trace.WithAttributes(attribute.Int64(tracing.AttrKeyFriconDatasetID, datasetID), step),
	}
}

// fail aborts s after cause and returns cause.
// A failure to record the abort is logged; cause is still what the caller sees.
func (m *Manager) fail(ctx context.Context, s *session, cause error) error {
	logging.Ctx(ctx).Info(LogTag, "dataset %d failed: %s", s.dataset.ID, cause)
	if err := m.terminate(ctx, s); err != nil {
		logging.Ctx(ctx).Warn(LogTag, "recording abort of dataset %d: %s", s.dataset.ID, err)
	}
	return cause
}

// terminate discards the data file, marks the dataset aborted, and releases s.
// It runs with s.mu held and completes even if ctx is cancelled.
func (m *Manager) terminate(ctx context.Context, s *session) (err error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.Start(ctx, "session.Abort", spanAttrs(s.dataset.ID, tracing.AttrFullSessionAbort)...)
	defer tracing.EndWithError(ctx, span, &err)

	s.state = Aborted
	defer m.release(s)
	var discardErr error
	if s.writer != nil {
		discardErr = s.writer.Discard()
	} else {
		discardErr = datafile.Remove(s.dir)
	}
	if err := m.catalog.MarkAborted(ctx, s.dataset.ID); err != nil {
		return err
	}
	return discardErr
}

// Recover marks every dataset left writing without a live session as aborted
// and removes whatever it had written. It returns how many datasets it swept.
//
// Errors:
//
//    - fricon-error-storage-io -- the catalog cannot be read or updated
func (m *Manager) Recover(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.Start(ctx, "session.Recover", trace.WithAttributes(tracing.AttrFullSessionRecovery))
	defer tracing.EndWithError(ctx, span, &err)

	pending, err := m.catalog.ListWriting(ctx)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, ds := range pending {
		if m.Live(ds.ID) {
			continue
		}
		if err := datafile.Remove(m.ws.Resolve(ds.Path)); err != nil {
			logging.Ctx(ctx).Warn(LogTag, "removing leftovers of dataset %d: %s", ds.ID, err)
		}
		if err := m.catalog.MarkAborted(ctx, ds.ID); err != nil {
			return swept, err
		}
		logging.Ctx(ctx).Info(LogTag, "dataset %d was left writing; marked aborted", ds.ID)
		swept++
	}
	return swept, nil
}

// Metadata describes a completed dataset for its side-file.
func Metadata(ds *catalog.Dataset, schema *columnar.Schema, rows int64, checksum string) workspaceapi.DatasetMetadata {
	md := workspaceapi.DatasetMetadata{
		UID:          ds.UID,
		Favorite:     ds.Favorite,
		Tags:         ds.Tags,
		IndexColumns: ds.IndexColumns,
		CreatedAt:    ds.CreatedAt.UTC().Format(time.RFC3339Nano),
		Columns:      schema.Info(),
		RowCount:     rows,
		Checksum:     checksum,
	}
	if ds.Name != "" {
		md.Name = &ds.Name
	}
	if ds.Description != "" {
		md.Description = &ds.Description
	}
	return md
}
