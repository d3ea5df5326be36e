package service

import (
	"context"
	"errors"
	"time"

	"github.com/serum-errors/go-serum"
	"go.opentelemetry.io/otel/attribute"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/catalog"
	"github.com/warptools/fricon/pkg/logging"
	"github.com/warptools/fricon/pkg/tracing"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

// Wire statuses: coarse classes of error a client can act on.
const (
	StatusNotFound           = "not-found"
	StatusFailedPrecondition = "failed-precondition"
	StatusUnauthenticated    = "unauthenticated"
	StatusInvalidArgument    = "invalid-argument"
	StatusUnavailable        = "unavailable"
	StatusInternal           = "internal"
)

// StatusOf classifies an error code.
func StatusOf(code string) string {
	switch code {
	case fcapi.ECodeNotFound:
		return StatusNotFound
	case fcapi.ECodeAlreadyOpen, fcapi.ECodeInvalidTransition, fcapi.ECodeEmptyDataset, fcapi.ECodeNotReadable:
		return StatusFailedPrecondition
	case fcapi.ECodeInvalidToken:
		return StatusUnauthenticated
	case fcapi.ECodeSchema, fcapi.ECodeSchemaMismatch, fcapi.ECodeInvalid, fcapi.ECodeSerialization,
		workspaceapi.ECodeRpcSerialization, workspaceapi.ECodeRpcProtocol, workspaceapi.ECodeRpcMethodNotFound:
		return StatusInvalidArgument
	case fcapi.ECodeStorageIO, fcapi.ECodeIo, fcapi.ECodeConnection, workspaceapi.ECodeRpcConnection:
		return StatusUnavailable
	default:
		return StatusInternal
	}
}

// WireError converts an error and its coded causes into the wire form.
func WireError(err error) *workspaceapi.Error {
	if err == nil {
		return nil
	}
	code := fcapi.ECodeUnknown
	if fcapi.HasCode(err) {
		code = serum.Code(err)
	}
	status := StatusOf(code)
	out := &workspaceapi.Error{Code: code, Status: &status}
	if m := serum.Message(err); m != "" {
		out.Message = &m
	}
	if deets := serum.Details(err); len(deets) > 0 {
		out.Details = &workspaceapi.Details{Values: make(map[string]string, len(deets))}
		for _, d := range deets {
			out.Details.Keys = append(out.Details.Keys, d[0])
			out.Details.Values[d[0]] = d[1]
		}
	}
	if cause := errors.Unwrap(err); cause != nil && fcapi.HasCode(cause) {
		out.Cause = WireError(cause)
	}
	return out
}

// WireDataset converts a catalog record into its wire form.
func WireDataset(ds *catalog.Dataset) workspaceapi.Dataset {
	id := ds.ID
	uid := ds.UID
	name := ds.Name
	desc := ds.Description
	fav := ds.Favorite
	index := append([]string{}, ds.IndexColumns...)
	path := ds.Path
	created := ds.CreatedAt.UTC().Format(time.RFC3339Nano)
	tags := append([]string{}, ds.Tags...)
	status := string(ds.Status)
	rows := ds.RowCount
	return workspaceapi.Dataset{
		ID:           &id,
		UID:          &uid,
		Name:         &name,
		Description:  &desc,
		Favorite:     &fav,
		IndexColumns: &index,
		Path:         &path,
		CreatedAt:    &created,
		Tags:         &tags,
		Status:       &status,
		RowCount:     &rows,
	}
}

// Handle runs one request and returns its response.
// Write stream requests take their token from md.
//
// Errors:
//
//    - fricon-error-rpc-method-not-found -- the request names no known method
//    - any error of the method called
func (s *Service) Handle(ctx context.Context, req workspaceapi.RpcRequest, md *workspaceapi.Metadata) (_ *workspaceapi.RpcResponse, err error) {
	method := req.Kind()
	ctx, span := tracing.Start(ctx, "rpc."+method)
	defer tracing.EndWithError(ctx, span, &err)
	span.SetAttributes(attribute.String(tracing.AttrKeyFriconRpcMethod, method))
	logging.Ctx(ctx).Debug(LogTag, "handling %s", method)

	token, _ := md.Get(workspaceapi.MetadataWriteToken)
	ack := &workspaceapi.RpcResponse{Ack: &workspaceapi.Ack{}}
	switch {
	case req.Ping != nil:
		answer := s.Ping(ctx)
		return &workspaceapi.RpcResponse{PingAck: &answer}, nil
	case req.CreateRequest != nil:
		answer, err := s.Create(ctx, *req.CreateRequest)
		if err != nil {
			return nil, err
		}
		return &workspaceapi.RpcResponse{CreateAnswer: &answer}, nil
	case req.WriteChunk != nil:
		return nil, s.WriteChunk(ctx, token, req.WriteChunk.Chunk)
	case req.WriteEnd != nil:
		answer, err := s.WriteEnd(ctx, token)
		if err != nil {
			return nil, err
		}
		return &workspaceapi.RpcResponse{WriteAnswer: &answer}, nil
	case req.WriteAbort != nil:
		var reason string
		if req.WriteAbort.Reason != nil {
			reason = *req.WriteAbort.Reason
		}
		if err := s.WriteAbort(ctx, token, reason); err != nil {
			return nil, err
		}
		return ack, nil
	case req.ListRequest != nil:
		answer, err := s.List(ctx)
		if err != nil {
			return nil, err
		}
		return &workspaceapi.RpcResponse{ListAnswer: &answer}, nil
	case req.GetRequest != nil:
		answer, err := s.Get(ctx, *req.GetRequest)
		if err != nil {
			return nil, err
		}
		return &workspaceapi.RpcResponse{GetAnswer: &answer}, nil
	case req.ReplaceTags != nil:
		return ackOr(ack, s.ReplaceTags(ctx, *req.ReplaceTags))
	case req.AddTags != nil:
		return ackOr(ack, s.AddTags(ctx, *req.AddTags))
	case req.RemoveTags != nil:
		return ackOr(ack, s.RemoveTags(ctx, *req.RemoveTags))
	case req.UpdateName != nil:
		return ackOr(ack, s.UpdateName(ctx, *req.UpdateName))
	case req.UpdateDescription != nil:
		return ackOr(ack, s.UpdateDescription(ctx, *req.UpdateDescription))
	case req.UpdateFavorite != nil:
		return ackOr(ack, s.UpdateFavorite(ctx, *req.UpdateFavorite))
	case req.DeleteRequest != nil:
		return ackOr(ack, s.Delete(ctx, *req.DeleteRequest))
	default:
		return nil, serum.Error(workspaceapi.ECodeRpcMethodNotFound,
			serum.WithMessageLiteral("request names no known method"),
		)
	}
}

func ackOr(ack *workspaceapi.RpcResponse, err error) (*workspaceapi.RpcResponse, error) {
	if err != nil {
		return nil, err
	}
	return ack, nil
}
