package client

import (
	"context"

	"github.com/google/uuid"
	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/pkg/workspaceapi"
)

// Writer streams batches into the dataset a write token was issued for.
// The connection carries nothing else until the writer is closed or aborted.
type Writer struct {
	c    *Client
	id   string
	md   *workspaceapi.Metadata
	done bool
}

// Write opens a write stream authorized by token.
func (c *Client) Write(token string) *Writer {
	md := &workspaceapi.Metadata{}
	md.Set(workspaceapi.MetadataWriteToken, token)
	return &Writer{c: c, id: uuid.New().String(), md: md}
}

func (w *Writer) closed() error {
	return serum.Error(workspaceapi.ECodeRpcProtocol, serum.WithMessageLiteral("write stream already closed"))
}

// WriteBatch sends one batch. Chunks are not acknowledged individually;
// a failure is reported when the stream is closed.
//
// Errors:
//
//    - fricon-error-serialization -- the batch cannot be encoded
//    - fricon-error-rpc-connection -- the chunk cannot be sent
//    - fricon-error-rpc-protocol -- the stream is already closed
func (w *Writer) WriteBatch(ctx context.Context, batch workspaceapi.Batch) error {
	chunk, err := workspaceapi.EncodeBatch(batch)
	if err != nil {
		return err
	}
	return w.WriteChunk(ctx, chunk)
}

// WriteChunk sends one already encoded chunk.
//
// Errors:
//
//    - fricon-error-rpc-connection -- the chunk cannot be sent
//    - fricon-error-rpc-protocol -- the stream is already closed
func (w *Writer) WriteChunk(ctx context.Context, chunk []byte) error {
	if w.done {
		return w.closed()
	}
	return w.c.send(ctx, w.id, w.md, workspaceapi.RpcRequest{WriteChunk: &workspaceapi.WriteChunk{Chunk: chunk}})
}

// Close ends the stream and returns the id and row count of the completed dataset.
//
// Errors:
//
//    - fricon-error-rpc-connection -- the connection failed
//    - fricon-error-rpc-protocol -- the stream is already closed
//    - any code sent by the server for this stream
func (w *Writer) Close(ctx context.Context) (workspaceapi.WriteAnswer, error) {
	if w.done {
		return workspaceapi.WriteAnswer{}, w.closed()
	}
	w.done = true
	if err := w.c.send(ctx, w.id, w.md, workspaceapi.RpcRequest{WriteEnd: &workspaceapi.WriteEnd{}}); err != nil {
		return workspaceapi.WriteAnswer{}, err
	}
	resp, err := w.c.receive(w.id)
	if err != nil {
		return workspaceapi.WriteAnswer{}, err
	}
	if resp.WriteAnswer == nil {
		return workspaceapi.WriteAnswer{}, unexpected("write_answer")
	}
	return *resp.WriteAnswer, nil
}

// Abort ends the stream without completing the dataset.
//
// Errors:
//
//    - fricon-error-rpc-connection -- the connection failed
//    - fricon-error-rpc-protocol -- the stream is already closed
//    - any code sent by the server for this stream
func (w *Writer) Abort(ctx context.Context, reason string) error {
	if w.done {
		return w.closed()
	}
	w.done = true
	req := workspaceapi.RpcRequest{WriteAbort: &workspaceapi.WriteAbort{}}
	if reason != "" {
		req.WriteAbort.Reason = &reason
	}
	if err := w.c.send(ctx, w.id, w.md, req); err != nil {
		return err
	}
	resp, err := w.c.receive(w.id)
	if err != nil {
		return err
	}
	if resp.Ack == nil {
		return unexpected("ack")
	}
	return nil
}
