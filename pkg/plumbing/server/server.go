// Package server answers fricon RPCs on a socket.
//
// Each connection carries one call at a time. A Write call is a stream of
// write_chunk messages closed by write_end or write_abort, all under the same
// RPC id; the stream is answered once, when it is closed. Losing the
// connection in the middle of a stream aborts it.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/logging"
	"github.com/warptools/fricon/pkg/service"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

// Log tags for the server. Used to easily distinguish server/handler logs from engine logs.
const (
	LogTag_Server         = "╬═  server"
	LogTag_DefaultHandler = "╬═? handler" // Default log tag for handler that doesn't have a connection ID
)

// key for context.Context used to set/retrieve handler logging tag
type handlerTagKey struct{}

// handlerTag retrieves the handler logging tag from context
func handlerTag(ctx context.Context) string {
	value := ctx.Value(handlerTagKey{})
	if value == nil {
		return LogTag_DefaultHandler
	}
	return value.(string)
}

// setHandlerTag returns a new context with the given handler logging tag value
func setHandlerTag(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, handlerTagKey{}, tag)
}

// Handler runs requests. *service.Service is the production implementation.
type Handler interface {
	Handle(ctx context.Context, req workspaceapi.RpcRequest, md *workspaceapi.Metadata) (*workspaceapi.RpcResponse, error)
	WriteAbort(ctx context.Context, token string, reason string) error
}

const DefaultReadTimeout = 10 * time.Minute // Default read timeout for connections. See net.Conn.SetReadDeadline, Server.setReadDeadline.

type Server struct {
	listener    net.Listener     // Where connections come from.
	handler     Handler          // Handles actual RPCs.
	nowFn       func() time.Time // Should return _now_ for the purposes of setting deadlines. If nil, time.Now will be used.
	readTimeout time.Duration    // Idle time allowed between two messages of a connection.
	acceptCount int              // Used in log tags for handlers.

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// New makes a server. A zero readTimeout means DefaultReadTimeout.
func New(listener net.Listener, handler Handler, readTimeout time.Duration) *Server {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Server{
		listener:    listener,
		handler:     handler,
		readTimeout: readTimeout,
		conns:       make(map[net.Conn]struct{}),
	}
}

// now returns the result of time.Now
// May be overridden by setting nowFn
func (s *Server) now() time.Time {
	if s.nowFn == nil {
		return time.Now()
	}
	return s.nowFn()
}

// setReadDeadline sets the connection read deadline based on server configuration.
// This should prevent connections from getting stuck waiting for a client request.
//
// Errors:
//
//   - fricon-error-internal -- failed to set connection read deadline
func (s *Server) setReadDeadline(conn net.Conn) error {
	deadline := s.now().Add(s.readTimeout)
	err := conn.SetReadDeadline(deadline)
	if err != nil {
		return serum.Error(fcapi.ECodeInternal,
			serum.WithCause(err),
			serum.WithMessageTemplate("server failed to set read deadline {{deadline}}"),
			serum.WithDetail("deadline", deadline.String()),
		)
	}
	return nil
}

// stream is the Write call open on a connection.
type stream struct {
	id    string
	token string
	err   error // First failure of the stream; sent when the stream is closed.
}

// conn is the per-connection state of a handler.
type conn struct {
	net.Conn
	open *stream
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// closeAll closes every open connection and refuses new ones.
func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

// handle is expected to respond to client connections.
// This function should recover from panics and log errors before returning.
// It is expected that handle is run as a goroutine and that errors may not be handled.
func (s *Server) handle(ctx context.Context, nc net.Conn) (err error) {
	log := logging.Ctx(ctx)
	tag := handlerTag(ctx)
	c := &conn{Conn: nc}
	defer func() {
		r := recover()
		if r != nil {
			log.Info(tag, "socket handler panic: %s", r)
			log.Info(tag, "%s", debug.Stack())
		}
		if c.open != nil {
			s.abandon(ctx, c.open, "connection closed during write")
		}
		if err != nil {
			log.Info(tag, "handler returned with error: %s", err.Error())
		}
	}()
	defer log.Debug(tag, "connection closed")
	defer s.untrack(nc)
	defer nc.Close()
	dec := json.NewDecoder(nc)
	for {
		if err := s.setReadDeadline(nc); err != nil {
			return err
		}
		rpc, err := workspaceapi.ReadRpc(dec)
		if err != nil {
			if serum.Code(err) == workspaceapi.ECodeRpcConnection {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return nil
				}
				if errors.Is(err, os.ErrDeadlineExceeded) {
					log.Debug(tag, "connection idle for %s", s.readTimeout)
					return nil
				}
				// Malformed JSON leaves the decoder unusable.
				s.sendError(ctx, c, "", err)
				return err
			}
			if c.open != nil {
				// The stream lost a message; it can no longer complete.
				if c.open.err == nil {
					s.abandon(ctx, c.open, "unreadable message in write stream")
					c.open.err = err
				}
				continue
			}
			s.sendError(ctx, c, "", err)
			continue
		}
		if rpc.Data.RpcRequest == nil {
			log.Debug(tag, "ignoring response message %q", rpc.ID)
			continue
		}
		if err := s.dispatch(ctx, c, rpc); err != nil {
			return err
		}
	}
}

// dispatch runs one message. A returned error ends the connection.
func (s *Server) dispatch(ctx context.Context, c *conn, rpc *workspaceapi.Rpc) error {
	req := *rpc.Data.RpcRequest
	if c.open != nil && (!req.IsWriteStream() || rpc.ID != c.open.id) {
		err := serum.Error(workspaceapi.ECodeRpcProtocol,
			serum.WithMessageTemplate("request {{id|q}} sent while write stream {{stream|q}} is open"),
			serum.WithDetail("id", rpc.ID),
			serum.WithDetail("stream", c.open.id),
		)
		s.abandon(ctx, c.open, "write stream interrupted by another request")
		c.open = nil
		s.sendError(ctx, c, rpc.ID, err)
		return err
	}
	if !req.IsWriteStream() {
		resp, err := s.handler.Handle(ctx, req, rpc.Metadata)
		if err != nil {
			return s.sendError(ctx, c, rpc.ID, err)
		}
		return s.send(ctx, c, rpc.ID, resp)
	}

	if c.open == nil {
		token, _ := rpc.Metadata.Get(workspaceapi.MetadataWriteToken)
		c.open = &stream{id: rpc.ID, token: token}
	}
	st := c.open
	if req.WriteChunk != nil {
		if st.err == nil {
			if _, err := s.handler.Handle(ctx, req, rpc.Metadata); err != nil {
				st.err = err
			}
		}
		return nil
	}
	// write_end or write_abort closes the stream.
	c.open = nil
	if st.err != nil {
		s.abandon(ctx, st, "write stream failed")
		return s.sendError(ctx, c, rpc.ID, st.err)
	}
	resp, err := s.handler.Handle(ctx, req, rpc.Metadata)
	if err != nil {
		return s.sendError(ctx, c, rpc.ID, err)
	}
	return s.send(ctx, c, rpc.ID, resp)
}

// abandon aborts a stream that can no longer complete.
// A session the service already terminated answers with an invalid token, which is ignored.
func (s *Server) abandon(ctx context.Context, st *stream, reason string) {
	if st.token == "" {
		return
	}
	err := s.handler.WriteAbort(context.WithoutCancel(ctx), st.token, reason)
	if err != nil && serum.Code(err) != fcapi.ECodeInvalidToken {
		logging.Ctx(ctx).Info(handlerTag(ctx), "aborting write stream %q: %s", st.id, err)
	}
}

// send writes a response. Requests without an id get no response.
//
// Errors:
//
//   - fricon-error-rpc-serialization -- the response cannot be encoded
//   - fricon-error-rpc-connection -- the response cannot be written
func (s *Server) send(ctx context.Context, c *conn, id string, resp *workspaceapi.RpcResponse) error {
	if resp == nil || id == "" {
		logging.Ctx(ctx).Debug(handlerTag(ctx), "no response for request %q", id)
		return nil
	}
	return workspaceapi.WriteRpc(c, &workspaceapi.Rpc{
		ID:   id,
		Data: workspaceapi.RpcData{RpcResponse: resp},
	})
}

// sendError is a helper to serialize error responses to the client.
//
// Errors:
//
//   - fricon-error-rpc-serialization -- the response cannot be encoded
//   - fricon-error-rpc-connection -- the response cannot be written
func (s *Server) sendError(ctx context.Context, c *conn, id string, cause error) error {
	logging.Ctx(ctx).Debug(handlerTag(ctx), "request %q failed: %s", id, cause)
	err := workspaceapi.WriteRpc(c, &workspaceapi.Rpc{
		ID:   id,
		Data: workspaceapi.RpcData{RpcResponse: &workspaceapi.RpcResponse{Error: service.WireError(cause)}},
	})
	if err != nil {
		logging.Ctx(ctx).Debug(handlerTag(ctx), "unable to send error response: %s", err)
	}
	return err
}

// Serve accepts and handles connections until ctx is done or the listener fails.
// On the way out it closes the listener and every open connection, which aborts
// any write stream still in flight, and waits for the handlers to finish.
func (s *Server) Serve(ctx context.Context) error {
	log := logging.Ctx(ctx)
	if s.listener == nil {
		panic("server has nil listener")
	}
	defer s.wg.Wait()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		s.listener.Close()
		s.closeAll()
	}()
	for {
		nc, err := s.listener.Accept() // blocks, doesn't accept a context.
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info(LogTag_Server, "server: socket no longer accepting connections")
				return nil
			default:
			}
			log.Info(LogTag_Server, "server: socket error on accept: %s", err.Error())
			return err
		}
		if !s.track(nc) {
			nc.Close()
			continue
		}
		handlerCtx := setHandlerTag(ctx, LogTag_Server+"["+strconv.Itoa(s.acceptCount)+"]")
		s.acceptCount++
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(handlerCtx, nc)
		}()
	}
}

// Listen creates a unix socket on the given path.
// A socket file left by a previous process is replaced.
//
// Errors:
//
//   - fricon-error-io -- the socket cannot be created
func Listen(ctx context.Context, sockPath string) (net.Listener, error) {
	if fi, err := os.Lstat(sockPath); err == nil && fi.Mode()&os.ModeSocket != 0 {
		os.Remove(sockPath)
	}
	cfg := net.ListenConfig{}
	l, err := cfg.Listen(ctx, "unix", sockPath)
	if err != nil {
		return nil, fcapi.ErrorIo("could not create socket", sockPath, err)
	}
	return l, nil
}
