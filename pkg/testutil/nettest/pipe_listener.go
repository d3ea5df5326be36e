// Package nettest provides an in-memory listener for exercising socket servers in tests.
package nettest

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/fcapi"
)

const DefaultTimeout = 5 * time.Second

// PipeListener hands out net.Pipe connections.
// Dial returns the client end; the server end is delivered to Accept.
type PipeListener struct {
	connections chan net.Conn
	ctx         context.Context
	done        chan struct{}
	closeOnce   sync.Once
	Timeout     time.Duration // Deadline for new client connections.
}

// Close unblocks Accept. It may be called more than once.
//
// Errors: none
func (p *PipeListener) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// Errors:
//
//  - fricon-error-connection -- the listener was closed or its context ended
func (p *PipeListener) Accept() (net.Conn, error) {
	select {
	case <-p.done:
		return nil, serum.Error(fcapi.ECodeConnection, serum.WithCause(io.EOF))
	case <-p.ctx.Done():
		return nil, serum.Error(fcapi.ECodeConnection, serum.WithCause(p.ctx.Err()))
	case conn := <-p.connections:
		return conn, nil
	}
}

func (p *PipeListener) Addr() net.Addr { return pipeAddr{} }

// Errors:
//
//  - fricon-error-connection -- nothing accepted the connection in time
func (p *PipeListener) Dial(ctx context.Context) (net.Conn, error) {
	serverConn, clientConn := net.Pipe()
	clientConn.SetDeadline(time.Now().Add(p.Timeout)) // fail tests that block
	select {
	case <-ctx.Done():
		return nil, serum.Error(fcapi.ECodeConnection, serum.WithCause(ctx.Err()))
	case <-p.done:
		return nil, serum.Error(fcapi.ECodeConnection, serum.WithMessageLiteral("listener closed"))
	case p.connections <- serverConn:
		return clientConn, nil
	case <-time.After(p.Timeout):
		return nil, serum.Error(fcapi.ECodeConnection, serum.WithMessageLiteral("dial timeout"))
	}
}

func NewPipeListener(ctx context.Context) *PipeListener {
	return &PipeListener{
		ctx:         ctx,
		connections: make(chan net.Conn),
		done:        make(chan struct{}),
		Timeout:     DefaultTimeout,
	}
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }
