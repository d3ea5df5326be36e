// Package client calls a fricon server over its socket.
package client

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

// Dialer opens connections to a server.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

type netDialer struct {
	network string
	address string
	dialer  net.Dialer
}

// Dial connects to the server.
//
// Errors:
//
//    - fricon-error-connection -- the server cannot be reached
func (d *netDialer) Dial(ctx context.Context) (net.Conn, error) {
	conn, err := d.dialer.DialContext(ctx, d.network, d.address)
	if err != nil {
		return nil, fcapi.ErrorConnection(d.address, err)
	}
	return conn, nil
}

// UnixDialer dials the unix socket at path.
func UnixDialer(path string) Dialer {
	return &netDialer{network: "unix", address: path}
}

// Client holds one connection. Calls are made one at a time; it is not safe for concurrent use.
type Client struct {
	conn     net.Conn
	dec      *json.Decoder
	deadline bool // A call left its context deadline on conn.
}

// Dial connects a new client.
//
// Errors:
//
//    - fricon-error-connection -- the server cannot be reached
func Dial(ctx context.Context, d Dialer) (*Client, error) {
	conn, err := d.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{conn: conn, dec: json.NewDecoder(conn)}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(ctx context.Context, id string, md *workspaceapi.Metadata, req workspaceapi.RpcRequest) error {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		c.deadline = true
	} else if c.deadline {
		c.conn.SetDeadline(time.Time{})
		c.deadline = false
	}
	return workspaceapi.WriteRpc(c.conn, &workspaceapi.Rpc{
		ID:       id,
		Metadata: md,
		Data:     workspaceapi.RpcData{RpcRequest: &req},
	})
}

// receive reads the answer to request id.
//
// Errors:
//
//    - fricon-error-rpc-connection -- the connection failed
//    - fricon-error-rpc-serialization -- the answer cannot be decoded
//    - fricon-error-rpc-protocol -- the answer does not belong to the request
//    - any code sent by the server
func (c *Client) receive(id string) (*workspaceapi.RpcResponse, error) {
	rpc, err := workspaceapi.ReadRpc(c.dec)
	if err != nil {
		return nil, err
	}
	resp := rpc.Data.RpcResponse
	if resp == nil {
		return nil, serum.Error(workspaceapi.ECodeRpcProtocol,
			serum.WithMessageLiteral("server sent a request instead of a response"),
		)
	}
	if resp.Error != nil {
		return nil, FromWire(resp.Error)
	}
	if rpc.ID != id {
		return nil, serum.Error(workspaceapi.ECodeRpcProtocol,
			serum.WithMessageTemplate("response {{got|q}} does not answer request {{want|q}}"),
			serum.WithDetail("got", rpc.ID),
			serum.WithDetail("want", id),
		)
	}
	return resp, nil
}

func (c *Client) call(ctx context.Context, req workspaceapi.RpcRequest) (*workspaceapi.RpcResponse, error) {
	id := uuid.New().String()
	if err := c.send(ctx, id, nil, req); err != nil {
		return nil, err
	}
	return c.receive(id)
}

func unexpected(want string) error {
	return serum.Error(workspaceapi.ECodeRpcProtocol,
		serum.WithMessageTemplate("expected a {{want}} response"),
		serum.WithDetail("want", want),
	)
}

// FromWire rebuilds a coded error from its wire form.
func FromWire(e *workspaceapi.Error) error {
	opts := []serum.WithConstruction{}
	if e.Message != nil {
		opts = append(opts, serum.WithMessageLiteral(*e.Message))
	}
	if e.Details != nil {
		for _, k := range e.Details.Keys {
			opts = append(opts, serum.WithDetail(k, e.Details.Values[k]))
		}
	}
	if e.Cause != nil {
		opts = append(opts, serum.WithCause(FromWire(e.Cause)))
	}
	return serum.Error(e.Code, opts...)
}

// Ping returns the server's version.
func (c *Client) Ping(ctx context.Context) (string, error) {
	resp, err := c.call(ctx, workspaceapi.RpcRequest{Ping: &workspaceapi.Ping{}})
	if err != nil {
		return "", err
	}
	if resp.PingAck == nil {
		return "", unexpected("ping_ack")
	}
	return resp.PingAck.Version, nil
}

// Create makes a dataset and returns its write token.
func (c *Client) Create(ctx context.Context, req workspaceapi.CreateRequest) (string, error) {
	resp, err := c.call(ctx, workspaceapi.RpcRequest{CreateRequest: &req})
	if err != nil {
		return "", err
	}
	if resp.CreateAnswer == nil {
		return "", unexpected("create_answer")
	}
	return resp.CreateAnswer.WriteToken, nil
}

func (c *Client) List(ctx context.Context) ([]workspaceapi.Dataset, error) {
	resp, err := c.call(ctx, workspaceapi.RpcRequest{ListRequest: &workspaceapi.ListRequest{}})
	if err != nil {
		return nil, err
	}
	if resp.ListAnswer == nil {
		return nil, unexpected("list_answer")
	}
	return resp.ListAnswer.Datasets, nil
}

func (c *Client) Get(ctx context.Context, req workspaceapi.GetRequest) (workspaceapi.Dataset, error) {
	resp, err := c.call(ctx, workspaceapi.RpcRequest{GetRequest: &req})
	if err != nil {
		return workspaceapi.Dataset{}, err
	}
	if resp.GetAnswer == nil {
		return workspaceapi.Dataset{}, unexpected("get_answer")
	}
	return resp.GetAnswer.Dataset, nil
}

func (c *Client) ack(ctx context.Context, req workspaceapi.RpcRequest) error {
	resp, err := c.call(ctx, req)
	if err != nil {
		return err
	}
	if resp.Ack == nil {
		return unexpected("ack")
	}
	return nil
}

func (c *Client) ReplaceTags(ctx context.Context, id int64, tags []string) error {
	return c.ack(ctx, workspaceapi.RpcRequest{ReplaceTags: &workspaceapi.ReplaceTags{ID: id, Tags: tags}})
}

func (c *Client) AddTags(ctx context.Context, id int64, tags []string) error {
	return c.ack(ctx, workspaceapi.RpcRequest{AddTags: &workspaceapi.AddTags{ID: id, Tags: tags}})
}

func (c *Client) RemoveTags(ctx context.Context, id int64, tags []string) error {
	return c.ack(ctx, workspaceapi.RpcRequest{RemoveTags: &workspaceapi.RemoveTags{ID: id, Tags: tags}})
}

// UpdateName sets a dataset's name. A nil name only checks that the dataset exists.
func (c *Client) UpdateName(ctx context.Context, id int64, name *string) error {
	return c.ack(ctx, workspaceapi.RpcRequest{UpdateName: &workspaceapi.UpdateName{ID: id, Name: name}})
}

func (c *Client) UpdateDescription(ctx context.Context, id int64, description *string) error {
	return c.ack(ctx, workspaceapi.RpcRequest{UpdateDescription: &workspaceapi.UpdateDescription{ID: id, Description: description}})
}

func (c *Client) UpdateFavorite(ctx context.Context, id int64, favorite *bool) error {
	return c.ack(ctx, workspaceapi.RpcRequest{UpdateFavorite: &workspaceapi.UpdateFavorite{ID: id, Favorite: favorite}})
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.ack(ctx, workspaceapi.RpcRequest{DeleteRequest: &workspaceapi.DeleteRequest{ID: id}})
}
