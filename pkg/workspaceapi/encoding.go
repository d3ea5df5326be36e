package workspaceapi

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/codec"
	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/codec/dagjson"
	"github.com/ipld/go-ipld-prime/datamodel"
	rfmtjson "github.com/polydawn/refmt/json"
	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/fcapi"
)

// Map key order is meaningful for rows, so no encoder sorts keys.
var defaultEncodeOptions = dagjson.EncodeOptions{
	EncodeLinks: false,
	EncodeBytes: true,
	MapSortMode: codec.MapSortMode_None,
}

var defaultDecodeOptions = dagjson.DecodeOptions{
	ParseLinks:         false,
	ParseBytes:         true,
	DontParseBeyondEnd: true, // This is critical for streaming over a socket
}

var batchEncodeOptions = dagcbor.EncodeOptions{
	AllowLinks:  false,
	MapSortMode: codec.MapSortMode_None,
}

var batchDecodeOptions = dagcbor.DecodeOptions{
	AllowLinks: false,
}

// encode wraps dagjson.Marshal with default options.
func encode(n datamodel.Node, w io.Writer, opt rfmtjson.EncodeOptions) error {
	err := dagjson.Marshal(n, rfmtjson.NewEncoder(w, opt), defaultEncodeOptions)
	if err != nil {
		return serum.Error(fcapi.ECodeSerialization, serum.WithCause(err),
			serum.WithMessageLiteral("json encoder failed"),
		)
	}
	return nil
}

// Encoder is a compact json encoder
//
// Errors:
//
//   - fricon-error-serialization --
func Encoder(n datamodel.Node, w io.Writer) error {
	return encode(n, w, rfmtjson.EncodeOptions{
		Line:   []byte{},
		Indent: []byte{},
	})
}

// PrettyEncoder is a json encoder with line breaks and tab indentation.
//
// Errors:
//
//   - fricon-error-serialization --
func PrettyEncoder(n datamodel.Node, w io.Writer) error {
	return encode(n, w, rfmtjson.EncodeOptions{
		Line:   []byte{'\n'},
		Indent: []byte{'\t'},
	})
}

// Decoder is a streaming JSON decoder which halts at the end of each object in the stream.
//
// Errors:
//
//   - fricon-error-serialization --
func Decoder(na datamodel.NodeAssembler, r io.Reader) error {
	err := defaultDecodeOptions.Decode(na, r)
	if err != nil {
		return serum.Error(fcapi.ECodeSerialization, serum.WithCause(err),
			serum.WithMessageLiteral("json decoder failed"),
		)
	}
	return nil
}

// WriteRpc serializes one message onto w, followed by a newline.
//
// Errors:
//
//   - fricon-error-rpc-serialization -- the message cannot be encoded
//   - fricon-error-rpc-connection -- the message cannot be written
func WriteRpc(w io.Writer, rpc *Rpc) error {
	buf := &bytes.Buffer{}
	if err := ipld.MarshalStreaming(buf, Encoder, rpc, TypeSystem.TypeByName("Rpc")); err != nil {
		return serum.Error(ECodeRpcSerialization, serum.WithCause(err),
			serum.WithMessageLiteral("unable to encode RPC message"),
		)
	}
	buf.WriteByte('\n')
	if _, err := w.Write(buf.Bytes()); err != nil {
		return serum.Error(ECodeRpcConnection, serum.WithCause(err),
			serum.WithMessageLiteral("unable to send RPC message"),
		)
	}
	return nil
}

// ReadRpc returns the next message on the decoder's stream.
// A clean end of stream is reported as an error wrapping io.EOF.
//
// Errors:
//
//   - fricon-error-rpc-connection -- bad connection or end of stream
//   - fricon-error-rpc-serialization -- invalid RPC data
func ReadRpc(d *json.Decoder) (*Rpc, error) {
	var raw json.RawMessage
	if err := d.Decode(&raw); err != nil {
		return nil, serum.Error(ECodeRpcConnection, serum.WithCause(err),
			serum.WithMessageLiteral("unable to read JSON from connection"),
		)
	}
	var rpc Rpc
	if _, err := ipld.Unmarshal(raw, Decoder, &rpc, TypeSystem.TypeByName("Rpc")); err != nil {
		return nil, serum.Error(ECodeRpcSerialization, serum.WithCause(err),
			serum.WithMessageLiteral("unable to read RPC message"),
		)
	}
	return &rpc, nil
}

// EncodeBatch serializes a batch into a chunk payload.
//
// Errors:
//
//   - fricon-error-serialization --
func EncodeBatch(batch Batch) ([]byte, error) {
	data, err := ipld.Marshal(batchEncodeOptions.Encode, &batch, TypeSystem.TypeByName("Batch"))
	if err != nil {
		return nil, fcapi.ErrorSerialization("encoding batch", err)
	}
	return data, nil
}

// DecodeBatch parses a chunk payload.
//
// Errors:
//
//   - fricon-error-serialization --
func DecodeBatch(chunk []byte) (Batch, error) {
	var batch Batch
	if _, err := ipld.Unmarshal(chunk, batchDecodeOptions.Decode, &batch, TypeSystem.TypeByName("Batch")); err != nil {
		return nil, fcapi.ErrorSerialization("decoding batch", err)
	}
	return batch, nil
}

// DecodeBatchJSON parses a batch written as dag-json, the format accepted by the import command.
//
// Errors:
//
//   - fricon-error-serialization --
func DecodeBatchJSON(r io.Reader) (Batch, error) {
	var batch Batch
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fcapi.ErrorSerialization("reading batch", err)
	}
	if _, err := ipld.Unmarshal(data, Decoder, &batch, TypeSystem.TypeByName("Batch")); err != nil {
		return nil, fcapi.ErrorSerialization("decoding batch", err)
	}
	return batch, nil
}
