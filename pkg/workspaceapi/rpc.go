package workspaceapi

const (
	ECodeRpcMethodNotFound = "fricon-error-rpc-method-not-found"
	ECodeRpcInternal       = "fricon-error-rpc-internal"
	ECodeRpcSerialization  = "fricon-error-rpc-serialization"
	ECodeRpcUnknown        = "fricon-error-rpc-unknown"
	ECodeRpcConnection     = "fricon-error-rpc-connection"
	ECodeRpcProtocol       = "fricon-error-rpc-protocol"
)

// MetadataWriteToken is the Rpc metadata key carrying the write token of a Write stream.
const MetadataWriteToken = "fricon-write-token"

type Rpc struct {
	ID       string
	Metadata *Metadata
	Data     RpcData
}

type Metadata struct {
	Keys   []string
	Values map[string]string
}

// Get returns the value for key. A nil Metadata has no values.
func (m *Metadata) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.Values[key]
	return v, ok
}

// Set adds or replaces a value.
func (m *Metadata) Set(key, value string) {
	if m.Values == nil {
		m.Values = make(map[string]string)
	}
	if _, exists := m.Values[key]; !exists {
		m.Keys = append(m.Keys, key)
	}
	m.Values[key] = value
}

type RpcData struct {
	RpcRequest  *RpcRequest
	RpcResponse *RpcResponse
}

type RpcRequest struct {
	Ping              *Ping
	CreateRequest     *CreateRequest
	WriteChunk        *WriteChunk
	WriteEnd          *WriteEnd
	WriteAbort        *WriteAbort
	ListRequest       *ListRequest
	GetRequest        *GetRequest
	ReplaceTags       *ReplaceTags
	AddTags           *AddTags
	RemoveTags        *RemoveTags
	UpdateName        *UpdateName
	UpdateDescription *UpdateDescription
	UpdateFavorite    *UpdateFavorite
	DeleteRequest     *DeleteRequest
}

// Kind names the member set in the request, for logs and spans.
func (r RpcRequest) Kind() string {
	switch {
	case r.Ping != nil:
		return "ping"
	case r.CreateRequest != nil:
		return "create"
	case r.WriteChunk != nil:
		return "write_chunk"
	case r.WriteEnd != nil:
		return "write_end"
	case r.WriteAbort != nil:
		return "write_abort"
	case r.ListRequest != nil:
		return "list"
	case r.GetRequest != nil:
		return "get"
	case r.ReplaceTags != nil:
		return "replace_tags"
	case r.AddTags != nil:
		return "add_tags"
	case r.RemoveTags != nil:
		return "remove_tags"
	case r.UpdateName != nil:
		return "update_name"
	case r.UpdateDescription != nil:
		return "update_description"
	case r.UpdateFavorite != nil:
		return "update_favorite"
	case r.DeleteRequest != nil:
		return "delete"
	}
	return "unknown"
}

// IsWriteStream reports whether the request belongs to a Write stream.
func (r RpcRequest) IsWriteStream() bool {
	return r.WriteChunk != nil || r.WriteEnd != nil || r.WriteAbort != nil
}

type RpcResponse struct {
	PingAck      *PingAck
	CreateAnswer *CreateAnswer
	WriteAnswer  *WriteAnswer
	ListAnswer   *ListAnswer
	GetAnswer    *GetAnswer
	Ack          *Ack
	Error        *Error
}

// Error is the wire form of a serum error.
type Error struct {
	Code    string
	Status  *string
	Message *string
	Details *Details
	Cause   *Error
}

type Details struct {
	Keys   []string
	Values map[string]string
}
