package tracing

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys used by fricon
const (
	AttrKeyFriconErrorCode   = "fricon.error.code"
	AttrKeyFriconDatasetID   = "fricon.dataset.id"
	AttrKeyFriconDatasetUID  = "fricon.dataset.uid"
	AttrKeyFriconRpcMethod   = "fricon.rpc.method"
	AttrKeyFriconRowCount    = "fricon.write.rows"
	AttrKeyFriconSessionStep = "fricon.session.transition"
)

// Attribute values
const (
	AttrValueSessionOpen     = "open"
	AttrValueSessionChunk    = "accept_chunk"
	AttrValueSessionFinish   = "finish"
	AttrValueSessionAbort    = "abort"
	AttrValueSessionRecovery = "recover"
)

// Enumerated attributes
var (
	AttrFullSessionOpen     = attribute.String(AttrKeyFriconSessionStep, AttrValueSessionOpen)
	AttrFullSessionChunk    = attribute.String(AttrKeyFriconSessionStep, AttrValueSessionChunk)
	AttrFullSessionFinish   = attribute.String(AttrKeyFriconSessionStep, AttrValueSessionFinish)
	AttrFullSessionAbort    = attribute.String(AttrKeyFriconSessionStep, AttrValueSessionAbort)
	AttrFullSessionRecovery = attribute.String(AttrKeyFriconSessionStep, AttrValueSessionRecovery)
)
