package tracing

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/warptools/fricon/fcapi"
)

func TestNoTracerIsNoop(t *testing.T) {
	ctx, span := Start(context.Background(), "nothing")
	defer span.End()
	qt.Assert(t, span.SpanContext().IsValid(), qt.IsFalse)
	qt.Assert(t, ctx, qt.Not(qt.IsNil))
}

func TestSetSpanError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx := SetTracer(context.Background(), provider.Tracer("test"))

	func() (err error) {
		ctx, span := Start(ctx, "op")
		defer EndWithError(ctx, span, &err)
		return fcapi.ErrorDatasetNotFound("3")
	}()

	spans := recorder.Ended()
	qt.Assert(t, spans, qt.HasLen, 1)
	qt.Assert(t, spans[0].Status().Code, qt.Equals, codes.Error)
	var code string
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == AttrKeyFriconErrorCode {
			code = attr.Value.AsString()
		}
	}
	qt.Assert(t, code, qt.Equals, fcapi.ECodeNotFound)
}

func TestSetSpanErrorWithoutCode(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := Start(SetTracer(context.Background(), provider.Tracer("test")), "op")
	SetSpanError(ctx, errors.New("plain"))
	span.End()

	spans := recorder.Ended()
	qt.Assert(t, spans, qt.HasLen, 1)
	var code string
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == AttrKeyFriconErrorCode {
			code = attr.Value.AsString()
		}
	}
	qt.Assert(t, code, qt.Equals, fcapi.ECodeUnknown)
}
