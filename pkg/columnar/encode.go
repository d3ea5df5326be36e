package columnar

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/warptools/fricon/pkg/workspaceapi"
)

// Encoder builds record batches in one fixed Arrow layout.
type Encoder struct {
	schema *Schema
	arrow  *arrow.Schema
	mem    memory.Allocator
}

// NewEncoder returns an encoder for s. A nil allocator uses the default Go allocator.
func NewEncoder(mem memory.Allocator, s *Schema) *Encoder {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &Encoder{schema: s, arrow: s.Arrow(), mem: mem}
}

func (e *Encoder) Schema() *Schema { return e.schema }

func (e *Encoder) ArrowSchema() *arrow.Schema { return e.arrow }

// Encode converts a batch into one record. The batch must already be validated.
// The caller owns the returned record and must Release it.
func (e *Encoder) Encode(batch workspaceapi.Batch) arrow.Record {
	rb := array.NewRecordBuilder(e.mem, e.arrow)
	defer rb.Release()
	rb.Reserve(len(batch))
	for _, row := range batch {
		for i, col := range e.schema.Columns {
			appendValue(rb.Field(i), col.Kind, row.Values[col.Name])
		}
	}
	return rb.NewRecord()
}

func appendValue(b array.Builder, kind Kind, v workspaceapi.Value) {
	switch kind {
	case KindFloat:
		b.(*array.Float64Builder).Append(*v.Float)
	case KindComplex:
		sb := b.(*array.StructBuilder)
		sb.Append(true)
		sb.FieldBuilder(0).(*array.Float64Builder).Append(v.Complex.Real)
		sb.FieldBuilder(1).(*array.Float64Builder).Append(v.Complex.Imag)
	case KindSimpleList:
		appendFloats(b, v.SimpleList.Y)
	case KindFixedStep:
		sb := b.(*array.StructBuilder)
		sb.Append(true)
		sb.FieldBuilder(0).(*array.Float64Builder).Append(v.FixedStep.X0)
		sb.FieldBuilder(1).(*array.Float64Builder).Append(v.FixedStep.Step)
		appendFloats(sb.FieldBuilder(2), v.FixedStep.Y)
	case KindVariableStep:
		sb := b.(*array.StructBuilder)
		sb.Append(true)
		appendFloats(sb.FieldBuilder(0), v.VariableStep.X)
		appendFloats(sb.FieldBuilder(1), v.VariableStep.Y)
	}
}

func appendFloats(b array.Builder, values []float64) {
	lb := b.(*array.ListBuilder)
	lb.Append(true)
	lb.ValueBuilder().(*array.Float64Builder).AppendValues(values, nil)
}
