package columnar

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/warptools/fricon/pkg/workspaceapi"
)

// Decode converts a record written by an Encoder for s back into rows.
func (s *Schema) Decode(rec arrow.Record) workspaceapi.Batch {
	rows := make(workspaceapi.Batch, rec.NumRows())
	for i, col := range s.Columns {
		arr := rec.Column(i)
		for r := range rows {
			rows[r].Set(col.Name, valueAt(arr, col.Kind, r))
		}
	}
	return rows
}

func valueAt(arr arrow.Array, kind Kind, r int) workspaceapi.Value {
	switch kind {
	case KindFloat:
		return workspaceapi.FloatValue(arr.(*array.Float64).Value(r))
	case KindComplex:
		st := arr.(*array.Struct)
		return workspaceapi.ComplexValue(
			st.Field(0).(*array.Float64).Value(r),
			st.Field(1).(*array.Float64).Value(r),
		)
	case KindSimpleList:
		return workspaceapi.SimpleListValue(floatsAt(arr, r)...)
	case KindFixedStep:
		st := arr.(*array.Struct)
		return workspaceapi.FixedStepValue(
			st.Field(0).(*array.Float64).Value(r),
			st.Field(1).(*array.Float64).Value(r),
			floatsAt(st.Field(2), r)...,
		)
	case KindVariableStep:
		st := arr.(*array.Struct)
		return workspaceapi.VariableStepValue(floatsAt(st.Field(0), r), floatsAt(st.Field(1), r))
	}
	return workspaceapi.Value{}
}

func floatsAt(arr arrow.Array, r int) []float64 {
	l := arr.(*array.List)
	start, end := l.ValueOffsets(r)
	values := l.ListValues().(*array.Float64)
	out := make([]float64, 0, end-start)
	for j := start; j < end; j++ {
		out = append(out, values.Value(int(j)))
	}
	return out
}
