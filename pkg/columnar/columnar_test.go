package columnar

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

func row(kv ...interface{}) workspaceapi.Row {
	var r workspaceapi.Row
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1].(workspaceapi.Value))
	}
	return r
}

func TestInferFixesOrderAndKinds(t *testing.T) {
	batch := workspaceapi.Batch{
		row("freq", workspaceapi.FloatValue(1), "s", workspaceapi.ComplexValue(0, 1), "b", workspaceapi.FixedStepValue(0, 1, 2, 3)),
	}
	schema, err := Infer(batch, []string{"freq"})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, schema.Columns, qt.DeepEquals, []Column{
		{Name: "freq", Kind: KindFloat},
		{Name: "s", Kind: KindComplex},
		{Name: "b", Kind: KindFixedStep},
	})
}

func TestInferRejects(t *testing.T) {
	for _, tc := range []struct {
		name  string
		batch workspaceapi.Batch
		index []string
		code  string
	}{
		{"empty batch", workspaceapi.Batch{}, nil, fcapi.ECodeSchema},
		{"empty row", workspaceapi.Batch{{}}, nil, fcapi.ECodeSchema},
		{"no kind", workspaceapi.Batch{row("a", workspaceapi.Value{})}, nil, fcapi.ECodeSchema},
		{"missing index", workspaceapi.Batch{row("a", workspaceapi.FloatValue(1))}, []string{"freq"}, fcapi.ECodeSchema},
		{"rows disagree", workspaceapi.Batch{
			row("a", workspaceapi.FloatValue(1)),
			row("a", workspaceapi.SimpleListValue(1)),
		}, nil, fcapi.ECodeSchemaMismatch},
		{"bad variable step", workspaceapi.Batch{
			row("a", workspaceapi.VariableStepValue([]float64{1, 2}, []float64{1})),
		}, nil, fcapi.ECodeInvalid},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Infer(tc.batch, tc.index)
			qt.Assert(t, serum.Code(err), qt.Equals, tc.code)
		})
	}
}

func TestValidate(t *testing.T) {
	schema, err := Infer(workspaceapi.Batch{
		row("a", workspaceapi.FloatValue(1), "b", workspaceapi.FixedStepValue(0, 0.1, 1, 2)),
	}, nil)
	qt.Assert(t, err, qt.IsNil)

	same := workspaceapi.Batch{row("a", workspaceapi.FloatValue(2), "b", workspaceapi.FixedStepValue(1, 0.1, 3))}
	qt.Assert(t, schema.Validate(same), qt.IsNil)

	reordered := workspaceapi.Batch{row("b", workspaceapi.FixedStepValue(1, 0.1, 3), "a", workspaceapi.FloatValue(2))}
	qt.Assert(t, schema.Validate(reordered), qt.IsNil)

	qt.Assert(t, schema.Validate(workspaceapi.Batch{}), qt.IsNil)

	for name, batch := range map[string]workspaceapi.Batch{
		"other column": {row("a", workspaceapi.FloatValue(2), "c", workspaceapi.FloatValue(3))},
		"missing":      {row("a", workspaceapi.FloatValue(2))},
		"extra":        {row("a", workspaceapi.FloatValue(2), "b", workspaceapi.FixedStepValue(1, 0.1, 3), "c", workspaceapi.FloatValue(1))},
		"kind changed": {row("a", workspaceapi.FloatValue(2), "b", workspaceapi.SimpleListValue(3))},
	} {
		err := schema.Validate(batch)
		qt.Check(t, serum.Code(err), qt.Equals, fcapi.ECodeSchemaMismatch, qt.Commentf("%s", name))
	}
}

func TestEncodeDecodeAllKinds(t *testing.T) {
	batch := workspaceapi.Batch{
		row(
			"f", workspaceapi.FloatValue(1.5),
			"c", workspaceapi.ComplexValue(1, -2),
			"sl", workspaceapi.SimpleListValue(1, 2, 3),
			"fs", workspaceapi.FixedStepValue(10, 0.5, 4, 5),
			"vs", workspaceapi.VariableStepValue([]float64{0, 1, 4}, []float64{9, 8, 7}),
		),
		row(
			"f", workspaceapi.FloatValue(2.5),
			"c", workspaceapi.ComplexValue(0, 0),
			"sl", workspaceapi.SimpleListValue(),
			"fs", workspaceapi.FixedStepValue(0, 1, 6),
			"vs", workspaceapi.VariableStepValue([]float64{}, []float64{}),
		),
	}
	schema, err := Infer(batch, []string{"f"})
	qt.Assert(t, err, qt.IsNil)

	enc := NewEncoder(nil, schema)
	rec := enc.Encode(batch)
	defer rec.Release()
	qt.Assert(t, rec.NumRows(), qt.Equals, int64(2))
	qt.Assert(t, rec.NumCols(), qt.Equals, int64(5))

	got := schema.Decode(rec)
	qt.Assert(t, got[0], qt.DeepEquals, batch[0])
	qt.Assert(t, got[1].Keys, qt.DeepEquals, batch[1].Keys)
	qt.Assert(t, got[1].Values["sl"].SimpleList.Y, qt.HasLen, 0)
	qt.Assert(t, *got[1].Values["f"].Float, qt.Equals, 2.5)
}

func TestArrowSchemaRoundTrip(t *testing.T) {
	schema, err := Infer(workspaceapi.Batch{
		row("freq", workspaceapi.FloatValue(1), "z", workspaceapi.ComplexValue(1, 1), "t", workspaceapi.VariableStepValue(nil, nil)),
	}, []string{"freq"})
	qt.Assert(t, err, qt.IsNil)

	as := schema.Arrow()
	ext, ok := as.Field(1).Metadata.GetValue(ExtensionNameKey)
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, ext, qt.Equals, "fricon.complex")

	back, err := FromArrow(as)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, back.Columns, qt.DeepEquals, schema.Columns)
	qt.Assert(t, back.IndexColumns, qt.DeepEquals, []string{"freq"})
}
