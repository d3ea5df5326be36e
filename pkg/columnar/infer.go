package columnar

import (
	"fmt"
	"strconv"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

// Infer fixes a schema from the first batch of a dataset.
// Column order follows the first row. Every named index column must be present.
// The remaining rows of the batch are validated against the inferred schema.
//
// Errors:
//
//    - fricon-error-schema -- the batch is empty, a row has no columns, a value has no supported kind, or an index column is missing
//    - fricon-error-schema-mismatch -- rows of the batch disagree with the first row
//    - fricon-error-invalid -- a value has an invalid shape
func Infer(batch workspaceapi.Batch, indexColumns []string) (*Schema, error) {
	if len(batch) == 0 {
		return nil, fcapi.ErrorSchema("first batch is empty")
	}
	first := batch[0]
	if len(first.Keys) == 0 {
		return nil, fcapi.ErrorSchema("first row has no columns")
	}
	columns := make([]Column, 0, len(first.Keys))
	for _, name := range first.Keys {
		if name == "" {
			return nil, fcapi.ErrorSchema("column name is empty")
		}
		kind, ok := KindOf(first.Values[name])
		if !ok {
			return nil, fcapi.ErrorSchema("unsupported value kind", [2]string{"column", name})
		}
		columns = append(columns, Column{Name: name, Kind: kind})
	}
	schema := newSchema(columns, indexColumns)
	for _, name := range indexColumns {
		if _, ok := schema.Column(name); !ok {
			return nil, fcapi.ErrorSchema("index column missing from first batch", [2]string{"column", name})
		}
	}
	if err := schema.Validate(batch); err != nil {
		return nil, err
	}
	return schema, nil
}

// Validate checks that every row of batch has exactly the schema's column set,
// with matching kinds and well formed values.
// An empty batch is valid.
//
// Errors:
//
//    - fricon-error-schema-mismatch -- a row has a different column set or a column has a different kind
//    - fricon-error-invalid -- a value has an invalid shape
func (s *Schema) Validate(batch workspaceapi.Batch) error {
	for r, row := range batch {
		for _, name := range row.Keys {
			col, ok := s.Column(name)
			if !ok {
				return fcapi.ErrorSchemaMismatch(name, "column is not part of the dataset schema")
			}
			v := row.Values[name]
			kind, ok := KindOf(v)
			if !ok {
				return fcapi.ErrorSchemaMismatch(name, "value has no supported kind")
			}
			if kind != col.Kind {
				return fcapi.ErrorSchemaMismatch(name, fmt.Sprintf("expected %s, got %s", col.Kind, kind))
			}
			if err := checkShape(name, r, v); err != nil {
				return err
			}
		}
		if len(row.Keys) != len(s.Columns) {
			for _, c := range s.Columns {
				if _, ok := row.Values[c.Name]; !ok {
					return fcapi.ErrorSchemaMismatch(c.Name, "column is missing")
				}
			}
			return fcapi.ErrorSchemaMismatch("", "row has duplicate columns")
		}
	}
	return nil
}

func checkShape(column string, row int, v workspaceapi.Value) error {
	if v.VariableStep != nil && len(v.VariableStep.X) != len(v.VariableStep.Y) {
		return fcapi.ErrorInvalid("variable step trace has x and y of different lengths",
			[2]string{"column", column},
			[2]string{"row", strconv.Itoa(row)},
		)
	}
	return nil
}
