/*
Package columnar turns client rows into Arrow record batches.

A dataset schema is fixed from the first batch written to it: an ordered list of
column names, each with one value kind. Later batches are validated against it
and encoded with the same Arrow schema, so every record batch of a dataset file
shares one layout.
*/
package columnar

import (
	"encoding/json"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/warptools/fricon/fcapi"
	"github.com/warptools/fricon/pkg/workspaceapi"
)

// Kind is the value kind of a column.
type Kind string

const (
	KindFloat        Kind = "float"
	KindComplex      Kind = "complex"
	KindSimpleList   Kind = "trace.simple_list"
	KindFixedStep    Kind = "trace.fixed_step"
	KindVariableStep Kind = "trace.variable_step"
)

// Arrow metadata keys.
const (
	ExtensionNameKey = "ARROW:extension:name"
	IndexColumnsKey  = "fricon.index_columns"
)

var extensionNames = map[Kind]string{
	KindComplex:      "fricon.complex",
	KindSimpleList:   "fricon.trace.simple_list",
	KindFixedStep:    "fricon.trace.fixed_step",
	KindVariableStep: "fricon.trace.variable_step",
}

// KindOf reports the kind of v. Values with no member, or more than one, have no kind.
func KindOf(v workspaceapi.Value) (Kind, bool) {
	var kind Kind
	n := 0
	if v.Float != nil {
		kind, n = KindFloat, n+1
	}
	if v.Complex != nil {
		kind, n = KindComplex, n+1
	}
	if v.SimpleList != nil {
		kind, n = KindSimpleList, n+1
	}
	if v.FixedStep != nil {
		kind, n = KindFixedStep, n+1
	}
	if v.VariableStep != nil {
		kind, n = KindVariableStep, n+1
	}
	return kind, n == 1
}

type Column struct {
	Name string
	Kind Kind
}

// Schema is the ordered column layout of a dataset.
type Schema struct {
	Columns      []Column
	IndexColumns []string
	index        map[string]int
}

func newSchema(columns []Column, indexColumns []string) *Schema {
	s := &Schema{
		Columns:      columns,
		IndexColumns: indexColumns,
		index:        make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		s.index[c.Name] = i
	}
	return s
}

// Column returns the column with the given name.
func (s *Schema) Column(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}
	return s.Columns[i], true
}

// Info lists the columns in the form stored in metadata side-files.
func (s *Schema) Info() []workspaceapi.ColumnInfo {
	out := make([]workspaceapi.ColumnInfo, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = workspaceapi.ColumnInfo{Name: c.Name, Kind: string(c.Kind)}
	}
	return out
}

func float64List() arrow.DataType {
	return arrow.ListOfNonNullable(arrow.PrimitiveTypes.Float64)
}

func arrowType(kind Kind) arrow.DataType {
	switch kind {
	case KindFloat:
		return arrow.PrimitiveTypes.Float64
	case KindComplex:
		return arrow.StructOf(
			arrow.Field{Name: "real", Type: arrow.PrimitiveTypes.Float64},
			arrow.Field{Name: "imag", Type: arrow.PrimitiveTypes.Float64},
		)
	case KindSimpleList:
		return float64List()
	case KindFixedStep:
		return arrow.StructOf(
			arrow.Field{Name: "x0", Type: arrow.PrimitiveTypes.Float64},
			arrow.Field{Name: "step", Type: arrow.PrimitiveTypes.Float64},
			arrow.Field{Name: "y", Type: float64List()},
		)
	case KindVariableStep:
		return arrow.StructOf(
			arrow.Field{Name: "x", Type: float64List()},
			arrow.Field{Name: "y", Type: float64List()},
		)
	}
	panic(fmt.Sprintf("unreachable: unknown column kind %q", kind))
}

// Arrow returns the Arrow schema for s.
// Non-float columns carry their kind as an extension name in field metadata,
// and the index columns are recorded in schema metadata.
func (s *Schema) Arrow() *arrow.Schema {
	fields := make([]arrow.Field, len(s.Columns))
	for i, c := range s.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Kind)}
		if ext, ok := extensionNames[c.Kind]; ok {
			fields[i].Metadata = arrow.NewMetadata([]string{ExtensionNameKey}, []string{ext})
		}
	}
	index := s.IndexColumns
	if index == nil {
		index = []string{}
	}
	encoded, _ := json.Marshal(index)
	md := arrow.NewMetadata([]string{IndexColumnsKey}, []string{string(encoded)})
	return arrow.NewSchema(fields, &md)
}

// FromArrow recovers a Schema from an Arrow schema written by Schema.Arrow.
//
// Errors:
//
//    - fricon-error-schema -- a field has an unknown layout
func FromArrow(as *arrow.Schema) (*Schema, error) {
	byExtension := make(map[string]Kind, len(extensionNames))
	for k, v := range extensionNames {
		byExtension[v] = k
	}
	columns := make([]Column, 0, as.NumFields())
	for _, f := range as.Fields() {
		kind := KindFloat
		if ext, ok := f.Metadata.GetValue(ExtensionNameKey); ok {
			k, known := byExtension[ext]
			if !known {
				return nil, fcapi.ErrorSchema("unknown column extension", [2]string{"column", f.Name}, [2]string{"extension", ext})
			}
			kind = k
		}
		if !arrow.TypeEqual(f.Type, arrowType(kind)) {
			return nil, fcapi.ErrorSchema("column layout does not match its kind", [2]string{"column", f.Name}, [2]string{"kind", string(kind)})
		}
		columns = append(columns, Column{Name: f.Name, Kind: kind})
	}
	var index []string
	if encoded, ok := as.Metadata().GetValue(IndexColumnsKey); ok {
		if err := json.Unmarshal([]byte(encoded), &index); err != nil {
			return nil, fcapi.ErrorSchema("unreadable index column list", [2]string{"value", encoded})
		}
	}
	return newSchema(columns, index), nil
}
