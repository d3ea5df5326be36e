package workspaceapi

// Batch is the payload of one write chunk: rows in arrival order.
type Batch []Row

// Row maps column names to values. Keys keeps the column order chosen by the client.
type Row struct {
	Keys   []string
	Values map[string]Value
}

// Set appends or replaces a column value, keeping first-insertion order.
func (r *Row) Set(name string, v Value) {
	if r.Values == nil {
		r.Values = make(map[string]Value)
	}
	if _, exists := r.Values[name]; !exists {
		r.Keys = append(r.Keys, name)
	}
	r.Values[name] = v
}

// Value holds exactly one member.
type Value struct {
	Float        *float64
	Complex      *Complex
	SimpleList   *SimpleList
	FixedStep    *FixedStep
	VariableStep *VariableStep
}

type Complex struct {
	Real float64
	Imag float64
}

type SimpleList struct {
	Y []float64
}

type FixedStep struct {
	X0   float64
	Step float64
	Y    []float64
}

type VariableStep struct {
	X []float64
	Y []float64
}

func FloatValue(v float64) Value { return Value{Float: &v} }

func ComplexValue(re, im float64) Value { return Value{Complex: &Complex{Real: re, Imag: im}} }

func SimpleListValue(y ...float64) Value { return Value{SimpleList: &SimpleList{Y: y}} }

func FixedStepValue(x0, step float64, y ...float64) Value {
	return Value{FixedStep: &FixedStep{X0: x0, Step: step, Y: y}}
}

func VariableStepValue(x, y []float64) Value {
	return Value{VariableStep: &VariableStep{X: x, Y: y}}
}
