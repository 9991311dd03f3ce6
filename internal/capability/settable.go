package capability

import "context"

// ValueKind tags the dynamic type carried by a Value.
type ValueKind uint8

const (
	ValueBool ValueKind = iota
	ValueInt
	ValueFloat
	ValueString
)

// Value is a dynamically typed device parameter value (spec.md §4.1's
// "tagged variant: bool / integer / float / string").
type Value struct {
	Kind ValueKind
	B    bool
	I    int64
	F    float64
	S    string
}

func BoolValue(b bool) Value     { return Value{Kind: ValueBool, B: b} }
func IntValue(i int64) Value     { return Value{Kind: ValueInt, I: i} }
func FloatValue(f float64) Value { return Value{Kind: ValueFloat, F: f} }
func StringValue(s string) Value { return Value{Kind: ValueString, S: s} }

// Settable is satisfied by devices exposing named, dynamically typed
// parameters beyond position/exposure (filter wheel position, gain, etc.).
type Settable interface {
	SetValue(ctx context.Context, name string, v Value) error
	GetValue(ctx context.Context, name string) (Value, error)
}
