package capability

import "context"

// ParamDescriptor documents one named parameter for GUIs/RPC introspection
// (spec.md §4.2's "typed capability views", supplemented per
// original_source/src/hardware/capabilities.rs: parameter descriptor
// enumeration for GUI controls).
type ParamDescriptor struct {
	Name      string
	DType     ValueKind
	Writable  bool
	Unit      string
	Min       *float64
	Max       *float64
	EnumValues []string
}

// Parameterized is satisfied by drivers that can enumerate their own
// parameter schema, rather than requiring the caller to already know names.
type Parameterized interface {
	Parameters(ctx context.Context) ([]ParamDescriptor, error)
}
