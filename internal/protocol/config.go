// Package protocol implements the data-driven configurable serial protocol
// engine (spec.md §4.9/§6.3): most instruments in the registry share one
// generic driver whose wire behavior — command templates, response
// patterns, unit conversions, trait-to-command mapping — comes entirely
// from a per-device TOML configuration document rather than hand-written
// Go. The conversion/validation split is grounded on
// drivers/ltc4015/codec.go, registers.go, and validate.go's arrangement of
// "raw code <-> physical unit" helpers behind a validated register table;
// the "decode config doc into typed structs" shape is grounded on the
// teacher's services/config/config.go.
package protocol

// DeviceConfig is the root of one device's configuration document
// (spec.md §6.3's section list).
type DeviceConfig struct {
	Device      DeviceSection                `toml:"device"`
	Connection  ConnectionSection             `toml:"connection"`
	Parameters  map[string]ParameterConfig    `toml:"parameters"`
	Commands    map[string]CommandConfig      `toml:"commands"`
	Responses   map[string]ResponseConfig     `toml:"responses"`
	Conversions map[string]ConversionConfig   `toml:"conversions"`
	TraitMapping map[string]map[string]TraitMethodConfig `toml:"trait_mapping"`
}

type DeviceSection struct {
	Type string `toml:"type"`
	Name string `toml:"name"`
}

type ConnectionSection struct {
	Bus        BusConfig `toml:"bus"`
	TimeoutMS  int       `toml:"timeout_ms"`
	Terminator string    `toml:"terminator"` // single character, e.g. "\r"
}

type BusConfig struct {
	Port    string `toml:"port"`
	Baud    int    `toml:"baud"`
	Address string `toml:"address"` // single hex/ascii character
}

// ParameterConfig declares one named device parameter's numeric range, used
// both for validation and for capability/RPC introspection.
type ParameterConfig struct {
	Min *float64 `toml:"min"`
	Max *float64 `toml:"max"`
	Unit string  `toml:"unit"`
}

// CommandConfig is a named wire command template (spec.md §4.9 step 2).
type CommandConfig struct {
	Template       string `toml:"template"`
	ExpectResponse bool   `toml:"expect_response"`
	Response       string `toml:"response"` // name of the responses.* entry to parse, if any
}

// ResponseConfig is a named response pattern with typed named-capture
// fields (spec.md §4.9 step 5).
type ResponseConfig struct {
	Pattern string                 `toml:"pattern"`
	Fields  map[string]FieldConfig `toml:"fields"`
}

// FieldDType is a captured response field's declared coercion.
type FieldDType string

const (
	FieldInt32   FieldDType = "int32"
	FieldHexI32  FieldDType = "hex_i32"
	FieldString  FieldDType = "string"
)

type FieldConfig struct {
	DType  FieldDType `toml:"dtype"`
	Signed bool       `toml:"signed"`
}

// ConversionConfig is a named arithmetic formula over command parameters
// and/or parsed response fields (spec.md §4.9 "Conversions").
type ConversionConfig struct {
	Formula string `toml:"formula"`
}

// TraitMethodConfig binds one capability-trait method to a command plus the
// conversions applied going in and coming out (spec.md §4.9 "Trait
// mapping").
type TraitMethodConfig struct {
	Command       string `toml:"command"`
	InConversion  string `toml:"in_conversion"`
	OutConversion string `toml:"out_conversion"`
	// ArgName names the template variable the method's scalar input binds
	// to (e.g. "position_pulses"); defaults to "value" when empty.
	ArgName string `toml:"arg_name"`
	// ResultField names which parsed response field (or, with no
	// OutConversion, which raw field) is returned as the method's scalar
	// result; defaults to the sole field when a response has exactly one.
	ResultField string `toml:"result_field"`
}
