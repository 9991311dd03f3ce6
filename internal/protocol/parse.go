package protocol

import (
	"regexp"
	"strconv"

	"github.com/jangala-dev/daqd/internal/daqerr"
)

// CompiledResponse is a ResponseConfig with its pattern pre-compiled, ready
// to parse wire bytes repeatedly without recompiling the regex each call.
type CompiledResponse struct {
	Name    string
	Pattern *regexp.Regexp
	Fields  map[string]FieldConfig
}

// Compile pre-compiles a response pattern (spec.md §4.9 validation: "every
// regex compiles cleanly").
func Compile(name string, cfg ResponseConfig) (*CompiledResponse, error) {
	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, daqerr.Wrap(daqerr.ValidationFailed, "protocol.Compile", err)
	}
	names := re.SubexpNames()
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := cfg.Fields[n]; !ok {
			return nil, daqerr.New(daqerr.ValidationFailed, "protocol.Compile",
				"response "+name+" pattern captures "+n+" with no matching fields entry")
		}
	}
	return &CompiledResponse{Name: name, Pattern: re, Fields: cfg.Fields}, nil
}

// Parse matches raw response bytes and coerces every named capture per its
// declared dtype (spec.md §4.9 step 5). The returned map's values are
// float64 for numeric dtypes and string for FieldString, ready to feed
// straight into the expression evaluator or an Event's Data map.
func (c *CompiledResponse) Parse(raw []byte) (map[string]interface{}, error) {
	m := c.Pattern.FindSubmatch(raw)
	if m == nil {
		return nil, daqerr.New(daqerr.Communication, "protocol.Parse", "response "+string(raw)+" does not match pattern for "+c.Name)
	}

	out := map[string]interface{}{}
	for i, name := range c.Pattern.SubexpNames() {
		if name == "" {
			continue
		}
		field := c.Fields[name]
		raw := string(m[i])
		v, err := coerce(raw, field)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func coerce(raw string, field FieldConfig) (interface{}, error) {
	switch field.DType {
	case FieldHexI32:
		n, err := strconv.ParseUint(raw, 16, 64)
		if err != nil {
			return nil, daqerr.Wrap(daqerr.Communication, "protocol.coerce", err)
		}
		if field.Signed {
			// Interpret as a 32-bit two's-complement value encoded in hex.
			u32 := uint32(n)
			return float64(int32(u32)), nil
		}
		return float64(n), nil

	case FieldInt32:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, daqerr.Wrap(daqerr.Communication, "protocol.coerce", err)
		}
		return float64(n), nil

	case FieldString, "":
		return raw, nil

	default:
		return nil, daqerr.New(daqerr.ValidationFailed, "protocol.coerce", "unknown field dtype "+string(field.DType))
	}
}
