package protocol

import (
	"fmt"

	"github.com/jangala-dev/daqd/internal/daqerr"
)

// Validate runs the full load-time validation pass (spec.md §4.9
// "Validation"): every regex compiles, every formula parses, all cross-
// references resolve, numeric ranges are ordered, and baud/timeout bounds
// are sane. Every failure names the offending field, matching
// drivers/ltc4015/validate.go's per-field error shape in the teacher.
func Validate(cfg *DeviceConfig) error {
	if cfg.Connection.Bus.Baud < 110 || cfg.Connection.Bus.Baud > 4_000_000 {
		return fieldErr("connection.bus.baud", fmt.Sprintf("baud %d out of range [110, 4000000]", cfg.Connection.Bus.Baud))
	}
	if cfg.Connection.TimeoutMS <= 0 || cfg.Connection.TimeoutMS > 60_000 {
		return fieldErr("connection.timeout_ms", fmt.Sprintf("timeout_ms %d out of range (0, 60000]", cfg.Connection.TimeoutMS))
	}
	if len(cfg.Connection.Terminator) != 1 {
		return fieldErr("connection.terminator", "terminator must be exactly one character")
	}

	for name, p := range cfg.Parameters {
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			return fieldErr("parameters."+name, "min must be <= max")
		}
	}

	compiledResponses := map[string]*CompiledResponse{}
	for name, r := range cfg.Responses {
		c, err := Compile(name, r)
		if err != nil {
			return err
		}
		compiledResponses[name] = c
	}

	for name, c := range cfg.Commands {
		if c.Template == "" {
			return fieldErr("commands."+name, "template must not be empty")
		}
		if c.Response != "" {
			if _, ok := cfg.Responses[c.Response]; !ok {
				return fieldErr("commands."+name+".response", "references undefined response "+c.Response)
			}
		}
	}

	for name, conv := range cfg.Conversions {
		if _, err := ParseExpr(conv.Formula); err != nil {
			return fmt.Errorf("protocol: conversions.%s: %w", name, err)
		}
	}

	for trait, methods := range cfg.TraitMapping {
		for method, tm := range methods {
			field := fmt.Sprintf("trait_mapping.%s.%s", trait, method)
			if tm.Command == "" {
				return fieldErr(field, "must reference a command")
			}
			if _, ok := cfg.Commands[tm.Command]; !ok {
				return fieldErr(field+".command", "references undefined command "+tm.Command)
			}
			if tm.InConversion != "" {
				if _, ok := cfg.Conversions[tm.InConversion]; !ok {
					return fieldErr(field+".in_conversion", "references undefined conversion "+tm.InConversion)
				}
			}
			if tm.OutConversion != "" {
				if _, ok := cfg.Conversions[tm.OutConversion]; !ok {
					return fieldErr(field+".out_conversion", "references undefined conversion "+tm.OutConversion)
				}
			}
		}
	}

	return nil
}

func fieldErr(field, msg string) error {
	return daqerr.New(daqerr.ValidationFailed, "protocol.Validate", field+": "+msg)
}
