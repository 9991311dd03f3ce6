package protocol

import (
	"context"

	"github.com/jangala-dev/daqd/internal/capability"
	"github.com/jangala-dev/daqd/internal/daqerr"
)

// traitKey pairs a trait name with a method name, matching a
// trait_mapping.<trait>.<method> table entry (spec.md §4.9 "Trait
// mapping", §6.3).
type traitKey struct{ trait, method string }

// GenericDriver implements the Movable, Readable, Triggerable and Settable
// capability interfaces generically, backed entirely by one Engine and its
// device's trait_mapping table (spec.md §4.9). It has no ExposureControl,
// Switchable, FrameProducer or Parameterized methods: an exposure_control or
// switchable trait_mapping section still sets that bit in Capabilities(),
// but the registry's AsExposureControl/AsSwitchable views report false for
// this driver. A method call whose trait_mapping entry is absent returns
// InvalidArgument (Stop excepted, which is then a no-op); the registry gates
// real calls by Capabilities() so this only matters for direct/test use.
type GenericDriver struct {
	engine *Engine
	caps   capability.Set
}

// NewGenericDriver builds a driver whose advertised Capabilities are
// derived from which trait sections appear in cfg.TraitMapping.
func NewGenericDriver(engine *Engine) *GenericDriver {
	var caps capability.Set
	for trait := range engine.cfg.TraitMapping {
		switch trait {
		case "movable":
			caps |= capability.Movable
		case "readable":
			caps |= capability.Readable
		case "triggerable":
			caps |= capability.Triggerable
		case "settable":
			caps |= capability.Settable
		case "exposure_control":
			caps |= capability.ExposureControl
		case "switchable":
			caps |= capability.Switchable
		}
	}
	return &GenericDriver{engine: engine, caps: caps}
}

func (g *GenericDriver) Capabilities() capability.Set { return g.caps }

func (g *GenericDriver) lookup(trait, method string) (TraitMethodConfig, error) {
	methods, ok := g.engine.cfg.TraitMapping[trait]
	if !ok {
		return TraitMethodConfig{}, daqerr.New(daqerr.InvalidArgument, "protocol.GenericDriver", "no trait_mapping for "+trait)
	}
	tm, ok := methods[method]
	if !ok {
		return TraitMethodConfig{}, daqerr.New(daqerr.InvalidArgument, "protocol.GenericDriver", "no trait_mapping for "+trait+"."+method)
	}
	return tm, nil
}

// invokeScalarIn runs a command taking one scalar input (e.g. a target
// position), applying tm.InConversion first if set.
func (g *GenericDriver) invokeScalarIn(ctx context.Context, tm TraitMethodConfig, value float64) error {
	argName := tm.ArgName
	if argName == "" {
		argName = "value"
	}
	if tm.InConversion != "" {
		converted, err := g.engine.Convert(tm.InConversion, map[string]float64{argName: value, "value": value})
		if err != nil {
			return err
		}
		value = converted
	}
	return g.engine.Command(ctx, tm.Command, map[string]interface{}{argName: value})
}

// invokeScalarOut runs a query returning one scalar output, applying
// tm.OutConversion to the parsed response fields if set.
func (g *GenericDriver) invokeScalarOut(ctx context.Context, tm TraitMethodConfig) (float64, error) {
	fields, err := g.engine.Query(ctx, tm.Command, nil)
	if err != nil {
		return 0, err
	}

	numeric := map[string]float64{}
	for k, v := range fields {
		if f, ok := v.(float64); ok {
			numeric[k] = f
		}
	}

	resultField := tm.ResultField
	if resultField == "" && len(numeric) == 1 {
		for k := range numeric {
			resultField = k
		}
	}

	if tm.OutConversion != "" {
		return g.engine.Convert(tm.OutConversion, numeric)
	}
	v, ok := numeric[resultField]
	if !ok {
		return 0, daqerr.New(daqerr.Internal, "protocol.GenericDriver", "response field "+resultField+" not found or not numeric")
	}
	return v, nil
}

func (g *GenericDriver) MoveAbs(ctx context.Context, pos float64) error {
	tm, err := g.lookup("movable", "move_abs")
	if err != nil {
		return err
	}
	return g.invokeScalarIn(ctx, tm, pos)
}

func (g *GenericDriver) MoveRel(ctx context.Context, delta float64) error {
	tm, err := g.lookup("movable", "move_rel")
	if err != nil {
		return err
	}
	return g.invokeScalarIn(ctx, tm, delta)
}

func (g *GenericDriver) Position(ctx context.Context) (float64, error) {
	tm, err := g.lookup("movable", "position")
	if err != nil {
		return 0, err
	}
	return g.invokeScalarOut(ctx, tm)
}

func (g *GenericDriver) WaitSettled(ctx context.Context) error { return nil }
func (g *GenericDriver) Stop(ctx context.Context) error {
	tm, err := g.lookup("movable", "stop")
	if err != nil {
		return nil // stop is optional; absence is not an error
	}
	return g.engine.Command(ctx, tm.Command, nil)
}

func (g *GenericDriver) Read(ctx context.Context) (float64, error) {
	tm, err := g.lookup("readable", "read")
	if err != nil {
		return 0, err
	}
	return g.invokeScalarOut(ctx, tm)
}

func (g *GenericDriver) Arm(ctx context.Context) error {
	tm, err := g.lookup("triggerable", "arm")
	if err != nil {
		return err
	}
	return g.engine.Command(ctx, tm.Command, nil)
}

func (g *GenericDriver) Trigger(ctx context.Context) error {
	tm, err := g.lookup("triggerable", "trigger")
	if err != nil {
		return err
	}
	return g.engine.Command(ctx, tm.Command, nil)
}

func (g *GenericDriver) IsArmed(ctx context.Context) (bool, error) {
	tm, err := g.lookup("triggerable", "is_armed")
	if err != nil {
		return false, err
	}
	v, err := g.invokeScalarOut(ctx, tm)
	return v != 0, err
}

func (g *GenericDriver) SetValue(ctx context.Context, name string, v capability.Value) error {
	tm, err := g.lookup("settable", name)
	if err != nil {
		return err
	}
	var f float64
	switch v.Kind {
	case capability.ValueFloat:
		f = v.F
	case capability.ValueInt:
		f = float64(v.I)
	case capability.ValueBool:
		f = boolF(v.B)
	default:
		return daqerr.New(daqerr.InvalidArgument, "protocol.GenericDriver.SetValue", "string values are not convertible to wire numerics")
	}
	return g.invokeScalarIn(ctx, tm, f)
}

func (g *GenericDriver) GetValue(ctx context.Context, name string) (capability.Value, error) {
	tm, err := g.lookup("settable", name)
	if err != nil {
		return capability.Value{}, err
	}
	f, err := g.invokeScalarOut(ctx, tm)
	if err != nil {
		return capability.Value{}, err
	}
	return capability.FloatValue(f), nil
}
