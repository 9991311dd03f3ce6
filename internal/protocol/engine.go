package protocol

import (
	"context"
	"time"

	"github.com/jangala-dev/daqd/internal/daqerr"
)

// Exchanger is the bus-facing half of a device — satisfied directly by
// sharedbus.Device, and narrowed here so the engine doesn't import the bus
// package and tests can substitute an in-memory fake.
type Exchanger interface {
	Exchange(ctx context.Context, command []byte, terminator byte, expectResponse bool) ([]byte, error)
}

// Engine executes named commands and queries against one device's
// configuration document (spec.md §4.9 "command(name,args)", "query(name,
// args) -> map").
type Engine struct {
	cfg         *DeviceConfig
	bus         Exchanger
	responses   map[string]*CompiledResponse
	conversions map[string]*Expr
	terminator  byte
}

// NewEngine validates cfg and compiles its regexes/formulas once, binding
// the result to bus for repeated command/query calls.
func NewEngine(cfg *DeviceConfig, bus Exchanger) (*Engine, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	responses := map[string]*CompiledResponse{}
	for name, r := range cfg.Responses {
		c, err := Compile(name, r)
		if err != nil {
			return nil, err
		}
		responses[name] = c
	}
	conversions := map[string]*Expr{}
	for name, c := range cfg.Conversions {
		ex, err := ParseExpr(c.Formula)
		if err != nil {
			return nil, err
		}
		conversions[name] = ex
	}

	return &Engine{
		cfg:         cfg,
		bus:         bus,
		responses:   responses,
		conversions: conversions,
		terminator:  cfg.Connection.Terminator[0],
	}, nil
}

// Convert evaluates a named conversion formula against vars (spec.md §4.9
// "Conversions").
func (e *Engine) Convert(name string, vars map[string]float64) (float64, error) {
	ex, ok := e.conversions[name]
	if !ok {
		return 0, daqerr.New(daqerr.Internal, "protocol.Convert", "unknown conversion "+name)
	}
	v, err := ex.Eval(vars)
	if err != nil {
		return 0, daqerr.Wrap(daqerr.Internal, "protocol.Convert", err)
	}
	return v, nil
}

// Command issues a named command expecting no parsed response (spec.md
// §4.9 steps 1-4, response step skipped).
func (e *Engine) Command(ctx context.Context, name string, args map[string]interface{}) error {
	_, err := e.exchange(ctx, name, args)
	return err
}

// Query issues a named command and parses its response into typed fields
// (spec.md §4.9 steps 1-5).
func (e *Engine) Query(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	raw, err := e.exchange(ctx, name, args)
	if err != nil {
		return nil, err
	}

	cmd, ok := e.cfg.Commands[name]
	if !ok {
		return nil, daqerr.New(daqerr.InvalidArgument, "protocol.Query", "unknown command "+name)
	}
	if cmd.Response == "" {
		return nil, daqerr.New(daqerr.InvalidArgument, "protocol.Query", "command "+name+" declares no response")
	}
	resp, ok := e.responses[cmd.Response]
	if !ok {
		return nil, daqerr.New(daqerr.Internal, "protocol.Query", "response "+cmd.Response+" was not compiled")
	}
	// ReadUntil includes the terminator byte; the response pattern matches
	// only the payload preceding it.
	if len(raw) > 0 && raw[len(raw)-1] == e.terminator {
		raw = raw[:len(raw)-1]
	}
	return resp.Parse(raw)
}

func (e *Engine) exchange(ctx context.Context, name string, args map[string]interface{}) ([]byte, error) {
	cmd, ok := e.cfg.Commands[name]
	if !ok {
		return nil, daqerr.New(daqerr.InvalidArgument, "protocol.exchange", "unknown command "+name)
	}

	vars := map[string]interface{}{"address": e.cfg.Connection.Bus.Address}
	for k, v := range args {
		vars[k] = v
	}
	wire, err := Substitute(cmd.Template, vars)
	if err != nil {
		return nil, err
	}

	if ms := e.cfg.Connection.TimeoutMS; ms > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}
	return e.bus.Exchange(ctx, []byte(wire), e.terminator, cmd.ExpectResponse)
}
