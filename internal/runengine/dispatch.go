package runengine

import (
	"context"
	"time"

	"github.com/jangala-dev/daqd/internal/capability"
	"github.com/jangala-dev/daqd/internal/daqerr"
	"github.com/jangala-dev/daqd/internal/plan"
)

// dispatch resolves a command's device and issues the corresponding
// capability call, retrying per e.retry on recoverable errors (spec.md §7).
func (e *Engine) dispatch(ctx context.Context, cmd plan.Command) error {
	switch cmd.Kind {
	case plan.Wait:
		return e.doWait(ctx, cmd.Seconds)
	case plan.MoveTo:
		return e.retry.Do(ctx, func(ctx context.Context) error { return e.doMove(ctx, cmd) })
	case plan.Trigger:
		return e.retry.Do(ctx, func(ctx context.Context) error { return e.doTrigger(ctx, cmd) })
	case plan.Read:
		return e.retry.Do(ctx, func(ctx context.Context) error {
			v, err := e.doRead(ctx, cmd)
			if err != nil {
				return err
			}
			e.stashRead(cmd.DeviceID, v)
			return nil
		})
	case plan.Set:
		return e.retry.Do(ctx, func(ctx context.Context) error { return e.doSet(ctx, cmd) })
	default:
		return daqerr.New(daqerr.Internal, "runengine.dispatch", "unknown command kind")
	}
}

func (e *Engine) doWait(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return nil
	case <-ctx.Done():
		return daqerr.Wrap(daqerr.Cancelled, "runengine.doWait", ctx.Err())
	}
}

func (e *Engine) doMove(ctx context.Context, cmd plan.Command) error {
	h, err := e.reg.Lookup(cmd.DeviceID)
	if err != nil {
		return err
	}
	mov, ok := h.AsMovable()
	if !ok {
		return daqerr.New(daqerr.InvalidArgument, "runengine.doMove", cmd.DeviceID+" is not movable")
	}
	return e.offload(ctx, func(ctx context.Context) error { return mov.MoveAbs(ctx, cmd.Target) })
}

func (e *Engine) doTrigger(ctx context.Context, cmd plan.Command) error {
	h, err := e.reg.Lookup(cmd.DeviceID)
	if err != nil {
		return err
	}
	trg, ok := h.AsTriggerable()
	if !ok {
		return daqerr.New(daqerr.InvalidArgument, "runengine.doTrigger", cmd.DeviceID+" is not triggerable")
	}
	armed, err := trg.IsArmed(ctx)
	if err != nil {
		return err
	}
	if !armed {
		if err := e.offload(ctx, trg.Arm); err != nil {
			return err
		}
	}
	if err := e.offload(ctx, func(ctx context.Context) error { return trg.Trigger(ctx) }); err != nil {
		return err
	}
	if fp, ok := h.AsFrameProducer(); ok {
		return e.captureFrame(ctx, fp)
	}
	return nil
}

// captureFrame pulls the single frame a just-triggered FrameProducer hands
// back and pushes its raw payload into the engine's frame sink, alongside
// the Event document the same Trigger eventually contributes to (spec.md
// §4.7 "frames... simultaneously pushed into the ring buffer"). A nil sink
// drops the frame rather than buffering it in memory.
func (e *Engine) captureFrame(ctx context.Context, fp capability.FrameProducer) error {
	if e.frames == nil {
		return nil
	}
	var ch <-chan capability.Frame
	if err := e.offload(ctx, func(ctx context.Context) error {
		var innerErr error
		ch, innerErr = fp.TakeFrameReceiver(ctx)
		return innerErr
	}); err != nil {
		return err
	}
	select {
	case fr, ok := <-ch:
		if !ok {
			return nil
		}
		_, err := e.frames.Write(fr.Data)
		return err
	case <-ctx.Done():
		return daqerr.Wrap(daqerr.Cancelled, "runengine.captureFrame", ctx.Err())
	}
}

func (e *Engine) doRead(ctx context.Context, cmd plan.Command) (float64, error) {
	h, err := e.reg.Lookup(cmd.DeviceID)
	if err != nil {
		return 0, err
	}
	rd, ok := h.AsReadable()
	if !ok {
		return 0, daqerr.New(daqerr.InvalidArgument, "runengine.doRead", cmd.DeviceID+" is not readable")
	}
	var v float64
	err = e.offload(ctx, func(ctx context.Context) error {
		var innerErr error
		v, innerErr = rd.Read(ctx)
		return innerErr
	})
	return v, err
}

func (e *Engine) doSet(ctx context.Context, cmd plan.Command) error {
	h, err := e.reg.Lookup(cmd.DeviceID)
	if err != nil {
		return err
	}
	st, ok := h.AsSettable()
	if !ok {
		return daqerr.New(daqerr.InvalidArgument, "runengine.doSet", cmd.DeviceID+" is not settable")
	}
	return e.offload(ctx, func(ctx context.Context) error {
		return st.SetValue(ctx, cmd.Param, capability.StringValue(cmd.Value))
	})
}

// offload routes fn through the blocking pool if the engine has one
// configured, otherwise runs it directly (spec.md §5's blocking-offload
// primitive; mock drivers in tests need no pool at all).
func (e *Engine) offload(ctx context.Context, fn func(context.Context) error) error {
	if e.pool == nil {
		return fn(ctx)
	}
	return e.pool.Run(ctx, func() error { return fn(ctx) })
}
