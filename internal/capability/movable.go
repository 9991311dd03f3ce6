package capability

import "context"

// Movable is satisfied by stages, rotators, and other positionable devices.
type Movable interface {
	MoveAbs(ctx context.Context, pos float64) error
	MoveRel(ctx context.Context, delta float64) error
	Position(ctx context.Context) (float64, error)
	WaitSettled(ctx context.Context) error
	Stop(ctx context.Context) error
}
