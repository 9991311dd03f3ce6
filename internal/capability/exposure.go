package capability

import "context"

// ExposureControl is satisfied by cameras and similar detectors whose
// integration time is adjustable.
type ExposureControl interface {
	SetExposure(ctx context.Context, seconds float64) error
	GetExposure(ctx context.Context) (float64, error)
}
