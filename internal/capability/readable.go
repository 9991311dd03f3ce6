package capability

import "context"

// Readable is satisfied by detectors that produce a single scalar reading,
// e.g. optical power meters.
type Readable interface {
	Read(ctx context.Context) (float64, error)
}
