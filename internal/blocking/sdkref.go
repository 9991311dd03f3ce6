package blocking

import "sync"

// SDKFamily is a process-wide reference-counted handle on a vendor SDK's
// global init/uninit pair (spec.md §3.4/§9, §5's "Global SDK reference
// count" row). Several driver instances of the same vendor family share one
// SDKFamily; the underlying library is initialized exactly once on the
// 0→1 transition and torn down exactly once on the final 1→0 transition,
// regardless of how many driver instances acquire and release it.
type SDKFamily struct {
	mu    sync.Mutex
	count int
	init  func() error
	uninit func()
}

// NewSDKFamily wraps a vendor SDK's global init/uninit functions. Either may
// be nil if the family has no global state to manage.
func NewSDKFamily(init func() error, uninit func()) *SDKFamily {
	return &SDKFamily{init: init, uninit: uninit}
}

// Acquire increments the reference count, calling init on the 0→1
// transition. If init panics, the mutex is released in a consistent state
// (count rolled back) rather than left poisoned — recover-and-rollback
// mirrors bus.go's best-effort-delivery recover idiom.
func (f *SDKFamily) Acquire() (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.count > 0 {
		f.count++
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			f.count = 0
			err = panicToErr(r)
		}
	}()

	if f.init != nil {
		if err := f.init(); err != nil {
			return err
		}
	}
	f.count = 1
	return nil
}

// Release decrements the reference count, calling uninit on the final 1→0
// transition. Release on an already-zero count is a no-op.
func (f *SDKFamily) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.count <= 0 {
		return
	}
	f.count--
	if f.count == 0 && f.uninit != nil {
		func() {
			defer func() { _ = recover() }()
			f.uninit()
		}()
	}
}

// Count reports the current reference count, for tests and diagnostics.
func (f *SDKFamily) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

type panicErr struct{ v interface{} }

func (e panicErr) Error() string {
	if err, ok := e.v.(error); ok {
		return err.Error()
	}
	return "sdk init panicked"
}

func panicToErr(v interface{}) error { return panicErr{v} }
