package backend

import "sync"

// The decoding service context is process-wide shared state. It is held
// as an explicit reference count instead of ambient globals: each session
// acquires a reference on open and releases it on close, and a ServiceRef
// release is idempotent so it is safe on every exit path, including
// partially failed opens.
var service struct {
	mu    sync.Mutex
	count int
}

// ServiceRef is one session's handle on the process-wide decoding service.
type ServiceRef struct {
	mu       sync.Mutex
	released bool
}

// AcquireService takes a reference on the decoding service context.
func AcquireService() *ServiceRef {
	service.mu.Lock()
	service.count++
	service.mu.Unlock()
	return &ServiceRef{}
}

// Release drops the reference. Calling it more than once has no effect.
func (r *ServiceRef) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true

	service.mu.Lock()
	service.count--
	service.mu.Unlock()
}

// ActiveSessions returns the number of live service references. Multiple
// independent sessions may hold references concurrently.
func ActiveSessions() int {
	service.mu.Lock()
	defer service.mu.Unlock()
	return service.count
}
