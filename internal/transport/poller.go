package transport

import "time"

// Poller waits for readiness on a set of descriptors. One Poller serves one
// store; Register, Unregister and Wait are called from the serving goroutine
// while Wake may be called from any goroutine.
type Poller interface {
	Register(fd int) error
	Unregister(fd int) error
	// Wait blocks until a registered descriptor is readable, Wake is called
	// or the timeout passes. A negative timeout waits forever. The returned
	// descriptors include those whose peer hung up.
	Wait(timeout time.Duration) ([]int, error)
	// Wake interrupts a pending or the next Wait.
	Wake() error
	Close() error
}
