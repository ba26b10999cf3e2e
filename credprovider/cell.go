package credprovider

import (
	"context"
	"sync/atomic"
)

// cellState is one "future" for the Credential Cell: a value that starts
// pending and settles exactly once, either to a Credentials value or an
// error. Readers that arrive before or after settlement both observe a
// consistent result — never a torn write.
type cellState struct {
	done  chan struct{}
	value Credentials
	err   error
}

func newCellState() *cellState {
	return &cellState{done: make(chan struct{})}
}

func (s *cellState) settle(value Credentials, err error) {
	s.value = value
	s.err = err
	close(s.done)
}

// credentialCell is the single-holder container for the Provider's current
// credentials. install() publishes a new pending state; the caller then
// does the (possibly slow) work off any lock and calls settle() on the
// returned state when it completes. Because the pointer swap in install()
// happens synchronously, any reader that calls Get() after install()
// returns is guaranteed to observe the new state, pending or not — never
// an inconsistent intermediate (the ordering §4.1 requires).
type credentialCell struct {
	state atomic.Pointer[cellState]
}

// install publishes a new pending state and returns it. Call settle() on
// the returned state exactly once.
func (c *credentialCell) install() *cellState {
	st := newCellState()
	c.state.Store(st)
	return st
}

// current returns the presently installed state, or nil if the cell has
// never been installed.
func (c *credentialCell) current() *cellState {
	return c.state.Load()
}

// Get blocks until the current state settles or ctx is done, whichever
// comes first. Cancelling ctx detaches this caller only; it never cancels
// the underlying settlement other callers may still be waiting on.
func (c *credentialCell) Get(ctx context.Context) (Credentials, error) {
	st := c.current()
	if st == nil {
		return Credentials{}, newFatalError("get", "credential cell was never initialized", nil)
	}
	select {
	case <-st.done:
		if st.err != nil {
			return Credentials{}, st.err
		}
		return st.value.Clone(), nil
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	}
}
