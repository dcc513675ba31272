package app

import "sync"

// Handle tracks a started App. It resolves after the accept loop has ended
// and the engine has drained.
type Handle struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) resolve(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// Done is closed once the app has fully stopped
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the app has fully stopped and returns the first fatal
// accept or drain error, if any
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}
