// Package shutdown is the signal-driven cooperative shutdown mechanism a
// long-running flip-loop process uses to stop cleanly: SIGINT/SIGTERM
// triggers a caller-supplied stop callback exactly once, mirroring
// spec.md §5's "the producer signals completion by setting finished
// under the mutex and broadcasting the condition" — here generalized so
// any finisher (a probe.Ring, a context cancel, a test hook) can be the
// callback.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/vusec/hammertime-go/pkg/hammerlog"
)

// Controller watches for SIGINT/SIGTERM and runs a set of registered
// stop callbacks exactly once, the first time either a signal arrives
// or Stop is called manually.
type Controller struct {
	log *hammerlog.Logger

	mu        sync.Mutex
	stopped   bool
	stopCh    chan struct{}
	callbacks []func()

	sigCh chan os.Signal
	done  chan struct{}
}

// New creates a Controller. log may be nil, in which case it logs
// nothing.
func New(log *hammerlog.Logger) *Controller {
	if log == nil {
		log = hammerlog.Nop()
	}
	return &Controller{
		log:    log,
		stopCh: make(chan struct{}),
	}
}

// Watch starts listening for SIGINT/SIGTERM in the background. Calling
// Watch more than once, or after the controller has already stopped, is
// a no-op.
func (c *Controller) Watch() {
	c.mu.Lock()
	if c.sigCh != nil || c.stopped {
		c.mu.Unlock()
		return
	}
	c.sigCh = make(chan os.Signal, 1)
	c.done = make(chan struct{})
	signal.Notify(c.sigCh, syscall.SIGINT, syscall.SIGTERM)
	c.mu.Unlock()

	go func() {
		select {
		case sig := <-c.sigCh:
			c.log.Info("shutdown signal received", "signal", sig.String())
			c.trigger()
		case <-c.done:
		}
	}()
}

// OnStop registers a callback run when shutdown is triggered. If
// shutdown already happened, cb runs immediately.
func (c *Controller) OnStop(cb func()) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		cb()
		return
	}
	c.callbacks = append(c.callbacks, cb)
	c.mu.Unlock()
}

// Stop triggers shutdown manually, e.g. from the demo CLI's own
// error-handling path rather than a signal.
func (c *Controller) Stop() {
	c.trigger()
}

func (c *Controller) trigger() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cbs := c.callbacks
	c.callbacks = nil
	done := c.done
	c.mu.Unlock()

	close(c.stopCh)
	if done != nil {
		signal.Stop(c.sigCh)
		close(done)
	}
	for _, cb := range cbs {
		cb()
	}
}

// Done returns a channel that closes once shutdown has been triggered.
func (c *Controller) Done() <-chan struct{} {
	return c.stopCh
}

// Stopped reports whether shutdown has already been triggered.
func (c *Controller) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}
