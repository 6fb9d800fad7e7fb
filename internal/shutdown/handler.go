package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type cleanup struct {
	name string
	fn   func(context.Context) error
}

// Handler manages graceful shutdown
type Handler struct {
	ctx      context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
	mu       sync.Mutex
	cleanups []cleanup
	once     sync.Once
	err      error
}

// New creates a new shutdown handler. Cleanups share a deadline of timeout.
func New(timeout time.Duration) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
	}
}

// Context returns the shutdown context
func (h *Handler) Context() context.Context {
	return h.ctx
}

// AddCleanup registers a cleanup function to be called on shutdown.
// Cleanups run in reverse registration order.
func (h *Handler) AddCleanup(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanups = append(h.cleanups, cleanup{name: name, fn: fn})
}

// Listen starts listening for shutdown signals. It cancels the context
// only; the owner calls Shutdown once its work has drained.
func (h *Handler) Listen() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			h.cancel()
		case <-h.ctx.Done():
		}
		signal.Stop(sigChan)
	}()
}

// Shutdown cancels the context and runs every cleanup. It is safe to call
// more than once; later calls return the first result.
func (h *Handler) Shutdown() error {
	h.once.Do(func() {
		h.cancel()

		h.mu.Lock()
		fns := h.cleanups
		h.mu.Unlock()

		ctx := context.Background()
		if h.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.timeout)
			defer cancel()
		}

		var errs []error
		for i := len(fns) - 1; i >= 0; i-- {
			if err := fns[i].fn(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", fns[i].name, err))
			}
		}
		h.err = errors.Join(errs...)
	})
	return h.err
}
