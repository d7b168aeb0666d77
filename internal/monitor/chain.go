// Package monitor runs battery snapshots through a fixed, ordered chain of
// handlers, isolating each handler's failures from the others.
package monitor

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/healthd/internal/errors"
	"codeberg.org/mutker/healthd/internal/logger"
)

// Handler reads and may mutate the snapshot. A returned error discards the
// handler's mutations.
type Handler interface {
	Name() string
	Apply(ctx context.Context, s *Snapshot) error
}

// HandlerFunc adapts a function to a Handler via Named.
type HandlerFunc func(ctx context.Context, s *Snapshot) error

type namedHandler struct {
	name string
	fn   HandlerFunc
}

func (h namedHandler) Name() string { return h.name }

func (h namedHandler) Apply(ctx context.Context, s *Snapshot) error {
	return h.fn(ctx, s)
}

// Named returns a Handler called name that runs fn.
func Named(name string, fn HandlerFunc) Handler {
	return namedHandler{name: name, fn: fn}
}

// Fault describes one isolated handler failure.
type Fault struct {
	Handler string
	Err     error
}

// Report summarizes one pass through the chain.
type Report struct {
	Faults   []Fault
	Overruns []string
	Duration time.Duration
}

// OK reports whether every handler completed without error.
func (r Report) OK() bool {
	return len(r.Faults) == 0
}

// Chain is the statically ordered list of handlers. The order is fixed at
// construction.
type Chain struct {
	handlers []Handler
	deadline time.Duration
	logger   logger.Logger
}

func NewChain(log logger.Logger, handlers ...Handler) *Chain {
	if log == nil {
		log = logger.Nop()
	}

	return &Chain{
		handlers: append([]Handler(nil), handlers...),
		logger:   log.With("monitor"),
	}
}

// WithDeadline sets a soft per-handler deadline. A handler running longer
// is logged and reported but not interrupted; its context is cancelled
// once the deadline passes.
func (c *Chain) WithDeadline(d time.Duration) *Chain {
	c.deadline = d
	return c
}

// Names returns the handler names in execution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.handlers))
	for i, h := range c.handlers {
		names[i] = h.Name()
	}

	return names
}

// Apply runs every handler in order on s. A handler that fails or panics
// has its changes to s rolled back; the remaining handlers still run.
func (c *Chain) Apply(ctx context.Context, s *Snapshot) Report {
	var report Report
	start := time.Now()

	for _, h := range c.handlers {
		before := *s
		began := time.Now()

		err := c.run(ctx, h, s)
		elapsed := time.Since(began)

		if err != nil {
			*s = before
			report.Faults = append(report.Faults, Fault{Handler: h.Name(), Err: err})
			c.logger.Error().Code(err).Err(err).Str("handler", h.Name()).Msg("Handler failed, changes discarded")
		}

		if c.deadline > 0 && elapsed > c.deadline {
			report.Overruns = append(report.Overruns, h.Name())
			c.logger.Warn().
				Str("handler", h.Name()).
				Dur("elapsed", elapsed).
				Dur("deadline", c.deadline).
				Msg("Handler exceeded deadline")
		}
	}

	report.Duration = time.Since(start)

	return report
}

func (c *Chain) run(ctx context.Context, h Handler, s *Snapshot) (err error) {
	if c.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.deadline)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(errors.ErrHandlerPanic, fmt.Sprint(r))
		}
	}()

	if applyErr := h.Apply(ctx, s); applyErr != nil {
		return errors.New().Wrap(errors.ErrHandlerFault, applyErr)
	}

	return nil
}
