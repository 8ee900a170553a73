// Package controller issues critique requests to the relay, enforcing a
// single request in flight and reporting elapsed seconds while it waits.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dgnsrekt/design_assistant/internal/critique"
)

const DefaultTickInterval = time.Second

// Port carries one message to the relay and returns its single reply.
type Port interface {
	Send(ctx context.Context, msg critique.Message) (critique.Reply, error)
}

type Controller struct {
	port     Port
	clock    Clock
	interval time.Duration
	timeout  time.Duration

	sem      *semaphore.Weighted
	inFlight atomic.Bool
}

type Option func(*Controller)

func WithClock(c Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

func WithTickInterval(d time.Duration) Option {
	return func(ctl *Controller) {
		if d > 0 {
			ctl.interval = d
		}
	}
}

// WithRequestTimeout bounds each Send. A request that outlives it ends as a
// transport failure and frees the controller for the next one.
func WithRequestTimeout(d time.Duration) Option {
	return func(ctl *Controller) { ctl.timeout = d }
}

func New(port Port, opts ...Option) *Controller {
	c := &Controller{
		port:     port,
		clock:    realClock{},
		interval: DefaultTickInterval,
		sem:      semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InFlight reports whether a request is outstanding.
func (c *Controller) InFlight() bool { return c.inFlight.Load() }

// Submit runs one request to completion and returns its terminal outcome.
// onTick, if non-nil, receives the elapsed whole seconds once per tick and is
// never called after Submit returns. Invalid requests and requests made while
// another is outstanding fail with InvalidInput without reaching the relay.
func (c *Controller) Submit(ctx context.Context, req critique.Request, onTick func(seconds int)) critique.Outcome {
	if err := req.Validate(); err != nil {
		return critique.Outcome{Err: critique.AsError(err)}
	}
	if !c.sem.TryAcquire(1) {
		slog.Debug("critique rejected while busy", "mode", req.Mode)
		return critique.Outcome{Err: critique.NewError(critique.KindInvalidInput, "a critique is already in flight", critique.ErrBusy)}
	}
	c.inFlight.Store(true)
	defer func() {
		c.inFlight.Store(false)
		c.sem.Release(1)
	}()

	msg := critique.NewCaptureMessage(req)
	start := c.clock.Now()
	stopTicks := c.startTicks(start, onTick)
	defer stopTicks()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	slog.Debug("critique dispatched", "id", msg.ID, "mode", msg.Mode)
	reply, sendErr := c.port.Send(ctx, msg)

	stopTicks()
	out := critique.Outcome{ElapsedSeconds: wholeSeconds(c.clock.Now().Sub(start))}

	if sendErr != nil {
		out.Err = asTransport(sendErr)
	} else if resp, err := reply.Decode(msg.ID); err != nil {
		out.Err = critique.AsError(err)
	} else {
		out.Response = resp
	}

	if out.Err != nil {
		slog.Info("critique failed", "id", msg.ID, "kind", out.Err.Kind, "message", out.Err.Message, "elapsed_seconds", out.ElapsedSeconds)
	} else {
		slog.Info("critique completed", "id", msg.ID, "elapsed_seconds", out.ElapsedSeconds, "processing_time", out.Response.ProcessingTimeSeconds)
	}
	return out
}

// startTicks runs the progress ticker until the returned stop func is
// called. stop is idempotent and returns only after the tick goroutine exits.
func (c *Controller) startTicks(start time.Time, onTick func(int)) func() {
	if onTick == nil {
		return func() {}
	}

	t := c.clock.NewTicker(c.interval)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case now := <-t.C():
				select {
				case <-done:
					return
				default:
				}
				onTick(wholeSeconds(now.Sub(start)))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.Stop()
			close(done)
			wg.Wait()
		})
	}
}

func asTransport(err error) *critique.Error {
	ce := critique.AsError(err)
	if ce.Kind == critique.KindTransportFailed {
		return ce
	}
	return critique.NewError(critique.KindTransportFailed, ce.Message, err)
}
