// README: Bounded asynchronous fan-out of events to sinks.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Dispatcher struct {
	ch      chan Event
	sinks   []Sink
	timeout time.Duration
	log     logrus.FieldLogger

	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher buffers up to buffer events. When the buffer is full new
// events are dropped so the producer never waits.
func NewDispatcher(log logrus.FieldLogger, buffer int, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		ch:      make(chan Event, buffer),
		sinks:   sinks,
		timeout: timeout,
		log:     log,
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Notify(e Event) {
	select {
	case <-d.done:
		return
	default:
	}
	select {
	case d.ch <- e:
	default:
		d.log.WithFields(logrus.Fields{"kind": e.Kind, "job_id": e.JobID}).Warn("notification buffer full; event dropped")
	}
}

// Run delivers events until ctx is cancelled or Close is called, then drains
// what is already buffered.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case e := <-d.ch:
			d.deliver(ctx, e)
		case <-ctx.Done():
			d.drain(context.Background())
			return
		case <-d.done:
			d.drain(ctx)
			return
		}
	}
}

func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case e := <-d.ch:
			d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Send(sctx, e)
		cancel()
		if err != nil {
			d.log.WithFields(logrus.Fields{
				"sink":   s.Name(),
				"kind":   e.Kind,
				"job_id": e.JobID,
			}).WithError(err).Warn("notification failed")
		}
	}
}
