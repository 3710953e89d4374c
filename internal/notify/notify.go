// Package notify delivers out-of-band messages such as password reset emails.
//
// Delivery is best effort: Dispatcher sends in the background, detached from
// the request that triggered it, and reports failures through a callback and
// prometheus counters instead of to the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"
)

const defaultSendTimeout = 10 * time.Second

// Message is an email addressed to a single recipient.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// FailureFunc observes a failed delivery.
type FailureFunc func(msg Message, err error)

// DispatcherOptions configures a Dispatcher. Zero values are valid.
type DispatcherOptions struct {
	Timeout   time.Duration
	OnFailure FailureFunc
	Metrics   *Metrics
}

// Dispatcher runs sends in the background.
type Dispatcher struct {
	sender    Sender
	timeout   time.Duration
	onFailure FailureFunc
	metrics   *Metrics
	wg        sync.WaitGroup
}

// NewDispatcher constructs a dispatcher delivering through sender.
func NewDispatcher(sender Sender, opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSendTimeout
	}
	return &Dispatcher{
		sender:    sender,
		timeout:   opts.Timeout,
		onFailure: opts.OnFailure,
		metrics:   opts.Metrics,
	}
}

// Dispatch starts delivering msg and returns immediately. Cancellation of ctx
// does not abort the send; its values are kept for logging and tracing.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	sendCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(sendCtx, d.timeout)
		defer cancel()

		if err := d.send(ctx, msg); err != nil {
			d.metrics.observeFailure()
			if d.onFailure != nil {
				d.onFailure(msg, err)
			}
			return
		}
		d.metrics.observeSent()
	}()
}

func (d *Dispatcher) send(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.Code("NOTIFY_PANIC").Errorf("sender panicked: %v", r)
		}
	}()
	return d.sender.Send(ctx, msg)
}

// Wait blocks until every dispatched message has been attempted.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
