// Package tracker correlates outgoing invocations with their responses.
//
// Every call registers a pending invocation keyed by its invocation id, sends
// the descriptor toward the implementation and waits for exactly one of:
// a matching response, the deadline, caller cancellation or tracker shutdown.
// Whichever settles the pending invocation first is authoritative; the others
// observe it already settled and do nothing.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeteorMsg/Meteor/pkg/invocation"
	"github.com/MeteorMsg/Meteor/pkg/serializer"
	"github.com/MeteorMsg/Meteor/pkg/transport"
)

const logPrefix = "tracker:tracker"

type outcome struct {
	result []byte
	err    error
}

// pendingInvocation is a single-slot completion for one outstanding call.
type pendingInvocation struct {
	descriptor *invocation.Descriptor
	deadline   time.Time
	timer      *time.Timer // owned by the invoking goroutine

	once    sync.Once
	done    chan struct{}
	out     outcome
	cleanup func()
}

func newPendingInvocation(d *invocation.Descriptor, timeout time.Duration) *pendingInvocation {
	return &pendingInvocation{
		descriptor: d,
		deadline:   time.Now().Add(timeout),
		done:       make(chan struct{}),
	}
}

// settle completes the invocation exactly once. It reports whether this call won.
func (p *pendingInvocation) settle(out outcome) bool {
	won := false
	p.once.Do(func() {
		p.out = out
		close(p.done)
		won = true
	})
	if won && p.cleanup != nil {
		p.cleanup()
	}
	return won
}

func outcomeOf(resp *invocation.Response) outcome {
	if resp.Ok {
		return outcome{result: resp.Result}
	}
	return outcome{err: resp.Err()}
}

// Tracker owns the set of in-flight invocations.
type Tracker struct {
	transport  transport.Transport
	serializer serializer.Serializer

	pending sync.Map // invocation id -> *pendingInvocation
	count   atomic.Int64
	closed  atomic.Bool
}

// New creates a Tracker that sends descriptors over t encoded with s.
func New(t transport.Transport, s serializer.Serializer) *Tracker {
	if s == nil {
		s = serializer.Default
	}
	return &Tracker{transport: t, serializer: s}
}

// Invoke sends d and blocks until it is settled. It returns the serialized
// result on success. Exactly one send happens per call; there are no retries.
func (t *Tracker) Invoke(ctx context.Context, d *invocation.Descriptor, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%s - %w: got %s", logPrefix, invocation.ErrInvalidTimeout, timeout)
	}
	if t.closed.Load() {
		return nil, invocation.ErrTransportClosed
	}

	payload, err := invocation.EncodeDescriptor(t.serializer, d)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}

	id := d.InvocationID
	p := newPendingInvocation(d, timeout)
	p.cleanup = func() { t.remove(id, p) }

	if _, loaded := t.pending.LoadOrStore(id, p); loaded {
		return nil, fmt.Errorf("%s - %w: %s", logPrefix, invocation.ErrDuplicateInvocation, id)
	}
	t.count.Add(1)

	// Close may have swept the set between the check above and the insert.
	if t.closed.Load() {
		p.settle(outcome{err: invocation.ErrTransportClosed})
		return nil, invocation.ErrTransportClosed
	}

	p.timer = time.AfterFunc(timeout, func() {
		if p.settle(outcome{err: &invocation.TimeoutError{InvocationID: id, Timeout: timeout}}) {
			slog.Debug(fmt.Sprintf("%s - invocation %s (%s) timed out after %s", logPrefix, id, d.Method, timeout))
		}
	})
	defer p.timer.Stop()

	slog.Debug(fmt.Sprintf("%s - sending invocation %s namespace=%s method=%s", logPrefix, id, d.Namespace, d.Method))
	if err := t.transport.Send(ctx, transport.ToImplementation, payload); err != nil {
		p.settle(outcome{err: fmt.Errorf("%s - failed to send invocation %s: %w", logPrefix, id, err)})
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		p.settle(outcome{err: ctx.Err()})
		<-p.done
	}
	return p.out.result, p.out.err
}

// Complete settles the pending invocation matching resp. It returns false when
// no live invocation exists for the id: already settled, timed out, or issued
// by another process sharing the transport.
func (t *Tracker) Complete(resp *invocation.Response) bool {
	v, ok := t.pending.LoadAndDelete(resp.InvocationID)
	if !ok {
		slog.Debug(fmt.Sprintf("%s - no pending invocation for response %s", logPrefix, resp.InvocationID))
		return false
	}
	t.count.Add(-1)
	return v.(*pendingInvocation).settle(outcomeOf(resp))
}

func (t *Tracker) remove(id string, p *pendingInvocation) {
	if t.pending.CompareAndDelete(id, p) {
		t.count.Add(-1)
	}
}

// Pending returns the number of live invocations.
func (t *Tracker) Pending() int {
	return int(t.count.Load())
}

// IsPending reports whether id is still awaiting settlement.
func (t *Tracker) IsPending(id string) bool {
	_, ok := t.pending.Load(id)
	return ok
}

// Close fails every pending invocation with ErrShuttingDown. Later calls to
// Invoke return ErrTransportClosed.
func (t *Tracker) Close() {
	if t.closed.Swap(true) {
		return
	}
	failed := 0
	t.pending.Range(func(_, v any) bool {
		if v.(*pendingInvocation).settle(outcome{err: invocation.ErrShuttingDown}) {
			failed++
		}
		return true
	})
	slog.Info(fmt.Sprintf("%s - Tracker closed, %d pending invocations failed", logPrefix, failed))
}
