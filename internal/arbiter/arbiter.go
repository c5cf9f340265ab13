// Package arbiter enforces per-manipulator serial movement with the
// admission gates described for the movement arbiter (component C5): one
// in-flight move per manipulator, a FIFO queue behind it, and
// cancellation that drains the queue with a typed error.
package arbiter

import (
	"context"
	"sync"

	"github.com/virtualbrainlab/ephys-link/internal/binding"
	"github.com/virtualbrainlab/ephys-link/internal/brokererr"
	"github.com/virtualbrainlab/ephys-link/internal/coord"
	"github.com/virtualbrainlab/ephys-link/internal/lease"
	"github.com/virtualbrainlab/ephys-link/internal/registry"
)

// request is one queued move descriptor.
type request struct {
	run    func(ctx context.Context) (any, error)
	result chan result
}

type result struct {
	value any
	err   error
}

// proxy is the per-manipulator movement state: a FIFO queue behind
// whatever is currently in flight, and the cancel function for that
// in-flight move.
type proxy struct {
	mu       sync.Mutex
	queue    []*request
	cancel   context.CancelFunc
	inFlight bool
}

// Arbiter serializes movement per manipulator and applies the
// write-lease / inside-brain / bounds gates before dispatching to a
// binding.
type Arbiter struct {
	bind  binding.Binding
	reg   *registry.Registry
	lease *lease.Manager

	mu      sync.Mutex
	proxies map[string]*proxy
}

// New builds an Arbiter over a binding, registry, and lease manager. All
// three must share the same manipulator ID space.
func New(bind binding.Binding, reg *registry.Registry, leaseMgr *lease.Manager) *Arbiter {
	return &Arbiter{bind: bind, reg: reg, lease: leaseMgr, proxies: make(map[string]*proxy)}
}

func (a *Arbiter) proxyFor(id string) *proxy {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.proxies[id]
	if !ok {
		p = &proxy{}
		a.proxies[id] = p
	}
	return p
}

// admit runs the registration/lease/bounds gates shared by every motion
// command. It returns the (possibly inside-brain-rewritten) target.
func (a *Arbiter) admit(id string, speed float64, target coord.Vec4, hasTarget bool) (coord.Vec4, error) {
	entry, err := a.reg.Get(id)
	if err != nil {
		return target, err
	}
	if !a.lease.CanWrite(id) {
		return target, brokererr.New(brokererr.WriteDisabled, "")
	}
	if speed <= 0 {
		return target, brokererr.New(brokererr.InvalidRequest, "speed must be positive")
	}
	if hasTarget {
		if !target.Finite() {
			return target, brokererr.New(brokererr.InvalidRequest, "target is not finite")
		}
		if entry.InsideBrain {
			current, gerr := a.bind.GetPosition(context.Background(), id)
			if gerr != nil {
				return target, gerr
			}
			target = coord.Vec4{X: current.X, Y: current.Y, Z: current.Z, W: target.W}
		}
	}
	return target, nil
}

// enqueue appends run to id's queue, dispatching it immediately if
// nothing is in flight, and blocks until it settles.
func (a *Arbiter) enqueue(ctx context.Context, id string, run func(context.Context) (any, error)) (any, error) {
	p := a.proxyFor(id)
	req := &request{run: run, result: make(chan result, 1)}

	p.mu.Lock()
	if p.inFlight {
		p.queue = append(p.queue, req)
		p.mu.Unlock()
	} else {
		p.inFlight = true
		p.mu.Unlock()
		a.dispatch(p, id, req)
	}

	r := <-req.result
	return r.value, r.err
}

// dispatch runs req and, on settlement, lifts the next queued request (if
// any) and runs it in turn, all on its own goroutine so callers already
// waiting on earlier requests are not blocked by this one. A panic inside
// req.run settles req with an INTERNAL error.
func (a *Arbiter) dispatch(p *proxy, id string, req *request) {
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		p.mu.Lock()
		p.cancel = cancel
		p.mu.Unlock()

		value, err := func() (value any, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = brokererr.Internalf("%v", r)
				}
			}()
			return req.run(ctx)
		}()
		cancel()

		p.mu.Lock()
		p.cancel = nil
		var next *request
		if len(p.queue) > 0 {
			next = p.queue[0]
			p.queue = p.queue[1:]
		} else {
			p.inFlight = false
		}
		p.mu.Unlock()

		req.result <- result{value: value, err: err}

		if next != nil {
			a.dispatch(p, id, next)
		}
	}()
}

// SetPosition admits and queues a set_position move.
func (a *Arbiter) SetPosition(ctx context.Context, id string, target coord.Vec4, speed float64) (coord.Vec4, error) {
	target, err := a.admit(id, speed, target, true)
	if err != nil {
		return coord.Vec4{}, err
	}
	v, err := a.enqueue(ctx, id, func(ctx context.Context) (any, error) {
		return a.bind.SetPosition(ctx, id, target, speed)
	})
	if err != nil {
		return coord.Vec4{}, err
	}
	return v.(coord.Vec4), nil
}

// SetDepth admits and queues a set_depth move.
func (a *Arbiter) SetDepth(ctx context.Context, id string, depth, speed float64) (float64, error) {
	_, err := a.admit(id, speed, coord.Vec4{}, false)
	if err != nil {
		return 0, err
	}
	v, err := a.enqueue(ctx, id, func(ctx context.Context) (any, error) {
		return a.bind.SetDepth(ctx, id, depth, speed)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Stop cancels id's in-flight move (if any), drains its queue with
// MOVEMENT_CANCELLED, calls the binding's stop best-effort, and clears
// its lease. It is idempotent.
func (a *Arbiter) Stop(ctx context.Context, id string) error {
	if _, err := a.reg.Get(id); err != nil {
		return err
	}

	p := a.proxyFor(id)
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	drained := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, req := range drained {
		req.result <- result{err: brokererr.New(brokererr.MovementCancelled, id)}
	}

	_ = a.bind.Stop(ctx, id)
	a.lease.Clear(id)
	return nil
}

// StopAll stops every registered manipulator. Errors from individual
// stops are swallowed (best-effort), matching the binding-level Stop
// semantics; StopAll itself cannot fail.
func (a *Arbiter) StopAll(ctx context.Context) {
	for _, id := range a.reg.List() {
		_ = a.Stop(ctx, id)
	}
}

// Reset forgets all per-manipulator queueing state. Called alongside
// registry.Reset() and lease.Reset() on session teardown.
func (a *Arbiter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.proxies = make(map[string]*proxy)
}
