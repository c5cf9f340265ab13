// Package platform implements the stateless facade (component C7):
// request DTO in, coordinate conversion, dispatch to the arbiter or
// binding, coordinate conversion back, response DTO out. It is the one
// place raw panics and binding errors get turned into the wire's
// `error == ""` success sentinel.
package platform

import (
	"context"
	"time"

	"github.com/virtualbrainlab/ephys-link/internal/arbiter"
	"github.com/virtualbrainlab/ephys-link/internal/binding"
	"github.com/virtualbrainlab/ephys-link/internal/brokererr"
	"github.com/virtualbrainlab/ephys-link/internal/lease"
	"github.com/virtualbrainlab/ephys-link/internal/registry"
)

// WriteDisabledNotifier is called exactly once per expired lease, on the
// lease manager's timer goroutine. The transport layer supplies this to
// push the write_disabled server event.
type WriteDisabledNotifier func(id string)

// Facade wires the registry, lease manager, and arbiter against one
// binding and exposes every externally visible operation in §4.7.
type Facade struct {
	bind     binding.Binding
	registry *registry.Registry
	lease    *lease.Manager
	arbiter  *arbiter.Arbiter
	notify   WriteDisabledNotifier
}

// New builds a Facade over a single binding. notify, if non-nil, is
// invoked whenever a write lease expires on its own.
func New(bind binding.Binding, notify WriteDisabledNotifier) *Facade {
	f := &Facade{bind: bind, notify: notify}
	f.registry = registry.New(bind)
	f.lease = lease.New(f.onExpire)
	f.arbiter = arbiter.New(bind, f.registry, f.lease)
	return f
}

func (f *Facade) onExpire(id string) {
	if f.notify != nil {
		f.notify(id)
	}
}

// recoverToError turns a panic inside a binding call into an INTERNAL
// error instead of letting it escape to the transport. Call via
// `defer f.recoverToError(&err)` at the top of any method that returns a
// bare error. Moves themselves run on the arbiter's dispatch goroutine,
// which recovers its own panics.
func (f *Facade) recoverToError(err *error) {
	if r := recover(); r != nil {
		*err = brokererr.Internalf("%v", r)
	}
}

func (f *Facade) GetPlatformInfo() PlatformInfoResponse {
	return PlatformInfoResponse{
		Name:       f.bind.DisplayName(),
		CLIName:    f.bind.CLIName(),
		AxesCount:  f.bind.GetAxesCount(),
		Dimensions: f.bind.GetDimensions(),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (f *Facade) GetManipulators(ctx context.Context) (resp ManipulatorsResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = ManipulatorsResponse{Error: brokererr.Internalf("%v", r).Error()}
		}
	}()
	ids, err := f.bind.GetManipulators(ctx)
	return ManipulatorsResponse{Manipulators: ids, Error: errString(err)}
}

func (f *Facade) Register(ctx context.Context, id string) error {
	return f.registry.Register(ctx, id)
}

func (f *Facade) Unregister(ctx context.Context, id string) error {
	if err := f.registry.Unregister(ctx, id); err != nil {
		return err
	}
	f.lease.Clear(id)
	return nil
}

func (f *Facade) GetPosition(ctx context.Context, id string) (resp PositionResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = PositionResponse{Error: brokererr.Internalf("%v", r).Error()}
		}
	}()
	if _, err := f.registry.Get(id); err != nil {
		return PositionResponse{Error: err.Error()}
	}
	pos, err := f.bind.GetPosition(ctx, id)
	if err != nil {
		return PositionResponse{Error: err.Error()}
	}
	return PositionResponse{Position: f.bind.PlatformToUnified(pos)}
}

func (f *Facade) GetAngles(ctx context.Context, id string) (resp AnglesResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = AnglesResponse{Error: brokererr.Internalf("%v", r).Error()}
		}
	}()
	if _, err := f.registry.Get(id); err != nil {
		return AnglesResponse{Error: err.Error()}
	}
	angles, err := f.bind.GetAngles(ctx, id)
	return AnglesResponse{Angles: angles, Error: errString(err)}
}

func (f *Facade) GetShankCount(ctx context.Context, id string) (resp ShankCountResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = ShankCountResponse{Error: brokererr.Internalf("%v", r).Error()}
		}
	}()
	if _, err := f.registry.Get(id); err != nil {
		return ShankCountResponse{Error: err.Error()}
	}
	count, err := f.bind.GetShankCount(ctx, id)
	return ShankCountResponse{ShankCount: count, Error: errString(err)}
}

func (f *Facade) SetPosition(ctx context.Context, req SetPositionRequest) (resp PositionResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = PositionResponse{Error: brokererr.Internalf("%v", r).Error()}
		}
	}()
	target := f.bind.UnifiedToPlatform(req.Position)
	final, err := f.arbiter.SetPosition(ctx, req.ManipulatorID, target, req.Speed)
	if err != nil {
		return PositionResponse{Error: err.Error()}
	}
	return PositionResponse{Position: f.bind.PlatformToUnified(final)}
}

func (f *Facade) SetDepth(ctx context.Context, req SetDepthRequest) (resp DepthResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = DepthResponse{Error: brokererr.Internalf("%v", r).Error()}
		}
	}()
	platformTarget := f.bind.UnifiedToPlatform(f.bind.GetDimensions().WithW(req.Depth))
	final, err := f.arbiter.SetDepth(ctx, req.ManipulatorID, platformTarget.W, req.Speed)
	if err != nil {
		return DepthResponse{Error: err.Error()}
	}
	unified := f.bind.PlatformToUnified(f.bind.GetDimensions().WithW(final))
	return DepthResponse{Depth: unified.W}
}

func (f *Facade) SetInsideBrain(ctx context.Context, req SetInsideBrainRequest) (resp StateResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = StateResponse{Error: brokererr.Internalf("%v", r).Error()}
		}
	}()
	if err := f.registry.SetInsideBrain(req.ManipulatorID, req.Inside); err != nil {
		return StateResponse{State: req.Inside, Error: err.Error()}
	}
	return StateResponse{State: req.Inside}
}

func (f *Facade) SetCanWrite(ctx context.Context, req SetCanWriteRequest) (resp StateResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = StateResponse{Error: brokererr.Internalf("%v", r).Error()}
		}
	}()
	if _, err := f.registry.Get(req.ManipulatorID); err != nil {
		return StateResponse{Error: err.Error()}
	}
	if req.CanWrite {
		ttl := time.Duration(req.Hours * float64(time.Hour))
		f.lease.Grant(req.ManipulatorID, ttl)
	} else {
		f.lease.Clear(req.ManipulatorID)
	}
	return StateResponse{State: req.CanWrite}
}

func (f *Facade) Calibrate(ctx context.Context, id string) (err error) {
	defer f.recoverToError(&err)
	if _, gerr := f.registry.Get(id); gerr != nil {
		return gerr
	}
	if cerr := f.bind.Calibrate(ctx, id); cerr != nil {
		return cerr
	}
	return f.registry.SetCalibrated(id, true)
}

func (f *Facade) Stop(ctx context.Context, id string) (err error) {
	defer f.recoverToError(&err)
	return f.arbiter.Stop(ctx, id)
}

func (f *Facade) StopAll(ctx context.Context) (resp StateResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = StateResponse{Error: brokererr.Internalf("%v", r).Error()}
		}
	}()
	f.arbiter.StopAll(ctx)
	return StateResponse{State: true}
}

// Reset cancels all movements, revokes all leases, and clears the
// registry. Called on session disconnect (C9).
func (f *Facade) Reset(ctx context.Context) {
	f.arbiter.StopAll(ctx)
	f.arbiter.Reset()
	f.lease.Reset()
	f.registry.Reset()
}
