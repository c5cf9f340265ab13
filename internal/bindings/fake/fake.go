// Package fake implements a reference Blocking-SDK family binding backed
// by in-memory state instead of vendor hardware. It exists for local
// development and the broker's own test suite, mirroring a reference
// fixture binding that models 8 manipulators on identity coordinates.
package fake

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/virtualbrainlab/ephys-link/internal/binding"
	"github.com/virtualbrainlab/ephys-link/internal/brokererr"
	"github.com/virtualbrainlab/ephys-link/internal/coord"
)

const manipulatorCount = 8

// settleDelay simulates the vendor SDK taking a moment to report its
// move-finished event, long enough for a concurrent Stop to interrupt it.
const settleDelay = 20 * time.Millisecond

// fixedAngles mirrors the eight canned orientations the reference fixture
// reports, one per manipulator index.
var fixedAngles = [manipulatorCount]coord.Vec3{
	{Yaw: 90, Pitch: 60, Roll: 0},
	{Yaw: -90, Pitch: 60, Roll: 0},
	{Yaw: 180, Pitch: 60, Roll: 0},
	{Yaw: 0, Pitch: 60, Roll: 0},
	{Yaw: 45, Pitch: 30, Roll: 0},
	{Yaw: -45, Pitch: 30, Roll: 0},
	{Yaw: 135, Pitch: 30, Roll: 0},
	{Yaw: -135, Pitch: 30, Roll: 0},
}

// Binding is a Blocking-SDK family reference implementation: moves settle
// after settleDelay since there is no hardware to wait on.
type Binding struct {
	mu        sync.Mutex
	positions [manipulatorCount]coord.Vec4
}

// New builds a fake binding with every manipulator at the origin.
func New() *Binding {
	return &Binding{}
}

func (b *Binding) DisplayName() string    { return "Fake Manipulator" }
func (b *Binding) CLIName() string        { return "fake" }
func (b *Binding) Family() binding.Family { return binding.BlockingSDK }

func (b *Binding) GetManipulators(ctx context.Context) ([]string, error) {
	ids := make([]string, manipulatorCount)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	return ids, nil
}

func (b *Binding) GetAxesCount() int         { return 4 }
func (b *Binding) GetDimensions() coord.Vec4 { return coord.Vec4{X: 20, Y: 20, Z: 20, W: 20} }

func (b *Binding) index(id string) (int, error) {
	i, err := strconv.Atoi(id)
	if err != nil || i < 0 || i >= manipulatorCount {
		return 0, brokererr.New(brokererr.InvalidID, id)
	}
	return i, nil
}

func (b *Binding) GetPosition(ctx context.Context, id string) (coord.Vec4, error) {
	i, err := b.index(id)
	if err != nil {
		return coord.Vec4{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[i], nil
}

func (b *Binding) GetAngles(ctx context.Context, id string) (coord.Vec3, error) {
	i, err := b.index(id)
	if err != nil {
		return coord.Vec3{}, err
	}
	return fixedAngles[i], nil
}

func (b *Binding) GetShankCount(ctx context.Context, id string) (int, error) {
	if _, err := b.index(id); err != nil {
		return 0, err
	}
	return 1, nil
}

func (b *Binding) GetMovementTolerance() float64 { return 0.001 }

// SetPosition hands target to a goroutine that simulates a vendor SDK
// completion event after settleDelay, and waits on it. A Stop-triggered
// ctx cancellation wins the race instead, leaving the position
// uncommitted and reporting the move as interrupted the way a real SDK's
// "movement.interrupted" flag would.
func (b *Binding) SetPosition(ctx context.Context, id string, target coord.Vec4, speed float64) (coord.Vec4, error) {
	i, err := b.index(id)
	if err != nil {
		return coord.Vec4{}, err
	}

	done := make(chan struct{})
	go func() {
		time.Sleep(settleDelay)
		close(done)
	}()

	select {
	case <-ctx.Done():
		return coord.Vec4{}, brokererr.New(brokererr.MovementInterrupted, id)
	case <-done:
		b.mu.Lock()
		defer b.mu.Unlock()
		b.positions[i] = target
		return target, nil
	}
}

// SetDepth is the W-axis-only counterpart of SetPosition, interruptible
// the same way.
func (b *Binding) SetDepth(ctx context.Context, id string, depth, speed float64) (float64, error) {
	i, err := b.index(id)
	if err != nil {
		return 0, err
	}

	done := make(chan struct{})
	go func() {
		time.Sleep(settleDelay)
		close(done)
	}()

	select {
	case <-ctx.Done():
		return 0, brokererr.New(brokererr.MovementInterrupted, id)
	case <-done:
		b.mu.Lock()
		defer b.mu.Unlock()
		b.positions[i] = b.positions[i].WithW(depth)
		return depth, nil
	}
}

func (b *Binding) Stop(ctx context.Context, id string) error {
	_, err := b.index(id)
	return err
}

// Calibrate is an unconditional no-op bypass; the fake binding has no
// calibration concept.
func (b *Binding) Calibrate(ctx context.Context, id string) error {
	_, err := b.index(id)
	return err
}

// PlatformToUnified and UnifiedToPlatform are identity: the fake binding
// has no native axis convention to correct for.
func (b *Binding) PlatformToUnified(v coord.Vec4) coord.Vec4 { return v }
func (b *Binding) UnifiedToPlatform(v coord.Vec4) coord.Vec4 { return v }

func (b *Binding) ValidID(id string) bool {
	_, err := b.index(id)
	return err == nil
}
