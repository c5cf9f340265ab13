package arbiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/virtualbrainlab/ephys-link/internal/binding"
	"github.com/virtualbrainlab/ephys-link/internal/brokererr"
	"github.com/virtualbrainlab/ephys-link/internal/coord"
	"github.com/virtualbrainlab/ephys-link/internal/lease"
	"github.com/virtualbrainlab/ephys-link/internal/registry"
)

// blockingBinding lets tests control exactly when a move completes or
// observes cancellation, and records the position last reported.
type blockingBinding struct {
	valid    map[string]bool
	position coord.Vec4
	release  chan struct{}
}

func newBlockingBinding(ids ...string) *blockingBinding {
	valid := make(map[string]bool)
	for _, id := range ids {
		valid[id] = true
	}
	return &blockingBinding{valid: valid, release: make(chan struct{})}
}

func (b *blockingBinding) DisplayName() string   { return "blocking" }
func (b *blockingBinding) CLIName() string       { return "blocking" }
func (b *blockingBinding) Family() binding.Family { return binding.BlockingSDK }
func (b *blockingBinding) GetManipulators(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(b.valid))
	for id := range b.valid {
		ids = append(ids, id)
	}
	return ids, nil
}
func (b *blockingBinding) GetAxesCount() int         { return 4 }
func (b *blockingBinding) GetDimensions() coord.Vec4 { return coord.Vec4{X: 20, Y: 20, Z: 20, W: 20} }
func (b *blockingBinding) GetPosition(ctx context.Context, id string) (coord.Vec4, error) {
	return b.position, nil
}
func (b *blockingBinding) GetAngles(ctx context.Context, id string) (coord.Vec3, error) {
	return coord.Vec3{}, nil
}
func (b *blockingBinding) GetShankCount(ctx context.Context, id string) (int, error) { return 1, nil }
func (b *blockingBinding) GetMovementTolerance() float64                            { return 0.01 }
func (b *blockingBinding) SetPosition(ctx context.Context, id string, target coord.Vec4, speed float64) (coord.Vec4, error) {
	select {
	case <-b.release:
		b.position = target
		return target, nil
	case <-ctx.Done():
		return b.position, brokererr.New(brokererr.MovementCancelled, id)
	}
}
func (b *blockingBinding) SetDepth(ctx context.Context, id string, depth, speed float64) (float64, error) {
	select {
	case <-b.release:
		b.position = b.position.WithW(depth)
		return depth, nil
	case <-ctx.Done():
		return b.position.W, brokererr.New(brokererr.MovementCancelled, id)
	}
}
func (b *blockingBinding) Stop(ctx context.Context, id string) error      { return nil }
func (b *blockingBinding) Calibrate(ctx context.Context, id string) error { return nil }
func (b *blockingBinding) PlatformToUnified(v coord.Vec4) coord.Vec4      { return v }
func (b *blockingBinding) UnifiedToPlatform(v coord.Vec4) coord.Vec4      { return v }
func (b *blockingBinding) ValidID(id string) bool                        { return b.valid[id] }

func setup(t *testing.T, ids ...string) (*Arbiter, *blockingBinding, *registry.Registry, *lease.Manager) {
	t.Helper()
	bind := newBlockingBinding(ids...)
	reg := registry.New(bind)
	leaseMgr := lease.New(nil)
	for _, id := range ids {
		require.NoError(t, reg.Register(context.Background(), id))
		leaseMgr.Grant(id, 0)
	}
	return New(bind, reg, leaseMgr), bind, reg, leaseMgr
}

func TestSetPositionRejectsWithoutLease(t *testing.T) {
	bind := newBlockingBinding("1")
	reg := registry.New(bind)
	require.NoError(t, reg.Register(context.Background(), "1"))
	leaseMgr := lease.New(nil)
	a := New(bind, reg, leaseMgr)

	_, err := a.SetPosition(context.Background(), "1", coord.Vec4{X: 1}, 1)
	require.Error(t, err)
	assert.Equal(t, brokererr.WriteDisabled, brokererr.CodeOf(err))
}

func TestSetPositionRejectsNonPositiveSpeed(t *testing.T) {
	a, _, _, _ := setup(t, "1")
	_, err := a.SetPosition(context.Background(), "1", coord.Vec4{X: 1}, 0)
	require.Error(t, err)
	assert.Equal(t, brokererr.InvalidRequest, brokererr.CodeOf(err))
}

func TestInsideBrainRestrictsToDepthAxis(t *testing.T) {
	a, bind, reg, _ := setup(t, "1")
	bind.position = coord.Vec4{X: 5, Y: 5, Z: 5, W: 5}
	require.NoError(t, reg.SetInsideBrain("1", true))

	close(bind.release)
	got, err := a.SetPosition(context.Background(), "1", coord.Vec4{X: 10, Y: 10, Z: 10, W: 7}, 1)
	require.NoError(t, err)
	assert.Equal(t, coord.Vec4{X: 5, Y: 5, Z: 5, W: 7}, got)
}

func TestSecondMoveQueuesBehindFirst(t *testing.T) {
	a, bind, _, _ := setup(t, "1")

	firstDone := make(chan struct{})
	go func() {
		_, _ = a.SetPosition(context.Background(), "1", coord.Vec4{X: 1}, 1)
		close(firstDone)
	}()

	// Give the first call time to become in-flight before the second
	// arrives, so it observably queues rather than races to be first.
	time.Sleep(20 * time.Millisecond)

	secondDone := make(chan struct{})
	go func() {
		_, _ = a.SetPosition(context.Background(), "1", coord.Vec4{X: 2}, 1)
		close(secondDone)
	}()

	select {
	case <-secondDone:
		t.Fatal("second move settled before first was released")
	case <-time.After(20 * time.Millisecond):
	}

	close(bind.release)
	<-firstDone
	<-secondDone
}

func TestStopCancelsInFlightAndDrainsQueueAndClearsLease(t *testing.T) {
	a, _, _, leaseMgr := setup(t, "1")

	aDone := make(chan error, 1)
	go func() {
		_, err := a.SetPosition(context.Background(), "1", coord.Vec4{X: 1}, 1)
		aDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	bDone := make(chan error, 1)
	go func() {
		_, err := a.SetPosition(context.Background(), "1", coord.Vec4{X: 2}, 1)
		bDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, a.Stop(context.Background(), "1"))

	errA := <-aDone
	errB := <-bDone
	assert.Equal(t, brokererr.MovementCancelled, brokererr.CodeOf(errA))
	assert.Equal(t, brokererr.MovementCancelled, brokererr.CodeOf(errB))
	assert.False(t, leaseMgr.CanWrite("1"))
}

func TestStopIsIdempotent(t *testing.T) {
	a, _, _, _ := setup(t, "1")
	require.NoError(t, a.Stop(context.Background(), "1"))
	require.NoError(t, a.Stop(context.Background(), "1"))
}

func TestDifferentManipulatorsProgressIndependently(t *testing.T) {
	a, bind, _, _ := setup(t, "1", "2")

	done1 := make(chan error, 1)
	go func() {
		_, err := a.SetPosition(context.Background(), "1", coord.Vec4{X: 1}, 1)
		done1 <- err
	}()
	time.Sleep(20 * time.Millisecond)

	done2 := make(chan error, 1)
	go func() {
		_, err := a.SetPosition(context.Background(), "2", coord.Vec4{X: 2}, 1)
		done2 <- err
	}()

	// The move on "2" is dispatched while the move on "1" is still
	// blocked, rather than waiting behind it.
	assert.Eventually(t, func() bool {
		p := a.proxyFor("2")
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.inFlight && p.cancel != nil
	}, time.Second, 5*time.Millisecond)

	close(bind.release)
	require.NoError(t, <-done1)
	require.NoError(t, <-done2)
}
