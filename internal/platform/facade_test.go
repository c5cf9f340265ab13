package platform

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/virtualbrainlab/ephys-link/internal/bindings/fake"
	"github.com/virtualbrainlab/ephys-link/internal/coord"
)

func TestSingleLinearMove(t *testing.T) {
	f := New(fake.New(), nil)
	require.NoError(t, f.Register(context.Background(), "1"))

	state := f.SetCanWrite(context.Background(), SetCanWriteRequest{ManipulatorID: "1", CanWrite: true})
	assert.Empty(t, state.Error)

	resp := f.SetPosition(context.Background(), SetPositionRequest{
		ManipulatorID: "1",
		Position:      coord.Vec4{X: 1, Y: 2, Z: 3, W: 4},
		Speed:         1,
	})
	assert.Empty(t, resp.Error)
	assert.Equal(t, coord.Vec4{X: 1, Y: 2, Z: 3, W: 4}, resp.Position)
}

func TestInsideBrainRestrictsToDepthAxis(t *testing.T) {
	f := New(fake.New(), nil)
	require.NoError(t, f.Register(context.Background(), "1"))
	f.SetCanWrite(context.Background(), SetCanWriteRequest{ManipulatorID: "1", CanWrite: true})

	start := f.SetPosition(context.Background(), SetPositionRequest{
		ManipulatorID: "1", Position: coord.Vec4{X: 5, Y: 5, Z: 5, W: 5}, Speed: 1,
	})
	require.Empty(t, start.Error)

	insideResp := f.SetInsideBrain(context.Background(), SetInsideBrainRequest{ManipulatorID: "1", Inside: true})
	require.Empty(t, insideResp.Error)

	resp := f.SetPosition(context.Background(), SetPositionRequest{
		ManipulatorID: "1", Position: coord.Vec4{X: 10, Y: 10, Z: 10, W: 7}, Speed: 1,
	})
	assert.Empty(t, resp.Error)
	assert.Equal(t, coord.Vec4{X: 5, Y: 5, Z: 5, W: 7}, resp.Position)
}

func TestLeaseExpiryDisablesWrite(t *testing.T) {
	var mu sync.Mutex
	var notified []string
	f := New(fake.New(), func(id string) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, id)
	})
	require.NoError(t, f.Register(context.Background(), "1"))

	state := f.SetCanWrite(context.Background(), SetCanWriteRequest{
		ManipulatorID: "1", CanWrite: true, Hours: (20 * time.Millisecond).Hours(),
	})
	require.Empty(t, state.Error)

	ok := f.SetPosition(context.Background(), SetPositionRequest{ManipulatorID: "1", Position: coord.Vec4{X: 1}, Speed: 1})
	require.Empty(t, ok.Error)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notified) == 1 && notified[0] == "1"
	}, time.Second, 5*time.Millisecond)

	after := f.SetPosition(context.Background(), SetPositionRequest{ManipulatorID: "1", Position: coord.Vec4{X: 2}, Speed: 1})
	assert.Equal(t, "Write disabled", after.Error)
}

func TestStopClearsLease(t *testing.T) {
	f := New(fake.New(), nil)
	require.NoError(t, f.Register(context.Background(), "1"))
	f.SetCanWrite(context.Background(), SetCanWriteRequest{ManipulatorID: "1", CanWrite: true})

	require.NoError(t, f.Stop(context.Background(), "1"))

	after := f.SetPosition(context.Background(), SetPositionRequest{ManipulatorID: "1", Position: coord.Vec4{X: 1}, Speed: 1})
	assert.Equal(t, "Write disabled", after.Error)
}

func TestStopInterruptsARealInFlightMove(t *testing.T) {
	f := New(fake.New(), nil)
	require.NoError(t, f.Register(context.Background(), "1"))
	f.SetCanWrite(context.Background(), SetCanWriteRequest{ManipulatorID: "1", CanWrite: true})

	respCh := make(chan PositionResponse, 1)
	go func() {
		respCh <- f.SetPosition(context.Background(), SetPositionRequest{
			ManipulatorID: "1", Position: coord.Vec4{X: 9, Y: 9, Z: 9, W: 9}, Speed: 1,
		})
	}()

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, f.Stop(context.Background(), "1"))

	resp := <-respCh
	assert.Equal(t, "Movement interrupted: 1", resp.Error)

	pos := f.GetPosition(context.Background(), "1")
	assert.Equal(t, coord.Vec4{}, pos.Position, "interrupted move never reached its target")
}

func TestSessionResetClearsRegistry(t *testing.T) {
	f := New(fake.New(), nil)
	require.NoError(t, f.Register(context.Background(), "1"))
	f.Reset(context.Background())

	_, err := f.registry.Get("1")
	assert.Error(t, err)
}

func TestGetManipulatorsListsBindingManipulators(t *testing.T) {
	f := New(fake.New(), nil)
	resp := f.GetManipulators(context.Background())
	assert.Empty(t, resp.Error)
	assert.Len(t, resp.Manipulators, 8)
}
