package pathfindermpm

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/virtualbrainlab/ephys-link/internal/brokererr"
	"github.com/virtualbrainlab/ephys-link/internal/coord"
)

// fixtureServer is a minimal stand-in for the Pathfinder MPM HTTP
// controller: GET / reports ProbeArray, PUT / mutates Stage_X/Y/Z so the
// polling loop observes forward progress the way real hardware would.
type fixtureServer struct {
	mu                     sync.Mutex
	stageX, stageY, stageZ float64
	posteriorAngle         float64
	polar, pitch           float64
	shankCount             int
	stopped                bool
	ignoreMotion           bool
}

func (f *fixtureServer) handler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		f.mu.Lock()
		resp := probeArrayResponse{
			ProbeArray: []probe{{
				ID: "A", StageX: f.stageX, StageY: f.stageY, StageZ: f.stageZ,
				Polar: f.polar, Pitch: f.pitch, ShankOrientation: 5, ShankCount: f.shankCount,
			}},
			PosteriorAngle: f.posteriorAngle,
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(resp)
	case http.MethodPut:
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		f.mu.Lock()
		switch payload["PutId"] {
		case "ProbeMotion":
			if !f.ignoreMotion {
				f.stageX = payload["X"].(float64)
				f.stageY = payload["Y"].(float64)
				f.stageZ = payload["Z"].(float64)
			}
		case "ProbeStop":
			f.stopped = true
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func startFixture(t *testing.T) (*fixtureServer, int) {
	t.Helper()
	f := &fixtureServer{shankCount: 1}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)

	addr := srv.Listener.Addr().(*net.TCPAddr)
	return f, addr.Port
}

func TestGetManipulatorsAndPosition(t *testing.T) {
	f, port := startFixture(t)
	f.stageX, f.stageY, f.stageZ = 1, 2, 3

	b := New(port)
	ids, err := b.GetManipulators(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids)

	pos, err := b.GetPosition(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 1.0, pos.X)
	assert.Equal(t, 2.0, pos.Y)
	assert.Equal(t, 3.0, pos.Z)
	assert.Equal(t, 3.0, pos.W, "W mirrors Stage_Z on this platform")
}

func TestValidIDAlphabetHas40Entries(t *testing.T) {
	b := New(0)
	assert.True(t, b.ValidID("A"))
	assert.True(t, b.ValidID("Z"))
	assert.True(t, b.ValidID("AA"))
	assert.True(t, b.ValidID("AN"))
	assert.False(t, b.ValidID("AO"))
	assert.Len(t, validIDs, 40)
}

func TestPlatformUnifiedConversionIsSelfInverseWithinDimensions(t *testing.T) {
	b := New(0)
	v := coord.Vec4{X: 3, Y: 4, Z: 5, W: 6}
	platform := b.UnifiedToPlatform(v)
	back := b.PlatformToUnified(platform)
	assert.InDelta(t, v.X, back.X, 1e-9)
	assert.InDelta(t, v.Y, back.Y, 1e-9)
	assert.InDelta(t, v.Z, back.Z, 1e-9)
	assert.InDelta(t, v.W, back.W, 1e-9)
}

func TestSetPositionCancellationReturnsMovementCancelled(t *testing.T) {
	f, port := startFixture(t)
	f.ignoreMotion = true
	b := New(port)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(150*time.Millisecond, cancel)

	final, err := b.SetPosition(ctx, "A", coord.Vec4{X: 1, Y: 2, Z: 3}, 1)
	require.Error(t, err)
	assert.Equal(t, brokererr.MovementCancelled, brokererr.CodeOf(err))
	assert.Equal(t, 0.0, final.X, "stage never moved under ignoreMotion")
}

func TestSetPositionPollsUntilReached(t *testing.T) {
	_, port := startFixture(t)
	b := New(port)

	start := time.Now()
	final, err := b.SetPosition(context.Background(), "A", coord.Vec4{X: 1, Y: 2, Z: 3}, 1)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.InDelta(t, 1.0, final.X, 0.01)
	assert.InDelta(t, 2.0, final.Y, 0.01)
	assert.InDelta(t, 3.0, final.Z, 0.01)
}
