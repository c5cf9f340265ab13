// Package pathfindermpm implements the Polling-HTTP family binding for
// New Scale's Pathfinder MPM HTTP controller. It speaks the vendor HTTP
// sub-protocol (GET/PUT against a single "/" endpoint) and delegates
// move-completion detection to the shared polling engine.
package pathfindermpm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/virtualbrainlab/ephys-link/internal/binding"
	"github.com/virtualbrainlab/ephys-link/internal/brokererr"
	"github.com/virtualbrainlab/ephys-link/internal/coord"
	"github.com/virtualbrainlab/ephys-link/internal/polling"
)

// validIDs is the fixed 40-slot probe-id alphabet the MPM controller
// addresses probes by: A through Z, then AA through AN.
var validIDs = func() []string {
	ids := make([]string, 0, 40)
	for c := 'A'; c <= 'Z'; c++ {
		ids = append(ids, string(c))
	}
	for c := 'A'; c <= 'N'; c++ {
		ids = append(ids, "A"+string(c))
	}
	return ids
}()

var idIndex = func() map[string]int {
	m := make(map[string]int, len(validIDs))
	for i, id := range validIDs {
		m[id] = i
	}
	return m
}()

const (
	pollInterval        = 100 * time.Millisecond
	unchangedCounterLim = 10
	coarseSpeedThresh   = 0.1
	insertionSpeedLimit = 9000.0
	movementTolerance   = 0.01
)

// probe is one element of the vendor's ProbeArray.
type probe struct {
	ID               string  `json:"Id"`
	StageX           float64 `json:"Stage_X"`
	StageY           float64 `json:"Stage_Y"`
	StageZ           float64 `json:"Stage_Z"`
	Polar            float64 `json:"Polar"`
	Pitch            float64 `json:"Pitch"`
	ShankOrientation float64 `json:"ShankOrientation"`
	ShankCount       int     `json:"ShankCount"`
}

type probeArrayResponse struct {
	ProbeArray     []probe `json:"ProbeArray"`
	PosteriorAngle float64 `json:"PosteriorAngle"`
}

// Binding talks to a Pathfinder MPM HTTP controller running on localhost.
type Binding struct {
	client *fasthttp.Client
	url    string
}

// New builds a binding addressing the MPM controller at
// http://localhost:<port>/.
func New(port int) *Binding {
	return &Binding{
		client: &fasthttp.Client{},
		url:    fmt.Sprintf("http://localhost:%d/", port),
	}
}

func (b *Binding) DisplayName() string    { return "Pathfinder MPM Control v2.8.8+" }
func (b *Binding) CLIName() string        { return "pathfinder-mpm" }
func (b *Binding) Family() binding.Family { return binding.PollingHTTP }
func (b *Binding) GetAxesCount() int      { return 3 }
func (b *Binding) GetDimensions() coord.Vec4 {
	return coord.Vec4{X: 15, Y: 15, Z: 15, W: 15}
}
func (b *Binding) GetMovementTolerance() float64 { return movementTolerance }

func (b *Binding) ValidID(id string) bool {
	_, ok := idIndex[id]
	return ok
}

func (b *Binding) query(ctx context.Context) (*probeArrayResponse, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(b.url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := b.client.Do(req, resp); err != nil {
		return nil, brokererr.New(brokererr.TransportError, err.Error())
	}

	var parsed probeArrayResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, brokererr.New(brokererr.ProtocolError, err.Error())
	}
	return &parsed, nil
}

func (b *Binding) probeData(ctx context.Context, id string) (*probe, error) {
	data, err := b.query(ctx)
	if err != nil {
		return nil, err
	}
	for i := range data.ProbeArray {
		if data.ProbeArray[i].ID == id {
			return &data.ProbeArray[i], nil
		}
	}
	return nil, brokererr.New(brokererr.InvalidID, id)
}

func (b *Binding) put(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return brokererr.Internalf("encoding PUT body: %v", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(b.url)
	req.Header.SetMethod(fasthttp.MethodPut)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := b.client.Do(req, resp); err != nil {
		return brokererr.New(brokererr.TransportError, err.Error())
	}
	return nil
}

func (b *Binding) GetManipulators(ctx context.Context) ([]string, error) {
	data, err := b.query(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(data.ProbeArray))
	for i, p := range data.ProbeArray {
		ids[i] = p.ID
	}
	return ids, nil
}

// GetPosition reports Stage_Z duplicated into W: the probe shaft runs
// along the stage's Z axis on this platform.
func (b *Binding) GetPosition(ctx context.Context, id string) (coord.Vec4, error) {
	p, err := b.probeData(ctx, id)
	if err != nil {
		return coord.Vec4{}, err
	}
	return coord.Vec4{X: p.StageX, Y: p.StageY, Z: p.StageZ, W: p.StageZ}, nil
}

func (b *Binding) GetAngles(ctx context.Context, id string) (coord.Vec3, error) {
	p, err := b.probeData(ctx, id)
	if err != nil {
		return coord.Vec3{}, err
	}
	data, err := b.query(ctx)
	if err != nil {
		return coord.Vec3{}, err
	}
	adjusted := p.Polar - data.PosteriorAngle
	if adjusted <= 0 {
		adjusted += 360
	}
	return coord.Vec3{Yaw: adjusted, Pitch: p.Pitch, Roll: p.ShankOrientation}, nil
}

func (b *Binding) GetShankCount(ctx context.Context, id string) (int, error) {
	p, err := b.probeData(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.ShankCount, nil
}

func closeXYZ(a, b coord.Vec4, tol float64) bool {
	return coord.CloseAxes(a, b, tol, 0, 1, 2)
}

func (b *Binding) SetPosition(ctx context.Context, id string, target coord.Vec4, speed float64) (coord.Vec4, error) {
	idx, ok := idIndex[id]
	if !ok {
		return coord.Vec4{}, brokererr.New(brokererr.InvalidID, id)
	}

	stepMode := 0
	if speed <= coarseSpeedThresh {
		stepMode = 1
	}
	if err := b.put(ctx, map[string]any{
		"PutId":    "ProbeStepMode",
		"Probe":    idx,
		"StepMode": stepMode,
	}); err != nil {
		return coord.Vec4{}, err
	}

	if err := b.put(ctx, map[string]any{
		"PutId":        "ProbeMotion",
		"Probe":        idx,
		"Absolute":     1,
		"Stereotactic": 0,
		"AxisMask":     7,
		"X":            target.X,
		"Y":            target.Y,
		"Z":            target.Z,
	}); err != nil {
		return coord.Vec4{}, err
	}

	sample := func(ctx context.Context) (coord.Vec4, error) { return b.GetPosition(ctx, id) }
	final, reason, err := polling.Run(ctx, target, sample, closeXYZ, polling.Params{
		PollInterval: pollInterval, UnchangedLimit: unchangedCounterLim, Tolerance: movementTolerance,
	})
	if err != nil {
		return final, err
	}
	if reason == polling.Cancelled {
		return final, brokererr.New(brokererr.MovementCancelled, id)
	}
	return final, nil
}

func (b *Binding) SetDepth(ctx context.Context, id string, depth, speed float64) (float64, error) {
	idx, ok := idIndex[id]
	if !ok {
		return 0, brokererr.New(brokererr.InvalidID, id)
	}

	current, err := b.GetPosition(ctx, id)
	if err != nil {
		return 0, err
	}

	rate := coord.MMToUM(speed) * 60
	if rate > insertionSpeedLimit {
		rate = insertionSpeedLimit
	}
	if err := b.put(ctx, map[string]any{
		"PutId":    "ProbeInsertion",
		"Probe":    idx,
		"Distance": coord.MMToUM(current.W - depth),
		"Rate":     rate,
	}); err != nil {
		return 0, err
	}

	sample := func(ctx context.Context) (coord.Vec4, error) { return b.GetPosition(ctx, id) }
	final, reason, err := polling.Run(ctx, coord.Vec4{W: depth}, sample, polling.CloseDepthAxis, polling.Params{
		PollInterval: pollInterval, UnchangedLimit: unchangedCounterLim, Tolerance: movementTolerance,
	})
	if err != nil {
		return 0, err
	}
	if reason == polling.Cancelled {
		return final.W, brokererr.New(brokererr.MovementCancelled, id)
	}
	return final.W, nil
}

func (b *Binding) Stop(ctx context.Context, id string) error {
	idx, ok := idIndex[id]
	if !ok {
		return brokererr.New(brokererr.InvalidID, id)
	}
	return b.put(ctx, map[string]any{"PutId": "ProbeStop", "Probe": idx})
}

// Calibrate is an unconditional no-op bypass; this platform self-homes.
func (b *Binding) Calibrate(ctx context.Context, id string) error {
	if !b.ValidID(id) {
		return brokererr.New(brokererr.InvalidID, id)
	}
	return nil
}

// PlatformToUnified implements the platform's documented convention:
// unified +x <- -platform x, +y <- platform z, +z <- platform y,
// +w <- -platform w.
func (b *Binding) PlatformToUnified(p coord.Vec4) coord.Vec4 {
	dim := b.GetDimensions()
	return coord.Vec4{X: dim.X - p.X, Y: p.Z, Z: p.Y, W: dim.W - p.W}
}

// UnifiedToPlatform is the same permutation, since it is its own inverse
// within the dimension box.
func (b *Binding) UnifiedToPlatform(u coord.Vec4) coord.Vec4 {
	dim := b.GetDimensions()
	return coord.Vec4{X: dim.X - u.X, Y: u.Z, Z: u.Y, W: dim.W - u.W}
}
