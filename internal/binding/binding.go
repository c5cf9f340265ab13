// Package binding defines the capability set a vendor adapter must
// satisfy (spec component C2) and the family it belongs to. Core
// components (registry, arbiter, polling engine, facade) only ever talk
// to a Binding through this interface — they never know which vendor SDK
// or HTTP controller backs it.
package binding

import (
	"context"

	"github.com/virtualbrainlab/ephys-link/internal/coord"
)

// Family distinguishes how a binding's set_position/set_depth settle.
type Family int

const (
	// BlockingSDK bindings hand the target to a native call that signals
	// completion via an event; the binding itself awaits that event.
	BlockingSDK Family = iota
	// PollingHTTP bindings issue a "begin move" HTTP request and rely on
	// the shared polling engine (internal/polling) to detect completion.
	PollingHTTP
)

// Binding is the capability set a vendor adapter must implement. All
// methods may fail with a *brokererr.Error; the facade puts any returned
// error's message into the response unchanged, and turns a panic into
// brokererr.Internal.
type Binding interface {
	DisplayName() string
	CLIName() string
	Family() Family

	GetManipulators(ctx context.Context) ([]string, error)
	GetAxesCount() int
	GetDimensions() coord.Vec4
	GetPosition(ctx context.Context, id string) (coord.Vec4, error)
	GetAngles(ctx context.Context, id string) (coord.Vec3, error)
	GetShankCount(ctx context.Context, id string) (int, error)
	GetMovementTolerance() float64

	// SetPosition moves id to target (platform space, mm) at speed
	// (mm/s), returning the final platform-space position. It must not
	// return until the binding (or the polling engine on its behalf)
	// reports completion, cancellation, or stuck-detection.
	SetPosition(ctx context.Context, id string, target coord.Vec4, speed float64) (coord.Vec4, error)
	// SetDepth is the W-axis-only counterpart of SetPosition.
	SetDepth(ctx context.Context, id string, depth, speed float64) (float64, error)
	Stop(ctx context.Context, id string) error

	// Calibrate is a no-op "bypass" for bindings that don't require
	// calibration, exposed unconditionally per the backward-compatibility
	// note in the design notes.
	Calibrate(ctx context.Context, id string) error

	PlatformToUnified(platform coord.Vec4) coord.Vec4
	UnifiedToPlatform(unified coord.Vec4) coord.Vec4

	// ValidID reports whether id is syntactically valid for this
	// binding's alphabet (numeric strings, or uppercase letter
	// combinations, depending on platform).
	ValidID(id string) bool
}
