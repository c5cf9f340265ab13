package platform

import "github.com/virtualbrainlab/ephys-link/internal/coord"

// Every response DTO carries Error as the wire success sentinel: "" means
// success, any other value is a human-readable phrase.

type PlatformInfoResponse struct {
	Name       string     `json:"name"`
	CLIName    string     `json:"cli_name"`
	AxesCount  int        `json:"axes_count"`
	Dimensions coord.Vec4 `json:"dimensions"`
}

type ManipulatorsResponse struct {
	Manipulators []string `json:"manipulators"`
	Error        string   `json:"error"`
}

type PositionResponse struct {
	Position coord.Vec4 `json:"position"`
	Error    string     `json:"error"`
}

type AnglesResponse struct {
	Angles coord.Vec3 `json:"angles"`
	Error  string     `json:"error"`
}

type ShankCountResponse struct {
	ShankCount int    `json:"shank_count"`
	Error      string `json:"error"`
}

type SetPositionRequest struct {
	ManipulatorID string     `json:"manipulator_id" validate:"required"`
	Position      coord.Vec4 `json:"position"`
	Speed         float64    `json:"speed" validate:"required,gt=0"`
}

type DepthResponse struct {
	Depth float64 `json:"depth"`
	Error string  `json:"error"`
}

type SetDepthRequest struct {
	ManipulatorID string  `json:"manipulator_id" validate:"required"`
	Depth         float64 `json:"depth"`
	Speed         float64 `json:"speed" validate:"required,gt=0"`
}

type SetInsideBrainRequest struct {
	ManipulatorID string `json:"manipulator_id" validate:"required"`
	Inside        bool   `json:"inside"`
}

type SetCanWriteRequest struct {
	ManipulatorID string  `json:"manipulator_id" validate:"required"`
	CanWrite      bool    `json:"can_write"`
	Hours         float64 `json:"hours" validate:"gte=0"`
}

type StateResponse struct {
	State bool   `json:"state"`
	Error string `json:"error"`
}
