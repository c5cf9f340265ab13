// Package transport wires the facade and session gate onto a
// Socket.IO-compatible bidirectional event transport (component D1,
// wire protocol §6.1). Every handler below is registered as an ack
// callback: its return value is sent straight back to the caller as the
// event's response.
package transport

import (
	"context"
	"log/slog"
	"net/http"

	socketio "github.com/googollee/go-socket.io"

	"github.com/go-playground/validator/v10"
	"github.com/virtualbrainlab/ephys-link/internal/brokererr"
	"github.com/virtualbrainlab/ephys-link/internal/platform"
	"github.com/virtualbrainlab/ephys-link/internal/session"
)

const version = "2.0.0"

// Server owns the Socket.IO server and mounts it under /socket.io/.
type Server struct {
	io       *socketio.Server
	facade   *platform.Facade
	gate     *session.Gate
	validate *validator.Validate
	log      *slog.Logger
}

// New builds a Server, registering every wire-protocol event against
// facade and gate. Call Mux to get the HTTP handler to serve, and Serve
// to start the event loop.
func New(facade *platform.Facade, gate *session.Gate, log *slog.Logger) *Server {
	s := &Server{
		io:       socketio.NewServer(nil),
		facade:   facade,
		gate:     gate,
		validate: validator.New(),
		log:      log,
	}
	s.register()
	return s
}

// idRequest is the common shape of events keyed by a bare manipulator id.
type idRequest struct {
	ID string `json:"id"`
}

func (s *Server) register() {
	s.io.OnConnect("/", func(c socketio.Conn) error {
		if !s.gate.Connect(c.ID()) {
			s.log.Warn("connection refused: client already connected", "sid", c.ID())
			return errRefused
		}
		return nil
	})

	s.io.OnDisconnect("/", func(c socketio.Conn, reason string) {
		s.gate.Disconnect(context.Background(), c.ID())
	})

	s.io.OnError("/", func(c socketio.Conn, err error) {
		s.log.Error("socket error", "sid", connID(c), "error", err)
	})

	s.io.OnEvent("/", "get_version", func(c socketio.Conn) string {
		return version
	})

	s.io.OnEvent("/", "get_platform_info", func(c socketio.Conn) platform.PlatformInfoResponse {
		return s.facade.GetPlatformInfo()
	})

	s.io.OnEvent("/", "get_manipulators", func(c socketio.Conn) platform.ManipulatorsResponse {
		return s.facade.GetManipulators(context.Background())
	})

	s.io.OnEvent("/", "register_manipulator", func(c socketio.Conn, id string) string {
		if err := s.facade.Register(context.Background(), id); err != nil {
			return err.Error()
		}
		return ""
	})

	s.io.OnEvent("/", "unregister_manipulator", func(c socketio.Conn, id string) string {
		if err := s.facade.Unregister(context.Background(), id); err != nil {
			return err.Error()
		}
		return ""
	})

	s.io.OnEvent("/", "get_position", func(c socketio.Conn, id string) platform.PositionResponse {
		return s.facade.GetPosition(context.Background(), id)
	})

	s.io.OnEvent("/", "get_angles", func(c socketio.Conn, id string) platform.AnglesResponse {
		return s.facade.GetAngles(context.Background(), id)
	})

	s.io.OnEvent("/", "get_shank_count", func(c socketio.Conn, id string) platform.ShankCountResponse {
		return s.facade.GetShankCount(context.Background(), id)
	})

	s.io.OnEvent("/", "set_position", func(c socketio.Conn, req platform.SetPositionRequest) platform.PositionResponse {
		if err := s.validate.Struct(req); err != nil {
			return platform.PositionResponse{Error: brokererr.New(brokererr.InvalidRequest, err.Error()).Error()}
		}
		return s.facade.SetPosition(context.Background(), req)
	})

	s.io.OnEvent("/", "set_depth", func(c socketio.Conn, req platform.SetDepthRequest) platform.DepthResponse {
		if err := s.validate.Struct(req); err != nil {
			return platform.DepthResponse{Error: brokererr.New(brokererr.InvalidRequest, err.Error()).Error()}
		}
		return s.facade.SetDepth(context.Background(), req)
	})

	s.io.OnEvent("/", "set_inside_brain", func(c socketio.Conn, req platform.SetInsideBrainRequest) platform.StateResponse {
		if err := s.validate.Struct(req); err != nil {
			return platform.StateResponse{Error: brokererr.New(brokererr.InvalidRequest, err.Error()).Error()}
		}
		return s.facade.SetInsideBrain(context.Background(), req)
	})

	s.io.OnEvent("/", "set_can_write", func(c socketio.Conn, req platform.SetCanWriteRequest) platform.StateResponse {
		if err := s.validate.Struct(req); err != nil {
			return platform.StateResponse{Error: brokererr.New(brokererr.InvalidRequest, err.Error()).Error()}
		}
		return s.facade.SetCanWrite(context.Background(), req)
	})

	s.io.OnEvent("/", "calibrate", func(c socketio.Conn, id string) string {
		if err := s.facade.Calibrate(context.Background(), id); err != nil {
			return err.Error()
		}
		return ""
	})

	s.io.OnEvent("/", "stop", func(c socketio.Conn, id string) string {
		if err := s.facade.Stop(context.Background(), id); err != nil {
			return err.Error()
		}
		return ""
	})

	s.io.OnEvent("/", "stop_all", func(c socketio.Conn) platform.StateResponse {
		return s.facade.StopAll(context.Background())
	})
}

// EmitWriteDisabled pushes the server-emitted write_disabled event to the
// current session. Wired as the lease manager's expiry notifier.
func (s *Server) EmitWriteDisabled(id string) {
	s.io.BroadcastToNamespace("/", "write_disabled", id)
}

// Mux returns the HTTP handler to mount at /socket.io/.
func (s *Server) Mux() http.Handler { return s.io }

// Serve starts the Socket.IO event loop. It blocks until the underlying
// server stops; callers typically run it on its own goroutine.
func (s *Server) Serve() error { return s.io.Serve() }

// Close stops the event loop.
func (s *Server) Close() error { return s.io.Close() }

func connID(c socketio.Conn) string {
	if c == nil {
		return ""
	}
	return c.ID()
}

var errRefused = brokererr.New(brokererr.NotConnected, "a client is already connected")
