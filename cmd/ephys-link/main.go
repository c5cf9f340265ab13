// Command ephys-link starts the motion-control broker: it selects a
// vendor binding by --type, wires the core components (registry, lease
// manager, arbiter, facade, session gate, emergency-stop watcher) around
// it, and serves the Socket.IO wire protocol.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/virtualbrainlab/ephys-link/internal/binding"
	"github.com/virtualbrainlab/ephys-link/internal/bindings/fake"
	"github.com/virtualbrainlab/ephys-link/internal/bindings/pathfindermpm"
	"github.com/virtualbrainlab/ephys-link/internal/config"
	"github.com/virtualbrainlab/ephys-link/internal/estop"
	"github.com/virtualbrainlab/ephys-link/internal/metrics"
	"github.com/virtualbrainlab/ephys-link/internal/platform"
	"github.com/virtualbrainlab/ephys-link/internal/session"
	"github.com/virtualbrainlab/ephys-link/internal/transport"
)

var flags struct {
	cfgFile       string
	platformType  string
	debug         bool
	useProxy      bool
	proxyAddress  string
	mpmPort       int
	serial        string
	ignoreUpdates bool
	background    bool
}

func main() {
	root := &cobra.Command{
		Use:           "ephys-link",
		Short:         "Motion-control broker for electrophysiology micromanipulators",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	root.Flags().StringVar(&flags.cfgFile, "config", "", "config file path")
	root.Flags().StringVar(&flags.platformType, "type", "fake", "binding cli_name to serve (fake, pathfinder-mpm)")
	root.Flags().BoolVar(&flags.debug, "debug", false, "enable debug logging")
	root.Flags().BoolVar(&flags.useProxy, "use-proxy", false, "connect through a network proxy")
	root.Flags().StringVar(&flags.proxyAddress, "proxy-address", "", "proxy host address")
	root.Flags().IntVar(&flags.mpmPort, "mpm-port", 8080, "Pathfinder MPM HTTP controller port")
	root.Flags().StringVar(&flags.serial, "serial", "no-e-stop", `emergency-stop serial port, or "no-e-stop" to disable`)
	root.Flags().BoolVar(&flags.ignoreUpdates, "ignore-updates", false, "skip the update check on startup")
	root.Flags().BoolVar(&flags.background, "background", false, "run without an interactive console")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := config.Get(flags.cfgFile)
	cfg.Platform.Type = flags.platformType
	cfg.Platform.UseProxy = flags.useProxy
	cfg.Platform.ProxyAddress = flags.proxyAddress
	cfg.Platform.MPMPort = flags.mpmPort
	cfg.Platform.Serial = flags.serial
	cfg.Platform.IgnoreUpdates = flags.ignoreUpdates
	cfg.Platform.Background = flags.background
	cfg.Logging.Debug = flags.debug

	logLevel := slog.LevelInfo
	if cfg.Logging.Debug {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	bind, err := selectBinding(cfg.Platform.Type, cfg.Platform.MPMPort)
	if err != nil {
		return err
	}
	log.Info("selected binding", "cli_name", bind.CLIName(), "display_name", bind.DisplayName())

	m := metrics.New()

	var srv *transport.Server
	facade := platform.New(bind, func(id string) {
		m.LeaseExpiries.Inc()
		if srv != nil {
			srv.EmitWriteDisabled(id)
		}
	})
	gate := session.New(facade, log)
	srv = transport.New(facade, gate, log)

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", srv.Mux())
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Serve(); err != nil {
			log.Error("socket.io server stopped", "error", err)
		}
	}()
	defer srv.Close()

	if watcher, err := buildEstopWatcher(cfg.Platform.Serial, facade, m, log); err != nil {
		log.Warn("emergency-stop watcher disabled", "error", err)
	} else if watcher != nil {
		go watcher.Run(ctx)
	}

	go func() {
		log.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// selectBinding dispatches on --type the way the broker this replaces
// dispatches on its own platform_type string, failing closed on an
// unrecognized value.
func selectBinding(cliName string, mpmPort int) (binding.Binding, error) {
	switch cliName {
	case "fake":
		return fake.New(), nil
	case "pathfinder-mpm":
		return pathfindermpm.New(mpmPort), nil
	default:
		return nil, fmt.Errorf("unrecognized platform type %q", cliName)
	}
}

// buildEstopWatcher returns a nil watcher when serial is "no-e-stop" (or
// empty), and an error for any other value: no serial-port library is in
// this codebase's dependency surface, so no port is ever opened here.
// Wiring a real *serial.Port (or equivalent io.Reader) is a one-line
// change at the call site.
func buildEstopWatcher(serialPort string, facade *platform.Facade, m *metrics.Metrics, log *slog.Logger) (*estop.Watcher, error) {
	if serialPort == "" || serialPort == "no-e-stop" {
		return nil, nil
	}
	return nil, fmt.Errorf("serial emergency-stop port %q requires a platform-specific serial driver not wired into this build", serialPort)
}
