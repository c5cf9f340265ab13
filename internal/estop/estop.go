// Package estop implements the emergency-stop watcher (component C8): an
// independent reader over a serial-line-equivalent byte stream that
// triggers a global stop_all on any received line, regardless of client
// session state. No serial-port library appears anywhere in the example
// corpus this broker was grounded on, so the watcher is written against
// the generic io.Reader a *serial.Port (or any other byte stream) already
// satisfies, rather than a named third-party serial package.
package estop

import (
	"bufio"
	"context"
	"io"
	"log/slog"
)

// StopAllFunc is called once per received line.
type StopAllFunc func(ctx context.Context)

// Watcher owns a byte stream and watches it on its own goroutine.
type Watcher struct {
	source io.Reader
	closer io.Closer
	stopAll StopAllFunc
	log     *slog.Logger

	done chan struct{}
}

// New builds a watcher over source. If source also implements io.Closer,
// Run closes it when its ctx is cancelled to unblock the read loop;
// otherwise Run returns at the next line or end of stream after ctx is
// cancelled, without triggering a stop for that line.
func New(source io.Reader, stopAll StopAllFunc, log *slog.Logger) *Watcher {
	w := &Watcher{source: source, stopAll: stopAll, log: log, done: make(chan struct{})}
	if c, ok := source.(io.Closer); ok {
		w.closer = c
	}
	return w
}

// Run blocks reading lines from the source until ctx is cancelled or the
// stream closes. Each line triggers stop_all. Run is meant to be started
// on its own goroutine; it does not return until the stream ends.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)

	go func() {
		<-ctx.Done()
		if w.closer != nil {
			_ = w.closer.Close()
		}
	}()

	scanner := bufio.NewScanner(w.source)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		w.log.Info("emergency stop triggered")
		w.stopAll(ctx)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		w.log.Warn("emergency stop watcher stream ended with error", "error", err)
	}
}

// Done is closed once Run has returned.
func (w *Watcher) Done() <-chan struct{} { return w.done }
