package config

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hakolsound/midinet/internal/logging"
	"github.com/hakolsound/midinet/internal/pipeline"
)

// DefaultPollInterval bounds how often a Watcher stats the config file for
// a changed mtime.
const DefaultPollInterval = 2 * time.Second

// Hot is the published subset of File that a Watcher keeps current:
// pipeline.stages[] and failover.*, the only sub-trees spec.md §6.2
// allows to hot-reload. Readers take a snapshot with Watcher.Load;
// the rest of File is read once at startup and never republished.
type Hot struct {
	Failover FailoverConfig
	Pipeline *pipeline.Pipeline
}

// Watcher polls a config file's mtime and republishes its hot-reload
// sub-trees through an atomic pointer on every change, the same
// read-copy-update contract internal/pipeline.Publisher already gives
// the ingress path — Run just decides when to call Store.
type Watcher struct {
	path         string
	pollInterval time.Duration
	logger       *log.Logger

	hot      atomic.Pointer[Hot]
	lastMod  time.Time
	onReload func(*Hot)
}

// NewWatcher builds a Watcher already holding initial's hot sub-trees.
// path is statted and re-parsed by Run; initial should be the File
// Load(path) just returned, so the first poll sees no change.
func NewWatcher(path string, initial *File, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.New(logging.Options{Component: "config"})
	}
	p, err := BuildPipeline(initial.Pipeline)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, pollInterval: DefaultPollInterval, logger: logger}
	w.hot.Store(&Hot{Failover: initial.Failover, Pipeline: p})
	if stat, err := os.Stat(path); err == nil {
		w.lastMod = stat.ModTime()
	}
	return w, nil
}

// WithPollInterval overrides DefaultPollInterval. Call before Run.
func (w *Watcher) WithPollInterval(d time.Duration) *Watcher {
	if d > 0 {
		w.pollInterval = d
	}
	return w
}

// OnReload registers a callback invoked with the newly published Hot
// value after each successful reload. Call before Run.
func (w *Watcher) OnReload(f func(*Hot)) *Watcher {
	w.onReload = f
	return w
}

// Load returns the currently published hot-reload sub-trees. Safe to
// call from any goroutine with no locking.
func (w *Watcher) Load() *Hot {
	return w.hot.Load()
}

// Run polls the config file's mtime every pollInterval until ctx is
// cancelled, reparsing and republishing Hot whenever the file changed.
// A reparse or rebuild failure is logged and the previous Hot value is
// kept published — a config typo must never crash a running host.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

func (w *Watcher) pollOnce() {
	stat, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn("config file stat failed, keeping last-known-good", "path", w.path, "err", err)
		return
	}
	if !stat.ModTime().After(w.lastMod) {
		return
	}

	file, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping last-known-good", "path", w.path, "err", err)
		return
	}
	p, err := BuildPipeline(file.Pipeline)
	if err != nil {
		w.logger.Warn("config reload rejected, pipeline.stages invalid", "path", w.path, "err", err)
		return
	}

	w.lastMod = stat.ModTime()
	hot := &Hot{Failover: file.Failover, Pipeline: p}
	w.hot.Store(hot)
	w.logger.Info("config hot-reloaded", "path", w.path, "stages", len(file.Pipeline.Stages))
	if w.onReload != nil {
		w.onReload(hot)
	}
}
