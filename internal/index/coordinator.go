package index

import (
	"context"
	"log/slog"
	"sync"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
	"github.com/NOVA-ALLRounder/main-sub002/internal/policy"
	"github.com/NOVA-ALLRounder/main-sub002/internal/watcher"
)

// EventSource delivers debounced file event batches.
type EventSource interface {
	Events() <-chan []watcher.FileEvent
	Errors() <-chan error
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// Runner executes the incremental runs (required).
	Runner *Runner

	// Reload re-reads configuration after a config file change and
	// returns the oracle to apply. Nil ignores config changes.
	Reload func() (policy.Oracle, error)

	// OnRun, when set, observes every run triggered by events.
	OnRun func(*RunReport, error)
}

// Coordinator turns watcher batches into incremental pipeline runs. Every
// batch triggers at most one run; the scan state decides what actually
// changed, so events only need to say that something did.
type Coordinator struct {
	cfg CoordinatorConfig

	mu   sync.Mutex
	runs int
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{cfg: cfg}
}

// Runs returns how many runs events have triggered.
func (c *Coordinator) Runs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

// HandleEvents processes one batch.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	for _, ev := range events {
		slog.Debug("watch_event",
			slog.String("path", ev.Path),
			slog.String("operation", ev.Operation.String()),
			slog.Bool("is_dir", ev.IsDir))

		if ev.Operation != watcher.OpConfigChange {
			changed = true
			continue
		}
		if c.reloadConfig(ev.Path) {
			changed = true
		}
	}
	if !changed {
		return nil
	}

	c.runs++
	report, err := c.cfg.Runner.Run(ctx, RunOptions{})
	if c.cfg.OnRun != nil {
		c.cfg.OnRun(report, err)
	}
	return err
}

// reloadConfig applies a new policy after a config write. It reports
// whether the policy changed and a rescan is due.
func (c *Coordinator) reloadConfig(path string) bool {
	if c.cfg.Reload == nil {
		slog.Info("watch_config_changed", slog.String("path", path), slog.String("note", "restart to apply"))
		return false
	}
	oracle, err := c.cfg.Reload()
	if err != nil {
		attrs := append([]slog.Attr{slog.String("path", path)}, docerrors.LogAttrs(err)...)
		slog.LogAttrs(context.Background(), slog.LevelWarn, "watch_config_reload_failed", attrs...)
		return false
	}
	c.cfg.Runner.SetOracle(oracle)
	slog.Info("watch_config_reloaded", slog.String("path", path))
	return true
}

// Watch consumes src until ctx is done or src closes. Failed runs are
// logged and watching continues.
func (c *Coordinator) Watch(ctx context.Context, src EventSource) error {
	errs := src.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-src.Events():
			if !ok {
				return nil
			}
			if err := c.HandleEvents(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.LogAttrs(ctx, slog.LevelWarn, "watch_run_failed", docerrors.LogAttrs(err)...)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}
