package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrNotFound is returned for an unknown plugin name
var ErrNotFound = errors.New("plugin not found")

// Info is a summary of a registered plugin
type Info struct {
	Name     string    `json:"name"`
	Running  bool      `json:"running"`
	Schedule string    `json:"schedule,omitempty"`
	NextRun  time.Time `json:"next_run,omitempty"`
}

// Host runs plugins and drives scheduled ones from a single cron scheduler.
// A tick that fires while the previous run of the same plugin is still
// going is skipped.
type Host struct {
	mu      sync.Mutex
	cron    *cron.Cron
	plugins map[string]Plugin
	entries map[string]cron.EntryID
	runCtx  context.Context
	started bool
	logger  *slog.Logger
}

// NewHost creates a host with an idle scheduler
func NewHost(logger *slog.Logger) *Host {
	logger = logger.With("component", "plugin_host")
	cl := cronLogger{logger: logger}

	return &Host{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		plugins: make(map[string]Plugin),
		entries: make(map[string]cron.EntryID),
		logger:  logger,
	}
}

// Register adds a plugin; names must be unique
func (h *Host) Register(p Plugin) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.plugins[p.Name()]; ok {
		return fmt.Errorf("plugin %q already registered", p.Name())
	}
	h.plugins[p.Name()] = p
	return nil
}

// Get returns a plugin by name
func (h *Host) Get(name string) (Plugin, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.plugins[name]
	return p, ok
}

// Plugins lists registered plugins sorted by name
func (h *Host) Plugins() []Info {
	h.mu.Lock()
	defer h.mu.Unlock()

	infos := make([]Info, 0, len(h.plugins))
	for name, p := range h.plugins {
		info := Info{Name: name, Running: p.State()}
		if s, ok := p.(Scheduled); ok {
			info.Schedule = s.Schedule()
		}
		if id, ok := h.entries[name]; ok {
			info.NextRun = h.cron.Entry(id).Next
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Start starts every plugin and schedules the running ones.
// Scheduled runs outlive ctx cancellation; Stop ends them.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}
	h.runCtx = context.WithoutCancel(ctx)

	var errs []error
	for name, p := range h.plugins {
		if err := p.Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to start plugin %s: %w", name, err))
			continue
		}
		if err := h.schedule(name, p); err != nil {
			errs = append(errs, err)
		}
	}

	h.cron.Start()
	h.started = true
	h.logger.Info("plugin host started", "plugins", len(h.plugins), "scheduled", len(h.entries))

	return errors.Join(errs...)
}

// Stop removes all schedules, waits for running jobs and stops every plugin
func (h *Host) Stop() error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	for name, id := range h.entries {
		h.cron.Remove(id)
		delete(h.entries, name)
	}
	h.started = false
	h.mu.Unlock()

	// Wait for in-flight runs outside the lock
	<-h.cron.Stop().Done()

	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for name, p := range h.plugins {
		if err := p.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop plugin %s: %w", name, err))
		}
	}

	h.logger.Info("plugin host stopped")
	return errors.Join(errs...)
}

// Reload asks a plugin to re-read its configuration and reschedules it
func (h *Host) Reload(ctx context.Context, name string) error {
	p, ok := h.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if r, ok := p.(Reloadable); ok {
		if err := r.Reload(ctx); err != nil {
			return fmt.Errorf("failed to reload plugin %s: %w", name, err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if id, ok := h.entries[name]; ok {
		h.cron.Remove(id)
		delete(h.entries, name)
	}
	if !h.started {
		return nil
	}

	h.logger.Info("plugin reloaded", "plugin", name, "running", p.State())
	return h.schedule(name, p)
}

// RunNow runs a scheduled plugin synchronously, outside the cron schedule
func (h *Host) RunNow(ctx context.Context, name string) error {
	p, ok := h.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s, ok := p.(Scheduled)
	if !ok {
		return fmt.Errorf("plugin %s has no scheduled job", name)
	}

	s.Run(ctx)
	return nil
}

// schedule adds a cron entry for a running scheduled plugin. h.mu must be held.
func (h *Host) schedule(name string, p Plugin) error {
	s, ok := p.(Scheduled)
	if !ok || !p.State() {
		return nil
	}

	runCtx := h.runCtx
	id, err := h.cron.AddFunc(s.Schedule(), func() { s.Run(runCtx) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for plugin %s: %w", s.Schedule(), name, err)
	}

	h.entries[name] = id
	h.logger.Debug("plugin scheduled", "plugin", name, "schedule", s.Schedule())
	return nil
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
