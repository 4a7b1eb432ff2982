package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"aira/internal/logging"
	"aira/internal/workspace"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Engines  Engines
	Interval time.Duration
	Debounce time.Duration
	Logger   *log.Logger
	JSONLogs bool
}

// Manager keeps one mounted adapter per open tab.
type Manager struct {
	store   *workspace.Store
	engines Engines
	bus     *Bus
	opts    AdapterOptions
	log     *logging.StructuredLogger

	mu       sync.Mutex
	adapters map[string]*Adapter
	closed   bool
}

func NewManager(store *workspace.Store, opts ManagerOptions) *Manager {
	if opts.Engines == nil {
		opts.Engines = DefaultEngines()
	}
	slog := logging.NewStructuredLogger(opts.Logger, "editor", opts.JSONLogs)
	return &Manager{
		store:    store,
		engines:  opts.Engines,
		bus:      NewBus(),
		opts:     AdapterOptions{Interval: opts.Interval, Debounce: opts.Debounce, Logger: slog},
		log:      slog,
		adapters: make(map[string]*Adapter),
	}
}

func (m *Manager) Bus() *Bus { return m.bus }

func (m *Manager) Engines() Engines { return m.engines }

// Sync mounts an adapter for every open tab and unmounts the rest.
// It must not be called from a store subscriber; use Watch for that.
func (m *Manager) Sync() {
	st := m.store.State()
	open := make(map[string]bool, len(st.OpenTabs))
	for _, t := range st.OpenTabs {
		open[t.ID] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for id, a := range m.adapters {
		if !open[id] {
			m.unmountLocked(a)
		}
	}
	for _, t := range st.OpenTabs {
		if _, ok := m.adapters[t.ID]; ok {
			continue
		}
		f, ok := m.store.File(t.ID)
		if !ok {
			continue
		}
		a, err := m.newAdapter(f)
		if err != nil {
			m.log.WithFile(f.ID).Error("cannot mount", map[string]any{"error": err.Error()})
			continue
		}
		a.Mount()
		// Seed the baseline at mount.
		a.Sample()
		a.Start()
		m.adapters[f.ID] = a
		m.bus.register(a)
	}
}

// Watch keeps adapters in step with the store until ctx ends.
func (m *Manager) Watch(ctx context.Context) {
	signal := make(chan struct{}, 1)
	unsub := m.store.Subscribe(func(workspace.State) {
		select {
		case signal <- struct{}{}:
		default:
		}
	})
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				m.Sync()
			}
		}
	}()
	m.Sync()
}

// Dispatch sends cmd to the mounted adapter for its file. An unmounted file is
// mounted for the duration of the command and flushed on unmount.
func (m *Manager) Dispatch(ctx context.Context, cmd Command) error {
	err := m.bus.Send(ctx, cmd)
	if !errors.Is(err, ErrNotMounted) {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.adapters[cmd.Target()]; ok {
		return a.Apply(ctx, cmd)
	}
	f, ok := m.store.File(cmd.Target())
	if !ok {
		return fmt.Errorf("%w: %s", workspace.ErrUnknownFile, cmd.Target())
	}
	a, err := m.newAdapter(f)
	if err != nil {
		return err
	}
	a.Mount()
	a.Sample()
	defer a.Unmount()
	m.log.WithFile(f.ID).Debug("transient mount for command", nil)
	return a.Apply(ctx, cmd)
}

// Edit applies a user edit to the live instance of fileID.
func (m *Manager) Edit(ctx context.Context, fileID string, fn func(Instance) error) error {
	m.mu.Lock()
	a, ok := m.adapters[fileID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMounted, fileID)
	}
	return a.Do(ctx, fn)
}

// Text returns the plain text of a file, live when mounted.
func (m *Manager) Text(fileID string) (string, error) {
	m.mu.Lock()
	a, ok := m.adapters[fileID]
	m.mu.Unlock()
	if ok {
		if text, err := a.Text(); err == nil {
			return text, nil
		}
	}
	f, ok := m.store.File(fileID)
	if !ok {
		return "", fmt.Errorf("%w: %s", workspace.ErrUnknownFile, fileID)
	}
	return m.engines.PlainText(f), nil
}

// Mounted lists the ids with a live adapter.
func (m *Manager) Mounted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.adapters))
	for id := range m.adapters {
		ids = append(ids, id)
	}
	return ids
}

// IsMounted reports whether fileID has a live adapter.
func (m *Manager) IsMounted(fileID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.adapters[fileID]
	return ok
}

// Close unmounts every adapter, flushing their final snapshots.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, a := range m.adapters {
		m.unmountLocked(a)
	}
}

func (m *Manager) newAdapter(f workspace.File) (*Adapter, error) {
	eng, err := m.engines.For(f.Kind)
	if err != nil {
		return nil, err
	}
	return NewAdapter(f, eng, m.store, m.opts), nil
}

func (m *Manager) unmountLocked(a *Adapter) {
	m.bus.unregister(a)
	delete(m.adapters, a.FileID())
	a.Unmount()
}
