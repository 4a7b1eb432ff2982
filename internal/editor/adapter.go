package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"aira/internal/diff"
	"aira/internal/logging"
	"aira/internal/workspace"
)

// Phase is the adapter lifecycle position.
type Phase int

const (
	Unmounted Phase = iota
	Loading
	Mounted
	Sampling
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Mounted:
		return "mounted"
	case Sampling:
		return "sampling"
	default:
		return "unmounted"
	}
}

// ContentWriter receives flushed snapshots. *workspace.Store satisfies it.
type ContentWriter interface {
	UpdateFile(id string, content json.RawMessage)
}

// AdapterOptions tunes an adapter. Zero durations use the 2s/500ms defaults.
type AdapterOptions struct {
	Interval time.Duration
	Debounce time.Duration
	Logger   *logging.StructuredLogger
}

type request struct {
	apply func(Instance) error
	done  chan error
}

// Adapter binds one file to a live editor instance. It samples the instance
// on a fixed cadence and writes changed snapshots back after a debounce.
type Adapter struct {
	file     workspace.File
	engine   Engine
	writer   ContentWriter
	interval time.Duration
	debounce time.Duration
	log      *logging.StructuredLogger

	writeMu      sync.Mutex
	mu           sync.Mutex
	phase        Phase
	inst         Instance
	baseline     json.RawMessage
	hasBaseline  bool
	writtenText  string
	timer        *time.Timer
	timerPending bool

	reqs     chan request
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewAdapter prepares an adapter for f. Nothing is loaded until Mount.
func NewAdapter(f workspace.File, engine Engine, writer ContentWriter, opts AdapterOptions) *Adapter {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewStructuredLogger(nil, "editor", false)
	}
	return &Adapter{
		file:     f,
		engine:   engine,
		writer:   writer,
		interval: opts.Interval,
		debounce: opts.Debounce,
		log:      opts.Logger.WithFile(f.ID),
		reqs:     make(chan request),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (a *Adapter) FileID() string { return a.file.ID }

func (a *Adapter) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// Mount creates the live instance. Content that fails to load is logged and
// replaced by a blank instance.
func (a *Adapter) Mount() {
	a.mu.Lock()
	a.phase = Loading
	a.mu.Unlock()

	var inst Instance
	if hasContent(a.file.Content) {
		loaded, err := a.engine.Load(a.file.ID, a.file.Content)
		if err != nil {
			a.log.Warn("content failed to load, starting blank", map[string]any{"error": err.Error()})
		} else {
			inst = loaded
		}
	}
	if inst == nil {
		inst = a.engine.Blank(a.file.ID)
	}

	a.mu.Lock()
	a.inst = inst
	a.phase = Mounted
	a.mu.Unlock()
	a.log.Debug("mounted", map[string]any{"kind": string(a.file.Kind)})
}

// Start runs the sampling loop and serves commands until Unmount.
func (a *Adapter) Start() {
	a.mu.Lock()
	a.phase = Sampling
	a.mu.Unlock()
	go a.run()
}

func (a *Adapter) run() {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.Sample()
		case req := <-a.reqs:
			req.done <- a.applyNow(req.apply)
		}
	}
}

// Sample compares the current snapshot with the baseline. The first sample
// only seeds the baseline; later changes schedule a debounced write.
func (a *Adapter) Sample() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inst == nil {
		return
	}
	snap, err := a.inst.Snapshot()
	if err != nil {
		a.log.Warn("snapshot failed", map[string]any{"error": err.Error()})
		return
	}
	if !a.hasBaseline {
		a.baseline = snap
		a.hasBaseline = true
		a.writtenText = a.inst.Text()
		return
	}
	if bytes.Equal(snap, a.baseline) {
		return
	}
	a.baseline = snap
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timerPending = true
	a.timer = time.AfterFunc(a.debounce, a.flushPending)
}

func (a *Adapter) flushPending() {
	a.mu.Lock()
	if !a.timerPending || a.inst == nil {
		a.mu.Unlock()
		return
	}
	a.timerPending = false
	a.writeLocked(a.baseline)
}

// writeLocked hands content to the store. It is called with a.mu held and
// releases it before the store runs its subscribers; writeMu keeps writes in
// order.
func (a *Adapter) writeLocked(content json.RawMessage) {
	text := a.inst.Text()
	summary := diff.Summarize(a.writtenText, text)
	a.writtenText = text
	a.writeMu.Lock()
	a.mu.Unlock()
	defer a.writeMu.Unlock()
	a.writer.UpdateFile(a.file.ID, content)
	if !summary.Empty() {
		a.log.Debug("content flushed", map[string]any{"bytes": len(content), "diff": summary.String()})
	}
}

// Flush writes the current snapshot immediately, cancelling any pending debounce.
func (a *Adapter) Flush() error {
	a.mu.Lock()
	if a.inst == nil {
		a.mu.Unlock()
		return ErrNotMounted
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timerPending = false
	snap, err := a.inst.Snapshot()
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("snapshot %s: %w", a.file.ID, err)
	}
	a.baseline = snap
	a.hasBaseline = true
	a.writeLocked(snap)
	return nil
}

// Unmount stops sampling, cancels the debounce, writes the final snapshot when
// a baseline exists and disposes the instance.
func (a *Adapter) Unmount() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.mu.Lock()
	started := a.phase == Sampling
	a.mu.Unlock()
	if started {
		<-a.done
	}

	a.mu.Lock()
	inst := a.inst
	if inst == nil {
		a.phase = Unmounted
		a.mu.Unlock()
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timerPending = false
	if a.hasBaseline {
		if snap, err := inst.Snapshot(); err != nil {
			a.log.Warn("final snapshot failed", map[string]any{"error": err.Error()})
		} else {
			a.writeLocked(snap)
			a.mu.Lock()
		}
	}
	a.inst = nil
	a.phase = Unmounted
	a.mu.Unlock()
	inst.Dispose()
	a.log.Debug("unmounted", nil)
}

// Do runs fn against the live instance on the adapter goroutine, or inline
// when the adapter is mounted without a loop.
func (a *Adapter) Do(ctx context.Context, fn func(Instance) error) error {
	a.mu.Lock()
	phase := a.phase
	a.mu.Unlock()
	switch phase {
	case Mounted:
		return a.applyNow(fn)
	case Sampling:
	default:
		return ErrNotMounted
	}
	req := request{apply: fn, done: make(chan error, 1)}
	select {
	case a.reqs <- req:
	case <-a.stop:
		return ErrNotMounted
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) applyNow(fn func(Instance) error) error {
	a.mu.Lock()
	inst := a.inst
	a.mu.Unlock()
	if inst == nil {
		return ErrNotMounted
	}
	return fn(inst)
}

// Text returns the live plain-text view.
func (a *Adapter) Text() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inst == nil {
		return "", ErrNotMounted
	}
	return a.inst.Text(), nil
}
