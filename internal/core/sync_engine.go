package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ComponentRenderer renders a dashboard component with the given filter.
type ComponentRenderer interface {
	RenderComponent(ctx context.Context, componentID string, filter *FilterRange) (ChartArtifact, error)
}

// EventKind labels a SyncEvent.
type EventKind string

const (
	EventStoreSeeded       EventKind = "store_seeded"
	EventStoreChanged      EventKind = "store_changed"
	EventWidgetChanged     EventKind = "widget_changed"
	EventWidgetApplied     EventKind = "widget_applied"
	EventComponentRendered EventKind = "component_rendered"
)

// SyncEvent is published to engine listeners as dispatch progresses.
// WidgetChanged marks an accepted user interaction; WidgetApplied marks a
// store-driven update of another widget.
type SyncEvent struct {
	Kind        EventKind
	WidgetID    string
	ComponentID string
	Value       FilterRange
	Err         error
}

// Interaction is a user-driven value change on one widget.
type Interaction struct {
	WidgetID string
	Value    FilterRange
}

// Render is the outcome of re-rendering one target component.
type Render struct {
	WidgetID    string
	ComponentID string
	Artifact    ChartArtifact
	Err         error
}

// SyncResult summarizes one dispatch.
type SyncResult struct {
	Value        FilterRange
	Clamped      []string
	StoreChanged bool
	Changed      []string
	Applied      []string
	Renders      []Render
}

// SyncEngineConfig wires an engine to its session.
type SyncEngineConfig struct {
	SessionID string
	Store     *FilterStore
	Widgets   []*Widget
	Renderer  ComponentRenderer
	// Bounds seeds the store on activation and limits accepted values.
	Bounds FilterRange
	// RejectOutOfRange fails interactions outside Bounds instead of clamping.
	RejectOutOfRange bool
	Observability    Observability
}

type pendingKind int

const (
	pendingInput pendingKind = iota
	pendingStore
)

type pending struct {
	kind     pendingKind
	widgetID string
	origin   string
	seed     bool
	value    FilterRange
}

type dispatchKey struct{}

type originKey struct{}

// SyncEngine keeps a session's widgets and its FilterStore in agreement.
//
// User interactions write the store (local to store). Store changes are
// pulled into every other widget whose value differs (store to local).
// Store-driven updates never re-enter the local-to-store rule, and both rules
// are gated by transition, so an unchanged value stops propagation. Events
// are queued and drained one at a time under the dispatch lock.
type SyncEngine struct {
	sessionID string
	store     *FilterStore
	widgets   []*Widget
	byID      map[string]*Widget
	renderer  ComponentRenderer
	bounds    FilterRange
	reject    bool
	obs       Observability

	dispatchMu  sync.Mutex
	activated   bool
	unsubscribe func()

	queueMu sync.Mutex
	queue   []pending

	listenersMu  sync.RWMutex
	listeners    map[int]func(SyncEvent)
	nextListener int
}

// NewSyncEngine validates cfg and subscribes the engine to the store.
func NewSyncEngine(cfg SyncEngineConfig) (*SyncEngine, error) {
	if cfg.Store == nil {
		return nil, errors.New("sync engine: filter store required")
	}
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, fmt.Errorf("sync engine bounds: %w", err)
	}
	e := &SyncEngine{
		sessionID: cfg.SessionID,
		store:     cfg.Store,
		byID:      make(map[string]*Widget, len(cfg.Widgets)),
		renderer:  cfg.Renderer,
		bounds:    cfg.Bounds,
		reject:    cfg.RejectOutOfRange,
		obs:       cfg.Observability.withDefaults(),
		listeners: make(map[int]func(SyncEvent)),
	}
	for _, w := range cfg.Widgets {
		if w == nil {
			return nil, errors.New("sync engine: nil widget")
		}
		if _, dup := e.byID[w.ID()]; dup {
			return nil, fmt.Errorf("sync engine: duplicate widget %s", w.ID())
		}
		e.byID[w.ID()] = w
		e.widgets = append(e.widgets, w)
	}
	e.unsubscribe = e.store.Subscribe(e.onStoreChange)
	return e, nil
}

// transition is the equality guard consulted before every store write and
// widget apply. A nil from is an uninitialized cell.
func transition(from *FilterRange, to FilterRange) bool {
	return from == nil || *from != to
}

// Store returns the session filter store.
func (e *SyncEngine) Store() *FilterStore { return e.store }

// Bounds returns the dataset-derived seed bounds.
func (e *SyncEngine) Bounds() FilterRange { return e.bounds }

// Widgets returns the engine's widgets in registration order.
func (e *SyncEngine) Widgets() []*Widget {
	out := make([]*Widget, len(e.widgets))
	copy(out, e.widgets)
	return out
}

// Widget looks up a widget by id.
func (e *SyncEngine) Widget(id string) (*Widget, bool) {
	w, ok := e.byID[id]
	return w, ok
}

// Activated reports whether the store has been initialized by Activate.
func (e *SyncEngine) Activated() bool {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	return e.activated
}

// Subscribe registers a listener for sync events and returns its cancel func.
// Listeners run synchronously on the dispatching goroutine.
func (e *SyncEngine) Subscribe(fn func(SyncEvent)) func() {
	if fn == nil {
		return func() {}
	}
	e.listenersMu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.listenersMu.Unlock()
	return func() {
		e.listenersMu.Lock()
		delete(e.listeners, id)
		e.listenersMu.Unlock()
	}
}

// Close detaches the engine from its store.
func (e *SyncEngine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
}

// Activate initializes the session. An empty store is seeded from Bounds; a
// store that already holds a value is pulled into differing widgets. Only the
// first call has any effect.
func (e *SyncEngine) Activate(ctx context.Context) (SyncResult, error) {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	var result SyncResult
	err := e.activateLocked(ctx, &result)
	return result, err
}

func (e *SyncEngine) activateLocked(ctx context.Context, result *SyncResult) error {
	if e.activated {
		return nil
	}
	ctx = e.dispatchContext(ctx)
	if current, ok := e.store.Get(); ok && current.Validate() == nil && current.Within(e.bounds) {
		e.enqueue(pending{kind: pendingStore, value: current})
	} else if ok {
		// A restored value outside Bounds is clamped, or replaced by Bounds
		// when inverted or when the engine rejects out of range values.
		value := e.bounds
		if current.Validate() == nil && !e.reject {
			value = current.Clamp(e.bounds)
		}
		e.obs.Logger.Warn("restored filter out of range", "session", e.sessionID, "restored", current.String(), "applied", value.String())
		start := e.obs.Clock.Now()
		changed, err := e.store.Set(ctx, value)
		e.obs.observe(ctx, "store.set", start, err)
		if err != nil {
			return fmt.Errorf("repair filter store for session %s: %w", e.sessionID, err)
		}
		result.StoreChanged = changed
	} else {
		start := e.obs.Clock.Now()
		changed, err := e.store.Set(ctx, e.bounds)
		e.obs.observe(ctx, "store.set", start, err)
		if err != nil {
			return fmt.Errorf("seed filter store for session %s: %w", e.sessionID, err)
		}
		result.StoreChanged = changed
		e.obs.Logger.Debug("filter store seeded", "session", e.sessionID, "value", e.bounds.String())
	}
	e.activated = true
	result.Value = e.bounds
	err := e.drain(ctx, result)
	if v, ok := e.store.Get(); ok {
		result.Value = v
	}
	if err != nil {
		return fmt.Errorf("activate session %s: %w", e.sessionID, err)
	}
	return nil
}

// dispatchContext marks ctx as running inside this engine's dispatch, so
// store notifications raised by the dispatch are queued instead of
// re-acquiring the dispatch lock.
func (e *SyncEngine) dispatchContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, dispatchKey{}, e)
}

// Interact applies a user change on one widget and runs the resulting cascade
// to completion. Out-of-range values are clamped into Bounds, or rejected with
// ErrOutOfRange when the engine is configured to reject. Inverted ranges are
// always rejected.
func (e *SyncEngine) Interact(ctx context.Context, widgetID string, value FilterRange) (SyncResult, error) {
	return e.Batch(ctx, Interaction{WidgetID: widgetID, Value: value})
}

// Batch processes several interactions in one dispatch cycle, strictly in
// order. The last accepted value wins.
func (e *SyncEngine) Batch(ctx context.Context, inputs ...Interaction) (result SyncResult, err error) {
	ctx, span := e.obs.Tracer.Start(ctx, "sync.interact")
	defer func() { span.End(err) }()

	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	ctx = e.dispatchContext(ctx)
	if err = e.activateLocked(ctx, &result); err != nil {
		return result, err
	}
	admitted := make([]pending, 0, len(inputs))
	for _, in := range inputs {
		w, ok := e.byID[in.WidgetID]
		if !ok {
			return result, ErrNotFound{Entity: EntityWidget, ID: in.WidgetID}
		}
		value, clamped, aerr := e.admit(w, in.Value)
		if aerr != nil {
			return result, aerr
		}
		if clamped {
			result.Clamped = append(result.Clamped, w.ID())
		}
		admitted = append(admitted, pending{kind: pendingInput, widgetID: w.ID(), value: value})
	}
	for _, p := range admitted {
		e.enqueue(p)
	}
	err = e.drain(ctx, &result)
	if v, ok := e.store.Get(); ok {
		result.Value = v
	}
	return result, err
}

func (e *SyncEngine) admit(w *Widget, value FilterRange) (FilterRange, bool, error) {
	if err := value.Validate(); err != nil {
		return FilterRange{}, false, fmt.Errorf("widget %s: %w", w.ID(), err)
	}
	bounds := w.Bounds()
	if value.Within(bounds) {
		return value, false, nil
	}
	if e.reject {
		return FilterRange{}, false, fmt.Errorf("widget %s value %s outside %s: %w", w.ID(), value, bounds, ErrOutOfRange)
	}
	clamped := value.Clamp(bounds)
	e.obs.Logger.Warn("clamped out of range value", "session", e.sessionID, "widget", w.ID(), "requested", value.String(), "applied", clamped.String())
	return clamped, true, nil
}

// onStoreChange queues the store-to-local rule. Changes made outside a
// dispatch, by a direct store write, are dispatched here.
func (e *SyncEngine) onStoreChange(ctx context.Context, change StoreChange) {
	origin, _ := ctx.Value(originKey{}).(string)
	p := pending{kind: pendingStore, origin: origin, seed: change.Previous == nil, value: change.Value}
	if ctx.Value(dispatchKey{}) == e {
		e.enqueue(p)
		return
	}
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	e.enqueue(p)
	var result SyncResult
	if err := e.drain(e.dispatchContext(ctx), &result); err != nil {
		e.obs.Logger.Error("store change dispatch failed", "session", e.sessionID, "error", err)
	}
}

func (e *SyncEngine) enqueue(p pending) {
	e.queueMu.Lock()
	e.queue = append(e.queue, p)
	e.queueMu.Unlock()
}

func (e *SyncEngine) dequeue() (pending, bool) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	if len(e.queue) == 0 {
		return pending{}, false
	}
	p := e.queue[0]
	e.queue = e.queue[1:]
	return p, true
}

// drain processes queued events until none remain. The first error is
// returned after the queue is empty so no event is left half applied.
func (e *SyncEngine) drain(ctx context.Context, result *SyncResult) error {
	var firstErr error
	for {
		p, ok := e.dequeue()
		if !ok {
			return firstErr
		}
		var err error
		switch p.kind {
		case pendingInput:
			err = e.handleInput(ctx, p, result)
		case pendingStore:
			e.handleStore(ctx, p, result)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
}

// handleInput runs the local-to-store rule for one accepted interaction.
func (e *SyncEngine) handleInput(ctx context.Context, p pending, result *SyncResult) error {
	w := e.byID[p.widgetID]
	current := w.Current()
	if !transition(&current, p.value) {
		e.obs.Logger.Debug("interaction unchanged", "session", e.sessionID, "widget", w.ID())
		return nil
	}
	if stored, ok := e.store.Get(); transition(optional(stored, ok), p.value) {
		start := e.obs.Clock.Now()
		changed, err := e.store.Set(context.WithValue(ctx, originKey{}, w.ID()), p.value)
		e.obs.observe(ctx, "store.set", start, err)
		if err != nil {
			return fmt.Errorf("widget %s: %w", w.ID(), err)
		}
		result.StoreChanged = result.StoreChanged || changed
	}
	w.apply(p.value)
	result.Changed = append(result.Changed, w.ID())
	e.publish(SyncEvent{Kind: EventWidgetChanged, WidgetID: w.ID(), Value: p.value})
	e.renderTargets(ctx, w, p.value, result)
	return nil
}

// handleStore runs the store-to-local rule. A change already superseded by a
// later write is skipped; the later event carries the value that wins.
func (e *SyncEngine) handleStore(ctx context.Context, p pending, result *SyncResult) {
	if current, ok := e.store.Get(); ok && current != p.value {
		return
	}
	kind := EventStoreChanged
	if p.seed {
		kind = EventStoreSeeded
	}
	e.publish(SyncEvent{Kind: kind, WidgetID: p.origin, Value: p.value})
	for _, w := range e.widgets {
		if w.ID() == p.origin {
			continue
		}
		current := w.Current()
		if !transition(&current, p.value) {
			continue
		}
		start := e.obs.Clock.Now()
		w.apply(p.value)
		e.obs.observe(ctx, "widget.apply", start, nil)
		e.obs.Logger.Debug("widget updated from store", "session", e.sessionID, "widget", w.ID(), "value", p.value.String())
		result.Applied = append(result.Applied, w.ID())
		e.publish(SyncEvent{Kind: EventWidgetApplied, WidgetID: w.ID(), Value: p.value})
		e.renderTargets(ctx, w, p.value, result)
	}
}

func (e *SyncEngine) renderTargets(ctx context.Context, w *Widget, value FilterRange, result *SyncResult) {
	if e.renderer == nil {
		return
	}
	for _, target := range w.targets {
		start := e.obs.Clock.Now()
		artifact, err := e.renderer.RenderComponent(ctx, target, value.Ptr())
		e.obs.observe(ctx, "chart.render", start, err)
		if err != nil {
			e.obs.Logger.Error("render failed", "session", e.sessionID, "widget", w.ID(), "component", target, "error", err)
		}
		result.Renders = append(result.Renders, Render{WidgetID: w.ID(), ComponentID: target, Artifact: artifact, Err: err})
		e.publish(SyncEvent{Kind: EventComponentRendered, WidgetID: w.ID(), ComponentID: target, Value: value, Err: err})
	}
}

func (e *SyncEngine) publish(ev SyncEvent) {
	e.listenersMu.RLock()
	fns := make([]func(SyncEvent), 0, len(e.listeners))
	for i := 0; i < e.nextListener; i++ {
		if fn, ok := e.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	e.listenersMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func optional(v FilterRange, ok bool) *FilterRange {
	if !ok {
		return nil
	}
	return &v
}
