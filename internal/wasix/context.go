package wasix

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

// ContextId identifies one WASIX context for the life of its owning Store
// (spec.md §3 Context, §4.8). MainID is the distinguished main context's id,
// stable for the lifetime of the Manager.
type ContextId = uint64

const MainID ContextId = 0

// ContextState is the NEW -> RUNNING <-> SUSPENDED -> TERMINATED lifecycle
// spec.md §3 Context describes.
type ContextState int32

const (
	ContextNew ContextState = iota
	ContextRunning
	ContextSuspended
	ContextTerminated
)

func (s ContextState) String() string {
	switch s {
	case ContextNew:
		return "new"
	case ContextRunning:
		return "running"
	case ContextSuspended:
		return "suspended"
	case ContextTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// funcCaller is the narrow slice of internal/wasmstore.Instance the
// entry-dispatch path needs: invoke a function already resolved to a
// combined function index, the same calling convention call_indirect uses
// once it has read a table slot. Satisfied structurally so this package
// never imports internal/wasmstore.
type funcCaller interface {
	CallFunction(idx wasm.Index, args []uint64) ([]uint64, *api.Trap)
}

// Context is one cooperatively scheduled execution unit. Its "private guest
// stack region" (spec.md §3) is modeled as a real goroutine's own Go stack:
// suspending a Context means parking its goroutine on resume, which freezes
// that goroutine's call stack in place exactly as a guest-level stack swap
// would, with none of the bookkeeping a hand-rolled stack switch needs.
type Context struct {
	id    ContextId
	state ContextState

	// resume is the rendezvous point: a goroutine owning this Context
	// blocks on <-resume while SUSPENDED, and is handed control by exactly
	// one send. Unbuffered so the sender and receiver always meet at the
	// same instant — no context ever observes a stale wakeup.
	resume chan struct{}

	entryTablePos wasm.Index // table position wasix_context_create was given
	lastTrap      *api.Trap  // set if the entry function trapped; diagnostic only
}

func (c *Context) ID() ContextId      { return c.id }
func (c *Context) State() ContextState { return c.state }

// Manager owns every Context for one instance's WASIX imports. It is not
// safe for concurrent use from multiple goroutines calling in
// simultaneously — by construction, only the single goroutine that is
// currently "running" ever calls into it at once (spec.md §4.8 "single
// host thread... cooperative"); mu exists to protect the bookkeeping maps
// across the narrow handoff window between a send and the corresponding
// park, not to serialize unrelated callers.
type Manager struct {
	mu       sync.Mutex
	contexts map[ContextId]*Context
	current  *Context
	main     *Context
	nextID   ContextId
	caller   funcCaller
	mod      api.Module
	log      *logrus.Entry
}

// NewManager creates the WASIX context set for one instance: mod must also
// implement funcCaller (internal/wasmstore.Instance does) since dispatching
// a freshly created context's entry function requires calling back into
// the owning instance by raw function index.
func NewManager(mod api.Module, log *logrus.Entry) (*Manager, error) {
	caller, ok := mod.(funcCaller)
	if !ok {
		return nil, &ContextError{Tag: "Missing"}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	main := &Context{id: MainID, state: ContextRunning, resume: make(chan struct{})}
	m := &Manager{
		contexts: map[ContextId]*Context{MainID: main},
		current:  main,
		main:     main,
		nextID:   MainID + 1,
		caller:   caller,
		mod:      mod,
		log:      log,
	}
	return m, nil
}

// Create allocates a context that will begin executing the function at
// entryTablePos, in this instance's table 0, on first Switch to it
// (spec.md §4.8 wasix_context_create).
func (m *Manager) Create(entryTablePos wasm.Index) ContextId {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.contexts[id] = &Context{id: id, state: ContextNew, resume: make(chan struct{}), entryTablePos: entryTablePos}
	return id
}

// Switch suspends the running context and resumes target, per spec.md
// §4.8: a no-op if target is the current context, or is unknown, or has
// already terminated (the caller's own context simply continues).
func (m *Manager) Switch(target ContextId) {
	m.mu.Lock()
	if target == m.current.id {
		m.mu.Unlock()
		return
	}
	tgt, ok := m.contexts[target]
	if !ok || tgt.state == ContextTerminated {
		m.mu.Unlock()
		return
	}
	prev := m.current
	prev.state = ContextSuspended
	m.current = tgt
	fresh := tgt.state == ContextNew
	tgt.state = ContextRunning
	m.mu.Unlock()

	if fresh {
		go m.runEntry(tgt)
	} else {
		tgt.resume <- struct{}{}
	}
	<-prev.resume
	m.mu.Lock()
	prev.state = ContextRunning
	m.mu.Unlock()
}

// runEntry is the goroutine body for a freshly switched-to context: it
// dispatches the guest entry function once, then — since the source left
// this open as "auto-switch to MAIN after marking TERMINATED" — marks
// itself TERMINATED and hands control back to MAIN unconditionally,
// regardless of which context originally switched to it (spec.md §9 Open
// Questions, §4.8).
func (m *Manager) runEntry(ctx *Context) {
	ref, ok := m.mod.Table().Get(ctx.entryTablePos)
	var trap *api.Trap
	if !ok {
		trap = api.NewTrap(api.TrapCodeUninitializedElement)
	} else {
		_, trap = m.caller.CallFunction(wasm.Index(ref), nil)
	}

	m.mu.Lock()
	ctx.state = ContextTerminated
	ctx.lastTrap = trap
	main := m.main
	m.current = main
	main.state = ContextRunning
	m.mu.Unlock()

	if trap != nil {
		m.log.WithField("context", ctx.id).WithError(trap).Warn("wasix context entry trapped; switching to main")
	}
	main.resume <- struct{}{}
}

// Destroy marks id TERMINATED and drops its bookkeeping entry (spec.md
// §4.8 wasix_context_destroy). A context parked SUSPENDED at the moment of
// its own destruction has no further path back to RUNNING: its goroutine
// stays parked on resume for the remaining life of the process, which is
// this goroutine-based design's stand-in for "release its stack on next
// quiescent point" — the guest-visible contract (the id is gone, future
// switches to it no-op) holds regardless.
func (m *Manager) Destroy(id ContextId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == m.current.id {
		return errDestroyingSelf
	}
	if id == m.main.id {
		return errDestroyingMain
	}
	ctx, ok := m.contexts[id]
	if !ok {
		return errMissing
	}
	if ctx.state == ContextTerminated {
		return errAlreadyTerminated
	}
	ctx.state = ContextTerminated
	delete(m.contexts, id)
	return nil
}

// Status reports id's current state for wasix_context_status.
func (m *Manager) Status(id ContextId) (ContextState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.contexts[id]
	if !ok {
		return ContextTerminated, false
	}
	return ctx.state, true
}

// Yield switches to MAIN and, once some later Switch resumes the caller,
// returns — sugar over Switch(MainID), not a new primitive (SPEC_FULL.md
// §4.8).
func (m *Manager) Yield() { m.Switch(MainID) }

// Main returns the id of the distinguished main context, stable for the
// Manager's lifetime and identical from every context's point of view
// (spec.md §4.8 wasix_context_main, TESTABLE PROPERTY 6).
func (m *Manager) Main() ContextId { return m.main.id }
