// Package wasmstore is the runtime home of instantiated modules: Store,
// Instance, and the concrete Memory/Table/Global objects they own (spec.md
// §3 Store/Instance, §4.4/§4.5). It implements internal/engine.VM so that
// any internal/engine.Compiler backend can execute against it, but it never
// imports internal/engine.Compiler implementations themselves — only the
// interfaces in internal/engine.
package wasmstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/engine"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

// StoreId uniquely identifies a Store for the lifetime of the process
// (spec.md §3 Store, §4.4, TESTABLE PROPERTY 4). Every handle vended by a
// Store carries its id so cross-store use can be rejected immediately.
type StoreId = uuid.UUID

// Store is a process-internal identity plus the arenas of Memory/Table/
// Global/Function/Instance objects it owns (spec.md §3). A Store is a
// single-threaded mutator: see spec.md §4.4/§5 for the borrow discipline
// this mux enforces (shared borrows for reads, exclusive for writes, never
// both at once).
type Store struct {
	id       StoreId
	engine   *engine.Engine
	features wasm.Features
	log      *logrus.Entry

	mu        sync.RWMutex
	byName    map[string]*Instance // registered instances, keyed by the name they were instantiated under
	order     []*Instance          // initialization order, for reverse-order Close
	nextLocal uint64               // monotonic per-instance id, for api.Frame.InstanceID

	// frames is the call stack shared by every Instance in this Store, since
	// a call can cross instances (calling an imported function) and a trap's
	// backtrace must show every frame regardless of which Instance owns it.
	// The Store's single-threaded-mutator contract (spec.md §4.4) makes a
	// plain slice safe without its own lock.
	frames []api.Frame
}

// NewStore constructs a Store bound to eng. Every Instantiate call against
// this Store compiles through eng and shares its cache.
func NewStore(eng *engine.Engine, features wasm.Features, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{
		id:       uuid.New(),
		engine:   eng,
		features: features,
		log:      log,
		byName:   map[string]*Instance{},
	}
}

// ID returns this Store's identity.
func (s *Store) ID() StoreId { return s.id }

// Module looks up a previously instantiated, still-open Instance by the name
// it was given, for resolving another module's imports against it.
func (s *Store) Module(name string) (*Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.byName[name]
	return inst, ok
}

func (s *Store) register(name string, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		if _, dup := s.byName[name]; dup {
			return fmt.Errorf("wasmstore: module %q already instantiated in this store", name)
		}
		s.byName[name] = inst
	}
	s.order = append(s.order, inst)
	return nil
}

func (s *Store) unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		delete(s.byName, name)
	}
}

func (s *Store) nextInstanceID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLocal++
	return s.nextLocal
}

func (s *Store) pushFrame(f api.Frame) { s.frames = append(s.frames, f) }
func (s *Store) popFrame()             { s.frames = s.frames[:len(s.frames)-1] }
func (s *Store) depth() int            { return len(s.frames) }

// snapshotFrames copies the current call stack for a Trap's backtrace
// (spec.md §4.7): deepest frame last, matching push order.
func (s *Store) snapshotFrames() []api.Frame {
	return append([]api.Frame(nil), s.frames...)
}

// checkStore rejects a handle that was not vended by s (spec.md §4.4,
// TESTABLE PROPERTY 4: cross-store rejection).
func (s *Store) checkStore(id StoreId, what string) error {
	if id != s.id {
		return errWrongStore(what)
	}
	return nil
}

// CloseWithExitCode closes every Instance this Store owns, in reverse
// initialization order, notifying any registered close.Notification or
// ctxkey.Notifier on each (grounded on internal/close and internal/ctxkey).
// The first error encountered is returned; closing continues regardless so
// one misbehaving module cannot strand the others' resources.
func (s *Store) CloseWithExitCode(ctx context.Context, exitCode uint32) error {
	s.mu.Lock()
	order := s.order
	s.order = nil
	s.byName = map[string]*Instance{}
	s.mu.Unlock()

	var first error
	for i := len(order) - 1; i >= 0; i-- {
		if err := order[i].closeWithExitCode(ctx, exitCode); err != nil && first == nil {
			first = err
		}
	}
	return first
}
