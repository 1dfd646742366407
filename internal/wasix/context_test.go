package wasix_test

import (
	"context"
	"io/fs"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmrt/wasmrt/api"
	"github.com/wasmrt/wasmrt/internal/fsapi"
	"github.com/wasmrt/wasmrt/internal/wasix"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

// fakeTable is a minimal api.Table backing one entry point function ref at
// index 0.
type fakeTable struct{ refs map[uint32]uint64 }

func (t *fakeTable) Size() uint32                               { return uint32(len(t.refs)) }
func (t *fakeTable) Grow(uint32, uint64) (uint32, bool)         { return 0, false }
func (t *fakeTable) Get(idx uint32) (uint64, bool)              { v, ok := t.refs[idx]; return v, ok }
func (t *fakeTable) Set(idx uint32, v uint64) bool               { t.refs[idx] = v; return true }
func (t *fakeTable) Type() api.ValueType                         { return api.ValueTypeExternref }

// fakeModule is a minimal api.Module plus CallFunction, the narrow surface
// wasix.NewManager needs from the owning instance.
type fakeModule struct {
	table   *fakeTable
	calls   []wasm.Index
	onCall  func(idx wasm.Index) *api.Trap
}

func (m *fakeModule) String() string                 { return "fakeModule" }
func (m *fakeModule) Name() string                   { return "fakeModule" }
func (m *fakeModule) Memory() api.Memory             { return nil }
func (m *fakeModule) Table() api.Table               { return m.table }
func (m *fakeModule) ExportedFunction(string) api.Function { return nil }
func (m *fakeModule) ExportedMemory(string) api.Memory     { return nil }
func (m *fakeModule) ExportedGlobal(string) api.Global     { return nil }
func (m *fakeModule) CloseWithExitCode(context.Context, uint32) error { return nil }
func (m *fakeModule) Close(context.Context) error                    { return nil }

func (m *fakeModule) CallFunction(idx wasm.Index, args []uint64) ([]uint64, *api.Trap) {
	m.calls = append(m.calls, idx)
	if m.onCall != nil {
		return nil, m.onCall(idx)
	}
	return nil, nil
}

func newFakeModule() *fakeModule {
	return &fakeModule{table: &fakeTable{refs: map[uint32]uint64{}}}
}

func TestNewManager_MainContext(t *testing.T) {
	mod := newFakeModule()
	m, err := wasix.NewManager(mod, nil)
	require.NoError(t, err)
	require.Equal(t, wasix.MainID, m.Main())

	state, ok := m.Status(wasix.MainID)
	require.True(t, ok)
	require.Equal(t, wasix.ContextRunning, state)
}

func TestManager_CreateAndSwitch(t *testing.T) {
	mod := newFakeModule()
	mod.table.refs[0] = 7 // entry function index 7
	m, err := wasix.NewManager(mod, nil)
	require.NoError(t, err)

	id := m.Create(0)
	state, ok := m.Status(id)
	require.True(t, ok)
	require.Equal(t, wasix.ContextNew, state)

	// Switching runs the entry function to completion (it never yields back
	// in this test, so control returns to MAIN once it terminates).
	m.Switch(id)

	state, ok = m.Status(id)
	require.True(t, ok)
	require.Equal(t, wasix.ContextTerminated, state)
	require.Contains(t, mod.calls, wasm.Index(7))
}

func TestManager_SwitchToUnknownIsNoop(t *testing.T) {
	mod := newFakeModule()
	m, err := wasix.NewManager(mod, nil)
	require.NoError(t, err)

	m.Switch(999) // no such context: must not block or panic
	require.Equal(t, wasix.MainID, m.Main())
}

func TestManager_SwitchToSelfIsNoop(t *testing.T) {
	mod := newFakeModule()
	m, err := wasix.NewManager(mod, nil)
	require.NoError(t, err)
	m.Switch(wasix.MainID)
}

func TestManager_Destroy(t *testing.T) {
	mod := newFakeModule()
	m, err := wasix.NewManager(mod, nil)
	require.NoError(t, err)

	id := m.Create(0)
	require.NoError(t, m.Destroy(id))

	_, ok := m.Status(id)
	require.False(t, ok)
}

func TestManager_Destroy_RejectsMainAndSelf(t *testing.T) {
	mod := newFakeModule()
	m, err := wasix.NewManager(mod, nil)
	require.NoError(t, err)

	err = m.Destroy(wasix.MainID)
	require.Error(t, err)

	id := m.Create(0)
	require.NoError(t, m.Destroy(id))
	err = m.Destroy(id)
	require.Error(t, err, "destroying an already-terminated id must fail")
}

func TestNewManager_RequiresFuncCaller(t *testing.T) {
	_, err := wasix.NewManager(notACaller{}, nil)
	require.Error(t, err)
}

type notACaller struct{}

func (notACaller) String() string                                       { return "nope" }
func (notACaller) Name() string                                         { return "nope" }
func (notACaller) Memory() api.Memory                                   { return nil }
func (notACaller) Table() api.Table                                     { return nil }
func (notACaller) ExportedFunction(string) api.Function                 { return nil }
func (notACaller) ExportedMemory(string) api.Memory                     { return nil }
func (notACaller) ExportedGlobal(string) api.Global                     { return nil }
func (notACaller) CloseWithExitCode(context.Context, uint32) error      { return nil }
func (notACaller) Close(context.Context) error                          { return nil }

// TestManager_S4_PingPongThroughMain is the literal scenario S4: two
// contexts ping-pong through MAIN four times, and the counter MAIN observes
// at the end equals exactly 4. Each entry function loops twice, yielding to
// MAIN after every increment; a switch back into a SUSPENDED context
// resumes the goroutine exactly inside the nested Switch(MainID) call it
// had blocked in, which is what lets the for-loop continue where it left
// off without any explicit saved state.
func TestManager_S4_PingPongThroughMain(t *testing.T) {
	mod := newFakeModule()
	mod.table.refs[0] = 1 // c1 entry
	mod.table.refs[1] = 2 // c2 entry
	m, err := wasix.NewManager(mod, nil)
	require.NoError(t, err)

	var counter int
	mod.onCall = func(idx wasm.Index) *api.Trap {
		for i := 0; i < 2; i++ {
			counter++
			m.Switch(wasix.MainID)
		}
		return nil
	}

	c1 := m.Create(0)
	c2 := m.Create(1)

	m.Switch(c1)
	m.Switch(c2)
	m.Switch(c1)
	m.Switch(c2)

	require.Equal(t, 4, counter)
}

// TestManager_S5_ContextMainIdentityAcrossContexts is scenario S5: reading
// wasix_context_main from inside C1 and C2 yields the same value MAIN
// itself sees (TESTABLE PROPERTY 6).
func TestManager_S5_ContextMainIdentityAcrossContexts(t *testing.T) {
	mod := newFakeModule()
	mod.table.refs[0] = 1
	mod.table.refs[1] = 2
	m, err := wasix.NewManager(mod, nil)
	require.NoError(t, err)

	mainID := m.Main()
	var seenInC1, seenInC2 wasix.ContextId
	mod.onCall = func(idx wasm.Index) *api.Trap {
		switch idx {
		case 1:
			seenInC1 = m.Main()
		case 2:
			seenInC2 = m.Main()
		}
		m.Switch(wasix.MainID)
		return nil
	}

	c1 := m.Create(0)
	c2 := m.Create(1)
	m.Switch(c1)
	m.Switch(c2)

	require.Equal(t, mainID, seenInC1)
	require.Equal(t, mainID, seenInC2)
}

// TestManager_S6_DestroyedContextSwitchIsNoop is the literal scenario S6:
// create C1, C2; switch to C1 increments the counter to 1; destroying C1
// and then switching to it again is a no-op, leaving the counter at 1;
// destroying C2 before ever switching to it makes that switch a no-op too.
func TestManager_S6_DestroyedContextSwitchIsNoop(t *testing.T) {
	mod := newFakeModule()
	mod.table.refs[0] = 1
	mod.table.refs[1] = 2
	m, err := wasix.NewManager(mod, nil)
	require.NoError(t, err)

	counter := 0
	mod.onCall = func(wasm.Index) *api.Trap {
		counter++
		m.Switch(wasix.MainID)
		return nil
	}

	c1 := m.Create(0)
	c2 := m.Create(1)

	m.Switch(c1)
	require.Equal(t, 1, counter)

	require.NoError(t, m.Destroy(c1))
	m.Switch(c1)
	require.Equal(t, 1, counter, "switching to a destroyed context must not run its entry again")

	require.NoError(t, m.Destroy(c2))
	m.Switch(c2)
	require.Equal(t, 1, counter, "a context destroyed before its first switch must still no-op")
}

// TestManager_Property7_IndependentRecursionStacks exercises TESTABLE
// PROPERTY 7: two contexts each recursing to depth N reach exactly N frames
// without interference, even though their recursions are interleaved by a
// switch partway down. Since a Context's "stack" is a real parked
// goroutine's Go stack (spec.md §4.8 implementation note), resuming after
// the switch must continue the recursion with the exact same local `n`,
// not some value clobbered by the other context's own recursion.
func TestManager_Property7_IndependentRecursionStacks(t *testing.T) {
	const depth = 50

	mod := newFakeModule()
	mod.table.refs[0] = 1
	mod.table.refs[1] = 2
	m, err := wasix.NewManager(mod, nil)
	require.NoError(t, err)

	var c1Max, c2Max int
	var recurse func(n int, max *int)
	recurse = func(n int, max *int) {
		if n > *max {
			*max = n
		}
		if n == 0 {
			return
		}
		if n == depth/2 {
			m.Switch(wasix.MainID)
		}
		recurse(n-1, max)
	}
	mod.onCall = func(idx wasm.Index) *api.Trap {
		switch idx {
		case 1:
			recurse(depth, &c1Max)
		case 2:
			recurse(depth, &c2Max)
		}
		return nil
	}

	c1 := m.Create(0)
	c2 := m.Create(1)

	m.Switch(c1) // recurses to depth/2, yields mid-recursion
	m.Switch(c2) // same
	m.Switch(c1) // resumes exactly at depth/2 and unwinds the rest
	m.Switch(c2)

	require.Equal(t, depth, c1Max)
	require.Equal(t, depth, c2Max)
}

// TestManager_Property8_SwitchExactness exercises TESTABLE PROPERTY 8: a
// context resumed after a switch observes the exact local state it had
// before the switch. Each context builds a local slice in two halves
// separated by a switch to MAIN; if the other context's execution could
// ever observe or corrupt it, the second half would see something other
// than its own untouched values.
func TestManager_Property8_SwitchExactness(t *testing.T) {
	mod := newFakeModule()
	mod.table.refs[0] = 1
	mod.table.refs[1] = 2
	m, err := wasix.NewManager(mod, nil)
	require.NoError(t, err)

	var c1Observed, c2Observed []int
	mod.onCall = func(idx wasm.Index) *api.Trap {
		local := make([]int, 0, 4)
		switch idx {
		case 1:
			local = append(local, 1, 2)
			m.Switch(wasix.MainID)
			local = append(local, 3, 4)
			c1Observed = local
		case 2:
			local = append(local, 100, 200)
			m.Switch(wasix.MainID)
			local = append(local, 300, 400)
			c2Observed = local
		}
		return nil
	}

	c1 := m.Create(0)
	c2 := m.Create(1)

	m.Switch(c1)
	m.Switch(c2)
	m.Switch(c1)
	m.Switch(c2)

	require.Equal(t, []int{1, 2, 3, 4}, c1Observed)
	require.Equal(t, []int{100, 200, 300, 400}, c2Observed)
}

// borrowingFS is a test-local internal/fsapi.FS whose directory handle
// holds a shared (read) borrow across a Switch, modeling spec.md's
// "store context still borrowed" concern (TESTABLE PROPERTY 9) against a
// real fsapi.File rather than a bare mutex.
type borrowingFS struct {
	mu sync.RWMutex
	m  *wasix.Manager
}

func (f *borrowingFS) Open(string, int, fs.FileMode) (fsapi.File, syscall.Errno) {
	return &borrowingDir{fs: f}, 0
}

type borrowingDir struct{ fs *borrowingFS }

func (d *borrowingDir) Read([]byte) (int, syscall.Errno)  { return 0, syscall.EISDIR }
func (d *borrowingDir) Write([]byte) (int, syscall.Errno) { return 0, syscall.EISDIR }
func (d *borrowingDir) Stat() (fs.FileInfo, syscall.Errno) { return nil, syscall.ENOSYS }
func (d *borrowingDir) Close() syscall.Errno               { return 0 }

// ReadDir holds the shared borrow across a switch to another context,
// exactly as S7 describes, then resumes and completes normally.
func (d *borrowingDir) ReadDir() ([]fsapi.Dirent, syscall.Errno) {
	d.fs.mu.RLock()
	d.fs.m.Switch(wasix.MainID)
	d.fs.mu.RUnlock()
	return []fsapi.Dirent{{Name: "entry", Type: fs.ModeDir}}, 0
}

// TestManager_S7_NestedHostCallAcrossSwitchHoldingBorrow is the literal
// scenario S7 and the "core correctness property" it exercises (TESTABLE
// PROPERTY 9): C1's directory read holds a store borrow across
// switch(C2); C2 re-borrows (compatibly, as a second reader) and switches
// back; C1 resumes mid-readdir and completes. A violation of property 9
// would deadlock this test (an exclusive borrow left outstanding across a
// switch would block C2's own read forever), not merely fail an assertion.
func TestManager_S7_NestedHostCallAcrossSwitchHoldingBorrow(t *testing.T) {
	mod := newFakeModule()
	mod.table.refs[0] = 1
	mod.table.refs[1] = 2
	m, err := wasix.NewManager(mod, nil)
	require.NoError(t, err)

	theFS := &borrowingFS{m: m}
	var c1Completed, c2Completed bool

	mod.onCall = func(idx wasm.Index) *api.Trap {
		switch idx {
		case 1:
			dir, errno := theFS.Open("/", 0, 0)
			require.Equal(t, syscall.Errno(0), errno)
			entries, errno := dir.ReadDir() // holds the borrow across Switch(C2)
			require.Equal(t, syscall.Errno(0), errno)
			require.Len(t, entries, 1)
			c1Completed = true
		case 2:
			theFS.mu.RLock()
			theFS.mu.RUnlock()
			c2Completed = true
			m.Switch(wasix.MainID)
		}
		return nil
	}

	c1 := m.Create(0)
	c2 := m.Create(1)

	m.Switch(c1) // C1 takes the borrow mid-readdir, yields
	m.Switch(c2) // C2 re-borrows (shared) without deadlocking, yields
	m.Switch(c1) // C1 resumes mid-readdir and completes

	require.True(t, c2Completed, "C2's own borrow must succeed while C1's is outstanding")
	require.True(t, c1Completed, "C1 must complete its readdir after resuming")
}
