package object

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

const testOwner = sys.Koid(4242)

func TestHandleTableAddGetRemove(t *testing.T) {
	table := NewHandleTable(testOwner, HandleTableOptions{})
	h := makeVMO(t, PageSize)

	v, err := table.AddHandle(h)
	require.NoError(t, err)
	assert.NotEqual(t, sys.HandleInvalid, v)
	assert.Equal(t, uint32(handleMustBeOne), (uint32(v)^table.mixer)&handleMustBeOne)
	assert.Equal(t, testOwner, h.ProcessID())
	assert.Equal(t, 1, table.HandleCount())

	got, ok := table.GetHandle(v)
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Equal(t, v, table.MapHandleToValue(h))
	assert.Equal(t, h.Dispatcher().Koid(), table.GetKoidForHandle(v))

	removed, ok := table.RemoveHandle(v)
	require.True(t, ok)
	assert.Same(t, h, removed)
	assert.Equal(t, sys.KoidInvalid, h.ProcessID())
	assert.Equal(t, 0, table.HandleCount())
	assert.False(t, table.IsHandleValid(v))
	assert.Equal(t, sys.HandleInvalid, table.MapHandleToValue(h))

	h.Release()
}

func TestHandleTableRejectsInvalidValues(t *testing.T) {
	table := NewHandleTable(testOwner, HandleTableOptions{})
	h := makeVMO(t, PageSize)
	v, err := table.AddHandle(h)
	require.NoError(t, err)
	defer table.Clean()

	for _, bad := range []sys.HandleValue{sys.HandleInvalid, v ^ 1, v ^ 2, v + 4, v ^ (1 << 31)} {
		_, ok := table.GetHandle(bad)
		assert.False(t, ok, "value %#x", bad)
	}
	assert.Equal(t, sys.KoidInvalid, table.GetKoidForHandle(sys.HandleInvalid))
}

func TestHandleTableStaleValueAfterReuse(t *testing.T) {
	table := NewHandleTable(testOwner, HandleTableOptions{})

	first := makeVMO(t, PageSize)
	v1, err := table.AddHandle(first)
	require.NoError(t, err)
	removed, ok := table.RemoveHandle(v1)
	require.True(t, ok)
	removed.Release()

	second := makeVMO(t, PageSize)
	v2, err := table.AddHandle(second)
	require.NoError(t, err)
	defer table.Clean()

	assert.NotEqual(t, v1, v2, "reused slot must get a new value")
	_, ok = table.GetHandle(v1)
	assert.False(t, ok, "stale value must not resolve")
	got, ok := table.GetHandle(v2)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestHandleTableCapacity(t *testing.T) {
	table := NewHandleTable(testOwner, HandleTableOptions{MaxHandles: 2})
	defer table.Clean()

	for i := 0; i < 2; i++ {
		_, err := table.AddHandle(makeVMO(t, PageSize))
		require.NoError(t, err)
	}

	extra := makeVMO(t, PageSize)
	_, err := table.AddHandle(extra)
	assert.ErrorIs(t, err, sys.ErrNoMemory)
	assert.Equal(t, sys.KoidInvalid, extra.ProcessID())
	extra.Release()
}

func TestHandleTableHighCountWarningIsThrottled(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	table := NewHandleTable(testOwner, HandleTableOptions{MaxHandles: 8, Logger: zap.New(core)})
	defer table.Clean()

	for i := 0; i < 8; i++ {
		_, err := table.AddHandle(makeVMO(t, PageSize))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, logs.FilterMessage("high handle count").Len())
}

func TestGetDispatcherAsCheckOrder(t *testing.T) {
	table := NewHandleTable(testOwner, HandleTableOptions{})
	defer table.Clean()

	vmo := makeVMO(t, PageSize)
	readOnly := Dup(vmo, sys.RightRead)
	vFull, err := table.AddHandle(vmo)
	require.NoError(t, err)
	vRead, err := table.AddHandle(readOnly)
	require.NoError(t, err)

	_, _, err = GetDispatcherAs[*VMODispatcher](table, sys.HandleInvalid, sys.RightRead)
	assert.ErrorIs(t, err, sys.ErrBadHandle)

	// Type is checked before rights.
	_, _, err = GetDispatcherAs[*ChannelDispatcher](table, vRead, sys.RightWrite)
	assert.ErrorIs(t, err, sys.ErrWrongType)

	_, _, err = GetDispatcherAs[*VMODispatcher](table, vRead, sys.RightWrite)
	assert.ErrorIs(t, err, sys.ErrAccessDenied)

	d, rights, err := GetDispatcherAs[*VMODispatcher](table, vFull, sys.RightsIO)
	require.NoError(t, err)
	assert.Equal(t, sys.DefaultVMORights, rights)
	assert.Same(t, vmo.Dispatcher(), Dispatcher(d))
}

func TestHandleTableRestore(t *testing.T) {
	table := NewHandleTable(testOwner, HandleTableOptions{})
	defer table.Clean()

	var values []sys.HandleValue
	for i := 0; i < 3; i++ {
		v, err := table.AddHandle(makeVMO(t, PageSize))
		require.NoError(t, err)
		values = append(values, v)
	}

	err := table.WithLock(func(lt LockedTable) error {
		var removed []*Handle
		for _, v := range values {
			h, ok := lt.Remove(v)
			require.True(t, ok)
			removed = append(removed, h)
		}
		for i := len(values) - 1; i >= 0; i-- {
			lt.Restore(values[i], removed[i])
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, table.HandleCount())
	for _, v := range values {
		h, ok := table.GetHandle(v)
		require.True(t, ok)
		assert.Equal(t, testOwner, h.ProcessID())
	}
}

func TestHandleTableClean(t *testing.T) {
	table := NewHandleTable(testOwner, HandleTableOptions{})
	a, b := makeChannel(t)
	defer b.Release()

	_, err := table.AddHandle(a)
	require.NoError(t, err)
	assert.Equal(t, testOwner, a.Dispatcher().(*ChannelDispatcher).Owner())

	assert.Equal(t, 1, table.Clean())
	assert.Equal(t, 0, table.HandleCount())
	assert.True(t, b.Dispatcher().(*ChannelDispatcher).PeerClosed())
}

func TestHandleTableForEach(t *testing.T) {
	table := NewHandleTable(testOwner, HandleTableOptions{})
	defer table.Clean()

	want := map[sys.HandleValue]bool{}
	for i := 0; i < 4; i++ {
		v, err := table.AddHandle(makeVMO(t, PageSize))
		require.NoError(t, err)
		want[v] = true
	}

	got := map[sys.HandleValue]bool{}
	table.ForEach(func(v sys.HandleValue, h *Handle) {
		got[v] = true
	})
	assert.Equal(t, want, got)
}

func TestHandleTableConcurrentAccess(t *testing.T) {
	table := NewHandleTable(testOwner, HandleTableOptions{})
	defer table.Clean()

	var mu sync.Mutex
	seen := map[sys.HandleValue]bool{}

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				kh, rights, err := CreateVMO(PageSize, VMOOptions{})
				if err != nil {
					return err
				}
				h := Make(kh, rights)
				v, err := table.AddHandle(h)
				if err != nil {
					return err
				}
				if got, ok := table.GetHandle(v); !ok || got != h {
					return sys.ErrInternal
				}
				if i%2 == 0 {
					removed, ok := table.RemoveHandle(v)
					if !ok {
						return sys.ErrInternal
					}
					removed.Release()
					continue
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, len(seen), table.HandleCount())
	for v := range seen {
		assert.True(t, table.IsHandleValid(v))
	}
}
