package kernel

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/fiberkernel/internal/kernel/object"
	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

func TestObjectGetInfoHandleBasic(t *testing.T) {
	k := newKernel(t)
	ctx, _, root := newCaller(t, k, k.RootJob())

	a, b, err := k.ChannelCreate(ctx, 0)
	require.NoError(t, err)

	ia, ib := basicInfo(t, ctx, k, a), basicInfo(t, ctx, k, b)
	assert.Equal(t, sys.ObjTypeChannel, ia.Type)
	assert.Equal(t, sys.DefaultChannelRights, ia.Rights)
	assert.Equal(t, ib.Koid, ia.RelatedKoid)
	assert.Equal(t, ia.Koid, ib.RelatedKoid)

	jobInfo := basicInfo(t, ctx, k, root)
	assert.Equal(t, sys.ObjTypeJob, jobInfo.Type)
	assert.Equal(t, sys.KoidInvalid, jobInfo.RelatedKoid)

	proc, err := k.ProcessCreate(ctx, root, "child", 0)
	require.NoError(t, err)
	assert.Equal(t, k.RootJob().Koid(), basicInfo(t, ctx, k, proc).RelatedKoid)

	_, avail, err := k.ObjectGetInfo(ctx, a, sys.InfoHandleBasic, make([]byte, 8))
	assert.ErrorIs(t, err, sys.ErrBufferTooSmall)
	assert.Equal(t, 1, avail)

	_, _, err = k.ObjectGetInfo(ctx, a, sys.Topic(99), make([]byte, 64))
	assert.ErrorIs(t, err, sys.ErrNotSupported)

	_, _, err = k.ObjectGetInfo(ctx, a, sys.InfoHandleValid, nil)
	assert.NoError(t, err)
	require.NoError(t, k.HandleClose(ctx, a))
	_, _, err = k.ObjectGetInfo(ctx, a, sys.InfoHandleValid, nil)
	assert.ErrorIs(t, err, sys.ErrBadHandle)
}

func TestObjectGetInfoJob(t *testing.T) {
	k := newKernel(t)
	ctx, _, root := newCaller(t, k, k.RootJob())

	job, _, err := k.JobCreate(ctx, root, 0)
	require.NoError(t, err)
	proc, err := k.ProcessCreate(ctx, job, "p", 0)
	require.NoError(t, err)

	buf := make([]byte, 8*4)
	actual, avail, err := k.ObjectGetInfo(ctx, job, sys.InfoJobProcesses, buf)
	require.NoError(t, err)
	assert.Equal(t, 1, actual)
	assert.Equal(t, 1, avail)
	assert.Equal(t, koidOf(t, ctx, k, proc), sys.Koid(binary.LittleEndian.Uint64(buf)))

	var rec sys.InfoJobRecord
	buf = make([]byte, binary.Size(rec))
	_, _, err = k.ObjectGetInfo(ctx, job, sys.InfoJob, buf)
	require.NoError(t, err)
	_, err = binary.Decode(buf, binary.LittleEndian, &rec)
	require.NoError(t, err)
	assert.Zero(t, rec.Exited)

	var count sys.InfoHandleCountRecord
	buf = make([]byte, binary.Size(count))
	_, _, err = k.ObjectGetInfo(ctx, job, sys.InfoHandleCount, buf)
	require.NoError(t, err)
	_, err = binary.Decode(buf, binary.LittleEndian, &count)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), count.HandleCount)

	_, _, err = k.ObjectGetInfo(ctx, proc, sys.InfoJob, buf)
	assert.ErrorIs(t, err, sys.ErrWrongType)
}

func TestObjectProperties(t *testing.T) {
	k := newKernel(t)
	ctx, _, _ := newCaller(t, k, k.RootJob())

	vmo, err := k.VmoCreate(ctx, 4096, 0)
	require.NoError(t, err)

	require.NoError(t, k.ObjectSetProperty(ctx, vmo, sys.PropName, []byte("framebuffer\x00junk")))
	buf := make([]byte, sys.MaxNameLen)
	require.NoError(t, k.ObjectGetProperty(ctx, vmo, sys.PropName, buf))
	assert.Equal(t, "framebuffer", string(buf[:len("framebuffer")]))
	assert.Zero(t, buf[len("framebuffer")])

	long := make([]byte, 2*sys.MaxNameLen)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, k.ObjectSetProperty(ctx, vmo, sys.PropName, long))
	require.NoError(t, k.ObjectGetProperty(ctx, vmo, sys.PropName, buf))
	assert.Zero(t, buf[sys.MaxNameLen-1])

	assert.ErrorIs(t, k.ObjectGetProperty(ctx, vmo, sys.PropName, make([]byte, 4)), sys.ErrBufferTooSmall)
	assert.ErrorIs(t, k.ObjectGetProperty(ctx, vmo, 77, buf), sys.ErrInvalidArgs)

	a, _, err := k.ChannelCreate(ctx, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, k.ObjectGetProperty(ctx, a, sys.PropName, buf), sys.ErrAccessDenied)

	ro, err := k.HandleDuplicate(ctx, vmo, sys.RightGetProperty)
	require.NoError(t, err)
	assert.ErrorIs(t, k.ObjectSetProperty(ctx, ro, sys.PropName, []byte("x")), sys.ErrAccessDenied)
}

func TestObjectSignals(t *testing.T) {
	k := newKernel(t)
	ctx, _, _ := newCaller(t, k, k.RootJob())

	a, b, err := k.ChannelCreate(ctx, 0)
	require.NoError(t, err)

	w := object.NewWaiter()
	cancel, err := k.ObjectWaitAsync(ctx, b, sys.SignalUser0, w)
	require.NoError(t, err)
	require.NoError(t, k.ObjectSignalPeer(ctx, a, 0, sys.SignalUser0))
	got := <-w.C()
	assert.NotZero(t, got&sys.SignalUser0)
	assert.False(t, cancel())

	require.NoError(t, k.ObjectSignal(ctx, a, 0, sys.SignalUser1))
	assert.ErrorIs(t, k.ObjectSignal(ctx, a, 0, sys.SignalReadable), sys.ErrInvalidArgs)

	vmo, err := k.VmoCreate(ctx, 4096, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, k.ObjectSignalPeer(ctx, vmo, 0, sys.SignalUser0), sys.ErrAccessDenied)
}

func TestObjectWaitAsyncReadable(t *testing.T) {
	k := newKernel(t)
	ctx, _, _ := newCaller(t, k, k.RootJob())

	a, b, err := k.ChannelCreate(ctx, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, k.ObjectPollReadable(ctx, b), sys.ErrShouldWait)

	w := object.NewWaiter()
	cancel, err := k.ObjectWaitAsync(ctx, b, sys.SignalReadable|sys.SignalPeerClosed, w)
	require.NoError(t, err)
	require.NoError(t, k.ChannelWrite(ctx, a, 0, []byte("x"), nil))

	got := <-w.C()
	assert.NotZero(t, got&sys.SignalReadable)
	assert.NoError(t, k.ObjectPollReadable(ctx, b))
	assert.False(t, cancel())

	pending := object.NewWaiter()
	cancel, err = k.ObjectWaitAsync(ctx, a, sys.SignalReadable, pending)
	require.NoError(t, err)
	assert.True(t, cancel())

	_, err = k.ObjectWaitAsync(ctx, a, 0, object.NewWaiter())
	assert.ErrorIs(t, err, sys.ErrInvalidArgs)
	noWait, err := k.HandleReplace(ctx, a, sys.RightRead|sys.RightWrite)
	require.NoError(t, err)
	_, err = k.ObjectWaitAsync(ctx, noWait, sys.SignalReadable, object.NewWaiter())
	assert.ErrorIs(t, err, sys.ErrAccessDenied)
}
