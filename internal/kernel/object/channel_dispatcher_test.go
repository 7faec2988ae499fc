package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

func packet(t *testing.T, pool *BufferPool, data string) *MessagePacket {
	t.Helper()
	m, err := NewMessagePacket(pool, []byte(data), 0)
	require.NoError(t, err)
	return m
}

func TestChannelFIFO(t *testing.T) {
	pool := NewBufferPool(64)
	a, b := makeChannel(t)
	defer a.Release()
	defer b.Release()
	ca := a.Dispatcher().(*ChannelDispatcher)
	cb := b.Dispatcher().(*ChannelDispatcher)

	assert.Equal(t, cb.Koid(), ca.RelatedKoid())
	assert.Equal(t, ca.Koid(), cb.RelatedKoid())
	assert.Equal(t, sys.SignalWritable, cb.Signals())

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, ca.Write(sys.KoidInvalid, packet(t, pool, msg)))
	}
	assert.Equal(t, 3, cb.MessageCount())
	assert.True(t, cb.Signals()&sys.SignalReadable != 0)

	for _, want := range []string{"one", "two", "three"} {
		res, err := cb.Read(sys.KoidInvalid, 64, 0, false)
		require.NoError(t, err)
		assert.Equal(t, want, string(res.Packet.Data()))
		res.Packet.Release()
	}
	assert.False(t, cb.Signals()&sys.SignalReadable != 0)

	_, err := cb.Read(sys.KoidInvalid, 64, 0, false)
	assert.ErrorIs(t, err, sys.ErrShouldWait)
	assert.Equal(t, int64(0), pool.Outstanding())
}

func TestChannelReadBufferTooSmall(t *testing.T) {
	pool := NewBufferPool(64)
	a, b := makeChannel(t)
	defer a.Release()
	defer b.Release()
	ca := a.Dispatcher().(*ChannelDispatcher)
	cb := b.Dispatcher().(*ChannelDispatcher)

	require.NoError(t, ca.Write(sys.KoidInvalid, packet(t, pool, "0123456789")))

	res, err := cb.Read(sys.KoidInvalid, 4, 0, false)
	assert.ErrorIs(t, err, sys.ErrBufferTooSmall)
	assert.Equal(t, uint32(10), res.DataSize)
	assert.Nil(t, res.Packet)
	assert.Equal(t, 1, cb.MessageCount(), "message stays queued")

	res, err = cb.Read(sys.KoidInvalid, 10, 0, false)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(res.Packet.Data()))
	res.Packet.Release()
}

func TestChannelReadMayDiscard(t *testing.T) {
	pool := NewBufferPool(64)
	a, b := makeChannel(t)
	defer a.Release()
	defer b.Release()
	ca := a.Dispatcher().(*ChannelDispatcher)
	cb := b.Dispatcher().(*ChannelDispatcher)

	require.NoError(t, ca.Write(sys.KoidInvalid, packet(t, pool, "0123456789")))
	res, err := cb.Read(sys.KoidInvalid, 4, 0, true)
	assert.ErrorIs(t, err, sys.ErrBufferTooSmall)
	assert.Equal(t, uint32(10), res.DataSize)
	assert.Equal(t, 0, cb.MessageCount())
	assert.Equal(t, int64(0), pool.Outstanding())
}

func TestChannelPeerClosed(t *testing.T) {
	pool := NewBufferPool(64)
	a, b := makeChannel(t)
	defer a.Release()
	ca := a.Dispatcher().(*ChannelDispatcher)
	cb := b.Dispatcher().(*ChannelDispatcher)

	require.NoError(t, cb.Write(sys.KoidInvalid, packet(t, pool, "last words")))
	b.Release()

	assert.True(t, ca.PeerClosed())
	assert.True(t, ca.Signals()&sys.SignalPeerClosed != 0)
	assert.False(t, ca.Signals()&sys.SignalWritable != 0)

	msg := packet(t, pool, "hello")
	assert.ErrorIs(t, ca.Write(sys.KoidInvalid, msg), sys.ErrPeerClosed)
	msg.Release()

	res, err := ca.Read(sys.KoidInvalid, 64, 0, false)
	require.NoError(t, err, "queued messages survive the peer")
	assert.Equal(t, "last words", string(res.Packet.Data()))
	res.Packet.Release()

	_, err = ca.Read(sys.KoidInvalid, 64, 0, false)
	assert.ErrorIs(t, err, sys.ErrPeerClosed)
}

func TestChannelOwnerCheck(t *testing.T) {
	pool := NewBufferPool(64)
	a, b := makeChannel(t)
	defer b.Release()

	table := NewHandleTable(testOwner, HandleTableOptions{})
	defer table.Clean()
	_, err := table.AddHandle(a)
	require.NoError(t, err)
	ca := a.Dispatcher().(*ChannelDispatcher)

	msg := packet(t, pool, "x")
	assert.ErrorIs(t, ca.Write(sys.Koid(1), msg), sys.ErrBadHandle)
	require.NoError(t, ca.Write(testOwner, msg))

	_, err = ca.Read(sys.Koid(1), 64, 0, false)
	assert.ErrorIs(t, err, sys.ErrBadHandle)
}

func TestChannelQueueLimit(t *testing.T) {
	pool := NewBufferPool(64)
	kh0, kh1, rights, err := CreateChannel(ChannelOptions{MaxPendingMessages: 2})
	require.NoError(t, err)
	a, b := Make(kh0, rights), Make(kh1, rights)
	defer a.Release()
	defer b.Release()
	ca := a.Dispatcher().(*ChannelDispatcher)

	require.NoError(t, ca.Write(sys.KoidInvalid, packet(t, pool, "1")))
	require.NoError(t, ca.Write(sys.KoidInvalid, packet(t, pool, "2")))
	msg := packet(t, pool, "3")
	assert.ErrorIs(t, ca.Write(sys.KoidInvalid, msg), sys.ErrShouldWait)
	msg.Release()
}

func TestChannelCloseReleasesQueuedHandles(t *testing.T) {
	pool := NewBufferPool(64)
	a, b := makeChannel(t)
	defer a.Release()
	ca := a.Dispatcher().(*ChannelDispatcher)

	vmo := makeVMO(t, PageSize)
	vmoDispatcher := vmo.Dispatcher()
	msg, err := NewMessagePacket(pool, []byte("carry"), 1)
	require.NoError(t, err)
	msg.SetHandles([]*Handle{vmo})
	require.NoError(t, ca.Write(sys.KoidInvalid, msg))

	b.Release()
	assert.Equal(t, uint32(0), vmoDispatcher.HandleCount())
	assert.Equal(t, int64(0), pool.Outstanding())
}

func TestChannelUserSignalPeer(t *testing.T) {
	a, b := makeChannel(t)
	defer a.Release()
	ca := a.Dispatcher().(*ChannelDispatcher)
	cb := b.Dispatcher().(*ChannelDispatcher)

	require.NoError(t, ca.UserSignalPeer(0, 1<<25))
	assert.True(t, cb.Signals()&(1<<25) != 0)
	assert.ErrorIs(t, ca.UserSignalPeer(0, sys.SignalReadable), sys.ErrInvalidArgs)

	b.Release()
	assert.ErrorIs(t, ca.UserSignalPeer(0, 1<<25), sys.ErrPeerClosed)
}

func TestChannelReadableObserver(t *testing.T) {
	pool := NewBufferPool(64)
	a, b := makeChannel(t)
	defer a.Release()
	defer b.Release()
	ca := a.Dispatcher().(*ChannelDispatcher)
	cb := b.Dispatcher().(*ChannelDispatcher)

	w := NewWaiter()
	cb.AddObserver(w, sys.SignalReadable|sys.SignalPeerClosed)

	require.NoError(t, ca.Write(sys.KoidInvalid, packet(t, pool, "ping")))
	signals, err := w.Wait(t.Context())
	require.NoError(t, err)
	assert.True(t, signals&sys.SignalReadable != 0)
}

func TestChannelConcurrentWriters(t *testing.T) {
	pool := NewBufferPool(4096)
	a, b := makeChannel(t)
	defer a.Release()
	defer b.Release()
	ca := a.Dispatcher().(*ChannelDispatcher)
	cb := b.Dispatcher().(*ChannelDispatcher)

	const writers, perWriter = 4, 100
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				msg, err := NewMessagePacket(pool, []byte{byte(w), byte(i)}, 0)
				if err != nil {
					return err
				}
				if err := ca.Write(sys.KoidInvalid, msg); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	last := make(map[byte]int)
	for i := 0; i < writers*perWriter; i++ {
		res, err := cb.Read(sys.KoidInvalid, 2, 0, false)
		require.NoError(t, err)
		data := res.Packet.Data()
		prev, seen := last[data[0]]
		if seen {
			assert.Greater(t, int(data[1]), prev, "per-writer order is preserved")
		}
		last[data[0]] = int(data[1])
		res.Packet.Release()
	}
}

func TestChannelReadAdmitRejectLeavesMessage(t *testing.T) {
	pool := NewBufferPool(64)
	a, b := makeChannel(t)
	defer a.Release()
	defer b.Release()
	ca := a.Dispatcher().(*ChannelDispatcher)
	cb := b.Dispatcher().(*ChannelDispatcher)

	require.NoError(t, ca.Write(sys.KoidInvalid, packet(t, pool, "hi")))
	full := func(uint32) error { return sys.ErrNoMemory }
	_, discarded, err := cb.ReadAdmit(sys.KoidInvalid, 64, 0, false, full)
	assert.ErrorIs(t, err, sys.ErrNoMemory)
	assert.Nil(t, discarded)
	assert.Equal(t, 1, cb.MessageCount())

	res, discarded, err := cb.ReadAdmit(sys.KoidInvalid, 64, 0, false, func(uint32) error { return nil })
	require.NoError(t, err)
	assert.Nil(t, discarded)
	assert.Equal(t, "hi", string(res.Packet.Data()))
	res.Packet.Release()
	assert.Equal(t, 0, cb.MessageCount())
}
