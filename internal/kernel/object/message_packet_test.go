package object

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

func TestPayloadOffset(t *testing.T) {
	assert.Equal(t, uint32(HandlesOffset), PayloadOffset(0))
	assert.Equal(t, uint32(HandlesOffset+3*HandleSlotSize), PayloadOffset(3))
	assert.Equal(t, uint32(HandlesOffset+MaxMessageHandles*HandleSlotSize), PayloadOffset(sys.ChannelMaxMsgHandles))
}

func TestMessagePacketBounds(t *testing.T) {
	pool := NewBufferPool(1024)

	tests := []struct {
		name       string
		size       int
		numHandles uint32
		err        error
	}{
		{"empty", 0, 0, nil},
		{"max payload", sys.ChannelMaxMsgBytes, 0, nil},
		{"max handles", 1, sys.ChannelMaxMsgHandles, nil},
		{"payload too large", sys.ChannelMaxMsgBytes + 1, 0, sys.ErrOutOfRange},
		{"too many handles", 1, sys.ChannelMaxMsgHandles + 1, sys.ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMessagePacket(pool, make([]byte, tt.size), tt.numHandles)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, int64(0), pool.Outstanding(), "no buffers allocated on bound failure")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint32(tt.size), m.DataSize())
			assert.Equal(t, tt.numHandles, m.NumHandles())
			assert.Equal(t, PayloadOffset(tt.numHandles), m.PayloadOffset())
			m.Release()
			assert.Equal(t, int64(0), pool.Outstanding())
		})
	}
}

func TestMessagePacketLayout(t *testing.T) {
	pool := NewBufferPool(1024)
	payload := bytes.Repeat([]byte("fiber"), 1000)

	vmo := makeVMO(t, PageSize)
	m, err := NewMessagePacket(pool, payload, 1)
	require.NoError(t, err)
	m.SetHandles([]*Handle{vmo})

	assert.Equal(t, payload, m.Data())
	assert.Equal(t, 3, len(m.chain.bufs), "payload spans several buffers")

	header := make([]byte, HandlesOffset+HandleSlotSize)
	m.chain.CopyOut(0, header)
	assert.Equal(t, uint32(len(payload)), binary.LittleEndian.Uint32(header[0:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(header[4:]))
	assert.Equal(t, PayloadOffset(1), binary.LittleEndian.Uint32(header[8:]))
	assert.Equal(t, uint64(vmo.Dispatcher().Koid()), binary.LittleEndian.Uint64(header[HandlesOffset:]))

	short := make([]byte, 7)
	assert.Equal(t, 7, m.CopyData(short))
	assert.Equal(t, payload[:7], short)

	d := vmo.Dispatcher()
	m.Release()
	assert.Equal(t, uint32(0), d.HandleCount(), "packet releases handles it owns")
}

func TestMessagePacketTakeHandles(t *testing.T) {
	pool := NewBufferPool(16)
	vmo := makeVMO(t, PageSize)
	defer vmo.Release()

	m, err := NewMessagePacket(pool, nil, 1)
	require.NoError(t, err)
	m.SetHandles([]*Handle{vmo})

	taken := m.TakeHandles()
	require.Len(t, taken, 1)
	m.Release()
	assert.Equal(t, uint32(1), vmo.Dispatcher().HandleCount())
}

func TestMessagePacketSetHandlesCountMismatch(t *testing.T) {
	pool := NewBufferPool(16)
	m, err := NewMessagePacket(pool, nil, 2)
	require.NoError(t, err)
	defer m.Release()
	assert.Panics(t, func() { m.SetHandles(nil) })
}

func TestBufferPoolExhaustion(t *testing.T) {
	pool := NewBufferPool(2)

	first, err := pool.Allocate(BufferSize + 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pool.Outstanding())

	_, err = NewMessagePacket(pool, []byte("x"), 0)
	assert.ErrorIs(t, err, sys.ErrNoMemory)
	assert.Equal(t, int64(2), pool.Outstanding())

	first.Free()
	first.Free()
	assert.Equal(t, int64(0), pool.Outstanding())
}

func TestBufferChainCopy(t *testing.T) {
	pool := NewBufferPool(8)
	chain, err := pool.Allocate(3 * BufferSize)
	require.NoError(t, err)
	defer chain.Free()

	data := bytes.Repeat([]byte{0xab}, BufferSize+10)
	chain.CopyIn(BufferSize-5, data)

	out := make([]byte, len(data))
	assert.Equal(t, len(data), chain.CopyOut(BufferSize-5, out))
	assert.Equal(t, data, out)

	assert.Equal(t, 0, chain.CopyOut(chain.Size(), out))
	assert.Panics(t, func() { chain.CopyIn(chain.Size()-1, []byte{1, 2}) })
}
