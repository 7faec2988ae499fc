package object

import (
	"encoding/binary"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// Packet layout inside its buffer chain:
//
//	[0, 16)                 header: data size, handle count, payload offset, flags
//	[16, 16+8*handles)      one slot per handle, holding the object's koid
//	[payload offset, ...)   payload bytes
const (
	MaxMessageBytes   = 65536
	MaxMessageHandles = 64
	HandlesOffset     = 16
	HandleSlotSize    = 8
)

// Object-layer limits must match the ABI.
var (
	_ [0]struct{} = [MaxMessageBytes - sys.ChannelMaxMsgBytes]struct{}{}
	_ [0]struct{} = [MaxMessageHandles - sys.ChannelMaxMsgHandles]struct{}{}
)

// The header and every handle slot fit in the first buffer.
const _ = uint(BufferSize - HandlesOffset - MaxMessageHandles*HandleSlotSize)

// PayloadOffset is where the payload starts in a packet with numHandles
// handles.
func PayloadOffset(numHandles uint32) uint32 {
	return HandlesOffset + numHandles*HandleSlotSize
}

// MessagePacket is one channel message. It is immutable once handles are
// attached, and owns those handles until a reader takes them.
type MessagePacket struct {
	chain         *BufferChain
	dataSize      uint32
	numHandles    uint32
	payloadOffset uint32
	handles       []*Handle
	ownsHandles   bool
}

// NewMessagePacket copies data into a packet with room for numHandles
// handles. Oversized requests fail with ErrOutOfRange before any buffer is
// allocated.
func NewMessagePacket(pool *BufferPool, data []byte, numHandles uint32) (*MessagePacket, error) {
	if len(data) > MaxMessageBytes || numHandles > MaxMessageHandles {
		return nil, sys.ErrOutOfRange
	}

	offset := PayloadOffset(numHandles)
	chain, err := pool.Allocate(int(offset) + len(data))
	if err != nil {
		return nil, err
	}

	m := &MessagePacket{
		chain:         chain,
		dataSize:      uint32(len(data)),
		numHandles:    numHandles,
		payloadOffset: offset,
		handles:       make([]*Handle, numHandles),
	}

	var header [HandlesOffset]byte
	binary.LittleEndian.PutUint32(header[0:], m.dataSize)
	binary.LittleEndian.PutUint32(header[4:], m.numHandles)
	binary.LittleEndian.PutUint32(header[8:], m.payloadOffset)
	chain.CopyIn(0, header[:])
	chain.CopyIn(int(offset), data)
	return m, nil
}

func (m *MessagePacket) DataSize() uint32 { return m.dataSize }

func (m *MessagePacket) NumHandles() uint32 { return m.numHandles }

func (m *MessagePacket) PayloadOffset() uint32 { return m.payloadOffset }

// CopyData copies the payload into dst and returns the bytes copied.
func (m *MessagePacket) CopyData(dst []byte) int {
	if uint32(len(dst)) > m.dataSize {
		dst = dst[:m.dataSize]
	}
	return m.chain.CopyOut(int(m.payloadOffset), dst)
}

// Data returns a copy of the payload.
func (m *MessagePacket) Data() []byte {
	out := make([]byte, m.dataSize)
	m.CopyData(out)
	return out
}

// Handles returns the attached handles without transferring ownership.
func (m *MessagePacket) Handles() []*Handle { return m.handles }

// SetHandles attaches exactly NumHandles handles and makes the packet their
// owner.
func (m *MessagePacket) SetHandles(handles []*Handle) {
	if uint32(len(handles)) != m.numHandles {
		panic("object: handle count does not match packet")
	}
	copy(m.handles, handles)
	var slot [HandleSlotSize]byte
	for i, h := range handles {
		binary.LittleEndian.PutUint64(slot[:], uint64(h.dispatcher.Koid()))
		m.chain.CopyIn(HandlesOffset+i*HandleSlotSize, slot[:])
	}
	m.ownsHandles = true
}

// TakeHandles transfers ownership of the attached handles to the caller.
func (m *MessagePacket) TakeHandles() []*Handle {
	m.ownsHandles = false
	return m.handles
}

// Release frees the packet's buffers and any handles it still owns.
func (m *MessagePacket) Release() {
	if m.ownsHandles {
		m.ownsHandles = false
		for _, h := range m.handles {
			h.Release()
		}
	}
	m.chain.Free()
}
