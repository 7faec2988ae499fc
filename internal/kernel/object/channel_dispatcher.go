package object

import (
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// DefaultMaxPendingMessages bounds an endpoint's queue when ChannelOptions
// leaves it unset.
const DefaultMaxPendingMessages = 3500

// ChannelOptions configures CreateChannel.
type ChannelOptions struct {
	MaxPendingMessages int
}

// channelPair is the lock shared by both endpoints of a channel. It guards
// both queues and both peer links.
type channelPair struct {
	mu sync.Mutex
}

// ChannelDispatcher is one endpoint of a bidirectional message channel.
// Messages written to an endpoint are queued on its peer.
type ChannelDispatcher struct {
	BaseDispatcher

	pair       *channelPair
	peer       *ChannelDispatcher
	peerKoid   sys.Koid
	messages   []*MessagePacket
	maxPending int

	owner atomic.Uint64
}

// CreateChannel creates both endpoints of a channel.
func CreateChannel(opts ChannelOptions) (*KernelHandle[*ChannelDispatcher], *KernelHandle[*ChannelDispatcher], sys.Rights, error) {
	maxPending := opts.MaxPendingMessages
	if maxPending <= 0 {
		maxPending = DefaultMaxPendingMessages
	}

	pair := &channelPair{}
	a := &ChannelDispatcher{pair: pair, maxPending: maxPending}
	b := &ChannelDispatcher{pair: pair, maxPending: maxPending}
	a.init(sys.ObjTypeChannel, sys.SignalWritable)
	b.init(sys.ObjTypeChannel, sys.SignalWritable)
	a.peer, a.peerKoid = b, b.Koid()
	b.peer, b.peerKoid = a, a.Koid()

	return NewKernelHandle(a), NewKernelHandle(b), sys.DefaultChannelRights, nil
}

func (*ChannelDispatcher) Type() sys.ObjType { return sys.ObjTypeChannel }

func (*ChannelDispatcher) DefaultRights() sys.Rights { return sys.DefaultChannelRights }

// RelatedKoid is the peer endpoint's koid, even after the peer is gone.
func (c *ChannelDispatcher) RelatedKoid() sys.Koid { return c.peerKoid }

// Owner is the koid of the process whose table holds this endpoint, or
// sys.KoidInvalid while the endpoint is held by the kernel or in flight.
func (c *ChannelDispatcher) Owner() sys.Koid { return sys.Koid(c.owner.Load()) }

func (c *ChannelDispatcher) setOwner(owner sys.Koid) { c.owner.Store(uint64(owner)) }

// PeerClosed reports whether the other endpoint is gone.
func (c *ChannelDispatcher) PeerClosed() bool {
	c.pair.mu.Lock()
	defer c.pair.mu.Unlock()
	return c.peer == nil
}

// MessageCount is the number of messages waiting to be read here.
func (c *ChannelDispatcher) MessageCount() int {
	c.pair.mu.Lock()
	defer c.pair.mu.Unlock()
	return len(c.messages)
}

// Write queues msg on the peer. On success the peer owns msg; on failure the
// caller keeps it.
func (c *ChannelDispatcher) Write(owner sys.Koid, msg *MessagePacket) error {
	c.pair.mu.Lock()
	if owner != c.Owner() {
		c.pair.mu.Unlock()
		return sys.ErrBadHandle
	}
	peer := c.peer
	if peer == nil {
		c.pair.mu.Unlock()
		return sys.ErrPeerClosed
	}
	if len(peer.messages) >= peer.maxPending {
		c.pair.mu.Unlock()
		return sys.ErrShouldWait
	}
	peer.messages = append(peer.messages, msg)
	n := peer.updateState(0, sys.SignalReadable)
	c.pair.mu.Unlock()

	n.fire()
	return nil
}

// ReadResult describes the message at the head of the queue.
type ReadResult struct {
	Packet     *MessagePacket
	DataSize   uint32
	NumHandles uint32
}

// Read dequeues the oldest message if it fits in maxBytes and maxHandles.
// A message that does not fit fails with ErrBufferTooSmall and the sizes it
// needs; it stays queued unless mayDiscard is set. An empty queue is
// ErrShouldWait, or ErrPeerClosed once the peer is gone.
func (c *ChannelDispatcher) Read(owner sys.Koid, maxBytes, maxHandles uint32, mayDiscard bool) (ReadResult, error) {
	res, discarded, err := c.ReadAdmit(owner, maxBytes, maxHandles, mayDiscard, nil)
	if discarded != nil {
		discarded.Release()
	}
	return res, err
}

// ReadAdmit is Read with admit consulted under the channel lock once the
// head message is known to fit. An admit error is returned with the message
// left queued. A message dropped by mayDiscard comes back as discarded for
// the caller to release.
func (c *ChannelDispatcher) ReadAdmit(owner sys.Koid, maxBytes, maxHandles uint32, mayDiscard bool, admit func(numHandles uint32) error) (res ReadResult, discarded *MessagePacket, err error) {
	c.pair.mu.Lock()
	if owner != c.Owner() {
		c.pair.mu.Unlock()
		return ReadResult{}, nil, sys.ErrBadHandle
	}
	if len(c.messages) == 0 {
		peerGone := c.peer == nil
		c.pair.mu.Unlock()
		if peerGone {
			return ReadResult{}, nil, sys.ErrPeerClosed
		}
		return ReadResult{}, nil, sys.ErrShouldWait
	}

	head := c.messages[0]
	res = ReadResult{DataSize: head.DataSize(), NumHandles: head.NumHandles()}
	fits := res.DataSize <= maxBytes && res.NumHandles <= maxHandles
	if !fits && !mayDiscard {
		c.pair.mu.Unlock()
		return res, nil, sys.ErrBufferTooSmall
	}
	if fits && admit != nil {
		if err := admit(res.NumHandles); err != nil {
			c.pair.mu.Unlock()
			return res, nil, err
		}
	}

	c.messages[0] = nil
	c.messages = c.messages[1:]
	var n pendingNotify
	if len(c.messages) == 0 {
		c.messages = nil
		n = c.updateState(sys.SignalReadable, 0)
	}
	c.pair.mu.Unlock()
	n.fire()

	if !fits {
		return res, head, sys.ErrBufferTooSmall
	}
	res.Packet = head
	return res, nil, nil
}

// UserSignalPeer changes user signals on the peer endpoint.
func (c *ChannelDispatcher) UserSignalPeer(clear, set sys.Signals) error {
	if (clear|set)&^sys.SignalUserAll != 0 {
		return sys.ErrInvalidArgs
	}
	c.pair.mu.Lock()
	peer := c.peer
	if peer == nil {
		c.pair.mu.Unlock()
		return sys.ErrPeerClosed
	}
	n := peer.updateState(clear, set)
	c.pair.mu.Unlock()
	n.fire()
	return nil
}

func (c *ChannelDispatcher) onZeroHandles() {
	c.pair.mu.Lock()
	peer := c.peer
	c.peer = nil
	dropped := c.messages
	c.messages = nil
	var n pendingNotify
	if peer != nil {
		peer.peer = nil
		n = peer.updateState(sys.SignalWritable, sys.SignalPeerClosed)
	}
	c.pair.mu.Unlock()

	n.fire()
	for _, msg := range dropped {
		msg.Release()
	}
	c.cancelObservers()
}
