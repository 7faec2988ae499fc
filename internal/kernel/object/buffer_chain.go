package object

import (
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// BufferSize is the size of one message buffer.
const BufferSize = 2048

type buffer = [BufferSize]byte

// BufferPool hands out message buffers up to a fixed budget. Running out of
// budget is ErrNoMemory.
type BufferPool struct {
	buffers     sync.Pool
	limit       int64
	outstanding atomic.Int64
}

// NewBufferPool creates a pool that allows at most maxBuffers buffers to be
// allocated at once.
func NewBufferPool(maxBuffers int) *BufferPool {
	p := &BufferPool{limit: int64(maxBuffers)}
	p.buffers.New = func() any { return new(buffer) }
	return p
}

// Outstanding is the number of buffers currently allocated.
func (p *BufferPool) Outstanding() int64 { return p.outstanding.Load() }

// Allocate returns a chain able to hold size bytes.
func (p *BufferPool) Allocate(size int) (*BufferChain, error) {
	n := (size + BufferSize - 1) / BufferSize
	if n == 0 {
		n = 1
	}
	if p.outstanding.Add(int64(n)) > p.limit {
		p.outstanding.Add(-int64(n))
		return nil, sys.ErrNoMemory
	}

	c := &BufferChain{pool: p, size: size, bufs: make([]*buffer, n)}
	for i := range c.bufs {
		c.bufs[i] = p.buffers.Get().(*buffer)
	}
	return c, nil
}

// BufferChain is a sequence of fixed-size buffers addressed as one byte
// range.
type BufferChain struct {
	pool *BufferPool
	bufs []*buffer
	size int
}

func (c *BufferChain) Size() int { return c.size }

// CopyIn writes src at offset off. The range must lie within the chain.
func (c *BufferChain) CopyIn(off int, src []byte) {
	if off < 0 || off+len(src) > c.size {
		panic("object: buffer chain write out of range")
	}
	for len(src) > 0 {
		buf := c.bufs[off/BufferSize]
		n := copy(buf[off%BufferSize:], src)
		src = src[n:]
		off += n
	}
}

// CopyOut reads into dst from offset off and returns the bytes copied.
func (c *BufferChain) CopyOut(off int, dst []byte) int {
	if off < 0 || off >= c.size {
		return 0
	}
	if avail := c.size - off; len(dst) > avail {
		dst = dst[:avail]
	}
	total := 0
	for len(dst) > 0 {
		buf := c.bufs[off/BufferSize]
		n := copy(dst, buf[off%BufferSize:])
		dst = dst[n:]
		off += n
		total += n
	}
	return total
}

// Free returns the buffers to the pool. The chain is unusable afterwards.
func (c *BufferChain) Free() {
	if c.bufs == nil {
		return
	}
	for _, buf := range c.bufs {
		clear(buf[:])
		c.pool.buffers.Put(buf)
	}
	c.pool.outstanding.Add(-int64(len(c.bufs)))
	c.bufs = nil
	c.size = 0
}
