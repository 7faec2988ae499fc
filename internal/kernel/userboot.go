package kernel

import (
	"bytes"
	"context"
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/object"
	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// Bootstrap message framing.
const (
	BootstrapProtocol uint32 = 0x4150585d
	BootstrapVersion  uint32 = 0x00010000
)

// Bootstrap handle types.
const (
	HandleTypeProcSelf   uint32 = 0x01
	HandleTypeJobDefault uint32 = 0x03
	HandleTypeUser0      uint32 = 0xf0
)

// HandleInfo tags a bootstrap handle with its type and a type specific
// argument.
func HandleInfo(typ uint32, arg uint16) uint32 {
	return typ&0xff | uint32(arg)<<16
}

type bootstrapHeader struct {
	Protocol      uint32
	Version       uint32
	HandleInfoOff uint32
	ArgsOff       uint32
	ArgsNum       uint32
}

var bootstrapHeaderSize = binary.Size(bootstrapHeader{})

// BootstrapHandle is one handle carried by a bootstrap message.
type BootstrapHandle struct {
	Info   uint32
	Handle sys.HandleValue
}

// Bootstrap is a decoded bootstrap message.
type Bootstrap struct {
	Handles []BootstrapHandle
	Args    []string
}

// Lookup returns the first handle tagged info.
func (b *Bootstrap) Lookup(info uint32) (sys.HandleValue, bool) {
	for _, h := range b.Handles {
		if h.Info == info {
			return h.Handle, true
		}
	}
	return sys.HandleInvalid, false
}

// EncodeBootstrap lays out the bootstrap payload for handles tagged infos.
func EncodeBootstrap(infos []uint32, args []string) []byte {
	hdr := bootstrapHeader{
		Protocol:      BootstrapProtocol,
		Version:       BootstrapVersion,
		HandleInfoOff: uint32(bootstrapHeaderSize),
		ArgsOff:       uint32(bootstrapHeaderSize + 4*len(infos)),
		ArgsNum:       uint32(len(args)),
	}
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, hdr)
	_ = binary.Write(&buf, binary.LittleEndian, infos)
	for _, arg := range args {
		buf.WriteString(arg)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// ParseBootstrap decodes a bootstrap payload received along with handles.
func ParseBootstrap(data []byte, handles []sys.HandleValue) (*Bootstrap, error) {
	var hdr bootstrapHeader
	if _, err := binary.Decode(data, binary.LittleEndian, &hdr); err != nil {
		return nil, sys.ErrInvalidArgs
	}
	if hdr.Protocol != BootstrapProtocol || hdr.Version != BootstrapVersion {
		return nil, sys.ErrNotSupported
	}
	end := uint64(hdr.HandleInfoOff) + 4*uint64(len(handles))
	if end > uint64(len(data)) || uint64(hdr.ArgsOff) > uint64(len(data)) {
		return nil, sys.ErrInvalidArgs
	}

	b := &Bootstrap{Handles: make([]BootstrapHandle, len(handles))}
	for i, h := range handles {
		off := hdr.HandleInfoOff + uint32(4*i)
		b.Handles[i] = BootstrapHandle{Info: binary.LittleEndian.Uint32(data[off:]), Handle: h}
	}

	rest := data[hdr.ArgsOff:]
	for range hdr.ArgsNum {
		i := bytes.IndexByte(rest, 0)
		if i < 0 {
			return nil, sys.ErrInvalidArgs
		}
		b.Args = append(b.Args, string(rest[:i]))
		rest = rest[i+1:]
	}
	return b, nil
}

// WriteBootstrap sends a bootstrap message over ch, moving the given handles.
func (k *Kernel) WriteBootstrap(ctx context.Context, ch sys.HandleValue, handles []BootstrapHandle, args []string) error {
	infos := make([]uint32, len(handles))
	values := make([]sys.HandleValue, len(handles))
	for i, h := range handles {
		infos[i] = h.Info
		values[i] = h.Handle
	}
	return k.ChannelWrite(ctx, ch, 0, EncodeBootstrap(infos, args), values)
}

// ReadBootstrap reads and decodes the next bootstrap message on ch. The
// received handles are in the caller's table.
func (k *Kernel) ReadBootstrap(ctx context.Context, ch sys.HandleValue) (*Bootstrap, error) {
	data := make([]byte, sys.ChannelMaxMsgBytes)
	handles := make([]sys.HandleValue, sys.ChannelMaxMsgHandles)
	n, nh, err := k.ChannelRead(ctx, ch, 0, data, handles)
	if err != nil {
		return nil, err
	}
	b, err := ParseBootstrap(data[:n], handles[:nh])
	if err != nil {
		for _, h := range handles[:nh] {
			_ = k.HandleClose(ctx, h)
		}
		return nil, err
	}
	return b, nil
}

// Boot creates the first process, "userboot", in the root job and starts
// entry in it. entry receives a channel holding one bootstrap message with
// the process's own handle and a root job handle. Done is closed once the
// root job has no children left.
func (k *Kernel) Boot(ctx context.Context, entry Entry, args ...string) (*object.ProcessDispatcher, error) {
	if entry == nil {
		return nil, sys.ErrInvalidArgs
	}
	if !k.booted.CompareAndSwap(false, true) {
		return nil, sys.ErrBadState
	}

	kh, rights, err := object.CreateProcess(k.rootJob, "userboot", 0, k.processOptions())
	if err != nil {
		return nil, err
	}
	proc := kh.Dispatcher()
	k.watchProcess(proc)
	procHandle := object.Make(kh, rights)
	defer procHandle.Release()

	userKh, kernelKh, chRights, err := object.CreateChannel(k.channelOptions())
	if err != nil {
		return nil, err
	}
	userEnd := object.Make(userKh, chRights)
	kernelEnd := object.Make(kernelKh, chRights)
	defer kernelEnd.Release()

	payload := EncodeBootstrap([]uint32{
		HandleInfo(HandleTypeProcSelf, 0),
		HandleInfo(HandleTypeJobDefault, 0),
	}, args)
	msg, err := object.NewMessagePacket(k.pool, payload, 2)
	if err != nil {
		userEnd.Release()
		return nil, err
	}
	msg.SetHandles([]*object.Handle{
		object.Dup(procHandle, sys.DefaultProcessRights),
		object.Dup(k.rootJobHandle, sys.DefaultJobRights),
	})
	if err := kernelEnd.Dispatcher().(*object.ChannelDispatcher).Write(sys.KoidInvalid, msg); err != nil {
		msg.Release()
		userEnd.Release()
		return nil, err
	}

	bootstrap, err := proc.HandleTable().AddHandle(userEnd)
	if err != nil {
		userEnd.Release()
		return nil, err
	}
	procCtx, err := proc.Start(k.baseCtx)
	if err != nil {
		return nil, err
	}
	object.WatchRootJob(k.rootJob, func() { k.closeDone("root job has no children") })

	k.tracer.Record(tracing.TagProcStart, proc.Koid(), k.rootJob.Koid(), proc.Name(), int64(bootstrap))
	k.logger.Info("userboot started",
		zap.Uint64("koid", uint64(proc.Koid())),
		zap.Strings("args", args),
	)
	k.entries.Add(1)
	go k.runEntry(procCtx, proc, entry, bootstrap)
	return proc, nil
}
