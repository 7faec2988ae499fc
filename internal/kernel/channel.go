package kernel

import (
	"context"

	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/object"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/scope"
	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// ChannelCreate creates a connected pair of endpoints in the caller's table.
func (k *Kernel) ChannelCreate(ctx context.Context, options uint32) (out0, out1 sys.HandleValue, err error) {
	defer k.syscall(ctx, "channel_create")(&err)
	caller := scope.Current(ctx)

	if options != 0 {
		return sys.HandleInvalid, sys.HandleInvalid, sys.ErrInvalidArgs
	}
	if err := k.enforce(caller, sys.PolicyNewChannel); err != nil {
		return sys.HandleInvalid, sys.HandleInvalid, err
	}
	kh0, kh1, rights, err := object.CreateChannel(k.channelOptions())
	if err != nil {
		return sys.HandleInvalid, sys.HandleInvalid, err
	}
	koid0, koid1 := kh0.Dispatcher().Koid(), kh1.Dispatcher().Koid()
	h0, h1 := object.Make(kh0, rights), object.Make(kh1, rights)

	err = caller.HandleTable().WithLock(func(lt object.LockedTable) error {
		if lt.Available() < 2 {
			return sys.ErrNoMemory
		}
		out0, _ = lt.Add(h0)
		out1, _ = lt.Add(h1)
		return nil
	})
	if err != nil {
		h0.Release()
		h1.Release()
		return sys.HandleInvalid, sys.HandleInvalid, err
	}

	k.metrics.RecordObjectCreated(sys.ObjTypeChannel.String())
	k.tracer.Record(tracing.TagChannelCreate, koid0, koid1, "", 0)
	return out0, out1, nil
}

// ChannelWrite sends data and moves handles to the peer endpoint. Either the
// whole message is queued and every handle leaves the caller, or nothing
// changes.
func (k *Kernel) ChannelWrite(ctx context.Context, h sys.HandleValue, options uint32, data []byte, handles []sys.HandleValue) (err error) {
	defer k.syscall(ctx, "channel_write")(&err)
	if options != 0 {
		return sys.ErrInvalidArgs
	}
	if len(data) > sys.ChannelMaxMsgBytes || len(handles) > sys.ChannelMaxMsgHandles {
		return sys.ErrOutOfRange
	}
	disps := make([]sys.HandleDisposition, len(handles))
	for i, v := range handles {
		disps[i] = sys.HandleDisposition{Operation: sys.HandleOpMove, Handle: v, Rights: sys.RightSameRights}
	}
	return k.channelWrite(scope.Current(ctx), h, data, disps)
}

// ChannelWriteEtc is ChannelWrite with per-handle dispositions. Each
// disposition's Result is filled in; the first failure aborts the write.
func (k *Kernel) ChannelWriteEtc(ctx context.Context, h sys.HandleValue, options uint32, data []byte, disps []sys.HandleDisposition) (err error) {
	defer k.syscall(ctx, "channel_write_etc")(&err)
	if options != 0 {
		return sys.ErrInvalidArgs
	}
	if len(data) > sys.ChannelMaxMsgBytes || len(disps) > sys.ChannelMaxMsgHandles {
		return sys.ErrOutOfRange
	}
	return k.channelWrite(scope.Current(ctx), h, data, disps)
}

// detached is a handle taken out of the writer's table for a message.
type detached struct {
	value  sys.HandleValue
	handle *object.Handle
}

func (k *Kernel) channelWrite(caller *object.ProcessDispatcher, h sys.HandleValue, data []byte, disps []sys.HandleDisposition) error {
	table := caller.HandleTable()
	ch, _, err := object.GetDispatcherAs[*object.ChannelDispatcher](table, h, sys.RightWrite)
	if err != nil {
		return err
	}
	msg, err := object.NewMessagePacket(k.pool, data, uint32(len(disps)))
	if err != nil {
		return err
	}

	// Handles created for the message, and originals a reduced-rights move
	// replaced. Whichever side loses is released once the table is unlocked.
	var created, replaced []*object.Handle
	err = table.WithLock(func(lt object.LockedTable) error {
		handles := make([]*object.Handle, len(disps))
		moved := make(map[sys.HandleValue]bool, len(disps))
		for i := range disps {
			disps[i].Result = sys.OK
		}
		for i := range disps {
			d := &disps[i]
			src, err := checkDisposition(lt, ch, d, moved)
			if err != nil {
				d.Result = sys.StatusOf(err)
				return err
			}
			rights := d.Rights
			if rights == sys.RightSameRights {
				rights = src.Rights()
			}
			switch {
			case d.Operation == sys.HandleOpMove && rights == src.Rights():
				handles[i] = src
			default:
				handles[i] = object.Dup(src, rights)
				created = append(created, handles[i])
			}
		}

		var removed []detached
		for i := range disps {
			d := disps[i]
			if d.Operation != sys.HandleOpMove {
				continue
			}
			src, _ := lt.Remove(d.Handle)
			removed = append(removed, detached{value: d.Handle, handle: src})
			if handles[i] != src {
				replaced = append(replaced, src)
			}
		}

		msg.SetHandles(handles)
		if err := ch.Write(lt.Owner(), msg); err != nil {
			msg.TakeHandles()
			for j := len(removed) - 1; j >= 0; j-- {
				lt.Restore(removed[j].value, removed[j].handle)
			}
			replaced = nil
			return err
		}
		created = nil
		return nil
	})

	for _, h := range created {
		h.Release()
	}
	for _, h := range replaced {
		h.Release()
	}
	if err != nil {
		msg.Release()
		return err
	}
	k.metrics.RecordChannelMessage("write")
	return nil
}

// checkDisposition validates one outgoing handle without changing anything.
func checkDisposition(lt object.LockedTable, ch *object.ChannelDispatcher, d *sys.HandleDisposition, moved map[sys.HandleValue]bool) (*object.Handle, error) {
	src, ok := lt.Get(d.Handle)
	if !ok {
		return nil, sys.ErrBadHandle
	}
	if src.Dispatcher() == object.Dispatcher(ch) {
		return nil, sys.ErrNotSupported
	}
	if d.Type != sys.ObjTypeNone && src.Dispatcher().Type() != d.Type {
		return nil, sys.ErrWrongType
	}
	if d.Rights != sys.RightSameRights && !d.Rights.IsSubsetOf(src.Rights()) {
		return nil, sys.ErrInvalidArgs
	}

	switch d.Operation {
	case sys.HandleOpMove:
		if _, seen := moved[d.Handle]; seen {
			return nil, sys.ErrBadHandle
		}
		moved[d.Handle] = true
		if !src.HasRights(sys.RightTransfer) {
			return nil, sys.ErrAccessDenied
		}
	case sys.HandleOpDuplicate:
		if moved[d.Handle] {
			return nil, sys.ErrBadHandle
		}
		moved[d.Handle] = false
		if !src.HasRights(sys.RightDuplicate) {
			return nil, sys.ErrAccessDenied
		}
	default:
		return nil, sys.ErrInvalidArgs
	}
	return src, nil
}

// ChannelRead takes the oldest message off the endpoint. The message's bytes
// go to data and its handles are installed in the caller's table. When the
// message does not fit, ErrBufferTooSmall is returned along with the sizes it
// needs; with sys.ChannelReadMayDiscard the message is dropped as well.
func (k *Kernel) ChannelRead(ctx context.Context, h sys.HandleValue, options uint32, data []byte, handles []sys.HandleValue) (actualBytes, actualHandles uint32, err error) {
	defer k.syscall(ctx, "channel_read")(&err)
	return k.channelRead(scope.Current(ctx), h, options, data, len(handles), func(i int, v sys.HandleValue, _ *object.Handle) {
		handles[i] = v
	})
}

// ChannelReadEtc is ChannelRead reporting the type and rights of each
// received handle.
func (k *Kernel) ChannelReadEtc(ctx context.Context, h sys.HandleValue, options uint32, data []byte, handles []sys.HandleInfo) (actualBytes, actualHandles uint32, err error) {
	defer k.syscall(ctx, "channel_read_etc")(&err)
	return k.channelRead(scope.Current(ctx), h, options, data, len(handles), func(i int, v sys.HandleValue, handle *object.Handle) {
		handles[i] = sys.HandleInfo{Handle: v, Type: handle.Dispatcher().Type(), Rights: handle.Rights()}
	})
}

func (k *Kernel) channelRead(caller *object.ProcessDispatcher, h sys.HandleValue, options uint32, data []byte, maxHandles int, deliver func(i int, v sys.HandleValue, handle *object.Handle)) (uint32, uint32, error) {
	if options&^sys.ChannelReadMayDiscard != 0 {
		return 0, 0, sys.ErrInvalidArgs
	}
	table := caller.HandleTable()
	ch, _, err := object.GetDispatcherAs[*object.ChannelDispatcher](table, h, sys.RightRead)
	if err != nil {
		return 0, 0, err
	}

	// Room for the message's handles is checked before it leaves the queue,
	// so a full table fails the read with nothing consumed.
	var (
		res       object.ReadResult
		discarded *object.MessagePacket
		leftover  []*object.Handle
	)
	err = table.WithLock(func(lt object.LockedTable) error {
		var err error
		res, discarded, err = ch.ReadAdmit(lt.Owner(), uint32(len(data)), uint32(maxHandles), options&sys.ChannelReadMayDiscard != 0,
			func(numHandles uint32) error {
				if lt.Available() < int(numHandles) {
					return sys.ErrNoMemory
				}
				return nil
			})
		if err != nil {
			return err
		}
		res.Packet.CopyData(data)
		incoming := res.Packet.TakeHandles()
		for i, in := range incoming {
			v, err := lt.Add(in)
			if err != nil {
				leftover = incoming[i:]
				return err
			}
			deliver(i, v, in)
		}
		return nil
	})
	for _, in := range leftover {
		in.Release()
	}
	if discarded != nil {
		discarded.Release()
	}
	if res.Packet != nil {
		res.Packet.Release()
	}
	if err != nil {
		return res.DataSize, res.NumHandles, err
	}
	k.metrics.RecordChannelMessage("read")
	return res.DataSize, res.NumHandles, err
}
