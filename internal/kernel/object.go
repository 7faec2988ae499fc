package kernel

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/GriffinCanCode/fiberkernel/internal/kernel/object"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/scope"
	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// ObjectGetInfo writes the records for topic into buf and returns how many
// were written and how many are available. Single record topics fail with
// ErrBufferTooSmall when buf cannot hold the record; list topics write as
// many records as fit.
func (k *Kernel) ObjectGetInfo(ctx context.Context, h sys.HandleValue, topic sys.Topic, buf []byte) (actual, avail int, err error) {
	defer k.syscall(ctx, "object_get_info")(&err)
	table := scope.Current(ctx).HandleTable()

	switch topic {
	case sys.InfoHandleValid:
		if !table.IsHandleValid(h) {
			return 0, 0, sys.ErrBadHandle
		}
		return 0, 0, nil

	case sys.InfoHandleBasic:
		handle, ok := table.GetHandle(h)
		if !ok {
			return 0, 0, sys.ErrBadHandle
		}
		d := handle.Dispatcher()
		return writeRecord(buf, sys.InfoHandleBasicRecord{
			Koid:        d.Koid(),
			Rights:      handle.Rights(),
			Type:        d.Type(),
			RelatedKoid: d.RelatedKoid(),
		})

	case sys.InfoHandleCount:
		handle, ok := table.GetHandle(h)
		if !ok {
			return 0, 0, sys.ErrBadHandle
		}
		if !handle.HasRights(sys.RightInspect) {
			return 0, 0, sys.ErrAccessDenied
		}
		return writeRecord(buf, sys.InfoHandleCountRecord{HandleCount: handle.Dispatcher().HandleCount()})

	case sys.InfoProcess:
		p, _, err := object.GetDispatcherAs[*object.ProcessDispatcher](table, h, sys.RightInspect)
		if err != nil {
			return 0, 0, err
		}
		var flags uint32
		if p.Started() {
			flags |= sys.ProcessInfoFlagStarted
		}
		if p.State() == object.ProcessDead {
			flags |= sys.ProcessInfoFlagExited
		}
		return writeRecord(buf, sys.InfoProcessRecord{ReturnCode: p.ReturnCode(), Flags: flags})

	case sys.InfoJob:
		j, _, err := object.GetDispatcherAs[*object.JobDispatcher](table, h, sys.RightInspect)
		if err != nil {
			return 0, 0, err
		}
		rec := sys.InfoJobRecord{ReturnCode: j.ReturnCode()}
		if j.State() == object.JobDead {
			rec.Exited = 1
		}
		if j.KillOnOOM() {
			rec.KillOnOOM = 1
		}
		return writeRecord(buf, rec)

	case sys.InfoJobChildren, sys.InfoJobProcesses:
		j, _, err := object.GetDispatcherAs[*object.JobDispatcher](table, h, sys.RightEnumerate)
		if err != nil {
			return 0, 0, err
		}
		var koids []sys.Koid
		if topic == sys.InfoJobChildren {
			for _, c := range j.ChildJobs() {
				koids = append(koids, c.Koid())
			}
		} else {
			for _, c := range j.ChildProcesses() {
				koids = append(koids, c.Koid())
			}
		}
		return writeKoids(buf, koids), len(koids), nil

	default:
		return 0, 0, sys.ErrNotSupported
	}
}

func writeRecord(buf []byte, rec any) (actual, avail int, err error) {
	if len(buf) < binary.Size(rec) {
		return 0, 1, sys.ErrBufferTooSmall
	}
	if _, err := binary.Encode(buf, binary.LittleEndian, rec); err != nil {
		return 0, 1, sys.ErrInternal
	}
	return 1, 1, nil
}

func writeKoids(buf []byte, koids []sys.Koid) int {
	n := min(len(buf)/8, len(koids))
	for i := range n {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(koids[i]))
	}
	return n
}

func nameable(t sys.ObjType) bool {
	switch t {
	case sys.ObjTypeProcess, sys.ObjTypeJob, sys.ObjTypeVMO:
		return true
	}
	return false
}

// ObjectGetProperty copies property prop into buf. PropName needs a buffer
// of at least sys.MaxNameLen bytes and is NUL padded.
func (k *Kernel) ObjectGetProperty(ctx context.Context, h sys.HandleValue, prop uint32, buf []byte) (err error) {
	defer k.syscall(ctx, "object_get_property")(&err)
	handle, ok := scope.Current(ctx).HandleTable().GetHandle(h)
	if !ok {
		return sys.ErrBadHandle
	}
	if !handle.HasRights(sys.RightGetProperty) {
		return sys.ErrAccessDenied
	}

	switch prop {
	case sys.PropName:
		d := handle.Dispatcher()
		if !nameable(d.Type()) {
			return sys.ErrNotSupported
		}
		if len(buf) < sys.MaxNameLen {
			return sys.ErrBufferTooSmall
		}
		n := copy(buf, d.Name())
		clear(buf[n:sys.MaxNameLen])
		return nil
	default:
		return sys.ErrInvalidArgs
	}
}

// ObjectSetProperty sets property prop from value. Names stop at the first
// NUL and are truncated to fit.
func (k *Kernel) ObjectSetProperty(ctx context.Context, h sys.HandleValue, prop uint32, value []byte) (err error) {
	defer k.syscall(ctx, "object_set_property")(&err)
	handle, ok := scope.Current(ctx).HandleTable().GetHandle(h)
	if !ok {
		return sys.ErrBadHandle
	}
	if !handle.HasRights(sys.RightSetProperty) {
		return sys.ErrAccessDenied
	}

	switch prop {
	case sys.PropName:
		d := handle.Dispatcher()
		if !nameable(d.Type()) {
			return sys.ErrNotSupported
		}
		if i := bytes.IndexByte(value, 0); i >= 0 {
			value = value[:i]
		}
		d.SetName(string(value))
		return nil
	default:
		return sys.ErrInvalidArgs
	}
}

// ObjectSignal clears then sets user signals on the object.
func (k *Kernel) ObjectSignal(ctx context.Context, h sys.HandleValue, clearMask, setMask sys.Signals) (err error) {
	defer k.syscall(ctx, "object_signal")(&err)
	handle, ok := scope.Current(ctx).HandleTable().GetHandle(h)
	if !ok {
		return sys.ErrBadHandle
	}
	if !handle.HasRights(sys.RightSignal) {
		return sys.ErrAccessDenied
	}
	return handle.Dispatcher().UserSignal(clearMask, setMask)
}

// ObjectSignalPeer changes user signals on the other endpoint of a channel.
func (k *Kernel) ObjectSignalPeer(ctx context.Context, h sys.HandleValue, clearMask, setMask sys.Signals) (err error) {
	defer k.syscall(ctx, "object_signal_peer")(&err)
	handle, ok := scope.Current(ctx).HandleTable().GetHandle(h)
	if !ok {
		return sys.ErrBadHandle
	}
	if !handle.HasRights(sys.RightSignalPeer) {
		return sys.ErrAccessDenied
	}
	ch, ok := handle.Dispatcher().(*object.ChannelDispatcher)
	if !ok {
		return sys.ErrNotSupported
	}
	return ch.UserSignalPeer(clearMask, setMask)
}

// ObjectPollReadable reports whether a read on h would find a message. It
// returns nil when readable, ErrPeerClosed when nothing more can arrive and
// ErrShouldWait otherwise.
func (k *Kernel) ObjectPollReadable(ctx context.Context, h sys.HandleValue) (err error) {
	defer k.syscall(ctx, "object_poll_readable")(&err)
	handle, err := waitable(scope.Current(ctx), h)
	if err != nil {
		return err
	}
	signals := handle.Dispatcher().Signals()
	switch {
	case signals&sys.SignalReadable != 0:
		return nil
	case signals&sys.SignalPeerClosed != 0:
		return sys.ErrPeerClosed
	default:
		return sys.ErrShouldWait
	}
}

// ObjectPeerClosed reports whether the object's peer has gone away.
func (k *Kernel) ObjectPeerClosed(ctx context.Context, h sys.HandleValue) (closed bool, err error) {
	defer k.syscall(ctx, "object_peer_closed")(&err)
	handle, err := waitable(scope.Current(ctx), h)
	if err != nil {
		return false, err
	}
	return handle.Dispatcher().Signals()&sys.SignalPeerClosed != 0, nil
}

// ObjectWaitAsync registers obs to be told once when any of signals is
// asserted on the object. The returned cancel func unregisters obs and
// reports whether it was still pending.
func (k *Kernel) ObjectWaitAsync(ctx context.Context, h sys.HandleValue, signals sys.Signals, obs object.SignalObserver) (cancel func() bool, err error) {
	defer k.syscall(ctx, "object_wait_async")(&err)
	if obs == nil || signals == 0 {
		return nil, sys.ErrInvalidArgs
	}
	handle, err := waitable(scope.Current(ctx), h)
	if err != nil {
		return nil, err
	}
	d := handle.Dispatcher()
	d.AddObserver(obs, signals)
	return func() bool { return d.RemoveObserver(obs) }, nil
}

func waitable(caller *object.ProcessDispatcher, h sys.HandleValue) (*object.Handle, error) {
	handle, ok := caller.HandleTable().GetHandle(h)
	if !ok {
		return nil, sys.ErrBadHandle
	}
	if !handle.HasRights(sys.RightWait) {
		return nil, sys.ErrAccessDenied
	}
	return handle, nil
}
