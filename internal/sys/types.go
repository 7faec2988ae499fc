package sys

import "fmt"

// Koid is a kernel object id. Koids are unique for the lifetime of a kernel
// and are never reused.
type Koid uint64

const (
	KoidInvalid Koid = 0
	KoidKernel  Koid = 1
	// KoidFirst is the first koid handed out to a dispatcher.
	KoidFirst Koid = 1024
)

// HandleValue is the process-local name of a handle. Zero is never valid.
type HandleValue uint32

const HandleInvalid HandleValue = 0

// ObjType tags the concrete kind of a kernel object.
type ObjType uint32

const (
	ObjTypeNone    ObjType = 0
	ObjTypeProcess ObjType = 1
	ObjTypeVMO     ObjType = 3
	ObjTypeChannel ObjType = 4
	ObjTypeEvent   ObjType = 5
	ObjTypePort    ObjType = 6
	ObjTypeJob     ObjType = 17
	ObjTypeVMAR    ObjType = 18
)

func (t ObjType) String() string {
	switch t {
	case ObjTypeNone:
		return "none"
	case ObjTypeProcess:
		return "process"
	case ObjTypeVMO:
		return "vmo"
	case ObjTypeChannel:
		return "channel"
	case ObjTypeEvent:
		return "event"
	case ObjTypePort:
		return "port"
	case ObjTypeJob:
		return "job"
	case ObjTypeVMAR:
		return "vmar"
	default:
		return fmt.Sprintf("objtype(%d)", uint32(t))
	}
}

// Signals is the observable state bitmask of a kernel object.
type Signals uint32

const (
	SignalNone Signals = 0

	SignalReadable   Signals = 1 << 0
	SignalWritable   Signals = 1 << 1
	SignalPeerClosed Signals = 1 << 2

	SignalTaskTerminated Signals = 1 << 3

	SignalJobNoJobs      Signals = 1 << 4
	SignalJobNoProcesses Signals = 1 << 5
	SignalJobNoChildren  Signals = 1 << 6

	SignalHandleClosed Signals = 1 << 23

	SignalUser0 Signals = 1 << 24
	SignalUser1 Signals = 1 << 25
	SignalUser2 Signals = 1 << 26
	SignalUser3 Signals = 1 << 27
	SignalUser4 Signals = 1 << 28
	SignalUser5 Signals = 1 << 29
	SignalUser6 Signals = 1 << 30
	SignalUser7 Signals = 1 << 31

	// SignalUserAll is the range user code may set and clear.
	SignalUserAll Signals = 0xff000000
)

const (
	// MaxNameLen bounds object names including the terminator slot, so at
	// most MaxNameLen-1 bytes are kept.
	MaxNameLen = 32

	ChannelMaxMsgBytes   = 65536
	ChannelMaxMsgHandles = 64
)

// Channel read options.
const (
	ChannelReadMayDiscard uint32 = 1
)

// VMO create options.
const (
	VmoResizable uint32 = 1 << 1
)

// Object properties.
const (
	PropName uint32 = 3
)

// Task return codes used when the kernel terminates a task.
const (
	TaskRetcodeSyscallKill int64 = -1024
	TaskRetcodeOOMKill     int64 = -1025
	TaskRetcodePolicyKill  int64 = -1026
	// TaskRetcodeExceptionKill is used when a process entry panics.
	TaskRetcodeExceptionKill int64 = -1028
)

// HandleOp selects what a channel write does with a handle.
type HandleOp uint32

const (
	HandleOpMove      HandleOp = 0
	HandleOpDuplicate HandleOp = 1
)

// HandleDisposition describes one handle to send with ChannelWriteEtc.
// A zero Type accepts any object type; RightSameRights keeps the source
// handle's rights.
type HandleDisposition struct {
	Operation HandleOp
	Handle    HandleValue
	Type      ObjType
	Rights    Rights
	Result    Status
}

// HandleInfo describes one handle received with ChannelReadEtc.
type HandleInfo struct {
	Handle HandleValue
	Type   ObjType
	Rights Rights
	_      uint32
}
