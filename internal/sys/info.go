package sys

// Topic selects what ObjectGetInfo reports.
type Topic uint32

const (
	InfoNone         Topic = 0
	InfoHandleValid  Topic = 1
	InfoHandleBasic  Topic = 2
	InfoProcess      Topic = 3
	InfoJobChildren  Topic = 6
	InfoJobProcesses Topic = 7
	InfoHandleCount  Topic = 13
	InfoJob          Topic = 26
)

// InfoHandleBasicRecord is the InfoHandleBasic payload.
type InfoHandleBasicRecord struct {
	Koid        Koid
	Rights      Rights
	Type        ObjType
	RelatedKoid Koid
	_           uint32
	_           uint32
}

// Process info flags.
const (
	ProcessInfoFlagStarted uint32 = 1 << 0
	ProcessInfoFlagExited  uint32 = 1 << 1
)

// InfoProcessRecord is the InfoProcess payload.
type InfoProcessRecord struct {
	ReturnCode int64
	Flags      uint32
	_          uint32
}

// InfoJobRecord is the InfoJob payload.
type InfoJobRecord struct {
	ReturnCode int64
	Exited     uint8
	KillOnOOM  uint8
	_          [6]uint8
}

// InfoHandleCountRecord is the InfoHandleCount payload.
type InfoHandleCountRecord struct {
	HandleCount uint32
}
