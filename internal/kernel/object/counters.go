package object

import (
	"sync/atomic"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

var (
	liveHandles   atomic.Int64
	createdByType [32]atomic.Uint64
)

func recordCreate(t sys.ObjType) {
	if int(t) < len(createdByType) {
		createdByType[t].Add(1)
	}
}

// LiveHandleCount is the number of Handles currently alive across every
// table and in-flight message.
func LiveHandleCount() int64 { return liveHandles.Load() }

// CreatedCount is the number of dispatchers of type t ever created.
func CreatedCount(t sys.ObjType) uint64 {
	if int(t) >= len(createdByType) {
		return 0
	}
	return createdByType[t].Load()
}
