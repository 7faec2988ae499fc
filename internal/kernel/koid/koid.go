// Package koid hands out kernel object ids.
package koid

import (
	"sync/atomic"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

var issued atomic.Uint64

// Generate returns the next koid. Koids increase monotonically from
// sys.KoidFirst and are never reused.
func Generate() sys.Koid {
	return sys.Koid(uint64(sys.KoidFirst) + issued.Add(1) - 1)
}
