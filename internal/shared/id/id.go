// Package id generates the ULID identifiers the kernel exposes outside its
// own koid space.
//
// Koids name objects inside one kernel and restart from the same value on
// every boot. A BootID names the kernel instance itself, so logs, metrics
// and tree dumps from different boots never collide. ULIDs sort by creation
// time, which keeps boot ids in boot order.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// BootID identifies one kernel instance.
type BootID string

// BootPrefix tags boot ids in logs.
const BootPrefix = "boot"

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewBootID generates a new boot id.
func NewBootID() BootID {
	return BootID(Default().GenerateWithPrefix(BootPrefix))
}

func (id BootID) String() string { return string(id) }

// Time extracts the boot time encoded in the id.
func (id BootID) Time() (time.Time, error) {
	raw, ok := strings.CutPrefix(string(id), BootPrefix+"_")
	if !ok {
		return time.Time{}, fmt.Errorf("boot id %q lacks %q prefix", id, BootPrefix)
	}
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse boot id: %w", err)
	}
	return ulid.Time(parsed.Time()), nil
}
