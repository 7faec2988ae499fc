package kernel

import (
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/object"
	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// Snapshot is a point in time view of the job tree.
type Snapshot struct {
	BootID             string  `json:"boot_id" yaml:"boot_id"`
	LiveHandles        int64   `json:"live_handles" yaml:"live_handles"`
	BuffersOutstanding int64   `json:"buffers_outstanding" yaml:"buffers_outstanding"`
	Root               JobNode `json:"root" yaml:"root"`
}

// JobNode describes one job and its children, oldest first.
type JobNode struct {
	Koid       sys.Koid      `json:"koid" yaml:"koid"`
	Name       string        `json:"name,omitempty" yaml:"name,omitempty"`
	State      string        `json:"state" yaml:"state"`
	MaxHeight  uint32        `json:"max_height" yaml:"max_height"`
	ReturnCode int64         `json:"return_code,omitempty" yaml:"return_code,omitempty"`
	Handles    uint32        `json:"handles" yaml:"handles"`
	Processes  []ProcessNode `json:"processes,omitempty" yaml:"processes,omitempty"`
	Jobs       []JobNode     `json:"jobs,omitempty" yaml:"jobs,omitempty"`
}

// ProcessNode describes one process.
type ProcessNode struct {
	Koid       sys.Koid `json:"koid" yaml:"koid"`
	Name       string   `json:"name,omitempty" yaml:"name,omitempty"`
	State      string   `json:"state" yaml:"state"`
	ReturnCode int64    `json:"return_code,omitempty" yaml:"return_code,omitempty"`
	Handles    int      `json:"handles" yaml:"handles"`
}

// Snapshot walks the job tree. Children are listed without holding locks
// across levels, so a tree that changes during the walk may be inconsistent
// between levels but never within one job's child lists.
func (k *Kernel) Snapshot() Snapshot {
	return Snapshot{
		BootID:             k.bootID.String(),
		LiveHandles:        object.LiveHandleCount(),
		BuffersOutstanding: k.pool.Outstanding(),
		Root:               jobNode(k.rootJob),
	}
}

func jobNode(j *object.JobDispatcher) JobNode {
	n := JobNode{
		Koid:       j.Koid(),
		Name:       j.Name(),
		State:      j.State().String(),
		MaxHeight:  j.MaxHeight(),
		ReturnCode: j.ReturnCode(),
		Handles:    j.HandleCount(),
	}
	for _, p := range j.ChildProcesses() {
		n.Processes = append(n.Processes, ProcessNode{
			Koid:       p.Koid(),
			Name:       p.Name(),
			State:      p.State().String(),
			ReturnCode: p.ReturnCode(),
			Handles:    p.HandleTable().HandleCount(),
		})
	}
	for _, c := range j.ChildJobs() {
		n.Jobs = append(n.Jobs, jobNode(c))
	}
	return n
}

// Walk calls fn for j and every job below it, parents first.
func Walk(j *object.JobDispatcher, fn func(j *object.JobDispatcher, depth int)) {
	walk(j, 0, fn)
}

func walk(j *object.JobDispatcher, depth int, fn func(*object.JobDispatcher, int)) {
	fn(j, depth)
	for _, c := range j.ChildJobs() {
		walk(c, depth+1, fn)
	}
}
