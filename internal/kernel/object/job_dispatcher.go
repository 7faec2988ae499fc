package object

import (
	"slices"
	"sync"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// JobState is the lifecycle of a job. Transitions only move forward.
type JobState int

const (
	JobReady JobState = iota
	JobKilling
	JobDead
)

func (s JobState) String() string {
	switch s {
	case JobReady:
		return "ready"
	case JobKilling:
		return "killing"
	case JobDead:
		return "dead"
	default:
		return "unknown"
	}
}

// RootJobMaxHeight is the default depth budget of the root job.
const RootJobMaxHeight = 32

// JobDispatcher groups processes and child jobs.
type JobDispatcher struct {
	BaseDispatcher

	parent    *JobDispatcher
	maxHeight uint32

	mu         sync.Mutex
	state      JobState
	returnCode int64
	killOnOOM  bool
	policy     JobPolicy
	jobs       []*JobDispatcher
	procs      []*ProcessDispatcher
}

const jobNoChildren = sys.SignalJobNoJobs | sys.SignalJobNoProcesses | sys.SignalJobNoChildren

func newJob(parent *JobDispatcher, maxHeight uint32, policy JobPolicy) *JobDispatcher {
	j := &JobDispatcher{parent: parent, maxHeight: maxHeight, policy: policy}
	j.init(sys.ObjTypeJob, jobNoChildren)
	return j
}

// NewRootJob creates the job at the top of the tree. Only the kernel calls
// it, once per boot.
func NewRootJob(maxHeight uint32) *JobDispatcher {
	j := newJob(nil, maxHeight, JobPolicy{})
	j.SetName("root")
	return j
}

// CreateJob creates a child of parent one level lower in the height budget.
// A parent with no height left fails with ErrOutOfRange before anything is
// allocated; a parent that is no longer ready fails with ErrBadState.
func CreateJob(parent *JobDispatcher, flags uint32) (*KernelHandle[*JobDispatcher], sys.Rights, error) {
	if flags != 0 {
		return nil, sys.RightNone, sys.ErrInvalidArgs
	}
	if parent.MaxHeight() == 0 {
		return nil, sys.RightNone, sys.ErrOutOfRange
	}

	job := newJob(parent, parent.maxHeight-1, parent.Policy())
	kh := NewKernelHandle(job)
	if !parent.AddChildJob(job) {
		kh.Release()
		return nil, sys.RightNone, sys.ErrBadState
	}
	return kh, sys.DefaultJobRights, nil
}

func (*JobDispatcher) Type() sys.ObjType { return sys.ObjTypeJob }

func (*JobDispatcher) DefaultRights() sys.Rights { return sys.DefaultJobRights }

func (j *JobDispatcher) RelatedKoid() sys.Koid {
	if j.parent == nil {
		return sys.KoidInvalid
	}
	return j.parent.Koid()
}

// Parent is nil for the root job.
func (j *JobDispatcher) Parent() *JobDispatcher { return j.parent }

func (j *JobDispatcher) MaxHeight() uint32 { return j.maxHeight }

func (j *JobDispatcher) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *JobDispatcher) ReturnCode() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.returnCode
}

func (j *JobDispatcher) KillOnOOM() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.killOnOOM
}

func (j *JobDispatcher) SetKillOnOOM(kill bool) {
	j.mu.Lock()
	j.killOnOOM = kill
	j.mu.Unlock()
}

// Policy returns a copy of the job's current policy.
func (j *JobDispatcher) Policy() JobPolicy {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.policy
}

// SetBasicPolicy applies condition/action pairs. Policy can only change
// while the job has no children.
func (j *JobDispatcher) SetBasicPolicy(mode uint32, policies []sys.PolicyBasic) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.jobs) > 0 || len(j.procs) > 0 {
		return sys.ErrBadState
	}
	next, err := j.policy.WithBasic(mode, policies)
	if err != nil {
		return err
	}
	j.policy = next
	return nil
}

// AddChildJob appends child after its youngest sibling. It reports false and
// changes nothing unless the job is ready.
func (j *JobDispatcher) AddChildJob(child *JobDispatcher) bool {
	j.mu.Lock()
	if j.state != JobReady {
		j.mu.Unlock()
		return false
	}
	j.jobs = append(j.jobs, child)
	n := j.childrenChangedLocked()
	j.mu.Unlock()
	n.fire()
	return true
}

// AddChildProcess appends proc after its youngest sibling. It reports false
// and changes nothing unless the job is ready.
func (j *JobDispatcher) AddChildProcess(proc *ProcessDispatcher) bool {
	j.mu.Lock()
	if j.state != JobReady {
		j.mu.Unlock()
		return false
	}
	j.procs = append(j.procs, proc)
	n := j.childrenChangedLocked()
	j.mu.Unlock()
	n.fire()
	return true
}

// RemoveChildJob is called by a child job as it dies. The child must not
// hold its own lock.
func (j *JobDispatcher) RemoveChildJob(child *JobDispatcher) {
	j.mu.Lock()
	i := slices.Index(j.jobs, child)
	if i < 0 {
		j.mu.Unlock()
		return
	}
	j.jobs = slices.Delete(j.jobs, i, i+1)
	j.finishChildRemoval()
}

// RemoveChildProcess is called by a process as it dies. The process must
// not hold its own lock.
func (j *JobDispatcher) RemoveChildProcess(proc *ProcessDispatcher) {
	j.mu.Lock()
	i := slices.Index(j.procs, proc)
	if i < 0 {
		j.mu.Unlock()
		return
	}
	j.procs = slices.Delete(j.procs, i, i+1)
	j.finishChildRemoval()
}

// finishChildRemoval is entered with j.mu held and releases it.
func (j *JobDispatcher) finishChildRemoval() {
	n := j.childrenChangedLocked()
	dead := j.tryDeadLocked()
	j.mu.Unlock()
	n.fire()
	if dead {
		j.finishDead()
	}
}

// ChildJobs returns the live child jobs, oldest first.
func (j *JobDispatcher) ChildJobs() []*JobDispatcher {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.jobs)
}

// ChildProcesses returns the live child processes, oldest first.
func (j *JobDispatcher) ChildProcesses() []*ProcessDispatcher {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.procs)
}

// Kill moves the job to killing and kills every descendant. It reports
// false if the job was not ready.
func (j *JobDispatcher) Kill(returnCode int64) bool {
	j.mu.Lock()
	if j.state != JobReady {
		j.mu.Unlock()
		return false
	}
	j.state = JobKilling
	j.returnCode = returnCode
	jobs := slices.Clone(j.jobs)
	procs := slices.Clone(j.procs)
	dead := j.tryDeadLocked()
	j.mu.Unlock()

	for _, child := range jobs {
		child.Kill(returnCode)
	}
	for _, proc := range procs {
		proc.Kill(returnCode)
	}
	if dead {
		j.finishDead()
	}
	return true
}

func (j *JobDispatcher) childrenChangedLocked() pendingNotify {
	var set, clr sys.Signals
	if len(j.jobs) == 0 {
		set |= sys.SignalJobNoJobs
	} else {
		clr |= sys.SignalJobNoJobs
	}
	if len(j.procs) == 0 {
		set |= sys.SignalJobNoProcesses
	} else {
		clr |= sys.SignalJobNoProcesses
	}
	if len(j.jobs) == 0 && len(j.procs) == 0 {
		set |= sys.SignalJobNoChildren
	} else {
		clr |= sys.SignalJobNoChildren
	}
	return j.updateState(clr, set)
}

// tryDeadLocked moves a childless job to dead when it is being killed or
// nothing refers to it anymore.
func (j *JobDispatcher) tryDeadLocked() bool {
	if len(j.jobs) > 0 || len(j.procs) > 0 {
		return false
	}
	switch {
	case j.state == JobKilling:
	case j.state == JobReady && j.parent != nil && j.HandleCount() == 0:
	default:
		return false
	}
	j.state = JobDead
	return true
}

func (j *JobDispatcher) finishDead() {
	j.UpdateState(0, sys.SignalTaskTerminated)
	if j.parent != nil {
		j.parent.RemoveChildJob(j)
	}
}

func (j *JobDispatcher) onZeroHandles() {
	j.mu.Lock()
	dead := j.tryDeadLocked()
	j.mu.Unlock()
	if dead {
		j.finishDead()
	}
}
