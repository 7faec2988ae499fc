package object

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// ProcessState is the lifecycle of a process. Transitions only move forward.
type ProcessState int

const (
	ProcessInitial ProcessState = iota
	ProcessRunning
	ProcessDying
	ProcessDead
)

func (s ProcessState) String() string {
	switch s {
	case ProcessInitial:
		return "initial"
	case ProcessRunning:
		return "running"
	case ProcessDying:
		return "dying"
	case ProcessDead:
		return "dead"
	default:
		return "unknown"
	}
}

// AddressSpace stands in for the process's virtual address space.
type AddressSpace struct {
	Name string
}

// ProcessOptions configures CreateProcess.
type ProcessOptions struct {
	Table HandleTableOptions
	// Init runs after the handle table and address space exist and before
	// the process is visible in its job. An error aborts creation.
	Init func(p *ProcessDispatcher) error
}

// ProcessDispatcher is a process: a handle table and the execution contexts
// running on its behalf.
type ProcessDispatcher struct {
	BaseDispatcher

	job    *JobDispatcher
	policy JobPolicy
	table  *HandleTable
	aspace *AddressSpace

	mu         sync.Mutex
	state      ProcessState
	started    bool
	returnCode int64
	threads    int
	cancel     context.CancelFunc
}

// CreateProcess creates a process in job. The handle table and address space
// are set up before the process is registered with the job, so anything
// enumerating the job only ever sees fully formed processes.
func CreateProcess(job *JobDispatcher, name string, flags uint32, opts ProcessOptions) (*KernelHandle[*ProcessDispatcher], sys.Rights, error) {
	if flags != 0 {
		return nil, sys.RightNone, sys.ErrInvalidArgs
	}

	p := &ProcessDispatcher{job: job, policy: job.Policy()}
	p.init(sys.ObjTypeProcess, sys.SignalNone)
	p.SetName(name)
	p.table = NewHandleTable(p.Koid(), opts.Table)
	kh := NewKernelHandle(p)

	p.aspace = &AddressSpace{Name: fmt.Sprintf("proc:%d", p.Koid())}
	if opts.Init != nil {
		if err := opts.Init(p); err != nil {
			kh.Release()
			return nil, sys.RightNone, err
		}
	}

	if !job.AddChildProcess(p) {
		kh.Release()
		return nil, sys.RightNone, sys.ErrBadState
	}
	return kh, sys.DefaultProcessRights, nil
}

func (*ProcessDispatcher) Type() sys.ObjType { return sys.ObjTypeProcess }

func (*ProcessDispatcher) DefaultRights() sys.Rights { return sys.DefaultProcessRights }

func (p *ProcessDispatcher) RelatedKoid() sys.Koid { return p.job.Koid() }

func (p *ProcessDispatcher) Job() *JobDispatcher { return p.job }

// Policy is the job policy snapshot taken when the process was created.
func (p *ProcessDispatcher) Policy() JobPolicy { return p.policy }

func (p *ProcessDispatcher) HandleTable() *HandleTable { return p.table }

func (p *ProcessDispatcher) AddressSpace() *AddressSpace { return p.aspace }

func (p *ProcessDispatcher) State() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *ProcessDispatcher) ReturnCode() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.returnCode
}

// Started reports whether Start ever succeeded.
func (p *ProcessDispatcher) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Start moves the process to running and accounts for its first execution
// context. The returned context is canceled when the process is killed.
func (p *ProcessDispatcher) Start(parent context.Context) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != ProcessInitial {
		return nil, sys.ErrBadState
	}
	ctx, cancel := context.WithCancel(parent)
	p.state = ProcessRunning
	p.started = true
	p.cancel = cancel
	p.threads++
	return ctx, nil
}

// ThreadExited accounts for an execution context that returned. A running
// process whose last context returns exits with code zero.
func (p *ProcessDispatcher) ThreadExited() {
	p.mu.Lock()
	if p.threads > 0 {
		p.threads--
	}
	if p.state == ProcessRunning && p.threads == 0 {
		p.state = ProcessDying
	}
	dead := p.state == ProcessDying && p.threads == 0
	p.mu.Unlock()

	if dead {
		p.finishDead()
	}
}

// Exit records the return code and begins tearing the process down. The
// process dies once its execution contexts have returned.
func (p *ProcessDispatcher) Exit(returnCode int64) {
	p.terminate(returnCode)
}

// Kill terminates the process with returnCode unless it is already dying.
func (p *ProcessDispatcher) Kill(returnCode int64) {
	p.terminate(returnCode)
}

func (p *ProcessDispatcher) terminate(returnCode int64) {
	p.mu.Lock()
	if p.state == ProcessDying || p.state == ProcessDead {
		p.mu.Unlock()
		return
	}
	p.state = ProcessDying
	p.returnCode = returnCode
	cancel := p.cancel
	dead := p.threads == 0
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dead {
		p.finishDead()
	}
}

func (p *ProcessDispatcher) finishDead() {
	p.mu.Lock()
	if p.state == ProcessDead {
		p.mu.Unlock()
		return
	}
	p.state = ProcessDead
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.table.Clean()
	p.UpdateState(0, sys.SignalTaskTerminated)
	p.job.RemoveChildProcess(p)
}

// EnforceBasicPolicy applies the process's policy for condition c. Deny
// fails with ErrAccessDenied; kill also terminates the process.
func (p *ProcessDispatcher) EnforceBasicPolicy(c sys.PolicyCondition) (sys.PolicyAction, error) {
	action := p.policy.Action(c)
	if action == sys.PolicyActionAllow && c.IsNew() {
		action = p.policy.Action(sys.PolicyNewAny)
	}
	switch action {
	case sys.PolicyActionAllow, sys.PolicyActionAllowException:
		return action, nil
	case sys.PolicyActionKill:
		p.Kill(sys.TaskRetcodePolicyKill)
		return action, sys.ErrAccessDenied
	default:
		return action, sys.ErrAccessDenied
	}
}

// A process nobody can start anymore is killed.
func (p *ProcessDispatcher) onZeroHandles() {
	p.mu.Lock()
	initial := p.state == ProcessInitial
	p.mu.Unlock()
	if initial {
		p.Kill(sys.TaskRetcodeSyscallKill)
	}
}
