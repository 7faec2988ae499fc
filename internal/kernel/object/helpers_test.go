package object

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

func makeJob(t *testing.T, parent *JobDispatcher) (*JobDispatcher, *Handle) {
	t.Helper()
	kh, rights, err := CreateJob(parent, 0)
	require.NoError(t, err)
	h := Make(kh, rights)
	return kh.Dispatcher(), h
}

func makeProcess(t *testing.T, job *JobDispatcher, name string) (*ProcessDispatcher, *Handle) {
	t.Helper()
	kh, rights, err := CreateProcess(job, name, 0, ProcessOptions{})
	require.NoError(t, err)
	h := Make(kh, rights)
	return kh.Dispatcher(), h
}

func makeChannel(t *testing.T) (*Handle, *Handle) {
	t.Helper()
	kh0, kh1, rights, err := CreateChannel(ChannelOptions{})
	require.NoError(t, err)
	return Make(kh0, rights), Make(kh1, rights)
}

func makeVMO(t *testing.T, size uint64) *Handle {
	t.Helper()
	kh, rights, err := CreateVMO(size, VMOOptions{})
	require.NoError(t, err)
	return Make(kh, rights)
}

func koidsOfJobs(jobs []*JobDispatcher) []sys.Koid {
	out := make([]sys.Koid, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Koid())
	}
	return out
}

func koidsOfProcesses(procs []*ProcessDispatcher) []sys.Koid {
	out := make([]sys.Koid, 0, len(procs))
	for _, p := range procs {
		out = append(out, p.Koid())
	}
	return out
}
