package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

func TestTracerRing(t *testing.T) {
	tr := New(3, nil)

	for i := 1; i <= 5; i++ {
		tr.Record(TagProcCreate, sys.Koid(1000+i), 0, "p", int64(i))
	}

	events := tr.Events()
	require.Len(t, events, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{events[0].Arg, events[1].Arg, events[2].Arg})
	assert.Equal(t, uint64(5), events[2].Seq)
}

func TestTracerPartial(t *testing.T) {
	tr := New(8, nil)
	tr.Record(TagJobCreate, 1024, 1, "", 0)
	tr.Record(TagProcCreate, 1025, 1024, "svc", 0)

	assert.Len(t, tr.Events(), 2)
	procs := tr.Filter(TagProcCreate)
	require.Len(t, procs, 1)
	assert.Equal(t, "svc", procs[0].Name)
	assert.Equal(t, sys.Koid(1024), procs[0].Related)
}

func TestTracerLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tr := New(0, zap.New(core))

	tr.Record(TagChannelCreate, 2000, 2001, "", 0)
	assert.Empty(t, tr.Events())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "channel_create", logs.All()[0].Message)
}

func TestNilTracer(t *testing.T) {
	var tr *Tracer
	tr.Record(TagBoot, 1, 0, "", 0)
	assert.Nil(t, tr.Events())
}
