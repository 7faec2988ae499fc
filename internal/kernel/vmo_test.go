package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/object"
	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

func TestVmoReadWrite(t *testing.T) {
	k := newKernel(t)
	ctx, _, _ := newCaller(t, k, k.RootJob())

	vmo, err := k.VmoCreate(ctx, 100, 0)
	require.NoError(t, err)
	size, err := k.VmoGetSize(ctx, vmo)
	require.NoError(t, err)
	assert.Equal(t, uint64(object.PageSize), size)

	require.NoError(t, k.VmoWrite(ctx, vmo, []byte("page data"), 10))
	buf := make([]byte, 9)
	require.NoError(t, k.VmoRead(ctx, vmo, buf, 10))
	assert.Equal(t, "page data", string(buf))

	assert.ErrorIs(t, k.VmoRead(ctx, vmo, buf, object.PageSize-4), sys.ErrOutOfRange)

	ro, err := k.HandleDuplicate(ctx, vmo, sys.RightRead)
	require.NoError(t, err)
	assert.ErrorIs(t, k.VmoWrite(ctx, ro, buf, 0), sys.ErrAccessDenied)
	assert.NoError(t, k.VmoRead(ctx, ro, buf, 0))
}

func TestVmoSetSize(t *testing.T) {
	k := newKernel(t, func(c *config.KernelConfig) { c.MaxVMOSize = 4 * object.PageSize })
	ctx, _, _ := newCaller(t, k, k.RootJob())

	fixed, err := k.VmoCreate(ctx, object.PageSize, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, k.VmoSetSize(ctx, fixed, 2*object.PageSize), sys.ErrUnavailable)

	vmo, err := k.VmoCreate(ctx, object.PageSize, sys.VmoResizable)
	require.NoError(t, err)
	require.NoError(t, k.VmoSetSize(ctx, vmo, 3*object.PageSize))
	size, err := k.VmoGetSize(ctx, vmo)
	require.NoError(t, err)
	assert.Equal(t, uint64(3*object.PageSize), size)
	assert.ErrorIs(t, k.VmoSetSize(ctx, vmo, 5*object.PageSize), sys.ErrOutOfRange)

	_, err = k.VmoCreate(ctx, 8*object.PageSize, 0)
	assert.ErrorIs(t, err, sys.ErrOutOfRange)
	_, err = k.VmoCreate(ctx, object.PageSize, 1<<7)
	assert.ErrorIs(t, err, sys.ErrInvalidArgs)
}

func TestVmoWrongType(t *testing.T) {
	k := newKernel(t)
	ctx, _, root := newCaller(t, k, k.RootJob())

	_, err := k.VmoGetSize(ctx, root)
	assert.ErrorIs(t, err, sys.ErrWrongType)
}
