package upload_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/recorder/gfxutils"
	"github.com/vkngwrapper/recorder/native/fake"
	"github.com/vkngwrapper/recorder/upload"
)

func TestUploadBufferAlignment(t *testing.T) {
	device := fake.NewDevice()
	var buffer upload.Buffer
	require.NoError(t, buffer.Init(device, 1024))

	first, err := buffer.Allocate(10, 4)
	require.NoError(t, err)
	require.Equal(t, 0, first.Offset)
	require.Len(t, first.CPU, 10)

	second, err := buffer.Allocate(100, 256)
	require.NoError(t, err)
	require.Equal(t, 256, second.Offset)
	require.Equal(t, first.GPU+256, second.GPU)
	require.Same(t, first.Resource, second.Resource)

	copy(second.CPU, []byte{1, 2, 3})
	require.Equal(t, []byte{1, 2, 3}, device.Resources[0].Data()[256:259])
}

func TestUploadBufferNewPageWhenFull(t *testing.T) {
	device := fake.NewDevice()
	var buffer upload.Buffer
	require.NoError(t, buffer.Init(device, 256))

	_, err := buffer.Allocate(200, 1)
	require.NoError(t, err)
	next, err := buffer.Allocate(100, 1)
	require.NoError(t, err)
	require.Equal(t, 0, next.Offset)
	require.Equal(t, 2, buffer.PageCount())

	buffer.Reset()
	reused, err := buffer.Allocate(100, 1)
	require.NoError(t, err)
	require.Equal(t, 2, buffer.PageCount())
	require.Same(t, device.Resources[0], reused.Resource)

	buffer.Destroy()
	require.True(t, device.Resources[0].Released)
	require.True(t, device.Resources[1].Released)
}

func TestUploadBufferErrors(t *testing.T) {
	device := fake.NewDevice()
	var buffer upload.Buffer
	require.NoError(t, buffer.Init(device, 0))
	require.Equal(t, upload.DefaultPageSize, buffer.PageSize())

	_, err := buffer.Allocate(upload.DefaultPageSize+1, 1)
	require.True(t, errors.Is(err, upload.ErrAllocationTooLarge))

	_, err = buffer.Allocate(16, 3)
	require.True(t, errors.Is(err, gfxutils.ErrNotPowerOfTwo))

	device.FailCreateResource = errors.New("out of memory")
	_, err = buffer.Allocate(16, 16)
	require.Error(t, err)
	require.Equal(t, 0, buffer.PageCount())
}
