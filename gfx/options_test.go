package gfx_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/recorder/gfx"
	"github.com/vkngwrapper/recorder/native"
)

func TestParseOptions(t *testing.T) {
	options, err := gfx.ParseOptions([]byte(`
externally_synchronized = true
shader_visible_descriptors = 512
upload_page_size = 65536
swap_chain_buffer_count = 3
fence_timeout = "250ms"

[cbv_srv_uav]
descriptors_per_page = 128

[rtv]
max_descriptors_per_heap = 64
`))
	require.NoError(t, err)

	require.Equal(t, gfx.CreateExternallySynchronized, options.Flags)
	require.Equal(t, "CreateExternallySynchronized", options.Flags.String())
	require.Equal(t, 512, options.ShaderVisibleDescriptors)
	require.Equal(t, 0, options.ShaderVisibleSamplers)
	require.Equal(t, 65536, options.UploadPageSize)
	require.Equal(t, 3, options.SwapChainBufferCount)
	require.Equal(t, 250*time.Millisecond, options.FenceTimeout)
	require.Equal(t, 128, options.Descriptors[native.DescriptorHeapTypeCBVSRVUAV].DescriptorsPerPage)
	require.Equal(t, 64, options.Descriptors[native.DescriptorHeapTypeRTV].MaxDescriptorsPerHeap)
	require.Equal(t, gfx.DescriptorOptions{}, options.Descriptors[native.DescriptorHeapTypeDSV])
}

func TestParseOptionsRejectsBadInput(t *testing.T) {
	_, err := gfx.ParseOptions([]byte(`upload_pages = 4`))
	require.Error(t, err)

	_, err = gfx.ParseOptions([]byte(`fence_timeout = "soon"`))
	require.Error(t, err)

	_, err = gfx.ParseOptions([]byte(`swap_chain_buffer_count = -1`))
	require.Error(t, err)

	_, err = gfx.ParseOptions([]byte(`
[sampler]
descriptors_per_page = -8
`))
	require.Error(t, err)
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.toml")
	require.NoError(t, os.WriteFile(path, []byte(`shader_visible_samplers = 32`), 0o600))

	options, err := gfx.LoadOptions(path)
	require.NoError(t, err)
	require.Equal(t, 32, options.ShaderVisibleSamplers)

	_, err = gfx.LoadOptions(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestEmptyOptionsCreateADevice(t *testing.T) {
	options, err := gfx.ParseOptions(nil)
	require.NoError(t, err)

	device, _ := newDevice(t, options)
	require.NoError(t, device.Destroy())
}
