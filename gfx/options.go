package gfx

import (
	"bytes"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/recorder/native"
)

// CreateFlags indicate specific device behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// CreateExternallySynchronized ensures that the device's descriptor allocators, heap pools
	// and state registry will not be synchronized internally. The consumer must guarantee
	// that the device and everything created from it are used from only one goroutine at a time.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
}

const (
	// DefaultSwapChainBufferCount is used when CreateOptions.SwapChainBufferCount is 0
	DefaultSwapChainBufferCount int = 2
	// DefaultShaderVisibleDescriptors is the size of a shader-visible CBV/SRV/UAV heap when
	// CreateOptions.ShaderVisibleDescriptors is 0
	DefaultShaderVisibleDescriptors int = 1024
	// DefaultShaderVisibleSamplers is the size of a shader-visible sampler heap when
	// CreateOptions.ShaderVisibleSamplers is 0
	DefaultShaderVisibleSamplers int = 256
)

// Infinite makes fence waits block until the fence is reached
const Infinite time.Duration = -1

// DescriptorOptions configures the CPU descriptor allocator of one heap type
type DescriptorOptions struct {
	// DescriptorsPerPage is the minimum size of each descriptor page. 0 uses
	// descriptor.DefaultDescriptorsPerPage.
	DescriptorsPerPage int
	// MaxDescriptorsPerHeap is the largest single allocation. 0 uses
	// descriptor.DefaultMaxDescriptorsPerHeap.
	MaxDescriptorsPerHeap int
}

// CreateOptions contains optional settings when creating a device. It is valid to leave all
// the fields blank.
type CreateOptions struct {
	Flags CreateFlags

	// Descriptors holds the CPU descriptor allocator settings, indexed by heap type
	Descriptors [native.DescriptorHeapTypeCount]DescriptorOptions

	// ShaderVisibleDescriptors is the number of descriptors in each shader-visible CBV/SRV/UAV
	// heap handed to command lists
	ShaderVisibleDescriptors int
	// ShaderVisibleSamplers is the number of descriptors in each shader-visible sampler heap
	ShaderVisibleSamplers int

	// UploadPageSize is the size of each page of a command list's upload buffer. 0 uses
	// upload.DefaultPageSize.
	UploadPageSize int

	// SwapChainBufferCount is the number of back buffers requested for new swap chains
	SwapChainBufferCount int

	// FenceTimeout bounds every internal fence wait: Flush, swap chain presentation and
	// resizing. 0 waits forever.
	FenceTimeout time.Duration
}

func (o CreateOptions) withDefaults() CreateOptions {
	if o.ShaderVisibleDescriptors == 0 {
		o.ShaderVisibleDescriptors = DefaultShaderVisibleDescriptors
	}
	if o.ShaderVisibleSamplers == 0 {
		o.ShaderVisibleSamplers = DefaultShaderVisibleSamplers
	}
	if o.SwapChainBufferCount == 0 {
		o.SwapChainBufferCount = DefaultSwapChainBufferCount
	}
	if o.FenceTimeout == 0 {
		o.FenceTimeout = Infinite
	}
	return o
}

// Duration is a time.Duration that reads from TOML strings such as "250ms"
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type descriptorFileOptions struct {
	DescriptorsPerPage    int `toml:"descriptors_per_page"`
	MaxDescriptorsPerHeap int `toml:"max_descriptors_per_heap"`
}

type fileOptions struct {
	ExternallySynchronized   bool     `toml:"externally_synchronized"`
	ShaderVisibleDescriptors int      `toml:"shader_visible_descriptors"`
	ShaderVisibleSamplers    int      `toml:"shader_visible_samplers"`
	UploadPageSize           int      `toml:"upload_page_size"`
	SwapChainBufferCount     int      `toml:"swap_chain_buffer_count"`
	FenceTimeout             Duration `toml:"fence_timeout"`

	CBVSRVUAV descriptorFileOptions `toml:"cbv_srv_uav"`
	Sampler   descriptorFileOptions `toml:"sampler"`
	RTV       descriptorFileOptions `toml:"rtv"`
	DSV       descriptorFileOptions `toml:"dsv"`
}

// ParseOptions reads CreateOptions from a TOML document. Unknown keys are rejected.
//
//	externally_synchronized = false
//	upload_page_size = 2097152
//	fence_timeout = "2s"
//
//	[cbv_srv_uav]
//	descriptors_per_page = 256
func ParseOptions(data []byte) (CreateOptions, error) {
	var file fileOptions
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(&file)
	if err != nil {
		return CreateOptions{}, errors.Wrap(err, "failed to parse device options")
	}

	options := CreateOptions{
		ShaderVisibleDescriptors: file.ShaderVisibleDescriptors,
		ShaderVisibleSamplers:    file.ShaderVisibleSamplers,
		UploadPageSize:           file.UploadPageSize,
		SwapChainBufferCount:     file.SwapChainBufferCount,
		FenceTimeout:             time.Duration(file.FenceTimeout),
	}
	if file.ExternallySynchronized {
		options.Flags |= CreateExternallySynchronized
	}

	for heapType, heapOptions := range map[native.DescriptorHeapType]descriptorFileOptions{
		native.DescriptorHeapTypeCBVSRVUAV: file.CBVSRVUAV,
		native.DescriptorHeapTypeSampler:   file.Sampler,
		native.DescriptorHeapTypeRTV:       file.RTV,
		native.DescriptorHeapTypeDSV:       file.DSV,
	} {
		options.Descriptors[heapType] = DescriptorOptions{
			DescriptorsPerPage:    heapOptions.DescriptorsPerPage,
			MaxDescriptorsPerHeap: heapOptions.MaxDescriptorsPerHeap,
		}
	}

	return options, options.Validate()
}

// LoadOptions reads CreateOptions from a TOML file
func LoadOptions(path string) (CreateOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CreateOptions{}, errors.Wrapf(err, "failed to read device options from %s", path)
	}

	return ParseOptions(data)
}

func (o CreateOptions) Validate() error {
	if o.ShaderVisibleDescriptors < 0 || o.ShaderVisibleSamplers < 0 {
		return errors.Newf("shader-visible heap sizes must not be negative: %d descriptors, %d samplers", o.ShaderVisibleDescriptors, o.ShaderVisibleSamplers)
	}
	if o.UploadPageSize < 0 {
		return errors.Newf("upload page size must not be negative, got %d", o.UploadPageSize)
	}
	if o.SwapChainBufferCount < 0 {
		return errors.Newf("swap chain buffer count must not be negative, got %d", o.SwapChainBufferCount)
	}
	for heapType, heapOptions := range o.Descriptors {
		if heapOptions.DescriptorsPerPage < 0 || heapOptions.MaxDescriptorsPerHeap < 0 {
			return errors.Newf("%s descriptor sizes must not be negative", native.DescriptorHeapType(heapType))
		}
	}
	return nil
}
