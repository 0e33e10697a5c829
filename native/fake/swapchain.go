package fake

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/vkngwrapper/recorder/native"
)

type SwapChain struct {
	device  *Device
	buffers []*Resource
	current int
	width   int
	height  int
	format  gputypes.TextureFormat
	tearing bool

	Presents int
	Released bool
}

var _ native.SwapChain = &SwapChain{}

func NewSwapChain(device *Device, bufferCount, width, height int, format gputypes.TextureFormat) (*SwapChain, error) {
	s := &SwapChain{device: device, format: format, tearing: true}
	err := s.ResizeBuffers(bufferCount, width, height)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SwapChain) BufferCount() int { return len(s.buffers) }

func (s *SwapChain) Buffer(index int) (native.Resource, error) {
	if index < 0 || index >= len(s.buffers) {
		return nil, errors.Newf("swap chain buffer index %d out of range", index)
	}
	return s.buffers[index], nil
}

func (s *SwapChain) CurrentBackBufferIndex() int { return s.current }

func (s *SwapChain) Present(syncInterval int, allowTearing bool) error {
	if allowTearing && !s.tearing {
		return errors.New("tearing is not supported by this swap chain")
	}
	s.Presents++
	s.current = (s.current + 1) % len(s.buffers)
	return nil
}

func (s *SwapChain) ResizeBuffers(bufferCount, width, height int) error {
	if bufferCount < 1 || width < 1 || height < 1 {
		return errors.Newf("invalid swap chain size %dx%d with %d buffers", width, height, bufferCount)
	}

	for _, buffer := range s.buffers {
		buffer.Release()
	}
	s.buffers = s.buffers[:0]

	for i := 0; i < bufferCount; i++ {
		resource, err := s.device.CreateCommittedResource(native.HeapTypeDefault, native.ResourceDesc{
			Dimension:        native.ResourceDimensionTexture2D,
			Width:            width,
			Height:           height,
			DepthOrArraySize: 1,
			MipLevels:        1,
			Format:           s.format,
			SampleCount:      1,
			Flags:            native.ResourceFlagAllowRenderTarget,
		}, native.ResourceStatePresent, nil)
		if err != nil {
			return err
		}
		s.buffers = append(s.buffers, resource.(*Resource))
	}

	s.width = width
	s.height = height
	s.current = 0
	return nil
}

func (s *SwapChain) Size() (int, int) { return s.width, s.height }
func (s *SwapChain) Format() gputypes.TextureFormat { return s.format }
func (s *SwapChain) TearingSupported() bool { return s.tearing }

// SetTearingSupported controls whether Present accepts allowTearing
func (s *SwapChain) SetTearingSupported(supported bool) { s.tearing = supported }

func (s *SwapChain) WaitForFrameLatency(ctx context.Context) error {
	return ctx.Err()
}

func (s *SwapChain) Release() {
	for _, buffer := range s.buffers {
		buffer.Release()
	}
	s.Released = true
}
