package gfx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/recorder/native"
)

// SwapChain presents textures through a native swap chain on the device's direct queue. Each
// back buffer remembers the fence value of the frame that last presented it, and Present does
// not return until the next back buffer's previous frame has completed, which bounds the
// number of frames in flight to the number of back buffers.
type SwapChain struct {
	device *Device
	native native.SwapChain
	queue  *CommandQueue

	backBuffers []*Texture
	fenceValues []uint64
	index       int
	vsync       bool
}

// CreateSwapChain wraps a native swap chain. If the native swap chain does not have
// CreateOptions.SwapChainBufferCount buffers, it is resized to have them.
func (d *Device) CreateSwapChain(swapChain native.SwapChain) (*SwapChain, error) {
	if swapChain.BufferCount() != d.options.SwapChainBufferCount {
		width, height := swapChain.Size()
		err := swapChain.ResizeBuffers(d.options.SwapChainBufferCount, width, height)
		if err != nil {
			return nil, deviceFailure(err, "failed to create %d swap chain buffers", d.options.SwapChainBufferCount)
		}
	}

	s := &SwapChain{
		device: d,
		native: swapChain,
		queue:  d.directQueue,
		vsync:  true,
	}

	err := s.createBackBuffers()
	if err != nil {
		s.releaseBackBuffers()
		return nil, err
	}
	return s, nil
}

func (s *SwapChain) createBackBuffers() error {
	count := s.native.BufferCount()
	s.backBuffers = make([]*Texture, 0, count)
	s.fenceValues = make([]uint64, count)

	for i := 0; i < count; i++ {
		resource, err := s.native.Buffer(i)
		if err != nil {
			return deviceFailure(err, "failed to get swap chain buffer %d", i)
		}

		texture, err := s.device.newTexture(resource, nil, fmt.Sprintf("Back Buffer %d", i), false)
		if err != nil {
			return err
		}
		s.device.registry.AddGlobalResourceState(texture, native.ResourceStatePresent)
		s.backBuffers = append(s.backBuffers, texture)
	}

	s.index = s.native.CurrentBackBufferIndex()
	return nil
}

func (s *SwapChain) releaseBackBuffers() {
	for _, texture := range s.backBuffers {
		texture.Release()
	}
	s.backBuffers = nil
}

func (s *SwapChain) Native() native.SwapChain { return s.native }

// CurrentBackBufferIndex returns the index of the back buffer the next Present will write to
func (s *SwapChain) CurrentBackBufferIndex() int { return s.index }

// BackBuffer returns the back buffer the next Present will write to
func (s *SwapChain) BackBuffer() *Texture { return s.backBuffers[s.index] }

func (s *SwapChain) BufferCount() int { return len(s.backBuffers) }

func (s *SwapChain) Size() (int, int) { return s.native.Size() }

func (s *SwapChain) VSync() bool { return s.vsync }

// SetVSync controls whether Present waits for vertical blank. With vsync off, presents tear if
// the native swap chain supports it.
func (s *SwapChain) SetVSync(vsync bool) { s.vsync = vsync }

// WaitForSwapChain blocks until the native swap chain can accept another frame
func (s *SwapChain) WaitForSwapChain(ctx context.Context) error {
	return s.native.WaitForFrameLatency(ctx)
}

// Present copies texture into the current back buffer, resolving it if it is multisampled, and
// presents it. A nil texture presents whatever was rendered into BackBuffer directly. It returns
// the index of the new current back buffer once that buffer's previous frame has completed, and
// reclaims every descriptor freed before that frame.
func (s *SwapChain) Present(texture *Texture) (int, error) {
	list, err := s.queue.GetCommandList()
	if err != nil {
		return s.index, err
	}

	backBuffer := s.backBuffers[s.index]
	if texture != nil {
		if texture.Desc().SampleCount > 1 {
			err = list.ResolveSubresource(backBuffer, texture, 0, 0)
		} else {
			err = list.CopyResource(backBuffer, texture)
		}
	}
	if err == nil {
		err = list.TransitionBarrier(backBuffer, native.ResourceStatePresent, native.AllSubresources, false)
	}
	if err != nil {
		list.destroy()
		return s.index, err
	}

	fenceValue, err := s.queue.ExecuteCommandList(list)
	if err != nil {
		return s.index, err
	}
	s.fenceValues[s.index] = fenceValue

	syncInterval := 0
	if s.vsync {
		syncInterval = 1
	}
	err = s.native.Present(syncInterval, !s.vsync && s.native.TearingSupported())
	if err != nil {
		return s.index, deviceFailure(err, "failed to present")
	}

	s.index = s.native.CurrentBackBufferIndex()
	if !s.queue.WaitForFenceValue(s.fenceValues[s.index], s.device.options.FenceTimeout) {
		s.device.logger.LogAttrs(context.Background(), slog.LevelWarn, "SwapChain::Present back buffer is still in use",
			slog.Int("backBuffer", s.index),
			slog.Uint64("fenceValue", s.fenceValues[s.index]),
		)
	}
	s.device.ReleaseStaleDescriptors(s.queue.CompletedFenceValue())

	return s.index, nil
}

// Resize waits for the GPU to go idle and recreates the back buffers with a new size. Sizes
// below 1 are clamped to 1. Resizing to the current size does nothing.
func (s *SwapChain) Resize(width, height int) error {
	width = max(width, 1)
	height = max(height, 1)

	currentWidth, currentHeight := s.native.Size()
	if width == currentWidth && height == currentHeight {
		return nil
	}

	idle, err := s.device.Flush()
	if err != nil {
		return err
	}
	if !idle {
		return errors.New("cannot resize the swap chain while the GPU is still using it")
	}

	count := len(s.backBuffers)
	s.releaseBackBuffers()

	err = s.native.ResizeBuffers(count, width, height)
	if err != nil {
		return deviceFailure(err, "failed to resize swap chain to %dx%d", width, height)
	}

	return s.createBackBuffers()
}

// Release waits for the GPU to go idle and releases the back buffers and the native swap chain
func (s *SwapChain) Release() error {
	_, err := s.device.Flush()
	s.releaseBackBuffers()
	s.native.Release()
	return err
}
