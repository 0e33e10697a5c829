// Command framesim records and presents simulated frames against the in-memory backend and
// prints the device statistics as JSON. It exercises the full path a renderer takes: uploads on
// the copy queue, descriptor staging, draws on the direct queue and swap chain presentation.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/vkngwrapper/recorder/gfx"
	"github.com/vkngwrapper/recorder/native"
	"github.com/vkngwrapper/recorder/native/fake"
	"github.com/vkngwrapper/recorder/vkbarrier"
)

const (
	textureSize  = 64
	vertexStride = 20
)

type settings struct {
	configPath    string
	frames        int
	width         int
	height        int
	vsync         bool
	detailed      bool
	traceBarriers bool
	verbose       bool
}

func parseSettings() settings {
	var s settings
	flag.StringVar(&s.configPath, "config", "", "TOML file with device options")
	flag.IntVar(&s.frames, "frames", 8, "number of frames to present")
	flag.IntVar(&s.width, "width", 1280, "swap chain width")
	flag.IntVar(&s.height, "height", 720, "swap chain height")
	flag.BoolVar(&s.vsync, "vsync", true, "wait for vertical blank when presenting")
	flag.BoolVar(&s.detailed, "detailed", false, "include every descriptor page and resource state in the stats")
	flag.BoolVar(&s.traceBarriers, "trace-barriers", false, "log the Vulkan layouts of the last frame's barriers")
	flag.BoolVar(&s.verbose, "v", false, "enable debug logging")
	flag.Parse()
	return s
}

func newLogger(verbose bool) *slog.Logger {
	handler := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "framesim",
	})
	if verbose {
		handler.SetLevel(log.DebugLevel)
	}
	return slog.New(handler)
}

func main() {
	s := parseSettings()
	logger := newLogger(s.verbose)

	err := run(logger, s)
	if err != nil {
		logger.Error("framesim failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, s settings) error {
	var options gfx.CreateOptions
	if s.configPath != "" {
		var err error
		options, err = gfx.LoadOptions(s.configPath)
		if err != nil {
			return err
		}
	}

	nativeDevice := fake.NewDevice()
	device, err := gfx.New(logger, nativeDevice, options)
	if err != nil {
		return err
	}

	nativeSwapChain, err := fake.NewSwapChain(nativeDevice, 3, s.width, s.height, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		return err
	}
	swapChain, err := device.CreateSwapChain(nativeSwapChain)
	if err != nil {
		return err
	}
	swapChain.SetVSync(s.vsync)

	sc, err := newScene(device, s.width, s.height)
	if err != nil {
		return err
	}

	for frame := 0; frame < s.frames; frame++ {
		err = swapChain.WaitForSwapChain(context.Background())
		if err != nil {
			return err
		}

		err = sc.render(frame)
		if err != nil {
			return errors.Wrapf(err, "failed to render frame %d", frame)
		}

		backBuffer, err := swapChain.Present(sc.target)
		if err != nil {
			return errors.Wrapf(err, "failed to present frame %d", frame)
		}
		logger.Debug("presented frame", slog.Int("frame", frame), slog.Int("nextBackBuffer", backBuffer))

		if s.traceBarriers && frame == s.frames-1 {
			traceBarriers(logger, nativeDevice, swapChain)
		}
	}

	fmt.Println(device.BuildStatsString(s.detailed))

	sc.release()
	err = swapChain.Release()
	if err != nil {
		return err
	}
	return device.Destroy()
}

type scene struct {
	device        *gfx.Device
	rootSignature *gfx.RootSignature
	vertices      *gfx.VertexBuffer
	texture       *gfx.Texture
	target        *gfx.Texture
}

func newScene(device *gfx.Device, width, height int) (*scene, error) {
	rootSignature, err := device.CreateRootSignature(native.RootSignatureDesc{
		Parameters: []native.RootParameter{
			{
				Type:   native.RootParameterTypeDescriptorTable,
				Ranges: []native.DescriptorRange{{Type: native.DescriptorRangeTypeSRV, NumDescriptors: 1}},
			},
			{Type: native.RootParameterTypeCBV},
		},
	})
	if err != nil {
		return nil, err
	}

	target, err := device.CreateTexture(native.ResourceDesc{
		Dimension:        native.ResourceDimensionTexture2D,
		Width:            width,
		Height:           height,
		DepthOrArraySize: 1,
		MipLevels:        1,
		Format:           gputypes.TextureFormatBGRA8Unorm,
		SampleCount:      1,
		Flags:            native.ResourceFlagAllowRenderTarget,
	}, nil, "Scene Target")
	if err != nil {
		rootSignature.Release()
		return nil, err
	}

	sc := &scene{device: device, rootSignature: rootSignature, target: target}
	err = sc.upload()
	if err != nil {
		sc.release()
		return nil, err
	}
	return sc, nil
}

// upload records the static geometry and texture on the copy queue and makes the direct queue
// wait for it
func (sc *scene) upload() error {
	copyQueue := sc.device.CommandQueue(native.CommandListTypeCopy)
	list, err := copyQueue.GetCommandList()
	if err != nil {
		return err
	}

	sc.vertices, err = list.CopyVertexBuffer(triangle(), 3, vertexStride, "Triangle")
	if err != nil {
		return err
	}
	sc.texture, err = list.LoadTexture("checkerboard", checkerboard)
	if err != nil {
		return err
	}

	_, err = copyQueue.ExecuteCommandList(list)
	if err != nil {
		return err
	}
	return sc.device.CommandQueue(native.CommandListTypeDirect).Wait(copyQueue)
}

func (sc *scene) render(frame int) error {
	queue := sc.device.CommandQueue(native.CommandListTypeDirect)
	list, err := queue.GetCommandList()
	if err != nil {
		return err
	}

	t := float32(frame) / 60
	err = list.ClearTexture(sc.target, [4]float32{0.1, 0.1, 0.1 + 0.5*float32(math.Abs(math.Sin(float64(t)))), 1})
	if err == nil {
		err = list.SetGraphicsRootSignature(sc.rootSignature)
	}
	if err == nil {
		err = list.SetPrimitiveTopology(gputypes.PrimitiveTopologyTriangleList)
	}
	if err == nil {
		err = list.SetVertexBuffer(0, sc.vertices)
	}
	if err == nil {
		err = list.SetShaderResourceView(0, 0, sc.texture, native.ResourceStatePixelShaderResource, 0, native.AllSubresources)
	}
	if err == nil {
		constants := make([]byte, 16)
		binary.LittleEndian.PutUint32(constants, math.Float32bits(t))
		err = list.SetGraphicsDynamicConstantBuffer(1, constants)
	}
	if err == nil {
		err = list.Draw(sc.vertices.NumVertices(), 1, 0, 0)
	}

	// A list that failed to record still has to be submitted to be recycled
	_, submitErr := queue.ExecuteCommandList(list)
	return errors.CombineErrors(err, submitErr)
}

func (sc *scene) release() {
	if sc.vertices != nil {
		sc.vertices.Release()
	}
	if sc.texture != nil {
		sc.device.EvictTexture("checkerboard")
	}
	sc.target.Release()
	sc.rootSignature.Release()
}

func triangle() []byte {
	positions := [3][2]float32{{0, 0.5}, {0.5, -0.5}, {-0.5, -0.5}}
	uvs := [3][2]float32{{0.5, 0}, {1, 1}, {0, 1}}

	data := make([]byte, 0, 3*vertexStride)
	for i := range positions {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(positions[i][0]))
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(positions[i][1]))
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(0))
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(uvs[i][0]))
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(uvs[i][1]))
	}
	return data
}

func checkerboard() (gfx.TextureData, error) {
	rowPitch := textureSize * 4
	data := make([]byte, rowPitch*textureSize)
	for y := 0; y < textureSize; y++ {
		for x := 0; x < textureSize; x++ {
			value := byte(0x20)
			if (x/8+y/8)%2 == 0 {
				value = 0xe0
			}
			offset := y*rowPitch + x*4
			data[offset], data[offset+1], data[offset+2], data[offset+3] = value, value, value, 0xff
		}
	}

	return gfx.TextureData{
		Desc: native.ResourceDesc{
			Dimension:        native.ResourceDimensionTexture2D,
			Width:            textureSize,
			Height:           textureSize,
			DepthOrArraySize: 1,
			MipLevels:        1,
			Format:           gputypes.TextureFormatRGBA8Unorm,
			SampleCount:      1,
		},
		Subresources: []gfx.SubresourceData{{Data: data, RowPitch: rowPitch}},
	}, nil
}

// traceBarriers logs how the transitions of the most recent direct queue submission, the
// frame's present, map to Vulkan image layouts
func traceBarriers(logger *slog.Logger, nativeDevice *fake.Device, swapChain *gfx.SwapChain) {
	presentable := map[native.Resource]bool{}
	for i := 0; i < swapChain.BufferCount(); i++ {
		buffer, err := swapChain.Native().Buffer(i)
		if err == nil {
			presentable[buffer] = true
		}
	}

	for _, queue := range nativeDevice.Queues {
		if queue.Type() != native.CommandListTypeDirect {
			continue
		}

		var lists []*fake.CommandList
		for i := len(queue.Events) - 1; i >= 0; i-- {
			if queue.Events[i].Kind == fake.QueueEventExecute {
				lists = queue.Events[i].Lists
				break
			}
		}

		for _, list := range lists {
			for _, barrier := range list.Barriers() {
				if barrier.Type != native.BarrierTypeTransition {
					continue
				}
				before := vkbarrier.StateAccess(barrier.StateBefore, presentable[barrier.Resource])
				after := vkbarrier.StateAccess(barrier.StateAfter, presentable[barrier.Resource])
				logger.Info("transition",
					slog.String("resource", barrier.Resource.Name()),
					slog.String("before", barrier.StateBefore.String()),
					slog.String("after", barrier.StateAfter.String()),
					slog.Any("oldLayout", before.Layout),
					slog.Any("newLayout", after.Layout),
				)
			}
		}
	}
}
