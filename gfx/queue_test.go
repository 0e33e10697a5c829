package gfx_test

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/recorder/gfx"
	"github.com/vkngwrapper/recorder/native"
	"github.com/vkngwrapper/recorder/native/fake"
	mock_native "github.com/vkngwrapper/recorder/native/mocks"
	"go.uber.org/mock/gomock"
)

func lastExecuted(queue *fake.CommandQueue) []*fake.CommandList {
	for i := len(queue.Events) - 1; i >= 0; i-- {
		if queue.Events[i].Kind == fake.QueueEventExecute {
			return queue.Events[i].Lists
		}
	}
	return nil
}

func TestQueueResolvesPendingBarriersBeforeList(t *testing.T) {
	device, nativeDevice := newDevice(t, gfx.CreateOptions{})
	queue := device.CommandQueue(native.CommandListTypeDirect)
	nativeQueue := fakeQueue(nativeDevice, native.CommandListTypeDirect)

	texture, err := device.CreateTexture(textureDesc(4, 4, 1, gputypes.TextureFormatRGBA8Unorm, 0), nil, "Texture")
	require.NoError(t, err)

	list, err := queue.GetCommandList()
	require.NoError(t, err)
	require.NoError(t, list.TransitionBarrier(texture, native.ResourceStatePixelShaderResource, native.AllSubresources, true))

	// The list does not know the texture's prior state, so nothing is recorded yet
	require.Empty(t, fakeList(list).Barriers())

	_, err = queue.ExecuteCommandList(list)
	require.NoError(t, err)
	require.Equal(t, gfx.CommandListStatusSubmitted, list.Status())

	executed := lastExecuted(nativeQueue)
	require.Len(t, executed, 2)
	require.Same(t, fakeList(list), executed[1])
	require.Equal(t, []native.ResourceBarrier{
		native.TransitionBarrier(texture.Native(), native.ResourceStateCommon, native.ResourceStatePixelShaderResource, native.AllSubresources),
	}, executed[0].Barriers())

	global, ok := device.Registry().GlobalState(texture)
	require.True(t, ok)
	require.Equal(t, native.ResourceStatePixelShaderResource, global.State)

	// A second list picks up where the first one left the texture
	second, err := queue.GetCommandList()
	require.NoError(t, err)
	require.NoError(t, second.TransitionBarrier(texture, native.ResourceStateCopyDest, native.AllSubresources, false))
	_, err = queue.ExecuteCommandList(second)
	require.NoError(t, err)

	executed = lastExecuted(nativeQueue)
	require.Len(t, executed, 2)
	require.Equal(t, []native.ResourceBarrier{
		native.TransitionBarrier(texture.Native(), native.ResourceStatePixelShaderResource, native.ResourceStateCopyDest, native.AllSubresources),
	}, executed[0].Barriers())

	texture.Release()
	require.NoError(t, device.Destroy())
}

func TestQueueSkipsEmptyPendingList(t *testing.T) {
	device, nativeDevice := newDevice(t, gfx.CreateOptions{})
	queue := device.CommandQueue(native.CommandListTypeDirect)

	list, err := queue.GetCommandList()
	require.NoError(t, err)
	require.NoError(t, list.SetPrimitiveTopology(gputypes.PrimitiveTopologyTriangleList))

	_, err = queue.ExecuteCommandList(list)
	require.NoError(t, err)
	require.Equal(t, []*fake.CommandList{fakeList(list)}, lastExecuted(fakeQueue(nativeDevice, native.CommandListTypeDirect)))

	require.NoError(t, device.Destroy())
}

func TestQueueOrdersStateAcrossListsInOneSubmission(t *testing.T) {
	device, nativeDevice := newDevice(t, gfx.CreateOptions{})
	queue := device.CommandQueue(native.CommandListTypeDirect)

	texture, err := device.CreateTexture(textureDesc(4, 4, 1, gputypes.TextureFormatRGBA8Unorm, native.ResourceFlagAllowRenderTarget), nil, "Texture")
	require.NoError(t, err)

	first, err := queue.GetCommandList()
	require.NoError(t, err)
	require.NoError(t, first.TransitionBarrier(texture, native.ResourceStateRenderTarget, native.AllSubresources, false))

	second, err := queue.GetCommandList()
	require.NoError(t, err)
	require.NoError(t, second.TransitionBarrier(texture, native.ResourceStatePixelShaderResource, native.AllSubresources, false))

	_, err = queue.ExecuteCommandLists(first, second)
	require.NoError(t, err)

	executed := lastExecuted(fakeQueue(nativeDevice, native.CommandListTypeDirect))
	require.Len(t, executed, 4)
	require.Same(t, fakeList(first), executed[1])
	require.Same(t, fakeList(second), executed[3])

	// The second list's pending barrier starts from the state the first list committed
	require.Equal(t, []native.ResourceBarrier{
		native.TransitionBarrier(texture.Native(), native.ResourceStateRenderTarget, native.ResourceStatePixelShaderResource, native.AllSubresources),
	}, executed[2].Barriers())

	texture.Release()
	require.NoError(t, device.Destroy())
}

func TestQueueCommitsNothingWhenAListFailsToClose(t *testing.T) {
	device, nativeDevice := newDevice(t, gfx.CreateOptions{})
	queue := device.CommandQueue(native.CommandListTypeDirect)
	nativeQueue := fakeQueue(nativeDevice, native.CommandListTypeDirect)

	texture, err := device.CreateTexture(textureDesc(4, 4, 1, gputypes.TextureFormatRGBA8Unorm, native.ResourceFlagAllowRenderTarget), nil, "Texture")
	require.NoError(t, err)

	first, err := queue.GetCommandList()
	require.NoError(t, err)
	require.NoError(t, first.TransitionBarrier(texture, native.ResourceStateRenderTarget, native.AllSubresources, false))

	second, err := queue.GetCommandList()
	require.NoError(t, err)
	require.NoError(t, second.TransitionBarrier(texture, native.ResourceStateCopySource, native.AllSubresources, false))
	fakeList(second).CloseErr = errors.New("device removed")

	signaled := queue.LastSignaledValue()
	_, err = queue.ExecuteCommandLists(first, second)
	require.ErrorIs(t, err, gfx.ErrDeviceFailure)
	require.Empty(t, lastExecuted(nativeQueue))
	require.Equal(t, signaled, queue.LastSignaledValue())

	state, ok := device.Registry().GlobalState(texture)
	require.True(t, ok)
	require.Equal(t, native.ResourceStateCommon, state.State)

	// The list that did close was reset and handed back to the queue
	require.Equal(t, gfx.CommandListStatusRecording, first.Status())
	require.Equal(t, 1, fakeList(first).ResetCount)
	require.Empty(t, fakeList(first).Barriers())

	texture.Release()
	require.NoError(t, device.Destroy())
}

func TestQueueReusesListsOnceFenceCompletes(t *testing.T) {
	device, nativeDevice := newManualDevice(t)
	queue := device.CommandQueue(native.CommandListTypeDirect)
	nativeQueue := fakeQueue(nativeDevice, native.CommandListTypeDirect)

	list, err := queue.GetCommandList()
	require.NoError(t, err)
	fenceValue, err := queue.ExecuteCommandList(list)
	require.NoError(t, err)

	// One list for the submission and one for its pending barriers
	require.Equal(t, 2, queue.CommandListCount())
	require.Equal(t, 2, queue.InFlightCount())
	require.False(t, queue.IsFenceComplete(fenceValue))
	require.ErrorIs(t, list.Reset(), gfx.ErrInvalidState)

	_, err = queue.GetCommandList()
	require.NoError(t, err)
	require.Equal(t, 3, queue.CommandListCount())

	nativeQueue.CompletePending()
	require.True(t, queue.IsFenceComplete(fenceValue))

	_, err = queue.GetCommandList()
	require.NoError(t, err)
	require.Equal(t, 3, queue.CommandListCount())
	require.Equal(t, 0, queue.InFlightCount())
	require.Equal(t, gfx.CommandListStatusRecording, list.Status())
	require.Equal(t, 1, fakeList(list).ResetCount)
}

func TestQueueWaitTimesOut(t *testing.T) {
	device, nativeDevice := newManualDevice(t)
	queue := device.CommandQueue(native.CommandListTypeCompute)

	fenceValue, err := queue.Signal()
	require.NoError(t, err)
	require.Equal(t, fenceValue, queue.LastSignaledValue())

	require.False(t, queue.WaitForFenceValue(fenceValue, 0))
	idle, err := queue.Flush()
	require.NoError(t, err)
	require.False(t, idle)

	fakeQueue(nativeDevice, native.CommandListTypeCompute).CompletePending()
	require.True(t, queue.WaitForFenceValue(fenceValue, gfx.Infinite))
	require.Equal(t, fenceValue+1, queue.CompletedFenceValue())
}

func TestQueueRejectsMisuse(t *testing.T) {
	device, _ := newDevice(t, gfx.CreateOptions{})
	direct := device.CommandQueue(native.CommandListTypeDirect)
	copyQueue := device.CommandQueue(native.CommandListTypeCopy)

	list, err := copyQueue.GetCommandList()
	require.NoError(t, err)

	_, err = direct.ExecuteCommandList(list)
	require.Error(t, err)

	_, err = copyQueue.ExecuteCommandList(list)
	require.NoError(t, err)

	_, err = copyQueue.ExecuteCommandList(list)
	require.ErrorIs(t, err, gfx.ErrInvalidState)

	require.NoError(t, device.Destroy())
}

func TestQueueSubmitsComputeFollowUp(t *testing.T) {
	device, nativeDevice := newDevice(t, gfx.CreateOptions{})
	copyQueue := device.CommandQueue(native.CommandListTypeCopy)

	list, err := copyQueue.GetCommandList()
	require.NoError(t, err)

	followUp, err := list.ComputeFollowUp()
	require.NoError(t, err)
	require.Equal(t, native.CommandListTypeCompute, followUp.Type())
	require.NoError(t, followUp.Dispatch(1, 1, 1))

	again, err := list.ComputeFollowUp()
	require.NoError(t, err)
	require.Same(t, followUp, again)

	copyFence, err := copyQueue.ExecuteCommandList(list)
	require.NoError(t, err)

	nativeCompute := fakeQueue(nativeDevice, native.CommandListTypeCompute)
	require.Equal(t, fake.QueueEventWait, nativeCompute.Events[0].Kind)
	require.Same(t, copyQueue.Fence(), nativeCompute.Events[0].Fence)
	require.Equal(t, copyFence, nativeCompute.Events[0].Value)

	executed := lastExecuted(nativeCompute)
	require.Equal(t, []*fake.CommandList{fakeList(followUp)}, executed)
	require.Equal(t, []fake.Op{fake.OpDispatch}, fakeList(followUp).Ops())

	require.NoError(t, device.Destroy())
}

// queueOverrideDevice hands out a provided native queue for one list type
type queueOverrideDevice struct {
	*fake.Device
	listType native.CommandListType
	queue    native.CommandQueue
}

func (d *queueOverrideDevice) CreateCommandQueue(listType native.CommandListType) (native.CommandQueue, error) {
	if listType == d.listType {
		return d.queue, nil
	}
	return d.Device.CreateCommandQueue(listType)
}

func TestQueueReportsNativeFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	nativeQueue := mock_native.NewMockCommandQueue(ctrl)

	nativeDevice := fake.NewDevice()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	device, err := gfx.New(logger, &queueOverrideDevice{
		Device:   nativeDevice,
		listType: native.CommandListTypeCompute,
		queue:    nativeQueue,
	}, gfx.CreateOptions{})
	require.NoError(t, err)

	compute := device.CommandQueue(native.CommandListTypeCompute)
	direct := device.CommandQueue(native.CommandListTypeDirect)

	_, err = direct.Signal()
	require.NoError(t, err)
	nativeQueue.EXPECT().Wait(direct.Fence(), uint64(1)).Return(nil)
	require.NoError(t, compute.Wait(direct))

	nativeQueue.EXPECT().Wait(direct.Fence(), uint64(1)).Return(errors.New("device removed"))
	require.ErrorIs(t, compute.Wait(direct), gfx.ErrDeviceFailure)

	nativeQueue.EXPECT().Signal(compute.Fence(), uint64(1)).Return(errors.New("device removed"))
	_, err = compute.Signal()
	require.ErrorIs(t, err, gfx.ErrDeviceFailure)

	require.Equal(t, uint64(0), compute.LastSignaledValue())

	nativeQueue.EXPECT().Signal(compute.Fence(), uint64(1)).Return(errors.New("device removed"))
	_, err = compute.Flush()
	require.ErrorIs(t, err, gfx.ErrDeviceFailure)
	require.Equal(t, uint64(0), compute.LastSignaledValue())

	nativeQueue.EXPECT().Signal(compute.Fence(), uint64(1)).Return(nil)
	fenceValue, err := compute.Signal()
	require.NoError(t, err)
	require.Equal(t, uint64(1), fenceValue)
	require.Equal(t, uint64(1), compute.LastSignaledValue())
}

func TestQueueOrdersStateAcrossConcurrentSubmissions(t *testing.T) {
	device, nativeDevice := newManualDevice(t)
	queue := device.CommandQueue(native.CommandListTypeDirect)
	nativeQueue := fakeQueue(nativeDevice, native.CommandListTypeDirect)

	rootSignature, err := device.CreateRootSignature(native.RootSignatureDesc{
		Parameters: []native.RootParameter{
			{
				Type:   native.RootParameterTypeDescriptorTable,
				Ranges: []native.DescriptorRange{{Type: native.DescriptorRangeTypeSRV, NumDescriptors: 1}},
			},
		},
	})
	require.NoError(t, err)

	shared, err := device.CreateTexture(textureDesc(4, 4, 1, gputypes.TextureFormatRGBA8Unorm, native.ResourceFlagAllowRenderTarget), nil, "Shared")
	require.NoError(t, err)

	states := []native.ResourceState{
		native.ResourceStatePixelShaderResource,
		native.ResourceStateCopySource,
		native.ResourceStateRenderTarget,
		native.ResourceStateNonPixelShaderResource,
	}

	const workers = 8
	const framesPerWorker = 4

	var finalsMutex sync.Mutex
	finals := map[*fake.CommandList]native.ResourceState{}

	record := func(worker, frame int) error {
		sampled, err := device.CreateTexture(textureDesc(4, 4, 1, gputypes.TextureFormatRGBA8Unorm, 0), nil, fmt.Sprintf("Sampled %d/%d", worker, frame))
		if err != nil {
			return err
		}
		defer sampled.Release()

		list, err := queue.GetCommandList()
		if err != nil {
			return err
		}

		state := states[(worker+frame)%len(states)]
		err = list.TransitionBarrier(shared, state, native.AllSubresources, false)
		if err == nil {
			err = list.SetGraphicsRootSignature(rootSignature)
		}
		if err == nil {
			err = list.SetShaderResourceView(0, 0, sampled, native.ResourceStatePixelShaderResource, 0, native.AllSubresources)
		}
		if err == nil {
			err = list.Draw(3, 1, 0, 0)
		}
		if err != nil {
			return err
		}

		finalsMutex.Lock()
		finals[fakeList(list)] = state
		finalsMutex.Unlock()

		_, err = queue.ExecuteCommandList(list)
		return err
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers*framesPerWorker)
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for frame := 0; frame < framesPerWorker; frame++ {
				err := record(worker, frame)
				if err != nil {
					errs <- err
				}
			}
		}(worker)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, finals, workers*framesPerWorker)

	// Every pending barrier starts from the state the list executed before it left the texture in
	current := native.ResourceStateCommon
	executed := 0
	for _, event := range nativeQueue.Events {
		if event.Kind != fake.QueueEventExecute {
			continue
		}
		for _, list := range event.Lists {
			if state, ok := finals[list]; ok {
				current = state
				executed++
				continue
			}
			for _, barrier := range list.Barriers() {
				if barrier.Resource == shared.Native() {
					require.Equal(t, current, barrier.StateBefore)
				}
			}
		}
	}
	require.Equal(t, workers*framesPerWorker, executed)

	global, ok := device.Registry().GlobalState(shared)
	require.True(t, ok)
	require.Equal(t, current, global.State)
	require.NoError(t, device.Validate())

	nativeQueue.CompletePending()
	shared.Release()
	rootSignature.Release()
	require.NoError(t, device.Destroy())
}
