package state_test

import (
	"encoding/json"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/recorder/native"
	"github.com/vkngwrapper/recorder/native/fake"
	"github.com/vkngwrapper/recorder/state"
)

type trackedResource struct {
	id       uuid.UUID
	resource native.Resource
}

func (r *trackedResource) ID() uuid.UUID { return r.id }
func (r *trackedResource) Native() native.Resource { return r.resource }

func newBuffer(t *testing.T, device *fake.Device) *trackedResource {
	resource, err := device.CreateCommittedResource(native.HeapTypeDefault, native.BufferDesc(256, 0), native.ResourceStateCommon, nil)
	require.NoError(t, err)
	return &trackedResource{id: uuid.New(), resource: resource}
}

func newTexture(t *testing.T, device *fake.Device, mips int) *trackedResource {
	resource, err := device.CreateCommittedResource(native.HeapTypeDefault, native.ResourceDesc{
		Dimension:        native.ResourceDimensionTexture2D,
		Width:            64,
		Height:           64,
		DepthOrArraySize: 1,
		MipLevels:        mips,
		Format:           gputypes.TextureFormatRGBA8Unorm,
	}, native.ResourceStateCommon, nil)
	require.NoError(t, err)
	return &trackedResource{id: uuid.New(), resource: resource}
}

type barrierLog struct {
	batches [][]native.ResourceBarrier
}

func (l *barrierLog) ResourceBarrier(barriers []native.ResourceBarrier) {
	l.batches = append(l.batches, append([]native.ResourceBarrier(nil), barriers...))
}

func (l *barrierLog) all() []native.ResourceBarrier {
	var barriers []native.ResourceBarrier
	for _, batch := range l.batches {
		barriers = append(barriers, batch...)
	}
	return barriers
}

func submit(registry *state.Registry, tracker *state.Tracker, pending state.BarrierSink) int {
	registry.Lock()
	defer registry.Unlock()

	count := tracker.FlushPendingResourceBarriers(pending)
	tracker.CommitFinalResourceStates()
	return count
}

func TestTrackerCopyThenShaderRead(t *testing.T) {
	device := fake.NewDevice()
	registry := state.NewRegistry(false)
	x := newBuffer(t, device)
	registry.AddGlobalResourceState(x, native.ResourceStateCommon)

	tracker := state.NewTracker(registry)
	tracker.TransitionResource(x, native.ResourceStateCopyDest, native.AllSubresources)
	require.Equal(t, 0, tracker.NumBarriers())
	require.Equal(t, 1, tracker.NumPendingTransitions())

	tracker.TransitionResource(x, native.ResourceStatePixelShaderResource, native.AllSubresources)

	var list barrierLog
	tracker.FlushResourceBarriers(&list)
	require.Equal(t, []native.ResourceBarrier{
		native.TransitionBarrier(x.resource, native.ResourceStateCopyDest, native.ResourceStatePixelShaderResource, native.AllSubresources),
	}, list.all())

	var pending barrierLog
	require.Equal(t, 1, submit(registry, tracker, &pending))
	require.Equal(t, []native.ResourceBarrier{
		native.TransitionBarrier(x.resource, native.ResourceStateCommon, native.ResourceStateCopyDest, native.AllSubresources),
	}, pending.all())

	global, ok := registry.GlobalState(x)
	require.True(t, ok)
	require.Equal(t, native.ResourceStatePixelShaderResource, global.State)
}

func TestTrackerCollapsesRepeatedTransitions(t *testing.T) {
	device := fake.NewDevice()
	registry := state.NewRegistry(false)
	x := newBuffer(t, device)
	registry.AddGlobalResourceState(x, native.ResourceStateCommon)

	tracker := state.NewTracker(registry)
	sequence := []native.ResourceState{
		native.ResourceStateCopyDest,
		native.ResourceStateCopyDest,
		native.ResourceStateVertexAndConstantBuffer,
		native.ResourceStateVertexAndConstantBuffer,
		native.ResourceStateCopyDest,
		native.ResourceStateCopySource,
	}
	for _, s := range sequence {
		tracker.TransitionResource(x, s, native.AllSubresources)
	}

	// Five changes after the first request, two of which repeat the previous state
	require.Equal(t, 3, tracker.NumBarriers())
	require.Equal(t, 1, tracker.NumPendingTransitions())
}

func TestTrackerPendingMatchesGlobal(t *testing.T) {
	device := fake.NewDevice()
	registry := state.NewRegistry(false)
	x := newBuffer(t, device)
	registry.AddGlobalResourceState(x, native.ResourceStateCopyDest)

	tracker := state.NewTracker(registry)
	tracker.TransitionResource(x, native.ResourceStateCopyDest, native.AllSubresources)

	var pending barrierLog
	require.Equal(t, 0, submit(registry, tracker, &pending))
	require.Empty(t, pending.batches)
}

func TestTrackerSubmissionOrderWins(t *testing.T) {
	device := fake.NewDevice()
	registry := state.NewRegistry(false)
	x := newBuffer(t, device)
	registry.AddGlobalResourceState(x, native.ResourceStateCommon)

	a := state.NewTracker(registry)
	b := state.NewTracker(registry)

	// B is recorded first but submitted second
	b.TransitionResource(x, native.ResourceStatePixelShaderResource, native.AllSubresources)
	a.TransitionResource(x, native.ResourceStateCopyDest, native.AllSubresources)

	var pendingA, pendingB barrierLog
	require.Equal(t, 1, submit(registry, a, &pendingA))
	require.Equal(t, 1, submit(registry, b, &pendingB))

	require.Equal(t, native.ResourceStateCommon, pendingA.all()[0].StateBefore)
	require.Equal(t, native.ResourceStateCopyDest, pendingB.all()[0].StateBefore)
	require.Equal(t, native.ResourceStatePixelShaderResource, pendingB.all()[0].StateAfter)
}

func TestTrackerSubresources(t *testing.T) {
	device := fake.NewDevice()
	registry := state.NewRegistry(false)
	tex := newTexture(t, device, 3)
	registry.AddGlobalResourceState(tex, native.ResourceStatePixelShaderResource)

	tracker := state.NewTracker(registry)
	tracker.TransitionResource(tex, native.ResourceStateUnorderedAccess, 1)
	tracker.TransitionResource(tex, native.ResourceStateCopySource, 1)
	tracker.TransitionResource(tex, native.ResourceStatePixelShaderResource, native.AllSubresources)

	var list barrierLog
	tracker.FlushResourceBarriers(&list)
	require.Equal(t, []native.ResourceBarrier{
		native.TransitionBarrier(tex.resource, native.ResourceStateUnorderedAccess, native.ResourceStateCopySource, 1),
		native.TransitionBarrier(tex.resource, native.ResourceStateCopySource, native.ResourceStatePixelShaderResource, 1),
	}, list.all())

	// Subresources 0 and 2 were never touched individually and resolve against the registry
	require.Equal(t, 3, tracker.NumPendingTransitions())

	var pending barrierLog
	require.Equal(t, 1, submit(registry, tracker, &pending))
	require.Equal(t, []native.ResourceBarrier{
		native.TransitionBarrier(tex.resource, native.ResourceStatePixelShaderResource, native.ResourceStateUnorderedAccess, 1),
	}, pending.all())

	global, ok := registry.GlobalState(tex)
	require.True(t, ok)
	require.Equal(t, native.ResourceStatePixelShaderResource, global.State)
	require.True(t, global.Uniform())
}

func TestTrackerWholeResourceAfterDivergedGlobal(t *testing.T) {
	device := fake.NewDevice()
	registry := state.NewRegistry(false)
	tex := newTexture(t, device, 2)
	registry.AddGlobalResourceState(tex, native.ResourceStateCommon)

	first := state.NewTracker(registry)
	first.TransitionResource(tex, native.ResourceStateRenderTarget, 1)
	var ignored barrierLog
	submit(registry, first, &ignored)

	global, _ := registry.GlobalState(tex)
	require.Equal(t, native.ResourceStateCommon, global.Get(0))
	require.Equal(t, native.ResourceStateRenderTarget, global.Get(1))

	second := state.NewTracker(registry)
	second.TransitionResource(tex, native.ResourceStatePixelShaderResource, native.AllSubresources)

	var pending barrierLog
	require.Equal(t, 2, submit(registry, second, &pending))
	require.Equal(t, []native.ResourceBarrier{
		native.TransitionBarrier(tex.resource, native.ResourceStateCommon, native.ResourceStatePixelShaderResource, 0),
		native.TransitionBarrier(tex.resource, native.ResourceStateRenderTarget, native.ResourceStatePixelShaderResource, 1),
	}, pending.all())

	global, _ = registry.GlobalState(tex)
	require.Equal(t, native.ResourceStatePixelShaderResource, global.Get(1))
	require.Empty(t, global.Subresources)
}

func TestTrackerUAVAndAliasBarriers(t *testing.T) {
	device := fake.NewDevice()
	registry := state.NewRegistry(false)
	a := newBuffer(t, device)
	b := newBuffer(t, device)

	tracker := state.NewTracker(registry)
	tracker.UAVBarrier(a)
	tracker.UAVBarrier(nil)
	tracker.AliasBarrier(a, b)

	var list barrierLog
	tracker.FlushResourceBarriers(&list)
	require.Len(t, list.batches, 1)
	require.Equal(t, []native.ResourceBarrier{
		native.UAVBarrier(a.resource),
		native.UAVBarrier(nil),
		native.AliasingBarrier(a.resource, b.resource),
	}, list.all())

	tracker.FlushResourceBarriers(&list)
	require.Len(t, list.batches, 1)
}

func TestTrackerRequiresLockedRegistry(t *testing.T) {
	registry := state.NewRegistry(true)
	tracker := state.NewTracker(registry)

	var pending barrierLog
	require.Panics(t, func() { tracker.FlushPendingResourceBarriers(&pending) })
	require.Panics(t, func() { tracker.CommitFinalResourceStates() })

	registry.Lock()
	require.NotPanics(t, func() { tracker.FlushPendingResourceBarriers(&pending) })
	registry.Unlock()
}

func TestTrackerReset(t *testing.T) {
	device := fake.NewDevice()
	registry := state.NewRegistry(false)
	x := newBuffer(t, device)
	registry.AddGlobalResourceState(x, native.ResourceStateCommon)

	tracker := state.NewTracker(registry)
	tracker.TransitionResource(x, native.ResourceStateCopyDest, native.AllSubresources)
	tracker.TransitionResource(x, native.ResourceStateCopySource, native.AllSubresources)
	tracker.Reset()

	require.Equal(t, 0, tracker.NumBarriers())
	require.Equal(t, 0, tracker.NumPendingTransitions())
	_, known := tracker.FinalState(x, native.AllSubresources)
	require.False(t, known)

	var pending barrierLog
	require.Equal(t, 0, submit(registry, tracker, &pending))
	global, _ := registry.GlobalState(x)
	require.Equal(t, native.ResourceStateCommon, global.State)
}

func TestRegistryDetailedMap(t *testing.T) {
	device := fake.NewDevice()
	registry := state.NewRegistry(false)
	x := newBuffer(t, device)
	registry.AddGlobalResourceState(x, native.ResourceStateCopyDest)
	require.Equal(t, 1, registry.Count())

	writer := jwriter.NewWriter()
	registry.PrintDetailedMap(&writer)

	var parsed map[string]map[string]any
	require.NoError(t, json.Unmarshal(writer.Bytes(), &parsed))
	require.Equal(t, "CopyDest", parsed[x.id.String()]["State"])

	registry.RemoveGlobalResourceState(x)
	require.Equal(t, 0, registry.Count())
}
