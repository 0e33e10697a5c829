package fake

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/vkngwrapper/recorder/native"
)

// Op names a recorded command
type Op string

const (
	OpResourceBarrier              Op = "ResourceBarrier"
	OpCopyBufferRegion             Op = "CopyBufferRegion"
	OpCopyResource                 Op = "CopyResource"
	OpCopyTextureRegion            Op = "CopyTextureRegion"
	OpResolveSubresource           Op = "ResolveSubresource"
	OpSetPrimitiveTopology         Op = "IASetPrimitiveTopology"
	OpSetVertexBuffers             Op = "IASetVertexBuffers"
	OpSetIndexBuffer               Op = "IASetIndexBuffer"
	OpSetDescriptorHeaps           Op = "SetDescriptorHeaps"
	OpSetGraphicsRootSignature     Op = "SetGraphicsRootSignature"
	OpSetComputeRootSignature      Op = "SetComputeRootSignature"
	OpSetGraphicsDescriptorTable   Op = "SetGraphicsRootDescriptorTable"
	OpSetComputeDescriptorTable    Op = "SetComputeRootDescriptorTable"
	OpSetGraphicsRootCBV           Op = "SetGraphicsRootConstantBufferView"
	OpSetComputeRootCBV            Op = "SetComputeRootConstantBufferView"
	OpSetGraphicsRootSRV           Op = "SetGraphicsRootShaderResourceView"
	OpSetComputeRootSRV            Op = "SetComputeRootShaderResourceView"
	OpSetGraphicsRoot32BitConstant Op = "SetGraphicsRoot32BitConstants"
	OpSetComputeRoot32BitConstant  Op = "SetComputeRoot32BitConstants"
	OpClearRenderTargetView        Op = "ClearRenderTargetView"
	OpClearDepthStencilView        Op = "ClearDepthStencilView"
	OpDrawInstanced                Op = "DrawInstanced"
	OpDrawIndexedInstanced         Op = "DrawIndexedInstanced"
	OpDispatch                     Op = "Dispatch"
)

// Command is one recorded call. Only the fields relevant to Op are set.
type Command struct {
	Op Op

	Barriers []native.ResourceBarrier

	Dst       native.Resource
	DstOffset int
	Src       native.Resource
	SrcOffset int
	NumBytes  int

	Topology      gputypes.PrimitiveTopology
	VertexBuffers []native.VertexBufferView
	IndexBuffer   *native.IndexBufferView

	Heaps         []native.DescriptorHeap
	RootSignature native.RootSignature
	RootIndex     int
	GPUHandle     native.GPUDescriptorHandle
	CPUHandle     native.CPUDescriptorHandle
	Address       uint64
	Values        []uint32

	// Counts holds draw and dispatch arguments in declaration order
	Counts []int
}

type CommandList struct {
	device    *Device
	listType  native.CommandListType
	allocator *CommandAllocator
	closed    bool

	Commands   []Command
	ResetCount int
	Released   bool
	// CloseErr is returned by Close, which then leaves the list open
	CloseErr error
}

var _ native.CommandList = &CommandList{}

func (l *CommandList) Type() native.CommandListType { return l.listType }
func (l *CommandList) Closed() bool { return l.closed }

func (l *CommandList) Reset(allocator native.CommandAllocator) error {
	if !l.closed {
		return errors.New("command list must be closed before it is reset")
	}
	fakeAllocator, ok := allocator.(*CommandAllocator)
	if !ok {
		return errors.New("command allocator was not created by the fake device")
	}

	l.allocator = fakeAllocator
	l.closed = false
	l.Commands = nil
	l.ResetCount++
	return nil
}

func (l *CommandList) Close() error {
	if l.closed {
		return errors.New("command list is already closed")
	}
	if l.CloseErr != nil {
		return l.CloseErr
	}
	l.closed = true
	return nil
}

func (l *CommandList) record(command Command) {
	if l.closed {
		panic("recording into a closed command list")
	}
	l.Commands = append(l.Commands, command)
}

// Ops returns the op of every recorded command in order
func (l *CommandList) Ops() []Op {
	ops := make([]Op, 0, len(l.Commands))
	for _, command := range l.Commands {
		ops = append(ops, command.Op)
	}
	return ops
}

// Barriers returns every barrier recorded into the list, flattened across batches
func (l *CommandList) Barriers() []native.ResourceBarrier {
	var barriers []native.ResourceBarrier
	for _, command := range l.Commands {
		if command.Op == OpResourceBarrier {
			barriers = append(barriers, command.Barriers...)
		}
	}
	return barriers
}

// CommandsOf returns every recorded command with the provided op
func (l *CommandList) CommandsOf(op Op) []Command {
	var commands []Command
	for _, command := range l.Commands {
		if command.Op == op {
			commands = append(commands, command)
		}
	}
	return commands
}

func (l *CommandList) ResourceBarrier(barriers []native.ResourceBarrier) {
	l.record(Command{Op: OpResourceBarrier, Barriers: append([]native.ResourceBarrier(nil), barriers...)})
}

func (l *CommandList) CopyBufferRegion(dst native.Resource, dstOffset int, src native.Resource, srcOffset int, numBytes int) {
	l.record(Command{Op: OpCopyBufferRegion, Dst: dst, DstOffset: dstOffset, Src: src, SrcOffset: srcOffset, NumBytes: numBytes})
}

func (l *CommandList) CopyResource(dst native.Resource, src native.Resource) {
	l.record(Command{Op: OpCopyResource, Dst: dst, Src: src})
}

func (l *CommandList) CopyTextureRegion(dst native.Resource, dstSubresource uint32, src native.Resource, srcFootprint native.SubresourceFootprint) {
	l.record(Command{Op: OpCopyTextureRegion, Dst: dst, DstOffset: int(dstSubresource), Src: src, SrcOffset: srcFootprint.Offset,
		Counts: []int{srcFootprint.Width, srcFootprint.Height, srcFootprint.Depth, srcFootprint.RowPitch}})
}

func (l *CommandList) ResolveSubresource(dst native.Resource, dstSubresource uint32, src native.Resource, srcSubresource uint32, format gputypes.TextureFormat) {
	l.record(Command{Op: OpResolveSubresource, Dst: dst, DstOffset: int(dstSubresource), Src: src, SrcOffset: int(srcSubresource)})
}

func (l *CommandList) IASetPrimitiveTopology(topology gputypes.PrimitiveTopology) {
	l.record(Command{Op: OpSetPrimitiveTopology, Topology: topology})
}

func (l *CommandList) IASetVertexBuffers(startSlot int, views []native.VertexBufferView) {
	l.record(Command{Op: OpSetVertexBuffers, RootIndex: startSlot, VertexBuffers: append([]native.VertexBufferView(nil), views...)})
}

func (l *CommandList) IASetIndexBuffer(view *native.IndexBufferView) {
	var copied *native.IndexBufferView
	if view != nil {
		value := *view
		copied = &value
	}
	l.record(Command{Op: OpSetIndexBuffer, IndexBuffer: copied})
}

func (l *CommandList) SetDescriptorHeaps(heaps []native.DescriptorHeap) {
	l.record(Command{Op: OpSetDescriptorHeaps, Heaps: append([]native.DescriptorHeap(nil), heaps...)})
}

func (l *CommandList) SetGraphicsRootSignature(rootSignature native.RootSignature) {
	l.record(Command{Op: OpSetGraphicsRootSignature, RootSignature: rootSignature})
}

func (l *CommandList) SetComputeRootSignature(rootSignature native.RootSignature) {
	l.record(Command{Op: OpSetComputeRootSignature, RootSignature: rootSignature})
}

func (l *CommandList) SetGraphicsRootDescriptorTable(rootIndex int, base native.GPUDescriptorHandle) {
	l.record(Command{Op: OpSetGraphicsDescriptorTable, RootIndex: rootIndex, GPUHandle: base})
}

func (l *CommandList) SetComputeRootDescriptorTable(rootIndex int, base native.GPUDescriptorHandle) {
	l.record(Command{Op: OpSetComputeDescriptorTable, RootIndex: rootIndex, GPUHandle: base})
}

func (l *CommandList) SetGraphicsRootConstantBufferView(rootIndex int, address uint64) {
	l.record(Command{Op: OpSetGraphicsRootCBV, RootIndex: rootIndex, Address: address})
}

func (l *CommandList) SetComputeRootConstantBufferView(rootIndex int, address uint64) {
	l.record(Command{Op: OpSetComputeRootCBV, RootIndex: rootIndex, Address: address})
}

func (l *CommandList) SetGraphicsRootShaderResourceView(rootIndex int, address uint64) {
	l.record(Command{Op: OpSetGraphicsRootSRV, RootIndex: rootIndex, Address: address})
}

func (l *CommandList) SetComputeRootShaderResourceView(rootIndex int, address uint64) {
	l.record(Command{Op: OpSetComputeRootSRV, RootIndex: rootIndex, Address: address})
}

func (l *CommandList) SetGraphicsRoot32BitConstants(rootIndex int, values []uint32, destOffset int) {
	l.record(Command{Op: OpSetGraphicsRoot32BitConstant, RootIndex: rootIndex, Values: append([]uint32(nil), values...), Counts: []int{destOffset}})
}

func (l *CommandList) SetComputeRoot32BitConstants(rootIndex int, values []uint32, destOffset int) {
	l.record(Command{Op: OpSetComputeRoot32BitConstant, RootIndex: rootIndex, Values: append([]uint32(nil), values...), Counts: []int{destOffset}})
}

func (l *CommandList) ClearRenderTargetView(rtv native.CPUDescriptorHandle, color [4]float32) {
	l.record(Command{Op: OpClearRenderTargetView, CPUHandle: rtv})
}

func (l *CommandList) ClearDepthStencilView(dsv native.CPUDescriptorHandle, flags native.ClearFlags, depth float32, stencil uint8) {
	l.record(Command{Op: OpClearDepthStencilView, CPUHandle: dsv, Counts: []int{int(flags), int(stencil)}})
}

func (l *CommandList) DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance int) {
	l.record(Command{Op: OpDrawInstanced, Counts: []int{vertexCountPerInstance, instanceCount, startVertex, startInstance}})
}

func (l *CommandList) DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex, baseVertex, startInstance int) {
	l.record(Command{Op: OpDrawIndexedInstanced, Counts: []int{indexCountPerInstance, instanceCount, startIndex, baseVertex, startInstance}})
}

func (l *CommandList) Dispatch(x, y, z int) {
	l.record(Command{Op: OpDispatch, Counts: []int{x, y, z}})
}

func (l *CommandList) Release() { l.Released = true }
