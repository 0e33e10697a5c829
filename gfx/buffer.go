package gfx

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/vkngwrapper/recorder/descriptor"
	"github.com/vkngwrapper/recorder/gfxutils"
	"github.com/vkngwrapper/recorder/native"
)

// constantBufferAlignment is the granularity of constant buffer views
const constantBufferAlignment = 16

// Buffer is a resource in the default heap without any views
type Buffer struct {
	Resource
}

// Size returns the size of the buffer in bytes
func (b *Buffer) Size() int {
	if b.native == nil {
		return 0
	}
	return b.native.Desc().Width
}

func (b *Buffer) Release() {
	b.release(nil)
}

// VertexBuffer is a buffer bound to the input assembler through a vertex buffer view
type VertexBuffer struct {
	Buffer
	numVertices int
	stride      int
}

func (d *Device) newVertexBuffer(resource native.Resource, numVertices, stride int, name string) *VertexBuffer {
	buffer := &VertexBuffer{numVertices: numVertices, stride: stride}
	buffer.init(d, resource, nil, name, true)
	return buffer
}

func (b *VertexBuffer) NumVertices() int { return b.numVertices }
func (b *VertexBuffer) Stride() int { return b.stride }

func (b *VertexBuffer) VertexBufferView() native.VertexBufferView {
	return native.VertexBufferView{
		BufferLocation: b.native.GPUVirtualAddress(),
		SizeInBytes:    b.numVertices * b.stride,
		StrideInBytes:  b.stride,
	}
}

// IndexBuffer is a buffer bound to the input assembler through an index buffer view
type IndexBuffer struct {
	Buffer
	numIndices int
	format     gputypes.IndexFormat
}

func indexSize(format gputypes.IndexFormat) (int, error) {
	size := int(format.Size())
	if size == 0 {
		return 0, errors.Newf("unsupported index format %s", format)
	}
	return size, nil
}

func (d *Device) newIndexBuffer(resource native.Resource, numIndices int, format gputypes.IndexFormat, name string) *IndexBuffer {
	buffer := &IndexBuffer{numIndices: numIndices, format: format}
	buffer.init(d, resource, nil, name, true)
	return buffer
}

func (b *IndexBuffer) NumIndices() int { return b.numIndices }
func (b *IndexBuffer) Format() gputypes.IndexFormat { return b.format }

func (b *IndexBuffer) IndexBufferView() native.IndexBufferView {
	size, _ := indexSize(b.format)
	return native.IndexBufferView{
		BufferLocation: b.native.GPUVirtualAddress(),
		SizeInBytes:    b.numIndices * size,
		Format:         b.format,
	}
}

// ConstantBuffer is a buffer read by shaders through a constant buffer view. It has no shader
// resource or unordered access views.
type ConstantBuffer struct {
	Buffer
	sizeInBytes int
	cbv         descriptor.Allocation
}

func (d *Device) newConstantBuffer(resource native.Resource, name string) (*ConstantBuffer, error) {
	buffer := &ConstantBuffer{sizeInBytes: resource.Desc().Width}
	buffer.init(d, resource, nil, name, true)

	var err error
	buffer.cbv, err = d.AllocateDescriptors(native.DescriptorHeapTypeCBVSRVUAV, 1)
	if err != nil {
		return nil, err
	}

	d.native.CreateConstantBufferView(native.ConstantBufferViewDesc{
		BufferLocation: resource.GPUVirtualAddress(),
		SizeInBytes:    gfxutils.AlignUp(buffer.sizeInBytes, constantBufferAlignment),
	}, buffer.cbv.Handle(0))

	return buffer, nil
}

func (b *ConstantBuffer) SizeInBytes() int { return b.sizeInBytes }

func (b *ConstantBuffer) ConstantBufferView() native.CPUDescriptorHandle {
	return b.cbv.Handle(0)
}

func (b *ConstantBuffer) ShaderResourceView() (native.CPUDescriptorHandle, error) {
	return native.CPUDescriptorHandle{}, errors.Wrap(ErrInvalidView, "constant buffers cannot be read through a shader resource view")
}

func (b *ConstantBuffer) UnorderedAccessView(subresource uint32) (native.CPUDescriptorHandle, error) {
	return native.CPUDescriptorHandle{}, errors.Wrap(ErrInvalidView, "constant buffers cannot be written through an unordered access view")
}

func (b *ConstantBuffer) Release() {
	b.release(b.device.takeDescriptors(&b.cbv))
}

// ByteAddressBuffer is a buffer read and written by shaders as raw 32-bit words
type ByteAddressBuffer struct {
	Buffer
	srv descriptor.Allocation
	uav descriptor.Allocation
}

func (d *Device) newByteAddressBuffer(resource native.Resource, name string) (*ByteAddressBuffer, error) {
	buffer := &ByteAddressBuffer{}
	buffer.init(d, resource, nil, name, true)

	err := buffer.createViews()
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

func (b *ByteAddressBuffer) createViews() error {
	desc := b.native.Desc()
	numElements := desc.Width / 4

	var err error
	if desc.Flags&native.ResourceFlagDenyShaderResource == 0 {
		b.srv, err = b.device.AllocateDescriptors(native.DescriptorHeapTypeCBVSRVUAV, 1)
		if err != nil {
			return err
		}
		b.device.native.CreateShaderResourceView(b.native, &native.ShaderResourceViewDesc{
			Dimension:   native.ViewDimensionBuffer,
			NumElements: numElements,
			Raw:         true,
		}, b.srv.Handle(0))
	}

	if desc.Flags&native.ResourceFlagAllowUnorderedAccess != 0 {
		b.uav, err = b.device.AllocateDescriptors(native.DescriptorHeapTypeCBVSRVUAV, 1)
		if err != nil {
			return err
		}
		b.device.native.CreateUnorderedAccessView(b.native, nil, &native.UnorderedAccessViewDesc{
			Dimension:   native.ViewDimensionBuffer,
			NumElements: numElements,
			Raw:         true,
		}, b.uav.Handle(0))
	}

	return nil
}

func (b *ByteAddressBuffer) ShaderResourceView() (native.CPUDescriptorHandle, error) {
	if b.srv.IsNull() {
		return native.CPUDescriptorHandle{}, errors.Wrapf(ErrInvalidView, "buffer %q denies shader resource access", b.name)
	}
	return b.srv.Handle(0), nil
}

func (b *ByteAddressBuffer) UnorderedAccessView(subresource uint32) (native.CPUDescriptorHandle, error) {
	if b.uav.IsNull() || (subresource != 0 && subresource != native.AllSubresources) {
		return native.CPUDescriptorHandle{}, errors.Wrapf(ErrInvalidView, "buffer %q has no unordered access view for subresource %d", b.name, subresource)
	}
	return b.uav.Handle(0), nil
}

func (b *ByteAddressBuffer) Release() {
	b.release(b.device.takeDescriptors(&b.srv, &b.uav))
}

// StructuredBuffer is a buffer of fixed-size elements. Its unordered access view has a counter
// kept in a separate byte address buffer.
type StructuredBuffer struct {
	Buffer
	numElements int
	stride      int
	counter     *ByteAddressBuffer
	srv         descriptor.Allocation
	uav         descriptor.Allocation
}

func (d *Device) newStructuredBuffer(resource native.Resource, counter native.Resource, numElements, stride int, name string) (*StructuredBuffer, error) {
	buffer := &StructuredBuffer{numElements: numElements, stride: stride}
	buffer.init(d, resource, nil, name, true)

	var err error
	if counter != nil {
		buffer.counter, err = d.newByteAddressBuffer(counter, name+" Counter")
		if err != nil {
			return nil, err
		}
	}

	desc := resource.Desc()
	if desc.Flags&native.ResourceFlagDenyShaderResource == 0 {
		buffer.srv, err = d.AllocateDescriptors(native.DescriptorHeapTypeCBVSRVUAV, 1)
		if err != nil {
			return nil, err
		}
		d.native.CreateShaderResourceView(resource, &native.ShaderResourceViewDesc{
			Dimension:           native.ViewDimensionBuffer,
			NumElements:         numElements,
			StructureByteStride: stride,
		}, buffer.srv.Handle(0))
	}

	if desc.Flags&native.ResourceFlagAllowUnorderedAccess != 0 {
		buffer.uav, err = d.AllocateDescriptors(native.DescriptorHeapTypeCBVSRVUAV, 1)
		if err != nil {
			return nil, err
		}
		d.native.CreateUnorderedAccessView(resource, counter, &native.UnorderedAccessViewDesc{
			Dimension:           native.ViewDimensionBuffer,
			NumElements:         numElements,
			StructureByteStride: stride,
		}, buffer.uav.Handle(0))
	}

	return buffer, nil
}

func (b *StructuredBuffer) NumElements() int { return b.numElements }
func (b *StructuredBuffer) Stride() int { return b.stride }

// CounterBuffer returns the buffer holding the unordered access view's counter, or nil if the
// buffer has no unordered access
func (b *StructuredBuffer) CounterBuffer() *ByteAddressBuffer { return b.counter }

func (b *StructuredBuffer) ShaderResourceView() (native.CPUDescriptorHandle, error) {
	if b.srv.IsNull() {
		return native.CPUDescriptorHandle{}, errors.Wrapf(ErrInvalidView, "buffer %q denies shader resource access", b.name)
	}
	return b.srv.Handle(0), nil
}

func (b *StructuredBuffer) UnorderedAccessView(subresource uint32) (native.CPUDescriptorHandle, error) {
	if b.uav.IsNull() || (subresource != 0 && subresource != native.AllSubresources) {
		return native.CPUDescriptorHandle{}, errors.Wrapf(ErrInvalidView, "buffer %q has no unordered access view for subresource %d", b.name, subresource)
	}
	return b.uav.Handle(0), nil
}

// Release releases the buffer and its counter. The unordered access view refers to the counter,
// so the counter is only released along with the view.
func (b *StructuredBuffer) Release() {
	var releaseCounter func()
	if b.counter != nil {
		releaseCounter = b.counter.Release
	}
	b.release(combineReleasers(b.device.takeDescriptors(&b.srv, &b.uav), releaseCounter))
}
