package gfx

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/vkngwrapper/recorder/descriptor"
	"github.com/vkngwrapper/recorder/native"
)

// ResourceFlagsForUsage converts texture usages into the resource flags a texture needs to be
// created with
func ResourceFlagsForUsage(usage gputypes.TextureUsage, format gputypes.TextureFormat) native.ResourceFlags {
	var flags native.ResourceFlags
	if usage.Contains(gputypes.TextureUsageRenderAttachment) {
		if format.IsDepthStencil() {
			flags |= native.ResourceFlagAllowDepthStencil
		} else {
			flags |= native.ResourceFlagAllowRenderTarget
		}
	}
	if usage.Contains(gputypes.TextureUsageStorageBinding) {
		flags |= native.ResourceFlagAllowUnorderedAccess
	}
	if !usage.Contains(gputypes.TextureUsageTextureBinding) && flags&native.ResourceFlagAllowDepthStencil != 0 {
		flags |= native.ResourceFlagDenyShaderResource
	}
	return flags
}

// Texture is a 1D, 2D or 3D image. Views are created for every usage that both the resource
// flags and the device's format support allow: one shader resource view over the whole texture,
// one unordered access view per subresource, and render target or depth stencil views over the
// first subresource.
type Texture struct {
	Resource
	support native.FormatSupport

	srv descriptor.Allocation
	uav descriptor.Allocation
	rtv descriptor.Allocation
	dsv descriptor.Allocation
}

func (d *Device) newTexture(resource native.Resource, clearValue *native.ClearValue, name string, owned bool) (*Texture, error) {
	texture := &Texture{}
	texture.init(d, resource, clearValue, name, owned)

	err := texture.createViews()
	if err != nil {
		if freeViews := texture.takeViews(); freeViews != nil {
			freeViews()
		}
		return nil, err
	}
	return texture, nil
}

// takeViews detaches every view from the texture and returns a function that frees them
func (t *Texture) takeViews() func() {
	return t.device.takeDescriptors(&t.srv, &t.uav, &t.rtv, &t.dsv)
}

func uavDesc(desc native.ResourceDesc, mipSlice, arraySlice int) (native.UnorderedAccessViewDesc, error) {
	view := native.UnorderedAccessViewDesc{
		Format:          desc.Format,
		MipSlice:        mipSlice,
		FirstArraySlice: arraySlice,
	}

	switch desc.Dimension {
	case native.ResourceDimensionTexture1D:
		view.Dimension = native.ViewDimensionTexture1D
		if desc.DepthOrArraySize > 1 {
			view.Dimension = native.ViewDimensionTexture1DArray
			view.ArraySize = desc.DepthOrArraySize
		}
	case native.ResourceDimensionTexture2D:
		view.Dimension = native.ViewDimensionTexture2D
		if desc.DepthOrArraySize > 1 {
			view.Dimension = native.ViewDimensionTexture2DArray
			view.ArraySize = desc.DepthOrArraySize
		}
	case native.ResourceDimensionTexture3D:
		view.Dimension = native.ViewDimensionTexture3D
		view.ArraySize = desc.DepthOrArraySize
	default:
		return view, errors.Newf("cannot create a texture view for a resource of dimension %s", desc.Dimension)
	}

	return view, nil
}

func (t *Texture) createViews() error {
	if t.native == nil {
		return nil
	}

	desc := t.native.Desc()
	support, err := t.device.native.CheckFormatSupport(desc.Format)
	if err != nil {
		return deviceFailure(err, "failed to query support for format %s", desc.Format)
	}
	t.support = support

	if support&native.FormatSupportShaderResource != 0 && desc.Flags&native.ResourceFlagDenyShaderResource == 0 {
		t.srv, err = t.device.AllocateDescriptors(native.DescriptorHeapTypeCBVSRVUAV, 1)
		if err != nil {
			return err
		}
		t.device.native.CreateShaderResourceView(t.native, nil, t.srv.Handle(0))
	}

	if support&native.FormatSupportUnorderedAccess != 0 && desc.Flags&native.ResourceFlagAllowUnorderedAccess != 0 {
		t.uav, err = t.device.AllocateDescriptors(native.DescriptorHeapTypeCBVSRVUAV, desc.SubresourceCount())
		if err != nil {
			return err
		}

		mipLevels := max(desc.MipLevels, 1)
		for arraySlice := 0; arraySlice < desc.ArraySize(); arraySlice++ {
			for mipSlice := 0; mipSlice < mipLevels; mipSlice++ {
				view, err := uavDesc(desc, mipSlice, arraySlice)
				if err != nil {
					return err
				}
				subresource := desc.CalcSubresource(mipSlice, arraySlice)
				t.device.native.CreateUnorderedAccessView(t.native, nil, &view, t.uav.Handle(int(subresource)))
			}
		}
	}

	if support&native.FormatSupportRenderTarget != 0 && desc.Flags&native.ResourceFlagAllowRenderTarget != 0 {
		t.rtv, err = t.device.AllocateDescriptors(native.DescriptorHeapTypeRTV, 1)
		if err != nil {
			return err
		}
		t.device.native.CreateRenderTargetView(t.native, nil, t.rtv.Handle(0))
	}

	if support&native.FormatSupportDepthStencil != 0 && desc.Flags&native.ResourceFlagAllowDepthStencil != 0 {
		t.dsv, err = t.device.AllocateDescriptors(native.DescriptorHeapTypeDSV, 1)
		if err != nil {
			return err
		}
		t.device.native.CreateDepthStencilView(t.native, t.dsv.Handle(0))
	}

	return nil
}

// FormatSupport returns the device's support for the texture's format
func (t *Texture) FormatSupport() native.FormatSupport { return t.support }

func (t *Texture) ShaderResourceView() (native.CPUDescriptorHandle, error) {
	if t.srv.IsNull() {
		return native.CPUDescriptorHandle{}, errors.Wrapf(ErrInvalidView, "texture %q has no shader resource view", t.name)
	}
	return t.srv.Handle(0), nil
}

// UnorderedAccessView returns the view of a single subresource. native.AllSubresources
// returns the view of subresource 0.
func (t *Texture) UnorderedAccessView(subresource uint32) (native.CPUDescriptorHandle, error) {
	if subresource == native.AllSubresources {
		subresource = 0
	}
	if t.uav.IsNull() || int(subresource) >= t.uav.Count() {
		return native.CPUDescriptorHandle{}, errors.Wrapf(ErrInvalidView, "texture %q has no unordered access view for subresource %d", t.name, subresource)
	}
	return t.uav.Handle(int(subresource)), nil
}

func (t *Texture) RenderTargetView() (native.CPUDescriptorHandle, error) {
	if t.rtv.IsNull() {
		return native.CPUDescriptorHandle{}, errors.Wrapf(ErrInvalidView, "texture %q has no render target view", t.name)
	}
	return t.rtv.Handle(0), nil
}

func (t *Texture) DepthStencilView() (native.CPUDescriptorHandle, error) {
	if t.dsv.IsNull() {
		return native.CPUDescriptorHandle{}, errors.Wrapf(ErrInvalidView, "texture %q has no depth stencil view", t.name)
	}
	return t.dsv.Handle(0), nil
}

// Resize recreates the native texture with new dimensions, in the common state, and recreates
// every view. The texture keeps its identity, so command lists that have already recorded
// barriers for it must be submitted before it is resized.
func (t *Texture) Resize(width, height, depthOrArraySize int) error {
	if t.native == nil {
		return nil
	}
	if !t.owned {
		return errors.Newf("texture %q does not own its native resource and cannot be resized", t.name)
	}

	desc := t.native.Desc()
	desc.Width = max(width, 1)
	desc.Height = max(height, 1)
	desc.DepthOrArraySize = max(depthOrArraySize, 1)

	resource, err := t.device.native.CreateCommittedResource(native.HeapTypeDefault, desc, native.ResourceStateCommon, t.clearValue)
	if err != nil {
		return deviceFailure(err, "failed to recreate texture %q", t.name)
	}

	t.device.registry.RemoveGlobalResourceState(t)
	t.replace(resource, t.takeViews())
	t.device.registry.AddGlobalResourceState(t, native.ResourceStateCommon)

	return t.createViews()
}

func (t *Texture) Release() {
	t.release(t.takeViews())
}
