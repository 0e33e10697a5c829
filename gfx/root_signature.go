package gfx

import (
	"github.com/google/uuid"
	"github.com/vkngwrapper/recorder/dynheap"
	"github.com/vkngwrapper/recorder/native"
)

// RootSignature is a native root signature plus the layout of its descriptor tables. Only the
// first dynheap.MaxDescriptorTables root parameters can be descriptor tables that a command
// list stages descriptors for.
type RootSignature struct {
	lifetime
	device *Device
	native native.RootSignature
	desc   native.RootSignatureDesc

	tableMasks     [native.DescriptorHeapTypeCount]uint32
	numDescriptors [dynheap.MaxDescriptorTables]int
}

var _ dynheap.RootSignatureLayout = &RootSignature{}

// CreateRootSignature creates a native root signature and parses its descriptor tables
func (d *Device) CreateRootSignature(desc native.RootSignatureDesc) (*RootSignature, error) {
	rootSignature, err := d.native.CreateRootSignature(desc)
	if err != nil {
		return nil, deviceFailure(err, "failed to create root signature")
	}

	signature := &RootSignature{
		device: d,
		native: rootSignature,
		desc:   desc,
	}
	signature.id = uuid.New()
	signature.parse()

	return signature, nil
}

func (s *RootSignature) parse() {
	for rootIndex, parameter := range s.desc.Parameters {
		if rootIndex >= dynheap.MaxDescriptorTables {
			break
		}
		if parameter.Type != native.RootParameterTypeDescriptorTable || len(parameter.Ranges) == 0 {
			continue
		}

		heapType := native.DescriptorHeapTypeCBVSRVUAV
		if parameter.Ranges[0].Type == native.DescriptorRangeTypeSampler {
			heapType = native.DescriptorHeapTypeSampler
		}
		s.tableMasks[heapType] |= 1 << uint(rootIndex)

		numDescriptors := 0
		for _, descriptorRange := range parameter.Ranges {
			numDescriptors += descriptorRange.NumDescriptors
		}
		s.numDescriptors[rootIndex] = numDescriptors
	}
}

func (s *RootSignature) Native() native.RootSignature { return s.native }
func (s *RootSignature) Desc() native.RootSignatureDesc { return s.desc }

func (s *RootSignature) DescriptorTableBitMask(heapType native.DescriptorHeapType) uint32 {
	if heapType >= native.DescriptorHeapTypeCount {
		return 0
	}
	return s.tableMasks[heapType]
}

func (s *RootSignature) NumDescriptors(rootIndex int) int {
	if rootIndex < 0 || rootIndex >= dynheap.MaxDescriptorTables {
		return 0
	}
	return s.numDescriptors[rootIndex]
}

// Release destroys the native root signature once no command list references it
func (s *RootSignature) Release() {
	if s.released.Swap(true) {
		return
	}
	s.device.releaseWhenUnused(&s.lifetime, s.native.Release)
}
