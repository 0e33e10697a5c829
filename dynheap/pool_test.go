package dynheap_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/recorder/dynheap"
	mock_native "github.com/vkngwrapper/recorder/native/mocks"
	"go.uber.org/mock/gomock"
)

func TestMarkerReached(t *testing.T) {
	ctrl := gomock.NewController(t)

	fence := mock_native.NewMockFence(ctrl)
	gomock.InOrder(
		fence.EXPECT().CompletedValue().Return(uint64(4)),
		fence.EXPECT().CompletedValue().Return(uint64(5)),
		fence.EXPECT().CompletedValue().Return(uint64(9)),
	)

	marker := dynheap.Marker{Fence: fence, Value: 5}
	require.False(t, marker.Reached())
	require.True(t, marker.Reached())
	require.True(t, marker.Reached())

	require.True(t, dynheap.Marker{}.Reached())
}
