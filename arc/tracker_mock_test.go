package arc

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arc/memutils"
	mock_memutils "github.com/vkngwrapper/arc/memutils/mocks"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

func TestLifecycleReportedInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	tracker := mock_memutils.NewMockBlockTracker(ctrl)

	gomock.InOrder(
		tracker.EXPECT().Allocate("ordered", memutils.SizeOf[block[string]]()).Return(uint64(17)),
		tracker.EXPECT().Destroy(uint64(17)).Return(nil),
		tracker.EXPECT().Free(uint64(17)).Return(nil),
	)

	s := NewWithOptions("value", CreateOptions[string]{
		Name:    "ordered",
		Tracker: tracker,
	})
	w := s.Downgrade()
	clone := s.Clone()

	s.Drop()
	clone.Drop()
	w.Drop()
}

func TestTryUnwrapReportedAsDestroy(t *testing.T) {
	ctrl := gomock.NewController(t)
	tracker := mock_memutils.NewMockBlockTracker(ctrl)

	gomock.InOrder(
		tracker.EXPECT().Allocate("", gomock.Any()).Return(uint64(3)),
		tracker.EXPECT().Destroy(uint64(3)).Return(nil),
		tracker.EXPECT().Free(uint64(3)).Return(nil),
	)

	s := NewWithOptions(5, CreateOptions[int]{Tracker: tracker})
	value, ok := s.TryUnwrap()
	require.True(t, ok)
	require.Equal(t, 5, value)
}

func TestTrackerErrorsAreLogged(t *testing.T) {
	ctrl := gomock.NewController(t)
	tracker := mock_memutils.NewMockBlockTracker(ctrl)

	tracker.EXPECT().Allocate("rejected", gomock.Any()).Return(uint64(8))
	tracker.EXPECT().Destroy(uint64(8)).Return(errors.Wrap(memutils.DoubleDestroyError, "block 8"))
	tracker.EXPECT().Free(uint64(8)).Return(errors.Wrap(memutils.DoubleFreeError, "block 8"))

	var buffer bytes.Buffer
	s := NewWithOptions(1, CreateOptions[int]{
		Name:    "rejected",
		Tracker: tracker,
		Logger:  slog.New(slog.NewTextHandler(&buffer)),
	})
	s.Drop()

	logged := buffer.String()
	require.Contains(t, logged, `level=ERROR msg="tracker rejected payload destruction" block=8`)
	require.Contains(t, logged, `level=ERROR msg="tracker rejected block release" block=8`)
	require.Contains(t, logged, "block 8: block payload was destroyed more than once")
}
