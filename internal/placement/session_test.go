package placement

import (
	"image"
	"testing"

	"laser-align/internal/alignment"
	"laser-align/internal/monitoring"
	"laser-align/pkg/geometry"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

func newSession(t *testing.T) *Session {
	t.Helper()
	m, err := alignment.NewMapperFrom(geometry.ScaleHomography(2, 10, 20))
	require.NoError(t, err)
	s, err := NewSession(m, geometry.NewSize(20, 10), image.Pt(640, 480))
	require.NoError(t, err)
	return s
}

func TestSelectCentresDesign(t *testing.T) {
	s := newSession(t)
	assert.Equal(t, Idle, s.State())
	assert.NotEqual(t, uuid.Nil, s.ID())

	res, err := s.Select(geometry.NewPoint2D(110, 220))
	require.NoError(t, err)
	assert.Equal(t, Previewing, s.State())

	want := [4]geometry.Point2D{{X: 90, Y: 210}, {X: 130, Y: 210}, {X: 130, Y: 230}, {X: 90, Y: 230}}
	if diff := cmp.Diff(want, res.CornersPx, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("corners mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 40, res.DesignRectMM.X, 1e-9)
	assert.InDelta(t, 95, res.DesignRectMM.Y, 1e-9)
	assert.Equal(t, image.Pt(640, 480), res.ImageSize)

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Same(t, res, cur)
}

func TestReselectWhilePreviewing(t *testing.T) {
	s := newSession(t)
	_, err := s.Select(geometry.NewPoint2D(110, 220))
	require.NoError(t, err)
	res, err := s.Select(geometry.NewPoint2D(210, 220))
	require.NoError(t, err)
	assert.InDelta(t, 90, res.DesignRectMM.X, 1e-9)
	assert.Equal(t, Previewing, s.State())
}

func TestConfirm(t *testing.T) {
	s := newSession(t)

	_, err := s.Confirm()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	var confirmed *alignment.Result
	s.On(EventConfirmed, func(res *alignment.Result) { confirmed = res })

	sel, err := s.Select(geometry.NewPoint2D(110, 220))
	require.NoError(t, err)
	res, err := s.Confirm()
	require.NoError(t, err)
	assert.Same(t, sel, res)
	assert.Same(t, sel, confirmed)
	assert.Equal(t, Confirmed, s.State())
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	confirmed := newSession(t)
	_, err := confirmed.Select(geometry.NewPoint2D(110, 220))
	require.NoError(t, err)
	_, err = confirmed.Confirm()
	require.NoError(t, err)

	cancelled := newSession(t)
	require.NoError(t, cancelled.Cancel())

	for name, s := range map[string]*Session{"confirmed": confirmed, "cancelled": cancelled} {
		t.Run(name, func(t *testing.T) {
			before := s.State()
			_, err := s.Select(geometry.NewPoint2D(1, 1))
			assert.ErrorIs(t, err, ErrInvalidTransition)
			_, err = s.Confirm()
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.ErrorIs(t, s.Cancel(), ErrInvalidTransition)
			assert.Equal(t, before, s.State())
		})
	}
}

func TestCancelFromPreviewDropsPlacement(t *testing.T) {
	s := newSession(t)
	events := 0
	s.On(EventCancelled, func(res *alignment.Result) {
		assert.Nil(t, res)
		events++
	})

	_, err := s.Select(geometry.NewPoint2D(110, 220))
	require.NoError(t, err)
	require.NoError(t, s.Cancel())

	assert.Equal(t, Cancelled, s.State())
	_, ok := s.Current()
	assert.False(t, ok)
	assert.Equal(t, 1, events)
}

func TestNewSessionRequiresHomography(t *testing.T) {
	_, err := NewSession(alignment.NewMapper(), geometry.NewSize(10, 10), image.Pt(1, 1))
	assert.ErrorIs(t, err, alignment.ErrNoHomography)

	_, err = NewSession(nil, geometry.NewSize(10, 10), image.Pt(1, 1))
	assert.ErrorIs(t, err, alignment.ErrNoHomography)

	m, err := alignment.NewMapperFrom(geometry.IdentityHomography())
	require.NoError(t, err)
	_, err = NewSession(m, geometry.NewSize(0, 10), image.Pt(1, 1))
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "previewing", Previewing.String())
	assert.True(t, Cancelled.Terminal())
	assert.False(t, Idle.Terminal())
}
