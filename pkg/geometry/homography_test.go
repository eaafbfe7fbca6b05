package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHomographyApplyScale(t *testing.T) {
	h := ScaleHomography(2, 10, -5)
	p := h.Apply(NewPoint2D(3, 4))
	assert.InDelta(t, 16, p.X, 1e-12)
	assert.InDelta(t, 3, p.Y, 1e-12)
}

func TestHomographyApplyAtInfinity(t *testing.T) {
	h := Homography{{1, 0, 0}, {0, 1, 0}, {1, 0, 0}}
	p := h.Apply(NewPoint2D(0, 5))
	assert.False(t, p.IsFinite())
}

func TestHomographyInverseRoundTrip(t *testing.T) {
	h := Homography{
		{3.2, 0.4, 120},
		{-0.3, 3.1, 900},
		{0.0004, -0.0002, 1},
	}
	inv, ok := h.Inverse()
	require.True(t, ok)

	for _, p := range []Point2D{{0, 0}, {200, 0}, {200, 200}, {37.5, 121.25}} {
		back := inv.Apply(h.Apply(p))
		assert.InDelta(t, p.X, back.X, 1e-9)
		assert.InDelta(t, p.Y, back.Y, 1e-9)
	}
}

func TestHomographySingularHasNoInverse(t *testing.T) {
	h := Homography{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}
	assert.True(t, h.IsDegenerate())
	_, ok := h.Inverse()
	assert.False(t, ok)
}

func TestHomographyMulComposes(t *testing.T) {
	a := ScaleHomography(2, 0, 0)
	b := ScaleHomography(1, 5, 7)
	p := a.Mul(b).Apply(NewPoint2D(1, 1))
	assert.InDelta(t, 12, p.X, 1e-12)
	assert.InDelta(t, 16, p.Y, 1e-12)
}

func TestQuadToQuadMapsCorners(t *testing.T) {
	src := [4]Point2D{{0, 0}, {400, 0}, {400, 300}, {0, 300}}
	dst := [4]Point2D{{812, 640}, {1190, 602}, {1222, 311}, {790, 330}}

	h, err := QuadToQuad(src, dst)
	require.NoError(t, err)
	for i := range src {
		p := h.Apply(src[i])
		assert.InDelta(t, dst[i].X, p.X, 1e-6)
		assert.InDelta(t, dst[i].Y, p.Y, 1e-6)
	}
}

func TestQuadToQuadRejectsCollinear(t *testing.T) {
	src := [4]Point2D{{0, 0}, {1, 1}, {2, 2}, {0, 5}}
	dst := [4]Point2D{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	_, err := QuadToQuad(src, dst)
	assert.Error(t, err)
}

func TestRotationHomographyAngle(t *testing.T) {
	h := RotationHomography(math.Pi/6, 2, 0, 0)
	p := h.Apply(NewPoint2D(10, 0))
	assert.InDelta(t, 30, math.Atan2(p.Y, p.X)*180/math.Pi, 1e-9)
	assert.InDelta(t, 20, math.Hypot(p.X, p.Y), 1e-9)
}

func TestCollinearAndOrientation(t *testing.T) {
	assert.True(t, Collinear(Point2D{0, 0}, Point2D{1, 1}, Point2D{5, 5}))
	assert.True(t, Collinear(Point2D{1, 1}, Point2D{1, 1}, Point2D{5, 0}))
	assert.False(t, Collinear(Point2D{0, 0}, Point2D{1, 0}, Point2D{0, 1}))

	assert.Equal(t, 1, Orientation(Point2D{0, 0}, Point2D{1, 0}, Point2D{0, 1}))
	assert.Equal(t, -1, Orientation(Point2D{0, 0}, Point2D{0, 1}, Point2D{1, 0}))
}

func TestRectCornersOrder(t *testing.T) {
	c := NewRect(75, 75, 50, 20).Corners()
	assert.Equal(t, [4]Point2D{{75, 75}, {125, 75}, {125, 95}, {75, 95}}, c)
}

func TestIsConvexAndPointInPolygon(t *testing.T) {
	square := []Point2D{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	bowtie := []Point2D{{0, 0}, {10, 10}, {10, 0}, {0, 10}}
	assert.True(t, IsConvex(square))
	assert.False(t, IsConvex(bowtie))
	assert.True(t, PointInPolygon(Point2D{5, 5}, square))
	assert.False(t, PointInPolygon(Point2D{15, 5}, square))
}
