package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	t.Run("zero distance for identical points", func(t *testing.T) {
		assert.Equal(t, 0.0, DistanceMeters(49.2827, -123.1207, 49.2827, -123.1207))
	})

	t.Run("known distance downtown Vancouver to Stanley Park", func(t *testing.T) {
		// ~2.8 km between Waterfront Station and Lost Lagoon
		d := DistanceMeters(49.2860, -123.1115, 49.2946, -123.1421)
		assert.InDelta(t, 2400, d, 400)
	})

	t.Run("symmetry", func(t *testing.T) {
		d1 := DistanceMeters(49.2827, -123.1207, 49.2820, -123.1190)
		d2 := DistanceMeters(49.2820, -123.1190, 49.2827, -123.1207)
		assert.InDelta(t, d1, d2, 1e-9)
	})
}

func TestBoundingBox(t *testing.T) {
	minLat, maxLat, minLng, maxLng := BoundingBox(49.2827, -123.1207, 500)

	assert.Less(t, minLat, 49.2827)
	assert.Greater(t, maxLat, 49.2827)
	assert.Less(t, minLng, -123.1207)
	assert.Greater(t, maxLng, -123.1207)

	// every point on the box edge at the center latitude must be >= 500m out
	d := DistanceMeters(49.2827, -123.1207, maxLat, -123.1207)
	assert.GreaterOrEqual(t, d, 499.0)
}
