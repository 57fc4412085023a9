package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	t.Run("identical points", func(t *testing.T) {
		p := Point{Latitude: 51.2194, Longitude: 4.4025}
		assert.Equal(t, 0.0, Distance(p, p))
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		km := Distance(Point{Latitude: 0, Longitude: 0}, Point{Latitude: 1, Longitude: 0})
		assert.InDelta(t, 111.195, km, 0.01)
	})

	t.Run("antwerp to brussels", func(t *testing.T) {
		antwerp := Point{Latitude: 51.2194, Longitude: 4.4025}
		brussels := Point{Latitude: 50.8503, Longitude: 4.3517}
		km := Distance(antwerp, brussels)
		assert.InDelta(t, 41.2, km, 0.5)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Point{Latitude: 51.2194, Longitude: 4.4025}
		b := Point{Latitude: 50.8503, Longitude: 4.3517}
		assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
	})
}

func TestFormatKm(t *testing.T) {
	tests := []struct {
		name string
		km   float64
		want string
	}{
		{"just under one kilometer", 0.999, "999 m"},
		{"exactly one kilometer", 1.0, "1.0 km"},
		{"mid single digit", 5.25, "5.2 km"},
		{"just under ten", 9.94, "9.9 km"},
		{"exactly ten kilometers", 10.0, "10 km"},
		{"large distance", 137.6, "138 km"},
		{"zero", 0, "0 m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatKm(tt.km))
		})
	}
}

func TestFormatDistance(t *testing.T) {
	target := Point{Latitude: 51.22, Longitude: 4.40}

	t.Run("unknown origin", func(t *testing.T) {
		assert.Equal(t, UnknownDistance, FormatDistance(nil, target))
	})

	t.Run("known origin", func(t *testing.T) {
		origin := Point{Latitude: 51.2194, Longitude: 4.4025}
		got := FormatDistance(&origin, target)
		assert.NotEqual(t, UnknownDistance, got)
		assert.Regexp(t, `^\d+ m$`, got)
	})
}
