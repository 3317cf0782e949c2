package thermal

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRotationIdentity(t *testing.T) {
	m := newRotationMatrix(image.Pt(384, 288), 0, 1)
	p := image.Pt(123, 456)
	assert.Equal(t, p, m.apply(p))
}

func TestRotation180AboutCenter(t *testing.T) {
	c := image.Pt(384, 288)
	m := newRotationMatrix(c, 180, 1)
	p := image.Pt(100, 50)
	got := m.apply(p)
	assert.Equal(t, image.Pt(2*c.X-p.X, 2*c.Y-p.Y), got)
}

func TestRotationCenterFixed(t *testing.T) {
	c := image.Pt(384, 288)
	for _, deg := range []float64{90, 180, 270, 45} {
		m := newRotationMatrix(c, deg, 1)
		assert.Equal(t, c, m.apply(c), "center must not move at %v deg", deg)
	}
}

func TestRotationComposition(t *testing.T) {
	// 90 twice lands where 180 does.
	c := image.Pt(384, 288)
	m90 := newRotationMatrix(c, 90, 1)
	m180 := newRotationMatrix(c, 180, 1)
	p := image.Pt(500, 120)
	got := m90.apply(m90.apply(p))
	want := m180.apply(p)
	assert.InDelta(t, want.X, got.X, 1)
	assert.InDelta(t, want.Y, got.Y, 1)
}
