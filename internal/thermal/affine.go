package thermal

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// rotationMatrix is a 2x3 affine rotation about a center point. The
// same matrix warps the display image and transforms annotation
// points, so overlays stay glued to the pixels they describe.
type rotationMatrix struct {
	a, b, tx float64
	c, d, ty float64
}

// newRotationMatrix builds the rotation by angle degrees
// (counter-clockwise) about center with the given scale.
func newRotationMatrix(center image.Point, angle, scale float64) rotationMatrix {
	rad := angle * math.Pi / 180
	alpha := scale * math.Cos(rad)
	beta := scale * math.Sin(rad)
	cx, cy := float64(center.X), float64(center.Y)
	return rotationMatrix{
		a: alpha, b: beta, tx: (1-alpha)*cx - beta*cy,
		c: -beta, d: alpha, ty: beta*cx + (1-alpha)*cy,
	}
}

// apply transforms a point through the affine matrix.
func (m rotationMatrix) apply(p image.Point) image.Point {
	x := m.a*float64(p.X) + m.b*float64(p.Y) + m.tx
	y := m.c*float64(p.X) + m.d*float64(p.Y) + m.ty
	return image.Pt(int(math.Round(x)), int(math.Round(y)))
}

// mat materializes the matrix for gocv.WarpAffine. Caller closes it.
func (m rotationMatrix) mat() gocv.Mat {
	out := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	out.SetDoubleAt(0, 0, m.a)
	out.SetDoubleAt(0, 1, m.b)
	out.SetDoubleAt(0, 2, m.tx)
	out.SetDoubleAt(1, 0, m.c)
	out.SetDoubleAt(1, 1, m.d)
	out.SetDoubleAt(1, 2, m.ty)
	return out
}
