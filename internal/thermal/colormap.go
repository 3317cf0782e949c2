package thermal

import "gocv.io/x/gocv"

// NumColormaps is the number of selectable false-color palettes.
const NumColormaps = 11

// OpenCV colormap ids not yet named by the gocv bindings.
const (
	colormapMagma   = gocv.ColormapTypes(13)
	colormapInferno = gocv.ColormapTypes(14)
	colormapPlasma  = gocv.ColormapTypes(15)
	colormapViridis = gocv.ColormapTypes(16)
)

type colormapEntry struct {
	name string
	id   gocv.ColormapTypes
	// invert swaps BGR to RGB after mapping, which reverses the hue
	// ramp of the rainbow palette.
	invert bool
}

var colormaps = [NumColormaps]colormapEntry{
	{name: "Jet", id: gocv.ColormapJet},
	{name: "Hot", id: gocv.ColormapHot},
	{name: "Magma", id: colormapMagma},
	{name: "Inferno", id: colormapInferno},
	{name: "Plasma", id: colormapPlasma},
	{name: "Bone", id: gocv.ColormapBone},
	{name: "Spring", id: gocv.ColormapSpring},
	{name: "Autumn", id: gocv.ColormapAutumn},
	{name: "Viridis", id: colormapViridis},
	{name: "Parula", id: gocv.ColormapParula},
	{name: "Inv Rainbow", id: gocv.ColormapRainbow, invert: true},
}

// ColormapName returns the display name for a palette index.
func ColormapName(idx int) string {
	idx %= NumColormaps
	if idx < 0 {
		idx += NumColormaps
	}
	return colormaps[idx].name
}
