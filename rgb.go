package img2chars

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// RGB represents a color in the RGB color space with 8-bit channels,
// where each channel ranges from 0 to 255.
type RGB struct {
	R, G, B uint8
}

// Luma returns the perceptual brightness of the color in [0, 255] using
// the Rec. 601 weights.
func (c RGB) Luma() float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}

// Hex returns the color as an uppercase "#RRGGBB" string, the form used
// in encoded artifact palettes.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ParseHex parses a "#RRGGBB" hex string into an RGB color.
func ParseHex(s string) (RGB, error) {
	col, err := colorful.Hex(s)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid palette color %q: %w", s, err)
	}
	r, g, b := col.RGB255()
	return RGB{R: r, G: g, B: b}, nil
}

// distanceSq returns the squared Euclidean distance between two colors in
// RGB space. Squared distance preserves ordering and avoids the square
// root in the clustering inner loop.
func (c RGB) distanceSq(other RGB) int {
	dr := int(c.R) - int(other.R)
	dg := int(c.G) - int(other.G)
	db := int(c.B) - int(other.B)
	return dr*dr + dg*dg + db*db
}

// ColorDistance returns the Euclidean distance between two RGB colors.
func (c RGB) ColorDistance(other RGB) float64 {
	return math.Sqrt(float64(c.distanceSq(other)))
}

// nearestColor returns the index of the candidate closest to c by
// Euclidean RGB distance. Ties resolve to the first candidate in order so
// that selection is deterministic for a fixed candidate ordering.
func nearestColor(c RGB, candidates []RGB) int {
	best := 0
	bestDist := math.MaxInt
	for i, cand := range candidates {
		d := c.distanceSq(cand)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}
