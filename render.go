package img2chars

import (
	"image"
	"image/color"
)

// RenderArtifact rasterizes a decoded artifact back into an RGBA image
// using glyph templates at the given cell size. It exists for visual
// inspection of batch output; the artifact itself stays the contract for
// downstream renderers.
func RenderArtifact(a *Artifact, cache *TemplateCache, cellWidth, cellHeight int) (*image.NRGBA, error) {
	grid, err := a.Decode()
	if err != nil {
		return nil, err
	}

	// Collect the characters actually used so the template set only
	// renders what the preview needs.
	seen := make(map[rune]bool)
	var runes []rune
	for _, row := range grid {
		for _, ch := range row {
			if !ch.Transparent && !seen[ch.Char] {
				seen[ch.Char] = true
				runes = append(runes, ch.Char)
			}
		}
	}
	if len(runes) == 0 {
		return image.NewNRGBA(image.Rect(0, 0, a.Width*cellWidth, a.Height*cellHeight)), nil
	}

	set, err := cache.Get(cellWidth, cellHeight, string(runes))
	if err != nil {
		return nil, err
	}
	byChar := make(map[rune]*GlyphTemplate, len(set.Templates))
	for i := range set.Templates {
		byChar[set.Templates[i].Char] = &set.Templates[i]
	}

	img := image.NewNRGBA(image.Rect(0, 0, a.Width*cellWidth, a.Height*cellHeight))
	for row, cells := range grid {
		for col, ch := range cells {
			if ch.Transparent {
				continue
			}
			renderCell(img, byChar[ch.Char], ch, col*cellWidth, row*cellHeight,
				cellWidth, cellHeight)
		}
	}
	return img, nil
}

// renderCell blends one glyph's coverage raster between the cell's
// background and foreground colors.
func renderCell(img *image.NRGBA, tmpl *GlyphTemplate, ch AsciiChar, x0, y0, w, h int) {
	bg := color.NRGBA{A: 0}
	if ch.HasBg {
		bg = color.NRGBA{R: ch.Bg.R, G: ch.Bg.G, B: ch.Bg.B, A: 255}
	}
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			cov := float64(tmpl.Pixels[dy*w+dx]) / 255.0
			out := bg
			if cov > 0 {
				out = color.NRGBA{
					R: blendChannel(bg.R, ch.Fg.R, cov),
					G: blendChannel(bg.G, ch.Fg.G, cov),
					B: blendChannel(bg.B, ch.Fg.B, cov),
					A: blendChannel(bg.A, 255, cov),
				}
			}
			img.SetNRGBA(x0+dx, y0+dy, out)
		}
	}
}

func blendChannel(bg, fg uint8, cov float64) uint8 {
	return uint8(float64(bg)*(1-cov) + float64(fg)*cov)
}
