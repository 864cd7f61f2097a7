package img2chars

import (
	"fmt"

	"github.com/wbrown/img2chars/imageutil"
)

const (
	// DefaultAspect is the fixed cell aspect ratio: a character cell is
	// twice as tall as it is wide, matching the pitch of the target
	// monospaced display.
	DefaultAspect = 2

	// opaqueAlpha is the alpha threshold above which a pixel contributes
	// to color and brightness statistics.
	opaqueAlpha = 128
)

// Cell holds the per-block aggregates computed by Partition for one
// character position.
type Cell struct {
	Row, Col int

	// Transparent is set when the mean alpha over the full cell is
	// below the opacity threshold. Transparent cells bypass character
	// selection and contribute nothing to palette clustering.
	Transparent bool

	// Brightness is the mean luma over opaque pixels, in [0, 255].
	Brightness float64

	// AverageColor is the mean RGB over opaque pixels; black when the
	// cell has none.
	AverageColor RGB

	// DarkColor is the mean RGB over opaque pixels with luma below 128,
	// used for background palette clustering; black when the cell has
	// none.
	DarkColor RGB

	// Samples is the cell's grayscale vector of length
	// cellWidth*cellHeight: luma for opaque pixels, 0 for transparent
	// ones. This is the input to structure-mode matching.
	Samples []float32
}

// Grid is the cell decomposition of one source image at a fixed text
// width. Cells are stored row-major.
type Grid struct {
	Cols, Rows            int
	CellWidth, CellHeight int
	Cells                 []Cell
}

// At returns the cell at the given row and column.
func (g *Grid) At(row, col int) *Cell {
	return &g.Cells[row*g.Cols+col]
}

// Partition divides a pixel buffer into a grid of textWidth columns of
// fixed-size cells and computes per-cell statistics.
//
// Cell width is ceil(bufferWidth/textWidth) and cell height is cell
// width times the aspect ratio; an aspect of zero selects DefaultAspect
// and a negative aspect is a configuration error. The source is
// resampled onto a canvas that is an exact multiple of the cell size,
// so every cell covers exactly cellWidth*cellHeight pixels and no
// partial cells exist.
func Partition(buf *PixelBuffer, textWidth, aspect int) (*Grid, error) {
	if buf.empty() {
		return nil, fmt.Errorf("partition: empty pixel buffer: %w", ErrConfig)
	}
	if textWidth <= 0 {
		return nil, fmt.Errorf("partition: text width %d: %w",
			textWidth, ErrConfig)
	}
	if aspect < 0 {
		return nil, fmt.Errorf("partition: aspect %d: %w", aspect, ErrConfig)
	}
	if aspect == 0 {
		aspect = DefaultAspect
	}

	cellW := (buf.Width + textWidth - 1) / textWidth
	cellH := cellW * aspect
	cols := textWidth
	rows := (buf.Height + cellH - 1) / cellH

	canvas := resampleToCanvas(buf, cols*cellW, rows*cellH)

	grid := &Grid{
		Cols:       cols,
		Rows:       rows,
		CellWidth:  cellW,
		CellHeight: cellH,
		Cells:      make([]Cell, cols*rows),
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			cell := grid.At(row, col)
			cell.Row, cell.Col = row, col
			collectCellStats(cell, canvas, col*cellW, row*cellH, cellW, cellH)
		}
	}

	return grid, nil
}

// resampleToCanvas stretches the buffer onto a canvas of exactly the
// requested size, preserving the alpha channel.
func resampleToCanvas(buf *PixelBuffer, width, height int) *imageutil.RGBAImage {
	src := &imageutil.RGBAImage{NRGBA: buf.toNRGBA()}
	if buf.Width == width && buf.Height == height {
		return src
	}
	return imageutil.Resize(src, width, height, imageutil.InterpolationArea)
}

// collectCellStats accumulates the alpha, color, brightness, and
// grayscale aggregates for one cell of the canvas.
func collectCellStats(cell *Cell, canvas *imageutil.RGBAImage, x0, y0, cellW, cellH int) {
	n := cellW * cellH
	cell.Samples = make([]float32, n)

	var alphaSum int
	var opaque, dark int
	var rSum, gSum, bSum int
	var lumaSum float64
	var drSum, dgSum, dbSum int

	for dy := 0; dy < cellH; dy++ {
		rowOff := canvas.PixOffset(x0, y0+dy)
		for dx := 0; dx < cellW; dx++ {
			off := rowOff + dx*4
			r := canvas.Pix[off]
			g := canvas.Pix[off+1]
			b := canvas.Pix[off+2]
			a := canvas.Pix[off+3]

			alphaSum += int(a)
			if a < opaqueAlpha {
				continue
			}

			luma := RGB{r, g, b}.Luma()
			cell.Samples[dy*cellW+dx] = float32(luma)

			opaque++
			rSum += int(r)
			gSum += int(g)
			bSum += int(b)
			lumaSum += luma

			if luma < 128 {
				dark++
				drSum += int(r)
				dgSum += int(g)
				dbSum += int(b)
			}
		}
	}

	cell.Transparent = alphaSum < opaqueAlpha*n
	if opaque > 0 {
		cell.Brightness = lumaSum / float64(opaque)
		cell.AverageColor = RGB{
			R: uint8(rSum / opaque),
			G: uint8(gSum / opaque),
			B: uint8(bSum / opaque),
		}
	}
	if dark > 0 {
		cell.DarkColor = RGB{
			R: uint8(drSum / dark),
			G: uint8(dgSum / dark),
			B: uint8(dbSum / dark),
		}
	}
}
