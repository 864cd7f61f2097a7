package img2chars

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// solidBuffer builds a buffer filled with one RGBA value.
func solidBuffer(t *testing.T, w, h int, r, g, b, a uint8) *PixelBuffer {
	t.Helper()
	pix := make([]uint8, w*h*4)
	for i := 0; i < w*h; i++ {
		pix[i*4] = r
		pix[i*4+1] = g
		pix[i*4+2] = b
		pix[i*4+3] = a
	}
	buf, err := NewPixelBuffer(w, h, pix)
	require.NoError(t, err)
	return buf
}

func TestPartitionGeometry(t *testing.T) {
	tests := []struct {
		name                   string
		bufW, bufH, textWidth  int
		wantCellW, wantCellH   int
		wantCols, wantRows     int
	}{
		{"exact multiple", 8, 8, 4, 2, 4, 4, 2},
		{"uneven width rounds cell up", 10, 10, 4, 3, 6, 4, 2},
		{"single cell", 1, 1, 1, 1, 2, 1, 1},
		{"tall source", 4, 100, 2, 2, 4, 2, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := solidBuffer(t, tt.bufW, tt.bufH, 128, 128, 128, 255)
			grid, err := Partition(buf, tt.textWidth, DefaultAspect)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCellW, grid.CellWidth)
			assert.Equal(t, tt.wantCellH, grid.CellHeight)
			assert.Equal(t, tt.wantCols, grid.Cols)
			assert.Equal(t, tt.wantRows, grid.Rows)
			assert.Len(t, grid.Cells, tt.wantCols*tt.wantRows)
			for i := range grid.Cells {
				assert.Len(t, grid.Cells[i].Samples,
					grid.CellWidth*grid.CellHeight)
			}
		})
	}
}

func TestPartitionRejectsInvalidConfig(t *testing.T) {
	buf := solidBuffer(t, 4, 4, 0, 0, 0, 255)

	_, err := Partition(buf, 0, DefaultAspect)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))

	_, err = Partition(&PixelBuffer{}, 4, DefaultAspect)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))

	_, err = Partition(nil, 4, DefaultAspect)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))

	_, err = Partition(buf, 2, -1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestPartitionZeroAspectUsesDefault(t *testing.T) {
	buf := solidBuffer(t, 8, 8, 128, 128, 128, 255)

	grid, err := Partition(buf, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, grid.CellWidth*DefaultAspect, grid.CellHeight)
}

func TestPartitionStatsOpaqueRed(t *testing.T) {
	buf := solidBuffer(t, 1, 1, 255, 0, 0, 255)
	grid, err := Partition(buf, 1, DefaultAspect)
	require.NoError(t, err)
	require.Len(t, grid.Cells, 1)

	cell := grid.At(0, 0)
	assert.False(t, cell.Transparent)
	assert.Equal(t, RGB{255, 0, 0}, cell.AverageColor)
	// 0.299 * 255
	assert.InDelta(t, 76.245, cell.Brightness, 0.01)
	// Red luma is below 128, so the dark mean is red as well.
	assert.Equal(t, RGB{255, 0, 0}, cell.DarkColor)
	for _, s := range cell.Samples {
		assert.InDelta(t, 76.245, float64(s), 0.01)
	}
}

func TestPartitionTransparentCell(t *testing.T) {
	buf := solidBuffer(t, 2, 4, 200, 100, 50, 0)
	grid, err := Partition(buf, 1, DefaultAspect)
	require.NoError(t, err)

	cell := grid.At(0, 0)
	assert.True(t, cell.Transparent)
	// No opaque pixels: colors default to black, samples stay zero.
	assert.Equal(t, RGB{}, cell.AverageColor)
	assert.Equal(t, RGB{}, cell.DarkColor)
	assert.Zero(t, cell.Brightness)
	for _, s := range cell.Samples {
		assert.Zero(t, s)
	}
}

func TestPartitionMixedTransparency(t *testing.T) {
	// Left column opaque white, right column fully transparent. With
	// textWidth=2 the left cell is opaque and the right transparent.
	pix := make([]uint8, 2*1*4)
	pix[0], pix[1], pix[2], pix[3] = 255, 255, 255, 255
	buf, err := NewPixelBuffer(2, 1, pix)
	require.NoError(t, err)

	grid, err := Partition(buf, 2, DefaultAspect)
	require.NoError(t, err)
	require.Equal(t, 2, grid.Cols)
	require.Equal(t, 1, grid.Rows)

	left, right := grid.At(0, 0), grid.At(0, 1)
	assert.False(t, left.Transparent)
	assert.Equal(t, RGB{255, 255, 255}, left.AverageColor)
	assert.InDelta(t, 255, left.Brightness, 0.01)
	// White luma is not below 128: no dark pixels, dark mean stays black.
	assert.Equal(t, RGB{}, left.DarkColor)

	assert.True(t, right.Transparent)
}
