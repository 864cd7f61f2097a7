package img2chars

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeTemplate builds a template with precomputed stats, the way the
// cache does at build time.
func makeTemplate(char rune, pixels []float32) GlyphTemplate {
	t := GlyphTemplate{Char: char, Pixels: pixels}
	t.Mean, t.Variance = populationStats(pixels)
	return t
}

// makeSet assembles a template set over a 2x2 cell.
func makeSet(templates ...GlyphTemplate) *TemplateSet {
	return &TemplateSet{
		Key:       TemplateKey{CellWidth: 2, CellHeight: 2, Charset: "test"},
		Templates: templates,
	}
}

func TestCPUMatcherSelfMatch(t *testing.T) {
	dark := makeTemplate('d', []float32{0, 0, 0, 0})
	light := makeTemplate('l', []float32{255, 255, 255, 255})
	diag := makeTemplate('g', []float32{255, 0, 0, 255})
	set := makeSet(dark, light, diag)

	// A cell identical to a template scores SSIM 1 against it and must
	// select it.
	cells := [][]float32{
		{0, 0, 0, 0},
		{255, 255, 255, 255},
		{255, 0, 0, 255},
	}
	got, err := CPUMatcher{}.MatchBatch(cells, set)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestCPUMatcherTieBreaksToFirstTemplate(t *testing.T) {
	a := makeTemplate('a', []float32{10, 20, 30, 40})
	b := makeTemplate('b', []float32{10, 20, 30, 40})
	set := makeSet(a, b)

	got, err := CPUMatcher{}.MatchBatch([][]float32{{10, 20, 30, 40}}, set)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, got, "identical scores keep the first candidate")
}

func TestCPUMatcherSwappedTemplatesSwapWinner(t *testing.T) {
	solid := []float32{200, 200, 200, 200}
	empty := []float32{0, 0, 0, 0}
	cell := []float32{200, 200, 200, 200}

	before := makeSet(makeTemplate('#', solid), makeTemplate(' ', empty))
	got, err := CPUMatcher{}.MatchBatch([][]float32{cell}, before)
	require.NoError(t, err)
	require.Equal(t, []int{0}, got)

	// Swapping the two rasters must deterministically swap the winner;
	// matching carries no residual state from the prior template set.
	after := makeSet(makeTemplate('#', empty), makeTemplate(' ', solid))
	got, err = CPUMatcher{}.MatchBatch([][]float32{cell}, after)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got)
}

func TestCPUMatcherRejectsDimensionMismatch(t *testing.T) {
	set := makeSet(makeTemplate('x', []float32{0, 0, 0, 0}))

	_, err := CPUMatcher{}.MatchBatch([][]float32{{1, 2, 3}}, set)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestSSIMScoreBounds(t *testing.T) {
	tmpl := makeTemplate('t', []float32{0, 100, 200, 50})
	mean, variance := populationStats(tmpl.Pixels)

	// Perfect self-similarity.
	assert.InDelta(t, 1.0, ssimScore(tmpl.Pixels, mean, variance, &tmpl), 1e-9)

	// A dissimilar cell scores strictly less.
	other := []float32{255, 0, 0, 255}
	oMean, oVar := populationStats(other)
	assert.Less(t, ssimScore(other, oMean, oVar, &tmpl), 1.0)
}

func TestRampIndexMapping(t *testing.T) {
	tests := []struct {
		brightness float64
		rampLen    int
		want       int
	}{
		{0, 10, 0},
		{76.245, 10, 2},  // 0.299*255 red luma lands on ':'
		{255, 10, 9},
		{127.5, 10, 4},
		{255, 2, 1},
		{254, 2, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rampIndex(tt.brightness, tt.rampLen),
			"brightness %v over %d", tt.brightness, tt.rampLen)
	}
}

func TestRampLookup(t *testing.T) {
	ramp, err := rampByName("")
	require.NoError(t, err)
	assert.Equal(t, ' ', ramp[0])
	assert.Equal(t, '@', ramp[len(ramp)-1])

	_, err = rampByName("no-such-ramp")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))

	assert.Contains(t, RampNames(), "standard")
	assert.Contains(t, RampNames(), "extended")
}
