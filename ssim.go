package img2chars

import (
	"fmt"
	"math"
)

// SSIM stabilization constants for 8-bit dynamic range, shared verbatim
// by the CPU and GPU matchers.
const (
	ssimC1 = (0.01 * 255) * (0.01 * 255)
	ssimC2 = (0.03 * 255) * (0.03 * 255)
)

// StructureMatcher selects, for each grayscale sample vector, the index
// of the best-matching template in a set. Implementations must be
// numerically interchangeable: the builtin CPU matcher is the
// contractual baseline, and the GPU matcher in the gpu subpackage must
// agree with it up to floating-point noise.
type StructureMatcher interface {
	// MatchBatch returns one template index per sample vector. Every
	// vector must have exactly set.PixelsPerCell() samples.
	MatchBatch(samples [][]float32, set *TemplateSet) ([]int, error)
}

// CPUMatcher is the serial structure matcher. The zero value is ready to
// use and safe for concurrent calls.
type CPUMatcher struct{}

// MatchBatch computes the SSIM of every cell against every template and
// returns the argmax per cell. Ties resolve to the first template in the
// set's fixed ordering.
func (CPUMatcher) MatchBatch(samples [][]float32, set *TemplateSet) ([]int, error) {
	n := set.PixelsPerCell()
	results := make([]int, len(samples))
	for i, cell := range samples {
		if len(cell) != n {
			return nil, fmt.Errorf("cell %d has %d samples, templates expect %d: %w",
				i, len(cell), n, ErrConfig)
		}
		results[i] = bestTemplate(cell, set)
	}
	return results, nil
}

// bestTemplate returns the index of the template with maximal SSIM
// against the cell samples.
func bestTemplate(cell []float32, set *TemplateSet) int {
	mean, variance := populationStats(cell)

	best := 0
	bestScore := math.Inf(-1)
	for t := range set.Templates {
		score := ssimScore(cell, mean, variance, &set.Templates[t])
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	return best
}

// ssimScore computes the structural similarity between a cell and one
// template using population statistics over n = len(cell) samples:
//
//	SSIM = (2*mc*mt + C1)(2*cov + C2) /
//	       ((mc^2 + mt^2 + C1)(vc + vt + C2))
func ssimScore(cell []float32, cellMean, cellVar float64, tmpl *GlyphTemplate) float64 {
	n := float64(len(cell))
	var cov float64
	for i, v := range cell {
		cov += (float64(v) - cellMean) * (float64(tmpl.Pixels[i]) - tmpl.Mean)
	}
	cov /= n

	num := (2*cellMean*tmpl.Mean + ssimC1) * (2*cov + ssimC2)
	den := (cellMean*cellMean + tmpl.Mean*tmpl.Mean + ssimC1) *
		(cellVar + tmpl.Variance + ssimC2)
	return num / den
}
