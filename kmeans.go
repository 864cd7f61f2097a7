package img2chars

import (
	"math/rand"
)

// kmeansRounds is the fixed number of refinement rounds. There is no
// convergence check: the round count bounds worst-case latency and keeps
// the CPU and any reimplementation in lockstep.
const kmeansRounds = 10

// QuantizeColors clusters the observations into at most k representative
// colors with k-means over Euclidean RGB distance.
//
// When the observation count is k or fewer the observations are returned
// verbatim. When the count exceeds k but the distinct colors do not, the
// distinct colors are returned in first-seen order; quantizing must
// never blend away a color the palette has room for. Otherwise k
// centroids are seeded by sampling observations without replacement
// from rng and refined for a fixed number of rounds; a centroid that
// attracts no observations keeps its previous position.
//
// The result is fully determined by the observation order and the rng
// state, so batch regeneration with a fixed seed reproduces identical
// palettes.
func QuantizeColors(observations []RGB, k int, rng *rand.Rand) []RGB {
	if len(observations) <= k {
		out := make([]RGB, len(observations))
		copy(out, observations)
		return out
	}
	if distinct := distinctColors(observations, k+1); len(distinct) <= k {
		return distinct
	}

	// Seed centroids by sampling observations without replacement.
	centroids := make([]RGB, k)
	used := make(map[int]bool, k)
	for i := 0; i < k; i++ {
		var idx int
		for {
			idx = rng.Intn(len(observations))
			if !used[idx] {
				used[idx] = true
				break
			}
		}
		centroids[i] = observations[idx]
	}

	assignments := make([]int, len(observations))
	for round := 0; round < kmeansRounds; round++ {
		// Assign each observation to its nearest centroid.
		for i, obs := range observations {
			assignments[i] = nearestColor(obs, centroids)
		}

		// Recompute each centroid as the mean of its observations.
		var rSum, gSum, bSum = make([]int, k), make([]int, k), make([]int, k)
		counts := make([]int, k)
		for i, obs := range observations {
			c := assignments[i]
			rSum[c] += int(obs.R)
			gSum[c] += int(obs.G)
			bSum[c] += int(obs.B)
			counts[c]++
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			centroids[c] = RGB{
				R: uint8(rSum[c] / counts[c]),
				G: uint8(gSum[c] / counts[c]),
				B: uint8(bSum[c] / counts[c]),
			}
		}
	}

	return centroids
}

// distinctColors returns the unique observation colors in first-seen
// order, bailing out once limit colors have been collected.
func distinctColors(observations []RGB, limit int) []RGB {
	seen := make(map[RGB]bool, limit)
	var out []RGB
	for _, obs := range observations {
		if seen[obs] {
			continue
		}
		seen[obs] = true
		out = append(out, obs)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// clusterSpread reports the mean distance of observations to their
// nearest centroid, a cheap quality diagnostic for batch summaries.
func clusterSpread(observations, centroids []RGB) float64 {
	if len(observations) == 0 || len(centroids) == 0 {
		return 0
	}
	var total float64
	for _, obs := range observations {
		total += obs.ColorDistance(centroids[nearestColor(obs, centroids)])
	}
	return total / float64(len(observations))
}
