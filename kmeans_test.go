package img2chars

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantizeColorsVerbatimWhenFew(t *testing.T) {
	obs := []RGB{{1, 2, 3}, {4, 5, 6}, {1, 2, 3}}

	got := QuantizeColors(obs, 8, rand.New(rand.NewSource(1)))

	// At or below k the observations come back verbatim, duplicates
	// and order included; deduplication is the palette's concern.
	assert.Equal(t, obs, got)

	// The result is a copy, not an alias.
	got[0] = RGB{9, 9, 9}
	assert.Equal(t, RGB{1, 2, 3}, obs[0])
}

func TestQuantizeColorsExactWhenFewDistinct(t *testing.T) {
	// Many observations but few distinct colors: a dominant color must
	// not crowd a minority color out of the seeding, and no blend color
	// absent from the input may appear.
	var obs []RGB
	for i := 0; i < 20; i++ {
		obs = append(obs, RGB{255, 255, 255})
	}
	obs = append(obs, RGB{0, 0, 0}, RGB{10, 10, 10})

	got := QuantizeColors(obs, 3, rand.New(rand.NewSource(0)))

	assert.Equal(t,
		[]RGB{{255, 255, 255}, {0, 0, 0}, {10, 10, 10}},
		got, "distinct colors within k come back exactly, first-seen order")

	// Unaffected by the seed: no sampling happens on this path.
	for seed := int64(1); seed < 5; seed++ {
		assert.Equal(t, got, QuantizeColors(obs, 3, rand.New(rand.NewSource(seed))))
	}
}

func TestQuantizeColorsDeterministicForSeed(t *testing.T) {
	obs := makeObservations(200)

	a := QuantizeColors(obs, 8, rand.New(rand.NewSource(42)))
	b := QuantizeColors(obs, 8, rand.New(rand.NewSource(42)))
	c := QuantizeColors(obs, 8, rand.New(rand.NewSource(43)))

	assert.Equal(t, a, b, "same seed and input order must be bit-identical")
	assert.Len(t, a, 8)
	// A different seed is allowed to differ; it must still respect k.
	assert.Len(t, c, 8)
}

func TestQuantizeColorsClusterQuality(t *testing.T) {
	// Two tight, well-separated clusters.
	var obs []RGB
	for i := 0; i < 50; i++ {
		d := uint8(i % 5)
		obs = append(obs, RGB{10 + d, 10 + d, 10 + d})
		obs = append(obs, RGB{240 - d, 240 - d, 240 - d})
	}

	centroids := QuantizeColors(obs, 2, rand.New(rand.NewSource(7)))
	require.Len(t, centroids, 2)

	// The refined centroids must describe the data better than a
	// single degenerate centroid would.
	assert.Less(t,
		clusterSpread(obs, centroids),
		clusterSpread(obs, []RGB{{0, 0, 0}}))

	// Every centroid stays inside the observed range.
	for _, c := range centroids {
		assert.GreaterOrEqual(t, c.R, uint8(10))
		assert.LessOrEqual(t, c.R, uint8(240))
	}
}

func makeObservations(n int) []RGB {
	rng := rand.New(rand.NewSource(99))
	obs := make([]RGB, n)
	for i := range obs {
		obs[i] = RGB{
			R: uint8(rng.Intn(256)),
			G: uint8(rng.Intn(256)),
			B: uint8(rng.Intn(256)),
		}
	}
	return obs
}
