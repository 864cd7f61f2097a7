package img2chars

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/wbrown/img2chars/imageutil"
)

// Mode selects the character-selection strategy.
type Mode int

const (
	// ModeBrightness maps each cell's mean brightness onto an ordered
	// dark-to-light character ramp.
	ModeBrightness Mode = iota

	// ModeStructure matches each cell's grayscale raster against glyph
	// templates by structural similarity.
	ModeStructure
)

// Options configures one generation call. Invalid options are rejected
// with an error wrapping ErrConfig rather than silently clamped; callers
// that want clamping must do it before calling.
type Options struct {
	// TextWidth is the output width in character cells. Required, > 0.
	TextWidth int

	// Mode selects brightness or structure character selection.
	Mode Mode

	// Ramp names a built-in brightness ramp. Empty means "standard".
	// Only consulted in brightness mode.
	Ramp string

	// Charset is the structure-mode candidate set. Empty means
	// DefaultCharset. Only consulted in structure mode.
	Charset string

	// FgColorCount is the foreground palette cluster count, 2..32.
	FgColorCount int

	// BgColorCount is the background palette cluster count, 1..16.
	BgColorCount int

	// UseBackgroundColors enables per-cell background colors clustered
	// from the cells' dark-pixel means.
	UseBackgroundColors bool

	// Sharpen applies a mild sharpening convolution to the resampled
	// canvas before partitioning. Helps structure matching on soft
	// sources.
	Sharpen bool

	// Seed fixes the palette clustering RNG for reproducible output.
	// Nil seeds from the clock; batch regeneration must set it.
	Seed *int64

	// Matcher overrides the structure matcher, typically with the GPU
	// matcher from the gpu subpackage. A failing matcher falls back to
	// the builtin CPU matcher for that call; nil means CPU.
	Matcher StructureMatcher

	// Templates overrides the glyph template cache. Nil uses a shared
	// process-wide cache rendering the embedded Go Mono face.
	Templates *TemplateCache
}

func (o *Options) validate() error {
	if o.TextWidth <= 0 {
		return fmt.Errorf("text width %d, must be positive: %w",
			o.TextWidth, ErrConfig)
	}
	if o.FgColorCount < 2 || o.FgColorCount > 32 {
		return fmt.Errorf("fg color count %d, must be in 2..32: %w",
			o.FgColorCount, ErrConfig)
	}
	if o.BgColorCount < 1 || o.BgColorCount > 16 {
		return fmt.Errorf("bg color count %d, must be in 1..16: %w",
			o.BgColorCount, ErrConfig)
	}
	if o.Mode == ModeBrightness {
		if _, err := rampByName(o.Ramp); err != nil {
			return err
		}
	}
	return nil
}

var (
	defaultTemplates     *TemplateCache
	defaultTemplatesErr  error
	defaultTemplatesOnce sync.Once
)

// sharedTemplates returns the process-wide template cache, built on
// first use.
func sharedTemplates() (*TemplateCache, error) {
	defaultTemplatesOnce.Do(func() {
		defaultTemplates, defaultTemplatesErr = NewTemplateCache()
	})
	return defaultTemplates, defaultTemplatesErr
}

// Generate converts a pixel buffer into an indexed character-art
// artifact. The call is synchronous; when a GPU matcher is supplied its
// submission and read-back complete before encoding runs.
func Generate(buf *PixelBuffer, opts Options) (*Artifact, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if buf.empty() {
		return nil, fmt.Errorf("empty pixel buffer: %w", ErrConfig)
	}

	grid, err := Partition(buf, opts.TextWidth, DefaultAspect)
	if err != nil {
		return nil, err
	}
	if opts.Sharpen {
		sharpenGrid(buf, grid, opts.TextWidth)
	}

	chars, err := selectCharacters(grid, opts)
	if err != nil {
		return nil, err
	}

	fgCentroids, bgCentroids := quantizeGrid(grid, opts)

	fg, bg := NewPalette(), NewPalette()
	out := make([]AsciiChar, len(grid.Cells))
	for i := range grid.Cells {
		cell := &grid.Cells[i]
		if cell.Transparent {
			out[i] = AsciiChar{Transparent: true}
			continue
		}
		ac := AsciiChar{
			Char: chars[i],
			Fg:   fgCentroids[nearestColor(cell.AverageColor, fgCentroids)],
		}
		fg.Add(ac.Fg)
		if opts.UseBackgroundColors {
			ac.Bg = bgCentroids[nearestColor(cell.DarkColor, bgCentroids)]
			ac.HasBg = true
			bg.Add(ac.Bg)
		}
		out[i] = ac
	}

	return encodeArtifact(out, grid.Cols, grid.Rows, fg, bg), nil
}

// sharpenGrid re-partitions the buffer from a sharpened canvas. The
// sharpening kernel only touches color channels; alpha passes through.
func sharpenGrid(buf *PixelBuffer, grid *Grid, textWidth int) {
	canvas := resampleToCanvas(buf, grid.Cols*grid.CellWidth, grid.Rows*grid.CellHeight)
	sharpened := imageutil.Sharpen(canvas)
	for row := 0; row < grid.Rows; row++ {
		for col := 0; col < grid.Cols; col++ {
			cell := grid.At(row, col)
			collectCellStats(cell, sharpened,
				col*grid.CellWidth, row*grid.CellHeight,
				grid.CellWidth, grid.CellHeight)
		}
	}
}

// quantizeGrid clusters the non-transparent cells' average and dark
// colors into the foreground and background palettes.
func quantizeGrid(grid *Grid, opts Options) (fg, bg []RGB) {
	var avgObs, darkObs []RGB
	for i := range grid.Cells {
		cell := &grid.Cells[i]
		if cell.Transparent {
			continue
		}
		avgObs = append(avgObs, cell.AverageColor)
		if opts.UseBackgroundColors {
			darkObs = append(darkObs, cell.DarkColor)
		}
	}

	rng := newRNG(opts.Seed)
	fg = QuantizeColors(avgObs, opts.FgColorCount, rng)
	if opts.UseBackgroundColors {
		bg = QuantizeColors(darkObs, opts.BgColorCount, rng)
	}
	return fg, bg
}

// newRNG builds the clustering RNG: seeded for reproducible batch runs,
// clock-seeded for interactive variety.
func newRNG(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewSource(*seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// selectCharacters runs the configured character-selection strategy and
// returns one rune per cell (zero for transparent cells).
func selectCharacters(grid *Grid, opts Options) ([]rune, error) {
	if opts.Mode == ModeBrightness {
		ramp, err := rampByName(opts.Ramp)
		if err != nil {
			return nil, err
		}
		return selectByBrightness(grid, ramp), nil
	}

	cache := opts.Templates
	if cache == nil {
		var err error
		if cache, err = sharedTemplates(); err != nil {
			return nil, err
		}
	}
	charset := opts.Charset
	if charset == "" {
		charset = DefaultCharset
	}
	set, err := cache.Get(grid.CellWidth, grid.CellHeight, charset)
	if err != nil {
		return nil, err
	}

	// Flatten the non-transparent cells for batch matching.
	var samples [][]float32
	var cellIdx []int
	for i := range grid.Cells {
		if grid.Cells[i].Transparent {
			continue
		}
		samples = append(samples, grid.Cells[i].Samples)
		cellIdx = append(cellIdx, i)
	}

	matches, err := matchWithFallback(samples, set, opts.Matcher)
	if err != nil {
		return nil, err
	}

	runes := []rune(charset)
	chars := make([]rune, len(grid.Cells))
	for j, m := range matches {
		if m < 0 || m >= len(runes) {
			return nil, fmt.Errorf("matcher returned template index %d of %d",
				m, len(runes))
		}
		chars[cellIdx[j]] = runes[m]
	}
	return chars, nil
}

// matchWithFallback runs the supplied matcher and recovers to the CPU
// matcher when it fails. Matcher failures are an acceleration concern,
// never a user-facing error.
func matchWithFallback(samples [][]float32, set *TemplateSet, m StructureMatcher) ([]int, error) {
	if m != nil {
		matches, err := m.MatchBatch(samples, set)
		if err == nil {
			return matches, nil
		}
		slog.Warn("structure matcher failed, falling back to CPU",
			"error", err, "cells", len(samples))
	}
	return CPUMatcher{}.MatchBatch(samples, set)
}
