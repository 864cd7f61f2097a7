package img2chars

import (
	"fmt"
	"image"
	"os"
	"sync"
	"sync/atomic"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

// DefaultCharset is the candidate set for structure-mode matching: the
// printable ASCII range, in codepoint order.
var DefaultCharset = func() string {
	runes := make([]rune, 0, 95)
	for r := rune(32); r <= rune(126); r++ {
		runes = append(runes, r)
	}
	return string(runes)
}()

// templateGeneration numbers every built template set so downstream
// consumers (the GPU matcher's resident template buffer) can detect when
// their uploaded copy is stale.
var templateGeneration atomic.Uint64

// GlyphTemplate is one candidate character pre-rendered as a grayscale
// raster at a fixed cell size. Pixel values are coverage in [0, 255].
type GlyphTemplate struct {
	Char   rune
	Pixels []float32

	// Population statistics over the raster, precomputed at build time
	// for the SSIM inner loop.
	Mean     float64
	Variance float64
}

// TemplateKey identifies one template set: templates are only valid for
// the exact cell dimensions and character set they were rendered for.
type TemplateKey struct {
	CellWidth  int
	CellHeight int
	Charset    string
}

// TemplateSet holds the rendered templates for one key. A set is
// immutable once built; matchers may share it across concurrent calls.
type TemplateSet struct {
	Key        TemplateKey
	Templates  []GlyphTemplate
	generation uint64
}

// Generation returns the build generation of this set. It changes
// whenever a set is (re)built, never for an existing set.
func (s *TemplateSet) Generation() uint64 {
	return s.generation
}

// PixelsPerCell returns the sample count of each template raster.
func (s *TemplateSet) PixelsPerCell() int {
	return s.Key.CellWidth * s.Key.CellHeight
}

// FlatPixels returns all template rasters concatenated in template
// order, the layout uploaded to the GPU matcher.
func (s *TemplateSet) FlatPixels() []float32 {
	n := s.PixelsPerCell()
	flat := make([]float32, 0, n*len(s.Templates))
	for _, t := range s.Templates {
		flat = append(flat, t.Pixels...)
	}
	return flat
}

// TemplateCache renders and retains glyph template sets keyed by cell
// size and character set. It is an explicit keyed arena: entries are
// built lazily on first use, a failed build is discarded rather than
// cached, and built entries are immutable so concurrent reads are safe.
type TemplateCache struct {
	font *truetype.Font

	mu      sync.RWMutex
	entries map[TemplateKey]*TemplateSet
}

// NewTemplateCache creates a cache rendering with the embedded Go Mono
// face. The embedded face makes structure matching deterministic across
// machines with no font files on disk.
func NewTemplateCache() (*TemplateCache, error) {
	f, err := freetype.ParseFont(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing embedded font: %w", err)
	}
	return &TemplateCache{
		font:    f,
		entries: make(map[TemplateKey]*TemplateSet),
	}, nil
}

// NewTemplateCacheFromTTF creates a cache rendering with a TrueType font
// loaded from disk.
func NewTemplateCacheFromTTF(path string) (*TemplateCache, error) {
	fontBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading font %s: %w", path, err)
	}
	f, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font %s: %w", path, err)
	}
	return &TemplateCache{
		font:    f,
		entries: make(map[TemplateKey]*TemplateSet),
	}, nil
}

// Get returns the template set for the given cell size and character
// set, building and caching it on first use.
func (tc *TemplateCache) Get(cellWidth, cellHeight int, charset string) (*TemplateSet, error) {
	if cellWidth <= 0 || cellHeight <= 0 {
		return nil, fmt.Errorf("template cell size %dx%d: %w",
			cellWidth, cellHeight, ErrConfig)
	}
	if charset == "" {
		return nil, fmt.Errorf("empty template charset: %w", ErrConfig)
	}
	key := TemplateKey{CellWidth: cellWidth, CellHeight: cellHeight, Charset: charset}

	tc.mu.RLock()
	set, ok := tc.entries[key]
	tc.mu.RUnlock()
	if ok {
		return set, nil
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if set, ok := tc.entries[key]; ok {
		return set, nil
	}
	set, err := tc.build(key)
	if err != nil {
		return nil, err
	}
	tc.entries[key] = set
	return set, nil
}

// build renders every charset rune at the key's cell size.
func (tc *TemplateCache) build(key TemplateKey) (*TemplateSet, error) {
	runes := []rune(key.Charset)
	set := &TemplateSet{
		Key:        key,
		Templates:  make([]GlyphTemplate, 0, len(runes)),
		generation: templateGeneration.Add(1),
	}
	for _, r := range runes {
		pixels, err := renderGlyph(tc.font, r, key.CellWidth, key.CellHeight)
		if err != nil {
			return nil, fmt.Errorf("rendering glyph %q: %w", r, err)
		}
		t := GlyphTemplate{Char: r, Pixels: pixels}
		t.Mean, t.Variance = populationStats(pixels)
		set.Templates = append(set.Templates, t)
	}
	return set, nil
}

// renderGlyph rasterizes a single rune into a cellWidth x cellHeight
// grayscale raster. The font size is tied to the cell height and the
// baseline is derived from the face metrics so descenders are not
// clipped at small cell sizes.
func renderGlyph(ttf *truetype.Font, r rune, cellWidth, cellHeight int) ([]float32, error) {
	face := truetype.NewFace(ttf, &truetype.Options{
		Size:    float64(cellHeight),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	defer face.Close()

	img := image.NewGray(image.Rect(0, 0, cellWidth, cellHeight))

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(ttf)
	ctx.SetFontSize(float64(cellHeight))
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)
	ctx.SetSrc(image.White)
	ctx.SetHinting(font.HintingFull)

	metrics := face.Metrics()
	ascent := int(metrics.Ascent >> 6)
	descent := int(metrics.Descent >> 6)
	baselineY := (cellHeight + ascent - descent) / 2

	if _, err := ctx.DrawString(string(r), freetype.Pt(0, baselineY)); err != nil {
		return nil, err
	}

	pixels := make([]float32, cellWidth*cellHeight)
	for i, v := range img.Pix {
		pixels[i] = float32(v)
	}
	return pixels, nil
}

// populationStats returns the population mean and variance of a raster.
func populationStats(pixels []float32) (mean, variance float64) {
	n := float64(len(pixels))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range pixels {
		sum += float64(v)
	}
	mean = sum / n
	var sq float64
	for _, v := range pixels {
		d := float64(v) - mean
		sq += d * d
	}
	return mean, sq / n
}
