package img2chars

// Palette is an ordered set of unique colors with a reverse index. Colors
// keep the order in which they were first added, so encoded indices are
// stable for a fixed input.
type Palette struct {
	colors []RGB
	index  map[RGB]int
}

// NewPalette returns an empty palette.
func NewPalette() *Palette {
	return &Palette{index: make(map[RGB]int)}
}

// Add inserts a color if it is not already present and returns its index.
func (p *Palette) Add(c RGB) int {
	if i, ok := p.index[c]; ok {
		return i
	}
	i := len(p.colors)
	p.colors = append(p.colors, c)
	p.index[c] = i
	return i
}

// Index returns the index of a color and whether it is present.
func (p *Palette) Index(c RGB) (int, bool) {
	i, ok := p.index[c]
	return i, ok
}

// Len returns the number of unique colors in the palette.
func (p *Palette) Len() int {
	return len(p.colors)
}

// Colors returns the palette colors in insertion order. The returned
// slice is shared; callers must not modify it.
func (p *Palette) Colors() []RGB {
	return p.colors
}

// Hex returns the palette as ordered "#RRGGBB" strings, the form stored
// in artifacts. The slice is never nil so an empty palette encodes as an
// empty JSON array rather than null.
func (p *Palette) Hex() []string {
	out := make([]string, len(p.colors))
	for i, c := range p.colors {
		out[i] = c.Hex()
	}
	return out
}

// paletteFromHex rebuilds a palette from artifact hex strings.
func paletteFromHex(hex []string) (*Palette, error) {
	p := NewPalette()
	for _, h := range hex {
		c, err := ParseHex(h)
		if err != nil {
			return nil, err
		}
		p.Add(c)
	}
	return p, nil
}
