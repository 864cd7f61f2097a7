package img2chars

import (
	"fmt"
	"sort"
)

// Built-in brightness ramps, ordered dark to light. Ramp names are part
// of the options contract: an unknown name is a configuration error.
var ramps = map[string][]rune{
	"standard": []rune(" .:-=+*#%@"),
	"extended": []rune(" .'`^\",:;Il!i><~+_-?][}{1)(|\\/tfjrxn" +
		"uvczXYUJCLQ0OZmwqpdbkhao*#MW&8%B@$"),
}

// RampNames returns the built-in ramp names in sorted order.
func RampNames() []string {
	names := make([]string, 0, len(ramps))
	for name := range ramps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// rampByName resolves a ramp name, defaulting to "standard" when empty.
func rampByName(name string) ([]rune, error) {
	if name == "" {
		name = "standard"
	}
	ramp, ok := ramps[name]
	if !ok {
		return nil, fmt.Errorf("unknown ramp %q: %w", name, ErrConfig)
	}
	return ramp, nil
}

// rampIndex maps a mean brightness in [0, 255] to a ramp position:
// floor(b/255 * (len-1)). Selection is O(1) per cell and fully
// deterministic.
func rampIndex(brightness float64, rampLen int) int {
	idx := int(brightness / 255.0 * float64(rampLen-1))
	if idx < 0 {
		idx = 0
	}
	if idx > rampLen-1 {
		idx = rampLen - 1
	}
	return idx
}

// selectByBrightness picks a ramp character for every non-transparent
// cell of the grid. Transparent cells get no character.
func selectByBrightness(grid *Grid, ramp []rune) []rune {
	chars := make([]rune, len(grid.Cells))
	for i := range grid.Cells {
		cell := &grid.Cells[i]
		if cell.Transparent {
			continue
		}
		chars[i] = ramp[rampIndex(cell.Brightness, len(ramp))]
	}
	return chars
}
