package img2chars

import (
	"fmt"
	"strconv"
	"strings"
)

// ArtifactVersion is bumped on any incompatible change to the persisted
// artifact format; downstream renderers depend on it.
const ArtifactVersion = 1

// transparentCell is the encoded sentinel for a transparent cell: no
// palette references and an empty character slot.
const transparentCell = "-1,-1,"

// AsciiChar is one resolved output cell: a character with its palette
// colors, or a transparent placeholder.
type AsciiChar struct {
	Char        rune
	Fg, Bg      RGB
	HasBg       bool
	Transparent bool
}

// Artifact is the persisted result of one generation: cell dimensions,
// deduplicated color palettes, and row-encoded indexed data. One
// artifact is written per (unit, width) pair as {id}_{width}.json.
type Artifact struct {
	Version   int      `json:"version"`
	UnitID    string   `json:"unit_id"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	FgPalette []string `json:"fg_palette"`
	BgPalette []string `json:"bg_palette"`
	Data      []string `json:"data"`
}

// encodeArtifact converts a row-major AsciiChar grid and its palettes
// into an artifact. Each row becomes one pipe-delimited string of
// "fgIndex,bgIndex,char" triples.
func encodeArtifact(chars []AsciiChar, cols, rows int, fg, bg *Palette) *Artifact {
	data := make([]string, rows)
	var sb strings.Builder
	for row := 0; row < rows; row++ {
		sb.Reset()
		for col := 0; col < cols; col++ {
			if col > 0 {
				sb.WriteByte('|')
			}
			writeCell(&sb, &chars[row*cols+col], fg, bg)
		}
		data[row] = sb.String()
	}

	return &Artifact{
		Version:   ArtifactVersion,
		Width:     cols,
		Height:    rows,
		FgPalette: fg.Hex(),
		BgPalette: bg.Hex(),
		Data:      data,
	}
}

// writeCell appends one encoded triple. The character slot is escaped so
// a literal pipe or backslash survives the row framing.
func writeCell(sb *strings.Builder, ch *AsciiChar, fg, bg *Palette) {
	if ch.Transparent {
		sb.WriteString(transparentCell)
		return
	}
	fgIdx, _ := fg.Index(ch.Fg)
	bgIdx := -1
	if ch.HasBg {
		bgIdx, _ = bg.Index(ch.Bg)
	}
	sb.WriteString(strconv.Itoa(fgIdx))
	sb.WriteByte(',')
	sb.WriteString(strconv.Itoa(bgIdx))
	sb.WriteByte(',')
	sb.WriteString(escapeChar(ch.Char))
}

// escapeChar escapes the delimiter and the escape character itself.
func escapeChar(r rune) string {
	switch r {
	case '|':
		return `\|`
	case '\\':
		return `\\`
	default:
		return string(r)
	}
}

// splitRow splits an encoded row on unescaped pipes.
func splitRow(row string) []string {
	var cells []string
	var cur strings.Builder
	escaped := false
	for _, r := range row {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == '|':
			cells = append(cells, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	cells = append(cells, cur.String())
	return cells
}

// unescapeChar reverses escapeChar.
func unescapeChar(s string) (rune, error) {
	switch s {
	case `\|`:
		return '|', nil
	case `\\`:
		return '\\', nil
	}
	runes := []rune(s)
	// A lone backslash is an unpaired escape; the encoder always pairs
	// it, so accepting one would mask a corrupt artifact.
	if len(runes) != 1 || runes[0] == '\\' {
		return 0, fmt.Errorf("artifact cell has malformed character slot %q", s)
	}
	return runes[0], nil
}

// Decode reconstructs the AsciiChar grid from the artifact's palettes
// and row data. For every non-transparent cell the decoded character and
// colors are exactly those selected upstream.
func (a *Artifact) Decode() ([][]AsciiChar, error) {
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("artifact version %d, decoder supports %d",
			a.Version, ArtifactVersion)
	}
	fg, err := paletteFromHex(a.FgPalette)
	if err != nil {
		return nil, err
	}
	bg, err := paletteFromHex(a.BgPalette)
	if err != nil {
		return nil, err
	}
	if len(a.Data) != a.Height {
		return nil, fmt.Errorf("artifact has %d rows, header says %d",
			len(a.Data), a.Height)
	}

	grid := make([][]AsciiChar, a.Height)
	for row, encoded := range a.Data {
		cells := splitRow(encoded)
		if len(cells) != a.Width {
			return nil, fmt.Errorf("artifact row %d has %d cells, header says %d",
				row, len(cells), a.Width)
		}
		grid[row] = make([]AsciiChar, a.Width)
		for col, cell := range cells {
			decoded, err := decodeCell(cell, fg, bg)
			if err != nil {
				return nil, fmt.Errorf("artifact row %d col %d: %w", row, col, err)
			}
			grid[row][col] = decoded
		}
	}
	return grid, nil
}

// decodeCell parses one "fgIndex,bgIndex,char" triple. The character
// slot is everything after the second comma, so a literal comma needs no
// escaping.
func decodeCell(cell string, fg, bg *Palette) (AsciiChar, error) {
	first := strings.IndexByte(cell, ',')
	if first < 0 {
		return AsciiChar{}, fmt.Errorf("malformed cell %q", cell)
	}
	second := strings.IndexByte(cell[first+1:], ',')
	if second < 0 {
		return AsciiChar{}, fmt.Errorf("malformed cell %q", cell)
	}
	second += first + 1

	fgIdx, err := strconv.Atoi(cell[:first])
	if err != nil {
		return AsciiChar{}, fmt.Errorf("malformed cell %q: %w", cell, err)
	}
	bgIdx, err := strconv.Atoi(cell[first+1 : second])
	if err != nil {
		return AsciiChar{}, fmt.Errorf("malformed cell %q: %w", cell, err)
	}
	charSlot := cell[second+1:]

	if fgIdx == -1 && bgIdx == -1 && charSlot == "" {
		return AsciiChar{Transparent: true}, nil
	}

	if fgIdx < 0 || fgIdx >= fg.Len() {
		return AsciiChar{}, fmt.Errorf("fg index %d out of range", fgIdx)
	}
	ch, err := unescapeChar(charSlot)
	if err != nil {
		return AsciiChar{}, err
	}
	out := AsciiChar{Char: ch, Fg: fg.Colors()[fgIdx]}
	if bgIdx >= 0 {
		if bgIdx >= bg.Len() {
			return AsciiChar{}, fmt.Errorf("bg index %d out of range", bgIdx)
		}
		out.Bg = bg.Colors()[bgIdx]
		out.HasBg = true
	}
	return out, nil
}
