package img2chars

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	fg, bg := NewPalette(), NewPalette()
	red := RGB{255, 0, 0}
	blue := RGB{0, 0, 255}
	black := RGB{0, 0, 0}
	fg.Add(red)
	fg.Add(blue)
	bg.Add(black)

	chars := []AsciiChar{
		{Char: '@', Fg: red, Bg: black, HasBg: true},
		{Transparent: true},
		{Char: '|', Fg: blue}, // delimiter as payload
		{Char: '\\', Fg: red, Bg: black, HasBg: true},
		{Char: ',', Fg: blue},
		{Char: ' ', Fg: red},
	}

	artifact := encodeArtifact(chars, 3, 2, fg, bg)
	require.Equal(t, ArtifactVersion, artifact.Version)
	require.Equal(t, 3, artifact.Width)
	require.Equal(t, 2, artifact.Height)
	assert.Equal(t, []string{"#FF0000", "#0000FF"}, artifact.FgPalette)
	assert.Equal(t, []string{"#000000"}, artifact.BgPalette)
	require.Len(t, artifact.Data, 2)
	assert.Equal(t, `0,0,@|-1,-1,|1,-1,\|`, artifact.Data[0])
	assert.Equal(t, `0,0,\\|1,-1,,|0,-1, `, artifact.Data[1])

	decoded, err := artifact.Decode()
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, chars[:3], decoded[0])
	assert.Equal(t, chars[3:], decoded[1])
}

func TestTransparentSentinelEncoding(t *testing.T) {
	fg, bg := NewPalette(), NewPalette()
	artifact := encodeArtifact([]AsciiChar{{Transparent: true}}, 1, 1, fg, bg)

	assert.Equal(t, []string{"-1,-1,"}, artifact.Data)
	assert.Empty(t, artifact.FgPalette)
	assert.Empty(t, artifact.BgPalette)

	decoded, err := artifact.Decode()
	require.NoError(t, err)
	assert.True(t, decoded[0][0].Transparent)
}

func TestDecodeRejectsMalformedArtifacts(t *testing.T) {
	base := func() *Artifact {
		return &Artifact{
			Version:   ArtifactVersion,
			Width:     1,
			Height:    1,
			FgPalette: []string{"#FF0000"},
			BgPalette: []string{},
			Data:      []string{"0,-1,x"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Artifact)
	}{
		{"wrong version", func(a *Artifact) { a.Version = 2 }},
		{"row count mismatch", func(a *Artifact) { a.Data = nil }},
		{"cell count mismatch", func(a *Artifact) { a.Data = []string{"0,-1,x|0,-1,y"} }},
		{"fg index out of range", func(a *Artifact) { a.Data = []string{"3,-1,x"} }},
		{"bg index out of range", func(a *Artifact) { a.Data = []string{"0,5,x"} }},
		{"missing commas", func(a *Artifact) { a.Data = []string{"nonsense"} }},
		{"unpaired escape", func(a *Artifact) { a.Data = []string{`0,-1,\`} }},
		{"bad palette hex", func(a *Artifact) { a.FgPalette = []string{"red"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			artifact := base()
			tt.mutate(artifact)
			_, err := artifact.Decode()
			assert.Error(t, err)
		})
	}

	// The unmutated base decodes cleanly.
	_, err := base().Decode()
	assert.NoError(t, err)
}

func TestArtifactJSONContract(t *testing.T) {
	artifact := &Artifact{
		Version:   ArtifactVersion,
		UnitID:    "mandrill",
		Width:     1,
		Height:    1,
		FgPalette: []string{"#FF0000"},
		BgPalette: []string{},
		Data:      []string{"0,-1,@"},
	}

	data, err := json.Marshal(artifact)
	require.NoError(t, err)

	// Batch tooling and downstream renderers key on these exact field
	// names.
	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{
		"version", "unit_id", "width", "height",
		"fg_palette", "bg_palette", "data",
	} {
		assert.Contains(t, fields, key)
	}
	assert.EqualValues(t, 1, fields["version"])
}

func TestPaletteDeduplicatesInOrder(t *testing.T) {
	p := NewPalette()
	assert.Equal(t, 0, p.Add(RGB{1, 1, 1}))
	assert.Equal(t, 1, p.Add(RGB{2, 2, 2}))
	assert.Equal(t, 0, p.Add(RGB{1, 1, 1}))
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []string{"#010101", "#020202"}, p.Hex())

	idx, ok := p.Index(RGB{2, 2, 2})
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	_, ok = p.Index(RGB{3, 3, 3})
	assert.False(t, ok)
}

func TestParseHexRoundTrip(t *testing.T) {
	for _, c := range []RGB{{0, 0, 0}, {255, 0, 0}, {18, 52, 86}, {255, 255, 255}} {
		got, err := ParseHex(c.Hex())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}
