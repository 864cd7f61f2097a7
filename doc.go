// Package img2chars converts raster images into colorized, fixed-pitch
// character grids for display in monospaced UIs.
//
// The pipeline divides a source image into a grid of fixed-size cells,
// quantizes the observed cell colors into foreground and background
// palettes with k-means clustering, selects one character per cell either
// by brightness-density mapping against an ordered ramp or by structural
// similarity (SSIM) against pre-rendered glyph templates, and encodes the
// result as a compact indexed artifact.
//
// Structure-mode matching can optionally be offloaded to a GPU compute
// matcher (see the gpu subpackage); the CPU matcher is always available
// and is the contractual fallback, so the two paths are interchangeable.
package img2chars
