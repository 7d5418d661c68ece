// Package layout sizes media inside fixed preview canvases.
package layout

import (
	"errors"
	"fmt"
)

// ErrInvalidDimensions is returned for zero, negative or oversized sides
var ErrInvalidDimensions = errors.New("invalid dimensions")

// MaxSide bounds every side Fit accepts. Products of two sides, doubled for
// rounding, stay well inside int64.
const MaxSide = 1 << 24

// AspectRatio is a media asset's native pixel size
type AspectRatio struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both sides are positive and at most MaxSide
func (a AspectRatio) Valid() bool {
	return validSide(a.Width) && validSide(a.Height)
}

func validSide(n int) bool {
	return n > 0 && n <= MaxSide
}

// Canvas is the fixed target area
type Canvas struct {
	Width  int
	Height int
}

// PreviewCanvas is the social preview image size
var PreviewCanvas = Canvas{Width: 1200, Height: 630}

// FitLayout is the size media is drawn at inside a canvas
type FitLayout struct {
	Width  int
	Height int
}

// Fit scales src to fill either the full width or the full height of
// canvas, whichever keeps it inside, preserving the ratio. Ratios are
// compared by cross-multiplication so the longer side never flips.
func Fit(src AspectRatio, canvas Canvas) (FitLayout, error) {
	if !src.Valid() {
		return FitLayout{}, fmt.Errorf("%w: source %dx%d", ErrInvalidDimensions, src.Width, src.Height)
	}
	if !validSide(canvas.Width) || !validSide(canvas.Height) {
		return FitLayout{}, fmt.Errorf("%w: canvas %dx%d", ErrInvalidDimensions, canvas.Width, canvas.Height)
	}

	srcCross := int64(src.Width) * int64(canvas.Height)
	canvasCross := int64(canvas.Width) * int64(src.Height)

	switch {
	case srcCross > canvasCross:
		// wider than the canvas
		return FitLayout{
			Width:  canvas.Width,
			Height: divRound(int64(canvas.Width)*int64(src.Height), int64(src.Width)),
		}, nil
	case srcCross < canvasCross:
		return FitLayout{
			Width:  divRound(int64(canvas.Height)*int64(src.Width), int64(src.Height)),
			Height: canvas.Height,
		}, nil
	default:
		return FitLayout{Width: canvas.Width, Height: canvas.Height}, nil
	}
}

// divRound divides positive integers rounding half up. Extreme ratios
// still get a visible one-pixel side.
func divRound(num, den int64) int {
	return max(1, int((2*num+den)/(2*den)))
}
