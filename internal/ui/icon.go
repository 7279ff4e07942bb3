package ui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

var iconBytes = renderIcon(32)

// renderIcon draws a white play triangle on a dark rounded square.
func renderIcon(size int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	bg := color.NRGBA{R: 0x22, G: 0x22, B: 0x2a, A: 0xff}
	fg := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	r := size / 6
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if inRoundedRect(x, y, size, r) {
				img.SetNRGBA(x, y, bg)
			}
		}
	}

	left, right := size*3/8, size*3/4
	top, bottom := size/4, size*3/4
	mid := size / 2
	for x := left; x <= right; x++ {
		half := (bottom - top) / 2 * (right - x) / (right - left)
		for y := mid - half; y <= mid+half; y++ {
			img.SetNRGBA(x, y, fg)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func inRoundedRect(x, y, size, r int) bool {
	cx, cy := x, y
	switch {
	case x < r:
		cx = r
	case x >= size-r:
		cx = size - r - 1
	}
	switch {
	case y < r:
		cy = r
	case y >= size-r:
		cy = size - r - 1
	}
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= r*r
}
