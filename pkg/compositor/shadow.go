package compositor

import (
	"image"
)

// boxBlur returns a copy of m blurred with a separable box filter of the
// given radius. Two passes per axis approximate a gaussian well enough for
// a text shadow.
func boxBlur(m *image.Alpha, radius int) *image.Alpha {
	if radius < 1 {
		return m
	}
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return m
	}

	src := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src[y*w+x] = int(m.Pix[y*m.Stride+x])
		}
	}

	tmp := make([]int, w*h)
	for pass := 0; pass < 2; pass++ {
		blurLine(src, tmp, w, h, radius, true)
		blurLine(tmp, src, w, h, radius, false)
	}

	out := image.NewAlpha(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[y*out.Stride+x] = uint8(src[y*w+x])
		}
	}
	return out
}

// blurLine runs a sliding-window mean along rows (horizontal) or columns.
func blurLine(in, out []int, w, h, r int, horizontal bool) {
	lines, length := h, w
	if !horizontal {
		lines, length = w, h
	}
	at := func(line, i int) int {
		if horizontal {
			return line*w + i
		}
		return i*w + line
	}
	window := 2*r + 1

	for line := 0; line < lines; line++ {
		sum := 0
		for i := -r; i <= r; i++ {
			sum += in[at(line, clamp(i, 0, length-1))]
		}
		for i := 0; i < length; i++ {
			out[at(line, i)] = sum / window
			sum -= in[at(line, clamp(i-r, 0, length-1))]
			sum += in[at(line, clamp(i+r+1, 0, length-1))]
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
