package compositor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"

	"lgtmagic/internal/domain"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 120, A: 255})
		}
	}
	return img
}

func TestRender_TargetSize(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		wantHeight int
	}{
		{"landscape 4:3", 400, 300, 450},
		{"downscale 2:1", 800, 400, 300},
		{"square", 1000, 1000, 600},
		{"portrait", 300, 900, 1800},
		{"odd ratio rounds", 700, 333, int(math.Round(600.0 * 333 / 700))},
		{"tiny", 3, 2, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Render(gradientImage(tt.w, tt.h), true, domain.DefaultRenderSettings())
			require.NoError(t, err)
			assert.Equal(t, 600, out.Bounds().Dx())
			assert.Equal(t, tt.wantHeight, out.Bounds().Dy())
		})
	}
}

func TestRender_NoCaptionIsPlainResize(t *testing.T) {
	src := gradientImage(400, 300)

	out, err := Render(src, false, domain.DefaultRenderSettings())
	require.NoError(t, err)

	want := image.NewRGBA(image.Rect(0, 0, 600, 450))
	draw.CatmullRom.Scale(want, want.Bounds(), src, src.Bounds(), draw.Src, nil)

	assert.Equal(t, want.Pix, out.Pix)
}

func TestRender_FlagsAreIndependent(t *testing.T) {
	src := gradientImage(400, 300)

	plain, err := Render(src, false, domain.DefaultRenderSettings())
	require.NoError(t, err)

	settings := domain.DefaultRenderSettings()
	settings.ShowMainText = false
	settings.ShowSubtext = false
	settings.ShowBackground = false
	allOff, err := Render(src, true, settings)
	require.NoError(t, err)
	assert.Equal(t, plain.Pix, allOff.Pix, "no flag set must draw nothing")

	settings.ShowBackground = true
	bandOnly, err := Render(src, true, settings)
	require.NoError(t, err)
	assert.NotEqual(t, plain.Pix, bandOnly.Pix)

	settings.ShowBackground = false
	settings.ShowMainText = true
	textOnly, err := Render(src, true, settings)
	require.NoError(t, err)

	// Band edge rows are far from the glyphs; without the band they stay untouched.
	layout := ComputeLayout(600, 450)
	edge := layout.Band.Min.Y + 1
	assert.Equal(t, plain.RGBAAt(2, edge), textOnly.RGBAAt(2, edge))
	assert.NotEqual(t, plain.RGBAAt(2, edge), bandOnly.RGBAAt(2, edge))
}

func TestRender_BandIsCenteredAndSemiTransparent(t *testing.T) {
	src := solidImage(400, 300, color.RGBA{R: 200, G: 200, B: 200, A: 255})

	out, err := Render(src, true, domain.DefaultRenderSettings())
	require.NoError(t, err)

	layout := ComputeLayout(600, 450)
	assert.InDelta(t, 225, float64(layout.Band.Min.Y+layout.Band.Max.Y)/2, 1)
	assert.InDelta(t, layout.MainSize*1.8, float64(layout.Band.Dy()), 1)

	// A pixel inside the band at the left border (no glyphs there) is the
	// background blended over the source at 60% opacity.
	inside := out.RGBAAt(1, layout.Band.Min.Y+2)
	assert.InDelta(t, 200*0.4, float64(inside.R), 2)
	assert.Equal(t, uint8(255), inside.A)

	outside := out.RGBAAt(1, 2)
	assert.InDelta(t, 200, float64(outside.R), 1)
}

func TestRender_DrawsCaptionPixels(t *testing.T) {
	src := solidImage(400, 300, color.RGBA{A: 255})
	settings := domain.DefaultRenderSettings()
	settings.ShowBackground = false

	out, err := Render(src, true, settings)
	require.NoError(t, err)

	bright := 0
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] > 200 {
			bright++
		}
	}
	assert.Greater(t, bright, 500, "white caption pixels expected on a black source")
}

func TestRender_InvalidColor(t *testing.T) {
	settings := domain.DefaultRenderSettings()
	settings.TextColor = "#zzz"

	_, err := Render(gradientImage(10, 10), true, settings)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRender))
}

func TestRender_ConcurrentCallsAreIndependent(t *testing.T) {
	src := gradientImage(320, 240)
	want, err := Render(src, true, domain.DefaultRenderSettings())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*image.RGBA, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := Render(src, true, domain.DefaultRenderSettings())
			if err == nil {
				results[i] = out
			}
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		require.NotNil(t, got)
		assert.Equal(t, want.Pix, got.Pix)
	}
}

func TestDecode(t *testing.T) {
	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, gradientImage(40, 30), nil))
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, gradientImage(40, 30)))

	for name, data := range map[string][]byte{"jpeg": jpg.Bytes(), "png": pngBuf.Bytes()} {
		t.Run(name, func(t *testing.T) {
			img, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())
		})
	}

	t.Run("corrupt", func(t *testing.T) {
		_, err := Decode([]byte("definitely not an image"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrImageDecode))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Decode(nil)
		assert.True(t, errors.Is(err, domain.ErrImageDecode))
	})
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#f80", color.NRGBA{})
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0x88, B: 0x00, A: 255}, c)

	c, err = ParseColor("", color.NRGBA{R: 1, A: 255})
	require.NoError(t, err)
	assert.Equal(t, uint8(1), c.R)

	_, err = ParseColor("#12345", color.NRGBA{})
	assert.Error(t, err)
}

func TestBoxBlur_SpreadsMass(t *testing.T) {
	m := image.NewAlpha(image.Rect(0, 0, 9, 9))
	m.SetAlpha(4, 4, color.Alpha{A: 255})

	out := boxBlur(m, 1)
	assert.Less(t, out.AlphaAt(4, 4).A, uint8(255))
	assert.Greater(t, out.AlphaAt(5, 4).A, uint8(0))
	assert.Equal(t, uint8(0), out.AlphaAt(0, 0).A)
}

// pngHeader returns a PNG signature and IHDR chunk declaring w×h 8-bit
// grayscale. It is enough for image.DecodeConfig, with no pixel data.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth; color type 0 (gray), default compression, filter, interlace

	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecode_RejectsOversizedDimensions(t *testing.T) {
	t.Run("extreme aspect ratio", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 40000))))
		require.Less(t, buf.Len(), 4096)

		_, err := Decode(buf.Bytes())
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("too many pixels", func(t *testing.T) {
		_, err := Decode(pngHeader(100000, 100000))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("tallest allowed", func(t *testing.T) {
		img, err := Decode(mustPNG(t, image.NewGray(image.Rect(0, 0, 60, 600))))
		require.NoError(t, err)
		assert.Equal(t, 600, img.Bounds().Dy())
	})
}

func TestRender_RejectsOversizedSource(t *testing.T) {
	_, err := Render(image.NewGray(image.Rect(0, 0, 1, 20)), false, domain.DefaultRenderSettings())
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCheckDimensions(t *testing.T) {
	assert.NoError(t, CheckDimensions(400, 300))
	assert.NoError(t, CheckDimensions(600, MaxOutputHeight))
	assert.ErrorIs(t, CheckDimensions(600, MaxOutputHeight+1), domain.ErrValidation)
	assert.ErrorIs(t, CheckDimensions(8000, 6000), domain.ErrValidation)
	assert.ErrorIs(t, CheckDimensions(0, 10), domain.ErrImageDecode)
}

func mustPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
