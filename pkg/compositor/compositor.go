// Package compositor resizes source images to the fixed gallery width and
// stamps the LGTM captions on them.
package compositor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strconv"
	"strings"

	_ "github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"lgtmagic/internal/domain"
)

const (
	mainSizeByWidth  = 0.15
	mainSizeByHeight = 0.2
	subSizeByWidth   = 0.035
	subSizeByHeight  = 0.04
	bandFactor       = 1.8
	shadowAlpha      = 128
)

const (
	// MaxSourcePixels bounds the decoded source so a small, highly
	// compressible file cannot expand into gigabytes of pixels.
	MaxSourcePixels = 40_000_000
	// MaxOutputHeight bounds the composite height (aspect ratio 1:10).
	MaxOutputHeight = 10 * domain.TargetWidth
)

// Layout describes where captions go on a composite of a given size.
type Layout struct {
	Width       int
	Height      int
	MainSize    float64
	SubSize     float64
	Band        image.Rectangle
	MainCenterY float64
	SubCenterY  float64
}

// TargetSize returns the composite size for a source of w×h pixels: width is
// fixed, height keeps the aspect ratio.
func TargetSize(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	return domain.TargetWidth, int(math.Round(float64(domain.TargetWidth) * float64(h) / float64(w)))
}

// ComputeLayout derives caption sizes and positions for a w×h composite.
func ComputeLayout(w, h int) Layout {
	fw, fh := float64(w), float64(h)
	mainSize := math.Min(fw*mainSizeByWidth, fh*mainSizeByHeight)
	subSize := math.Min(fw*subSizeByWidth, fh*subSizeByHeight)

	bandH := mainSize * bandFactor
	top := int(math.Round((fh - bandH) / 2))
	bottom := int(math.Round((fh + bandH) / 2))

	mainCenter := fh/2 - mainSize*0.1
	return Layout{
		Width:       w,
		Height:      h,
		MainSize:    mainSize,
		SubSize:     subSize,
		Band:        image.Rect(0, top, w, bottom).Intersect(image.Rect(0, 0, w, h)),
		MainCenterY: mainCenter,
		SubCenterY:  mainCenter + mainSize*0.5 + subSize*0.6,
	}
}

// CheckDimensions rejects sources too large to decode or whose composite
// would exceed MaxOutputHeight.
func CheckDimensions(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: image has no pixels (%dx%d)", domain.ErrImageDecode, w, h)
	}
	if int64(w)*int64(h) > MaxSourcePixels {
		return fmt.Errorf("%w: image is %dx%d pixels, at most %d allowed", domain.ErrValidation, w, h, MaxSourcePixels)
	}
	if _, th := TargetSize(w, h); th > MaxOutputHeight {
		return fmt.Errorf("%w: image %dx%d is too tall for its width", domain.ErrValidation, w, h)
	}
	return nil
}

// Decode parses jpeg, png, gif or webp bytes. Dimensions are read from the
// header and checked before any pixel is decoded.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", domain.ErrImageDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrImageDecode, err)
	}
	if err := CheckDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrImageDecode, err)
	}
	return img, nil
}

// Render draws src resized to the target width and, when addCaption is set,
// the band and captions enabled in settings. The returned buffer is owned by
// the caller; nothing is shared between concurrent calls except font data.
func Render(src image.Image, addCaption bool, settings domain.RenderSettings) (*image.RGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", domain.ErrImageDecode)
	}
	sb := src.Bounds()
	if sb.Empty() {
		return nil, fmt.Errorf("%w: empty source bounds", domain.ErrImageDecode)
	}

	if err := CheckDimensions(sb.Dx(), sb.Dy()); err != nil {
		return nil, err
	}

	w, h := TargetSize(sb.Dx(), sb.Dy())
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)

	if !addCaption || dst.Bounds().Empty() {
		return dst, nil
	}

	layout := ComputeLayout(w, h)

	if settings.ShowBackground {
		bg, err := ParseColor(settings.BackgroundColor, color.NRGBA{A: 255})
		if err != nil {
			return nil, fmt.Errorf("%w: background color: %w", domain.ErrRender, err)
		}
		bg.A = uint8(math.Round(clampUnit(settings.BackgroundOpacity) * 255))
		draw.Draw(dst, layout.Band, image.NewUniform(bg), image.Point{}, draw.Over)
	}

	textColor, err := ParseColor(settings.TextColor, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	if err != nil {
		return nil, fmt.Errorf("%w: text color: %w", domain.ErrRender, err)
	}

	if settings.ShowMainText {
		if err := drawCaption(dst, domain.MainCaption, settings.MainFont, layout.MainSize, layout.MainCenterY, textColor); err != nil {
			return nil, err
		}
	}
	if settings.ShowSubtext {
		if err := drawCaption(dst, domain.SubCaption, settings.SubFont, layout.SubSize, layout.SubCenterY, textColor); err != nil {
			return nil, err
		}
	}

	return dst, nil
}

// drawCaption draws text horizontally centered around centerY, shadow first.
func drawCaption(dst *image.RGBA, text, family string, size, centerY float64, col color.NRGBA) error {
	if size < 1 {
		return nil
	}
	face, err := newFace(family, size)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrRender, err)
	}
	defer face.Close()

	metrics := face.Metrics()
	capHeight := metrics.CapHeight
	if capHeight == 0 {
		capHeight = metrics.Ascent - metrics.Descent
	}

	advance := font.MeasureString(face, text)
	x := fixed.Int26_6(float64(dst.Bounds().Dx())*32) - advance/2
	y := fixed.Int26_6(centerY*64) + capHeight/2

	offset := int(math.Max(1, math.Round(size*0.03)))
	mask := image.NewAlpha(dst.Bounds())
	(&font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.Point26_6{X: x + fixed.I(offset), Y: y + fixed.I(offset)},
	}).DrawString(text)
	mask = boxBlur(mask, int(math.Max(1, math.Round(size*0.04))))
	draw.DrawMask(dst, dst.Bounds(), image.NewUniform(color.NRGBA{A: shadowAlpha}), image.Point{}, mask, dst.Bounds().Min, draw.Over)

	(&font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: x, Y: y},
	}).DrawString(text)
	return nil
}

// ParseColor accepts #rgb and #rrggbb. An empty string yields def.
func ParseColor(s string, def color.NRGBA) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return def, nil
	}
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return def, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return def, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
