// Package codec serializes composite buffers into upload payloads.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"go.uber.org/zap"

	"lgtmagic/internal/domain"
)

type Encoder struct {
	log *zap.Logger
}

func NewEncoder(log *zap.Logger) *Encoder {
	return &Encoder{log: log}
}

// NormalizeMIME maps a requested output type onto one the encoder supports.
func NormalizeMIME(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "", domain.MIMEWebP, "webp":
		return domain.MIMEWebP
	case domain.MIMEJPEG, "image/jpg", "jpeg", "jpg":
		return domain.MIMEJPEG
	default:
		return domain.MIMEPNG
	}
}

// ExtensionFor returns the file extension stored objects get for mimeType.
func ExtensionFor(mimeType string) string {
	switch mimeType {
	case domain.MIMEWebP:
		return "webp"
	case domain.MIMEJPEG:
		return "jpg"
	default:
		return "png"
	}
}

// Lossless reports whether quality is ignored for mimeType.
func Lossless(mimeType string) bool {
	return NormalizeMIME(mimeType) != domain.MIMEJPEG
}

// Encode compresses img. Quality is in (0,1] and only applies to JPEG; WebP
// output is lossless VP8L.
func (e *Encoder) Encode(img image.Image, mimeType string, quality float64) (*domain.EncodedPayload, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil buffer", domain.ErrEncode)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: zero-dimension buffer %dx%d", domain.ErrEncode, b.Dx(), b.Dy())
	}
	if quality <= 0 || quality > 1 {
		quality = domain.DefaultQuality
	}

	mimeType = NormalizeMIME(mimeType)

	var buf bytes.Buffer
	var err error
	switch mimeType {
	case domain.MIMEWebP:
		err = nativewebp.Encode(&buf, img, nil)
	case domain.MIMEJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: int(math.Max(1, math.Round(quality*100)))})
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEncode, mimeType, err)
	}

	e.log.Debug("Image encoded",
		zap.String("content_type", mimeType),
		zap.Float64("quality", quality),
		zap.Int("size", buf.Len()))

	return &domain.EncodedPayload{
		Data:        buf.Bytes(),
		ContentType: mimeType,
		Extension:   ExtensionFor(mimeType),
		Width:       b.Dx(),
		Height:      b.Dy(),
	}, nil
}
