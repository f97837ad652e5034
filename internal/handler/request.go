package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"lgtmagic/internal/domain"
	"lgtmagic/pkg/codec"
)

type uploadForm struct {
	URL               string   `form:"url"`
	Caption           *bool    `form:"caption"`
	ShowMainText      *bool    `form:"showMainText"`
	ShowSubtext       *bool    `form:"showSubtext"`
	ShowBackground    *bool    `form:"showBackground"`
	MainFont          string   `form:"mainFont"`
	SubFont           string   `form:"subFont"`
	TextColor         string   `form:"textColor"`
	BackgroundColor   string   `form:"backgroundColor"`
	BackgroundOpacity *float64 `form:"backgroundOpacity"`
	Format            string   `form:"format"`
	Quality           float64  `form:"quality"`
}

func (f uploadForm) settings() domain.RenderSettings {
	s := domain.DefaultRenderSettings()
	if f.ShowMainText != nil {
		s.ShowMainText = *f.ShowMainText
	}
	if f.ShowSubtext != nil {
		s.ShowSubtext = *f.ShowSubtext
	}
	if f.ShowBackground != nil {
		s.ShowBackground = *f.ShowBackground
	}
	if f.MainFont != "" {
		s.MainFont = f.MainFont
	}
	if f.SubFont != "" {
		s.SubFont = f.SubFont
	}
	if f.TextColor != "" {
		s.TextColor = f.TextColor
	}
	if f.BackgroundColor != "" {
		s.BackgroundColor = f.BackgroundColor
	}
	if f.BackgroundOpacity != nil {
		s.BackgroundOpacity = *f.BackgroundOpacity
	}
	return s
}

// parseUploadRequest reads a multipart image file or a url field plus
// caption settings.
func (h *Handler) parseUploadRequest(c *gin.Context) (domain.UploadRequest, error) {
	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		return domain.UploadRequest{}, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}

	req := domain.UploadRequest{
		Source:     domain.SourceImage{URL: form.URL},
		AddCaption: form.Caption == nil || *form.Caption,
		Settings:   form.settings(),
		Quality:    form.Quality,
	}
	if form.Format != "" {
		req.MIMEType = codec.NormalizeMIME(form.Format)
	}

	file, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		if form.URL == "" {
			return req, fmt.Errorf("%w: no image provided", domain.ErrValidation)
		}
	default:
		if file.Size > h.maxUploadSize {
			return req, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrValidation, h.maxUploadSize)
		}
		f, err := file.Open()
		if err != nil {
			return req, fmt.Errorf("%w: unreadable file", domain.ErrValidation)
		}
		defer f.Close()

		data, err := readLimited(f, h.maxUploadSize)
		if err != nil {
			return req, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
		}
		req.Source = domain.SourceImage{Data: data}
	}

	return req, nil
}
