package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lgtmagic/internal/domain"
	"lgtmagic/internal/service"
)

// Services groups the collaborators the HTTP layer calls into.
type Services struct {
	Uploads  service.UploadService
	Gallery  service.GalleryService
	Quota    service.QuotaService
	Gate     service.ContentGate
	Admin    service.AdminService
	Identity service.IdentityResolver
}

type Handler struct {
	svc           Services
	maxUploadSize int64
	secureCookies bool
	log           *zap.Logger
}

func NewHandler(svc Services, maxUploadSize int64, secureCookies bool, log *zap.Logger) *Handler {
	return &Handler{
		svc:           svc,
		maxUploadSize: maxUploadSize,
		secureCookies: secureCookies,
		log:           log,
	}
}

func (h *Handler) caller(c *gin.Context) domain.Caller {
	return h.svc.Identity.Resolve(c.Request.Context(), c.ClientIP(), c.GetHeader("X-Timezone"))
}

func (h *Handler) UploadImage(c *gin.Context) {
	req, err := h.parseUploadRequest(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	caller := h.caller(c)
	result, err := h.svc.Uploads.Upload(c.Request.Context(), caller, req)
	if err != nil {
		h.log.Error("Upload failed",
			zap.String("identity", caller.Identity),
			zap.Error(err))
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Image uploaded successfully",
		"image":   result,
	})
}

func (h *Handler) PreviewImage(c *gin.Context) {
	req, err := h.parseUploadRequest(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	payload, err := h.svc.Uploads.Preview(c.Request.Context(), req)
	if err != nil {
		h.log.Warn("Preview failed", zap.Error(err))
		h.writeError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, payload.ContentType, payload.Data)
}

func (h *Handler) ListImages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	images, err := h.svc.Gallery.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"images": images,
			"error":  "Failed to load gallery",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"images": images})
}

func (h *Handler) DeleteImage(c *gin.Context) {
	target := c.Param("name")
	if target == "" {
		target = c.Query("url")
	}

	name, err := h.svc.Gallery.Delete(c.Request.Context(), target)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Image deleted", "name": name})
}

func (h *Handler) GetQuota(c *gin.Context) {
	status, err := h.svc.Quota.Check(c.Request.Context(), h.caller(c))
	if err != nil {
		h.log.Warn("Quota status unavailable", zap.Error(err))
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, errTooLarge
	}
	return data, nil
}

var errTooLarge = errors.New("file too large")
