package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lgtmagic/internal/domain"
	"lgtmagic/internal/service"
)

// AdminCookieName carries the signed admin session token.
const AdminCookieName = "lgtm_admin_session"

type passwordRequest struct {
	Password string `json:"password"`
}

type analyzeRequest struct {
	Image string `json:"image"`
}

func (h *Handler) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AdminCookieName, token, maxAge, "/", "", h.secureCookies, true)
}

func (h *Handler) clearSessionCookie(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
}

// VerifyAdminPassword answers whether the password is correct without
// starting a session.
func (h *Handler) VerifyAdminPassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Password is required"})
		return
	}

	ok, err := h.svc.Admin.Verify(c.Request.Context(), req.Password)
	if err != nil {
		h.log.Error("Admin verification unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Admin access is not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": ok})
}

func (h *Handler) AdminLogin(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
		return
	}

	session, token, err := h.svc.Admin.Login(c.Request.Context(), req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	h.setSessionCookie(c, token, maxAge)
	c.JSON(http.StatusOK, session)
}

func (h *Handler) AdminStatus(c *gin.Context) {
	token, err := c.Cookie(AdminCookieName)
	if err != nil || token == "" {
		c.JSON(http.StatusOK, domain.AdminSession{})
		return
	}

	session, ok := h.svc.Admin.Check(token)
	if !ok {
		h.clearSessionCookie(c)
		c.JSON(http.StatusOK, domain.AdminSession{})
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *Handler) AdminLogout(c *gin.Context) {
	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, domain.AdminSession{})
}

// AnalyzeImage runs the content gate on a base64 image or data URL.
func (h *Handler) AnalyzeImage(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image data is required"})
		return
	}

	encoded := req.Image
	if i := strings.IndexByte(encoded, ','); i >= 0 {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image data is not valid base64"})
		return
	}
	if int64(len(data)) > h.maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}

	verdict := h.svc.Gate.Classify(c.Request.Context(), data)

	var reason *string
	if !verdict.Appropriate {
		reason = &verdict.Reason
	}
	c.JSON(http.StatusOK, gin.H{"isAppropriate": verdict.Appropriate, "reason": reason})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	c.JSON(status, gin.H{"error": msg})
}

func statusFor(err error) (int, string) {
	var rejected *domain.ContentRejectedError
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, err.Error()
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity, rejected.Error()
	case errors.Is(err, domain.ErrImageDecode):
		return http.StatusUnprocessableEntity, "The image could not be read"
	case errors.Is(err, domain.ErrRender):
		return http.StatusUnprocessableEntity, "The image could not be rendered"
	case errors.Is(err, domain.ErrEncode):
		return http.StatusInternalServerError, "The image could not be encoded"
	case errors.Is(err, domain.ErrStoreWrite):
		return http.StatusInternalServerError, "Failed to store image"
	case errors.Is(err, domain.ErrStoreDelete):
		return http.StatusInternalServerError, "Failed to delete image"
	case errors.Is(err, service.ErrAdminDisabled):
		return http.StatusServiceUnavailable, "Admin access is not configured"
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized, "Invalid password"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
