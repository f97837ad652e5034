package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lgtmagic/internal/config"
	"lgtmagic/internal/handler"
)

type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	log        *zap.Logger
}

// RouterOptions tunes client identification and login throttling.
type RouterOptions struct {
	LoginPerMinute int
	// TrustedProxies may set X-Forwarded-For. Nil trusts nobody.
	TrustedProxies []string
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *handler.Handler, svc handler.Services, opts RouterOptions, log *zap.Logger) *gin.Engine {
	router := gin.New()
	// nil trusts no proxy, so ClientIP is the TCP peer
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		log.Error("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	loginPerMinute := opts.LoginPerMinute
	if loginPerMinute <= 0 {
		loginPerMinute = 5
	}
	loginLimiter := NewRateLimiter(rate.Every(time.Minute/time.Duration(loginPerMinute)), loginPerMinute)

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/images", h.ListImages)
		api.POST("/upload", h.UploadImage)
		api.POST("/preview", h.PreviewImage)
		api.GET("/quota", h.GetQuota)
		api.POST("/analyze-image", h.AnalyzeImage)
		api.POST("/verify-admin-password", loginLimiter.Middleware(), h.VerifyAdminPassword)

		api.POST("/admin/session", loginLimiter.Middleware(), h.AdminLogin)
		api.GET("/admin/session", h.AdminStatus)
		api.DELETE("/admin/session", h.AdminLogout)

		api.DELETE("/images/:name", RequireAdmin(svc.Admin), h.DeleteImage)
		api.DELETE("/images", RequireAdmin(svc.Admin), h.DeleteImage)
	}

	return router
}

func New(cfg *config.Config, svc handler.Services, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	h := handler.NewHandler(svc, cfg.App.MaxUploadSize, cfg.Admin.SecureCookie, log)
	router := NewRouter(h, svc, RouterOptions{
		LoginPerMinute: cfg.Admin.LoginPerMinute,
		TrustedProxies: cfg.Server.TrustedProxies,
	}, log)

	server := &Server{
		httpServer: &http.Server{
			Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:        router,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		cfg: cfg,
		log: log,
	}

	log.Info("Server created successfully",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port))

	return server
}

func (s *Server) Run() error {
	s.log.Info("Server is running",
		zap.String("host", s.cfg.Server.Host),
		zap.String("port", s.cfg.Server.Port),
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}
