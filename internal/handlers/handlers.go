package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"datacleaner/internal/config"
	"datacleaner/internal/database"
	"datacleaner/internal/detect"
	"datacleaner/internal/middleware"
	"datacleaner/internal/models"
	"datacleaner/internal/pipeline"
	"datacleaner/internal/quota"
	"datacleaner/internal/repository"
	"datacleaner/internal/service"
	"datacleaner/internal/storage"
)

type uploader interface {
	Process(ctx context.Context, req pipeline.UploadRequest) (pipeline.Result, error)
	PublicURL(name string) string
}

type pinger interface {
	Ping(ctx context.Context) error
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	auth     *service.AuthService
	images   *service.ImageService
	admin    *service.AdminService
	uploads  uploader
	users    middleware.UserLoader
	store    storage.ArtifactStore
	detector detect.Detector
	db       pinger
	cache    *redis.Client
}

func NewHandlerSet(
	log zerolog.Logger,
	cfg *config.AppConfig,
	db database.Pool,
	cache *redis.Client,
	store storage.ArtifactStore,
	detector detect.Detector,
	locker quota.Locker,
) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	imageRepo := repository.NewImageRepository(db)

	orchestrator := pipeline.NewOrchestrator(
		userRepo,
		imageRepo,
		store,
		detector,
		locker,
		quota.NewPolicy(cfg.Quota.FreeLimit),
		cfg.Upload,
		log.With().Str("component", "pipeline").Logger(),
	)

	return HandlerSet{
		log:      log,
		cfg:      cfg,
		auth:     service.NewAuthService(userRepo, cfg.Security, log),
		images:   service.NewImageService(imageRepo, store, log),
		admin:    service.NewAdminService(userRepo, log),
		uploads:  orchestrator,
		users:    userRepo,
		store:    store,
		detector: detector,
		db:       db,
		cache:    cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	requireAuth := middleware.Auth(h.cfg.Security.JWTAccessSecret, h.users)

	auth := v1.Group("/auth")
	auth.POST("/register", h.RegisterUser)
	auth.POST("/login", h.Login)
	auth.GET("/me", requireAuth, h.Me)

	images := v1.Group("/images")
	images.Use(requireAuth)
	images.POST("", h.UploadImage)
	images.GET("", h.ListImages)
	images.GET("/:id", h.GetImage)
	images.DELETE("/:id", h.DeleteImage)

	admin := v1.Group("/admin")
	admin.Use(
		requireAuth,
		middleware.RequireRoles(models.UserRoleAdmin),
	)
	admin.GET("/users", h.AdminListUsers)
	admin.PUT("/users/:id/role", h.AdminUpdateRole)
	admin.GET("/images", h.AdminListImages)
}

// RegisterFiles mounts public artifact serving, normally at the upload
// public prefix.
func (h HandlerSet) RegisterFiles(router *gin.RouterGroup) {
	router.GET("/:name", h.ServeArtifact)
	router.HEAD("/:name", h.ServeArtifact)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidMediaType):
		return http.StatusBadRequest, "invalid_media_type"
	case errors.Is(err, pipeline.ErrInvalidMode):
		return http.StatusBadRequest, "invalid_process_type"
	case errors.Is(err, pipeline.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, pipeline.ErrQuotaExceeded):
		return http.StatusForbidden, "quota_exceeded"
	case errors.Is(err, pipeline.ErrStorageWriteFailed):
		return http.StatusInternalServerError, "storage_write_failed"
	case errors.Is(err, quota.ErrLockTimeout):
		return http.StatusServiceUnavailable, "upload_in_progress"
	case errors.Is(err, service.ErrNotFound), errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidName):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_role"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, repository.ErrEmailTaken):
		return http.StatusBadRequest, "email_taken"
	case errors.Is(err, repository.ErrUsernameTaken):
		return http.StatusBadRequest, "username_taken"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}

func (h HandlerSet) fail(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": code})
}

func (h HandlerSet) currentUser(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return user, ok
}
