package server

import (
	"github.com/abduss/goupload/internal/auth"
	"github.com/abduss/goupload/internal/config"
	"github.com/abduss/goupload/internal/logger"
	"github.com/abduss/goupload/internal/metrics"
	"github.com/abduss/goupload/internal/presigned"
	"github.com/abduss/goupload/internal/upload"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config        config.Config
	DB            *pgxpool.Pool
	ObjectStore   *minio.Client
	AuthService   *auth.Service
	UploadService *upload.Service
	// PresignedService is nil when objects are finalized through a non-MinIO
	// backend; the download-url route is then not mounted.
	PresignedService *presigned.Service
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware())
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps)
	metrics.Register(router, deps.Config.Metrics.PrometheusPath)

	api := router.Group("/v1")
	if deps.AuthService != nil && deps.UploadService != nil {
		protected := api.Group("/")
		protected.Use(auth.AuthMiddleware(deps.AuthService))

		upload.RegisterRoutes(protected, deps.UploadService)

		if deps.PresignedService != nil {
			presigned.NewHandler(deps.PresignedService, deps.UploadService).RegisterRoutes(protected)
		}
	}

	return router
}
