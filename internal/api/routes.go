package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/petmarket/media-service/internal/api/handlers/media"
)

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposeHeaders: []string{"X-Request-Id"},
		MaxAge:        time.Hour,
	}
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// RegisterRoutes mounts the media API. requireAuth guards every write and the signed URLs.
func RegisterRoutes(r *gin.Engine, h *media.Handler, requireAuth gin.HandlerFunc, allowedOrigins []string) {
	r.Use(corsMiddleware(allowedOrigins))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/health", h.HealthCheck)

		// Public reads
		api.GET("/media", h.ListMedia)
		api.GET("/media/files/*publicId", h.GetMedia)

		protected := api.Group("")
		protected.Use(requireAuth)
		{
			protected.POST("/upload/pet-media", h.UploadPetMedia) // up to five files
			protected.POST("/upload", h.UploadSingle)             // one file
			protected.GET("/media/signed-url", h.SignedURL)
			protected.DELETE("/media/files/*publicId", h.DeleteMedia)
		}
	}
}
