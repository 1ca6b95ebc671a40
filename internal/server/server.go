// Package server exposes the grievance backend over HTTP with gin.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"grievance/internal/audit"
	"grievance/internal/config"
	"grievance/internal/evidence"
	"grievance/internal/grievance"
	"grievance/internal/health"
	"grievance/internal/logging"
	"grievance/internal/summary"
)

// maxUploadBytes caps the in-memory part of a multipart upload.
const maxUploadBytes = 16 << 20

// TokenMinter issues browser-calling tokens.
type TokenMinter interface {
	VoiceToken(identity string) (string, error)
}

// PhotoSender posts an image to the officials' chat.
type PhotoSender interface {
	SendPhoto(ctx context.Context, caption string, png []byte) error
}

// Deps are the collaborators behind the routes. Officials may be nil.
type Deps struct {
	Service     *grievance.Service
	Evidence    *evidence.Gate
	Audit       *audit.Correlator
	Tokens      TokenMinter
	Officials   PhotoSender
	Monitor     *health.Monitor
	Credentials config.CredentialReport
	Summary     *summary.Renderer // nil draws with the Go fonts only

	StaticDir string // dashboard and upload.html
	UploadDir string // served at /uploads; empty when blobs live in GCS
	Log       logging.Logger
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = maxUploadBytes
	router.Use(
		gin.Recovery(),
		otelgin.Middleware("grievance"),
		requestID(),
		allowCrossOrigin(),
		observe(d.Log),
	)
	SetupRoutes(router, d)
	return router
}

// SetupRoutes registers the API, operational endpoints and static files.
func SetupRoutes(router *gin.Engine, d Deps) {
	h := &handlers{d: d, log: d.Log.With(logging.F("component", "http"))}

	router.GET("/health", health.Handler(d.Monitor))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/new-complaint", h.createComplaint)
		api.GET("/complaints", h.listComplaints)
		api.GET("/complaints/summary.png", h.summaryImage)
		api.POST("/complaints/summary/broadcast", h.broadcastSummary)
		api.POST("/upload-photo", h.uploadPhoto)
		api.POST("/reject-complaint", h.rejectComplaint)

		api.POST("/audit-cluster", h.auditCluster)
		api.GET("/audit-status/:callId", h.auditStatus)
		api.GET("/ivr/prompt", h.ivrPrompt)
		api.POST("/ivr/prompt", h.ivrPrompt)
		api.POST("/ivr/result", h.ivrResult)

		api.GET("/token", h.token)
		api.GET("/test-credentials", h.testCredentials)
	}

	if d.UploadDir != "" {
		router.Static("/uploads", d.UploadDir)
	}
	if d.StaticDir != "" {
		router.NoRoute(gin.WrapH(http.FileServer(http.Dir(d.StaticDir))))
	}
}
