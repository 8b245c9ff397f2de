package handler

import (
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/domain"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/preview"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/service"
	"github.com/weiawesome/wes-io-live/ticket-scanner/pkg/log"
	"github.com/weiawesome/wes-io-live/ticket-scanner/pkg/response"
)

//go:embed web/scan.html
var webFS embed.FS

var scanPage = template.Must(template.ParseFS(webFS, "web/scan.html"))

// PageConfig holds what the scan page needs besides live state.
type PageConfig struct {
	DashboardURL string
	CuePath      string
	QRBoxWidth   int
}

// Handler serves the scan page and the scanner API.
type Handler struct {
	controller service.ScanController
	preview    *preview.Broadcaster
	page       PageConfig
}

// NewHandler creates a new HTTP handler.
func NewHandler(controller service.ScanController, pv *preview.Broadcaster, page PageConfig) *Handler {
	return &Handler{
		controller: controller,
		preview:    pv,
		page:       page,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.ScanPage)
	r.GET("/scan", h.ScanPage)
	r.GET("/scan/preview", h.Preview)
	r.GET("/beep.mp3", h.Cue)
	r.GET("/api/scan", h.Status)
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		scanner := api.Group("/scanner")
		{
			scanner.GET("", h.GetState)
			scanner.GET("/cameras", h.ListCameras)
			scanner.PUT("/camera", h.SelectCamera)
			scanner.POST("/torch", h.ToggleTorch)
		}
	}
}

type pageData struct {
	DashboardURL string
	QRBoxWidth   int
	State        domain.ScannerState
}

// ScanPage renders the scan view with the current state.
func (h *Handler) ScanPage(c *gin.Context) {
	l := log.Ctx(c.Request.Context())

	data := pageData{
		DashboardURL: h.page.DashboardURL,
		QRBoxWidth:   h.page.QRBoxWidth,
		State:        h.controller.Snapshot(),
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := scanPage.Execute(c.Writer, data); err != nil {
		l.Error().Err(err).Msg("failed to render scan page")
	}
}

// Preview streams the running session as MJPEG until the client leaves.
func (h *Handler) Preview(c *gin.Context) {
	w := preview.NewMJPEGWriter(c.Writer, c.Writer.Flush)

	c.Header("Content-Type", w.ContentType())
	c.Header("Cache-Control", "no-cache, no-store")
	c.Status(http.StatusOK)

	if err := h.preview.Stream(c.Request.Context(), w); err != nil {
		l := log.Ctx(c.Request.Context())
		l.Debug().Err(err).Msg("preview stream ended")
		return
	}
	w.Close()
}

// Cue serves the confirmation sound.
func (h *Handler) Cue(c *gin.Context) {
	if _, err := os.Stat(h.page.CuePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			response.NotFound(c, "audio cue not found")
			return
		}
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str("path", h.page.CuePath).Msg("failed to stat audio cue")
		response.InternalError(c, "audio cue unavailable")
		return
	}
	c.Header("Content-Type", "audio/mpeg")
	c.File(h.page.CuePath)
}

// Status is the station status probe.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"state":  h.controller.Snapshot().State,
	})
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetState returns the scanner state.
func (h *Handler) GetState(c *gin.Context) {
	response.Success(c, h.controller.Snapshot())
}

// ListCameras returns the enumerated cameras.
func (h *Handler) ListCameras(c *gin.Context) {
	response.Success(c, h.controller.Cameras())
}

type selectCameraRequest struct {
	CameraID string `json:"camera_id" binding:"required"`
}

// SelectCamera switches the decode session to another camera.
func (h *Handler) SelectCamera(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req selectCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind select camera request")
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.controller.SelectCamera(ctx, req.CameraID); err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownCamera):
			response.NotFound(c, "camera not found")
		case errors.Is(err, service.ErrClosed):
			response.Unavailable(c, "scanner is shutting down")
		default:
			l.Warn().Err(err).Str(log.FieldCameraID, req.CameraID).Msg("failed to select camera")
			response.Unavailable(c, "camera could not be started")
		}
		return
	}

	response.Success(c, h.controller.Snapshot())
}

// ToggleTorch flips the torch on the running session.
func (h *Handler) ToggleTorch(c *gin.Context) {
	response.Success(c, h.controller.ToggleTorch(c.Request.Context()))
}
