package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/domain"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/hub"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/service"
	pkglog "github.com/weiawesome/wes-io-live/ticket-scanner/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // station view is served on loopback
	},
}

// WSHandler handles WebSocket connections from scan views.
type WSHandler struct {
	hub        *hub.Hub
	controller service.ScanController
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *hub.Hub, controller service.ScanController) *WSHandler {
	return &WSHandler{
		hub:        h,
		controller: controller,
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and sends the current state.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := pkglog.Ctx(c.Request.Context())

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &hub.Client{
		ID:   uuid.New().String(),
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
	}

	h.hub.Register(client)
	client.SendMessage(domain.NewStateMessage(h.controller.Snapshot()))

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	l := pkglog.L().With().Str(pkglog.FieldClientID, client.ID).Logger()

	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	ctx := pkglog.WithLogger(context.Background(), l)

	switch base.Type {
	case domain.MsgTypeSelectCamera:
		var msg domain.SelectCameraMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.CameraID == "" {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid select_camera message"))
			return
		}
		if err := h.controller.SelectCamera(ctx, msg.CameraID); err != nil {
			if errors.Is(err, service.ErrUnknownCamera) {
				client.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotFound, "Camera not found"))
				return
			}
			l.Warn().Err(err).Str(pkglog.FieldCameraID, msg.CameraID).Msg("select camera failed")
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "Camera could not be started"))
		}

	case domain.MsgTypeToggleTorch:
		result := h.controller.ToggleTorch(ctx)
		client.SendMessage(&domain.TorchResultMessage{
			Type:   domain.MsgTypeTorchResult,
			Result: result,
		})

	case domain.MsgTypePing:
		client.SendMessage(map[string]string{"type": domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}
