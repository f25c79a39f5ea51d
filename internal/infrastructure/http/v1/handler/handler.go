package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/tileset"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/usecase"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Stream is the frame loop as seen by HTTP handlers.
type Stream interface {
	Snapshot() usecase.Snapshot
	SetCamera(pose usecase.CameraPose)
	Do(ctx context.Context, fn func(ts *tileset.Tileset)) error
}

type Subscriber interface {
	Subscribe(conn *websocket.Conn) error
}

type Handler struct {
	validate *validator.Validate
	stream   Stream
	events   Subscriber
	upgrader websocket.Upgrader
}

func NewHandler(v *validator.Validate, stream Stream, events Subscriber) *Handler {
	return &Handler{
		validate: v,
		stream:   stream,
		events:   events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func requestLogger(c *gin.Context) logger.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(logger.Logger); ok {
			return l
		}
	}
	return logger.FromContext(c.Request.Context())
}

func (h *Handler) RespondWithInternalServerError(c *gin.Context, err error) {
	requestLogger(c).Error("internal http_server error",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"ip", c.ClientIP(),
		"error", err,
	)
	h.RespondWithError(c, http.StatusInternalServerError, InternalServerError)
}

func (h *Handler) RespondWithError(c *gin.Context, code int, err error) {
	h.RespondWithJSON(c, code, err.Error(), nil)
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	success := code < 400

	r := response{
		Success: success,
		Message: message,
		Data:    data,
	}

	c.JSON(code, r)
}
