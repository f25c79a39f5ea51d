package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/geom"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/infrastructure/http/v1/dto"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/usecase"
)

const defaultFovy = 1.0471975511965976

func (h *Handler) Camera(c *gin.Context) {
	l := requestLogger(c)

	var req dto.CameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn("failed to decode camera request", "error", err)
		h.RespondWithError(c, http.StatusBadRequest, ErrFailedToDecodeRequestBody)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		l.Warn("invalid camera request", "error", err)
		h.RespondWithJSON(c, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}

	pose := usecase.CameraPose{
		Position:  vec(req.Position),
		Direction: vec(req.Direction).Normalize(),
		Fovy:      req.Fovy,
	}
	if pose.Direction.Length() == 0 {
		h.RespondWithJSON(c, http.StatusUnprocessableEntity, "direction must be non-zero", nil)
		return
	}
	if pose.Fovy == 0 {
		pose.Fovy = defaultFovy
	}
	if len(req.Up) == 3 {
		pose.Up = vec(req.Up).Normalize()
	} else {
		_, pose.Up = usecase.LookAt(pose.Position, pose.Position.Add(pose.Direction))
	}

	h.stream.SetCamera(pose)
	l.Info("camera override", "position", pose.Position, "direction", pose.Direction)

	h.RespondWithJSON(c, http.StatusAccepted, "camera updated", pose)
}

func vec(v []float64) geom.Vec3 {
	return geom.Vec3{X: v[0], Y: v[1], Z: v[2]}
}
