package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/tileset"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/usecase"
	geojson "github.com/paulmach/go.geojson"
)

func (h *Handler) Selected(c *gin.Context) {
	var fc *geojson.FeatureCollection
	err := h.stream.Do(c.Request.Context(), func(ts *tileset.Tileset) {
		fc = usecase.SelectedFootprints(ts)
	})
	if errors.Is(err, usecase.ErrFrameLoopStopped) {
		h.RespondWithError(c, http.StatusServiceUnavailable, ErrStreamUnavailable)
		return
	}
	if err != nil {
		h.RespondWithInternalServerError(c, err)
		return
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		h.RespondWithInternalServerError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}
