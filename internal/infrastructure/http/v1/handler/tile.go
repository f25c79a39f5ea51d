package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/infrastructure/http/v1/dto"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/tileset"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/usecase"
)

func (h *Handler) Tile(c *gin.Context) {
	l := requestLogger(c)

	strID := c.Param("id")
	id, err := strconv.ParseInt(strID, 10, 32)
	if err != nil || id < 0 {
		l.Warn("invalid tile id", "id", strID, "error", err)
		h.RespondWithError(c, http.StatusBadRequest, ErrInvalidTileID)
		return
	}

	var (
		resp  dto.TileResponse
		found bool
	)
	err = h.stream.Do(c.Request.Context(), func(ts *tileset.Tileset) {
		tile := ts.Tile(tileset.TileID(id))
		if tile == nil {
			return
		}
		found = true
		resp = tileResponse(tile)
	})
	if errors.Is(err, usecase.ErrFrameLoopStopped) {
		h.RespondWithError(c, http.StatusServiceUnavailable, ErrStreamUnavailable)
		return
	}
	if err != nil {
		h.RespondWithInternalServerError(c, err)
		return
	}
	if !found {
		h.RespondWithError(c, http.StatusNotFound, ErrTileNotFound)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "got tile", resp)
}

func tileResponse(tile *tileset.Tile) dto.TileResponse {
	resp := dto.TileResponse{
		ID:               int32(tile.ID()),
		Parent:           int32(tile.Parent()),
		Children:         make([]int32, 0, len(tile.Children())),
		Depth:            tile.Depth(),
		State:            tile.State().String(),
		Refine:           tile.Refine().String(),
		GeometricError:   tile.GeometricError(),
		ScreenSpaceError: tile.ScreenSpaceError(),
		DistanceToCamera: tile.DistanceToCamera(),
		Priority:         tile.Priority(),
		Visible:          tile.Visible(),
		ContentURLs:      tile.ContentURLs(),
		ExternalTileset:  tile.HasTilesetContent(),
		SelectedFrame:    tile.SelectedFrame(),
		TouchedFrame:     tile.TouchedFrame(),
	}
	for _, child := range tile.Children() {
		resp.Children = append(resp.Children, int32(child))
	}
	if content := tile.Content(); content != nil {
		resp.ByteLength = content.ByteLength()
	}
	if expire := tile.ExpireDate(); !expire.IsZero() {
		resp.ExpireDate = &expire
	}
	return resp
}
