package dto

import "time"

type CameraRequest struct {
	Position  []float64 `json:"position" validate:"required,len=3"`
	Direction []float64 `json:"direction" validate:"required,len=3"`
	Up        []float64 `json:"up" validate:"omitempty,len=3"`
	Fovy      float64   `json:"fovy" validate:"omitempty,gt=0,lt=3.14"`
}

type TileResponse struct {
	ID               int32      `json:"id"`
	Parent           int32      `json:"parent"`
	Children         []int32    `json:"children"`
	Depth            int        `json:"depth"`
	State            string     `json:"state"`
	Refine           string     `json:"refine"`
	GeometricError   float64    `json:"geometricError"`
	ScreenSpaceError float64    `json:"screenSpaceError"`
	DistanceToCamera float64    `json:"distanceToCamera"`
	Priority         float64    `json:"priority"`
	Visible          bool       `json:"visible"`
	ContentURLs      []string   `json:"contentUrls"`
	ByteLength       int64      `json:"byteLength"`
	ExternalTileset  bool       `json:"externalTileset"`
	ExpireDate       *time.Time `json:"expireDate,omitempty"`
	SelectedFrame    int64      `json:"selectedFrame"`
	TouchedFrame     int64      `json:"touchedFrame"`
}
