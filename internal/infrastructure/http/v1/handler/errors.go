package handler

import "errors"

var (
	ErrFailedToDecodeRequestBody = errors.New("failed to decode request body")
	ErrInvalidTileID             = errors.New("tile id should be a non-negative integer")
	ErrTileNotFound              = errors.New("tile not found")
	ErrStreamUnavailable         = errors.New("tileset stream is not running")
	InternalServerError          = errors.New("server encountered a problem and could not process your request")
)
