package handler

import "errors"

var (
	ErrFailedToDecodeRequestBody = errors.New("failed to decode request body")
	ErrInvalidRequest            = errors.New("invalid request")
	ErrTileNotFound              = errors.New("tile not found")
	ErrSceneUnavailable          = errors.New("scene is not running")
	InternalServerError          = errors.New("server encountered a problem and could not process your request")
)
