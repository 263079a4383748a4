package domain

import "errors"

var (
	ErrNotFound             = errors.New("session not found")
	ErrInvalidSource        = errors.New("invalid source descriptor")
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrStartFailed          = errors.New("start failed")
	ErrEngine               = errors.New("engine error")
	ErrUnsupported          = errors.New("unsupported operation")
)
