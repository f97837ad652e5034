package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("invalid input")
	ErrQuotaExceeded = errors.New("daily upload limit reached")
	ErrImageDecode   = errors.New("image could not be decoded")
	ErrRender        = errors.New("render failed")
	ErrEncode        = errors.New("encode failed")
	ErrStoreWrite    = errors.New("store write failed")
	ErrStoreList     = errors.New("store list failed")
	ErrStoreDelete   = errors.New("store delete failed")
	ErrLookup        = errors.New("lookup failed")
	ErrAuth          = errors.New("authentication failed")
)

// ContentRejectedError is returned when the content gate refuses an image.
type ContentRejectedError struct {
	Reason string
}

func (e *ContentRejectedError) Error() string {
	if e.Reason == "" {
		return "content rejected"
	}
	return fmt.Sprintf("content rejected: %s", e.Reason)
}
