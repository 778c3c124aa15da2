package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/tinoosan/bilibatch/internal/batch"
	"github.com/tinoosan/bilibatch/internal/data"
	"github.com/tinoosan/bilibatch/internal/service"
)

var (
	ErrContentType = errors.New("Content-Type must be application/json")
	ErrURLRequired = errors.New("url is required")
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrURLRequired),
		errors.Is(err, data.ErrInvalidURL),
		errors.Is(err, data.ErrInvalidSelection),
		errors.Is(err, service.ErrInvalidFormat):
		return http.StatusBadRequest
	case errors.Is(err, data.ErrNoExtractorFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, data.ErrResolution),
		errors.Is(err, data.ErrMetadataNotFound),
		errors.Is(err, data.ErrListingAPI):
		return http.StatusBadGateway
	case errors.Is(err, batch.ErrNoSink):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
