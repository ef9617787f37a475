package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/fpindex/internal/fpindex"
)

// PrettyError is the `{"error":{"message":...,"description":...}}`
// envelope every failed request gets, mirroring the teacher's own
// api.PrettyError.
type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p PrettyError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"error": struct {
			Message     string `json:"message"`
			Description string `json:"description"`
		}{p.Message, p.Description},
	})
}

// PrettyErrorInterceptor translates a handler's returned error into a
// PrettyError response with the appropriate status code.
func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {
		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)

		status := http.StatusInternalServerError
		description := "unexpected error"

		switch {
		case errors.Is(err, fpindex.ErrInvalidArgument):
			status = http.StatusBadRequest
			description = "malformed request"
		case errors.Is(err, fpindex.ErrTimeout):
			status = http.StatusGatewayTimeout
			description = "search deadline exceeded"
		case errors.Is(err, fpindex.ErrIndexNotFound):
			status = http.StatusNotFound
			description = fmt.Sprintf("resource '%s' not found", box.GetRequest(ctx).URL.String())
		case errors.Is(err, fpindex.ErrNotOpen), errors.Is(err, fpindex.ErrAlreadyOpen):
			status = http.StatusServiceUnavailable
			description = "index temporarily unavailable"
		case errors.Is(err, fpindex.ErrOutOfSpace):
			status = http.StatusInsufficientStorage
			description = "no space left on device"
		}

		if _, ok := err.(*json.SyntaxError); ok {
			status = http.StatusBadRequest
			description = "malformed JSON"
		}

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(PrettyError{
			Message:     err.Error(),
			Description: fmt.Sprintf("%s (request %s)", description, getRequestId(ctx)),
		})
	}
}
