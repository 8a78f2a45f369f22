package instance

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/BaSui01/datafed/types"
)

type apiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
	Message string `json:"message"`
}

// readErrMsg extracts a human-readable message from an error response
// body. Response bodies never carry our credential, so passing the text
// through is safe.
func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	var errResp apiErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil {
		if errResp.Error.Message != "" {
			return errResp.Error.Message
		}
		if errResp.Message != "" {
			return errResp.Message
		}
	}
	if len(data) == 0 {
		return "empty error body"
	}
	return string(data)
}

// mapError translates a backend HTTP status into the unified error
// taxonomy. Auth failures are terminal; rate limits and server errors are
// retryable.
func mapError(status int, msg string, instanceID string) *types.Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewError(types.ErrBackendAuth, msg).
			WithHTTPStatus(status).
			WithInstance(instanceID)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrBackendRateLimited, msg).
			WithHTTPStatus(status).
			WithRetryable(true).
			WithInstance(instanceID)
	case http.StatusBadRequest:
		return types.NewError(types.ErrInvalidRequest, msg).
			WithHTTPStatus(status).
			WithInstance(instanceID)
	case http.StatusNotFound:
		return types.NewError(types.ErrNotFound, msg).
			WithHTTPStatus(status).
			WithInstance(instanceID)
	default:
		return types.NewError(types.ErrBackendTransient, fmt.Sprintf("unexpected status %d: %s", status, msg)).
			WithHTTPStatus(status).
			WithRetryable(status >= 500).
			WithInstance(instanceID)
	}
}
