package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Error codes carried by APIError. Presentation code branches on these,
// never on transport-specific shapes.
const (
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeRefreshFailed   = "REFRESH_FAILED"
	CodeInvalidResponse = "INVALID_RESPONSE"
)

// ErrRefreshFailed marks a terminal refresh outcome: the refresh call
// failed or returned no usable token. The affected context is logged out
// and no automatic retry is attempted.
var ErrRefreshFailed = errors.New("token refresh failed")

// ErrNoRefreshToken is returned when a refresh is required but the active
// context has no refresh token stored.
var ErrNoRefreshToken = errors.New("no refresh token available")

// APIError is the normalized shape of every backend error surfaced to
// callers: an HTTP round-trip completed but the backend rejected the
// request.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", e.Code, e.Status, e.Message)
}

// TransportError means the request never produced a response: DNS failure,
// connection refused, timeout. It is surfaced as-is; the refresh machinery
// does not engage.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Error struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error"`
}

// decodeAPIError converts a non-2xx response into an APIError, consuming
// the body. Unparseable bodies fall back to the HTTP status.
func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{
		Code:    CodeUnauthorized,
		Status:  resp.StatusCode,
		Message: http.StatusText(resp.StatusCode),
	}
	if resp.StatusCode != http.StatusUnauthorized {
		apiErr.Code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(body) == 0 {
		return apiErr
	}

	var envelope errorBody
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Details = envelope.Error.Details
	}

	return apiErr
}
