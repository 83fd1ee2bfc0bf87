package authclient

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func errResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestDecodeAPIErrorEnvelope(t *testing.T) {
	resp := errResponse(http.StatusForbidden,
		`{"error":{"code":"PERMISSION_DENIED","message":"missing role","details":{"role":"admin"}}}`)

	apiErr := decodeAPIError(resp)
	assert.Equal(t, "PERMISSION_DENIED", apiErr.Code)
	assert.Equal(t, "missing role", apiErr.Message)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "admin", apiErr.Details["role"])
}

func TestDecodeAPIErrorFallsBackToStatus(t *testing.T) {
	apiErr := decodeAPIError(errResponse(http.StatusUnauthorized, "not json at all"))
	assert.Equal(t, CodeUnauthorized, apiErr.Code)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	apiErr = decodeAPIError(errResponse(http.StatusBadGateway, ""))
	assert.Equal(t, "HTTP_502", apiErr.Code)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Message)
}

func TestAPIErrorString(t *testing.T) {
	err := &APIError{Code: "INVALID_CREDENTIALS", Status: 401, Message: "bad password"}
	assert.Equal(t, "INVALID_CREDENTIALS (status 401): bad password", err.Error())
}
