package openaicompat

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/tributary-ai/tributary/pkg/api"
)

// maxErrorBody bounds how much of an error response is read for the
// diagnostic message.
const maxErrorBody = 32 * 1024

// mapHTTPError converts a non-2xx response into a ProviderHTTPError,
// extracting the backend's error message when the body carries the
// standard error envelope.
func mapHTTPError(resp *http.Response, model string, messageCount int) *api.ProviderHTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := extractErrorMessage(body)
	return &api.ProviderHTTPError{
		StatusCode:   resp.StatusCode,
		Model:        model,
		MessageCount: messageCount,
		Message:      msg,
	}
}

func extractErrorMessage(body []byte) string {
	var envelope ChatErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
