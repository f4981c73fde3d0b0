package gemini

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/genai"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core"
)

const providerName = "gemini"

// mapError converts SDK failures into provider errors with a stable code.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := core.AsError(err); ok {
		return err
	}

	code := core.CodeUpstream
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = codeForStatus(apiErr.Code)
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code = codeForStatus(apiErrPtr.Code)
	case errors.Is(err, context.DeadlineExceeded):
		code = core.CodeTimeout
	}
	return core.NewProviderError(providerName, code, err)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return core.CodeRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.CodeUnauthorized
	default:
		return core.CodeUpstream
	}
}
