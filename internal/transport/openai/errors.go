package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kinetic-field/faultline/internal/domain"
)

// parseAPIError maps a provider error onto the domain error taxonomy so
// upper layers can degrade or map to status codes without knowing the SDK.
func parseAPIError(ctx context.Context, kind string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s request: %w", kind, domain.ErrCollaboratorTimeout)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w",
			kind, apiErr.HTTPStatusCode, apiErr.Message, sentinelForStatus(apiErr.HTTPStatusCode))
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%s API error %d: %s: %w",
			kind, reqErr.HTTPStatusCode, detail, sentinelForStatus(reqErr.HTTPStatusCode))
	}

	return fmt.Errorf("%s request failed: %w", kind, domain.ErrCollaboratorUnavailable)
}

func sentinelForStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case status >= http.StatusInternalServerError:
		return domain.ErrCollaboratorUnavailable
	default:
		return domain.ErrGeneratorError
	}
}

// extractDetail pulls the "detail" field from a JSON error body, used by
// some OpenAI-compatible providers.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
