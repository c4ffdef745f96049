package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"

	"chatstream/internal/domain"
	"chatstream/internal/infra/tracer"
)

// maxResponseBody is the maximum response body size we read from LLM APIs.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// maxErrorBody bounds how much of a failed response is read for the error.
const maxErrorBody = 4096

// newJSONRequest builds a POST request with JSON content type, the given
// headers and the caller's trace context.
func newJSONRequest(ctx context.Context, url string, body []byte, headers map[string]string) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	tracer.InjectHeaders(ctx, httpReq.Header)
	return httpReq, nil
}

// doJSONRequest performs a JSON POST request and returns the response body.
// Returns a domain error for non-200 responses.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := newJSONRequest(ctx, url, body, headers)
	if err != nil {
		return nil, err
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return respBody, nil
}

// doStreamRequest performs a JSON POST request for SSE streaming.
// It returns the open *http.Response (caller must close Body).
// Returns a domain error for non-200 responses.
func doStreamRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) (*http.Response, error) {
	httpReq, err := newJSONRequest(ctx, url, body, headers)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", domain.ErrStreamUnavailable, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return httpResp, nil
}

// logGenerateCompleted logs the standard debug message after a successful call.
func logGenerateCompleted(logger *slog.Logger, providerName string, result *domain.GenerateResult) {
	logger.Debug("llm generate completed",
		"provider", providerName,
		"model", result.Model,
		"finish_reason", result.FinishReason,
		"tokens", result.Usage.TotalTokens,
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.input_tokens", usage.InputTokens),
		tracer.IntAttr("llm.output_tokens", usage.OutputTokens),
		tracer.IntAttr("llm.total_tokens", usage.TotalTokens),
	)
}

// mapHTTPError maps an HTTP status code + response body to a domain error,
// so the circuit breaker and failover can classify upstream failures.
func mapHTTPError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", statusCode, errorMessage(body))

	switch {
	case statusCode == http.StatusTooManyRequests: // 429
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden: // 401, 403
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode == http.StatusRequestEntityTooLarge: // 413
		return fmt.Errorf("%w: %s", domain.ErrContextOverflow, detail)
	case statusCode == http.StatusBadRequest && gjson.GetBytes(body, "error.code").String() == "context_length_exceeded":
		return fmt.Errorf("%w: %s", domain.ErrContextOverflow, detail)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout: // 408, 504
		return fmt.Errorf("%w: %s", domain.ErrTimeout, detail)
	case statusCode >= 500: // 500, 502, 503, etc.
		return fmt.Errorf("%w: %s", domain.ErrProviderError, detail)
	default:
		return fmt.Errorf("%s", detail)
	}
}

// errorMessage extracts error.message from an OpenAI-style error body,
// falling back to the raw (trimmed) body.
func errorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String()
	}
	return strings.TrimSpace(string(body))
}
