package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
)

const (
	CodeAPIKeyExpired   = "EXTERNAL_API_KEY_EXPIRED"
	CodeRateLimit       = "EXTERNAL_RATE_LIMIT"
	CodeNotAllowed      = "EXTERNAL_NOT_ALLOWED"
	CodeInvalidArgument = "EXTERNAL_INVALID_ARGUMENT"
	CodeError           = "EXTERNAL_ERROR"
	CodeRequestFailed   = "EXTERNAL_REQUEST_FAILED"
)

// ErrUnparseable marks a model answer that could not be turned into a draft.
var ErrUnparseable = errors.New("llm: response could not be parsed")

// UpstreamError is the caller-safe form of an LLM failure. The raw upstream
// payload is logged under CorrelationID and never carried here.
type UpstreamError struct {
	Code          string
	Status        int
	Detail        string
	CorrelationID string
	cause         error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s (correlation_id=%s)", e.Code, e.Detail, e.CorrelationID)
}

func (e *UpstreamError) Unwrap() error { return e.cause }

// upstreamBody is the error object shared by OpenAI and Google endpoints.
type upstreamBody struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type   string `json:"@type"`
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

type payload struct {
	message string
	reason  string
	status  int
	raw     string
}

// Classify maps err onto a stable external error code and logs the upstream
// payload with a fresh correlation id.
func Classify(err error) *UpstreamError {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}
	corr := uuid.NewString()
	p := inspect(err)
	obs.Warn("llm upstream error", map[string]any{
		"correlation_id": corr,
		"status":         p.status,
		"reason":         p.reason,
		"payload":        p.raw,
	})

	out := &UpstreamError{CorrelationID: corr, cause: err}
	msg := strings.ToLower(p.message)
	switch {
	case errors.Is(err, ErrUnparseable):
		out.Status, out.Code, out.Detail = http.StatusBadGateway, CodeError, "External service error."
	case strings.Contains(msg, "api key") || p.reason == "API_KEY_INVALID" || p.reason == "API_KEY_EXPIRED":
		out.Status, out.Code, out.Detail = http.StatusUnauthorized, CodeAPIKeyExpired, "The provided API key is invalid or expired."
	case strings.Contains(msg, "quota") || strings.Contains(msg, "rate") || p.status == http.StatusTooManyRequests:
		out.Status, out.Code, out.Detail = http.StatusTooManyRequests, CodeRateLimit, "External service rate limit exceeded. Try again later."
	case strings.Contains(msg, "permission") || strings.Contains(msg, "unauthorized"):
		out.Status, out.Code, out.Detail = http.StatusForbidden, CodeNotAllowed, "Not authorized to perform this operation on external service."
	case p.status == 0:
		out.Status, out.Code, out.Detail = http.StatusBadGateway, CodeRequestFailed, "External service could not be reached."
	default:
		out.Status, out.Code, out.Detail = http.StatusBadRequest, CodeInvalidArgument, "Invalid request to the external service."
	}
	obs.LLMUpstreamError(out.Code)
	return out
}

// inspect extracts the message, ErrorInfo reason and HTTP status from the
// errors go-openai returns.
func inspect(err error) payload {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		p := payload{message: apiErr.Message, status: apiErr.HTTPStatusCode, raw: apiErr.Message}
		if code, ok := apiErr.Code.(string); ok {
			p.reason = code
		}
		return p
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		p := payload{status: reqErr.HTTPStatusCode, raw: truncate(string(reqErr.Body), 512)}
		if body, ok := decodeBody(reqErr.Body); ok {
			p.message = body.Error.Message
			for _, d := range body.Error.Details {
				if strings.HasSuffix(d.Type, "ErrorInfo") {
					p.reason = d.Reason
					break
				}
			}
		} else if reqErr.Err != nil {
			p.message = reqErr.Err.Error()
		}
		return p
	}
	if err == nil {
		return payload{}
	}
	// Transport failures and timeouts never reached the model; status stays 0.
	return payload{message: err.Error(), raw: err.Error()}
}

// decodeBody accepts an error object or a one-element array of them.
func decodeBody(b []byte) (upstreamBody, bool) {
	var body upstreamBody
	if err := json.Unmarshal(b, &body); err == nil && body.Error.Message != "" {
		return body, true
	}
	var list []upstreamBody
	if err := json.Unmarshal(b, &list); err == nil && len(list) > 0 {
		return list[0], true
	}
	return upstreamBody{}, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
