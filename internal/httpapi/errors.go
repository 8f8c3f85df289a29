package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Be1newinner/asaan-hai-coding/internal/auth"
	"github.com/Be1newinner/asaan-hai-coding/internal/llm"
	"github.com/Be1newinner/asaan-hai-coding/internal/media"
	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// Machine readable error codes of the envelope.
const (
	codeBadRequest       = "bad_request"
	codeNotFound         = "not_found"
	codeConflict         = "integrity_violation"
	codeInvalidPatch     = "invalid_patch"
	codeValidation       = "validation_failed"
	codeInvalidMedia     = "invalid_media"
	codeUnsupportedMedia = "unsupported_media_type"
	codeTooLarge         = "request_too_large"
	codeRateLimited      = "rate_limited"
	codeBadCredentials   = "invalid_credentials"
	codeMethodNotAllowed = "method_not_allowed"
	codeUnavailable      = "storage_unavailable"
	codeInternal         = "internal_error"
)

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the error envelope. 5xx bodies always carry the generic
// message.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		msg = "internal error"
	}
	payload := map[string]any{
		"error": msg,
		"code":  code,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

// handleError maps a domain error onto the envelope.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		upstream *llm.UpstreamError
		tooLarge *http.MaxBytesError
	)
	if ge, ok := auth.IsGateError(err); ok {
		if challenge := ge.Challenge(); challenge != "" {
			w.Header().Set("WWW-Authenticate", challenge)
		}
		writeError(w, r, ge.Status, ge.Code, ge.Code)
		return
	}
	switch {
	case errors.As(err, &upstream):
		payload := map[string]any{
			"error":          upstreamMessage(upstream),
			"code":           upstream.Code,
			"correlation_id": upstream.CorrelationID,
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, upstream.Status, payload)
	case errors.As(err, &tooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
	case errors.Is(err, errBadRequest):
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeError(w, r, http.StatusUnauthorized, codeBadCredentials, "incorrect username or password")
	case errors.Is(err, errNotFound), errors.Is(err, pg.ErrNotFound),
		errors.Is(err, llm.ErrCourseNotFound), errors.Is(err, llm.ErrLessonNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, media.ErrUnsupportedType):
		writeError(w, r, http.StatusUnsupportedMediaType, codeUnsupportedMedia, err.Error())
	case errors.Is(err, media.ErrInvalidMedia):
		writeError(w, r, http.StatusUnprocessableEntity, codeInvalidMedia, err.Error())
	case errors.Is(err, pg.ErrInvalidPatch):
		writeError(w, r, http.StatusUnprocessableEntity, codeInvalidPatch, err.Error())
	case errors.Is(err, pg.ErrValidation), errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error())
	case pg.IsIntegrity(err):
		writeError(w, r, http.StatusConflict, codeConflict, "resource conflicts with existing data")
	default:
		rid := RequestIDFromContext(r.Context())
		obs.Error("request failed", map[string]any{
			"request_id": rid,
			"method":     r.Method,
			"path":       r.URL.Path,
			"error":      err,
		})
		obs.CaptureError(r, rid, err)
		code := codeInternal
		if errors.Is(err, pg.ErrStorageFailure) {
			code = codeUnavailable
		}
		writeError(w, r, http.StatusInternalServerError, code, "internal error")
	}
}

// upstreamMessage never echoes the upstream payload.
func upstreamMessage(e *llm.UpstreamError) string {
	switch e.Code {
	case llm.CodeAPIKeyExpired:
		return "the language model rejected the API key"
	case llm.CodeRateLimit:
		return "the language model is rate limited, try again later"
	case llm.CodeNotAllowed:
		return "the language model refused the request"
	case llm.CodeInvalidArgument:
		return "the language model rejected the request"
	case llm.CodeRequestFailed:
		return "the language model could not be reached"
	}
	return "the language model returned an unusable answer"
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, codeNotFound, "resource not found")
}

// decodeJSON reads exactly one JSON value into dst.
func decodeJSON(r *http.Request, dst any, strict bool) error {
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case errors.Is(err, io.EOF):
			return badRequest("request body is required")
		}
		return badRequest("malformed JSON: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return badRequest("unexpected data after JSON body")
	}
	return nil
}
