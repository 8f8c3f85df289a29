package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/audit"
	"github.com/Be1newinner/asaan-hai-coding/internal/llm"
)

// Headers that override the configured language model credentials.
const (
	llmKeyHeader   = "X-LLM-Key"
	llmModelHeader = "X-LLM-Model"
)

// LessonDrafter writes lesson bodies with a language model.
type LessonDrafter interface {
	Draft(ctx context.Context, req llm.DraftRequest) (llm.DraftResult, error)
}

func (a *API) mountAI(r chi.Router) {
	r.Route("/ai", func(r chi.Router) {
		r.Use(RequireRole(a.auth.Gate(), adminRoles...))
		r.With(a.strict.Middleware).Post("/generate-lesson", a.generateLesson)
	})
}

func (a *API) generateLesson(w http.ResponseWriter, r *http.Request) {
	var req llm.DraftRequest
	if err := decodeJSON(r, &req, true); err != nil {
		handleError(w, r, err)
		return
	}
	if req.CourseID == uuid.Nil || req.LessonID == uuid.Nil {
		handleError(w, r, badRequest("course_id and lesson_id are required"))
		return
	}
	req.Override = llm.Key{
		APIKey: strings.TrimSpace(r.Header.Get(llmKeyHeader)),
		Model:  strings.TrimSpace(r.Header.Get(llmModelHeader)),
	}
	res, err := a.drafter.Draft(r.Context(), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	recordAudit(r, audit.ActionGenerate, "lesson", req.LessonID, map[string]any{
		"course_id":     req.CourseID.String(),
		"model":         res.Model,
		"persisted":     res.Persisted,
		"output_tokens": res.OutputTokens,
	})
	writeJSON(w, http.StatusOK, res)
}
