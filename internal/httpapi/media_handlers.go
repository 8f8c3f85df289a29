package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/audit"
	"github.com/Be1newinner/asaan-hai-coding/internal/media"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// Fields only the soft-delete endpoints may write.
var trashFields = []string{"is_deleted", "deleted_at", "deleted_by"}

type presignRequest struct {
	ContentType string `json:"content_type"`
	Folder      string `json:"folder"`
}

func (a *API) mountMedia(r chi.Router) {
	admin := RequireRole(a.auth.Gate(), adminRoles...)
	r.Route("/media", func(r chi.Router) {
		r.Get("/", a.listMedia)
		r.Get("/{id}", a.getMedia)
		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Post("/", a.createMedia)
			r.Post("/upload", a.uploadMedia)
			r.Post("/presign", a.presignMedia)
			r.Patch("/{id}", a.updateMedia)
			r.Post("/{id}/soft-delete", a.softDeleteMedia)
			r.Post("/{id}/restore", a.restoreMedia)
			r.Delete("/{id}/permanent", a.purgeMedia)
		})
	})
}

func (a *API) listMedia(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	skip, err := intParam(v, "skip", 0)
	if err != nil {
		handleError(w, r, err)
		return
	}
	limit, err := intParam(v, "limit", pg.DefaultLimit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	published, err := boolParam(v, "is_published")
	if err != nil {
		handleError(w, r, err)
		return
	}
	deleted, err := boolParam(v, "is_deleted")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !a.viewerIsAdmin(r) {
		deleted = nil
	}
	page, err := a.media.List(r.Context(), media.ListFilter{
		ResourceType: strings.TrimSpace(v.Get("resource_type")),
		IsPublished:  published,
		IsDeleted:    deleted,
		Search:       v.Get("search"),
		Skip:         skip,
		Limit:        limit,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) getMedia(w http.ResponseWriter, r *http.Request) {
	m, ok := a.loadMedia(w, r)
	if !ok {
		return
	}
	if m.IsDeleted && !a.viewerIsAdmin(r) {
		handleError(w, r, wrapNotFound("media", m.ID))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) loadMedia(w http.ResponseWriter, r *http.Request) (*media.Media, bool) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	m, err := a.media.Get(r.Context(), id)
	if err == nil && m == nil {
		err = wrapNotFound("media", id)
	}
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	return m, true
}

// createMedia registers an object that was uploaded directly to storage.
func (a *API) createMedia(w http.ResponseWriter, r *http.Request) {
	var patch pg.Patch
	if err := decodeJSON(r, &patch, false); err != nil {
		handleError(w, r, err)
		return
	}
	if patch == nil {
		handleError(w, r, badRequest("request body must be an object"))
		return
	}
	for _, f := range trashFields {
		if _, ok := patch[f]; ok {
			handleError(w, r, badRequest("%s is set through soft-delete and restore", f))
			return
		}
	}
	m, err := a.media.Repository().Table().Decode(patch)
	if err != nil {
		handleError(w, r, err)
		return
	}
	created, err := a.media.Create(r.Context(), m)
	if err != nil {
		handleError(w, r, err)
		return
	}
	recordAudit(r, audit.ActionCreate, "media", created.ID, map[string]any{"public_id": created.PublicID})
	w.Header().Set("Location", r.URL.Path+"/"+created.ID.String())
	writeJSON(w, http.StatusCreated, created)
}

// uploadMedia stores the multipart "file" part and records it.
func (a *API) uploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handleError(w, r, err)
			return
		}
		handleError(w, r, badRequest("malformed multipart form"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, header, err := r.FormFile("file")
	if err != nil {
		handleError(w, r, badRequest("file is required"))
		return
	}
	defer file.Close()

	in := media.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
		Folder:      r.FormValue("folder"),
		Title:       formString(r, "title"),
		AltText:     formString(r, "alt_text"),
	}
	if in.ProjectID, err = formUUID(r, "project_id"); err != nil {
		handleError(w, r, err)
		return
	}
	if in.CourseID, err = formUUID(r, "course_id"); err != nil {
		handleError(w, r, err)
		return
	}
	created, err := a.media.Upload(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	recordAudit(r, audit.ActionUpload, "media", created.ID, map[string]any{
		"public_id": created.PublicID,
		"bytes":     created.Bytes,
	})
	w.Header().Set("Location", "/api/v1/media/"+created.ID.String())
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) presignMedia(w http.ResponseWriter, r *http.Request) {
	var req presignRequest
	if err := decodeJSON(r, &req, true); err != nil {
		handleError(w, r, err)
		return
	}
	out, err := a.media.Presign(r.Context(), req.ContentType, req.Folder)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) updateMedia(w http.ResponseWriter, r *http.Request) {
	m, ok := a.loadMedia(w, r)
	if !ok {
		return
	}
	var patch pg.Patch
	if err := decodeJSON(r, &patch, false); err != nil {
		handleError(w, r, err)
		return
	}
	fields := patch.Keys()
	updated, err := a.media.Update(r.Context(), m, patch)
	if err != nil {
		handleError(w, r, err)
		return
	}
	recordAudit(r, audit.ActionUpdate, "media", m.ID, map[string]any{"fields": fields})
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) softDeleteMedia(w http.ResponseWriter, r *http.Request) {
	m, ok := a.loadMedia(w, r)
	if !ok {
		return
	}
	updated, err := a.media.SoftDelete(r.Context(), m, currentUser(r).ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	recordAudit(r, audit.ActionSoftDelete, "media", m.ID, nil)
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) restoreMedia(w http.ResponseWriter, r *http.Request) {
	m, ok := a.loadMedia(w, r)
	if !ok {
		return
	}
	updated, err := a.media.Restore(r.Context(), m)
	if err != nil {
		handleError(w, r, err)
		return
	}
	recordAudit(r, audit.ActionRestore, "media", m.ID, nil)
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) purgeMedia(w http.ResponseWriter, r *http.Request) {
	m, ok := a.loadMedia(w, r)
	if !ok {
		return
	}
	if err := a.media.Purge(r.Context(), m); err != nil {
		handleError(w, r, err)
		return
	}
	recordAudit(r, audit.ActionDelete, "media", m.ID, map[string]any{"public_id": m.PublicID})
	w.WriteHeader(http.StatusNoContent)
}

func formString(r *http.Request, name string) *string {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return nil
	}
	return &v
}

func formUUID(r *http.Request, name string) (*uuid.UUID, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, badRequest("%s is not a valid id", name)
	}
	return &id, nil
}
