package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Be1newinner/asaan-hai-coding/internal/audit"
	"github.com/Be1newinner/asaan-hai-coding/internal/content"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// publishedOnly limits anonymous and non-admin listings to published rows.
func (a *API) publishedOnly(r *http.Request, q *pg.Query) {
	if a.viewerIsAdmin(r) {
		return
	}
	if q.Filter == nil {
		q.Filter = pg.Filter{}
	}
	q.Filter["is_published"] = true
}

func (a *API) courseResource() *resource[content.Course] {
	return &resource[content.Course]{
		name:      "course",
		repo:      a.content.Courses,
		eager:     content.CourseEager,
		listEager: []string{"image"},
		restrict:  a.publishedOnly,
		hidden: func(r *http.Request, c *content.Course) bool {
			return !c.IsPublished && !a.viewerIsAdmin(r)
		},
	}
}

func (a *API) projectResource() *resource[content.Project] {
	return &resource[content.Project]{
		name:      "project",
		repo:      a.content.Projects,
		eager:     content.ProjectEager,
		listEager: []string{"tags", "thumbnail"},
		relations: a.content.ProjectRelations,
		restrict:  a.publishedOnly,
		hidden: func(r *http.Request, p *content.Project) bool {
			return !p.IsPublished && !a.viewerIsAdmin(r)
		},
	}
}

func (a *API) profileResource() *resource[content.Profile] {
	return &resource[content.Profile]{
		name:      "profile",
		repo:      a.content.Profiles,
		eager:     content.ProfileEager,
		relations: a.content.ProfileRelations,
	}
}

func (a *API) leadResource() *resource[content.Lead] {
	return &resource[content.Lead]{
		name:   "lead",
		repo:   a.leads.Repository(),
		create: a.leads.Create,
		bulk:   a.leads.CreateBulk,
	}
}

// mountContent registers the catalog routes. Reads are public, writes need
// an admin.
func (a *API) mountContent(r chi.Router) {
	admin := RequireRole(a.auth.Gate(), adminRoles...)

	mountCRUD(r, "/courses", a.courseResource(), admin)
	mountCRUD(r, "/sections", &resource[content.Section]{name: "section", repo: a.content.Sections}, admin)
	mountCRUD(r, "/lessons", &resource[content.Lesson]{name: "lesson", repo: a.content.Lessons}, admin)
	mountCRUD(r, "/tags", &resource[content.Tag]{name: "tag", repo: a.content.Tags}, admin)
	mountCRUD(r, "/skills", &resource[content.Skill]{name: "skill", repo: a.content.Skills}, admin)

	projects := a.projectResource()
	r.Route("/projects", func(r chi.Router) {
		projects.mountRead(r)
		r.Group(func(r chi.Router) {
			r.Use(admin)
			projects.mountWrite(r)
			r.Put("/{id}/detail", a.putProjectDetail(projects))
		})
	})

	profiles := a.profileResource()
	r.Route("/profile", func(r chi.Router) {
		profiles.mountRead(r)
		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Post("/", profiles.createOne)
			r.Put("/{id}", profiles.update)
			r.Patch("/{id}", profiles.update)
			r.Delete("/{id}", profiles.remove)
		})
	})

	leads := a.leadResource()
	r.Route("/leads", func(r chi.Router) {
		r.With(a.strict.Middleware).Post("/", leads.createOne)
		r.Group(func(r chi.Router) {
			r.Use(admin)
			leads.mountRead(r)
			r.Post("/bulk", leads.createMany)
			r.Put("/{id}", leads.update)
			r.Patch("/{id}", leads.update)
			r.Delete("/{id}", leads.remove)
		})
	})
}

func mountCRUD[T any](r chi.Router, prefix string, res *resource[T], guard func(http.Handler) http.Handler) {
	r.Route(prefix, func(r chi.Router) {
		res.mountRead(r)
		r.Group(func(r chi.Router) {
			r.Use(guard)
			res.mountWrite(r)
		})
	})
}

// putProjectDetail creates or replaces the long-form detail of a project.
// A JSON null removes it.
func (a *API) putProjectDetail(projects *resource[content.Project]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			handleError(w, r, err)
			return
		}
		var raw json.RawMessage
		if err := decodeJSON(r, &raw, false); err != nil {
			handleError(w, r, err)
			return
		}
		project, err := projects.load(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if err := a.content.SaveDetail(r.Context(), project, raw); err != nil {
			handleError(w, r, err)
			return
		}
		recordAudit(r, audit.ActionUpdate, "project_detail", id, nil)
		if project.Detail == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, project.Detail)
	}
}
