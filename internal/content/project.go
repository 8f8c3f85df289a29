package content

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/media"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// Project is a portfolio entry.
type Project struct {
	pg.Model
	Title            string         `json:"title"`
	Description      *string        `json:"description"`
	ClientName       *string        `json:"client_name"`
	ProjectType      *string        `json:"project_type"`
	ThumbnailImageID *uuid.UUID     `json:"thumbnail_image_id"`
	LiveDemoURL      *string        `json:"live_demo_url"`
	GithubURL        *string        `json:"github_url"`
	IsPublished      bool           `json:"is_published"`
	Tags             []*Tag         `json:"tags,omitempty"`
	Detail           *ProjectDetail `json:"detail,omitempty"`
	Thumbnail        *media.Media   `json:"thumbnail,omitempty"`
	Gallery          []*media.Media `json:"gallery,omitempty"`
}

func (p *Project) Validate() error {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = trimmed(p.Description)
	p.ClientName = trimmed(p.ClientName)
	p.ProjectType = trimmed(p.ProjectType)
	p.LiveDemoURL = trimmed(p.LiveDemoURL)
	p.GithubURL = trimmed(p.GithubURL)
	if err := required("title", p.Title, 255); err != nil {
		return err
	}
	if err := maxLen("client_name", p.ClientName, 100); err != nil {
		return err
	}
	return maxLen("project_type", p.ProjectType, 50)
}

// ProjectDetail is the long-form write-up of a project.
type ProjectDetail struct {
	pg.Model
	ProjectID       uuid.UUID `json:"project_id"`
	MarkdownContent string    `json:"markdown_content"`
}

// Tag labels projects.
type Tag struct {
	pg.Model
	Name string `json:"name"`
}

func (t *Tag) Validate() error {
	t.Name = strings.TrimSpace(t.Name)
	return required("name", t.Name, 100)
}

func newProjectTable() *pg.Table[Project] {
	t := pg.NewTable("projects", func(p *Project) *pg.Model { return &p.Model },
		pg.Mutable("title", func(p *Project) *string { return &p.Title }),
		pg.Optional("description", func(p *Project) **string { return &p.Description }),
		pg.Optional("client_name", func(p *Project) **string { return &p.ClientName }),
		pg.Optional("project_type", func(p *Project) **string { return &p.ProjectType }),
		pg.Optional("thumbnail_image_id", func(p *Project) **uuid.UUID { return &p.ThumbnailImageID }),
		pg.Optional("live_demo_url", func(p *Project) **string { return &p.LiveDemoURL }),
		pg.Optional("github_url", func(p *Project) **string { return &p.GithubURL }),
		pg.Mutable("is_published", func(p *Project) *bool { return &p.IsPublished }),
	)
	t.Search = []string{"title", "description", "client_name"}
	t.Check = (*Project).Validate
	return t
}

func newProjectDetailTable() *pg.Table[ProjectDetail] {
	return pg.NewTable("project_details", func(d *ProjectDetail) *pg.Model { return &d.Model },
		pg.ReadOnly("project_id", func(d *ProjectDetail) *uuid.UUID { return &d.ProjectID }),
		pg.Mutable("markdown_content", func(d *ProjectDetail) *string { return &d.MarkdownContent }),
	)
}

func newTagTable() *pg.Table[Tag] {
	t := pg.NewTable("tags", func(t *Tag) *pg.Model { return &t.Model },
		pg.Mutable("name", func(t *Tag) *string { return &t.Name }),
	)
	t.OrderBy = "name, id"
	t.Search = []string{"name"}
	t.Check = (*Tag).Validate
	return t
}
