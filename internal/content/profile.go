package content

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/media"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// Profile is the public "about me" page.
type Profile struct {
	pg.Model
	FullName       string         `json:"full_name"`
	Role           *string        `json:"role"`
	AboutMe        *string        `json:"about_me"`
	Description    *string        `json:"description"`
	Availability   *string        `json:"availability"`
	ProfileImageID *uuid.UUID     `json:"profile_image_id"`
	SupportLinks   []*SupportLink `json:"support_links,omitempty"`
	Achievements   []*Achievement `json:"achievements,omitempty"`
	Experiences    []*Experience  `json:"experiences,omitempty"`
	Skills         []*Skill       `json:"technical_skills,omitempty"`
	Image          *media.Media   `json:"image,omitempty"`
}

func (p *Profile) Validate() error {
	p.FullName = strings.TrimSpace(p.FullName)
	return required("full_name", p.FullName, 255)
}

// Skill is a technical skill shown on profiles.
type Skill struct {
	pg.Model
	Title    string  `json:"title"`
	Category *string `json:"category"`
}

func (s *Skill) Validate() error {
	s.Title = strings.TrimSpace(s.Title)
	s.Category = trimmed(s.Category)
	return required("title", s.Title, 100)
}

type SupportLink struct {
	pg.Model
	ProfileID uuid.UUID `json:"profile_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Icon      *string   `json:"icon"`
}

func (l *SupportLink) Validate() error {
	l.Title = strings.TrimSpace(l.Title)
	l.URL = strings.TrimSpace(l.URL)
	if err := required("title", l.Title, 255); err != nil {
		return err
	}
	return required("url", l.URL, 0)
}

type Achievement struct {
	pg.Model
	ProfileID uuid.UUID `json:"profile_id"`
	Title     string    `json:"title"`
}

func (a *Achievement) Validate() error {
	a.Title = strings.TrimSpace(a.Title)
	return required("title", a.Title, 0)
}

type Experience struct {
	pg.Model
	ProfileID        uuid.UUID  `json:"profile_id"`
	Title            string     `json:"title"`
	Company          *string    `json:"company"`
	Description      *string    `json:"description"`
	FromDate         *Date      `json:"from_date"`
	ToDate           *Date      `json:"to_date"`
	Responsibilities StringList `json:"responsibilities"`
}

func (e *Experience) Validate() error {
	e.Title = strings.TrimSpace(e.Title)
	e.Company = trimmed(e.Company)
	if err := required("title", e.Title, 255); err != nil {
		return err
	}
	if e.FromDate != nil && e.ToDate != nil && e.ToDate.Before(e.FromDate.Time) {
		return fmt.Errorf("%w: to_date is before from_date", pg.ErrValidation)
	}
	if e.Responsibilities == nil {
		e.Responsibilities = StringList{}
	}
	return nil
}

func newProfileTable() *pg.Table[Profile] {
	t := pg.NewTable("profiles", func(p *Profile) *pg.Model { return &p.Model },
		pg.Mutable("full_name", func(p *Profile) *string { return &p.FullName }),
		pg.Optional("role", func(p *Profile) **string { return &p.Role }),
		pg.Optional("about_me", func(p *Profile) **string { return &p.AboutMe }),
		pg.Optional("description", func(p *Profile) **string { return &p.Description }),
		pg.Optional("availability", func(p *Profile) **string { return &p.Availability }),
		pg.Optional("profile_image_id", func(p *Profile) **uuid.UUID { return &p.ProfileImageID }),
	)
	t.Check = (*Profile).Validate
	return t
}

func newSkillTable() *pg.Table[Skill] {
	t := pg.NewTable("skills", func(s *Skill) *pg.Model { return &s.Model },
		pg.Mutable("title", func(s *Skill) *string { return &s.Title }),
		pg.Optional("category", func(s *Skill) **string { return &s.Category }),
	)
	t.OrderBy = "title, id"
	t.Search = []string{"title", "category"}
	t.Check = (*Skill).Validate
	return t
}

func newSupportLinkTable() *pg.Table[SupportLink] {
	t := pg.NewTable("support_links", func(l *SupportLink) *pg.Model { return &l.Model },
		pg.ReadOnly("profile_id", func(l *SupportLink) *uuid.UUID { return &l.ProfileID }),
		pg.Mutable("title", func(l *SupportLink) *string { return &l.Title }),
		pg.Mutable("url", func(l *SupportLink) *string { return &l.URL }),
		pg.Optional("icon", func(l *SupportLink) **string { return &l.Icon }),
	)
	t.OrderBy = "created_at, id"
	t.Check = (*SupportLink).Validate
	return t
}

func newAchievementTable() *pg.Table[Achievement] {
	t := pg.NewTable("achievements", func(a *Achievement) *pg.Model { return &a.Model },
		pg.ReadOnly("profile_id", func(a *Achievement) *uuid.UUID { return &a.ProfileID }),
		pg.Mutable("title", func(a *Achievement) *string { return &a.Title }),
	)
	t.OrderBy = "created_at, id"
	t.Check = (*Achievement).Validate
	return t
}

func newExperienceTable() *pg.Table[Experience] {
	t := pg.NewTable("experiences", func(e *Experience) *pg.Model { return &e.Model },
		pg.ReadOnly("profile_id", func(e *Experience) *uuid.UUID { return &e.ProfileID }),
		pg.Mutable("title", func(e *Experience) *string { return &e.Title }),
		pg.Optional("company", func(e *Experience) **string { return &e.Company }),
		pg.Optional("description", func(e *Experience) **string { return &e.Description }),
		pg.Optional("from_date", func(e *Experience) **Date { return &e.FromDate }),
		pg.Optional("to_date", func(e *Experience) **Date { return &e.ToDate }),
		pg.Mutable("responsibilities", func(e *Experience) *StringList { return &e.Responsibilities }),
	)
	t.OrderBy = "from_date desc nulls last, id"
	t.Check = (*Experience).Validate
	return t
}
