package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/media"
	"github.com/Be1newinner/asaan-hai-coding/internal/relpatch"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

var (
	projectTags   = relpatch.Link{Table: "project_tags", Owner: "project_id", Target: "tag_id"}
	profileSkills = relpatch.Link{Table: "profile_skills", Owner: "profile_id", Target: "skill_id"}
)

// Store holds one repository per content table, with their eager loaders
// and nested relationships registered.
type Store struct {
	Courses      *pg.Repository[Course]
	Sections     *pg.Repository[Section]
	Lessons      *pg.Repository[Lesson]
	Projects     *pg.Repository[Project]
	Details      *pg.Repository[ProjectDetail]
	Tags         *pg.Repository[Tag]
	Profiles     *pg.Repository[Profile]
	Skills       *pg.Repository[Skill]
	SupportLinks *pg.Repository[SupportLink]
	Achievements *pg.Repository[Achievement]
	Experiences  *pg.Repository[Experience]
	Leads        *pg.Repository[Lead]

	ProjectRelations *relpatch.Registry[Project]
	ProfileRelations *relpatch.Registry[Profile]

	media *pg.Repository[media.Media]
}

// NewStore builds the repositories over db. mediaRepo backs images and
// galleries.
func NewStore(db *sql.DB, mediaRepo *pg.Repository[media.Media]) *Store {
	s := &Store{
		Courses:      pg.NewRepository(db, newCourseTable()),
		Sections:     pg.NewRepository(db, newSectionTable()),
		Lessons:      pg.NewRepository(db, newLessonTable()),
		Projects:     pg.NewRepository(db, newProjectTable()),
		Details:      pg.NewRepository(db, newProjectDetailTable()),
		Tags:         pg.NewRepository(db, newTagTable()),
		Profiles:     pg.NewRepository(db, newProfileTable()),
		Skills:       pg.NewRepository(db, newSkillTable()),
		SupportLinks: pg.NewRepository(db, newSupportLinkTable()),
		Achievements: pg.NewRepository(db, newAchievementTable()),
		Experiences:  pg.NewRepository(db, newExperienceTable()),
		Leads:        pg.NewRepository(db, newLeadTable()),
		media:        mediaRepo,
	}
	s.registerCourseLoaders()
	s.registerProjectLoaders()
	s.registerProfileLoaders()
	s.ProjectRelations = relpatch.NewRegistry[Project]().
		Register("tag_ids", relpatch.Links(projectTags,
			func(p *Project) uuid.UUID { return p.ID }, s.Tags,
			func(p *Project, tags []*Tag) { p.Tags = tags })).
		Register("detail", s.upsertDetail)
	profileEager := s.Profiles.Table().Eager
	s.ProfileRelations = relpatch.NewRegistry[Profile]().
		Register("support_links", relpatch.Children(s.SupportLinks, profileEager["support_links"],
			func(p *Profile) relpatch.Collection[SupportLink] { return relpatch.Slice[SupportLink]{P: &p.SupportLinks} },
			func(p *Profile, l *SupportLink) { l.ProfileID = p.ID }, true)).
		Register("achievements", relpatch.Children(s.Achievements, profileEager["achievements"],
			func(p *Profile) relpatch.Collection[Achievement] { return relpatch.Slice[Achievement]{P: &p.Achievements} },
			func(p *Profile, a *Achievement) { a.ProfileID = p.ID }, true)).
		Register("experiences", relpatch.Children(s.Experiences, profileEager["experiences"],
			func(p *Profile) relpatch.Collection[Experience] { return relpatch.Slice[Experience]{P: &p.Experiences} },
			func(p *Profile, e *Experience) { e.ProfileID = p.ID }, true)).
		Register("skill_ids", relpatch.Links(profileSkills,
			func(p *Profile) uuid.UUID { return p.ID }, s.Skills,
			func(p *Profile, skills []*Skill) { p.Skills = skills }))
	return s
}

// visibleMedia drops soft-deleted items when a gallery is filled.
type visibleMedia struct{ p *[]*media.Media }

func (v visibleMedia) Children() []*media.Media { return *v.p }

func (v visibleMedia) SetChildren(items []*media.Media) {
	out := make([]*media.Media, 0, len(items))
	for _, m := range items {
		if !m.IsDeleted {
			out = append(out, m)
		}
	}
	*v.p = out
}

func mediaProject(m *media.Media) uuid.UUID {
	if m.ProjectID == nil {
		return uuid.Nil
	}
	return *m.ProjectID
}

func mediaCourse(m *media.Media) uuid.UUID {
	if m.CourseID == nil {
		return uuid.Nil
	}
	return *m.CourseID
}

func (s *Store) registerCourseLoaders() {
	eager := s.Courses.Table().Eager
	eager["sections"] = func(ctx context.Context, q pg.Querier, courses []*Course) error {
		if err := relpatch.LoadChildren(ctx, q, courses, courseID, s.Sections, "course_id",
			func(sec *Section) uuid.UUID { return sec.CourseID },
			func(c *Course) relpatch.Collection[Section] { return relpatch.Slice[Section]{P: &c.Sections} },
		); err != nil {
			return err
		}
		var sections []*Section
		for _, c := range courses {
			sections = append(sections, c.Sections...)
		}
		if len(sections) == 0 {
			return nil
		}
		return relpatch.LoadChildren(ctx, q, sections, func(sec *Section) uuid.UUID { return sec.ID }, s.Lessons, "section_id",
			func(l *Lesson) uuid.UUID { return l.SectionID },
			func(sec *Section) relpatch.Collection[Lesson] { return relpatch.Slice[Lesson]{P: &sec.Lessons} },
		)
	}
	eager["image"] = func(ctx context.Context, q pg.Querier, courses []*Course) error {
		return relpatch.LoadRefs(ctx, q, courses, func(c *Course) *uuid.UUID { return c.ImageID }, s.media,
			func(c *Course, m *media.Media) { c.Image = m })
	}
	eager["gallery"] = func(ctx context.Context, q pg.Querier, courses []*Course) error {
		return relpatch.LoadChildren(ctx, q, courses, courseID, s.media, "course_id", mediaCourse,
			func(c *Course) relpatch.Collection[media.Media] { return visibleMedia{&c.Gallery} })
	}
}

func courseID(c *Course) uuid.UUID { return c.ID }

func (s *Store) registerProjectLoaders() {
	projectID := func(p *Project) uuid.UUID { return p.ID }
	eager := s.Projects.Table().Eager
	eager["tags"] = func(ctx context.Context, q pg.Querier, projects []*Project) error {
		return relpatch.LoadLinked(ctx, q, projectTags, projects, projectID, s.Tags,
			func(p *Project, tags []*Tag) { p.Tags = tags })
	}
	eager["detail"] = func(ctx context.Context, q pg.Querier, projects []*Project) error {
		return relpatch.LoadChildren(ctx, q, projects, projectID, s.Details, "project_id",
			func(d *ProjectDetail) uuid.UUID { return d.ProjectID },
			func(p *Project) relpatch.Collection[ProjectDetail] { return relpatch.One[ProjectDetail]{P: &p.Detail} })
	}
	eager["thumbnail"] = func(ctx context.Context, q pg.Querier, projects []*Project) error {
		return relpatch.LoadRefs(ctx, q, projects, func(p *Project) *uuid.UUID { return p.ThumbnailImageID }, s.media,
			func(p *Project, m *media.Media) { p.Thumbnail = m })
	}
	eager["gallery"] = func(ctx context.Context, q pg.Querier, projects []*Project) error {
		return relpatch.LoadChildren(ctx, q, projects, projectID, s.media, "project_id", mediaProject,
			func(p *Project) relpatch.Collection[media.Media] { return visibleMedia{&p.Gallery} })
	}
}

func (s *Store) registerProfileLoaders() {
	profileID := func(p *Profile) uuid.UUID { return p.ID }
	eager := s.Profiles.Table().Eager
	eager["support_links"] = func(ctx context.Context, q pg.Querier, profiles []*Profile) error {
		return relpatch.LoadChildren(ctx, q, profiles, profileID, s.SupportLinks, "profile_id",
			func(l *SupportLink) uuid.UUID { return l.ProfileID },
			func(p *Profile) relpatch.Collection[SupportLink] { return relpatch.Slice[SupportLink]{P: &p.SupportLinks} })
	}
	eager["achievements"] = func(ctx context.Context, q pg.Querier, profiles []*Profile) error {
		return relpatch.LoadChildren(ctx, q, profiles, profileID, s.Achievements, "profile_id",
			func(a *Achievement) uuid.UUID { return a.ProfileID },
			func(p *Profile) relpatch.Collection[Achievement] { return relpatch.Slice[Achievement]{P: &p.Achievements} })
	}
	eager["experiences"] = func(ctx context.Context, q pg.Querier, profiles []*Profile) error {
		return relpatch.LoadChildren(ctx, q, profiles, profileID, s.Experiences, "profile_id",
			func(e *Experience) uuid.UUID { return e.ProfileID },
			func(p *Profile) relpatch.Collection[Experience] { return relpatch.Slice[Experience]{P: &p.Experiences} })
	}
	eager["skills"] = func(ctx context.Context, q pg.Querier, profiles []*Profile) error {
		return relpatch.LoadLinked(ctx, q, profileSkills, profiles, profileID, s.Skills,
			func(p *Profile, skills []*Skill) { p.Skills = skills })
	}
	eager["image"] = func(ctx context.Context, q pg.Querier, profiles []*Profile) error {
		return relpatch.LoadRefs(ctx, q, profiles, func(p *Profile) *uuid.UUID { return p.ProfileImageID }, s.media,
			func(p *Profile, m *media.Media) { p.Image = m })
	}
}

// Eager option sets used by the public endpoints.
var (
	CourseEager  = []string{"sections", "image", "gallery"}
	ProjectEager = []string{"tags", "detail", "thumbnail", "gallery"}
	ProfileEager = []string{"support_links", "achievements", "experiences", "skills", "image"}
)

// upsertDetail writes the project's detail row; null removes it.
func (s *Store) upsertDetail(ctx context.Context, q pg.Querier, p *Project, raw json.RawMessage) error {
	existing, err := s.Details.ListByTx(ctx, q, "project_id", p.ID)
	if err != nil {
		return err
	}
	if string(raw) == "null" {
		for _, d := range existing {
			if err := s.Details.DeleteTx(ctx, q, d.ID); err != nil {
				return err
			}
		}
		p.Detail = nil
		return nil
	}
	var patch pg.Patch
	if err := json.Unmarshal(raw, &patch); err != nil || patch == nil {
		return fmt.Errorf("%w: detail must be an object", pg.ErrInvalidPatch)
	}
	if len(existing) == 0 {
		d := &ProjectDetail{ProjectID: p.ID}
		if err := s.Details.Table().Apply(d, patch); err != nil {
			return err
		}
		if err := s.Details.InsertTx(ctx, q, d); err != nil {
			return err
		}
		p.Detail = d
		return nil
	}
	d := existing[0]
	if err := s.Details.Table().Apply(d, patch); err != nil {
		return err
	}
	if len(patch) > 0 {
		if err := s.Details.UpdateTx(ctx, q, d, patch.Keys()...); err != nil {
			return err
		}
	}
	p.Detail = d
	return nil
}

// SaveDetail creates or replaces the detail of p in its own transaction.
func (s *Store) SaveDetail(ctx context.Context, p *Project, raw json.RawMessage) error {
	return s.Projects.InTx(ctx, func(tx *sql.Tx) error {
		return s.ProjectRelations.Apply(ctx, tx, p, "detail", raw)
	})
}
