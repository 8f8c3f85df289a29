package content

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/media"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// Course is a published or draft course.
type Course struct {
	pg.Model
	Title           string         `json:"title"`
	Description     *string        `json:"description"`
	InstructorID    *uuid.UUID     `json:"instructor_id"`
	DifficultyLevel *string        `json:"difficulty_level"`
	IsPublished     bool           `json:"is_published"`
	ImageID         *uuid.UUID     `json:"image_id"`
	Sections        []*Section     `json:"sections,omitempty"`
	Image           *media.Media   `json:"image,omitempty"`
	Gallery         []*media.Media `json:"gallery,omitempty"`
}

func (c *Course) Validate() error {
	c.Title = strings.TrimSpace(c.Title)
	c.Description = trimmed(c.Description)
	c.DifficultyLevel = trimmed(c.DifficultyLevel)
	if err := required("title", c.Title, 255); err != nil {
		return err
	}
	return maxLen("difficulty_level", c.DifficultyLevel, 20)
}

// Section groups the lessons of a course.
type Section struct {
	pg.Model
	CourseID     uuid.UUID `json:"course_id"`
	Title        string    `json:"title"`
	SectionOrder int       `json:"section_order"`
	Lessons      []*Lesson `json:"lessons,omitempty"`
}

func (s *Section) Validate() error {
	s.Title = strings.TrimSpace(s.Title)
	if err := required("title", s.Title, 255); err != nil {
		return err
	}
	if s.CourseID == uuid.Nil {
		return requiredRef("course_id")
	}
	return positive("section_order", s.SectionOrder)
}

// Lesson is one unit of a section.
type Lesson struct {
	pg.Model
	SectionID   uuid.UUID `json:"section_id"`
	Title       string    `json:"title"`
	Content     *string   `json:"content"`
	LessonOrder int       `json:"lesson_order"`
}

func (l *Lesson) Validate() error {
	l.Title = strings.TrimSpace(l.Title)
	if err := required("title", l.Title, 255); err != nil {
		return err
	}
	if l.SectionID == uuid.Nil {
		return requiredRef("section_id")
	}
	return positive("lesson_order", l.LessonOrder)
}

func newCourseTable() *pg.Table[Course] {
	t := pg.NewTable("courses", func(c *Course) *pg.Model { return &c.Model },
		pg.Mutable("title", func(c *Course) *string { return &c.Title }),
		pg.Optional("description", func(c *Course) **string { return &c.Description }),
		pg.Optional("instructor_id", func(c *Course) **uuid.UUID { return &c.InstructorID }),
		pg.Optional("difficulty_level", func(c *Course) **string { return &c.DifficultyLevel }),
		pg.Mutable("is_published", func(c *Course) *bool { return &c.IsPublished }),
		pg.Optional("image_id", func(c *Course) **uuid.UUID { return &c.ImageID }),
	)
	t.Search = []string{"title", "description"}
	t.Check = (*Course).Validate
	return t
}

func newSectionTable() *pg.Table[Section] {
	t := pg.NewTable("sections", func(s *Section) *pg.Model { return &s.Model },
		pg.Mutable("course_id", func(s *Section) *uuid.UUID { return &s.CourseID }),
		pg.Mutable("title", func(s *Section) *string { return &s.Title }),
		pg.Mutable("section_order", func(s *Section) *int { return &s.SectionOrder }),
	)
	t.OrderBy = "section_order, id"
	t.Check = (*Section).Validate
	return t
}

func newLessonTable() *pg.Table[Lesson] {
	t := pg.NewTable("lessons", func(l *Lesson) *pg.Model { return &l.Model },
		pg.Mutable("section_id", func(l *Lesson) *uuid.UUID { return &l.SectionID }),
		pg.Mutable("title", func(l *Lesson) *string { return &l.Title }),
		pg.Optional("content", func(l *Lesson) **string { return &l.Content }),
		pg.Mutable("lesson_order", func(l *Lesson) *int { return &l.LessonOrder }),
	)
	t.OrderBy = "lesson_order, id"
	t.Search = []string{"title"}
	t.Check = (*Lesson).Validate
	return t
}
