package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/content"
	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

var (
	ErrCourseNotFound = errors.New("llm: course not found")
	ErrLessonNotFound = errors.New("llm: lesson not found in course")
)

// CourseSource loads a course with its eager relations.
type CourseSource interface {
	Get(ctx context.Context, id uuid.UUID, eager ...string) (*content.Course, error)
}

// LessonWriter applies a patch to a lesson.
type LessonWriter interface {
	Update(ctx context.Context, e *content.Lesson, patch pg.Patch, hooks ...pg.TxHook[content.Lesson]) (*content.Lesson, error)
}

// DraftRequest asks for the body of one lesson.
type DraftRequest struct {
	CourseID uuid.UUID `json:"course_id"`
	LessonID uuid.UUID `json:"lesson_id"`
	Persist  bool      `json:"persist"`
	Override Key       `json:"-"`
}

// DraftResult is the generated body and, when persisted, the stored lesson.
type DraftResult struct {
	CourseID     uuid.UUID       `json:"course_id"`
	LessonID     uuid.UUID       `json:"lesson_id"`
	Content      string          `json:"content"`
	Model        string          `json:"model"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	Persisted    bool            `json:"persisted"`
	Lesson       *content.Lesson `json:"lesson,omitempty"`
}

// Drafter turns a course outline into lesson content.
type Drafter struct {
	courses   CourseSource
	lessons   LessonWriter
	gen       *Generator
	maxTokens int
}

func NewDrafter(courses CourseSource, lessons LessonWriter, gen *Generator) *Drafter {
	return &Drafter{courses: courses, lessons: lessons, gen: gen, maxTokens: gen.maxTokens}
}

// Draft generates the lesson body and optionally stores it.
func (d *Drafter) Draft(ctx context.Context, req DraftRequest) (DraftResult, error) {
	course, err := d.courses.Get(ctx, req.CourseID, "sections")
	if err != nil {
		return DraftResult{}, fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return DraftResult{}, ErrCourseNotFound
	}
	lesson := findLesson(course, req.LessonID)
	if lesson == nil {
		return DraftResult{}, ErrLessonNotFound
	}

	prompt, err := CoursePrompt(course, req.LessonID, d.maxTokens)
	if err != nil {
		return DraftResult{}, err
	}
	out, err := d.gen.Generate(ctx, prompt, req.Override)
	if err != nil {
		return DraftResult{}, err
	}
	obs.LLMTokens(out.Model, out.PromptTokens, out.CompletionTokens)
	obs.Info("lesson drafted", map[string]any{
		"course_id":     req.CourseID.String(),
		"lesson_id":     req.LessonID.String(),
		"model":         out.Model,
		"input_tokens":  out.PromptTokens,
		"output_tokens": out.CompletionTokens,
	})

	drafts, err := ParseDrafts(out.Text, req.LessonID)
	if err != nil {
		return DraftResult{}, Classify(err)
	}
	draft := Pick(drafts, req.LessonID)

	res := DraftResult{
		CourseID:     req.CourseID,
		LessonID:     req.LessonID,
		Content:      draft.Content,
		Model:        out.Model,
		InputTokens:  out.PromptTokens,
		OutputTokens: out.CompletionTokens,
	}
	if !req.Persist {
		return res, nil
	}
	patch := pg.Patch{}
	if err := patch.Set("content", draft.Content); err != nil {
		return DraftResult{}, err
	}
	saved, err := d.lessons.Update(ctx, lesson, patch)
	if err != nil {
		return DraftResult{}, fmt.Errorf("save lesson: %w", err)
	}
	res.Persisted, res.Lesson = true, saved
	return res, nil
}

func findLesson(c *content.Course, id uuid.UUID) *content.Lesson {
	for _, s := range c.Sections {
		for _, l := range s.Lessons {
			if l.ID == id {
				return l
			}
		}
	}
	return nil
}
