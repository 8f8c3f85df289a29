package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/content"
)

const promptTemplate = `You are an expert course content creator. Generate easy-to-understand, detailed lesson notes in Markdown format with practical examples.

Course details: %s
Build lesson content for the lesson with id %s.
Keep the notes within roughly %d tokens.

Requirements:
- Output only a JSON array with this structure:
[{"lesson_id": "<id>", "content": "<Markdown detailed notes>"}]
- The notes should be clear, detailed, and easy to follow for learners.
- Include real-world development examples and code snippets relevant to MERN, NestJS, Next.js, and Python.
- Use simple language appropriate for developers refining their skills.
- Format content using Markdown with appropriate headings, bullet points, and code blocks.
- Make sure the output is valid JSON.
`

// outline is the part of a course the model sees.
type outline struct {
	Title       string           `json:"title"`
	Description *string          `json:"description,omitempty"`
	Difficulty  *string          `json:"difficulty_level,omitempty"`
	Sections    []sectionOutline `json:"sections"`
}

type sectionOutline struct {
	Title   string          `json:"title"`
	Order   int             `json:"section_order"`
	Lessons []lessonOutline `json:"lessons"`
}

type lessonOutline struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Order int       `json:"lesson_order"`
}

// CoursePrompt renders the drafting prompt for one lesson of c. Existing
// lesson bodies are left out to keep the prompt small.
func CoursePrompt(c *content.Course, lessonID uuid.UUID, maxTokens int) (string, error) {
	o := outline{Title: c.Title, Description: c.Description, Difficulty: c.DifficultyLevel, Sections: []sectionOutline{}}
	for _, s := range c.Sections {
		so := sectionOutline{Title: s.Title, Order: s.SectionOrder, Lessons: []lessonOutline{}}
		for _, l := range s.Lessons {
			so.Lessons = append(so.Lessons, lessonOutline{ID: l.ID, Title: l.Title, Order: l.LessonOrder})
		}
		o.Sections = append(o.Sections, so)
	}
	data, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("encode course outline: %w", err)
	}
	return fmt.Sprintf(promptTemplate, data, lessonID, maxTokens), nil
}

// Draft is one generated lesson body.
type Draft struct {
	LessonID string `json:"lesson_id"`
	Content  string `json:"content"`
}

// ParseDrafts reads the model answer. A JSON array of drafts is preferred;
// a plain Markdown answer becomes a single draft for lessonID.
func ParseDrafts(text string, lessonID uuid.UUID) ([]Draft, error) {
	body := stripFences(text)
	if body == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrUnparseable)
	}
	if strings.HasPrefix(body, "[") || strings.HasPrefix(body, "{") {
		var drafts []Draft
		if err := json.Unmarshal([]byte(body), &drafts); err == nil {
			return nonEmpty(drafts)
		}
		var single Draft
		if err := json.Unmarshal([]byte(body), &single); err == nil && single.Content != "" {
			return []Draft{single}, nil
		}
		if strings.HasPrefix(body, "[") {
			return nil, fmt.Errorf("%w: malformed draft array", ErrUnparseable)
		}
	}
	return []Draft{{LessonID: lessonID.String(), Content: body}}, nil
}

// Pick returns the draft for lessonID, or the first draft when the model
// did not echo ids back.
func Pick(drafts []Draft, lessonID uuid.UUID) Draft {
	want := lessonID.String()
	for _, d := range drafts {
		if d.LessonID == want {
			return d
		}
	}
	return drafts[0]
}

func nonEmpty(drafts []Draft) ([]Draft, error) {
	out := drafts[:0]
	for _, d := range drafts {
		if strings.TrimSpace(d.Content) != "" {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no lesson content", ErrUnparseable)
	}
	return out, nil
}

// stripFences removes a surrounding ``` or ```json block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
