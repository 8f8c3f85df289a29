package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/Be1newinner/asaan-hai-coding/internal/config"
	"github.com/Be1newinner/asaan-hai-coding/internal/content"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

type stubCompleter struct {
	name string
	text string
	err  error

	mu      sync.Mutex
	prompts []string
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.err != nil {
		return Completion{}, s.err
	}
	return Completion{Model: s.name, Text: s.text, PromptTokens: 11, CompletionTokens: 22}, nil
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, time.Hour)
	a, b, d := &stubCompleter{name: "a"}, &stubCompleter{name: "b"}, &stubCompleter{name: "d"}
	c.Put(Key{"k", "a"}, a)
	c.Put(Key{"k", "b"}, b)
	if _, ok := c.Get(Key{"k", "a"}); !ok {
		t.Fatalf("expected a to be cached")
	}
	c.Put(Key{"k", "d"}, d)

	if _, ok := c.Get(Key{"k", "b"}); ok {
		t.Fatalf("b should have been evicted as least recently used")
	}
	if got, ok := c.Get(Key{"k", "a"}); !ok || got != a {
		t.Fatalf("a should survive, got %v %v", got, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
}

func TestCacheExpiresIdleEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(10, time.Minute)
	c.now = func() time.Time { return now }

	c.Put(Key{"k", "old"}, &stubCompleter{})
	now = now.Add(40 * time.Second)
	c.Put(Key{"k", "new"}, &stubCompleter{})
	now = now.Add(30 * time.Second)

	if _, ok := c.Get(Key{"k", "old"}); ok {
		t.Fatalf("old entry should have expired")
	}
	if _, ok := c.Get(Key{"k", "new"}); !ok {
		t.Fatalf("new entry should still be live")
	}
	// A hit refreshes the idle clock.
	now = now.Add(50 * time.Second)
	if _, ok := c.Get(Key{"k", "new"}); !ok {
		t.Fatalf("touched entry should still be live")
	}
}

func TestCacheDefaultsAndConcurrentUse(t *testing.T) {
	c := NewCache(0, 0)
	if c.capacity != DefaultCacheSize || c.ttl != DefaultCacheTTL {
		t.Fatalf("defaults not applied: %d %s", c.capacity, c.ttl)
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := Key{APIKey: "k", Model: string(rune('a' + i%4))}
			if _, ok := c.Get(k); !ok {
				c.Put(k, &stubCompleter{})
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 4 {
		t.Fatalf("len = %d, want 4", c.Len())
	}
}

func TestClassifyUpstreamErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"api key message", &openai.APIError{Message: "API key not valid. Please pass a valid API key.", HTTPStatusCode: 400}, CodeAPIKeyExpired, http.StatusUnauthorized},
		{"quota", &openai.APIError{Message: "Resource has been exhausted (e.g. check quota).", HTTPStatusCode: 429}, CodeRateLimit, http.StatusTooManyRequests},
		{"permission", &openai.APIError{Message: "Permission denied on resource", HTTPStatusCode: 403}, CodeNotAllowed, http.StatusForbidden},
		{"other", &openai.APIError{Message: "model not found", HTTPStatusCode: 404}, CodeInvalidArgument, http.StatusBadRequest},
		{"reason from array body", &openai.RequestError{
			HTTPStatusCode: 400,
			Err:            errors.New("decode"),
			Body:           []byte(`[{"error":{"code":400,"message":"bad input","status":"INVALID_ARGUMENT","details":[{"@type":"type.googleapis.com/google.rpc.ErrorInfo","reason":"API_KEY_INVALID"}]}}]`),
		}, CodeAPIKeyExpired, http.StatusUnauthorized},
		{"opaque body", &openai.RequestError{HTTPStatusCode: 500, Err: errors.New("upstream exploded"), Body: []byte("<html>")}, CodeInvalidArgument, http.StatusBadRequest},
		{"transport", errors.New("dial tcp: connection refused"), CodeRequestFailed, http.StatusBadGateway},
		{"missing key", ErrNoAPIKey, CodeAPIKeyExpired, http.StatusUnauthorized},
		{"unparseable", ErrUnparseable, CodeError, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ue := Classify(tc.err)
			if ue.Code != tc.code || ue.Status != tc.status {
				t.Fatalf("got %s/%d, want %s/%d", ue.Code, ue.Status, tc.code, tc.status)
			}
			if _, err := uuid.Parse(ue.CorrelationID); err != nil {
				t.Fatalf("correlation id %q: %v", ue.CorrelationID, err)
			}
			if strings.Contains(ue.Error(), "exploded") || strings.Contains(ue.Detail, "API key not valid") {
				t.Fatalf("upstream text leaked: %s", ue.Error())
			}
		})
	}
}

func TestClassifyKeepsExistingUpstreamError(t *testing.T) {
	first := Classify(ErrNoAPIKey)
	again := Classify(first)
	if again != first {
		t.Fatalf("expected the same error back")
	}
}

func TestParseDrafts(t *testing.T) {
	lesson := uuid.New()
	fenced := "```json\n[{\"lesson_id\":\"" + lesson.String() + "\",\"content\":\"# Hello\"}]\n```"
	drafts, err := ParseDrafts(fenced, lesson)
	require.NoError(t, err)
	require.Equal(t, "# Hello", Pick(drafts, lesson).Content)

	drafts, err = ParseDrafts("## Plain markdown\n\nbody", lesson)
	require.NoError(t, err)
	require.Equal(t, lesson.String(), drafts[0].LessonID)
	require.Equal(t, "## Plain markdown\n\nbody", drafts[0].Content)

	_, err = ParseDrafts(`[{"lesson_id": "x", "content": `, lesson)
	require.ErrorIs(t, err, ErrUnparseable)

	_, err = ParseDrafts(`[{"lesson_id": "x", "content": "  "}]`, lesson)
	require.ErrorIs(t, err, ErrUnparseable)

	_, err = ParseDrafts("```\n```", lesson)
	require.ErrorIs(t, err, ErrUnparseable)
}

func TestPickFallsBackToFirst(t *testing.T) {
	drafts := []Draft{{LessonID: "1", Content: "a"}, {LessonID: "2", Content: "b"}}
	if got := Pick(drafts, uuid.New()); got.Content != "a" {
		t.Fatalf("got %q", got.Content)
	}
}

func TestCoursePromptListsLessons(t *testing.T) {
	lessonID := uuid.New()
	course := sampleCourse(lessonID)
	prompt, err := CoursePrompt(course, lessonID, 3000)
	require.NoError(t, err)
	require.Contains(t, prompt, "Go Basics")
	require.Contains(t, prompt, lessonID.String())
	require.Contains(t, prompt, "3000 tokens")
	require.NotContains(t, prompt, "existing body")
}

type fakeCourses struct{ course *content.Course }

func (f fakeCourses) Get(ctx context.Context, id uuid.UUID, eager ...string) (*content.Course, error) {
	if f.course == nil || f.course.ID != id {
		return nil, nil
	}
	return f.course, nil
}

type fakeLessons struct {
	patched pg.Patch
}

func (f *fakeLessons) Update(ctx context.Context, e *content.Lesson, patch pg.Patch, hooks ...pg.TxHook[content.Lesson]) (*content.Lesson, error) {
	f.patched = patch
	out := *e
	if raw, ok := patch["content"]; ok {
		s := strings.Trim(string(raw), `"`)
		out.Content = &s
	}
	return &out, nil
}

func sampleCourse(lessonID uuid.UUID) *content.Course {
	body := "existing body"
	c := &content.Course{Title: "Go Basics"}
	c.ID = uuid.New()
	s := &content.Section{CourseID: c.ID, Title: "Intro", SectionOrder: 1}
	l := &content.Lesson{SectionID: s.ID, Title: "Variables", LessonOrder: 1, Content: &body}
	l.ID = lessonID
	s.Lessons = []*content.Lesson{l}
	c.Sections = []*content.Section{s}
	return c
}

func newTestGenerator(stub *stubCompleter, built *[]Key) *Generator {
	cfg := config.LLMConfig{APIKey: "cfg-key", Model: "cfg-model", MaxTokens: 1200}
	return NewGenerator(cfg, NewCache(4, time.Hour), func(baseURL string, k Key) Completer {
		*built = append(*built, k)
		return stub
	})
}

func TestDrafterPersistsGeneratedContent(t *testing.T) {
	lessonID := uuid.New()
	course := sampleCourse(lessonID)
	stub := &stubCompleter{name: "cfg-model", text: `[{"lesson_id":"` + lessonID.String() + `","content":"fresh"}]`}
	var built []Key
	lessons := &fakeLessons{}
	d := NewDrafter(fakeCourses{course}, lessons, newTestGenerator(stub, &built))

	res, err := d.Draft(context.Background(), DraftRequest{CourseID: course.ID, LessonID: lessonID, Persist: true})
	require.NoError(t, err)
	require.True(t, res.Persisted)
	require.Equal(t, "fresh", res.Content)
	require.Equal(t, "fresh", *res.Lesson.Content)
	require.JSONEq(t, `"fresh"`, string(lessons.patched["content"]))
	require.Equal(t, 11, res.InputTokens)

	// A second call with the same credentials reuses the cached client.
	_, err = d.Draft(context.Background(), DraftRequest{CourseID: course.ID, LessonID: lessonID})
	require.NoError(t, err)
	require.Equal(t, []Key{{APIKey: "cfg-key", Model: "cfg-model"}}, built)

	// Header overrides select a different client.
	_, err = d.Draft(context.Background(), DraftRequest{CourseID: course.ID, LessonID: lessonID, Override: Key{APIKey: "hdr", Model: "m2"}})
	require.NoError(t, err)
	require.Len(t, built, 2)
}

func TestDrafterWithoutPersistLeavesLesson(t *testing.T) {
	lessonID := uuid.New()
	course := sampleCourse(lessonID)
	stub := &stubCompleter{name: "m", text: "Plain notes"}
	var built []Key
	lessons := &fakeLessons{}
	d := NewDrafter(fakeCourses{course}, lessons, newTestGenerator(stub, &built))

	res, err := d.Draft(context.Background(), DraftRequest{CourseID: course.ID, LessonID: lessonID})
	require.NoError(t, err)
	require.False(t, res.Persisted)
	require.Equal(t, "Plain notes", res.Content)
	require.Nil(t, lessons.patched)
}

func TestDrafterFailures(t *testing.T) {
	lessonID := uuid.New()
	course := sampleCourse(lessonID)
	var built []Key

	d := NewDrafter(fakeCourses{course}, &fakeLessons{}, newTestGenerator(&stubCompleter{}, &built))
	_, err := d.Draft(context.Background(), DraftRequest{CourseID: uuid.New(), LessonID: lessonID})
	require.ErrorIs(t, err, ErrCourseNotFound)
	_, err = d.Draft(context.Background(), DraftRequest{CourseID: course.ID, LessonID: uuid.New()})
	require.ErrorIs(t, err, ErrLessonNotFound)

	failing := &stubCompleter{err: &openai.APIError{Message: "Quota exceeded", HTTPStatusCode: 429}}
	d = NewDrafter(fakeCourses{course}, &fakeLessons{}, newTestGenerator(failing, &built))
	_, err = d.Draft(context.Background(), DraftRequest{CourseID: course.ID, LessonID: lessonID})
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, CodeRateLimit, ue.Code)

	broken := &stubCompleter{text: `[{"lesson_id":`}
	d = NewDrafter(fakeCourses{course}, &fakeLessons{}, newTestGenerator(broken, &built))
	_, err = d.Draft(context.Background(), DraftRequest{CourseID: course.ID, LessonID: lessonID})
	require.ErrorAs(t, err, &ue)
	require.Equal(t, CodeError, ue.Code)
	require.Equal(t, http.StatusBadGateway, ue.Status)
}

func TestGenerateWithoutKey(t *testing.T) {
	g := NewGenerator(config.LLMConfig{Model: "m"}, nil, func(string, Key) Completer {
		t.Fatalf("no client should be built without a key")
		return nil
	})
	_, err := g.Generate(context.Background(), "p", Key{})
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, http.StatusUnauthorized, ue.Status)
}
