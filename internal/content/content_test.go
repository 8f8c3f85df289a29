package content

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Be1newinner/asaan-hai-coding/internal/media"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

func strp(s string) *string { return &s }

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, pg.NewRepository(db, media.NewTable())), mock
}

func TestLeadValidateNormalizes(t *testing.T) {
	l := &Lead{Name: " Ada ", Email: strp(" ADA@Example.com "), Phone: strp(""), Subject: strp("  "), Message: strp(" hi ")}
	require.NoError(t, l.Validate())
	require.Equal(t, "Ada", l.Name)
	require.Equal(t, "ada@example.com", *l.Email)
	require.Nil(t, l.Phone)
	require.Nil(t, l.Subject)
	require.Equal(t, "hi", *l.Message)

	noContact := &Lead{Name: "Bob", Phone: strp(" ")}
	require.ErrorIs(t, noContact.Validate(), pg.ErrValidation)

	phoneOnly := &Lead{Name: "Bob", Phone: strp("+49 30 123")}
	require.NoError(t, phoneOnly.Validate())
}

func TestStringListAndDate(t *testing.T) {
	v, err := StringList(nil).Value()
	require.NoError(t, err)
	require.Equal(t, "[]", v)

	var l StringList
	require.NoError(t, l.Scan([]byte(`["ship","review"]`)))
	require.Equal(t, StringList{"ship", "review"}, l)
	require.NoError(t, l.Scan(nil))
	require.Empty(t, l)

	var e Experience
	require.NoError(t, json.Unmarshal([]byte(`{"title":"Dev","from_date":"2021-04-01","to_date":"2020-01-01"}`), &e))
	require.ErrorIs(t, e.Validate(), pg.ErrValidation)

	out, err := json.Marshal(Date{time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Equal(t, `"2021-04-01"`, string(out))
	require.Error(t, json.Unmarshal([]byte(`"01/04/2021"`), &Date{}))
}

func TestCourseSectionsLoadLessons(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now()
	course, s1, s2 := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("from courses where id = $1")).
		WithArgs(course.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "description", "instructor_id", "difficulty_level", "is_published", "image_id", "created_at", "updated_at"}).
			AddRow(course.String(), "Go", nil, nil, nil, true, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("from sections where course_id in ($1) order by section_order, id")).
		WithArgs(course.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "title", "section_order", "created_at", "updated_at"}).
			AddRow(s1.String(), course.String(), "Basics", 1, now, now).
			AddRow(s2.String(), course.String(), "Concurrency", 2, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("from lessons where section_id in ($1, $2) order by lesson_order, id")).
		WithArgs(s1.String(), s2.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "section_id", "title", "content", "lesson_order", "created_at", "updated_at"}).
			AddRow(uuid.NewString(), s2.String(), "Channels", nil, 1, now, now).
			AddRow(uuid.NewString(), s1.String(), "Types", "body", 1, now, now))

	got, err := s.Courses.Get(context.Background(), course, "sections")
	require.NoError(t, err)
	require.Len(t, got.Sections, 2)
	require.Equal(t, "Types", got.Sections[0].Lessons[0].Title)
	require.Equal(t, "Channels", got.Sections[1].Lessons[0].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileUpdateReplacesSupportLinks(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now()
	profileID, dropped, kept := uuid.New(), uuid.New(), uuid.New()
	// Loaded without eager options, as the update handler does.
	profile := &Profile{Model: pg.Model{ID: profileID}, FullName: "Old"}
	linkCols := []string{"id", "profile_id", "title", "url", "icon", "created_at", "updated_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("update profiles set full_name = $1, updated_at = now() where id = $2")).
		WithArgs("New", profileID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "role", "about_me", "description", "availability", "profile_image_id", "created_at", "updated_at"}).
			AddRow(profileID.String(), "New", nil, nil, nil, nil, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("from support_links where profile_id in ($1) order by created_at, id")).
		WithArgs(profileID.String()).
		WillReturnRows(sqlmock.NewRows(linkCols).
			AddRow(dropped.String(), profileID.String(), "Twitter", "https://twitter.com/x", nil, now, now).
			AddRow(kept.String(), profileID.String(), "GitHub", "https://github.com/x", nil, now, now))
	mock.ExpectExec(regexp.QuoteMeta("delete from support_links where id = $1")).
		WithArgs(dropped.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("update support_links set title = $1, url = $2, icon = $3, updated_at = now() where id = $4")).
		WithArgs("GitHub (main)", "https://github.com/x", nil, kept.String()).
		WillReturnRows(sqlmock.NewRows(linkCols).AddRow(kept.String(), profileID.String(), "GitHub (main)", "https://github.com/x", nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("insert into support_links (id, profile_id, title, url, icon)")).
		WithArgs(sqlmock.AnyArg(), profileID.String(), "Blog", "https://blog.example.com", nil).
		WillReturnRows(sqlmock.NewRows(linkCols).AddRow(uuid.NewString(), profileID.String(), "Blog", "https://blog.example.com", nil, now, now))
	mock.ExpectCommit()

	patch := pg.Patch{
		"full_name": json.RawMessage(`"New"`),
		"support_links": json.RawMessage(`[
			{"id": "` + kept.String() + `", "title": "GitHub (main)"},
			{"title": "Blog", "url": "https://blog.example.com"}
		]`),
	}
	rels := s.ProfileRelations.Extract(patch)
	updated, err := s.Profiles.Update(context.Background(), profile, patch, s.ProfileRelations.Hook(rels))
	require.NoError(t, err)
	require.Equal(t, "New", updated.FullName)
	require.Len(t, updated.SupportLinks, 2)
	require.Equal(t, "GitHub (main)", updated.SupportLinks[0].Title)
	require.Equal(t, "Blog", updated.SupportLinks[1].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileChildPayloadCannotMoveChild(t *testing.T) {
	s, mock := newTestStore(t)
	profile := &Profile{Model: pg.Model{ID: uuid.New()}, FullName: "P"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("update profiles set full_name = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "role", "about_me", "description", "availability", "profile_image_id", "created_at", "updated_at"}).
			AddRow(profile.ID.String(), "P", nil, nil, nil, nil, nil, time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("from achievements where profile_id in ($1)")).
		WithArgs(profile.ID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "profile_id", "title", "created_at", "updated_at"}))
	mock.ExpectRollback()

	patch := pg.Patch{
		"full_name":    json.RawMessage(`"P"`),
		"achievements": json.RawMessage(`[{"title": "x", "profile_id": "` + uuid.NewString() + `"}]`),
	}
	rels := s.ProfileRelations.Extract(patch)
	_, err := s.Profiles.Update(context.Background(), profile, patch, s.ProfileRelations.Hook(rels))
	require.ErrorIs(t, err, pg.ErrInvalidPatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRelationsOnlyPatchLeavesColumns(t *testing.T) {
	s, mock := newTestStore(t)
	now := time.Now()
	profileID, existing := uuid.New(), uuid.New()
	stale := &Profile{Model: pg.Model{ID: profileID}, FullName: "Stale"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("update profiles set updated_at = now() where id = $1")).
		WithArgs(profileID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "role", "about_me", "description", "availability", "profile_image_id", "created_at", "updated_at"}).
			AddRow(profileID.String(), "Current", nil, nil, nil, nil, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("from achievements where profile_id in ($1)")).
		WithArgs(profileID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "profile_id", "title", "created_at", "updated_at"}).
			AddRow(existing.String(), profileID.String(), "Speaker", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("update achievements set title = $1, updated_at = now() where id = $2")).
		WithArgs("Keynote speaker", existing.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "profile_id", "title", "created_at", "updated_at"}).
			AddRow(existing.String(), profileID.String(), "Keynote speaker", now, now))
	mock.ExpectCommit()

	patch := pg.Patch{"achievements": json.RawMessage(`[{"id": "` + existing.String() + `", "title": "Keynote speaker"}]`)}
	rels := s.ProfileRelations.Extract(patch)
	updated, err := s.Profiles.Update(context.Background(), stale, patch, s.ProfileRelations.Hook(rels))
	require.NoError(t, err)
	require.Equal(t, "Current", updated.FullName)
	require.Len(t, updated.Achievements, 1)
	require.Equal(t, existing, updated.Achievements[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
