//go:build integration

package content

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Be1newinner/asaan-hai-coding/internal/media"
	"github.com/Be1newinner/asaan-hai-coding/internal/migrate"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
	"github.com/Be1newinner/asaan-hai-coding/migrations"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("ahc"),
		postgres.WithUsername("ahc"),
		postgres.WithPassword("ahc"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := pg.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = migrate.NewManager(db, migrations.SQL(), migrations.Seeds()).Up(ctx)
	require.NoError(t, err)
	return db
}

func newIntegrationStore(t *testing.T) *Store {
	db := startPostgres(t)
	return NewStore(db, media.NewService(db, nil).Repository())
}

func strPtr(s string) *string { return &s }

func TestBulkCreateIsAtomic(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	_, err := s.Tags.CreateBulk(ctx, []*Tag{{Name: "go"}, {Name: "sql"}, {Name: "go"}})
	require.Error(t, err)
	require.True(t, pg.IsIntegrity(err), "expected an integrity error, got %v", err)

	page, err := s.Tags.List(ctx, pg.Query{})
	require.NoError(t, err)
	require.Zero(t, page.Total, "no tag of a failed batch may remain")

	created, err := s.Tags.CreateBulk(ctx, []*Tag{{Name: "go"}, {Name: "sql"}})
	require.NoError(t, err)
	require.Len(t, created, 2)
}

func TestFilterNullSemantics(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	_, err := s.Courses.CreateBulk(ctx, []*Course{
		{Title: "Go basics", DifficultyLevel: strPtr("beginner"), IsPublished: true},
		{Title: "Go internals", DifficultyLevel: strPtr("advanced")},
		{Title: "Untagged"},
	})
	require.NoError(t, err)

	onlyNull, err := s.Courses.List(ctx, pg.Query{Filter: pg.Filter{"difficulty_level": nil}})
	require.NoError(t, err)
	require.EqualValues(t, 1, onlyNull.Total)
	require.Equal(t, "Untagged", onlyNull.Items[0].Title)

	mixed, err := s.Courses.List(ctx, pg.Query{Filter: pg.Filter{"difficulty_level": []any{"beginner", nil}}})
	require.NoError(t, err)
	require.EqualValues(t, 2, mixed.Total)

	// String filter values are sent as text and cast by the server.
	published, err := s.Courses.List(ctx, pg.Query{Filter: pg.Filter{"is_published": "true"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, published.Total)

	searched, err := s.Courses.List(ctx, pg.Query{Search: "INTERNALS"})
	require.NoError(t, err)
	require.EqualValues(t, 1, searched.Total)
}

func TestCourseEagerLoadsSectionsInOrder(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	course, err := s.Courses.Create(ctx, &Course{Title: "Ordered"})
	require.NoError(t, err)
	_, err = s.Sections.CreateBulk(ctx, []*Section{
		{CourseID: course.ID, Title: "Second", SectionOrder: 2},
		{CourseID: course.ID, Title: "First", SectionOrder: 1},
	})
	require.NoError(t, err)

	got, err := s.Courses.Get(ctx, course.ID, CourseEager...)
	require.NoError(t, err)
	require.Len(t, got.Sections, 2)
	require.Equal(t, "First", got.Sections[0].Title)
	require.Equal(t, "Second", got.Sections[1].Title)

	require.NoError(t, s.Courses.Delete(ctx, course.ID))
	gone, err := s.Sections.List(ctx, pg.Query{Filter: pg.Filter{"course_id": course.ID}})
	require.NoError(t, err)
	require.Zero(t, gone.Total, "sections cascade with their course")
}
