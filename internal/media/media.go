// Package media stores image and video records and their objects.
package media

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

const (
	ResourceImage = "image"
	ResourceVideo = "video"
)

var (
	// ErrUnsupportedType marks a content type outside the allow-list.
	ErrUnsupportedType = errors.New("media: unsupported content type")
	// ErrInvalidMedia marks a record that breaks the media rules.
	ErrInvalidMedia = errors.New("media: invalid media")
)

// allowed maps accepted content types to their resource type and extension.
var allowed = map[string]struct{ resource, ext string }{
	"image/jpeg":      {ResourceImage, "jpg"},
	"image/png":       {ResourceImage, "png"},
	"image/webp":      {ResourceImage, "webp"},
	"image/gif":       {ResourceImage, "gif"},
	"video/mp4":       {ResourceVideo, "mp4"},
	"video/webm":      {ResourceVideo, "webm"},
	"video/quicktime": {ResourceVideo, "mov"},
}

// Classify returns the resource type and file extension for contentType.
func Classify(contentType string) (resource, ext string, err error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	a, ok := allowed[ct]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	return a.resource, a.ext, nil
}

// Media is one stored image or video.
type Media struct {
	pg.Model
	PublicID         string     `json:"public_id"`
	ResourceType     string     `json:"resource_type"`
	Format           *string    `json:"format"`
	Version          *int       `json:"version"`
	SecureURL        string     `json:"secure_url"`
	URL              *string    `json:"url"`
	ContentType      *string    `json:"content_type"`
	Bytes            int64      `json:"bytes"`
	Width            *int       `json:"width"`
	Height           *int       `json:"height"`
	DurationMS       *int64     `json:"duration_ms"`
	Folder           *string    `json:"folder"`
	OriginalFilename *string    `json:"original_filename"`
	Title            *string    `json:"title"`
	AltText          *string    `json:"alt_text"`
	Description      *string    `json:"description"`
	IsPublished      bool       `json:"is_published"`
	IsDeleted        bool       `json:"is_deleted"`
	DeletedAt        *time.Time `json:"deleted_at"`
	DeletedBy        *uuid.UUID `json:"deleted_by"`
	ProjectID        *uuid.UUID `json:"project_id"`
	CourseID         *uuid.UUID `json:"course_id"`
}

// Validate applies the media rules.
func (m *Media) Validate() error {
	m.PublicID = strings.TrimSpace(m.PublicID)
	if m.PublicID == "" {
		return invalid("public_id is required")
	}
	if m.ContentType != nil {
		resource, _, err := Classify(*m.ContentType)
		if err != nil {
			return err
		}
		if m.ResourceType == "" {
			m.ResourceType = resource
		}
		if m.ResourceType != resource {
			return invalid("resource_type %q does not match content type %q", m.ResourceType, *m.ContentType)
		}
	}
	switch m.ResourceType {
	case ResourceImage, ResourceVideo:
	default:
		return invalid("resource_type must be image or video")
	}
	if m.ResourceType == ResourceImage && m.DurationMS != nil {
		return invalid("an image cannot have duration_ms")
	}
	if m.DurationMS != nil && *m.DurationMS < 0 {
		return invalid("duration_ms must be >= 0")
	}
	if m.Width != nil && *m.Width <= 0 {
		return invalid("width must be > 0")
	}
	if m.Height != nil && *m.Height <= 0 {
		return invalid("height must be > 0")
	}
	if m.Bytes < 0 {
		return invalid("bytes must be >= 0")
	}
	if strings.TrimSpace(m.SecureURL) == "" {
		return invalid("secure_url is required")
	}
	if m.ProjectID != nil && m.CourseID != nil {
		return invalid("media belongs to a project or a course, not both")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrInvalidMedia, pg.ErrValidation, fmt.Sprintf(format, args...))
}

// NewTable maps Media onto the media table.
func NewTable() *pg.Table[Media] {
	t := pg.NewTable("media", func(m *Media) *pg.Model { return &m.Model },
		pg.ReadOnly("public_id", func(m *Media) *string { return &m.PublicID }),
		pg.ReadOnly("resource_type", func(m *Media) *string { return &m.ResourceType }),
		pg.Optional("format", func(m *Media) **string { return &m.Format }),
		pg.Optional("version", func(m *Media) **int { return &m.Version }),
		pg.ReadOnly("secure_url", func(m *Media) *string { return &m.SecureURL }),
		pg.Optional("url", func(m *Media) **string { return &m.URL }),
		pg.ReadOnly("content_type", func(m *Media) **string { return &m.ContentType }),
		pg.ReadOnly("bytes", func(m *Media) *int64 { return &m.Bytes }),
		pg.Optional("width", func(m *Media) **int { return &m.Width }),
		pg.Optional("height", func(m *Media) **int { return &m.Height }),
		pg.Optional("duration_ms", func(m *Media) **int64 { return &m.DurationMS }),
		pg.Optional("folder", func(m *Media) **string { return &m.Folder }),
		pg.Optional("original_filename", func(m *Media) **string { return &m.OriginalFilename }),
		pg.Optional("title", func(m *Media) **string { return &m.Title }),
		pg.Optional("alt_text", func(m *Media) **string { return &m.AltText }),
		pg.Optional("description", func(m *Media) **string { return &m.Description }),
		pg.Mutable("is_published", func(m *Media) *bool { return &m.IsPublished }),
		pg.ReadOnly("is_deleted", func(m *Media) *bool { return &m.IsDeleted }),
		pg.ReadOnly("deleted_at", func(m *Media) **time.Time { return &m.DeletedAt }),
		pg.ReadOnly("deleted_by", func(m *Media) **uuid.UUID { return &m.DeletedBy }),
		pg.Optional("project_id", func(m *Media) **uuid.UUID { return &m.ProjectID }),
		pg.Optional("course_id", func(m *Media) **uuid.UUID { return &m.CourseID }),
	)
	t.Search = []string{"title", "alt_text", "original_filename"}
	t.Check = (*Media).Validate
	return t
}
