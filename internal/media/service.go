package media

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// PresignTTL is how long a direct upload URL stays valid.
const PresignTTL = 5 * time.Minute

const defaultFolder = "uploads"

// Service applies media rules on top of the repository and object store.
type Service struct {
	repo    *pg.Repository[Media]
	objects ObjectStore
	now     func() time.Time
}

// NewService wires the media repository. objects may be nil when no bucket
// is configured; uploads then fail and permanent deletes skip the object.
func NewService(db *sql.DB, objects ObjectStore) *Service {
	return &Service{repo: pg.NewRepository(db, NewTable()), objects: objects, now: time.Now}
}

func (s *Service) Repository() *pg.Repository[Media] { return s.repo }

// ListFilter holds the media list filters.
type ListFilter struct {
	ResourceType string
	IsPublished  *bool
	// IsDeleted defaults to false so trashed media stay hidden.
	IsDeleted *bool
	Search    string
	Skip      int
	Limit     int
}

func (s *Service) List(ctx context.Context, f ListFilter) (pg.Page[*Media], error) {
	filter := pg.Filter{"is_deleted": false}
	if f.IsDeleted != nil {
		filter["is_deleted"] = *f.IsDeleted
	}
	if f.ResourceType != "" {
		filter["resource_type"] = f.ResourceType
	}
	if f.IsPublished != nil {
		filter["is_published"] = *f.IsPublished
	}
	return s.repo.List(ctx, pg.Query{Filter: filter, Search: f.Search, Skip: f.Skip, Limit: f.Limit})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Media, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a record for an object that already exists in storage.
func (s *Service) Create(ctx context.Context, m *Media) (*Media, error) {
	return s.repo.Create(ctx, m)
}

func (s *Service) Update(ctx context.Context, m *Media, patch pg.Patch) (*Media, error) {
	return s.repo.Update(ctx, m, patch)
}

// UploadInput describes an uploaded file.
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	Folder      string
	Title       *string
	AltText     *string
	ProjectID   *uuid.UUID
	CourseID    *uuid.UUID
}

// Upload puts the object into storage and records it. The object is removed
// again when the record cannot be written.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*Media, error) {
	if s.objects == nil {
		return nil, fmt.Errorf("media: object storage is not configured")
	}
	resource, ext, err := Classify(in.ContentType)
	if err != nil {
		return nil, err
	}
	key := objectKey(in.Folder, ext)
	if err := s.objects.Put(ctx, key, in.ContentType, in.Body, in.Size); err != nil {
		return nil, err
	}
	folder := folderOf(in.Folder)
	m := &Media{
		PublicID:     key,
		ResourceType: resource,
		Format:       &ext,
		SecureURL:    s.objects.PublicURL(key),
		ContentType:  &in.ContentType,
		Bytes:        in.Size,
		Folder:       &folder,
		Title:        in.Title,
		AltText:      in.AltText,
		ProjectID:    in.ProjectID,
		CourseID:     in.CourseID,
	}
	if in.Filename != "" {
		name := path.Base(in.Filename)
		m.OriginalFilename = &name
	}
	created, err := s.repo.Create(ctx, m)
	if err != nil {
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			obs.Warn("orphaned media object", map[string]any{"key": key, "error": delErr})
		}
		return nil, err
	}
	return created, nil
}

// Presigned is a direct upload target.
type Presigned struct {
	UploadURL string    `json:"upload_url"`
	PublicID  string    `json:"public_id"`
	SecureURL string    `json:"secure_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Presign returns a PUT URL for a browser upload. The client registers the
// record through Create once the upload finished.
func (s *Service) Presign(ctx context.Context, contentType, folder string) (Presigned, error) {
	if s.objects == nil {
		return Presigned{}, fmt.Errorf("media: object storage is not configured")
	}
	_, ext, err := Classify(contentType)
	if err != nil {
		return Presigned{}, err
	}
	key := objectKey(folder, ext)
	url, err := s.objects.PresignPut(ctx, key, contentType, PresignTTL)
	if err != nil {
		return Presigned{}, err
	}
	return Presigned{
		UploadURL: url,
		PublicID:  key,
		SecureURL: s.objects.PublicURL(key),
		ExpiresAt: s.now().Add(PresignTTL).UTC(),
	}, nil
}

// SoftDelete hides m and records who trashed it.
func (s *Service) SoftDelete(ctx context.Context, m *Media, by uuid.UUID) (*Media, error) {
	now := s.now().UTC()
	updated := *m
	updated.IsDeleted = true
	updated.DeletedAt = &now
	updated.DeletedBy = &by
	return s.write(ctx, &updated, "is_deleted", "deleted_at", "deleted_by")
}

// Restore clears every trace of a soft delete.
func (s *Service) Restore(ctx context.Context, m *Media) (*Media, error) {
	updated := *m
	updated.IsDeleted = false
	updated.DeletedAt = nil
	updated.DeletedBy = nil
	return s.write(ctx, &updated, "is_deleted", "deleted_at", "deleted_by")
}

func (s *Service) write(ctx context.Context, m *Media, columns ...string) (*Media, error) {
	err := s.repo.InTx(ctx, func(tx *sql.Tx) error {
		return s.repo.UpdateTx(ctx, tx, m, columns...)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Purge deletes the stored object, best effort, and then the record.
func (s *Service) Purge(ctx context.Context, m *Media) error {
	if s.objects != nil {
		if err := s.objects.Delete(ctx, m.PublicID); err != nil {
			obs.Warn("media object delete failed", map[string]any{"public_id": m.PublicID, "error": err})
		}
	}
	return s.repo.Delete(ctx, m.ID)
}

func folderOf(folder string) string {
	folder = strings.Trim(path.Clean("/"+strings.TrimSpace(folder)), "/")
	if folder == "" {
		return defaultFolder
	}
	return folder
}

func objectKey(folder, ext string) string {
	return folderOf(folder) + "/" + uuid.NewString() + "." + ext
}
