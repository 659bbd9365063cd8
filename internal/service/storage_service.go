package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"taskboard/internal/model"
	"taskboard/internal/repository"
	"taskboard/internal/storage"
)

// UploadGrant is the handle a client needs to upload one file.
type UploadGrant struct {
	UploadURL string    `json:"uploadUrl"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StorageOptions configures StorageService.
type StorageOptions struct {
	PublicURL string
	GrantTTL  time.Duration
	MaxBytes  int64
}

// StorageService issues upload grants and stores and serves uploaded images.
type StorageService struct {
	blobRepo *repository.BlobRepository
	files    *storage.FileStore
	opts     StorageOptions
	now      func() time.Time
}

func NewStorageService(blobRepo *repository.BlobRepository, files *storage.FileStore, opts StorageOptions) *StorageService {
	return &StorageService{blobRepo: blobRepo, files: files, opts: opts, now: utcNow}
}

// IssueUploadGrant creates a single-use upload token for the caller.
func (s *StorageService) IssueUploadGrant(ctx context.Context, sess Session) (UploadGrant, error) {
	ownerID, err := ResolveCaller(sess)
	if err != nil {
		return UploadGrant{}, err
	}

	grant := model.UploadGrant{
		Token:     newToken(),
		OwnerID:   ownerID,
		ExpiresAt: s.now().Add(s.opts.GrantTTL),
	}
	if err := s.blobRepo.CreateGrant(ctx, &grant); err != nil {
		return UploadGrant{}, err
	}

	return UploadGrant{
		UploadURL: s.opts.PublicURL + "/api/storage/upload?token=" + url.QueryEscape(grant.Token),
		Token:     grant.Token,
		ExpiresAt: grant.ExpiresAt,
	}, nil
}

// Upload stores body as a new blob on behalf of the grant's owner and returns
// the storage ID. The grant is spent even if the body is rejected for size.
func (s *StorageService) Upload(ctx context.Context, token, contentType string, body io.Reader) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%w: please upload an image file", ErrInvalidArgument)
	}

	var grant *model.UploadGrant
	err = s.blobRepo.Transaction(ctx, func(tx *repository.BlobRepository) error {
		var err error
		grant, err = tx.ConsumeGrant(ctx, token, s.now())
		return err
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", fmt.Errorf("%w: upload link is invalid or expired", ErrForbidden)
	case err != nil:
		return "", err
	}

	id, size, err := s.files.Put(body, s.opts.MaxBytes)
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return "", fmt.Errorf("%w: image must be at most %d bytes", ErrInvalidArgument, s.opts.MaxBytes)
	case err != nil:
		return "", err
	}

	blob := model.Blob{
		ID:          id,
		OwnerID:     grant.OwnerID,
		ContentType: mediaType,
		Size:        size,
		CreatedAt:   s.now(),
	}
	if err := s.blobRepo.Create(ctx, &blob); err != nil {
		_ = s.files.Delete(id)
		return "", err
	}
	return id, nil
}

// Blob returns metadata for a stored file.
func (s *StorageService) Blob(ctx context.Context, id string) (*model.Blob, error) {
	blob, err := s.blobRepo.FindByID(ctx, id)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("%w: file %s", ErrNotFound, id)
	case err != nil:
		return nil, fmt.Errorf("find blob: %w", err)
	}
	return blob, nil
}

// Open returns metadata and content for a stored file. The caller closes the reader.
func (s *StorageService) Open(ctx context.Context, id string) (*model.Blob, io.ReadCloser, error) {
	blob, err := s.Blob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.files.Open(id)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil, fmt.Errorf("%w: file %s", ErrNotFound, id)
	case err != nil:
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return blob, f, nil
}

// RemoveUnreferenced deletes a blob's metadata and bytes unless a profile
// references it. The file goes only after the row is gone.
func (s *StorageService) RemoveUnreferenced(ctx context.Context, id string) (bool, error) {
	removed, err := s.blobRepo.DeleteUnreferenced(ctx, id)
	if err != nil || !removed {
		return false, err
	}
	if err := s.files.Delete(id); err != nil {
		return true, err
	}
	return true, nil
}
