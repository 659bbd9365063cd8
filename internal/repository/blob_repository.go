package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"taskboard/internal/model"
)

// BlobRepository tracks stored files and the grants that allow uploading them.
type BlobRepository struct {
	db *gorm.DB
}

func NewBlobRepository(db *gorm.DB) *BlobRepository {
	return &BlobRepository{db: db}
}

func (r *BlobRepository) Transaction(ctx context.Context, fn func(tx *BlobRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&BlobRepository{db: tx})
	})
}

func (r *BlobRepository) CreateGrant(ctx context.Context, grant *model.UploadGrant) error {
	if err := r.db.WithContext(ctx).Create(grant).Error; err != nil {
		return fmt.Errorf("create upload grant: %w", err)
	}
	return nil
}

// ConsumeGrant deletes an unexpired grant and returns it. Expired or unknown
// tokens yield gorm.ErrRecordNotFound.
func (r *BlobRepository) ConsumeGrant(ctx context.Context, token string, now time.Time) (*model.UploadGrant, error) {
	var grant model.UploadGrant
	db := r.db.WithContext(ctx)
	if err := db.Where("token = ? AND expires_at > ?", token, now).First(&grant).Error; err != nil {
		return nil, err
	}
	if err := db.Where("token = ?", token).Delete(&model.UploadGrant{}).Error; err != nil {
		return nil, fmt.Errorf("consume upload grant: %w", err)
	}
	return &grant, nil
}

func (r *BlobRepository) DeleteExpiredGrants(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.UploadGrant{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired grants: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *BlobRepository) Create(ctx context.Context, blob *model.Blob) error {
	if err := r.db.WithContext(ctx).Create(blob).Error; err != nil {
		return fmt.Errorf("create blob: %w", err)
	}
	return nil
}

func (r *BlobRepository) FindByID(ctx context.Context, id string) (*model.Blob, error) {
	var blob model.Blob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&blob).Error; err != nil {
		return nil, err
	}
	return &blob, nil
}

// ListOrphans returns blobs created before cutoff that no profile points at.
func (r *BlobRepository) ListOrphans(ctx context.Context, cutoff time.Time) ([]model.Blob, error) {
	var blobs []model.Blob
	err := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Where("id NOT IN (?)", r.db.Model(&model.Profile{}).Select("avatar_ref").Where("avatar_ref IS NOT NULL")).
		Find(&blobs).Error
	if err != nil {
		return nil, fmt.Errorf("list orphan blobs: %w", err)
	}
	return blobs, nil
}

// DeleteUnreferenced removes the blob row unless a profile points at it. The
// check runs in the same statement, so an avatar attached after ListOrphans
// keeps its blob. It reports whether a row was removed.
func (r *BlobRepository) DeleteUnreferenced(ctx context.Context, id string) (bool, error) {
	referenced := r.db.Model(&model.Profile{}).Select("1").Where("avatar_ref = ?", id)
	res := r.db.WithContext(ctx).
		Where("id = ?", id).
		Where("NOT EXISTS (?)", referenced).
		Delete(&model.Blob{})
	if res.Error != nil {
		return false, fmt.Errorf("delete blob: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
