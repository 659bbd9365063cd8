package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"taskboard/internal/model"
)

// ProfileRepository manages user profiles.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Transaction(ctx context.Context, fn func(tx *ProfileRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ProfileRepository{db: tx})
	})
}

func (r *ProfileRepository) FindByOwner(ctx context.Context, ownerID string) (*model.Profile, error) {
	var profile model.Profile
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepository) Create(ctx context.Context, profile *model.Profile) error {
	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (r *ProfileRepository) Patch(ctx context.Context, profileID string, updates map[string]interface{}) error {
	if err := r.db.WithContext(ctx).Model(&model.Profile{}).Where("id = ?", profileID).Updates(updates).Error; err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// UpsertByOwner loads the owner's profile (nil when there is none) and hands it
// to fn inside a transaction. fn patches or inserts and returns the profile ID.
// The unique index on owner_id turns a lost insert race into ErrDuplicatedKey;
// the whole step is then replayed once, which finds the winner's row and patches it.
func (r *ProfileRepository) UpsertByOwner(ctx context.Context, ownerID string, fn func(tx *ProfileRepository, existing *model.Profile) (string, error)) (string, error) {
	var id string
	attempt := func() error {
		return r.Transaction(ctx, func(tx *ProfileRepository) error {
			existing, err := tx.FindByOwner(ctx, ownerID)
			switch {
			case err == nil:
			case errors.Is(err, gorm.ErrRecordNotFound):
				existing = nil
			default:
				return fmt.Errorf("find profile: %w", err)
			}
			id, err = fn(tx, existing)
			return err
		})
	}

	err := attempt()
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = attempt()
	}
	if err != nil {
		return "", err
	}
	return id, nil
}
