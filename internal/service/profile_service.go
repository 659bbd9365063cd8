package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"taskboard/internal/model"
	"taskboard/internal/repository"
)

// UploadGranter hands out short-lived permission to upload one file.
type UploadGranter interface {
	IssueUploadGrant(ctx context.Context, sess Session) (UploadGrant, error)
}

// BlobLookup resolves stored file metadata.
type BlobLookup interface {
	Blob(ctx context.Context, id string) (*model.Blob, error)
}

// UserProfile pairs the account record with its optional profile.
type UserProfile struct {
	User    *model.User    `json:"user"`
	Profile *model.Profile `json:"profile"`
}

// ProfileService reads and writes the caller's profile.
type ProfileService struct {
	profileRepo *repository.ProfileRepository
	userRepo    *repository.UserRepository
	uploads     UploadGranter
	blobs       BlobLookup
}

func NewProfileService(profileRepo *repository.ProfileRepository, userRepo *repository.UserRepository, uploads UploadGranter, blobs BlobLookup) *ProfileService {
	return &ProfileService{profileRepo: profileRepo, userRepo: userRepo, uploads: uploads, blobs: blobs}
}

// GetMyProfile returns the caller's profile, or nil when there is no caller or
// no profile yet. It never reports ErrUnauthenticated.
func (s *ProfileService) GetMyProfile(ctx context.Context, sess Session) (*model.Profile, error) {
	if sess.Anonymous() {
		return nil, nil
	}
	profile, err := s.profileRepo.FindByOwner(ctx, sess.UserID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return profile, nil
}

// GetUserProfile returns the caller's account and profile. Unlike
// GetMyProfile it fails when the caller cannot be fully resolved.
func (s *ProfileService) GetUserProfile(ctx context.Context, sess Session) (UserProfile, error) {
	userID, err := ResolveCaller(sess)
	if err != nil {
		return UserProfile{}, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return UserProfile{}, fmt.Errorf("%w: user not found", ErrNotFound)
	case err != nil:
		return UserProfile{}, fmt.Errorf("find user: %w", err)
	}

	profile, err := s.GetMyProfile(ctx, sess)
	if err != nil {
		return UserProfile{}, err
	}
	return UserProfile{User: user, Profile: profile}, nil
}

// UpsertProfile creates the caller's profile or overwrites its name and bio.
func (s *ProfileService) UpsertProfile(ctx context.Context, sess Session, firstName, lastName string, bio *string) (string, error) {
	ownerID, err := ResolveCaller(sess)
	if err != nil {
		return "", err
	}

	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return "", fmt.Errorf("%w: first name and last name are required", ErrInvalidArgument)
	}
	bioValue := ""
	if bio != nil {
		bioValue = strings.TrimSpace(*bio)
	}

	return s.profileRepo.UpsertByOwner(ctx, ownerID, func(tx *repository.ProfileRepository, existing *model.Profile) (string, error) {
		if existing != nil {
			err := tx.Patch(ctx, existing.ID, map[string]interface{}{
				"first_name": firstName,
				"last_name":  lastName,
				"bio":        bioValue,
			})
			return existing.ID, err
		}
		profile := model.Profile{OwnerID: ownerID, FirstName: firstName, LastName: lastName, Bio: bioValue}
		if err := tx.Create(ctx, &profile); err != nil {
			return "", err
		}
		return profile.ID, nil
	})
}

// CreateProfileOnSignup seeds the profile of a freshly registered user. When
// a profile already exists only a non-empty first name is written over it.
func (s *ProfileService) CreateProfileOnSignup(ctx context.Context, sess Session, userID, firstName, lastName string) (string, error) {
	callerID, err := ResolveCaller(sess)
	if err != nil {
		return "", err
	}
	if userID != callerID {
		return "", fmt.Errorf("%w: cannot create a profile for another user", ErrForbidden)
	}

	return s.profileRepo.UpsertByOwner(ctx, userID, func(tx *repository.ProfileRepository, existing *model.Profile) (string, error) {
		if existing != nil {
			if firstName != "" {
				if err := tx.Patch(ctx, existing.ID, map[string]interface{}{"first_name": strings.TrimSpace(firstName)}); err != nil {
					return "", err
				}
			}
			return existing.ID, nil
		}
		profile := model.Profile{
			OwnerID:   userID,
			FirstName: strings.TrimSpace(firstName),
			LastName:  strings.TrimSpace(lastName),
		}
		if err := tx.Create(ctx, &profile); err != nil {
			return "", err
		}
		return profile.ID, nil
	})
}

// IssueAvatarUploadGrant returns an upload URL for a new avatar image.
func (s *ProfileService) IssueAvatarUploadGrant(ctx context.Context, sess Session) (UploadGrant, error) {
	if _, err := ResolveCaller(sess); err != nil {
		return UploadGrant{}, err
	}
	return s.uploads.IssueUploadGrant(ctx, sess)
}

// AttachAvatar points the caller's profile at an uploaded file, creating a
// nameless profile if the caller has none.
func (s *ProfileService) AttachAvatar(ctx context.Context, sess Session, storageID string) (string, error) {
	ownerID, err := ResolveCaller(sess)
	if err != nil {
		return "", err
	}

	blob, err := s.blobs.Blob(ctx, storageID)
	if err != nil {
		return "", err
	}
	if blob.OwnerID != ownerID {
		return "", fmt.Errorf("%w: file was uploaded by another user", ErrForbidden)
	}

	_, err = s.profileRepo.UpsertByOwner(ctx, ownerID, func(tx *repository.ProfileRepository, existing *model.Profile) (string, error) {
		if existing != nil {
			return existing.ID, tx.Patch(ctx, existing.ID, map[string]interface{}{"avatar_ref": storageID})
		}
		profile := model.Profile{OwnerID: ownerID, AvatarRef: &storageID}
		if err := tx.Create(ctx, &profile); err != nil {
			return "", err
		}
		return profile.ID, nil
	})
	if err != nil {
		return "", err
	}
	return storageID, nil
}
