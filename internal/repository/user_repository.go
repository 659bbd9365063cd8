package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"taskboard/internal/model"
)

// UserRepository handles CRUD for users and their sessions.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Transaction(ctx context.Context, fn func(tx *UserRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UserRepository{db: tx})
	})
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SetTelegramID binds (or with nil, unbinds) a Telegram account.
func (r *UserRepository) SetTelegramID(ctx context.Context, userID string, telegramID *int64) error {
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		Update("telegram_id", telegramID).Error; err != nil {
		return fmt.Errorf("update telegram id: %w", err)
	}
	return nil
}

// ListLinked returns every user with a Telegram account attached.
func (r *UserRepository) ListLinked(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Where("telegram_id IS NOT NULL").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) CreateSession(ctx context.Context, session *model.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindActiveSession returns the session if it exists and has not expired at now.
func (r *UserRepository) FindActiveSession(ctx context.Context, sessionID string, now time.Time) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).Where("id = ? AND expires_at > ?", sessionID, now).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *UserRepository) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", sessionID).Delete(&model.Session{}).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *UserRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *UserRepository) CreateLinkCode(ctx context.Context, code *model.TelegramLinkCode) error {
	if err := r.db.WithContext(ctx).Create(code).Error; err != nil {
		return fmt.Errorf("create link code: %w", err)
	}
	return nil
}

// ConsumeLinkCode deletes an unexpired code and returns it.
func (r *UserRepository) ConsumeLinkCode(ctx context.Context, code string, now time.Time) (*model.TelegramLinkCode, error) {
	var link model.TelegramLinkCode
	db := r.db.WithContext(ctx)
	if err := db.Where("code = ? AND expires_at > ?", code, now).First(&link).Error; err != nil {
		return nil, err
	}
	if err := db.Where("code = ?", code).Delete(&model.TelegramLinkCode{}).Error; err != nil {
		return nil, fmt.Errorf("consume link code: %w", err)
	}
	return &link, nil
}

func (r *UserRepository) DeleteExpiredLinkCodes(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.TelegramLinkCode{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired link codes: %w", res.Error)
	}
	return res.RowsAffected, nil
}
