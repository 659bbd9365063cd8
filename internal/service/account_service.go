package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"taskboard/internal/auth"
	"taskboard/internal/model"
	"taskboard/internal/repository"
)

// LinkCodeTTL is how long a Telegram link code stays usable.
const LinkCodeTTL = 10 * time.Minute

// AuthResult is returned by sign-up and sign-in.
type AuthResult struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LinkCode is shown to the user and typed into the Telegram bot.
type LinkCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AccountService registers users, signs them in and out, and resolves bearer
// tokens and Telegram chats to sessions.
type AccountService struct {
	userRepo *repository.UserRepository
	tokens   *auth.Tokens
	profiles *ProfileService
	logger   *log.Logger
	now      func() time.Time
}

func NewAccountService(userRepo *repository.UserRepository, tokens *auth.Tokens, profiles *ProfileService, logger *log.Logger) *AccountService {
	return &AccountService{userRepo: userRepo, tokens: tokens, profiles: profiles, logger: logger, now: utcNow}
}

// SignUp creates an account with a password and signs it in. A non-blank
// first name seeds the profile; the account is committed by then, so a failed
// seed is logged and the session is still returned.
func (s *AccountService) SignUp(ctx context.Context, email, password, firstName string) (AuthResult, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return AuthResult{}, fmt.Errorf("%w: a valid email is required", ErrInvalidArgument)
	}
	if len(password) < auth.MinPasswordLength {
		return AuthResult{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidArgument, auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return AuthResult{}, err
	}

	user := model.User{Email: email, PasswordHash: hash}
	err = s.userRepo.Transaction(ctx, func(tx *repository.UserRepository) error {
		_, err := tx.FindByEmail(ctx, email)
		switch {
		case err == nil:
			return fmt.Errorf("%w: an account with this email already exists", ErrConflict)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("find user: %w", err)
		}
		return tx.Create(ctx, &user)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return AuthResult{}, fmt.Errorf("%w: an account with this email already exists", ErrConflict)
	}
	if err != nil {
		return AuthResult{}, err
	}

	result, err := s.startSession(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	if strings.TrimSpace(firstName) != "" {
		sess := Session{UserID: user.ID}
		if _, err := s.profiles.CreateProfileOnSignup(ctx, sess, user.ID, firstName, ""); err != nil {
			s.logger.Error("seed profile on signup", "user", user.ID, "err", err)
		}
	}
	return result, nil
}

// SignIn checks the password and opens a new session. Unknown emails and wrong
// passwords are reported the same way.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return AuthResult{}, fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
	case err != nil:
		return AuthResult{}, fmt.Errorf("find user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return AuthResult{}, fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
	}
	return s.startSession(ctx, user.ID)
}

// SignOut revokes the session behind the caller's token.
func (s *AccountService) SignOut(ctx context.Context, sess Session) error {
	if _, err := ResolveCaller(sess); err != nil {
		return err
	}
	if sess.SessionID == "" {
		return nil
	}
	return s.userRepo.DeleteSession(ctx, sess.SessionID)
}

// LoggedInUser returns the caller's account, or nil for anonymous callers.
func (s *AccountService) LoggedInUser(ctx context.Context, sess Session) (*model.User, error) {
	if sess.Anonymous() {
		return nil, nil
	}
	user, err := s.userRepo.FindByID(ctx, sess.UserID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// Authenticate turns a bearer token into a session. The token must verify and
// its session row must still exist.
func (s *AccountService) Authenticate(ctx context.Context, token string) (Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	session, err := s.userRepo.FindActiveSession(ctx, claims.Id, s.now())
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Session{}, fmt.Errorf("%w: session expired", ErrUnauthenticated)
	case err != nil:
		return Session{}, fmt.Errorf("find session: %w", err)
	}
	if session.UserID != claims.Subject {
		return Session{}, fmt.Errorf("%w: session mismatch", ErrUnauthenticated)
	}
	return Session{UserID: session.UserID, SessionID: session.ID}, nil
}

// IssueTelegramLinkCode creates a one-time code the caller can send to the bot.
func (s *AccountService) IssueTelegramLinkCode(ctx context.Context, sess Session) (LinkCode, error) {
	userID, err := ResolveCaller(sess)
	if err != nil {
		return LinkCode{}, err
	}
	code := model.TelegramLinkCode{
		Code:      newLinkCode(),
		UserID:    userID,
		ExpiresAt: s.now().Add(LinkCodeTTL),
	}
	if err := s.userRepo.CreateLinkCode(ctx, &code); err != nil {
		return LinkCode{}, err
	}
	return LinkCode{Code: code.Code, ExpiresAt: code.ExpiresAt}, nil
}

// LinkTelegram binds telegramID to the user who issued code.
func (s *AccountService) LinkTelegram(ctx context.Context, code string, telegramID int64) (*model.User, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	var user *model.User
	err := s.userRepo.Transaction(ctx, func(tx *repository.UserRepository) error {
		link, err := tx.ConsumeLinkCode(ctx, code, s.now())
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("%w: link code is invalid or expired", ErrNotFound)
		case err != nil:
			return err
		}

		existing, err := tx.FindByTelegramID(ctx, telegramID)
		switch {
		case err == nil && existing.ID != link.UserID:
			return fmt.Errorf("%w: this Telegram account is linked to another user", ErrConflict)
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("find user: %w", err)
		}

		if err := tx.SetTelegramID(ctx, link.UserID, &telegramID); err != nil {
			return err
		}
		user, err = tx.FindByID(ctx, link.UserID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user not found", ErrNotFound)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UnlinkTelegram detaches telegramID from its user.
func (s *AccountService) UnlinkTelegram(ctx context.Context, telegramID int64) error {
	user, err := s.userRepo.FindByTelegramID(ctx, telegramID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: no linked account", ErrNotFound)
	case err != nil:
		return fmt.Errorf("find user: %w", err)
	}
	return s.userRepo.SetTelegramID(ctx, user.ID, nil)
}

// SessionForTelegram resolves a chat user to a session via the linked account.
func (s *AccountService) SessionForTelegram(ctx context.Context, telegramID int64) (Session, error) {
	user, err := s.userRepo.FindByTelegramID(ctx, telegramID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Session{}, fmt.Errorf("%w: link your account with /link first", ErrUnauthenticated)
	case err != nil:
		return Session{}, fmt.Errorf("find user: %w", err)
	}
	return Session{UserID: user.ID}, nil
}

func (s *AccountService) startSession(ctx context.Context, userID string) (AuthResult, error) {
	now := s.now()
	session := model.Session{
		UserID:    userID,
		ExpiresAt: now.Add(s.tokens.TTL()),
	}
	if err := s.userRepo.CreateSession(ctx, &session); err != nil {
		return AuthResult{}, err
	}
	token, expiresAt, err := s.tokens.Issue(userID, session.ID, now)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, UserID: userID, ExpiresAt: expiresAt}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newToken() string {
	return uuid.NewString()
}

// newLinkCode returns eight upper-case hex characters.
func newLinkCode() string {
	id := uuid.New()
	return strings.ToUpper(fmt.Sprintf("%x", id[:4]))
}
