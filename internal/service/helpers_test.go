package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"taskboard/internal/auth"
	"taskboard/internal/logging"
	"taskboard/internal/model"
	"taskboard/internal/repository"
	"taskboard/internal/storage"
)

// testClock ticks one second on every read so records get distinct timestamps.
// It starts in the past so issued tokens are never dated after the wall clock.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now().UTC().Add(-6 * time.Hour).Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	db          *gorm.DB
	clock       *testClock
	userRepo    *repository.UserRepository
	taskRepo    *repository.TaskRepository
	profileRepo *repository.ProfileRepository
	blobRepo    *repository.BlobRepository
	tasks       *TaskService
	profiles    *ProfileService
	accounts    *AccountService
	storage     *StorageService
	maintenance *MaintenanceService
	digest      *DigestService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := repository.NewDB("sqlite", filepath.Join(dir, "test.db"), logging.Discard())
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	files, err := storage.NewFileStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	f := &fixture{
		db:          db,
		clock:       newTestClock(),
		userRepo:    repository.NewUserRepository(db),
		taskRepo:    repository.NewTaskRepository(db),
		profileRepo: repository.NewProfileRepository(db),
		blobRepo:    repository.NewBlobRepository(db),
	}
	f.storage = NewStorageService(f.blobRepo, files, StorageOptions{
		PublicURL: "http://tasks.test",
		GrantTTL:  time.Hour,
		MaxBytes:  64,
	})
	f.tasks = NewTaskService(f.taskRepo)
	f.profiles = NewProfileService(f.profileRepo, f.userRepo, f.storage, f.storage)
	f.accounts = NewAccountService(f.userRepo, auth.NewTokens("test-secret", 24*time.Hour), f.profiles, logging.Discard())
	f.maintenance = NewMaintenanceService(f.userRepo, f.blobRepo, f.storage, time.Hour, logging.Discard())
	f.digest = NewDigestService(f.taskRepo)

	f.tasks.now = f.clock.Now
	f.accounts.now = f.clock.Now
	f.storage.now = f.clock.Now
	f.maintenance.now = f.clock.Now
	return f
}

// signUp registers a user and returns a session for it.
func (f *fixture) signUp(t *testing.T, email string) Session {
	t.Helper()
	res, err := f.accounts.SignUp(context.Background(), email, "password123", "")
	if err != nil {
		t.Fatalf("SignUp(%s): %v", email, err)
	}
	sess, err := f.accounts.Authenticate(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return sess
}

// countProfiles reports how many profile rows ownerID has.
func (f *fixture) countProfiles(t *testing.T, ownerID string) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&model.Profile{}).Where("owner_id = ?", ownerID).Count(&n).Error; err != nil {
		t.Fatalf("count profiles: %v", err)
	}
	return n
}

func wantErr(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

func ptr[T any](v T) *T {
	return &v
}
