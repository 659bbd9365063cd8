package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"taskboard/internal/repository"
)

// SweepReport counts what one Sweep removed.
type SweepReport struct {
	Sessions     int64
	LinkCodes    int64
	UploadGrants int64
	Blobs        int64
}

// MaintenanceService removes rows and files nothing can use any more.
type MaintenanceService struct {
	userRepo    *repository.UserRepository
	blobRepo    *repository.BlobRepository
	storage     *StorageService
	orphanGrace time.Duration
	logger      *log.Logger
	now         func() time.Time
}

// NewMaintenanceService keeps unreferenced blobs for orphanGrace after upload
// so a client has time to attach them.
func NewMaintenanceService(userRepo *repository.UserRepository, blobRepo *repository.BlobRepository, storage *StorageService, orphanGrace time.Duration, logger *log.Logger) *MaintenanceService {
	return &MaintenanceService{
		userRepo:    userRepo,
		blobRepo:    blobRepo,
		storage:     storage,
		orphanGrace: orphanGrace,
		logger:      logger,
		now:         utcNow,
	}
}

// Sweep deletes expired sessions, link codes and upload grants, and blobs no
// profile references.
func (s *MaintenanceService) Sweep(ctx context.Context) (SweepReport, error) {
	now := s.now()
	var report SweepReport
	var err error

	if report.Sessions, err = s.userRepo.DeleteExpiredSessions(ctx, now); err != nil {
		return report, err
	}
	if report.LinkCodes, err = s.userRepo.DeleteExpiredLinkCodes(ctx, now); err != nil {
		return report, err
	}
	if report.UploadGrants, err = s.blobRepo.DeleteExpiredGrants(ctx, now); err != nil {
		return report, err
	}

	orphans, err := s.blobRepo.ListOrphans(ctx, now.Add(-s.orphanGrace))
	if err != nil {
		return report, err
	}
	for _, blob := range orphans {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		removed, err := s.storage.RemoveUnreferenced(ctx, blob.ID)
		if err != nil {
			s.logger.Warn("remove orphan blob", "blob", blob.ID, "err", err)
		}
		if removed {
			report.Blobs++
		} else if err == nil {
			s.logger.Debug("blob attached during sweep", "blob", blob.ID)
		}
	}

	s.logger.Info("sweep finished",
		"sessions", report.Sessions,
		"link_codes", report.LinkCodes,
		"upload_grants", report.UploadGrants,
		"blobs", report.Blobs,
	)
	return report, nil
}
