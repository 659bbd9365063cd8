package service

import (
	"context"
	"testing"
	"time"
)

func TestSweep_RemovesExpiredAndOrphaned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signUp(t, "a@example.com")

	kept := uploadImage(t, f, sess)
	if _, err := f.profiles.AttachAvatar(ctx, sess, kept); err != nil {
		t.Fatalf("AttachAvatar: %v", err)
	}
	orphan := uploadImage(t, f, sess)
	if _, err := f.storage.IssueUploadGrant(ctx, sess); err != nil {
		t.Fatalf("IssueUploadGrant: %v", err)
	}
	if _, err := f.accounts.IssueTelegramLinkCode(ctx, sess); err != nil {
		t.Fatalf("IssueTelegramLinkCode: %v", err)
	}

	// Nothing is old enough yet.
	report, err := f.maintenance.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report != (SweepReport{}) {
		t.Fatalf("early sweep = %+v", report)
	}

	f.clock.Advance(25 * time.Hour)
	report, err = f.maintenance.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	want := SweepReport{Sessions: 1, LinkCodes: 1, UploadGrants: 1, Blobs: 1}
	if report != want {
		t.Fatalf("sweep = %+v, want %+v", report, want)
	}

	_, _, err = f.storage.Open(ctx, orphan)
	wantErr(t, err, ErrNotFound)
	_, rc, err := f.storage.Open(ctx, kept)
	if err != nil {
		t.Fatalf("attached avatar removed: %v", err)
	}
	rc.Close()
}

func TestSweep_KeepsBlobAttachedAfterListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signUp(t, "a@example.com")

	blobID := uploadImage(t, f, sess)
	f.clock.Advance(2 * time.Hour)

	orphans, err := f.blobRepo.ListOrphans(ctx, f.clock.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListOrphans: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != blobID {
		t.Fatalf("orphans = %+v", orphans)
	}

	// The avatar lands between listing and removal.
	if _, err := f.profiles.AttachAvatar(ctx, sess, blobID); err != nil {
		t.Fatalf("AttachAvatar: %v", err)
	}
	removed, err := f.storage.RemoveUnreferenced(ctx, blobID)
	if err != nil {
		t.Fatalf("RemoveUnreferenced: %v", err)
	}
	if removed {
		t.Fatal("attached blob was removed")
	}
	_, rc, err := f.storage.Open(ctx, blobID)
	if err != nil {
		t.Fatalf("Open attached blob: %v", err)
	}
	rc.Close()

	report, err := f.maintenance.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Blobs != 0 {
		t.Fatalf("sweep removed %d blobs, want 0", report.Blobs)
	}
}
