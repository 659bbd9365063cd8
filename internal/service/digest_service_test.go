package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"taskboard/internal/model"
)

func TestDigestSummary_Sections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signUp(t, "a@example.com")

	create := func(title string, priority model.Priority, due *string) string {
		id, err := f.tasks.CreateTask(ctx, sess, TaskInput{Title: title, Priority: priority, DueDate: due})
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		return id
	}
	create("Pay rent", model.PriorityMedium, ptr("2025-03-08"))
	create("Call <mum>", model.PriorityLow, ptr("2025-03-11"))
	create("Ship release", model.PriorityHigh, ptr("2025-04-01"))
	create("Someday", model.PriorityLow, nil)
	done := create("Old chore", model.PriorityHigh, ptr("2025-03-01"))
	if _, err := f.tasks.UpdateTask(ctx, sess, done, TaskPatch{Status: ptr(model.StatusCompleted)}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	got, err := f.digest.Summary(ctx, sess.UserID, now)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	wantInOrder := []string{
		"Mon, 10 Mar 2025",
		"Total 5 · pending 4 · in progress 0 · done 1",
		"<b>Overdue</b>", "Pay rent <i>(due 2025-03-08)</i>",
		"<b>Due soon</b>", "Call &lt;mum&gt;",
		"<b>High priority</b>", "Ship release",
	}
	rest := got
	for _, want := range wantInOrder {
		i := strings.Index(rest, want)
		if i < 0 {
			t.Fatalf("digest missing %q after previous sections:\n%s", want, got)
		}
		rest = rest[i+len(want):]
	}
	for _, absent := range []string{"Old chore", "Someday", "Nothing urgent"} {
		if strings.Contains(got, absent) {
			t.Fatalf("digest should not mention %q:\n%s", absent, got)
		}
	}
}

func TestDigestSummary_NothingUrgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signUp(t, "a@example.com")
	if _, err := f.tasks.CreateTask(ctx, sess, TaskInput{Title: "Read a book", Priority: model.PriorityLow}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	got, err := f.digest.Summary(ctx, sess.UserID, time.Now().UTC())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !strings.Contains(got, "Nothing urgent") {
		t.Fatalf("digest = %s", got)
	}
}
