package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"taskboard/internal/logging"
)

func TestBuildDailySpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"09:00", "0 0 9 * * *", false},
		{"23:59", "0 59 23 * * *", false},
		{"7:05", "0 5 7 * * *", false},
		{"24:00", "", true},
		{"12:60", "", true},
		{"noon", "", true},
		{"12:30:00", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := buildDailySpec(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScheduleInterval_RejectsNonPositive(t *testing.T) {
	s := NewSchedulerService(time.UTC, logging.Discard())
	if _, err := s.ScheduleInterval(0, Job{Name: "noop", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestWrap_AppliesTimeoutAndLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, logging.Options{Level: "debug", Format: "logfmt"})
	s := NewSchedulerService(time.UTC, logger)

	var deadline bool
	s.wrap(Job{Name: "sweep", Timeout: time.Minute, Run: func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return errors.New("disk full")
	}})()

	if !deadline {
		t.Fatal("job context has no deadline")
	}
	out := buf.String()
	if !strings.Contains(out, "job failed") || !strings.Contains(out, "sweep") || !strings.Contains(out, "disk full") {
		t.Fatalf("log output = %q", out)
	}
}
