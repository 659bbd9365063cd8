package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/repository"
)

// dueSoonWindow is how far ahead a due date counts as coming up.
const dueSoonWindow = 48 * time.Hour

// DigestService builds human-readable summaries for periodic notifications.
type DigestService struct {
	taskRepo *repository.TaskRepository
}

func NewDigestService(taskRepo *repository.TaskRepository) *DigestService {
	return &DigestService{taskRepo: taskRepo}
}

// Summary renders an HTML digest of the user's tasks as of now.
func (s *DigestService) Summary(ctx context.Context, userID string, now time.Time) (string, error) {
	tasks, err := s.taskRepo.ListByOwner(ctx, userID, nil)
	if err != nil {
		return "", err
	}
	stats := countTasks(tasks)

	var overdue, dueSoon, urgent []model.Task
	for _, task := range tasks {
		if task.Status == model.StatusCompleted {
			continue
		}
		if due, ok := task.Due(now.Location()); ok {
			switch {
			case now.After(due.Add(24 * time.Hour)):
				overdue = append(overdue, task)
				continue
			case due.Sub(now) <= dueSoonWindow:
				dueSoon = append(dueSoon, task)
				continue
			}
		}
		if task.Priority == model.PriorityHigh {
			urgent = append(urgent, task)
		}
	}
	sortByDueDate(overdue, now.Location())
	sortByDueDate(dueSoon, now.Location())

	var builder strings.Builder
	builder.WriteString("📋 <b>Task digest</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("Mon, 02 Jan 2006")))
	builder.WriteString(fmt.Sprintf("Total %d · pending %d · in progress %d · done %d\n",
		stats.Total, stats.Pending, stats.InProgress, stats.Completed))

	writeSection(&builder, "⚠️ <b>Overdue</b>", overdue)
	writeSection(&builder, "⏳ <b>Due soon</b>", dueSoon)
	writeSection(&builder, "🔥 <b>High priority</b>", urgent)

	if len(overdue)+len(dueSoon)+len(urgent) == 0 {
		builder.WriteString("\nNothing urgent. Nice work!\n")
	}
	return strings.TrimSpace(builder.String()), nil
}

func writeSection(builder *strings.Builder, title string, tasks []model.Task) {
	if len(tasks) == 0 {
		return
	}
	builder.WriteString("\n" + title + "\n")
	for _, task := range tasks {
		builder.WriteString("• " + html.EscapeString(task.Title))
		if task.DueDate != nil {
			builder.WriteString(" <i>(due " + html.EscapeString(*task.DueDate) + ")</i>")
		}
		builder.WriteByte('\n')
	}
}

func sortByDueDate(tasks []model.Task, loc *time.Location) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, _ := tasks[i].Due(loc)
		b, _ := tasks[j].Due(loc)
		return a.Before(b)
	})
}
