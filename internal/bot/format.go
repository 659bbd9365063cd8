package bot

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
	"unicode"

	"taskboard/internal/model"
	"taskboard/internal/service"
)

const (
	iconDefault = "🟢"
	iconDue     = "⏳"
	iconOverdue = "⚠️"
	iconDone    = "✅"
)

const linkHint = "🔗 Your Telegram account is not linked yet.\n" +
	"Open the web app, request a link code and send it here: <code>/link CODE</code>"

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

// parseStatusArg reads the optional /tasks argument. An empty or "all"
// argument returns nil; ok is false for anything unrecognised.
func parseStatusArg(arg string) (status *model.TaskStatus, ok bool) {
	var s model.TaskStatus
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "", "all":
		return nil, true
	case "pending", "todo", "open":
		s = model.StatusPending
	case "in-progress", "inprogress", "progress", "doing":
		s = model.StatusInProgress
	case "completed", "complete", "done":
		s = model.StatusCompleted
	default:
		return nil, false
	}
	return &s, true
}

// parsePriorityInput accepts the keyboard labels as well as bare words.
func parsePriorityInput(text string) (model.Priority, bool) {
	value := strings.ToLower(strings.TrimSpace(text))
	switch value {
	case strings.ToLower(btnLow), "low", "l":
		return model.PriorityLow, true
	case strings.ToLower(btnMedium), "medium", "m", "normal":
		return model.PriorityMedium, true
	case strings.ToLower(btnHigh), "high", "h", "urgent":
		return model.PriorityHigh, true
	}
	return "", false
}

func priorityLabel(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "🔥 high"
	case model.PriorityMedium:
		return "🔸 medium"
	default:
		return "🔹 low"
	}
}

func statusLabel(s model.TaskStatus) string {
	switch s {
	case model.StatusInProgress:
		return "🚧 In progress"
	case model.StatusCompleted:
		return "✅ Completed"
	default:
		return "🕒 Pending"
	}
}

var statusOrder = []model.TaskStatus{model.StatusInProgress, model.StatusPending, model.StatusCompleted}

// groupByStatus buckets tasks by status and sorts each bucket by due date,
// undated tasks last, then by title.
func groupByStatus(tasks []model.Task, loc *time.Location) map[model.TaskStatus][]model.Task {
	groups := make(map[model.TaskStatus][]model.Task)
	for _, task := range tasks {
		groups[task.Status] = append(groups[task.Status], task)
	}
	for _, section := range groups {
		sort.SliceStable(section, func(i, j int) bool {
			a, aok := section[i].Due(loc)
			b, bok := section[j].Due(loc)
			switch {
			case aok && bok && !a.Equal(b):
				return a.Before(b)
			case aok != bok:
				return aok
			}
			return strings.ToLower(section[i].Title) < strings.ToLower(section[j].Title)
		})
	}
	return groups
}

func formatTask(task model.Task, now time.Time) string {
	var b strings.Builder
	icon := iconDefault
	due, hasDue := task.Due(now.Location())
	overdue := hasDue && now.After(due.Add(24*time.Hour))
	switch {
	case task.Status == model.StatusCompleted:
		icon = iconDone
	case overdue:
		icon = iconOverdue
	case hasDue && due.Sub(now) <= 48*time.Hour:
		icon = iconDue
	}
	b.WriteString(fmt.Sprintf("%s <b>%s</b> · %s\n", icon, escape(normalizeTitle(task.Title)), priorityLabel(task.Priority)))
	if hasDue {
		if overdue && task.Status != model.StatusCompleted {
			b.WriteString(fmt.Sprintf("   ⏰ Due %s, <b>overdue</b>\n", due.Format(model.DueDateLayout)))
		} else {
			b.WriteString(fmt.Sprintf("   ⏰ Due %s\n", due.Format(model.DueDateLayout)))
		}
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(task.Description)))
	}
	return b.String()
}

func formatStats(stats service.TaskStats) string {
	return fmt.Sprintf("📊 <b>Your tasks</b>\n"+
		"• Total: %d\n"+
		"• Pending: %d\n"+
		"• In progress: %d\n"+
		"• Completed: %d\n"+
		"• High priority: %d",
		stats.Total, stats.Pending, stats.InProgress, stats.Completed, stats.HighPriority)
}

// userMessage turns a service error into a short chat reply.
func userMessage(err error) string {
	kinds := []struct {
		kind   error
		prefix string
	}{
		{service.ErrInvalidArgument, "⚠️ "},
		{service.ErrConflict, "⚠️ "},
		{service.ErrNotFound, "🔍 Not found: "},
		{service.ErrForbidden, "⛔ Not allowed: "},
	}
	if errors.Is(err, service.ErrUnauthenticated) {
		return linkHint
	}
	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			detail := strings.TrimPrefix(err.Error(), k.kind.Error()+": ")
			return k.prefix + escape(detail)
		}
	}
	return "Something went wrong. Please try again later."
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "confirm" || value == "yes"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "cancel" || value == "no"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "stop"
}

func parseTaskID(data, prefix string) (string, bool) {
	id := strings.TrimSpace(strings.TrimPrefix(data, prefix))
	return id, id != "" && strings.HasPrefix(data, prefix)
}
