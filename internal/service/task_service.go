package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"taskboard/internal/model"
	"taskboard/internal/repository"
	"taskboard/internal/search"
)

// SearchLimit caps the number of tasks SearchTasks returns.
const SearchLimit = 20

// TaskFilter narrows ListTasks. Nil fields match everything.
type TaskFilter struct {
	Status   *model.TaskStatus
	Priority *model.Priority
}

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title       string
	Description string
	Priority    model.Priority
	DueDate     *string
}

// TaskPatch lists the fields UpdateTask should change. Nil means leave as is.
// An explicit empty DueDate clears the due date.
type TaskPatch struct {
	Title       *string           `json:"title"`
	Description *string           `json:"description"`
	Status      *model.TaskStatus `json:"status"`
	Priority    *model.Priority   `json:"priority"`
	DueDate     *string           `json:"dueDate"`
}

// TaskStats are the dashboard counters for one user.
type TaskStats struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	InProgress   int `json:"inProgress"`
	Completed    int `json:"completed"`
	HighPriority int `json:"highPriority"`
}

// TaskService implements task queries and mutations for the calling user.
type TaskService struct {
	taskRepo *repository.TaskRepository
	now      func() time.Time
}

func NewTaskService(taskRepo *repository.TaskRepository) *TaskService {
	return &TaskService{taskRepo: taskRepo, now: utcNow}
}

// ListTasks returns the caller's tasks newest first. Status is matched by the
// store; priority is filtered over the fetched set.
func (s *TaskService) ListTasks(ctx context.Context, sess Session, filter TaskFilter) ([]model.Task, error) {
	ownerID, err := ResolveCaller(sess)
	if err != nil {
		return nil, err
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, *filter.Status)
	}
	if filter.Priority != nil && !filter.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidArgument, *filter.Priority)
	}

	tasks, err := s.taskRepo.ListByOwner(ctx, ownerID, filter.Status)
	if err != nil {
		return nil, err
	}
	if filter.Priority == nil {
		return tasks, nil
	}

	filtered := tasks[:0]
	for _, task := range tasks {
		if task.Priority == *filter.Priority {
			filtered = append(filtered, task)
		}
	}
	return filtered, nil
}

// SearchTasks ranks the caller's tasks by title relevance to term. A blank
// term returns nothing without querying.
func (s *TaskService) SearchTasks(ctx context.Context, sess Session, term string, status *model.TaskStatus) ([]model.Task, error) {
	ownerID, err := ResolveCaller(sess)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(term) == "" {
		return []model.Task{}, nil
	}
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, *status)
	}

	// Titles are folded in Go; SQL LOWER and LIKE only fold ASCII.
	candidates, err := s.taskRepo.ListByOwner(ctx, ownerID, nil)
	if err != nil {
		return nil, err
	}
	ranked := search.Rank(term, candidates, func(t model.Task) string { return t.Title })

	out := make([]model.Task, 0, min(len(ranked), SearchLimit))
	for _, task := range ranked {
		if status != nil && task.Status != *status {
			continue
		}
		out = append(out, task)
		if len(out) == SearchLimit {
			break
		}
	}
	return out, nil
}

// TaskStats counts the caller's tasks in one pass.
func (s *TaskService) TaskStats(ctx context.Context, sess Session) (TaskStats, error) {
	ownerID, err := ResolveCaller(sess)
	if err != nil {
		return TaskStats{}, err
	}
	tasks, err := s.taskRepo.ListByOwner(ctx, ownerID, nil)
	if err != nil {
		return TaskStats{}, err
	}
	return countTasks(tasks), nil
}

func countTasks(tasks []model.Task) TaskStats {
	stats := TaskStats{Total: len(tasks)}
	for _, task := range tasks {
		switch task.Status {
		case model.StatusPending:
			stats.Pending++
		case model.StatusInProgress:
			stats.InProgress++
		case model.StatusCompleted:
			stats.Completed++
		}
		if task.Priority == model.PriorityHigh {
			stats.HighPriority++
		}
	}
	return stats
}

// GetTask returns one of the caller's tasks.
func (s *TaskService) GetTask(ctx context.Context, sess Session, taskID string) (*model.Task, error) {
	ownerID, err := ResolveCaller(sess)
	if err != nil {
		return nil, err
	}
	return ownedTask(ctx, s.taskRepo, ownerID, taskID)
}

// CreateTask stores a new pending task for the caller and returns its ID.
func (s *TaskService) CreateTask(ctx context.Context, sess Session, input TaskInput) (string, error) {
	ownerID, err := ResolveCaller(sess)
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return "", fmt.Errorf("%w: task title is required", ErrInvalidArgument)
	}
	if !input.Priority.Valid() {
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidArgument, input.Priority)
	}
	dueDate, err := normalizeDueDate(input.DueDate)
	if err != nil {
		return "", err
	}

	task := model.Task{
		OwnerID:     ownerID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      model.StatusPending,
		Priority:    input.Priority,
		DueDate:     dueDate,
		CreatedAt:   s.now(),
	}
	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return "", err
	}
	return task.ID, nil
}

// UpdateTask applies the fields present in patch to one of the caller's tasks.
func (s *TaskService) UpdateTask(ctx context.Context, sess Session, taskID string, patch TaskPatch) (string, error) {
	ownerID, err := ResolveCaller(sess)
	if err != nil {
		return "", err
	}

	err = s.taskRepo.Transaction(ctx, func(tx *repository.TaskRepository) error {
		if _, err := ownedTask(ctx, tx, ownerID, taskID); err != nil {
			return err
		}
		updates, err := patchUpdates(patch)
		if err != nil {
			return err
		}
		return tx.Patch(ctx, taskID, updates)
	})
	if err != nil {
		return "", err
	}
	return taskID, nil
}

// DeleteTask permanently removes one of the caller's tasks.
func (s *TaskService) DeleteTask(ctx context.Context, sess Session, taskID string) (string, error) {
	ownerID, err := ResolveCaller(sess)
	if err != nil {
		return "", err
	}

	err = s.taskRepo.Transaction(ctx, func(tx *repository.TaskRepository) error {
		if _, err := ownedTask(ctx, tx, ownerID, taskID); err != nil {
			return err
		}
		return tx.Delete(ctx, taskID)
	})
	if err != nil {
		return "", err
	}
	return taskID, nil
}

func ownedTask(ctx context.Context, repo *repository.TaskRepository, ownerID, taskID string) (*model.Task, error) {
	task, err := repo.FindByID(ctx, taskID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	case err != nil:
		return nil, fmt.Errorf("find task: %w", err)
	}
	if task.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: you can only change your own tasks", ErrForbidden)
	}
	return task, nil
}

func patchUpdates(patch TaskPatch) (map[string]interface{}, error) {
	updates := make(map[string]interface{})
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: task title is required", ErrInvalidArgument)
		}
		updates["title"] = title
	}
	if patch.Description != nil {
		updates["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, *patch.Status)
		}
		updates["status"] = *patch.Status
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidArgument, *patch.Priority)
		}
		updates["priority"] = *patch.Priority
	}
	if patch.DueDate != nil {
		dueDate, err := normalizeDueDate(patch.DueDate)
		if err != nil {
			return nil, err
		}
		updates["due_date"] = dueDate
	}
	return updates, nil
}

// normalizeDueDate trims the date and checks its layout. Blank means no date.
func normalizeDueDate(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil, nil
	}
	if _, err := time.Parse(model.DueDateLayout, value); err != nil {
		return nil, fmt.Errorf("%w: due date must look like 2006-01-02", ErrInvalidArgument)
	}
	return &value, nil
}
