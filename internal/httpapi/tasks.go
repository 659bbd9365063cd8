package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"taskboard/internal/model"
	"taskboard/internal/service"
)

type createTaskRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    model.Priority `json:"priority"`
	DueDate     *string        `json:"dueDate"`
}

type idResponse struct {
	ID string `json:"id"`
}

func (s *Server) listTasks(c echo.Context) error {
	filter := service.TaskFilter{}
	if v := c.QueryParam("status"); v != "" {
		status := model.TaskStatus(v)
		filter.Status = &status
	}
	if v := c.QueryParam("priority"); v != "" {
		priority := model.Priority(v)
		filter.Priority = &priority
	}

	tasks, err := s.tasks.ListTasks(c.Request().Context(), session(c), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

func (s *Server) searchTasks(c echo.Context) error {
	var status *model.TaskStatus
	if v := c.QueryParam("status"); v != "" {
		st := model.TaskStatus(v)
		status = &st
	}

	tasks, err := s.tasks.SearchTasks(c.Request().Context(), session(c), c.QueryParam("searchTerm"), status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

func (s *Server) taskStats(c echo.Context) error {
	stats, err := s.tasks.TaskStats(c.Request().Context(), session(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) getTask(c echo.Context) error {
	task, err := s.tasks.GetTask(c.Request().Context(), session(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) createTask(c echo.Context) error {
	var req createTaskRequest
	if err := s.schemas.bindJSON(c, "create_task", &req); err != nil {
		return err
	}

	id, err := s.tasks.CreateTask(c.Request().Context(), session(c), service.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, idResponse{ID: id})
}

func (s *Server) updateTask(c echo.Context) error {
	var patch service.TaskPatch
	if err := s.schemas.bindJSON(c, "update_task", &patch); err != nil {
		return err
	}

	id, err := s.tasks.UpdateTask(c.Request().Context(), session(c), c.Param("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, idResponse{ID: id})
}

func (s *Server) deleteTask(c echo.Context) error {
	id, err := s.tasks.DeleteTask(c.Request().Context(), session(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, idResponse{ID: id})
}
