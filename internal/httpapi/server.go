// Package httpapi exposes the task board services as a JSON API over echo.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"taskboard/internal/service"
)

// Deps are the collaborators the API serves.
type Deps struct {
	Tasks    *service.TaskService
	Profiles *service.ProfileService
	Accounts *service.AccountService
	Storage  *service.StorageService
	// Health reports whether the backing store is reachable. Nil means always healthy.
	Health func(ctx context.Context) error
	Logger *log.Logger
}

type Server struct {
	echo     *echo.Echo
	logger   *log.Logger
	schemas  schemaSet
	tasks    *service.TaskService
	profiles *service.ProfileService
	accounts *service.AccountService
	storage  *service.StorageService
	health   func(ctx context.Context) error
}

func New(deps Deps) (*Server, error) {
	schemas, err := loadSchemas()
	if err != nil {
		return nil, err
	}

	logger := deps.Logger.WithPrefix("http")
	s := &Server{
		echo:     echo.New(),
		logger:   logger,
		schemas:  schemas,
		tasks:    deps.Tasks,
		profiles: deps.Profiles,
		accounts: deps.Accounts,
		storage:  deps.Storage,
		health:   deps.Health,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo
	e.GET("/healthz", s.healthz)

	api := e.Group("/api", s.authenticate)

	api.POST("/auth/signup", s.signUp)
	api.POST("/auth/signin", s.signIn)
	api.POST("/auth/signout", s.signOut)
	api.GET("/auth/me", s.loggedInUser)

	api.GET("/tasks", s.listTasks)
	api.GET("/tasks/search", s.searchTasks)
	api.GET("/tasks/stats", s.taskStats)
	api.GET("/tasks/:id", s.getTask)
	api.POST("/tasks", s.createTask)
	api.PATCH("/tasks/:id", s.updateTask)
	api.DELETE("/tasks/:id", s.deleteTask)

	api.GET("/profile/me", s.getMyProfile)
	api.GET("/profile", s.getUserProfile)
	api.PUT("/profile", s.updateUserProfile)
	api.POST("/profile/signup", s.createProfileOnSignup)
	api.POST("/profile/avatar/upload-url", s.generateAvatarUploadURL)
	api.PUT("/profile/avatar", s.updateUserAvatar)

	api.POST("/storage/upload", s.upload)
	api.GET("/storage/:id", s.fetchBlob)

	api.POST("/telegram/link-code", s.telegramLinkCode)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthz(c echo.Context) error {
	if s.health != nil {
		if err := s.health(c.Request().Context()); err != nil {
			s.logger.Error("health check failed", "err", err)
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// handleError renders service error kinds as status codes with an {"error": ...} body.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := http.StatusText(status)
	var he *echo.HTTPError
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, service.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrForbidden):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrInvalidArgument):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrConflict):
		status, message = http.StatusConflict, err.Error()
	case errors.As(err, &he):
		status = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(status)
		}
	default:
		s.logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, echo.Map{"error": message})
	}
	if err != nil {
		s.logger.Error("write error response", "err", err)
	}
}
