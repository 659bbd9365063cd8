package httpapi

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"taskboard/internal/service"
)

const sessionKey = "session"

// authenticate attaches a Session to every request. A missing or rejected
// token leaves the caller anonymous and the services decide what that means.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess := service.Session{}
		if token := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization)); token != "" {
			resolved, err := s.accounts.Authenticate(c.Request().Context(), token)
			switch {
			case err == nil:
				sess = resolved
			case !errors.Is(err, service.ErrUnauthenticated):
				return err
			}
		}
		c.Set(sessionKey, sess)
		return next(c)
	}
}

func session(c echo.Context) service.Session {
	sess, _ := c.Get(sessionKey).(service.Session)
	return sess
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
