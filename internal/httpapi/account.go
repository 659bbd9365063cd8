package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type signUpRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) signUp(c echo.Context) error {
	var req signUpRequest
	if err := s.schemas.bindJSON(c, "sign_up", &req); err != nil {
		return err
	}
	res, err := s.accounts.SignUp(c.Request().Context(), req.Email, req.Password, req.FirstName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) signIn(c echo.Context) error {
	var req signInRequest
	if err := s.schemas.bindJSON(c, "sign_in", &req); err != nil {
		return err
	}
	res, err := s.accounts.SignIn(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) signOut(c echo.Context) error {
	if err := s.accounts.SignOut(c.Request().Context(), session(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) loggedInUser(c echo.Context) error {
	user, err := s.accounts.LoggedInUser(c.Request().Context(), session(c))
	if err != nil {
		return err
	}
	if user == nil {
		return c.JSON(http.StatusOK, nil)
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) telegramLinkCode(c echo.Context) error {
	code, err := s.accounts.IssueTelegramLinkCode(c.Request().Context(), session(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, code)
}
