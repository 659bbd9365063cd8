package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type upsertProfileRequest struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Bio       *string `json:"bio"`
}

type signupProfileRequest struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type attachAvatarRequest struct {
	StorageID string `json:"storageId"`
}

type storageIDResponse struct {
	StorageID string `json:"storageId"`
}

// getMyProfile answers null rather than 401 for anonymous callers.
func (s *Server) getMyProfile(c echo.Context) error {
	profile, err := s.profiles.GetMyProfile(c.Request().Context(), session(c))
	if err != nil {
		return err
	}
	if profile == nil {
		return c.JSON(http.StatusOK, nil)
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) getUserProfile(c echo.Context) error {
	up, err := s.profiles.GetUserProfile(c.Request().Context(), session(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, up)
}

func (s *Server) updateUserProfile(c echo.Context) error {
	var req upsertProfileRequest
	if err := s.schemas.bindJSON(c, "upsert_profile", &req); err != nil {
		return err
	}
	id, err := s.profiles.UpsertProfile(c.Request().Context(), session(c), req.FirstName, req.LastName, req.Bio)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, idResponse{ID: id})
}

func (s *Server) createProfileOnSignup(c echo.Context) error {
	var req signupProfileRequest
	if err := s.schemas.bindJSON(c, "signup_profile", &req); err != nil {
		return err
	}
	id, err := s.profiles.CreateProfileOnSignup(c.Request().Context(), session(c), req.UserID, req.FirstName, req.LastName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, idResponse{ID: id})
}

func (s *Server) generateAvatarUploadURL(c echo.Context) error {
	grant, err := s.profiles.IssueAvatarUploadGrant(c.Request().Context(), session(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, grant)
}

func (s *Server) updateUserAvatar(c echo.Context) error {
	var req attachAvatarRequest
	if err := s.schemas.bindJSON(c, "attach_avatar", &req); err != nil {
		return err
	}
	id, err := s.profiles.AttachAvatar(c.Request().Context(), session(c), req.StorageID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, storageIDResponse{StorageID: id})
}
