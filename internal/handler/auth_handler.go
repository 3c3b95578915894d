package handler

import (
	"net/http"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/middleware"
	"github.com/dafibh/rentals/rentals-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// AuthHandler exposes the landlord's identity and workspace
type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// AuthCallbackResponse is returned by both the login callback and /auth/me
type AuthCallbackResponse struct {
	User      UserResponse      `json:"user"`
	Workspace WorkspaceResponse `json:"workspace"`
	IsNewUser bool              `json:"isNewUser"`
}

type UserResponse struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	Name       *string `json:"name"`
	PictureURL *string `json:"pictureUrl"`
}

type WorkspaceResponse struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

type LogoutResponse struct {
	Message string `json:"message"`
}

func newAuthResponse(user *domain.User, workspace *domain.Workspace, isNew bool) AuthCallbackResponse {
	return AuthCallbackResponse{
		User: UserResponse{
			ID:         user.ID.String(),
			Email:      user.Email,
			Name:       user.Name,
			PictureURL: user.PictureURL,
		},
		Workspace: WorkspaceResponse{
			ID:   workspace.ID,
			Name: workspace.Name,
		},
		IsNewUser: isNew,
	}
}

// claimsProfile reads the optional profile claims Auth0 adds to the access token
func claimsProfile(c echo.Context) (email string, name, picture *string) {
	claims := middleware.GetCustomClaims(c)
	if claims == nil {
		return "", nil, nil
	}
	if claims.Name != "" {
		name = &claims.Name
	}
	if claims.Picture != "" {
		picture = &claims.Picture
	}
	return claims.Email, name, picture
}

// Callback godoc
// @Summary Complete Auth0 login
// @Description Called by the frontend after receiving the Auth0 token. Creates the user and a default workspace on first login.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} AuthCallbackResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /auth/callback [post]
func (h *AuthHandler) Callback(c echo.Context) error {
	auth0ID := middleware.GetAuth0ID(c)
	if auth0ID == "" {
		log.Error().Msg("No Auth0 ID in context, is the auth middleware mounted?")
		return NewUnauthorizedError(c, "Authentication required")
	}

	email, name, picture := claimsProfile(c)
	if email == "" {
		log.Warn().Str("auth0_id", auth0ID).Msg("No email in JWT claims")
		return NewValidationError(c, "Email is required for authentication", []ValidationError{
			{Field: "email", Message: "Email claim is missing from token"},
		})
	}

	result, err := h.authService.AuthenticateUser(c.Request().Context(), auth0ID, email, name, picture)
	if err != nil {
		log.Error().Err(err).Str("auth0_id", auth0ID).Msg("Failed to authenticate user")
		return NewInternalError(c, "Failed to authenticate user")
	}

	return c.JSON(http.StatusOK, newAuthResponse(result.User, result.Workspace, result.IsNewUser))
}

// Me godoc
// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} AuthCallbackResponse
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	auth0ID := middleware.GetAuth0ID(c)
	if auth0ID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		log.Error().Str("auth0_id", auth0ID).Msg("No workspace ID in context")
		return NewInternalError(c, "Workspace not available")
	}

	ctx := c.Request().Context()
	user, err := h.authService.GetUserByAuth0ID(ctx, auth0ID)
	if err != nil {
		log.Warn().Err(err).Str("auth0_id", auth0ID).Msg("Failed to get user")
		return NewNotFoundError(c, "User not found")
	}

	workspace, err := h.authService.GetWorkspaceByAuth0ID(ctx, auth0ID)
	if err != nil {
		log.Error().Err(err).Int32("workspace_id", workspaceID).Msg("Failed to get workspace")
		return NewInternalError(c, "Failed to get workspace")
	}
	// The middleware resolved the workspace moments ago; a different answer now is a server fault
	if workspace.ID != workspaceID {
		log.Error().
			Int32("workspace_id", workspaceID).
			Int32("resolved_workspace_id", workspace.ID).
			Msg("Workspace changed during request")
		return NewInternalError(c, "Failed to get workspace")
	}

	return c.JSON(http.StatusOK, newAuthResponse(user, workspace, false))
}

// Logout godoc
// @Summary Log out
// @Description Auth0 owns the session; this only records the event.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} LogoutResponse
// @Failure 401 {object} ProblemDetails
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	auth0ID := middleware.GetAuth0ID(c)
	if auth0ID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	log.Info().Str("auth0_id", auth0ID).Msg("User logged out")
	return c.JSON(http.StatusOK, LogoutResponse{Message: "Logged out successfully"})
}
