package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/middleware"
	"github.com/dafibh/rentals/rentals-backend/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// SessionHandler exposes installment editing sessions over HTTP
type SessionHandler struct {
	registry *service.SessionRegistry
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(registry *service.SessionRegistry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// SetInstallmentStateRequest represents the edit installment request body
type SetInstallmentStateRequest struct {
	State string `json:"state"`
}

// SessionResponse represents an editing session in API responses
type SessionResponse struct {
	ID         string           `json:"id"`
	ContractID int32            `json:"contractId"`
	ExpiresAt  string           `json:"expiresAt"`
	Busy       bool             `json:"busy"`
	Seeded     bool             `json:"seeded"`
	Contract   ContractResponse `json:"contract"`
	Progress   ProgressResponse `json:"progress"`
}

// OpenSession godoc
// @Summary Open an editing session
// @Description Loads a contract's installments into a working copy. Contracts without a schedule get one seeded locally.
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contract ID"
// @Success 201 {object} SessionResponse
// @Failure 404 {object} ProblemDetails
// @Failure 502 {object} ProblemDetails
// @Router /contracts/{id}/sessions [post]
func (h *SessionHandler) OpenSession(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	contractID, err := parseIDParam(c, "id")
	if err != nil {
		return NewValidationError(c, "Invalid contract ID", nil)
	}

	view, err := h.registry.Open(c.Request().Context(), workspaceID, contractID)
	if err != nil {
		return respondDomainError(c, err, "Failed to open editing session")
	}

	return c.JSON(http.StatusCreated, toSessionResponse(view))
}

// GetSession godoc
// @Summary Get an editing session
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Success 200 {object} SessionResponse
// @Failure 404 {object} ProblemDetails
// @Router /sessions/{sessionId} [get]
func (h *SessionHandler) GetSession(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		return NewValidationError(c, "Invalid session ID", nil)
	}

	view, err := h.registry.Get(workspaceID, sessionID)
	if err != nil {
		return respondDomainError(c, err, "Failed to get editing session")
	}

	return c.JSON(http.StatusOK, toSessionResponse(view))
}

// SetInstallmentState godoc
// @Summary Mark an installment paid or pending
// @Description Edits the session's working copy only; nothing is persisted until save
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Param index path int true "Installment position (0-based)"
// @Param request body SetInstallmentStateRequest true "New stored state (pending or paid)"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /sessions/{sessionId}/installments/{index} [patch]
func (h *SessionHandler) SetInstallmentState(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		return NewValidationError(c, "Invalid session ID", nil)
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return NewValidationError(c, "Invalid installment index", nil)
	}

	var req SetInstallmentStateRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	state, err := domain.ParseStoredState(req.State)
	if err != nil {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "state", Message: "Must be one of: pending, paid"},
		})
	}

	view, err := h.registry.SetInstallmentState(workspaceID, sessionID, index, state)
	if err != nil {
		return respondDomainError(c, err, "Failed to edit installment")
	}

	return c.JSON(http.StatusOK, toSessionResponse(view))
}

// SaveSession godoc
// @Summary Save an editing session
// @Description Normalizes and persists the working copy. On failure the unsaved edits are kept.
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Success 200 {object} SessionResponse
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 502 {object} ProblemDetails
// @Router /sessions/{sessionId}/save [post]
func (h *SessionHandler) SaveSession(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		return NewValidationError(c, "Invalid session ID", nil)
	}

	view, err := h.registry.Save(c.Request().Context(), workspaceID, sessionID)
	if err != nil {
		return respondDomainError(c, err, "Failed to save installments")
	}

	return c.JSON(http.StatusOK, toSessionResponse(view))
}

// ReloadSession godoc
// @Summary Reload an editing session
// @Description Discards unsaved edits and reloads the persisted installments
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Success 200 {object} SessionResponse
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 502 {object} ProblemDetails
// @Router /sessions/{sessionId}/reload [post]
func (h *SessionHandler) ReloadSession(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		return NewValidationError(c, "Invalid session ID", nil)
	}

	view, err := h.registry.Reload(c.Request().Context(), workspaceID, sessionID)
	if err != nil {
		return respondDomainError(c, err, "Failed to reload installments")
	}

	return c.JSON(http.StatusOK, toSessionResponse(view))
}

// CloseSession godoc
// @Summary Close an editing session
// @Description Unsaved edits are discarded
// @Tags sessions
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Success 204
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /sessions/{sessionId} [delete]
func (h *SessionHandler) CloseSession(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		return NewValidationError(c, "Invalid session ID", nil)
	}

	if err := h.registry.Close(workspaceID, sessionID); err != nil {
		if errors.Is(err, domain.ErrBusy) {
			log.Debug().Str("session_id", sessionID.String()).Msg("Close rejected while session is busy")
		}
		return respondDomainError(c, err, "Failed to close editing session")
	}

	return c.NoContent(http.StatusNoContent)
}

func toSessionResponse(view *service.SessionView) SessionResponse {
	today := view.Progress.AsOf
	return SessionResponse{
		ID:         view.ID.String(),
		ContractID: view.Contract.ID,
		ExpiresAt:  view.ExpiresAt.UTC().Format(time.RFC3339),
		Busy:       view.Busy,
		Seeded:     view.Seeded,
		Contract:   toContractResponse(view.Contract, view.Installments, today),
		Progress:   toProgressResponse(view.Progress),
	}
}
