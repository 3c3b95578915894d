package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/middleware"
	"github.com/dafibh/rentals/rentals-backend/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ReceiptHandler handles payment receipt uploads for installments
type ReceiptHandler struct {
	receiptService *service.ReceiptService
}

// NewReceiptHandler creates a new ReceiptHandler
func NewReceiptHandler(receiptService *service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receiptService: receiptService}
}

// ReceiptResponse represents a receipt in API responses
type ReceiptResponse struct {
	ID                string `json:"id"`
	ContractID        int32  `json:"contractId"`
	InstallmentNumber int32  `json:"installmentNumber"`
	ThumbnailURL      string `json:"thumbnailUrl,omitempty"`
	DisplayURL        string `json:"displayUrl,omitempty"`
	OriginalURL       string `json:"originalUrl,omitempty"`
	CreatedAt         string `json:"createdAt"`
}

// UploadReceipt godoc
// @Summary Upload a payment receipt
// @Description Attach a JPEG or PNG receipt to an installment. The installment's state is not changed.
// @Tags receipts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contract ID"
// @Param number path int true "Installment number"
// @Param file formData file true "Receipt image"
// @Success 201 {object} ReceiptResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 503 {object} ProblemDetails
// @Router /contracts/{id}/installments/{number}/receipts [post]
func (h *ReceiptHandler) UploadReceipt(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	// Without storage there is nothing to upload to
	if h.receiptService == nil || !h.receiptService.IsEnabled() {
		return NewServiceUnavailableError(c, "Receipt uploads are disabled (storage not configured)")
	}

	contractID, err := parseIDParam(c, "id")
	if err != nil {
		return NewValidationError(c, "Invalid contract ID", nil)
	}
	number, err := parseIDParam(c, "number")
	if err != nil {
		return NewValidationError(c, "Invalid installment number", nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewValidationError(c, "No file provided", []ValidationError{
			{Field: "file", Message: "File is required"},
		})
	}
	if file.Size > service.MaxImageSize {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "file", Message: service.ErrImageTooLarge.Error()},
		})
	}

	src, err := file.Open()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open uploaded file")
		return NewInternalError(c, "Failed to process file")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, service.MaxImageSize+1))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read uploaded file")
		return NewInternalError(c, "Failed to read file")
	}

	view, err := h.receiptService.Upload(c.Request().Context(), workspaceID, contractID, number, data, file.Filename)
	if err != nil {
		if fieldErr := receiptFieldError(err); fieldErr != nil {
			return NewValidationError(c, "Validation failed", []ValidationError{*fieldErr})
		}
		return respondDomainError(c, err, "Failed to upload receipt")
	}

	return c.JSON(http.StatusCreated, toReceiptResponse(view))
}

// GetReceipts godoc
// @Summary List an installment's receipts
// @Description Receipt URLs are presigned and expire after 15 minutes
// @Tags receipts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contract ID"
// @Param number path int true "Installment number"
// @Success 200 {array} ReceiptResponse
// @Failure 404 {object} ProblemDetails
// @Router /contracts/{id}/installments/{number}/receipts [get]
func (h *ReceiptHandler) GetReceipts(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	contractID, err := parseIDParam(c, "id")
	if err != nil {
		return NewValidationError(c, "Invalid contract ID", nil)
	}
	number, err := parseIDParam(c, "number")
	if err != nil {
		return NewValidationError(c, "Invalid installment number", nil)
	}

	views, err := h.receiptService.ListReceipts(c.Request().Context(), workspaceID, contractID, number)
	if err != nil {
		return respondDomainError(c, err, "Failed to list receipts")
	}

	response := make([]ReceiptResponse, len(views))
	for i, view := range views {
		response[i] = toReceiptResponse(view)
	}
	return c.JSON(http.StatusOK, response)
}

// DeleteReceipt godoc
// @Summary Delete a receipt
// @Tags receipts
// @Security BearerAuth
// @Param id path int true "Contract ID"
// @Param receiptId path string true "Receipt ID"
// @Success 204
// @Failure 404 {object} ProblemDetails
// @Failure 503 {object} ProblemDetails
// @Router /contracts/{id}/receipts/{receiptId} [delete]
func (h *ReceiptHandler) DeleteReceipt(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	if h.receiptService == nil || !h.receiptService.IsEnabled() {
		return NewServiceUnavailableError(c, "Receipt deletion is disabled (storage not configured)")
	}

	contractID, err := parseIDParam(c, "id")
	if err != nil {
		return NewValidationError(c, "Invalid contract ID", nil)
	}
	receiptID, err := uuid.Parse(c.Param("receiptId"))
	if err != nil {
		return NewValidationError(c, "Invalid receipt ID", nil)
	}

	if err := h.receiptService.DeleteReceipt(c.Request().Context(), workspaceID, contractID, receiptID); err != nil {
		return respondDomainError(c, err, "Failed to delete receipt")
	}

	log.Info().
		Int32("workspace_id", workspaceID).
		Int32("contract_id", contractID).
		Str("receipt_id", receiptID.String()).
		Msg("Receipt deleted")

	return c.NoContent(http.StatusNoContent)
}

func receiptFieldError(err error) *ValidationError {
	for _, target := range []error{
		service.ErrImageTooLarge,
		service.ErrInvalidFormat,
		service.ErrImageTooSmall,
		service.ErrInvalidImageData,
		service.ErrTooManyReceipts,
	} {
		if errors.Is(err, target) {
			return &ValidationError{Field: "file", Message: err.Error()}
		}
	}
	return nil
}

func toReceiptResponse(view *service.ReceiptView) ReceiptResponse {
	return ReceiptResponse{
		ID:                view.ID.String(),
		ContractID:        view.ContractID,
		InstallmentNumber: view.InstallmentNumber,
		ThumbnailURL:      view.ThumbnailURL,
		DisplayURL:        view.DisplayURL,
		OriginalURL:       view.OriginalURL,
		CreatedAt:         view.CreatedAt.UTC().Format(time.RFC3339),
	}
}
