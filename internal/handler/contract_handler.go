package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/middleware"
	"github.com/dafibh/rentals/rentals-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// ContractHandler handles contract-related HTTP requests
type ContractHandler struct {
	contractService *service.ContractService
}

// NewContractHandler creates a new ContractHandler
func NewContractHandler(contractService *service.ContractService) *ContractHandler {
	return &ContractHandler{contractService: contractService}
}

// ContractRequest represents the create/update contract request body
type ContractRequest struct {
	PropertyName  string  `json:"propertyName"`
	TenantName    string  `json:"tenantName"`
	Kind          string  `json:"kind"`
	IsMaintenance bool    `json:"isMaintenance"`
	StartDate     string  `json:"startDate"`
	EndDate       string  `json:"endDate"`
	TotalPrice    string  `json:"totalPrice"`
	Reserved      bool    `json:"reserved"`
	Notes         *string `json:"notes,omitempty"`
}

// InstallmentResponse represents an installment in API responses
type InstallmentResponse struct {
	Index          int    `json:"index"`
	Number         int32  `json:"number"`
	Label          string `json:"label"`
	Month          int32  `json:"month"`
	Year           int32  `json:"year"`
	Amount         string `json:"amount"`
	DueDate        string `json:"dueDate"`
	StoredState    string `json:"storedState"`
	EffectiveState string `json:"effectiveState"`
}

// ContractResponse represents a contract in API responses
type ContractResponse struct {
	ID           int32                 `json:"id"`
	WorkspaceID  int32                 `json:"workspaceId"`
	PropertyName string                `json:"propertyName"`
	TenantName   string                `json:"tenantName"`
	Kind         string                `json:"kind"`
	Status       string                `json:"status"`
	StartDate    string                `json:"startDate"`
	EndDate      string                `json:"endDate"`
	TotalPrice   string                `json:"totalPrice"`
	Reserved     bool                  `json:"reserved"`
	Notes        *string               `json:"notes,omitempty"`
	Installments []InstallmentResponse `json:"installments"`
	CreatedAt    string                `json:"createdAt"`
	UpdatedAt    string                `json:"updatedAt"`
}

// UpdateContractResponse reports the updated contract and what happened to its schedule
type UpdateContractResponse struct {
	Contract           ContractResponse `json:"contract"`
	Regenerated        bool             `json:"regenerated"`
	DiscardedPaidCount int              `json:"discardedPaidCount"`
}

// NextDueResponse represents the next upcoming installment
type NextDueResponse struct {
	Number        int32  `json:"number"`
	Amount        string `json:"amount"`
	DueDate       string `json:"dueDate"`
	DaysRemaining int    `json:"daysRemaining"`
}

// ProgressResponse represents contract payment progress in API responses
type ProgressResponse struct {
	PaidCount      int              `json:"paidCount"`
	TotalCount     int              `json:"totalCount"`
	OverdueCount   int              `json:"overdueCount"`
	DueTodayCount  int              `json:"dueTodayCount"`
	PaidAmount     string           `json:"paidAmount"`
	PendingAmount  string           `json:"pendingAmount"`
	TotalAmount    string           `json:"totalAmount"`
	PaidPercentage int              `json:"paidPercentage"`
	ElapsedMonths  int              `json:"elapsedMonths"`
	NextDue        *NextDueResponse `json:"nextDue"`
	AsOf           string           `json:"asOf"`
}

// CreateContract godoc
// @Summary Create a contract
// @Description Create a rental or maintenance contract. Rental contracts get a generated monthly schedule.
// @Tags contracts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ContractRequest true "Contract creation request"
// @Success 201 {object} ContractResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /contracts [post]
func (h *ContractHandler) CreateContract(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	var req ContractRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	input, fieldErrors := req.toInput()
	if len(fieldErrors) > 0 {
		return NewValidationError(c, "Validation failed", fieldErrors)
	}

	contract, err := h.contractService.CreateContract(c.Request().Context(), workspaceID, input)
	if err != nil {
		return respondDomainError(c, err, "Failed to create contract")
	}

	return c.JSON(http.StatusCreated, toContractResponse(contract, contract.Installments, h.contractService.Today()))
}

// GetContracts godoc
// @Summary List contracts
// @Description List the workspace's contracts, optionally filtered by status as of today
// @Tags contracts
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter" Enums(active, planned, finished, maintenance, reserved)
// @Param ongoing query bool false "Only contracts whose period contains today"
// @Success 200 {array} ContractResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /contracts [get]
func (h *ContractHandler) GetContracts(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	var filter domain.ContractFilter
	if raw := c.QueryParam("status"); raw != "" {
		status, ok := domain.ParseContractStatus(raw)
		if !ok {
			return NewValidationError(c, "Invalid status filter", []ValidationError{
				{Field: "status", Message: "Must be one of: active, planned, finished, maintenance, reserved"},
			})
		}
		filter.Status = &status
	}
	if raw := c.QueryParam("ongoing"); raw != "" {
		ongoing, err := strconv.ParseBool(raw)
		if err != nil {
			return NewValidationError(c, "Invalid ongoing filter", []ValidationError{
				{Field: "ongoing", Message: "Must be true or false"},
			})
		}
		filter.Ongoing = ongoing
	}

	contracts, err := h.contractService.ListContracts(c.Request().Context(), workspaceID, filter)
	if err != nil {
		log.Error().Err(err).Int32("workspace_id", workspaceID).Msg("Failed to list contracts")
		return NewInternalError(c, "Failed to list contracts")
	}

	today := h.contractService.Today()
	response := make([]ContractResponse, len(contracts))
	for i, contract := range contracts {
		response[i] = toContractResponse(contract, contract.Installments, today)
	}
	return c.JSON(http.StatusOK, response)
}

// GetContract godoc
// @Summary Get a contract
// @Tags contracts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contract ID"
// @Success 200 {object} ContractResponse
// @Failure 404 {object} ProblemDetails
// @Router /contracts/{id} [get]
func (h *ContractHandler) GetContract(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return NewValidationError(c, "Invalid contract ID", nil)
	}

	contract, err := h.contractService.GetContract(c.Request().Context(), workspaceID, id)
	if err != nil {
		return respondDomainError(c, err, "Failed to get contract")
	}

	return c.JSON(http.StatusOK, toContractResponse(contract, contract.Installments, h.contractService.Today()))
}

// GetInstallments godoc
// @Summary List a contract's installments
// @Description Installments with their stored and effective state as of today
// @Tags contracts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contract ID"
// @Success 200 {array} InstallmentResponse
// @Failure 404 {object} ProblemDetails
// @Router /contracts/{id}/installments [get]
func (h *ContractHandler) GetInstallments(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return NewValidationError(c, "Invalid contract ID", nil)
	}

	contract, err := h.contractService.GetContract(c.Request().Context(), workspaceID, id)
	if err != nil {
		return respondDomainError(c, err, "Failed to get installments")
	}

	return c.JSON(http.StatusOK, toInstallmentResponses(contract.Installments, h.contractService.Today()))
}

// UpdateContract godoc
// @Summary Update a contract
// @Description Changing dates, price or kind regenerates the schedule and discards paid markers
// @Tags contracts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contract ID"
// @Param request body ContractRequest true "Contract update request"
// @Success 200 {object} UpdateContractResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /contracts/{id} [put]
func (h *ContractHandler) UpdateContract(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return NewValidationError(c, "Invalid contract ID", nil)
	}

	var req ContractRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	input, fieldErrors := req.toInput()
	if len(fieldErrors) > 0 {
		return NewValidationError(c, "Validation failed", fieldErrors)
	}

	result, err := h.contractService.UpdateContract(c.Request().Context(), workspaceID, id, input)
	if err != nil {
		return respondDomainError(c, err, "Failed to update contract")
	}

	return c.JSON(http.StatusOK, UpdateContractResponse{
		Contract:           toContractResponse(result.Contract, result.Contract.Installments, h.contractService.Today()),
		Regenerated:        result.Regenerated,
		DiscardedPaidCount: result.DiscardedPaidCount,
	})
}

// DeleteContract godoc
// @Summary Delete a contract
// @Tags contracts
// @Security BearerAuth
// @Param id path int true "Contract ID"
// @Success 204
// @Failure 404 {object} ProblemDetails
// @Router /contracts/{id} [delete]
func (h *ContractHandler) DeleteContract(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return NewValidationError(c, "Invalid contract ID", nil)
	}

	if err := h.contractService.DeleteContract(c.Request().Context(), workspaceID, id); err != nil {
		return respondDomainError(c, err, "Failed to delete contract")
	}

	log.Info().Int32("workspace_id", workspaceID).Int32("contract_id", id).Msg("Contract deleted (soft)")
	return c.NoContent(http.StatusNoContent)
}

// GetProgress godoc
// @Summary Get contract payment progress
// @Tags contracts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contract ID"
// @Success 200 {object} ProgressResponse
// @Failure 404 {object} ProblemDetails
// @Router /contracts/{id}/progress [get]
func (h *ContractHandler) GetProgress(c echo.Context) error {
	workspaceID := middleware.GetWorkspaceID(c)
	if workspaceID == 0 {
		return NewUnauthorizedError(c, "Workspace required")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return NewValidationError(c, "Invalid contract ID", nil)
	}

	progress, err := h.contractService.GetProgress(c.Request().Context(), workspaceID, id)
	if err != nil {
		return respondDomainError(c, err, "Failed to get progress")
	}

	return c.JSON(http.StatusOK, toProgressResponse(*progress))
}

// toInput parses the request body into service input, collecting field errors
func (r ContractRequest) toInput() (service.ContractInput, []ValidationError) {
	var fieldErrors []ValidationError

	startDate, err := parseDate(r.StartDate)
	if err != nil {
		fieldErrors = append(fieldErrors, ValidationError{Field: "startDate", Message: "Must be a date in YYYY-MM-DD format"})
	}
	endDate, err := parseDate(r.EndDate)
	if err != nil {
		fieldErrors = append(fieldErrors, ValidationError{Field: "endDate", Message: "Must be a date in YYYY-MM-DD format"})
	}

	totalPrice := decimal.Zero
	if strings.TrimSpace(r.TotalPrice) != "" {
		totalPrice, err = decimal.NewFromString(strings.TrimSpace(r.TotalPrice))
		if err != nil {
			fieldErrors = append(fieldErrors, ValidationError{Field: "totalPrice", Message: "Must be a valid decimal number"})
		}
	}

	return service.ContractInput{
		PropertyName:  r.PropertyName,
		TenantName:    r.TenantName,
		Kind:          r.Kind,
		IsMaintenance: r.IsMaintenance,
		StartDate:     startDate,
		EndDate:       endDate,
		TotalPrice:    totalPrice,
		Reserved:      r.Reserved,
		Notes:         r.Notes,
	}, fieldErrors
}

// parseDate accepts an empty string as "not set"
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

func parseIDParam(c echo.Context, name string) (int32, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 32)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return int32(id), nil
}

// respondDomainError maps engine and repository errors onto problem details
func respondDomainError(c echo.Context, err error, action string) error {
	switch {
	case errors.Is(err, domain.ErrContractNotFound):
		return NewNotFoundError(c, "Contract not found")
	case errors.Is(err, domain.ErrSessionNotFound):
		return NewNotFoundError(c, "Editing session not found or expired")
	case errors.Is(err, domain.ErrInstallmentNotFound):
		return NewNotFoundError(c, "Installment not found")
	case errors.Is(err, domain.ErrReceiptNotFound):
		return NewNotFoundError(c, "Receipt not found")
	case errors.Is(err, domain.ErrBusy):
		return NewConflictError(c, err.Error())
	case errors.Is(err, domain.ErrInvalidSchedule):
		field := "schedule"
		var scheduleErr *domain.InvalidScheduleError
		if errors.As(err, &scheduleErr) && scheduleErr.Field != "" {
			field = scheduleErr.Field
		}
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: field, Message: err.Error()},
		})
	case errors.Is(err, domain.ErrPersistence):
		log.Warn().Err(err).Str("path", c.Request().URL.Path).Msg(action)
		return NewBadGatewayError(c, err.Error())
	}

	if fieldErr := contractFieldError(err); fieldErr != nil {
		return NewValidationError(c, "Validation failed", []ValidationError{*fieldErr})
	}

	log.Error().Err(err).Str("path", c.Request().URL.Path).Msg(action)
	return NewInternalError(c, action)
}

func contractFieldError(err error) *ValidationError {
	fields := []struct {
		target error
		field  string
	}{
		{domain.ErrContractPropertyRequired, "propertyName"},
		{domain.ErrContractPropertyTooLong, "propertyName"},
		{domain.ErrContractTenantTooLong, "tenantName"},
		{domain.ErrContractKindInvalid, "kind"},
		{domain.ErrContractDatesRequired, "startDate"},
		{domain.ErrContractDatesInvalid, "endDate"},
		{domain.ErrContractPriceInvalid, "totalPrice"},
		{domain.ErrInvalidStoredState, "state"},
	}
	for _, f := range fields {
		if errors.Is(err, f.target) {
			return &ValidationError{Field: f.field, Message: err.Error()}
		}
	}
	return nil
}

func toInstallmentResponses(installments []domain.Installment, today time.Time) []InstallmentResponse {
	response := make([]InstallmentResponse, len(installments))
	for i, inst := range installments {
		response[i] = InstallmentResponse{
			Index:          i,
			Number:         inst.Number,
			Label:          inst.Label(len(installments)),
			Month:          inst.Month,
			Year:           inst.Year,
			Amount:         inst.Amount.StringFixed(2),
			DueDate:        inst.DueDate.Format(dateLayout),
			StoredState:    string(inst.StoredState),
			EffectiveState: string(inst.EffectiveState(today)),
		}
	}
	return response
}

func toContractResponse(contract *domain.Contract, installments []domain.Installment, today time.Time) ContractResponse {
	return ContractResponse{
		ID:           contract.ID,
		WorkspaceID:  contract.WorkspaceID,
		PropertyName: contract.PropertyName,
		TenantName:   contract.TenantName,
		Kind:         string(contract.Kind),
		Status:       string(contract.Status(today)),
		StartDate:    contract.StartDate.Format(dateLayout),
		EndDate:      contract.EndDate.Format(dateLayout),
		TotalPrice:   contract.TotalPrice.StringFixed(2),
		Reserved:     contract.Reserved,
		Notes:        contract.Notes,
		Installments: toInstallmentResponses(installments, today),
		CreatedAt:    contract.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    contract.UpdatedAt.Format(time.RFC3339),
	}
}

func toProgressResponse(progress domain.Progress) ProgressResponse {
	resp := ProgressResponse{
		PaidCount:      progress.PaidCount,
		TotalCount:     progress.TotalCount,
		OverdueCount:   progress.OverdueCount,
		DueTodayCount:  progress.DueTodayCount,
		PaidAmount:     progress.PaidAmount.StringFixed(2),
		PendingAmount:  progress.PendingAmount.StringFixed(2),
		TotalAmount:    progress.TotalAmount.StringFixed(2),
		PaidPercentage: progress.PaidPercentage,
		ElapsedMonths:  progress.ElapsedMonths,
		AsOf:           progress.AsOf.Format(dateLayout),
	}
	if progress.NextDue != nil {
		resp.NextDue = &NextDueResponse{
			Number:        progress.NextDue.Installment.Number,
			Amount:        progress.NextDue.Installment.Amount.StringFixed(2),
			DueDate:       progress.NextDue.Installment.DueDate.Format(dateLayout),
			DaysRemaining: progress.NextDue.DaysRemaining,
		}
	}
	return resp
}
