package handler

import (
	"github.com/dafibh/rentals/rentals-backend/internal/middleware"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Auth      *AuthHandler
	Contract  *ContractHandler
	Session   *SessionHandler
	Receipt   *ReceiptHandler
	WebSocket *WebSocketHandler
	OpenAPI   *OpenAPIHandler
}

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimiter *middleware.RateLimiter, h Handlers) {
	// API documentation (public)
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	if h.OpenAPI != nil {
		e.GET("/openapi.json", h.OpenAPI.Serve)
	}

	// WebSocket authenticates with its own token parameter
	if h.WebSocket != nil {
		e.GET("/ws", h.WebSocket.HandleWS)
	}

	// API version 1
	api := e.Group("/api/v1")

	// Auth routes. The callback runs before a workspace exists, so it only
	// needs a valid token.
	auth := api.Group("/auth")
	auth.POST("/callback", h.Auth.Callback, authMiddleware.AuthenticateToken())
	auth.GET("/me", h.Auth.Me, authMiddleware.Authenticate())
	auth.POST("/logout", h.Auth.Logout, authMiddleware.AuthenticateToken())

	protected := []echo.MiddlewareFunc{
		authMiddleware.Authenticate(),
		middleware.RateLimitMiddleware(rateLimiter),
	}

	// Contract routes (protected)
	contracts := api.Group("/contracts", protected...)
	contracts.POST("", h.Contract.CreateContract)
	contracts.GET("", h.Contract.GetContracts)
	contracts.GET("/:id", h.Contract.GetContract)
	contracts.PUT("/:id", h.Contract.UpdateContract)
	contracts.DELETE("/:id", h.Contract.DeleteContract)
	contracts.GET("/:id/progress", h.Contract.GetProgress)
	contracts.GET("/:id/installments", h.Contract.GetInstallments)
	contracts.POST("/:id/sessions", h.Session.OpenSession)

	// Receipt routes (protected)
	contracts.POST("/:id/installments/:number/receipts", h.Receipt.UploadReceipt)
	contracts.GET("/:id/installments/:number/receipts", h.Receipt.GetReceipts)
	contracts.DELETE("/:id/receipts/:receiptId", h.Receipt.DeleteReceipt)

	// Editing session routes (protected)
	sessions := api.Group("/sessions", protected...)
	sessions.GET("/:sessionId", h.Session.GetSession)
	sessions.PATCH("/:sessionId/installments/:index", h.Session.SetInstallmentState)
	sessions.POST("/:sessionId/save", h.Session.SaveSession)
	sessions.POST("/:sessionId/reload", h.Session.ReloadSession)
	sessions.DELETE("/:sessionId", h.Session.CloseSession)
}
