package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/vending-service/internal/api/dto"
	"github.com/spec-kit/vending-service/internal/service"
	apperrors "github.com/spec-kit/vending-service/pkg/util"
)

// UnlockHandler exposes the unlock endpoint.
type UnlockHandler struct {
	unlockService *service.UnlockService
}

// NewUnlockHandler returns a new handler instance.
func NewUnlockHandler(unlockService *service.UnlockService) *UnlockHandler {
	return &UnlockHandler{unlockService: unlockService}
}

// Unlock issues a single-use credential and dispatches the unlock
// command for the requested door.
func (h *UnlockHandler) Unlock(c *fiber.Ctx) error {
	var req dto.UnlockRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}

	token, err := h.unlockService.Unlock(c.UserContext(), req.OrderID, req.Door, req.Email)
	if err != nil {
		return err
	}

	return c.JSON(dto.UnlockResponse{OK: true, Token: token})
}
