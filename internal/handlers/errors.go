package handlers

import (
	"errors"
	"net/http"

	"settlement-service/internal/models"
	"settlement-service/internal/utils"

	"github.com/gofiber/fiber/v3"
)

// respondError maps core sentinel errors onto HTTP statuses so handlers stay
// thin. Unknown errors are reported as 500 without leaking internals.
func respondError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return c.Status(http.StatusForbidden).JSON(
			utils.CreateErrorResponse("FORBIDDEN", err.Error()))
	case errors.Is(err, models.ErrContractSuspended):
		return c.Status(http.StatusServiceUnavailable).JSON(
			utils.CreateErrorResponse("SUSPENDED", err.Error()))
	case errors.Is(err, models.ErrNotFound):
		return c.Status(http.StatusNotFound).JSON(
			utils.CreateErrorResponse("NOT_FOUND", err.Error()))
	case errors.Is(err, models.ErrInsufficientFunds):
		return c.Status(http.StatusPaymentRequired).JSON(
			utils.CreateErrorResponse("INSUFFICIENT_FUNDS", err.Error()))
	case errors.Is(err, models.ErrInvalidSeverity):
		return c.Status(http.StatusBadRequest).JSON(
			utils.CreateErrorResponse("INVALID_SEVERITY", err.Error()))
	case errors.Is(err, models.ErrDuplicate),
		errors.Is(err, models.ErrAlreadyExists),
		errors.Is(err, models.ErrAlreadyAssigned),
		errors.Is(err, models.ErrAlreadyAggregated),
		errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrNothingToWithdraw):
		return c.Status(http.StatusConflict).JSON(
			utils.CreateErrorResponse("CONFLICT", err.Error()))
	default:
		return c.Status(http.StatusInternalServerError).JSON(
			utils.CreateErrorResponse("INTERNAL_ERROR", "Internal server error"))
	}
}
