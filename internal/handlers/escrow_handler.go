package handlers

import (
	"net/http"

	"settlement-service/internal/services"
	"settlement-service/internal/utils"

	"github.com/gofiber/fiber/v3"
)

// EscrowHandler exposes the pull-payment side of both escrows. Deposits only
// ever happen inside the engines; the HTTP surface is withdrawal and reads.
type EscrowHandler struct {
	escrows    map[string]*services.Escrow
	middleware *Middleware
}

func NewEscrowHandler(oracleEscrow, insuranceEscrow *services.Escrow, middleware *Middleware) *EscrowHandler {
	return &EscrowHandler{
		escrows: map[string]*services.Escrow{
			"oracle":    oracleEscrow,
			"insurance": insuranceEscrow,
		},
		middleware: middleware,
	}
}

func (eh *EscrowHandler) Register(app *fiber.App) {
	group := app.Group("/settlement/api/v1/escrows/:escrow", eh.middleware.RequireCaller)

	group.Post("/withdraw", eh.Withdraw)
	group.Get("/balance", eh.GetBalance)
	group.Get("/total", eh.GetTotalHeld)
}

func (eh *EscrowHandler) escrow(c fiber.Ctx) (*services.Escrow, bool) {
	escrow, ok := eh.escrows[c.Params("escrow")]
	return escrow, ok
}

func (eh *EscrowHandler) Withdraw(c fiber.Ctx) error {
	escrow, ok := eh.escrow(c)
	if !ok {
		return c.Status(http.StatusNotFound).JSON(utils.CreateErrorResponse("NOT_FOUND", "Unknown escrow"))
	}
	amount, err := escrow.Withdraw(c.Context(), Caller(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"account": Caller(c),
		"amount":  amount,
	}))
}

func (eh *EscrowHandler) GetBalance(c fiber.Ctx) error {
	escrow, ok := eh.escrow(c)
	if !ok {
		return c.Status(http.StatusNotFound).JSON(utils.CreateErrorResponse("NOT_FOUND", "Unknown escrow"))
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"account": Caller(c),
		"balance": escrow.BalanceOf(Caller(c)),
	}))
}

func (eh *EscrowHandler) GetTotalHeld(c fiber.Ctx) error {
	escrow, ok := eh.escrow(c)
	if !ok {
		return c.Status(http.StatusNotFound).JSON(utils.CreateErrorResponse("NOT_FOUND", "Unknown escrow"))
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"total_held": escrow.TotalHeld(),
	}))
}
