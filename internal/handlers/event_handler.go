package handlers

import (
	"net/http"
	"strconv"

	"settlement-service/internal/repository"
	"settlement-service/internal/utils"

	"github.com/gofiber/fiber/v3"
)

const defaultAccountEventLimit = 100

// EventHandler serves the persisted audit trail.
type EventHandler struct {
	journal    *repository.SettlementJournal
	middleware *Middleware
}

func NewEventHandler(journal *repository.SettlementJournal, middleware *Middleware) *EventHandler {
	return &EventHandler{journal: journal, middleware: middleware}
}

func (eh *EventHandler) Register(app *fiber.App) {
	group := app.Group("/settlement/api/v1/events", eh.middleware.RequireCaller)

	group.Get("/seasons/:season", eh.ListBySeason)
	group.Get("/accounts/:account", eh.ListByAccount)
}

func (eh *EventHandler) ListBySeason(c fiber.Ctx) error {
	season, err := strconv.Atoi(c.Params("season"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Season must be an integer"))
	}
	events, err := eh.journal.ListBySeason(c.Context(), season)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(utils.CreateErrorResponse("INTERNAL_ERROR", "Failed to list events"))
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"season": season,
		"events": events,
	}))
}

func (eh *EventHandler) ListByAccount(c fiber.Ctx) error {
	account := c.Params("account")
	limit := defaultAccountEventLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Limit must be a positive integer"))
		}
		limit = parsed
	}
	events, err := eh.journal.ListByAccount(c.Context(), account, limit)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(utils.CreateErrorResponse("INTERNAL_ERROR", "Failed to list events"))
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"account": account,
		"events":  events,
	}))
}
