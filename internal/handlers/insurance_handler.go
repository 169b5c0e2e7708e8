package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"settlement-service/internal/models"
	"settlement-service/internal/services"
	"settlement-service/internal/utils"

	"github.com/gofiber/fiber/v3"
)

type InsuranceHandler struct {
	pool       *services.InsurancePool
	middleware *Middleware
}

func NewInsuranceHandler(pool *services.InsurancePool, middleware *Middleware) *InsuranceHandler {
	return &InsuranceHandler{pool: pool, middleware: middleware}
}

func (ih *InsuranceHandler) Register(app *fiber.App) {
	group := app.Group("/settlement/api/v1/insurance", ih.middleware.RequireCaller)

	group.Post("/fund", ih.Fund)
	group.Post("/policies", ih.RegisterPolicy)
	group.Post("/policies/validate", ih.ValidatePolicy)
	group.Post("/policies/activate", ih.ActivatePolicy)
	group.Post("/process", ih.Process)

	group.Get("/balance", ih.GetBalance)
	group.Get("/minimum", ih.GetMinimumAmount)
	group.Get("/exposure", ih.GetExposure)
	group.Get("/policies/:season/:region/:farmID", ih.GetPolicy)
	group.Get("/contracts/:season/:region/open", ih.GetOpenContracts)
	group.Get("/contracts/:season/:region/closed", ih.GetClosedContracts)
	group.Get("/seasons/:season/open-regions", ih.GetOpenRegions)
}

func (ih *InsuranceHandler) Fund(c fiber.Ctx) error {
	var req models.FundRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Invalid request body"))
	}
	if err := ih.pool.Fund(c.Context(), Caller(c), req.Amount); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"balance": ih.pool.Balance(),
		"minimum": ih.pool.MinimumAmount(),
	}))
}

func (ih *InsuranceHandler) RegisterPolicy(c fiber.Ctx) error {
	var req models.RegisterPolicyRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Invalid request body"))
	}
	if err := ih.pool.Register(c.Context(), req.Season, req.Region, req.FarmID, req.Size, req.Fee, Caller(c)); err != nil {
		return respondError(c, err)
	}
	policy, err := ih.pool.GetPolicy(req.Season, req.Region, req.FarmID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(utils.CreateSuccessResponse(policy))
}

func (ih *InsuranceHandler) ValidatePolicy(c fiber.Ctx) error {
	var req models.ValidatePolicyRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Invalid request body"))
	}
	if err := ih.pool.Validate(c.Context(), req.Season, req.Region, req.FarmID, req.Fee, Caller(c)); err != nil {
		return respondError(c, err)
	}
	policy, err := ih.pool.GetPolicy(req.Season, req.Region, req.FarmID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(policy))
}

func (ih *InsuranceHandler) ActivatePolicy(c fiber.Ctx) error {
	var req models.ActivatePolicyRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Invalid request body"))
	}
	if err := ih.pool.Activate(c.Context(), req.Season, req.Region, req.FarmID, Caller(c)); err != nil {
		return respondError(c, err)
	}
	policy, err := ih.pool.GetPolicy(req.Season, req.Region, req.FarmID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(policy))
}

func (ih *InsuranceHandler) Process(c fiber.Ctx) error {
	var req models.ProcessRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Invalid request body"))
	}
	if err := ih.pool.Process(c.Context(), req.Season, req.Region, Caller(c)); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"season":  req.Season,
		"region":  req.Region,
		"settled": ih.pool.GetNumberClosedContracts(req.Season, req.Region),
	}))
}

func (ih *InsuranceHandler) GetBalance(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"balance": ih.pool.Balance(),
	}))
}

func (ih *InsuranceHandler) GetMinimumAmount(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"minimum_amount": ih.pool.MinimumAmount(),
	}))
}

func (ih *InsuranceHandler) GetExposure(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"open_contracts": ih.pool.TotalOpenContracts(),
		"open_size":      ih.pool.TotalOpenSize(),
		"minimum_amount": ih.pool.MinimumAmount(),
		"balance":        ih.pool.Balance(),
	}))
}

func (ih *InsuranceHandler) GetPolicy(c fiber.Ctx) error {
	season, err := strconv.Atoi(c.Params("season"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Season must be an integer"))
	}
	policy, err := ih.pool.GetPolicy(season, c.Params("region"), c.Params("farmID"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(policy))
}

func (ih *InsuranceHandler) GetOpenContracts(c fiber.Ctx) error {
	return ih.listContracts(c, ih.pool.GetNumberOpenContracts, ih.pool.GetOpenContractAt)
}

func (ih *InsuranceHandler) GetClosedContracts(c fiber.Ctx) error {
	return ih.listContracts(c, ih.pool.GetNumberClosedContracts, ih.pool.GetClosedContractAt)
}

func (ih *InsuranceHandler) listContracts(
	c fiber.Ctx,
	count func(int, string) int,
	at func(int, string, int) (models.Policy, error),
) error {
	season, err := strconv.Atoi(c.Params("season"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Season must be an integer"))
	}
	region := c.Params("region")
	total := count(season, region)
	policies := make([]models.Policy, 0, total)
	for i := 0; i < total; i++ {
		policy, err := at(season, region, i)
		if err != nil {
			return respondError(c, err)
		}
		policies = append(policies, policy)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"season":    season,
		"region":    region,
		"count":     total,
		"contracts": policies,
	}))
}

func (ih *InsuranceHandler) GetOpenRegions(c fiber.Ctx) error {
	season, err := strconv.Atoi(c.Params("season"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Season must be an integer"))
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"season":  season,
		"regions": ih.pool.OpenRegions(season),
	}))
}
