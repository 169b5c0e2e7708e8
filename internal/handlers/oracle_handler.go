package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"settlement-service/internal/models"
	"settlement-service/internal/repository"
	"settlement-service/internal/services"
	"settlement-service/internal/utils"

	"github.com/gofiber/fiber/v3"
)

type OracleHandler struct {
	oracle     *services.OracleCore
	severities *repository.SeverityCache
	middleware *Middleware
}

func NewOracleHandler(oracle *services.OracleCore, severities *repository.SeverityCache, middleware *Middleware) *OracleHandler {
	return &OracleHandler{oracle: oracle, severities: severities, middleware: middleware}
}

func (oh *OracleHandler) Register(app *fiber.App) {
	group := app.Group("/settlement/api/v1/oracle", oh.middleware.RequireCaller)

	group.Post("/fund", oh.Fund)
	group.Post("/seasons", oh.OpenSeason)
	group.Post("/seasons/:season/close", oh.CloseSeason)
	group.Post("/submissions", oh.Submit)
	group.Post("/aggregations", oh.Aggregate)

	group.Get("/balance", oh.GetBalance)
	group.Get("/seasons", oh.ListSeasons)
	group.Get("/seasons/:season", oh.GetSeasonState)
	group.Get("/seasons/:season/regions/:region/severity", oh.GetAggregatedSeverity)
	group.Get("/seasons/:season/regions/:region/tally", oh.GetSubmissionTally)
	group.Get("/seasons/:season/regions/:region/submissions/:oracle", oh.GetSubmission)
}

func (oh *OracleHandler) Fund(c fiber.Ctx) error {
	var req models.FundRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Invalid request body"))
	}
	if err := oh.oracle.Fund(c.Context(), Caller(c), req.Amount); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"balance": oh.oracle.Balance(),
	}))
}

func (oh *OracleHandler) OpenSeason(c fiber.Ctx) error {
	var req models.OpenSeasonRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Invalid request body"))
	}
	if err := oh.oracle.OpenSeason(c.Context(), req.Season, Caller(c)); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(utils.CreateSuccessResponse(fiber.Map{
		"season": req.Season,
		"state":  models.SeasonOpen,
	}))
}

func (oh *OracleHandler) CloseSeason(c fiber.Ctx) error {
	season, err := strconv.Atoi(c.Params("season"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Season must be an integer"))
	}
	if err := oh.oracle.CloseSeason(c.Context(), season, Caller(c)); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"season": season,
		"state":  models.SeasonClosed,
	}))
}

func (oh *OracleHandler) Submit(c fiber.Ctx) error {
	var req models.SubmitSeverityRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Invalid request body"))
	}
	if err := oh.oracle.Submit(c.Context(), req.Season, req.Region, req.Severity, Caller(c)); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(utils.CreateSuccessResponse(fiber.Map{
		"season":   req.Season,
		"region":   req.Region,
		"severity": req.Severity,
	}))
}

func (oh *OracleHandler) Aggregate(c fiber.Ctx) error {
	var req models.AggregateRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Invalid request body"))
	}
	severity, err := oh.oracle.Aggregate(c.Context(), req.Season, req.Region, Caller(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"season":   req.Season,
		"region":   req.Region,
		"severity": severity,
	}))
}

func (oh *OracleHandler) GetBalance(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"balance": oh.oracle.Balance(),
	}))
}

func (oh *OracleHandler) ListSeasons(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"seasons": oh.oracle.ListSeasons(),
	}))
}

func (oh *OracleHandler) GetSeasonState(c fiber.Ctx) error {
	season, err := strconv.Atoi(c.Params("season"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Season must be an integer"))
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"season": season,
		"state":  oh.oracle.GetSeasonState(season),
	}))
}

// GetAggregatedSeverity serves the Redis copy when one exists; aggregated
// severities are immutable so a cache hit is always current.
func (oh *OracleHandler) GetAggregatedSeverity(c fiber.Ctx) error {
	season, err := strconv.Atoi(c.Params("season"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Season must be an integer"))
	}
	region := c.Params("region")

	if oh.severities != nil {
		if severity, ok, err := oh.severities.Get(c.Context(), season, region); err == nil && ok {
			return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
				"season":     season,
				"region":     region,
				"severity":   severity,
				"aggregated": true,
			}))
		}
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"season":     season,
		"region":     region,
		"severity":   oh.oracle.GetAggregatedSeverity(season, region),
		"aggregated": oh.oracle.IsAggregated(season, region),
	}))
}

func (oh *OracleHandler) GetSubmissionTally(c fiber.Ctx) error {
	season, err := strconv.Atoi(c.Params("season"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Season must be an integer"))
	}
	region := c.Params("region")
	tally := oh.oracle.GetSubmissionTally(season, region)
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"season": season,
		"region": region,
		"tally":  tally,
	}))
}

func (oh *OracleHandler) GetSubmission(c fiber.Ctx) error {
	season, err := strconv.Atoi(c.Params("season"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Season must be an integer"))
	}
	region := c.Params("region")
	oracle := c.Params("oracle")
	submission, ok := oh.oracle.GetSubmission(season, region, oracle)
	if !ok {
		return respondError(c, models.ErrNotFound)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(submission))
}
