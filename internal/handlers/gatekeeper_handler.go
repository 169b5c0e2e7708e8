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

type GatekeeperHandler struct {
	gatekeeper *services.Gatekeeper
	middleware *Middleware
}

func NewGatekeeperHandler(gatekeeper *services.Gatekeeper, middleware *Middleware) *GatekeeperHandler {
	return &GatekeeperHandler{gatekeeper: gatekeeper, middleware: middleware}
}

func (gh *GatekeeperHandler) Register(app *fiber.App) {
	group := app.Group("/settlement/api/v1/gatekeeper", gh.middleware.RequireCaller)

	group.Post("/roles", gh.AddRole)
	group.Post("/roles/:role/assignments", gh.AddAssignment)
	group.Delete("/roles/:role/assignments/:account", gh.RemoveAssignment)
	group.Post("/roles/:role/admins", gh.AddAdmin)
	group.Delete("/roles/:role/admins/self", gh.RenounceAdmin)
	group.Post("/breaker/on", gh.SwitchOn)
	group.Post("/breaker/off", gh.SwitchOff)

	group.Get("/breaker", gh.GetBreaker)
	group.Get("/roles/:role/admin", gh.GetRoleAdmin)
	group.Get("/roles/:role/assignments/:account", gh.GetAssignment)
	group.Get("/roles/:role/assignees/count", gh.GetAssigneesCount)
	group.Get("/roles/:role/assignees/:index", gh.GetAssigneeAt)
}

func (gh *GatekeeperHandler) AddRole(c fiber.Ctx) error {
	var req models.AddRoleRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Invalid request body"))
	}
	if err := gh.gatekeeper.AddRole(c.Context(), req.Role, req.AdminRole, Caller(c)); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(utils.CreateSuccessResponse(fiber.Map{
		"role":       req.Role,
		"admin_role": req.AdminRole,
	}))
}

func (gh *GatekeeperHandler) AddAssignment(c fiber.Ctx) error {
	var req models.AssignmentRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Invalid request body"))
	}
	role := models.RoleID(c.Params("role"))
	if err := gh.gatekeeper.AddAssignment(c.Context(), role, req.Account, Caller(c)); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(utils.CreateSuccessResponse(fiber.Map{
		"role":    role,
		"account": req.Account,
	}))
}

func (gh *GatekeeperHandler) RemoveAssignment(c fiber.Ctx) error {
	role := models.RoleID(c.Params("role"))
	account := c.Params("account")
	if err := gh.gatekeeper.RemoveAssignment(c.Context(), role, account, Caller(c)); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"role":    role,
		"account": account,
	}))
}

func (gh *GatekeeperHandler) AddAdmin(c fiber.Ctx) error {
	var req models.AssignmentRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Invalid request body"))
	}
	role := models.RoleID(c.Params("role"))
	if err := gh.gatekeeper.AddAdmin(c.Context(), role, req.Account, Caller(c)); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(utils.CreateSuccessResponse(fiber.Map{
		"role":    role,
		"account": req.Account,
	}))
}

func (gh *GatekeeperHandler) RenounceAdmin(c fiber.Ctx) error {
	role := models.RoleID(c.Params("role"))
	if err := gh.gatekeeper.RenounceAdmin(c.Context(), role, Caller(c)); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"role":    role,
		"account": Caller(c),
	}))
}

func (gh *GatekeeperHandler) SwitchOn(c fiber.Ctx) error {
	if err := gh.gatekeeper.SwitchOn(c.Context(), Caller(c)); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{"active": true}))
}

func (gh *GatekeeperHandler) SwitchOff(c fiber.Ctx) error {
	if err := gh.gatekeeper.SwitchOff(c.Context(), Caller(c)); err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{"active": false}))
}

func (gh *GatekeeperHandler) GetBreaker(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"active": gh.gatekeeper.IsActive(),
	}))
}

func (gh *GatekeeperHandler) GetRoleAdmin(c fiber.Ctx) error {
	role := models.RoleID(c.Params("role"))
	admin, err := gh.gatekeeper.RoleAdmin(role)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"role":       role,
		"admin_role": admin,
	}))
}

func (gh *GatekeeperHandler) GetAssignment(c fiber.Ctx) error {
	role := models.RoleID(c.Params("role"))
	account := c.Params("account")
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"role":     role,
		"account":  account,
		"assigned": gh.gatekeeper.IsAssigned(role, account),
		"admin":    gh.gatekeeper.IsAdmin(role, account),
	}))
}

func (gh *GatekeeperHandler) GetAssigneesCount(c fiber.Ctx) error {
	role := models.RoleID(c.Params("role"))
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"role":  role,
		"count": gh.gatekeeper.GetAssigneesCount(role),
	}))
}

func (gh *GatekeeperHandler) GetAssigneeAt(c fiber.Ctx) error {
	role := models.RoleID(c.Params("role"))
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse("INVALID_REQUEST", "Index must be an integer"))
	}
	account, err := gh.gatekeeper.GetAssigneeAt(role, index)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(fiber.Map{
		"role":    role,
		"index":   index,
		"account": account,
	}))
}
