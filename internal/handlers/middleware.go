package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"settlement-service/internal/utils"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
)

const callerLocal = "caller"

// CallerClaims is the token payload: the acting protocol account the host
// authenticated. The core never trusts ambient identity; this middleware
// extracts the account once and every operation receives it as an explicit
// caller argument.
type CallerClaims struct {
	jwt.RegisteredClaims
	Account string `json:"account"`
}

type Middleware struct {
	jwtSecret string
}

func NewMiddleware(jwtSecret string) *Middleware {
	return &Middleware{jwtSecret: jwtSecret}
}

// RequireCaller rejects requests without a valid bearer token and stores the
// caller account for downstream handlers.
func (m *Middleware) RequireCaller(c fiber.Ctx) error {
	header := c.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return c.Status(http.StatusUnauthorized).JSON(
			utils.CreateErrorResponse("UNAUTHORIZED", "Bearer token is required"))
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.ParseWithClaims(
		tokenString,
		&CallerClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(m.jwtSecret), nil
		},
	)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(
			utils.CreateErrorResponse("UNAUTHORIZED", "Invalid token"))
	}

	claims, ok := token.Claims.(*CallerClaims)
	if !ok || !token.Valid || claims.Account == "" {
		return c.Status(http.StatusUnauthorized).JSON(
			utils.CreateErrorResponse("UNAUTHORIZED", "Token carries no account"))
	}

	c.Locals(callerLocal, claims.Account)
	return c.Next()
}

// Caller returns the account the middleware authenticated for this request.
func Caller(c fiber.Ctx) string {
	if account, ok := c.Locals(callerLocal).(string); ok {
		return account
	}
	return ""
}
