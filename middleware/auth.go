package middleware

import (
	"context"
	"strings"
	"time"

	"jpjportal_go/config"
	"jpjportal_go/database"
	"jpjportal_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TokenCookie carries the JWT for browser sessions.
const TokenCookie = "token"

const blacklistPrefix = "jwt:blacklist:"

type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT token for a user
func GenerateToken(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(config.AppConfig.JWTExpiresIn)
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.AppConfig.JWTSecret))
	return signed, expires, err
}

// ParseToken validates a signed token and returns its claims.
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// RevokeToken blacklists a token until it would have expired anyway. Without
// Redis the cookie is still cleared by the caller.
func RevokeToken(ctx context.Context, claims *Claims) {
	rdb := database.GetRedisClient()
	if rdb == nil || claims == nil || claims.ID == "" {
		return
	}
	ttl := time.Hour
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return
	}
	if err := rdb.Set(ctx, blacklistPrefix+claims.ID, "1", ttl).Err(); err != nil {
		logrus.WithError(err).Warn("Failed to blacklist token")
	}
}

func isRevoked(ctx context.Context, jti string) bool {
	rdb := database.GetRedisClient()
	if rdb == nil || jti == "" {
		return false
	}
	n, err := rdb.Exists(ctx, blacklistPrefix+jti).Result()
	return err == nil && n > 0
}

// tokenFromRequest reads "Bearer <token>" or, for browsers, the token cookie.
func tokenFromRequest(c *fiber.Ctx) string {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString != authHeader {
			return tokenString
		}
		return ""
	}
	return c.Cookies(TokenCookie)
}

// WantsHTML reports whether the caller is a browser page rather than an API client.
func WantsHTML(c *fiber.Ctx) bool {
	if strings.HasPrefix(c.Path(), "/api/") {
		return false
	}
	return c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMETextHTML
}

func unauthorized(c *fiber.Ctx, msg string) error {
	if WantsHTML(c) {
		return c.Redirect("/login")
	}
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": msg,
	})
}

// JWTMiddleware validates JWT tokens
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			return unauthorized(c, "Missing authorization token")
		}

		claims, err := ParseToken(tokenString)
		if err != nil {
			return unauthorized(c, "Invalid token")
		}
		if isRevoked(c.UserContext(), claims.ID) {
			return unauthorized(c, "Token has been revoked")
		}

		// Verify user still exists and is active
		var user models.User
		if err := database.DB.Where("id = ? AND status = ?", claims.UserID, "active").First(&user).Error; err != nil {
			return unauthorized(c, "User not found or inactive")
		}

		c.Locals("user", &user)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// RequireRole middleware checks if user has required role
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("claims").(*Claims)
		if !ok {
			return unauthorized(c, "Missing user claims")
		}

		for _, role := range roles {
			if claims.Role == role {
				return c.Next()
			}
		}

		if WantsHTML(c) {
			return c.Status(fiber.StatusForbidden).Render("error", fiber.Map{
				"Title":   "Forbidden",
				"Message": "You do not have access to this page.",
			}, "layouts/main")
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient permissions",
		})
	}
}

// RequireAdmin allows administrators only
func RequireAdmin() fiber.Handler {
	return RequireRole(models.RoleAdmin)
}

// RequireStudent allows students only
func RequireStudent() fiber.Handler {
	return RequireRole(models.RoleStudent)
}

// GetCurrentUser returns the current authenticated user
func GetCurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "User not found in context")
	}
	return user, nil
}

// GetCurrentClaims returns the current JWT claims
func GetCurrentClaims(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals("claims").(*Claims)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Claims not found in context")
	}
	return claims, nil
}
