package controllers

import (
	"time"

	"jpjportal_go/config"
	"jpjportal_go/middleware"
	"jpjportal_go/models"
	"jpjportal_go/services"

	"github.com/gofiber/fiber/v2"
)

type AuthController struct {
	auth *services.AuthService
}

func NewAuthController(auth *services.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

func (ac *AuthController) ShowLogin(c *fiber.Ctx) error {
	return render(c, "login", fiber.Map{"Title": "Log in"})
}

func (ac *AuthController) ShowRegister(c *fiber.Ctx) error {
	return render(c, "register", fiber.Map{"Title": "Register"})
}

func setTokenCookie(c *fiber.Ctx, token string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   config.AppConfig != nil && config.AppConfig.AppEnv == "production",
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func landingFor(user *models.User) string {
	if user.Role == models.RoleAdmin {
		return "/admin/sessions"
	}
	return "/portal"
}

// Login authenticates a user. Browsers get the token as a cookie, API
// clients in the body.
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req services.LoginInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/login")
	}

	user, err := ac.auth.Authenticate(c.UserContext(), req)
	if err != nil {
		return fail(c, err, "/login")
	}

	token, expires, err := middleware.GenerateToken(user)
	if err != nil {
		return fail(c, err, "/login")
	}

	middleware.LogActivity(c, "LOGIN", "auth", user.ID, fiber.Map{
		"username": user.Username,
		"role":     user.Role,
	})

	if middleware.WantsHTML(c) {
		setTokenCookie(c, token, expires)
		middleware.SetFlash(c, middleware.FlashSuccess, "Welcome back, "+user.Username)
		return c.Redirect(landingFor(user))
	}
	return c.JSON(fiber.Map{
		"message":    "Login successful",
		"token":      token,
		"expires_at": expires,
		"user":       user,
	})
}

// Register creates a student account and signs it in.
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req services.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/register")
	}

	user, err := ac.auth.Register(c.UserContext(), req)
	if err != nil {
		return fail(c, err, "/register")
	}
	middleware.LogActivity(c, "REGISTER", "users", user.ID, fiber.Map{"username": user.Username})

	token, expires, err := middleware.GenerateToken(user)
	if err != nil {
		return fail(c, err, "/login")
	}
	if middleware.WantsHTML(c) {
		setTokenCookie(c, token, expires)
		middleware.SetFlash(c, middleware.FlashSuccess, "Registration successful")
		return c.Redirect("/portal")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful",
		"token":   token,
		"user":    user,
	})
}

// Logout blacklists the current token when Redis is available and always
// clears the cookie.
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	if claims, err := middleware.GetCurrentClaims(c); err == nil {
		middleware.RevokeToken(c.UserContext(), claims)
		middleware.LogActivity(c, "LOGOUT", "auth", claims.UserID, fiber.Map{"username": claims.Username})
	}
	c.Cookie(&fiber.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
	})
	if middleware.WantsHTML(c) {
		middleware.SetFlash(c, middleware.FlashInfo, "You have been logged out")
		return c.Redirect("/login")
	}
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

func (ac *AuthController) Profile(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	if middleware.WantsHTML(c) {
		return render(c, "profile", fiber.Map{"Title": "My profile", "User": user})
	}
	return c.JSON(fiber.Map{"user": user})
}

func (ac *AuthController) ChangePassword(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return fail(c, err, "/login")
	}
	var req services.ChangePasswordInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, services.NewValidationError("body", "could not be read"), "/portal/profile")
	}
	if err := ac.auth.ChangePassword(c.UserContext(), userID, req); err != nil {
		return fail(c, err, "/portal/profile")
	}
	middleware.LogActivity(c, "CHANGE_PASSWORD", "users", userID, nil)
	return succeed(c, fiber.StatusOK, "Password changed successfully", "/portal/profile", nil)
}
