package routes

import (
	"jpjportal_go/controllers"
	"jpjportal_go/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups the controllers the routes are bound to.
type Handlers struct {
	Auth          *controllers.AuthController
	Bookings      *controllers.BookingController
	MockTests     *controllers.MockTestController
	Renewals      *controllers.RenewalController
	Admin         *controllers.AdminController
	Logs          *controllers.LogController
	Materials     *controllers.MaterialController
	Notifications *controllers.NotificationController
	Health        *controllers.HealthController
	WebSocket     *controllers.WebSocketController
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h *Handlers) {
	app.Get("/health", h.Health.GetHealthStatus)
	app.Get("/health/live", h.Health.Liveness)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// WebSocket upgrade and authentication
	app.Use("/ws", h.WebSocket.Upgrade)
	app.Get("/ws", h.WebSocket.WebSocketHandler())

	setupPages(app, h)
	setupAPI(app, h)
}

// setupPages registers the server-rendered portal.
func setupPages(app *fiber.App, h *Handlers) {
	student := middleware.RequireStudent()
	admin := middleware.RequireAdmin()

	app.Get("/", func(c *fiber.Ctx) error { return c.Redirect("/portal") })
	app.Get("/login", h.Auth.ShowLogin)
	app.Post("/login", h.Auth.Login)
	app.Get("/register", h.Auth.ShowRegister)
	app.Post("/register", h.Auth.Register)
	app.Post("/logout", middleware.JWTMiddleware(), h.Auth.Logout)

	portal := app.Group("/portal", middleware.JWTMiddleware())
	portal.Get("/", student, h.Bookings.Dashboard)
	portal.Get("/profile", h.Auth.Profile)
	portal.Post("/profile/password", h.Auth.ChangePassword)
	portal.Get("/materials", h.Materials.List)
	portal.Get("/notifications", h.Notifications.GetNotifications)
	portal.Post("/notifications/read-all", h.Notifications.MarkAllAsRead)
	portal.Post("/notifications/:id/read", h.Notifications.MarkAsRead)

	// Exam booking
	portal.Get("/sessions", student, h.Bookings.ListSessions)
	portal.Post("/bookings", student, h.Bookings.Book)
	portal.Get("/bookings", student, h.Bookings.MyBookings)
	portal.Get("/bookings/:id/cancel", student, h.Bookings.Cancel)
	portal.Get("/results", student, h.Bookings.Results)
	portal.Get("/results/:id/certificate", student, h.Bookings.Certificate)

	// Mock theory test
	portal.Get("/mock-test", student, h.MockTests.Start)
	portal.Post("/mock-test", student, h.MockTests.Submit)
	portal.Get("/mock-test/history", student, h.MockTests.History)
	portal.Get("/mock-test/:id", student, h.MockTests.Show)

	// Road tax and license renewals
	portal.Get("/renewals", student, h.Renewals.Index)
	portal.Get("/renewals/status", student, h.Renewals.Status)
	portal.Post("/renewals/vehicles", student, h.Renewals.RegisterVehicle)
	portal.Post("/renewals/licenses", student, h.Renewals.RegisterLicense)
	portal.Post("/renewals/road-tax", student, h.Renewals.RequestRoadTax)
	portal.Post("/renewals/license", student, h.Renewals.RequestLicense)
	portal.Get("/renewals/:kind/pay/:token", student, h.Renewals.ShowPayment)
	portal.Post("/renewals/:kind/pay/:token", student, h.Renewals.ConfirmPayment)
	portal.Get("/renewals/:kind/pay/:token/receipt", student, h.Renewals.Receipt)

	// Administration
	adm := app.Group("/admin", middleware.JWTMiddleware(), admin)
	adm.Get("/sessions", h.Admin.ListSessions)
	adm.Post("/sessions", h.Admin.CreateSession)
	adm.Get("/sessions/:id/roster", h.Admin.Roster)
	adm.Get("/sessions/:id/roster.xlsx", h.Admin.ExportRoster)
	adm.Post("/sessions/:id/cancel", h.Admin.CancelSession)
	adm.Post("/results", h.Admin.RecordResult)

	adm.Get("/questions", h.Admin.ListQuestions)
	adm.Post("/questions", h.Admin.CreateQuestion)
	adm.Get("/questions/template.xlsx", h.Admin.QuestionTemplate)
	adm.Post("/questions/import", h.Admin.ImportQuestions)
	adm.Post("/questions/:id", h.Admin.UpdateQuestion)
	adm.Post("/questions/:id/status", h.Admin.SetQuestionActive)

	adm.Post("/materials", h.Materials.Upload)
	adm.Post("/materials/:id/delete", h.Materials.Delete)

	adm.Get("/reports/renewals", h.Admin.RenewalReport)
	adm.Get("/reports/mock-tests", h.Admin.MockTestReport)

	adm.Get("/logs", h.Logs.ListArchives)
	adm.Post("/logs/archive", h.Logs.ArchiveLogs)
	adm.Get("/logs/archives/:id/download", h.Logs.DownloadArchive)
}

// setupAPI registers the JSON API used by mobile and scripted clients.
func setupAPI(app *fiber.App, h *Handlers) {
	api := app.Group("/api")

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", h.Auth.Login)
	auth.Post("/register", h.Auth.Register)

	// Protected routes (require authentication)
	protected := api.Group("/", middleware.JWTMiddleware())
	student := middleware.RequireStudent()

	protected.Post("/auth/logout", h.Auth.Logout)
	protected.Get("/profile", h.Auth.Profile)
	protected.Put("/profile/password", h.Auth.ChangePassword)
	protected.Get("/materials", h.Materials.List)

	notifications := protected.Group("/notifications")
	notifications.Get("/", h.Notifications.GetNotifications)
	notifications.Patch("/mark-all-read", h.Notifications.MarkAllAsRead)
	notifications.Patch("/:id/read", h.Notifications.MarkAsRead)

	protected.Get("/sessions", student, h.Bookings.ListSessions)
	protected.Post("/bookings", student, h.Bookings.Book)
	protected.Get("/bookings", student, h.Bookings.MyBookings)
	protected.Delete("/bookings/:id", student, h.Bookings.Cancel)
	protected.Get("/results", student, h.Bookings.Results)
	protected.Get("/results/:id/certificate", student, h.Bookings.Certificate)

	mock := protected.Group("/mock-tests", student)
	mock.Post("/", h.MockTests.Start)
	mock.Post("/submit", h.MockTests.Submit)
	mock.Get("/", h.MockTests.History)
	mock.Get("/:id", h.MockTests.Show)

	renewals := protected.Group("/renewals", student)
	renewals.Get("/", h.Renewals.Index)
	renewals.Get("/quote", h.Renewals.Quote)
	renewals.Get("/status", h.Renewals.Status)
	renewals.Post("/vehicles", h.Renewals.RegisterVehicle)
	renewals.Post("/licenses", h.Renewals.RegisterLicense)
	renewals.Post("/road-tax", h.Renewals.RequestRoadTax)
	renewals.Post("/license", h.Renewals.RequestLicense)
	renewals.Get("/:kind/payments/:token", h.Renewals.ShowPayment)
	renewals.Post("/:kind/payments/:token/confirm", h.Renewals.ConfirmPayment)

	// Administration (admin only)
	adm := protected.Group("/admin", middleware.RequireAdmin())
	adm.Get("/sessions", h.Admin.ListSessions)
	adm.Post("/sessions", h.Admin.CreateSession)
	adm.Get("/sessions/:id/roster", h.Admin.Roster)
	adm.Post("/sessions/:id/cancel", h.Admin.CancelSession)
	adm.Post("/results", h.Admin.RecordResult)
	adm.Get("/questions", h.Admin.ListQuestions)
	adm.Post("/questions", h.Admin.CreateQuestion)
	adm.Put("/questions/:id", h.Admin.UpdateQuestion)
	adm.Patch("/questions/:id/status", h.Admin.SetQuestionActive)
	adm.Post("/questions/import", h.Admin.ImportQuestions)
	adm.Post("/materials", h.Materials.Upload)
	adm.Delete("/materials/:id", h.Materials.Delete)
	adm.Post("/notifications", h.Notifications.CreateNotification)
	adm.Get("/logs", h.Logs.GetLogs)
	adm.Post("/logs/flush-cache", h.Logs.FlushCachedLogs)
	adm.Post("/logs/archive", h.Logs.ArchiveLogs)
	adm.Get("/logs/archives", h.Logs.ListArchives)
	adm.Get("/ws/stats", h.WebSocket.GetWebSocketStats)
}
