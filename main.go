package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jpjportal_go/config"
	"jpjportal_go/controllers"
	"jpjportal_go/database"
	"jpjportal_go/database/seeders"
	"jpjportal_go/middleware"
	"jpjportal_go/routes"
	"jpjportal_go/services"
	"jpjportal_go/services/notifications"
	"jpjportal_go/services/websocket"
	"jpjportal_go/services/workflow"
	"jpjportal_go/storage"
	"jpjportal_go/views"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

func init() {
	// Load configuration
	config.LoadConfig()

	// Initialize logging
	setupLogging()

	// Connect to database
	database.Connect()

	if config.AppConfig.SeedData {
		if err := seeders.SeedAll(); err != nil {
			log.Fatal("Failed to seed database:", err)
		}
	}
}

func main() {
	cfg := config.AppConfig
	loc := cfg.Location()
	db := database.GetDB()
	rdb := database.GetRedisClient()

	// Create WebSocket hub first
	wsHub := websocket.NewHub()
	go wsHub.Run()

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.MaxFileSize),
		Views:        views.Engine(loc),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: true,
	}))

	// Custom middleware
	app.Use(middleware.LoggerMiddleware())
	app.Use(middleware.LogActivityMiddleware())

	// Notifications go through Redis when it is up and are pushed over the hub
	notifService := notifications.NewService(db, rdb, wsHub)
	stopNotif := make(chan struct{})
	if rdb != nil {
		notifService.StartWorker(stopNotif)
	}

	// Multi-step flows (payments, mock tests) keep their state in Redis or MySQL
	var flowStore workflow.Store
	var purgeFlows func(ctx context.Context) (int64, error)
	if cfg.UseRedisWorkflow && rdb != nil {
		flowStore = workflow.NewRedisStore(rdb)
	} else {
		dbStore := workflow.NewDBStore(db)
		flowStore = dbStore
		purgeFlows = dbStore.Purge
	}
	engine := workflow.NewEngine(flowStore, cfg.WorkflowTTL)

	ledger := services.NewSlotLedger(db, cfg.CancelCutoff)
	ledger.SetNotifier(wsHub)
	ledger.SetLocation(loc)

	sessionService := services.NewExamSessionService(db, ledger, notifService, loc)
	resultService := services.NewResultService(db, notifService)
	questionService := services.NewQuestionService(db)
	mockTestService := services.NewMockTestService(db, engine, cfg.MockTestQuestions)
	renewalService := services.NewRenewalService(db, engine, loc)
	exportService := services.NewExportService(db, sessionService, questionService)
	authService := services.NewAuthService(db)

	var materialStore services.FileStore
	if s3Store, err := storage.NewStorageService(cfg); err != nil {
		logrus.WithError(err).Warn("S3 storage unavailable, material uploads disabled")
	} else {
		materialStore = s3Store
	}
	materialService := services.NewMaterialService(db, materialStore, strings.Split(cfg.AllowedExtensions, ","), cfg.MaxFileSize)

	var archiveStore services.ArchiveStore
	if awsConfig, err := awscfg.LoadDefaultConfig(context.Background(), awscfg.WithRegion(cfg.AWSRegion)); err != nil {
		logrus.WithError(err).Warn("AWS config unavailable, log archiving disabled")
	} else {
		archiveStore = services.NewS3ArchiveStore(awsConfig, cfg.S3BucketName)
	}
	logArchiveService := services.NewLogArchiveService(db, rdb, archiveStore)

	// Start housekeeping jobs
	maintenance := services.NewMaintenance(loc)
	if err := services.RegisterPortalJobs(maintenance, cfg.MaintenanceCron, services.PortalJobs{
		Ledger:        ledger,
		Renewals:      renewalService,
		Reminders:     services.NewExamReminders(db, notifService, loc),
		WorkflowPurge: purgeFlows,
		Logs:          logArchiveService,
		LogFlushAge:   time.Hour,
		ArchiveDays:   cfg.LogArchiveDays,
	}); err != nil {
		log.Fatal("Failed to register maintenance jobs:", err)
	}
	maintenance.Start()

	routes.SetupRoutes(app, &routes.Handlers{
		Auth:          controllers.NewAuthController(authService),
		Bookings:      controllers.NewBookingController(sessionService, ledger, resultService),
		MockTests:     controllers.NewMockTestController(mockTestService),
		Renewals:      controllers.NewRenewalController(renewalService),
		Admin:         controllers.NewAdminController(sessionService, questionService, resultService, exportService),
		Logs:          controllers.NewLogController(db, logArchiveService),
		Materials:     controllers.NewMaterialController(materialService),
		Notifications: controllers.NewNotificationController(db, notifService),
		Health:        controllers.NewHealthController(services.NewHealthService(db, rdb, "JPJ Portal", "1.0.0")),
		WebSocket:     controllers.NewWebSocketController(wsHub, db),
	})

	if cfg.AppEnv == "development" {
		for _, r := range app.Stack() {
			for _, route := range r {
				logrus.Debugf("Registered route: %s %s", route.Method, route.Path)
			}
		}
	}

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		if middleware.WantsHTML(c) {
			return c.Status(fiber.StatusNotFound).Render("error", fiber.Map{
				"Title":   "Page not found",
				"Code":    fiber.StatusNotFound,
				"Message": "The page you asked for does not exist.",
			}, "layouts/main")
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	log.Printf("Server starting on port %s", cfg.Port)
	log.Printf("JPJ Portal v1.0.0")
	log.Printf("Environment: %s", cfg.AppEnv)

	err := app.Listen(":" + cfg.Port)
	close(stopNotif)
	maintenance.Stop()
	database.Close()
	if err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// setupLogging configures the logging system
func setupLogging() {
	cfg := config.AppConfig

	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	// Log to stdout in development, to the log file otherwise
	if cfg.AppEnv == "development" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		log.Printf("Warning: Could not create logs directory: %v", err)
		return
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		logrus.SetOutput(file)
	}
}

// customErrorHandler handles errors no handler turned into a response
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	if middleware.WantsHTML(c) {
		return c.Status(code).Render("error", fiber.Map{
			"Title":   message,
			"Code":    code,
			"Message": message,
		}, "layouts/main")
	}
	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
