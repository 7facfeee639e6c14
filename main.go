package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"reward-progression-system/handlers"
	"reward-progression-system/middleware"
	"reward-progression-system/models"
	"reward-progression-system/services"
	"reward-progression-system/utils"
	"reward-progression-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // badge icons only
	})

	// Only gateway-authenticated requests get in.
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Admin-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.UserProfile{},
		&models.LedgerEntry{},
		&models.GroupConfig{},
		&models.BadgeDefinition{},
		&models.UserBadge{},
		&models.Milestone{},
		&models.UserMilestoneAchievement{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// Badge icon storage is optional; uploads fail gracefully without it.
	if os.Getenv("R2_BUCKET_NAME") != "" {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
	}

	// Explicit wiring, no singletons: every component gets its dependencies
	// handed to it once, here.
	configProvider := services.NewConfigProvider(db)
	if err := configProvider.EnsureGlobalDefaults(); err != nil {
		log.Fatal("failed to seed global config:", err)
	}

	ledgerStore := services.NewLedgerStore(db, configProvider)
	levelEngine := services.NewLevelEngine()
	badgeEngine := services.NewBadgeRuleEngine(db)
	milestoneEngine := services.NewMilestoneEngine(db, ledgerStore, badgeEngine)

	dispatcher := workers.NewBroadcastDispatcher(workers.NewTelegramClient(), configProvider)
	processor := services.NewRewardProcessor(ledgerStore, configProvider, levelEngine, badgeEngine, milestoneEngine, dispatcher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go dispatcher.Run(ctx)

	ledgerStore.StartMaintenanceScheduler()

	handlers.SetupEventRoutes(app, processor)
	handlers.SetupProfileRoutes(app, ledgerStore, badgeEngine)
	handlers.SetupAdminRoutes(app, configProvider, ledgerStore, badgeEngine)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Reward engine running on http://localhost:%s", port)
	log.Println("✅ Broadcast dispatcher running")
	log.Println("✅ Ledger reconciliation scheduled")

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
