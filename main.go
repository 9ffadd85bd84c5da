package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"intake-service/internal/archive"
	"intake-service/internal/backoff"
	"intake-service/internal/boardsync"
	"intake-service/internal/config"
	"intake-service/internal/crm"
	"intake-service/internal/email"
	"intake-service/internal/fcm"
	"intake-service/internal/intake"
	"intake-service/internal/middleware"
	"intake-service/internal/service"
	"intake-service/internal/sse"
	"intake-service/internal/transport/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

var startTime time.Time

func main() {
	startTime = time.Now()
	cfg := config.Load()
	log.Printf("🔧 Service expected token: %s******", cfg.ServiceExpectedToken[:6])

	// The field catalog is a compile-time contract; a bad edit must kill the deploy,
	// not a sync at 2am.
	if err := boardsync.ValidateCatalog(); err != nil {
		log.Fatalf("❌ [CATALOG] %v", err)
	}
	log.Println("✅ [CATALOG] Field catalog validated")

	intake.InitDB(cfg)
	store := intake.NewStore(intake.GetDB())

	policy := backoff.Policy{
		MaxRetries: cfg.SyncMaxRetries,
		Initial:    cfg.SyncInitialDelay,
		Max:        cfg.SyncMaxDelay,
		Multiplier: cfg.SyncMultiplier,
	}

	boardClient, err := boardsync.NewClient(boardsync.ClientOptions{
		APIURL:     cfg.BoardAPIURL,
		Token:      cfg.BoardAPIToken,
		APIVersion: cfg.BoardAPIVersion,
		AppURL:     cfg.BoardAppURL,
		Backoff:    policy,
	})
	if err != nil {
		log.Fatalf("❌ [BOARD] Failed to initialize client: %v", err)
	}
	provisioner := boardsync.NewProvisioner(boardClient, boardsync.NewGormRegistry(intake.GetDB()), cfg.BoardID)
	orchestrator := boardsync.NewOrchestrator(boardClient, provisioner, store, cfg.BoardID, cfg.BoardGroupID, cfg.BoardDefaultPersonID)
	log.Printf("✅ [BOARD] Sync engine initialized (board %s, group %s)", cfg.BoardID, cfg.BoardGroupID)

	var crmClient *crm.Client
	if cfg.CRMEnabled() {
		crmClient, err = crm.NewClient(crm.ClientOptions{
			BaseURL:  cfg.CRMBaseURL,
			APIKey:   cfg.CRMAPIKey,
			SourceID: cfg.CRMSourceID,
			Tags:     cfg.CRMTags,
			Backoff:  policy,
		})
		if err != nil {
			log.Fatalf("❌ [CRM] Failed to initialize client: %v", err)
		}
		log.Printf("✅ [CRM] Lead client initialized (%s)", cfg.CRMBaseURL)
	} else {
		log.Println("⚠️ CRM sync disabled (no CRM_API_KEY)")
	}

	var archiveClient *archive.Client
	if cfg.R2AccountID != "" {
		archiveClient, err = archive.NewClient(archive.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		})
		if err != nil {
			log.Fatalf("❌ [R2] Failed to initialize audit archive: %v", err)
		}
		log.Println("✅ [R2] Audit archive initialized")
	} else {
		log.Println("⚠️ Audit archive disabled (no R2_ACCOUNT_ID)")
	}

	emailSender := email.NewSender(cfg)

	// Initialize FCM client
	var fcmClient *fcm.FCMClient
	fcmCredsJSON := os.Getenv("FIREBASE_CREDENTIALS_JSON")
	if fcmCredsJSON != "" {
		client, err := fcm.NewFCMClient(context.Background(), []byte(fcmCredsJSON))
		if err != nil {
			log.Fatalf("❌ Failed to initialize FCM: %v", err)
		}
		fcmClient = client
		log.Println("✅ FCM client initialized")
	} else {
		log.Println("⚠️ FCM disabled (no FIREBASE_CREDENTIALS_JSON)")
	}

	broker := sse.NewBroker()

	intakeService := service.NewIntakeService(cfg, store, orchestrator, crmClient, archiveClient, emailSender, fcmClient, broker)
	handler := http.NewHandler(intakeService, broker)
	refHandler := handler.GetReferralHandler()
	log.Println("✅ [SERVICE] IntakeService & Handler initialized")

	var authClient *service.AuthServiceClient
	if cfg.AuthServiceURL != "" {
		authClient = service.NewAuthServiceClient(cfg.AuthServiceURL, cfg.ServiceExpectedToken)
		log.Printf("✅ [AUTH] Auth service client initialized (%s)", cfg.AuthServiceURL)
	} else {
		log.Println("⚠️ AUTH_SERVICE_URL missing — SSE sync-status stream disabled")
	}

	app := fiber.New(fiber.Config{
		AppName:      "intake-service",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())

	// CORS configuration:
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,X-User-ID,X-User-Roles,X-Service-Token,Cache-Control",
		ExposeHeaders:    "Content-Type",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(logger.New(logger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${ua}\n",
	}))

	// 1. Public intake routes
	publicRoutes := app.Group("/v1")
	publicRoutes.Post("/referrals", refHandler.Submit)
	publicRoutes.Get("/form-kinds", refHandler.ListFormKinds)
	log.Println("✅ [ROUTES] Registered public routes: /v1/referrals, /v1/form-kinds")

	// 2. Staff dashboard routes (via Gateway + staff role)
	staffRoutes := app.Group("/admin", gatewayAuth(), staffRoleAuth())
	staffRoutes.Get("/referrals", refHandler.List)
	staffRoutes.Get("/referrals/:id", refHandler.Get)
	staffRoutes.Post("/referrals/:id/resync", refHandler.Resync)
	staffRoutes.Post("/referrals/backfill", refHandler.Backfill)
	staffRoutes.Post("/devices", refHandler.RegisterDevice)
	log.Println("✅ [ROUTES] Registered staff routes: /admin/*")

	// 3. Service-to-service routes
	serviceRoutes := app.Group("/svc/v1", serviceAuth(cfg))
	serviceRoutes.Post("/referrals", refHandler.Submit)
	serviceRoutes.Post("/referrals/backfill", refHandler.Backfill)
	log.Println("✅ [ROUTES] Registered service routes: /svc/v1/referrals")

	// 4. SSE sync-status stream (token in query; EventSource can't set headers)
	if authClient != nil {
		app.Get("/v1/sync/stream", middleware.SSEAuthMiddleware(authClient), refHandler.StreamSyncStatus)
		log.Println("✅ [ROUTES] Registered SSE route: /v1/sync/stream")
	}

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		uptime := time.Since(startTime).Round(time.Second)
		return c.JSON(fiber.Map{
			"status":      "ok",
			"service":     "intake-service",
			"uptime":      uptime.String(),
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"board_id":    cfg.BoardID,
			"crm_enabled": crmClient != nil,
			"fcm_enabled": fcmClient != nil,
			"sse_clients": broker.GetTotalClientCount(),
		})
	})
	log.Println("✅ [ROUTES] Registered /health")

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("🛑 [SHUTDOWN] Graceful shutdown initiated...")
		if err := app.Shutdown(); err != nil {
			log.Printf("❌ [SHUTDOWN] Error: %v", err)
		}
	}()

	log.Printf("🚀 intake-service starting...")
	log.Printf("   🔗 Listening on port: %s", cfg.ServerPort)
	log.Printf("   🌐 CORS allowed origins: %s", cfg.AllowedOrigins)
	log.Printf("   📋 Board: %s (group %s)", cfg.BoardID, cfg.BoardGroupID)
	log.Printf("   🤝 CRM: %v", crmClient != nil)
	log.Printf("   📦 R2 bucket: %s", cfg.R2BucketName)
	log.Printf("   🛡️  Service token prefix: %s******", cfg.ServiceExpectedToken[:6])
	log.Println("✅ Server ready.")

	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("❌ [STARTUP] Server failed to start: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var errMsg string
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		errMsg = e.Message
	} else {
		errMsg = err.Error()
	}
	log.Printf("🔥 [ERROR] [%d] %s %s → %v | IP=%s | UA=%s",
		code,
		c.Method(),
		c.Path(),
		errMsg,
		c.IP(),
		c.Get("User-Agent"),
	)
	return c.Status(code).JSON(fiber.Map{
		"error":      "something went wrong",
		"request_id": c.Get("X-Request-ID"),
	})
}

func serviceAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("X-Service-Token")
		if token == "" {
			authHeader := c.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}
		maskedToken := "<empty>"
		if token != "" {
			if len(token) > 6 {
				maskedToken = token[:6] + "..."
			} else {
				maskedToken = token
			}
		}
		if token != cfg.ServiceExpectedToken {
			log.Printf("[SERVICE-AUTH] ❌ REJECTED | IP=%s | Path=%s | Token=%s",
				c.IP(), c.Path(), maskedToken)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized: invalid or missing service token",
			})
		}
		log.Printf("[SERVICE-AUTH] ✅ ACCEPTED | IP=%s | Path=%s", c.IP(), c.Path())
		return c.Next()
	}
}

func gatewayAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		if userID == "" {
			log.Printf("[GATEWAY-AUTH] ❌ REJECTED | IP=%s | Path=%s", c.IP(), c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized: missing user context from Gateway",
			})
		}
		log.Printf("[GATEWAY-AUTH] ✅ ACCEPTED | UserID=%s | IP=%s | Path=%s", userID, c.IP(), c.Path())
		return c.Next()
	}
}

func staffRoleAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userRolesHeader := c.Get("X-User-Roles")
		if userRolesHeader == "" {
			log.Printf("[STAFF-AUTH] ❌ REJECTED (no roles) | Path=%s", c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden: missing user roles from Gateway",
			})
		}
		userRoles := strings.Split(userRolesHeader, ",")
		hasStaffRole := false
		for _, role := range userRoles {
			r := strings.ToLower(strings.TrimSpace(role))
			if r == "staff" || r == "admin" {
				hasStaffRole = true
				break
			}
		}
		if !hasStaffRole {
			log.Printf("[STAFF-AUTH] ❌ REJECTED (no staff role) | Roles=%v | Path=%s",
				userRoles, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden: staff role required",
			})
		}
		log.Printf("[STAFF-AUTH] ✅ ACCEPTED | Roles=%v | Path=%s", userRoles, c.Path())
		return c.Next()
	}
}
