package api

import (
	"unlock-api/internal/config"
	"unlock-api/internal/middleware"
	"unlock-api/internal/services"

	"github.com/gin-gonic/gin"
)

var (
	gatewayRegistry *services.GatewayRegistry
	reconciler      *services.ReconciliationService
	stripeGateway   *services.StripeGateway
	replayGuard     *services.ReplayGuard
	diagnosisSvc    *services.DiagnosisService
)

// SetupRoutes wires services and registers all routes.
func SetupRoutes(r *gin.Engine) {
	cfg := config.AppConfig

	stripeGateway = services.NewStripeGateway(cfg)
	gatewayRegistry = services.NewGatewayRegistry(
		stripeGateway,
		services.NewPayPayGateway(cfg),
		services.NewLinePayGateway(cfg),
	)
	reconciler = services.NewReconciliationService(gatewayRegistry, services.NewNotificationService())
	replayGuard = services.NewReplayGuard()
	diagnosisSvc = services.NewDiagnosisService()

	// API route group
	api := r.Group("/api")
	{
		// Client routes (require API key)
		client := api.Group("")
		client.Use(middleware.APIKeyAuthMiddleware())
		{
			client.POST("/diagnosis", CreateDiagnosis)
			client.GET("/diagnosis/:id", GetDiagnosis)

			client.POST("/purchase/open", OpenPurchase)
			client.POST("/purchase/verify", VerifyPurchase)
			client.GET("/purchase/status", GetPurchaseStatus)
			client.GET("/purchase/history", GetPurchaseHistory)
		}

		// Gateway webhook routes (no API key; authenticated by signature)
		webhook := api.Group("/webhook")
		{
			webhook.POST("/stripe", StripeWebhookHandler)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "unlock-api",
		})
	})
}
