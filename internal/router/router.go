package router

import (
	"fmt"
	"strings"

	"github.com/pixvend/internal/cache"
	"github.com/pixvend/internal/config"
	adminhandlers "github.com/pixvend/internal/http/handlers/admin"
	publichandlers "github.com/pixvend/internal/http/handlers/public"
	"github.com/pixvend/internal/logger"
	"github.com/pixvend/internal/provider"

	"github.com/gin-gonic/gin"
)

// 管理端登录限流，防止口令爆破。
const adminLoginRateWindowSeconds = 60
const adminLoginRateMaxRequests = 10

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "pv"
	}
	redisClient := cache.Client()
	webhookRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:webhook", redisPrefix),
		WindowSeconds: cfg.Payment.WebhookRateLimit.WindowSeconds,
		MaxRequests:   cfg.Payment.WebhookRateLimit.MaxRequests,
		Message:       "回调请求过于频繁，请稍后再试",
	}
	adminLoginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: adminLoginRateWindowSeconds,
		MaxRequests:   adminLoginRateMaxRequests,
		Message:       "登录尝试过于频繁，请稍后再试",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 下单与收款
		apiV1.POST("/orders", publicHandler.CreateOrder)
		apiV1.GET("/orders/:order_no", publicHandler.GetOrderByOrderNo)
		apiV1.POST("/payments/charge", publicHandler.CreateCharge)

		// 网关回调，按来源 IP 与端点分别限流
		webhook := apiV1.Group("/payments/webhook")
		webhook.Use(RateLimitMiddleware(redisClient, webhookRule, KeyByIPAndPath))
		{
			webhook.POST("/mercadopago", publicHandler.MercadoPagoWebhook)
			webhook.POST("/asaas", publicHandler.AsaasWebhook)
			webhook.POST("/efipay", publicHandler.EfiPayWebhook)
			webhook.POST("/openpix", publicHandler.OpenPixWebhook)
		}

		// 管理端接口
		admin := apiV1.Group("/admin")
		{
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIPAndJSONField("email")), adminHandler.Login)

			authorized := admin.Use(OperatorJWTAuthMiddleware(c.AuthService, c.UserRepo))
			{
				authorized.GET("/orders", adminHandler.ListOrders)
				authorized.GET("/orders/:order_no", adminHandler.GetOrder)
				authorized.GET("/payments", adminHandler.ListPayments)
				authorized.GET("/gateway-attempts", adminHandler.ListGatewayAttempts)
				authorized.POST("/reconciliation/runs", adminHandler.TriggerReconciliation)
				authorized.GET("/reconciliation/runs", adminHandler.ListReconciliationRuns)
				authorized.GET("/reconciliation/runs/:id", adminHandler.GetReconciliationRun)
				authorized.GET("/reconciliation/audit-logs", adminHandler.ListAuditLogs)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
