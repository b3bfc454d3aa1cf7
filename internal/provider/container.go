package provider

import (
	"github.com/pixvend/internal/cache"
	"github.com/pixvend/internal/config"
	"github.com/pixvend/internal/logger"
	"github.com/pixvend/internal/models"
	"github.com/pixvend/internal/queue"
	"github.com/pixvend/internal/repository"
	"github.com/pixvend/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	UserRepo           repository.UserRepository
	PlanRepo           repository.PlanRepository
	OrderRepo          repository.OrderRepository
	PaymentRepo        repository.PaymentRepository
	GatewayAttemptRepo repository.GatewayAttemptRepository
	ProcessedRepo      repository.ProcessedWebhookRepository
	LicenseRepo        repository.LicenseRepository
	SubscriptionRepo   repository.SubscriptionRepository
	ReservationRepo    repository.InventoryReservationRepository
	ReconRepo          repository.ReconciliationRepository

	// Services
	AuthService           *service.AuthService
	EmailService          *service.EmailService
	NotificationService   *service.NotificationService
	OrderService          *service.OrderService
	ChargeService         *service.ChargeService
	WebhookService        *service.WebhookService
	FulfillmentService    *service.FulfillmentService
	ReconciliationService *service.ReconciliationService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.UserRepo = repository.NewUserRepository(db)
	c.PlanRepo = repository.NewPlanRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.GatewayAttemptRepo = repository.NewGatewayAttemptRepository(db)
	c.ProcessedRepo = repository.NewProcessedWebhookRepository(db)
	c.LicenseRepo = repository.NewLicenseRepository(db)
	c.SubscriptionRepo = repository.NewSubscriptionRepository(db)
	c.ReservationRepo = repository.NewInventoryReservationRepository(db)
	c.ReconRepo = repository.NewReconciliationRepository(db)
}

func (c *Container) initServices() {
	c.AuthService = service.NewAuthService(&c.Config.JWT)
	c.EmailService = service.NewEmailService(&c.Config.Email)
	c.NotificationService = service.NewNotificationService(c.QueueClient, c.EmailService)

	c.OrderService = service.NewOrderService(c.OrderRepo, c.PlanRepo, c.PaymentRepo, c.ReservationRepo, c.QueueClient, &c.Config.Order)
	c.FulfillmentService = service.NewFulfillmentService(c.OrderRepo, c.PaymentRepo, c.PlanRepo, c.LicenseRepo, c.SubscriptionRepo, c.ReservationRepo)

	adapters := service.BuildGatewayAdapters(&c.Config.Payment)
	c.ChargeService = service.NewChargeService(c.OrderRepo, c.PaymentRepo, c.GatewayAttemptRepo, adapters, c.NotificationService)
	c.WebhookService = service.NewWebhookService(c.OrderRepo, c.PaymentRepo, c.ProcessedRepo, c.OrderService, c.FulfillmentService, &c.Config.Payment)
	c.ReconciliationService = service.NewReconciliationService(c.OrderRepo, c.PaymentRepo, c.PlanRepo, c.LicenseRepo, c.SubscriptionRepo, c.ReservationRepo, c.ReconRepo, c.FulfillmentService, c.OrderService, c.NotificationService, &c.Config.Reconciliation)
}
