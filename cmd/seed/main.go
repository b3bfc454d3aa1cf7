package main

import (
	"fmt"
	"os"

	"github.com/pixvend/internal/config"
	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/logger"
	"github.com/pixvend/internal/models"
	"github.com/pixvend/internal/service"

	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 添加演示方案
	plans := []models.Plan{
		{
			Name:         "专业版许可证（30 天）",
			ProductType:  constants.ProductTypeLicense,
			DurationDays: 30,
			Price:        models.NewMoneyFromDecimal(decimal.NewFromFloat(49.90)),
			Stock:        -1,
			Enabled:      true,
		},
		{
			Name:         "团队版订阅（90 天）",
			ProductType:  constants.ProductTypeSubscription,
			DurationDays: 90,
			Price:        models.NewMoneyFromDecimal(decimal.NewFromFloat(129.00)),
			Stock:        -1,
			Enabled:      true,
		},
		{
			Name:         "激活卡（限量）",
			ProductType:  constants.ProductTypeInventory,
			DurationDays: 0,
			Price:        models.NewMoneyFromDecimal(decimal.NewFromFloat(19.90)),
			Stock:        50,
			Enabled:      true,
		},
	}

	for _, plan := range plans {
		var existing models.Plan
		if err := models.DB.Where("name = ?", plan.Name).First(&existing).Error; err != nil {
			if err := models.DB.Create(&plan).Error; err != nil {
				stdLog.Printf("Failed to create plan %s: %v", plan.Name, err)
			} else {
				stdLog.Printf("Created plan: %s", plan.Name)
			}
			continue
		}
		existing.ProductType = plan.ProductType
		existing.DurationDays = plan.DurationDays
		existing.Price = plan.Price
		existing.Stock = plan.Stock
		existing.Enabled = plan.Enabled
		if err := models.DB.Save(&existing).Error; err != nil {
			stdLog.Printf("Failed to update plan %s: %v", plan.Name, err)
		} else {
			stdLog.Printf("Updated plan: %s", plan.Name)
		}
	}

	// 初始化默认运营账号
	operatorEmail := os.Getenv("PV_DEFAULT_OPERATOR_EMAIL")
	operatorPass := os.Getenv("PV_DEFAULT_OPERATOR_PASSWORD")
	if err := models.InitDefaultUser(operatorEmail, operatorPass); err != nil {
		stdLog.Printf("Failed to init default operator: %v", err)
	}

	// 签发一枚运营令牌方便联调
	var operator models.User
	if err := models.DB.Order("id asc").First(&operator).Error; err != nil {
		stdLog.Printf("Failed to load operator user: %v", err)
	} else {
		authService := service.NewAuthService(&cfg.JWT)
		token, expiresAt, err := authService.GenerateToken(operator.Email)
		if err != nil {
			stdLog.Printf("Failed to issue operator token: %v", err)
		} else {
			fmt.Printf("\nOperator token for %s (expires %s):\n%s\n", operator.Email, expiresAt.Format("2006-01-02 15:04:05"), token)
		}
	}

	fmt.Println("\n✅ Seed data created successfully!")
	fmt.Println("Summary:")
	fmt.Println("- 3 Plans (license / subscription / inventory)")
	fmt.Println("- 1 Default operator account")
}
