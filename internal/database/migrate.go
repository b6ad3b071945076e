package database

import (
	"caisse/internal/models"
	"caisse/pkg/logger"

	"gorm.io/gorm"
)

// AllModels 需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&models.Entity{},
		&models.User{},
		&models.Permission{},
		&models.RegistrationRequest{},
		&models.ProductCategory{},
		&models.Product{},
		&models.Stock{},
		&models.StockMovement{},
		&models.StockThreshold{},
		&models.Invoice{},
		&models.InvoiceLine{},
		&models.Order{},
		&models.OrderLine{},
		&models.CashSession{},
		&models.CashMovement{},
		&models.Notification{},
		&models.AuditLog{},
	}
}

// partialIndexes 结构体标签无法表达的部分唯一索引
var partialIndexes = []string{
	// 每个用户同时只能有一个打开的收银会话
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_cash_sessions_one_open ON cash_sessions (entity_id, user_id) WHERE status = 'open'`,
}

// Migrate 执行数据库迁移
func Migrate() error {
	return MigrateDB(DB)
}

// MigrateDB 对指定连接执行迁移
func MigrateDB(db *gorm.DB) error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting database migration...")

	if err := db.AutoMigrate(AllModels()...); err != nil {
		appLogger.Errorf("Database migration failed: %v", err)
		return err
	}

	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			appLogger.Errorf("Creating index failed: %v", err)
			return err
		}
	}

	appLogger.Info("Database migration completed successfully")
	return nil
}
