package main

import (
	"fmt"

	"caisse/internal/router"
	"caisse/pkg/config"
	"caisse/pkg/logger"
)

// seedData 初始化平台默认权限和首个超级管理员
func seedData(cfg *config.Config, svc *router.Services) error {
	appLogger := logger.GetLogger()

	seeded, err := svc.Permissions.SeedDefaults()
	if err != nil {
		return fmt.Errorf("初始化权限失败: %w", err)
	}
	if seeded > 0 {
		appLogger.Infof("已写入 %d 条默认权限", seeded)
	}

	if cfg.Bootstrap.AdminPassword == "" {
		appLogger.Info("未配置 BOOTSTRAP_ADMIN_PASSWORD，跳过创建平台管理员")
		return nil
	}
	created, err := svc.Users.EnsureSuperAdmin(cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword)
	if err != nil {
		return fmt.Errorf("创建平台管理员失败: %w", err)
	}
	if created {
		appLogger.Infof("已创建平台管理员 %s", cfg.Bootstrap.AdminUsername)
	}
	return nil
}
