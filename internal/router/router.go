package router

import (
	"caisse/internal/handlers"
	"caisse/internal/metrics"
	"caisse/internal/middleware"
	"caisse/internal/models"
	"caisse/pkg/config"
	"caisse/pkg/queue"
	"caisse/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Options 路由依赖，Redis / Metrics / Scheduler 可为空
type Options struct {
	Config    *config.Config
	DB        *gorm.DB
	Services  *Services
	Redis     *queue.RedisQueue
	Metrics   *metrics.Metrics
	Scheduler handlers.JobLister
}

// SetupRouter 设置路由
func SetupRouter(opts Options) *gin.Engine {
	handlers.SetupValidator()
	router := gin.New()

	// 中间件
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.SetupCORS(opts.Config.CORS))
	if opts.Metrics != nil {
		router.Use(middleware.Metrics(opts.Metrics))
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	router.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "接口不存在")
	})

	registerRoutes(router, opts)
	return router
}

// 注册所有路由
func registerRoutes(router *gin.Engine, opts Options) {
	svc := opts.Services
	cfg := opts.Config
	auth := middleware.NewAuthMiddleware(svc.Auth, svc.Permissions, cfg.JWT.CookieName)

	var redis handlers.Pinger
	if opts.Redis != nil {
		redis = opts.Redis
	}
	systemHandler := handlers.NewSystemHandler(opts.DB, redis, opts.Scheduler)

	// WebSocket 使用查询参数或cookie中的令牌，自行认证
	if opts.Redis != nil {
		wsHandler := handlers.NewWebSocketHandler(opts.Redis, svc.Auth, cfg.JWT.CookieName, cfg.CORS.AllowOrigins)
		router.GET("/ws/notifications", wsHandler.Notifications)
	}

	api := router.Group("/api/v1")
	{
		// 健康检查接口
		api.GET("/health", systemHandler.Health)
		api.GET("/ping", ping)

		// JWT认证路由
		authHandler := handlers.NewAuthHandler(svc.Auth, svc.Users, svc.Audit, cfg.JWT)
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/logout", authHandler.Logout)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.GET("/me", auth.RequireLogin(), authHandler.Me)
			authGroup.POST("/change-password", auth.RequireLogin(), authHandler.ChangePassword)
		}

		// 入驻申请：提交和查询进度无需登录，审核仅平台管理员
		registrationHandler := handlers.NewRegistrationHandler(svc.Registrations, svc.Audit)
		api.POST("/registrations", registrationHandler.Submit)
		api.GET("/registrations/status/:reference", registrationHandler.Status)

		// 以下接口都需要登录
		secured := api.Group("", auth.RequireLogin())

		dashboardHandler := handlers.NewDashboardHandler(svc.Dashboard)
		secured.GET("/dashboard", dashboardHandler.Summary)

		entityHandler := handlers.NewEntityHandler(svc.Entities, svc.Audit)

		// 平台管理（超级管理员）
		platform := secured.Group("", auth.RequireSuperAdmin())
		{
			registrations := platform.Group("/registrations")
			{
				registrations.GET("", registrationHandler.GetAll)
				registrations.GET("/:id", registrationHandler.GetByID)
				registrations.POST("/:id/approve", registrationHandler.Approve)
				registrations.POST("/:id/reject", registrationHandler.Reject)
			}

			entities := platform.Group("/entities")
			{
				entities.POST("", entityHandler.Create)
				entities.GET("", entityHandler.GetAll)
				entities.GET("/stats", entityHandler.GetStats)
				entities.GET("/:id", entityHandler.GetByID)
				entities.PUT("/:id", entityHandler.Update)
				entities.DELETE("/:id", entityHandler.Delete)
				entities.POST("/:id/activate", entityHandler.Activate)
				entities.POST("/:id/deactivate", entityHandler.Deactivate)
			}

			platform.GET("/system/status", systemHandler.Status)
		}

		// 当前经营主体资料
		entity := secured.Group("/entity", auth.RequireEntity())
		{
			entity.GET("", auth.RequirePermission(models.ResourceEntities, models.ActionRead), entityHandler.Current)
			entity.PUT("", auth.RequirePermission(models.ResourceEntities, models.ActionUpdate), entityHandler.UpdateCurrent)
		}

		// 用户管理（超级管理员可跨主体）
		userHandler := handlers.NewUserHandler(svc.Users, svc.Audit)
		users := secured.Group("/users")
		{
			users.POST("", auth.RequirePermission(models.ResourceUsers, models.ActionCreate), userHandler.Create)
			users.GET("", auth.RequirePermission(models.ResourceUsers, models.ActionRead), userHandler.GetAll)
			users.GET("/:id", auth.RequirePermission(models.ResourceUsers, models.ActionRead), userHandler.GetByID)
			users.PUT("/:id", auth.RequirePermission(models.ResourceUsers, models.ActionUpdate), userHandler.Update)
			users.DELETE("/:id", auth.RequirePermission(models.ResourceUsers, models.ActionDelete), userHandler.Delete)
			users.POST("/:id/activate", auth.RequirePermission(models.ResourceUsers, models.ActionUpdate), userHandler.Activate)
			users.POST("/:id/suspend", auth.RequirePermission(models.ResourceUsers, models.ActionUpdate), userHandler.Suspend)
			users.POST("/:id/reset-password", auth.RequirePermission(models.ResourceUsers, models.ActionUpdate), userHandler.ResetPassword)
		}

		// 权限矩阵
		permissionHandler := handlers.NewPermissionHandler(svc.Permissions, svc.Audit)
		permissions := secured.Group("/permissions")
		{
			permissions.GET("/catalog", permissionHandler.Catalog)
			permissions.GET("/:role", auth.RequirePermission(models.ResourcePermissions, models.ActionRead), permissionHandler.GetMatrix)
			permissions.PUT("/:role", auth.RequirePermission(models.ResourcePermissions, models.ActionUpdate), permissionHandler.SetMatrix)
			permissions.DELETE("/:role", auth.RequirePermission(models.ResourcePermissions, models.ActionUpdate), permissionHandler.Reset)
		}

		// 审计日志
		auditHandler := handlers.NewAuditHandler(svc.Audit)
		secured.GET("/audit-logs", auth.RequirePermission(models.ResourceAuditLogs, models.ActionRead), auditHandler.GetAll)

		// 以下为门店业务数据，仅经营主体用户
		store := secured.Group("", auth.RequireEntity())

		productHandler := handlers.NewProductHandler(svc.Products, svc.Categories, svc.Audit)
		categories := store.Group("/categories")
		{
			categories.GET("", auth.RequirePermission(models.ResourceProducts, models.ActionRead), productHandler.ListCategories)
			categories.POST("", auth.RequirePermission(models.ResourceProducts, models.ActionCreate), productHandler.CreateCategory)
			categories.PUT("/:id", auth.RequirePermission(models.ResourceProducts, models.ActionUpdate), productHandler.UpdateCategory)
			categories.DELETE("/:id", auth.RequirePermission(models.ResourceProducts, models.ActionDelete), productHandler.DeleteCategory)
		}
		products := store.Group("/products")
		{
			products.GET("", auth.RequirePermission(models.ResourceProducts, models.ActionRead), productHandler.GetAll)
			products.GET("/barcode/:barcode", auth.RequirePermission(models.ResourceProducts, models.ActionRead), productHandler.GetByBarcode)
			products.GET("/:id", auth.RequirePermission(models.ResourceProducts, models.ActionRead), productHandler.GetByID)
			products.POST("", auth.RequirePermission(models.ResourceProducts, models.ActionCreate), productHandler.Create)
			products.PUT("/:id", auth.RequirePermission(models.ResourceProducts, models.ActionUpdate), productHandler.Update)
			products.DELETE("/:id", auth.RequirePermission(models.ResourceProducts, models.ActionDelete), productHandler.Delete)
		}

		stockHandler := handlers.NewStockHandler(svc.Stock, svc.Thresholds, svc.Audit)
		stock := store.Group("/stock")
		{
			stock.GET("", auth.RequirePermission(models.ResourceStock, models.ActionRead), stockHandler.GetAll)
			stock.GET("/movements", auth.RequirePermission(models.ResourceStock, models.ActionRead), stockHandler.Movements)
			stock.POST("/:id/adjust", auth.RequirePermission(models.ResourceStock, models.ActionUpdate), stockHandler.Adjust)
			stock.PUT("/:id/min-quantity", auth.RequirePermission(models.ResourceStock, models.ActionUpdate), stockHandler.SetMinQuantity)
		}
		thresholds := store.Group("/thresholds")
		{
			thresholds.GET("", auth.RequirePermission(models.ResourceThresholds, models.ActionRead), stockHandler.ListThresholds)
			thresholds.GET("/:id", auth.RequirePermission(models.ResourceThresholds, models.ActionRead), stockHandler.GetThreshold)
			thresholds.POST("", auth.RequirePermission(models.ResourceThresholds, models.ActionCreate), stockHandler.CreateThreshold)
			thresholds.PUT("/:id", auth.RequirePermission(models.ResourceThresholds, models.ActionUpdate), stockHandler.UpdateThreshold)
			thresholds.DELETE("/:id", auth.RequirePermission(models.ResourceThresholds, models.ActionDelete), stockHandler.DeleteThreshold)
			thresholds.POST("/check/:id", auth.RequirePermission(models.ResourceThresholds, models.ActionUpdate), stockHandler.CheckThreshold)
		}

		orderHandler := handlers.NewOrderHandler(svc.Orders, svc.Audit)
		orders := store.Group("/orders")
		{
			orders.POST("", auth.RequirePermission(models.ResourceOrders, models.ActionCreate), orderHandler.Create)
			orders.GET("", auth.RequirePermission(models.ResourceOrders, models.ActionRead), orderHandler.GetAll)
			orders.GET("/:id", auth.RequirePermission(models.ResourceOrders, models.ActionRead), orderHandler.GetByID)
			orders.POST("/:id/confirm", auth.RequirePermission(models.ResourceOrders, models.ActionUpdate), orderHandler.Confirm)
			orders.POST("/:id/cancel", auth.RequirePermission(models.ResourceOrders, models.ActionUpdate), orderHandler.Cancel)
			orders.POST("/:id/receive", auth.RequirePermission(models.ResourceOrders, models.ActionValidate), orderHandler.Receive)
		}

		invoiceHandler := handlers.NewInvoiceHandler(svc.Invoices, svc.Audit)
		invoices := store.Group("/invoices")
		{
			invoices.POST("", auth.RequirePermission(models.ResourceInvoices, models.ActionCreate), invoiceHandler.Create)
			invoices.GET("", auth.RequirePermission(models.ResourceInvoices, models.ActionRead), invoiceHandler.GetAll)
			invoices.GET("/:id", auth.RequirePermission(models.ResourceInvoices, models.ActionRead), invoiceHandler.GetByID)
			invoices.GET("/:id/print", auth.RequirePermission(models.ResourceInvoices, models.ActionRead), invoiceHandler.Print)
			invoices.POST("/:id/validate", auth.RequirePermission(models.ResourceInvoices, models.ActionValidate), invoiceHandler.Validate)
			invoices.POST("/:id/cancel", auth.RequirePermission(models.ResourceInvoices, models.ActionUpdate), invoiceHandler.Cancel)
		}

		sessionHandler := handlers.NewCashSessionHandler(svc.CashSessions, svc.Audit)
		sessions := store.Group("/cash-sessions")
		{
			sessions.POST("", auth.RequirePermission(models.ResourceCashSessions, models.ActionCreate), sessionHandler.Open)
			sessions.GET("", auth.RequirePermission(models.ResourceCashSessions, models.ActionRead), sessionHandler.GetAll)
			sessions.GET("/current", auth.RequirePermission(models.ResourceCashSessions, models.ActionRead), sessionHandler.Current)
			sessions.POST("/current/movements", auth.RequirePermission(models.ResourceCashSessions, models.ActionUpdate), sessionHandler.AddMovement)
			sessions.GET("/:id", auth.RequirePermission(models.ResourceCashSessions, models.ActionRead), sessionHandler.GetByID)
			sessions.POST("/:id/close", auth.RequirePermission(models.ResourceCashSessions, models.ActionUpdate), sessionHandler.Close)
		}

		notificationHandler := handlers.NewNotificationHandler(svc.Notifications, svc.Audit)
		notifications := store.Group("/notifications")
		{
			notifications.GET("", auth.RequirePermission(models.ResourceNotifications, models.ActionRead), notificationHandler.GetMine)
			notifications.GET("/unread-count", auth.RequirePermission(models.ResourceNotifications, models.ActionRead), notificationHandler.UnreadCount)
			notifications.POST("/:id/read", auth.RequirePermission(models.ResourceNotifications, models.ActionUpdate), notificationHandler.MarkRead)
			notifications.POST("/read-all", auth.RequirePermission(models.ResourceNotifications, models.ActionUpdate), notificationHandler.MarkAllRead)
			notifications.POST("/send", auth.RequirePermission(models.ResourceNotifications, models.ActionCreate), notificationHandler.Send)
			notifications.GET("/deliveries", auth.RequirePermission(models.ResourceNotifications, models.ActionCreate), notificationHandler.Deliveries)
		}

		reportHandler := handlers.NewReportHandler(svc.Reports, svc.Audit)
		reports := store.Group("/reports", auth.RequirePermission(models.ResourceReports, models.ActionRead), auth.RequireExport(models.ResourceReports))
		{
			reports.GET("/sales", reportHandler.Sales)
			reports.GET("/stock", reportHandler.Stock)
			reports.GET("/cash", reportHandler.Cash)
		}
	}
}

func ping(c *gin.Context) {
	response.SuccessWithMessage(c, "pong", nil)
}
