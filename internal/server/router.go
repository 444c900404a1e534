package server

import (
	"coincore/internal/handler"
	"coincore/pkg/monitor"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(accounts *handler.AccountsHandler, txflow *handler.TxFlowHandler) *gin.Engine {
	// 0. 初始化监控指标
	monitor.Init()
	monitor.InitBusinessMetrics()

	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 4. 注册 API 路由组
	api := r.Group("/api/v1")
	{
		api.GET("/accounts", accounts.List)
		api.GET("/accounts/targets", accounts.Targets)

		flows := api.Group("/flows")
		{
			flows.POST("", txflow.Create)
			flows.PUT("/:id/amount", txflow.UpdateAmount)
			flows.PUT("/:id/fee", txflow.UpdateFeeLevel)
			flows.POST("/:id/confirmations", txflow.Confirmations)
			flows.PUT("/:id/options", txflow.AcceptOption)
			flows.POST("/:id/validate", txflow.Validate)
			flows.POST("/:id/execute", txflow.Execute)
			flows.DELETE("/:id", txflow.Close)
		}
	}

	return r
}
