package handler

import (
	"coincore/internal/handler/response"

	"github.com/gin-gonic/gin"
)

// HealthCheck 服务健康探针
func HealthCheck(c *gin.Context) {
	response.Success(c, gin.H{
		"status":  "UP",
		"version": "1.0.0",
		"service": "coincore-server",
	})
}
