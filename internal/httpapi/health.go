package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const HealthPath = "/healthz"

// Health reports liveness.
func Health(context *gin.Context) {
	context.JSON(http.StatusOK, gin.H{jsonKeyStatus: "ok"})
}
