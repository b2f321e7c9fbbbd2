package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	chatH *ChatHandler,
	exportH *ExportHandler,
	healthH *HealthHandler,
) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	// view_html responde HTML, queda fuera del grupo JSON.
	r.GET("/view_html/:response_id", exportH.ViewHTML)

	api := r.Group("", jsonContentTypeMiddleware())
	api.POST("/chat", chatH.PostChat)
	api.GET("/get_current_conversation", chatH.GetCurrentConversation)
	api.POST("/generate_html", exportH.GenerateHTML)
	api.GET("/health", healthH.Health)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
// No registra la IP del cliente.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
