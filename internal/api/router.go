package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wfunc/cat-game/internal/config"
	"github.com/wfunc/cat-game/internal/game"
	"github.com/wfunc/cat-game/internal/middleware"
	"github.com/wfunc/cat-game/internal/utils"
	ws "github.com/wfunc/cat-game/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router API路由器
type Router struct {
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	log    *zap.Logger

	authHandler    *AuthHandler
	catHandler     *CatHandler
	wsHandler      *WebSocketHandler
	authMiddleware *middleware.AuthMiddleware
}

// NewRouter 创建路由器
func NewRouter(db *gorm.DB, cfg *config.Config, gameEngine *game.Engine, hub *ws.Hub, log *zap.Logger) *Router {
	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	jwtManager := utils.NewJWTManager(
		cfg.Security.JWT.Secret,
		cfg.Security.JWT.ExpireDuration(),
		cfg.Security.JWT.RefreshDuration(),
	)

	router := &Router{
		engine:         engine,
		db:             db,
		cfg:            cfg,
		log:            log,
		authHandler:    NewAuthHandler(jwtManager, cfg.Security.AccessKeyHash, log),
		catHandler:     NewCatHandler(gameEngine, log),
		wsHandler:      NewWebSocketHandler(hub, cfg.Gateway, log),
		authMiddleware: middleware.NewAuthMiddleware(jwtManager),
	}

	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		// 认证相关路由（不需要认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/token", r.authHandler.IssueToken)
			auth.POST("/refresh", r.authHandler.RefreshToken)
		}

		// 猫相关路由（需要认证）
		cats := v1.Group("/cats")
		cats.Use(r.authMiddleware.RequireAuth())
		{
			cats.GET("/me", r.catHandler.GetProfile)
			cats.GET("/me/balance", r.catHandler.GetBalance)
		}

		// 排行榜路由（需要认证）
		leaderboard := v1.Group("/leaderboard")
		leaderboard.Use(r.authMiddleware.RequireAuth())
		{
			leaderboard.GET("/coins", r.catHandler.GetTopCoins)
			leaderboard.GET("/kills", r.catHandler.GetTopKills)
		}

		// 全局事件路由（需要认证）
		events := v1.Group("/events")
		events.Use(r.authMiddleware.RequireAuth())
		{
			events.GET("/dark-night", r.catHandler.GetDarkNight)
		}
	}

	// WebSocket聊天网关
	wsGroup := r.engine.Group("/ws")
	wsGroup.Use(r.authMiddleware.RequireAuth())
	{
		wsGroup.GET("/chat", r.wsHandler.ChatWebSocket)
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	sqlDB, err := r.db.DB()
	if err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库ping失败",
		})
		return
	}

	c.JSON(200, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// Run 运行服务器
func (r *Router) Run(addr string) error {
	r.log.Info("Starting API server", zap.String("address", addr))
	return r.engine.Run(addr)
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
