package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/cat-game/internal/api"
	"github.com/wfunc/cat-game/internal/config"
	"github.com/wfunc/cat-game/internal/database"
	"github.com/wfunc/cat-game/internal/errors"
	"github.com/wfunc/cat-game/internal/game"
	"github.com/wfunc/cat-game/internal/logger"
	"github.com/wfunc/cat-game/internal/repository"
	"github.com/wfunc/cat-game/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db         *gorm.DB
	fishEvents *game.FishEventStore
	hub        *websocket.Hub
	gameEngine *game.Engine
	httpServer *http.Server

	shutdownCh chan struct{}
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("cat-game %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动猫猫游戏服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}

	if err := s.startServices(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "启动服务失败")
	}

	s.logger.Info("服务器启动成功",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)),
	)

	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	if err := s.initDatabase(); err != nil {
		return err
	}

	// 鱼事件只存在于进程内存，带TTL清扫
	s.fishEvents = game.NewFishEventStore(s.cfg.Game.FishEventTTL, logger.WithModule("fishevent"))

	// 聊天网关
	s.hub = websocket.NewHub(s.cfg.Gateway, logger.WithModule("websocket"))

	// 游戏引擎
	catRepo := repository.NewCatRepository(s.db, repository.CatDefaults{
		Coins:   s.cfg.Game.InitialCoins,
		Fish:    s.cfg.Game.InitialFish,
		Premium: false,
		Tier:    game.TierKitten,
	})

	s.gameEngine = game.NewEngine(&game.EngineConfig{
		Cats:       catRepo,
		Events:     repository.NewGlobalEventRepository(s.db),
		TxManager:  repository.NewTxManager(s.db),
		FishEvents: s.fishEvents,
		Notifier:   websocket.NewHubNotifier(s.hub),
		Game:       s.cfg.Game,
		OpTimeout:  s.cfg.Database.OpTimeout,
		Logger:     logger.WithModule("game"),
	})

	s.hub.SetHandler(websocket.NewChatHandler(s.gameEngine, s.hub, logger.WithModule("chat")))

	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	db, err := database.New(&s.cfg.Database, logger.WithModule("database"))
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}
	s.db = db

	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(s.db, logger.WithModule("database")); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	return nil
}

// startServices 启动服务
func (s *Server) startServices() error {
	switch s.cfg.Server.Mode {
	case "production", "release":
		gin.SetMode(gin.ReleaseMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	s.fishEvents.StartSweeper()
	go s.hub.Run()

	router := api.NewRouter(s.db, s.cfg, s.gameEngine, s.hub, logger.WithModule("api"))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
			close(s.shutdownCh)
		}
	}()

	return nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-s.shutdownCh:
	}
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP服务关闭超时", zap.Error(err))
		}
	}

	if s.fishEvents != nil {
		s.fishEvents.Stop()
	}

	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "关闭数据库失败")
		}
	}

	return nil
}
