package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/cat-game/internal/errors"
	"github.com/wfunc/cat-game/internal/game"
	"github.com/wfunc/cat-game/internal/middleware"
	"go.uber.org/zap"
)

// CatHandler 猫档案与排行榜的只读查询处理器
type CatHandler struct {
	engine *game.Engine
	logger *zap.Logger
}

// NewCatHandler 创建查询处理器
func NewCatHandler(engine *game.Engine, logger *zap.Logger) *CatHandler {
	return &CatHandler{
		engine: engine,
		logger: logger,
	}
}

// GetProfile 查询当前用户的猫档案与全局名次
func (h *CatHandler) GetProfile(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "NO_TOKEN", "message": "缺少认证信息"})
		return
	}

	out, err := h.engine.Profile(c.Request.Context(), userID, middleware.GetUserName(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cat":  out.Cat,
		"rank": out.Rank,
	})
}

// GetBalance 查询当前用户的金币余额
func (h *CatHandler) GetBalance(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "NO_TOKEN", "message": "缺少认证信息"})
		return
	}

	coins, err := h.engine.Balance(c.Request.Context(), userID, middleware.GetUserName(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"coins": coins})
}

// GetTopCoins 金币排行榜
func (h *CatHandler) GetTopCoins(c *gin.Context) {
	cats, err := h.engine.TopCoins(c.Request.Context(), h.limit(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cats": cats})
}

// GetTopKills 击杀排行榜
func (h *CatHandler) GetTopKills(c *gin.Context) {
	cats, err := h.engine.TopKills(c.Request.Context(), h.limit(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cats": cats})
}

// GetDarkNight 暗夜全局事件状态
func (h *CatHandler) GetDarkNight(c *gin.Context) {
	active, err := h.engine.DarkNightActive(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": active})
}

// limit 解析limit参数，非法值交给引擎用默认值兜底
func (h *CatHandler) limit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		return 0
	}
	return limit
}

// respondError 把引擎错误映射为HTTP响应
func (h *CatHandler) respondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)

	status := http.StatusInternalServerError
	switch {
	case apperrors.IsValidation(err):
		status = http.StatusBadRequest
	case apperrors.IsPrecondition(err):
		status = http.StatusConflict
	case apperrors.IsRetryable(err):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		h.logger.Error("查询处理失败", zap.Error(err))
	}

	message := "服务暂时不可用"
	if appErr, ok := err.(*apperrors.AppError); ok && status != http.StatusServiceUnavailable {
		message = appErr.Message
	}

	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
