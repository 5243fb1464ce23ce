package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/cat-game/internal/utils"
	"go.uber.org/zap"
)

// AuthHandler 令牌签发处理器
// 没有独立的账号体系，身份就是聊天平台侧的用户ID；
// 配置了接入密钥哈希时，签发前要求出示密钥
type AuthHandler struct {
	jwtManager    *utils.JWTManager
	accessKeyHash string
	logger        *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(jwtManager *utils.JWTManager, accessKeyHash string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		jwtManager:    jwtManager,
		accessKeyHash: accessKeyHash,
		logger:        logger,
	}
}

// TokenRequest 签发令牌请求
type TokenRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	AccessKey string `json:"access_key"`
}

// RefreshRequest 刷新令牌请求
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
	Name         string `json:"name" binding:"required"`
}

// TokenResponse 令牌响应
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// IssueToken 签发访问令牌与刷新令牌
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_REQUEST",
			"message": "请求参数错误",
			"details": err.Error(),
		})
		return
	}

	if h.accessKeyHash != "" {
		ok, err := utils.VerifyPassword(req.AccessKey, h.accessKeyHash)
		if err != nil || !ok {
			h.logger.Warn("接入密钥校验失败",
				zap.String("user_id", req.UserID),
				zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "INVALID_ACCESS_KEY",
				"message": "接入密钥错误",
			})
			return
		}
	}

	sessionID, err := utils.GenerateSessionID()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "生成会话失败",
		})
		return
	}

	accessToken, err := h.jwtManager.GenerateAccessToken(req.UserID, req.Name, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "生成令牌失败",
		})
		return
	}

	refreshToken, err := h.jwtManager.GenerateRefreshToken(req.UserID, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "生成刷新令牌失败",
		})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(h.jwtManager.GetTokenExpiry("access").Seconds()),
	})
}

// RefreshToken 用刷新令牌换新的访问令牌
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_REQUEST",
			"message": "请求参数错误",
			"details": err.Error(),
		})
		return
	}

	accessToken, err := h.jwtManager.RefreshAccessToken(req.RefreshToken, req.Name)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "INVALID_TOKEN",
			"message": "刷新令牌无效",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(h.jwtManager.GetTokenExpiry("access").Seconds()),
	})
}
