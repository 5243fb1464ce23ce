package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/cat-game/internal/config"
	"github.com/wfunc/cat-game/internal/game"
	"github.com/wfunc/cat-game/internal/repository"
	"github.com/wfunc/cat-game/internal/utils"
	ws "github.com/wfunc/cat-game/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APITestSuite HTTP接口集成测试套件
type APITestSuite struct {
	suite.Suite
	db     *gorm.DB
	cats   repository.CatRepository
	router *Router
}

func (s *APITestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.db = repository.SetupTestDB()
	s.cats = repository.NewCatRepository(s.db, repository.TestDefaults())

	cfg := &config.Config{
		Game: config.DefaultGame(),
	}
	cfg.Security.JWT.Secret = "test-secret"
	cfg.Security.JWT.ExpireHours = 1
	cfg.Security.JWT.RefreshHours = 24

	hub := ws.NewHub(cfg.Gateway, zap.NewNop())

	engine := game.NewEngine(&game.EngineConfig{
		Cats:       s.cats,
		Events:     repository.NewGlobalEventRepository(s.db),
		TxManager:  repository.NewTxManager(s.db),
		FishEvents: game.NewFishEventStore(10*time.Minute, zap.NewNop()),
		Notifier:   ws.NewHubNotifier(hub),
		Game:       cfg.Game,
		Logger:     zap.NewNop(),
	})

	s.router = NewRouter(s.db, cfg, engine, hub, zap.NewNop())
}

func (s *APITestSuite) TearDownTest() {
	repository.CleanupTestDB(s.db)
}

// request 发送请求并返回响应记录器
func (s *APITestSuite) request(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)
	return w
}

// issueToken 走令牌签发接口拿访问令牌
func (s *APITestSuite) issueToken(userID, name string) TokenResponse {
	w := s.request(http.MethodPost, "/api/v1/auth/token", "", TokenRequest{
		UserID: userID,
		Name:   name,
	})
	s.Require().Equal(http.StatusOK, w.Code)

	var resp TokenResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Require().NotEmpty(resp.AccessToken)
	return resp
}

// TestHealthCheck 测试健康检查
func (s *APITestSuite) TestHealthCheck() {
	w := s.request(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "healthy")
}

// TestIssueTokenValidation 测试签发令牌的参数校验
func (s *APITestSuite) TestIssueTokenValidation() {
	w := s.request(http.MethodPost, "/api/v1/auth/token", "", map[string]string{
		"user_id": "u1",
	})
	s.Equal(http.StatusBadRequest, w.Code)
}

// TestRefreshToken 测试刷新令牌换访问令牌
func (s *APITestSuite) TestRefreshToken() {
	tokens := s.issueToken("u1", "咪咪")
	s.Require().NotEmpty(tokens.RefreshToken)

	w := s.request(http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{
		RefreshToken: tokens.RefreshToken,
		Name:         "咪咪",
	})
	s.Equal(http.StatusOK, w.Code)

	var resp TokenResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.NotEmpty(resp.AccessToken)
}

// TestRefreshRejectsAccessToken 测试访问令牌不能用于刷新
func (s *APITestSuite) TestRefreshRejectsAccessToken() {
	tokens := s.issueToken("u1", "咪咪")

	w := s.request(http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{
		RefreshToken: tokens.AccessToken,
		Name:         "咪咪",
	})
	s.Equal(http.StatusUnauthorized, w.Code)
}

// TestProfileRequiresAuth 测试未认证访问被拒绝
func (s *APITestSuite) TestProfileRequiresAuth() {
	w := s.request(http.MethodGet, "/api/v1/cats/me", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.request(http.MethodGet, "/api/v1/cats/me", "not-a-token", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

// TestGetProfile 测试档案查询返回猫与名次
func (s *APITestSuite) TestGetProfile() {
	tokens := s.issueToken("u1", "咪咪")

	w := s.request(http.MethodGet, "/api/v1/cats/me", tokens.AccessToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var resp struct {
		Cat struct {
			UserID string `json:"user_id"`
			Name   string `json:"name"`
			Coins  int64  `json:"coins"`
			Tier   string `json:"tier"`
		} `json:"cat"`
		Rank int `json:"rank"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("u1", resp.Cat.UserID)
	s.Equal("咪咪", resp.Cat.Name)
	s.Equal(int64(500), resp.Cat.Coins)
	s.Equal("Kitten", resp.Cat.Tier)
	s.Equal(1, resp.Rank)
}

// TestGetBalance 测试余额查询
func (s *APITestSuite) TestGetBalance() {
	tokens := s.issueToken("u1", "咪咪")

	w := s.request(http.MethodGet, "/api/v1/cats/me/balance", tokens.AccessToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "500")
}

// TestLeaderboard 测试排行榜查询
func (s *APITestSuite) TestLeaderboard() {
	tokens := s.issueToken("u1", "咪咪")
	other := s.issueToken("u2", "花花")

	// 先让两只猫存在
	s.request(http.MethodGet, "/api/v1/cats/me", tokens.AccessToken, nil)
	s.request(http.MethodGet, "/api/v1/cats/me", other.AccessToken, nil)

	w := s.request(http.MethodGet, "/api/v1/leaderboard/coins?limit=1", tokens.AccessToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var resp struct {
		Cats []struct {
			UserID string `json:"user_id"`
		} `json:"cats"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Len(resp.Cats, 1)

	w = s.request(http.MethodGet, "/api/v1/leaderboard/kills", tokens.AccessToken, nil)
	s.Equal(http.StatusOK, w.Code)
}

// TestDarkNightStatus 测试暗夜事件状态查询
func (s *APITestSuite) TestDarkNightStatus() {
	tokens := s.issueToken("u1", "咪咪")

	w := s.request(http.MethodGet, "/api/v1/events/dark-night", tokens.AccessToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"active":false`)
}

// TestAccessKeyRequired 测试配置了接入密钥后签发要求出示密钥
func (s *APITestSuite) TestAccessKeyRequired() {
	hash, err := utils.HashPassword("gateway-key")
	s.Require().NoError(err)

	cfg := &config.Config{Game: config.DefaultGame()}
	cfg.Security.JWT.Secret = "test-secret"
	cfg.Security.JWT.ExpireHours = 1
	cfg.Security.JWT.RefreshHours = 24
	cfg.Security.AccessKeyHash = hash

	hub := ws.NewHub(cfg.Gateway, zap.NewNop())
	engine := game.NewEngine(&game.EngineConfig{
		Cats:       s.cats,
		Events:     repository.NewGlobalEventRepository(s.db),
		TxManager:  repository.NewTxManager(s.db),
		FishEvents: game.NewFishEventStore(10*time.Minute, zap.NewNop()),
		Game:       cfg.Game,
		Logger:     zap.NewNop(),
	})
	router := NewRouter(s.db, cfg, engine, hub, zap.NewNop())

	body, _ := json.Marshal(TokenRequest{UserID: "u1", Name: "咪咪"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.GetEngine().ServeHTTP(w, req)
	s.Equal(http.StatusUnauthorized, w.Code)

	body, _ = json.Marshal(TokenRequest{UserID: "u1", Name: "咪咪", AccessKey: "gateway-key"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.GetEngine().ServeHTTP(w, req)
	s.Equal(http.StatusOK, w.Code)
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, &APITestSuite{})
}
