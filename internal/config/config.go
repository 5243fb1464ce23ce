package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Game     GameConfig     `mapstructure:"game"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	// OpTimeout 单次存储操作的超时时间
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// GatewayConfig 聊天网关配置
type GatewayConfig struct {
	Path              string        `mapstructure:"path"`
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	EnableCompression bool          `mapstructure:"enable_compression"`
}

// GameConfig 游戏数值配置
// 所有游戏数值的唯一来源，代码里不允许出现散落的魔法数字
type GameConfig struct {
	// 新猫初始值
	InitialCoins int64 `mapstructure:"initial_coins"`
	InitialFish  int64 `mapstructure:"initial_fish"`

	// 被动挂机
	PassiveCooldown time.Duration `mapstructure:"passive_cooldown"`
	XPMin           int           `mapstructure:"xp_min"`
	XPMax           int           `mapstructure:"xp_max"`
	FishEventChance float64       `mapstructure:"fish_event_chance"`
	FishEventTTL    time.Duration `mapstructure:"fish_event_ttl"`
	DarkNightChance float64       `mapstructure:"dark_night_chance"`
	DarkNightWindow time.Duration `mapstructure:"dark_night_window"`

	// 每日奖励
	DailyReward        int64 `mapstructure:"daily_reward"`
	DailyRewardPremium int64 `mapstructure:"daily_reward_premium"`

	// 转账手续费（在赠送金额之外另行扣除）
	GiveFeeRate        float64 `mapstructure:"give_fee_rate"`
	GiveFeeRatePremium float64 `mapstructure:"give_fee_rate_premium"`

	// 抢劫
	RobFloor          int64   `mapstructure:"rob_floor"`
	RobCeiling        int64   `mapstructure:"rob_ceiling"`
	RobCeilingPremium int64   `mapstructure:"rob_ceiling_premium"`
	RobTaxRate        float64 `mapstructure:"rob_tax_rate"`
	RobTaxRatePremium float64 `mapstructure:"rob_tax_rate_premium"`

	// 战斗
	KillRewardMin int64 `mapstructure:"kill_reward_min"`
	KillRewardMax int64 `mapstructure:"kill_reward_max"`

	// 保护
	ProtectCost     int64         `mapstructure:"protect_cost"`
	ProtectDuration time.Duration `mapstructure:"protect_duration"`

	// 榜单
	LeaderboardLimit int `mapstructure:"leaderboard_limit"`

	// 引擎
	SaveRetries int `mapstructure:"save_retries"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`

	// AccessKeyHash 网关接入密钥的argon2哈希，为空时签发令牌不要求密钥
	AccessKeyHash string `mapstructure:"access_key_hash"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

// ExpireDuration 访问令牌有效期
func (j JWTConfig) ExpireDuration() time.Duration {
	return time.Duration(j.ExpireHours) * time.Hour
}

// RefreshDuration 刷新令牌有效期
func (j JWTConfig) RefreshDuration() time.Duration {
	return time.Duration(j.RefreshHours) * time.Hour
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		// 设置配置文件路径
		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		// 设置环境变量前缀
		v.SetEnvPrefix("CAT_GAME")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		// 设置默认值
		setDefaults(v)

		// 读取配置文件
		if err = v.ReadInConfig(); err != nil {
			// 如果配置文件不存在，使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		// 解析配置到结构体
		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			return
		}

		err = validate(cfg)
	})

	return err
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/cat-game.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "info")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.op_timeout", "3s")

	// 网关默认配置
	v.SetDefault("gateway.path", "/ws")
	v.SetDefault("gateway.read_buffer_size", 1024)
	v.SetDefault("gateway.write_buffer_size", 1024)
	v.SetDefault("gateway.max_message_size", 8192)
	v.SetDefault("gateway.ping_interval", "30s")
	v.SetDefault("gateway.pong_timeout", "60s")
	v.SetDefault("gateway.write_timeout", "10s")
	v.SetDefault("gateway.enable_compression", true)

	// 游戏数值默认配置
	v.SetDefault("game.initial_coins", 500)
	v.SetDefault("game.initial_fish", 2)
	v.SetDefault("game.passive_cooldown", "4s")
	v.SetDefault("game.xp_min", 1)
	v.SetDefault("game.xp_max", 3)
	v.SetDefault("game.fish_event_chance", 0.05)
	v.SetDefault("game.fish_event_ttl", "10m")
	v.SetDefault("game.dark_night_chance", 0.01)
	v.SetDefault("game.dark_night_window", "5m")
	v.SetDefault("game.daily_reward", 1000)
	v.SetDefault("game.daily_reward_premium", 2000)
	v.SetDefault("game.give_fee_rate", 0.10)
	v.SetDefault("game.give_fee_rate_premium", 0.05)
	v.SetDefault("game.rob_floor", 100)
	v.SetDefault("game.rob_ceiling", 10000)
	v.SetDefault("game.rob_ceiling_premium", 100000)
	v.SetDefault("game.rob_tax_rate", 0.10)
	v.SetDefault("game.rob_tax_rate_premium", 0.05)
	v.SetDefault("game.kill_reward_min", 100)
	v.SetDefault("game.kill_reward_max", 300)
	v.SetDefault("game.protect_cost", 500)
	v.SetDefault("game.protect_duration", "24h")
	v.SetDefault("game.leaderboard_limit", 10)
	v.SetDefault("game.save_retries", 3)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "cat-game.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 安全默认配置
	v.SetDefault("security.jwt.secret", "")
	v.SetDefault("security.jwt.expire_hours", 24)
	v.SetDefault("security.jwt.refresh_hours", 168)
	v.SetDefault("security.access_key_hash", "")
}

// validate 校验游戏数值配置
func validate(c *Config) error {
	g := &c.Game
	if g.XPMin < 1 || g.XPMax < g.XPMin {
		return fmt.Errorf("无效的经验区间: [%d, %d]", g.XPMin, g.XPMax)
	}
	if g.FishEventChance < 0 || g.FishEventChance > 1 {
		return fmt.Errorf("无效的鱼事件概率: %f", g.FishEventChance)
	}
	if g.DarkNightChance < 0 || g.DarkNightChance > 1 {
		return fmt.Errorf("无效的暗夜事件概率: %f", g.DarkNightChance)
	}
	if g.GiveFeeRate < 0 || g.GiveFeeRate >= 1 || g.GiveFeeRatePremium < 0 || g.GiveFeeRatePremium >= 1 {
		return fmt.Errorf("无效的转账手续费率")
	}
	if g.RobTaxRate < 0 || g.RobTaxRate >= 1 || g.RobTaxRatePremium < 0 || g.RobTaxRatePremium >= 1 {
		return fmt.Errorf("无效的抢劫税率")
	}
	if g.RobFloor <= 0 || g.RobCeiling < g.RobFloor || g.RobCeilingPremium < g.RobFloor {
		return fmt.Errorf("无效的抢劫金额区间")
	}
	if g.KillRewardMin <= 0 || g.KillRewardMax < g.KillRewardMin {
		return fmt.Errorf("无效的战斗奖励区间: [%d, %d]", g.KillRewardMin, g.KillRewardMax)
	}
	if g.ProtectCost <= 0 {
		return fmt.Errorf("无效的保护费用: %d", g.ProtectCost)
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := validate(newCfg); err != nil {
			fmt.Printf("配置重载校验失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}
	})
}

// DefaultGame 返回默认游戏数值配置（供测试使用）
func DefaultGame() GameConfig {
	return GameConfig{
		InitialCoins:       500,
		InitialFish:        2,
		PassiveCooldown:    4 * time.Second,
		XPMin:              1,
		XPMax:              3,
		FishEventChance:    0.05,
		FishEventTTL:       10 * time.Minute,
		DarkNightChance:    0.01,
		DarkNightWindow:    5 * time.Minute,
		DailyReward:        1000,
		DailyRewardPremium: 2000,
		GiveFeeRate:        0.10,
		GiveFeeRatePremium: 0.05,
		RobFloor:           100,
		RobCeiling:         10000,
		RobCeilingPremium:  100000,
		RobTaxRate:         0.10,
		RobTaxRatePremium:  0.05,
		KillRewardMin:      100,
		KillRewardMax:      300,
		ProtectCost:        500,
		ProtectDuration:    24 * time.Hour,
		LeaderboardLimit:   10,
		SaveRetries:        3,
	}
}
