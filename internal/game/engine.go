package game

import (
	"context"
	"strings"
	"time"

	"github.com/wfunc/cat-game/internal/config"
	"github.com/wfunc/cat-game/internal/errors"
	"github.com/wfunc/cat-game/internal/models"
	"github.com/wfunc/cat-game/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier 尽力而为的用户通知侧信道
// 发送失败不影响任何事务结果
type Notifier interface {
	NotifyUser(ctx context.Context, userID, message string) error
}

// Engine 游戏引擎
// 负责所有指令与被动触发的状态变更，实体读写全部经由注入的仓储
type Engine struct {
	cats     repository.CatRepository
	events   repository.GlobalEventRepository
	txm      repository.TxManager
	fish     *FishEventStore
	rng      RandomGenerator
	notifier Notifier
	cfg      config.GameConfig

	// opTimeout 单次动作内存储访问的超时上限
	opTimeout time.Duration

	logger *zap.Logger

	// now 可注入时钟，测试用
	now func() time.Time
}

// EngineConfig 引擎构造配置
type EngineConfig struct {
	Cats       repository.CatRepository
	Events     repository.GlobalEventRepository
	TxManager  repository.TxManager
	FishEvents *FishEventStore
	Random     RandomGenerator
	Notifier   Notifier
	Game       config.GameConfig
	OpTimeout  time.Duration
	Logger     *zap.Logger
}

// NewEngine 创建游戏引擎
func NewEngine(cfg *EngineConfig) *Engine {
	rng := cfg.Random
	if rng == nil {
		rng = NewCryptoRandomGenerator()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cats:      cfg.Cats,
		events:    cfg.Events,
		txm:       cfg.TxManager,
		fish:      cfg.FishEvents,
		rng:       rng,
		notifier:  cfg.Notifier,
		cfg:       cfg.Game,
		opTimeout: cfg.OpTimeout,
		logger:    logger,
		now:       time.Now,
	}
}

// opContext 为单次动作附加存储超时
func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.opTimeout)
}

// retries 保存冲突时的重试次数
func (e *Engine) retries() int {
	if e.cfg.SaveRetries < 1 {
		return 1
	}
	return e.cfg.SaveRetries
}

// mutate 读取-修改-保存单只猫，版本冲突时重新读取并重放修改
// fn返回错误则中止且不落库
func (e *Engine) mutate(ctx context.Context, userID, nameHint string, fn func(cat *models.Cat) error) (*models.Cat, error) {
	var lastErr error
	for i := 0; i < e.retries(); i++ {
		cat, err := e.cats.GetOrCreate(ctx, userID, nameHint)
		if err != nil {
			return nil, err
		}
		if err := fn(cat); err != nil {
			return nil, err
		}
		if err := e.cats.Save(ctx, cat); err != nil {
			if errors.Is(err, errors.ErrStoreConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return cat, nil
	}
	return nil, lastErr
}

// mutatePair 在单个事务内读取-修改-保存两只猫
// 要么双方都提交，要么整体回滚；版本冲突时整个事务重试
func (e *Engine) mutatePair(ctx context.Context, aID, aName, bID, bName string, fn func(a, b *models.Cat) error) (*models.Cat, *models.Cat, error) {
	var lastErr error
	for i := 0; i < e.retries(); i++ {
		var a, b *models.Cat
		err := e.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
			repo := e.cats.WithTx(tx)

			var err error
			a, err = repo.GetOrCreate(ctx, aID, aName)
			if err != nil {
				return err
			}
			b, err = repo.GetOrCreate(ctx, bID, bName)
			if err != nil {
				return err
			}

			if err := fn(a, b); err != nil {
				return err
			}

			if err := repo.Save(ctx, a); err != nil {
				return err
			}
			return repo.Save(ctx, b)
		})
		if err != nil {
			if errors.Is(err, errors.ErrStoreConflict) {
				lastErr = err
				continue
			}
			return nil, nil, err
		}
		return a, b, nil
	}
	return nil, nil, lastErr
}

// Passive 被动消息触发
// 冷却窗口内的消息是无副作用的空操作；一次触发恰好持久化实体一次
func (e *Engine) Passive(ctx context.Context, userID, nameHint, conversationID string) (*PassiveOutcome, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	now := e.now()

	// 随机决策只抽取一次，保存冲突重试时不重抽
	xpGain := e.rng.NextInt(int64(e.cfg.XPMin), int64(e.cfg.XPMax))
	trait := models.TraitNames[e.rng.NextInt(0, int64(len(models.TraitNames)-1))]
	fishRoll := e.rng.NextFloat()
	darkRoll := e.rng.NextFloat()

	out := &PassiveOutcome{}
	var lastErr error
	for i := 0; i < e.retries(); i++ {
		cat, err := e.cats.GetOrCreate(ctx, userID, nameHint)
		if err != nil {
			return nil, err
		}

		// 冷却窗口内不触发，没有任何副作用
		if now.Sub(cat.LastActivityAt) < e.cfg.PassiveCooldown {
			return &PassiveOutcome{Fired: false}, nil
		}

		cat.LastActivityAt = now
		cat.XP += xpGain
		cat.AddTrait(trait, 1)
		evolved := Evolve(cat)

		out.Fired = true
		out.XPGained = xpGain
		out.TraitRaised = trait
		out.Evolved = evolved
		out.Tier = cat.Tier

		if err := e.cats.Save(ctx, cat); err != nil {
			if errors.Is(err, errors.ErrStoreConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}

		// 副作用在本次触发落库成功之后才应用：保存冲突后重读若落入
		// 冷却窗口，调用以Fired=false返回且不留下任何副作用
		e.applyPassiveSideEffects(ctx, out, conversationID, fishRoll, darkRoll, now)
		return out, nil
	}
	return nil, lastErr
}

// applyPassiveSideEffects 被动触发的两个概率副作用
// 随机数在重试循环外抽取，每次触发至多应用一次
func (e *Engine) applyPassiveSideEffects(ctx context.Context, out *PassiveOutcome, conversationID string, fishRoll, darkRoll float64, now time.Time) {
	// 副作用1：概率开启会话鱼事件，已有待处理事件时跳过不覆盖
	if fishRoll < e.cfg.FishEventChance && e.fish != nil {
		out.FishEventOpened = e.fish.Open(conversationID)
	}

	// 副作用2：概率开启暗夜全局事件，激活期内是幂等空操作
	if darkRoll < e.cfg.DarkNightChance {
		started, err := e.events.ActivateIfInactive(ctx, models.GlobalEventKeyDarkNight, now, now.Add(e.cfg.DarkNightWindow))
		if err != nil {
			// 全局事件是附赠效果，激活失败不影响本次结算
			e.logger.Warn("暗夜事件激活失败", zap.Error(err))
			return
		}
		out.DarkNightStarted = started
	}
}

// DarkNightActive 暗夜全局事件当前是否激活
func (e *Engine) DarkNightActive(ctx context.Context) (bool, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()
	return e.events.IsActive(ctx, models.GlobalEventKeyDarkNight, e.now())
}

// FishReply 尝试用一条消息结算会话的鱼事件
// 无待处理事件或文本不含关键词时不消耗、不变更
func (e *Engine) FishReply(ctx context.Context, userID, nameHint, conversationID, text string) (*FishOutcome, error) {
	if e.fish == nil || !e.fish.IsPending(conversationID) {
		return &FishOutcome{Consumed: false}, nil
	}

	// 关键词按固定优先级做大小写无关的子串匹配
	lower := strings.ToLower(text)
	var choice string
	switch {
	case strings.Contains(lower, FishChoiceEat):
		choice = FishChoiceEat
	case strings.Contains(lower, FishChoiceSave):
		choice = FishChoiceSave
	case strings.Contains(lower, FishChoiceShare):
		choice = FishChoiceShare
	default:
		// 不匹配的消息不消耗事件
		return &FishOutcome{Consumed: false}, nil
	}

	// 结算前先原子占有事件，并发回复中只有占有者能走到结算
	openedAt, claimed := e.fish.Claim(conversationID)
	if !claimed {
		return &FishOutcome{Consumed: false}, nil
	}

	ctx, cancel := e.opContext(ctx)
	defer cancel()

	out := &FishOutcome{Choice: choice, Consumed: true}
	_, err := e.mutate(ctx, userID, nameHint, func(cat *models.Cat) error {
		switch choice {
		case FishChoiceEat:
			cat.Fish += 2
			cat.AddTrait(models.TraitAggression, 1)
		case FishChoiceSave:
			cat.AddTrait(models.TraitIntelligence, 2)
		case FishChoiceShare:
			cat.AddTrait(models.TraitCharm, 2)
		}
		out.Evolved = Evolve(cat)
		out.Tier = cat.Tier
		return nil
	})
	if err != nil {
		// 结算失败时按原开启时间放回，事件保持待处理
		e.fish.Restore(conversationID, openedAt)
		return nil, err
	}

	return out, nil
}

// Daily 领取每日奖励
func (e *Engine) Daily(ctx context.Context, userID, nameHint string) (*DailyOutcome, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	now := e.now()
	out := &DailyOutcome{}
	_, err := e.mutate(ctx, userID, nameHint, func(cat *models.Cat) error {
		if cat.LastDailyClaimAt != nil && now.Sub(*cat.LastDailyClaimAt) < 24*time.Hour {
			return errors.New(errors.ErrDailyClaimed)
		}

		reward := e.cfg.DailyReward
		if cat.Premium {
			reward = e.cfg.DailyRewardPremium
		}

		cat.Coins += reward
		cat.LastDailyClaimAt = &now

		out.Reward = reward
		out.Coins = cat.Coins
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Give 向目标转账
// 手续费在赠送金额之外另行扣除，对方收到全额
func (e *Engine) Give(ctx context.Context, senderID, senderName, targetID, targetName string, amount int64) (*GiveOutcome, error) {
	if targetID == "" {
		return nil, errors.New(errors.ErrMissingTarget)
	}
	if senderID == targetID {
		return nil, errors.New(errors.ErrSelfTarget)
	}
	if amount <= 0 {
		return nil, errors.Newf(errors.ErrInvalidAmount, "金额必须为正数: %d", amount)
	}

	ctx, cancel := e.opContext(ctx)
	defer cancel()

	out := &GiveOutcome{}
	_, _, err := e.mutatePair(ctx, senderID, senderName, targetID, targetName, func(sender, target *models.Cat) error {
		feeRate := e.cfg.GiveFeeRate
		if sender.Premium {
			feeRate = e.cfg.GiveFeeRatePremium
		}

		fee := int64(float64(amount) * feeRate)
		total := amount + fee
		if sender.Coins < total {
			return errors.Newf(errors.ErrInsufficientCoins, "需要 %d，持有 %d", total, sender.Coins)
		}

		sender.Coins -= total
		target.Coins += amount

		out.Amount = amount
		out.Fee = fee
		out.SenderCoins = sender.Coins
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rob 抢劫目标
// 抽取金额截断到受害者当前余额，税额直接销毁不入任何账户
func (e *Engine) Rob(ctx context.Context, robberID, robberName, targetID, targetName string) (*RobOutcome, error) {
	if targetID == "" {
		return nil, errors.New(errors.ErrMissingTarget)
	}
	if robberID == targetID {
		return nil, errors.New(errors.ErrSelfTarget)
	}

	ctx, cancel := e.opContext(ctx)
	defer cancel()

	now := e.now()
	out := &RobOutcome{}
	_, _, err := e.mutatePair(ctx, robberID, robberName, targetID, targetName, func(robber, target *models.Cat) error {
		if target.IsProtected(now) {
			return errors.New(errors.ErrTargetProtected)
		}

		ceiling := e.cfg.RobCeiling
		taxRate := e.cfg.RobTaxRate
		if robber.Premium {
			ceiling = e.cfg.RobCeilingPremium
			taxRate = e.cfg.RobTaxRatePremium
		}

		amount := e.rng.NextInt(e.cfg.RobFloor, ceiling)
		if amount > target.Coins {
			amount = target.Coins
		}

		tax := int64(float64(amount) * taxRate)
		net := amount - tax

		target.Coins -= amount
		robber.Coins += net

		out.Amount = amount
		out.Tax = tax
		out.Net = net
		out.VictimName = target.Name
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 事务提交后尽力通知受害者，失败只记日志
	if e.notifier != nil && out.Amount > 0 {
		if err := e.notifier.NotifyUser(ctx, targetID, "你被抢了"); err != nil {
			e.logger.Warn("受害者通知发送失败",
				zap.String("victim", targetID),
				zap.Error(err))
		}
	}

	return out, nil
}

// Kill 攻击目标
// 奖励入账攻击方，不从受害者扣款；攻击方击杀数与好斗属性+1，受害者死亡数+1
func (e *Engine) Kill(ctx context.Context, killerID, killerName, targetID, targetName string) (*KillOutcome, error) {
	if targetID == "" {
		return nil, errors.New(errors.ErrMissingTarget)
	}
	if killerID == targetID {
		return nil, errors.New(errors.ErrSelfTarget)
	}

	ctx, cancel := e.opContext(ctx)
	defer cancel()

	out := &KillOutcome{}
	_, _, err := e.mutatePair(ctx, killerID, killerName, targetID, targetName, func(killer, target *models.Cat) error {
		reward := e.rng.NextInt(e.cfg.KillRewardMin, e.cfg.KillRewardMax)

		killer.Coins += reward
		killer.Kills++
		killer.AddTrait(models.TraitAggression, 1)
		evolved := Evolve(killer)

		target.Deaths++

		out.Reward = reward
		out.Evolved = evolved
		out.Tier = killer.Tier
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Protect 购买保护
// 重复购买直接覆盖为自购买时刻起的新窗口，不叠加
func (e *Engine) Protect(ctx context.Context, userID, nameHint string) (*ProtectOutcome, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	now := e.now()
	out := &ProtectOutcome{}
	_, err := e.mutate(ctx, userID, nameHint, func(cat *models.Cat) error {
		if cat.Coins < e.cfg.ProtectCost {
			return errors.Newf(errors.ErrInsufficientCoins, "需要 %d，持有 %d", e.cfg.ProtectCost, cat.Coins)
		}

		until := now.Add(e.cfg.ProtectDuration)
		cat.Coins -= e.cfg.ProtectCost
		cat.ProtectedUntil = &until

		out.Cost = e.cfg.ProtectCost
		out.ProtectedUntil = until
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Profile 档案快照与全局名次
func (e *Engine) Profile(ctx context.Context, userID, nameHint string) (*ProfileOutcome, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	cat, err := e.cats.GetOrCreate(ctx, userID, nameHint)
	if err != nil {
		return nil, err
	}

	rank, err := e.cats.RankOf(ctx, userID, "coins")
	if err != nil {
		return nil, err
	}

	return &ProfileOutcome{Cat: cat, Rank: rank}, nil
}

// Balance 查询余额
func (e *Engine) Balance(ctx context.Context, userID, nameHint string) (int64, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	cat, err := e.cats.GetOrCreate(ctx, userID, nameHint)
	if err != nil {
		return 0, err
	}
	return cat.Coins, nil
}

// TopCoins 金币榜
func (e *Engine) TopCoins(ctx context.Context, limit int) ([]*models.Cat, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = e.cfg.LeaderboardLimit
	}
	return e.cats.ListOrderedBy(ctx, "coins", true, limit)
}

// TopKills 击杀榜
func (e *Engine) TopKills(ctx context.Context, limit int) ([]*models.Cat, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = e.cfg.LeaderboardLimit
	}
	return e.cats.ListOrderedBy(ctx, "kills", true, limit)
}
