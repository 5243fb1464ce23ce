package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/wfunc/cat-game/internal/config"
	"github.com/wfunc/cat-game/internal/errors"
	"github.com/wfunc/cat-game/internal/models"
	"github.com/wfunc/cat-game/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// scriptedRandom 按脚本返回随机数的测试实现
// 脚本耗尽后整数返回min，浮点返回1（即概率事件不触发）
type scriptedRandom struct {
	ints   []int64
	floats []float64
	ii, fi int
}

func (r *scriptedRandom) NextInt(min, max int64) int64 {
	if r.ii < len(r.ints) {
		v := r.ints[r.ii]
		r.ii++
		if v < min {
			return min
		}
		if v > max {
			return max
		}
		return v
	}
	return min
}

func (r *scriptedRandom) NextFloat() float64 {
	if r.fi < len(r.floats) {
		v := r.floats[r.fi]
		r.fi++
		return v
	}
	return 1
}

// recordingNotifier 记录通知调用的测试实现
type recordingNotifier struct {
	userIDs  []string
	messages []string
	err      error
}

func (n *recordingNotifier) NotifyUser(_ context.Context, userID, message string) error {
	n.userIDs = append(n.userIDs, userID)
	n.messages = append(n.messages, message)
	return n.err
}

// EngineTestSuite 游戏引擎测试套件
type EngineTestSuite struct {
	suite.Suite
	db       *gorm.DB
	cats     repository.CatRepository
	events   repository.GlobalEventRepository
	fish     *FishEventStore
	rng      *scriptedRandom
	notifier *recordingNotifier
	engine   *Engine
	clock    time.Time
	ctx      context.Context
}

func (s *EngineTestSuite) SetupTest() {
	s.db = repository.SetupTestDB()
	s.cats = repository.NewCatRepository(s.db, repository.TestDefaults())
	s.events = repository.NewGlobalEventRepository(s.db)
	s.fish = NewFishEventStore(10*time.Minute, zap.NewNop())
	s.rng = &scriptedRandom{}
	s.notifier = &recordingNotifier{}
	s.clock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = context.Background()

	s.engine = NewEngine(&EngineConfig{
		Cats:       s.cats,
		Events:     s.events,
		TxManager:  repository.NewTxManager(s.db),
		FishEvents: s.fish,
		Random:     s.rng,
		Notifier:   s.notifier,
		Game:       config.DefaultGame(),
		OpTimeout:  3 * time.Second,
		Logger:     zap.NewNop(),
	})
	s.engine.now = func() time.Time { return s.clock }
}

func (s *EngineTestSuite) TearDownTest() {
	repository.CleanupTestDB(s.db)
}

// advance 推进测试时钟
func (s *EngineTestSuite) advance(d time.Duration) {
	s.clock = s.clock.Add(d)
}

// coins 读取指定用户当前余额
func (s *EngineTestSuite) coins(userID string) int64 {
	cat, err := s.cats.FindByID(s.ctx, userID)
	s.Require().NoError(err)
	return cat.Coins
}

// TestPassiveFires 测试被动触发发放经验与属性
func (s *EngineTestSuite) TestPassiveFires() {
	s.rng.ints = []int64{2, 0} // 经验2，属性下标0（好斗）

	out, err := s.engine.Passive(s.ctx, "u1", "咪咪", "conv-1")
	s.Require().NoError(err)
	s.True(out.Fired)
	s.Equal(int64(2), out.XPGained)
	s.Equal("aggression", out.TraitRaised)
	s.False(out.Evolved)

	cat, err := s.cats.FindByID(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(2), cat.XP)
	s.Equal(int64(2), cat.Aggression)
	s.Equal(s.clock.Unix(), cat.LastActivityAt.Unix())
}

// TestPassiveCooldown 测试冷却窗口内的消息是无副作用的空操作
func (s *EngineTestSuite) TestPassiveCooldown() {
	out, err := s.engine.Passive(s.ctx, "u1", "咪咪", "conv-1")
	s.Require().NoError(err)
	s.True(out.Fired)

	before, err := s.cats.FindByID(s.ctx, "u1")
	s.Require().NoError(err)

	// 冷却内第二条消息不触发
	s.advance(time.Second)
	out, err = s.engine.Passive(s.ctx, "u1", "咪咪", "conv-1")
	s.Require().NoError(err)
	s.False(out.Fired)

	after, err := s.cats.FindByID(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(before.XP, after.XP)
	s.Equal(before.Version, after.Version)

	// 冷却过后恢复触发
	s.advance(4 * time.Second)
	out, err = s.engine.Passive(s.ctx, "u1", "咪咪", "conv-1")
	s.Require().NoError(err)
	s.True(out.Fired)
}

// TestPassiveOpensFishEvent 测试概率命中时开启会话鱼事件
func (s *EngineTestSuite) TestPassiveOpensFishEvent() {
	s.rng.floats = []float64{0.01, 1} // 鱼事件命中，暗夜不命中

	out, err := s.engine.Passive(s.ctx, "u1", "咪咪", "conv-1")
	s.Require().NoError(err)
	s.True(out.FishEventOpened)
	s.False(out.DarkNightStarted)
	s.True(s.fish.IsPending("conv-1"))

	// 已有待处理事件时再次命中不覆盖
	s.advance(5 * time.Second)
	s.rng.floats = []float64{0.01, 1}
	s.rng.fi = 0
	out, err = s.engine.Passive(s.ctx, "u1", "咪咪", "conv-1")
	s.Require().NoError(err)
	s.False(out.FishEventOpened)
}

// TestPassiveStartsDarkNight 测试概率命中时开启暗夜全局事件
func (s *EngineTestSuite) TestPassiveStartsDarkNight() {
	s.rng.floats = []float64{1, 0.001} // 鱼事件不命中，暗夜命中

	out, err := s.engine.Passive(s.ctx, "u1", "咪咪", "conv-1")
	s.Require().NoError(err)
	s.True(out.DarkNightStarted)

	active, err := s.engine.DarkNightActive(s.ctx)
	s.Require().NoError(err)
	s.True(active)

	// 激活期内再次命中是幂等空操作
	s.advance(5 * time.Second)
	s.rng.floats = []float64{1, 0.001}
	s.rng.fi = 0
	out, err = s.engine.Passive(s.ctx, "u2", "花花", "conv-1")
	s.Require().NoError(err)
	s.False(out.DarkNightStarted)

	// 窗口过期后事件结束
	s.advance(6 * time.Minute)
	active, err = s.engine.DarkNightActive(s.ctx)
	s.Require().NoError(err)
	s.False(active)
}

// TestDaily 测试每日奖励的窗口判定
func (s *EngineTestSuite) TestDaily() {
	out, err := s.engine.Daily(s.ctx, "u1", "咪咪")
	s.Require().NoError(err)
	s.Equal(int64(1000), out.Reward)
	s.Equal(int64(1500), out.Coins)

	// 23小时后拒绝
	s.advance(23 * time.Hour)
	_, err = s.engine.Daily(s.ctx, "u1", "咪咪")
	s.True(errors.Is(err, errors.ErrDailyClaimed))
	s.Equal(int64(1500), s.coins("u1"))

	// 再过1小时1秒后放行
	s.advance(time.Hour + time.Second)
	out, err = s.engine.Daily(s.ctx, "u1", "咪咪")
	s.Require().NoError(err)
	s.Equal(int64(2500), out.Coins)
}

// TestDailyPremium 测试高级用户的每日奖励
func (s *EngineTestSuite) TestDailyPremium() {
	cat, err := s.cats.GetOrCreate(s.ctx, "vip", "皇帝")
	s.Require().NoError(err)
	cat.Premium = true
	s.Require().NoError(s.cats.Save(s.ctx, cat))

	out, err := s.engine.Daily(s.ctx, "vip", "皇帝")
	s.Require().NoError(err)
	s.Equal(int64(2000), out.Reward)
}

// TestGive 测试转账的手续费策略与双方余额
func (s *EngineTestSuite) TestGive() {
	out, err := s.engine.Give(s.ctx, "u1", "咪咪", "u2", "花花", 100)
	s.Require().NoError(err)
	s.Equal(int64(100), out.Amount)
	s.Equal(int64(10), out.Fee)

	// 发送方扣除金额加手续费，接收方收到全额
	s.Equal(int64(390), s.coins("u1"))
	s.Equal(int64(600), s.coins("u2"))
}

// TestGiveFeePolicy 测试标准手续费率下的费额计算
func (s *EngineTestSuite) TestGiveFeePolicy() {
	cat, err := s.cats.GetOrCreate(s.ctx, "rich", "老板")
	s.Require().NoError(err)
	cat.Coins = 5000
	s.Require().NoError(s.cats.Save(s.ctx, cat))

	out, err := s.engine.Give(s.ctx, "rich", "老板", "u2", "花花", 1000)
	s.Require().NoError(err)
	s.Equal(int64(100), out.Fee)
	s.Equal(int64(3900), out.SenderCoins)
}

// TestGiveValidation 测试转账的参数校验
func (s *EngineTestSuite) TestGiveValidation() {
	_, err := s.engine.Give(s.ctx, "u1", "咪咪", "", "", 100)
	s.True(errors.Is(err, errors.ErrMissingTarget))

	_, err = s.engine.Give(s.ctx, "u1", "咪咪", "u1", "咪咪", 100)
	s.True(errors.Is(err, errors.ErrSelfTarget))

	_, err = s.engine.Give(s.ctx, "u1", "咪咪", "u2", "花花", 0)
	s.True(errors.Is(err, errors.ErrInvalidAmount))

	_, err = s.engine.Give(s.ctx, "u1", "咪咪", "u2", "花花", -5)
	s.True(errors.Is(err, errors.ErrInvalidAmount))
}

// TestGiveInsufficient 测试余额不足时双方都不变
func (s *EngineTestSuite) TestGiveInsufficient() {
	// 默认500金币，转500需要550
	_, err := s.engine.Give(s.ctx, "u1", "咪咪", "u2", "花花", 500)
	s.True(errors.Is(err, errors.ErrInsufficientCoins))

	s.Equal(int64(500), s.coins("u1"))
	s.Equal(int64(500), s.coins("u2"))
}

// TestRob 测试抢劫的入账、税额销毁与受害者通知
func (s *EngineTestSuite) TestRob() {
	s.rng.ints = []int64{400}

	out, err := s.engine.Rob(s.ctx, "u1", "咪咪", "u2", "花花")
	s.Require().NoError(err)
	s.Equal(int64(400), out.Amount)
	s.Equal(int64(40), out.Tax)
	s.Equal(int64(360), out.Net)
	s.Equal("花花", out.VictimName)

	// 税额被销毁：双方总额减少了税额
	s.Equal(int64(860), s.coins("u1"))
	s.Equal(int64(100), s.coins("u2"))

	// 受害者收到尽力而为的通知
	s.Require().Len(s.notifier.userIDs, 1)
	s.Equal("u2", s.notifier.userIDs[0])
}

// TestRobClampsToBalance 测试抽取金额截断到受害者余额，余额不会为负
func (s *EngineTestSuite) TestRobClampsToBalance() {
	s.rng.ints = []int64{10000}

	out, err := s.engine.Rob(s.ctx, "u1", "咪咪", "u2", "花花")
	s.Require().NoError(err)
	s.Equal(int64(500), out.Amount)
	s.Equal(int64(0), s.coins("u2"))

	// 清零后的受害者再被抢，金额为0但动作仍然成功
	s.rng.ints = []int64{300}
	s.rng.ii = 0
	out, err = s.engine.Rob(s.ctx, "u3", "黑猫", "u2", "花花")
	s.Require().NoError(err)
	s.Equal(int64(0), out.Amount)
	s.Equal(int64(0), s.coins("u2"))
}

// TestRobProtectedTarget 测试保护期内的目标不可被抢
func (s *EngineTestSuite) TestRobProtectedTarget() {
	_, err := s.engine.Protect(s.ctx, "u2", "花花")
	s.Require().NoError(err)

	_, err = s.engine.Rob(s.ctx, "u1", "咪咪", "u2", "花花")
	s.True(errors.Is(err, errors.ErrTargetProtected))
	s.Empty(s.notifier.userIDs)

	// 保护到期后恢复可抢
	s.advance(24*time.Hour + time.Second)
	s.rng.ints = []int64{100}
	_, err = s.engine.Rob(s.ctx, "u1", "咪咪", "u2", "花花")
	s.Require().NoError(err)
}

// TestKill 测试攻击的奖励入账与双方战绩
func (s *EngineTestSuite) TestKill() {
	s.rng.ints = []int64{200}

	out, err := s.engine.Kill(s.ctx, "u1", "咪咪", "u2", "花花")
	s.Require().NoError(err)
	s.Equal(int64(200), out.Reward)

	killer, err := s.cats.FindByID(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(700), killer.Coins)
	s.Equal(int64(1), killer.Kills)
	s.Equal(int64(2), killer.Aggression)

	// 奖励不从受害者扣款
	target, err := s.cats.FindByID(s.ctx, "u2")
	s.Require().NoError(err)
	s.Equal(int64(500), target.Coins)
	s.Equal(int64(1), target.Deaths)
}

// TestProtect 测试保护购买与窗口覆盖
func (s *EngineTestSuite) TestProtect() {
	cat, err := s.cats.GetOrCreate(s.ctx, "u1", "咪咪")
	s.Require().NoError(err)
	cat.Coins = 1200
	s.Require().NoError(s.cats.Save(s.ctx, cat))

	out, err := s.engine.Protect(s.ctx, "u1", "咪咪")
	s.Require().NoError(err)
	s.Equal(int64(500), out.Cost)
	s.Equal(s.clock.Add(24*time.Hour).Unix(), out.ProtectedUntil.Unix())

	// 重复购买覆盖为新窗口，不叠加
	s.advance(12 * time.Hour)
	out, err = s.engine.Protect(s.ctx, "u1", "咪咪")
	s.Require().NoError(err)
	s.Equal(s.clock.Add(24*time.Hour).Unix(), out.ProtectedUntil.Unix())
	s.Equal(int64(200), s.coins("u1"))

	// 余额不足时拒绝
	_, err = s.engine.Protect(s.ctx, "u1", "咪咪")
	s.True(errors.Is(err, errors.ErrInsufficientCoins))
	s.Equal(int64(200), s.coins("u1"))
}

// TestFishReplyFlow 测试鱼事件从开启到结算的完整流程
func (s *EngineTestSuite) TestFishReplyFlow() {
	s.fish.Open("conv-1")

	// 不含关键词的消息不消耗事件
	out, err := s.engine.FishReply(s.ctx, "u1", "咪咪", "conv-1", "hello there")
	s.Require().NoError(err)
	s.False(out.Consumed)
	s.True(s.fish.IsPending("conv-1"))

	// 大小写无关的子串匹配
	out, err = s.engine.FishReply(s.ctx, "u1", "咪咪", "conv-1", "I will EAT it")
	s.Require().NoError(err)
	s.True(out.Consumed)
	s.Equal(FishChoiceEat, out.Choice)

	cat, err := s.cats.FindByID(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(4), cat.Fish)
	s.Equal(int64(2), cat.Aggression)

	// 事件已消耗，再次回复不生效
	out, err = s.engine.FishReply(s.ctx, "u1", "咪咪", "conv-1", "eat")
	s.Require().NoError(err)
	s.False(out.Consumed)
}

// TestFishReplyChoices 测试三种选择各自的效果
func (s *EngineTestSuite) TestFishReplyChoices() {
	s.fish.Open("conv-1")
	out, err := s.engine.FishReply(s.ctx, "u1", "咪咪", "conv-1", "let's save it")
	s.Require().NoError(err)
	s.Equal(FishChoiceSave, out.Choice)
	cat, _ := s.cats.FindByID(s.ctx, "u1")
	s.Equal(int64(3), cat.Intelligence)

	s.fish.Open("conv-2")
	out, err = s.engine.FishReply(s.ctx, "u2", "花花", "conv-2", "share with friends")
	s.Require().NoError(err)
	s.Equal(FishChoiceShare, out.Choice)
	cat, _ = s.cats.FindByID(s.ctx, "u2")
	s.Equal(int64(3), cat.Charm)
}

// TestFishReplyKeywordPriority 测试多个关键词同时出现时的固定优先级
func (s *EngineTestSuite) TestFishReplyKeywordPriority() {
	s.fish.Open("conv-1")

	out, err := s.engine.FishReply(s.ctx, "u1", "咪咪", "conv-1", "save it or eat it?")
	s.Require().NoError(err)
	s.Equal(FishChoiceEat, out.Choice)
}

// TestFishReplyNoPending 测试无待处理事件时回复不生效
func (s *EngineTestSuite) TestFishReplyNoPending() {
	out, err := s.engine.FishReply(s.ctx, "u1", "咪咪", "conv-1", "eat")
	s.Require().NoError(err)
	s.False(out.Consumed)

	// 未触及存储，猫未被创建
	_, err = s.cats.FindByID(s.ctx, "u1")
	s.True(errors.Is(err, errors.ErrNotFound))
}

// TestProfileAndBalance 测试档案与余额查询
func (s *EngineTestSuite) TestProfileAndBalance() {
	cat, err := s.cats.GetOrCreate(s.ctx, "u2", "花花")
	s.Require().NoError(err)
	cat.Coins = 2000
	s.Require().NoError(s.cats.Save(s.ctx, cat))

	out, err := s.engine.Profile(s.ctx, "u1", "咪咪")
	s.Require().NoError(err)
	s.Equal("咪咪", out.Cat.Name)
	s.Equal(2, out.Rank)

	coins, err := s.engine.Balance(s.ctx, "u1", "咪咪")
	s.Require().NoError(err)
	s.Equal(int64(500), coins)
}

// TestLeaderboards 测试两种排行榜
func (s *EngineTestSuite) TestLeaderboards() {
	for _, row := range []struct {
		id    string
		coins int64
		kills int64
	}{
		{"u1", 100, 5},
		{"u2", 300, 1},
		{"u3", 200, 9},
	} {
		cat, err := s.cats.GetOrCreate(s.ctx, row.id, row.id)
		s.Require().NoError(err)
		cat.Coins = row.coins
		cat.Kills = row.kills
		s.Require().NoError(s.cats.Save(s.ctx, cat))
	}

	top, err := s.engine.TopCoins(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(top, 2)
	s.Equal("u2", top[0].UserID)
	s.Equal("u3", top[1].UserID)

	top, err = s.engine.TopKills(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(top, 3)
	s.Equal("u3", top[0].UserID)
}

// TestRobNotifyFailureIsSilent 测试通知失败不影响抢劫结果
func (s *EngineTestSuite) TestRobNotifyFailureIsSilent() {
	s.notifier.err = errors.New(errors.ErrNotifyFailed)
	s.rng.ints = []int64{200}

	out, err := s.engine.Rob(s.ctx, "u1", "咪咪", "u2", "花花")
	s.Require().NoError(err)
	s.Equal(int64(200), out.Amount)
	s.Equal(int64(300), s.coins("u2"))
}

// TestFishReplyConcurrentSettlesOnce 测试并发回复同一事件时恰好结算一次
func (s *EngineTestSuite) TestFishReplyConcurrentSettlesOnce() {
	s.fish.Open("conv-1")

	users := []string{"u1", "u2"}
	outs := make([]*FishOutcome, len(users))
	errs := make([]error, len(users))

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			outs[i], errs[i] = s.engine.FishReply(s.ctx, users[i], users[i], "conv-1", "let's save it")
		}(i)
	}
	close(start)
	wg.Wait()

	// 恰好一个回复消耗了事件
	var winner string
	consumed := 0
	for i := range users {
		s.Require().NoError(errs[i])
		if outs[i].Consumed {
			consumed++
			winner = users[i]
		}
	}
	s.Equal(1, consumed)
	s.False(s.fish.IsPending("conv-1"))

	// 只有消耗者的猫被结算，落败方完全没有触及存储
	cat, err := s.cats.FindByID(s.ctx, winner)
	s.Require().NoError(err)
	s.Equal(int64(3), cat.Intelligence)
	for _, id := range users {
		if id == winner {
			continue
		}
		_, err := s.cats.FindByID(s.ctx, id)
		s.True(errors.Is(err, errors.ErrNotFound))
	}
}

// TestGiveConcurrentDrain 测试并发转账掏空发送方时余额精确对账且不为负
func (s *EngineTestSuite) TestGiveConcurrentDrain() {
	const workers = 5
	errs := make([]error, workers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = s.engine.Give(s.ctx, "u1", "咪咪", "u2", "花花", 50)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		// 高并发下允许重试耗尽返回冲突，不允许任何其它失败
		s.True(errors.Is(err, errors.ErrStoreConflict), err)
	}

	// 没有丢失更新：双方余额与成功笔数精确对账（每笔50加5手续费）
	sender := s.coins("u1")
	receiver := s.coins("u2")
	s.GreaterOrEqual(sender, int64(0))
	s.Equal(int64(500-55*succeeded), sender)
	s.Equal(int64(500+50*succeeded), receiver)
}

// racedCatRepo 模拟被动触发输掉保存竞争：第一次保存返回版本冲突，
// 重读时最近活跃时间已被对手推进到当前时刻
type racedCatRepo struct {
	repository.CatRepository
	now   func() time.Time
	loads int
	saves int
}

func (r *racedCatRepo) GetOrCreate(ctx context.Context, userID, nameHint string) (*models.Cat, error) {
	cat, err := r.CatRepository.GetOrCreate(ctx, userID, nameHint)
	r.loads++
	if r.loads > 1 && cat != nil {
		cat.LastActivityAt = r.now()
	}
	return cat, err
}

func (r *racedCatRepo) Save(ctx context.Context, cat *models.Cat) error {
	r.saves++
	if r.saves == 1 {
		return errors.New(errors.ErrStoreConflict)
	}
	return r.CatRepository.Save(ctx, cat)
}

// TestPassiveConflictIntoCooldown 测试保存冲突后重读落入冷却窗口时不留下副作用
func (s *EngineTestSuite) TestPassiveConflictIntoCooldown() {
	raced := &racedCatRepo{
		CatRepository: s.cats,
		now:           func() time.Time { return s.clock },
	}
	// 两个概率副作用都会命中
	s.rng.floats = []float64{0.0, 0.0}

	engine := NewEngine(&EngineConfig{
		Cats:       raced,
		Events:     s.events,
		TxManager:  repository.NewTxManager(s.db),
		FishEvents: s.fish,
		Random:     s.rng,
		Game:       config.DefaultGame(),
		Logger:     zap.NewNop(),
	})
	engine.now = func() time.Time { return s.clock }

	out, err := engine.Passive(s.ctx, "u1", "咪咪", "conv-1")
	s.Require().NoError(err)
	s.False(out.Fired)

	// 本次调用没有触发，鱼事件与暗夜都不得开启
	s.False(s.fish.IsPending("conv-1"))
	active, err := s.engine.DarkNightActive(s.ctx)
	s.Require().NoError(err)
	s.False(active)
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, &EngineTestSuite{})
}
