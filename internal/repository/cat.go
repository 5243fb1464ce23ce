package repository

import (
	"context"
	stderrors "errors"

	"github.com/wfunc/cat-game/internal/errors"
	"github.com/wfunc/cat-game/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 排序字段白名单
var orderableFields = map[string]bool{
	"coins": true,
	"kills": true,
	"xp":    true,
}

// CatDefaults 新建猫的默认值
type CatDefaults struct {
	Coins   int64
	Fish    int64
	Premium bool
	Tier    string
}

// CatRepository 猫实体仓储接口
type CatRepository interface {
	// GetOrCreate 按用户ID读取，不存在时用默认值创建，幂等且并发安全
	GetOrCreate(ctx context.Context, userID, nameHint string) (*models.Cat, error)
	// FindByID 按用户ID读取
	FindByID(ctx context.Context, userID string) (*models.Cat, error)
	// Save 按版本条件整体更新，版本不匹配返回ErrStoreConflict
	Save(ctx context.Context, cat *models.Cat) error
	// ListOrderedBy 按字段排序取前limit条
	ListOrderedBy(ctx context.Context, field string, descending bool, limit int) ([]*models.Cat, error)
	// RankOf 按字段降序的1起始名次，未找到返回0
	RankOf(ctx context.Context, userID, field string) (int, error)
	// WithTx 返回绑定到事务的仓储
	WithTx(tx *gorm.DB) CatRepository
}

// catRepo 猫实体仓储实现
type catRepo struct {
	*BaseRepo
	defaults CatDefaults
}

// NewCatRepository 创建猫实体仓储
func NewCatRepository(db *gorm.DB, defaults CatDefaults) CatRepository {
	return &catRepo{
		BaseRepo: &BaseRepo{db: db},
		defaults: defaults,
	}
}

// GetOrCreate 按用户ID读取，不存在时创建
func (r *catRepo) GetOrCreate(ctx context.Context, userID, nameHint string) (*models.Cat, error) {
	cat := &models.Cat{
		UserID:       userID,
		Name:         nameHint,
		Coins:        r.defaults.Coins,
		Fish:         r.defaults.Fish,
		Premium:      r.defaults.Premium,
		Aggression:   1,
		Intelligence: 1,
		Luck:         1,
		Charm:        1,
		Tier:         r.defaults.Tier,
	}

	// 冲突时不做任何写入，保证并发下同一ID只创建一次
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(cat)
	if result.Error != nil {
		return nil, wrapStoreError(result.Error)
	}

	if result.RowsAffected == 0 {
		// 已存在，读取现有记录
		return r.FindByID(ctx, userID)
	}

	return normalize(cat), nil
}

// FindByID 按用户ID读取
func (r *catRepo) FindByID(ctx context.Context, userID string) (*models.Cat, error) {
	var cat models.Cat
	err := r.db.WithContext(ctx).First(&cat, "user_id = ?", userID).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.ErrNotFound, "猫不存在")
		}
		return nil, wrapStoreError(err)
	}
	return normalize(&cat), nil
}

// Save 按版本条件整体更新
// 版本不匹配说明记录被并发修改过，调用方需要重新读取后重试
func (r *catRepo) Save(ctx context.Context, cat *models.Cat) error {
	current := cat.Version
	cat.Version = current + 1

	result := r.db.WithContext(ctx).
		Model(&models.Cat{}).
		Where("user_id = ? AND version = ?", cat.UserID, current).
		Select("*").
		Omit("user_id", "created_at").
		Updates(cat)

	if result.Error != nil {
		cat.Version = current
		return wrapStoreError(result.Error)
	}

	if result.RowsAffected == 0 {
		cat.Version = current
		return errors.New(errors.ErrStoreConflict, "猫记录版本冲突: "+cat.UserID)
	}

	return nil
}

// ListOrderedBy 按字段排序取前limit条
func (r *catRepo) ListOrderedBy(ctx context.Context, field string, descending bool, limit int) ([]*models.Cat, error) {
	if !orderableFields[field] {
		return nil, errors.New(errors.ErrInvalidParam, "不允许的排序字段: "+field)
	}
	if limit <= 0 {
		limit = 10
	}

	order := field + " ASC"
	if descending {
		order = field + " DESC"
	}

	var cats []*models.Cat
	err := r.db.WithContext(ctx).
		Order(order).
		Limit(limit).
		Find(&cats).Error
	if err != nil {
		return nil, wrapStoreError(err)
	}

	for i := range cats {
		cats[i] = normalize(cats[i])
	}
	return cats, nil
}

// RankOf 按字段降序的1起始名次
// 并列值共享名次，未找到返回0
func (r *catRepo) RankOf(ctx context.Context, userID, field string) (int, error) {
	if !orderableFields[field] {
		return 0, errors.New(errors.ErrInvalidParam, "不允许的排序字段: "+field)
	}

	var cat models.Cat
	err := r.db.WithContext(ctx).First(&cat, "user_id = ?", userID).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, wrapStoreError(err)
	}

	var own int64
	switch field {
	case "coins":
		own = cat.Coins
	case "kills":
		own = cat.Kills
	case "xp":
		own = cat.XP
	}

	var higher int64
	err = r.db.WithContext(ctx).
		Model(&models.Cat{}).
		Where(field+" > ?", own).
		Count(&higher).Error
	if err != nil {
		return 0, wrapStoreError(err)
	}

	return int(higher) + 1, nil
}

// WithTx 返回绑定到事务的仓储
func (r *catRepo) WithTx(tx *gorm.DB) CatRepository {
	return &catRepo{
		BaseRepo: &BaseRepo{db: tx},
		defaults: r.defaults,
	}
}

// normalize 回填历史记录缺失的字段
// 旧记录可能缺少属性或等级列，统一在读取边界补默认值
func normalize(cat *models.Cat) *models.Cat {
	if cat.Aggression < 1 {
		cat.Aggression = 1
	}
	if cat.Intelligence < 1 {
		cat.Intelligence = 1
	}
	if cat.Luck < 1 {
		cat.Luck = 1
	}
	if cat.Charm < 1 {
		cat.Charm = 1
	}
	if cat.Coins < 0 {
		cat.Coins = 0
	}
	if cat.Fish < 0 {
		cat.Fish = 0
	}
	return cat
}

// wrapStoreError 统一存储错误包装
func wrapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrStoreTimeout)
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.Wrap(err, errors.ErrCanceled)
	}
	return errors.Wrap(err, errors.ErrStoreUnavailable)
}
