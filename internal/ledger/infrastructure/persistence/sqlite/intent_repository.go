// Package sqlite 提供了交易意向仓储接口的 GORM 实现。
// 账本是单文件 sqlite 数据库，外部报表进程可以在机器人运行时直接读取。
package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/polyarb/internal/ledger/domain"
	"github.com/wyfcoding/polyarb/pkg/logger"
	"gorm.io/gorm"
)

// intentRepositoryImpl 是 domain.TradeIntentRepository 接口的 GORM 实现。
type intentRepositoryImpl struct {
	db *gorm.DB
}

// NewIntentRepository 创建交易意向仓储实例，并确保表结构存在
func NewIntentRepository(db *gorm.DB) (domain.TradeIntentRepository, error) {
	if err := db.AutoMigrate(&domain.TradeIntent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate trade intents table: %w", err)
	}
	return &intentRepositoryImpl{db: db}, nil
}

// Insert 实现 domain.TradeIntentRepository.Insert
// intent_id 上的唯一索引保证重复记录原子拒绝，失败的写入不改变已有记录
func (r *intentRepositoryImpl) Insert(ctx context.Context, intent *domain.TradeIntent) error {
	err := r.db.WithContext(ctx).Create(intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateIntent, intent.IntentID)
		}
		logger.Error(ctx, "intent_repository.insert failed", "intent_id", intent.IntentID, "error", err)
		return fmt.Errorf("failed to insert trade intent: %w", err)
	}
	return nil
}

// Get 实现 domain.TradeIntentRepository.Get
func (r *intentRepositoryImpl) Get(ctx context.Context, intentID string) (*domain.TradeIntent, error) {
	var intent domain.TradeIntent
	if err := r.db.WithContext(ctx).Where("intent_id = ?", intentID).First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownIntent, intentID)
		}
		logger.Error(ctx, "intent_repository.get failed", "intent_id", intentID, "error", err)
		return nil, fmt.Errorf("failed to get trade intent: %w", err)
	}
	return &intent, nil
}

// UpdateStatus 实现 domain.TradeIntentRepository.UpdateStatus
// 读取、校验、写入在同一事务内完成，非法迁移不改变已存状态。
// mode/timestamp 等不可变字段永远不在更新列里
func (r *intentRepositoryImpl) UpdateStatus(ctx context.Context, intentID string, status domain.IntentStatus, transactionID, notes string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, status)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var intent domain.TradeIntent
		if err := tx.Where("intent_id = ?", intentID).First(&intent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", domain.ErrUnknownIntent, intentID)
			}
			return fmt.Errorf("failed to load trade intent: %w", err)
		}

		if !intent.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s for intent %s",
				domain.ErrInvalidTransition, intent.Status, status, intentID)
		}

		updates := map[string]interface{}{"status": string(status)}
		if transactionID != "" {
			updates["transaction_id"] = transactionID
		}
		if notes != "" {
			updates["notes"] = notes
		}

		if err := tx.Model(&domain.TradeIntent{}).Where("intent_id = ?", intentID).Updates(updates).Error; err != nil {
			logger.Error(ctx, "intent_repository.update_status failed", "intent_id", intentID, "error", err)
			return fmt.Errorf("failed to update intent status: %w", err)
		}
		return nil
	})
}

// List 实现 domain.TradeIntentRepository.List
// 最新优先，时间相同按插入顺序（自增主键）做并列裁决
func (r *intentRepositoryImpl) List(ctx context.Context, filter domain.QueryFilter, limit int) ([]*domain.TradeIntent, error) {
	if limit <= 0 {
		limit = 100
	}

	db := r.db.WithContext(ctx).Model(&domain.TradeIntent{})
	if filter.Status != "" {
		db = db.Where("status = ?", string(filter.Status))
	}
	if filter.Venue != "" {
		db = db.Where("venue = ?", filter.Venue)
	}
	if filter.SymbolRoot != "" {
		db = db.Where("symbol_root = ?", filter.SymbolRoot)
	}

	var intents []*domain.TradeIntent
	if err := db.Order("timestamp desc, id desc").Limit(limit).Find(&intents).Error; err != nil {
		logger.Error(ctx, "intent_repository.list failed", "error", err)
		return nil, fmt.Errorf("failed to list trade intents: %w", err)
	}
	return intents, nil
}

// Snapshot 实现 domain.TradeIntentRepository.Snapshot
// 时间正序全量读取，供导出和 PnL 推导使用
func (r *intentRepositoryImpl) Snapshot(ctx context.Context) ([]*domain.TradeIntent, error) {
	var intents []*domain.TradeIntent
	if err := r.db.WithContext(ctx).Order("timestamp asc, id asc").Find(&intents).Error; err != nil {
		logger.Error(ctx, "intent_repository.snapshot failed", "error", err)
		return nil, fmt.Errorf("failed to snapshot trade intents: %w", err)
	}
	return intents, nil
}
