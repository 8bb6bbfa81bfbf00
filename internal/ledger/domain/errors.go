package domain

import "errors"

// 账本完整性错误。这类错误意味着调用方违反了协议，
// 必须上抛给调用者处理，不允许静默吞掉
var (
	// ErrDuplicateIntent 同一 intent_id 重复记录
	ErrDuplicateIntent = errors.New("duplicate trade intent")
	// ErrUnknownIntent 意向不存在
	ErrUnknownIntent = errors.New("unknown trade intent")
	// ErrInvalidTransition 违反状态机的迁移
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidIntent 构造参数违反实体不变量
	ErrInvalidIntent = errors.New("invalid trade intent")
)
