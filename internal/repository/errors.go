package repository

import "errors"

var (
	// ErrNotFound 条目不存在
	ErrNotFound = errors.New("trending record not found")
	// ErrAlreadyExists create 时条目已存在
	ErrAlreadyExists = errors.New("trending record already exists")
	// ErrInvalidOrdering 时间戳未严格晚于 lastIndexedAt，或试图让 lastIndexedAt 倒退
	ErrInvalidOrdering = errors.New("trending timestamp out of order")
	// ErrStaleIndex 直接累加分数时 lastIndexedAt 已被并发的 reindex 推进
	ErrStaleIndex = errors.New("trending index is stale")
	// ErrConcurrentModification 条件写的前置条件不再成立
	ErrConcurrentModification = errors.New("trending record concurrently modified")
	ErrInvalidScore           = errors.New("trending score must be a non-negative number")
	ErrInvalidAmount          = errors.New("trending amount must be positive")
)
