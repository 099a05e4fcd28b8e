package model

import "time"

// ItemType 热度条目类型
type ItemType string

const (
	ItemTypePost ItemType = "post"
	ItemTypeUser ItemType = "user"
)

// ItemTypes 所有可追踪的条目类型，调度器按此顺序逐类清扫
var ItemTypes = []ItemType{ItemTypePost, ItemTypeUser}

func (t ItemType) Valid() bool {
	return t == ItemTypePost || t == ItemTypeUser
}

// ParseItemType 将外部输入转换为 ItemType
func ParseItemType(s string) (ItemType, bool) {
	t := ItemType(s)
	return t, t.Valid()
}

// TrendingRecord 单个条目的热度状态
// 时间字段以 Unix 微秒存储，保证 lastIndexedAt 的等值比较在各存储中都精确
type TrendingRecord struct {
	ItemID           string   `json:"item_id" gorm:"primaryKey;type:varchar(64)"`
	ItemType         ItemType `json:"item_type" gorm:"type:varchar(16);not null;index:idx_trending_type_indexed,priority:1;index:idx_trending_type_score,priority:1"`
	Score            float64  `json:"score" gorm:"type:double precision;not null;default:0;index:idx_trending_type_score,priority:2"`
	PendingViewCount int64    `json:"pending_view_count" gorm:"not null;default:0"`
	LastIndexedAt    int64    `json:"last_indexed_at" gorm:"not null;index:idx_trending_type_indexed,priority:2"`
	CreatedAt        int64    `json:"created_at" gorm:"not null;autoCreateTime:false"`
}

func (TrendingRecord) TableName() string { return "trending_records" }

// IndexedAt 返回 score 生效的时间点
func (r *TrendingRecord) IndexedAt() time.Time { return FromMicros(r.LastIndexedAt) }

func (r *TrendingRecord) Created() time.Time { return FromMicros(r.CreatedAt) }

// Micros converts a timestamp to the persisted representation.
func Micros(t time.Time) int64 { return t.UnixMicro() }

func FromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }
