package models

// Entity 经营主体（租户）- 贫血模型，只包含数据结构
type Entity struct {
	BaseModel
	Name          string `json:"name" gorm:"not null;size:100"`
	Code          string `json:"code" gorm:"unique;not null;size:20;index"`
	Type          string `json:"type" gorm:"not null;size:20"`
	Status        string `json:"status" gorm:"default:'active';size:20"`
	Phone         string `json:"phone" gorm:"size:30"`
	Address       string `json:"address" gorm:"size:255"`
	Currency      string `json:"currency" gorm:"size:10;default:'XOF'"`
	WhatsAppPhone string `json:"whatsapp_phone" gorm:"column:whatsapp_phone;size:30"` // 接收经营告警的WhatsApp号码
	UserCount     int    `json:"user_count" gorm:"-"`           // 用户数量，不存储在数据库中
}

// TableName 表名
func (e *Entity) TableName() string {
	return "entities"
}

// 经营主体状态常量
const (
	EntityStatusActive   = "active"
	EntityStatusInactive = "inactive"
)

// 经营主体类型常量
const (
	EntityTypeCosmetics = "cosmetics"
	EntityTypeSpices    = "spices"
)

// IsActive 是否启用
func (e *Entity) IsActive() bool {
	return e.Status == EntityStatusActive
}
