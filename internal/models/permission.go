package models

// Permission 权限矩阵条目：角色 × 资源 × 操作
// EntityID 为0表示平台默认值，经营主体自己的条目覆盖默认值
type Permission struct {
	BaseModel
	EntityID uint   `gorm:"not null;default:0;uniqueIndex:idx_permission_key" json:"entity_id"`
	Role     string `gorm:"size:20;not null;uniqueIndex:idx_permission_key" json:"role"`
	Resource string `gorm:"size:50;not null;uniqueIndex:idx_permission_key" json:"resource"`
	Action   string `gorm:"size:20;not null;uniqueIndex:idx_permission_key" json:"action"`
	Allowed  bool   `gorm:"not null" json:"allowed"`
}

// TableName 指定表名
func (Permission) TableName() string {
	return "permissions"
}

// 资源常量
const (
	ResourceEntities      = "entities"
	ResourceUsers         = "users"
	ResourcePermissions   = "permissions"
	ResourceProducts      = "products"
	ResourceStock         = "stock"
	ResourceThresholds    = "thresholds"
	ResourceInvoices      = "invoices"
	ResourceOrders        = "orders"
	ResourceCashSessions  = "cash_sessions"
	ResourceNotifications = "notifications"
	ResourceReports       = "reports"
	ResourceAuditLogs     = "audit_logs"
	ResourceRegistrations = "registrations"
)

// 操作常量
const (
	ActionRead     = "read"
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionValidate = "validate"
	ActionExport   = "export"
)

// AllResources 所有资源
var AllResources = []string{
	ResourceEntities, ResourceUsers, ResourcePermissions, ResourceProducts, ResourceStock,
	ResourceThresholds, ResourceInvoices, ResourceOrders, ResourceCashSessions,
	ResourceNotifications, ResourceReports, ResourceAuditLogs, ResourceRegistrations,
}

// AllActions 所有操作
var AllActions = []string{ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionValidate, ActionExport}

// IsValidResource 资源是否存在
func IsValidResource(resource string) bool {
	return contains(AllResources, resource)
}

// IsValidAction 操作是否存在
func IsValidAction(action string) bool {
	return contains(AllActions, action)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
