package services

import (
	"caisse/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PermissionService struct {
	db *gorm.DB
}

// MatrixEntry 权限矩阵中的一格
type MatrixEntry struct {
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Allowed    bool   `json:"allowed"`
	Overridden bool   `json:"overridden"` // 是否为经营主体自定义值
}

// MatrixUpdate 修改权限矩阵的一格
type MatrixUpdate struct {
	Resource string `json:"resource" binding:"required"`
	Action   string `json:"action" binding:"required"`
	Allowed  bool   `json:"allowed"`
}

func NewPermissionService(db *gorm.DB) *PermissionService {
	return &PermissionService{db: db}
}

// HasPermission 检查角色在经营主体内是否具有某项权限：主体条目优先，其次平台默认
func (s *PermissionService) HasPermission(role string, entityID uint, resource, action string) (bool, error) {
	if role == models.RoleSuperAdmin {
		return true, nil
	}

	var perms []models.Permission
	err := s.db.Where("role = ? AND resource = ? AND action = ? AND entity_id IN ?",
		role, resource, action, []uint{0, entityID}).
		Order("entity_id DESC").
		Limit(1).
		Find(&perms).Error
	if err != nil {
		return false, err
	}
	if len(perms) == 0 {
		return false, nil
	}
	return perms[0].Allowed, nil
}

// GetMatrix 获取角色在经营主体内的有效权限矩阵（entityID 为0时为平台默认值）
func (s *PermissionService) GetMatrix(role string, entityID uint) ([]MatrixEntry, error) {
	if !models.IsEntityRole(role) {
		return nil, invalidParam("无效的角色: %s", role)
	}

	var perms []models.Permission
	if err := s.db.Where("role = ? AND entity_id IN ?", role, []uint{0, entityID}).Find(&perms).Error; err != nil {
		return nil, err
	}

	type key struct{ resource, action string }
	defaults := make(map[key]bool)
	overrides := make(map[key]bool)
	for _, p := range perms {
		k := key{p.Resource, p.Action}
		if p.EntityID == 0 {
			defaults[k] = p.Allowed
		} else {
			overrides[k] = p.Allowed
		}
	}

	entries := make([]MatrixEntry, 0, len(models.AllResources)*len(models.AllActions))
	for _, resource := range models.AllResources {
		for _, action := range models.AllActions {
			k := key{resource, action}
			entry := MatrixEntry{Resource: resource, Action: action, Allowed: defaults[k]}
			if allowed, ok := overrides[k]; ok && entityID != 0 {
				entry.Allowed = allowed
				entry.Overridden = true
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Effective 当前用户的有效权限：资源 -> 允许的操作
func (s *PermissionService) Effective(role string, entityID uint) (map[string][]string, error) {
	result := make(map[string][]string)
	if role == models.RoleSuperAdmin {
		for _, resource := range models.AllResources {
			result[resource] = append([]string(nil), models.AllActions...)
		}
		return result, nil
	}

	entries, err := s.GetMatrix(role, entityID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Allowed {
			result[e.Resource] = append(result[e.Resource], e.Action)
		}
	}
	return result, nil
}

// SetMatrix 写入权限矩阵：管理员修改本主体的覆盖值，超级管理员修改平台默认值
func (s *PermissionService) SetMatrix(actor Actor, role string, entityID uint, updates []MatrixUpdate) ([]MatrixEntry, error) {
	if !models.IsEntityRole(role) {
		return nil, invalidParam("无效的角色: %s", role)
	}
	if !actor.IsSuperAdmin() {
		entityID = actor.EntityID
		// 管理员不能修改管理员角色，避免把自己锁在外面
		if role == models.RoleAdmin {
			return nil, ErrForbidden
		}
	}
	for _, u := range updates {
		if !models.IsValidResource(u.Resource) || !models.IsValidAction(u.Action) {
			return nil, invalidParam("无效的权限项: %s:%s", u.Resource, u.Action)
		}
		// 经营主体不能授予平台级资源
		if entityID != 0 && (u.Resource == models.ResourceEntities && u.Action != models.ActionRead ||
			u.Resource == models.ResourceRegistrations) && u.Allowed {
			return nil, ErrForbidden
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			perm := models.Permission{
				EntityID: entityID,
				Role:     role,
				Resource: u.Resource,
				Action:   u.Action,
				Allowed:  u.Allowed,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "entity_id"}, {Name: "role"}, {Name: "resource"}, {Name: "action"}},
				DoUpdates: clause.AssignmentColumns([]string{"allowed", "updated_at"}),
			}).Create(&perm).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetMatrix(role, entityID)
}

// ResetEntityOverrides 删除经营主体对某角色的全部自定义权限
func (s *PermissionService) ResetEntityOverrides(entityID uint, role string) error {
	if entityID == 0 {
		return invalidParam("必须指定经营主体")
	}
	return s.db.Where("entity_id = ? AND role = ?", entityID, role).Delete(&models.Permission{}).Error
}

// DefaultMatrix 平台默认权限
func DefaultMatrix() map[string]map[string][]string {
	all := models.AllActions
	crud := []string{models.ActionRead, models.ActionCreate, models.ActionUpdate, models.ActionDelete}
	return map[string]map[string][]string{
		models.RoleAdmin: {
			models.ResourceEntities:      {models.ActionRead, models.ActionUpdate},
			models.ResourceUsers:         crud,
			models.ResourcePermissions:   {models.ActionRead, models.ActionUpdate},
			models.ResourceProducts:      append(crud, models.ActionExport),
			models.ResourceStock:         {models.ActionRead, models.ActionUpdate, models.ActionExport},
			models.ResourceThresholds:    crud,
			models.ResourceInvoices:      all,
			models.ResourceOrders:        all,
			models.ResourceCashSessions:  all,
			models.ResourceNotifications: {models.ActionRead, models.ActionCreate, models.ActionUpdate},
			models.ResourceReports:       {models.ActionRead, models.ActionExport},
			models.ResourceAuditLogs:     {models.ActionRead, models.ActionExport},
		},
		models.RoleManager: {
			models.ResourceEntities:      {models.ActionRead},
			models.ResourceUsers:         {models.ActionRead},
			models.ResourcePermissions:   {models.ActionRead},
			models.ResourceProducts:      {models.ActionRead, models.ActionCreate, models.ActionUpdate},
			models.ResourceStock:         {models.ActionRead, models.ActionUpdate, models.ActionExport},
			models.ResourceThresholds:    {models.ActionRead, models.ActionCreate, models.ActionUpdate},
			models.ResourceInvoices:      {models.ActionRead, models.ActionCreate, models.ActionUpdate, models.ActionValidate, models.ActionExport},
			models.ResourceOrders:        {models.ActionRead, models.ActionCreate, models.ActionUpdate, models.ActionValidate},
			models.ResourceCashSessions:  {models.ActionRead, models.ActionCreate, models.ActionUpdate, models.ActionValidate, models.ActionExport},
			models.ResourceNotifications: {models.ActionRead, models.ActionUpdate},
			models.ResourceReports:       {models.ActionRead, models.ActionExport},
			models.ResourceAuditLogs:     {models.ActionRead},
		},
		models.RoleCashier: {
			models.ResourceProducts:      {models.ActionRead},
			models.ResourceStock:         {models.ActionRead},
			models.ResourceInvoices:      {models.ActionRead, models.ActionCreate, models.ActionValidate},
			models.ResourceCashSessions:  {models.ActionRead, models.ActionCreate, models.ActionUpdate},
			models.ResourceNotifications: {models.ActionRead, models.ActionUpdate},
		},
		models.RoleStockKeeper: {
			models.ResourceProducts:      {models.ActionRead, models.ActionCreate, models.ActionUpdate},
			models.ResourceStock:         {models.ActionRead, models.ActionUpdate, models.ActionExport},
			models.ResourceThresholds:    {models.ActionRead, models.ActionCreate, models.ActionUpdate},
			models.ResourceOrders:        {models.ActionRead, models.ActionCreate, models.ActionUpdate, models.ActionValidate},
			models.ResourceNotifications: {models.ActionRead, models.ActionUpdate},
			models.ResourceReports:       {models.ActionRead},
		},
	}
}

// SeedDefaults 写入缺失的平台默认权限，已存在的条目保持不变
func (s *PermissionService) SeedDefaults() (int, error) {
	matrix := DefaultMatrix()
	created := 0

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, role := range models.EntityRoles {
			granted := make(map[string]bool)
			for resource, actions := range matrix[role] {
				for _, action := range actions {
					granted[resource+":"+action] = true
				}
			}

			for _, resource := range models.AllResources {
				for _, action := range models.AllActions {
					perm := models.Permission{
						EntityID: 0,
						Role:     role,
						Resource: resource,
						Action:   action,
						Allowed:  granted[resource+":"+action],
					}
					result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&perm)
					if result.Error != nil {
						return result.Error
					}
					created += int(result.RowsAffected)
				}
			}
		}
		return nil
	})
	return created, err
}
