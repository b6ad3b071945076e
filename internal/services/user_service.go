package services

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"caisse/internal/models"
	"caisse/pkg/pagination"

	"gorm.io/gorm"
)

type UserService struct {
	db *gorm.DB
}

// UserInput 创建用户参数
type UserInput struct {
	Username string
	Email    string
	Password string
	FullName string
	Phone    *string
	Role     string
}

// UserUpdate 更新用户参数，空字段不修改
type UserUpdate struct {
	Email    string
	FullName string
	Phone    *string
	Role     string
}

// UserFilter 用户列表过滤
type UserFilter struct {
	EntityID uint // 仅超级管理员有效，0 表示全部
	Role     string
	Status   string
	Keyword  string
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,50}$`)

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// ========== 基础CRUD方法 ==========

// Create 创建用户：超级管理员可在任意经营主体下创建，管理员只能在本主体内创建
func (s *UserService) Create(actor Actor, entityID uint, in UserInput) (*models.User, error) {
	if !actor.IsSuperAdmin() {
		entityID = actor.EntityID
	}
	if entityID == 0 {
		return nil, invalidParam("必须指定经营主体")
	}
	if !models.IsEntityRole(in.Role) {
		return nil, invalidParam("无效的角色: %s", in.Role)
	}
	if err := validateUserInput(in); err != nil {
		return nil, err
	}

	var entity models.Entity
	if err := s.db.First(&entity, entityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidParam("经营主体不存在")
		}
		return nil, err
	}

	user := &models.User{
		EntityID: &entityID,
		Username: strings.TrimSpace(in.Username),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		FullName: strings.TrimSpace(in.FullName),
		Phone:    in.Phone,
		Role:     in.Role,
		Status:   models.UserStatusActive,
	}
	if err := s.createWithPassword(s.db, user, in.Password, 0); err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureSuperAdmin 平台没有超级管理员时创建一个，已存在则跳过
func (s *UserService) EnsureSuperAdmin(username, email, password string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.User{}).Where("role = ?", models.RoleSuperAdmin).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	in := UserInput{Username: username, Email: email, Password: password, FullName: "Administrateur plateforme", Role: models.RoleSuperAdmin}
	if err := validateUserInput(in); err != nil {
		return false, err
	}
	user := &models.User{
		Username: strings.TrimSpace(in.Username),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		FullName: in.FullName,
		Role:     models.RoleSuperAdmin,
		Status:   models.UserStatusActive,
	}
	if err := s.createWithPassword(s.db, user, in.Password, 0); err != nil {
		return false, err
	}
	return true, nil
}

// createWithPassword 校验唯一性、设置密码并写入；password 为空时沿用已有哈希
// exceptRequestID 为正在审批的入驻申请，不参与唯一性检查
func (s *UserService) createWithPassword(tx *gorm.DB, user *models.User, password string, exceptRequestID uint) error {
	if err := checkIdentityAvailable(tx, user.Username, user.Email, exceptRequestID); err != nil {
		return err
	}
	if password != "" {
		if err := user.SetPassword(password); err != nil {
			return err
		}
	}
	if err := tx.Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return duplicate("用户名或邮箱已存在")
		}
		return err
	}
	return nil
}

// checkIdentityAvailable 用户名与邮箱在用户表和待审核申请中都必须唯一
func checkIdentityAvailable(db *gorm.DB, username, email string, exceptRequestID uint) error {
	var count int64
	db.Model(&models.User{}).Where("username = ?", username).Count(&count)
	if count > 0 {
		return duplicate("用户名已存在")
	}
	db.Model(&models.User{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		return duplicate("邮箱已存在")
	}

	query := db.Model(&models.RegistrationRequest{}).
		Where("status = ?", models.RegistrationPending).
		Where("username = ? OR email = ?", username, email)
	if exceptRequestID != 0 {
		query = query.Where("id <> ?", exceptRequestID)
	}
	query.Count(&count)
	if count > 0 {
		return duplicate("用户名或邮箱已被待审核的入驻申请占用")
	}
	return nil
}

// scoped 按操作人限定经营主体范围
func (s *UserService) scoped(actor Actor) *gorm.DB {
	query := s.db.Model(&models.User{})
	if !actor.IsSuperAdmin() {
		query = query.Where("entity_id = ?", actor.EntityID)
	}
	return query
}

// GetByID 根据ID获取用户
func (s *UserService) GetByID(actor Actor, id uint) (*models.User, error) {
	var user models.User
	if err := s.scoped(actor).Preload("Entity").First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetWithFiltersAndPage 组合查询（分页版本）
func (s *UserService) GetWithFiltersAndPage(actor Actor, filter UserFilter, page, pageSize int) ([]*models.User, int64, error) {
	var users []*models.User
	var total int64

	query := s.scoped(actor)
	if actor.IsSuperAdmin() && filter.EntityID != 0 {
		query = query.Where("entity_id = ?", filter.EntityID)
	}
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Keyword != "" {
		pattern := likePattern(filter.Keyword)
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?", pattern, pattern, pattern)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Scopes(pagination.Paginate(page, pageSize)).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Update 更新用户资料与角色
func (s *UserService) Update(actor Actor, id uint, in UserUpdate) (*models.User, error) {
	user, err := s.GetByID(actor, id)
	if err != nil {
		return nil, err
	}
	if user.IsSuperAdmin() && !actor.IsSuperAdmin() {
		return nil, ErrForbidden
	}

	if in.Email != "" {
		email := strings.ToLower(strings.TrimSpace(in.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, invalidParam("邮箱格式错误")
		}
		if email != user.Email {
			var count int64
			s.db.Model(&models.User{}).Where("email = ? AND id <> ?", email, id).Count(&count)
			if count > 0 {
				return nil, duplicate("邮箱已存在")
			}
			user.Email = email
		}
	}
	if in.FullName != "" {
		user.FullName = strings.TrimSpace(in.FullName)
	}
	if in.Phone != nil {
		user.Phone = in.Phone
	}
	if in.Role != "" && in.Role != user.Role {
		if user.IsSuperAdmin() || !models.IsEntityRole(in.Role) {
			return nil, invalidParam("无效的角色: %s", in.Role)
		}
		if user.ID == actor.UserID {
			return nil, invalidState("不能修改自己的角色")
		}
		user.Role = in.Role
	}

	user.Entity = nil
	if err := s.db.Save(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// Activate 激活用户
func (s *UserService) Activate(actor Actor, id uint) (*models.User, error) {
	return s.setStatus(actor, id, models.UserStatusActive)
}

// Suspend 停用用户，不能停用自己
func (s *UserService) Suspend(actor Actor, id uint) (*models.User, error) {
	if id == actor.UserID {
		return nil, invalidState("不能停用自己")
	}
	return s.setStatus(actor, id, models.UserStatusSuspended)
}

func (s *UserService) setStatus(actor Actor, id uint, status string) (*models.User, error) {
	user, err := s.GetByID(actor, id)
	if err != nil {
		return nil, err
	}
	if user.IsSuperAdmin() {
		return nil, ErrForbidden
	}
	if err := s.db.Model(&models.User{}).Where("id = ?", id).Update("status", status).Error; err != nil {
		return nil, err
	}
	user.Status = status
	return user, nil
}

// Delete 删除用户，已有业务记录的用户只能停用
func (s *UserService) Delete(actor Actor, id uint) error {
	if id == actor.UserID {
		return invalidState("不能删除自己")
	}
	user, err := s.GetByID(actor, id)
	if err != nil {
		return err
	}
	if user.IsSuperAdmin() {
		return ErrForbidden
	}

	for _, ref := range []struct {
		model  interface{}
		column string
	}{
		{&models.Invoice{}, "created_by"},
		{&models.CashSession{}, "user_id"},
	} {
		var refs int64
		if err := s.db.Model(ref.model).Where(ref.column+" = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return ErrInUse
		}
	}
	return s.db.Delete(&models.User{}, id).Error
}

// ResetPassword 管理员重置密码
func (s *UserService) ResetPassword(actor Actor, id uint, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	user, err := s.GetByID(actor, id)
	if err != nil {
		return err
	}
	if user.IsSuperAdmin() && !actor.IsSuperAdmin() {
		return ErrForbidden
	}
	if err := user.SetPassword(password); err != nil {
		return err
	}
	return s.db.Model(&models.User{}).Where("id = ?", id).Update("password_hash", user.PasswordHash).Error
}

// ChangePassword 用户修改自己的密码
func (s *UserService) ChangePassword(userID uint, oldPassword, newPassword string) error {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return err
	}
	if !user.CheckPassword(oldPassword) {
		return ErrInvalidCredentials
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	return s.db.Model(&models.User{}).Where("id = ?", userID).Update("password_hash", user.PasswordHash).Error
}

// UpdateLastLogin 更新最后登录时间
func (s *UserService) UpdateLastLogin(id uint) error {
	return s.db.Model(&models.User{}).Where("id = ?", id).Update("last_login_at", time.Now()).Error
}

// ListRecipients 经营主体内指定角色的活跃用户（通知接收人）
func (s *UserService) ListRecipients(entityID uint, roles ...string) ([]models.User, error) {
	var users []models.User
	err := s.db.Where("entity_id = ? AND status = ? AND role IN ?", entityID, models.UserStatusActive, roles).
		Find(&users).Error
	return users, err
}

func validateUserInput(in UserInput) error {
	if !usernamePattern.MatchString(strings.TrimSpace(in.Username)) {
		return invalidParam("用户名只能包含3-50位字母、数字、下划线、点或横线")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		return invalidParam("邮箱格式错误")
	}
	nameLen := utf8.RuneCountInString(strings.TrimSpace(in.FullName))
	if nameLen < 2 || nameLen > 100 {
		return invalidParam("姓名长度必须在2-100个字符之间")
	}
	return validatePassword(in.Password)
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return invalidParam("密码长度不能少于8位")
	}
	return nil
}
