package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User 用户模型
type User struct {
	BaseModel
	EntityID     *uint      `json:"entity_id" gorm:"index"` // 平台超级管理员为空
	Username     string     `json:"username" gorm:"unique;not null;size:50;index"`
	Email        string     `json:"email" gorm:"unique;not null;size:100;index"`
	PasswordHash string     `json:"-" gorm:"not null;size:255"`
	FullName     string     `json:"full_name" gorm:"not null;size:100"`
	Phone        *string    `json:"phone" gorm:"size:30"`
	Role         string     `json:"role" gorm:"not null;size:20;index"`
	Status       string     `json:"status" gorm:"default:'pending';size:20"`
	LastLoginAt  *time.Time `json:"last_login_at"`

	Entity *Entity `gorm:"foreignKey:EntityID" json:"entity,omitempty"`
}

// TableName 表名
func (u *User) TableName() string {
	return "users"
}

// 用户状态常量
const (
	UserStatusPending   = "pending"
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

// 角色常量
const (
	RoleSuperAdmin  = "super_admin"
	RoleAdmin       = "admin"
	RoleManager     = "manager"
	RoleCashier     = "cashier"
	RoleStockKeeper = "stock_keeper"
)

// EntityRoles 经营主体内可分配的角色
var EntityRoles = []string{RoleAdmin, RoleManager, RoleCashier, RoleStockKeeper}

// IsEntityRole 判断角色是否可在经营主体内分配
func IsEntityRole(role string) bool {
	return contains(EntityRoles, role)
}

// SetPassword 设置密码 - 数据操作方法
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

// CheckPassword 验证密码 - 数据操作方法
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// EntityIDValue 所属经营主体ID，无主体时为0
func (u *User) EntityIDValue() uint {
	if u.EntityID == nil {
		return 0
	}
	return *u.EntityID
}

// IsSuperAdmin 是否平台超级管理员
func (u *User) IsSuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}
