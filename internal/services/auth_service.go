package services

import (
	"errors"
	"strings"
	"time"

	"caisse/internal/models"
	"caisse/pkg/jwt"

	"gorm.io/gorm"
)

type AuthService struct {
	db          *gorm.DB
	jwtManager  *jwt.JWTManager
	permissions *PermissionService
}

// LoginResult 登录/刷新结果
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Profile 当前用户信息及有效权限
type Profile struct {
	User        *models.User        `json:"user"`
	Permissions map[string][]string `json:"permissions"`
}

func NewAuthService(db *gorm.DB, jwtManager *jwt.JWTManager, permissions *PermissionService) *AuthService {
	return &AuthService{db: db, jwtManager: jwtManager, permissions: permissions}
}

// Login 用户名或邮箱 + 密码登录
func (s *AuthService) Login(identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)

	var user models.User
	err := s.db.Preload("Entity").
		Where("username = ? OR email = ?", identifier, strings.ToLower(identifier)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	if err := checkUsable(&user); err != nil {
		return nil, err
	}

	result, err := s.issue(&user)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s.db.Model(&models.User{}).Where("id = ?", user.ID).Update("last_login_at", now)
	user.LastLoginAt = &now
	return result, nil
}

// Refresh 刷新令牌，重新校验用户与经营主体状态
func (s *AuthService) Refresh(token string) (*LoginResult, error) {
	_, claims, err := s.jwtManager.RefreshToken(token)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	var user models.User
	if err := s.db.Preload("Entity").First(&user, claims.UserID).Error; err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := checkUsable(&user); err != nil {
		return nil, err
	}
	return s.issue(&user)
}

// Me 当前用户信息
func (s *AuthService) Me(userID uint) (*Profile, error) {
	var user models.User
	if err := s.db.Preload("Entity").First(&user, userID).Error; err != nil {
		return nil, err
	}
	perms, err := s.permissions.Effective(user.Role, user.EntityIDValue())
	if err != nil {
		return nil, err
	}
	return &Profile{User: &user, Permissions: perms}, nil
}

// CurrentUser 按令牌中的用户ID加载用户，并校验用户与经营主体状态
func (s *AuthService) CurrentUser(userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.Preload("Entity").First(&user, userID).Error; err != nil {
		return nil, err
	}
	if err := checkUsable(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyToken 校验令牌
func (s *AuthService) VerifyToken(token string) (*jwt.JWTClaims, error) {
	return s.jwtManager.VerifyToken(token)
}

// TokenDuration 令牌有效期
func (s *AuthService) TokenDuration() time.Duration {
	return s.jwtManager.GetTokenDuration()
}

func (s *AuthService) issue(user *models.User) (*LoginResult, error) {
	token, err := s.jwtManager.GenerateToken(user.ID, user.EntityIDValue(), user.Username, user.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:     token,
		ExpiresAt: time.Now().Add(s.jwtManager.GetTokenDuration()).Unix(),
		User:      user,
	}, nil
}

func checkUsable(user *models.User) error {
	if user.Status != models.UserStatusActive {
		return ErrAccountInactive
	}
	if !user.IsSuperAdmin() {
		if user.Entity == nil || !user.Entity.IsActive() {
			return ErrEntityInactive
		}
	}
	return nil
}
