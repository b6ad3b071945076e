package jwt

import (
	"errors"
	"time"

	"caisse/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims JWT声明
type JWTClaims struct {
	UserID   uint   `json:"user_id"`
	EntityID uint   `json:"entity_id"` // 所属经营主体，平台超级管理员为0
	Role     string `json:"role"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IsSuperAdmin 是否平台超级管理员
func (c *JWTClaims) IsSuperAdmin() bool {
	return c.Role == "super_admin"
}

// JWTManager JWT管理器
type JWTManager struct {
	secretKey       string
	tokenDuration   time.Duration
	refreshDuration time.Duration
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:       secretKey,
		tokenDuration:   tokenDuration,
		refreshDuration: tokenDuration,
	}
}

// WithRefreshDuration 设置刷新窗口：过期后仍可在该窗口内换取新令牌
func (manager *JWTManager) WithRefreshDuration(d time.Duration) *JWTManager {
	manager.refreshDuration = d
	return manager
}

// GenerateToken 生成JWT令牌
func (manager *JWTManager) GenerateToken(userID, entityID uint, username, role string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		UserID:   userID,
		EntityID: entityID,
		Role:     role,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(manager.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "caisse",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(manager.secretKey))
}

// VerifyToken 验证JWT令牌
func (manager *JWTManager) VerifyToken(tokenString string) (*JWTClaims, error) {
	return manager.parse(tokenString)
}

func (manager *JWTManager) parse(tokenString string, opts ...jwt.ParserOption) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&JWTClaims{},
		func(token *jwt.Token) (interface{}, error) {
			// 验证签名方法
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("意外的签名方法")
			}
			return []byte(manager.secretKey), nil
		},
		opts...,
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return nil, errors.New("无法解析token声明")
	}

	return claims, nil
}

// RefreshToken 刷新令牌，已过期但仍在刷新窗口内的令牌也可刷新
func (manager *JWTManager) RefreshToken(tokenString string) (string, *JWTClaims, error) {
	claims, err := manager.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return "", nil, err
	}

	if claims.IssuedAt == nil || time.Since(claims.IssuedAt.Time) > manager.tokenDuration+manager.refreshDuration {
		return "", nil, errors.New("令牌已超过刷新期限")
	}

	token, err := manager.GenerateToken(claims.UserID, claims.EntityID, claims.Username, claims.Role)
	return token, claims, err
}

// GetTokenDuration 获取令牌有效期
func (manager *JWTManager) GetTokenDuration() time.Duration {
	return manager.tokenDuration
}

// NewFromConfig 根据配置创建，时长解析失败时使用默认值
func NewFromConfig(cfg config.JWTConfig) *JWTManager {
	tokenDuration, err := time.ParseDuration(cfg.TokenDuration)
	if err != nil || tokenDuration <= 0 {
		tokenDuration = 24 * time.Hour
	}
	refreshDuration, err := time.ParseDuration(cfg.RefreshDuration)
	if err != nil || refreshDuration < 0 {
		refreshDuration = 7 * 24 * time.Hour
	}
	return NewJWTManager(cfg.SecretKey, tokenDuration).WithRefreshDuration(refreshDuration)
}
