package services

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"caisse/internal/models"
	"caisse/pkg/logger"
	"caisse/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RegistrationService struct {
	db            *gorm.DB
	entities      *EntityService
	users         *UserService
	notifications *NotificationService
}

// RegistrationInput 入驻申请参数
type RegistrationInput struct {
	EntityName  string
	EntityType  string
	ContactName string
	Email       string
	Phone       string
	Username    string
	Password    string
}

// ApprovalResult 审批结果
type ApprovalResult struct {
	Request *models.RegistrationRequest `json:"request"`
	Entity  *models.Entity              `json:"entity"`
	Admin   *models.User                `json:"admin"`
}

var nonCodeChars = regexp.MustCompile(`[^A-Z0-9]+`)

func NewRegistrationService(db *gorm.DB, entities *EntityService, users *UserService, notifications *NotificationService) *RegistrationService {
	return &RegistrationService{db: db, entities: entities, users: users, notifications: notifications}
}

// Submit 提交入驻申请（公开接口），并通知平台
func (s *RegistrationService) Submit(ctx context.Context, in RegistrationInput) (*models.RegistrationRequest, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateRegistration(in); err != nil {
		return nil, err
	}
	if err := checkIdentityAvailable(s.db, in.Username, in.Email, 0); err != nil {
		return nil, err
	}

	hashed := &models.User{}
	if err := hashed.SetPassword(in.Password); err != nil {
		return nil, err
	}

	req := &models.RegistrationRequest{
		Reference:    uuid.New().String(),
		EntityName:   strings.TrimSpace(in.EntityName),
		EntityType:   in.EntityType,
		ContactName:  strings.TrimSpace(in.ContactName),
		Email:        in.Email,
		Phone:        strings.TrimSpace(in.Phone),
		Username:     in.Username,
		PasswordHash: hashed.PasswordHash,
		Status:       models.RegistrationPending,
	}
	if err := s.db.Create(req).Error; err != nil {
		return nil, err
	}

	if s.notifications != nil {
		_, err := s.notifications.Notify(ctx, NotifyRequest{
			EntityID: 0,
			Roles:    []string{models.RoleSuperAdmin},
			Type:     models.NotificationRegistration,
			Title:    "Nouvelle demande d'inscription",
			Message:  fmt.Sprintf("%s (%s) - %s, %s", req.EntityName, req.EntityType, req.ContactName, req.Phone),
			Payload: map[string]string{
				"reference": req.Reference,
				"entity":    req.EntityName,
				"contact":   req.ContactName,
				"username":  req.Username,
			},
			Telegram: true,
		})
		if err != nil {
			logger.GetLogger().Errorf("发送入驻申请通知失败: %v", err)
		}
	}
	return req, nil
}

// GetWithFiltersAndPage 申请列表
func (s *RegistrationService) GetWithFiltersAndPage(status, keyword string, page, pageSize int) ([]*models.RegistrationRequest, int64, error) {
	var requests []*models.RegistrationRequest
	var total int64

	query := s.db.Model(&models.RegistrationRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if keyword != "" {
		pattern := likePattern(keyword)
		query = query.Where("LOWER(entity_name) LIKE ? OR LOWER(contact_name) LIKE ? OR LOWER(email) LIKE ?",
			pattern, pattern, pattern)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC, id DESC").Scopes(pagination.Paginate(page, pageSize)).Find(&requests).Error
	return requests, total, err
}

// GetByID 获取申请
func (s *RegistrationService) GetByID(id uint) (*models.RegistrationRequest, error) {
	var req models.RegistrationRequest
	if err := s.db.First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByReference 按申请编号查询（申请人查看进度）
func (s *RegistrationService) GetByReference(reference string) (*models.RegistrationRequest, error) {
	var req models.RegistrationRequest
	if err := s.db.Where("reference = ?", reference).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// PendingCount 待审核数量
func (s *RegistrationService) PendingCount() (int64, error) {
	var count int64
	err := s.db.Model(&models.RegistrationRequest{}).Where("status = ?", models.RegistrationPending).Count(&count).Error
	return count, err
}

// Approve 审批通过：在同一事务内创建经营主体和管理员账户
func (s *RegistrationService) Approve(ctx context.Context, reviewer Actor, id uint, code string) (*ApprovalResult, error) {
	result := &ApprovalResult{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var req models.RegistrationRequest
		if err := tx.First(&req, id).Error; err != nil {
			return err
		}
		if req.Status != models.RegistrationPending {
			return invalidState("申请已处理")
		}
		if code == "" {
			var err error
			code, err = deriveEntityCode(tx, req.EntityName)
			if err != nil {
				return err
			}
		}
		entity, err := s.entities.create(tx, EntityInput{
			Name:          req.EntityName,
			Code:          code,
			Type:          req.EntityType,
			Phone:         req.Phone,
			WhatsAppPhone: req.Phone,
		})
		if err != nil {
			return err
		}

		var phone *string
		if req.Phone != "" {
			p := req.Phone
			phone = &p
		}
		admin := &models.User{
			EntityID:     &entity.ID,
			Username:     req.Username,
			Email:        req.Email,
			FullName:     req.ContactName,
			Phone:        phone,
			Role:         models.RoleAdmin,
			Status:       models.UserStatusActive,
			PasswordHash: req.PasswordHash,
		}
		if err := s.users.createWithPassword(tx, admin, "", req.ID); err != nil {
			return err
		}

		req.Approve(reviewer.UserID, entity.ID)
		if err := tx.Save(&req).Error; err != nil {
			return err
		}

		result.Request = &req
		result.Entity = entity
		result.Admin = admin
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifications != nil && result.Request.Phone != "" {
		_, err := s.notifications.Notify(ctx, NotifyRequest{
			EntityID: result.Entity.ID,
			UserID:   &result.Admin.ID,
			Type:     models.NotificationRegistration,
			Title:    "Inscription approuvée",
			Message:  fmt.Sprintf("Bienvenue %s, votre espace %s est prêt.", result.Request.ContactName, result.Entity.Name),
			Payload: map[string]string{
				"contact":  result.Request.ContactName,
				"entity":   result.Entity.Name,
				"username": result.Admin.Username,
			},
			WhatsApp:       true,
			RecipientPhone: result.Request.Phone,
		})
		if err != nil {
			logger.GetLogger().Errorf("发送审批通知失败: %v", err)
		}
	}
	return result, nil
}

// Reject 拒绝申请，必须填写原因
func (s *RegistrationService) Reject(reviewer Actor, id uint, reason string) (*models.RegistrationRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalidParam("必须填写拒绝原因")
	}

	req, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RegistrationPending {
		return nil, invalidState("申请已处理")
	}

	req.Reject(reviewer.UserID, reason)
	result := s.db.Model(&models.RegistrationRequest{}).
		Where("id = ? AND status = ?", req.ID, models.RegistrationPending).
		Updates(map[string]interface{}{
			"status":           req.Status,
			"reviewed_by":      req.ReviewedBy,
			"reviewed_at":      req.ReviewedAt,
			"rejection_reason": req.RejectionReason,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, invalidState("申请已处理")
	}
	return req, nil
}

// deriveEntityCode 由名称生成唯一的经营主体代码
func deriveEntityCode(tx *gorm.DB, name string) (string, error) {
	base := nonCodeChars.ReplaceAllString(strings.ToUpper(name), "")
	if len(base) > 8 {
		base = base[:8]
	}
	if len(base) < 2 {
		base = "ENT"
	}

	code := base
	for i := 2; i < 1000; i++ {
		var count int64
		if err := tx.Model(&models.Entity{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
		code = fmt.Sprintf("%s%d", base, i)
	}
	return "", duplicate("无法生成唯一的经营主体代码")
}

func validateRegistration(in RegistrationInput) error {
	nameLen := utf8.RuneCountInString(strings.TrimSpace(in.EntityName))
	if nameLen < 2 || nameLen > 100 {
		return invalidParam("经营主体名称长度必须在2-100个字符之间")
	}
	if in.EntityType != models.EntityTypeCosmetics && in.EntityType != models.EntityTypeSpices {
		return invalidParam("经营主体类型必须是 cosmetics 或 spices")
	}
	if strings.TrimSpace(in.ContactName) == "" {
		return invalidParam("联系人不能为空")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return invalidParam("邮箱格式错误")
	}
	if strings.TrimSpace(in.Phone) == "" {
		return invalidParam("联系电话不能为空")
	}
	if !usernamePattern.MatchString(in.Username) {
		return invalidParam("用户名只能包含3-50位字母、数字、下划线、点或连字符")
	}
	return validatePassword(in.Password)
}
