package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Actor 当前操作人（来自登录令牌）
type Actor struct {
	UserID   uint
	EntityID uint
	Username string
	Role     string
}

// IsSuperAdmin 是否平台超级管理员
func (a Actor) IsSuperAdmin() bool {
	return a.Role == "super_admin"
}

// 业务错误，处理器通过 errors.Is 映射为响应码
var (
	ErrInvalidParam       = errors.New("参数错误")
	ErrDuplicate          = errors.New("记录已存在")
	ErrForbidden          = errors.New("无权执行该操作")
	ErrInvalidState       = errors.New("当前状态不允许该操作")
	ErrInUse              = errors.New("记录正在使用中")
	ErrInsufficientStock  = errors.New("库存不足")
	ErrSessionAlreadyOpen = errors.New("已有未关闭的收银会话")
	ErrNoOpenSession      = errors.New("没有打开的收银会话")
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrAccountInactive    = errors.New("账户未激活或已停用")
	ErrEntityInactive     = errors.New("经营主体已停用")
)

func invalidParam(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParam, fmt.Sprintf(format, args...))
}

func invalidState(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func duplicate(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDuplicate, fmt.Sprintf(format, args...))
}

// likePattern 大小写不敏感的模糊匹配模式，配合 LOWER(column) LIKE ? 使用
func likePattern(keyword string) string {
	return "%" + strings.ToLower(strings.TrimSpace(keyword)) + "%"
}

// DateRange 时间范围过滤，To 为开区间
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Apply 对指定列追加时间条件
func (r DateRange) Apply(query *gorm.DB, column string) *gorm.DB {
	if r.From != nil {
		query = query.Where(column+" >= ?", *r.From)
	}
	if r.To != nil {
		query = query.Where(column+" < ?", *r.To)
	}
	return query
}

// DayRange 从 YYYY-MM-DD 字符串构造范围，to 当天包含在内
func DayRange(from, to string, loc *time.Location) (DateRange, error) {
	var r DateRange
	if loc == nil {
		loc = time.Local
	}
	if from != "" {
		t, err := time.ParseInLocation("2006-01-02", from, loc)
		if err != nil {
			return r, invalidParam("开始日期格式错误")
		}
		r.From = &t
	}
	if to != "" {
		t, err := time.ParseInLocation("2006-01-02", to, loc)
		if err != nil {
			return r, invalidParam("结束日期格式错误")
		}
		end := t.AddDate(0, 0, 1)
		r.To = &end
	}
	if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
		return r, invalidParam("开始日期不能晚于结束日期")
	}
	return r, nil
}

// 与表字段精度一致：数量 decimal(12,3)，金额 decimal(12,2)
const (
	quantityPlaces = 3
	moneyPlaces    = 2
)

// exceedsPlaces 小数位超过字段精度，入库时会被数据库舍入
func exceedsPlaces(v decimal.Decimal, places int32) bool {
	return !v.Equal(v.Round(places))
}

// truncateRunes 按字符截断，varchar(n) 按字符计长
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// isDuplicateKey 数据库唯一约束冲突（需开启 TranslateError）
func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
