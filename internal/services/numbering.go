package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"caisse/internal/models"

	"gorm.io/gorm"
)

// nextNumber 生成单据号 <前缀>-<主体代码>-<YYYYMMDD>-<序号>，序号按主体按天递增
// 序号超过4位后位数增加，先按长度再按字典序取最大
// 并发下可能生成相同号码，由 (entity_id, number) 唯一索引拒绝，调用方重试
func nextNumber(tx *gorm.DB, model interface{}, entityID uint, prefix string, at time.Time) (string, error) {
	var code string
	if err := tx.Model(&models.Entity{}).Select("code").Where("id = ?", entityID).Scan(&code).Error; err != nil {
		return "", err
	}
	if code == "" {
		code = fmt.Sprintf("E%d", entityID)
	}

	base := fmt.Sprintf("%s-%s-%s-", prefix, code, at.Format("20060102"))

	var last []string
	err := tx.Model(model).
		Where("entity_id = ? AND number LIKE ?", entityID, base+"%").
		Order("LENGTH(number) DESC, number DESC").
		Limit(1).
		Pluck("number", &last).Error
	if err != nil {
		return "", err
	}

	seq := 1
	if len(last) > 0 {
		if n, err := strconv.Atoi(strings.TrimPrefix(last[0], base)); err == nil {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%04d", base, seq), nil
}
