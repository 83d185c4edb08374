package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/lotecorto/storefront/internal/constants"
	"github.com/lotecorto/storefront/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationListFilter 台账列表筛选
type NotificationListFilter struct {
	Status            string
	ProviderPaymentID string
	OrderID           uint
	Page              int
	PageSize          int
}

// NotificationRepository 支付通知台账数据访问接口
type NotificationRepository interface {
	CreateIfAbsent(notification *models.PaymentNotification) (bool, error)
	GetByID(id uint) (*models.PaymentNotification, error)
	GetByDedupeKey(provider, providerPaymentID, providerStatus string) (*models.PaymentNotification, error)
	MarkForwarded(id uint, at time.Time) error
	MarkFailed(id uint, reason string) error
	ListPendingForward(before time.Time, maxAttempts, limit int) ([]models.PaymentNotification, error)
	ListAdmin(filter NotificationListFilter) ([]models.PaymentNotification, int64, error)
	WithTx(tx *gorm.DB) *GormNotificationRepository
}

// GormNotificationRepository GORM 实现
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建台账仓库
func NewNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// WithTx 绑定事务
func (r *GormNotificationRepository) WithTx(tx *gorm.DB) *GormNotificationRepository {
	if tx == nil {
		return r
	}
	return &GormNotificationRepository{db: tx}
}

// CreateIfAbsent 按唯一索引插入，已存在时返回 false 且回填已有记录
func (r *GormNotificationRepository) CreateIfAbsent(notification *models.PaymentNotification) (bool, error) {
	if notification == nil {
		return false, errors.New("notification is nil")
	}
	if notification.Status == "" {
		notification.Status = constants.NotificationStatusReceived
	}
	result := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_payment_id"},
			{Name: "provider_status"},
		},
		DoNothing: true,
	}).Create(notification)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	existing, err := r.GetByDedupeKey(notification.Provider, notification.ProviderPaymentID, notification.ProviderStatus)
	if err != nil {
		return false, err
	}
	if existing != nil {
		*notification = *existing
	}
	return false, nil
}

// GetByID 根据 ID 获取台账记录
func (r *GormNotificationRepository) GetByID(id uint) (*models.PaymentNotification, error) {
	var notification models.PaymentNotification
	if err := r.db.First(&notification, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &notification, nil
}

// GetByDedupeKey 根据去重键获取台账记录
func (r *GormNotificationRepository) GetByDedupeKey(provider, providerPaymentID, providerStatus string) (*models.PaymentNotification, error) {
	var notification models.PaymentNotification
	err := r.db.Where("provider = ? AND provider_payment_id = ? AND provider_status = ?",
		provider, providerPaymentID, providerStatus).
		First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &notification, nil
}

// MarkForwarded 标记已转发
func (r *GormNotificationRepository) MarkForwarded(id uint, at time.Time) error {
	return r.db.Model(&models.PaymentNotification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       constants.NotificationStatusForwarded,
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   "",
			"forwarded_at": at,
			"updated_at":   time.Now(),
		}).Error
}

// MarkFailed 标记转发失败并累计尝试次数
func (r *GormNotificationRepository) MarkFailed(id uint, reason string) error {
	return r.db.Model(&models.PaymentNotification{}).
		Where("id = ? AND status <> ?", id, constants.NotificationStatusForwarded).
		Updates(map[string]interface{}{
			"status":     constants.NotificationStatusFailed,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": strings.TrimSpace(reason),
			"updated_at": time.Now(),
		}).Error
}

// ListPendingForward 列出待补偿的记录（received/failed，早于 before，尝试次数未超限）
func (r *GormNotificationRepository) ListPendingForward(before time.Time, maxAttempts, limit int) ([]models.PaymentNotification, error) {
	query := r.db.Model(&models.PaymentNotification{}).
		Where("status IN ?", []string{constants.NotificationStatusReceived, constants.NotificationStatusFailed}).
		Where("updated_at < ?", before)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.PaymentNotification
	if err := query.Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAdmin 管理端台账列表
func (r *GormNotificationRepository) ListAdmin(filter NotificationListFilter) ([]models.PaymentNotification, int64, error) {
	query := r.db.Model(&models.PaymentNotification{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if ref := strings.TrimSpace(filter.ProviderPaymentID); ref != "" {
		query = query.Where("provider_payment_id = ?", ref)
	}
	if filter.OrderID != 0 {
		query = query.Where("order_id = ?", filter.OrderID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.PaymentNotification
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
