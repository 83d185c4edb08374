package models

import (
	"time"

	"github.com/lotecorto/storefront/internal/constants"
)

// PaymentNotification 支付通知幂等台账
// Status: received/forwarded/failed；NormalizedStatus: pending/accepted/rejected
type PaymentNotification struct {
	ID                uint       `gorm:"primarykey" json:"id"`
	Provider          string     `gorm:"size:32;not null;uniqueIndex:idx_notification_dedupe,priority:1" json:"provider"`
	ProviderPaymentID string     `gorm:"size:64;not null;uniqueIndex:idx_notification_dedupe,priority:2" json:"provider_payment_id"`
	ProviderStatus    string     `gorm:"size:32;not null;uniqueIndex:idx_notification_dedupe,priority:3" json:"provider_status"`
	Topic             string     `gorm:"size:32;not null" json:"topic"`
	Action            string     `gorm:"size:64" json:"action"`
	Status            string     `gorm:"size:16;index;not null" json:"status"`
	NormalizedStatus  string     `gorm:"size:16;not null" json:"normalized_status"`
	PaymentID         uint       `gorm:"index" json:"payment_id"`
	OrderID           uint       `gorm:"index" json:"order_id"`
	Amount            Money      `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`
	Currency          string     `gorm:"size:8" json:"currency"`
	Attempts          int        `gorm:"not null;default:0" json:"attempts"`
	LastError         string     `gorm:"type:text" json:"last_error"`
	Payload           JSON       `gorm:"type:json" json:"payload"` // 原始通知
	ForwardedAt       *time.Time `gorm:"index" json:"forwarded_at"`
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (PaymentNotification) TableName() string {
	return "payment_notifications"
}

// Terminal 归一化状态是否为终态
func (n *PaymentNotification) Terminal() bool {
	return n != nil && (n.NormalizedStatus == constants.PaymentStatusAccepted || n.NormalizedStatus == constants.PaymentStatusRejected)
}
