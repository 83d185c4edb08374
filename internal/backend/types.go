package backend

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order 后端订单，State 为四位打包的履约状态
type Order struct {
	ID        uint            `json:"id"`
	State     int             `json:"state"`
	Total     decimal.Decimal `json:"total"`
	Products  []OrderProduct  `json:"products"`
	Payments  []Payment       `json:"payments"`
	Customer  Record          `json:"customer,omitempty"`
	CreatedAt *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

// OrderProduct 订单商品行
type OrderProduct struct {
	ID       uint            `json:"id"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Payment 订单支付记录
type Payment struct {
	ID         uint            `json:"id"`
	OrderID    uint            `json:"orderID"`
	Method     string          `json:"method"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	VoucherURL string          `json:"voucherURL,omitempty"`
}

// PaymentSession 创建的 MercadoPago 支付会话
type PaymentSession struct {
	ID       uint            `json:"id"`
	OrderID  uint            `json:"orderID"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

// PaymentNotification 转发给后端的规范化支付通知
type PaymentNotification struct {
	Provider          string          `json:"provider"`
	ProviderPaymentID string          `json:"providerPaymentID"`
	ProviderStatus    string          `json:"providerStatus"`
	Status            string          `json:"status"`
	PaymentID         uint            `json:"paymentID,omitempty"`
	OrderID           uint            `json:"orderID,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency,omitempty"`
	ReceivedAt        time.Time       `json:"receivedAt"`
}

// Cart 购物车
type Cart struct {
	Items []CartItem      `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// CartItem 购物车条目
type CartItem struct {
	ProductID uint            `json:"productID"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Record 目录资源的通用记录，字段由后端定义
type Record map[string]interface{}

// ID 读取记录中的数字 id
func (r Record) ID() uint {
	switch v := r["id"].(type) {
	case float64:
		if v > 0 {
			return uint(v)
		}
	case int:
		if v > 0 {
			return uint(v)
		}
	case uint:
		return v
	}
	return 0
}
