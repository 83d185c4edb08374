package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// 资源名，即缓存键的第一段
const (
	ResourceOrder         = "order"
	ResourceCart          = "cart"
	ResourceProducts      = "products"
	ResourceCategories    = "categories"
	ResourceSuppliers     = "suppliers"
	ResourcePaymentStatus = "payment_status"
)

// OrderKey 订单视图缓存键
func OrderKey(orderID uint) string {
	return fmt.Sprintf("%s:%d", ResourceOrder, orderID)
}

// PaymentStatusKey 支付状态缓存键
func PaymentStatusKey(paymentID uint) string {
	return fmt.Sprintf("%s:%d", ResourcePaymentStatus, paymentID)
}

// ItemKey 资源条目缓存键
func ItemKey(resource string, id uint) string {
	return fmt.Sprintf("%s:%d", resource, id)
}

// CollectionKey 资源集合缓存键
func CollectionKey(resource string) string {
	return strings.TrimSpace(resource)
}

// CartKey 购物车按调用方凭证隔离
func CartKey(authorization string) string {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return ResourceCart + ":anonymous"
	}
	sum := sha256.Sum256([]byte(authorization))
	return ResourceCart + ":" + hex.EncodeToString(sum[:8])
}

// NotificationGuardKey 相同通知并发抑制键
func NotificationGuardKey(provider, dataID, action string) string {
	return fmt.Sprintf("notify:%s:%s:%s", provider, dataID, action)
}

// QueryKey 带查询参数的集合缓存键，仍位于 resource:* 之下以便整体失效
func QueryKey(resource, rawQuery string) string {
	rawQuery = strings.TrimSpace(rawQuery)
	if rawQuery == "" {
		return CollectionKey(resource)
	}
	sum := sha256.Sum256([]byte(rawQuery))
	return fmt.Sprintf("%s:q:%s", strings.TrimSpace(resource), hex.EncodeToString(sum[:8]))
}
